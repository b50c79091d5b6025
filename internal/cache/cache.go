// Package cache implements the stale-while-revalidate cache shared by every
// per-feature data loader: read the cached copy, serve it immediately, refetch
// in the background when it is old, and reconcile. Entries remember the user
// they belong to and optimistic mutations are rolled back when the remote
// write fails.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Cache events reported to an Observer.
const (
	EventHit           = "hit"
	EventMiss          = "miss"
	EventStale         = "stale"
	EventOwnerMismatch = "owner_mismatch"
	EventRevert        = "revert"
	EventRefreshError  = "refresh_error"
)

// Observer receives cache events, typically to feed metrics.
type Observer interface {
	Observe(namespace, event string)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string) {}

type Options struct {
	// StaleAfter is the age after which a hit triggers a background refetch.
	StaleAfter time.Duration
	// Retention is the backend ttl of every entry. Zero keeps entries forever.
	Retention time.Duration
	// RefreshTimeout bounds one background refetch.
	RefreshTimeout time.Duration

	Observer Observer
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

func (o *Options) setDefaults() {
	if o.StaleAfter <= 0 {
		o.StaleAfter = 30 * time.Second
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = 30 * time.Second
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = l
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// FetchFunc loads the authoritative value from the remote store.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result is what Load hands back to the caller.
type Result[T any] struct {
	Value    T
	Cached   bool
	Stale    bool
	StoredAt time.Time
}

type Cache[T any] struct {
	namespace string
	backend   Backend
	opts      Options

	group singleflight.Group
	locks keyLocks
	bg    sync.WaitGroup
}

func New[T any](namespace string, backend Backend, opts Options) *Cache[T] {
	opts.setDefaults()
	return &Cache[T]{namespace: namespace, backend: backend, opts: opts}
}

func (c *Cache[T]) Namespace() string { return c.namespace }

func (c *Cache[T]) fullKey(key string) string { return c.namespace + ":" + key }

// Load returns the cached value for key when it belongs to owner, scheduling a
// background refetch once it is older than StaleAfter. A missing entry, or one
// written for a different owner, is fetched synchronously.
func (c *Cache[T]) Load(ctx context.Context, owner, key string, fetch FetchFunc[T]) (Result[T], error) {
	entry, ok := c.read(ctx, key)
	if ok && entry.Owner != owner {
		c.opts.Observer.Observe(c.namespace, EventOwnerMismatch)
		c.opts.Logger.WithFields(logrus.Fields{"namespace": c.namespace, "key": key}).
			Debug("discarding entry cached for another user")
		if err := c.backend.Delete(ctx, c.fullKey(key)); err != nil {
			c.opts.Logger.WithError(err).Warn("delete foreign cache entry")
		}
		ok = false
	}

	if ok {
		var v T
		if err := jsonUnmarshal(entry.Data, &v); err == nil {
			res := Result[T]{Value: v, Cached: true, StoredAt: entry.StoredAt}
			if c.opts.Now().Sub(entry.StoredAt) > c.opts.StaleAfter {
				res.Stale = true
				c.opts.Observer.Observe(c.namespace, EventStale)
				c.revalidate(ctx, owner, key, fetch)
			} else {
				c.opts.Observer.Observe(c.namespace, EventHit)
			}
			return res, nil
		}
		// unreadable payload, e.g. after a type change: refetch
	}

	c.opts.Observer.Observe(c.namespace, EventMiss)
	v, err := c.fetchAndStore(ctx, owner, key, fetch, time.Time{})
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Value: v, StoredAt: c.opts.Now()}, nil
}

// Peek returns the cached value without fetching. Foreign entries are reported as absent.
func (c *Cache[T]) Peek(ctx context.Context, owner, key string) (T, bool) {
	var zero T
	entry, ok := c.read(ctx, key)
	if !ok || entry.Owner != owner {
		return zero, false
	}
	var v T
	if err := jsonUnmarshal(entry.Data, &v); err != nil {
		return zero, false
	}
	return v, true
}

// Put overwrites the entry for key.
func (c *Cache[T]) Put(ctx context.Context, owner, key string, v T) error {
	unlock := c.locks.lock(key)
	defer unlock()
	return c.write(ctx, owner, key, v)
}

// Invalidate drops the entry so the next Load fetches synchronously.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, c.fullKey(key))
}

// Refresh fetches and stores synchronously, regardless of the entry's age.
func (c *Cache[T]) Refresh(ctx context.Context, owner, key string, fetch FetchFunc[T]) (T, error) {
	return c.fetchAndStore(ctx, owner, key, fetch, time.Time{})
}

// Mutate applies an optimistic update. The value returned by apply is cached
// before commit runs; if commit fails the previous entry is restored exactly
// (or removed when there was none) and commit's error is returned. Mutations
// of the same key never interleave.
func (c *Cache[T]) Mutate(
	ctx context.Context,
	owner, key string,
	apply func(current T, found bool) (T, error),
	commit func(ctx context.Context, next T) error,
) (T, error) {
	var zero T
	unlock := c.locks.lock(key)
	defer unlock()

	prevRaw, err := c.backend.Get(ctx, c.fullKey(key))
	hadPrev := err == nil
	if err != nil && !errors.Is(err, ErrMiss) {
		return zero, fmt.Errorf("read %s: %w", key, err)
	}

	var current T
	found := false
	if hadPrev {
		if e, derr := decodeEntry(prevRaw); derr == nil && e.Owner == owner {
			if jsonUnmarshal(e.Data, &current) == nil {
				found = true
			}
		}
	}

	next, err := apply(current, found)
	if err != nil {
		return zero, err
	}
	if err := c.write(ctx, owner, key, next); err != nil {
		return zero, err
	}

	if err := commit(ctx, next); err != nil {
		c.opts.Observer.Observe(c.namespace, EventRevert)
		c.opts.Logger.WithError(err).WithFields(logrus.Fields{"namespace": c.namespace, "key": key}).
			Info("remote mutation failed, reverting cached value")
		// the caller's context may be what failed the commit
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		var rerr error
		if hadPrev {
			rerr = c.backend.Set(rctx, c.fullKey(key), prevRaw, c.opts.Retention)
		} else {
			rerr = c.backend.Delete(rctx, c.fullKey(key))
		}
		if rerr != nil {
			c.opts.Logger.WithError(rerr).Error("revert cached value")
		}
		return zero, err
	}
	return next, nil
}

// Wait blocks until in-flight background refetches have finished.
func (c *Cache[T]) Wait() { c.bg.Wait() }

func (c *Cache[T]) revalidate(ctx context.Context, owner, key string, fetch FetchFunc[T]) {
	startedAt := c.opts.Now()
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RefreshTimeout)
		defer cancel()
		if _, err := c.fetchAndStore(bctx, owner, key, fetch, startedAt); err != nil {
			c.opts.Observer.Observe(c.namespace, EventRefreshError)
			c.opts.Logger.WithError(err).WithFields(logrus.Fields{"namespace": c.namespace, "key": key}).
				Warn("background refresh failed, keeping stale entry")
		}
	}()
}

// fetchAndStore deduplicates concurrent fetches per owner and key. When
// notAfter is set, the result is only written if nothing newer was stored
// since the fetch started, so a slow refetch cannot clobber a mutation.
func (c *Cache[T]) fetchAndStore(ctx context.Context, owner, key string, fetch FetchFunc[T], notAfter time.Time) (T, error) {
	var zero T
	v, err, _ := c.group.Do(owner+"\x00"+key, func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		unlock := c.locks.lock(key)
		defer unlock()
		if !notAfter.IsZero() {
			if e, ok := c.read(ctx, key); ok && e.StoredAt.After(notAfter) {
				return val, nil
			}
		}
		if err := c.write(ctx, owner, key, val); err != nil {
			c.opts.Logger.WithError(err).Warn("store fetched value")
		}
		return val, nil
	})
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

func (c *Cache[T]) read(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.backend.Get(ctx, c.fullKey(key))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.opts.Logger.WithError(err).Warn("cache read failed, treating as miss")
		}
		return Entry{}, false
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, false
	}
	return e, true
}

func (c *Cache[T]) write(ctx context.Context, owner, key string, v T) error {
	raw, err := encodeEntry(owner, c.opts.Now(), v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.backend.Set(ctx, c.fullKey(key), raw, c.opts.Retention)
}
