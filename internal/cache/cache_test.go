package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) Observe(_, event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingObserver) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func newTestCache(t *testing.T) (*Cache[[]string], *MemoryBackend, *fakeClock, *recordingObserver) {
	t.Helper()
	clock := newFakeClock()
	backend := NewMemoryBackend(0, 0)
	backend.now = clock.Now
	obs := &recordingObserver{}
	c := New[[]string]("saved_jobs", backend, Options{
		StaleAfter: 30 * time.Second,
		Retention:  time.Hour,
		Observer:   obs,
		Now:        clock.Now,
	})
	return c, backend, clock, obs
}

func counting(calls *int32, v []string) FetchFunc[[]string] {
	return func(context.Context) ([]string, error) {
		atomic.AddInt32(calls, 1)
		return v, nil
	}
}

func TestLoadMissFetchesAndStores(t *testing.T) {
	c, _, _, obs := newTestCache(t)
	ctx := context.Background()
	var calls int32

	res, err := c.Load(ctx, "user-a", "device-1", counting(&calls, []string{"job-1"}))
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, []string{"job-1"}, res.Value)

	res, err = c.Load(ctx, "user-a", "device-1", counting(&calls, []string{"job-2"}))
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.False(t, res.Stale)
	assert.Equal(t, []string{"job-1"}, res.Value)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, obs.count(EventHit))
}

func TestLoadStaleServesCachedAndRefreshes(t *testing.T) {
	c, _, clock, _ := newTestCache(t)
	ctx := context.Background()
	var calls int32

	_, err := c.Load(ctx, "user-a", "device-1", counting(&calls, []string{"old"}))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := c.Load(ctx, "user-a", "device-1", counting(&calls, []string{"new"}))
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, []string{"old"}, res.Value, "stale data is served while revalidating")

	c.Wait()
	v, ok := c.Peek(ctx, "user-a", "device-1")
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, v)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestLoadIgnoresEntryOfAnotherUser(t *testing.T) {
	c, _, _, obs := newTestCache(t)
	ctx := context.Background()
	var calls int32

	_, err := c.Load(ctx, "user-a", "device-1", counting(&calls, []string{"a-job"}))
	require.NoError(t, err)

	_, ok := c.Peek(ctx, "user-b", "device-1")
	assert.False(t, ok)

	res, err := c.Load(ctx, "user-b", "device-1", counting(&calls, []string{"b-job"}))
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, []string{"b-job"}, res.Value)
	assert.Equal(t, 1, obs.count(EventOwnerMismatch))

	_, ok = c.Peek(ctx, "user-a", "device-1")
	assert.False(t, ok, "user a's entry was replaced")
}

func TestLoadFetchError(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	boom := errors.New("db down")

	_, err := c.Load(context.Background(), "user-a", "k", func(context.Context) ([]string, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestBackgroundRefreshFailureKeepsStaleEntry(t *testing.T) {
	c, _, clock, obs := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "user-a", "k", []string{"cached"}))

	clock.Advance(time.Minute)
	res, err := c.Load(ctx, "user-a", "k", func(context.Context) ([]string, error) {
		return nil, errors.New("offline")
	})
	require.NoError(t, err)
	assert.True(t, res.Stale)
	c.Wait()

	v, ok := c.Peek(ctx, "user-a", "k")
	require.True(t, ok)
	assert.Equal(t, []string{"cached"}, v)
	assert.Equal(t, 1, obs.count(EventRefreshError))
}

func TestMutateRevertsExactlyOnCommitFailure(t *testing.T) {
	c, backend, clock, obs := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "user-a", "k", []string{"job-1"}))
	before, err := backend.Get(ctx, "saved_jobs:k")
	require.NoError(t, err)

	clock.Advance(time.Second)
	var seen []string
	_, err = c.Mutate(ctx, "user-a", "k",
		func(cur []string, found bool) ([]string, error) {
			require.True(t, found)
			next, _ := IDSet(cur).Toggle("job-2")
			return next, nil
		},
		func(_ context.Context, next []string) error {
			seen, _ = c.Peek(ctx, "user-a", "k")
			return errors.New("insert failed")
		})
	require.Error(t, err)
	assert.Equal(t, []string{"job-1", "job-2"}, seen, "optimistic value visible during commit")

	after, err := backend.Get(ctx, "saved_jobs:k")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, obs.count(EventRevert))
}

func TestMutateKeepsValueOnSuccess(t *testing.T) {
	c, _, _, obs := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "user-a", "k", []string{"job-1"}))

	next, err := c.Mutate(ctx, "user-a", "k",
		func(cur []string, _ bool) ([]string, error) {
			out, _ := IDSet(cur).Toggle("job-1")
			return out, nil
		},
		func(context.Context, []string) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, next)

	v, ok := c.Peek(ctx, "user-a", "k")
	require.True(t, ok)
	assert.Empty(t, v)
	assert.Zero(t, obs.count(EventRevert))
}

func TestMutateWithoutPriorEntryRemovesOnFailure(t *testing.T) {
	c, backend, _, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.Mutate(ctx, "user-a", "k",
		func([]string, bool) ([]string, error) { return []string{"x"}, nil },
		func(context.Context, []string) error { return errors.New("nope") })
	require.Error(t, err)

	_, err = backend.Get(ctx, "saved_jobs:k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMutateApplyErrorLeavesCacheUntouched(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "user-a", "k", []string{"a"}))

	committed := false
	_, err := c.Mutate(ctx, "user-a", "k",
		func([]string, bool) ([]string, error) { return nil, errors.New("invalid") },
		func(context.Context, []string) error { committed = true; return nil })
	require.Error(t, err)
	assert.False(t, committed)

	v, _ := c.Peek(ctx, "user-a", "k")
	assert.Equal(t, []string{"a"}, v)
}

func TestMutateTreatsForeignEntryAsAbsent(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "user-a", "k", []string{"a-job"}))

	_, err := c.Mutate(ctx, "user-b", "k",
		func(cur []string, found bool) ([]string, error) {
			assert.False(t, found)
			assert.Empty(t, cur)
			return []string{"b-job"}, nil
		},
		func(context.Context, []string) error { return nil })
	require.NoError(t, err)
}

func TestSlowRefreshDoesNotOverwriteNewerWrite(t *testing.T) {
	c, _, clock, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "user-a", "k", []string{"old"}))
	clock.Advance(time.Minute)

	release := make(chan struct{})
	_, err := c.Load(ctx, "user-a", "k", func(context.Context) ([]string, error) {
		<-release
		return []string{"from-refresh"}, nil
	})
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, c.Put(ctx, "user-a", "k", []string{"mutated"}))
	close(release)
	c.Wait()

	v, _ := c.Peek(ctx, "user-a", "k")
	assert.Equal(t, []string{"mutated"}, v)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()
	var calls int32
	start := make(chan struct{})
	fetch := func(context.Context) ([]string, error) {
		<-start
		atomic.AddInt32(&calls, 1)
		return []string{"v"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Load(ctx, "user-a", "k", fetch)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestIDSetToggle(t *testing.T) {
	s := IDSet{"a", "b"}

	next, added := s.Toggle("c")
	assert.True(t, added)
	assert.Equal(t, IDSet{"a", "b", "c"}, next)

	next, added = next.Toggle("a")
	assert.False(t, added)
	assert.Equal(t, IDSet{"b", "c"}, next)
	assert.Equal(t, IDSet{"a", "b"}, s, "toggle does not modify the receiver")
	assert.True(t, next.Contains("b"))
	assert.False(t, next.Contains("a"))
}

func TestMemoryBackendExpiry(t *testing.T) {
	clock := newFakeClock()
	b := NewMemoryBackend(0, 0)
	b.now = clock.Now
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(time.Minute)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, b.Len())
}

func TestMemoryBackendIsBounded(t *testing.T) {
	b := NewMemoryBackend(100, 0)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, b.Set(ctx, fmt.Sprintf("jobs:q=%d", i), []byte("page"), time.Minute))
	}
	assert.Equal(t, 100, b.Len())

	_, err := b.Get(ctx, "jobs:q=0")
	assert.ErrorIs(t, err, ErrMiss, "oldest key was evicted")
	got, err := b.Get(ctx, "jobs:q=999")
	require.NoError(t, err)
	assert.Equal(t, []byte("page"), got)
}

func TestMemoryBackendReclaimsUnreadEntries(t *testing.T) {
	b := NewMemoryBackend(0, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		require.NoError(t, b.Set(ctx, fmt.Sprintf("jobs:q=%d", i), []byte("page"), 0))
	}
	require.Equal(t, 500, b.Len())

	assert.Eventually(t, func() bool { return b.Len() == 0 }, 2*time.Second, 10*time.Millisecond,
		"expired entries are removed without being read again")
}
