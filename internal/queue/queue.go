// Package queue holds outgoing chat messages that could not be written while
// the database was unreachable and redelivers them with exponential backoff.
// Each message gets at most MaxAttempts delivery attempts before it is dropped.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

type Item struct {
	Message       Message   `json:"message"`
	Attempts      int       `json:"attempts"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// SendFunc delivers one message to the remote store.
type SendFunc func(ctx context.Context, msg Message) error

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks a send error as not worth retrying; the item is dropped at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Queue events reported to an Observer.
const (
	EventEnqueued = "enqueued"
	EventSent     = "sent"
	EventRetried  = "retried"
	EventDropped  = "dropped"
)

type Observer interface {
	Observe(event string)
}

type Config struct {
	MaxAttempts int
	Backoff     Backoff
	Logger      logrus.FieldLogger
	Observer    Observer
	// OnDrop is called once for every item that exhausted its attempts.
	OnDrop func(item Item, err error)
	Now    func() time.Time
}

type FlushResult struct {
	Sent    int
	Retried int
	Dropped int
	Pending int
}

type Queue struct {
	store Store
	cfg   Config
	mu    sync.Mutex
}

func New(store Store, cfg Config) *Queue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		cfg.Logger = l
	}
	return &Queue{store: store, cfg: cfg}
}

func (q *Queue) observe(event string) {
	if q.cfg.Observer != nil {
		q.cfg.Observer.Observe(event)
	}
}

// Enqueue stores msg for delivery on the next flush.
func (q *Queue) Enqueue(ctx context.Context, msg Message) (Item, error) {
	if msg.ID == "" {
		return Item{}, errors.New("queue: message id is required")
	}
	now := q.cfg.Now()
	item := Item{Message: msg, EnqueuedAt: now, NextAttemptAt: now}
	if err := q.store.Put(ctx, item); err != nil {
		return Item{}, fmt.Errorf("enqueue %s: %w", msg.ID, err)
	}
	q.observe(EventEnqueued)
	q.cfg.Logger.WithField("message_id", msg.ID).Info("message queued for redelivery")
	return item, nil
}

func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	return q.store.List(ctx)
}

// Flush attempts every item whose backoff has elapsed, oldest first. Each
// item is claimed from the store before it is sent, so flushers sharing a
// store never attempt the same item concurrently.
func (q *Queue) Flush(ctx context.Context, send SendFunc) (FlushResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.store.List(ctx)
	if err != nil {
		return FlushResult{}, err
	}

	var res FlushResult
	now := q.cfg.Now()
	for _, item := range items {
		if ctx.Err() != nil {
			res.Pending++
			continue
		}
		if item.NextAttemptAt.After(now) {
			res.Pending++
			continue
		}

		claimed, ok, err := q.store.Claim(ctx, item.Message.ID)
		if err != nil {
			q.cfg.Logger.WithError(err).WithField("message_id", item.Message.ID).Error("claim queued item")
			res.Pending++
			continue
		}
		if !ok {
			continue
		}
		item = claimed
		if item.NextAttemptAt.After(now) {
			// another flusher already attempted it since List
			if err := q.store.Put(ctx, item); err != nil {
				q.cfg.Logger.WithError(err).WithField("message_id", item.Message.ID).Error("release queued item")
			}
			res.Pending++
			continue
		}

		log := q.cfg.Logger.WithFields(logrus.Fields{"message_id": item.Message.ID, "attempt": item.Attempts + 1})
		sendErr := send(ctx, item.Message)
		item.Attempts++

		if sendErr == nil {
			res.Sent++
			q.observe(EventSent)
			log.Debug("queued message delivered")
			continue
		}

		if item.Attempts >= q.cfg.MaxAttempts || isPermanent(sendErr) {
			res.Dropped++
			q.observe(EventDropped)
			log.WithError(sendErr).Warn("dropping queued message")
			if q.cfg.OnDrop != nil {
				q.cfg.OnDrop(item, sendErr)
			}
			continue
		}

		item.LastError = sendErr.Error()
		item.NextAttemptAt = now.Add(q.cfg.Backoff.Delay(item.Attempts))
		if err := q.store.Put(ctx, item); err != nil {
			log.WithError(err).Error("reschedule item")
		}
		res.Retried++
		q.observe(EventRetried)
		log.WithError(sendErr).WithField("next_attempt_at", item.NextAttemptAt).Info("delivery failed, will retry")
	}
	return res, nil
}

// Run flushes on every tick until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, interval time.Duration, send SendFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := q.Flush(ctx, send)
			if err != nil {
				q.cfg.Logger.WithError(err).Error("flush queue")
				continue
			}
			if res.Sent+res.Retried+res.Dropped > 0 {
				q.cfg.Logger.WithFields(logrus.Fields{
					"sent": res.Sent, "retried": res.Retried, "dropped": res.Dropped, "pending": res.Pending,
				}).Info("queue flushed")
			}
		}
	}
}
