package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noJitter() Backoff {
	b := DefaultBackoff()
	b.Jitter = 0
	return b
}

func msg(id string) Message {
	return Message{ID: id, ConversationID: "c1", SenderID: "u1", RecipientID: "u2", Body: "hej"}
}

func TestFlushDeliversAndRemoves(t *testing.T) {
	q := New(NewMemoryStore(), Config{})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, msg("m1"))
	require.NoError(t, err)

	var got []string
	res, err := q.Flush(ctx, func(_ context.Context, m Message) error {
		got = append(got, m.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Sent: 1}, res)
	assert.Equal(t, []string{"m1"}, got)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMessageIsAttemptedAtMostMaxAttemptsTimes(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	var dropped []Item
	q := New(NewMemoryStore(), Config{
		MaxAttempts: 3,
		Backoff:     noJitter(),
		Now:         clk.Now,
		OnDrop:      func(it Item, _ error) { dropped = append(dropped, it) },
	})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, msg("m1"))
	require.NoError(t, err)

	calls := 0
	failing := func(context.Context, Message) error {
		calls++
		return errors.New("connection refused")
	}

	for i := 0; i < 10; i++ {
		_, err := q.Flush(ctx, failing)
		require.NoError(t, err)
		clk.Advance(10 * time.Minute)
	}

	assert.Equal(t, 3, calls)
	require.Len(t, dropped, 1)
	assert.Equal(t, 3, dropped[0].Attempts)
	pending, _ := q.Pending(ctx)
	assert.Empty(t, pending)
}

func TestFlushRespectsBackoff(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	q := New(NewMemoryStore(), Config{MaxAttempts: 5, Backoff: noJitter(), Now: clk.Now})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, msg("m1"))
	require.NoError(t, err)

	calls := 0
	failing := func(context.Context, Message) error { calls++; return errors.New("timeout") }

	res, err := q.Flush(ctx, failing)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	clk.Advance(time.Second)
	res, err = q.Flush(ctx, failing)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending, "first retry waits 2s")
	assert.Equal(t, 1, calls)

	clk.Advance(time.Second)
	_, err = q.Flush(ctx, failing)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	pending, _ := q.Pending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "timeout", pending[0].LastError)
	assert.Equal(t, clk.Now().Add(4*time.Second), pending[0].NextAttemptAt)
}

func TestPermanentErrorDropsImmediately(t *testing.T) {
	q := New(NewMemoryStore(), Config{MaxAttempts: 5})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, msg("m1"))
	require.NoError(t, err)

	res, err := q.Flush(ctx, func(context.Context, Message) error {
		return Permanent(errors.New("conversation deleted"))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	q := New(NewMemoryStore(), Config{MaxAttempts: 3, Backoff: noJitter(), Now: clk.Now})
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, msg("m1"))

	fail := true
	send := func(context.Context, Message) error {
		if fail {
			fail = false
			return errors.New("503")
		}
		return nil
	}
	_, _ = q.Flush(ctx, send)
	clk.Advance(time.Minute)
	res, err := q.Flush(ctx, send)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestEnqueueRequiresID(t *testing.T) {
	q := New(NewMemoryStore(), Config{})
	_, err := q.Enqueue(context.Background(), Message{Body: "x"})
	assert.Error(t, err)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(10))

	b.Jitter = 0.5
	b.rand = func() float64 { return 1 }
	assert.Equal(t, 1500*time.Millisecond, b.Delay(1))
}

func TestRedisStoreKeepsFIFOOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	q := New(NewRedisStore(client, "parium:queue"), Config{Now: clk.Now})
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := q.Enqueue(ctx, msg(id))
		require.NoError(t, err)
		clk.Advance(time.Second)
	}
	mr.HSet("parium:queue", "broken", "{not json")

	var order []string
	res, err := q.Flush(ctx, func(_ context.Context, m Message) error {
		order = append(order, m.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, []string{"m1", "m2", "m3"}, order)
	assert.False(t, mr.Exists("parium:queue"))
}

func flushConcurrently(t *testing.T, queues []*Queue, send SendFunc) {
	t.Helper()
	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			_, err := q.Flush(context.Background(), send)
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()
}

func TestQueuesSharingAStoreAttemptEachItemOnce(t *testing.T) {
	store := NewMemoryStore()
	cfg := Config{MaxAttempts: 1, Backoff: noJitter()}
	a, b := New(store, cfg), New(store, cfg)
	_, err := a.Enqueue(context.Background(), msg("m1"))
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	flushConcurrently(t, []*Queue{a, b}, func(context.Context, Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return errors.New("db down")
	})

	assert.Equal(t, 1, calls)
	pending, err := a.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRedisReplicasClaimItemsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := Config{MaxAttempts: 2, Backoff: noJitter()}
	a := New(NewRedisStore(client, "parium:outbox"), cfg)
	b := New(NewRedisStore(client, "parium:outbox"), cfg)
	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := a.Enqueue(context.Background(), msg(id))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := map[string]int{}
	flushConcurrently(t, []*Queue{a, b}, func(_ context.Context, m Message) error {
		mu.Lock()
		seen[m.ID]++
		mu.Unlock()
		return errors.New("db down")
	})

	assert.Equal(t, map[string]int{"m1": 1, "m2": 1, "m3": 1}, seen)
	pending, err := a.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for _, it := range pending {
		assert.Equal(t, 1, it.Attempts)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Item{Message: msg("m1"), Attempts: 2}))

	it, ok, err := s.Claim(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, it.Attempts)

	_, ok, err = s.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}
