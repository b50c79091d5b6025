package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Store persists queued items between flushes and restarts.
type Store interface {
	Put(ctx context.Context, item Item) error
	List(ctx context.Context) ([]Item, error)
	// Claim removes the item and returns its current stored value. ok is
	// false when another flusher claimed it first.
	Claim(ctx context.Context, id string) (item Item, ok bool, err error)
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

func (s *MemoryStore) Put(_ context.Context, item Item) error {
	s.mu.Lock()
	s.items[item.Message.ID] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, id string) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	return it, ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Item, error) {
	s.mu.Lock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	s.mu.Unlock()
	sortItems(out)
	return out, nil
}

// RedisStore keeps every item as a JSON field of one Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Put(ctx context.Context, item Item) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	return s.client.HSet(ctx, s.key, item.Message.ID, b).Err()
}

// Claim reads and deletes the field in one MULTI so that only one replica
// gets the item.
func (s *RedisStore) Claim(ctx context.Context, id string) (Item, bool, error) {
	var get *redis.StringCmd
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, s.key, id)
		del = pipe.HDel(ctx, s.key, id)
		return nil
	})
	if errors.Is(err, redis.Nil) || (err == nil && del.Val() == 0) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("claim %s: %w", id, err)
	}
	var it Item
	if err := json.Unmarshal([]byte(get.Val()), &it); err != nil {
		return Item{}, false, nil
	}
	return it, true, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Item, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	out := make([]Item, 0, len(raw))
	for id, v := range raw {
		var it Item
		if err := json.Unmarshal([]byte(v), &it); err != nil {
			// a corrupt field would otherwise block the queue forever
			_ = s.client.HDel(ctx, s.key, id).Err()
			continue
		}
		out = append(out, it)
	}
	sortItems(out)
	return out, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
}
