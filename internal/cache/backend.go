package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrMiss is returned by a Backend when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Backend stores raw entry bytes. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// DefaultMemorySize bounds a MemoryBackend built with size <= 0.
const DefaultMemorySize = 10000

// MemoryBackend keeps entries in a bounded LRU in process memory. Entries are
// evicted when the LRU is full or retention has passed, whichever comes
// first; a shorter ttl passed to Set is honoured on read. Zero retention and
// a zero ttl never expire.
type MemoryBackend struct {
	items *expirable.LRU[string, memoryItem]
	now   func() time.Time
}

func NewMemoryBackend(size int, retention time.Duration) *MemoryBackend {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemoryBackend{
		items: expirable.NewLRU[string, memoryItem](size, nil, retention),
		now:   time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	item, ok := m.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		m.items.Remove(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), item.value...), nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items.Add(key, item)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.items.Remove(key)
	return nil
}

func (m *MemoryBackend) Len() int {
	return m.items.Len()
}
