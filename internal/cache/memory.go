package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a single-instance LRU with TTL eviction. Entries are bounded by
// maxEntries and by the store-wide maxTTL; a shorter per-entry TTL is honored on read.
type MemoryStore struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemoryStore creates an in-process store holding at most maxEntries keys.
func NewMemoryStore(maxEntries int, maxTTL time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, maxTTL),
		now: time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues("memory", "miss").Inc()
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.lru.Remove(key)
		metrics.CacheRequestsTotal.WithLabelValues("memory", "miss").Inc()
		return nil, ErrMiss
	}
	metrics.CacheRequestsTotal.WithLabelValues("memory", "hit").Inc()
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.lru.Add(key, entry)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}
