package bankcheck

import (
	"context"
	"sync"
	"time"
)

type cacheKey struct {
	account string
	routing string
}

// MemoryCacheStore is an in-memory cache store for demo/development mode.
type MemoryCacheStore struct {
	entries map[cacheKey]*CacheEntry
	mu      sync.RWMutex
}

// NewMemoryCacheStore creates a new in-memory cache store.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		entries: make(map[cacheKey]*CacheEntry),
	}
}

func (m *MemoryCacheStore) Get(ctx context.Context, accountNumber, routingCode string) (*CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[cacheKey{accountNumber, routingCode}]
	if !ok {
		return nil, ErrCacheMiss
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryCacheStore) Upsert(ctx context.Context, e *CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey{e.AccountNumber, e.RoutingCode}
	cp := *e
	if existing, ok := m.entries[key]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = time.Now()
	m.entries[key] = &cp
	return nil
}

// Compile-time assertion that MemoryCacheStore implements CacheStore.
var _ CacheStore = (*MemoryCacheStore)(nil)
