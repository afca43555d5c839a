package batch

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory batch store for demo/development mode.
type MemoryStore struct {
	batches map[string]*Batch
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory batch store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]*Batch),
	}
}

func (m *MemoryStore) Create(ctx context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[b.ID]; !ok {
		return ErrBatchNotFound
	}
	cp := *b
	cp.UpdatedAt = time.Now()
	m.batches[b.ID] = &cp
	b.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *MemoryStore) List(ctx context.Context, status Status, limit, offset int) ([]*Batch, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Batch
	for _, b := range m.batches {
		if status != "" && b.Status != status {
			continue
		}
		cp := *b
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
