package duplicates

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory flag store for demo/development mode.
type MemoryStore struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory flag store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags: make(map[string]*Flag),
	}
}

func copyFlag(f *Flag) *Flag {
	cp := *f
	cp.ClaimIDs = append([]string(nil), f.ClaimIDs...)
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, f *Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[f.ID] = copyFlag(f)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flags[id]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return copyFlag(f), nil
}

func (m *MemoryStore) Update(ctx context.Context, f *Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.flags[f.ID]; !ok {
		return ErrFlagNotFound
	}
	cp := copyFlag(f)
	cp.UpdatedAt = time.Now()
	m.flags[f.ID] = cp
	f.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *MemoryStore) FindOpen(ctx context.Context, accountNumber, routingCode string, dt DetectionType) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, f := range m.flags {
		if f.Resolved() {
			continue
		}
		if f.AccountNumber == accountNumber && f.RoutingCode == routingCode && f.DetectionType == dt {
			return copyFlag(f), nil
		}
	}
	return nil, ErrFlagNotFound
}

func (m *MemoryStore) List(ctx context.Context, status ReviewStatus, limit, offset int) ([]*Flag, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Flag
	for _, f := range m.flags {
		if status != "" && f.ReviewStatus != status {
			continue
		}
		matched = append(matched, copyFlag(f))
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
