package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory queue store for demo/development mode.
type MemoryStore struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

func (m *MemoryStore) Create(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) FindByClaim(ctx context.Context, claimID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.ClaimID == claimID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (m *MemoryStore) Update(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.entries[e.ID]
	if !ok {
		return ErrEntryNotFound
	}
	if cur.Version != e.Version {
		return ErrVersionConflict
	}

	cp := *e
	cp.Version++
	cp.UpdatedAt = time.Now()
	m.entries[e.ID] = &cp
	e.Version = cp.Version
	e.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Entry
	for _, e := range m.entries {
		if !matches(e, f) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	orderForListing(matched)

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

func (m *MemoryStore) ListByIDs(ctx context.Context, ids []string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, id := range ids {
		if e, ok := m.entries[id]; ok {
			cp := *e
			result = append(result, &cp)
		}
	}
	orderForListing(result)
	return result, nil
}

func (m *MemoryStore) ListByAccount(ctx context.Context, accountNumber string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.AccountNumber != accountNumber {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	orderForListing(result)
	return result, nil
}

func (m *MemoryStore) ListDueForRetry(ctx context.Context, before time.Time, maxRetries int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.Status != StatusFailed || e.ScheduledAt == nil {
			continue
		}
		if e.RetryCount >= maxRetries || e.ScheduledAt.After(before) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	orderForListing(result)
	return result, nil
}

func (m *MemoryStore) Summarize(ctx context.Context) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStatus := make(map[Status]*StatusSummary)
	byValidation := make(map[ValidationStatus]int64)
	s := &Summary{ByValidation: byValidation}

	for _, e := range m.entries {
		agg, ok := byStatus[e.Status]
		if !ok {
			agg = &StatusSummary{Status: e.Status}
			byStatus[e.Status] = agg
		}
		agg.Count++
		agg.Sum += e.Amount
		byValidation[e.ValidationStatus]++
		s.TotalCount++
		s.TotalAmount += e.Amount
	}

	for _, st := range []Status{StatusPending, StatusValidated, StatusProcessed, StatusFailed, StatusCancelled} {
		if agg, ok := byStatus[st]; ok {
			s.ByStatus = append(s.ByStatus, *agg)
		}
	}
	return s, nil
}

func matches(e *Entry, f Filter) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.ValidationStatus != "" && e.ValidationStatus != f.ValidationStatus {
		return false
	}
	if f.BatchID != "" && e.BatchID != f.BatchID {
		return false
	}
	if f.Priority != "" && e.Priority != f.Priority {
		return false
	}
	if f.Scheme != "" && e.Scheme != f.Scheme {
		return false
	}
	if f.CreatedFrom != nil && e.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && e.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.MinAmount != nil && e.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && e.Amount > *f.MaxAmount {
		return false
	}
	return true
}

// orderForListing applies the fairness contract: priority tier descending,
// then creation time ascending.
func orderForListing(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].Priority.Rank(), entries[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
