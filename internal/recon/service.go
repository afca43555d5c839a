package recon

import (
	"context"
	"time"

	"github.com/relfin/disburse/internal/events"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/idgen"
	"github.com/relfin/disburse/internal/queue"
)

// Service implements settlement import, matching, and the dispute audit
// trail.
type Service struct {
	store   Store
	entries queue.Store
	bus     *events.Bus
}

// NewService creates a reconciliation service.
func NewService(store Store, entries queue.Store, bus *events.Bus) *Service {
	return &Service{store: store, entries: entries, bus: bus}
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	r, err := s.store.Get(ctx, id)
	if err == ErrRecordNotFound {
		return nil, faults.NotFound("reconciliation record", id)
	}
	return r, err
}

// List returns records, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Record, int64, error) {
	return s.store.ListByStatus(ctx, status, limit, offset)
}

// Status returns the reconciliation rollup by record status.
func (s *Service) Status(ctx context.Context) (*StatusReport, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{ByStatus: counts}
	for _, c := range counts {
		report.Total += c
	}
	return report, nil
}

// RecordDispute writes a disputed record documenting a payment failure.
// Called by the failure coordinator on every reported failure.
func (s *Service) RecordDispute(ctx context.Context, e *queue.Entry, reason string) error {
	now := time.Now()
	return s.store.Create(ctx, &Record{
		ID:              idgen.WithPrefix("rr_"),
		BatchID:         e.BatchID,
		QueueEntryID:    e.ID,
		Amount:          e.Amount,
		TransactionDate: now,
		Status:          StatusDisputed,
		Notes:           reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}
