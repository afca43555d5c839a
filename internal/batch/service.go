package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/relfin/disburse/internal/events"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/idgen"
	"github.com/relfin/disburse/internal/logging"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/recon"
)

// Service implements batch building, publication, and processing.
type Service struct {
	batches  Store
	entries  queue.Store
	rail     Submitter
	failures FailureReporter
	bus      *events.Bus
}

// NewService creates a batch service.
func NewService(batches Store, entries queue.Store, rail Submitter, failures FailureReporter, bus *events.Bus) *Service {
	return &Service{
		batches:  batches,
		entries:  entries,
		rail:     rail,
		failures: failures,
		bus:      bus,
	}
}

// Create builds a draft batch from the entries that passed bank validation.
// Entries that are not valid are dropped; if none remain the call fails.
// Retained entries get the batch reference and advance to validated.
func (s *Service) Create(ctx context.Context, name string, batchType Type, creatorID string, entryIDs []string) (*Batch, error) {
	if name == "" {
		return nil, faults.Invalid("name", "batch name is required")
	}
	if !ValidType(batchType) {
		return nil, faults.Invalid("type", fmt.Sprintf("unknown batch type %q", batchType))
	}
	if len(entryIDs) == 0 {
		return nil, faults.Invalid("entryIds", "at least one entry id is required")
	}

	candidates, err := s.entries.ListByIDs(ctx, entryIDs)
	if err != nil {
		return nil, err
	}

	var retained []*queue.Entry
	for _, e := range candidates {
		if e.ValidationStatus == queue.ValidationValid && !e.IsTerminal() {
			retained = append(retained, e)
		}
	}
	if len(retained) == 0 {
		return nil, faults.Rule("no_valid_entries",
			"none of the requested entries have valid bank details")
	}

	now := time.Now()
	b := &Batch{
		ID:                   idgen.WithPrefix("pb_"),
		Name:                 name,
		Type:                 batchType,
		Status:               StatusDraft,
		ReconciliationStatus: recon.StatusPending,
		CreatedBy:            creatorID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for _, e := range retained {
		b.TotalAmount += e.Amount
		b.TotalCount++
	}

	if err := s.batches.Create(ctx, b); err != nil {
		return nil, err
	}

	for _, e := range retained {
		_, err := queue.Mutate(ctx, s.entries, e.ID, func(e *queue.Entry) error {
			e.BatchID = b.ID
			e.Status = queue.StatusValidated
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	logging.L(ctx).Info("batch created",
		"batch", b.ID, "entries", b.TotalCount, "amount", b.TotalAmount,
		"dropped", len(candidates)-len(retained))
	return b, nil
}

// Publish moves a draft batch to ready, making it eligible for processing.
func (s *Service) Publish(ctx context.Context, batchID, operatorID string) (*Batch, error) {
	b, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusDraft {
		return nil, faults.Rule("not_draft",
			fmt.Sprintf("batch %s is %s, only draft batches can be published", batchID, b.Status))
	}

	b.Status = StatusReady
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("batch published", "batch", batchID, "operator", operatorID)
	return b, nil
}

// Process submits every member entry of a ready batch to the rail.
//
// The batch completes only when zero entries fail; any failure makes the
// final status failed. The external reference is stamped either way.
// Per-entry failures go through the failure coordinator and come back as
// error strings in the result rather than aborting the run.
func (s *Service) Process(ctx context.Context, batchID, operatorID string) (*ProcessResult, error) {
	b, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusReady {
		return nil, faults.Rule("not_ready",
			fmt.Sprintf("batch %s is %s, only ready batches can be processed", batchID, b.Status))
	}

	now := time.Now()
	b.Status = StatusProcessing
	b.ProcessedBy = operatorID
	b.ProcessedAt = &now
	b.ExternalRef = s.rail.RegisterBatch(ctx, b.ID, b.Name, b.TotalAmount, b.TotalCount)
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, err
	}

	members, _, err := s.entries.Query(ctx, queue.Filter{BatchID: batchID}, 0, 0)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{BatchID: batchID, TotalAmount: b.TotalAmount}
	for _, member := range members {
		if member.IsTerminal() {
			continue
		}
		if err := s.processEntry(ctx, member); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", member.ID, err))
			continue
		}
		result.Processed++
	}

	if result.Failed == 0 {
		b.Status = StatusCompleted
	} else {
		b.Status = StatusFailed
	}
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, err
	}
	result.Status = b.Status

	s.bus.Publish(events.TopicBatchProcessed, batchID)
	logging.L(ctx).Info("batch processed",
		"batch", batchID, "status", b.Status,
		"processed", result.Processed, "failed", result.Failed)
	return result, nil
}

func (s *Service) processEntry(ctx context.Context, e *queue.Entry) error {
	ref, err := s.rail.SubmitPayment(ctx, e)
	if err != nil {
		if _, reportErr := s.failures.ReportFailure(ctx, e.ID, err.Error(), faults.IsRetryable(err)); reportErr != nil {
			logging.L(ctx).Error("failed to report submission failure",
				"entry", e.ID, "error", reportErr)
		}
		return err
	}

	now := time.Now()
	_, err = queue.Mutate(ctx, s.entries, e.ID, func(e *queue.Entry) error {
		e.Status = queue.StatusProcessed
		e.ProcessedAt = &now
		e.FailureReason = ""
		return nil
	})
	if err != nil {
		return err
	}

	logging.L(ctx).Debug("entry paid", "entry", e.ID, "reference", ref)
	return nil
}

// Get returns one batch.
func (s *Service) Get(ctx context.Context, id string) (*Batch, error) {
	b, err := s.batches.Get(ctx, id)
	if err == ErrBatchNotFound {
		return nil, faults.NotFound("payment batch", id)
	}
	return b, err
}

// List returns batches, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Batch, int64, error) {
	return s.batches.List(ctx, status, limit, offset)
}
