package failures

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/logging"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/queue"
)

// Service implements the failure and retry coordinator.
type Service struct {
	entries queue.Store
	rail    Submitter
	audit   AuditRecorder
}

// NewService creates a failure coordinator.
func NewService(entries queue.Store, rail Submitter, audit AuditRecorder) *Service {
	return &Service{entries: entries, rail: rail, audit: audit}
}

// retryDelay is the backoff before the nth retry: 2^n hours.
func retryDelay(retryCount int) time.Duration {
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Hour
}

// ReportFailure records one payment failure and decides what happens next.
//
// The retry count always increments. A retryable failure within the retry
// budget schedules the next attempt at now + 2^count hours and the entry
// goes to failed; past the budget it is cancelled. Non-retryable failures
// keep their status and wait for manual review. Every call writes a
// disputed reconciliation record for audit.
func (s *Service) ReportFailure(ctx context.Context, entryID, reason string, retryable bool) (*Outcome, error) {
	now := time.Now()
	outcome := &Outcome{EntryID: entryID, Reason: reason}

	entry, err := queue.Mutate(ctx, s.entries, entryID, func(e *queue.Entry) error {
		e.RetryCount++
		e.FailureReason = reason
		outcome.RetryCount = e.RetryCount

		switch {
		case retryable && e.RetryCount <= e.MaxRetries:
			at := now.Add(retryDelay(e.RetryCount))
			e.ScheduledAt = &at
			e.Status = queue.StatusFailed
			outcome.Action = ActionRetry
			outcome.ScheduledAt = &at
		case retryable:
			e.ScheduledAt = nil
			e.Status = queue.StatusCancelled
			outcome.Action = ActionCancelled
		default:
			outcome.Action = ActionManualReview
		}
		return nil
	})
	if err != nil {
		if err == queue.ErrEntryNotFound {
			return nil, faults.NotFound("queue entry", entryID)
		}
		return nil, err
	}

	if outcome.Action == ActionRetry {
		metrics.RetriesScheduledTotal.Inc()
	}

	// Audit trail is best-effort; a storage hiccup here must not mask the
	// outcome already committed to the entry.
	if err := s.audit.RecordDispute(ctx, entry, reason); err != nil {
		logging.L(ctx).Error("failed to write disputed audit record",
			"entry", entryID, "error", err)
	}

	logging.L(ctx).Info("payment failure reported",
		"entry", entryID, "action", outcome.Action, "retryCount", outcome.RetryCount)
	return outcome, nil
}

// RetryDue resubmits failed entries. With an explicit id set it retries
// exactly those; otherwise it sweeps failed entries whose scheduled time
// has elapsed and whose retry budget remains. One entry's failure never
// stops the rest.
func (s *Service) RetryDue(ctx context.Context, entryIDs []string, operatorID string) (*RetryResult, error) {
	var candidates []*queue.Entry
	var err error

	if len(entryIDs) > 0 {
		candidates, err = s.entries.ListByIDs(ctx, entryIDs)
	} else {
		candidates, err = s.entries.ListDueForRetry(ctx, time.Now(), queue.DefaultMaxRetries)
	}
	if err != nil {
		return nil, err
	}

	result := &RetryResult{}
	for _, candidate := range candidates {
		if candidate.Status != queue.StatusFailed {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: not in failed state", candidate.ID))
			continue
		}

		result.Retried++
		if err := s.retryOne(ctx, candidate.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %v", candidate.ID, err))
			continue
		}
		result.Succeeded++
	}

	logging.L(ctx).Info("retry run finished",
		"operator", operatorID,
		"retried", result.Retried,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}

// retryOne resets an entry to validated, resubmits it, and reports any new
// failure back through ReportFailure.
func (s *Service) retryOne(ctx context.Context, entryID string) error {
	entry, err := queue.Mutate(ctx, s.entries, entryID, func(e *queue.Entry) error {
		e.Status = queue.StatusValidated
		e.ScheduledAt = nil
		return nil
	})
	if err != nil {
		return err
	}

	ref, err := s.rail.SubmitPayment(ctx, entry)
	if err != nil {
		if _, reportErr := s.ReportFailure(ctx, entryID, err.Error(), faults.IsRetryable(err)); reportErr != nil {
			logging.L(ctx).Error("failed to report retry failure",
				"entry", entryID, "error", reportErr)
		}
		return err
	}

	now := time.Now()
	_, err = queue.Mutate(ctx, s.entries, entryID, func(e *queue.Entry) error {
		e.Status = queue.StatusProcessed
		e.ProcessedAt = &now
		e.FailureReason = ""
		return nil
	})
	if err != nil {
		return err
	}

	logging.L(ctx).Info("retry succeeded", "entry", entryID, "reference", ref)
	return nil
}
