// Package failures coordinates payment failure handling: retry scheduling,
// cancellation after exhausted retries, and the disputed audit trail.
package failures

import (
	"context"
	"time"

	"github.com/relfin/disburse/internal/queue"
)

// Action is the coordinator's verdict for one reported failure.
type Action string

const (
	ActionRetry        Action = "retry"
	ActionCancelled    Action = "cancelled"
	ActionManualReview Action = "manual_review"
)

// Outcome describes how one failure was handled.
type Outcome struct {
	EntryID     string     `json:"entryId"`
	Action      Action     `json:"action"`
	RetryCount  int        `json:"retryCount"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Reason      string     `json:"reason"`
}

// RetryResult aggregates one retry run with settle-all semantics.
type RetryResult struct {
	Retried   int      `json:"retried"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Submitter resubmits a payment to the rail.
type Submitter interface {
	SubmitPayment(ctx context.Context, e *queue.Entry) (string, error)
}

// AuditRecorder writes the disputed reconciliation record documenting a
// failure.
type AuditRecorder interface {
	RecordDispute(ctx context.Context, e *queue.Entry, reason string) error
}
