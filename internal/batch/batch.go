// Package batch groups validated queue entries into payment batches and
// drives their submission to the rail.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/relfin/disburse/internal/failures"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/recon"
)

var ErrBatchNotFound = errors.New("payment batch not found")

// Type is the operational category of a batch.
type Type string

const (
	TypeRegular Type = "regular"
	TypeUrgent  Type = "urgent"
	TypeManual  Type = "manual"
)

// ValidType reports whether t is a known batch type.
func ValidType(t Type) bool {
	return t == TypeRegular || t == TypeUrgent || t == TypeManual
}

// Status is a batch's processing state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Batch is a set of queue entries paid out together. Membership lives on
// the entries themselves via their batch reference.
type Batch struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Type                 Type         `json:"type"`
	TotalAmount          float64      `json:"totalAmount"`
	TotalCount           int          `json:"totalCount"`
	Status               Status       `json:"status"`
	ReconciliationStatus recon.Status `json:"reconciliationStatus"`
	CreatedBy            string       `json:"createdBy"`
	ProcessedBy          string       `json:"processedBy,omitempty"`
	ProcessedAt          *time.Time   `json:"processedAt,omitempty"`
	ExternalRef          string       `json:"externalRef,omitempty"`
	CreatedAt            time.Time    `json:"createdAt"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

// IsTerminal returns true if the batch is in a final state.
func (b *Batch) IsTerminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusFailed
}

// Store persists payment batches.
type Store interface {
	Create(ctx context.Context, b *Batch) error
	Get(ctx context.Context, id string) (*Batch, error)
	Update(ctx context.Context, b *Batch) error
	List(ctx context.Context, status Status, limit, offset int) ([]*Batch, int64, error)
}

// Submitter is the payment rail surface the processor needs.
type Submitter interface {
	SubmitPayment(ctx context.Context, e *queue.Entry) (string, error)
	RegisterBatch(ctx context.Context, batchID, name string, totalAmount float64, totalCount int) string
}

// FailureReporter routes per-entry submission failures through the failure
// coordinator.
type FailureReporter interface {
	ReportFailure(ctx context.Context, entryID, reason string, retryable bool) (*failures.Outcome, error)
}

// ProcessResult summarizes one processing run.
type ProcessResult struct {
	BatchID     string   `json:"batchId"`
	Status      Status   `json:"status"`
	Processed   int      `json:"processed"`
	Failed      int      `json:"failed"`
	TotalAmount float64  `json:"totalAmount"`
	Errors      []string `json:"errors,omitempty"`
}
