// Package recon imports bank settlement files and matches their rows
// against processed queue entries.
package recon

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("reconciliation record not found")

// Status is a record's reconciliation state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusMatched   Status = "matched"
	StatusUnmatched Status = "unmatched"
	StatusPartial   Status = "partial"
	StatusDisputed  Status = "disputed"
)

// Matching thresholds.
const (
	// AmountTolerance is the maximum absolute difference between a
	// settlement amount and an entry amount that still counts as equal.
	AmountTolerance = 0.01

	// DateWindowDays bounds an exact match: the entry must have been
	// processed within this many calendar days of the transaction date.
	DateWindowDays = 1
)

// Match confidences per outcome.
const (
	ConfidenceExact   = 1.0
	ConfidencePartial = 0.7
)

// Record is one settlement-file row, or a disputed audit entry written by
// the failure coordinator.
type Record struct {
	ID              string            `json:"id"`
	BatchID         string            `json:"batchId,omitempty"`
	QueueEntryID    string            `json:"queueEntryId,omitempty"`
	BankReference   string            `json:"bankReference,omitempty"`
	TransactionID   string            `json:"transactionId,omitempty"`
	Amount          float64           `json:"amount"`
	TransactionDate time.Time         `json:"transactionDate"`
	Status          Status            `json:"status"`
	MatchConfidence float64           `json:"matchConfidence"`
	Notes           string            `json:"notes,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ImportedBy      string            `json:"importedBy,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Store persists reconciliation records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Record, int64, error)
	ListPending(ctx context.Context) ([]*Record, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// ImportResult summarizes one settlement-file import.
//
// TotalRecords counts every parsed row, invalid ones included.
// FailedImports counts rows that passed validation but failed to persist.
type ImportResult struct {
	TotalRecords      int      `json:"totalRecords"`
	SuccessfulImports int      `json:"successfulImports"`
	FailedImports     int      `json:"failedImports"`
	Errors            []string `json:"errors,omitempty"`
}

// MatchSummary aggregates one matching run.
type MatchSummary struct {
	Considered int `json:"considered"`
	Matched    int `json:"matched"`
	Partial    int `json:"partial"`
	Unmatched  int `json:"unmatched"`
}

// StatusReport is the reconciliation dashboard rollup.
type StatusReport struct {
	ByStatus map[Status]int64 `json:"byStatus"`
	Total    int64            `json:"total"`
}
