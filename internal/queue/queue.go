// Package queue owns the lifecycle of a disbursement request from admission
// to terminal state.
//
// Flow:
//  1. An approved claim is admitted → entry created pending/pending
//  2. Bank validation and duplicate detection run as async triggers
//  3. A batch picks up valid entries → entry moves to validated
//  4. Rail submission → processed, or failed with a retry schedule
//  5. Terminal states: processed, cancelled
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEntryNotFound   = errors.New("queue entry not found")
	ErrClaimNotFound   = errors.New("claim not found")
	ErrProfileNotFound = errors.New("beneficiary profile not found")
	ErrVersionConflict = errors.New("queue entry version conflict")
	ErrTerminalState   = errors.New("queue entry is in a terminal state")
)

// Status represents the disbursement state of a queue entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ValidationStatus represents the bank-detail verification state.
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValid     ValidationStatus = "valid"
	ValidationInvalid   ValidationStatus = "invalid"
	ValidationDuplicate ValidationStatus = "duplicate"
)

// Priority is a coarse urgency tier derived from the approved amount.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for the fairness contract: higher tier first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// PriorityForAmount derives the tier from an approved amount.
func PriorityForAmount(amount float64) Priority {
	switch {
	case amount > 100000:
		return PriorityHigh
	case amount > 50000:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Entry represents one disbursement request awaiting payment.
type Entry struct {
	ID               string           `json:"id"`
	ClaimID          string           `json:"claimId"`
	OwnerID          string           `json:"ownerId"`
	Scheme           string           `json:"scheme,omitempty"`
	Amount           float64          `json:"amount"`
	BeneficiaryName  string           `json:"beneficiaryName"`
	AccountNumber    string           `json:"accountNumber"`
	RoutingCode      string           `json:"routingCode"`
	BankName         string           `json:"bankName,omitempty"`
	BranchName       string           `json:"branchName,omitempty"`
	Status           Status           `json:"status"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
	ValidationDetail string           `json:"validationDetail,omitempty"`
	BatchID          string           `json:"batchId,omitempty"`
	Priority         Priority         `json:"priority"`
	ScheduledAt      *time.Time       `json:"scheduledAt,omitempty"` // next retry time
	RetryCount       int              `json:"retryCount"`
	MaxRetries       int              `json:"maxRetries"`
	FailureReason    string           `json:"failureReason,omitempty"`
	ProcessedAt      *time.Time       `json:"processedAt,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// IsTerminal returns true if the entry is in a final state.
func (e *Entry) IsTerminal() bool {
	return e.Status == StatusProcessed || e.Status == StatusCancelled
}

// DefaultMaxRetries bounds the failure coordinator's retry count.
const DefaultMaxRetries = 3

// Filter narrows a queue listing. All fields are optional.
type Filter struct {
	Status           Status
	ValidationStatus ValidationStatus
	BatchID          string
	Priority         Priority
	Scheme           string
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
	MinAmount        *float64
	MaxAmount        *float64
}

// StatusSummary aggregates one queue status for the dashboard.
type StatusSummary struct {
	Status Status  `json:"status"`
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum"`
}

// Summary is the dashboard rollup.
type Summary struct {
	ByStatus     []StatusSummary            `json:"byStatus"`
	ByValidation map[ValidationStatus]int64 `json:"byValidation"`
	TotalCount   int64                      `json:"totalCount"`
	TotalAmount  float64                    `json:"totalAmount"`
}

// Store persists queue entries.
//
// Update is guarded by optimistic concurrency: the entry's Version must
// match the stored version, and the write bumps it by one. A mismatch
// returns ErrVersionConflict — callers re-read and reapply.
type Store interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	FindByClaim(ctx context.Context, claimID string) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int64, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Entry, error)
	ListByAccount(ctx context.Context, accountNumber string) ([]*Entry, error)
	ListDueForRetry(ctx context.Context, before time.Time, maxRetries int) ([]*Entry, error)
	Summarize(ctx context.Context) (*Summary, error)
}
