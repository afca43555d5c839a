// Package duplicates flags disbursement requests that look like repeats of
// one another, by exact account match or fuzzy beneficiary-name match.
//
// Like bank validation, detection runs as an async trigger after admission;
// its failures are recorded on the result, never raised to the caller.
package duplicates

import (
	"context"
	"errors"
	"time"
)

var (
	ErrFlagNotFound = errors.New("duplicate flag not found")
	ErrFlagResolved = errors.New("duplicate flag already resolved")
)

// DetectionType classifies how a duplicate was found.
type DetectionType string

const (
	DetectionExactMatch  DetectionType = "exact_match"
	DetectionSimilarName DetectionType = "similar_name"
	DetectionSameAccount DetectionType = "same_account"
)

// Risk is the coarse severity of a detection.
type Risk string

const (
	RiskHigh   Risk = "high"
	RiskMedium Risk = "medium"
	RiskLow    Risk = "low"
)

// ReviewStatus tracks operator review of a flag.
type ReviewStatus string

const (
	ReviewFlagged  ReviewStatus = "flagged"
	ReviewReviewed ReviewStatus = "reviewed"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Flag records one suspected duplicate match set.
type Flag struct {
	ID              string        `json:"id"`
	AccountNumber   string        `json:"accountNumber"`
	RoutingCode     string        `json:"routingCode"`
	BeneficiaryName string        `json:"beneficiaryName"`
	OwnerID         string        `json:"ownerId"`
	ClaimIDs        []string      `json:"claimIds"`
	DetectionType   DetectionType `json:"detectionType"`
	Confidence      float64       `json:"confidence"`
	ReviewStatus    ReviewStatus  `json:"reviewStatus"`
	ReviewedBy      string        `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Resolved reports whether an operator has decided the flag.
func (f *Flag) Resolved() bool {
	return f.ReviewStatus == ReviewApproved || f.ReviewStatus == ReviewRejected
}

// Store persists duplicate flags.
type Store interface {
	Create(ctx context.Context, f *Flag) error
	Get(ctx context.Context, id string) (*Flag, error)
	Update(ctx context.Context, f *Flag) error
	// FindOpen returns the unresolved flag for a match set, or
	// ErrFlagNotFound when none exists.
	FindOpen(ctx context.Context, accountNumber, routingCode string, dt DetectionType) (*Flag, error)
	List(ctx context.Context, status ReviewStatus, limit, offset int) ([]*Flag, int64, error)
}

// CheckResult is the non-throwing outcome of checking one queue entry.
type CheckResult struct {
	EntryID    string `json:"entryId"`
	Duplicate  bool   `json:"duplicate"`
	Risk       Risk   `json:"risk"`
	MatchCount int    `json:"matchCount"`
	FlagID     string `json:"flagId,omitempty"`
	Err        string `json:"error,omitempty"`
}
