// Package bankcheck validates beneficiary account and routing-code pairs,
// backed by a TTL cache over an external verification provider.
//
// Failures here are never fatal to the caller: a verifier outage marks the
// entry invalid and is reported inside the result object.
package bankcheck

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when no cache entry exists for a key.
var ErrCacheMiss = errors.New("bank validation cache miss")

// CacheTTL is the retention window for verification results.
const CacheTTL = 30 * 24 * time.Hour

// CacheEntry is one cached verification result, unique per
// (account number, routing code).
type CacheEntry struct {
	AccountNumber string    `json:"accountNumber"`
	RoutingCode   string    `json:"routingCode"`
	Valid         bool      `json:"valid"`
	BankName      string    `json:"bankName,omitempty"`
	BranchName    string    `json:"branchName,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Expired reports whether the entry is past its retention window.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// CacheStore persists verification results with upsert semantics.
type CacheStore interface {
	Get(ctx context.Context, accountNumber, routingCode string) (*CacheEntry, error)
	Upsert(ctx context.Context, e *CacheEntry) error
}

// BankIdentity is what the external provider knows about a routing code.
type BankIdentity struct {
	Valid      bool
	BankName   string
	BranchName string
}

// Verifier is the external routing-code verification provider.
type Verifier interface {
	Verify(ctx context.Context, routingCode string) (*BankIdentity, error)
}

// Result is the non-throwing outcome of validating one queue entry.
type Result struct {
	EntryID    string `json:"entryId"`
	Valid      bool   `json:"valid"`
	Cached     bool   `json:"cached"`
	BankName   string `json:"bankName,omitempty"`
	BranchName string `json:"branchName,omitempty"`
	Err        string `json:"error,omitempty"`
}
