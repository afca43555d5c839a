package bankcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relfin/disburse/internal/logging"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/syncutil"
)

// Service implements bank-detail validation.
type Service struct {
	cache    CacheStore
	verifier Verifier
	entries  queue.Store
	inflight *syncutil.ContextShardedMutex
}

// NewService creates a bank validator service.
func NewService(cache CacheStore, verifier Verifier, entries queue.Store) *Service {
	return &Service{
		cache:    cache,
		verifier: verifier,
		entries:  entries,
		inflight: syncutil.NewContextShardedMutex(),
	}
}

// Validate checks the queue entry's (account, routing code) pair, serving
// from cache within the retention window and calling the external verifier
// otherwise. The outcome is written onto the entry's validation status.
//
// A verifier failure is not an error: the entry becomes invalid and the
// failure is recorded in Result.Err.
func (s *Service) Validate(ctx context.Context, entryID string) (*Result, error) {
	entry, err := s.entries.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	// Concurrent validations of the same pair would each miss the cache and
	// hit the directory. Serialize per pair so the first lookup fills the
	// cache for the rest.
	unlock, err := s.inflight.LockContext(ctx, entry.AccountNumber+":"+entry.RoutingCode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &Result{EntryID: entryID}
	now := time.Now()

	cached, err := s.cache.Get(ctx, entry.AccountNumber, entry.RoutingCode)
	if err == nil && !cached.Expired(now) {
		result.Valid = cached.Valid
		result.Cached = true
		result.BankName = cached.BankName
		result.BranchName = cached.BranchName
	} else {
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			// Cache read failure degrades to a live lookup.
			logging.L(ctx).Warn("bank validation cache read failed", "error", err)
		}

		identity, verr := s.verifier.Verify(ctx, entry.RoutingCode)
		if verr != nil {
			result.Valid = false
			result.Err = verr.Error()
		} else {
			result.Valid = identity.Valid
			result.BankName = identity.BankName
			result.BranchName = identity.BranchName

			if err := s.cache.Upsert(ctx, &CacheEntry{
				AccountNumber: entry.AccountNumber,
				RoutingCode:   entry.RoutingCode,
				Valid:         identity.Valid,
				BankName:      identity.BankName,
				BranchName:    identity.BranchName,
				ExpiresAt:     now.Add(CacheTTL),
				CreatedAt:     now,
			}); err != nil {
				logging.L(ctx).Warn("bank validation cache write failed", "error", err)
			}
		}
	}

	// Write the outcome onto the entry. A duplicate verdict from the
	// detector outranks a plain valid/invalid, so it is left untouched.
	_, err = queue.Mutate(ctx, s.entries, entryID, func(e *queue.Entry) error {
		if e.ValidationStatus == queue.ValidationDuplicate {
			return nil
		}
		if result.Valid {
			e.ValidationStatus = queue.ValidationValid
			e.BankName = result.BankName
			e.BranchName = result.BranchName
			e.ValidationDetail = ""
		} else {
			e.ValidationStatus = queue.ValidationInvalid
			if result.Err != "" {
				e.ValidationDetail = fmt.Sprintf("verification failed: %s", result.Err)
			} else {
				e.ValidationDetail = "routing code rejected by verifier"
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ValidateBulk validates a set of entries with settle-all semantics: one
// entry's failure never aborts the rest.
func (s *Service) ValidateBulk(ctx context.Context, entryIDs []string) []*Result {
	results := make([]*Result, 0, len(entryIDs))
	for _, id := range entryIDs {
		r, err := s.Validate(ctx, id)
		if err != nil {
			r = &Result{EntryID: id, Err: err.Error()}
		}
		results = append(results, r)
	}
	return results
}
