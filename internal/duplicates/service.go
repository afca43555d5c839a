package duplicates

import (
	"context"
	"fmt"
	"time"

	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/idgen"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/queue"
)

// Service implements duplicate detection and flag review.
type Service struct {
	flags   Store
	entries queue.Store
}

// NewService creates a duplicate detection service.
func NewService(flags Store, entries queue.Store) *Service {
	return &Service{flags: flags, entries: entries}
}

// Check inspects one queue entry for duplicates among other entries sharing
// its account number.
//
// Risk: high when another entry shares both account and routing code, medium
// for a same-account match (similar name or not), low when nothing matched.
// A match persists a flag (one open flag per match set) and marks the entry
// duplicate; no match leaves the entry untouched.
func (s *Service) Check(ctx context.Context, entryID string) (*CheckResult, error) {
	entry, err := s.entries.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	siblings, err := s.entries.ListByAccount(ctx, entry.AccountNumber)
	if err != nil {
		return nil, err
	}

	var (
		exact       int
		similar     int
		sameAccount int
		bestScore   float64
		claimIDs    = []string{entry.ClaimID}
	)
	for _, sib := range siblings {
		if sib.ID == entry.ID || sib.Status == queue.StatusCancelled {
			continue
		}
		switch {
		case sib.RoutingCode == entry.RoutingCode:
			exact++
		case nameSimilarity(sib.BeneficiaryName, entry.BeneficiaryName) >= SimilarityThreshold:
			similar++
			if score := nameSimilarity(sib.BeneficiaryName, entry.BeneficiaryName); score > bestScore {
				bestScore = score
			}
		default:
			sameAccount++
		}
		claimIDs = appendClaim(claimIDs, sib.ClaimID)
	}

	result := &CheckResult{EntryID: entryID, MatchCount: exact + similar + sameAccount}
	if result.MatchCount == 0 {
		result.Risk = RiskLow
		return result, nil
	}

	var (
		dt         DetectionType
		confidence float64
	)
	switch {
	case exact > 0:
		result.Risk = RiskHigh
		dt = DetectionExactMatch
		confidence = 1.0
	case similar > 0:
		result.Risk = RiskMedium
		dt = DetectionSimilarName
		confidence = bestScore
	default:
		result.Risk = RiskMedium
		dt = DetectionSameAccount
		confidence = 0.5
	}
	result.Duplicate = true

	flag, err := s.upsertFlag(ctx, entry, dt, confidence, claimIDs)
	if err != nil {
		return nil, err
	}
	result.FlagID = flag.ID

	detail := fmt.Sprintf("duplicate: %d match(es), risk %s", result.MatchCount, result.Risk)
	_, err = queue.Mutate(ctx, s.entries, entryID, func(e *queue.Entry) error {
		e.ValidationStatus = queue.ValidationDuplicate
		e.ValidationDetail = detail
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DuplicateFlagsTotal.WithLabelValues(string(result.Risk)).Inc()
	return result, nil
}

// upsertFlag extends the open flag for the match set, or creates one.
func (s *Service) upsertFlag(ctx context.Context, entry *queue.Entry, dt DetectionType, confidence float64, claimIDs []string) (*Flag, error) {
	flag, err := s.flags.FindOpen(ctx, entry.AccountNumber, entry.RoutingCode, dt)
	if err == nil {
		for _, id := range claimIDs {
			flag.ClaimIDs = appendClaim(flag.ClaimIDs, id)
		}
		if confidence > flag.Confidence {
			flag.Confidence = confidence
		}
		if err := s.flags.Update(ctx, flag); err != nil {
			return nil, err
		}
		return flag, nil
	}
	if err != ErrFlagNotFound {
		return nil, err
	}

	now := time.Now()
	flag = &Flag{
		ID:              idgen.WithPrefix("df_"),
		AccountNumber:   entry.AccountNumber,
		RoutingCode:     entry.RoutingCode,
		BeneficiaryName: entry.BeneficiaryName,
		OwnerID:         entry.OwnerID,
		ClaimIDs:        claimIDs,
		DetectionType:   dt,
		Confidence:      confidence,
		ReviewStatus:    ReviewFlagged,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.flags.Create(ctx, flag); err != nil {
		return nil, err
	}
	return flag, nil
}

// CheckBulk checks a set of entries with settle-all semantics.
func (s *Service) CheckBulk(ctx context.Context, entryIDs []string) []*CheckResult {
	results := make([]*CheckResult, 0, len(entryIDs))
	for _, id := range entryIDs {
		r, err := s.Check(ctx, id)
		if err != nil {
			r = &CheckResult{EntryID: id, Err: err.Error()}
		}
		results = append(results, r)
	}
	return results
}

// GetFlag returns one flag.
func (s *Service) GetFlag(ctx context.Context, id string) (*Flag, error) {
	f, err := s.flags.Get(ctx, id)
	if err == ErrFlagNotFound {
		return nil, faults.NotFound("duplicate flag", id)
	}
	return f, err
}

// ListFlags lists flags, optionally filtered by review status.
func (s *Service) ListFlags(ctx context.Context, status ReviewStatus, limit, offset int) ([]*Flag, int64, error) {
	return s.flags.List(ctx, status, limit, offset)
}

// Review resolves a flag. Approving clears the duplicate verdict so the
// entries re-enter bank validation; rejecting upholds it.
func (s *Service) Review(ctx context.Context, flagID, reviewerID string, approve bool) (*Flag, error) {
	flag, err := s.flags.Get(ctx, flagID)
	if err != nil {
		if err == ErrFlagNotFound {
			return nil, faults.NotFound("duplicate flag", flagID)
		}
		return nil, err
	}
	if flag.Resolved() {
		return nil, faults.Rule("flag_resolved", "flag has already been reviewed")
	}

	now := time.Now()
	if approve {
		flag.ReviewStatus = ReviewApproved
	} else {
		flag.ReviewStatus = ReviewRejected
	}
	flag.ReviewedBy = reviewerID
	flag.ReviewedAt = &now
	if err := s.flags.Update(ctx, flag); err != nil {
		return nil, err
	}

	if approve {
		if err := s.clearDuplicateVerdict(ctx, flag); err != nil {
			return nil, err
		}
	}
	return flag, nil
}

func (s *Service) clearDuplicateVerdict(ctx context.Context, flag *Flag) error {
	siblings, err := s.entries.ListByAccount(ctx, flag.AccountNumber)
	if err != nil {
		return err
	}
	claims := make(map[string]bool, len(flag.ClaimIDs))
	for _, id := range flag.ClaimIDs {
		claims[id] = true
	}

	for _, e := range siblings {
		if e.ValidationStatus != queue.ValidationDuplicate || !claims[e.ClaimID] {
			continue
		}
		_, err := queue.Mutate(ctx, s.entries, e.ID, func(e *queue.Entry) error {
			e.ValidationStatus = queue.ValidationPending
			e.ValidationDetail = ""
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func appendClaim(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
