package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relfin/disburse/internal/events"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/idgen"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/pagination"
)

// Claim is the slice of the application-approval workflow this engine needs.
type Claim struct {
	ID             string
	OwnerID        string
	Scheme         string
	Status         string // workflow state, "approved" is admissible
	ApprovedAmount *float64
}

// ClaimSource reads approved claims from the application workflow.
type ClaimSource interface {
	GetClaim(ctx context.Context, claimID string) (*Claim, error)
}

// BankDetails is a beneficiary's payout destination.
type BankDetails struct {
	BeneficiaryName string
	AccountNumber   string
	RoutingCode     string
	BankName        string
	BranchName      string
}

// ProfileSource reads beneficiary bank details.
type ProfileSource interface {
	GetBankDetails(ctx context.Context, ownerID string) (*BankDetails, error)
}

// Service implements queue manager business logic.
type Service struct {
	store    Store
	claims   ClaimSource
	profiles ProfileSource
	bus      *events.Bus
}

// NewService creates a queue manager service.
func NewService(store Store, claims ClaimSource, profiles ProfileSource, bus *events.Bus) *Service {
	return &Service{
		store:    store,
		claims:   claims,
		profiles: profiles,
		bus:      bus,
	}
}

// Store exposes the underlying store to sibling services.
func (s *Service) Store() Store {
	return s.store
}

// Admit creates a queue entry for an approved claim.
//
// Preconditions: the claim exists, is in the "approved" workflow state, and
// carries a non-null approved amount. Bank validation and duplicate checking
// are triggered asynchronously via the event bus; their failures never
// surface to this caller.
func (s *Service) Admit(ctx context.Context, claimID, operatorID string) (*Entry, error) {
	claim, err := s.claims.GetClaim(ctx, claimID)
	if err != nil {
		return nil, faults.NotFound("claim", claimID)
	}
	if !strings.EqualFold(claim.Status, "approved") {
		return nil, faults.Rule("claim_not_approved",
			fmt.Sprintf("claim %s is %s, only approved claims can be queued", claimID, claim.Status))
	}
	if claim.ApprovedAmount == nil || *claim.ApprovedAmount <= 0 {
		return nil, faults.Rule("missing_approved_amount",
			fmt.Sprintf("claim %s has no approved amount", claimID))
	}

	if existing, err := s.store.FindByClaim(ctx, claimID); err == nil {
		return nil, faults.Rule("claim_already_queued",
			fmt.Sprintf("claim %s already has queue entry %s", claimID, existing.ID))
	} else if !errors.Is(err, ErrEntryNotFound) {
		return nil, fmt.Errorf("check existing entry: %w", err)
	}

	details, err := s.profiles.GetBankDetails(ctx, claim.OwnerID)
	if err != nil {
		return nil, faults.NotFound("beneficiary profile", claim.OwnerID)
	}

	now := time.Now()
	entry := &Entry{
		ID:               idgen.WithPrefix("qe_"),
		ClaimID:          claim.ID,
		OwnerID:          claim.OwnerID,
		Scheme:           claim.Scheme,
		Amount:           *claim.ApprovedAmount,
		BeneficiaryName:  details.BeneficiaryName,
		AccountNumber:    details.AccountNumber,
		RoutingCode:      details.RoutingCode,
		BankName:         details.BankName,
		BranchName:       details.BranchName,
		Status:           StatusPending,
		ValidationStatus: ValidationPending,
		Priority:         PriorityForAmount(*claim.ApprovedAmount),
		MaxRetries:       DefaultMaxRetries,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create queue entry: %w", err)
	}

	metrics.QueueAdmissionsTotal.WithLabelValues(string(entry.Priority)).Inc()
	s.bus.Publish(events.TopicEntryAdmitted, entry.ID)

	return entry, nil
}

// Get fetches a single entry.
func (s *Service) Get(ctx context.Context, entryID string) (*Entry, error) {
	e, err := s.store.Get(ctx, entryID)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, faults.NotFound("queue entry", entryID)
	}
	return e, err
}

// Query lists entries matching the filter, ordered by priority tier
// descending then creation time ascending.
func (s *Service) Query(ctx context.Context, f Filter, page pagination.Page) (*pagination.Result[*Entry], error) {
	entries, total, err := s.store.Query(ctx, f, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}
	return &pagination.Result[*Entry]{
		Items:      entries,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalCount: total,
	}, nil
}

// DashboardSummary returns status and validation rollups.
func (s *Service) DashboardSummary(ctx context.Context) (*Summary, error) {
	return s.store.Summarize(ctx)
}

// Cancel moves a non-terminal entry to cancelled.
func (s *Service) Cancel(ctx context.Context, entryID, operatorID, reason string) (*Entry, error) {
	entry, err := Mutate(ctx, s.store, entryID, func(e *Entry) error {
		if e.IsTerminal() {
			return faults.Rule("terminal_entry",
				fmt.Sprintf("queue entry %s is already %s", entryID, e.Status))
		}
		e.Status = StatusCancelled
		e.FailureReason = fmt.Sprintf("cancelled by %s: %s", operatorID, reason)
		return nil
	})
	if errors.Is(err, ErrEntryNotFound) {
		return nil, faults.NotFound("queue entry", entryID)
	}
	return entry, err
}

// mutateAttempts bounds the CAS retry loop. Conflicts beyond this are
// surfaced to the caller as a ConflictError.
const mutateAttempts = 3

// Mutate applies fn to the entry under optimistic concurrency: read, modify,
// conditional write. On a version conflict it re-reads and reapplies, up to
// mutateAttempts times. This is the single write path shared by validation,
// duplicate checking, batching, and failure handling, so concurrent
// background triggers cannot silently overwrite each other.
func Mutate(ctx context.Context, store Store, entryID string, fn func(*Entry) error) (*Entry, error) {
	var lastVersion int64
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		entry, err := store.Get(ctx, entryID)
		if err != nil {
			return nil, err
		}
		lastVersion = entry.Version

		if err := fn(entry); err != nil {
			return nil, err
		}

		err = store.Update(ctx, entry)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, faults.Conflict("queue entry", entryID, lastVersion)
}
