package duplicates

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/queue"
)

type seed struct {
	id          string
	claimID     string
	beneficiary string
	account     string
	routing     string
	status      queue.Status
}

func seedEntries(t *testing.T, store queue.Store, seeds ...seed) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i, s := range seeds {
		status := s.status
		if status == "" {
			status = queue.StatusPending
		}
		e := &queue.Entry{
			ID:               s.id,
			ClaimID:          s.claimID,
			OwnerID:          "usr_1",
			Amount:           10000,
			BeneficiaryName:  s.beneficiary,
			AccountNumber:    s.account,
			RoutingCode:      s.routing,
			Status:           status,
			ValidationStatus: queue.ValidationPending,
			Priority:         queue.PriorityLow,
			MaxRetries:       queue.DefaultMaxRetries,
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:        base,
		}
		if err := store.Create(context.Background(), e); err != nil {
			t.Fatalf("seed %s: %v", s.id, err)
		}
	}
}

func TestCheck_ExactMatchIsHighRisk(t *testing.T) {
	entries := queue.NewMemoryStore()
	flags := NewMemoryStore()
	svc := NewService(flags, entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "A. Verma", account: "123456789012", routing: "HDFC0001234"},
	)
	ctx := context.Background()

	result, err := svc.Check(ctx, "qe_2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Duplicate || result.Risk != RiskHigh || result.MatchCount != 1 {
		t.Fatalf("result = %+v, want high-risk duplicate with 1 match", result)
	}

	flag, err := flags.Get(ctx, result.FlagID)
	if err != nil {
		t.Fatalf("get flag: %v", err)
	}
	if flag.DetectionType != DetectionExactMatch || flag.Confidence != 1.0 {
		t.Fatalf("flag = %+v, want exact_match at confidence 1.0", flag)
	}
	if len(flag.ClaimIDs) != 2 {
		t.Fatalf("flag claims = %v, want both claims", flag.ClaimIDs)
	}

	e, _ := entries.Get(ctx, "qe_2")
	if e.ValidationStatus != queue.ValidationDuplicate {
		t.Fatalf("entry validation status = %s, want duplicate", e.ValidationStatus)
	}
	if !strings.Contains(e.ValidationDetail, "risk high") {
		t.Fatalf("entry detail %q does not record risk", e.ValidationDetail)
	}
}

func TestCheck_SimilarNameIsMediumRisk(t *testing.T) {
	entries := queue.NewMemoryStore()
	svc := NewService(NewMemoryStore(), entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Ravi Iyer", account: "987654321098", routing: "SBIN0004321"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Ravi Iyar", account: "987654321098", routing: "ICIC0009999"},
	)

	result, err := svc.Check(context.Background(), "qe_2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Risk != RiskMedium {
		t.Fatalf("risk = %s, want medium", result.Risk)
	}

	flag, _ := svc.GetFlag(context.Background(), result.FlagID)
	if flag.DetectionType != DetectionSimilarName {
		t.Fatalf("detection = %s, want similar_name", flag.DetectionType)
	}
	if flag.Confidence < SimilarityThreshold || flag.Confidence >= 1.0 {
		t.Fatalf("confidence = %v, want within [0.8, 1.0)", flag.Confidence)
	}
}

func TestCheck_SameAccountDifferentNameIsMediumRisk(t *testing.T) {
	entries := queue.NewMemoryStore()
	svc := NewService(NewMemoryStore(), entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Ravi Iyer", account: "987654321098", routing: "SBIN0004321"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Meena Kumari", account: "987654321098", routing: "ICIC0009999"},
	)

	result, err := svc.Check(context.Background(), "qe_2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Risk != RiskMedium {
		t.Fatalf("risk = %s, want medium", result.Risk)
	}

	flag, _ := svc.GetFlag(context.Background(), result.FlagID)
	if flag.DetectionType != DetectionSameAccount {
		t.Fatalf("detection = %s, want same_account", flag.DetectionType)
	}
}

func TestCheck_NoMatchLeavesEntryUntouched(t *testing.T) {
	entries := queue.NewMemoryStore()
	flags := NewMemoryStore()
	svc := NewService(flags, entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Ravi Iyer", account: "987654321098", routing: "SBIN0004321"},
	)
	ctx := context.Background()

	result, err := svc.Check(ctx, "qe_1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Duplicate || result.Risk != RiskLow || result.FlagID != "" {
		t.Fatalf("result = %+v, want clean low-risk", result)
	}

	e, _ := entries.Get(ctx, "qe_1")
	if e.ValidationStatus != queue.ValidationPending {
		t.Fatalf("clean entry mutated to %s", e.ValidationStatus)
	}
	if all, total, _ := flags.List(ctx, "", 10, 0); total != 0 || len(all) != 0 {
		t.Fatalf("clean check persisted %d flags", total)
	}
}

func TestCheck_CancelledSiblingsIgnored(t *testing.T) {
	entries := queue.NewMemoryStore()
	svc := NewService(NewMemoryStore(), entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234", status: queue.StatusCancelled},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
	)

	result, err := svc.Check(context.Background(), "qe_2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("cancelled sibling counted as a match: %+v", result)
	}
}

func TestCheck_ReusesOpenFlag(t *testing.T) {
	entries := queue.NewMemoryStore()
	flags := NewMemoryStore()
	svc := NewService(flags, entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
	)
	ctx := context.Background()

	first, err := svc.Check(ctx, "qe_1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	second, err := svc.Check(ctx, "qe_2")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if first.FlagID != second.FlagID {
		t.Fatalf("checks created separate flags %s and %s", first.FlagID, second.FlagID)
	}
	if _, total, _ := flags.List(ctx, "", 10, 0); total != 1 {
		t.Fatalf("flag count = %d, want 1", total)
	}
}

func TestCheckBulk_IsolatesFailures(t *testing.T) {
	entries := queue.NewMemoryStore()
	svc := NewService(NewMemoryStore(), entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Ravi Iyer", account: "987654321098", routing: "SBIN0004321"},
	)

	results := svc.CheckBulk(context.Background(), []string{"qe_1", "qe_missing", "qe_2"})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != "" || results[2].Err != "" {
		t.Fatalf("healthy entries failed: %+v", results)
	}
	if results[1].Err == "" {
		t.Fatal("missing entry did not surface an error")
	}
}

func TestReview_ApproveClearsVerdict(t *testing.T) {
	entries := queue.NewMemoryStore()
	flags := NewMemoryStore()
	svc := NewService(flags, entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
	)
	ctx := context.Background()

	result, err := svc.Check(ctx, "qe_2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	flag, err := svc.Review(ctx, result.FlagID, "op_1", true)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if flag.ReviewStatus != ReviewApproved || flag.ReviewedBy != "op_1" || flag.ReviewedAt == nil {
		t.Fatalf("flag after review = %+v", flag)
	}

	e, _ := entries.Get(ctx, "qe_2")
	if e.ValidationStatus != queue.ValidationPending {
		t.Fatalf("entry validation status = %s, want pending after approval", e.ValidationStatus)
	}

	// Second review of a resolved flag is a business-rule violation.
	if _, err := svc.Review(ctx, result.FlagID, "op_2", false); err == nil {
		t.Fatal("resolved flag accepted a second review")
	} else {
		var rule *faults.BusinessRuleError
		if !errors.As(err, &rule) {
			t.Fatalf("error = %v, want business rule", err)
		}
	}
}

func TestReview_RejectUpholdsVerdict(t *testing.T) {
	entries := queue.NewMemoryStore()
	svc := NewService(NewMemoryStore(), entries)
	seedEntries(t, entries,
		seed{id: "qe_1", claimID: "clm_1", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
		seed{id: "qe_2", claimID: "clm_2", beneficiary: "Asha Verma", account: "123456789012", routing: "HDFC0001234"},
	)
	ctx := context.Background()

	result, _ := svc.Check(ctx, "qe_2")
	flag, err := svc.Review(ctx, result.FlagID, "op_1", false)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if flag.ReviewStatus != ReviewRejected {
		t.Fatalf("review status = %s, want rejected", flag.ReviewStatus)
	}

	e, _ := entries.Get(ctx, "qe_2")
	if e.ValidationStatus != queue.ValidationDuplicate {
		t.Fatalf("rejected flag cleared the duplicate verdict: %s", e.ValidationStatus)
	}
}

func TestNameSimilarity(t *testing.T) {
	cases := []struct {
		a, b  string
		above bool
	}{
		{"Asha Verma", "ASHA VERMA", true},
		{"Asha Verma", "Asha Verma.", true},
		{"Ravi Iyer", "Ravi Iyar", true},
		{"Ravi Iyer", "Meena Kumari", false},
		{"", "Asha Verma", false},
	}
	for _, tc := range cases {
		got := nameSimilarity(tc.a, tc.b) >= SimilarityThreshold
		if got != tc.above {
			t.Errorf("nameSimilarity(%q, %q) threshold check = %v, want %v", tc.a, tc.b, got, tc.above)
		}
	}
}
