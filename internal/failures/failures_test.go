package failures

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/queue"
)

// mockSubmitter serves canned submission outcomes per entry id.
type mockSubmitter struct {
	refs  map[string]string
	errs  map[string]error
	calls []string
}

func (m *mockSubmitter) SubmitPayment(_ context.Context, e *queue.Entry) (string, error) {
	m.calls = append(m.calls, e.ID)
	if err, ok := m.errs[e.ID]; ok {
		return "", err
	}
	if ref, ok := m.refs[e.ID]; ok {
		return ref, nil
	}
	return "RAIL-" + e.ID, nil
}

// mockAudit records disputed entries.
type mockAudit struct {
	disputes []string
	err      error
}

func (m *mockAudit) RecordDispute(_ context.Context, e *queue.Entry, reason string) error {
	m.disputes = append(m.disputes, e.ID+": "+reason)
	return m.err
}

func seedFailed(t *testing.T, store queue.Store, id string, retryCount int, scheduledAt *time.Time) {
	t.Helper()
	e := &queue.Entry{
		ID:               id,
		ClaimID:          "clm_" + id,
		OwnerID:          "usr_1",
		Amount:           25000,
		AccountNumber:    "123456789012",
		RoutingCode:      "HDFC0001234",
		Status:           queue.StatusFailed,
		ValidationStatus: queue.ValidationValid,
		Priority:         queue.PriorityLow,
		RetryCount:       retryCount,
		MaxRetries:       queue.DefaultMaxRetries,
		ScheduledAt:      scheduledAt,
		CreatedAt:        time.Now().Add(-time.Hour),
		UpdatedAt:        time.Now(),
	}
	if err := store.Create(context.Background(), e); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func past() *time.Time {
	t := time.Now().Add(-time.Minute)
	return &t
}

func TestReportFailure_SchedulesRetryWithExponentialDelay(t *testing.T) {
	store := queue.NewMemoryStore()
	audit := &mockAudit{}
	svc := NewService(store, &mockSubmitter{}, audit)
	seedFailed(t, store, "qe_1", 1, nil)
	ctx := context.Background()

	before := time.Now()
	outcome, err := svc.ReportFailure(ctx, "qe_1", "rail timeout", true)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if outcome.Action != ActionRetry || outcome.RetryCount != 2 {
		t.Fatalf("outcome = %+v, want retry at count 2", outcome)
	}

	// Second failure: 2^2 = 4 hours out.
	want := before.Add(4 * time.Hour)
	if outcome.ScheduledAt == nil || outcome.ScheduledAt.Before(want) ||
		outcome.ScheduledAt.After(want.Add(time.Minute)) {
		t.Fatalf("scheduledAt = %v, want about %v", outcome.ScheduledAt, want)
	}

	e, _ := store.Get(ctx, "qe_1")
	if e.Status != queue.StatusFailed || e.RetryCount != 2 || e.ScheduledAt == nil {
		t.Fatalf("entry = %+v", e)
	}
	if e.FailureReason != "rail timeout" {
		t.Fatalf("failure reason = %q", e.FailureReason)
	}
	if len(audit.disputes) != 1 {
		t.Fatalf("disputed records = %d, want 1", len(audit.disputes))
	}
}

func TestReportFailure_ExhaustedRetriesCancels(t *testing.T) {
	store := queue.NewMemoryStore()
	svc := NewService(store, &mockSubmitter{}, &mockAudit{})
	seedFailed(t, store, "qe_1", 3, nil)
	ctx := context.Background()

	outcome, err := svc.ReportFailure(ctx, "qe_1", "still down", true)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if outcome.Action != ActionCancelled || outcome.ScheduledAt != nil {
		t.Fatalf("outcome = %+v, want cancelled without schedule", outcome)
	}

	e, _ := store.Get(ctx, "qe_1")
	if e.Status != queue.StatusCancelled || e.ScheduledAt != nil {
		t.Fatalf("entry = %+v, want cancelled", e)
	}
}

func TestReportFailure_NonRetryableGoesToManualReview(t *testing.T) {
	store := queue.NewMemoryStore()
	audit := &mockAudit{}
	svc := NewService(store, &mockSubmitter{}, audit)
	seedFailed(t, store, "qe_1", 0, nil)
	ctx := context.Background()

	outcome, err := svc.ReportFailure(ctx, "qe_1", "invalid beneficiary", false)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if outcome.Action != ActionManualReview {
		t.Fatalf("action = %s, want manual_review", outcome.Action)
	}

	e, _ := store.Get(ctx, "qe_1")
	if e.Status != queue.StatusFailed {
		t.Fatalf("status changed to %s on manual review", e.Status)
	}
	if e.RetryCount != 1 || e.FailureReason != "invalid beneficiary" {
		t.Fatalf("entry = %+v", e)
	}
	if len(audit.disputes) != 1 {
		t.Fatal("manual review did not write a disputed record")
	}
}

func TestReportFailure_UnknownEntry(t *testing.T) {
	svc := NewService(queue.NewMemoryStore(), &mockSubmitter{}, &mockAudit{})

	_, err := svc.ReportFailure(context.Background(), "qe_missing", "whatever", true)
	var nf *faults.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestRetryDue_ExplicitIDsSucceed(t *testing.T) {
	store := queue.NewMemoryStore()
	submitter := &mockSubmitter{}
	svc := NewService(store, submitter, &mockAudit{})
	seedFailed(t, store, "qe_1", 1, past())
	ctx := context.Background()

	result, err := svc.RetryDue(ctx, []string{"qe_1"}, "op_1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Retried != 1 || result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}

	e, _ := store.Get(ctx, "qe_1")
	if e.Status != queue.StatusProcessed || e.ProcessedAt == nil {
		t.Fatalf("entry = %+v, want processed", e)
	}
	if e.ScheduledAt != nil || e.FailureReason != "" {
		t.Fatalf("retry left stale failure state: %+v", e)
	}
}

func TestRetryDue_FailureRecursesIntoReport(t *testing.T) {
	store := queue.NewMemoryStore()
	submitter := &mockSubmitter{errs: map[string]error{
		"qe_1": faults.External("rail", "TIMEOUT", 504, true, errors.New("gateway timeout")),
	}}
	audit := &mockAudit{}
	svc := NewService(store, submitter, audit)
	seedFailed(t, store, "qe_1", 1, past())
	ctx := context.Background()

	result, err := svc.RetryDue(ctx, []string{"qe_1"}, "op_1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Failed != 1 || result.Succeeded != 0 {
		t.Fatalf("result = %+v", result)
	}

	e, _ := store.Get(ctx, "qe_1")
	if e.Status != queue.StatusFailed || e.RetryCount != 2 || e.ScheduledAt == nil {
		t.Fatalf("entry = %+v, want rescheduled failure", e)
	}
	if len(audit.disputes) != 1 {
		t.Fatal("recursed failure did not write a disputed record")
	}
}

func TestRetryDue_SettleAll(t *testing.T) {
	store := queue.NewMemoryStore()
	submitter := &mockSubmitter{errs: map[string]error{
		"qe_bad": faults.External("rail", "", 503, true, errors.New("unavailable")),
	}}
	svc := NewService(store, submitter, &mockAudit{})
	seedFailed(t, store, "qe_1", 1, past())
	seedFailed(t, store, "qe_bad", 1, past())
	seedFailed(t, store, "qe_2", 1, past())
	ctx := context.Background()

	result, err := svc.RetryDue(ctx, []string{"qe_1", "qe_bad", "qe_2"}, "op_1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Retried != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 2 of 3 to settle", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "qe_bad") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestRetryDue_SweepSkipsNotYetDue(t *testing.T) {
	store := queue.NewMemoryStore()
	submitter := &mockSubmitter{}
	svc := NewService(store, submitter, &mockAudit{})

	future := time.Now().Add(2 * time.Hour)
	seedFailed(t, store, "qe_due", 1, past())
	seedFailed(t, store, "qe_later", 1, &future)
	seedFailed(t, store, "qe_spent", 3, past())
	ctx := context.Background()

	result, err := svc.RetryDue(ctx, nil, "sweep")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Retried != 1 {
		t.Fatalf("result = %+v, want only qe_due retried", result)
	}
	if len(submitter.calls) != 1 || submitter.calls[0] != "qe_due" {
		t.Fatalf("submitted = %v", submitter.calls)
	}
}

func TestRetryDue_ExplicitNonFailedEntryRejected(t *testing.T) {
	store := queue.NewMemoryStore()
	svc := NewService(store, &mockSubmitter{}, &mockAudit{})
	e := &queue.Entry{
		ID: "qe_ok", ClaimID: "clm_1", OwnerID: "usr_1", Amount: 100,
		Status: queue.StatusProcessed, ValidationStatus: queue.ValidationValid,
		Priority: queue.PriorityLow, MaxRetries: queue.DefaultMaxRetries,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), e); err != nil {
		t.Fatalf("seed: %v", err)
	}

	result, err := svc.RetryDue(context.Background(), []string{"qe_ok"}, "op_1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Retried != 0 || len(result.Errors) != 1 {
		t.Fatalf("result = %+v, want rejection without submission", result)
	}
}
