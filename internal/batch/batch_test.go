package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/relfin/disburse/internal/events"
	"github.com/relfin/disburse/internal/failures"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/queue"
)

// mockRail satisfies Submitter with canned per-entry outcomes.
type mockRail struct {
	errs       map[string]error
	submits    []string
	registered int
}

func (m *mockRail) SubmitPayment(_ context.Context, e *queue.Entry) (string, error) {
	m.submits = append(m.submits, e.ID)
	if err, ok := m.errs[e.ID]; ok {
		return "", err
	}
	return "RAIL-" + e.ID, nil
}

func (m *mockRail) RegisterBatch(_ context.Context, batchID, _ string, _ float64, _ int) string {
	m.registered++
	return "EXT-" + batchID
}

type noopAudit struct{}

func (noopAudit) RecordDispute(context.Context, *queue.Entry, string) error { return nil }

func newTestService(rail *mockRail) (*Service, *MemoryStore, *queue.MemoryStore) {
	batches := NewMemoryStore()
	entries := queue.NewMemoryStore()
	reporter := failures.NewService(entries, rail, noopAudit{})
	bus := events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewService(batches, entries, rail, reporter, bus), batches, entries
}

func seedEntry(t *testing.T, store queue.Store, id string, amount float64, vs queue.ValidationStatus) {
	t.Helper()
	e := &queue.Entry{
		ID:               id,
		ClaimID:          "clm_" + id,
		OwnerID:          "usr_1",
		Amount:           amount,
		AccountNumber:    "123456789012",
		RoutingCode:      "HDFC0001234",
		Status:           queue.StatusPending,
		ValidationStatus: vs,
		Priority:         queue.PriorityLow,
		MaxRetries:       queue.DefaultMaxRetries,
		CreatedAt:        time.Now().Add(-time.Hour),
		UpdatedAt:        time.Now(),
	}
	if err := store.Create(context.Background(), e); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestCreate_RetainsOnlyValidEntries(t *testing.T) {
	svc, _, entries := newTestService(&mockRail{})
	seedEntry(t, entries, "qe_1", 25000, queue.ValidationValid)
	seedEntry(t, entries, "qe_2", 1500.50, queue.ValidationValid)
	seedEntry(t, entries, "qe_bad", 900, queue.ValidationInvalid)
	seedEntry(t, entries, "qe_dup", 700, queue.ValidationDuplicate)
	ctx := context.Background()

	b, err := svc.Create(ctx, "August medical", TypeRegular, "op_1",
		[]string{"qe_1", "qe_2", "qe_bad", "qe_dup"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if b.Status != StatusDraft {
		t.Fatalf("status = %s, want draft", b.Status)
	}
	if b.TotalCount != 2 {
		t.Fatalf("totalCount = %d, want 2", b.TotalCount)
	}
	if math.Abs(b.TotalAmount-26500.50) > 1e-9 {
		t.Fatalf("totalAmount = %v, want 26500.50", b.TotalAmount)
	}

	for _, id := range []string{"qe_1", "qe_2"} {
		e, _ := entries.Get(ctx, id)
		if e.BatchID != b.ID || e.Status != queue.StatusValidated {
			t.Fatalf("retained entry %s = %+v", id, e)
		}
	}
	for _, id := range []string{"qe_bad", "qe_dup"} {
		e, _ := entries.Get(ctx, id)
		if e.BatchID != "" || e.Status != queue.StatusPending {
			t.Fatalf("dropped entry %s was mutated: %+v", id, e)
		}
	}
}

func TestCreate_NoValidEntriesFails(t *testing.T) {
	svc, _, entries := newTestService(&mockRail{})
	seedEntry(t, entries, "qe_bad", 900, queue.ValidationInvalid)

	_, err := svc.Create(context.Background(), "Empty", TypeRegular, "op_1", []string{"qe_bad"})
	var rule *faults.BusinessRuleError
	if !errors.As(err, &rule) {
		t.Fatalf("error = %v, want business rule", err)
	}
}

func TestCreate_UnknownTypeRejected(t *testing.T) {
	svc, _, entries := newTestService(&mockRail{})
	seedEntry(t, entries, "qe_1", 100, queue.ValidationValid)

	_, err := svc.Create(context.Background(), "Bad type", Type("weekly"), "op_1", []string{"qe_1"})
	var v *faults.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("error = %v, want validation error", err)
	}
}

func createReadyBatch(t *testing.T, svc *Service, entryIDs []string) *Batch {
	t.Helper()
	ctx := context.Background()
	b, err := svc.Create(ctx, "Test batch", TypeRegular, "op_1", entryIDs)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err = svc.Publish(ctx, b.ID, "op_1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return b
}

func TestPublish_DraftToReady(t *testing.T) {
	svc, _, entries := newTestService(&mockRail{})
	seedEntry(t, entries, "qe_1", 100, queue.ValidationValid)

	b := createReadyBatch(t, svc, []string{"qe_1"})
	if b.Status != StatusReady {
		t.Fatalf("status = %s, want ready", b.Status)
	}

	// Publishing again is a business-rule violation.
	if _, err := svc.Publish(context.Background(), b.ID, "op_1"); err == nil {
		t.Fatal("ready batch accepted a second publish")
	}
}

func TestProcess_RequiresReady(t *testing.T) {
	svc, _, entries := newTestService(&mockRail{})
	seedEntry(t, entries, "qe_1", 100, queue.ValidationValid)
	ctx := context.Background()

	b, err := svc.Create(ctx, "Draft only", TypeRegular, "op_1", []string{"qe_1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.Process(ctx, b.ID, "op_1")
	var rule *faults.BusinessRuleError
	if !errors.As(err, &rule) {
		t.Fatalf("error = %v, want business rule", err)
	}
}

func TestProcess_AllSucceedCompletesBatch(t *testing.T) {
	rail := &mockRail{}
	svc, batches, entries := newTestService(rail)
	seedEntry(t, entries, "qe_1", 25000, queue.ValidationValid)
	seedEntry(t, entries, "qe_2", 1500, queue.ValidationValid)
	ctx := context.Background()

	b := createReadyBatch(t, svc, []string{"qe_1", "qe_2"})
	result, err := svc.Process(ctx, b.ID, "op_2")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 2 || result.Failed != 0 || result.Status != StatusCompleted {
		t.Fatalf("result = %+v", result)
	}

	stored, _ := batches.Get(ctx, b.ID)
	if stored.Status != StatusCompleted {
		t.Fatalf("batch status = %s, want completed", stored.Status)
	}
	if stored.ExternalRef != "EXT-"+b.ID {
		t.Fatalf("externalRef = %q", stored.ExternalRef)
	}
	if stored.ProcessedBy != "op_2" || stored.ProcessedAt == nil {
		t.Fatalf("processor not stamped: %+v", stored)
	}

	for _, id := range []string{"qe_1", "qe_2"} {
		e, _ := entries.Get(ctx, id)
		if e.Status != queue.StatusProcessed || e.ProcessedAt == nil {
			t.Fatalf("entry %s = %+v, want processed", id, e)
		}
	}
}

func TestProcess_PartialFailureFailsBatchButStampsRef(t *testing.T) {
	rail := &mockRail{errs: map[string]error{
		"qe_bad": faults.External("rail", "TIMEOUT", 504, true, errors.New("gateway timeout")),
	}}
	svc, batches, entries := newTestService(rail)
	seedEntry(t, entries, "qe_1", 25000, queue.ValidationValid)
	seedEntry(t, entries, "qe_bad", 1500, queue.ValidationValid)
	ctx := context.Background()

	b := createReadyBatch(t, svc, []string{"qe_1", "qe_bad"})
	result, err := svc.Process(ctx, b.ID, "op_1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 1 || result.Failed != 1 || result.Status != StatusFailed {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "qe_bad") {
		t.Fatalf("errors = %v", result.Errors)
	}

	stored, _ := batches.Get(ctx, b.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("batch status = %s, want failed", stored.Status)
	}
	if stored.ExternalRef == "" {
		t.Fatal("external reference not stamped on a failed batch")
	}

	// The failed entry went through the failure coordinator.
	e, _ := entries.Get(ctx, "qe_bad")
	if e.Status != queue.StatusFailed || e.RetryCount != 1 || e.ScheduledAt == nil {
		t.Fatalf("failed entry = %+v, want scheduled retry", e)
	}

	ok, _ := entries.Get(ctx, "qe_1")
	if ok.Status != queue.StatusProcessed {
		t.Fatalf("healthy entry = %+v", ok)
	}
}

func TestProcess_TotalsMatchValidMembers(t *testing.T) {
	svc, _, entries := newTestService(&mockRail{})
	amounts := []float64{120000, 60000, 900}
	ids := []string{"qe_a", "qe_b", "qe_c"}
	var want float64
	for i, id := range ids {
		seedEntry(t, entries, id, amounts[i], queue.ValidationValid)
		want += amounts[i]
	}

	b := createReadyBatch(t, svc, ids)
	result, err := svc.Process(context.Background(), b.ID, "op_1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if math.Abs(result.TotalAmount-want) > 1e-9 {
		t.Fatalf("totalAmount = %v, want %v", result.TotalAmount, want)
	}
	if b.TotalCount != len(ids) {
		t.Fatalf("totalCount = %d, want %d", b.TotalCount, len(ids))
	}
}
