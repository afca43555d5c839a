package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/batch"
	"github.com/relfin/disburse/internal/duplicates"
	"github.com/relfin/disburse/internal/events"
	"github.com/relfin/disburse/internal/healthmon"
	"github.com/relfin/disburse/internal/notify"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/recon"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router  *gin.Engine
	entries *queue.MemoryStore
	batches *batch.MemoryStore
	flags   *duplicates.MemoryStore
	records *recon.MemoryStore
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(logger)

	entries := queue.NewMemoryStore()
	batches := batch.NewMemoryStore()
	flags := duplicates.NewMemoryStore()
	records := recon.NewMemoryStore()

	queueSvc := queue.NewService(entries, nil, nil, bus)
	batchSvc := batch.NewService(batches, entries, nil, nil, bus)
	dupSvc := duplicates.NewService(flags, entries)
	reconSvc := recon.NewService(records, entries, bus)
	monitor := healthmon.NewMonitor(&notify.LogNotifier{Logger: logger})

	router := gin.New()
	v1 := router.Group("/v1")
	NewHandler(queueSvc, batchSvc, dupSvc, reconSvc, monitor).RegisterRoutes(v1)

	return &fixture{
		router:  router,
		entries: entries,
		batches: batches,
		flags:   flags,
		records: records,
	}
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return w.Code, body
}

func seedEntry(t *testing.T, store queue.Store, id string, status queue.Status, vs queue.ValidationStatus) {
	t.Helper()
	now := time.Now()
	err := store.Create(context.Background(), &queue.Entry{
		ID:               id,
		ClaimID:          "clm_" + id,
		OwnerID:          "usr_1",
		Amount:           500,
		AccountNumber:    "123456789012",
		RoutingCode:      "HDFC0001234",
		Status:           status,
		ValidationStatus: vs,
		Priority:         queue.PriorityLow,
		MaxRetries:       queue.DefaultMaxRetries,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		t.Fatalf("seed entry %s: %v", id, err)
	}
}

func TestOverview_AggregatesAllDomains(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	seedEntry(t, f.entries, "qe_1", queue.StatusPending, queue.ValidationValid)
	seedEntry(t, f.entries, "qe_2", queue.StatusProcessed, queue.ValidationValid)

	now := time.Now()
	if err := f.flags.Create(ctx, &duplicates.Flag{
		ID:            "df_1",
		AccountNumber: "123456789012",
		RoutingCode:   "HDFC0001234",
		ClaimIDs:      []string{"clm_qe_1"},
		DetectionType: duplicates.DetectionExactMatch,
		ReviewStatus:  duplicates.ReviewFlagged,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		t.Fatalf("seed flag: %v", err)
	}

	if err := f.records.Create(ctx, &recon.Record{
		ID:              "rr_1",
		Amount:          500,
		TransactionDate: now,
		Status:          recon.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	code, body := f.get(t, "/v1/dashboard/overview")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	qs := body["queue"].(map[string]any)
	if qs["totalCount"].(float64) != 2 {
		t.Errorf("Expected 2 queue entries, got %v", qs["totalCount"])
	}
	if body["openDuplicateFlags"].(float64) != 1 {
		t.Errorf("Expected 1 open flag, got %v", body["openDuplicateFlags"])
	}
	rs := body["reconciliation"].(map[string]any)
	if rs["total"].(float64) != 1 {
		t.Errorf("Expected 1 reconciliation record, got %v", rs["total"])
	}
	integ := body["integrations"].(map[string]any)
	if integ["status"] == "" {
		t.Error("Expected integration status in overview")
	}
}

func TestAttention_ListsActionableEntries(t *testing.T) {
	f := newFixture()

	seedEntry(t, f.entries, "qe_ok", queue.StatusPending, queue.ValidationValid)
	seedEntry(t, f.entries, "qe_bad", queue.StatusPending, queue.ValidationInvalid)
	seedEntry(t, f.entries, "qe_dup", queue.StatusPending, queue.ValidationDuplicate)
	seedEntry(t, f.entries, "qe_failed", queue.StatusFailed, queue.ValidationValid)

	code, body := f.get(t, "/v1/dashboard/attention")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	invalid := body["invalidEntries"].(map[string]any)
	if invalid["totalCount"].(float64) != 1 {
		t.Errorf("Expected 1 invalid entry, got %v", invalid["totalCount"])
	}
	dup := body["duplicateEntries"].(map[string]any)
	if dup["totalCount"].(float64) != 1 {
		t.Errorf("Expected 1 duplicate entry, got %v", dup["totalCount"])
	}
	failed := body["failedEntries"].(map[string]any)
	if failed["totalCount"].(float64) != 1 {
		t.Errorf("Expected 1 failed entry, got %v", failed["totalCount"])
	}
}

func TestBatches_FiltersByStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now()

	for _, b := range []*batch.Batch{
		{ID: "pb_1", Name: "draft run", Type: batch.TypeRegular, Status: batch.StatusDraft, CreatedAt: now, UpdatedAt: now},
		{ID: "pb_2", Name: "done run", Type: batch.TypeRegular, Status: batch.StatusCompleted, CreatedAt: now.Add(time.Minute), UpdatedAt: now},
	} {
		if err := f.batches.Create(ctx, b); err != nil {
			t.Fatalf("seed batch %s: %v", b.ID, err)
		}
	}

	code, body := f.get(t, "/v1/dashboard/batches")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["totalCount"].(float64) != 2 {
		t.Errorf("Expected 2 batches, got %v", body["totalCount"])
	}

	code, body = f.get(t, "/v1/dashboard/batches?status=completed")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["totalCount"].(float64) != 1 {
		t.Errorf("Expected 1 completed batch, got %v", body["totalCount"])
	}
}
