package bankcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relfin/disburse/internal/faults"
)

func TestDirectoryVerifier_KnownCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/HDFC0001234" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bank":"HDFC","branch":"Pune Camp"}`))
	}))
	defer srv.Close()

	v := NewDirectoryVerifier(srv.URL, time.Second)
	identity, err := v.Verify(context.Background(), "HDFC0001234")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !identity.Valid || identity.BankName != "HDFC" || identity.BranchName != "Pune Camp" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestDirectoryVerifier_UnknownCodeIsInvalidNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v := NewDirectoryVerifier(srv.URL, time.Second)
	identity, err := v.Verify(context.Background(), "XXXX0000000")
	if err != nil {
		t.Fatalf("expected no error for unknown code, got %v", err)
	}
	if identity.Valid {
		t.Fatal("expected invalid identity for unknown code")
	}
}

func TestDirectoryVerifier_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewDirectoryVerifier(srv.URL, time.Second)
	_, err := v.Verify(context.Background(), "HDFC0001234")
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !faults.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestDirectoryVerifier_Unreachable(t *testing.T) {
	v := NewDirectoryVerifier("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := v.Verify(context.Background(), "HDFC0001234")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !faults.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
