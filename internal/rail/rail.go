// Package rail is the adapter for the SAP-style payment rail and the
// secondary payment gateway.
//
// Submission is guarded three ways: a cached bearer credential refreshed
// ahead of expiry, bounded retries on transient failures only, and a
// per-endpoint circuit breaker.
package rail

import (
	"errors"
	"time"
)

var ErrCircuitOpen = errors.New("payment endpoint circuit is open")

// Endpoint keys used for breaker state and metrics labels.
const (
	EndpointRail    = "rail"
	EndpointGateway = "gateway"
)

// Transient rail error codes that justify a retry, alongside HTTP 5xx/429.
var transientCodes = map[string]bool{
	"TEMPORARILY_UNAVAILABLE": true,
	"TIMEOUT":                 true,
}

const (
	// tokenRefreshMargin forces a refresh when the cached credential is
	// within this window of its expiry.
	tokenRefreshMargin = 5 * time.Minute

	// submitBaseDelay gives the 2^attempt seconds backoff sequence.
	submitBaseDelay = 2 * time.Second
)

// Config carries rail connection settings.
type Config struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RequestTimeout time.Duration // single payment calls
	BatchTimeout   time.Duration // batch registration calls
	MaxAttempts    int
}

// Health is the result of a connectivity probe.
type Health struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency"`
}
