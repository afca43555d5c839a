package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/queue"
)

// Gateway is the secondary payment gateway client. It speaks plain API-key
// auth and takes the same request shape as the rail, without the batch
// surface. The health monitor probes it alongside the rail so operators can
// judge whether a manual failover is viable.
type Gateway struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewGateway creates a secondary gateway client.
func NewGateway(baseURL, apiKey string, timeout time.Duration) *Gateway {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// SubmitPayment submits one entry to the gateway. Single attempt; failover
// submissions are operator-driven, not retried automatically.
func (g *Gateway) SubmitPayment(ctx context.Context, e *queue.Entry) (string, error) {
	body, err := json.Marshal(buildPaymentRequest(e))
	if err != nil {
		return "", fmt.Errorf("marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		metrics.PaymentsSubmittedTotal.WithLabelValues(EndpointGateway, "failure").Inc()
		return "", faults.External(EndpointGateway, "request_failed", 0, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", faults.External(EndpointGateway, "read_failed", resp.StatusCode, true, err)
	}

	var parsed paymentResponse
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &parsed)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.PaymentReference != "" {
		metrics.PaymentsSubmittedTotal.WithLabelValues(EndpointGateway, "success").Inc()
		return parsed.PaymentReference, nil
	}

	metrics.PaymentsSubmittedTotal.WithLabelValues(EndpointGateway, "failure").Inc()
	retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	msg := parsed.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)
	}
	return "", faults.External(EndpointGateway, parsed.ErrorCode, resp.StatusCode, retryable, errors.New(msg))
}

// CheckHealth probes the gateway's health endpoint.
func (g *Gateway) CheckHealth(ctx context.Context) Health {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return Health{Connected: false, Latency: time.Since(start)}
	}
	req.Header.Set("X-Api-Key", g.apiKey)

	resp, err := g.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return Health{Connected: false, Latency: latency}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	return Health{Connected: resp.StatusCode < 500, Latency: latency}
}
