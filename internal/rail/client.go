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

	"github.com/google/uuid"
	"github.com/relfin/disburse/internal/circuitbreaker"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/metrics"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/retry"
)

const maxResponseSize = 1 * 1024 * 1024 // 1MB

// Client talks to the payment rail.
type Client struct {
	cfg       Config
	http      *http.Client
	batch     *http.Client
	tokens    *tokenCache
	breaker   *circuitbreaker.Breaker
	baseDelay time.Duration
}

// NewClient creates a rail client. Zero timeouts default to 30s single /
// 60s batch.
func NewClient(cfg Config, breaker *circuitbreaker.Breaker) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 2 * cfg.RequestTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		batch:     &http.Client{Timeout: cfg.BatchTimeout},
		tokens:    &tokenCache{},
		breaker:   breaker,
		baseDelay: submitBaseDelay,
	}
}

// paymentRequest is the rail's single-payment submission shape.
type paymentRequest struct {
	Reference   string      `json:"reference"`
	Amount      float64     `json:"amount"`
	Currency    string      `json:"currency"`
	Purpose     string      `json:"purpose"`
	Beneficiary beneficiary `json:"beneficiary"`
}

type beneficiary struct {
	Name          string `json:"name"`
	AccountNumber string `json:"accountNumber"`
	RoutingCode   string `json:"routingCode"`
	BankName      string `json:"bankName,omitempty"`
	BranchName    string `json:"branchName,omitempty"`
}

type paymentResponse struct {
	PaymentReference string `json:"paymentReference"`
	Status           string `json:"status"`
	ErrorCode        string `json:"errorCode"`
	ErrorMessage     string `json:"errorMessage"`
}

// PaymentReference derives the idempotent submission reference for an
// entry. The same claim and queue id always produce the same reference, so
// a retried submission cannot double-pay.
func PaymentReference(e *queue.Entry) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(e.ClaimID+"-"+e.ID)).String()
}

func buildPaymentRequest(e *queue.Entry) paymentRequest {
	purpose := "Reimbursement disbursement"
	if e.Scheme != "" {
		purpose = fmt.Sprintf("Reimbursement disbursement (%s)", e.Scheme)
	}
	return paymentRequest{
		Reference: PaymentReference(e),
		Amount:    e.Amount,
		Currency:  "INR",
		Purpose:   purpose,
		Beneficiary: beneficiary{
			Name:          e.BeneficiaryName,
			AccountNumber: e.AccountNumber,
			RoutingCode:   e.RoutingCode,
			BankName:      e.BankName,
			BranchName:    e.BranchName,
		},
	}
}

// SubmitPayment submits one entry to the rail and returns the rail's
// payment reference. Up to MaxAttempts tries with 2^attempt second backoff,
// retrying only on 5xx, 429, or an explicit transient error code.
func (c *Client) SubmitPayment(ctx context.Context, e *queue.Entry) (string, error) {
	if !c.breaker.Allow(EndpointRail) {
		metrics.PaymentsSubmittedTotal.WithLabelValues(EndpointRail, "circuit_open").Inc()
		return "", faults.External(EndpointRail, "circuit_open", 0, true, ErrCircuitOpen)
	}

	var ref string
	start := time.Now()
	err := retry.Do(ctx, c.cfg.MaxAttempts, c.baseDelay, func() error {
		var attemptErr error
		ref, attemptErr = c.submitOnce(ctx, e)
		return attemptErr
	})
	metrics.PaymentAttemptDuration.WithLabelValues(EndpointRail).Observe(time.Since(start).Seconds())

	if err != nil {
		c.breaker.RecordFailure(EndpointRail)
		metrics.PaymentsSubmittedTotal.WithLabelValues(EndpointRail, "failure").Inc()
		return "", err
	}
	c.breaker.RecordSuccess(EndpointRail)
	metrics.PaymentsSubmittedTotal.WithLabelValues(EndpointRail, "success").Inc()
	return ref, nil
}

// submitOnce performs one submission attempt. Transient failures come back
// as plain errors; everything else is wrapped retry.Permanent.
func (c *Client) submitOnce(ctx context.Context, e *queue.Entry) (string, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		if faults.IsRetryable(err) {
			return "", err
		}
		return "", retry.Permanent(err)
	}

	body, err := json.Marshal(buildPaymentRequest(e))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal payment request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create payment request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport errors (timeouts included) are worth a retry.
		return "", faults.External(EndpointRail, "request_failed", 0, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", faults.External(EndpointRail, "read_failed", resp.StatusCode, true, err)
	}

	var parsed paymentResponse
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &parsed)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if parsed.PaymentReference == "" {
			return "", retry.Permanent(faults.External(EndpointRail, "malformed_response",
				resp.StatusCode, false, errors.New("rail response missing payment reference")))
		}
		return parsed.PaymentReference, nil
	}

	code := parsed.ErrorCode
	msg := parsed.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("rail returned HTTP %d", resp.StatusCode)
	}

	retryable := resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusTooManyRequests ||
		transientCodes[code]
	ext := faults.External(EndpointRail, code, resp.StatusCode, retryable, errors.New(msg))
	if !retryable {
		return "", retry.Permanent(ext)
	}
	return "", ext
}

// batchRequest registers a batch with the rail ahead of per-entry
// submission and yields the external batch reference.
type batchRequest struct {
	Reference   string  `json:"reference"`
	Name        string  `json:"name"`
	TotalAmount float64 `json:"totalAmount"`
	TotalCount  int     `json:"totalCount"`
}

type batchResponse struct {
	BatchReference string `json:"batchReference"`
}

// RegisterBatch announces a batch to the rail and returns its external
// reference. Uses the doubled batch timeout. A rail outage degrades to a
// locally derived reference so processing can still be audited.
func (c *Client) RegisterBatch(ctx context.Context, batchID, name string, totalAmount float64, totalCount int) string {
	localRef := "LOCAL-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(batchID)).String()

	token, err := c.bearer(ctx)
	if err != nil {
		return localRef
	}

	body, err := json.Marshal(batchRequest{
		Reference:   batchID,
		Name:        name,
		TotalAmount: totalAmount,
		TotalCount:  totalCount,
	})
	if err != nil {
		return localRef
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		return localRef
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.batch.Do(req)
	if err != nil {
		return localRef
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return localRef
	}

	var parsed batchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.BatchReference == "" {
		return localRef
	}
	return parsed.BatchReference
}

// CheckHealth performs a lightweight authenticated probe.
func (c *Client) CheckHealth(ctx context.Context) Health {
	start := time.Now()

	token, err := c.bearer(ctx)
	if err != nil {
		return Health{Connected: false, Latency: time.Since(start)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return Health{Connected: false, Latency: time.Since(start)}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return Health{Connected: false, Latency: latency}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	return Health{Connected: resp.StatusCode < 500, Latency: latency}
}
