// Package notify provides the notification sink used for critical health
// alerts and payment failure escalations.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/relfin/disburse/internal/metrics"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message is a single notification.
type Message struct {
	Severity  Severity          `json:"severity"`
	Service   string            `json:"service"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier delivers notifications to an external sink.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log. Used when no
// webhook sink is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.Logger.Warn("notification",
		"severity", msg.Severity, "service", msg.Service, "title", msg.Title, "body", msg.Body)
	return nil
}

// WebhookNotifier POSTs notifications as signed JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a webhook-backed notifier.
func NewWebhookNotifier(url, secret string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify delivers the message. A non-2xx response is an error.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Disburse-Severity", string(msg.Severity))
	req.Header.Set("X-Disburse-Timestamp", fmt.Sprintf("%d", msg.Timestamp.Unix()))
	if n.secret != "" {
		req.Header.Set("X-Disburse-Signature", sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.NotificationsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("notification sink returned status %d", resp.StatusCode)
	}

	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
	return nil
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
