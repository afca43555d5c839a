package rail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/relfin/disburse/internal/faults"
)

// tokenCache holds the bearer credential for the rail. Access is
// mutex-guarded; concurrent submissions share one refresh.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// bearer returns a valid token, refreshing via the client-credentials
// exchange when the cached one is absent or within 5 minutes of expiry.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if c.tokens.token != "" && time.Until(c.tokens.expiresAt) > tokenRefreshMargin {
		return c.tokens.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", faults.External("rail", "token_exchange_failed", 0, true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", faults.External("rail", "token_rejected", resp.StatusCode,
			resp.StatusCode >= 500, fmt.Errorf("token endpoint returned HTTP %d", resp.StatusCode))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", faults.External("rail", "token_empty", resp.StatusCode, false,
			fmt.Errorf("token endpoint returned no access token"))
	}

	c.tokens.token = tok.AccessToken
	c.tokens.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.tokens.token, nil
}
