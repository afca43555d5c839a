package bankcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relfin/disburse/internal/faults"
)

// DirectoryVerifier looks routing codes up against a bank directory API.
// A 404 from the directory is a definitive "invalid code", not an error.
type DirectoryVerifier struct {
	baseURL string
	http    *http.Client
}

// NewDirectoryVerifier creates a directory-backed verifier.
func NewDirectoryVerifier(baseURL string, timeout time.Duration) *DirectoryVerifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &DirectoryVerifier{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type directoryResponse struct {
	Bank   string `json:"bank"`
	Branch string `json:"branch"`
}

// Verify resolves a routing code to its bank and branch.
func (v *DirectoryVerifier) Verify(ctx context.Context, routingCode string) (*BankIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/"+routingCode, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}

	res, err := v.http.Do(req)
	if err != nil {
		return nil, faults.External("bank-directory", "CONNECTION_FAILED", 0, true, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return &BankIdentity{Valid: false}, nil
	case res.StatusCode != http.StatusOK:
		return nil, faults.External("bank-directory", "UNEXPECTED_STATUS", res.StatusCode,
			res.StatusCode >= 500, fmt.Errorf("directory returned %d", res.StatusCode))
	}

	var body directoryResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, faults.External("bank-directory", "BAD_RESPONSE", res.StatusCode, false, err)
	}

	return &BankIdentity{
		Valid:      true,
		BankName:   body.Bank,
		BranchName: body.Branch,
	}, nil
}

var _ Verifier = (*DirectoryVerifier)(nil)
