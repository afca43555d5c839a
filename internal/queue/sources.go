package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relfin/disburse/internal/faults"
)

// UpstreamClient reads approved claims and beneficiary bank details from
// the claims application's HTTP API. It satisfies both ClaimSource and
// ProfileSource.
type UpstreamClient struct {
	baseURL string
	http    *http.Client
}

// NewUpstreamClient creates a claims API client.
func NewUpstreamClient(baseURL string, timeout time.Duration) *UpstreamClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UpstreamClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type claimResponse struct {
	ID             string   `json:"id"`
	OwnerID        string   `json:"ownerId"`
	Scheme         string   `json:"scheme"`
	Status         string   `json:"status"`
	ApprovedAmount *float64 `json:"approvedAmount"`
}

// GetClaim fetches one claim by id.
func (u *UpstreamClient) GetClaim(ctx context.Context, claimID string) (*Claim, error) {
	var resp claimResponse
	if err := u.getJSON(ctx, "/claims/"+claimID, "claim", claimID, &resp); err != nil {
		return nil, err
	}
	return &Claim{
		ID:             resp.ID,
		OwnerID:        resp.OwnerID,
		Scheme:         resp.Scheme,
		Status:         resp.Status,
		ApprovedAmount: resp.ApprovedAmount,
	}, nil
}

type bankDetailsResponse struct {
	BeneficiaryName string `json:"beneficiaryName"`
	AccountNumber   string `json:"accountNumber"`
	RoutingCode     string `json:"routingCode"`
	BankName        string `json:"bankName"`
	BranchName      string `json:"branchName"`
}

// GetBankDetails fetches a beneficiary's payout destination by owner id.
func (u *UpstreamClient) GetBankDetails(ctx context.Context, ownerID string) (*BankDetails, error) {
	var resp bankDetailsResponse
	if err := u.getJSON(ctx, "/profiles/"+ownerID+"/bank-details", "bank details", ownerID, &resp); err != nil {
		return nil, err
	}
	return &BankDetails{
		BeneficiaryName: resp.BeneficiaryName,
		AccountNumber:   resp.AccountNumber,
		RoutingCode:     resp.RoutingCode,
		BankName:        resp.BankName,
		BranchName:      resp.BranchName,
	}, nil
}

func (u *UpstreamClient) getJSON(ctx context.Context, path, kind, id string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build claims request: %w", err)
	}

	res, err := u.http.Do(req)
	if err != nil {
		return faults.External("claims", "CONNECTION_FAILED", 0, true, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return faults.NotFound(kind, id)
	case res.StatusCode != http.StatusOK:
		return faults.External("claims", "UNEXPECTED_STATUS", res.StatusCode,
			res.StatusCode >= 500, fmt.Errorf("claims API returned %d", res.StatusCode))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return faults.External("claims", "BAD_RESPONSE", res.StatusCode, false, err)
	}
	return nil
}

var (
	_ ClaimSource   = (*UpstreamClient)(nil)
	_ ProfileSource = (*UpstreamClient)(nil)
)
