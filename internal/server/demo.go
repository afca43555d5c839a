package server

import (
	"context"

	"github.com/google/uuid"
	"github.com/relfin/disburse/internal/bankcheck"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/rail"
)

// Demo-mode collaborators, used when the corresponding upstream is not
// configured. They keep the full pipeline exercisable on a laptop.

// demoUpstream serves a synthetic approved claim for any id.
type demoUpstream struct{}

func (d *demoUpstream) GetClaim(_ context.Context, claimID string) (*queue.Claim, error) {
	amount := 1000.0
	return &queue.Claim{
		ID:             claimID,
		OwnerID:        "owner-" + claimID,
		Scheme:         "reimbursement",
		Status:         "approved",
		ApprovedAmount: &amount,
	}, nil
}

func (d *demoUpstream) GetBankDetails(_ context.Context, ownerID string) (*queue.BankDetails, error) {
	return &queue.BankDetails{
		BeneficiaryName: "Demo Beneficiary",
		AccountNumber:   "0012345678",
		RoutingCode:     "DEMO0001234",
		BankName:        "Demo Bank",
		BranchName:      "Head Office",
	}, nil
}

// demoVerifier accepts any routing code the directory would consider
// well-formed.
type demoVerifier struct{}

func (d *demoVerifier) Verify(_ context.Context, routingCode string) (*bankcheck.BankIdentity, error) {
	if len(routingCode) != 11 {
		return &bankcheck.BankIdentity{Valid: false}, nil
	}
	return &bankcheck.BankIdentity{
		Valid:      true,
		BankName:   "Demo Bank",
		BranchName: "Head Office",
	}, nil
}

// localRail settles every payment locally with a deterministic reference.
// Same reference scheme as the rail client's idempotency key, so a later
// cutover to a real rail keeps references stable.
type localRail struct{}

func (r *localRail) SubmitPayment(_ context.Context, e *queue.Entry) (string, error) {
	return "LOCAL-" + rail.PaymentReference(e), nil
}

func (r *localRail) RegisterBatch(_ context.Context, batchID, _ string, _ float64, _ int) string {
	return "LOCAL-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(batchID)).String()
}
