// Package review is the admin-facing entry point for withdraw request decisions.
package review

import (
	"context"

	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/01moynul/medbooks-golang/internal/wallet"
)

type Decision struct {
	Approved  bool
	AdminNote *string
}

type Reviewer struct {
	wallets *wallet.Manager
}

func NewReviewer(w *wallet.Manager) *Reviewer {
	return &Reviewer{wallets: w}
}

// Process applies d to the request on behalf of p.
func (r *Reviewer) Process(ctx context.Context, p authz.Principal, requestID string, d Decision) (*models.WithdrawRequest, error) {
	if err := authz.Require(p, authz.WithdrawalsReview); err != nil {
		return nil, err
	}
	return r.wallets.ProcessWithdrawRequest(ctx, p.UserID, requestID, d.Approved, d.AdminNote)
}

// Pending lists requests for the review queue. status defaults to PENDING.
func (r *Reviewer) Pending(ctx context.Context, p authz.Principal, page, limit int, status string) (models.Page[models.WithdrawRequest], error) {
	if err := authz.Require(p, authz.WithdrawalsReview); err != nil {
		return models.Page[models.WithdrawRequest]{}, err
	}
	if status == "" {
		status = string(models.WithdrawPending)
	}
	return r.wallets.ListWithdrawRequests(ctx, page, limit, status)
}
