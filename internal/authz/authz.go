// Package authz implements capability-based authorization. Roles grant a fixed
// capability set; every operation declares the capabilities it needs and
// ownership checks go through OwnerOr.
package authz

import (
	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/models"
)

type Capability string

const (
	WalletUse         Capability = "wallet:use"
	WithdrawalsReview Capability = "withdrawals:review"
	PaymentsSettle    Capability = "payments:settle"
	PaymentsReadAll   Capability = "payments:read_all"
	OrdersPlace       Capability = "orders:place"
	OrdersReadAll     Capability = "orders:read_all"
	ListingsSell      Capability = "listings:sell"
	ListingsModerate  Capability = "listings:moderate"
)

var grants = map[models.Role]map[Capability]bool{
	models.RoleUser: {
		WalletUse:    true,
		OrdersPlace:  true,
		ListingsSell: true,
	},
	models.RoleAdmin: {
		WalletUse:         true,
		WithdrawalsReview: true,
		PaymentsSettle:    true,
		PaymentsReadAll:   true,
		OrdersPlace:       true,
		OrdersReadAll:     true,
		ListingsSell:      true,
		ListingsModerate:  true,
	},
}

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID string
	Role   models.Role
}

func (p Principal) Can(c Capability) bool {
	return grants[p.Role][c]
}

// Require fails with Forbidden unless p holds every capability in caps.
func Require(p Principal, caps ...Capability) error {
	for _, c := range caps {
		if !p.Can(c) {
			return apperr.Forbidden("Access denied: missing capability " + string(c))
		}
	}
	return nil
}

// OwnerOr passes when p owns the resource or holds the override capability.
func OwnerOr(p Principal, ownerID string, override Capability) error {
	if p.UserID != "" && p.UserID == ownerID {
		return nil
	}
	if p.Can(override) {
		return nil
	}
	return apperr.Forbidden("You do not have access to this resource")
}
