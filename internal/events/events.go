// Package events publishes domain events (wallet movements, payment transitions)
// to an external broker after the owning database transaction has committed.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	WalletDeposited      = "wallet.deposited"
	WithdrawRequested    = "wallet.withdraw_requested"
	WithdrawApproved     = "wallet.withdraw_approved"
	WithdrawRejected     = "wallet.withdraw_rejected"
	PaymentSucceeded     = "payment.succeeded"
	PaymentFailed        = "payment.failed"
	PaymentRefunded      = "payment.refunded"
	SellerPayoutCredited = "wallet.payout_credited"
)

type Event struct {
	Type      string          `json:"type"`
	UserID    string          `json:"userId,omitempty"`
	Ref       string          `json:"ref"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Emit stamps and publishes e. Delivery failures are logged and swallowed:
// the money movement has already committed.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Log.Warn("event publish failed",
			zap.String("type", e.Type),
			zap.String("ref", e.Ref),
			zap.Error(err),
		)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(t string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
