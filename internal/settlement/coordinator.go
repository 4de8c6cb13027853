// Package settlement drives payments through their lifecycle:
//
//	PENDING -> SUCCEEDED -> REFUNDED
//	PENDING -> FAILED
//
// Each transition, the order status change and the resulting wallet
// movements commit together or not at all.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/events"
	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/01moynul/medbooks-golang/internal/metrics"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/01moynul/medbooks-golang/internal/orders"
	"github.com/01moynul/medbooks-golang/internal/wallet"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExpiredReason is recorded on payments failed by ExpireStale.
const ExpiredReason = "expired"

type Coordinator struct {
	db      *gorm.DB
	wallets *wallet.Manager
	events  events.Publisher
}

func NewCoordinator(db *gorm.DB, wallets *wallet.Manager, pub events.Publisher) *Coordinator {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Coordinator{db: db, wallets: wallets, events: pub}
}

type CreatePaymentInput struct {
	OrderID    string          `json:"orderId" binding:"required"`
	Gateway    string          `json:"gateway"`
	GatewayRef string          `json:"gatewayRef"`
	Amount     decimal.Decimal `json:"amount"`
}

type Stats struct {
	Total           int64            `json:"total"`
	ByStatus        map[string]int64 `json:"byStatus"`
	SucceededAmount decimal.Decimal  `json:"succeededAmount"`
	RefundedAmount  decimal.Decimal  `json:"refundedAmount"`
}

// CreatePayment opens a PENDING payment for an unpaid order owned by p.
// An order has at most one payment.
func (c *Coordinator) CreatePayment(ctx context.Context, p authz.Principal, in CreatePaymentInput) (*models.Payment, error) {
	payment := models.Payment{
		OrderID:    in.OrderID,
		Gateway:    strings.ToLower(strings.TrimSpace(in.Gateway)),
		GatewayRef: strings.TrimSpace(in.GatewayRef),
		Status:     models.PaymentPending,
	}
	if payment.Gateway == "" {
		payment.Gateway = "manual"
	}
	if payment.GatewayRef == "" {
		payment.GatewayRef = ulid.Make().String()
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. --- Check Order ---
		o, err := orders.Load(tx, in.OrderID)
		if err != nil {
			return err
		}
		if err := authz.OwnerOr(p, o.BuyerID, authz.PaymentsReadAll); err != nil {
			return err
		}
		if o.Status != models.OrderCreated {
			return apperr.BadRequest("Order is not awaiting payment")
		}
		if !in.Amount.Equal(o.TotalAmount) {
			return apperr.BadRequest(fmt.Sprintf("Payment amount must equal the order total of %s", o.TotalAmount.StringFixed(2)))
		}

		// 2. --- One Payment Per Order ---
		var existing int64
		if err := tx.Model(&models.Payment{}).Where("order_id = ?", o.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing payment: %w", err)
		}
		if existing > 0 {
			return apperr.ErrDuplicatePayment
		}

		payment.Amount = o.TotalAmount
		payment.Currency = o.Currency
		if err := tx.Omit("Order").Create(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.ErrDuplicatePayment
			}
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("gateway", payment.Gateway),
	)
	return &payment, nil
}

// ProcessSuccess marks the payment SUCCEEDED, the order PAID and credits every
// seller's payout, atomically.
func (c *Coordinator) ProcessSuccess(ctx context.Context, paymentID string) (*models.Payment, error) {
	var (
		out      models.Payment
		credited []models.WalletTransaction
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. --- Guarded Transition ---
		p, err := transition(tx, paymentID, models.PaymentPending, models.PaymentSucceeded, map[string]any{
			"paid_at": time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		// 2. --- Order -> PAID ---
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", p.OrderID, models.OrderCreated).
			Update("status", models.OrderPaid)
		if res.Error != nil {
			return fmt.Errorf("failed to mark order paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.BadRequest("Order is not awaiting payment")
		}

		// 3. --- Seller Payouts ---
		credited, err = c.wallets.CreditSellerPayout(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}

		return tx.Where("id = ?", paymentID).First(&out).Error
	})
	c.observe(models.PaymentSucceeded, err)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("payment succeeded",
		zap.String("payment_id", out.ID),
		zap.String("order_id", out.OrderID),
		zap.Int("payouts", len(credited)),
	)
	events.Emit(ctx, c.events, events.Event{
		Type:     events.PaymentSucceeded,
		Ref:      out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Data:     map[string]any{"orderId": out.OrderID},
	})
	for _, e := range credited {
		events.Emit(ctx, c.events, events.Event{
			Type:     events.SellerPayoutCredited,
			Ref:      e.RefID,
			Amount:   e.Amount,
			Currency: out.Currency,
			Data:     map[string]any{"walletId": e.WalletID, "orderId": out.OrderID},
		})
	}
	return &out, nil
}

// ProcessFailure marks the payment FAILED, cancels the order and returns its
// copies to stock. No wallet is touched.
func (c *Coordinator) ProcessFailure(ctx context.Context, paymentID string, reason *string) (*models.Payment, error) {
	var out models.Payment
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. --- Guarded Transition ---
		p, err := transition(tx, paymentID, models.PaymentPending, models.PaymentFailed, map[string]any{
			"failure_reason": reason,
		})
		if err != nil {
			return err
		}

		// 2. --- Cancel Order & Release Stock ---
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", p.OrderID, models.OrderCreated).
			Update("status", models.OrderCancelled)
		if res.Error != nil {
			return fmt.Errorf("failed to cancel order: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			o, err := orders.Load(tx, p.OrderID)
			if err != nil {
				return err
			}
			if err := orders.RestoreStock(tx, o); err != nil {
				return err
			}
		}

		return tx.Where("id = ?", paymentID).First(&out).Error
	})
	c.observe(models.PaymentFailed, err)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("payment failed", zap.String("payment_id", out.ID), zap.String("order_id", out.OrderID))
	events.Emit(ctx, c.events, events.Event{
		Type:     events.PaymentFailed,
		Ref:      out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Data:     map[string]any{"orderId": out.OrderID},
	})
	return &out, nil
}

// RefundPayment refunds a SUCCEEDED payment to the buyer's wallet. amount
// defaults to the full payment amount and may not exceed it.
func (c *Coordinator) RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*models.Payment, error) {
	var (
		out   models.Payment
		buyer string
		total decimal.Decimal
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. --- Load & Validate ---
		var p models.Payment
		if err := tx.Where("id = ?", paymentID).First(&p).Error; err != nil {
			return apperr.FromDB(err, "Payment")
		}
		if p.Status != models.PaymentSucceeded {
			return apperr.ErrAlreadyProcessed
		}
		total = p.Amount
		if amount != nil {
			if !models.WholeCents(*amount) {
				return apperr.ErrSubCentAmount
			}
			total = *amount
		}
		if !total.IsPositive() || total.GreaterThan(p.Amount) {
			return apperr.BadRequest("Refund amount must be greater than zero and at most the payment amount")
		}

		// 2. --- Guarded Transition ---
		if _, err := transition(tx, paymentID, models.PaymentSucceeded, models.PaymentRefunded, map[string]any{
			"refunded_amount": total,
		}); err != nil {
			return err
		}

		// 3. --- Order -> REFUNDED ---
		o, err := orders.Load(tx, p.OrderID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", o.ID).Update("status", models.OrderRefunded).Error; err != nil {
			return fmt.Errorf("failed to mark order refunded: %w", err)
		}
		buyer = o.BuyerID

		// 4. --- Credit Buyer ---
		if _, err := c.wallets.RefundToWallet(ctx, tx, o.BuyerID, total, p.ID); err != nil {
			return err
		}

		return tx.Where("id = ?", paymentID).First(&out).Error
	})
	c.observe(models.PaymentRefunded, err)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("payment refunded",
		zap.String("payment_id", out.ID),
		zap.String("buyer_id", buyer),
		zap.String("amount", total.StringFixed(2)),
	)
	events.Emit(ctx, c.events, events.Event{
		Type:     events.PaymentRefunded,
		UserID:   buyer,
		Ref:      out.ID,
		Amount:   total,
		Currency: out.Currency,
		Data:     map[string]any{"orderId": out.OrderID},
	})
	return &out, nil
}

// ExpireStale fails every PENDING payment created more than ttl ago and
// reports how many it failed.
func (c *Coordinator) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	var ids []string
	err := c.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentPending, cutoff).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find stale payments: %w", err)
	}

	reason := ExpiredReason
	expired := 0
	for _, id := range ids {
		if _, err := c.ProcessFailure(ctx, id, &reason); err != nil {
			if errors.Is(err, apperr.ErrAlreadyProcessed) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		logger.Log.Info("stale payments expired", zap.Int("count", expired))
	}
	return expired, nil
}

// Get returns the payment to the order's buyer or to a reader of all payments.
func (c *Coordinator) Get(ctx context.Context, p authz.Principal, id string) (*models.Payment, error) {
	var pay models.Payment
	if err := c.db.WithContext(ctx).Preload("Order").Where("id = ?", id).First(&pay).Error; err != nil {
		return nil, apperr.FromDB(err, "Payment")
	}
	if err := c.checkOwner(p, &pay); err != nil {
		return nil, err
	}
	return &pay, nil
}

func (c *Coordinator) GetByOrder(ctx context.Context, p authz.Principal, orderID string) (*models.Payment, error) {
	var pay models.Payment
	if err := c.db.WithContext(ctx).Preload("Order").Where("order_id = ?", orderID).First(&pay).Error; err != nil {
		return nil, apperr.FromDB(err, "Payment")
	}
	if err := c.checkOwner(p, &pay); err != nil {
		return nil, err
	}
	return &pay, nil
}

// ListMine pages through payments for the buyer's orders, newest first.
func (c *Coordinator) ListMine(ctx context.Context, buyerID string, page, limit int) (models.Page[models.Payment], error) {
	db := c.db.WithContext(ctx)
	sub := db.Model(&models.Order{}).Select("id").Where("buyer_id = ?", buyerID)
	return listPayments(db.Model(&models.Payment{}).Where("order_id IN (?)", sub), models.NewPageRequest(page, limit))
}

// ListAll pages through every payment. status and gateway may be empty.
func (c *Coordinator) ListAll(ctx context.Context, p authz.Principal, page, limit int, status, gateway string) (models.Page[models.Payment], error) {
	if err := authz.Require(p, authz.PaymentsReadAll); err != nil {
		return models.Page[models.Payment]{}, err
	}
	q := c.db.WithContext(ctx).Model(&models.Payment{})
	if status != "" {
		q = q.Where("status = ?", strings.ToUpper(status))
	}
	if gateway != "" {
		q = q.Where("gateway = ?", strings.ToLower(gateway))
	}
	return listPayments(q, models.NewPageRequest(page, limit))
}

// Stats summarizes payments by status with succeeded and refunded totals.
func (c *Coordinator) Stats(ctx context.Context, p authz.Principal) (*Stats, error) {
	if err := authz.Require(p, authz.PaymentsReadAll); err != nil {
		return nil, err
	}
	db := c.db.WithContext(ctx)

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Payment{}).Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	out := &Stats{ByStatus: map[string]int64{}}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
		out.Total += r.Count
	}

	// Totals are summed here so decimal precision does not depend on the driver.
	var settled []models.Payment
	err := db.Select("amount", "refunded_amount", "status").
		Where("status IN ?", []models.PaymentStatus{models.PaymentSucceeded, models.PaymentRefunded}).
		Find(&settled).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	for _, s := range settled {
		if s.Status == models.PaymentSucceeded {
			out.SucceededAmount = out.SucceededAmount.Add(s.Amount)
		}
		out.RefundedAmount = out.RefundedAmount.Add(s.RefundedAmount)
	}
	return out, nil
}

func (c *Coordinator) checkOwner(p authz.Principal, pay *models.Payment) error {
	owner := ""
	if pay.Order != nil {
		owner = pay.Order.BuyerID
	}
	return authz.OwnerOr(p, owner, authz.PaymentsReadAll)
}

func (c *Coordinator) observe(to models.PaymentStatus, err error) {
	if err == nil {
		metrics.SettlementTransitions.WithLabelValues(string(to)).Inc()
	}
	metrics.Observe("payment_"+strings.ToLower(string(to)), err)
}

// transition moves a payment from one status to another with a status-guarded
// update and returns the payment as it was before the change.
func transition(tx *gorm.DB, id string, from, to models.PaymentStatus, extra map[string]any) (*models.Payment, error) {
	var p models.Payment
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, apperr.FromDB(err, "Payment")
	}
	if p.Status != from {
		return nil, apperr.ErrAlreadyProcessed
	}

	fields := map[string]any{"status": to}
	for k, v := range extra {
		fields[k] = v
	}
	res := tx.Model(&models.Payment{}).Where("id = ? AND status = ?", id, from).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ErrAlreadyProcessed
	}
	return &p, nil
}

func listPayments(q *gorm.DB, req models.PageRequest) (models.Page[models.Payment], error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return models.Page[models.Payment]{}, fmt.Errorf("failed to count payments: %w", err)
	}
	var rows []models.Payment
	if err := q.Order("created_at DESC").Offset(req.Offset()).Limit(req.Limit).Find(&rows).Error; err != nil {
		return models.Page[models.Payment]{}, fmt.Errorf("failed to list payments: %w", err)
	}
	return models.NewPage(rows, req, total), nil
}
