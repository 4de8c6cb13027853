// Package wallet implements the balance-changing operations: deposits,
// withdrawals and their review, seller payouts and refunds. Every operation
// runs in one database transaction with the affected wallet rows locked.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/events"
	"github.com/01moynul/medbooks-golang/internal/ledger"
	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/01moynul/medbooks-golang/internal/metrics"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecentLimit is the number of transactions returned with the wallet.
const RecentLimit = 10

type Manager struct {
	db       *gorm.DB
	events   events.Publisher
	currency string
}

func NewManager(db *gorm.DB, pub events.Publisher, defaultCurrency string) *Manager {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Manager{db: db, events: pub, currency: defaultCurrency}
}

type DepositInput struct {
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
}

type DepositResult struct {
	Transaction *models.WalletTransaction `json:"transaction"`
	NewBalance  decimal.Decimal           `json:"newBalance"`
	// Replayed is set when the idempotency key matched an earlier deposit.
	Replayed bool `json:"-"`
}

type WithdrawInput struct {
	Amount   decimal.Decimal
	Currency string
	// BankInfo is the raw JSON object supplied by the client.
	BankInfo string
}

type WithdrawResult struct {
	WithdrawRequest *models.WithdrawRequest   `json:"withdrawRequest"`
	Transaction     *models.WalletTransaction `json:"transaction"`
	NewBalance      decimal.Decimal           `json:"newBalance"`
}

// GetOrCreateWallet returns the user's wallet with its latest transactions.
// An empty currency means the configured default.
func (m *Manager) GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.WalletWithRecent, error) {
	if currency == "" {
		currency = m.currency
	}
	out := &models.WalletWithRecent{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := ledger.GetOrCreate(tx, userID, currency)
		if err != nil {
			return err
		}
		recent, err := ledger.Recent(tx, w.ID, RecentLimit)
		if err != nil {
			return err
		}
		out.Wallet = *w
		out.Transactions = recent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transactions returns one page of the user's wallet history. A user who never
// opened a wallet gets NotFound.
func (m *Manager) Transactions(ctx context.Context, userID string, page, limit int) (models.Page[models.WalletTransaction], error) {
	db := m.db.WithContext(ctx)
	var w models.Wallet
	if err := db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return models.Page[models.WalletTransaction]{}, apperr.FromDB(err, "Wallet")
	}
	return ledger.ListTransactions(db, w.ID, models.NewPageRequest(page, limit))
}

// Deposit credits the wallet. With an idempotency key, a retry returns the
// original transaction instead of crediting twice.
func (m *Manager) Deposit(ctx context.Context, userID string, in DepositInput) (res *DepositResult, err error) {
	defer func() { metrics.Observe("deposit", err) }()

	// 1. --- Validate Input ---
	if !in.Amount.IsPositive() {
		return nil, apperr.BadRequest("Amount must be greater than zero")
	}
	if !models.WholeCents(in.Amount) {
		return nil, apperr.ErrSubCentAmount
	}
	refID := strings.TrimSpace(in.IdempotencyKey)
	if refID == "" {
		refID = ulid.Make().String()
	}
	if len(refID) > 64 {
		return nil, apperr.BadRequest("Idempotency key must be at most 64 characters")
	}

	// 2. --- Apply Credit ---
	res = &DepositResult{}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := m.lock(tx, userID, in.Currency)
		if err != nil {
			return err
		}
		meta := map[string]any{}
		if in.PaymentMethod != "" {
			meta["paymentMethod"] = in.PaymentMethod
		}
		entry, err := ledger.Append(tx, w, ledger.Entry{
			Type:    models.TxDeposit,
			Amount:  in.Amount,
			RefType: models.RefDeposit,
			RefID:   refID,
			Meta:    meta,
		})
		if errors.Is(err, ledger.ErrDuplicateEntry) && entry != nil {
			if !entry.Amount.Equal(in.Amount) {
				return apperr.Conflict("Idempotency key was already used for a different amount")
			}
			res.Transaction, res.NewBalance, res.Replayed = entry, w.Balance, true
			return nil
		}
		if err != nil {
			return err
		}
		res.Transaction, res.NewBalance = entry, w.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 3. --- Publish ---
	if !res.Replayed {
		logger.Log.Info("wallet deposit applied",
			zap.String("user_id", userID),
			zap.String("amount", res.Transaction.Amount.StringFixed(2)),
			zap.String("ref", refID),
		)
		events.Emit(ctx, m.events, events.Event{
			Type:   events.WalletDeposited,
			UserID: userID,
			Ref:    res.Transaction.ID,
			Amount: res.Transaction.Amount,
		})
	}
	return res, nil
}

// Withdraw debits the wallet immediately and opens a PENDING withdraw request.
// A rejected request is credited back by ProcessWithdrawRequest.
func (m *Manager) Withdraw(ctx context.Context, userID string, in WithdrawInput) (res *WithdrawResult, err error) {
	defer func() { metrics.Observe("withdraw", err) }()

	// 1. --- Validate Input ---
	if !in.Amount.IsPositive() {
		return nil, apperr.BadRequest("Amount must be greater than zero")
	}
	if !models.WholeCents(in.Amount) {
		return nil, apperr.ErrSubCentAmount
	}
	bankInfo, err := parseBankInfo(in.BankInfo)
	if err != nil {
		return nil, err
	}
	amount := in.Amount

	res = &WithdrawResult{}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. --- Lock Wallet & Check Balance ---
		w, err := m.lock(tx, userID, in.Currency)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return apperr.ErrInsufficientBalance
		}

		// 3. --- Create Withdraw Request ---
		req := models.WithdrawRequest{
			UserID:   userID,
			Amount:   amount,
			Currency: w.Currency,
			BankInfo: bankInfo,
			Status:   models.WithdrawPending,
		}
		if err := tx.Create(&req).Error; err != nil {
			return fmt.Errorf("failed to create withdraw request: %w", err)
		}

		// 4. --- Debit Wallet ---
		entry, err := ledger.Append(tx, w, ledger.Entry{
			Type:    models.TxWithdraw,
			Amount:  amount.Neg(),
			RefType: models.RefWithdrawRequest,
			RefID:   req.ID,
			Meta:    map[string]any{"withdrawRequestId": req.ID},
		})
		if err != nil {
			return err
		}

		res.WithdrawRequest, res.Transaction, res.NewBalance = &req, entry, w.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("withdraw requested",
		zap.String("user_id", userID),
		zap.String("request_id", res.WithdrawRequest.ID),
		zap.String("amount", amount.StringFixed(2)),
	)
	events.Emit(ctx, m.events, events.Event{
		Type:     events.WithdrawRequested,
		UserID:   userID,
		Ref:      res.WithdrawRequest.ID,
		Amount:   amount,
		Currency: res.WithdrawRequest.Currency,
	})
	return res, nil
}

// ProcessWithdrawRequest moves a PENDING request to APPROVED or REJECTED.
// Rejection credits the full amount back in the same transaction. A request
// that is not PENDING fails with ErrAlreadyProcessed.
func (m *Manager) ProcessWithdrawRequest(ctx context.Context, adminID, requestID string, approved bool, adminNote *string) (out *models.WithdrawRequest, err error) {
	defer func() { metrics.Observe("process_withdraw", err) }()

	status := models.WithdrawRejected
	if approved {
		status = models.WithdrawApproved
	}

	out = &models.WithdrawRequest{}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. --- Load Request ---
		var req models.WithdrawRequest
		if err := tx.Where("id = ?", requestID).First(&req).Error; err != nil {
			return apperr.FromDB(err, "Withdraw request")
		}
		if req.Status != models.WithdrawPending {
			return apperr.ErrAlreadyProcessed
		}

		// 2. --- Guarded Status Transition ---
		now := time.Now().UTC()
		upd := tx.Model(&models.WithdrawRequest{}).
			Where("id = ? AND status = ?", requestID, models.WithdrawPending).
			Updates(map[string]any{
				"status":      status,
				"reviewed_by": adminID,
				"admin_note":  adminNote,
				"reviewed_at": now,
			})
		if upd.Error != nil {
			return fmt.Errorf("failed to update withdraw request: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.ErrAlreadyProcessed
		}

		// 3. --- Compensating Credit ---
		if !approved {
			w, err := ledger.LockByUser(tx, req.UserID, req.Currency)
			if err != nil {
				return err
			}
			_, err = ledger.Append(tx, w, ledger.Entry{
				Type:    models.TxAdjustment,
				Amount:  req.Amount,
				RefType: models.RefWithdrawRejected,
				RefID:   req.ID,
				Meta:    map[string]any{"withdrawRequestId": req.ID, "reason": "withdraw rejected"},
			})
			if err != nil {
				return err
			}
		}

		return tx.Where("id = ?", requestID).First(out).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("withdraw request processed",
		zap.String("request_id", requestID),
		zap.String("admin_id", adminID),
		zap.String("status", string(status)),
	)
	evType := events.WithdrawRejected
	if approved {
		evType = events.WithdrawApproved
	}
	events.Emit(ctx, m.events, events.Event{
		Type:     evType,
		UserID:   out.UserID,
		Ref:      out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
	})
	return out, nil
}

// CreditSellerPayout credits every item's seller payout of the order. It must
// run inside the caller's transaction. Sellers are locked in ascending id order
// and items already credited are skipped, so a repeated call credits nothing.
func (m *Manager) CreditSellerPayout(ctx context.Context, tx *gorm.DB, orderID string) ([]models.WalletTransaction, error) {
	// 1. --- Load Order Items ---
	var order models.Order
	if err := tx.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, apperr.FromDB(err, "Order")
	}
	var items []models.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SellerID != items[j].SellerID {
			return items[i].SellerID < items[j].SellerID
		}
		return items[i].ID < items[j].ID
	})

	// 2. --- Credit Each Seller ---
	credited := []models.WalletTransaction{}
	wallets := map[string]*models.Wallet{}
	for _, item := range items {
		if !item.SellerPayout.IsPositive() {
			continue
		}
		w, ok := wallets[item.SellerID]
		if !ok {
			var err error
			w, err = ledger.LockByUser(tx, item.SellerID, order.Currency)
			if err != nil {
				return nil, err
			}
			wallets[item.SellerID] = w
		}
		entry, err := ledger.Append(tx, w, ledger.Entry{
			Type:    models.TxSaleIncome,
			Amount:  item.SellerPayout,
			RefType: models.RefOrderItem,
			RefID:   item.ID,
			Meta: map[string]any{
				"orderId":     orderID,
				"itemId":      item.ID,
				"platformFee": item.PlatformFee.StringFixed(2),
			},
		})
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			continue
		}
		if err != nil {
			return nil, err
		}
		credited = append(credited, *entry)
	}
	return credited, nil
}

// RefundToWallet credits a refunded payment to the buyer inside the caller's
// transaction. A second call for the same payment returns the first entry.
func (m *Manager) RefundToWallet(ctx context.Context, tx *gorm.DB, buyerID string, amount decimal.Decimal, paymentID string) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.BadRequest("Refund amount must be greater than zero")
	}
	if !models.WholeCents(amount) {
		return nil, apperr.ErrSubCentAmount
	}
	w, err := ledger.LockByUser(tx.WithContext(ctx), buyerID, m.currency)
	if err != nil {
		return nil, err
	}
	entry, err := ledger.Append(tx, w, ledger.Entry{
		Type:    models.TxRefund,
		Amount:  amount,
		RefType: models.RefPaymentRefund,
		RefID:   paymentID,
		Meta:    map[string]any{"paymentId": paymentID},
	})
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		return entry, nil
	}
	return entry, err
}

// ListWithdrawRequests is the admin queue, oldest first. status may be empty.
func (m *Manager) ListWithdrawRequests(ctx context.Context, page, limit int, status string) (models.Page[models.WithdrawRequest], error) {
	q := m.db.WithContext(ctx).Model(&models.WithdrawRequest{})
	if status != "" {
		s := models.WithdrawStatus(strings.ToUpper(status))
		if s != models.WithdrawPending && s != models.WithdrawApproved && s != models.WithdrawRejected {
			return models.Page[models.WithdrawRequest]{}, apperr.BadRequest("Invalid status filter")
		}
		q = q.Where("status = ?", s)
	}
	return listWithdrawRequests(q, models.NewPageRequest(page, limit), "created_at ASC", true)
}

// MyWithdrawRequests lists the user's own requests, newest first.
func (m *Manager) MyWithdrawRequests(ctx context.Context, userID string, page, limit int) (models.Page[models.WithdrawRequest], error) {
	q := m.db.WithContext(ctx).Model(&models.WithdrawRequest{}).Where("user_id = ?", userID)
	return listWithdrawRequests(q, models.NewPageRequest(page, limit), "created_at DESC", false)
}

func listWithdrawRequests(q *gorm.DB, req models.PageRequest, order string, withUser bool) (models.Page[models.WithdrawRequest], error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return models.Page[models.WithdrawRequest]{}, fmt.Errorf("failed to count withdraw requests: %w", err)
	}
	if withUser {
		q = q.Preload("User")
	}
	var rows []models.WithdrawRequest
	if err := q.Order(order).Offset(req.Offset()).Limit(req.Limit).Find(&rows).Error; err != nil {
		return models.Page[models.WithdrawRequest]{}, fmt.Errorf("failed to list withdraw requests: %w", err)
	}
	return models.NewPage(rows, req, total), nil
}

// lock locks the user's wallet, creating it in the requested (or default)
// currency. A request in a different currency than an existing wallet is rejected.
func (m *Manager) lock(tx *gorm.DB, userID, currency string) (*models.Wallet, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	create := currency
	if create == "" {
		create = m.currency
	}
	w, err := ledger.LockByUser(tx, userID, create)
	if err != nil {
		return nil, err
	}
	if currency != "" && currency != w.Currency {
		return nil, apperr.BadRequest(fmt.Sprintf("Currency mismatch: wallet is held in %s", w.Currency))
	}
	return w, nil
}

func parseBankInfo(raw string) (map[string]any, error) {
	var info map[string]any
	if err := json.Unmarshal([]byte(raw), &info); err != nil || info == nil {
		return nil, apperr.BadRequest("Bank info must be a valid JSON object")
	}
	return info, nil
}
