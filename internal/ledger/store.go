// Package ledger owns the wallets and their append-only transaction log.
// Append is the only code path that changes a balance.
package ledger

import (
	"errors"
	"fmt"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/metrics"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateEntry is returned by Append when the wallet already holds an
// entry with the same type and reference. The existing entry is returned with it.
var ErrDuplicateEntry = apperr.Conflict("Wallet transaction already recorded")

// Entry describes one balance movement. Amount is signed: credits are positive.
type Entry struct {
	Type    models.TransactionType
	Amount  decimal.Decimal
	RefType string
	RefID   string
	Meta    map[string]any
}

// GetOrCreate returns the user's wallet, creating an empty one in currency
// when none exists. Concurrent first calls converge on the same row.
func GetOrCreate(tx *gorm.DB, userID, currency string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Where("user_id = ?", userID).Limit(1).Find(&w).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if w.ID != "" {
		return &w, nil
	}

	fresh := models.Wallet{UserID: userID, Balance: decimal.Zero, Currency: currency}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	if err := tx.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, apperr.FromDB(err, "Wallet")
	}
	return &w, nil
}

// LockByUser is GetOrCreate followed by SELECT ... FOR UPDATE on the wallet row.
// The lock is held until tx ends.
func LockByUser(tx *gorm.DB, userID, currency string) (*models.Wallet, error) {
	w, err := GetOrCreate(tx, userID, currency)
	if err != nil {
		return nil, err
	}
	var locked models.Wallet
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", w.ID).
		First(&locked).Error
	if err != nil {
		return nil, apperr.FromDB(err, "Wallet")
	}
	return &locked, nil
}

// FindEntry looks up an entry by its idempotency key. It returns nil, nil when absent.
// The read is a locking read so that under REPEATABLE READ it sees entries
// committed after the transaction's snapshot was taken.
func FindEntry(tx *gorm.DB, walletID string, txType models.TransactionType, refType, refID string) (*models.WalletTransaction, error) {
	var found []models.WalletTransaction
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Where("wallet_id = ? AND type = ? AND ref_type = ? AND ref_id = ?", walletID, txType, refType, refID).
		Limit(1).
		Find(&found).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet transaction: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// Append records e against w and moves the balance. w must have been locked
// in tx by LockByUser; it is updated in place on success.
func Append(tx *gorm.DB, w *models.Wallet, e Entry) (*models.WalletTransaction, error) {
	// 1. --- Validate Amount ---
	amount := e.Amount
	if amount.IsZero() {
		return nil, apperr.BadRequest("Amount must be non-zero")
	}
	if !models.WholeCents(amount) {
		return nil, apperr.ErrSubCentAmount
	}

	// 2. --- Idempotency Check ---
	existing, err := FindEntry(tx, w.ID, e.Type, e.RefType, e.RefID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrDuplicateEntry
	}

	// 3. --- Balance Check ---
	newBalance := w.Balance.Add(amount)
	if newBalance.IsNegative() {
		return nil, apperr.ErrInsufficientBalance
	}

	// 4. --- Insert Entry ---
	entry := models.WalletTransaction{
		WalletID:     w.ID,
		Seq:          w.Version + 1,
		Type:         e.Type,
		Amount:       amount,
		BalanceAfter: newBalance,
		RefType:      e.RefType,
		RefID:        e.RefID,
		Meta:         e.Meta,
	}
	if existing, err := insertEntry(tx, &entry); err != nil {
		return existing, err
	}

	// 5. --- Move Balance ---
	res := tx.Model(&models.Wallet{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		Updates(map[string]any{"balance": newBalance, "version": w.Version + 1})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update wallet balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("wallet %s was modified without holding its lock", w.ID)
	}

	w.Balance = newBalance
	w.Version++
	metrics.LedgerEntries.WithLabelValues(string(e.Type)).Inc()
	return &entry, nil
}

// insertEntry inserts entry under a savepoint. On a unique violation it rolls
// back to the savepoint, which keeps tx usable on PostgreSQL, and returns the
// entry already holding the reference together with ErrDuplicateEntry.
func insertEntry(tx *gorm.DB, entry *models.WalletTransaction) (*models.WalletTransaction, error) {
	const savepoint = "ledger_append"
	if err := tx.SavePoint(savepoint).Error; err != nil {
		return nil, fmt.Errorf("failed to open savepoint: %w", err)
	}
	err := tx.Create(entry).Error
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("failed to add wallet transaction: %w", err)
	}
	if err := tx.RollbackTo(savepoint).Error; err != nil {
		return nil, fmt.Errorf("failed to roll back to savepoint: %w", err)
	}

	existing, err := FindEntry(tx, entry.WalletID, entry.Type, entry.RefType, entry.RefID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// The seq was taken, not the reference.
		return nil, fmt.Errorf("wallet %s: seq %d already recorded", entry.WalletID, entry.Seq)
	}
	return existing, ErrDuplicateEntry
}

// ListTransactions returns one page of the wallet's history, newest first.
func ListTransactions(db *gorm.DB, walletID string, req models.PageRequest) (models.Page[models.WalletTransaction], error) {
	var total int64
	if err := db.Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID).Count(&total).Error; err != nil {
		return models.Page[models.WalletTransaction]{}, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	var rows []models.WalletTransaction
	err := db.Where("wallet_id = ?", walletID).
		Order("seq DESC").
		Offset(req.Offset()).
		Limit(req.Limit).
		Find(&rows).Error
	if err != nil {
		return models.Page[models.WalletTransaction]{}, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return models.NewPage(rows, req, total), nil
}

// Recent returns the n newest entries.
func Recent(db *gorm.DB, walletID string, n int) ([]models.WalletTransaction, error) {
	rows := []models.WalletTransaction{}
	err := db.Where("wallet_id = ?", walletID).Order("seq DESC").Limit(n).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent wallet transactions: %w", err)
	}
	return rows, nil
}

// Replay recomputes the balance from zero in entry order and checks every
// balance_after, the entry count and the stored balance against it.
func Replay(db *gorm.DB, walletID string) error {
	var w models.Wallet
	if err := db.Where("id = ?", walletID).First(&w).Error; err != nil {
		return apperr.FromDB(err, "Wallet")
	}

	var rows []models.WalletTransaction
	if err := db.Where("wallet_id = ?", walletID).Order("seq ASC").Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load wallet transactions: %w", err)
	}

	running := decimal.Zero
	for i, t := range rows {
		if t.Seq != int64(i+1) {
			return fmt.Errorf("wallet %s: entry %s has seq %d, want %d", walletID, t.ID, t.Seq, i+1)
		}
		running = running.Add(t.Amount)
		if !running.Equal(t.BalanceAfter) {
			return fmt.Errorf("wallet %s: entry %d balance_after %s, replay gives %s",
				walletID, t.Seq, t.BalanceAfter.StringFixed(2), running.StringFixed(2))
		}
	}
	if int64(len(rows)) != w.Version {
		return fmt.Errorf("wallet %s: version %d but %d entries", walletID, w.Version, len(rows))
	}
	if !running.Equal(w.Balance) {
		return fmt.Errorf("wallet %s: balance %s, replay gives %s",
			walletID, w.Balance.StringFixed(2), running.StringFixed(2))
	}
	return nil
}
