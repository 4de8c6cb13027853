package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TxDeposit      TransactionType = "DEPOSIT"
	TxWithdraw     TransactionType = "WITHDRAW"
	TxSaleIncome   TransactionType = "SALE_INCOME"
	TxOrderPayment TransactionType = "ORDER_PAYMENT"
	TxRefund       TransactionType = "REFUND"
	TxAdjustment   TransactionType = "ADJUSTMENT"
)

// Reference types link a ledger entry to the entity that caused it.
const (
	RefDeposit          = "DEPOSIT"
	RefWithdrawRequest  = "WITHDRAW_REQUEST"
	RefWithdrawRejected = "WITHDRAW_REJECTED"
	RefOrderItem        = "ORDER_ITEM"
	RefPaymentRefund    = "PAYMENT_REFUND"
)

// Wallet is the model for the 'wallets' table. One per user.
// Version counts the ledger entries applied to the wallet.
type Wallet struct {
	Base
	UserID   string          `json:"userId" gorm:"type:varchar(36);uniqueIndex;not null"`
	Balance  decimal.Decimal `json:"balance" gorm:"type:decimal(20,2);not null"`
	Currency string          `json:"currency" gorm:"size:8;not null"`
	Version  int64           `json:"-" gorm:"not null;default:0"`
}

// WalletTransaction is the model for the append-only 'wallet_transactions' table.
// (wallet_id, type, ref_type, ref_id) is unique: it is the idempotency key for credits.
type WalletTransaction struct {
	ID           string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	WalletID     string          `json:"walletId" gorm:"type:varchar(36);not null;uniqueIndex:ux_wallet_tx_ref,priority:1;uniqueIndex:ux_wallet_tx_seq,priority:1"`
	Seq          int64           `json:"seq" gorm:"not null;uniqueIndex:ux_wallet_tx_seq,priority:2"`
	Type         TransactionType `json:"type" gorm:"size:24;not null;uniqueIndex:ux_wallet_tx_ref,priority:2"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	BalanceAfter decimal.Decimal `json:"balanceAfter" gorm:"type:decimal(20,2);not null"`
	RefType      string          `json:"refType" gorm:"size:32;not null;uniqueIndex:ux_wallet_tx_ref,priority:3"`
	RefID        string          `json:"refId" gorm:"size:64;not null;uniqueIndex:ux_wallet_tx_ref,priority:4"`
	Meta         map[string]any  `json:"meta,omitempty" gorm:"serializer:json;type:text"`
	CreatedAt    time.Time       `json:"createdAt" gorm:"index"`
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// WalletWithRecent is the GET /wallet payload.
type WalletWithRecent struct {
	Wallet
	Transactions []WalletTransaction `json:"transactions"`
}
