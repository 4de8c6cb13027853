package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawStatus string

const (
	WithdrawPending  WithdrawStatus = "PENDING"
	WithdrawApproved WithdrawStatus = "APPROVED"
	WithdrawRejected WithdrawStatus = "REJECTED"
)

// WithdrawRequest is the model for the 'withdraw_requests' table.
// PENDING moves to APPROVED or REJECTED exactly once.
type WithdrawRequest struct {
	Base
	UserID     string          `json:"userId" gorm:"type:varchar(36);index;not null"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency   string          `json:"currency" gorm:"size:8;not null"`
	BankInfo   map[string]any  `json:"bankInfo" gorm:"serializer:json;type:text"`
	Status     WithdrawStatus  `json:"status" gorm:"size:16;index;not null"`
	ReviewedBy *string         `json:"reviewedBy,omitempty" gorm:"type:varchar(36)"`
	AdminNote  *string         `json:"adminNote,omitempty" gorm:"type:text"`
	ReviewedAt *time.Time      `json:"reviewedAt,omitempty"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
