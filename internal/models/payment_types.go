package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Payment is the model for the 'payments' table. At most one per order.
type Payment struct {
	Base
	OrderID        string          `json:"orderId" gorm:"type:varchar(36);uniqueIndex;not null"`
	Gateway        string          `json:"gateway" gorm:"size:32;index;not null"`
	GatewayRef     string          `json:"gatewayRef" gorm:"size:128;not null"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Currency       string          `json:"currency" gorm:"size:8;not null"`
	Status         PaymentStatus   `json:"status" gorm:"size:16;index;not null"`
	RefundedAmount decimal.Decimal `json:"refundedAmount" gorm:"type:decimal(20,2);not null;default:0"`
	FailureReason  *string         `json:"failureReason,omitempty" gorm:"type:text"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`

	Order *Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}
