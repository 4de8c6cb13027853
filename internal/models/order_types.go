package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderPaid      OrderStatus = "PAID"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// Order is the model for the 'orders' table
type Order struct {
	Base
	BuyerID        string          `json:"buyerId" gorm:"type:varchar(36);index;not null"`
	Status         OrderStatus     `json:"status" gorm:"size:16;index;not null"`
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:decimal(20,2);not null"`
	ShippingAmount decimal.Decimal `json:"shippingAmount" gorm:"type:decimal(20,2);not null"`
	PlatformFee    decimal.Decimal `json:"platformFee" gorm:"type:decimal(20,2);not null"`
	TotalAmount    decimal.Decimal `json:"totalAmount" gorm:"type:decimal(20,2);not null"`
	Currency       string          `json:"currency" gorm:"size:8;not null"`
	PlacedAt       time.Time       `json:"placedAt" gorm:"index"`

	Items   []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	Payment *Payment    `json:"payment,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem is the model for the 'order_items' table.
// The price split is computed once at order creation and never recalculated:
// LineTotal = UnitPrice * Quantity and SellerPayout + PlatformFee = LineTotal.
type OrderItem struct {
	Base
	OrderID      string          `json:"orderId" gorm:"type:varchar(36);index;not null"`
	ListingID    string          `json:"listingId" gorm:"type:varchar(36);index;not null"`
	SellerID     string          `json:"sellerId" gorm:"type:varchar(36);index;not null"`
	Quantity     int             `json:"quantity" gorm:"not null"`
	UnitPrice    decimal.Decimal `json:"unitPrice" gorm:"type:decimal(20,2);not null"`
	LineTotal    decimal.Decimal `json:"lineTotal" gorm:"type:decimal(20,2);not null"`
	SellerPayout decimal.Decimal `json:"sellerPayout" gorm:"type:decimal(20,2);not null"`
	PlatformFee  decimal.Decimal `json:"platformFee" gorm:"type:decimal(20,2);not null"`
	FeePercent   decimal.Decimal `json:"feePercent" gorm:"type:decimal(5,2);not null"`

	Listing *Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
}
