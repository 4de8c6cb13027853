package models

import "github.com/shopspring/decimal"

type ListingStatus string

const (
	ListingPending  ListingStatus = "PENDING"
	ListingApproved ListingStatus = "APPROVED"
	ListingRejected ListingStatus = "REJECTED"
	ListingSoldOut  ListingStatus = "SOLD_OUT"
)

// Listing is the model for the 'listings' table: one seller's copies of a textbook edition.
type Listing struct {
	Base
	SellerID  string          `json:"sellerId" gorm:"type:varchar(36);index;not null"`
	Title     string          `json:"title" gorm:"size:255;not null"`
	Slug      string          `json:"slug" gorm:"size:300;uniqueIndex;not null"`
	Author    string          `json:"author,omitempty" gorm:"size:255"`
	Edition   string          `json:"edition,omitempty" gorm:"size:64"`
	Condition string          `json:"condition" gorm:"size:32;not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(20,2);not null"`
	Currency  string          `json:"currency" gorm:"size:8;not null"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	Status    ListingStatus   `json:"status" gorm:"size:16;index;not null"`
	AdminNote *string         `json:"adminNote,omitempty" gorm:"type:text"`
}
