// Package orders places and reads buyer orders. The per-item fee split is
// computed here once, at placement, and never recalculated.
package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	db         *gorm.DB
	feePercent decimal.Decimal
}

func NewService(db *gorm.DB, feePercent decimal.Decimal) *Service {
	return &Service{db: db, feePercent: feePercent}
}

type ItemInput struct {
	ListingID string `json:"listingId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type CreateInput struct {
	Items          []ItemInput     `json:"items" binding:"required,min=1,dive"`
	ShippingAmount decimal.Decimal `json:"shippingAmount"`
}

// FeeSplit divides a line total into the platform fee and the seller payout.
// fee is rounded to cents; fee + payout == lineTotal always holds.
func FeeSplit(lineTotal, percent decimal.Decimal) (fee, payout decimal.Decimal) {
	fee = lineTotal.Mul(percent).Div(hundred).Round(2)
	return fee, lineTotal.Sub(fee)
}

// Create places an order for p, reserving the requested copies.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*models.Order, error) {
	// 1. --- Validate Input ---
	if err := authz.Require(p, authz.OrdersPlace); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, apperr.BadRequest("An order needs at least one item")
	}
	if in.ShippingAmount.IsNegative() {
		return nil, apperr.BadRequest("Shipping amount cannot be negative")
	}
	if !models.WholeCents(in.ShippingAmount) {
		return nil, apperr.ErrSubCentAmount
	}
	items := append([]ItemInput(nil), in.Items...)
	seen := map[string]bool{}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, apperr.BadRequest("Quantity must be greater than zero")
		}
		if seen[it.ListingID] {
			return nil, apperr.BadRequest("Each listing may appear only once per order")
		}
		seen[it.ListingID] = true
	}
	// Listings are locked in id order.
	sort.Slice(items, func(i, j int) bool { return items[i].ListingID < items[j].ListingID })

	order := models.Order{
		BuyerID:        p.UserID,
		Status:         models.OrderCreated,
		ShippingAmount: in.ShippingAmount,
		PlacedAt:       time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. --- Reserve Copies & Price Each Line ---
		lines := make([]models.OrderItem, 0, len(items))
		for _, it := range items {
			var l models.Listing
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", it.ListingID).First(&l).Error
			if err != nil {
				return apperr.FromDB(err, "Listing")
			}
			if l.Status != models.ListingApproved {
				return apperr.BadRequest(fmt.Sprintf("Listing %q is not available for sale", l.Title))
			}
			if l.SellerID == p.UserID {
				return apperr.BadRequest("You cannot buy your own listing")
			}
			if order.Currency == "" {
				order.Currency = l.Currency
			} else if order.Currency != l.Currency {
				return apperr.BadRequest("All items in an order must share one currency")
			}

			res := tx.Model(&models.Listing{}).
				Where("id = ? AND quantity >= ?", l.ID, it.Quantity).
				Update("quantity", gorm.Expr("quantity - ?", it.Quantity))
			if res.Error != nil {
				return fmt.Errorf("failed to reserve listing: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return apperr.BadRequest(fmt.Sprintf("Not enough copies of %q available", l.Title))
			}
			err = tx.Model(&models.Listing{}).
				Where("id = ? AND quantity = 0 AND status = ?", l.ID, models.ListingApproved).
				Update("status", models.ListingSoldOut).Error
			if err != nil {
				return fmt.Errorf("failed to mark listing sold out: %w", err)
			}

			lineTotal := l.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
			fee, payout := FeeSplit(lineTotal, s.feePercent)
			lines = append(lines, models.OrderItem{
				ListingID:    l.ID,
				SellerID:     l.SellerID,
				Quantity:     it.Quantity,
				UnitPrice:    l.Price,
				LineTotal:    lineTotal,
				SellerPayout: payout,
				PlatformFee:  fee,
				FeePercent:   s.feePercent,
			})
			order.Subtotal = order.Subtotal.Add(lineTotal)
			order.PlatformFee = order.PlatformFee.Add(fee)
		}
		order.TotalAmount = order.Subtotal.Add(order.ShippingAmount)

		// 3. --- Persist Order ---
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("failed to save order items: %w", err)
		}
		order.Items = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", order.BuyerID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	return &order, nil
}

// Load reads an order with its items inside tx.
func Load(tx *gorm.DB, id string) (*models.Order, error) {
	var o models.Order
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("seller_id ASC, id ASC")
	}).Where("id = ?", id).First(&o).Error
	if err != nil {
		return nil, apperr.FromDB(err, "Order")
	}
	return &o, nil
}

// Get returns the order to its buyer, a seller of one of its items, or an admin.
func (s *Service) Get(ctx context.Context, p authz.Principal, id string) (*models.Order, error) {
	db := s.db.WithContext(ctx)
	o, err := Load(db.Preload("Payment").Preload("Items.Listing"), id)
	if err != nil {
		return nil, err
	}
	if o.BuyerID == p.UserID || p.Can(authz.OrdersReadAll) || sells(o, p.UserID) {
		return o, nil
	}
	return nil, apperr.Forbidden("You do not have access to this order")
}

// ListMine pages through the buyer's orders, newest first.
func (s *Service) ListMine(ctx context.Context, buyerID string, page, limit int, status string) (models.Page[models.Order], error) {
	q := s.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID)
	if status != "" {
		q = q.Where("status = ?", strings.ToUpper(status))
	}
	return listOrders(q, models.NewPageRequest(page, limit))
}

// ListAll is the admin view over every order, optionally filtered by status.
func (s *Service) ListAll(ctx context.Context, p authz.Principal, page, limit int, status string) (models.Page[models.Order], error) {
	if err := authz.Require(p, authz.OrdersReadAll); err != nil {
		return models.Page[models.Order]{}, err
	}
	q := s.db.WithContext(ctx).Model(&models.Order{})
	if status != "" {
		st := models.OrderStatus(strings.ToUpper(status))
		if !validStatus[st] {
			return models.Page[models.Order]{}, apperr.BadRequest("Invalid status filter")
		}
		q = q.Where("status = ?", st)
	}
	return listOrders(q, models.NewPageRequest(page, limit))
}

var validStatus = map[models.OrderStatus]bool{
	models.OrderCreated:   true,
	models.OrderPaid:      true,
	models.OrderShipped:   true,
	models.OrderDelivered: true,
	models.OrderCancelled: true,
	models.OrderRefunded:  true,
}

// ListSelling pages through orders containing at least one of the seller's items.
func (s *Service) ListSelling(ctx context.Context, sellerID string, page, limit int) (models.Page[models.Order], error) {
	db := s.db.WithContext(ctx)
	sub := db.Model(&models.OrderItem{}).Select("order_id").Where("seller_id = ?", sellerID)
	q := db.Model(&models.Order{}).Where("id IN (?)", sub)
	return listOrders(q, models.NewPageRequest(page, limit))
}

func listOrders(q *gorm.DB, req models.PageRequest) (models.Page[models.Order], error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return models.Page[models.Order]{}, fmt.Errorf("failed to count orders: %w", err)
	}
	var rows []models.Order
	err := q.Preload("Items").Order("placed_at DESC").Offset(req.Offset()).Limit(req.Limit).Find(&rows).Error
	if err != nil {
		return models.Page[models.Order]{}, fmt.Errorf("failed to list orders: %w", err)
	}
	return models.NewPage(rows, req, total), nil
}

// Cancel cancels an unpaid order, returns its copies to stock and fails any
// pending payment for it.
func (s *Service) Cancel(ctx context.Context, p authz.Principal, id string) (*models.Order, error) {
	var out *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. --- Load & Authorize ---
		o, err := Load(tx, id)
		if err != nil {
			return err
		}
		if err := authz.OwnerOr(p, o.BuyerID, authz.OrdersReadAll); err != nil {
			return err
		}

		// 2. --- Guarded Status Transition ---
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, models.OrderCreated).
			Update("status", models.OrderCancelled)
		if res.Error != nil {
			return fmt.Errorf("failed to cancel order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.BadRequest("Only unpaid orders can be cancelled")
		}

		// 3. --- Release Stock & Pending Payment ---
		if err := RestoreStock(tx, o); err != nil {
			return err
		}
		err = tx.Model(&models.Payment{}).
			Where("order_id = ? AND status = ?", id, models.PaymentPending).
			Updates(map[string]any{"status": models.PaymentFailed, "failure_reason": "order cancelled"}).Error
		if err != nil {
			return fmt.Errorf("failed to fail pending payment: %w", err)
		}

		out, err = Load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("order cancelled", zap.String("order_id", id), zap.String("by", p.UserID))
	return out, nil
}

// RestoreStock returns every item's quantity to its listing. A SOLD_OUT
// listing goes back on sale.
func RestoreStock(tx *gorm.DB, o *models.Order) error {
	for _, it := range o.Items {
		err := tx.Model(&models.Listing{}).
			Where("id = ?", it.ListingID).
			Update("quantity", gorm.Expr("quantity + ?", it.Quantity)).Error
		if err != nil {
			return fmt.Errorf("failed to restore listing quantity: %w", err)
		}
		err = tx.Model(&models.Listing{}).
			Where("id = ? AND status = ? AND quantity > 0", it.ListingID, models.ListingSoldOut).
			Update("status", models.ListingApproved).Error
		if err != nil {
			return fmt.Errorf("failed to reopen listing: %w", err)
		}
	}
	return nil
}

// fulfilment lists the forward steps an order takes after payment.
var fulfilment = map[models.OrderStatus]models.OrderStatus{
	models.OrderShipped:   models.OrderPaid,
	models.OrderDelivered: models.OrderShipped,
}

// UpdateStatus moves a paid order along PAID -> SHIPPED -> DELIVERED.
// Sellers of the order (or admins) ship it; the buyer may also confirm delivery.
func (s *Service) UpdateStatus(ctx context.Context, p authz.Principal, id string, to models.OrderStatus) (*models.Order, error) {
	to = models.OrderStatus(strings.ToUpper(string(to)))
	from, ok := fulfilment[to]
	if !ok {
		return nil, apperr.BadRequest("Status must be SHIPPED or DELIVERED")
	}

	var out *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. --- Load & Authorize ---
		o, err := Load(tx, id)
		if err != nil {
			return err
		}
		allowed := p.Can(authz.OrdersReadAll) || sells(o, p.UserID) ||
			(to == models.OrderDelivered && o.BuyerID == p.UserID)
		if !allowed {
			return apperr.Forbidden("You cannot update this order")
		}

		// 2. --- Guarded Status Transition ---
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if res.Error != nil {
			return fmt.Errorf("failed to update order status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.BadRequest(fmt.Sprintf("Order must be %s to become %s", from, to))
		}

		out, err = Load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("order status updated",
		zap.String("order_id", id),
		zap.String("status", string(to)),
		zap.String("by", p.UserID),
	)
	return out, nil
}

func sells(o *models.Order, userID string) bool {
	for _, it := range o.Items {
		if it.SellerID == userID {
			return true
		}
	}
	return false
}
