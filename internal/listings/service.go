// Package listings manages sellers' textbook listings and their moderation.
package listings

import (
	"context"
	"fmt"
	"strings"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var conditions = map[string]bool{
	"NEW":       true,
	"LIKE_NEW":  true,
	"GOOD":      true,
	"FAIR":      true,
	"POOR":      true,
	"ANNOTATED": true,
}

type Service struct {
	db       *gorm.DB
	currency string
}

func NewService(db *gorm.DB, defaultCurrency string) *Service {
	return &Service{db: db, currency: defaultCurrency}
}

type CreateInput struct {
	Title     string          `json:"title" binding:"required"`
	Author    string          `json:"author"`
	Edition   string          `json:"edition"`
	Condition string          `json:"condition" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Status   string
	SellerID string
}

// Create opens a PENDING listing. Only verified sellers may list.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*models.Listing, error) {
	// 1. --- Check Seller ---
	if err := authz.Require(p, authz.ListingsSell); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var seller models.User
	if err := db.Where("id = ?", p.UserID).First(&seller).Error; err != nil {
		return nil, apperr.FromDB(err, "User")
	}
	if !seller.IsSellerVerified {
		return nil, apperr.Forbidden("Only verified sellers can create listings")
	}

	// 2. --- Validate Input ---
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.BadRequest("Title is required")
	}
	condition := strings.ToUpper(strings.TrimSpace(in.Condition))
	if !conditions[condition] {
		return nil, apperr.BadRequest("Invalid condition")
	}
	if !in.Price.IsPositive() {
		return nil, apperr.BadRequest("Price must be greater than zero")
	}
	if !models.WholeCents(in.Price) {
		return nil, apperr.BadRequest("Price must have at most 2 decimal places")
	}
	if in.Quantity <= 0 {
		return nil, apperr.BadRequest("Quantity must be greater than zero")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}

	// 3. --- Insert ---
	l := models.Listing{
		SellerID:  p.UserID,
		Title:     title,
		Slug:      makeSlug(title, in.Edition),
		Author:    strings.TrimSpace(in.Author),
		Edition:   strings.TrimSpace(in.Edition),
		Condition: condition,
		Price:     in.Price,
		Currency:  currency,
		Quantity:  in.Quantity,
		Status:    models.ListingPending,
	}
	if err := db.Create(&l).Error; err != nil {
		return nil, apperr.FromDB(err, "Listing")
	}
	logger.Log.Info("listing created", zap.String("listing_id", l.ID), zap.String("seller_id", l.SellerID))
	return &l, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		return nil, apperr.FromDB(err, "Listing")
	}
	return &l, nil
}

// List pages through listings, newest first. Callers who cannot moderate only
// see APPROVED listings, except their own.
func (s *Service) List(ctx context.Context, p authz.Principal, f Filter, page, limit int) (models.Page[models.Listing], error) {
	req := models.NewPageRequest(page, limit)
	q := s.db.WithContext(ctx).Model(&models.Listing{})

	status := models.ListingStatus(strings.ToUpper(f.Status))
	switch status {
	case "", models.ListingPending, models.ListingApproved, models.ListingRejected, models.ListingSoldOut:
	default:
		return models.Page[models.Listing]{}, apperr.BadRequest("Invalid status filter")
	}
	ownView := f.SellerID != "" && f.SellerID == p.UserID
	if !p.Can(authz.ListingsModerate) && !ownView {
		status = models.ListingApproved
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return models.Page[models.Listing]{}, fmt.Errorf("failed to count listings: %w", err)
	}
	var rows []models.Listing
	if err := q.Order("created_at DESC").Offset(req.Offset()).Limit(req.Limit).Find(&rows).Error; err != nil {
		return models.Page[models.Listing]{}, fmt.Errorf("failed to list listings: %w", err)
	}
	return models.NewPage(rows, req, total), nil
}

func (s *Service) Approve(ctx context.Context, p authz.Principal, id string) (*models.Listing, error) {
	return s.moderate(ctx, p, id, models.ListingApproved, nil)
}

func (s *Service) Reject(ctx context.Context, p authz.Principal, id string, reason string) (*models.Listing, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.BadRequest("A rejection reason is required")
	}
	return s.moderate(ctx, p, id, models.ListingRejected, &reason)
}

// moderate moves a PENDING listing to its final status with a guarded update.
func (s *Service) moderate(ctx context.Context, p authz.Principal, id string, to models.ListingStatus, note *string) (*models.Listing, error) {
	if err := authz.Require(p, authz.ListingsModerate); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	res := db.Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, models.ListingPending).
		Updates(map[string]any{"status": to, "admin_note": note})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to moderate listing: %w", res.Error)
	}

	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, apperr.BadRequest("Listing is not pending approval")
	}
	logger.Log.Info("listing moderated",
		zap.String("listing_id", id),
		zap.String("admin_id", p.UserID),
		zap.String("status", string(to)),
	)
	return l, nil
}

// makeSlug builds a URL slug that stays unique across listings of the same title.
func makeSlug(title, edition string) string {
	base := slug.Make(strings.TrimSpace(title + " " + edition))
	if base == "" {
		base = "listing"
	}
	return base + "-" + uuid.NewString()[:8]
}
