package handlers

import (
	"strconv"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/auth"
	"github.com/01moynul/medbooks-golang/internal/listings"
	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/01moynul/medbooks-golang/internal/orders"
	"github.com/01moynul/medbooks-golang/internal/review"
	"github.com/01moynul/medbooks-golang/internal/settlement"
	"github.com/01moynul/medbooks-golang/internal/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB         *gorm.DB
	Auth       *auth.Issuer
	Wallets    *wallet.Manager
	Reviewer   *review.Reviewer
	Settlement *settlement.Coordinator
	Orders     *orders.Service
	Listings   *listings.Service
}

// respondError writes err as {"error": message} with its mapped status.
// Unclassified errors are logged and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

// pageParams reads ?page and ?limit. Bad values fall back to the defaults.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}
