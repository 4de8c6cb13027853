package handlers

import (
	"net/http"

	"github.com/01moynul/medbooks-golang/internal/middleware"
	"github.com/01moynul/medbooks-golang/internal/settlement"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//
// --- Payment Handlers ---
//

// CreatePayment is the handler for POST /v1/payments
func (h *Handlers) CreatePayment(c *gin.Context) {
	var input settlement.CreatePaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Settlement.CreatePayment(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetPayments is the handler for GET /v1/payments (admin)
func (h *Handlers) GetPayments(c *gin.Context) {
	page, limit := pageParams(c)
	out, err := h.Settlement.ListAll(c.Request.Context(), middleware.Principal(c), page, limit, c.Query("status"), c.Query("gateway"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetMyPayments is the handler for GET /v1/payments/my-payments
func (h *Handlers) GetMyPayments(c *gin.Context) {
	page, limit := pageParams(c)
	out, err := h.Settlement.ListMine(c.Request.Context(), middleware.Principal(c).UserID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetPaymentStats is the handler for GET /v1/payments/stats (admin)
func (h *Handlers) GetPaymentStats(c *gin.Context) {
	stats, err := h.Settlement.Stats(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetPaymentByOrder is the handler for GET /v1/payments/order/:orderId
func (h *Handlers) GetPaymentByOrder(c *gin.Context) {
	p, err := h.Settlement.GetByOrder(c.Request.Context(), middleware.Principal(c), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetPayment is the handler for GET /v1/payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	p, err := h.Settlement.Get(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// MarkPaymentSuccess is the handler for PATCH /v1/payments/:id/success
func (h *Handlers) MarkPaymentSuccess(c *gin.Context) {
	p, err := h.Settlement.ProcessSuccess(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type PaymentFailureInput struct {
	Reason *string `json:"reason"`
}

// MarkPaymentFailure is the handler for PATCH /v1/payments/:id/failure
func (h *Handlers) MarkPaymentFailure(c *gin.Context) {
	var input PaymentFailureInput
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	p, err := h.Settlement.ProcessFailure(c.Request.Context(), c.Param("id"), input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type RefundInput struct {
	Amount *decimal.Decimal `json:"amount"`
}

// RefundPayment is the handler for PATCH /v1/payments/:id/refund
func (h *Handlers) RefundPayment(c *gin.Context) {
	var input RefundInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	p, err := h.Settlement.RefundPayment(c.Request.Context(), c.Param("id"), input.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
