package handlers

import (
	"net/http"

	"github.com/01moynul/medbooks-golang/internal/middleware"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/01moynul/medbooks-golang/internal/orders"
	"github.com/gin-gonic/gin"
)

//
// --- Order Handlers ---
//

// CreateOrder is the handler for POST /v1/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input orders.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Place Order ---
	o, err := h.Orders.Create(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Send Success Response ---
	c.JSON(http.StatusCreated, o)
}

// GetOrders is the handler for GET /v1/orders (admin)
func (h *Handlers) GetOrders(c *gin.Context) {
	page, limit := pageParams(c)
	out, err := h.Orders.ListAll(c.Request.Context(), middleware.Principal(c), page, limit, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetMyOrders is the handler for GET /v1/orders/my-orders
func (h *Handlers) GetMyOrders(c *gin.Context) {
	page, limit := pageParams(c)
	out, err := h.Orders.ListMine(c.Request.Context(), middleware.Principal(c).UserID, page, limit, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetSellerOrders is the handler for GET /v1/orders/seller-orders
func (h *Handlers) GetSellerOrders(c *gin.Context) {
	page, limit := pageParams(c)
	out, err := h.Orders.ListSelling(c.Request.Context(), middleware.Principal(c).UserID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetOrderDetails is the handler for GET /v1/orders/:id
func (h *Handlers) GetOrderDetails(c *gin.Context) {
	o, err := h.Orders.Get(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// CancelOrder is the handler for PATCH /v1/orders/:id/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	o, err := h.Orders.Cancel(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled successfully", "order": o})
}

type UpdateOrderStatusInput struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// UpdateOrderStatus is the handler for PATCH /v1/orders/:id/status
// It moves a paid order to SHIPPED, then DELIVERED.
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input UpdateOrderStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	// 2. --- Apply Transition ---
	o, err := h.Orders.UpdateStatus(c.Request.Context(), middleware.Principal(c), c.Param("id"), input.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Send Response ---
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order": o})
}
