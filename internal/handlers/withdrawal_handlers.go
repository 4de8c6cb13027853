package handlers

import (
	"net/http"

	"github.com/01moynul/medbooks-golang/internal/middleware"
	"github.com/01moynul/medbooks-golang/internal/review"
	"github.com/gin-gonic/gin"
)

//
// --- Admin: Withdraw Request Handlers ---
//

// GetWithdrawRequests is the handler for GET /v1/wallet/withdraw-requests
// It lists PENDING requests unless ?status asks for another state.
func (h *Handlers) GetWithdrawRequests(c *gin.Context) {
	page, limit := pageParams(c)
	out, err := h.Reviewer.Pending(c.Request.Context(), middleware.Principal(c), page, limit, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type ProcessWithdrawInput struct {
	Approved  *bool   `json:"approved" binding:"required"`
	AdminNote *string `json:"adminNote"`
}

// ProcessWithdrawRequest is the handler for PATCH /v1/wallet/withdraw-requests/:id/process
func (h *Handlers) ProcessWithdrawRequest(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input ProcessWithdrawInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approved must be true or false"})
		return
	}

	// 2. --- Apply Decision ---
	req, err := h.Reviewer.Process(c.Request.Context(), middleware.Principal(c), c.Param("id"), review.Decision{
		Approved:  *input.Approved,
		AdminNote: input.AdminNote,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Send Response ---
	c.JSON(http.StatusOK, req)
}
