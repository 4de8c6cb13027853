package handlers

import (
	"net/http"

	"github.com/01moynul/medbooks-golang/internal/listings"
	"github.com/01moynul/medbooks-golang/internal/middleware"
	"github.com/gin-gonic/gin"
)

//
// --- Listing Handlers ---
//

// CreateListing is the handler for POST /v1/listings
func (h *Handlers) CreateListing(c *gin.Context) {
	var input listings.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	l, err := h.Listings.Create(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Listing submitted and awaiting approval",
		"listing": l,
	})
}

// GetListings is the handler for GET /v1/listings
func (h *Handlers) GetListings(c *gin.Context) {
	page, limit := pageParams(c)
	f := listings.Filter{Status: c.Query("status"), SellerID: c.Query("sellerId")}
	out, err := h.Listings.List(c.Request.Context(), middleware.Principal(c), f, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetListing is the handler for GET /v1/listings/:id
func (h *Handlers) GetListing(c *gin.Context) {
	l, err := h.Listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// ApproveListing is the handler for PATCH /v1/listings/:id/approve
// It changes a listing's status from PENDING to APPROVED.
func (h *Handlers) ApproveListing(c *gin.Context) {
	l, err := h.Listings.Approve(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Listing approved successfully", "listing": l})
}

// RejectListingInput defines the JSON input for rejecting a listing.
type RejectListingInput struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectListing is the handler for PATCH /v1/listings/:id/reject
func (h *Handlers) RejectListing(c *gin.Context) {
	var input RejectListingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	l, err := h.Listings.Reject(c.Request.Context(), middleware.Principal(c), c.Param("id"), input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Listing rejected successfully", "listing": l})
}
