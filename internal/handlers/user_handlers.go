package handlers

import (
	"net/http"
	"strings"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/01moynul/medbooks-golang/internal/middleware"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// --- User Registration ---

// RegisterUserInput is separate from models.User because we never accept an
// id, role or verification flag from the client.
type RegisterUserInput struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register is the handler for POST /v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input RegisterUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Hash the Password ---
	var password models.Password
	if err := password.Set(input.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	// 3. --- Save to Database ---
	user := &models.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: password.Hash,
		Role:         models.RoleUser,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(user).Error; err != nil {
		respondError(c, apperr.FromDB(err, "User"))
		return
	}

	// 4. --- Issue Token ---
	token, err := h.Auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Log.Info("user registered", zap.String("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
		"token":   token,
	})
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login is the handler for POST /v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Find User ---
	// The same message is returned for unknown email and wrong password.
	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).
		Limit(1).Find(&user).Error
	if err != nil {
		respondError(c, err)
		return
	}
	if user.ID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	// 3. --- Check Password ---
	password := models.Password{Hash: user.PasswordHash}
	ok, err := password.Matches(input.Password)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	// 4. --- Issue Token ---
	token, err := h.Auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// VerifySeller is the handler for PATCH /v1/users/:id/verify-seller
func (h *Handlers) VerifySeller(c *gin.Context) {
	if err := authz.Require(middleware.Principal(c), authz.ListingsModerate); err != nil {
		respondError(c, err)
		return
	}
	db := h.DB.WithContext(c.Request.Context())

	// 1. --- Find User ---
	// Existence is checked up front: re-verifying changes no row.
	var user models.User
	if err := db.Where("id = ?", c.Param("id")).Limit(1).Find(&user).Error; err != nil {
		respondError(c, err)
		return
	}
	if user.ID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// 2. --- Mark Verified ---
	if err := db.Model(&user).Update("is_seller_verified", true).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Seller verified successfully", "user": user})
}
