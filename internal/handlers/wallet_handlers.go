package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/01moynul/medbooks-golang/internal/middleware"
	"github.com/01moynul/medbooks-golang/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//
// --- Wallet HTTP Handlers ---
//

// GetMyWallet is the handler for GET /v1/wallet
// It returns the wallet (created on first access) and its last transactions.
func (h *Handlers) GetMyWallet(c *gin.Context) {
	// 1. --- Get User ID ---
	p := middleware.Principal(c)

	// 2. --- Load Wallet ---
	w, err := h.Wallets.GetOrCreateWallet(c.Request.Context(), p.UserID, c.Query("currency"))
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. --- Send Response ---
	c.JSON(http.StatusOK, w)
}

// GetWalletTransactions is the handler for GET /v1/wallet/transactions
func (h *Handlers) GetWalletTransactions(c *gin.Context) {
	p := middleware.Principal(c)
	page, limit := pageParams(c)

	out, err := h.Wallets.Transactions(c.Request.Context(), p.UserID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type DepositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
}

// Deposit is the handler for POST /v1/wallet/deposit
// A retried request carrying the same Idempotency-Key header is not credited twice.
func (h *Handlers) Deposit(c *gin.Context) {
	// 1. --- Get User ID ---
	p := middleware.Principal(c)

	// 2. --- Bind JSON ---
	var input DepositRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid deposit request"})
		return
	}

	// 3. --- Apply Deposit ---
	res, err := h.Wallets.Deposit(c.Request.Context(), p.UserID, wallet.DepositInput{
		Amount:         input.Amount,
		Currency:       input.Currency,
		PaymentMethod:  input.PaymentMethod,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// 4. --- Send Response ---
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"message":     "Deposit successful",
		"transaction": res.Transaction,
		"newBalance":  res.NewBalance,
	})
}

type WithdrawRequestInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	// BankInfo is accepted either as a JSON object or as a string holding one.
	BankInfo json.RawMessage `json:"bankInfo"`
}

// Withdraw is the handler for POST /v1/wallet/withdraw
func (h *Handlers) Withdraw(c *gin.Context) {
	// 1. --- Get User ID ---
	p := middleware.Principal(c)

	// 2. --- Bind JSON ---
	var input WithdrawRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid withdraw request"})
		return
	}
	bankInfo := strings.TrimSpace(string(input.BankInfo))
	if strings.HasPrefix(bankInfo, `"`) {
		var s string
		if err := json.Unmarshal(input.BankInfo, &s); err == nil {
			bankInfo = s
		}
	}

	// 3. --- Debit & Open Request ---
	res, err := h.Wallets.Withdraw(c.Request.Context(), p.UserID, wallet.WithdrawInput{
		Amount:   input.Amount,
		Currency: input.Currency,
		BankInfo: bankInfo,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// 4. --- Send Success Response ---
	c.JSON(http.StatusCreated, gin.H{
		"message":         "Withdraw request submitted. The amount has been deducted from your balance and is pending review.",
		"withdrawRequest": res.WithdrawRequest,
		"transaction":     res.Transaction,
		"newBalance":      res.NewBalance,
	})
}

// GetMyWithdrawRequests is the handler for GET /v1/wallet/my-withdraw-requests
func (h *Handlers) GetMyWithdrawRequests(c *gin.Context) {
	p := middleware.Principal(c)
	page, limit := pageParams(c)

	out, err := h.Wallets.MyWithdrawRequests(c.Request.Context(), p.UserID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
