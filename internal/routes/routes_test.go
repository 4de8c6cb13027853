package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/01moynul/medbooks-golang/internal/auth"
	"github.com/01moynul/medbooks-golang/internal/database/dbtest"
	"github.com/01moynul/medbooks-golang/internal/events"
	"github.com/01moynul/medbooks-golang/internal/handlers"
	"github.com/01moynul/medbooks-golang/internal/listings"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/01moynul/medbooks-golang/internal/orders"
	"github.com/01moynul/medbooks-golang/internal/review"
	"github.com/01moynul/medbooks-golang/internal/settlement"
	"github.com/01moynul/medbooks-golang/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type api struct {
	t      *testing.T
	router *gin.Engine
	issuer *auth.Issuer
	rec    *events.Recorder
	admin  models.User
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.Open(t)
	rec := &events.Recorder{}
	iss := auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	wallets := wallet.NewManager(db, rec, "IRR")

	h := &handlers.Handlers{
		DB:         db,
		Auth:       iss,
		Wallets:    wallets,
		Reviewer:   review.NewReviewer(wallets),
		Settlement: settlement.NewCoordinator(db, wallets, rec),
		Orders:     orders.NewService(db, decimal.NewFromInt(10)),
		Listings:   listings.NewService(db, "IRR"),
	}

	admin := models.User{Name: "Admin", Email: "admin@medbooks.test", PasswordHash: "x", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&admin).Error)

	return &api{t: t, router: SetupRouter(h, []string{"http://localhost:5173"}), issuer: iss, rec: rec, admin: admin}
}

func (a *api) adminToken() string {
	a.t.Helper()
	tok, err := a.issuer.GenerateToken(a.admin.ID, a.admin.Role)
	require.NoError(a.t, err)
	return tok
}

func (a *api) call(method, path, token string, body any, headers ...string) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (a *api) register(name, email string) (id, token string) {
	a.t.Helper()
	code, body := a.call(http.MethodPost, "/v1/auth/register", "", gin.H{"name": name, "email": email, "password": "correct horse"})
	require.Equal(a.t, http.StatusCreated, code, body)
	return body["user"].(map[string]any)["id"].(string), body["token"].(string)
}

func amount(t *testing.T, v any) string {
	t.Helper()
	d, err := decimal.NewFromString(v.(string))
	require.NoError(t, err)
	return d.StringFixed(2)
}

func TestMarketplaceFlow(t *testing.T) {
	a := newAPI(t)
	admin := a.adminToken()

	sellerID, seller := a.register("Dr. Seller", "seller@medbooks.test")
	_, buyer := a.register("Dr. Buyer", "buyer@medbooks.test")

	code, _ := a.call(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "buyer@medbooks.test", "password": "wrong password"})
	require.Equal(t, http.StatusUnauthorized, code)
	code, body := a.call(http.MethodPost, "/v1/auth/login", "", gin.H{"email": "BUYER@medbooks.test", "password": "correct horse"})
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, body["token"])

	// 1. Listing requires a verified seller, then moderation.
	listing := gin.H{"title": "Netter's Atlas of Human Anatomy", "edition": "7th", "condition": "GOOD", "price": "250000", "quantity": 2}
	code, _ = a.call(http.MethodPost, "/v1/listings", seller, listing)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = a.call(http.MethodPatch, "/v1/users/"+sellerID+"/verify-seller", seller, nil)
	require.Equal(t, http.StatusForbidden, code)
	code, _ = a.call(http.MethodPatch, "/v1/users/"+sellerID+"/verify-seller", admin, nil)
	require.Equal(t, http.StatusOK, code)
	// Verifying again is not a miss.
	code, _ = a.call(http.MethodPatch, "/v1/users/"+sellerID+"/verify-seller", admin, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = a.call(http.MethodPatch, "/v1/users/no-such-user/verify-seller", admin, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, body = a.call(http.MethodPost, "/v1/listings", seller, listing)
	require.Equal(t, http.StatusCreated, code, body)
	listingID := body["listing"].(map[string]any)["id"].(string)

	code, _ = a.call(http.MethodPatch, "/v1/listings/"+listingID+"/approve", seller, nil)
	require.Equal(t, http.StatusForbidden, code)
	code, _ = a.call(http.MethodPatch, "/v1/listings/"+listingID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, code)

	// 2. Order and payment.
	code, body = a.call(http.MethodPost, "/v1/orders", buyer, gin.H{"items": []gin.H{{"listingId": listingID, "quantity": 1}}})
	require.Equal(t, http.StatusCreated, code, body)
	orderID := body["id"].(string)
	require.Equal(t, "250000.00", amount(t, body["totalAmount"]))

	code, body = a.call(http.MethodPost, "/v1/payments", buyer, gin.H{"orderId": orderID, "gateway": "zarinpal", "amount": "250000"})
	require.Equal(t, http.StatusCreated, code, body)
	paymentID := body["id"].(string)

	code, _ = a.call(http.MethodPost, "/v1/payments", buyer, gin.H{"orderId": orderID, "amount": "250000"})
	require.Equal(t, http.StatusConflict, code)

	code, _ = a.call(http.MethodPatch, "/v1/payments/"+paymentID+"/success", buyer, nil)
	require.Equal(t, http.StatusForbidden, code)
	code, body = a.call(http.MethodPatch, "/v1/payments/"+paymentID+"/success", admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "SUCCEEDED", body["status"])
	code, body = a.call(http.MethodPatch, "/v1/payments/"+paymentID+"/success", admin, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Request has already been processed", body["error"])

	// 3. Seller payout is 250000 minus the 10% fee.
	code, body = a.call(http.MethodGet, "/v1/wallet", seller, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "225000.00", amount(t, body["balance"]))
	require.Len(t, body["transactions"], 1)

	// Fulfilment: the seller ships, the buyer confirms delivery.
	statusPath := "/v1/orders/" + orderID + "/status"
	code, _ = a.call(http.MethodPatch, statusPath, buyer, gin.H{"status": "SHIPPED"})
	require.Equal(t, http.StatusForbidden, code)
	code, _ = a.call(http.MethodPatch, statusPath, seller, gin.H{"status": "DELIVERED"})
	require.Equal(t, http.StatusBadRequest, code)
	code, body = a.call(http.MethodPatch, statusPath, seller, gin.H{"status": "SHIPPED"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "SHIPPED", body["order"].(map[string]any)["status"])
	code, body = a.call(http.MethodPatch, statusPath, buyer, gin.H{"status": "DELIVERED"})
	require.Equal(t, http.StatusOK, code, body)

	code, _ = a.call(http.MethodGet, "/v1/orders", buyer, nil)
	require.Equal(t, http.StatusForbidden, code)
	code, body = a.call(http.MethodGet, "/v1/orders?status=delivered", admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["data"], 1)
	code, body = a.call(http.MethodGet, "/v1/orders?status=created", admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, body["data"])

	// 4. Withdraw, reject, balance restored.
	code, body = a.call(http.MethodPost, "/v1/wallet/withdraw", seller, gin.H{"amount": "300000", "bankInfo": gin.H{"iban": "IR01"}})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Insufficient balance", body["error"])

	code, body = a.call(http.MethodPost, "/v1/wallet/withdraw", seller, gin.H{"amount": "100000", "bankInfo": `{"iban":"IR01"}`})
	require.Equal(t, http.StatusCreated, code, body)
	require.Equal(t, "125000.00", amount(t, body["newBalance"]))
	requestID := body["withdrawRequest"].(map[string]any)["id"].(string)

	code, _ = a.call(http.MethodGet, "/v1/wallet/withdraw-requests", seller, nil)
	require.Equal(t, http.StatusForbidden, code)
	code, body = a.call(http.MethodGet, "/v1/wallet/withdraw-requests", admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["data"], 1)

	processPath := "/v1/wallet/withdraw-requests/" + requestID + "/process"
	code, _ = a.call(http.MethodPatch, processPath, admin, gin.H{"adminNote": "missing decision"})
	require.Equal(t, http.StatusBadRequest, code)
	code, body = a.call(http.MethodPatch, processPath, admin, gin.H{"approved": false, "adminNote": "IBAN mismatch"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "REJECTED", body["status"])
	code, _ = a.call(http.MethodPatch, processPath, admin, gin.H{"approved": true})
	require.Equal(t, http.StatusBadRequest, code)

	code, body = a.call(http.MethodGet, "/v1/wallet/transactions?limit=2", seller, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["data"], 2)
	pagination := body["pagination"].(map[string]any)
	require.EqualValues(t, 3, pagination["total"])
	require.EqualValues(t, 2, pagination["pages"])

	// 5. Refund to the buyer.
	code, body = a.call(http.MethodPatch, "/v1/payments/"+paymentID+"/refund", admin, gin.H{"amount": "200000"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "REFUNDED", body["status"])
	code, body = a.call(http.MethodGet, "/v1/wallet", buyer, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "200000.00", amount(t, body["balance"]))

	code, body = a.call(http.MethodGet, "/v1/payments/stats", admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["total"])

	require.Len(t, a.rec.OfType(events.PaymentRefunded), 1)
}

func TestDepositIdempotencyOverHTTP(t *testing.T) {
	a := newAPI(t)
	_, user := a.register("Dr. Saver", "saver@medbooks.test")

	code, body := a.call(http.MethodPost, "/v1/wallet/deposit", user, gin.H{"amount": "500000", "paymentMethod": "card"}, "Idempotency-Key", "topup-1")
	require.Equal(t, http.StatusCreated, code, body)
	first := body["transaction"].(map[string]any)["id"]

	code, body = a.call(http.MethodPost, "/v1/wallet/deposit", user, gin.H{"amount": "500000", "paymentMethod": "card"}, "Idempotency-Key", "topup-1")
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, first, body["transaction"].(map[string]any)["id"])
	require.Equal(t, "500000.00", amount(t, body["newBalance"]))

	code, body = a.call(http.MethodPost, "/v1/wallet/deposit", user, gin.H{"amount": "-1"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Amount must be greater than zero", body["error"])

	code, body = a.call(http.MethodPost, "/v1/wallet/deposit", user, gin.H{"amount": "100.999"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Amount must have at most 2 decimal places", body["error"])
	code, body = a.call(http.MethodGet, "/v1/wallet", user, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "500000.00", amount(t, body["balance"]))
}

func TestUnauthenticatedAndPublicRoutes(t *testing.T) {
	a := newAPI(t)

	code, _ := a.call(http.MethodGet, "/v1/wallet", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := a.call(http.MethodGet, "/v1/ping", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "pong!", body["message"])

	code, _ = a.call(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = a.call(http.MethodGet, "/v1/wallet/transactions", a.adminToken(), nil)
	require.Equal(t, http.StatusNotFound, code)
}
