package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/01moynul/medbooks-golang/internal/auth"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(iss *auth.Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:5173"}))
	g := r.Group("/", AuthMiddleware(iss))
	g.GET("/me", func(c *gin.Context) {
		p := Principal(c)
		c.JSON(http.StatusOK, gin.H{"id": p.UserID, "role": p.Role})
	})
	g.GET("/admin", Require(authz.WithdrawalsReview), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAndCapabilities(t *testing.T) {
	iss := auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	r := newRouter(iss)

	userTok, err := iss.GenerateToken("user-1", models.RoleUser)
	require.NoError(t, err)
	adminTok, err := iss.GenerateToken("admin-1", models.RoleAdmin)
	require.NoError(t, err)

	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "garbage").Code)

	w := do(r, http.MethodGet, "/me", userTok)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"id":"user-1","role":"USER"}`, w.Body.String())
	require.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	require.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", userTok).Code)
	require.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/admin", adminTok).Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour))

	w := do(r, http.MethodOptions, "/me", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	req := httptest.NewRequest(http.MethodOptions, "/me", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
