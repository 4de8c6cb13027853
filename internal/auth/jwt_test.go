package auth

import (
	"testing"
	"time"

	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)

	tok, err := iss.GenerateToken("user-1", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := iss.ValidateToken(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, models.RoleAdmin, claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)

	expired, err := NewIssuer(secret, -time.Minute).GenerateToken("user-1", models.RoleUser)
	require.NoError(t, err)
	_, err = iss.ValidateToken(expired)
	require.Error(t, err)

	foreign, err := NewIssuer("another-secret-another-secret-xx", time.Hour).GenerateToken("user-1", models.RoleUser)
	require.NoError(t, err)
	_, err = iss.ValidateToken(foreign)
	require.Error(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "ROOT",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = iss.ValidateToken(badRole)
	require.Error(t, err)

	_, err = iss.ValidateToken("not-a-token")
	require.Error(t, err)
}
