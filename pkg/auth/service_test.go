package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyToken_Valid(t *testing.T) {
	svc := NewService(testSecret, zap.NewNop())
	signed := signToken(t, testSecret, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Tables: []string{"customers", "orders"},
	})

	claims, err := svc.VerifyToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"customers", "orders"}, claims.Tables)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	svc := NewService(testSecret, zap.NewNop())
	signed := signToken(t, "other-secret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})

	_, err := svc.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_Expired(t *testing.T) {
	svc := NewService(testSecret, zap.NewNop())
	signed := signToken(t, testSecret, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := svc.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRequest(t *testing.T) {
	svc := NewService(testSecret, zap.NewNop())
	signed := signToken(t, testSecret, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{name: "valid bearer", header: "Bearer " + signed},
		{name: "missing header", header: "", wantErr: ErrMissingAuthorization},
		{name: "wrong scheme", header: "Basic abc", wantErr: ErrInvalidAuthFormat},
		{name: "no token", header: "Bearer", wantErr: ErrInvalidAuthFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			claims, err := svc.ValidateRequest(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.Subject)
		})
	}
}

func TestPrincipal_CanAccess(t *testing.T) {
	restricted := NewPrincipal(&Claims{Tables: []string{"customers"}})
	assert.True(t, restricted.Restricted())
	assert.True(t, restricted.CanAccess("customers"))
	assert.False(t, restricted.CanAccess("orders"))

	open := NewPrincipal(&Claims{})
	assert.False(t, open.Restricted())
	assert.True(t, open.CanAccess("anything"))

	assert.True(t, Anonymous().CanAccess("anything"))
}
