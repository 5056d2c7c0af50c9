package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrInvalidToken         = errors.New("invalid token")
)

// Service validates bearer tokens on incoming requests. The abstraction
// keeps HTTP handling separate from token verification, making both
// easier to test.
type Service interface {
	// ValidateRequest extracts and validates a JWT from the Authorization
	// header. Returns the validated claims or an error.
	ValidateRequest(r *http.Request) (*Claims, error)

	// VerifyToken validates a raw token string.
	VerifyToken(tokenString string) (*Claims, error)
}

// hmacService implements Service using a shared HMAC signing secret.
type hmacService struct {
	secret []byte
	logger *zap.Logger
}

var _ Service = (*hmacService)(nil)

// NewService creates a Service that verifies tokens signed with the
// given HMAC secret.
func NewService(secret string, logger *zap.Logger) Service {
	return &hmacService{
		secret: []byte(secret),
		logger: logger.Named("auth"),
	}
}

// ValidateRequest extracts and validates a JWT from the request.
func (s *hmacService) ValidateRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingAuthorization
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, ErrInvalidAuthFormat
	}

	claims, err := s.VerifyToken(parts[1])
	if err != nil {
		s.logger.Debug("token validation failed", zap.Error(err))
		return nil, err
	}
	return claims, nil
}

// VerifyToken parses and verifies a raw token string.
func (s *hmacService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
