package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates token verification to Service.
type Middleware struct {
	service Service
	enabled bool
	logger  *zap.Logger
}

// NewMiddleware creates auth middleware. When enabled is false every
// request is admitted with an unrestricted anonymous principal.
func NewMiddleware(service Service, enabled bool, logger *zap.Logger) *Middleware {
	return &Middleware{
		service: service,
		enabled: enabled,
		logger:  logger,
	}
}

// RequireAuth validates the bearer token and injects the resolved
// principal into the request context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next(w, r.WithContext(WithPrincipal(r.Context(), Anonymous())))
			return
		}

		claims, err := m.service.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}

		next(w, r.WithContext(WithPrincipal(r.Context(), NewPrincipal(claims))))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
