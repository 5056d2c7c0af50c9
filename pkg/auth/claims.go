// Package auth provides JWT-based authentication for queryloom.
// Tokens are signed with a shared HMAC secret and carry an optional
// table permission claim consumed by the safety validator.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// PrincipalKey is the context key for storing the authenticated principal.
	PrincipalKey contextKey = "principal"
)

// Claims represents the JWT claims structure accepted by queryloom.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds a custom claim listing the tables the caller may query.
type Claims struct {
	jwt.RegisteredClaims
	// Tables lists the tables the bearer may reference. An absent or empty
	// claim means unrestricted access.
	Tables []string `json:"tables,omitempty"`
}

// Principal is the resolved identity of a request. It implements
// sqlsafe.TableAccess so the validator can enforce the table claim.
type Principal struct {
	Subject string
	tables  map[string]struct{}
}

// NewPrincipal builds a Principal from validated claims.
func NewPrincipal(claims *Claims) *Principal {
	p := &Principal{Subject: claims.Subject}
	if len(claims.Tables) > 0 {
		p.tables = make(map[string]struct{}, len(claims.Tables))
		for _, t := range claims.Tables {
			p.tables[t] = struct{}{}
		}
	}
	return p
}

// Anonymous returns the unrestricted principal used when authentication
// is disabled.
func Anonymous() *Principal {
	return &Principal{Subject: "anonymous"}
}

// CanAccess reports whether the principal may reference the given table.
// A principal without a table claim is unrestricted.
func (p *Principal) CanAccess(table string) bool {
	if p == nil || p.tables == nil {
		return true
	}
	_, ok := p.tables[table]
	return ok
}

// Restricted reports whether the principal carries a table claim.
func (p *Principal) Restricted() bool {
	return p != nil && p.tables != nil
}

// GetPrincipal retrieves the authenticated principal from the request context.
// Returns nil and false if no principal is present.
func GetPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}
