package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer-token claim set the Intake Gateway and Admin/Query
// Surface verify on every request: a tenant scope plus the permission
// scope the token was issued for. It embeds jwt.RegisteredClaims for the
// standard exp/iat/sub fields.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Scope    string `json:"scope"`
}

// contextKey prevents collisions for context values.
type contextKey string

const claimsContextKey contextKey = "ingestpipe.auth.claims"

// WithClaims returns a new context with the given claims attached.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, c)
}

// FromContext extracts the verified claims attached by Middleware, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	v := ctx.Value(claimsContextKey)
	if v == nil {
		return nil, false
	}
	c, ok := v.(*Claims)
	return c, ok && c != nil
}
