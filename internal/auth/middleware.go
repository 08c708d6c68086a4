package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
)

// Middleware verifies the bearer token on every request and checks that its
// tenant_id claim matches the {tenant_id} path segment the request is
// scoped to, so one tenant's token can never address another tenant's
// data (§4.1). When cfg.BypassEnabled is set the path tenant is trusted
// directly and no token is required — development only, never set in
// production.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pathTenant := r.PathValue("tenant_id")

			if cfg.BypassEnabled {
				claims := &Claims{TenantID: pathTenant, Scope: cfg.RequiredScope}
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				writeAuthError(w, domain.NewError(domain.ErrAuthenticationRequired, err.Error()))
				return
			}

			claims, err := VerifyToken([]byte(cfg.JWTSecret), token)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					writeAuthError(w, domain.NewError(domain.ErrTokenExpired, "bearer token has expired"))
					return
				}
				writeAuthError(w, domain.Wrap(domain.ErrAuthenticationRequired, "bearer token is invalid", err))
				return
			}

			if pathTenant != "" && claims.TenantID != pathTenant {
				writeAuthError(w, domain.NewError(domain.ErrInsufficientPermissions, "token tenant does not match requested tenant"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireScope rejects requests whose verified claims don't carry the
// given scope. It must run after Middleware.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := FromContext(r.Context())
			if !ok {
				writeAuthError(w, domain.NewError(domain.ErrAuthenticationRequired, "no verified bearer token in context"))
				return
			}
			if claims.Scope != scope {
				writeAuthError(w, domain.NewError(domain.ErrInsufficientPermissions, "token does not carry the required scope"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("Authorization header must be \"Bearer <token>\"")
	}
	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, err *domain.Error) {
	status := http.StatusUnauthorized
	if err.Code == domain.ErrInsufficientPermissions {
		status = http.StatusForbidden
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="ingestpipe"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + string(err.Code) + `","message":"` + err.Message + `"}}`))
}
