package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ingestpipe/internal/config"
)

func newTestMux(cfg config.AuthConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /ingest/{tenant_id}/batch", Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(claims.TenantID))
	})))
	return mux
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "test-secret-test-secret", RequiredScope: "ingest"}
	mux := newTestMux(cfg)

	req := httptest.NewRequest(http.MethodPost, "/ingest/acme/batch", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_AcceptsValidTokenForMatchingTenant(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "test-secret-test-secret", RequiredScope: "ingest"}
	mux := newTestMux(cfg)

	token, err := IssueToken([]byte(cfg.JWTSecret), "acme", "ingest", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/ingest/acme/batch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "acme" {
		t.Fatalf("expected claims tenant 'acme', got %q", rec.Body.String())
	}
}

func TestMiddleware_RejectsTenantMismatch(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "test-secret-test-secret", RequiredScope: "ingest"}
	mux := newTestMux(cfg)

	token, _ := IssueToken([]byte(cfg.JWTSecret), "other-tenant", "ingest", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/ingest/acme/batch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsExpiredToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "test-secret-test-secret", RequiredScope: "ingest"}
	mux := newTestMux(cfg)

	token, _ := IssueToken([]byte(cfg.JWTSecret), "acme", "ingest", -time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/ingest/acme/batch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestMiddleware_BypassTrustsPathTenant(t *testing.T) {
	cfg := config.AuthConfig{BypassEnabled: true, RequiredScope: "ingest"}
	mux := newTestMux(cfg)

	req := httptest.NewRequest(http.MethodPost, "/ingest/acme/batch", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under bypass, got %d", rec.Code)
	}
}

func TestVerifyToken_RejectsWrongSecret(t *testing.T) {
	token, _ := IssueToken([]byte("right-secret-right-secret"), "acme", "ingest", time.Hour)
	if _, err := VerifyToken([]byte("wrong-secret-wrong-secret"), token); err == nil {
		t.Fatalf("expected verification to fail with the wrong secret")
	}
}
