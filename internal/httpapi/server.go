package httpapi

import (
	"net/http"

	"ingestpipe/internal/auth"
	"ingestpipe/internal/config"
	"ingestpipe/internal/intake"
	"ingestpipe/internal/query"
)

// Server exposes the Intake Gateway and Admin/Query Surface HTTP entry
// points (§4.1, §6).
type Server struct {
	gateway *intake.Gateway
	query   *query.Service
	authCfg config.AuthConfig
	mux     *http.ServeMux
}

// NewServer wires the gateway and query services behind bearer-token
// auth, scoped per request to the {tenant_id} path segment.
func NewServer(gateway *intake.Gateway, querySvc *query.Service, authCfg config.AuthConfig) *Server {
	s := &Server{gateway: gateway, query: querySvc, authCfg: authCfg, mux: http.NewServeMux()}
	s.registerRoutes(authCfg)
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes(authCfg config.AuthConfig) {
	tenantScoped := auth.Middleware(authCfg)

	s.mux.Handle("POST /ingest/{tenant_id}/batch", tenantScoped(http.HandlerFunc(s.handleAdmitBatch)))
	s.mux.Handle("GET /ingest/{tenant_id}/batch/{batch_id}", tenantScoped(http.HandlerFunc(s.handleGetBatch)))
	s.mux.Handle("GET /ingest/{tenant_id}/receipt/{receipt_id}", tenantScoped(http.HandlerFunc(s.handleGetReceipt)))

	// The query surface has no {tenant_id} path segment — the tenant is
	// encoded in the collection name itself (tenant_{id}[_images]), so the
	// auth middleware's tenant-match check is skipped here and the handler
	// cross-checks the collection's tenant against the caller's claims
	// directly.
	s.mux.Handle("POST /collections/{name}/query", auth.Middleware(authCfg)(http.HandlerFunc(s.handleQuery)))
}
