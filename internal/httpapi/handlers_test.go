package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/auth"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/intake"
	"ingestpipe/internal/objectstore"
	"ingestpipe/internal/persistence"
	"ingestpipe/internal/persistence/databases"
	"ingestpipe/internal/query"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/ratelimit"
	"ingestpipe/internal/tenant"
)

func shaHex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func newTestServerWithAuth(t *testing.T, authCfg config.AuthConfig) (*Server, string) {
	t.Helper()
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	limiterClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { limiterClient.Close() })
	limiter := ratelimit.New(limiterClient, config.RateLimitConfig{MaxRequests: 1000, Window: time.Minute})

	q, err := queue.New(ctx, mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	registry := tenant.NewMemoryRegistry()
	_, err = registry.Create(ctx, "acme", domain.DefaultTenantConfig())
	require.NoError(t, err)

	objects := objectstore.NewMemoryStore()
	receipts, _ := persistence.NewMemoryStore()
	auditLog := audit.NewMemoryLog()

	gateway := intake.New(registry, objects, receipts, q, auditLog, limiter, nil)

	resolve := func(_ context.Context, _ string) (databases.Manager, error) {
		return databases.Manager{
			Text:  databases.NewMemoryVectorWithDimension(768),
			Image: databases.NewMemoryVectorWithDimension(512),
		}, nil
	}
	querySvc := query.New(resolve, config.EmbeddingConfig{}, config.ImageEmbeddingConfig{}, nil, nil)

	return NewServer(gateway, querySvc, authCfg), "acme"
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	return newTestServerWithAuth(t, config.AuthConfig{BypassEnabled: true, RequiredScope: "ingest"})
}

func multipartBatch(t *testing.T, manifest domain.BatchManifest, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	manifestJSON, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("manifest", string(manifestJSON)))

	for _, f := range manifest.Files {
		part, err := w.CreateFormFile("files", f.Filename)
		require.NoError(t, err)
		_, err = part.Write(files[f.FileID])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleAdmitBatch_AcceptsCleanFile(t *testing.T) {
	srv, tenantID := newTestServer(t)
	content := []byte("a perfectly ordinary plain text report")

	manifest := domain.BatchManifest{
		BatchID:   "batch_1",
		TenantID:  tenantID,
		FileCount: 1,
		Files: []domain.ManifestFile{{
			FileID: "file_1", Filename: "a.txt", MIMEType: "text/plain",
			SizeBytes: int64(len(content)), SHA256: shaHex(content),
		}},
	}
	body, contentType := multipartBatch(t, manifest, map[string][]byte{"file_1": content})

	req := httptest.NewRequest(http.MethodPost, "/ingest/"+tenantID+"/batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var result intake.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.Accepted)
}

func TestHandleAdmitBatch_RejectsTenantMismatch(t *testing.T) {
	srv, _ := newTestServer(t)
	manifest := domain.BatchManifest{BatchID: "b1", TenantID: "someone-else", FileCount: 0}
	body, contentType := multipartBatch(t, manifest, nil)

	req := httptest.NewRequest(http.MethodPost, "/ingest/acme/batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetReceipt_NotFound(t *testing.T) {
	srv, tenantID := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ingest/"+tenantID+"/receipt/nope", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQuery_RejectsDimensionMismatch(t *testing.T) {
	srv, tenantID := newTestServer(t)
	payload, err := json.Marshal(queryRequest{Vector: []float32{0.1, 0.2}, TopK: 5})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/collections/tenant_"+tenantID+"/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuery_RejectsForeignTenantCollection(t *testing.T) {
	secret := "test-signing-secret"
	srv, _ := newTestServerWithAuth(t, config.AuthConfig{JWTSecret: secret, RequiredScope: "ingest"})

	token, err := auth.IssueToken([]byte(secret), "acme", "ingest", time.Hour)
	require.NoError(t, err)

	payload, err := json.Marshal(queryRequest{Vector: make([]float32, 768)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/collections/tenant_someone-else/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
