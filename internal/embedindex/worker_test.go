package embedindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/persistence"
	"ingestpipe/internal/persistence/databases"
	"ingestpipe/internal/queue"
)

func newTestEmbeddingServer(t *testing.T, dim int) config.EmbeddingConfig {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(i+1) * 0.01
			}
			data[i] = map[string]any{"embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(ts.Close)
	return config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "test-model", APIHeader: "Authorization"}
}

func TestWorker_ProcessJob_EmbedsAndUpserts(t *testing.T) {
	t.Parallel()
	embedCfg := newTestEmbeddingServer(t, 4)
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(4), Image: databases.NewMemoryVectorWithDimension(4)}
	_, documents := persistence.NewMemoryStore()
	auditLog := audit.NewMemoryLog()

	w := New("acme", nil, vectors, embedCfg, documents, auditLog)

	job := domain.EmbedJob{
		DocID:    "doc_1",
		FileID:   "file_1",
		TenantID: "acme",
		Chunks: []domain.PolicyEnrichedChunk{
			{Chunk: domain.Chunk{ChunkID: "chk_1", Text: "first chunk"}, Classification: domain.ClassContract, ClassificationConfidence: 0.85},
			{Chunk: domain.Chunk{ChunkID: "chk_2", Text: "second chunk"}, Classification: domain.ClassContract, ClassificationConfidence: 0.85},
		},
	}

	if err := w.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	results, err := vectors.Text.SimilaritySearch(context.Background(), []float32{0.01, 0.02, 0.03, 0.04}, 10, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 upserted vectors, got %d", len(results))
	}

	status, ok, err := documents.Get(context.Background(), "doc_1")
	if err != nil || !ok {
		t.Fatalf("expected document status recorded, ok=%v err=%v", ok, err)
	}
	if status.Status != "completed" {
		t.Fatalf("expected status completed, got %q", status.Status)
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_1")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentEmbedded {
		t.Fatalf("expected one DOCUMENT_EMBEDDED event, got %+v err=%v", events, err)
	}
}

func TestWorker_ProcessJob_DimensionMismatchRecordsFailure(t *testing.T) {
	t.Parallel()
	embedCfg := newTestEmbeddingServer(t, 4)
	// Collection locked to 8-d while the embedding server returns 4-d.
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(8), Image: databases.NewMemoryVectorWithDimension(8)}
	_, documents := persistence.NewMemoryStore()
	auditLog := audit.NewMemoryLog()

	w := New("acme", nil, vectors, embedCfg, documents, auditLog)

	job := domain.EmbedJob{
		DocID:    "doc_2",
		FileID:   "file_2",
		TenantID: "acme",
		Chunks: []domain.PolicyEnrichedChunk{
			{Chunk: domain.Chunk{ChunkID: "chk_1", Text: "mismatched chunk"}},
		},
	}

	if err := w.ProcessJob(context.Background(), job); err == nil {
		t.Fatalf("expected a dimension mismatch error")
	}

	status, ok, err := documents.Get(context.Background(), "doc_2")
	if err != nil || !ok || status.Status != "failed" {
		t.Fatalf("expected status failed, got %+v ok=%v err=%v", status, ok, err)
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_2")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentRejected {
		t.Fatalf("expected one DOCUMENT_REJECTED event, got %+v err=%v", events, err)
	}
}

func TestWorker_Run_ProcessesQueuedJobUntilContextCanceled(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	q, err := queue.New(context.Background(), mr.Addr(), "")
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	embedCfg := newTestEmbeddingServer(t, 2)
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(2), Image: databases.NewMemoryVectorWithDimension(2)}
	_, documents := persistence.NewMemoryStore()
	auditLog := audit.NewMemoryLog()
	w := New("acme", q, vectors, embedCfg, documents, auditLog)

	job := domain.EmbedJob{
		DocID:    "doc_3",
		FileID:   "file_3",
		TenantID: "acme",
		Chunks:   []domain.PolicyEnrichedChunk{{Chunk: domain.Chunk{ChunkID: "chk_1", Text: "queued chunk"}}},
	}
	if err := q.Push(context.Background(), "acme", queue.StageEmbedding, job); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 0) }()

	// Give the worker a moment to drain the single queued job, then stop it.
	for i := 0; i < 50; i++ {
		if _, ok, _ := documents.Get(context.Background(), "doc_3"); ok {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	status, ok, err := documents.Get(context.Background(), "doc_3")
	if err != nil || !ok || status.Status != "completed" {
		t.Fatalf("expected completed status, got %+v ok=%v err=%v", status, ok, err)
	}
}
