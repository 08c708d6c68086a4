// Package embedindex implements the Embed & Index Worker (§4.5): it
// consumes policy-enriched chunks from the embedding queue, calls the
// tenant's configured embedding endpoint, and writes the resulting vectors
// into the tenant's dimension-locked collection.
package embedindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/persistence"
	"ingestpipe/internal/persistence/databases"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/rag/embedder"
)

// Worker processes one tenant's embedding queue. A process runs one Worker
// per active tenant, or a pool of Workers round-robining tenants — both are
// legitimate deployments of the same type.
type Worker struct {
	tenantID  string
	q         *queue.Queue
	vectors   databases.Manager
	embedder  embedder.Embedder
	documents persistence.DocumentStore
	auditLog  audit.Log
}

// New builds a Worker for one tenant's already-provisioned vector
// collections and relational document-status store. When embedCfg has no
// BaseURL configured (offline mode, §9 Mode), the worker falls back to a
// deterministic local embedder sized to the tenant's text collection
// dimension instead of refusing to start — the same offline contract
// Mode == ModeOffline already grants the rest of the pipeline.
func New(tenantID string, q *queue.Queue, vectors databases.Manager, embedCfg config.EmbeddingConfig, documents persistence.DocumentStore, auditLog audit.Log) *Worker {
	var emb embedder.Embedder
	if embedCfg.BaseURL != "" {
		emb = embedder.NewClient(embedCfg, vectors.Text.Dimension())
	} else {
		emb = embedder.NewDeterministic(vectors.Text.Dimension(), true, 0)
	}
	return &Worker{
		tenantID:  tenantID,
		q:         q,
		vectors:   vectors,
		embedder:  emb,
		documents: documents,
		auditLog:  auditLog,
	}
}

// Run blocks, popping embed jobs for the worker's tenant until ctx is
// canceled. Each job is processed independently; a job that fails is
// dropped rather than stalling the queue (the audit trail and
// document status both still record the failure for an operator to see).
func (w *Worker) Run(ctx context.Context, pollTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := w.q.Pop(ctx, w.tenantID, queue.StageEmbedding, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pop embed job: %w", err)
		}
		if payload == nil {
			continue
		}

		var job domain.EmbedJob
		if err := json.Unmarshal(payload, &job); err != nil {
			continue
		}
		_ = w.ProcessJob(ctx, job)
	}
}

// ProcessJob embeds every chunk in job, upserts each vector into the
// tenant's text collection keyed by chunk_id, and records the outcome.
func (w *Worker) ProcessJob(ctx context.Context, job domain.EmbedJob) error {
	if len(job.Chunks) == 0 {
		return nil
	}

	texts := make([]string, len(job.Chunks))
	for i, c := range job.Chunks {
		texts[i] = c.Text
	}

	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		w.recordFailure(ctx, job, err)
		return fmt.Errorf("embed chunks for doc %s: %w", job.DocID, err)
	}
	if len(vectors) != len(job.Chunks) {
		err := fmt.Errorf("embedding count mismatch: got %d vectors for %d chunks", len(vectors), len(job.Chunks))
		w.recordFailure(ctx, job, err)
		return err
	}

	embeddedCount := 0
	for i, chunk := range job.Chunks {
		metadata := map[string]string{
			"doc_id":         job.DocID,
			"chunk_id":       chunk.ChunkID,
			"page":           strconv.Itoa(chunk.Page),
			"element_type":   string(chunk.ElementType),
			"classification": string(chunk.Classification),
		}
		if err := w.vectors.Text.Upsert(ctx, chunk.ChunkID, vectors[i], metadata); err != nil {
			w.recordFailure(ctx, job, err)
			return fmt.Errorf("upsert chunk %s: %w", chunk.ChunkID, err)
		}
		embeddedCount++
	}

	if w.documents != nil {
		status := persistence.DocumentStatus{
			DocID:       job.DocID,
			FileID:      job.FileID,
			Status:      "completed",
			StoragePath: job.StoragePath,
		}
		if len(job.Chunks) > 0 {
			status.Classification = job.Chunks[0].Classification
			status.ClassificationConfidence = job.Chunks[0].ClassificationConfidence
		}
		if err := w.documents.Upsert(ctx, status); err != nil {
			return fmt.Errorf("upsert document status: %w", err)
		}
	}

	if w.auditLog != nil {
		event := domain.Event{
			EventID:      "evt_" + uuid.NewString(),
			TenantID:     job.TenantID,
			EventType:    domain.EventDocumentEmbedded,
			Timestamp:    time.Now().UTC(),
			ResourceType: "document",
			ResourceID:   job.DocID,
			Details: map[string]any{
				"chunks_embedded": embeddedCount,
			},
		}
		if err := w.auditLog.Append(ctx, event); err != nil {
			return fmt.Errorf("append embedded audit event: %w", err)
		}
	}
	return nil
}

func (w *Worker) recordFailure(ctx context.Context, job domain.EmbedJob, cause error) {
	if w.documents != nil {
		_ = w.documents.Upsert(ctx, persistence.DocumentStatus{
			DocID:       job.DocID,
			FileID:      job.FileID,
			Status:      "failed",
			StoragePath: job.StoragePath,
		})
	}
	if w.auditLog == nil {
		return
	}
	event := domain.Event{
		EventID:      "evt_" + uuid.NewString(),
		TenantID:     job.TenantID,
		EventType:    domain.EventDocumentRejected,
		Timestamp:    time.Now().UTC(),
		ResourceType: "document",
		ResourceID:   job.DocID,
		Details: map[string]any{
			"reason": cause.Error(),
			"stage":  "embedding",
		},
	}
	_ = w.auditLog.Append(ctx, event)
}
