package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"ingestpipe/internal/domain"
	"ingestpipe/internal/objectstore"
	"ingestpipe/internal/persistence"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/tenant"
)

// Worker consumes one tenant's policy queue: it fetches the CanonicalDocument
// the Parse Worker stored, looks up the tenant's current gate configuration,
// and runs it through Engine.Apply, which itself records the audit trail and
// forwards surviving chunks to the embed queue.
type Worker struct {
	tenantID  string
	q         *queue.Queue
	objects   objectstore.ObjectStore
	tenants   tenant.Registry
	documents persistence.DocumentStore
	engine    *Engine
}

// NewWorker builds a Worker for one tenant.
func NewWorker(tenantID string, q *queue.Queue, objects objectstore.ObjectStore, tenants tenant.Registry, documents persistence.DocumentStore, engine *Engine) *Worker {
	return &Worker{tenantID: tenantID, q: q, objects: objects, tenants: tenants, documents: documents, engine: engine}
}

// Run blocks, popping policy jobs for the worker's tenant until ctx is
// canceled.
func (w *Worker) Run(ctx context.Context, pollTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := w.q.Pop(ctx, w.tenantID, queue.StagePolicy, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pop policy job: %w", err)
		}
		if payload == nil {
			continue
		}

		var job domain.PolicyJob
		if err := json.Unmarshal(payload, &job); err != nil {
			continue
		}
		_ = w.ProcessJob(ctx, job)
	}
}

// ProcessJob fetches the canonical document job references, resolves the
// owning tenant's current config, and runs the three policy gates over it.
func (w *Worker) ProcessJob(ctx context.Context, job domain.PolicyJob) error {
	rc, _, err := w.objects.Get(ctx, job.StoragePath)
	if err != nil {
		return fmt.Errorf("fetch canonical document for %s: %w", job.DocID, err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read canonical document for %s: %w", job.DocID, err)
	}

	var doc domain.CanonicalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal canonical document for %s: %w", job.DocID, err)
	}

	t, ok, err := w.tenants.Get(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("look up tenant %s: %w", job.TenantID, err)
	}
	if !ok {
		return fmt.Errorf("unknown tenant %s", job.TenantID)
	}

	result, err := w.engine.Apply(ctx, doc, job.Filename, t.Config)
	if err != nil {
		return fmt.Errorf("apply policy gates to %s: %w", job.DocID, err)
	}

	if w.documents != nil {
		status := "embedding"
		if result.Blocked {
			status = "failed"
		}
		_ = w.documents.Upsert(ctx, persistence.DocumentStatus{
			DocID: job.DocID, FileID: job.FileID, Status: status, StoragePath: job.StoragePath,
		})
	}
	return nil
}
