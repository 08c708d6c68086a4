package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/objectstore"
	"ingestpipe/internal/persistence"
	"ingestpipe/internal/queue"
)

// Worker consumes one tenant's parse queue, fetches the raw upload the
// Intake Gateway wrote, runs Parse over it, and hands the resulting
// CanonicalDocument to the Policy Engine. The parsed document is itself
// written to the object store (normalized/{tenant_id}/{doc_id}/structured.json)
// rather than carried on the PolicyJob, since a JSON-serialized canonical
// document can exceed what's comfortable to push through a Redis list
// value — the same size-discipline reason raw uploads are referenced by
// storage path rather than embedded in ParseJob.
type Worker struct {
	tenantID  string
	q         *queue.Queue
	objects   objectstore.ObjectStore
	documents persistence.DocumentStore
	auditLog  audit.Log
}

// New builds a Worker for one tenant.
func New(tenantID string, q *queue.Queue, objects objectstore.ObjectStore, documents persistence.DocumentStore, auditLog audit.Log) *Worker {
	return &Worker{tenantID: tenantID, q: q, objects: objects, documents: documents, auditLog: auditLog}
}

// Run blocks, popping parse jobs for the worker's tenant until ctx is
// canceled. A job that fails to parse is recorded as failed and dropped
// rather than retried indefinitely.
func (w *Worker) Run(ctx context.Context, pollTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := w.q.Pop(ctx, w.tenantID, queue.StageParse, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pop parse job: %w", err)
		}
		if payload == nil {
			continue
		}

		var job domain.ParseJob
		if err := json.Unmarshal(payload, &job); err != nil {
			continue
		}
		_ = w.ProcessJob(ctx, job)
	}
}

// ProcessJob fetches job's raw content, parses it, persists the
// CanonicalDocument, and pushes a PolicyJob referencing it. If a canonical
// document for this doc_id was already written by a prior attempt, the job
// is skipped rather than re-parsed — doc_id is derived solely from file_id
// (domain.DocID), so the existence check can run before Parse is even
// called.
func (w *Worker) ProcessJob(ctx context.Context, job domain.ParseJob) error {
	docID := domain.DocID(job.FileID)
	normalizedPath := fmt.Sprintf("normalized/%s/%s/structured.json", job.TenantID, docID)

	if exists, err := w.objects.Exists(ctx, normalizedPath); err == nil && exists {
		w.recordSkipped(ctx, job, docID)
		policyJob := domain.PolicyJob{
			DocID: docID, FileID: job.FileID, TenantID: job.TenantID, StoragePath: normalizedPath, Filename: job.Filename,
		}
		if err := w.q.Push(ctx, job.TenantID, queue.StagePolicy, policyJob); err != nil {
			return fmt.Errorf("push policy job for skipped %s: %w", docID, err)
		}
		return nil
	}

	rc, _, err := w.objects.Get(ctx, job.StoragePath)
	if err != nil {
		w.recordFailure(ctx, job, domain.ErrFileCorrupted, err)
		return fmt.Errorf("fetch raw content for %s: %w", job.FileID, err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		w.recordFailure(ctx, job, domain.ErrFileCorrupted, err)
		return fmt.Errorf("read raw content for %s: %w", job.FileID, err)
	}

	doc, err := Parse(job.FileID, job.TenantID, job.SHA256, job.MIMEType, content)
	if err != nil {
		code := domain.ErrParserError
		if perr, ok := err.(*Error); ok {
			code = perr.Code
		}
		w.recordFailure(ctx, job, code, err)
		return fmt.Errorf("parse %s: %w", job.FileID, err)
	}

	parsedPath := fmt.Sprintf("normalized/%s/%s/structured.json", job.TenantID, doc.DocID)
	docJSON, err := json.Marshal(doc)
	if err != nil {
		w.recordFailure(ctx, job, domain.ErrParserError, err)
		return fmt.Errorf("marshal canonical document %s: %w", doc.DocID, err)
	}
	if _, err := w.objects.Put(ctx, parsedPath, bytes.NewReader(docJSON), objectstore.PutOptions{ContentType: "application/json"}); err != nil {
		w.recordFailure(ctx, job, domain.ErrParserError, err)
		return fmt.Errorf("store canonical document %s: %w", doc.DocID, err)
	}

	if w.documents != nil {
		_ = w.documents.Upsert(ctx, persistence.DocumentStatus{
			DocID: doc.DocID, FileID: job.FileID, Status: "policy", StoragePath: job.StoragePath,
		})
	}

	w.recordSuccess(ctx, job, doc)

	policyJob := domain.PolicyJob{
		DocID: doc.DocID, FileID: job.FileID, TenantID: job.TenantID, StoragePath: parsedPath, Filename: job.Filename,
	}
	if err := w.q.Push(ctx, job.TenantID, queue.StagePolicy, policyJob); err != nil {
		return fmt.Errorf("push policy job for %s: %w", doc.DocID, err)
	}
	_ = w.q.PublishEvent(ctx, domain.ProgressEvent{
		Stage: "parse", Message: string(domain.EventDocumentParsed), Level: "info",
		Timestamp: time.Now().Unix(), TenantID: &job.TenantID, DocumentID: &doc.DocID,
	})
	return nil
}

func (w *Worker) recordSuccess(ctx context.Context, job domain.ParseJob, doc domain.CanonicalDocument) {
	if w.auditLog == nil {
		return
	}
	_ = w.auditLog.Append(ctx, domain.Event{
		EventID: "evt_" + uuid.NewString(), TenantID: job.TenantID, EventType: domain.EventDocumentParsed,
		Timestamp: time.Now().UTC(), ResourceType: "document", ResourceID: doc.DocID,
		Details: map[string]any{"chunk_count": len(doc.Chunks), "file_id": job.FileID},
	})
}

func (w *Worker) recordSkipped(ctx context.Context, job domain.ParseJob, docID string) {
	if w.documents != nil {
		_ = w.documents.Upsert(ctx, persistence.DocumentStatus{
			DocID: docID, FileID: job.FileID, Status: "policy", StoragePath: job.StoragePath,
		})
	}
	if w.auditLog != nil {
		_ = w.auditLog.Append(ctx, domain.Event{
			EventID: "evt_" + uuid.NewString(), TenantID: job.TenantID, EventType: domain.EventDocumentParseSkipped,
			Timestamp: time.Now().UTC(), ResourceType: "document", ResourceID: docID,
			Details: map[string]any{"file_id": job.FileID, "reason": "canonical document already exists"},
		})
	}
	_ = w.q.PublishEvent(ctx, domain.ProgressEvent{
		Stage: "parse", Message: string(domain.EventDocumentParseSkipped), Level: "info",
		Timestamp: time.Now().Unix(), TenantID: &job.TenantID, DocumentID: &docID,
	})
}

func (w *Worker) recordFailure(ctx context.Context, job domain.ParseJob, code domain.ErrorCode, cause error) {
	if w.documents != nil {
		_ = w.documents.Upsert(ctx, persistence.DocumentStatus{
			DocID: job.FileID, FileID: job.FileID, Status: "failed", StoragePath: job.StoragePath,
		})
	}
	if w.auditLog == nil {
		return
	}
	_ = w.auditLog.Append(ctx, domain.Event{
		EventID: "evt_" + uuid.NewString(), TenantID: job.TenantID, EventType: domain.EventDocumentParseFailed,
		Timestamp: time.Now().UTC(), ResourceType: "document", ResourceID: job.FileID,
		Details: map[string]any{"reason": string(code), "cause": cause.Error()},
	})
}
