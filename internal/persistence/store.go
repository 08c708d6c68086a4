// Package persistence defines the tenant-scoped relational-store contracts
// that sit above internal/persistence/databases' raw pool/vector plumbing:
// intake receipts and canonical-document status rows.
package persistence

import (
	"context"
	"time"

	"ingestpipe/internal/domain"
)

// Receipt is the immutable per-file record persisted at intake (§3).
type Receipt struct {
	ReceiptID        string
	BatchID          string
	FileID           string
	OriginalFilename string
	MIMEType         string
	SizeBytes        int64
	SHA256           string
	ScanResult       string
	StoragePath      string
	Status           string
	ReceivedAt       time.Time
	// Reason carries the domain.ErrorCode a rejected or quarantined file
	// was marked down for. Empty for an accepted file.
	Reason string
}

// DocumentStatus tracks a canonical document's progress through the
// parse → policy → embed pipeline for query-surface lookups.
type DocumentStatus struct {
	DocID                    string
	FileID                   string
	Status                   string // parsing|policy|embedding|completed|failed
	Classification           domain.Classification
	ClassificationConfidence float64
	StoragePath              string
}

// ReceiptStore persists intake receipts, keyed by (tenant scope implicit in
// the underlying connection, receipt_id).
type ReceiptStore interface {
	Put(ctx context.Context, r Receipt) error
	Get(ctx context.Context, receiptID string) (Receipt, bool, error)
	ListByBatch(ctx context.Context, batchID string) ([]Receipt, error)
}

// DocumentStore persists canonical-document status rows.
type DocumentStore interface {
	Upsert(ctx context.Context, d DocumentStatus) error
	Get(ctx context.Context, docID string) (DocumentStatus, bool, error)
}
