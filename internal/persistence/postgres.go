package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ingestpipe/internal/domain"
)

// PostgresStore owns the tenant relational pool and exposes both the
// receipt and document store contracts through separate views, since the
// ReceiptStore and DocumentStore interfaces both declare a Get method with
// different signatures.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresReceiptStore implements ReceiptStore against a tenant's relational
// database, created during Storage Provisioner step 4.
type PostgresReceiptStore struct {
	pool *pgxpool.Pool
}

// PostgresDocumentStore implements DocumentStore against a tenant's
// relational database.
type PostgresDocumentStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool, ensures the tenant
// schema exists (best-effort CREATE IF NOT EXISTS, per postgres_doc.go), and
// returns the receipt and document store views over it.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresReceiptStore, *PostgresDocumentStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, nil, err
	}
	return &PostgresReceiptStore{pool: pool}, &PostgresDocumentStore{pool: pool}, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS receipts (
  receipt_id TEXT PRIMARY KEY,
  batch_id TEXT NOT NULL,
  file_id TEXT NOT NULL,
  original_filename TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  size_bytes BIGINT NOT NULL,
  sha256 TEXT NOT NULL,
  scan_result TEXT NOT NULL,
  storage_path TEXT NOT NULL,
  status TEXT NOT NULL,
  received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS receipts_batch_idx ON receipts(batch_id);

CREATE TABLE IF NOT EXISTS documents (
  doc_id TEXT PRIMARY KEY,
  file_id TEXT NOT NULL,
  status TEXT NOT NULL,
  classification TEXT NOT NULL DEFAULT '',
  classification_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
  storage_path TEXT NOT NULL
);
`)
	return err
}

func (s *PostgresReceiptStore) Put(ctx context.Context, r Receipt) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO receipts(receipt_id, batch_id, file_id, original_filename, mime_type, size_bytes, sha256, scan_result, storage_path, status, received_at, reason)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (receipt_id) DO UPDATE SET status=EXCLUDED.status, scan_result=EXCLUDED.scan_result
`, r.ReceiptID, r.BatchID, r.FileID, r.OriginalFilename, r.MIMEType, r.SizeBytes, r.SHA256, r.ScanResult, r.StoragePath, r.Status, r.ReceivedAt, r.Reason)
	return err
}

func (s *PostgresReceiptStore) Get(ctx context.Context, receiptID string) (Receipt, bool, error) {
	var r Receipt
	err := s.pool.QueryRow(ctx, `
SELECT receipt_id, batch_id, file_id, original_filename, mime_type, size_bytes, sha256, scan_result, storage_path, status, received_at, reason
FROM receipts WHERE receipt_id=$1`, receiptID).Scan(
		&r.ReceiptID, &r.BatchID, &r.FileID, &r.OriginalFilename, &r.MIMEType, &r.SizeBytes, &r.SHA256, &r.ScanResult, &r.StoragePath, &r.Status, &r.ReceivedAt, &r.Reason)
	if err == pgx.ErrNoRows {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, err
	}
	return r, true, nil
}

func (s *PostgresReceiptStore) ListByBatch(ctx context.Context, batchID string) ([]Receipt, error) {
	rows, err := s.pool.Query(ctx, `
SELECT receipt_id, batch_id, file_id, original_filename, mime_type, size_bytes, sha256, scan_result, storage_path, status, received_at, reason
FROM receipts WHERE batch_id=$1`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.ReceiptID, &r.BatchID, &r.FileID, &r.OriginalFilename, &r.MIMEType, &r.SizeBytes, &r.SHA256, &r.ScanResult, &r.StoragePath, &r.Status, &r.ReceivedAt, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresDocumentStore) Upsert(ctx context.Context, d DocumentStatus) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents(doc_id, file_id, status, classification, classification_confidence, storage_path)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (doc_id) DO UPDATE SET status=EXCLUDED.status, classification=EXCLUDED.classification,
  classification_confidence=EXCLUDED.classification_confidence
`, d.DocID, d.FileID, d.Status, string(d.Classification), d.ClassificationConfidence, d.StoragePath)
	return err
}

func (s *PostgresDocumentStore) Get(ctx context.Context, docID string) (DocumentStatus, bool, error) {
	var d DocumentStatus
	var classification string
	err := s.pool.QueryRow(ctx, `
SELECT doc_id, file_id, status, classification, classification_confidence, storage_path
FROM documents WHERE doc_id=$1`, docID).Scan(&d.DocID, &d.FileID, &d.Status, &classification, &d.ClassificationConfidence, &d.StoragePath)
	if err == pgx.ErrNoRows {
		return DocumentStatus{}, false, nil
	}
	if err != nil {
		return DocumentStatus{}, false, err
	}
	d.Classification = domain.Classification(classification)
	return d, true, nil
}
