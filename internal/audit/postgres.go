package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ingestpipe/internal/domain"
)

// PostgresLog implements Log against the audit_events table documented in
// internal/persistence/databases/postgres_doc.go.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog wraps an already-connected pool and ensures audit_events
// exists (best-effort CREATE IF NOT EXISTS, matching the rest of the
// relational schema bootstrap).
func NewPostgresLog(ctx context.Context, pool *pgxpool.Pool) (*PostgresLog, error) {
	l := &PostgresLog{pool: pool}
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS audit_events (
  event_id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  occurred_at TIMESTAMPTZ NOT NULL,
  actor TEXT NOT NULL,
  resource_type TEXT NOT NULL,
  resource_id TEXT NOT NULL,
  details JSONB NOT NULL DEFAULT '{}'::jsonb,
  previous_event_id TEXT
);
CREATE INDEX IF NOT EXISTS audit_events_chain_idx ON audit_events(tenant_id, resource_type, resource_id, occurred_at);
`)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PostgresLog) Append(ctx context.Context, event domain.Event) error {
	if event.PreviousEventID == nil {
		head, err := l.Head(ctx, event.TenantID)
		if err != nil {
			return err
		}
		if head != "" {
			event.PreviousEventID = &head
		}
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}

	_, err = l.pool.Exec(ctx, `
INSERT INTO audit_events(event_id, tenant_id, event_type, occurred_at, actor, resource_type, resource_id, details, previous_event_id)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (event_id) DO NOTHING
`, event.EventID, event.TenantID, string(event.EventType), event.Timestamp, event.Actor, event.ResourceType, event.ResourceID, details, event.PreviousEventID)
	return err
}

func (l *PostgresLog) ListByResource(ctx context.Context, tenantID, resourceType, resourceID string) ([]domain.Event, error) {
	rows, err := l.pool.Query(ctx, `
SELECT event_id, tenant_id, event_type, occurred_at, actor, resource_type, resource_id, details, previous_event_id
FROM audit_events
WHERE tenant_id=$1 AND resource_type=$2 AND resource_id=$3
ORDER BY occurred_at ASC
`, tenantID, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var eventType string
		var details []byte
		if err := rows.Scan(&e.EventID, &e.TenantID, &eventType, &e.Timestamp, &e.Actor, &e.ResourceType, &e.ResourceID, &details, &e.PreviousEventID); err != nil {
			return nil, err
		}
		e.EventType = domain.EventType(eventType)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *PostgresLog) Head(ctx context.Context, tenantID string) (string, error) {
	var eventID string
	err := l.pool.QueryRow(ctx, `
SELECT event_id FROM audit_events WHERE tenant_id=$1 ORDER BY occurred_at DESC LIMIT 1
`, tenantID).Scan(&eventID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return eventID, err
}
