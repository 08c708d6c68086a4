package domain

import "time"

// EventType is the closed set of audit events the pipeline ever emits.
type EventType string

const (
	EventBatchReceived       EventType = "BATCH_RECEIVED"
	EventDocumentIngested    EventType = "DOCUMENT_INGESTED"
	EventDocumentRejected    EventType = "DOCUMENT_REJECTED"
	EventDocumentQuarantined EventType = "DOCUMENT_QUARANTINED"
	EventDocumentParsed      EventType = "DOCUMENT_PARSED"
	EventDocumentParseFailed EventType = "DOCUMENT_PARSE_FAILED"
	// EventDocumentParseSkipped is a supplement: the original silently
	// skipped an already-parsed document with no audit trail at all.
	EventDocumentParseSkipped EventType = "DOCUMENT_PARSE_SKIPPED"
	EventDocumentPolicyApplied EventType = "DOCUMENT_POLICY_APPLIED"
	EventDocumentEmbedded      EventType = "DOCUMENT_EMBEDDED"
	EventTenantCreated         EventType = "TENANT_CREATED"
	EventTenantProvisioned     EventType = "TENANT_PROVISIONED"
)

// Event is one row of the append-only, per-tenant audit log.
type Event struct {
	EventID          string         `json:"event_id"`
	TenantID         string         `json:"tenant_id"`
	EventType        EventType      `json:"event_type"`
	Timestamp        time.Time      `json:"timestamp"`
	Actor            string         `json:"actor"`
	ResourceType     string         `json:"resource_type"`
	ResourceID       string         `json:"resource_id"`
	Details          map[string]any `json:"details,omitempty"`
	PreviousEventID  *string        `json:"previous_event_id,omitempty"`
}
