package databases

// This file documents the Postgres schema each tenant's relational metadata
// database receives during provisioning (§4.7). Production deployments
// should manage migrations with an external tool; our code performs
// best-effort CREATE IF NOT EXISTS for dev and test runs.

/*
Extensions
- vector: required by the pgvector fallback backend (NewPostgresVector)

Control-plane table, one row per tenant, lives in the shared registry
database rather than a per-tenant database (it is what names the
per-tenant databases in the first place):
- tenants(tenant_id TEXT PRIMARY KEY, state TEXT, config JSONB, config_version BIGINT)

Tables, one database per tenant:
- receipts(receipt_id TEXT PRIMARY KEY, batch_id TEXT, file_id TEXT, original_filename TEXT,
    mime_type TEXT, size_bytes BIGINT, sha256 TEXT, scan_result TEXT, received_at TIMESTAMPTZ,
    storage_path TEXT, status TEXT, reason TEXT)
- documents(doc_id TEXT PRIMARY KEY, file_id TEXT, status TEXT, classification TEXT,
    classification_confidence DOUBLE PRECISION, storage_path TEXT)
- audit_events(event_id TEXT PRIMARY KEY, tenant_id TEXT, event_type TEXT, occurred_at TIMESTAMPTZ,
    actor TEXT, resource_type TEXT, resource_id TEXT, details JSONB, previous_event_id TEXT)
  index on (tenant_id, resource_type, resource_id, occurred_at) for the chain-of-custody view
- embeddings_text_{tenant_id} / embeddings_image_{tenant_id}(id TEXT PRIMARY KEY, vec vector(n), metadata JSONB)
  created on demand by NewPostgresVector when a tenant's vector backend is Postgres instead of Qdrant
*/
