package tenant

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ingestpipe/internal/domain"
)

// PostgresRegistry implements Registry against the shared control-plane
// database's tenants table (internal/persistence/databases/postgres_doc.go).
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry wraps an already-connected pool and ensures the
// tenants table exists.
func NewPostgresRegistry(ctx context.Context, pool *pgxpool.Pool) (*PostgresRegistry, error) {
	r := &PostgresRegistry{pool: pool}
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  tenant_id TEXT PRIMARY KEY,
  state TEXT NOT NULL,
  config JSONB NOT NULL,
  config_version BIGINT NOT NULL
);
`)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRegistry) Create(ctx context.Context, tenantID string, config domain.TenantConfig) (domain.Tenant, error) {
	if existing, ok, err := r.Get(ctx, tenantID); err != nil {
		return domain.Tenant{}, err
	} else if ok {
		return existing, nil
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return domain.Tenant{}, err
	}

	t := domain.Tenant{TenantID: tenantID, State: domain.TenantPending, Config: config, ConfigVersion: 1}
	_, err = r.pool.Exec(ctx, `
INSERT INTO tenants(tenant_id, state, config, config_version) VALUES($1,$2,$3,$4)
ON CONFLICT (tenant_id) DO NOTHING
`, tenantID, string(t.State), configJSON, t.ConfigVersion)
	if err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, tenantID string) (domain.Tenant, bool, error) {
	var t domain.Tenant
	var state string
	var configJSON []byte
	err := r.pool.QueryRow(ctx, `
SELECT tenant_id, state, config, config_version FROM tenants WHERE tenant_id=$1
`, tenantID).Scan(&t.TenantID, &state, &configJSON, &t.ConfigVersion)
	if err == pgx.ErrNoRows {
		return domain.Tenant{}, false, nil
	}
	if err != nil {
		return domain.Tenant{}, false, err
	}
	t.State = domain.LifecycleState(state)
	if err := json.Unmarshal(configJSON, &t.Config); err != nil {
		return domain.Tenant{}, false, err
	}
	return t, true, nil
}

func (r *PostgresRegistry) UpdateConfig(ctx context.Context, tenantID string, config domain.TenantConfig) (domain.Tenant, error) {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return domain.Tenant{}, err
	}
	var t domain.Tenant
	var state string
	err = r.pool.QueryRow(ctx, `
UPDATE tenants SET config=$2, config_version=config_version+1
WHERE tenant_id=$1
RETURNING tenant_id, state, config_version
`, tenantID, configJSON).Scan(&t.TenantID, &state, &t.ConfigVersion)
	if err == pgx.ErrNoRows {
		return domain.Tenant{}, domain.NewError(domain.ErrResourceNotFound, "tenant not found: "+tenantID)
	}
	if err != nil {
		return domain.Tenant{}, err
	}
	t.State = domain.LifecycleState(state)
	t.Config = config
	return t, nil
}

func (r *PostgresRegistry) SetState(ctx context.Context, tenantID string, state domain.LifecycleState) (domain.Tenant, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE tenants SET state=$2 WHERE tenant_id=$1`, tenantID, string(state))
	if err != nil {
		return domain.Tenant{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.Tenant{}, domain.NewError(domain.ErrResourceNotFound, "tenant not found: "+tenantID)
	}
	t, _, err := r.Get(ctx, tenantID)
	return t, err
}

func (r *PostgresRegistry) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, state, config, config_version FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		var state string
		var configJSON []byte
		if err := rows.Scan(&t.TenantID, &state, &configJSON, &t.ConfigVersion); err != nil {
			return nil, err
		}
		t.State = domain.LifecycleState(state)
		if err := json.Unmarshal(configJSON, &t.Config); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
