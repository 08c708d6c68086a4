// Package tenant implements the control-plane registry: tenant lifecycle
// records and their per-tenant configuration, keyed by the tenant_id
// validated in internal/validation.
package tenant

import (
	"context"
	"sync"

	"ingestpipe/internal/domain"
)

// Registry stores and retrieves Tenant records. Create is idempotent on
// tenant_id: calling it for a tenant that already exists returns the
// existing record unchanged rather than erroring, since intake batches
// may race a first-seen tenant against its own provisioning job.
type Registry interface {
	Create(ctx context.Context, tenantID string, config domain.TenantConfig) (domain.Tenant, error)
	Get(ctx context.Context, tenantID string) (domain.Tenant, bool, error)
	UpdateConfig(ctx context.Context, tenantID string, config domain.TenantConfig) (domain.Tenant, error)
	SetState(ctx context.Context, tenantID string, state domain.LifecycleState) (domain.Tenant, error)
	List(ctx context.Context) ([]domain.Tenant, error)
}

// MemoryRegistry is an in-process Registry for offline mode and tests.
type MemoryRegistry struct {
	mu      sync.RWMutex
	tenants map[string]domain.Tenant
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tenants: make(map[string]domain.Tenant)}
}

func (r *MemoryRegistry) Create(_ context.Context, tenantID string, config domain.TenantConfig) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tenants[tenantID]; ok {
		return existing, nil
	}

	t := domain.Tenant{
		TenantID:      tenantID,
		State:         domain.TenantPending,
		Config:        config,
		ConfigVersion: 1,
	}
	r.tenants[tenantID] = t
	return t, nil
}

func (r *MemoryRegistry) Get(_ context.Context, tenantID string) (domain.Tenant, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	return t, ok, nil
}

func (r *MemoryRegistry) UpdateConfig(_ context.Context, tenantID string, config domain.TenantConfig) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return domain.Tenant{}, domain.NewError(domain.ErrResourceNotFound, "tenant not found: "+tenantID)
	}
	t.Config = config
	t.ConfigVersion++
	r.tenants[tenantID] = t
	return t, nil
}

func (r *MemoryRegistry) SetState(_ context.Context, tenantID string, state domain.LifecycleState) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return domain.Tenant{}, domain.NewError(domain.ErrResourceNotFound, "tenant not found: "+tenantID)
	}
	t.State = state
	r.tenants[tenantID] = t
	return t, nil
}

func (r *MemoryRegistry) List(_ context.Context) ([]domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out, nil
}
