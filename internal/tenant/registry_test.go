package tenant

import (
	"context"
	"testing"

	"ingestpipe/internal/domain"
)

func TestMemoryRegistry_CreateIsIdempotent(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry()
	ctx := context.Background()

	cfg := domain.DefaultTenantConfig()
	first, err := r.Create(ctx, "acme", cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.State != domain.TenantPending || first.ConfigVersion != 1 {
		t.Fatalf("unexpected new tenant: %+v", first)
	}

	other := domain.DefaultTenantConfig()
	other.MaxFileSizeMB = 999
	second, err := r.Create(ctx, "acme", other)
	if err != nil {
		t.Fatalf("Create (repeat): %v", err)
	}
	if second.Config.MaxFileSizeMB != cfg.MaxFileSizeMB {
		t.Fatalf("expected repeat Create to be a no-op, got config %+v", second.Config)
	}
}

func TestMemoryRegistry_UpdateConfigBumpsVersion(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry()
	ctx := context.Background()

	if _, err := r.Create(ctx, "acme", domain.DefaultTenantConfig()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated := domain.DefaultTenantConfig()
	updated.ClassificationThreshold = 0.9
	got, err := r.UpdateConfig(ctx, "acme", updated)
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got.ConfigVersion != 2 {
		t.Fatalf("expected config_version 2, got %d", got.ConfigVersion)
	}
	if got.Config.ClassificationThreshold != 0.9 {
		t.Fatalf("expected updated threshold, got %+v", got.Config)
	}
}

func TestMemoryRegistry_UpdateConfigUnknownTenant(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry()
	_, err := r.UpdateConfig(context.Background(), "ghost", domain.DefaultTenantConfig())
	if err == nil {
		t.Fatalf("expected error for unknown tenant")
	}
}

func TestMemoryRegistry_SetStateTransitions(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry()
	ctx := context.Background()

	if _, err := r.Create(ctx, "acme", domain.DefaultTenantConfig()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := r.SetState(ctx, "acme", domain.TenantActive)
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if got.State != domain.TenantActive {
		t.Fatalf("expected ACTIVE, got %q", got.State)
	}
}
