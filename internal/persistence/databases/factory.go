package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ingestpipe/internal/config"
)

// NewTenantVectorStores provisions (or reopens) the pair of per-tenant
// vector collections the pipeline writes to: tenant_{id} for 768-d text and
// transcript vectors, tenant_{id}_images for 512-d visual vectors. Backend
// selection mirrors cfg.Vector.Addr: a Qdrant gRPC DSN when set, otherwise
// an in-memory store for offline/dev runs.
func NewTenantVectorStores(ctx context.Context, cfg config.VectorStoreConfig, tenantID string) (Manager, error) {
	textCollection := fmt.Sprintf("tenant_%s", tenantID)
	imageCollection := fmt.Sprintf("tenant_%s_images", tenantID)

	if cfg.Addr == "" {
		return Manager{
			Text:  NewMemoryVectorWithDimension(cfg.TextDimensions),
			Image: NewMemoryVectorWithDimension(cfg.ImageDimensions),
		}, nil
	}

	text, err := NewQdrantVector(cfg.Addr, textCollection, cfg.TextDimensions, cfg.Metric)
	if err != nil {
		return Manager{}, fmt.Errorf("provision text collection %s: %w", textCollection, err)
	}
	image, err := NewQdrantVector(cfg.Addr, imageCollection, cfg.ImageDimensions, cfg.Metric)
	if err != nil {
		return Manager{}, fmt.Errorf("provision image collection %s: %w", imageCollection, err)
	}
	return Manager{Text: text, Image: image}, nil
}

// NewPostgresVectorStores is the pgvector-backed alternative to
// NewTenantVectorStores, used when a tenant's vector backend is configured
// as Postgres instead of Qdrant. Both collections share one pool but use
// distinct tables so dimension mismatches between text and image vectors
// can never collide.
func NewPostgresVectorStores(ctx context.Context, dsn string, tenantID string, cfg config.VectorStoreConfig) (Manager, error) {
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return Manager{}, fmt.Errorf("connect postgres vector store: %w", err)
	}
	return Manager{
		Text:  NewPostgresVector(pool, fmt.Sprintf("embeddings_text_%s", tenantID), cfg.TextDimensions, cfg.Metric),
		Image: NewPostgresVector(pool, fmt.Sprintf("embeddings_image_%s", tenantID), cfg.ImageDimensions, cfg.Metric),
	}, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
