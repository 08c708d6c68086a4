// Package bootstrap constructs the shared resource set every pipeline
// process needs — tenant registry, object store, relational stores,
// queue fabric, audit log, rate limiter, malware scanner — from one
// resolved config.Config, mirroring internal/config's own "explicit
// handles constructed once and passed through" convention (§9 Design
// Notes) so cmd/ingestd and cmd/ingestworker don't each re-derive the
// same backend-selection logic from Mode and reach divergent
// conclusions about it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/config"
	"ingestpipe/internal/malware"
	"ingestpipe/internal/multimodal"
	"ingestpipe/internal/objectstore"
	"ingestpipe/internal/persistence"
	"ingestpipe/internal/persistence/databases"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/ratelimit"
	"ingestpipe/internal/tenant"
)

// Resources is the full shared backend set a pipeline process needs.
// Object, Receipts, Documents, and Tenants are shared across tenants —
// isolation is enforced by key/row prefixing rather than by separate
// connections per tenant, the same simplification the HTTP wiring
// already accepts pending a per-tenant relational-store resolver.
// Vector collections are the exception: those genuinely are opened one
// pair per tenant (VectorResolver), since Qdrant/pgvector isolation is
// collection-scoped, not row-scoped.
type Resources struct {
	Config      config.Config
	Tenants     tenant.Registry
	Object      objectstore.ObjectStore
	Receipts    persistence.ReceiptStore
	Documents   persistence.DocumentStore
	Queue       *queue.Queue
	Audit       audit.Log
	Limiter     *ratelimit.Limiter
	Scanner     *malware.Scanner
	Vision      *multimodal.VisionClient
	Transcriber multimodal.Transcriber

	pgPool *pgxpool.Pool
}

// New resolves cfg and opens every backend connection it names. The Redis
// queue fabric is always dialed at cfg.Cache.Addr. Postgres, S3, and Kafka
// are only dialed when their respective DSNs/backend/brokers are
// configured; otherwise in-memory stand-ins are used. cfg.Mode is not
// consulted here.
func New(ctx context.Context, cfg config.Config) (*Resources, error) {
	r := &Resources{Config: cfg}

	q, err := queue.New(ctx, cfg.Cache.Addr, cfg.Cache.Password)
	if err != nil {
		return nil, fmt.Errorf("connect queue fabric: %w", err)
	}
	r.Queue = q

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, Password: cfg.Cache.Password})
	r.Limiter = ratelimit.New(rdb, cfg.RateLimit)

	if cfg.Relational.AdminDSN != "" {
		pool, err := databases.OpenPool(ctx, cfg.Relational.AdminDSN)
		if err != nil {
			return nil, fmt.Errorf("connect relational store: %w", err)
		}
		r.pgPool = pool

		tenants, err := tenant.NewPostgresRegistry(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("init tenant registry schema: %w", err)
		}
		r.Tenants = tenants

		receipts, documents, err := persistence.NewPostgresStore(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("init receipt/document schema: %w", err)
		}
		r.Receipts, r.Documents = receipts, documents

		auditLog, err := audit.NewPostgresLog(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("init audit schema: %w", err)
		}
		r.Audit = wrapAuditMirror(auditLog, cfg.Kafka)
	} else {
		r.Tenants = tenant.NewMemoryRegistry()
		receipts, documents := persistence.NewMemoryStore()
		r.Receipts, r.Documents = receipts, documents
		r.Audit = wrapAuditMirror(audit.NewMemoryLog(), cfg.Kafka)
	}

	if cfg.Object.Backend == "s3" {
		s3cfg := config.S3Config{
			Bucket:       cfg.Object.BucketPrefix,
			Region:       cfg.Object.Region,
			AccessKey:    cfg.Object.AccessKeyID,
			SecretKey:    cfg.Object.SecretAccessKey,
			Endpoint:     cfg.Object.Endpoint,
			UsePathStyle: true,
		}
		store, err := objectstore.NewS3Store(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("connect object store: %w", err)
		}
		r.Object = store
	} else {
		r.Object = objectstore.NewMemoryStore()
	}

	r.Scanner = malware.NewScanner(cfg.Malware)

	if cfg.VisionAssist.APIKey != "" {
		r.Vision = multimodal.NewVisionClient(cfg.VisionAssist)
	}
	if cfg.Whisper.ModelPath != "" {
		transcriber, err := multimodal.NewWhisperTranscriber(cfg.Whisper.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("load whisper model: %w", err)
		}
		r.Transcriber = transcriber
	}

	return r, nil
}

// VectorResolver opens (or reopens) a tenant's text/image vector
// collection pair, delegating to NewTenantVectorStores' own
// Addr-based selection between Qdrant and the in-memory stand-in.
func (r *Resources) VectorResolver(ctx context.Context, tenantID string) (databases.Manager, error) {
	return databases.NewTenantVectorStores(ctx, r.Config.Vector, tenantID)
}

// Close releases pooled connections. Safe to call once at process shutdown.
func (r *Resources) Close() {
	if r.Queue != nil {
		_ = r.Queue.Close()
	}
	if r.pgPool != nil {
		r.pgPool.Close()
	}
}

func wrapAuditMirror(inner audit.Log, kafkaCfg config.KafkaConfig) audit.Log {
	if len(kafkaCfg.Brokers) == 0 {
		return inner
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(kafkaCfg.Brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	mirror := audit.NewExportMirror(kafkaCfg, writer)
	return audit.NewMirroredLog(inner, mirror)
}
