// Package config loads process-wide configuration from the environment at
// startup. Nothing in the pipeline reads os.Getenv directly outside this
// package; every other package receives an explicit resource handle built
// from a Config value (§9 Design Notes: replace global state with explicit
// handles constructed once and passed through).
package config

import "time"

// Mode selects whether the embedding endpoint is required at startup
// (online) or the process runs against local stand-ins for development
// and tests (offline).
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// HTTPConfig configures the Intake Gateway / Admin-Query Surface listener.
type HTTPConfig struct {
	Addr         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig configures bearer-token tenant-claim verification.
type AuthConfig struct {
	// BypassEnabled disables token verification for local development; the
	// path tenant id is trusted directly. Never set in production.
	BypassEnabled bool
	JWTSecret     string
	RequiredScope string
}

// RateLimitConfig configures the per-tenant fixed admission window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// RelationalConfig configures the per-tenant metadata store.
type RelationalConfig struct {
	// AdminDSN connects as a superuser able to CREATE DATABASE / CREATE ROLE
	// during tenant provisioning. Per-tenant DSNs are derived at runtime.
	AdminDSN string
}

// ObjectStoreConfig configures the raw/normalized content store.
type ObjectStoreConfig struct {
	Backend         string // "s3" or "memory"
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketPrefix    string
}

// S3SSEConfig configures server-side encryption applied to every object a
// tenant's bucket stores, independent of the secret-material encryption the
// Storage Provisioner applies to credentials themselves.
type S3SSEConfig struct {
	// Mode is "", "AES256", or "aws:kms".
	Mode     string
	KMSKeyID string
}

// S3Config parameterizes a single tenant's isolated bucket, derived from
// ObjectStoreConfig plus the bucket name the Storage Provisioner allocated.
type S3Config struct {
	Bucket                string
	Region                string
	AccessKey             string
	SecretKey             string
	Endpoint              string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	Prefix                string
	SSE                   S3SSEConfig
}

// VectorStoreConfig configures the Qdrant-backed per-tenant collections.
type VectorStoreConfig struct {
	Addr            string
	TextDimensions  int
	ImageDimensions int
	Metric          string
}

// CacheConfig configures the Redis instance backing the Queue Fabric and
// the rate limiter.
type CacheConfig struct {
	Addr     string
	Password string
}

// EmbeddingConfig configures the text-embedding HTTP endpoint. Required
// when Mode == ModeOnline.
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIHeader string
	APIKey    string
	Timeout   time.Duration
}

// MalwareScannerConfig configures the external scan daemon. Unreachable is
// a normal, handled condition (§4.1 step 4), not a startup failure.
type MalwareScannerConfig struct {
	Addr    string
	Timeout time.Duration
}

// KafkaConfig configures the optional Audit Export Mirror. Brokers empty
// disables the mirror entirely; it is never required for the pipeline to
// function since it is a best-effort export, not a dependency.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// ClassificationAssistConfig configures the optional LLM tiebreak
// supplement to Gate 2. APIKey empty disables the supplement; the rule
// engine's verdict then stands even inside the tiebreak confidence band.
type ClassificationAssistConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ImageEmbeddingConfig configures the visual-embedding endpoint backing
// the 512-d image/video-frame collection. It is deliberately a separate
// endpoint from EmbeddingConfig: a text-embedding model and a
// visual-embedding model are never the same model.
type ImageEmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIHeader string
	APIKey    string
	Timeout   time.Duration
}

// VisionAssistConfig configures the LLM vision call the Multi-modal
// Worker uses to turn an image into a text description before that
// description is embedded. APIKey empty disables image handling entirely;
// image jobs are then recorded as rejected rather than silently dropped.
type VisionAssistConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// WhisperConfig configures the local whisper.cpp model the Multi-modal
// Worker uses to transcribe audio jobs. ModelPath empty disables audio
// transcription entirely.
type WhisperConfig struct {
	ModelPath string
}

// ObservabilityConfig configures structured logging and OTel export.
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	LogLevel       string
}

// SecretsConfig configures on-disk per-tenant secret material (§4.7).
type SecretsConfig struct {
	MaterialPath string
}

// Config is the fully-resolved process configuration.
type Config struct {
	Mode Mode

	HTTP                 HTTPConfig
	Auth                 AuthConfig
	RateLimit            RateLimitConfig
	Relational           RelationalConfig
	Object               ObjectStoreConfig
	Vector               VectorStoreConfig
	Cache                CacheConfig
	Embedding            EmbeddingConfig
	Malware              MalwareScannerConfig
	Kafka                KafkaConfig
	Obs                  ObservabilityConfig
	Secrets              SecretsConfig
	ClassificationAssist ClassificationAssistConfig
	ImageEmbedding       ImageEmbeddingConfig
	VisionAssist         VisionAssistConfig
	Whisper              WhisperConfig
}
