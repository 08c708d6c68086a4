package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ingestpipe/internal/domain"
)

// Load reads configuration from environment variables, optionally
// overridden by a local .env file. Use Overload (not Load) so .env
// deterministically controls local/dev runs regardless of what the parent
// shell already exported.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Mode = Mode(firstNonEmpty(strings.TrimSpace(os.Getenv("MODE")), string(ModeOffline)))
	if cfg.Mode != ModeOnline && cfg.Mode != ModeOffline {
		return Config{}, domain.NewError(domain.ErrAuthNotConfigured, fmt.Sprintf("MODE must be %q or %q, got %q", ModeOnline, ModeOffline, cfg.Mode))
	}

	cfg.HTTP = HTTPConfig{
		Addr:         firstNonEmpty(strings.TrimSpace(os.Getenv("HTTP_ADDR")), ":8080"),
		CORSOrigins:  parseCommaSeparatedList(os.Getenv("CORS_ORIGINS")),
		ReadTimeout:  durationFromEnv("HTTP_READ_TIMEOUT_SECONDS", 30*time.Second),
		WriteTimeout: durationFromEnv("HTTP_WRITE_TIMEOUT_SECONDS", 60*time.Second),
	}

	cfg.Auth = AuthConfig{
		BypassEnabled: boolFromEnv("AUTH_BYPASS", false),
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		RequiredScope: firstNonEmpty(strings.TrimSpace(os.Getenv("AUTH_REQUIRED_SCOPE")), "ingest"),
	}
	if !cfg.Auth.BypassEnabled && cfg.Auth.JWTSecret == "" {
		return Config{}, domain.NewError(domain.ErrAuthNotConfigured, "JWT_SECRET is required unless AUTH_BYPASS=true")
	}

	cfg.RateLimit = RateLimitConfig{
		MaxRequests: intFromEnv("RATE_LIMIT_MAX_REQUESTS", 100),
		Window:      durationFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),
	}

	cfg.Relational = RelationalConfig{
		AdminDSN: strings.TrimSpace(os.Getenv("RELATIONAL_ADMIN_DSN")),
	}

	cfg.Object = ObjectStoreConfig{
		Backend:         firstNonEmpty(strings.TrimSpace(os.Getenv("OBJECT_STORE_BACKEND")), "memory"),
		Region:          strings.TrimSpace(os.Getenv("OBJECT_STORE_REGION")),
		Endpoint:        strings.TrimSpace(os.Getenv("OBJECT_STORE_ENDPOINT")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("OBJECT_STORE_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("OBJECT_STORE_SECRET_ACCESS_KEY")),
		BucketPrefix:    firstNonEmpty(strings.TrimSpace(os.Getenv("OBJECT_STORE_BUCKET_PREFIX")), "ingestpipe"),
	}

	cfg.Vector = VectorStoreConfig{
		Addr:            strings.TrimSpace(os.Getenv("VECTOR_STORE_ADDR")),
		TextDimensions:  intFromEnv("VECTOR_TEXT_DIMENSIONS", 768),
		ImageDimensions: intFromEnv("VECTOR_IMAGE_DIMENSIONS", 512),
		Metric:          firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_METRIC")), "cosine"),
	}

	cfg.Cache = CacheConfig{
		Addr:     firstNonEmpty(strings.TrimSpace(os.Getenv("CACHE_ADDR")), "localhost:6379"),
		Password: strings.TrimSpace(os.Getenv("CACHE_PASSWORD")),
	}

	cfg.Embedding = EmbeddingConfig{
		BaseURL:   strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")),
		Path:      firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_PATH")), "/v1/embeddings"),
		Model:     firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")), "text-embedding-3-small"),
		APIHeader: firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_HEADER")), "Authorization"),
		APIKey:    strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")),
		Timeout:   durationFromEnv("EMBEDDING_TIMEOUT_SECONDS", 30*time.Second),
	}
	if cfg.Mode == ModeOnline && cfg.Embedding.BaseURL == "" {
		return Config{}, domain.NewError(domain.ErrAuthNotConfigured, "EMBEDDING_BASE_URL is required when MODE=online")
	}

	cfg.Malware = MalwareScannerConfig{
		Addr:    strings.TrimSpace(os.Getenv("MALWARE_SCANNER_ADDR")),
		Timeout: durationFromEnv("MALWARE_SCANNER_TIMEOUT_SECONDS", 5*time.Second),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:     parseCommaSeparatedList(os.Getenv("KAFKA_BROKERS")),
		TopicPrefix: firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_AUDIT_TOPIC_PREFIX")), "audit.events"),
	}

	cfg.Obs = ObservabilityConfig{
		ServiceName:    firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "ingestpipe"),
		ServiceVersion: firstNonEmpty(strings.TrimSpace(os.Getenv("SERVICE_VERSION")), "dev"),
		Environment:    firstNonEmpty(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "development"),
		OTLPEndpoint:   strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		LogLevel:       firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
	}

	cfg.Secrets = SecretsConfig{
		MaterialPath: firstNonEmpty(strings.TrimSpace(os.Getenv("SECRETS_MATERIAL_PATH")), "./secrets"),
	}

	cfg.ClassificationAssist = ClassificationAssistConfig{
		APIKey:  strings.TrimSpace(os.Getenv("CLASSIFICATION_ASSIST_API_KEY")),
		BaseURL: strings.TrimSpace(os.Getenv("CLASSIFICATION_ASSIST_BASE_URL")),
		Model:   firstNonEmpty(strings.TrimSpace(os.Getenv("CLASSIFICATION_ASSIST_MODEL")), "claude-3-7-sonnet-latest"),
		Timeout: durationFromEnv("CLASSIFICATION_ASSIST_TIMEOUT_SECONDS", 10*time.Second),
	}

	cfg.ImageEmbedding = ImageEmbeddingConfig{
		BaseURL:   strings.TrimSpace(os.Getenv("IMAGE_EMBEDDING_BASE_URL")),
		Path:      firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_EMBEDDING_PATH")), "/v1/embeddings"),
		Model:     firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_EMBEDDING_MODEL")), "image-embedding-3"),
		APIHeader: firstNonEmpty(strings.TrimSpace(os.Getenv("IMAGE_EMBEDDING_API_HEADER")), "Authorization"),
		APIKey:    strings.TrimSpace(os.Getenv("IMAGE_EMBEDDING_API_KEY")),
		Timeout:   durationFromEnv("IMAGE_EMBEDDING_TIMEOUT_SECONDS", 30*time.Second),
	}

	cfg.VisionAssist = VisionAssistConfig{
		APIKey:  strings.TrimSpace(os.Getenv("VISION_ASSIST_API_KEY")),
		BaseURL: strings.TrimSpace(os.Getenv("VISION_ASSIST_BASE_URL")),
		Model:   firstNonEmpty(strings.TrimSpace(os.Getenv("VISION_ASSIST_MODEL")), "claude-3-7-sonnet-latest"),
		Timeout: durationFromEnv("VISION_ASSIST_TIMEOUT_SECONDS", 20*time.Second),
	}

	cfg.Whisper = WhisperConfig{
		ModelPath: strings.TrimSpace(os.Getenv("WHISPER_MODEL_PATH")),
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
