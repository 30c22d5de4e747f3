// Package config loads the process-wide configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is built once in main and passed by pointer into constructors.
// Nothing reads the environment after Load returns.
type Config struct {
	Server     Server           `envPrefix:"SERVER_"`
	JWT        JWTConfig        `envPrefix:"JWT_"`
	Log        LogConfig        `envPrefix:"LOG_"`
	Database   DatabaseConfig   `envPrefix:"DATABASE_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Kafka      KafkaConfig      `envPrefix:"KAFKA_"`
	Anthropic  AnthropicConfig  `envPrefix:"ANTHROPIC_"`
	Tracing    TracingConfig    `envPrefix:"OTEL_"`
	Session    SessionConfig    `envPrefix:"SESSION_"`
	Memory     MemoryConfig     `envPrefix:"MEMORY_"`
	Knowledge  KnowledgeConfig  `envPrefix:"KNOWLEDGE_"`
	Decision   DecisionConfig   `envPrefix:"DECISION_"`
	Fraud      FraudConfig      `envPrefix:"FRAUD_"`
	Compliance ComplianceConfig `envPrefix:"COMPLIANCE_"`
	Audit      AuditConfig      `envPrefix:"AUDIT_"`
	Resilience ResilienceConfig `envPrefix:"RESILIENCE_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATELIMIT_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// JWTConfig protects management routes. An empty SigningKey disables bearer
// auth, which is only acceptable for local development.
type JWTConfig struct {
	SigningKey string `env:"SIGNING_KEY"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// DatabaseConfig selects Postgres stores when URL is set; in-memory stores otherwise.
type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig selects the Redis session store when URL is set.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig enables the audit Kafka sink when Brokers is set.
type KafkaConfig struct {
	Brokers           []string `env:"BROKERS" envSeparator:","`
	AuditTopic        string   `env:"AUDIT_TOPIC" envDefault:"bankguard.audit"`
	Partitions        int32    `env:"PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"REPLICATION_FACTOR" envDefault:"1"`
}

type AnthropicConfig struct {
	APIKey    string `env:"API_KEY"`
	Model     string `env:"MODEL" envDefault:"claude-sonnet-4-5"`
	MaxTokens int64  `env:"MAX_TOKENS" envDefault:"1024"`
}

type TracingConfig struct {
	Endpoint    string `env:"EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"bankguard"`
}

type SessionConfig struct {
	TTL           time.Duration `env:"TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
}

type MemoryConfig struct {
	EmbeddingDimensions       int           `env:"EMBEDDING_DIMENSIONS" envDefault:"384"`
	EmbeddingCacheSize        int64         `env:"EMBEDDING_CACHE_SIZE" envDefault:"10000"`
	ProfileRetentionYears     int           `env:"PROFILE_RETENTION_YEARS" envDefault:"5"`
	TransactionRetentionYears int           `env:"TRANSACTION_RETENTION_YEARS" envDefault:"5"`
	SweepInterval             time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
}

// KnowledgeConfig locates the advice knowledge base. An empty Path keeps it
// in memory, seeded with the built-in articles.
type KnowledgeConfig struct {
	Path     string `env:"PATH"`
	Compress bool   `env:"COMPRESS" envDefault:"true"`
	TopK     int    `env:"TOP_K" envDefault:"5"`
}

// DecisionConfig is the retrieval policy used before every model call.
type DecisionConfig struct {
	SimilarityThreshold float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.7"`
	SimilarityTopK      int     `env:"SIMILARITY_TOP_K" envDefault:"5"`
}

type FraudConfig struct {
	FlagThreshold float64 `env:"FLAG_THRESHOLD" envDefault:"0.6"`
	RecentDays    int     `env:"RECENT_DAYS" envDefault:"30"`
}

type ComplianceConfig struct {
	// AllowWhenNoRules decides the verdict when no rule is active.
	AllowWhenNoRules bool `env:"ALLOW_WHEN_NO_RULES" envDefault:"true"`
}

type AuditConfig struct {
	Retention     time.Duration `env:"RETENTION" envDefault:"8760h"`
	BufferSize    int           `env:"BUFFER_SIZE" envDefault:"1024"`
	RecentDays    int           `env:"RECENT_DAYS" envDefault:"7"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
}

type ResilienceConfig struct {
	FailureRate    float64       `env:"FAILURE_RATE" envDefault:"0.5"`
	WindowSize     int           `env:"WINDOW_SIZE" envDefault:"10"`
	MinimumCalls   int           `env:"MIN_CALLS" envDefault:"5"`
	OpenDuration   time.Duration `env:"OPEN_DURATION" envDefault:"30s"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"200ms"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"2s"`
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"20s"`
}

// RateLimitConfig throttles model-backed routes per client address. Counters
// live in Redis when it is configured.
type RateLimitConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Requests int           `env:"REQUESTS" envDefault:"30"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would break component invariants.
func (c *Config) Validate() error {
	var errs []error
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("SESSION_SWEEP_INTERVAL must be positive"))
	}
	if c.Memory.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("MEMORY_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.Memory.ProfileRetentionYears <= 0 {
		errs = append(errs, errors.New("MEMORY_PROFILE_RETENTION_YEARS must be positive"))
	}
	if c.Memory.TransactionRetentionYears <= 0 {
		errs = append(errs, errors.New("MEMORY_TRANSACTION_RETENTION_YEARS must be positive"))
	}
	if c.Knowledge.TopK <= 0 {
		errs = append(errs, errors.New("KNOWLEDGE_TOP_K must be positive"))
	}
	if c.Fraud.RecentDays <= 0 {
		errs = append(errs, errors.New("FRAUD_RECENT_DAYS must be positive"))
	}
	if c.Decision.SimilarityThreshold <= 0 {
		errs = append(errs, errors.New("DECISION_SIMILARITY_THRESHOLD must be positive"))
	}
	if c.Decision.SimilarityTopK <= 0 {
		errs = append(errs, errors.New("DECISION_SIMILARITY_TOP_K must be positive"))
	}
	if c.Fraud.FlagThreshold < 0 || c.Fraud.FlagThreshold > 1 {
		errs = append(errs, errors.New("FRAUD_FLAG_THRESHOLD must be within [0,1]"))
	}
	if c.Audit.Retention <= 0 {
		errs = append(errs, errors.New("AUDIT_RETENTION must be positive"))
	}
	if c.Resilience.FailureRate <= 0 || c.Resilience.FailureRate > 1 {
		errs = append(errs, errors.New("RESILIENCE_FAILURE_RATE must be within (0,1]"))
	}
	if c.Resilience.MaxAttempts < 1 {
		errs = append(errs, errors.New("RESILIENCE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("RATELIMIT_REQUESTS and RATELIMIT_WINDOW must be positive when rate limiting is enabled"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}
