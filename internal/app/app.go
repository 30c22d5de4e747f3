// Package app assembles every component from configuration. Both binaries
// build on it: cmd/server serves HTTP, cmd/bankguardctl runs one-off tasks.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	adviceservice "bankguard/internal/advice/service"
	auditsvc "bankguard/internal/audit"
	compliancemetrics "bankguard/internal/compliance/metrics"
	complianceservice "bankguard/internal/compliance/service"
	"bankguard/internal/compliance/store/rule"
	decisionmetrics "bankguard/internal/decision/metrics"
	decisionservice "bankguard/internal/decision/service"
	fraudmetrics "bankguard/internal/fraud/metrics"
	fraudservice "bankguard/internal/fraud/service"
	fraudstore "bankguard/internal/fraud/store"
	jwttoken "bankguard/internal/jwt_token"
	"bankguard/internal/knowledge"
	"bankguard/internal/memory/embedding"
	memorymetrics "bankguard/internal/memory/metrics"
	memorymodels "bankguard/internal/memory/models"
	memoryservice "bankguard/internal/memory/service"
	memorystore "bankguard/internal/memory/store"
	"bankguard/internal/pipeline"
	pipelinemetrics "bankguard/internal/pipeline/metrics"
	"bankguard/internal/platform/config"
	"bankguard/internal/platform/kafka"
	platformmetrics "bankguard/internal/platform/metrics"
	"bankguard/internal/platform/postgres"
	"bankguard/internal/platform/redis"
	profileservice "bankguard/internal/profile/service"
	ratelimitmetrics "bankguard/internal/ratelimit/metrics"
	ratelimit "bankguard/internal/ratelimit/middleware"
	"bankguard/internal/ratelimit/store/bucket"
	rbacmetrics "bankguard/internal/rbac/metrics"
	rbacservice "bankguard/internal/rbac/service"
	"bankguard/internal/rbac/store/role"
	"bankguard/internal/reasoning"
	sessionmetrics "bankguard/internal/session/metrics"
	sessionservice "bankguard/internal/session/service"
	sessionstore "bankguard/internal/session/store"
	audit "bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/audit/publisher"
	kafkasink "bankguard/pkg/platform/audit/publishers/kafka"
	auditmemory "bankguard/pkg/platform/audit/store/memory"
	auditpostgres "bankguard/pkg/platform/audit/store/postgres"
	"bankguard/pkg/platform/resilience"
)

const (
	tokenIssuer   = "bankguard"
	tokenAudience = "bankguard-management"
)

// App holds the assembled components. Infrastructure handles are nil when
// their URL is not configured.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *sql.DB
	Redis    *redis.Client
	Producer *kafka.Producer

	Publisher  *publisher.Publisher
	Audit      *auditsvc.Service
	RBAC       *rbacservice.Service
	Compliance *complianceservice.Service
	Sessions   *sessionservice.Service
	Memory     *memoryservice.Service
	Profiles   *profileservice.Service
	Decision   *decisionservice.Service
	Fraud      *fraudservice.Service
	Knowledge  *knowledge.Base
	Advice     *adviceservice.Service
	Pipeline   *pipeline.Pipeline
	RateLimit  *ratelimit.Middleware

	// Tokens is nil when no signing key is configured.
	Tokens *jwttoken.JWTService

	embedder *embedding.CachedEmbedder
	// buckets is set only when rate limit counters are kept in process.
	buckets *bucket.InMemoryBucketStore
}

// Options tune Build for callers that do not serve traffic.
type Options struct {
	// SkipMetrics leaves Prometheus collectors unregistered.
	SkipMetrics bool
}

// Build connects infrastructure and wires every service. On error the
// partially built App is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, o Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx, o); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o Options) (err error) {
	cfg, logger := a.Config, a.Logger

	if err = a.connect(ctx); err != nil {
		return err
	}

	metricsOn := !o.SkipMetrics
	a.buildAudit(metricsOn)

	var rbacOpts []rbacservice.Option
	var complianceOpts []complianceservice.Option
	var sessionOpts []sessionservice.Option
	var memoryOpts []memoryservice.Option
	var decisionOpts []decisionservice.Option
	var fraudOpts []fraudservice.Option
	var pipelineOpts []pipeline.Option
	var resilienceOpts []resilience.Option
	var rateLimitOpts []ratelimit.Option
	if metricsOn {
		pm := platformmetrics.New()
		pm.SetBackend("postgres", a.DB != nil)
		pm.SetBackend("redis", a.Redis != nil)
		pm.SetBackend("kafka", a.Producer != nil)
		defer func() {
			if a.Knowledge != nil {
				pm.SetKnowledgeArticles(a.Knowledge.Count())
			}
		}()
		rbacOpts = append(rbacOpts, rbacservice.WithMetrics(rbacmetrics.New()))
		complianceOpts = append(complianceOpts, complianceservice.WithMetrics(compliancemetrics.New()))
		sessionOpts = append(sessionOpts, sessionservice.WithMetrics(sessionmetrics.New()))
		memoryOpts = append(memoryOpts, memoryservice.WithMetrics(memorymetrics.New()))
		decisionOpts = append(decisionOpts, decisionservice.WithMetrics(decisionmetrics.New()))
		fraudOpts = append(fraudOpts, fraudservice.WithMetrics(fraudmetrics.New()))
		pipelineOpts = append(pipelineOpts, pipeline.WithMetrics(pipelinemetrics.New()))
		resilienceOpts = append(resilienceOpts, resilience.WithMetrics(resilience.NewMetrics()))
		rateLimitOpts = append(rateLimitOpts, ratelimit.WithMetrics(ratelimitmetrics.New()))
	}
	resilienceOpts = append(resilienceOpts, resilience.WithLogger(logger))

	var roles rbacservice.RoleStore = role.NewInMemory()
	var rules complianceservice.RuleStore = rule.NewInMemory()
	var records memoryservice.Store = memorystore.NewInMemory()
	var txns fraudservice.Store = fraudstore.NewInMemory()
	if a.DB != nil {
		roles = role.NewPostgres(a.DB)
		rules = rule.NewPostgres(a.DB)
		records = memorystore.NewPostgres(a.DB)
		txns = fraudstore.NewPostgres(a.DB)
		fraudOpts = append(fraudOpts, fraudservice.WithTransactor(newFraudTx(a.DB)))
	}
	var sessions sessionservice.Store = sessionstore.NewInMemory()
	var counters ratelimit.BucketStore
	if a.Redis != nil {
		sessions = sessionstore.NewRedis(a.Redis.Client)
		counters = bucket.NewRedisStore(a.Redis.Client)
	} else {
		a.buckets = bucket.NewInMemoryBucketStore()
		counters = a.buckets
	}
	a.RateLimit = ratelimit.New(counters, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger, append(rateLimitOpts,
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled),
	)...)

	a.RBAC = rbacservice.New(roles, append(rbacOpts,
		rbacservice.WithLogger(logger),
		rbacservice.WithAuditPublisher(a.Publisher),
	)...)

	model := reasoning.NewAnthropic(cfg.Anthropic)
	policy := resiliencePolicy(cfg.Resilience)

	a.Compliance = complianceservice.New(rules, model, resilience.New("compliance-model", policy, resilienceOpts...), append(complianceOpts,
		complianceservice.WithLogger(logger),
		complianceservice.WithAuditPublisher(a.Publisher),
		complianceservice.WithAllowWhenNoRules(cfg.Compliance.AllowWhenNoRules),
		complianceservice.WithMaxTokens(cfg.Anthropic.MaxTokens),
	)...)

	a.Sessions = sessionservice.New(sessions, append(sessionOpts,
		sessionservice.WithTTL(cfg.Session.TTL),
		sessionservice.WithLogger(logger),
	)...)

	a.embedder, err = embedding.NewCachedEmbedder(
		embedding.NewHashEmbedder(cfg.Memory.EmbeddingDimensions),
		cfg.Memory.EmbeddingCacheSize,
	)
	if err != nil {
		return fmt.Errorf("build embedding cache: %w", err)
	}

	a.Memory = memoryservice.New(records, a.embedder, append(memoryOpts,
		memoryservice.WithLogger(logger),
		memoryservice.WithRetention(memorymodels.KindProfile, cfg.Memory.ProfileRetentionYears),
		memoryservice.WithRetention(memorymodels.KindTransaction, cfg.Memory.TransactionRetentionYears),
	)...)

	a.Profiles = profileservice.New(a.Memory,
		profileservice.WithLogger(logger),
		profileservice.WithAuditPublisher(a.Publisher),
	)

	a.Decision = decisionservice.New(a.Memory, model, resilience.New("decision-model", policy, resilienceOpts...), append(decisionOpts,
		decisionservice.WithLogger(logger),
		decisionservice.WithSimilarity(cfg.Decision.SimilarityThreshold, cfg.Decision.SimilarityTopK),
		decisionservice.WithFlagThreshold(cfg.Fraud.FlagThreshold),
		decisionservice.WithMaxTokens(cfg.Anthropic.MaxTokens),
	)...)

	a.Fraud = fraudservice.New(txns, a.Decision, a.Memory, append(fraudOpts,
		fraudservice.WithLogger(logger),
		fraudservice.WithAuditPublisher(a.Publisher),
		fraudservice.WithRecentDays(cfg.Fraud.RecentDays),
	)...)

	if err = a.buildKnowledge(ctx); err != nil {
		return err
	}

	a.Advice = adviceservice.New(a.Decision, a.Profiles, a.Knowledge,
		adviceservice.WithLogger(logger),
		adviceservice.WithAuditPublisher(a.Publisher),
		adviceservice.WithKnowledgeTopK(cfg.Knowledge.TopK),
	)

	a.Pipeline = pipeline.New(a.RBAC, a.Compliance, a.Sessions, a.Decision, append(pipelineOpts,
		pipeline.WithLogger(logger),
		pipeline.WithAuditPublisher(a.Publisher),
		pipeline.WithProfiles(a.Profiles),
	)...)

	if cfg.JWT.SigningKey != "" {
		a.Tokens = NewTokenService(cfg.JWT.SigningKey)
	}
	return nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		a.DB = db
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.Logger.InfoContext(ctx, "postgres stores enabled")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if client != nil {
		a.Redis = client
		a.Logger.InfoContext(ctx, "redis session and rate limit stores enabled")
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka, a.Logger)
	if err != nil {
		return err
	}
	if producer != nil {
		a.Producer = producer
		a.Logger.InfoContext(ctx, "kafka audit sink enabled", "topic", producer.Topic())
	}
	return nil
}

func (a *App) buildAudit(metricsOn bool) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if a.DB != nil {
		store = auditpostgres.New(a.DB)
	}
	opts := []publisher.Option{
		publisher.WithLogger(a.Logger),
		publisher.WithAsyncBuffer(a.Config.Audit.BufferSize),
	}
	if metricsOn {
		opts = append(opts, publisher.WithMetrics(publisher.NewMetrics()))
	}
	if a.Producer != nil {
		opts = append(opts, publisher.WithSink(kafkasink.NewSink(a.Producer)))
	}
	a.Publisher = publisher.NewPublisher(store, opts...)
	a.Audit = auditsvc.New(store,
		auditsvc.WithLogger(a.Logger),
		auditsvc.WithRetention(a.Config.Audit.Retention),
		auditsvc.WithRecentDays(a.Config.Audit.RecentDays),
	)
}

func (a *App) buildKnowledge(ctx context.Context) error {
	opts := []knowledge.Option{knowledge.WithLogger(a.Logger)}
	if a.Config.Knowledge.Path != "" {
		opts = append(opts, knowledge.WithPersistence(a.Config.Knowledge.Path, a.Config.Knowledge.Compress))
	}
	base, err := knowledge.New(a.embedder, opts...)
	if err != nil {
		return fmt.Errorf("open knowledge base: %w", err)
	}
	a.Knowledge = base
	if base.Count() == 0 {
		if err := base.Add(ctx, knowledge.DefaultArticles()...); err != nil {
			return fmt.Errorf("seed knowledge base: %w", err)
		}
		a.Logger.InfoContext(ctx, "knowledge base seeded", "articles", base.Count())
	}
	return nil
}

// Checks returns a readiness check for every configured backend.
func (a *App) Checks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if a.DB != nil {
		checks["postgres"] = a.DB.PingContext
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Health
	}
	if a.Producer != nil {
		checks["kafka"] = a.Producer.Ping
	}
	return checks
}

// NewTokenService issues and validates management bearer tokens.
func NewTokenService(signingKey string) *jwttoken.JWTService {
	return jwttoken.NewJWTService(signingKey, tokenIssuer, tokenAudience)
}

// Sweep runs every retention sweep once as of now.
func (a *App) Sweep(ctx context.Context, now time.Time) error {
	sessions, errSessions := a.Sessions.RemoveExpiredAt(ctx, now)
	records, errMemory := a.Memory.RemoveExpiredAt(ctx, now)
	audits, errAudit := a.Audit.RemoveExpiredAt(ctx, now)
	windows := 0
	if a.buckets != nil {
		windows = a.buckets.Sweep(now)
	}
	a.Logger.InfoContext(ctx, "sweep finished",
		"sessions_removed", sessions,
		"memory_records_removed", records,
		"audit_records_removed", audits,
		"rate_limit_windows_removed", windows,
	)
	return errors.Join(errSessions, errMemory, errAudit)
}

// Close drains the audit publisher first so queued records reach their
// store and sink, then releases infrastructure.
func (a *App) Close(ctx context.Context) {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
	if a.Producer != nil {
		a.Producer.Close(ctx)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.WarnContext(ctx, "redis close failed", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.WarnContext(ctx, "postgres close failed", "error", err)
		}
	}
}

func resiliencePolicy(c config.ResilienceConfig) resilience.Policy {
	return resilience.Policy{
		FailureRate:    c.FailureRate,
		WindowSize:     c.WindowSize,
		MinimumCalls:   c.MinimumCalls,
		OpenDuration:   c.OpenDuration,
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		AttemptTimeout: c.AttemptTimeout,
	}
}
