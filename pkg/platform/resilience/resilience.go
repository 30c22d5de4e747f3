// Package resilience decorates unreliable calls with a circuit breaker,
// bounded per-attempt timeouts, retry with exponential backoff and a fallback.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"bankguard/pkg/platform/circuit"
)

// ErrOpen is passed to fallbacks when the breaker rejected the call.
var ErrOpen = errors.New("circuit open")

// Policy configures a Wrapper. Zero fields take the defaults of DefaultPolicy.
type Policy struct {
	FailureRate    float64
	WindowSize     int
	MinimumCalls   int
	OpenDuration   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		FailureRate:    0.5,
		WindowSize:     10,
		MinimumCalls:   5,
		OpenDuration:   30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		AttemptTimeout: 20 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.FailureRate <= 0 || p.FailureRate > 1 {
		p.FailureRate = d.FailureRate
	}
	if p.WindowSize <= 0 {
		p.WindowSize = d.WindowSize
	}
	if p.MinimumCalls <= 0 {
		p.MinimumCalls = d.MinimumCalls
	}
	if p.OpenDuration <= 0 {
		p.OpenDuration = d.OpenDuration
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}

// Wrapper guards one upstream dependency. Create one per dependency so a
// failing model endpoint does not open the breaker of an unrelated one.
type Wrapper struct {
	name    string
	policy  Policy
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Wrapper.
type Option func(*wrapperConfig)

type wrapperConfig struct {
	logger  *slog.Logger
	metrics *Metrics
	clock   func() time.Time
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *wrapperConfig) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *wrapperConfig) {
		c.metrics = m
	}
}

// WithClock overrides the breaker time source.
func WithClock(now func() time.Time) Option {
	return func(c *wrapperConfig) {
		c.clock = now
	}
}

// New creates a Wrapper with its own breaker.
func New(name string, policy Policy, opts ...Option) *Wrapper {
	cfg := wrapperConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	policy = policy.withDefaults()

	breakerOpts := []circuit.Option{
		circuit.WithFailureRate(policy.FailureRate),
		circuit.WithWindowSize(policy.WindowSize),
		circuit.WithMinimumCalls(policy.MinimumCalls),
		circuit.WithOpenDuration(policy.OpenDuration),
	}
	if cfg.clock != nil {
		breakerOpts = append(breakerOpts, circuit.WithClock(cfg.clock))
	}

	w := &Wrapper{
		name:    name,
		policy:  policy,
		breaker: circuit.New(name, breakerOpts...),
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
	w.metrics.setState(name, circuit.StateClosed)
	return w
}

// Name returns the dependency name.
func (w *Wrapper) Name() string {
	return w.name
}

// State returns the breaker state.
func (w *Wrapper) State() circuit.State {
	return w.breaker.State()
}

// Policy returns the effective policy.
func (w *Wrapper) Policy() Policy {
	return w.policy
}

// Execute runs call through the wrapper. When the breaker is open the call is
// not attempted. When the breaker rejects or all attempts fail, fallback
// decides the result; a nil fallback returns the error. A call abandoned
// because ctx ended is not an upstream failure: the breaker window is left
// untouched and the context error is returned.
func Execute[T any](ctx context.Context, w *Wrapper, call func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	allowed, change := w.breaker.Allow()
	w.observe(ctx, change)
	if !allowed {
		w.metrics.incCall(w.name, "rejected")
		return runFallback(ctx, w, fallback, ErrOpen)
	}

	result, err := retry(ctx, w.policy, call)
	if err != nil && ctx.Err() != nil {
		w.breaker.Release()
		w.metrics.incCall(w.name, "canceled")
		var zero T
		return zero, ctx.Err()
	}
	if err != nil {
		w.metrics.incCall(w.name, "failure")
		w.observe(ctx, w.breaker.RecordFailure())
		w.logger.WarnContext(ctx, "upstream call failed",
			"dependency", w.name,
			"error", err,
		)
		return runFallback(ctx, w, fallback, err)
	}

	w.metrics.incCall(w.name, "success")
	w.observe(ctx, w.breaker.RecordSuccess())
	return result, nil
}

// Retry runs a read-like call with per-attempt timeouts and backoff, without
// a breaker. Never use it for calls with side effects.
func Retry[T any](ctx context.Context, policy Policy, call func(context.Context) (T, error)) (T, error) {
	return retry(ctx, policy.withDefaults(), call)
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func runFallback[T any](ctx context.Context, w *Wrapper, fallback func(context.Context, error) (T, error), cause error) (T, error) {
	if fallback == nil {
		var zero T
		return zero, cause
	}
	w.metrics.incFallback(w.name)
	return fallback(ctx, cause)
}

func retry[T any](ctx context.Context, policy Policy, call func(context.Context) (T, error)) (T, error) {
	var result T

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.InitialBackoff
	expo.MaxInterval = policy.MaxBackoff
	expo.MaxElapsedTime = 0
	expo.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(policy.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() (opErr error) {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				opErr = backoff.Permanent(fmt.Errorf("panic in upstream call: %v", r))
			}
		}()

		v, err := call(attemptCtx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, b)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (w *Wrapper) observe(ctx context.Context, change circuit.StateChange) {
	if !change.Changed() {
		return
	}
	state := w.breaker.State()
	w.metrics.setState(w.name, state)
	w.logger.InfoContext(ctx, "circuit state changed",
		"dependency", w.name,
		"state", state.String(),
	)
}
