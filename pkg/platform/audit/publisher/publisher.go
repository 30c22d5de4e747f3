// Package publisher writes audit records off the request path.
//
// Until Close, Record never blocks and never returns an error: records are
// queued on a bounded buffer and a single worker persists them. When the
// buffer is full the record is written by a detached goroutine instead of
// being dropped. Store failures are retried with backoff, then logged and
// counted.
//
// After Close there is no worker left, so Record writes on the caller's
// goroutine with a single attempt bounded by the policy's attempt timeout.
// Such late records are counted and a failed one is logged, never retried.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/resilience"
)

// Publisher fans records out to a Store and optional sinks.
type Publisher struct {
	store   audit.Store
	sinks   []audit.Sink
	logger  *slog.Logger
	metrics *Metrics
	policy  resilience.Policy
	now     func() time.Time

	bufferSize int
	buffer     chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	ctx    context.Context
	record audit.Record
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer sets the queue capacity. Zero writes every record from its
// own goroutine.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSink adds a downstream sink that receives records after they are stored.
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithRetryPolicy overrides the store retry policy.
func WithRetryPolicy(policy resilience.Policy) Option {
	return func(p *Publisher) {
		p.policy = policy
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher starts the worker when a buffer is configured.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		policy: resilience.Policy{
			MaxAttempts:    3,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
			AttemptTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan job, p.bufferSize)
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Record queues rec for persistence. ID and Timestamp are filled when zero.
func (p *Publisher) Record(ctx context.Context, rec audit.Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = p.now()
	}
	// The request may finish before the write does.
	j := job{ctx: context.WithoutCancel(ctx), record: rec}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.incLate()
		p.writeWith(j, p.lateAttempt())
		return
	}
	if p.buffer != nil {
		select {
		case p.buffer <- j:
			p.metrics.setQueued(len(p.buffer))
			return
		default:
			p.metrics.incOverflow()
		}
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.write(j)
	}()
}

// Close stops accepting queued records and waits until every pending record
// has been written.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for j := range p.buffer {
		p.metrics.setQueued(len(p.buffer))
		p.write(j)
	}
}

// lateAttempt is the retry policy for records arriving after Close.
func (p *Publisher) lateAttempt() resilience.Policy {
	policy := p.policy
	policy.MaxAttempts = 1
	return policy
}

func (p *Publisher) write(j job) {
	p.writeWith(j, p.policy)
}

func (p *Publisher) writeWith(j job, policy resilience.Policy) {
	ctx, rec := j.ctx, j.record
	_, err := resilience.Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.store.Append(ctx, rec)
	})
	if err != nil {
		p.metrics.incFailed()
		p.logger.ErrorContext(ctx, "audit write failed",
			"audit_id", rec.ID,
			"action", rec.Action,
			"actor", rec.Actor,
			"error", err,
		)
		return
	}
	p.metrics.incWritten(rec.Category())

	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, rec); err != nil {
			p.metrics.incSinkFailed()
			p.logger.WarnContext(ctx, "audit sink publish failed",
				"audit_id", rec.ID,
				"action", rec.Action,
				"error", err,
			)
		}
	}
}
