// Package circuit implements a failure-rate circuit breaker over a count-based
// sliding window of call outcomes.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// StateChange reports transitions caused by a single call to the breaker so
// callers can log or count them outside the lock.
type StateChange struct {
	Opened     bool
	HalfOpened bool
	Closed     bool
}

// Changed reports whether any transition happened.
func (c StateChange) Changed() bool {
	return c.Opened || c.HalfOpened || c.Closed
}

const (
	defaultWindowSize       = 10
	defaultMinimumCalls     = 5
	defaultFailureRate      = 0.5
	defaultOpenDuration     = 30 * time.Second
	defaultSuccessThreshold = 1
)

// Breaker is safe for concurrent use.
type Breaker struct {
	name             string
	windowSize       int
	minimumCalls     int
	failureRate      float64
	openDuration     time.Duration
	successThreshold int
	now              func() time.Time

	mu            sync.Mutex
	state         State
	outcomes      []bool // true = failure
	next          int
	recorded      int
	failures      int
	openedAt      time.Time
	trialInFlight bool
	trialSuccess  int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithWindowSize sets how many recent outcomes are considered.
func WithWindowSize(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.windowSize = n
		}
	}
}

// WithMinimumCalls sets how many outcomes must be recorded before the failure
// rate is evaluated.
func WithMinimumCalls(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.minimumCalls = n
		}
	}
}

// WithFailureRate sets the failure ratio in (0,1] that opens the breaker.
func WithFailureRate(rate float64) Option {
	return func(b *Breaker) {
		if rate > 0 && rate <= 1 {
			b.failureRate = rate
		}
	}
}

// WithOpenDuration sets the cool-down before a trial call is allowed.
func WithOpenDuration(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.openDuration = d
		}
	}
}

// WithSuccessThreshold sets how many consecutive successful trials close the
// breaker from half-open.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		windowSize:       defaultWindowSize,
		minimumCalls:     defaultMinimumCalls,
		failureRate:      defaultFailureRate,
		openDuration:     defaultOpenDuration,
		successThreshold: defaultSuccessThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.minimumCalls > b.windowSize {
		b.minimumCalls = b.windowSize
	}
	b.outcomes = make([]bool, b.windowSize)
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether calls are currently being rejected.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Allow reports whether a call may proceed. An open breaker whose cool-down
// has elapsed moves to half-open and admits a single trial call.
func (b *Breaker) Allow() (bool, StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, StateChange{}
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openDuration {
			return false, StateChange{}
		}
		b.state = StateHalfOpen
		b.trialSuccess = 0
		b.trialInFlight = true
		return true, StateChange{HalfOpened: true}
	default:
		if b.trialInFlight {
			return false, StateChange{}
		}
		b.trialInFlight = true
		return true, StateChange{}
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.push(false)
	case StateHalfOpen:
		b.trialInFlight = false
		b.trialSuccess++
		if b.trialSuccess >= b.successThreshold {
			b.close()
			return StateChange{Closed: true}
		}
	}
	return StateChange{}
}

// RecordFailure records a failed call. Outcomes of calls that started before
// the breaker opened are ignored while it is open.
func (b *Breaker) RecordFailure() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.push(true)
		if b.recorded >= b.minimumCalls && b.rate() >= b.failureRate {
			b.open()
			return StateChange{Opened: true}
		}
	case StateHalfOpen:
		b.open()
		return StateChange{Opened: true}
	}
	return StateChange{}
}

// Release gives back a call admitted by Allow without recording an outcome,
// for calls abandoned by their caller. A half-open breaker admits a new trial.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}
}

// FailureRate returns the failure ratio over the current window.
func (b *Breaker) FailureRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate()
}

// Reset forces the breaker closed and clears the window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.close()
}

func (b *Breaker) push(failed bool) {
	if b.recorded == b.windowSize {
		if b.outcomes[b.next] {
			b.failures--
		}
	} else {
		b.recorded++
	}
	b.outcomes[b.next] = failed
	if failed {
		b.failures++
	}
	b.next = (b.next + 1) % b.windowSize
}

func (b *Breaker) rate() float64 {
	if b.recorded == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.recorded)
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.trialInFlight = false
	b.trialSuccess = 0
}

func (b *Breaker) close() {
	b.state = StateClosed
	b.trialInFlight = false
	b.trialSuccess = 0
	b.recorded = 0
	b.failures = 0
	b.next = 0
	clear(b.outcomes)
}
