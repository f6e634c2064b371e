package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // Upstream healthy, calls pass through.
	Open                  // Upstream failing, calls are rejected without a request.
	HalfOpen              // Probing recovery, the next call decides.
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailurePredicate limits which errors count as failures. Errors rejected
// by the predicate are returned to the caller but reset the failure streak,
// because the upstream did answer.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(b *Breaker) { b.isFailure = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// Breaker opens after maxFailures consecutive failures and lets a single
// probe through once resetTimeout has elapsed.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	maxFailures     int
	resetTimeout    time.Duration
	lastFailureTime time.Time
	halfOpenBusy    bool
	isFailure       func(error) bool
	now             func() time.Time
}

// New creates a Breaker. A maxFailures of zero or less disables tripping.
func New(maxFailures int, resetTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		state:        Closed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		isFailure:    func(err error) bool { return err != nil },
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn unless the circuit is open. While half-open only one call
// is in flight; concurrent callers are rejected until it returns.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.lastFailureTime) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
	}
	trial := b.state == HalfOpen
	if trial {
		if b.halfOpenBusy {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.halfOpenBusy = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.halfOpenBusy = false
	}

	if err != nil && b.isFailure(err) {
		b.failures++
		b.lastFailureTime = b.now()
		if b.state == HalfOpen || (b.maxFailures > 0 && b.failures >= b.maxFailures) {
			b.state = Open
		}
		return err
	}

	b.failures = 0
	b.state = Closed
	return err
}

// State returns the current state of the breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Group lazily creates one breaker per key, all sharing the same settings.
type Group struct {
	mu           sync.Mutex
	breakers     map[string]*Breaker
	maxFailures  int
	resetTimeout time.Duration
	opts         []Option
}

// NewGroup creates an empty breaker group.
func NewGroup(maxFailures int, resetTimeout time.Duration, opts ...Option) *Group {
	return &Group{
		breakers:     make(map[string]*Breaker),
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		opts:         opts,
	}
}

// Get returns the breaker for key, creating it on first use.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[key]
	if !ok {
		b = New(g.maxFailures, g.resetTimeout, g.opts...)
		g.breakers[key] = b
	}
	return b
}

// States snapshots the state of every breaker created so far.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]State, len(g.breakers))
	for k, b := range g.breakers {
		out[k] = b.State()
	}
	return out
}
