// Package resilience guards calls to the model API and the Jina Reader with
// retries, per-call-site circuit breakers and failure classification.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is a breaker's position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen admits one trial call after the cooldown.
	HalfOpen
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
	return "unknown"
}

// ErrCircuitOpen is returned without calling through while a breaker is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig configures a Breaker. Zero values take the defaults below.
type BreakerConfig struct {
	// Threshold is the consecutive failure count that opens the breaker.
	Threshold int
	// Cooldown is how long an open breaker rejects calls.
	Cooldown time.Duration
	// Trips decides whether an error counts as a failure. Nil counts
	// transient errors only, so bad requests never open the breaker.
	Trips func(err error) bool
	// OnChange observes state transitions.
	OnChange func(from, to State)
}

const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// Breaker stops calling a dependency after repeated failures and lets a
// single trial call through once the cooldown has passed.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Trips == nil {
		cfg.Trips = IsTransient
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Guard runs fn unless b is open and records the outcome.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := b.admit(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

// State reports the current state. An open breaker past its cooldown reports
// HalfOpen even before the trial call is made.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.cooled() {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) cooled() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if !b.cooled() {
		return ErrCircuitOpen
	}
	b.setState(HalfOpen)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.cfg.Trips(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.setState(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = b.now()
		b.setState(Open)
	}
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnChange != nil {
		b.cfg.OnChange(from, to)
	}
}

// Breakers holds one breaker per call site, created on first use with a
// shared config. The model phases ("criteria", "extract", "mapping") each get
// their own so a failing prompt does not block the others.
type Breakers struct {
	cfg BreakerConfig

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers returns an empty set.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, m: make(map[string]*Breaker)}
}

// For returns the breaker for name.
func (bs *Breakers) For(name string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok := bs.m[name]; ok {
		return b
	}
	cfg := bs.cfg
	if cfg.OnChange == nil {
		cfg.OnChange = func(from, to State) {
			zap.L().Warn("resilience: breaker state change",
				zap.String("name", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	b := NewBreaker(cfg)
	bs.m[name] = b
	return b
}

// States snapshots every breaker created so far by name.
func (bs *Breakers) States() map[string]string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	out := make(map[string]string, len(bs.m))
	for name, b := range bs.m {
		out[name] = b.State().String()
	}
	return out
}
