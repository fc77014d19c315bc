// Package circuitbreaker guards an optional pre-flight step. While the
// breaker is open the step is skipped instead of being retried.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type State int32

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

// Config sets when the breaker opens and how long it stays open.
type Config struct {
	// FailThreshold consecutive failures open the breaker.
	FailThreshold int `json:"fail_threshold" validate:"min=1"`
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int `json:"success_threshold" validate:"min=1"`
	// Cooldown is how long the breaker stays open before a trial.
	Cooldown time.Duration `json:"cooldown" validate:"min=1ms"`
}

// DefaultConfig opens after three failures and retries after 30s.
func DefaultConfig() Config {
	return Config{
		FailThreshold:    3,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

var validate = validator.New()

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	metrics   MetricsSnapshot
}

// New returns a closed breaker. Invalid configs fall back to DefaultConfig.
func New(cfg Config) *Breaker {
	if err := validate.Struct(cfg); err != nil {
		cfg = DefaultConfig()
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether the guarded step should run. An open breaker turns
// half-open once the cooldown has passed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests++
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.metrics.Skipped++
			return false
		}
		b.transition(StateHalfOpen)
	}
	return true
}

// Record feeds the outcome of a step that Allow let through.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.metrics.SuccessRequests++
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.metrics.FailedRequests++
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	b.metrics.StateChanges++
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and clears the counters but keeps the metrics.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) Metrics() MetricsSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.metrics
	m.CurrentState = b.state.String()
	return m
}

type MetricsSnapshot struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	Skipped         int64
	StateChanges    int32
	CurrentState    string
}
