package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter guards caller-initiated publishes with a channel-wide limit and
// one limit per destination, both sized by the same requests-per-period.
type Limiter struct {
	global       *rate.Limiter
	destinations sync.Map
	mu           sync.RWMutex
	requests     int
	period       time.Duration
	metrics      *Metrics
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
	destinations    atomic.Int32
}

// New creates a Limiter allowing requests per period with a burst of requests.
func New(requests int, period time.Duration) *Limiter {
	return &Limiter{
		global:   rate.NewLimiter(perSecond(requests, period), requests),
		requests: requests,
		period:   period,
		metrics:  &Metrics{},
	}
}

func perSecond(requests int, period time.Duration) rate.Limit {
	return rate.Limit(float64(requests) / period.Seconds())
}

// WaitDestination blocks until both the channel-wide limit and the limit of
// destination allow a publish, or ctx is done.
func (l *Limiter) WaitDestination(ctx context.Context, destination string) error {
	l.metrics.totalRequests.Add(1)
	if err := l.destination(destination).Wait(ctx); err != nil {
		l.metrics.deniedRequests.Add(1)
		return err
	}
	if err := l.global.Wait(ctx); err != nil {
		l.metrics.deniedRequests.Add(1)
		return err
	}
	l.metrics.allowedRequests.Add(1)
	return nil
}

func (l *Limiter) destination(name string) *rate.Limiter {
	if v, ok := l.destinations.Load(name); ok {
		return v.(*rate.Limiter)
	}

	l.mu.RLock()
	limiter := rate.NewLimiter(perSecond(l.requests, l.period), l.requests)
	l.mu.RUnlock()

	actual, loaded := l.destinations.LoadOrStore(name, limiter)
	if !loaded {
		l.metrics.destinations.Add(1)
	}
	return actual.(*rate.Limiter)
}

// SetLimit updates the channel-wide limit and every destination limit.
func (l *Limiter) SetLimit(requests int, period time.Duration) {
	l.mu.Lock()
	l.requests = requests
	l.period = period
	l.mu.Unlock()

	limit := perSecond(requests, period)
	l.global.SetLimit(limit)
	l.global.SetBurst(requests)
	l.destinations.Range(func(_, v any) bool {
		lim := v.(*rate.Limiter)
		lim.SetLimit(limit)
		lim.SetBurst(requests)
		return true
	})
}

// Metrics returns a snapshot of the current limiter statistics.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   l.metrics.totalRequests.Load(),
		AllowedRequests: l.metrics.allowedRequests.Load(),
		DeniedRequests:  l.metrics.deniedRequests.Load(),
		Destinations:    l.metrics.destinations.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalRequests is the total number of checks performed.
	TotalRequests int64
	// AllowedRequests is the number of publishes that were allowed.
	AllowedRequests int64
	// DeniedRequests is the number of publishes that were denied or cancelled.
	DeniedRequests int64
	// Destinations is the number of per-destination limits in use.
	Destinations int32
}
