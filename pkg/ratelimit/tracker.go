package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pdir/immobilienscout-api/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitedTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of HTTP 503 rate limit responses",
	})

	pacingWaitSeconds = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Name:      "pacing_wait_seconds",
		Help:      "Time spent waiting for the client-side request pacer",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Tracker records rate limit signals and gates requests through an optional pacer.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	state   State
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewTracker creates a new rate limit tracker. A requestsPerSecond of zero or
// less disables pacing; Wait then returns immediately.
func NewTracker(requestsPerSecond float64, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		logger: logger,
		now:    time.Now,
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return t
}

// Pacing reports whether client-side pacing is enabled.
func (t *Tracker) Pacing() bool {
	return t.limiter != nil
}

// Wait blocks until the pacer admits one request or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}

	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	waited := time.Since(start)
	pacingWaitSeconds.Observe(waited.Seconds())

	if waited > 100*time.Millisecond {
		t.logger.Debug().Dur("waited", waited).Msg("Request delayed by pacer")
	}
	return nil
}

// RecordRateLimited registers a 503 response and returns the updated state.
func (t *Tracker) RecordRateLimited(headers http.Header) State {
	now := t.now()

	t.mu.Lock()
	t.state.LimitedCount++
	t.state.LastLimitedAt = now
	t.state.RetryAfter = parseRetryAfter(headers, now)
	state := t.state
	t.mu.Unlock()

	rateLimitedTotal.Inc()

	event := t.logger.Warn().Int("limited_count", state.LimitedCount)
	if state.RetryAfter > 0 {
		event = event.Dur("retry_after", state.RetryAfter)
	}
	event.Msg("IS24 rate limit exceeded")

	return state
}

// State returns a snapshot of the current rate limit state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
