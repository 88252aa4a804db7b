// Package breaker gates the real-time fetch behind a circuit breaker so a
// broken vendor API is probed instead of hammered.
package breaker

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker wraps a two-step circuit breaker for a strictly sequential caller:
// ask ShouldAttempt before a fetch, then report the outcome with
// RecordSuccess or RecordFailure. While open, ShouldAttempt returns false
// until the timeout elapses, after which a single probe is allowed.
type Breaker struct {
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
	done func(bool)
}

// New creates a breaker that opens after threshold consecutive failures and
// allows a probe after timeout.
func New(name string, threshold uint32, timeout time.Duration) *Breaker {
	return &Breaker{
		cb: gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		}),
	}
}

// ShouldAttempt reports whether a fetch may proceed. A true result must be
// followed by exactly one RecordSuccess or RecordFailure call.
func (b *Breaker) ShouldAttempt() bool {
	done, err := b.cb.Allow()
	if err != nil {
		return false
	}
	b.done = done
	return true
}

// RecordSuccess reports that the attempted fetch succeeded.
func (b *Breaker) RecordSuccess() {
	if b.done != nil {
		b.done(true)
		b.done = nil
	}
}

// RecordFailure reports that the attempted fetch failed.
func (b *Breaker) RecordFailure() {
	if b.done != nil {
		b.done(false)
		b.done = nil
	}
}

// State returns the breaker state for logging.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
