package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// BreakerSettings configures the per-adapter circuit breaker.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive transient failures before
	// the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing
	// failure counts.
	Interval time.Duration
}

// Breaker wraps an Adapter with circuit breaker protection. When the
// wrapped adapter keeps failing, calls fail fast with a transient error
// until the probe succeeds again.
type Breaker struct {
	inner   Adapter
	breaker *gobreaker.CircuitBreaker[domain.Outcome]
}

// WithBreaker wraps inner with a circuit breaker.
func WithBreaker(inner Adapter, settings BreakerSettings, log *logging.Logger) *Breaker {
	blog := log.Sub("breaker")
	cb := gobreaker.NewCircuitBreaker[domain.Outcome](gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			blog.Warn().
				Str("adapter", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		// Only transient failures count against the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	})

	return &Breaker{inner: inner, breaker: cb}
}

// Name implements Adapter.
func (b *Breaker) Name() string { return b.inner.Name() }

// Perform implements Adapter. Calls are routed through the circuit
// breaker; an open circuit surfaces as a transient error.
func (b *Breaker) Perform(ctx context.Context, inv Invocation) (domain.Outcome, error) {
	out, err := b.breaker.Execute(func() (domain.Outcome, error) {
		return b.inner.Perform(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Outcome{}, Transientf(b.inner.Name(), err)
		}
		return domain.Outcome{}, err
	}
	return out, nil
}
