package gateway

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// Builder constructs an adapter from freshly loaded settings. Builders return
// a ConfigurationError when the processor's credentials are absent; that is an
// expected state, not a failure of the registry.
type Builder func(ctx context.Context) (Gateway, error)

// Registry resolves the adapter for a processor kind. Credentials are loaded
// on every Get so settings changes take effect without a restart; the circuit
// breakers are long-lived and shared across rebuilds.
type Registry struct {
	builders map[processor.Kind]Builder
	breakers map[processor.Kind]*gobreaker.CircuitBreaker[any]
	metrics  *observability.Metrics
}

// NewRegistry creates an empty registry. Metrics may be nil, in which case
// breaker state and outcomes go unreported.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{
		builders: make(map[processor.Kind]Builder),
		breakers: make(map[processor.Kind]*gobreaker.CircuitBreaker[any]),
		metrics:  metrics,
	}
}

// Register installs the builder for a kind and creates its circuit breaker.
func (r *Registry) Register(kind processor.Kind, b Builder) {
	name := string(kind)
	r.builders[kind] = b
	r.breakers[kind] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.metrics != nil {
				r.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			}
		},
		IsSuccessful: func(err error) bool {
			// Only infrastructure failures should trip the breaker; a
			// declined card is the provider answering, not being down.
			infra := isInfraFailure(err)
			if r.metrics != nil {
				result := "success"
				if infra {
					result = "failure"
				}
				r.metrics.CircuitBreakerRequests.WithLabelValues(name, result).Inc()
			}
			return !infra
		},
	})
	if r.metrics != nil {
		r.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	}
}

// Get builds the adapter for kind and returns it with its breaker.
func (r *Registry) Get(ctx context.Context, kind processor.Kind) (Gateway, *gobreaker.CircuitBreaker[any], error) {
	b, ok := r.builders[kind]
	if !ok {
		return nil, nil, domainErrors.NewConfigurationError(string(kind), "unknown processor")
	}
	gw, err := b(ctx)
	if err != nil {
		return nil, nil, err
	}
	return gw, r.breakers[kind], nil
}

// Execute runs op through the kind's circuit breaker.
func Execute[T any](breaker *gobreaker.CircuitBreaker[any], op func() (T, error)) (T, error) {
	v, err := breaker.Execute(func() (any, error) {
		return op()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, domainErrors.ErrProviderUnavailable
		}
		return zero, err
	}
	return v.(T), nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func isInfraFailure(err error) bool {
	if err == nil {
		return false
	}
	var netErr *domainErrors.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var provErr *domainErrors.ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode >= 500
	}
	return false
}
