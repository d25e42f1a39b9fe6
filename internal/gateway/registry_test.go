package gateway

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	Gateway
	kind processor.Kind
}

func (s *stubGateway) Kind() processor.Kind { return s.kind }

func TestRegistry_GetUnknownKind(t *testing.T) {
	r := NewRegistry(nil)

	_, _, err := r.Get(context.Background(), processor.KindCard)
	require.Error(t, err)

	var cfgErr *domainErrors.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegistry_BuilderRunsOnEveryGet(t *testing.T) {
	builds := 0
	r := NewRegistry(nil)
	r.Register(processor.KindWallet, func(ctx context.Context) (Gateway, error) {
		builds++
		return &stubGateway{kind: processor.KindWallet}, nil
	})

	for i := 0; i < 3; i++ {
		gw, breaker, err := r.Get(context.Background(), processor.KindWallet)
		require.NoError(t, err)
		require.NotNil(t, breaker)
		assert.Equal(t, processor.KindWallet, gw.Kind())
	}
	assert.Equal(t, 3, builds)
}

func TestRegistry_BuilderErrorPassesThrough(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(processor.KindCard, func(ctx context.Context) (Gateway, error) {
		return nil, domainErrors.NewConfigurationError("Stripe", "secret key missing")
	})

	_, _, err := r.Get(context.Background(), processor.KindCard)
	assert.ErrorIs(t, err, domainErrors.ErrCredentialsMissing)
}

func TestRegistry_BreakerSurvivesRebuilds(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(processor.KindWallet, func(ctx context.Context) (Gateway, error) {
		return &stubGateway{kind: processor.KindWallet}, nil
	})

	_, first, err := r.Get(context.Background(), processor.KindWallet)
	require.NoError(t, err)
	_, second, err := r.Get(context.Background(), processor.KindWallet)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestExecute_ReturnsValue(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(processor.KindWallet, func(ctx context.Context) (Gateway, error) {
		return &stubGateway{kind: processor.KindWallet}, nil
	})
	_, breaker, err := r.Get(context.Background(), processor.KindWallet)
	require.NoError(t, err)

	v, err := Execute(breaker, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestExecute_OpensOnInfraFailures(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(processor.KindWallet, func(ctx context.Context) (Gateway, error) {
		return &stubGateway{kind: processor.KindWallet}, nil
	})
	_, breaker, err := r.Get(context.Background(), processor.KindWallet)
	require.NoError(t, err)

	netErr := domainErrors.NewNetworkError("PayPal", false, errors.New("connection refused"))
	for i := 0; i < 10; i++ {
		_, err := Execute(breaker, func() (string, error) { return "", netErr })
		require.Error(t, err)
	}

	_, err = Execute(breaker, func() (string, error) { return "ok", nil })
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
}

func TestRegistry_ReportsBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)

	r := NewRegistry(m)
	r.Register(processor.KindWallet, func(ctx context.Context) (Gateway, error) {
		return &stubGateway{kind: processor.KindWallet}, nil
	})

	// Closed on registration.
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("wallet")))

	_, breaker, err := r.Get(context.Background(), processor.KindWallet)
	require.NoError(t, err)

	_, err = Execute(breaker, func() (string, error) { return "ok", nil })
	require.NoError(t, err)

	netErr := domainErrors.NewNetworkError("PayPal", false, errors.New("connection refused"))
	for i := 0; i < 10; i++ {
		Execute(breaker, func() (string, error) { return "", netErr })
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerRequests.WithLabelValues("wallet", "success")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.CircuitBreakerRequests.WithLabelValues("wallet", "failure")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("wallet")))
}

func TestExecute_ProviderDeclinesDoNotTrip(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(processor.KindCard, func(ctx context.Context) (Gateway, error) {
		return &stubGateway{kind: processor.KindCard}, nil
	})
	_, breaker, err := r.Get(context.Background(), processor.KindCard)
	require.NoError(t, err)

	declined := domainErrors.NewProviderError("Stripe", 402, "Your card was declined.")
	for i := 0; i < 20; i++ {
		_, err := Execute(breaker, func() (string, error) { return "", declined })
		assert.ErrorIs(t, err, declined)
	}

	v, err := Execute(breaker, func() (string, error) { return "still up", nil })
	require.NoError(t, err)
	assert.Equal(t, "still up", v)
}
