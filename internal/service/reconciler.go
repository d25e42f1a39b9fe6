package service

import (
	"context"
	"time"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// SessionReconciler periodically polls pending sessions against their
// gateways. It is the fallback for deployments without a reachable webhook
// endpoint, and catches events webhooks dropped.
type SessionReconciler struct {
	checkout  *CheckoutService
	sessions  processor.SessionRepository
	metrics   *observability.Metrics
	logger    zerolog.Logger
	interval  time.Duration
	batchSize int
}

// NewSessionReconciler creates a reconciler polling at the given interval.
func NewSessionReconciler(
	checkout *CheckoutService,
	sessions processor.SessionRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	interval time.Duration,
	batchSize int,
) *SessionReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SessionReconciler{
		checkout:  checkout,
		sessions:  sessions,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until the context is canceled.
func (r *SessionReconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconciler pass failed")
			}
		}
	}
}

// RunOnce performs a single reconciliation pass. Per-session errors are
// logged and skipped so one stuck session cannot starve the rest.
func (r *SessionReconciler) RunOnce(ctx context.Context) error {
	pending, err := r.sessions.ListPending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.ReconcilerRuns.Inc()
		r.metrics.ReconcilerSessionsLag.Set(float64(len(pending)))
	}

	for _, sess := range pending {
		state, err := r.checkout.RefreshSession(ctx, sess)
		if err != nil {
			r.logger.Warn().Err(err).
				Str("session_id", sess.SessionID).
				Str("processor", string(sess.Processor)).
				Msg("failed to refresh session")
			continue
		}
		if state != processor.SessionPending {
			r.logger.Info().
				Str("session_id", sess.SessionID).
				Str("state", string(state)).
				Msg("session resolved")
		}
	}
	return nil
}
