package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/memberpay/internal/bootstrap"
	"github.com/cassiomorais/memberpay/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "memberpay-worker", "memberpay_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	core := bootstrap.BuildPaymentCore(app)

	reconciler := service.NewSessionReconciler(
		core.CheckoutService,
		core.SessionRepo,
		app.Metrics,
		app.Logger,
		app.Config.Reconciler.Interval,
		app.Config.Reconciler.BatchSize,
	)

	app.Logger.Info().
		Dur("interval", app.Config.Reconciler.Interval).
		Int("batch_size", app.Config.Reconciler.BatchSize).
		Msg("Worker started, reconciling pending sessions...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Session status reconciler (polls gateways for pending sessions).
	g.Go(func() error {
		return reconciler.Run(gCtx)
	})

	// 2. Expired idempotency key cleanup.
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				removed, err := core.IdempotencyRepo.Cleanup(gCtx)
				if err != nil {
					app.Logger.Error().Err(err).Msg("Idempotency cleanup failed")
					continue
				}
				if removed > 0 {
					app.Logger.Info().Int64("removed", removed).Msg("Cleaned up expired idempotency keys")
				}
			}
		}
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
