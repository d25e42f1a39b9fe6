package controller

import (
	"time"

	"github.com/cassiomorais/memberpay/internal/config"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/memberpay/internal/middleware"
	"github.com/cassiomorais/memberpay/internal/repository/postgres"
	"github.com/cassiomorais/memberpay/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	CheckoutService *service.CheckoutService
	WebhookService  *service.WebhookService
	SettingsStore   settings.Store
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	CORSConfig      config.CORSConfig
	JWTSecret       string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	checkoutH := NewCheckoutController(deps.CheckoutService)
	webhookH := NewWebhookController(deps.WebhookService)
	settingsH := NewSettingsController(deps.SettingsStore)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// Webhooks are signed by the gateways themselves, so they bypass the
	// regular API middleware like idempotency replay.
	r.Post("/webhooks/{vendor}", webhookH.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RateLimit(120))

		// Idempotency middleware for mutating endpoints.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		// Processor discovery
		r.Get("/processor", checkoutH.GetProcessor)

		// Checkout
		r.With(idempotencyMW).Post("/checkout-sessions", checkoutH.CreateSession)
		r.Get("/checkout-sessions/{id}", checkoutH.GetSessionStatus)

		// Refunds
		r.With(idempotencyMW).Post("/refunds", checkoutH.CreateRefund)

		// Customers and stored payment methods
		r.With(idempotencyMW).Post("/customers", checkoutH.EnsureCustomer)
		r.Get("/members/{memberID}/payment-methods", checkoutH.ListPaymentMethods)
		r.Post("/members/{memberID}/payment-methods/setup", checkoutH.CreatePaymentMethodSetup)
		r.Post("/members/{memberID}/payment-methods/confirm", checkoutH.ConfirmPaymentMethodSetup)
		r.Delete("/members/{memberID}/payment-methods/{id}", checkoutH.DeletePaymentMethod)

		// Admin settings. Left open when no secret is configured, for local
		// development only.
		r.Route("/admin", func(r chi.Router) {
			if deps.JWTSecret != "" {
				r.Use(customMW.RequireAuth(deps.JWTSecret))
			}
			r.Get("/settings", settingsH.List)
			r.Put("/settings", settingsH.Update)
		})
	})

	return r
}
