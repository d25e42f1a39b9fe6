package bootstrap

import (
	"net/http"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/internal/gateway/paypal"
	"github.com/cassiomorais/memberpay/internal/gateway/square"
	"github.com/cassiomorais/memberpay/internal/gateway/stripe"
	infraRedis "github.com/cassiomorais/memberpay/internal/infrastructure/redis"
	"github.com/cassiomorais/memberpay/internal/repository/postgres"
	"github.com/cassiomorais/memberpay/internal/service"
)

// PaymentCore bundles the payment services shared by the API and the worker.
type PaymentCore struct {
	SettingsStore   settings.Store
	Registry        *gateway.Registry
	CheckoutService *service.CheckoutService
	WebhookService  *service.WebhookService
	SessionRepo     processor.SessionRepository
	IdempotencyRepo *postgres.IdempotencyRepository
}

// BuildPaymentCore wires repositories, gateway adapters, and services on top
// of a bootstrapped App. Adapters share one HTTP client; the wallet token
// cache survives adapter rebuilds so credential reads stay cheap.
func BuildPaymentCore(app *App) *PaymentCore {
	settingsRepo := postgres.NewSettingsRepository(app.Pool)
	linkRepo := postgres.NewCustomerLinkRepository(app.Pool)
	sessionRepo := postgres.NewSessionRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)

	httpClient := &http.Client{Timeout: app.Config.Gateway.RequestTimeout}
	tokenCache := paypal.NewTokenCache()

	registry := gateway.NewRegistry(app.Metrics)
	registry.Register(processor.KindCard, stripe.FromSettings(settingsRepo, httpClient))
	registry.Register(processor.KindWallet, paypal.FromSettings(settingsRepo, httpClient, tokenCache))
	registry.Register(processor.KindLinkBased, square.FromSettings(settingsRepo, httpClient, app.Config.Gateway.NotificationURL))

	locks := infraRedis.NewLockManager(app.Redis, app.Config.Gateway.LockTTL)
	selector := service.NewProcessorSelector(settingsRepo)

	checkoutSvc := service.NewCheckoutService(
		selector, settingsRepo, registry, linkRepo, sessionRepo,
		locks, app.Metrics, app.Logger,
	)
	webhookSvc := service.NewWebhookService(
		registry, checkoutSvc, sessionRepo, app.Metrics, app.Logger,
	)

	return &PaymentCore{
		SettingsStore:   settingsRepo,
		Registry:        registry,
		CheckoutService: checkoutSvc,
		WebhookService:  webhookSvc,
		SessionRepo:     sessionRepo,
		IdempotencyRepo: idempotencyRepo,
	}
}
