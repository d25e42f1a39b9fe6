package stripe

import (
	"context"
	"net/http"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/gateway"
)

// LoadConfig reads the card credentials fresh from the settings store.
func LoadConfig(ctx context.Context, store settings.Store) (Config, error) {
	secretKey, err := settings.GetDefault(ctx, store, settings.KeyStripeSecretKey, "")
	if err != nil {
		return Config{}, err
	}
	webhookSecret, err := settings.GetDefault(ctx, store, settings.KeyStripeWebhookSecret, "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{SecretKey: secretKey, WebhookSecret: webhookSecret}
	if !cfg.Valid() {
		return Config{}, domainErrors.NewConfigurationError(processorName, "")
	}
	return cfg, nil
}

// FromSettings returns a registry builder constructing the adapter per call.
func FromSettings(store settings.Store, httpClient *http.Client) gateway.Builder {
	return func(ctx context.Context) (gateway.Gateway, error) {
		cfg, err := LoadConfig(ctx, store)
		if err != nil {
			return nil, err
		}
		return NewAdapter(cfg, httpClient), nil
	}
}
