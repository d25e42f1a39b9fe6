package paypal

import (
	"context"
	"net/http"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/gateway"
)

// LoadConfig reads the wallet credentials fresh from the settings store.
func LoadConfig(ctx context.Context, store settings.Store) (Config, error) {
	clientID, err := settings.GetDefault(ctx, store, settings.KeyPayPalClientID, "")
	if err != nil {
		return Config{}, err
	}
	clientSecret, err := settings.GetDefault(ctx, store, settings.KeyPayPalClientSecret, "")
	if err != nil {
		return Config{}, err
	}
	sandbox, err := settings.GetDefault(ctx, store, settings.KeyPayPalSandbox, "")
	if err != nil {
		return Config{}, err
	}
	webhookID, err := settings.GetDefault(ctx, store, settings.KeyPayPalWebhookID, "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Sandbox:      sandbox == "true" || sandbox == "1",
		WebhookID:    webhookID,
	}
	if !cfg.Valid() {
		return Config{}, domainErrors.NewConfigurationError(processorName, "")
	}
	return cfg, nil
}

// FromSettings returns a registry builder constructing the adapter per call.
func FromSettings(store settings.Store, httpClient *http.Client, tokens *TokenCache) gateway.Builder {
	return func(ctx context.Context) (gateway.Gateway, error) {
		cfg, err := LoadConfig(ctx, store)
		if err != nil {
			return nil, err
		}
		return NewAdapter(cfg, httpClient, tokens), nil
	}
}
