package square

import (
	"context"
	"net/http"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/gateway"
)

// LoadConfig reads the link-based credentials fresh from the settings store.
// notificationURL is deployment-level (the registered webhook endpoint), so it
// arrives from config rather than settings.
func LoadConfig(ctx context.Context, store settings.Store, notificationURL string) (Config, error) {
	accessToken, err := settings.GetDefault(ctx, store, settings.KeySquareAccessToken, "")
	if err != nil {
		return Config{}, err
	}
	locationID, err := settings.GetDefault(ctx, store, settings.KeySquareLocationID, "")
	if err != nil {
		return Config{}, err
	}
	applicationID, err := settings.GetDefault(ctx, store, settings.KeySquareApplicationID, "")
	if err != nil {
		return Config{}, err
	}
	sandbox, err := settings.GetDefault(ctx, store, settings.KeySquareSandbox, "")
	if err != nil {
		return Config{}, err
	}
	webhookSecret, err := settings.GetDefault(ctx, store, settings.KeySquareWebhookSecret, "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AccessToken:     accessToken,
		LocationID:      locationID,
		ApplicationID:   applicationID,
		Sandbox:         sandbox == "true" || sandbox == "1",
		WebhookSecret:   webhookSecret,
		NotificationURL: notificationURL,
	}
	if !cfg.Valid() {
		return Config{}, domainErrors.NewConfigurationError(processorName, "")
	}
	return cfg, nil
}

// FromSettings returns a registry builder constructing the adapter per call.
func FromSettings(store settings.Store, httpClient *http.Client, notificationURL string) gateway.Builder {
	return func(ctx context.Context) (gateway.Gateway, error) {
		cfg, err := LoadConfig(ctx, store, notificationURL)
		if err != nil {
			return nil, err
		}
		return NewAdapter(cfg, httpClient), nil
	}
}
