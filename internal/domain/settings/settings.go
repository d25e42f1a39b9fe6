package settings

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a settings key has no stored value.
var ErrNotFound = errors.New("setting not found")

// Store is the key/value settings store queried for processor credentials and
// feature flags. Values are read fresh on every orchestration call; only
// derived artifacts (OAuth tokens) are cached.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value for key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// GetAll returns every stored key/value pair.
	GetAll(ctx context.Context) (map[string]string, error)
}

// Keys consumed by the payment core.
const (
	KeyActiveProcessor = "payment_active_processor"
	KeyCurrency        = "currency"
	KeyTaxRate         = "taxRate"

	KeyStripeEnabled       = "payment_stripe_enabled"
	KeyStripeSecretKey     = "payment_stripe_secret_key"
	KeyStripeWebhookSecret = "payment_stripe_webhook_secret"

	KeyPayPalEnabled      = "payment_paypal_enabled"
	KeyPayPalClientID     = "payment_paypal_client_id"
	KeyPayPalClientSecret = "payment_paypal_client_secret"
	KeyPayPalSandbox      = "payment_paypal_sandbox"
	KeyPayPalWebhookID    = "payment_paypal_webhook_id"

	KeySquareEnabled       = "payment_square_enabled"
	KeySquareAccessToken   = "payment_square_access_token"
	KeySquareLocationID    = "payment_square_location_id"
	KeySquareApplicationID = "payment_square_application_id"
	KeySquareSandbox       = "payment_square_sandbox"
	KeySquareWebhookSecret = "payment_square_webhook_secret"
)

// GetDefault returns the value for key, or def when the key is absent.
func GetDefault(ctx context.Context, s Store, key, def string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
