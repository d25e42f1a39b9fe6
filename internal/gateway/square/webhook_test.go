package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	cfg := Config{
		AccessToken:     "sq-token",
		LocationID:      "LOC-1",
		WebhookSecret:   "sig-key",
		NotificationURL: "https://shop.test/webhooks/square",
	}
	body := []byte(`{"type":"payment.updated","data":{}}`)

	t.Run("accepts a valid signature", func(t *testing.T) {
		a := NewAdapter(cfg, http.DefaultClient)
		headers := http.Header{}
		headers.Set(signatureHeader, signBody(cfg.WebhookSecret, cfg.NotificationURL, body))

		err := a.VerifyWebhook(context.Background(), gateway.WebhookRequest{Body: body, Headers: headers})
		assert.NoError(t, err)
	})

	t.Run("rejects a tampered body", func(t *testing.T) {
		a := NewAdapter(cfg, http.DefaultClient)
		headers := http.Header{}
		headers.Set(signatureHeader, signBody(cfg.WebhookSecret, cfg.NotificationURL, body))

		tampered := append([]byte(nil), body...)
		tampered[len(tampered)-2] = 'x'

		err := a.VerifyWebhook(context.Background(), gateway.WebhookRequest{Body: tampered, Headers: headers})
		assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
	})

	t.Run("rejects a signature for another endpoint", func(t *testing.T) {
		a := NewAdapter(cfg, http.DefaultClient)
		headers := http.Header{}
		headers.Set(signatureHeader, signBody(cfg.WebhookSecret, "https://evil.test/webhooks/square", body))

		err := a.VerifyWebhook(context.Background(), gateway.WebhookRequest{Body: body, Headers: headers})
		assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
	})

	t.Run("rejects a missing signature header", func(t *testing.T) {
		a := NewAdapter(cfg, http.DefaultClient)

		err := a.VerifyWebhook(context.Background(), gateway.WebhookRequest{Body: body, Headers: http.Header{}})
		assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
	})

	t.Run("reports missing signature key as a configuration problem", func(t *testing.T) {
		bare := cfg
		bare.WebhookSecret = ""
		a := NewAdapter(bare, http.DefaultClient)

		err := a.VerifyWebhook(context.Background(), gateway.WebhookRequest{Body: body, Headers: http.Header{}})
		require.Error(t, err)

		var cfgErr *domainErrors.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}
