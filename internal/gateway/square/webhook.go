package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/gateway"
)

const signatureHeader = "X-Square-Hmacsha256-Signature"

// VerifyWebhook checks the HMAC-SHA256 signature Square computes over the
// notification URL concatenated with the raw body, base64-encoded. This is a
// local check; no round trip to the gateway is required.
func (a *Adapter) VerifyWebhook(_ context.Context, req gateway.WebhookRequest) error {
	if a.cfg.WebhookSecret == "" {
		return domainErrors.NewConfigurationError(processorName, "webhook signature key missing")
	}

	supplied := req.Headers.Get(signatureHeader)
	if supplied == "" {
		return domainErrors.ErrVerificationFailed
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(a.cfg.NotificationURL))
	mac.Write(req.Body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(supplied), []byte(expected)) {
		return domainErrors.ErrVerificationFailed
	}
	return nil
}
