package paypal

import (
	"context"
	"encoding/json"
	"net/http"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/gateway"
)

// VerifyWebhook authenticates an event by round-tripping the transmission
// headers and parsed body to PayPal's verification endpoint. PayPal owns the
// certificate that signs payloads, so there is no local check to fall back on.
func (a *Adapter) VerifyWebhook(ctx context.Context, req gateway.WebhookRequest) error {
	if a.cfg.WebhookID == "" {
		return domainErrors.NewConfigurationError(processorName, "webhook id missing")
	}

	var event json.RawMessage
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return domainErrors.ErrVerificationFailed
	}

	body := struct {
		AuthAlgo         string          `json:"auth_algo"`
		CertURL          string          `json:"cert_url"`
		TransmissionID   string          `json:"transmission_id"`
		TransmissionSig  string          `json:"transmission_sig"`
		TransmissionTime string          `json:"transmission_time"`
		WebhookID        string          `json:"webhook_id"`
		WebhookEvent     json.RawMessage `json:"webhook_event"`
	}{
		AuthAlgo:         req.Headers.Get("Paypal-Auth-Algo"),
		CertURL:          req.Headers.Get("Paypal-Cert-Url"),
		TransmissionID:   req.Headers.Get("Paypal-Transmission-Id"),
		TransmissionSig:  req.Headers.Get("Paypal-Transmission-Sig"),
		TransmissionTime: req.Headers.Get("Paypal-Transmission-Time"),
		WebhookID:        a.cfg.WebhookID,
		WebhookEvent:     event,
	}

	header, err := a.authHeader(ctx)
	if err != nil {
		return err
	}

	var resp struct {
		VerificationStatus string `json:"verification_status"`
	}
	err = a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v1/notifications/verify-webhook-signature", header, body, &resp)
	if err != nil {
		return err
	}
	if resp.VerificationStatus != "SUCCESS" {
		return domainErrors.ErrVerificationFailed
	}
	return nil
}
