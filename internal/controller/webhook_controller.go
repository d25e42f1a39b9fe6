package controller

import (
	"io"
	"net/http"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxWebhookBodySize = 1 << 20

// WebhookController receives gateway event notifications. Routes are keyed by
// vendor name since that is what the providers' dashboards are configured
// with.
type WebhookController struct {
	webhooks *service.WebhookService
}

// NewWebhookController creates a new WebhookController.
func NewWebhookController(webhooks *service.WebhookService) *WebhookController {
	return &WebhookController{webhooks: webhooks}
}

var vendorKinds = map[string]processor.Kind{
	"stripe": processor.KindCard,
	"paypal": processor.KindWallet,
	"square": processor.KindLinkBased,
}

// Receive handles POST /webhooks/{vendor}
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")
	kind, ok := vendorKinds[vendor]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown vendor", Code: "not_found"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "invalid_body"})
		return
	}

	err = h.webhooks.Handle(r.Context(), kind, gateway.WebhookRequest{
		Body:    body,
		Headers: r.Header,
	})
	if err != nil {
		// Verification failures get a 400 so the provider stops retrying a
		// request that will never verify; everything else gets a 500 and a
		// redelivery.
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
