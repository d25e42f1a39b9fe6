package controller

import (
	"net/http"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CheckoutController handles checkout, refund, and payment-method HTTP
// requests.
type CheckoutController struct {
	checkout *service.CheckoutService
}

// NewCheckoutController creates a new CheckoutController.
func NewCheckoutController(checkout *service.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// GetProcessor handles GET /api/v1/processor
func (h *CheckoutController) GetProcessor(w http.ResponseWriter, r *http.Request) {
	kind, ok, err := h.checkout.ActiveProcessor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	currency, err := h.checkout.Currency(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ActiveProcessorResponse{Active: ok, Currency: currency}
	if ok {
		resp.Processor = string(kind)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSession handles POST /api/v1/checkout-sessions
func (h *CheckoutController) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	items := make([]gateway.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, gateway.LineItem{
			Name:          it.Name,
			AmountCents:   it.AmountCents,
			Quantity:      it.Quantity,
			DiscountCents: it.DiscountCents,
		})
	}

	result, err := h.checkout.CreateCheckoutSession(r.Context(), service.CreateCheckoutRequest{
		MemberID:       req.MemberID,
		Email:          req.Email,
		Name:           req.Name,
		Description:    req.Description,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Items:          items,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		Metadata:       req.Metadata,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutSessionResponse{
		URL:       result.URL,
		SessionID: result.SessionID,
		OrderID:   result.OrderID,
		Processor: string(result.Processor),
	})
}

// GetSessionStatus handles GET /api/v1/checkout-sessions/{id}
//
// The id may be either the session id or the gateway order id. A pending
// session is refreshed against the gateway before it is returned, which makes
// this endpoint usable as the status poll for deployments without webhooks.
func (h *CheckoutController) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	kind, err := h.resolveKind(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.checkout.SessionByOrderID(r.Context(), kind, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.checkout.RefreshSession(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionStatusResponse(sess))
}

// CreateRefund handles POST /api/v1/refunds
//
// The outcome is always a result envelope; a failed refund answers with the
// provider's message in the error field rather than a bare HTTP error.
func (h *CheckoutController) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req CreateRefundRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	result := h.checkout.CreateRefund(r.Context(), service.RefundInput{
		Processor:      processor.Kind(req.Processor),
		Reference:      req.Reference,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		IdempotencyKey: idempotencyKey,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// EnsureCustomer handles POST /api/v1/customers
func (h *CheckoutController) EnsureCustomer(w http.ResponseWriter, r *http.Request) {
	var req EnsureCustomerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	customerID, err := h.checkout.EnsureCustomer(r.Context(), service.EnsureCustomerRequest{
		MemberID: req.MemberID,
		Email:    req.Email,
		Name:     req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	kind, _, err := h.checkout.ActiveProcessor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CustomerResponse{
		MemberID:   req.MemberID,
		Processor:  string(kind),
		CustomerID: customerID,
	})
}

// ListPaymentMethods handles GET /api/v1/members/{memberID}/payment-methods
func (h *CheckoutController) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	methods, err := h.checkout.ListPaymentMethods(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_methods": methods})
}

// DeletePaymentMethod handles DELETE /api/v1/members/{memberID}/payment-methods/{id}
func (h *CheckoutController) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	methodID := chi.URLParam(r, "id")

	if err := h.checkout.DeletePaymentMethod(r.Context(), memberID, methodID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePaymentMethodSetup handles POST /api/v1/members/{memberID}/payment-methods/setup
//
// Starts vaulting under the active processor. The response carries an approval
// URL the payer must visit before the setup can be confirmed.
func (h *CheckoutController) CreatePaymentMethodSetup(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req CreatePaymentMethodSetupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	setup, err := h.checkout.BeginPaymentMethodSetup(r.Context(), memberID, req.ReturnURL, req.CancelURL)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentMethodSetupResponse{
		SetupTokenID: setup.SetupTokenID,
		ApprovalURL:  setup.ApprovalURL,
	})
}

// ConfirmPaymentMethodSetup handles POST /api/v1/members/{memberID}/payment-methods/confirm
func (h *CheckoutController) ConfirmPaymentMethodSetup(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentMethodSetupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	methodID, err := h.checkout.ConfirmPaymentMethodSetup(r.Context(), req.SetupTokenID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PaymentMethodResponse{PaymentMethodID: methodID})
}

func (h *CheckoutController) resolveKind(r *http.Request) (processor.Kind, error) {
	if raw := r.URL.Query().Get("processor"); raw != "" {
		if kind, ok := processor.ParseKind(raw); ok {
			return kind, nil
		}
		return "", domainErrors.NewValidationError("processor", "unknown processor "+raw)
	}
	kind, ok, err := h.checkout.ActiveProcessor(r.Context())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domainErrors.ErrNoProcessorConfigured
	}
	return kind, nil
}
