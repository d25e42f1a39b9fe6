package controller

import (
	"time"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, wire naming).
// Controllers convert these to service layer DTOs before calling business logic.

// LineItemRequest is one itemized checkout entry.
type LineItemRequest struct {
	Name          string `json:"name" validate:"required"`
	AmountCents   int64  `json:"amount_cents" validate:"required,gt=0"`
	Quantity      int64  `json:"quantity" validate:"required,gt=0"`
	DiscountCents int64  `json:"discount_cents" validate:"gte=0"`
}

// CreateCheckoutSessionRequest holds the input for creating a checkout.
type CreateCheckoutSessionRequest struct {
	MemberID    string            `json:"member_id"`
	Email       string            `json:"email" validate:"omitempty,email"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	AmountCents int64             `json:"amount_cents" validate:"required,gt=0"`
	Currency    string            `json:"currency" validate:"omitempty,len=3"`
	Items       []LineItemRequest `json:"items" validate:"dive"`
	SuccessURL  string            `json:"success_url" validate:"required,url"`
	CancelURL   string            `json:"cancel_url" validate:"required,url"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateRefundRequest holds the input for reversing a charge.
type CreateRefundRequest struct {
	Reference   string `json:"reference" validate:"required"`
	Processor   string `json:"processor" validate:"omitempty,oneof=card wallet linkbased"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
}

// EnsureCustomerRequest holds the input for resolving a gateway customer.
type EnsureCustomerRequest struct {
	MemberID string `json:"member_id" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name"`
}

// CreatePaymentMethodSetupRequest starts vaulting a new instrument.
type CreatePaymentMethodSetupRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
	CancelURL string `json:"cancel_url" validate:"required,url"`
}

// ConfirmPaymentMethodSetupRequest completes an approved vaulting flow.
type ConfirmPaymentMethodSetupRequest struct {
	SetupTokenID string `json:"setup_token_id" validate:"required"`
}

// UpdateSettingsRequest is a batch of settings writes.
type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1"`
}

// --- Response DTOs ---

// CheckoutSessionResponse represents a created checkout session.
type CheckoutSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id,omitempty"`
	Processor string `json:"processor"`
}

// SessionStatusResponse represents the state of a recorded session.
type SessionStatusResponse struct {
	SessionID  string    `json:"session_id"`
	Processor  string    `json:"processor"`
	State      string    `json:"state"`
	ReceiptURL string    `json:"receipt_url,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PaymentMethodSetupResponse is the payer-facing handle for a vaulting flow.
type PaymentMethodSetupResponse struct {
	SetupTokenID string `json:"setup_token_id"`
	ApprovalURL  string `json:"approval_url"`
}

// PaymentMethodResponse reports the stored token of a confirmed setup.
type PaymentMethodResponse struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// CustomerResponse represents a resolved gateway customer link.
type CustomerResponse struct {
	MemberID   string `json:"member_id"`
	Processor  string `json:"processor"`
	CustomerID string `json:"customer_id"`
}

// ActiveProcessorResponse reports the active processor, if any.
type ActiveProcessorResponse struct {
	Active    bool   `json:"active"`
	Processor string `json:"processor,omitempty"`
	Currency  string `json:"currency"`
}

// ErrorResponse is the error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func toSessionStatusResponse(s *processor.CheckoutSession) SessionStatusResponse {
	return SessionStatusResponse{
		SessionID:  s.SessionID,
		Processor:  string(s.Processor),
		State:      string(s.State),
		ReceiptURL: s.ReceiptURL,
		UpdatedAt:  s.UpdatedAt,
	}
}
