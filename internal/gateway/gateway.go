package gateway

import (
	"context"
	"net/http"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
)

// LineItem is one itemized entry of a checkout. DiscountCents applies to the
// whole line and is folded into the per-unit amount by adapters that support
// itemization.
type LineItem struct {
	Name          string
	AmountCents   int64 // unit price in minor units
	Quantity      int64
	DiscountCents int64
}

// CheckoutRequest carries everything needed to build a hosted checkout.
// IdempotencyKey is caller-supplied and must be stable across retries of the
// same logical checkout so provider-side dedup actually protects the caller.
type CheckoutRequest struct {
	AmountCents    int64
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	MemberID       string
	CustomerID     string // resolved external customer id, when known
	PayerEmail     string
	Items          []LineItem
	TaxRatePercent float64
	Metadata       map[string]string
	IdempotencyKey string
}

// RefundRequest identifies a settled charge to reverse. AmountCents of zero
// means a full refund for processors that support the shorthand.
type RefundRequest struct {
	Reference      string // charge/capture/payment id, per processor
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// CustomerRequest creates a gateway-side customer for a member.
type CustomerRequest struct {
	MemberID string
	Email    string
	Name     string
}

// WebhookRequest is an inbound event notification pending verification.
type WebhookRequest struct {
	Body    []byte
	Headers http.Header
}

// Capture is the result of finalizing an approved order.
type Capture struct {
	CaptureID  string
	PayerID    string
	PayerEmail string
	Status     processor.OrderStatus
}

// Gateway is the uniform low-level contract all three processor adapters
// satisfy. Adapters convert provider error shapes into the taxonomy in
// internal/domain/errors and never leak wire-level types.
type Gateway interface {
	Kind() processor.Kind

	CreateCheckout(ctx context.Context, req CheckoutRequest) (*processor.CheckoutSessionResult, error)

	// CreateRefund returns the provider refund id.
	CreateRefund(ctx context.Context, req RefundRequest) (string, error)

	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)

	ListPaymentMethods(ctx context.Context, customerID string) ([]processor.VaultedPaymentMethod, error)

	DeletePaymentMethod(ctx context.Context, customerID, methodID string) error

	// GetOrderStatus polls the gateway for the normalized order status, the
	// webhook-free fallback flow.
	GetOrderStatus(ctx context.Context, orderID string) (processor.OrderStatus, error)

	// VerifyWebhook authenticates an inbound event. A verification failure is
	// fatal to webhook processing, never treated as success.
	VerifyWebhook(ctx context.Context, req WebhookRequest) error
}

// OrderCapturer finalizes approved redirect orders. Implemented by the wallet
// adapter.
type OrderCapturer interface {
	CaptureOrder(ctx context.Context, orderID string) (*Capture, error)
}

// ReceiptResolver resolves the payer-facing receipt URL of a completed order.
// Implemented by the link-based adapter, which exposes receipts through the
// order's tender rather than on the order itself.
type ReceiptResolver interface {
	GetReceiptURL(ctx context.Context, orderID string) (string, error)
}

// Vault manages stored payment instruments for off-session charges.
// Implemented by the wallet adapter as a two-phase setup-token flow.
type Vault interface {
	// CreateVaultSetupToken starts vaulting; the payer must visit the
	// returned approval URL.
	CreateVaultSetupToken(ctx context.Context, customerID, returnURL, cancelURL string) (setupTokenID, approvalURL string, err error)

	// ConfirmVaultSetupToken exchanges an approved setup token for a durable
	// payment token id.
	ConfirmVaultSetupToken(ctx context.Context, setupTokenID string) (paymentTokenID string, err error)

	// ChargeVaultedToken creates and immediately captures an order against a
	// stored token, no redirect involved.
	ChargeVaultedToken(ctx context.Context, paymentTokenID string, amountCents int64, currency, description string) (captureID string, err error)
}

// StoredCardCharger charges a previously stored card in one auto-completed
// call, used for recurring billing. Implemented by the link-based adapter.
type StoredCardCharger interface {
	ChargeStoredCard(ctx context.Context, customerID, cardID string, amountCents int64, currency, note string) (paymentID string, err error)
}
