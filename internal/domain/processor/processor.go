package processor

import (
	"time"
)

// Kind identifies one of the supported payment processors. Exactly one kind is
// active at a time, or none.
type Kind string

const (
	KindCard      Kind = "card"      // Stripe
	KindWallet    Kind = "wallet"    // PayPal
	KindLinkBased Kind = "linkbased" // Square
)

// ActiveNone is the sentinel value of the active-processor setting that
// disables payments explicitly, overriding the per-provider enabled flags.
const ActiveNone = "none"

// ParseKind converts a stored string into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCard, KindWallet, KindLinkBased:
		return Kind(s), true
	}
	return "", false
}

// Vendor returns the provider name used in config keys and webhook routes.
func (k Kind) Vendor() string {
	switch k {
	case KindCard:
		return "stripe"
	case KindWallet:
		return "paypal"
	case KindLinkBased:
		return "square"
	}
	return string(k)
}

// OrderStatus is the normalized order lifecycle shared by the wallet and
// link-based processors.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderApproved  OrderStatus = "approved"
	OrderCompleted OrderStatus = "completed"
	OrderCanceled  OrderStatus = "canceled"
	OrderFailed    OrderStatus = "failed"
)

// Terminal reports whether the status will not change without a new action.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCompleted, OrderCanceled, OrderFailed:
		return true
	}
	return false
}

// CheckoutSessionResult is the unified envelope returned for every processor.
// URL is always present: it is where the payer is redirected or where the
// embedded checkout is hosted. Processor tags the adapter that produced the
// session so downstream status checks route correctly.
type CheckoutSessionResult struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id,omitempty"`
	Processor Kind   `json:"processor"`
}

// RefundResult is the unified refund envelope. Exactly one of RefundID or
// (Success=false, Error) is populated.
type RefundResult struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refund_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CustomerLink maps an internal member to a gateway customer/payer id.
// Created lazily on first checkout or payment-method-add, never deleted
// automatically.
type CustomerLink struct {
	MemberID           string
	Processor          Kind
	ExternalCustomerID string
	CreatedAt          time.Time
}

// PaymentMethodKind distinguishes stored card instruments from wallet tokens.
type PaymentMethodKind string

const (
	MethodCard   PaymentMethodKind = "card"
	MethodWallet PaymentMethodKind = "wallet"
)

// VaultedPaymentMethod is a read-only projection of a stored instrument,
// fetched live from the gateway and never persisted locally.
type VaultedPaymentMethod struct {
	ID       string            `json:"id"`
	Brand    string            `json:"brand"`
	Last4    string            `json:"last4"`
	ExpMonth int               `json:"exp_month,omitempty"`
	ExpYear  int               `json:"exp_year,omitempty"`
	Kind     PaymentMethodKind `json:"kind"`
}

// SessionState tracks a recorded checkout session through its lifecycle.
type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionCompleted SessionState = "completed"
	SessionCanceled  SessionState = "canceled"
	SessionFailed    SessionState = "failed"
)

// CheckoutSession is the locally recorded trace of a created session. Webhook
// handlers and the status poller resolve gateway order ids through it.
type CheckoutSession struct {
	SessionID   string
	Processor   Kind
	OrderID     string
	MemberID    string
	AmountCents int64
	Currency    string
	State       SessionState
	ReceiptURL  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FromOrderStatus maps a polled order status onto the session state machine.
func FromOrderStatus(s OrderStatus) SessionState {
	switch s {
	case OrderCompleted:
		return SessionCompleted
	case OrderCanceled:
		return SessionCanceled
	case OrderFailed:
		return SessionFailed
	}
	return SessionPending
}
