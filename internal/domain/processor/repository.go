package processor

import (
	"context"
)

// CustomerLinkRepository persists member-to-gateway customer mappings.
//
// Upsert must be safe under concurrent first-time creation for the same
// member: implementations back it with a unique constraint on
// (member_id, processor) and return the already-stored link when the insert
// conflicts.
type CustomerLinkRepository interface {
	// Get retrieves the link for a member under a processor. Returns
	// errors.ErrCustomerLinkNotFound when absent.
	Get(ctx context.Context, memberID string, kind Kind) (*CustomerLink, error)

	// Upsert inserts the link, or returns the existing one on conflict.
	Upsert(ctx context.Context, link *CustomerLink) (*CustomerLink, error)
}

// SessionRepository records created checkout sessions for webhook routing and
// status reconciliation.
type SessionRepository interface {
	Create(ctx context.Context, s *CheckoutSession) error

	// GetByOrderID resolves a session from a gateway order id. Returns
	// errors.ErrSessionNotFound when absent.
	GetByOrderID(ctx context.Context, kind Kind, orderID string) (*CheckoutSession, error)

	// UpdateState transitions a session and optionally attaches a receipt URL.
	UpdateState(ctx context.Context, sessionID string, state SessionState, receiptURL string) error

	// ListPending returns non-terminal sessions older than the given age, for
	// the webhook-free polling fallback.
	ListPending(ctx context.Context, limit int) ([]*CheckoutSession, error)
}
