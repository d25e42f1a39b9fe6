package testutil

import (
	"time"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/google/uuid"
)

// NewTestSession builds a pending checkout session for a processor.
func NewTestSession(kind processor.Kind, orderID string) *processor.CheckoutSession {
	now := time.Now()
	return &processor.CheckoutSession{
		SessionID:   uuid.New().String(),
		Processor:   kind,
		OrderID:     orderID,
		MemberID:    "member-1",
		AmountCents: 2500,
		Currency:    "usd",
		State:       processor.SessionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SettingsWithActive returns a settings map with the active processor set and
// plausible credentials for all three processors.
func SettingsWithActive(active string) map[string]string {
	m := map[string]string{
		settings.KeyStripeSecretKey:     "sk_test_123",
		settings.KeyStripeWebhookSecret: "whsec_123",
		settings.KeyPayPalClientID:      "pp-client",
		settings.KeyPayPalClientSecret:  "pp-secret",
		settings.KeyPayPalSandbox:       "true",
		settings.KeySquareAccessToken:   "sq-token",
		settings.KeySquareLocationID:    "sq-location",
		settings.KeySquareSandbox:       "true",
	}
	if active != "" {
		m[settings.KeyActiveProcessor] = active
	}
	return m
}
