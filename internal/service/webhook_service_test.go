package service

import (
	"context"
	"testing"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWebhookService(gw *testutil.MockGateway, kind processor.Kind) (*WebhookService, *checkoutFixture) {
	f := setupCheckoutService(
		map[string]string{settings.KeyActiveProcessor: string(kind)},
		map[processor.Kind]*testutil.MockGateway{kind: gw},
	)
	ws := NewWebhookService(
		serviceRegistry(gw, kind), f.svc, f.sessions, nil, zerolog.Nop(),
	)
	return ws, f
}

// serviceRegistry rebuilds a registry with the same mock so the webhook
// service and the checkout service share one gateway.
func serviceRegistry(gw *testutil.MockGateway, kind processor.Kind) *gateway.Registry {
	r := gateway.NewRegistry(nil)
	gw.KindValue = kind
	r.Register(kind, func(ctx context.Context) (gateway.Gateway, error) {
		return gw, nil
	})
	return r
}

func TestWebhook_VerificationFailureRejectsEvent(t *testing.T) {
	gw := &testutil.MockGateway{
		VerifyWebhookFunc: func(ctx context.Context, req gateway.WebhookRequest) error {
			return domainErrors.ErrVerificationFailed
		},
	}
	ws, _ := setupWebhookService(gw, processor.KindWallet)

	err := ws.Handle(context.Background(), processor.KindWallet, gateway.WebhookRequest{
		Body: []byte(`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"order-1"}}`),
	})
	assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
}

func TestWebhook_WalletApprovalCapturesOrder(t *testing.T) {
	captured := false
	gw := &testutil.MockGateway{
		GetOrderStatusFunc: func(ctx context.Context, orderID string) (processor.OrderStatus, error) {
			return processor.OrderApproved, nil
		},
		CaptureOrderFunc: func(ctx context.Context, orderID string) (*gateway.Capture, error) {
			captured = true
			return &gateway.Capture{CaptureID: "cap_1", Status: processor.OrderCompleted}, nil
		},
	}
	ws, f := setupWebhookService(gw, processor.KindWallet)

	sess := testutil.NewTestSession(processor.KindWallet, "order-1")
	require.NoError(t, f.sessions.Create(context.Background(), sess))

	err := ws.Handle(context.Background(), processor.KindWallet, gateway.WebhookRequest{
		Body: []byte(`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"order-1"}}`),
	})
	require.NoError(t, err)
	assert.True(t, captured)
	assert.Equal(t, processor.SessionCompleted, f.sessions.Session(sess.SessionID).State)
}

func TestWebhook_CardSessionCompleted(t *testing.T) {
	ws, f := setupWebhookService(&testutil.MockGateway{}, processor.KindCard)

	sess := testutil.NewTestSession(processor.KindCard, "")
	sess.SessionID = "cs_123"
	require.NoError(t, f.sessions.Create(context.Background(), sess))

	err := ws.Handle(context.Background(), processor.KindCard, gateway.WebhookRequest{
		Body: []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, processor.SessionCompleted, f.sessions.Session("cs_123").State)
}

func TestWebhook_LinkBasedPaymentUpdated(t *testing.T) {
	gw := &testutil.MockGateway{
		GetOrderStatusFunc: func(ctx context.Context, orderID string) (processor.OrderStatus, error) {
			return processor.OrderCompleted, nil
		},
	}
	ws, f := setupWebhookService(gw, processor.KindLinkBased)

	sess := testutil.NewTestSession(processor.KindLinkBased, "sq-order-9")
	require.NoError(t, f.sessions.Create(context.Background(), sess))

	err := ws.Handle(context.Background(), processor.KindLinkBased, gateway.WebhookRequest{
		Body: []byte(`{"type":"payment.updated","data":{"object":{"payment":{"order_id":"sq-order-9"}}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, processor.SessionCompleted, f.sessions.Session(sess.SessionID).State)
}

func TestWebhook_UnknownOrderIsAcknowledged(t *testing.T) {
	ws, _ := setupWebhookService(&testutil.MockGateway{}, processor.KindWallet)

	err := ws.Handle(context.Background(), processor.KindWallet, gateway.WebhookRequest{
		Body: []byte(`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"order-missing"}}`),
	})
	assert.NoError(t, err)
}

func TestWebhook_IgnoredEventTypeIsAcknowledged(t *testing.T) {
	ws, _ := setupWebhookService(&testutil.MockGateway{}, processor.KindWallet)

	err := ws.Handle(context.Background(), processor.KindWallet, gateway.WebhookRequest{
		Body: []byte(`{"event_type":"BILLING.PLAN.CREATED","resource":{"id":"x"}}`),
	})
	assert.NoError(t, err)
}
