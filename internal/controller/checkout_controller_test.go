package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/internal/service"
	"github.com/cassiomorais/memberpay/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router   *chi.Mux
	sessions *testutil.MockSessionRepository
	links    *testutil.MockCustomerLinkRepository
}

// setupAPI wires the real services behind the controllers, with mocked
// settings, repositories, and gateways.
func setupAPI(values map[string]string, gateways map[processor.Kind]*testutil.MockGateway) *apiFixture {
	gws := make(map[processor.Kind]gateway.Gateway, len(gateways))
	for kind, gw := range gateways {
		gw.KindValue = kind
		gws[kind] = gw
	}
	return setupAPIGateways(values, gws)
}

func setupAPIGateways(values map[string]string, gateways map[processor.Kind]gateway.Gateway) *apiFixture {
	store := testutil.NewMockSettingsStore(values)
	links := testutil.NewMockCustomerLinkRepository()
	sessions := testutil.NewMockSessionRepository()

	registry := gateway.NewRegistry(nil)
	for kind, gw := range gateways {
		impl := gw
		registry.Register(kind, func(ctx context.Context) (gateway.Gateway, error) {
			return impl, nil
		})
	}

	checkout := service.NewCheckoutService(
		service.NewProcessorSelector(store), store, registry, links, sessions,
		testutil.NewMockLocker(), nil, zerolog.Nop(),
	)
	webhooks := service.NewWebhookService(registry, checkout, sessions, nil, zerolog.Nop())

	checkoutH := NewCheckoutController(checkout)
	webhookH := NewWebhookController(webhooks)

	r := chi.NewRouter()
	r.Post("/webhooks/{vendor}", webhookH.Receive)
	r.Get("/api/v1/processor", checkoutH.GetProcessor)
	r.Post("/api/v1/checkout-sessions", checkoutH.CreateSession)
	r.Get("/api/v1/checkout-sessions/{id}", checkoutH.GetSessionStatus)
	r.Post("/api/v1/refunds", checkoutH.CreateRefund)
	r.Post("/api/v1/customers", checkoutH.EnsureCustomer)
	r.Get("/api/v1/members/{memberID}/payment-methods", checkoutH.ListPaymentMethods)
	r.Post("/api/v1/members/{memberID}/payment-methods/setup", checkoutH.CreatePaymentMethodSetup)
	r.Post("/api/v1/members/{memberID}/payment-methods/confirm", checkoutH.ConfirmPaymentMethodSetup)
	r.Delete("/api/v1/members/{memberID}/payment-methods/{id}", checkoutH.DeletePaymentMethod)

	return &apiFixture{router: r, sessions: sessions, links: links}
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetProcessor_ReportsActive(t *testing.T) {
	f := setupAPI(testutil.SettingsWithActive("wallet"), nil)

	w := doJSON(t, f.router, http.MethodGet, "/api/v1/processor", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ActiveProcessorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Active)
	assert.Equal(t, "wallet", resp.Processor)
	assert.Equal(t, "usd", resp.Currency)
}

func TestGetProcessor_ReportsDisabled(t *testing.T) {
	f := setupAPI(map[string]string{}, nil)

	w := doJSON(t, f.router, http.MethodGet, "/api/v1/processor", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ActiveProcessorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Active)
	assert.Empty(t, resp.Processor)
}

func TestCreateSession_Created(t *testing.T) {
	gw := &testutil.MockGateway{}
	f := setupAPI(testutil.SettingsWithActive("wallet"),
		map[processor.Kind]*testutil.MockGateway{processor.KindWallet: gw})

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/checkout-sessions", map[string]any{
		"member_id":    "member-1",
		"description":  "Monthly plan",
		"amount_cents": 2500,
		"success_url":  "https://shop.test/ok",
		"cancel_url":   "https://shop.test/no",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CheckoutSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://pay.example.com/session", resp.URL)
	assert.Equal(t, "sess_mock", resp.SessionID)
	assert.Equal(t, "wallet", resp.Processor)

	require.NotNil(t, f.sessions.Session("sess_mock"))
}

func TestCreateSession_ValidationError(t *testing.T) {
	f := setupAPI(testutil.SettingsWithActive("wallet"), walletGateways())

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/checkout-sessions", map[string]any{
		"amount_cents": 2500,
		"cancel_url":   "https://shop.test/no",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
}

func TestCreateSession_NoProcessorConfigured(t *testing.T) {
	f := setupAPI(map[string]string{}, nil)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/checkout-sessions", map[string]any{
		"amount_cents": 2500,
		"success_url":  "https://shop.test/ok",
		"cancel_url":   "https://shop.test/no",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_configured", resp.Code)
	assert.Contains(t, resp.Error, "not configured")
}

func TestGetSessionStatus_RefreshesPendingSession(t *testing.T) {
	gw := &testutil.MockGateway{
		GetOrderStatusFunc: func(ctx context.Context, orderID string) (processor.OrderStatus, error) {
			return processor.OrderCompleted, nil
		},
	}
	f := setupAPI(testutil.SettingsWithActive("linkbased"),
		map[processor.Kind]*testutil.MockGateway{processor.KindLinkBased: gw})

	sess := testutil.NewTestSession(processor.KindLinkBased, "ORDER-1")
	require.NoError(t, f.sessions.Create(context.Background(), sess))

	w := doJSON(t, f.router, http.MethodGet, "/api/v1/checkout-sessions/ORDER-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SessionStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, sess.SessionID, resp.SessionID)
	assert.Equal(t, "completed", resp.State)
}

func TestGetSessionStatus_UnknownSession(t *testing.T) {
	f := setupAPI(testutil.SettingsWithActive("wallet"), walletGateways())

	w := doJSON(t, f.router, http.MethodGet, "/api/v1/checkout-sessions/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionStatus_RejectsUnknownProcessorParam(t *testing.T) {
	f := setupAPI(testutil.SettingsWithActive("wallet"), walletGateways())

	w := doJSON(t, f.router, http.MethodGet, "/api/v1/checkout-sessions/x?processor=bitcoin", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
}

func TestCreateRefund_Success(t *testing.T) {
	gw := &testutil.MockGateway{
		CreateRefundFunc: func(ctx context.Context, req gateway.RefundRequest) (string, error) {
			assert.Equal(t, "order_1", req.Reference)
			return "re_123", nil
		},
	}
	f := setupAPI(testutil.SettingsWithActive("wallet"),
		map[processor.Kind]*testutil.MockGateway{processor.KindWallet: gw})

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/refunds", map[string]any{
		"reference": "order_1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp processor.RefundResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "re_123", resp.RefundID)
}

func TestCreateRefund_FailureEnvelope(t *testing.T) {
	gw := &testutil.MockGateway{
		CreateRefundFunc: func(ctx context.Context, req gateway.RefundRequest) (string, error) {
			return "", domainErrors.NewProviderError("PayPal", 422, "Capture is fully refunded")
		},
	}
	f := setupAPI(testutil.SettingsWithActive("wallet"),
		map[processor.Kind]*testutil.MockGateway{processor.KindWallet: gw})

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/refunds", map[string]any{
		"reference": "order_1",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp processor.RefundResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Capture is fully refunded", resp.Error)
}

func TestCreateRefund_NoProcessorConfiguredEnvelope(t *testing.T) {
	f := setupAPI(map[string]string{}, nil)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/refunds", map[string]any{
		"reference": "order_1",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp processor.RefundResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not configured")
}

func TestEnsureCustomer_ReturnsLink(t *testing.T) {
	gw := &testutil.MockGateway{
		CreateCustomerFunc: func(ctx context.Context, req gateway.CustomerRequest) (string, error) {
			return "cus_77", nil
		},
	}
	f := setupAPI(testutil.SettingsWithActive("card"),
		map[processor.Kind]*testutil.MockGateway{processor.KindCard: gw})

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/customers", map[string]any{
		"member_id": "member-9",
		"email":     "m@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CustomerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "member-9", resp.MemberID)
	assert.Equal(t, "card", resp.Processor)
	assert.Equal(t, "cus_77", resp.CustomerID)
}

func TestWebhookReceive_UnknownVendor(t *testing.T) {
	f := setupAPI(testutil.SettingsWithActive("wallet"), walletGateways())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/bitpay", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookReceive_VerificationFailure(t *testing.T) {
	gw := &testutil.MockGateway{
		VerifyWebhookFunc: func(ctx context.Context, req gateway.WebhookRequest) error {
			return domainErrors.ErrVerificationFailed
		},
	}
	f := setupAPI(testutil.SettingsWithActive("wallet"),
		map[processor.Kind]*testutil.MockGateway{processor.KindWallet: gw})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "verification_failed", resp.Code)
}

func TestWebhookReceive_Acknowledged(t *testing.T) {
	gw := &testutil.MockGateway{}
	f := setupAPI(testutil.SettingsWithActive("wallet"),
		map[processor.Kind]*testutil.MockGateway{processor.KindWallet: gw})

	body := `{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"supplementary_data":{"related_ids":{"order_id":"ORDER-X"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"received"}`, w.Body.String())
}

func walletGateways() map[processor.Kind]*testutil.MockGateway {
	return map[processor.Kind]*testutil.MockGateway{processor.KindWallet: {}}
}

func TestCreatePaymentMethodSetup_ReturnsApprovalURL(t *testing.T) {
	gw := &testutil.MockVaultGateway{
		CreateVaultSetupTokenFunc: func(ctx context.Context, customerID, returnURL, cancelURL string) (string, string, error) {
			return "ST-1", "https://paypal.test/vault/approve", nil
		},
	}
	gw.KindValue = processor.KindWallet
	f := setupAPIGateways(testutil.SettingsWithActive("wallet"),
		map[processor.Kind]gateway.Gateway{processor.KindWallet: gw})

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/members/member-1/payment-methods/setup", map[string]string{
		"return_url": "https://shop.test/back",
		"cancel_url": "https://shop.test/nope",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp PaymentMethodSetupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ST-1", resp.SetupTokenID)
	assert.Equal(t, "https://paypal.test/vault/approve", resp.ApprovalURL)
}

func TestCreatePaymentMethodSetup_MissingURLs(t *testing.T) {
	f := setupAPI(testutil.SettingsWithActive("wallet"), nil)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/members/member-1/payment-methods/setup", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
}

func TestCreatePaymentMethodSetup_UnsupportedProcessor(t *testing.T) {
	gw := &testutil.MockGateway{}
	f := setupAPI(testutil.SettingsWithActive("linkbased"),
		map[processor.Kind]*testutil.MockGateway{processor.KindLinkBased: gw})

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/members/member-1/payment-methods/setup", map[string]string{
		"return_url": "https://shop.test/back",
		"cancel_url": "https://shop.test/nope",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "vault_unsupported", resp.Code)
}

func TestConfirmPaymentMethodSetup_ReturnsMethodID(t *testing.T) {
	gw := &testutil.MockVaultGateway{
		ConfirmVaultSetupTokenFunc: func(ctx context.Context, setupTokenID string) (string, error) {
			assert.Equal(t, "ST-1", setupTokenID)
			return "PT-9", nil
		},
	}
	gw.KindValue = processor.KindWallet
	f := setupAPIGateways(testutil.SettingsWithActive("wallet"),
		map[processor.Kind]gateway.Gateway{processor.KindWallet: gw})

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/members/member-1/payment-methods/confirm", map[string]string{
		"setup_token_id": "ST-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp PaymentMethodResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PT-9", resp.PaymentMethodID)
}
