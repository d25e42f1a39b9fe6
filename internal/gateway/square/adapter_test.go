package square

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := NewAdapter(Config{
		AccessToken:     "sq-token",
		LocationID:      "LOC-1",
		Sandbox:         true,
		WebhookSecret:   "sig-key",
		NotificationURL: "https://shop.test/webhooks/square",
	}, srv.Client())
	a.baseURLOverride = srv.URL
	return a
}

func TestCreateCheckout_CreatesPaymentLink(t *testing.T) {
	var got paymentLinkRequest

	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/online-checkout/payment-links", r.URL.Path)
		assert.Equal(t, "Bearer sq-token", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("Square-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{
			"payment_link": map[string]string{
				"id":       "LINK-1",
				"url":      "https://square.link/u/abc",
				"order_id": "ORDER-1",
			},
		})
	})

	result, err := a.CreateCheckout(context.Background(), gateway.CheckoutRequest{
		AmountCents:    1999,
		Currency:       "usd",
		Description:    "Day pass",
		SuccessURL:     "https://shop.test/ok",
		IdempotencyKey: "ck-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "ck-1", got.IdempotencyKey)
	assert.Equal(t, "Day pass", got.QuickPay.Name)
	assert.Equal(t, int64(1999), got.QuickPay.PriceMoney.Amount)
	assert.Equal(t, "USD", got.QuickPay.PriceMoney.Currency)
	assert.Equal(t, "LOC-1", got.QuickPay.LocationID)
	assert.Equal(t, "https://shop.test/ok", got.CheckoutOptions.RedirectURL)

	assert.Equal(t, "https://square.link/u/abc", result.URL)
	assert.Equal(t, "ORDER-1", result.OrderID)
	assert.Equal(t, processor.KindLinkBased, result.Processor)
}

func TestCreateRefund_RequiresAmountAndCurrency(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made without an amount")
	})

	_, err := a.CreateRefund(context.Background(), gateway.RefundRequest{Reference: "PAY-1"})
	require.Error(t, err)

	var validationErr *domainErrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "Amount and currency required", validationErr.Message)
}

func TestCreateRefund_SendsAmount(t *testing.T) {
	var got map[string]any

	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/refunds", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"refund": map[string]string{"id": "REF-1", "status": "PENDING"},
		})
	})

	id, err := a.CreateRefund(context.Background(), gateway.RefundRequest{
		Reference:   "PAY-1",
		AmountCents: 700,
		Currency:    "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "REF-1", id)
	assert.Equal(t, "PAY-1", got["payment_id"])

	amount := got["amount_money"].(map[string]any)
	assert.Equal(t, float64(700), amount["amount"])
	assert.Equal(t, "USD", amount["currency"])
}

func TestCreateCustomer_ReusesMatchByReferenceID(t *testing.T) {
	created := false

	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/customers/search":
			var q struct {
				Query struct {
					Filter struct {
						ReferenceID struct {
							Exact string `json:"exact"`
						} `json:"reference_id"`
					} `json:"filter"`
				} `json:"query"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
			assert.Equal(t, "member-1", q.Query.Filter.ReferenceID.Exact)

			json.NewEncoder(w).Encode(map[string]any{
				"customers": []map[string]string{{"id": "CUST-EXISTING", "reference_id": "member-1"}},
			})
		case "/v2/customers":
			created = true
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	id, err := a.CreateCustomer(context.Background(), gateway.CustomerRequest{
		MemberID: "member-1",
		Email:    "m@example.com",
		Name:     "Pat Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, "CUST-EXISTING", id)
	assert.False(t, created)
}

func TestCreateCustomer_CreatesWhenNoMatch(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/customers/search":
			json.NewEncoder(w).Encode(map[string]any{"customers": []any{}})
		case "/v2/customers":
			var body struct {
				GivenName   string `json:"given_name"`
				FamilyName  string `json:"family_name"`
				ReferenceID string `json:"reference_id"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Pat", body.GivenName)
			assert.Equal(t, "Doe", body.FamilyName)
			assert.Equal(t, "member-1", body.ReferenceID)

			json.NewEncoder(w).Encode(map[string]any{
				"customer": map[string]string{"id": "CUST-NEW"},
			})
		}
	})

	id, err := a.CreateCustomer(context.Background(), gateway.CustomerRequest{
		MemberID: "member-1",
		Name:     "Pat Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, "CUST-NEW", id)
}

func TestGetOrderStatus_MapsOrderStates(t *testing.T) {
	tests := []struct {
		state string
		want  processor.OrderStatus
	}{
		{"DRAFT", processor.OrderCreated},
		{"OPEN", processor.OrderCreated},
		{"COMPLETED", processor.OrderCompleted},
		{"CANCELED", processor.OrderCanceled},
		{"WEIRD", processor.OrderFailed},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"order": map[string]any{"id": "ORDER-1", "state": tt.state},
				})
			})

			status, err := a.GetOrderStatus(context.Background(), "ORDER-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestProviderErrorDetailSurfaces(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{
				"category": "INVALID_REQUEST_ERROR",
				"code":     "NOT_FOUND",
				"detail":   "Order not found.",
			}},
		})
	})

	_, err := a.GetOrderStatus(context.Background(), "ORDER-MISSING")
	require.Error(t, err)

	var provErr *domainErrors.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "Order not found.", provErr.Message)
}

func TestGetReceiptURL_ResolvesThroughTenderPayment(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/orders/ORDER-1":
			json.NewEncoder(w).Encode(map[string]any{
				"order": map[string]any{
					"id":    "ORDER-1",
					"state": "COMPLETED",
					"tenders": []map[string]any{
						{"id": "T-1"},
						{"id": "T-2", "payment_id": "PAY-2"},
					},
				},
			})
		case "/v2/payments/PAY-2":
			json.NewEncoder(w).Encode(map[string]any{
				"payment": map[string]any{
					"id":          "PAY-2",
					"status":      "COMPLETED",
					"receipt_url": "https://squareup.com/receipt/preview/PAY-2",
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	url, err := a.GetReceiptURL(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "https://squareup.com/receipt/preview/PAY-2", url)
}

func TestGetReceiptURL_NoTendersReturnsEmpty(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{"id": "ORDER-1", "state": "OPEN"},
		})
	})

	url, err := a.GetReceiptURL(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestChargeStoredCard_BuildsAutocompletePayment(t *testing.T) {
	var got struct {
		IdempotencyKey string     `json:"idempotency_key"`
		SourceID       string     `json:"source_id"`
		CustomerID     string     `json:"customer_id"`
		AmountMoney    moneyValue `json:"amount_money"`
		LocationID     string     `json:"location_id"`
		Autocomplete   bool       `json:"autocomplete"`
		Note           string     `json:"note"`
	}

	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/payments", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{
			"payment": map[string]any{"id": "PAY-7", "status": "COMPLETED"},
		})
	})

	paymentID, err := a.ChargeStoredCard(context.Background(), "CUST-1", "CARD-1", 2500, "usd", "Monthly dues")
	require.NoError(t, err)

	assert.NotEmpty(t, got.IdempotencyKey)
	assert.Equal(t, "CARD-1", got.SourceID)
	assert.Equal(t, "CUST-1", got.CustomerID)
	assert.Equal(t, int64(2500), got.AmountMoney.Amount)
	assert.Equal(t, "USD", got.AmountMoney.Currency)
	assert.Equal(t, "LOC-1", got.LocationID)
	assert.True(t, got.Autocomplete)
	assert.Equal(t, "Monthly dues", got.Note)

	assert.Equal(t, "PAY-7", paymentID)
}
