// Package square implements the link-based processor against the Square REST
// API: hosted payment links with order polling, stored-card charges, customer
// dedup by reference id, and local HMAC webhook verification.
package square

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/pkg/retry"
	"github.com/google/uuid"
)

const (
	sandboxBaseURL = "https://connect.squareupsandbox.com"
	liveBaseURL    = "https://connect.squareup.com"

	apiVersion    = "2024-01-18"
	processorName = "Square"
)

// Config is the link-based credential bundle loaded from settings per call.
type Config struct {
	AccessToken   string
	LocationID    string
	ApplicationID string
	Sandbox       bool
	WebhookSecret string
	// NotificationURL is the registered webhook endpoint, part of the signed
	// payload during verification.
	NotificationURL string
}

// Valid reports whether the credential bundle is usable.
func (c Config) Valid() bool {
	return c.AccessToken != "" && c.LocationID != ""
}

// Adapter talks to the Square REST API.
type Adapter struct {
	cfg  Config
	rest *gateway.RESTClient

	// overridden in tests
	baseURLOverride string
}

// NewAdapter creates a link-based adapter.
func NewAdapter(cfg Config, httpClient *http.Client) *Adapter {
	return &Adapter{
		cfg: cfg,
		rest: &gateway.RESTClient{
			Processor:    processorName,
			HTTP:         httpClient,
			Retry:        retry.DefaultConfig(),
			ExtractError: extractError,
		},
	}
}

// Kind implements gateway.Gateway.
func (a *Adapter) Kind() processor.Kind { return processor.KindLinkBased }

func (a *Adapter) baseURL() string {
	if a.baseURLOverride != "" {
		return a.baseURLOverride
	}
	if a.cfg.Sandbox {
		return sandboxBaseURL
	}
	return liveBaseURL
}

func (a *Adapter) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	h.Set("Square-Version", apiVersion)
	return h
}

// --- wire types ---

type moneyValue struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type paymentLinkRequest struct {
	IdempotencyKey  string           `json:"idempotency_key"`
	QuickPay        quickPay         `json:"quick_pay"`
	CheckoutOptions *checkoutOptions `json:"checkout_options,omitempty"`
	PaymentNote     string           `json:"payment_note,omitempty"`
}

type quickPay struct {
	Name       string     `json:"name"`
	PriceMoney moneyValue `json:"price_money"`
	LocationID string     `json:"location_id"`
}

type checkoutOptions struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}

type paymentLinkResponse struct {
	PaymentLink struct {
		ID      string `json:"id"`
		URL     string `json:"url"`
		OrderID string `json:"order_id"`
	} `json:"payment_link"`
}

type orderResponse struct {
	Order struct {
		ID      string `json:"id"`
		State   string `json:"state"`
		Tenders []struct {
			ID        string `json:"id"`
			PaymentID string `json:"payment_id"`
		} `json:"tenders"`
	} `json:"order"`
}

type paymentResponse struct {
	Payment struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		ReceiptURL string `json:"receipt_url"`
	} `json:"payment"`
}

// CreateCheckout creates a hosted payment link scoped to a single amount and
// description. The returned order id must be polled; there is no synchronous
// capture.
func (a *Adapter) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*processor.CheckoutSessionResult, error) {
	body := paymentLinkRequest{
		IdempotencyKey: idempotencyKey(req.IdempotencyKey),
		QuickPay: quickPay{
			Name:       req.Description,
			PriceMoney: moneyValue{Amount: req.AmountCents, Currency: strings.ToUpper(req.Currency)},
			LocationID: a.cfg.LocationID,
		},
		PaymentNote: encodeMetadata(req.Metadata),
	}
	if req.SuccessURL != "" {
		body.CheckoutOptions = &checkoutOptions{RedirectURL: req.SuccessURL}
	}

	var resp paymentLinkResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/online-checkout/payment-links", a.header(), body, &resp); err != nil {
		return nil, err
	}

	return &processor.CheckoutSessionResult{
		URL:       resp.PaymentLink.URL,
		SessionID: resp.PaymentLink.ID,
		OrderID:   resp.PaymentLink.OrderID,
		Processor: processor.KindLinkBased,
	}, nil
}

// GetOrderStatus polls an order. OPEN is non-terminal: callers re-poll or rely
// on webhooks.
func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (processor.OrderStatus, error) {
	var resp orderResponse
	if err := a.rest.DoJSON(ctx, http.MethodGet, a.baseURL()+"/v2/orders/"+orderID, a.header(), nil, &resp); err != nil {
		return "", err
	}
	return mapOrderState(resp.Order.State), nil
}

// GetReceiptURL resolves the receipt for a completed order through its tender's
// payment.
func (a *Adapter) GetReceiptURL(ctx context.Context, orderID string) (string, error) {
	var order orderResponse
	if err := a.rest.DoJSON(ctx, http.MethodGet, a.baseURL()+"/v2/orders/"+orderID, a.header(), nil, &order); err != nil {
		return "", err
	}

	for _, tender := range order.Order.Tenders {
		if tender.PaymentID == "" {
			continue
		}
		var payment paymentResponse
		if err := a.rest.DoJSON(ctx, http.MethodGet, a.baseURL()+"/v2/payments/"+tender.PaymentID, a.header(), nil, &payment); err != nil {
			return "", err
		}
		return payment.Payment.ReceiptURL, nil
	}
	return "", nil
}

// CreateRefund refunds a payment. Square has no full-refund shorthand, so
// amount and currency are mandatory and reported as a validation error when
// absent, never treated as a silent full refund.
func (a *Adapter) CreateRefund(ctx context.Context, req gateway.RefundRequest) (string, error) {
	if req.AmountCents <= 0 || req.Currency == "" {
		return "", domainErrors.NewValidationError("", "Amount and currency required")
	}

	body := struct {
		IdempotencyKey string     `json:"idempotency_key"`
		PaymentID      string     `json:"payment_id"`
		AmountMoney    moneyValue `json:"amount_money"`
	}{
		IdempotencyKey: idempotencyKey(req.IdempotencyKey),
		PaymentID:      req.Reference,
		AmountMoney:    moneyValue{Amount: req.AmountCents, Currency: strings.ToUpper(req.Currency)},
	}

	var resp struct {
		Refund struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"refund"`
	}
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/refunds", a.header(), body, &resp); err != nil {
		return "", err
	}
	return resp.Refund.ID, nil
}

// ChargeStoredCard charges a stored card directly, auto-completed in one call.
// Used for recurring billing where no redirect is possible.
func (a *Adapter) ChargeStoredCard(ctx context.Context, customerID, cardID string, amountCents int64, currency, note string) (string, error) {
	body := struct {
		IdempotencyKey string     `json:"idempotency_key"`
		SourceID       string     `json:"source_id"`
		CustomerID     string     `json:"customer_id"`
		AmountMoney    moneyValue `json:"amount_money"`
		LocationID     string     `json:"location_id"`
		Autocomplete   bool       `json:"autocomplete"`
		Note           string     `json:"note,omitempty"`
	}{
		IdempotencyKey: idempotencyKey(""),
		SourceID:       cardID,
		CustomerID:     customerID,
		AmountMoney:    moneyValue{Amount: amountCents, Currency: strings.ToUpper(currency)},
		LocationID:     a.cfg.LocationID,
		Autocomplete:   true,
		Note:           note,
	}

	var resp paymentResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/payments", a.header(), body, &resp); err != nil {
		return "", err
	}
	return resp.Payment.ID, nil
}

// --- helpers ---

func idempotencyKey(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// encodeMetadata folds the opaque metadata map into the payment note, Square's
// free-form slot on a quick-pay link.
func encodeMetadata(md map[string]string) string {
	if len(md) == 0 {
		return ""
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return ""
	}
	return string(raw)
}

func mapOrderState(state string) processor.OrderStatus {
	switch state {
	// OPEN means the order exists and is awaiting payment; Square has no
	// separate payer-approval state.
	case "DRAFT", "OPEN":
		return processor.OrderCreated
	case "COMPLETED":
		return processor.OrderCompleted
	case "CANCELED":
		return processor.OrderCanceled
	}
	return processor.OrderFailed
}

// extractError reads Square's errors array, preferring the human detail.
func extractError(_ int, body []byte) string {
	var parsed struct {
		Errors []struct {
			Category string `json:"category"`
			Code     string `json:"code"`
			Detail   string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Errors) == 0 {
		return ""
	}
	if parsed.Errors[0].Detail != "" {
		return parsed.Errors[0].Detail
	}
	return parsed.Errors[0].Code
}
