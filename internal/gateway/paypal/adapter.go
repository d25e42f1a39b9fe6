// Package paypal implements the wallet processor against the PayPal REST API:
// OAuth client-credentials auth, Orders v2 checkout/capture/refund, Vault v3
// stored payment tokens, and remote webhook signature verification.
package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/pkg/retry"
	"github.com/google/uuid"
)

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	processorName = "PayPal"
)

// Config is the wallet credential bundle loaded from settings on each call.
type Config struct {
	ClientID     string
	ClientSecret string
	Sandbox      bool
	WebhookID    string
}

// Valid reports whether the credential bundle is usable.
func (c Config) Valid() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Adapter talks to the PayPal REST API. It is rebuilt from fresh settings per
// orchestration call; only the TokenCache outlives it.
type Adapter struct {
	cfg    Config
	rest   *gateway.RESTClient
	tokens *TokenCache

	// overridden in tests
	baseURLOverride string
}

// NewAdapter creates a wallet adapter. tokens is shared process-wide so the
// bearer token survives adapter rebuilds.
func NewAdapter(cfg Config, httpClient *http.Client, tokens *TokenCache) *Adapter {
	return &Adapter{
		cfg: cfg,
		rest: &gateway.RESTClient{
			Processor:    processorName,
			HTTP:         httpClient,
			Retry:        retry.DefaultConfig(),
			ExtractError: extractError,
		},
		tokens: tokens,
	}
}

// Kind implements gateway.Gateway.
func (a *Adapter) Kind() processor.Kind { return processor.KindWallet }

func (a *Adapter) baseURL() string {
	if a.baseURLOverride != "" {
		return a.baseURLOverride
	}
	if a.cfg.Sandbox {
		return sandboxBaseURL
	}
	return liveBaseURL
}

// accessToken returns a cached or freshly fetched OAuth bearer token.
func (a *Adapter) accessToken(ctx context.Context) (string, error) {
	credKey := a.cfg.ClientID + "|" + a.cfg.ClientSecret
	return a.tokens.Token(ctx, credKey, func(ctx context.Context) (string, time.Duration, error) {
		basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))
		header := http.Header{}
		header.Set("Authorization", "Basic "+basic)

		form := url.Values{}
		form.Set("grant_type", "client_credentials")

		var resp struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		err := a.rest.DoForm(ctx, http.MethodPost, a.baseURL()+"/v1/oauth2/token", header, form, &resp)
		if err != nil {
			return "", 0, err
		}
		return resp.AccessToken, time.Duration(resp.ExpiresIn) * time.Second, nil
	})
}

func (a *Adapter) authHeader(ctx context.Context) (http.Header, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return header, nil
}

// --- Orders v2 wire types ---

type orderRequest struct {
	Intent             string         `json:"intent"`
	PurchaseUnits      []purchaseUnit `json:"purchase_units"`
	PaymentSource      *paymentSource `json:"payment_source,omitempty"`
	ApplicationContext *appContext    `json:"application_context,omitempty"`
}

type purchaseUnit struct {
	ReferenceID string     `json:"reference_id,omitempty"`
	Amount      moneyValue `json:"amount"`
	Description string     `json:"description,omitempty"`
	CustomID    string     `json:"custom_id,omitempty"`
}

type moneyValue struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type appContext struct {
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

type paymentSource struct {
	PayPal *paypalSource `json:"paypal,omitempty"`
}

type paypalSource struct {
	VaultID string `json:"vault_id,omitempty"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []captureDetail `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Payer payerDetail `json:"payer"`
}

type captureDetail struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type payerDetail struct {
	PayerID      string `json:"payer_id"`
	EmailAddress string `json:"email_address"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// CreateCheckout creates an order and returns the payer-action URL. PayPal
// orders carry a single total; itemization is collapsed into the amount.
func (a *Adapter) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*processor.CheckoutSessionResult, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return nil, err
	}
	header.Set("PayPal-Request-Id", idempotencyKey(req.IdempotencyKey))

	order := orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.MemberID,
			Amount:      money(req.AmountCents, req.Currency),
			Description: req.Description,
			CustomID:    encodeMetadata(req.Metadata),
		}},
		ApplicationContext: &appContext{
			ReturnURL:  req.SuccessURL,
			CancelURL:  req.CancelURL,
			UserAction: "PAY_NOW",
		},
	}

	var resp orderResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/checkout/orders", header, order, &resp); err != nil {
		return nil, err
	}

	approvalURL := findLink(resp.Links, "approve")
	if approvalURL == "" {
		approvalURL = findLink(resp.Links, "payer-action")
	}

	return &processor.CheckoutSessionResult{
		URL:       approvalURL,
		SessionID: resp.ID,
		OrderID:   resp.ID,
		Processor: processor.KindWallet,
	}, nil
}

// GetOrderStatus polls an order, the webhook-free fallback flow.
func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (processor.OrderStatus, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return "", err
	}
	var resp orderResponse
	if err := a.rest.DoJSON(ctx, http.MethodGet, a.baseURL()+"/v2/checkout/orders/"+orderID, header, nil, &resp); err != nil {
		return "", err
	}
	return mapOrderStatus(resp.Status), nil
}

// CaptureOrder transitions an approved order to completed and extracts the
// capture id plus payer identity, which seed the customer link and receipt
// metadata.
func (a *Adapter) CaptureOrder(ctx context.Context, orderID string) (*gateway.Capture, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/checkout/orders/"+orderID+"/capture", header, nil, &resp); err != nil {
		return nil, err
	}

	capture := &gateway.Capture{
		PayerID:    resp.Payer.PayerID,
		PayerEmail: resp.Payer.EmailAddress,
		Status:     mapOrderStatus(resp.Status),
	}
	if len(resp.PurchaseUnits) > 0 && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		capture.CaptureID = resp.PurchaseUnits[0].Payments.Captures[0].ID
	}
	return capture, nil
}

// CreateRefund refunds a capture. With a positive amount and currency it is a
// partial refund; otherwise the original capture is refunded in full.
func (a *Adapter) CreateRefund(ctx context.Context, req gateway.RefundRequest) (string, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return "", err
	}
	if req.IdempotencyKey != "" {
		header.Set("PayPal-Request-Id", req.IdempotencyKey)
	}

	var body any
	if req.AmountCents > 0 && req.Currency != "" {
		body = struct {
			Amount moneyValue `json:"amount"`
		}{Amount: money(req.AmountCents, req.Currency)}
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err = a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/payments/captures/"+req.Reference+"/refund", header, body, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateCustomer creates a merchant-scoped vault customer. PayPal mints the
// customer id on the first setup token created for the payer.
func (a *Adapter) CreateCustomer(ctx context.Context, req gateway.CustomerRequest) (string, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return "", err
	}
	header.Set("PayPal-Request-Id", idempotencyKey(""))

	body := setupTokenRequest{
		PaymentSource: setupTokenSource{
			PayPal: &setupTokenPayPal{
				UsageType: "MERCHANT",
				ExperienceContext: &experienceContext{
					ReturnURL: "https://localhost/vault/return",
					CancelURL: "https://localhost/vault/cancel",
				},
			},
		},
	}

	var resp setupTokenResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v3/vault/setup-tokens", header, body, &resp); err != nil {
		return "", err
	}
	if resp.Customer.ID == "" {
		return "", domainErrors.NewProviderError(processorName, http.StatusOK, "setup token response missing customer id")
	}
	return resp.Customer.ID, nil
}

// --- helpers ---

// money renders minor units as PayPal's decimal string form.
func money(cents int64, currency string) moneyValue {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return moneyValue{
		CurrencyCode: strings.ToUpper(currency),
		Value:        fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100),
	}
}

func findLink(links []link, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

// idempotencyKey keeps a caller-supplied key verbatim; a missing key gets a
// per-attempt timestamp plus random suffix.
func idempotencyKey(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// encodeMetadata round-trips the opaque metadata map through the order's
// custom_id field, PayPal's only free-form slot on a purchase unit.
func encodeMetadata(md map[string]string) string {
	if len(md) == 0 {
		return ""
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return ""
	}
	// custom_id caps at 255 chars; drop rather than truncate mid-JSON
	if len(raw) > 255 {
		return ""
	}
	return string(raw)
}

func mapOrderStatus(s string) processor.OrderStatus {
	switch s {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return processor.OrderCreated
	case "APPROVED":
		return processor.OrderApproved
	case "COMPLETED":
		return processor.OrderCompleted
	case "VOIDED":
		return processor.OrderCanceled
	}
	return processor.OrderFailed
}

// extractError handles both PayPal error shapes: REST errors carry
// name/message/details, the OAuth endpoint uses error/error_description.
func extractError(_ int, body []byte) string {
	var parsed struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Details          []struct {
			Description string `json:"description"`
			Issue       string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if len(parsed.Details) > 0 && parsed.Details[0].Description != "" {
		return parsed.Details[0].Description
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.ErrorDescription
}
