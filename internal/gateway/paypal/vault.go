package paypal

import (
	"context"
	"net/http"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
)

// Vaulting is a two-phase flow: a setup token the payer approves by visiting
// its approval URL, then an exchange of the approved setup token for a durable
// payment token usable for off-session charges.

type setupTokenRequest struct {
	Customer      *customerRef     `json:"customer,omitempty"`
	PaymentSource setupTokenSource `json:"payment_source"`
}

type customerRef struct {
	ID string `json:"id,omitempty"`
}

type setupTokenSource struct {
	PayPal *setupTokenPayPal `json:"paypal,omitempty"`
	Token  *tokenRef         `json:"token,omitempty"`
}

type setupTokenPayPal struct {
	UsageType         string             `json:"usage_type"`
	ExperienceContext *experienceContext `json:"experience_context,omitempty"`
}

type experienceContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type tokenRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type setupTokenResponse struct {
	ID       string      `json:"id"`
	Status   string      `json:"status"`
	Customer customerRef `json:"customer"`
	Links    []link      `json:"links"`
}

type paymentTokenResponse struct {
	ID            string      `json:"id"`
	Customer      customerRef `json:"customer"`
	PaymentSource struct {
		Card *struct {
			Brand      string `json:"brand"`
			LastDigits string `json:"last_digits"`
			Expiry     string `json:"expiry"`
		} `json:"card"`
		PayPal *struct {
			EmailAddress string `json:"email_address"`
		} `json:"paypal"`
	} `json:"payment_source"`
}

// CreateVaultSetupToken starts vaulting for a customer; the payer must visit
// the returned approval URL before the token can be confirmed.
func (a *Adapter) CreateVaultSetupToken(ctx context.Context, customerID, returnURL, cancelURL string) (string, string, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return "", "", err
	}
	header.Set("PayPal-Request-Id", idempotencyKey(""))

	body := setupTokenRequest{
		PaymentSource: setupTokenSource{
			PayPal: &setupTokenPayPal{
				UsageType: "MERCHANT",
				ExperienceContext: &experienceContext{
					ReturnURL: returnURL,
					CancelURL: cancelURL,
				},
			},
		},
	}
	if customerID != "" {
		body.Customer = &customerRef{ID: customerID}
	}

	var resp setupTokenResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v3/vault/setup-tokens", header, body, &resp); err != nil {
		return "", "", err
	}

	approvalURL := findLink(resp.Links, "approve")
	if approvalURL == "" {
		approvalURL = findLink(resp.Links, "payer-action")
	}
	return resp.ID, approvalURL, nil
}

// ConfirmVaultSetupToken exchanges an approved setup token for a durable
// payment token id.
func (a *Adapter) ConfirmVaultSetupToken(ctx context.Context, setupTokenID string) (string, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return "", err
	}
	header.Set("PayPal-Request-Id", idempotencyKey(""))

	body := struct {
		PaymentSource setupTokenSource `json:"payment_source"`
	}{
		PaymentSource: setupTokenSource{
			Token: &tokenRef{ID: setupTokenID, Type: "SETUP_TOKEN"},
		},
	}

	var resp paymentTokenResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v3/vault/payment-tokens", header, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ChargeVaultedToken creates and immediately captures an order using a stored
// payment token, no payer redirect involved.
func (a *Adapter) ChargeVaultedToken(ctx context.Context, paymentTokenID string, amountCents int64, currency, description string) (string, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return "", err
	}
	header.Set("PayPal-Request-Id", idempotencyKey(""))

	order := orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      money(amountCents, currency),
			Description: description,
		}},
		PaymentSource: &paymentSource{
			PayPal: &paypalSource{VaultID: paymentTokenID},
		},
	}

	var resp orderResponse
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/checkout/orders", header, order, &resp); err != nil {
		return "", err
	}

	if len(resp.PurchaseUnits) == 0 || len(resp.PurchaseUnits[0].Payments.Captures) == 0 {
		return "", domainErrors.NewProviderError(processorName, http.StatusOK,
			"vaulted charge returned no capture, order status "+resp.Status)
	}
	return resp.PurchaseUnits[0].Payments.Captures[0].ID, nil
}

// ListPaymentMethods fetches the customer's stored payment tokens.
func (a *Adapter) ListPaymentMethods(ctx context.Context, customerID string) ([]processor.VaultedPaymentMethod, error) {
	header, err := a.authHeader(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		PaymentTokens []paymentTokenResponse `json:"payment_tokens"`
	}
	url := a.baseURL() + "/v3/vault/payment-tokens?customer_id=" + customerID
	if err := a.rest.DoJSON(ctx, http.MethodGet, url, header, nil, &resp); err != nil {
		return nil, err
	}

	methods := make([]processor.VaultedPaymentMethod, 0, len(resp.PaymentTokens))
	for _, t := range resp.PaymentTokens {
		m := processor.VaultedPaymentMethod{ID: t.ID, Kind: processor.MethodWallet}
		if t.PaymentSource.Card != nil {
			m.Kind = processor.MethodCard
			m.Brand = t.PaymentSource.Card.Brand
			m.Last4 = t.PaymentSource.Card.LastDigits
			m.ExpMonth, m.ExpYear = parseExpiry(t.PaymentSource.Card.Expiry)
		} else if t.PaymentSource.PayPal != nil {
			m.Brand = "paypal"
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// DeletePaymentMethod removes a stored payment token.
func (a *Adapter) DeletePaymentMethod(ctx context.Context, _ string, methodID string) error {
	header, err := a.authHeader(ctx)
	if err != nil {
		return err
	}
	return a.rest.DoJSON(ctx, http.MethodDelete, a.baseURL()+"/v3/vault/payment-tokens/"+methodID, header, nil, nil)
}

// parseExpiry splits PayPal's "YYYY-MM" expiry form.
func parseExpiry(expiry string) (month, year int) {
	if len(expiry) != 7 {
		return 0, 0
	}
	for _, c := range expiry[:4] {
		if c < '0' || c > '9' {
			return 0, 0
		}
		year = year*10 + int(c-'0')
	}
	for _, c := range expiry[5:] {
		if c < '0' || c > '9' {
			return 0, 0
		}
		month = month*10 + int(c-'0')
	}
	return month, year
}
