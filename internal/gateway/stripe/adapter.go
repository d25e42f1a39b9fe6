// Package stripe implements the card processor as a thin layer over the
// official Stripe SDK: hosted checkout sessions with itemized lines,
// idempotent tax-rate reuse, customer management, and refunds.
package stripe

import (
	"context"
	"errors"
	"net/http"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const processorName = "Stripe"

// Config is the card credential bundle loaded from settings per call.
type Config struct {
	SecretKey     string
	WebhookSecret string
}

// Valid reports whether the credential bundle is usable.
func (c Config) Valid() bool {
	return c.SecretKey != ""
}

// Adapter drives the Stripe SDK client.
type Adapter struct {
	cfg Config
	api *client.API
}

// NewAdapter creates a card adapter bound to an SDK client initialized with
// the configured secret key.
func NewAdapter(cfg Config, httpClient *http.Client) *Adapter {
	api := &client.API{}
	backends := stripeapi.NewBackends(httpClient)
	api.Init(cfg.SecretKey, backends)
	return &Adapter{cfg: cfg, api: api}
}

// Kind implements gateway.Gateway.
func (a *Adapter) Kind() processor.Kind { return processor.KindCard }

// CreateCheckout creates a hosted checkout session with rich per-line pricing.
// Per-line discounts are folded into unit amounts (see buildLineItems) and a
// tax-rate object is attached when a rate is given.
func (a *Adapter) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*processor.CheckoutSessionResult, error) {
	params := &stripeapi.CheckoutSessionParams{
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL: stripeapi.String(req.SuccessURL),
		CancelURL:  stripeapi.String(req.CancelURL),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripeapi.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	if req.CustomerID != "" {
		params.Customer = stripeapi.String(req.CustomerID)
	} else if req.PayerEmail != "" {
		params.CustomerEmail = stripeapi.String(req.PayerEmail)
	}

	var taxRateID *string
	if req.TaxRatePercent > 0 {
		id, err := a.ensureTaxRate(ctx, req.TaxRatePercent)
		if err != nil {
			return nil, err
		}
		taxRateID = stripeapi.String(id)
	}

	items := req.Items
	if len(items) == 0 {
		items = []gateway.LineItem{{Name: req.Description, AmountCents: req.AmountCents, Quantity: 1}}
	}
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		// A discount beyond the line total would fold into a negative unit
		// amount, which the gateway rejects anyway; fail it here instead.
		if item.DiscountCents > item.AmountCents*qty {
			return nil, domainErrors.NewValidationError("items", "discount exceeds line total for "+item.Name)
		}
	}
	params.LineItems = buildLineItems(items, req.Currency, taxRateID)

	sess, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapErr(err)
	}

	result := &processor.CheckoutSessionResult{
		URL:       sess.URL,
		SessionID: sess.ID,
		Processor: processor.KindCard,
	}
	if sess.PaymentIntent != nil {
		result.OrderID = sess.PaymentIntent.ID
	}
	return result, nil
}

// buildLineItems converts lines to Stripe line items, folding each line's
// discount into its unit amount. A Stripe line carries one unit amount for
// the whole quantity, so when the discount does not divide evenly the line is
// split in two and the remainder cents land on the second slice, one cent
// deeper per unit (largest-remainder allocation, no cent lost or invented).
func buildLineItems(items []gateway.LineItem, currency string, taxRateID *string) []*stripeapi.CheckoutSessionLineItemParams {
	var out []*stripeapi.CheckoutSessionLineItemParams

	appendItem := func(name string, unitAmount, qty int64) {
		li := &stripeapi.CheckoutSessionLineItemParams{
			Quantity: stripeapi.Int64(qty),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String(currency),
				UnitAmount: stripeapi.Int64(unitAmount),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(name),
				},
			},
		}
		if taxRateID != nil {
			li.TaxRates = []*string{taxRateID}
		}
		out = append(out, li)
	}

	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		if item.DiscountCents <= 0 {
			appendItem(item.Name, item.AmountCents, qty)
			continue
		}

		base := item.DiscountCents / qty
		remainder := item.DiscountCents % qty
		if remainder == 0 {
			appendItem(item.Name, item.AmountCents-base, qty)
			continue
		}
		appendItem(item.Name, item.AmountCents-base, qty-remainder)
		appendItem(item.Name, item.AmountCents-base-1, remainder)
	}
	return out
}

// ensureTaxRate finds an active exclusive tax rate matching the percentage, or
// creates one. Matching before creating keeps the rate objects idempotent.
func (a *Adapter) ensureTaxRate(ctx context.Context, percent float64) (string, error) {
	listParams := &stripeapi.TaxRateListParams{
		Active: stripeapi.Bool(true),
	}
	listParams.Context = ctx

	it := a.api.TaxRates.List(listParams)
	for it.Next() {
		tr := it.TaxRate()
		if !tr.Inclusive && tr.Percentage == percent {
			return tr.ID, nil
		}
	}
	if err := it.Err(); err != nil {
		return "", wrapErr(err)
	}

	createParams := &stripeapi.TaxRateParams{
		DisplayName: stripeapi.String("Tax"),
		Percentage:  stripeapi.Float64(percent),
		Inclusive:   stripeapi.Bool(false),
	}
	createParams.Context = ctx
	tr, err := a.api.TaxRates.New(createParams)
	if err != nil {
		return "", wrapErr(err)
	}
	return tr.ID, nil
}

// CreateRefund refunds a payment intent; with no amount the full charge is
// reversed.
func (a *Adapter) CreateRefund(ctx context.Context, req gateway.RefundRequest) (string, error) {
	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(req.Reference),
	}
	params.Context = ctx
	if req.AmountCents > 0 {
		params.Amount = stripeapi.Int64(req.AmountCents)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripeapi.String(req.IdempotencyKey)
	}

	refund, err := a.api.Refunds.New(params)
	if err != nil {
		return "", wrapErr(err)
	}
	return refund.ID, nil
}

// CreateCustomer creates a gateway customer for the member.
func (a *Adapter) CreateCustomer(ctx context.Context, req gateway.CustomerRequest) (string, error) {
	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	if req.Email != "" {
		params.Email = stripeapi.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripeapi.String(req.Name)
	}
	params.AddMetadata("member_id", req.MemberID)

	cust, err := a.api.Customers.New(params)
	if err != nil {
		return "", wrapErr(err)
	}
	return cust.ID, nil
}

// ListPaymentMethods fetches the customer's attached cards.
func (a *Adapter) ListPaymentMethods(ctx context.Context, customerID string) ([]processor.VaultedPaymentMethod, error) {
	params := &stripeapi.PaymentMethodListParams{
		Customer: stripeapi.String(customerID),
		Type:     stripeapi.String(string(stripeapi.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	var methods []processor.VaultedPaymentMethod
	it := a.api.PaymentMethods.List(params)
	for it.Next() {
		pm := it.PaymentMethod()
		m := processor.VaultedPaymentMethod{ID: pm.ID, Kind: processor.MethodCard}
		if pm.Card != nil {
			m.Brand = string(pm.Card.Brand)
			m.Last4 = pm.Card.Last4
			m.ExpMonth = int(pm.Card.ExpMonth)
			m.ExpYear = int(pm.Card.ExpYear)
		}
		methods = append(methods, m)
	}
	if err := it.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return methods, nil
}

// DeletePaymentMethod detaches a payment method from its customer.
func (a *Adapter) DeletePaymentMethod(ctx context.Context, _ string, methodID string) error {
	params := &stripeapi.PaymentMethodDetachParams{}
	params.Context = ctx
	_, err := a.api.PaymentMethods.Detach(methodID, params)
	return wrapErr(err)
}

// GetOrderStatus maps a checkout session's status onto the normalized order
// lifecycle.
func (a *Adapter) GetOrderStatus(ctx context.Context, sessionID string) (processor.OrderStatus, error) {
	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := a.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", wrapErr(err)
	}
	switch sess.Status {
	case stripeapi.CheckoutSessionStatusComplete:
		return processor.OrderCompleted, nil
	case stripeapi.CheckoutSessionStatusExpired:
		return processor.OrderCanceled, nil
	}
	return processor.OrderCreated, nil
}

// VerifyWebhook checks the Stripe-Signature header against the endpoint
// signing secret.
func (a *Adapter) VerifyWebhook(_ context.Context, req gateway.WebhookRequest) error {
	if a.cfg.WebhookSecret == "" {
		return domainErrors.NewConfigurationError(processorName, "webhook signing secret missing")
	}
	_, err := webhook.ConstructEvent(req.Body, req.Headers.Get("Stripe-Signature"), a.cfg.WebhookSecret)
	if err != nil {
		return domainErrors.ErrVerificationFailed
	}
	return nil
}

// wrapErr converts SDK errors into the shared taxonomy so callers never see
// stripe types.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		msg := stripeErr.Msg
		if msg == "" {
			msg = string(stripeErr.Code)
		}
		return domainErrors.NewProviderError(processorName, stripeErr.HTTPStatusCode, msg)
	}
	return domainErrors.NewNetworkError(processorName, false, err)
}
