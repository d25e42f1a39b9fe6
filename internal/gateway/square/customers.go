package square

import (
	"context"
	"net/http"
	"strings"

	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
)

type customerRecord struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	EmailAddress string `json:"email_address"`
	ReferenceID  string `json:"reference_id"`
}

// CreateCustomer searches by reference id (the internal member id) before
// creating, since Square does not enforce uniqueness on the reference field.
func (a *Adapter) CreateCustomer(ctx context.Context, req gateway.CustomerRequest) (string, error) {
	if existing, err := a.findCustomerByReference(ctx, req.MemberID); err != nil {
		return "", err
	} else if existing != "" {
		return existing, nil
	}

	given, family := splitName(req.Name)
	body := struct {
		IdempotencyKey string `json:"idempotency_key"`
		GivenName      string `json:"given_name,omitempty"`
		FamilyName     string `json:"family_name,omitempty"`
		EmailAddress   string `json:"email_address,omitempty"`
		ReferenceID    string `json:"reference_id"`
	}{
		IdempotencyKey: idempotencyKey(""),
		GivenName:      given,
		FamilyName:     family,
		EmailAddress:   req.Email,
		ReferenceID:    req.MemberID,
	}

	var resp struct {
		Customer customerRecord `json:"customer"`
	}
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/customers", a.header(), body, &resp); err != nil {
		return "", err
	}
	return resp.Customer.ID, nil
}

func (a *Adapter) findCustomerByReference(ctx context.Context, referenceID string) (string, error) {
	body := map[string]any{
		"query": map[string]any{
			"filter": map[string]any{
				"reference_id": map[string]any{"exact": referenceID},
			},
		},
	}

	var resp struct {
		Customers []customerRecord `json:"customers"`
	}
	if err := a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/customers/search", a.header(), body, &resp); err != nil {
		return "", err
	}
	if len(resp.Customers) == 0 {
		return "", nil
	}
	return resp.Customers[0].ID, nil
}

// ListPaymentMethods fetches the customer's stored cards.
func (a *Adapter) ListPaymentMethods(ctx context.Context, customerID string) ([]processor.VaultedPaymentMethod, error) {
	var resp struct {
		Cards []struct {
			ID        string `json:"id"`
			CardBrand string `json:"card_brand"`
			Last4     string `json:"last_4"`
			ExpMonth  int    `json:"exp_month"`
			ExpYear   int    `json:"exp_year"`
			Enabled   bool   `json:"enabled"`
		} `json:"cards"`
	}
	url := a.baseURL() + "/v2/cards?customer_id=" + customerID
	if err := a.rest.DoJSON(ctx, http.MethodGet, url, a.header(), nil, &resp); err != nil {
		return nil, err
	}

	methods := make([]processor.VaultedPaymentMethod, 0, len(resp.Cards))
	for _, c := range resp.Cards {
		if !c.Enabled {
			continue
		}
		methods = append(methods, processor.VaultedPaymentMethod{
			ID:       c.ID,
			Brand:    strings.ToLower(c.CardBrand),
			Last4:    c.Last4,
			ExpMonth: c.ExpMonth,
			ExpYear:  c.ExpYear,
			Kind:     processor.MethodCard,
		})
	}
	return methods, nil
}

// DeletePaymentMethod disables a stored card. Square cards are disabled, not
// deleted.
func (a *Adapter) DeletePaymentMethod(ctx context.Context, _ string, methodID string) error {
	return a.rest.DoJSON(ctx, http.MethodPost, a.baseURL()+"/v2/cards/"+methodID+"/disable", a.header(), nil, nil)
}

func splitName(full string) (given, family string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
