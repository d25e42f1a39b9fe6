package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Locker serializes critical sections across processes, keyed by name.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// CheckoutService orchestrates checkout, refund, and customer operations
// against whichever processor is currently active. It owns no provider
// specifics: everything wire-level lives behind the gateway contract.
type CheckoutService struct {
	selector *ProcessorSelector
	settings settings.Store
	registry *gateway.Registry
	links    processor.CustomerLinkRepository
	sessions processor.SessionRepository
	locks    Locker
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	selector *ProcessorSelector,
	store settings.Store,
	registry *gateway.Registry,
	links processor.CustomerLinkRepository,
	sessions processor.SessionRepository,
	locks Locker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CheckoutService {
	return &CheckoutService{
		selector: selector,
		settings: store,
		registry: registry,
		links:    links,
		sessions: sessions,
		locks:    locks,
		metrics:  metrics,
		logger:   logger,
	}
}

// ActiveProcessor returns the active processor kind, or false when payments
// are disabled.
func (s *CheckoutService) ActiveProcessor(ctx context.Context) (processor.Kind, bool, error) {
	return s.selector.Active(ctx)
}

// Currency returns the configured currency code, lowercased, defaulting to
// "usd" when unset.
func (s *CheckoutService) Currency(ctx context.Context) (string, error) {
	v, err := settings.GetDefault(ctx, s.settings, settings.KeyCurrency, "usd")
	if err != nil {
		return "", err
	}
	return strings.ToLower(v), nil
}

func (s *CheckoutService) taxRatePercent(ctx context.Context) float64 {
	raw, err := s.settings.Get(ctx, settings.KeyTaxRate)
	if err != nil {
		return 0
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate <= 0 {
		return 0
	}
	return rate
}

// CreateCheckoutRequest is the processor-agnostic checkout input.
type CreateCheckoutRequest struct {
	MemberID       string
	Email          string
	Name           string
	Description    string
	AmountCents    int64
	Currency       string
	Items          []gateway.LineItem
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreateCheckoutSession dispatches a checkout to the active processor and
// records the resulting session. The returned result is tagged with the
// processor that produced it.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, req CreateCheckoutRequest) (*processor.CheckoutSessionResult, error) {
	kind, ok, err := s.selector.Active(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrNoProcessorConfigured
	}

	if req.AmountCents <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}

	gw, breaker, err := s.registry.Get(ctx, kind)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		if currency, err = s.Currency(ctx); err != nil {
			return nil, err
		}
	}
	currency = strings.ToLower(currency)

	greq := gateway.CheckoutRequest{
		AmountCents:    req.AmountCents,
		Currency:       currency,
		Description:    req.Description,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		MemberID:       req.MemberID,
		PayerEmail:     req.Email,
		Items:          req.Items,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	}

	// Itemized tax only applies to the card processor; the other two quote a
	// single total.
	if kind == processor.KindCard {
		greq.TaxRatePercent = s.taxRatePercent(ctx)

		if req.MemberID != "" {
			customerID, err := s.EnsureCustomer(ctx, EnsureCustomerRequest{
				MemberID: req.MemberID,
				Email:    req.Email,
				Name:     req.Name,
			})
			if err != nil {
				s.logger.Warn().Err(err).
					Str("member_id", req.MemberID).
					Msg("could not ensure gateway customer, proceeding without one")
			} else {
				greq.CustomerID = customerID
			}
		}
	}

	start := time.Now()
	result, err := gateway.Execute(breaker, func() (*processor.CheckoutSessionResult, error) {
		return gw.CreateCheckout(ctx, greq)
	})
	s.observeCheckout(kind, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.Processor = kind

	session := &processor.CheckoutSession{
		SessionID:   result.SessionID,
		Processor:   kind,
		OrderID:     result.OrderID,
		MemberID:    req.MemberID,
		AmountCents: req.AmountCents,
		Currency:    currency,
		State:       processor.SessionPending,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// The checkout exists provider-side; losing the local trace only
		// degrades webhook routing, so log and return the session anyway.
		s.logger.Error().Err(err).
			Str("session_id", result.SessionID).
			Str("processor", string(kind)).
			Msg("failed to record checkout session")
	}

	return result, nil
}

func (s *CheckoutService) observeCheckout(kind processor.Kind, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.CheckoutSessionsTotal.WithLabelValues(string(kind), status).Inc()
	s.metrics.CheckoutDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// RefundInput identifies a charge to reverse. Processor may be empty, in
// which case the currently active processor is used.
type RefundInput struct {
	Processor      processor.Kind
	Reference      string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// CreateRefund reverses a charge and reports the outcome as a result
// envelope. Failures, including a missing configuration, are carried in the
// envelope's Error field with the provider's message intact.
func (s *CheckoutService) CreateRefund(ctx context.Context, in RefundInput) processor.RefundResult {
	kind := in.Processor
	if kind == "" {
		active, ok, err := s.selector.Active(ctx)
		if err != nil {
			return processor.RefundResult{Error: err.Error()}
		}
		if !ok {
			return processor.RefundResult{Error: domainErrors.ErrNoProcessorConfigured.Error()}
		}
		kind = active
	}

	gw, breaker, err := s.registry.Get(ctx, kind)
	if err != nil {
		return processor.RefundResult{Error: err.Error()}
	}

	refundID, err := gateway.Execute(breaker, func() (string, error) {
		return gw.CreateRefund(ctx, gateway.RefundRequest{
			Reference:      in.Reference,
			AmountCents:    in.AmountCents,
			Currency:       in.Currency,
			IdempotencyKey: in.IdempotencyKey,
		})
	})
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.RefundsTotal.WithLabelValues(string(kind), status).Inc()
	}
	if err != nil {
		s.logger.Warn().Err(err).
			Str("processor", string(kind)).
			Str("reference", in.Reference).
			Msg("refund failed")
		return processor.RefundResult{Error: err.Error()}
	}

	return processor.RefundResult{Success: true, RefundID: refundID}
}

// EnsureCustomerRequest identifies the member to resolve a gateway customer
// for.
type EnsureCustomerRequest struct {
	MemberID string
	Email    string
	Name     string
}

// EnsureCustomer returns the gateway customer id linked to the member under
// the active processor, creating the customer on first use. Concurrent first
// calls for the same member are serialized with a distributed lock, and the
// unique constraint on the link table makes a lost race converge on the
// winner's id.
func (s *CheckoutService) EnsureCustomer(ctx context.Context, req EnsureCustomerRequest) (string, error) {
	kind, ok, err := s.selector.Active(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domainErrors.ErrNoProcessorConfigured
	}
	return s.ensureCustomerFor(ctx, kind, req)
}

func (s *CheckoutService) ensureCustomerFor(ctx context.Context, kind processor.Kind, req EnsureCustomerRequest) (string, error) {
	link, err := s.links.Get(ctx, req.MemberID, kind)
	if err == nil {
		return link.ExternalCustomerID, nil
	}
	if !errors.Is(err, domainErrors.ErrCustomerLinkNotFound) {
		return "", err
	}

	var customerID string
	lockKey := "customer:" + string(kind) + ":" + req.MemberID
	err = s.locks.WithLock(ctx, lockKey, func(ctx context.Context) error {
		// Another process may have created the link while we waited.
		if link, err := s.links.Get(ctx, req.MemberID, kind); err == nil {
			customerID = link.ExternalCustomerID
			return nil
		} else if !errors.Is(err, domainErrors.ErrCustomerLinkNotFound) {
			return err
		}

		gw, breaker, err := s.registry.Get(ctx, kind)
		if err != nil {
			return err
		}
		created, err := gateway.Execute(breaker, func() (string, error) {
			return gw.CreateCustomer(ctx, gateway.CustomerRequest{
				MemberID: req.MemberID,
				Email:    req.Email,
				Name:     req.Name,
			})
		})
		if err != nil {
			return err
		}

		stored, err := s.links.Upsert(ctx, &processor.CustomerLink{
			MemberID:           req.MemberID,
			Processor:          kind,
			ExternalCustomerID: created,
		})
		if err != nil {
			return err
		}
		customerID = stored.ExternalCustomerID
		return nil
	})
	if err != nil {
		return "", err
	}
	return customerID, nil
}

// ListPaymentMethods returns the member's stored instruments under the active
// processor. A member with no gateway customer yet has no methods.
func (s *CheckoutService) ListPaymentMethods(ctx context.Context, memberID string) ([]processor.VaultedPaymentMethod, error) {
	kind, ok, err := s.selector.Active(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrNoProcessorConfigured
	}

	link, err := s.links.Get(ctx, memberID, kind)
	if errors.Is(err, domainErrors.ErrCustomerLinkNotFound) {
		return []processor.VaultedPaymentMethod{}, nil
	}
	if err != nil {
		return nil, err
	}

	gw, breaker, err := s.registry.Get(ctx, kind)
	if err != nil {
		return nil, err
	}
	return gateway.Execute(breaker, func() ([]processor.VaultedPaymentMethod, error) {
		return gw.ListPaymentMethods(ctx, link.ExternalCustomerID)
	})
}

// DeletePaymentMethod detaches a stored instrument from the member's gateway
// customer.
func (s *CheckoutService) DeletePaymentMethod(ctx context.Context, memberID, methodID string) error {
	kind, ok, err := s.selector.Active(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return domainErrors.ErrNoProcessorConfigured
	}

	link, err := s.links.Get(ctx, memberID, kind)
	if err != nil {
		return err
	}

	gw, breaker, err := s.registry.Get(ctx, kind)
	if err != nil {
		return err
	}
	_, err = gateway.Execute(breaker, func() (struct{}, error) {
		return struct{}{}, gw.DeletePaymentMethod(ctx, link.ExternalCustomerID, methodID)
	})
	return err
}

// PaymentMethodSetup is the payer-facing handle for an in-progress vaulting
// flow. The payer approves at ApprovalURL, then the caller confirms with the
// setup token id.
type PaymentMethodSetup struct {
	SetupTokenID string `json:"setup_token_id"`
	ApprovalURL  string `json:"approval_url"`
}

// BeginPaymentMethodSetup starts vaulting a new instrument for the member
// under the active processor. Processors without a vault reject the request.
// An existing gateway customer is attached when the member has one.
func (s *CheckoutService) BeginPaymentMethodSetup(ctx context.Context, memberID, returnURL, cancelURL string) (*PaymentMethodSetup, error) {
	kind, ok, err := s.selector.Active(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrNoProcessorConfigured
	}

	gw, breaker, err := s.registry.Get(ctx, kind)
	if err != nil {
		return nil, err
	}
	vault, ok := gw.(gateway.Vault)
	if !ok {
		return nil, domainErrors.ErrVaultUnsupported
	}

	var customerID string
	if link, err := s.links.Get(ctx, memberID, kind); err == nil {
		customerID = link.ExternalCustomerID
	} else if !errors.Is(err, domainErrors.ErrCustomerLinkNotFound) {
		return nil, err
	}

	return gateway.Execute(breaker, func() (*PaymentMethodSetup, error) {
		tokenID, approvalURL, err := vault.CreateVaultSetupToken(ctx, customerID, returnURL, cancelURL)
		if err != nil {
			return nil, err
		}
		return &PaymentMethodSetup{SetupTokenID: tokenID, ApprovalURL: approvalURL}, nil
	})
}

// ConfirmPaymentMethodSetup exchanges a payer-approved setup token for the
// durable payment token id.
func (s *CheckoutService) ConfirmPaymentMethodSetup(ctx context.Context, setupTokenID string) (string, error) {
	kind, ok, err := s.selector.Active(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domainErrors.ErrNoProcessorConfigured
	}

	gw, breaker, err := s.registry.Get(ctx, kind)
	if err != nil {
		return "", err
	}
	vault, ok := gw.(gateway.Vault)
	if !ok {
		return "", domainErrors.ErrVaultUnsupported
	}

	return gateway.Execute(breaker, func() (string, error) {
		return vault.ConfirmVaultSetupToken(ctx, setupTokenID)
	})
}

// RefreshSession polls the gateway for the order behind a recorded session
// and advances the local state machine. It is the webhook-free fallback used
// by the reconciler and the session-status endpoint.
func (s *CheckoutService) RefreshSession(ctx context.Context, sess *processor.CheckoutSession) (processor.SessionState, error) {
	if sess.State != processor.SessionPending {
		return sess.State, nil
	}

	orderRef := sess.OrderID
	if orderRef == "" {
		orderRef = sess.SessionID
	}

	gw, breaker, err := s.registry.Get(ctx, sess.Processor)
	if err != nil {
		return sess.State, err
	}
	status, err := gateway.Execute(breaker, func() (processor.OrderStatus, error) {
		return gw.GetOrderStatus(ctx, orderRef)
	})
	if err != nil {
		return sess.State, err
	}

	// Approved wallet orders still need a capture before money moves.
	if status == processor.OrderApproved {
		if capturer, ok := gw.(gateway.OrderCapturer); ok {
			cap, err := gateway.Execute(breaker, func() (*gateway.Capture, error) {
				return capturer.CaptureOrder(ctx, orderRef)
			})
			if err != nil {
				return sess.State, err
			}
			status = cap.Status
			s.seedPayerLink(ctx, sess, cap)
		}
	}

	next := processor.FromOrderStatus(status)
	if next == sess.State {
		return next, nil
	}

	// Completed orders may carry a payer-facing receipt that needs a secondary
	// fetch. Best effort: the state transition matters more than the receipt.
	if next == processor.SessionCompleted && sess.ReceiptURL == "" {
		if resolver, ok := gw.(gateway.ReceiptResolver); ok {
			url, err := gateway.Execute(breaker, func() (string, error) {
				return resolver.GetReceiptURL(ctx, orderRef)
			})
			if err != nil {
				s.logger.Warn().Err(err).
					Str("session_id", sess.SessionID).
					Msg("could not resolve receipt URL")
			} else {
				sess.ReceiptURL = url
			}
		}
	}

	if err := s.sessions.UpdateState(ctx, sess.SessionID, next, sess.ReceiptURL); err != nil {
		return sess.State, err
	}
	sess.State = next
	return next, nil
}

// seedPayerLink records the payer id surfaced by a wallet capture so later
// vault operations can reuse it.
func (s *CheckoutService) seedPayerLink(ctx context.Context, sess *processor.CheckoutSession, cap *gateway.Capture) {
	if sess.MemberID == "" || cap.PayerID == "" {
		return
	}
	_, err := s.links.Upsert(ctx, &processor.CustomerLink{
		MemberID:           sess.MemberID,
		Processor:          sess.Processor,
		ExternalCustomerID: cap.PayerID,
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("member_id", sess.MemberID).
			Msg("failed to seed payer link from capture")
	}
}

// SessionByOrderID resolves a recorded session from a gateway order id.
func (s *CheckoutService) SessionByOrderID(ctx context.Context, kind processor.Kind, orderID string) (*processor.CheckoutSession, error) {
	return s.sessions.GetByOrderID(ctx, kind, orderID)
}
