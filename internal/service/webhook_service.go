package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/gateway"
	"github.com/cassiomorais/memberpay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// WebhookService verifies inbound gateway notifications and advances the
// sessions they refer to. Verification always runs before any payload field
// is trusted; an unverifiable event is rejected, never processed.
type WebhookService struct {
	registry *gateway.Registry
	checkout *CheckoutService
	sessions processor.SessionRepository
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(
	registry *gateway.Registry,
	checkout *CheckoutService,
	sessions processor.SessionRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *WebhookService {
	return &WebhookService{
		registry: registry,
		checkout: checkout,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handle verifies and processes one inbound event for the given processor.
// Events that reference no recorded session, or event types the service does
// not act on, are acknowledged without effect.
func (s *WebhookService) Handle(ctx context.Context, kind processor.Kind, req gateway.WebhookRequest) error {
	gw, _, err := s.registry.Get(ctx, kind)
	if err != nil {
		return err
	}
	if err := gw.VerifyWebhook(ctx, req); err != nil {
		s.count(kind, "rejected")
		return err
	}

	var procErr error
	switch kind {
	case processor.KindWallet:
		procErr = s.handleWallet(ctx, req.Body)
	case processor.KindLinkBased:
		procErr = s.handleLinkBased(ctx, req.Body)
	case processor.KindCard:
		procErr = s.handleCard(ctx, req.Body)
	default:
		procErr = fmt.Errorf("no webhook handler for processor %s", kind)
	}

	if procErr != nil {
		s.count(kind, "error")
		return procErr
	}
	s.count(kind, "processed")
	return nil
}

func (s *WebhookService) count(kind processor.Kind, result string) {
	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(kind), result).Inc()
	}
}

func (s *WebhookService) handleWallet(ctx context.Context, body []byte) error {
	var event struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID                string `json:"id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed wallet event: %w", err)
	}

	var orderID string
	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED", "CHECKOUT.ORDER.COMPLETED":
		orderID = event.Resource.ID
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED":
		orderID = event.Resource.SupplementaryData.RelatedIDs.OrderID
	default:
		s.logger.Debug().Str("event_type", event.EventType).Msg("ignoring wallet event")
		return nil
	}
	return s.refreshByOrderID(ctx, processor.KindWallet, orderID)
}

func (s *WebhookService) handleLinkBased(ctx context.Context, body []byte) error {
	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				Payment struct {
					OrderID string `json:"order_id"`
				} `json:"payment"`
				OrderUpdated struct {
					OrderID string `json:"order_id"`
				} `json:"order_updated"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed link-based event: %w", err)
	}

	var orderID string
	switch event.Type {
	case "payment.created", "payment.updated":
		orderID = event.Data.Object.Payment.OrderID
	case "order.updated":
		orderID = event.Data.Object.OrderUpdated.OrderID
	default:
		s.logger.Debug().Str("event_type", event.Type).Msg("ignoring link-based event")
		return nil
	}
	return s.refreshByOrderID(ctx, processor.KindLinkBased, orderID)
}

func (s *WebhookService) handleCard(ctx context.Context, body []byte) error {
	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed card event: %w", err)
	}

	var state processor.SessionState
	switch event.Type {
	case "checkout.session.completed":
		state = processor.SessionCompleted
	case "checkout.session.expired":
		state = processor.SessionCanceled
	default:
		s.logger.Debug().Str("event_type", event.Type).Msg("ignoring card event")
		return nil
	}

	err := s.sessions.UpdateState(ctx, event.Data.Object.ID, state, "")
	if errors.Is(err, domainErrors.ErrSessionNotFound) {
		s.logger.Warn().Str("session_id", event.Data.Object.ID).Msg("card event for unknown session")
		return nil
	}
	return err
}

func (s *WebhookService) refreshByOrderID(ctx context.Context, kind processor.Kind, orderID string) error {
	if orderID == "" {
		return nil
	}
	sess, err := s.checkout.SessionByOrderID(ctx, kind, orderID)
	if errors.Is(err, domainErrors.ErrSessionNotFound) {
		s.logger.Warn().
			Str("processor", string(kind)).
			Str("order_id", orderID).
			Msg("event for unknown order")
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.checkout.RefreshSession(ctx, sess)
	return err
}
