package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/payment"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

type webhookService struct {
	repos  *repository.Repositories
	cfg    config.PaymentConfig
	orders *orderService
	logger *zap.Logger
}

// NewWebhookService creates the webhook event processor
func NewWebhookService(
	repos *repository.Repositories,
	cfg config.PaymentConfig,
	orders *orderService,
	logger *zap.Logger,
) *webhookService {
	return &webhookService{
		repos:  repos,
		cfg:    cfg,
		orders: orders,
		logger: logger,
	}
}

// HandleEvent verifies and dispatches one webhook delivery. Events arrive
// at-least-once and possibly concurrently; the dedupe ledger plus the
// state-guarded transitions make every handler safe to run again with the
// same event. An ErrPaymentVerification return means the delivery must be
// rejected; any other error is for logging only and the delivery should
// still be acknowledged. The event type is returned whenever the payload
// parsed, including on error, so callers can label their metrics.
func (s *webhookService) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (string, error) {
	tolerance := time.Duration(s.cfg.WebhookTolerance) * time.Second
	if err := payment.VerifySignature(payload, signatureHeader, s.cfg.WebhookSecret, tolerance, time.Now()); err != nil {
		return "", err
	}

	event, err := payment.ParseEvent(payload)
	if err != nil {
		return "", &errors.ErrPaymentVerification{Message: "malformed event payload"}
	}

	orderID, err := s.orderIDFromEvent(event)
	if err != nil {
		s.logger.Warn("Webhook event without usable order reference",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		return event.Type, err
	}

	seen, err := s.repos.ProcessedEvent.Seen(ctx, event.ID)
	if err != nil {
		return event.Type, err
	}
	if seen {
		s.logger.Info("Webhook event already processed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		return event.Type, nil
	}

	switch event.Type {
	case payment.EventPaymentSucceeded:
		err = s.handlePaymentSucceeded(ctx, event, *orderID)
	case payment.EventPaymentFailed:
		err = s.handlePaymentFailed(ctx, event, *orderID)
	case payment.EventChargeRefunded:
		err = s.handleChargeRefunded(ctx, event, *orderID)
	default:
		s.logger.Info("Ignoring webhook event of unhandled type",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
	}
	if err != nil {
		// The event stays out of the ledger so a redelivery can retry it.
		return event.Type, err
	}

	// Recorded only after the handler succeeded. Two concurrent first
	// deliveries can both reach the handler, but the state-guarded
	// transitions make the loser a no-op; the conflicting insert here is
	// ignored.
	if _, err := s.repos.ProcessedEvent.MarkProcessed(ctx, domain.ProcessedEvent{
		EventID:   event.ID,
		EventType: event.Type,
		OrderID:   orderID,
	}); err != nil {
		s.logger.Warn("Failed to record processed event",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
	return event.Type, nil
}

func (s *webhookService) handlePaymentSucceeded(ctx context.Context, event *payment.Event, orderID uuid.UUID) error {
	result := domain.PaymentResult{
		IntentID:  event.Data.Object.ID,
		Status:    event.Data.Object.Status,
		Amount:    payment.MajorUnits(event.Data.Object.Amount),
		UpdatedAt: time.Now(),
	}

	if err := s.orders.MarkPaidFromSettlement(ctx, orderID, result); err != nil {
		s.logger.Error("Failed to settle order from webhook",
			zap.String("event_id", event.ID),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return err
	}

	return nil
}

func (s *webhookService) handlePaymentFailed(ctx context.Context, event *payment.Event, orderID uuid.UUID) error {
	// Recorded for operational visibility; no state transition.
	s.logger.Warn("Payment failed",
		zap.String("event_id", event.ID),
		zap.String("order_id", orderID.String()),
		zap.String("intent_id", event.Data.Object.ID))

	eventRecord := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: "payment_failed",
		EventData: map[string]interface{}{
			"event_id":  event.ID,
			"intent_id": event.Data.Object.ID,
		},
	}
	if err := s.repos.OrderEvent.Create(ctx, eventRecord); err != nil {
		s.logger.Warn("Failed to record payment failure", zap.Error(err))
	}
	return nil
}

func (s *webhookService) handleChargeRefunded(ctx context.Context, event *payment.Event, orderID uuid.UUID) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == domain.OrderStatusRefunded {
		s.logger.Info("Order already refunded, event is a no-op",
			zap.String("event_id", event.ID),
			zap.String("order_id", orderID.String()))
		return nil
	}

	intentID := event.Data.Object.PaymentIntent
	if intentID == "" {
		intentID = event.Data.Object.ID
	}
	result := domain.PaymentResult{
		IntentID:  intentID,
		Status:    "refunded",
		Amount:    payment.MajorUnits(event.Data.Object.Amount),
		UpdatedAt: time.Now(),
	}

	applied, err := s.repos.Order.MarkRefunded(ctx, orderID, event.Data.Object.ID, result)
	if err != nil {
		return err
	}
	if !applied {
		// Either refunded concurrently or never paid; both are final here.
		s.logger.Info("Refund event did not transition order",
			zap.String("event_id", event.ID),
			zap.String("order_id", orderID.String()),
			zap.String("status", string(order.Status)))
		return nil
	}

	eventRecord := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: "order_refunded",
		EventData: map[string]interface{}{
			"event_id":  event.ID,
			"refund_id": event.Data.Object.ID,
		},
	}
	if err := s.repos.OrderEvent.Create(ctx, eventRecord); err != nil {
		s.logger.Warn("Failed to record refund event", zap.Error(err))
	}
	return nil
}

func (s *webhookService) orderIDFromEvent(event *payment.Event) (*uuid.UUID, error) {
	raw, ok := event.Data.Object.Metadata["order_id"]
	if !ok || raw == "" {
		return nil, &errors.ErrValidation{Field: "metadata.order_id", Message: "missing from event"}
	}

	orderID, err := uuid.Parse(raw)
	if err != nil {
		return nil, &errors.ErrValidation{Field: "metadata.order_id", Message: "not a valid id"}
	}

	return &orderID, nil
}
