package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/notify"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

type orderService struct {
	repos    *repository.Repositories
	gateway  PaymentGateway
	pricing  config.PricingConfig
	notifier Notifier
	logger   *zap.Logger
}

// NewOrderService creates a new order lifecycle service
func NewOrderService(
	repos *repository.Repositories,
	gateway PaymentGateway,
	pricing config.PricingConfig,
	notifier Notifier,
	logger *zap.Logger,
) *orderService {
	return &orderService{
		repos:    repos,
		gateway:  gateway,
		pricing:  pricing,
		notifier: notifier,
		logger:   logger,
	}
}

// MarkPaidFromSettlement records payment confirmed by the processor. Driven
// by the webhook processor (or the sync reconciliation path), it treats an
// already-paid order as success so redelivered events are no-ops.
func (s *orderService) MarkPaidFromSettlement(ctx context.Context, orderID uuid.UUID, result domain.PaymentResult) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.IsPaid {
		s.logger.Info("Order already paid, settlement is a no-op",
			zap.String("order_id", orderID.String()))
		return nil
	}

	if !domain.MoneyEqual(result.Amount, order.TotalPrice) {
		return &errors.ErrPaymentVerification{
			Message: fmt.Sprintf("settled amount %.2f does not match order total %.2f", result.Amount, order.TotalPrice),
		}
	}

	applied, err := s.repos.Order.MarkPaid(ctx, orderID, result, time.Now())
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent delivery won the transition; that is still success.
		s.logger.Info("Order payment already recorded concurrently",
			zap.String("order_id", orderID.String()))
		return nil
	}

	s.recordEvent(ctx, orderID, "order_paid", map[string]interface{}{
		"intent_id": result.IntentID,
		"amount":    result.Amount,
	})
	order.Status = domain.OrderStatusPaid
	if s.notifier != nil {
		s.notifier.PublishOrderEvent(ctx, notify.KindOrderPaid, order)
	}

	return nil
}

// MarkPaidByAdmin records a manual payment confirmation. Unlike the
// settlement path, repeating it against a paid order is a conflict so a
// double-clicked admin action surfaces instead of silently passing.
func (s *orderService) MarkPaidByAdmin(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.IsPaid {
		return &errors.ErrConflict{Resource: "order", Message: "already paid"}
	}
	if !order.Status.CanTransitionTo(domain.OrderStatusPaid) {
		return &errors.ErrConflict{
			Resource: "order",
			Message:  fmt.Sprintf("cannot mark %s order as paid", order.Status),
		}
	}

	result := domain.PaymentResult{
		Status:    "manual",
		Amount:    order.TotalPrice,
		UpdatedAt: time.Now(),
	}
	applied, err := s.repos.Order.MarkPaid(ctx, orderID, result, time.Now())
	if err != nil {
		return err
	}
	if !applied {
		return &errors.ErrConflict{Resource: "order", Message: "already paid"}
	}

	s.recordEvent(ctx, orderID, "order_paid", map[string]interface{}{"manual": true})
	return nil
}

// Ship marks a paid order as shipped with tracking information
func (s *orderService) Ship(ctx context.Context, orderID uuid.UUID, carrier, trackingNumber string) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !order.Status.CanTransitionTo(domain.OrderStatusShipped) {
		return &errors.ErrConflict{
			Resource: "order",
			Message:  fmt.Sprintf("cannot ship %s order", order.Status),
		}
	}

	applied, err := s.repos.Order.Ship(ctx, orderID, carrier, trackingNumber)
	if err != nil {
		return err
	}
	if !applied {
		return &errors.ErrConflict{Resource: "order", Message: "order is no longer in a shippable state"}
	}

	s.recordEvent(ctx, orderID, "order_shipped", map[string]interface{}{
		"carrier":         carrier,
		"tracking_number": trackingNumber,
	})
	return nil
}

// MarkDelivered records delivery of a paid order
func (s *orderService) MarkDelivered(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !order.IsPaid {
		return &errors.ErrConflict{Resource: "order", Message: "cannot deliver an unpaid order"}
	}
	if order.IsDelivered {
		return &errors.ErrConflict{Resource: "order", Message: "already delivered"}
	}

	applied, err := s.repos.Order.MarkDelivered(ctx, orderID, time.Now())
	if err != nil {
		return err
	}
	if !applied {
		return &errors.ErrConflict{Resource: "order", Message: "order is not in a deliverable state"}
	}

	s.recordEvent(ctx, orderID, "order_delivered", nil)
	return nil
}

// Cancel cancels a pending order. Cancellation is a pre-payment operation;
// paid orders go through the refund path instead.
func (s *orderService) Cancel(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.IsPaid || !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
		return &errors.ErrConflict{
			Resource: "order",
			Message:  fmt.Sprintf("cannot cancel %s order", order.Status),
		}
	}

	applied, err := s.repos.Order.Cancel(ctx, orderID)
	if err != nil {
		return err
	}
	if !applied {
		return &errors.ErrConflict{Resource: "order", Message: "order is no longer cancellable"}
	}

	s.recordEvent(ctx, orderID, "order_cancelled", nil)
	return nil
}

// RequestReturn opens a return request on a delivered order, inside the
// return window counted from the delivery timestamp.
func (s *orderService) RequestReturn(ctx context.Context, orderID uuid.UUID, reason string) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == domain.OrderStatusRefunded {
		return &errors.ErrConflict{Resource: "order", Message: "already refunded"}
	}
	if order.Status != domain.OrderStatusDelivered || order.DeliveredAt == nil {
		return &errors.ErrConflict{Resource: "order", Message: "only delivered orders can be returned"}
	}
	if order.ReturnStatus != domain.ReturnStatusNone {
		return &errors.ErrConflict{Resource: "order", Message: "return already requested"}
	}

	window := time.Duration(s.pricing.ReturnWindowDays) * 24 * time.Hour
	if time.Since(*order.DeliveredAt) > window {
		return &errors.ErrConflict{Resource: "order", Message: "return window expired"}
	}

	applied, err := s.repos.Order.RequestReturn(ctx, orderID, reason)
	if err != nil {
		return err
	}
	if !applied {
		return &errors.ErrConflict{Resource: "order", Message: "return already requested"}
	}

	s.recordEvent(ctx, orderID, "return_requested", map[string]interface{}{"reason": reason})
	return nil
}

// ProcessReturn resolves a pending return request. Approval refunds the
// payment through the gateway and moves the order to refunded; rejection
// records the reason and leaves the order delivered.
func (s *orderService) ProcessReturn(ctx context.Context, orderID uuid.UUID, approve bool, reason string) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.ReturnStatus != domain.ReturnStatusRequested {
		return &errors.ErrConflict{Resource: "order", Message: "no pending return request"}
	}

	if !approve {
		applied, err := s.repos.Order.RejectReturn(ctx, orderID, reason)
		if err != nil {
			return err
		}
		if !applied {
			return &errors.ErrConflict{Resource: "order", Message: "return request already resolved"}
		}
		s.recordEvent(ctx, orderID, "return_rejected", map[string]interface{}{"reason": reason})
		return nil
	}

	refundID, result, err := s.issueRefund(ctx, order)
	if err != nil {
		return err
	}

	applied, err := s.repos.Order.ApproveReturn(ctx, orderID, refundID, result)
	if err != nil {
		return err
	}
	if !applied {
		return &errors.ErrConflict{Resource: "order", Message: "return request already resolved"}
	}

	s.recordEvent(ctx, orderID, "return_approved", map[string]interface{}{"refund_id": refundID})
	order.Status = domain.OrderStatusRefunded
	if s.notifier != nil {
		s.notifier.PublishOrderEvent(ctx, notify.KindOrderRefunded, order)
	}
	return nil
}

// ProcessRefund is the admin-triggered direct refund, valid on any paid,
// shipped or delivered order.
func (s *orderService) ProcessRefund(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == domain.OrderStatusRefunded {
		return &errors.ErrConflict{Resource: "order", Message: "already refunded"}
	}
	if !order.Status.CanTransitionTo(domain.OrderStatusRefunded) {
		return &errors.ErrConflict{
			Resource: "order",
			Message:  fmt.Sprintf("cannot refund %s order", order.Status),
		}
	}

	refundID, result, err := s.issueRefund(ctx, order)
	if err != nil {
		return err
	}

	applied, err := s.repos.Order.MarkRefunded(ctx, orderID, refundID, result)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent refund beat us to the transition.
		return &errors.ErrConflict{Resource: "order", Message: "already refunded"}
	}

	s.recordEvent(ctx, orderID, "order_refunded", map[string]interface{}{"refund_id": refundID})
	order.Status = domain.OrderStatusRefunded
	if s.notifier != nil {
		s.notifier.PublishOrderEvent(ctx, notify.KindOrderRefunded, order)
	}
	return nil
}

func (s *orderService) issueRefund(ctx context.Context, order *domain.Order) (string, domain.PaymentResult, error) {
	if order.PaymentResult == nil || order.PaymentResult.IntentID == "" {
		return "", domain.PaymentResult{}, &errors.ErrConflict{
			Resource: "order",
			Message:  "order has no settled payment to refund",
		}
	}

	// Two requests racing past the state read both reach the gateway; the
	// order-derived idempotency key collapses them to one processor refund.
	refund, err := s.gateway.Refund(ctx, order.PaymentResult.IntentID, refundIdempotencyKey(order.ID))
	if err != nil {
		// Outcome unknown on timeout; do not mutate the order. The refund
		// webhook will reconcile if the processor did apply it.
		return "", domain.PaymentResult{}, fmt.Errorf("refund request failed: %w", err)
	}

	result := domain.PaymentResult{
		IntentID:  order.PaymentResult.IntentID,
		Status:    "refunded",
		Amount:    order.TotalPrice,
		UpdatedAt: time.Now(),
	}
	return refund.ID, result, nil
}

// refundIdempotencyKey is stable per order, so the return-approval and the
// direct admin refund paths can never both charge the processor.
func refundIdempotencyKey(orderID uuid.UUID) string {
	return "refund-" + orderID.String()
}

func (s *orderService) recordEvent(ctx context.Context, orderID uuid.UUID, eventType string, data map[string]interface{}) {
	event := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: eventType,
		EventData: data,
	}
	if err := s.repos.OrderEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record order event", zap.String("event_type", eventType), zap.Error(err))
	}
}
