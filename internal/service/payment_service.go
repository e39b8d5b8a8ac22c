package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/payment"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

type paymentService struct {
	repos   *repository.Repositories
	gateway PaymentGateway
	cfg     config.PaymentConfig
	orders  *orderService
	logger  *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	repos *repository.Repositories,
	gateway PaymentGateway,
	cfg config.PaymentConfig,
	orders *orderService,
	logger *zap.Logger,
) *paymentService {
	return &paymentService{
		repos:   repos,
		gateway: gateway,
		cfg:     cfg,
		orders:  orders,
		logger:  logger,
	}
}

// CreateIntent creates a processor-side payment intent for an unpaid order
// and returns the client secret the customer completes payment with.
func (s *paymentService) CreateIntent(ctx context.Context, orderID uuid.UUID) (*payment.Intent, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.IsPaid {
		return nil, &errors.ErrConflict{Resource: "order", Message: "already paid"}
	}
	if order.Status.IsTerminal() {
		return nil, &errors.ErrConflict{
			Resource: "order",
			Message:  fmt.Sprintf("cannot pay a %s order", order.Status),
		}
	}
	if order.TotalPrice <= 0 {
		return nil, &errors.ErrValidation{Field: "total_price", Message: "order total must be positive"}
	}
	if order.TotalPrice > s.cfg.MaxChargeAmount {
		return nil, &errors.ErrValidation{
			Field:   "total_price",
			Message: fmt.Sprintf("order total exceeds charge ceiling of %.2f", s.cfg.MaxChargeAmount),
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.CreateIntentParams{
		AmountMinor: payment.MinorUnits(order.TotalPrice),
		Currency:    "usd",
		OrderID:     order.ID.String(),
		UserID:      order.UserID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	result := domain.PaymentResult{
		IntentID:  intent.ID,
		Status:    intent.Status,
		Amount:    payment.MajorUnits(intent.Amount),
		UpdatedAt: time.Now(),
	}
	if err := s.repos.Order.SetPaymentIntent(ctx, orderID, result); err != nil {
		// The intent exists on the processor side, so the webhook will still
		// settle the order; only sync reconciliation is degraded.
		s.logger.Warn("Failed to store payment intent on order",
			zap.String("order_id", orderID.String()), zap.Error(err))
	}

	return intent, nil
}

// GetPaymentStatus reports the order's payment state. For an unpaid order
// with a known intent it re-queries the gateway and reconciles an intent that
// already succeeded, covering the gap before the webhook arrives.
func (s *paymentService) GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*PaymentStatus, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	status := &PaymentStatus{
		OrderID:   order.ID.String(),
		IsPaid:    order.IsPaid,
		AmountDue: order.TotalPrice,
	}
	if order.PaymentResult != nil {
		status.IntentID = order.PaymentResult.IntentID
		status.IntentStatus = order.PaymentResult.Status
	}

	if order.IsPaid || order.PaymentResult == nil || order.PaymentResult.IntentID == "" {
		return status, nil
	}

	intent, err := s.gateway.GetIntent(ctx, order.PaymentResult.IntentID)
	if err != nil {
		// Outcome unknown; report the stored state and let the webhook settle it.
		s.logger.Warn("Failed to query payment intent",
			zap.String("order_id", orderID.String()), zap.Error(err))
		return status, nil
	}

	status.IntentStatus = intent.Status
	if intent.Status == payment.IntentStatusSucceeded {
		result := domain.PaymentResult{
			IntentID:  intent.ID,
			Status:    intent.Status,
			Amount:    payment.MajorUnits(intent.Amount),
			UpdatedAt: time.Now(),
		}
		if err := s.orders.MarkPaidFromSettlement(ctx, orderID, result); err != nil {
			s.logger.Error("Failed to reconcile settled intent",
				zap.String("order_id", orderID.String()), zap.Error(err))
		} else {
			status.IsPaid = true
		}
	}

	return status, nil
}
