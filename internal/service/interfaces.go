package service

import (
	"context"

	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/payment"
)

// PaymentGateway is the processor boundary consumed by the payment, order and
// webhook services. *payment.Client implements it.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, params payment.CreateIntentParams) (*payment.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*payment.Intent, error)
	Refund(ctx context.Context, intentID, idempotencyKey string) (*payment.Refund, error)
}

// Notifier publishes fire-and-forget order notifications after commit.
// *notify.Publisher implements it.
type Notifier interface {
	PublishOrderEvent(ctx context.Context, kind string, order *domain.Order)
}
