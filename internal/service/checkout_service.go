package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/notify"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

type checkoutService struct {
	repos    *repository.Repositories
	coupons  *couponService
	pricing  config.PricingConfig
	notifier Notifier
	logger   *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	repos *repository.Repositories,
	pricing config.PricingConfig,
	notifier Notifier,
	logger *zap.Logger,
) *checkoutService {
	return &checkoutService{
		repos:    repos,
		coupons:  NewCouponService(repos, logger),
		pricing:  pricing,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateOrder converts the user's cart into an immutable order. Stock and
// coupon are re-validated at commit time against the catalog, never against
// cart-cached values, and the commit itself (stock decrements, order insert,
// coupon usage increment, cart clear) is a single all-or-nothing transaction.
func (s *checkoutService) CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*domain.Order, error) {
	// An explicit empty key means no key; storing '' would make unrelated
	// checkouts collide on the unique index.
	idempotencyKey := req.IdempotencyKey
	if idempotencyKey != nil && *idempotencyKey == "" {
		idempotencyKey = nil
	}

	// A retried request with the same key returns the original order with no
	// further side effects.
	if idempotencyKey != nil {
		existing, err := s.repos.Order.GetByIdempotencyKey(ctx, userID, *idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if _, ok := err.(*errors.ErrNotFound); !ok {
			return nil, err
		}
	}

	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err != nil {
		if _, ok := err.(*errors.ErrNotFound); ok {
			return nil, &errors.ErrValidation{Field: "cart", Message: "cart is empty"}
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, &errors.ErrValidation{Field: "cart", Message: "cart is empty"}
	}

	productIDs := make([]uuid.UUID, len(cart.Items))
	for i, item := range cart.Items {
		productIDs[i] = item.ProductID
	}

	products, err := s.repos.Product.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	// Every offending item is reported, not just the first, so the client can
	// correct the whole cart in one pass. The same check runs again as a
	// conditional decrement inside the commit transaction.
	var shortages []errors.StockShortage
	orderItems := make([]domain.OrderItem, 0, len(cart.Items))
	itemsPrice := 0.0
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, &errors.ErrNotFound{Resource: "product", ID: item.ProductID.String()}
		}
		if product.Stock < item.Quantity {
			shortages = append(shortages, errors.StockShortage{
				ProductID: product.ID.String(),
				Name:      product.Name,
				Requested: item.Quantity,
				Available: product.Stock,
			})
			continue
		}
		orderItems = append(orderItems, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
		itemsPrice += product.Price * float64(item.Quantity)
	}
	if len(shortages) > 0 {
		return nil, &errors.ErrInsufficientStock{Items: shortages}
	}
	itemsPrice = domain.RoundMoney(itemsPrice)

	// Unlike cart preview, checkout rejects an invalid coupon outright.
	var coupon *domain.Coupon
	var couponSnapshot *domain.CouponSnapshot
	discount := 0.0
	couponCode := req.CouponCode
	if couponCode == nil {
		couponCode = cart.CouponCode
	}
	if couponCode != nil && *couponCode != "" {
		coupon, discount, err = s.coupons.ValidateForOrder(
			ctx, *couponCode, userID, productIDs, itemsPrice, time.Now())
		if err != nil {
			return nil, err
		}
		couponSnapshot = &domain.CouponSnapshot{
			Code:  coupon.Code,
			Type:  coupon.Type,
			Value: coupon.Value,
		}
	}

	shippingPrice := s.pricing.ShippingFlatRate
	if itemsPrice >= s.pricing.FreeShippingThreshold {
		shippingPrice = 0
	}
	taxPrice := domain.RoundMoney(itemsPrice * s.pricing.TaxRate)
	totalPrice := domain.RoundMoney(itemsPrice - discount + taxPrice + shippingPrice)

	order := &domain.Order{
		UserID:          userID,
		Items:           orderItems,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Status:          domain.OrderStatusPending,
		ItemsPrice:      itemsPrice,
		DiscountAmount:  discount,
		TaxPrice:        taxPrice,
		ShippingPrice:   domain.RoundMoney(shippingPrice),
		TotalPrice:      totalPrice,
		CouponApplied:   couponSnapshot,
		IdempotencyKey:  idempotencyKey,
		ReturnStatus:    domain.ReturnStatusNone,
	}

	err = s.repos.Order.CreateFromCart(ctx, repository.CheckoutParams{
		Order:  order,
		CartID: cart.ID,
		Coupon: coupon,
	})
	if err == repository.ErrDuplicateIdempotencyKey && idempotencyKey != nil {
		// Lost the race against a concurrent retry; its order is ours.
		return s.repos.Order.GetByIdempotencyKey(ctx, userID, *idempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, order.ID, "order_created", map[string]interface{}{
		"status":      order.Status,
		"total_price": order.TotalPrice,
	})
	if s.notifier != nil {
		s.notifier.PublishOrderEvent(ctx, notify.KindOrderCreated, order)
	}

	return order, nil
}

func (s *checkoutService) recordEvent(ctx context.Context, orderID uuid.UUID, eventType string, data map[string]interface{}) {
	event := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: eventType,
		EventData: data,
	}
	if err := s.repos.OrderEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record order event", zap.String("event_type", eventType), zap.Error(err))
	}
}
