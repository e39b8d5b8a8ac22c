package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/pkg/errors"
)

var testPricing = config.PricingConfig{
	TaxRate:               0.10,
	ShippingFlatRate:      10,
	FreeShippingThreshold: 100,
	ReturnWindowDays:      30,
}

func validCheckoutRequest() CreateOrderRequest {
	return CreateOrderRequest{
		ShippingAddress: domain.ShippingAddress{
			Street: "1 Orchard Lane", City: "Portland", PostalCode: "97201", Country: "US",
		},
		PaymentMethod: "card",
	}
}

func TestCheckoutService_CreateOrder_Totals(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	productID := env.addProduct("Teapot", 50, 10)
	env.addCart(userID, domain.CartItem{ProductID: productID, Quantity: 2})

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())
	order, err := checkout.CreateOrder(context.Background(), userID, validCheckoutRequest())
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	// 2 x 50 = 100, free shipping at the threshold, 10% tax
	if order.ItemsPrice != 100 {
		t.Errorf("ItemsPrice = %v, want 100", order.ItemsPrice)
	}
	if order.ShippingPrice != 0 {
		t.Errorf("ShippingPrice = %v, want 0", order.ShippingPrice)
	}
	if order.TaxPrice != 10 {
		t.Errorf("TaxPrice = %v, want 10", order.TaxPrice)
	}
	if order.TotalPrice != 110 {
		t.Errorf("TotalPrice = %v, want 110", order.TotalPrice)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("Status = %v, want PENDING", order.Status)
	}

	// Unit price snapshotted and stock decremented
	if len(order.Items) != 1 || order.Items[0].UnitPrice != 50 {
		t.Errorf("Items = %+v, want one item at unit price 50", order.Items)
	}
	if env.products.products[productID].Stock != 8 {
		t.Errorf("remaining stock = %d, want 8", env.products.products[productID].Stock)
	}

	// Cart cleared after checkout
	cart, err := env.carts.GetByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetByUserID() error = %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("cart still has %d items after checkout", len(cart.Items))
	}

	if len(env.notifier.kinds) != 1 {
		t.Errorf("published %d notifications, want 1", len(env.notifier.kinds))
	}
}

func TestCheckoutService_CreateOrder_WithCoupon(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	productID := env.addProduct("Kettle", 40, 10)

	now := time.Now()
	coupon := &domain.Coupon{
		Code: "SAVE10", Type: domain.CouponTypePercent, Value: 10,
		ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour), IsActive: true,
	}
	_ = env.coupons.Create(context.Background(), coupon)

	cart := env.addCart(userID, domain.CartItem{ProductID: productID, Quantity: 2})
	cart.CouponCode = strPtr("SAVE10")

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())
	order, err := checkout.CreateOrder(context.Background(), userID, validCheckoutRequest())
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	// 80 items - 8 discount + 8 tax + 10 shipping (below free threshold)
	if order.DiscountAmount != 8 {
		t.Errorf("DiscountAmount = %v, want 8", order.DiscountAmount)
	}
	if order.ShippingPrice != 10 {
		t.Errorf("ShippingPrice = %v, want 10", order.ShippingPrice)
	}
	if order.TotalPrice != 90 {
		t.Errorf("TotalPrice = %v, want 90", order.TotalPrice)
	}
	if order.CouponApplied == nil || order.CouponApplied.Code != "SAVE10" {
		t.Errorf("CouponApplied = %+v, want SAVE10 snapshot", order.CouponApplied)
	}

	// Usage counter incremented inside the commit
	if env.coupons.coupons["SAVE10"].TimesUsed != 1 {
		t.Errorf("TimesUsed = %d, want 1", env.coupons.coupons["SAVE10"].TimesUsed)
	}
}

func TestCheckoutService_CreateOrder_InvalidCouponRejects(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	productID := env.addProduct("Mug", 15, 10)
	env.addCart(userID, domain.CartItem{ProductID: productID, Quantity: 1})

	req := validCheckoutRequest()
	req.CouponCode = strPtr("GHOST")

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())
	_, err := checkout.CreateOrder(context.Background(), userID, req)

	if _, ok := err.(*errors.ErrCouponInvalid); !ok {
		t.Fatalf("CreateOrder() error = %v, want ErrCouponInvalid", err)
	}
	// Nothing committed
	if env.products.products[productID].Stock != 10 {
		t.Errorf("stock mutated on failed checkout")
	}
	if len(env.orders.orders) != 0 {
		t.Errorf("order created despite invalid coupon")
	}
}

func TestCheckoutService_CreateOrder_EmptyCart(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())

	// No cart at all
	_, err := checkout.CreateOrder(context.Background(), userID, validCheckoutRequest())
	if _, ok := err.(*errors.ErrValidation); !ok {
		t.Errorf("CreateOrder() with no cart error = %v, want ErrValidation", err)
	}

	// Cart exists but is empty
	env.addCart(userID)
	_, err = checkout.CreateOrder(context.Background(), userID, validCheckoutRequest())
	if _, ok := err.(*errors.ErrValidation); !ok {
		t.Errorf("CreateOrder() with empty cart error = %v, want ErrValidation", err)
	}
}

func TestCheckoutService_CreateOrder_ReportsAllShortages(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	scarce := env.addProduct("Vase", 30, 1)
	gone := env.addProduct("Lamp", 60, 0)
	plenty := env.addProduct("Tray", 12, 50)
	env.addCart(userID,
		domain.CartItem{ProductID: scarce, Quantity: 3},
		domain.CartItem{ProductID: gone, Quantity: 1},
		domain.CartItem{ProductID: plenty, Quantity: 2},
	)

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())
	_, err := checkout.CreateOrder(context.Background(), userID, validCheckoutRequest())

	insufficient, ok := err.(*errors.ErrInsufficientStock)
	if !ok {
		t.Fatalf("CreateOrder() error = %v, want ErrInsufficientStock", err)
	}
	if len(insufficient.Items) != 2 {
		t.Fatalf("reported %d shortages, want 2", len(insufficient.Items))
	}
	for _, shortage := range insufficient.Items {
		if shortage.ProductID == plenty.String() {
			t.Errorf("in-stock product reported as shortage: %+v", shortage)
		}
	}

	// No partial commit
	if env.products.products[scarce].Stock != 1 || env.products.products[gone].Stock != 0 {
		t.Errorf("stock mutated on failed checkout")
	}
}

func TestCheckoutService_CreateOrder_Idempotency(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	productID := env.addProduct("Clock", 25, 10)
	env.addCart(userID, domain.CartItem{ProductID: productID, Quantity: 1})

	req := validCheckoutRequest()
	req.IdempotencyKey = strPtr("req-abc-123")

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())

	first, err := checkout.CreateOrder(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("CreateOrder() first call error = %v", err)
	}

	// Retried request returns the same order with no new side effects, even
	// though the cart is now empty.
	second, err := checkout.CreateOrder(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("CreateOrder() retry error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retry created a new order: %s != %s", second.ID, first.ID)
	}
	if len(env.orders.orders) != 1 {
		t.Errorf("retry committed %d orders, want 1", len(env.orders.orders))
	}
	if env.products.products[productID].Stock != 9 {
		t.Errorf("stock = %d after retry, want 9", env.products.products[productID].Stock)
	}
}

// An explicit empty key is no key at all: two distinct checkouts sending
// "" must both go through instead of the second being answered with the
// first order.
func TestCheckoutService_CreateOrder_EmptyIdempotencyKey(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	productID := env.addProduct("Mug", 15, 10)

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())

	env.addCart(userID, domain.CartItem{ProductID: productID, Quantity: 1})
	req := validCheckoutRequest()
	req.IdempotencyKey = strPtr("")
	first, err := checkout.CreateOrder(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("CreateOrder() first call error = %v", err)
	}

	env.addCart(userID, domain.CartItem{ProductID: productID, Quantity: 2})
	second, err := checkout.CreateOrder(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("CreateOrder() second call error = %v", err)
	}

	if second.ID == first.ID {
		t.Errorf("second checkout was deduplicated against the first")
	}
	if len(env.orders.orders) != 2 {
		t.Errorf("committed %d orders, want 2", len(env.orders.orders))
	}
	if first.IdempotencyKey != nil || second.IdempotencyKey != nil {
		t.Errorf("empty key was stored instead of being dropped")
	}
}

// Two checkouts for the last unit: exactly one succeeds, the other reports
// the shortage, and stock never goes negative.
func TestCheckoutService_CreateOrder_LastUnitRace(t *testing.T) {
	env := newTestEnv()
	firstUser := uuid.New()
	secondUser := uuid.New()
	productID := env.addProduct("Lamp", 60, 1)
	env.addCart(firstUser, domain.CartItem{ProductID: productID, Quantity: 1})
	env.addCart(secondUser, domain.CartItem{ProductID: productID, Quantity: 1})

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())

	if _, err := checkout.CreateOrder(context.Background(), firstUser, validCheckoutRequest()); err != nil {
		t.Fatalf("CreateOrder() for first user error = %v", err)
	}

	_, err := checkout.CreateOrder(context.Background(), secondUser, validCheckoutRequest())
	stockErr, ok := err.(*errors.ErrInsufficientStock)
	if !ok {
		t.Fatalf("CreateOrder() for second user error = %v, want ErrInsufficientStock", err)
	}
	if len(stockErr.Items) != 1 || stockErr.Items[0].Available != 0 {
		t.Errorf("shortage = %+v, want the lamp with 0 available", stockErr.Items)
	}

	if got := env.products.products[productID].Stock; got != 0 {
		t.Errorf("stock = %d, want 0", got)
	}
	if len(env.orders.orders) != 1 {
		t.Errorf("committed %d orders, want 1", len(env.orders.orders))
	}
}

func TestCheckoutService_CreateOrder_IdempotencyRace(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	productID := env.addProduct("Bowl", 20, 10)
	env.addCart(userID, domain.CartItem{ProductID: productID, Quantity: 1})

	key := "race-key"
	// A concurrent retry wins the insert between the lookup and the commit:
	// the key is already bound to an existing order, but the initial lookup
	// does not see it yet.
	winner := env.addOrder(&domain.Order{
		UserID:         userID,
		Status:         domain.OrderStatusPending,
		TotalPrice:     32,
		IdempotencyKey: &key,
		ReturnStatus:   domain.ReturnStatusNone,
	})
	env.orders.byIdemKey[idemKey(userID, key)] = winner.ID
	env.orders.missNextLookup = true

	req := validCheckoutRequest()
	req.IdempotencyKey = &key

	checkout := NewCheckoutService(env.repos, testPricing, env.notifier, zap.NewNop())
	order, err := checkout.CreateOrder(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if order.ID != winner.ID {
		t.Errorf("lost race should return the winner's order, got %s want %s", order.ID, winner.ID)
	}
}
