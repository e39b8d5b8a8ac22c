package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/orchardshop/storefront/internal/domain"
)

// ErrDuplicateIdempotencyKey is returned by OrderRepository.CreateFromCart
// when another order already holds the request's idempotency key. The caller
// re-fetches and returns the existing order.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

// UserRepository provides access to the user directory
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}

// ProductRepository is the catalog store boundary. Stock mutation happens
// only inside the checkout transaction, never through this interface.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	Create(ctx context.Context, product *domain.Product) error
}

// CartRepository persists the per-customer cart
type CartRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	Create(ctx context.Context, cart *domain.Cart) error
	UpsertItem(ctx context.Context, cartID uuid.UUID, item domain.CartItem) error
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
	SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error
}

// CouponRepository provides access to coupon rules. Usage counters are only
// incremented inside the checkout transaction.
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	Create(ctx context.Context, coupon *domain.Coupon) error
	CountRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error)
}

// CheckoutParams is the unit of work committed atomically at checkout: stock
// decrements, order insert, coupon usage increment and cart clear all succeed
// or all roll back.
type CheckoutParams struct {
	Order  *domain.Order
	CartID uuid.UUID
	Coupon *domain.Coupon // nil when no coupon applied
}

// OrderRepository persists orders and their guarded lifecycle transitions.
// Every transition method returns false when the conditional update matched
// no row, meaning the order was not in the required state.
type OrderRepository interface {
	CreateFromCart(ctx context.Context, params CheckoutParams) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error)

	SetPaymentIntent(ctx context.Context, id uuid.UUID, result domain.PaymentResult) error
	MarkPaid(ctx context.Context, id uuid.UUID, result domain.PaymentResult, paidAt time.Time) (bool, error)
	Ship(ctx context.Context, id uuid.UUID, carrier, trackingNumber string) (bool, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	RequestReturn(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ApproveReturn(ctx context.Context, id uuid.UUID, refundID string, result domain.PaymentResult) (bool, error)
	RejectReturn(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, refundID string, result domain.PaymentResult) (bool, error)
}

// ProcessedEventRepository is the webhook dedupe ledger. An event id is
// recorded only after its handler succeeded, so a transient handler failure
// leaves the event redeliverable.
type ProcessedEventRepository interface {
	// Seen reports whether the event id was already recorded.
	Seen(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records the event id and reports whether this call was the
	// first to do so. A false return means a concurrent delivery got there
	// first, which is not an error.
	MarkProcessed(ctx context.Context, event domain.ProcessedEvent) (bool, error)
}

// OrderEventRepository records lifecycle audit events
type OrderEventRepository interface {
	Create(ctx context.Context, event *domain.OrderEvent) error
}

// Repositories aggregates all repository implementations
type Repositories struct {
	User           UserRepository
	Product        ProductRepository
	Cart           CartRepository
	Coupon         CouponRepository
	Order          OrderRepository
	ProcessedEvent ProcessedEventRepository
	OrderEvent     OrderEventRepository
}
