package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a storefront customer or back-office admin
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Product represents a catalog record with authoritative price and stock
type Product struct {
	ID        uuid.UUID
	Name      string
	Image     string
	Price     float64
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cart is a customer's mutable pre-checkout selection. One cart per user.
type Cart struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CouponCode *string // hint only, re-validated at checkout
	Items      []CartItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem is one (product, quantity) line in a cart
type CartItem struct {
	ProductID uuid.UUID
	Quantity  int
	AddedAt   time.Time
}

// Coupon is the authoritative discount rule. Code is stored normalized
// upper-case.
type Coupon struct {
	ID                 uuid.UUID
	Code               string
	Type               CouponType
	Value              float64
	MinPurchase        *float64
	MaxDiscount        *float64
	ValidFrom          time.Time
	ValidTo            time.Time
	IsActive           bool
	UsageLimit         *int
	TimesUsed          int
	PerUserLimit       *int
	ApplicableProducts []uuid.UUID
	ExcludedProducts   []uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CouponSnapshot captures the coupon as applied at order-creation time,
// decoupled from later coupon edits.
type CouponSnapshot struct {
	Code  string     `json:"code"`
	Type  CouponType `json:"type"`
	Value float64    `json:"value"`
}

// ShippingAddress is the immutable destination snapshot on an order
type ShippingAddress struct {
	Street     string  `json:"street"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// PaymentResult records the processor-side outcome attached to an order
type PaymentResult struct {
	IntentID  string    `json:"intent_id"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Order is the immutable, priced snapshot of a completed checkout with a
// mutable lifecycle status. Orders are never deleted.
type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   string
	Status          OrderStatus
	ItemsPrice      float64
	DiscountAmount  float64
	TaxPrice        float64
	ShippingPrice   float64
	TotalPrice      float64
	CouponApplied   *CouponSnapshot
	IdempotencyKey  *string
	IsPaid          bool
	PaidAt          *time.Time
	IsDelivered     bool
	DeliveredAt     *time.Time
	PaymentResult   *PaymentResult
	ReturnStatus    ReturnStatus
	ReturnReason    *string
	RefundID        *string
	TrackingCarrier *string
	TrackingNumber  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots product identity and unit price at checkout time so
// later catalog edits cannot alter historical orders.
type OrderItem struct {
	ProductID uuid.UUID
	Name      string
	Image     string
	UnitPrice float64
	Quantity  int
}

// ProcessedEvent is one row in the webhook dedupe ledger. The event id is the
// primary key; a second delivery of the same event fails the insert and is
// treated as already handled.
type ProcessedEvent struct {
	EventID     string
	EventType   string
	OrderID     *uuid.UUID
	ProcessedAt time.Time
}

// OrderEvent is an audit record of a lifecycle change
type OrderEvent struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	EventType string
	EventData map[string]interface{} // JSONB
	CreatedAt time.Time
}
