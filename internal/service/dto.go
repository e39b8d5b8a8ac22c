package service

import "github.com/orchardshop/storefront/internal/domain"

// CreateOrderRequest is the checkout input
type CreateOrderRequest struct {
	ShippingAddress domain.ShippingAddress `json:"shipping_address" binding:"required"`
	PaymentMethod   string                 `json:"payment_method" binding:"required"`
	CouponCode      *string                `json:"coupon_code,omitempty"`
	IdempotencyKey  *string                `json:"idempotency_key,omitempty"`
}

// CartPreview is the informational cart pricing shown before checkout
type CartPreview struct {
	Items      []CartPreviewItem `json:"items"`
	Subtotal   float64           `json:"subtotal"`
	CouponCode *string           `json:"coupon_code,omitempty"`
	Discount   float64           `json:"discount"`
	Total      float64           `json:"total"`
}

// CartPreviewItem is one priced cart line
type CartPreviewItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
}

// PaymentStatus reports the reconciled payment state of an order
type PaymentStatus struct {
	OrderID      string  `json:"order_id"`
	IsPaid       bool    `json:"is_paid"`
	IntentID     string  `json:"intent_id,omitempty"`
	IntentStatus string  `json:"intent_status,omitempty"`
	AmountDue    float64 `json:"amount_due"`
}
