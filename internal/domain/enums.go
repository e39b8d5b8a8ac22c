package domain

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusPaid,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanTransitionTo checks if a status transition is valid.
// Cancellation is a pre-payment operation only; refunds are allowed from any
// post-payment state.
func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return newStatus == OrderStatusPaid ||
			newStatus == OrderStatusCancelled
	case OrderStatusPaid:
		return newStatus == OrderStatusShipped ||
			newStatus == OrderStatusDelivered ||
			newStatus == OrderStatusRefunded
	case OrderStatusShipped:
		return newStatus == OrderStatusDelivered ||
			newStatus == OrderStatusRefunded
	case OrderStatusDelivered:
		return newStatus == OrderStatusRefunded
	case OrderStatusCancelled, OrderStatusRefunded:
		return false // Terminal states
	default:
		return false
	}
}

// ReturnStatus tracks the customer-initiated return workflow on a delivered
// order. NONE means no return has been requested.
type ReturnStatus string

const (
	ReturnStatusNone      ReturnStatus = "NONE"
	ReturnStatusRequested ReturnStatus = "REQUESTED"
	ReturnStatusApproved  ReturnStatus = "APPROVED"
	ReturnStatusRejected  ReturnStatus = "REJECTED"
)

// IsValid checks if the return status is valid
func (s ReturnStatus) IsValid() bool {
	switch s {
	case ReturnStatusNone, ReturnStatusRequested, ReturnStatusApproved, ReturnStatusRejected:
		return true
	default:
		return false
	}
}

// CouponType is the discount computation rule for a coupon
type CouponType string

const (
	CouponTypeFixed   CouponType = "FIXED"
	CouponTypePercent CouponType = "PERCENT"
)

// IsValid checks if the coupon type is valid
func (t CouponType) IsValid() bool {
	return t == CouponTypeFixed || t == CouponTypePercent
}
