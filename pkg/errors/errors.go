package errors

import (
	"fmt"
	"strings"
)

// ErrValidation indicates a malformed or out-of-range input.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrNotFound indicates a missing resource.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrConflict indicates a state transition that is not allowed from the
// resource's current status.
type ErrConflict struct {
	Resource string
	Message  string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

// StockShortage names one cart line whose requested quantity exceeds the
// available stock.
type StockShortage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// ErrInsufficientStock carries every offending line item so the client can
// correct all of them in one pass.
type ErrInsufficientStock struct {
	Items []StockShortage
}

func (e *ErrInsufficientStock) Error() string {
	names := make([]string, len(e.Items))
	for i, it := range e.Items {
		names[i] = fmt.Sprintf("%s (requested %d, available %d)", it.Name, it.Requested, it.Available)
	}
	return "insufficient stock: " + strings.Join(names, ", ")
}

// ErrCouponInvalid indicates an expired, inactive, exhausted or inapplicable
// coupon. Callers decide policy: checkout rejects, cart preview drops it.
type ErrCouponInvalid struct {
	Code   string
	Reason string
}

func (e *ErrCouponInvalid) Error() string {
	return fmt.Sprintf("coupon %s invalid: %s", e.Code, e.Reason)
}

// ErrPaymentVerification indicates a signature or amount mismatch coming from
// the payment processor boundary.
type ErrPaymentVerification struct {
	Message string
}

func (e *ErrPaymentVerification) Error() string {
	return "payment verification failed: " + e.Message
}

// ErrUnauthorized indicates missing or invalid credentials.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	return e.Message
}

// ErrForbidden indicates the caller is authenticated but is neither the
// resource owner nor an admin.
type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string {
	return e.Message
}
