package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/pkg/errors"
)

// respondError maps the error taxonomy onto HTTP statuses. Unrecognized
// errors are logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch e := err.(type) {
	case *errors.ErrValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": e.Error()})
	case *errors.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": e.Error()})
	case *errors.ErrConflict:
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": e.Error()})
	case *errors.ErrInsufficientStock:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "insufficient_stock",
			"message": e.Error(),
			"items":   e.Items,
		})
	case *errors.ErrCouponInvalid:
		c.JSON(http.StatusBadRequest, gin.H{"error": "coupon_invalid", "message": e.Error()})
	case *errors.ErrPaymentVerification:
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_verification", "message": e.Error()})
	case *errors.ErrUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": e.Error()})
	case *errors.ErrForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": e.Error()})
	default:
		logger.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal error"})
	}
}
