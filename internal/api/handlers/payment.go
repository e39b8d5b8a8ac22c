package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/api/middleware"
	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/internal/service"
	"github.com/orchardshop/storefront/pkg/errors"
)

// CreateIntentRequest names the order to collect payment for
type CreateIntentRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// HandleCreateIntent handles POST /v1/payment/create-intent
func HandleCreateIntent(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req CreateIntentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		order, err := repos.Order.GetByID(c.Request.Context(), orderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if order.UserID != userID {
			respondError(c, logger, &errors.ErrNotFound{Resource: "order", ID: orderID.String()})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		payments := service.NewPaymentService(repos, gateway, cfg.Payment, orders, logger)
		intent, err := payments.CreateIntent(c.Request.Context(), orderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"intent_id":     intent.ID,
			"client_secret": intent.ClientSecret,
			"amount":        intent.Amount,
			"currency":      intent.Currency,
			"status":        intent.Status,
		})
	}
}

// HandleGetPaymentStatus handles GET /v1/orders/:id/payment-status. For an
// unpaid order with a stored intent it re-queries the processor, so a
// succeeded payment is reflected even if the webhook has not landed yet.
func HandleGetPaymentStatus(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		order, err := repos.Order.GetByID(c.Request.Context(), orderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if order.UserID != userID && !middleware.IsAdmin(c) {
			respondError(c, logger, &errors.ErrNotFound{Resource: "order", ID: orderID.String()})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		payments := service.NewPaymentService(repos, gateway, cfg.Payment, orders, logger)
		status, err := payments.GetPaymentStatus(c.Request.Context(), orderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, status)
	}
}
