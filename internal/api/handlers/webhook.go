package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/api/middleware"
	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/internal/service"
	"github.com/orchardshop/storefront/pkg/errors"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// HandlePaymentWebhook handles POST /v1/payment/webhook. The processor
// retries on non-2xx, so only verification failures are rejected; processing
// errors are logged and acknowledged to avoid an endless redelivery loop.
// A failed event stays out of the dedupe ledger, so a later re-send or
// manual replay of the same event can still complete the transition.
func HandlePaymentWebhook(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			middleware.RecordWebhookEvent("unknown", "read_error")
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		webhooks := service.NewWebhookService(repos, cfg.Payment, orders, logger)

		signature := c.GetHeader("Payment-Signature")
		eventType, err := webhooks.HandleEvent(c.Request.Context(), payload, signature)
		if eventType == "" {
			eventType = "unknown"
		}
		if err != nil {
			if _, ok := err.(*errors.ErrPaymentVerification); ok {
				middleware.RecordWebhookEvent(eventType, "rejected")
				c.JSON(http.StatusBadRequest, gin.H{"error": "verification failed"})
				return
			}
			logger.Error("Webhook processing failed", zap.Error(err))
			middleware.RecordWebhookEvent(eventType, "error")
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		middleware.RecordWebhookEvent(eventType, "processed")
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
