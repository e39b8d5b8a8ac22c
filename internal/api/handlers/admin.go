package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/api/middleware"
	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/internal/service"
)

// ShipOrderRequest carries the fulfillment tracking details
type ShipOrderRequest struct {
	Carrier        string `json:"carrier" binding:"required"`
	TrackingNumber string `json:"tracking_number" binding:"required"`
}

// ProcessReturnRequest is the admin decision on a pending return
type ProcessReturnRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// HandleListOrders handles GET /v1/admin/orders with an optional status filter
func HandleListOrders(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := listParams(c)

		status := domain.OrderStatus(c.Query("status"))
		if status != "" && !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}

		orders, err := repos.Order.ListByStatus(c.Request.Context(), status, limit, offset)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orders": toOrderListResponse(orders),
			"limit":  limit,
			"offset": offset,
		})
	}
}

// HandleMarkOrderPaid handles POST /v1/admin/orders/:id/pay for offline
// settlement such as bank transfers
func HandleMarkOrderPaid(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		if err := orders.MarkPaidByAdmin(c.Request.Context(), orderID); err != nil {
			middleware.RecordOrderOperation("mark_paid", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("mark_paid", true)
		c.JSON(http.StatusOK, gin.H{"message": "order marked as paid"})
	}
}

// HandleShipOrder handles POST /v1/admin/orders/:id/ship
func HandleShipOrder(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		var req ShipOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		if err := orders.Ship(c.Request.Context(), orderID, req.Carrier, req.TrackingNumber); err != nil {
			middleware.RecordOrderOperation("ship", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("ship", true)
		c.JSON(http.StatusOK, gin.H{"message": "order shipped"})
	}
}

// HandleMarkOrderDelivered handles POST /v1/admin/orders/:id/deliver
func HandleMarkOrderDelivered(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		if err := orders.MarkDelivered(c.Request.Context(), orderID); err != nil {
			middleware.RecordOrderOperation("deliver", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("deliver", true)
		c.JSON(http.StatusOK, gin.H{"message": "order delivered"})
	}
}

// HandleProcessReturn handles POST /v1/admin/orders/:id/return. Approval
// issues the refund through the gateway before the order is updated.
func HandleProcessReturn(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		var req ProcessReturnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		if err := orders.ProcessReturn(c.Request.Context(), orderID, req.Approve, req.Reason); err != nil {
			middleware.RecordOrderOperation("process_return", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("process_return", true)
		c.JSON(http.StatusOK, gin.H{"message": "return processed"})
	}
}

// HandleRefundOrder handles POST /v1/admin/orders/:id/refund, the direct
// refund path that does not require a customer return request
func HandleRefundOrder(
	repos *repository.Repositories,
	cfg *config.Config,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		if err := orders.ProcessRefund(c.Request.Context(), orderID); err != nil {
			middleware.RecordOrderOperation("refund", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("refund", true)
		c.JSON(http.StatusOK, gin.H{"message": "order refunded"})
	}
}
