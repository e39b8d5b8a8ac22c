package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/api/middleware"
	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/internal/service"
	"github.com/orchardshop/storefront/pkg/errors"
)

// OrderResponse is the API shape of an order
type OrderResponse struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Items           []OrderItemResponse    `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	Status          string                 `json:"status"`
	ItemsPrice      float64                `json:"items_price"`
	DiscountAmount  float64                `json:"discount_amount"`
	TaxPrice        float64                `json:"tax_price"`
	ShippingPrice   float64                `json:"shipping_price"`
	TotalPrice      float64                `json:"total_price"`
	CouponApplied   *domain.CouponSnapshot `json:"coupon_applied,omitempty"`
	IsPaid          bool                   `json:"is_paid"`
	PaidAt          *time.Time             `json:"paid_at,omitempty"`
	IsDelivered     bool                   `json:"is_delivered"`
	DeliveredAt     *time.Time             `json:"delivered_at,omitempty"`
	ReturnStatus    string                 `json:"return_status"`
	ReturnReason    *string                `json:"return_reason,omitempty"`
	RefundID        *string                `json:"refund_id,omitempty"`
	TrackingCarrier *string                `json:"tracking_carrier,omitempty"`
	TrackingNumber  *string                `json:"tracking_number,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

func toOrderResponse(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemResponse{
			ProductID: item.ProductID.String(),
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return OrderResponse{
		ID:              order.ID.String(),
		UserID:          order.UserID.String(),
		Items:           items,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		Status:          string(order.Status),
		ItemsPrice:      order.ItemsPrice,
		DiscountAmount:  order.DiscountAmount,
		TaxPrice:        order.TaxPrice,
		ShippingPrice:   order.ShippingPrice,
		TotalPrice:      order.TotalPrice,
		CouponApplied:   order.CouponApplied,
		IsPaid:          order.IsPaid,
		PaidAt:          order.PaidAt,
		IsDelivered:     order.IsDelivered,
		DeliveredAt:     order.DeliveredAt,
		ReturnStatus:    string(order.ReturnStatus),
		ReturnReason:    order.ReturnReason,
		RefundID:        order.RefundID,
		TrackingCarrier: order.TrackingCarrier,
		TrackingNumber:  order.TrackingNumber,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderListResponse(orders []*domain.Order) []OrderResponse {
	resp := make([]OrderResponse, len(orders))
	for i, order := range orders {
		resp[i] = toOrderResponse(order)
	}
	return resp
}

// requestReturnBody carries the customer's stated reason
type requestReturnBody struct {
	Reason string `json:"reason" binding:"required"`
}

// HandleCreateOrder handles POST /v1/orders
func HandleCreateOrder(
	repos *repository.Repositories,
	cfg *config.Config,
	notifier service.Notifier,
	logger *zap.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req service.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		checkout := service.NewCheckoutService(repos, cfg.Pricing, notifier, logger)
		order, err := checkout.CreateOrder(c.Request.Context(), userID, req)
		if err != nil {
			middleware.RecordOrderOperation("create", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("create", true)
		c.JSON(http.StatusCreated, toOrderResponse(order))
	}
}

// HandleGetOrder handles GET /v1/orders/:id. Customers can only read their
// own orders; admins can read any.
func HandleGetOrder(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
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
			// 404 rather than 403 so order ids cannot be probed
			respondError(c, logger, &errors.ErrNotFound{Resource: "order", ID: orderID.String()})
			return
		}

		c.JSON(http.StatusOK, toOrderResponse(order))
	}
}

// HandleListMyOrders handles GET /v1/orders
func HandleListMyOrders(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit, offset := listParams(c)
		orders, err := repos.Order.ListByUserID(c.Request.Context(), userID, limit, offset)
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

// HandleCancelOrder handles POST /v1/orders/:id/cancel. Only the owner can
// cancel, and only before payment.
func HandleCancelOrder(
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
		if order.UserID != userID {
			respondError(c, logger, &errors.ErrNotFound{Resource: "order", ID: orderID.String()})
			return
		}

		orders := service.NewOrderService(repos, gateway, cfg.Pricing, notifier, logger)
		if err := orders.Cancel(c.Request.Context(), orderID); err != nil {
			middleware.RecordOrderOperation("cancel", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("cancel", true)
		c.JSON(http.StatusOK, gin.H{"message": "order cancelled"})
	}
}

// HandleRequestReturn handles POST /v1/orders/:id/return
func HandleRequestReturn(
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

		var req requestReturnBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
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
		if err := orders.RequestReturn(c.Request.Context(), orderID, req.Reason); err != nil {
			middleware.RecordOrderOperation("request_return", false)
			respondError(c, logger, err)
			return
		}

		middleware.RecordOrderOperation("request_return", true)
		c.JSON(http.StatusOK, gin.H{"message": "return requested"})
	}
}

func listParams(c *gin.Context) (limit, offset int) {
	limit = 20
	offset = 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
