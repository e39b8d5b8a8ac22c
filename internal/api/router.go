package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/api/handlers"
	"github.com/orchardshop/storefront/internal/api/middleware"
	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/internal/service"
)

// NewRouter creates and configures the Gin router
func NewRouter(
	cfg *config.Config,
	repos *repository.Repositories,
	gateway service.PaymentGateway,
	notifier service.Notifier,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(middleware.PrometheusMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Webhook endpoint authenticates with the signature header, not a JWT
		v1.POST("/payment/webhook", handlers.HandlePaymentWebhook(repos, cfg, gateway, notifier, logger))

		// Customer routes (require authentication)
		customerRoutes := v1.Group("")
		customerRoutes.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret, logger))
		{
			customerRoutes.GET("/cart", handlers.HandleGetCart(repos, logger))
			customerRoutes.DELETE("/cart", handlers.HandleClearCart(repos, logger))
			customerRoutes.POST("/cart/items", handlers.HandleAddCartItem(repos, logger))
			customerRoutes.PUT("/cart/items/:productId", handlers.HandleUpdateCartItem(repos, logger))
			customerRoutes.DELETE("/cart/items/:productId", handlers.HandleRemoveCartItem(repos, logger))
			customerRoutes.POST("/cart/coupon", handlers.HandleApplyCoupon(repos, logger))
			customerRoutes.DELETE("/cart/coupon", handlers.HandleRemoveCoupon(repos, logger))

			customerRoutes.POST("/orders", handlers.HandleCreateOrder(repos, cfg, notifier, logger))
			customerRoutes.GET("/orders", handlers.HandleListMyOrders(repos, logger))
			customerRoutes.GET("/orders/:id", handlers.HandleGetOrder(repos, logger))
			customerRoutes.GET("/orders/:id/payment-status", handlers.HandleGetPaymentStatus(repos, cfg, gateway, notifier, logger))
			customerRoutes.PUT("/orders/:id/cancel", handlers.HandleCancelOrder(repos, cfg, gateway, notifier, logger))
			customerRoutes.POST("/orders/:id/return", handlers.HandleRequestReturn(repos, cfg, gateway, notifier, logger))

			customerRoutes.POST("/payment/create-intent", handlers.HandleCreateIntent(repos, cfg, gateway, notifier, logger))
		}

		// Admin routes
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret, logger))
		adminRoutes.Use(middleware.AdminMiddleware())
		{
			adminRoutes.GET("/orders", handlers.HandleListOrders(repos, logger))
			adminRoutes.PUT("/orders/:id/mark-paid", handlers.HandleMarkOrderPaid(repos, cfg, gateway, notifier, logger))
			adminRoutes.POST("/orders/:id/ship", handlers.HandleShipOrder(repos, cfg, gateway, notifier, logger))
			adminRoutes.PUT("/orders/:id/deliver", handlers.HandleMarkOrderDelivered(repos, cfg, gateway, notifier, logger))
			adminRoutes.PUT("/orders/:id/process-return", handlers.HandleProcessReturn(repos, cfg, gateway, notifier, logger))
			adminRoutes.POST("/orders/:id/refund", handlers.HandleRefundOrder(repos, cfg, gateway, notifier, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
		)
	}
}
