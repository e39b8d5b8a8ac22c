package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/api/middleware"
	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/internal/service"
)

// CartItemRequest is the add-item payload
type CartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest is the update-quantity payload
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// ApplyCouponRequest carries the coupon code to hint on the cart
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// CartResponse mirrors the stored cart
type CartResponse struct {
	Items      []CartItemResponse `json:"items"`
	CouponCode *string            `json:"coupon_code,omitempty"`
}

type CartItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func toCartResponse(cart *domain.Cart) CartResponse {
	resp := CartResponse{
		Items:      make([]CartItemResponse, len(cart.Items)),
		CouponCode: cart.CouponCode,
	}
	for i, item := range cart.Items {
		resp.Items[i] = CartItemResponse{
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
		}
	}
	return resp
}

// HandleGetCart handles GET /v1/cart. The response is a priced,
// advisory-only preview; checkout reprices everything.
func HandleGetCart(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		carts := service.NewCartService(repos, logger)
		preview, err := carts.Preview(c.Request.Context(), userID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, preview)
	}
}

// HandleAddCartItem handles POST /v1/cart/items
func HandleAddCartItem(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req CartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		productID, err := uuid.Parse(req.ProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
			return
		}

		carts := service.NewCartService(repos, logger)
		cart, err := carts.AddItem(c.Request.Context(), userID, productID, req.Quantity)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, toCartResponse(cart))
	}
}

// HandleUpdateCartItem handles PUT /v1/cart/items/:productId
func HandleUpdateCartItem(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		productID, err := uuid.Parse(c.Param("productId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
			return
		}

		var req UpdateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		carts := service.NewCartService(repos, logger)
		cart, err := carts.UpdateItem(c.Request.Context(), userID, productID, req.Quantity)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, toCartResponse(cart))
	}
}

// HandleRemoveCartItem handles DELETE /v1/cart/items/:productId
func HandleRemoveCartItem(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		productID, err := uuid.Parse(c.Param("productId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
			return
		}

		carts := service.NewCartService(repos, logger)
		cart, err := carts.RemoveItem(c.Request.Context(), userID, productID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, toCartResponse(cart))
	}
}

// HandleClearCart handles DELETE /v1/cart
func HandleClearCart(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		carts := service.NewCartService(repos, logger)
		if err := carts.Clear(c.Request.Context(), userID); err != nil {
			respondError(c, logger, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// HandleApplyCoupon handles POST /v1/cart/coupon
func HandleApplyCoupon(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ApplyCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		carts := service.NewCartService(repos, logger)
		cart, err := carts.ApplyCoupon(c.Request.Context(), userID, req.Code)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, toCartResponse(cart))
	}
}

// HandleRemoveCoupon handles DELETE /v1/cart/coupon
func HandleRemoveCoupon(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		carts := service.NewCartService(repos, logger)
		cart, err := carts.RemoveCoupon(c.Request.Context(), userID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, toCartResponse(cart))
	}
}
