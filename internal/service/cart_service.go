package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

// MaxItemQuantity bounds the quantity of a single cart line
const MaxItemQuantity = 10

type cartService struct {
	repos   *repository.Repositories
	coupons *couponService
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repos *repository.Repositories, logger *zap.Logger) *cartService {
	return &cartService{
		repos:   repos,
		coupons: NewCouponService(repos, logger),
		logger:  logger,
	}
}

// AddItem adds a product to the user's cart, creating the cart on first use.
// An existing line for the same product merges quantities, capped at the
// per-line maximum.
func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 || quantity > MaxItemQuantity {
		return nil, &errors.ErrValidation{Field: "quantity", Message: "must be between 1 and 10"}
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	newQuantity := quantity
	addedAt := time.Now()
	for _, item := range cart.Items {
		if item.ProductID == productID {
			newQuantity = item.Quantity + quantity
			if newQuantity > MaxItemQuantity {
				newQuantity = MaxItemQuantity
			}
			addedAt = item.AddedAt
			break
		}
	}

	if err := s.checkStock(ctx, productID, newQuantity); err != nil {
		return nil, err
	}

	item := domain.CartItem{ProductID: productID, Quantity: newQuantity, AddedAt: addedAt}
	if err := s.repos.Cart.UpsertItem(ctx, cart.ID, item); err != nil {
		return nil, err
	}

	return s.repos.Cart.GetByUserID(ctx, userID)
}

// UpdateItem replaces the quantity of an existing cart line
func (s *cartService) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 || quantity > MaxItemQuantity {
		return nil, &errors.ErrValidation{Field: "quantity", Message: "must be between 1 and 10"}
	}

	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var existing *domain.CartItem
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			existing = &cart.Items[i]
			break
		}
	}
	if existing == nil {
		return nil, &errors.ErrNotFound{Resource: "cart item", ID: productID.String()}
	}

	if err := s.checkStock(ctx, productID, quantity); err != nil {
		return nil, err
	}

	item := domain.CartItem{ProductID: productID, Quantity: quantity, AddedAt: existing.AddedAt}
	if err := s.repos.Cart.UpsertItem(ctx, cart.ID, item); err != nil {
		return nil, err
	}

	return s.repos.Cart.GetByUserID(ctx, userID)
}

// RemoveItem deletes a cart line
func (s *cartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Cart.RemoveItem(ctx, cart.ID, productID); err != nil {
		return nil, err
	}

	return s.repos.Cart.GetByUserID(ctx, userID)
}

// Clear empties the cart and drops its coupon hint
func (s *cartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repos.Cart.Clear(ctx, cart.ID)
}

// ApplyCoupon stores a coupon hint on the cart. The code must be currently
// valid, but the authoritative check happens again at checkout.
func (s *cartService) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*domain.Cart, error) {
	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	coupon, err := s.coupons.FindValid(ctx, code, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.repos.Cart.SetCoupon(ctx, cart.ID, &coupon.Code); err != nil {
		return nil, err
	}

	return s.repos.Cart.GetByUserID(ctx, userID)
}

// RemoveCoupon clears the cart's coupon hint
func (s *cartService) RemoveCoupon(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Cart.SetCoupon(ctx, cart.ID, nil); err != nil {
		return nil, err
	}

	return s.repos.Cart.GetByUserID(ctx, userID)
}

// Preview prices the cart at current catalog prices. The hinted coupon is
// applied when still valid and silently dropped otherwise; the result is
// informational only and checkout remains the final authority.
func (s *cartService) Preview(ctx context.Context, userID uuid.UUID) (*CartPreview, error) {
	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	productIDs := make([]uuid.UUID, len(cart.Items))
	for i, item := range cart.Items {
		productIDs[i] = item.ProductID
	}

	products, err := s.repos.Product.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	preview := &CartPreview{}
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			// Product removed from the catalog since it was added; skip it
			// rather than failing the whole preview.
			continue
		}
		lineTotal := domain.RoundMoney(product.Price * float64(item.Quantity))
		preview.Items = append(preview.Items, CartPreviewItem{
			ProductID: item.ProductID.String(),
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
			LineTotal: lineTotal,
		})
		preview.Subtotal += lineTotal
	}
	preview.Subtotal = domain.RoundMoney(preview.Subtotal)

	if cart.CouponCode != nil {
		coupon, discount, err := s.coupons.ValidateForOrder(
			ctx, *cart.CouponCode, userID, productIDs, preview.Subtotal, time.Now())
		if err == nil {
			preview.CouponCode = &coupon.Code
			preview.Discount = discount
		} else if _, ok := err.(*errors.ErrCouponInvalid); !ok {
			return nil, err
		}
	}

	preview.Total = domain.RoundMoney(preview.Subtotal - preview.Discount)
	return preview, nil
}

func (s *cartService) getOrCreateCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.repos.Cart.GetByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if _, ok := err.(*errors.ErrNotFound); !ok {
		return nil, err
	}

	cart = &domain.Cart{UserID: userID}
	if err := s.repos.Cart.Create(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) checkStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	product, err := s.repos.Product.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	if product.Stock < quantity {
		return &errors.ErrInsufficientStock{Items: []errors.StockShortage{{
			ProductID: productID.String(),
			Name:      product.Name,
			Requested: quantity,
			Available: product.Stock,
		}}}
	}

	return nil
}
