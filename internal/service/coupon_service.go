package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

type couponService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(repos *repository.Repositories, logger *zap.Logger) *couponService {
	return &couponService{
		repos:  repos,
		logger: logger,
	}
}

// FindValid loads a coupon and checks activation, validity window and the
// global usage limit. Every failure comes back as ErrCouponInvalid, never a
// generic error: the caller decides whether to reject (checkout) or proceed
// without a discount (cart preview).
func (s *couponService) FindValid(ctx context.Context, code string, now time.Time) (*domain.Coupon, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	coupon, err := s.repos.Coupon.GetByCode(ctx, normalized)
	if err != nil {
		if _, ok := err.(*errors.ErrNotFound); ok {
			return nil, &errors.ErrCouponInvalid{Code: normalized, Reason: "unknown code"}
		}
		return nil, err
	}

	if !coupon.IsActive {
		return nil, &errors.ErrCouponInvalid{Code: normalized, Reason: "not active"}
	}
	if now.Before(coupon.ValidFrom) {
		return nil, &errors.ErrCouponInvalid{Code: normalized, Reason: "not yet valid"}
	}
	if now.After(coupon.ValidTo) {
		return nil, &errors.ErrCouponInvalid{Code: normalized, Reason: "expired"}
	}
	if coupon.UsageLimit != nil && coupon.TimesUsed >= *coupon.UsageLimit {
		return nil, &errors.ErrCouponInvalid{Code: normalized, Reason: "usage limit reached"}
	}

	return coupon, nil
}

// ComputeDiscount returns the discount for a subtotal, clamped to
// [0, subtotal] and to the coupon's max discount, rounded half-up to cents.
func (s *couponService) ComputeDiscount(coupon *domain.Coupon, subtotal float64) float64 {
	var discount float64
	switch coupon.Type {
	case domain.CouponTypePercent:
		discount = subtotal * coupon.Value / 100
	default:
		discount = coupon.Value
	}

	if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
		discount = *coupon.MaxDiscount
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}

	return domain.RoundMoney(discount)
}

// IsApplicableToProducts checks the coupon's allow and deny lists against the
// actual order contents. A non-empty allow list must contain every product; a
// non-empty deny list must contain none of them.
func (s *couponService) IsApplicableToProducts(coupon *domain.Coupon, productIDs []uuid.UUID) bool {
	if len(coupon.ApplicableProducts) > 0 {
		allowed := make(map[uuid.UUID]bool, len(coupon.ApplicableProducts))
		for _, id := range coupon.ApplicableProducts {
			allowed[id] = true
		}
		for _, id := range productIDs {
			if !allowed[id] {
				return false
			}
		}
	}

	if len(coupon.ExcludedProducts) > 0 {
		excluded := make(map[uuid.UUID]bool, len(coupon.ExcludedProducts))
		for _, id := range coupon.ExcludedProducts {
			excluded[id] = true
		}
		for _, id := range productIDs {
			if excluded[id] {
				return false
			}
		}
	}

	return true
}

// ValidateForOrder runs the full commit-time check against the actual order
// item set: validity, applicability, minimum purchase and the per-user limit.
// Returns the coupon and the computed discount.
func (s *couponService) ValidateForOrder(
	ctx context.Context,
	code string,
	userID uuid.UUID,
	productIDs []uuid.UUID,
	subtotal float64,
	now time.Time,
) (*domain.Coupon, float64, error) {
	coupon, err := s.FindValid(ctx, code, now)
	if err != nil {
		return nil, 0, err
	}

	if !s.IsApplicableToProducts(coupon, productIDs) {
		return nil, 0, &errors.ErrCouponInvalid{Code: coupon.Code, Reason: "not applicable to these products"}
	}

	if coupon.MinPurchase != nil && subtotal < *coupon.MinPurchase {
		return nil, 0, &errors.ErrCouponInvalid{Code: coupon.Code, Reason: "minimum purchase not met"}
	}

	if coupon.PerUserLimit != nil {
		redemptions, err := s.repos.Coupon.CountRedemptions(ctx, coupon.ID, userID)
		if err != nil {
			return nil, 0, err
		}
		if redemptions >= *coupon.PerUserLimit {
			return nil, 0, &errors.ErrCouponInvalid{Code: coupon.Code, Reason: "per-user limit reached"}
		}
	}

	return coupon, s.ComputeDiscount(coupon, subtotal), nil
}
