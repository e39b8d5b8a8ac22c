package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/pkg/errors"
)

type couponRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCouponRepository creates a new coupon repository
func NewCouponRepository(db *sql.DB, logger *zap.Logger) *couponRepository {
	return &couponRepository{db: db, logger: logger}
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `
		SELECT id, code, type, value, min_purchase, max_discount,
		       valid_from, valid_to, is_active, usage_limit, times_used,
		       per_user_limit, applicable_products, excluded_products,
		       created_at, updated_at
		FROM coupons
		WHERE code = $1
	`

	var coupon domain.Coupon
	var minPurchase, maxDiscount sql.NullFloat64
	var usageLimit, perUserLimit sql.NullInt64
	var applicable, excluded pq.StringArray

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Type,
		&coupon.Value,
		&minPurchase,
		&maxDiscount,
		&coupon.ValidFrom,
		&coupon.ValidTo,
		&coupon.IsActive,
		&usageLimit,
		&coupon.TimesUsed,
		&perUserLimit,
		&applicable,
		&excluded,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "coupon", ID: code}
	}
	if err != nil {
		r.logger.Error("Failed to get coupon by code", zap.Error(err))
		return nil, err
	}

	if minPurchase.Valid {
		coupon.MinPurchase = &minPurchase.Float64
	}
	if maxDiscount.Valid {
		coupon.MaxDiscount = &maxDiscount.Float64
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		coupon.UsageLimit = &limit
	}
	if perUserLimit.Valid {
		limit := int(perUserLimit.Int64)
		coupon.PerUserLimit = &limit
	}

	coupon.ApplicableProducts, err = parseUUIDs(applicable)
	if err != nil {
		return nil, err
	}
	coupon.ExcludedProducts, err = parseUUIDs(excluded)
	if err != nil {
		return nil, err
	}

	return &coupon, nil
}

func (r *couponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, type, value, min_purchase, max_discount,
		                     valid_from, valid_to, is_active, usage_limit, times_used,
		                     per_user_limit, applicable_products, excluded_products,
		                     created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	now := time.Now()
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = now
	}
	if coupon.UpdatedAt.IsZero() {
		coupon.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		coupon.ID,
		coupon.Code,
		coupon.Type,
		coupon.Value,
		coupon.MinPurchase,
		coupon.MaxDiscount,
		coupon.ValidFrom,
		coupon.ValidTo,
		coupon.IsActive,
		coupon.UsageLimit,
		coupon.TimesUsed,
		coupon.PerUserLimit,
		formatUUIDs(coupon.ApplicableProducts),
		formatUUIDs(coupon.ExcludedProducts),
		coupon.CreatedAt,
		coupon.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create coupon", zap.Error(err))
		return err
	}

	return nil
}

func (r *couponRepository) CountRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_redemptions
		WHERE coupon_id = $1 AND user_id = $2
	`, couponID, userID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count coupon redemptions", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func parseUUIDs(values pq.StringArray) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatUUIDs(ids []uuid.UUID) pq.StringArray {
	values := make(pq.StringArray, len(ids))
	for i, id := range ids {
		values[i] = id.String()
	}
	return values
}
