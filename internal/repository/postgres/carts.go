package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/pkg/errors"
)

type cartRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCartRepository creates a new cart repository
func NewCartRepository(db *sql.DB, logger *zap.Logger) *cartRepository {
	return &cartRepository{db: db, logger: logger}
}

func (r *cartRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	query := `
		SELECT id, user_id, coupon_code, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`

	var cart domain.Cart
	var couponCode sql.NullString

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cart.ID,
		&cart.UserID,
		&couponCode,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "cart", ID: userID.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get cart", zap.Error(err))
		return nil, err
	}

	if couponCode.Valid {
		cart.CouponCode = &couponCode.String
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, added_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at
	`, cart.ID)
	if err != nil {
		r.logger.Error("Failed to get cart items", zap.Error(err))
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.CartItem
		if err := itemRows.Scan(&item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return &cart, nil
}

func (r *cartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	query := `
		INSERT INTO carts (id, user_id, coupon_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now()
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		cart.ID,
		cart.UserID,
		cart.CouponCode,
		cart.CreatedAt,
		cart.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create cart", zap.Error(err))
		return err
	}

	return nil
}

func (r *cartRepository) UpsertItem(ctx context.Context, cartID uuid.UUID, item domain.CartItem) error {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity
	`

	_, err := r.db.ExecContext(ctx, query, cartID, item.ProductID, item.Quantity, item.AddedAt)
	if err != nil {
		r.logger.Error("Failed to upsert cart item", zap.Error(err))
		return err
	}

	return r.touch(ctx, cartID)
}

func (r *cartRepository) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID)
	if err != nil {
		r.logger.Error("Failed to remove cart item", zap.Error(err))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return &errors.ErrNotFound{Resource: "cart item", ID: productID.String()}
	}

	return r.touch(ctx, cartID)
}

func (r *cartRepository) Clear(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		r.logger.Error("Failed to clear cart", zap.Error(err))
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE carts SET coupon_code = NULL, updated_at = NOW() WHERE id = $1
	`, cartID)
	return err
}

func (r *cartRepository) SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE carts SET coupon_code = $2, updated_at = NOW() WHERE id = $1
	`, cartID, code)
	if err != nil {
		r.logger.Error("Failed to set cart coupon", zap.Error(err))
	}
	return err
}

func (r *cartRepository) touch(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID)
	return err
}
