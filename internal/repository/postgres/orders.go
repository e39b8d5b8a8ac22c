package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

const pqUniqueViolation = "23505"

type orderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, logger *zap.Logger) *orderRepository {
	return &orderRepository{db: db, logger: logger}
}

// CreateFromCart commits the whole checkout as one transaction: conditional
// stock decrements, order + item inserts, coupon usage increment and cart
// clear. A failed conditional decrement aborts with ErrInsufficientStock
// naming every offending item.
func (r *orderRepository) CreateFromCart(ctx context.Context, params repository.CheckoutParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order := params.Order

	// Stock is decremented only when enough remains; two concurrent checkouts
	// for the last unit cannot both pass this guard.
	var shortages []errors.StockShortage
	for _, item := range order.Items {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = NOW()
			WHERE id = $1 AND stock >= $2
		`, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			var available int
			if err := tx.QueryRowContext(ctx,
				`SELECT stock FROM products WHERE id = $1`, item.ProductID,
			).Scan(&available); err != nil && err != sql.ErrNoRows {
				return err
			}
			shortages = append(shortages, errors.StockShortage{
				ProductID: item.ProductID.String(),
				Name:      item.Name,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}
	if len(shortages) > 0 {
		return &errors.ErrInsufficientStock{Items: shortages}
	}

	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	var couponJSON []byte
	if order.CouponApplied != nil {
		couponJSON, err = json.Marshal(order.CouponApplied)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, shipping_address, payment_method, status,
		                    items_price, discount_amount, tax_price, shipping_price, total_price,
		                    coupon_applied, idempotency_key, return_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, order.ID, order.UserID, shippingJSON, order.PaymentMethod, order.Status,
		order.ItemsPrice, order.DiscountAmount, order.TaxPrice, order.ShippingPrice, order.TotalPrice,
		couponJSON, order.IdempotencyKey, order.ReturnStatus, now)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return repository.ErrDuplicateIdempotencyKey
		}
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, image, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, item.ProductID, item.Name, item.Image, item.UnitPrice, item.Quantity)
		if err != nil {
			return err
		}
	}

	if params.Coupon != nil {
		// Usage increment is conditional on the limit so a concurrent checkout
		// cannot push the counter past it.
		result, err := tx.ExecContext(ctx, `
			UPDATE coupons
			SET times_used = times_used + 1, updated_at = NOW()
			WHERE id = $1 AND (usage_limit IS NULL OR times_used < usage_limit)
		`, params.Coupon.ID)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return &errors.ErrCouponInvalid{Code: params.Coupon.Code, Reason: "usage limit reached"}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO coupon_redemptions (coupon_id, user_id, order_id, redeemed_at)
			VALUES ($1, $2, $3, $4)
		`, params.Coupon.ID, order.UserID, order.ID, now)
		if err != nil {
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, params.CartID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE carts SET coupon_code = NULL, updated_at = NOW() WHERE id = $1
	`, params.CartID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, selectOrderQuery+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get order by ID", zap.Error(err))
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx,
		selectOrderQuery+` WHERE user_id = $1 AND idempotency_key = $2`, userID, key))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: key}
	}
	if err != nil {
		r.logger.Error("Failed to get order by idempotency key", zap.Error(err))
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Order, error) {
	return r.list(ctx, selectOrderQuery+`
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

// ListByStatus lists orders matching the status, or all orders when the
// status is empty.
func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	return r.list(ctx, selectOrderQuery+`
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
}

// SetPaymentIntent attaches the created intent to a still-unpaid order so the
// payment-status endpoint can reconcile against the gateway later.
func (r *orderRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, result domain.PaymentResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_result = $2, updated_at = NOW()
		WHERE id = $1 AND is_paid = false
	`, id, resultJSON)
	if err != nil {
		r.logger.Error("Failed to set payment intent", zap.Error(err))
	}
	return err
}

func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID, result domain.PaymentResult, paidAt time.Time) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, err
	}

	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET status = $2, is_paid = true, paid_at = $3, payment_result = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5 AND is_paid = false
	`, id, domain.OrderStatusPaid, paidAt, resultJSON, domain.OrderStatusPending)
}

func (r *orderRepository) Ship(ctx context.Context, id uuid.UUID, carrier, trackingNumber string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET status = $2, tracking_carrier = $3, tracking_number = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, id, domain.OrderStatusShipped, carrier, trackingNumber, domain.OrderStatusPaid)
}

func (r *orderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET status = $2, is_delivered = true, delivered_at = $3, updated_at = NOW()
		WHERE id = $1 AND is_paid = true AND is_delivered = false AND status IN ($4, $5)
	`, id, domain.OrderStatusDelivered, at, domain.OrderStatusPaid, domain.OrderStatusShipped)
}

func (r *orderRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND is_paid = false
	`, id, domain.OrderStatusCancelled, domain.OrderStatusPending)
}

func (r *orderRepository) RequestReturn(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET return_status = $2, return_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND return_status = $5
	`, id, domain.ReturnStatusRequested, reason, domain.OrderStatusDelivered, domain.ReturnStatusNone)
}

func (r *orderRepository) ApproveReturn(ctx context.Context, id uuid.UUID, refundID string, result domain.PaymentResult) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, err
	}

	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET status = $2, return_status = $3, refund_id = $4, payment_result = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6 AND return_status = $7
	`, id, domain.OrderStatusRefunded, domain.ReturnStatusApproved, refundID, resultJSON,
		domain.OrderStatusDelivered, domain.ReturnStatusRequested)
}

func (r *orderRepository) RejectReturn(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET return_status = $2, return_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND return_status = $5
	`, id, domain.ReturnStatusRejected, reason, domain.OrderStatusDelivered, domain.ReturnStatusRequested)
}

func (r *orderRepository) MarkRefunded(ctx context.Context, id uuid.UUID, refundID string, result domain.PaymentResult) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, err
	}

	return r.conditionalUpdate(ctx, `
		UPDATE orders
		SET status = $2, refund_id = $3, payment_result = $4, updated_at = NOW()
		WHERE id = $1 AND status IN ($5, $6, $7)
	`, id, domain.OrderStatusRefunded, refundID, resultJSON,
		domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusDelivered)
}

func (r *orderRepository) conditionalUpdate(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update order", zap.Error(err))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

const selectOrderQuery = `
	SELECT id, user_id, shipping_address, payment_method, status,
	       items_price, discount_amount, tax_price, shipping_price, total_price,
	       coupon_applied, idempotency_key, is_paid, paid_at, is_delivered, delivered_at,
	       payment_result, return_status, return_reason, refund_id,
	       tracking_carrier, tracking_number, created_at, updated_at
	FROM orders
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *orderRepository) scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var shippingJSON []byte
	var couponJSON, resultJSON []byte
	var idempotencyKey, returnReason, refundID, trackingCarrier, trackingNumber sql.NullString
	var paidAt, deliveredAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&shippingJSON,
		&order.PaymentMethod,
		&order.Status,
		&order.ItemsPrice,
		&order.DiscountAmount,
		&order.TaxPrice,
		&order.ShippingPrice,
		&order.TotalPrice,
		&couponJSON,
		&idempotencyKey,
		&order.IsPaid,
		&paidAt,
		&order.IsDelivered,
		&deliveredAt,
		&resultJSON,
		&order.ReturnStatus,
		&returnReason,
		&refundID,
		&trackingCarrier,
		&trackingNumber,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, err
	}
	if len(couponJSON) > 0 {
		order.CouponApplied = &domain.CouponSnapshot{}
		if err := json.Unmarshal(couponJSON, order.CouponApplied); err != nil {
			return nil, err
		}
	}
	if len(resultJSON) > 0 {
		order.PaymentResult = &domain.PaymentResult{}
		if err := json.Unmarshal(resultJSON, order.PaymentResult); err != nil {
			return nil, err
		}
	}
	if idempotencyKey.Valid {
		order.IdempotencyKey = &idempotencyKey.String
	}
	if returnReason.Valid {
		order.ReturnReason = &returnReason.String
	}
	if refundID.Valid {
		order.RefundID = &refundID.String
	}
	if trackingCarrier.Valid {
		order.TrackingCarrier = &trackingCarrier.String
	}
	if trackingNumber.Valid {
		order.TrackingNumber = &trackingNumber.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}

	return &order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, image, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
	`, order.ID)
	if err != nil {
		r.logger.Error("Failed to get order items", zap.Error(err))
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Image, &item.UnitPrice, &item.Quantity); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

func (r *orderRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}

	return orders, nil
}
