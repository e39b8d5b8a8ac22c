package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/domain"
)

type processedEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProcessedEventRepository creates the webhook dedupe ledger repository
func NewProcessedEventRepository(db *sql.DB, logger *zap.Logger) *processedEventRepository {
	return &processedEventRepository{db: db, logger: logger}
}

func (r *processedEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)
	`, eventID).Scan(&seen)
	if err != nil {
		return false, err
	}
	return seen, nil
}

func (r *processedEventRepository) MarkProcessed(ctx context.Context, event domain.ProcessedEvent) (bool, error) {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}

	// The event id is the primary key; a redelivered event hits the conflict
	// branch and affects no row.
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, event_type, order_id, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.EventType, event.OrderID, event.ProcessedAt)
	if err != nil {
		r.logger.Error("Failed to record processed event", zap.Error(err))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

type orderEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderEventRepository creates the order audit event repository
func NewOrderEventRepository(db *sql.DB, logger *zap.Logger) *orderEventRepository {
	return &orderEventRepository{db: db, logger: logger}
}

func (r *orderEventRepository) Create(ctx context.Context, event *domain.OrderEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	dataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO order_events (id, order_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.OrderID, event.EventType, dataJSON, event.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create order event", zap.Error(err))
		return err
	}

	return nil
}
