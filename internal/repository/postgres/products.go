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

type productRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB, logger *zap.Logger) *productRepository {
	return &productRepository{db: db, logger: logger}
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, image, price, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var product domain.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Image,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get product by ID", zap.Error(err))
		return nil, err
	}

	return &product, nil
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*domain.Product{}, nil
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	query := `
		SELECT id, name, image, price, stock, created_at, updated_at
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(idStrs))
	if err != nil {
		r.logger.Error("Failed to query products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	products := make(map[uuid.UUID]*domain.Product, len(ids))
	for rows.Next() {
		var product domain.Product
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Image,
			&product.Price,
			&product.Stock,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		products[product.ID] = &product
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, image, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		product.ID,
		product.Name,
		product.Image,
		product.Price,
		product.Stock,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create product", zap.Error(err))
		return err
	}

	return nil
}
