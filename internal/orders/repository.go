package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, userID, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, f ListFilters, limit, offset int) ([]*Order, error)
	CountByUser(ctx context.Context, userID string, f ListFilters) (int64, error)
	Update(ctx context.Context, userID, id string, p UpdateParams) (*Order, error)
	BulkUpdateStatus(ctx context.Context, userID string, ids []string, status string) (int64, error)
	FindPendingDuplicate(ctx context.Context, userID, product string, quantity int, fulfillAt time.Time, window time.Duration) (*Order, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, order *Order) error {
	query := `
		INSERT INTO orders (id, user_id, product, quantity, status, fulfill_at, fulfill_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		order.ID, order.UserID, order.Product, order.Quantity, order.Status,
		order.FulfillAt, order.FulfillText, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, userID, id string) (*Order, error) {
	query := `
		SELECT id, user_id, product, quantity, status, fulfill_at, fulfill_text, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2`

	order := &Order{}
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&order.ID, &order.UserID, &order.Product, &order.Quantity, &order.Status,
		&order.FulfillAt, &order.FulfillText, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying order by id: %w", err)
	}
	return order, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID string, f ListFilters, limit, offset int) ([]*Order, error) {
	query := `
		SELECT id, user_id, product, quantity, status, fulfill_at, fulfill_text, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR fulfill_at >= $3)
		  AND ($4::timestamptz IS NULL OR fulfill_at <= $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`

	rows, err := r.pool.Query(ctx, query, userID, f.Status, f.From, f.To, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order := &Order{}
		err := rows.Scan(
			&order.ID, &order.UserID, &order.Product, &order.Quantity, &order.Status,
			&order.FulfillAt, &order.FulfillText, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *postgresRepository) CountByUser(ctx context.Context, userID string, f ListFilters) (int64, error) {
	query := `
		SELECT COUNT(*) FROM orders
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR fulfill_at >= $3)
		  AND ($4::timestamptz IS NULL OR fulfill_at <= $4)`

	var count int64
	err := r.pool.QueryRow(ctx, query, userID, f.Status, f.From, f.To).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) Update(ctx context.Context, userID, id string, p UpdateParams) (*Order, error) {
	query := `
		UPDATE orders
		SET product    = COALESCE($3, product),
		    quantity   = COALESCE($4, quantity),
		    status     = COALESCE($5, status),
		    fulfill_at = COALESCE($6, fulfill_at),
		    updated_at = $7
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, product, quantity, status, fulfill_at, fulfill_text, created_at, updated_at`

	order := &Order{}
	err := r.pool.QueryRow(ctx, query, id, userID,
		p.Product, p.Quantity, p.Status, p.FulfillAt, time.Now()).Scan(
		&order.ID, &order.UserID, &order.Product, &order.Quantity, &order.Status,
		&order.FulfillAt, &order.FulfillText, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating order: %w", err)
	}
	return order, nil
}

func (r *postgresRepository) BulkUpdateStatus(ctx context.Context, userID string, ids []string, status string) (int64, error) {
	query := `
		UPDATE orders
		SET status = $3, updated_at = $4
		WHERE user_id = $1 AND id = ANY($2)`

	result, err := r.pool.Exec(ctx, query, userID, ids, status, time.Now())
	if err != nil {
		return 0, fmt.Errorf("bulk updating orders: %w", err)
	}
	return result.RowsAffected(), nil
}

// FindPendingDuplicate looks for a live pending order with the same product
// (case-insensitive) and quantity whose fulfillment time is within window of
// fulfillAt. Returns (nil, nil) when no duplicate exists.
func (r *postgresRepository) FindPendingDuplicate(ctx context.Context, userID, product string, quantity int, fulfillAt time.Time, window time.Duration) (*Order, error) {
	query := `
		SELECT id, user_id, product, quantity, status, fulfill_at, fulfill_text, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		  AND lower(product) = lower($2)
		  AND quantity = $3
		  AND status = 'pending'
		  AND fulfill_at BETWEEN $4 AND $5
		ORDER BY created_at DESC
		LIMIT 1`

	order := &Order{}
	err := r.pool.QueryRow(ctx, query, userID, product, quantity,
		fulfillAt.Add(-window), fulfillAt.Add(window)).Scan(
		&order.ID, &order.UserID, &order.Product, &order.Quantity, &order.Status,
		&order.FulfillAt, &order.FulfillText, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying duplicate order: %w", err)
	}
	return order, nil
}
