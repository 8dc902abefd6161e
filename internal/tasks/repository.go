package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, userID string, id int64) (*Task, error)
	ListByUser(ctx context.Context, userID string, f ListFilters, limit, offset int) ([]*Task, error)
	CountByUser(ctx context.Context, userID string, f ListFilters) (int64, error)
	Update(ctx context.Context, userID string, id int64, p UpdateParams) (*Task, error)
	BulkUpdateStatus(ctx context.Context, userID string, ids []int64, status string) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, task *Task) error {
	query := `
		INSERT INTO tasks (user_id, title, description, status, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		task.UserID, task.Title, task.Description, task.Status,
		task.DueAt, task.CreatedAt, task.UpdatedAt).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, userID string, id int64) (*Task, error) {
	query := `
		SELECT id, user_id, title, description, status, due_at, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND user_id = $2`

	task := &Task{}
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description,
		&task.Status, &task.DueAt, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying task by id: %w", err)
	}
	return task, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID string, f ListFilters, limit, offset int) ([]*Task, error) {
	query := `
		SELECT id, user_id, title, description, status, due_at, created_at, updated_at
		FROM tasks
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR due_at >= $3)
		  AND ($4::timestamptz IS NULL OR due_at <= $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`

	rows, err := r.pool.Query(ctx, query, userID, f.Status, f.From, f.To, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task := &Task{}
		err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Description,
			&task.Status, &task.DueAt, &task.CreatedAt, &task.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *postgresRepository) CountByUser(ctx context.Context, userID string, f ListFilters) (int64, error) {
	query := `
		SELECT COUNT(*) FROM tasks
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR due_at >= $3)
		  AND ($4::timestamptz IS NULL OR due_at <= $4)`

	var count int64
	err := r.pool.QueryRow(ctx, query, userID, f.Status, f.From, f.To).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) Update(ctx context.Context, userID string, id int64, p UpdateParams) (*Task, error) {
	query := `
		UPDATE tasks
		SET title       = COALESCE($3, title),
		    description = COALESCE($4, description),
		    status      = COALESCE($5, status),
		    due_at      = COALESCE($6, due_at),
		    updated_at  = $7
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, title, description, status, due_at, created_at, updated_at`

	task := &Task{}
	err := r.pool.QueryRow(ctx, query, id, userID,
		p.Title, p.Description, p.Status, p.DueAt, time.Now()).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description,
		&task.Status, &task.DueAt, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return task, nil
}

func (r *postgresRepository) BulkUpdateStatus(ctx context.Context, userID string, ids []int64, status string) (int64, error) {
	query := `
		UPDATE tasks
		SET status = $3, updated_at = $4
		WHERE user_id = $1 AND id = ANY($2)`

	result, err := r.pool.Exec(ctx, query, userID, ids, status, time.Now())
	if err != nil {
		return 0, fmt.Errorf("bulk updating tasks: %w", err)
	}
	return result.RowsAffected(), nil
}
