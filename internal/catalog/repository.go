package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the permission vocabulary.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPermissions returns the whole vocabulary ordered by resource type and action.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, description, resource_type, action, created_at, updated_at FROM permissions ORDER BY resource_type, action`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", shared.Dependency(err))
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.ResourceType, &p.Action, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// GetByCode fetches a single permission by its unique code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, description, resource_type, action, created_at, updated_at FROM permissions WHERE code = $1`, code).
		Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.ResourceType, &p.Action, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, fmt.Errorf("catalog: get by code: %w", shared.Dependency(err))
	}
	return p, nil
}

// CreatePermission inserts a new vocabulary entry.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (code, name, description, resource_type, action)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.Code, p.Name, p.Description, p.ResourceType, p.Action).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Permission{}, fmt.Errorf("catalog: code %s exists: %w", p.Code, shared.ErrConflict)
		}
		return Permission{}, fmt.Errorf("catalog: create: %w", shared.Dependency(err))
	}
	return p, nil
}

// DeletePermission removes a vocabulary entry. A code still referenced by any
// grant is protected by foreign keys and reported as a conflict.
func (r *Repository) DeletePermission(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE code = $1`, code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("catalog: code %s still referenced: %w", code, shared.ErrConflict)
		}
		return fmt.Errorf("catalog: delete: %w", shared.Dependency(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
