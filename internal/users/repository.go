package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, is_active, is_staff, is_superuser, password_hash, created_at, updated_at`

// ListUsers returns all users ordered by creation time, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", shared.Dependency(err))
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID fetches one user.
func (r *Repository) GetByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", shared.Dependency(err))
	}
	return u, nil
}

// GetByEmail fetches one user by unique email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get by email: %w", shared.Dependency(err))
	}
	return u, nil
}

// CreateUser inserts a new account.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, is_active, is_staff, is_superuser, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.IsActive, u.IsStaff, u.IsSuperuser, u.PasswordHash).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, fmt.Errorf("users: email %s exists: %w", u.Email, shared.ErrConflict)
		}
		return User{}, fmt.Errorf("users: create: %w", shared.Dependency(err))
	}
	return u, nil
}

// SetActive flips the soft-delete flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.setFlag(ctx, id, "is_active", active)
}

// SetSuperuser flips the superuser flag.
func (r *Repository) SetSuperuser(ctx context.Context, id int64, superuser bool) error {
	return r.setFlag(ctx, id, "is_superuser", superuser)
}

func (r *Repository) setFlag(ctx context.Context, id int64, column string, value bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, value)
	if err != nil {
		return fmt.Errorf("users: set %s: %w", column, shared.Dependency(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Flags reports the active and superuser flags for one user.
func (r *Repository) Flags(ctx context.Context, userID int64) (bool, bool, error) {
	var active, super bool
	err := r.pool.QueryRow(ctx, `SELECT is_active, is_superuser FROM users WHERE id = $1`, userID).Scan(&active, &super)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, shared.ErrNotFound
		}
		return false, false, fmt.Errorf("users: flags: %w", shared.Dependency(err))
	}
	return active, super, nil
}

// PrincipalByID loads the decision-engine view of an account.
func (r *Repository) PrincipalByID(ctx context.Context, userID int64) (shared.Principal, error) {
	active, super, err := r.Flags(ctx, userID)
	if err != nil {
		return shared.Principal{}, err
	}
	return shared.Principal{UserID: userID, IsActive: active, IsSuperuser: super}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
