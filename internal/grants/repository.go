package grants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for grant rows.
//
// All writes go through natural-key upserts, so the store holds at most one
// row per (user, permission) and (user, resource type, resource id,
// permission) key and resolution is last-write-wins. Reads still order by
// granted_at DESC as a restatement of the same rule should a migration ever
// bypass the upserts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserGrant probes the user-level override for an exact code.
func (r *Repository) UserGrant(ctx context.Context, userID int64, code string) (Lookup, error) {
	var granted bool
	err := r.pool.QueryRow(ctx, `
		SELECT up.is_granted
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1 AND p.code = $2
		ORDER BY up.granted_at DESC
		LIMIT 1`, userID, code).Scan(&granted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lookup{}, nil
		}
		return Lookup{}, fmt.Errorf("grants: user grant: %w", shared.Dependency(err))
	}
	return Lookup{Found: true, IsGranted: granted}, nil
}

// ResourceGrant probes the resource-level override for an exact
// (resourceType, resourceID, code) key.
func (r *Repository) ResourceGrant(ctx context.Context, userID int64, resourceType, resourceID, code string) (Lookup, error) {
	var granted bool
	err := r.pool.QueryRow(ctx, `
		SELECT rp.is_granted
		FROM resource_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.user_id = $1 AND rp.resource_type = $2 AND rp.resource_id = $3 AND p.code = $4
		ORDER BY rp.granted_at DESC
		LIMIT 1`, userID, resourceType, resourceID, code).Scan(&granted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lookup{}, nil
		}
		return Lookup{}, fmt.Errorf("grants: resource grant: %w", shared.Dependency(err))
	}
	return Lookup{Found: true, IsGranted: granted}, nil
}

// UpsertUserPermission writes a user-level override. With overwrite=false the
// statement refuses to flip the polarity of a live row; zero affected rows
// then signals the conflict to the service layer.
func (r *Repository) UpsertUserPermission(ctx context.Context, userID, permissionID int64, granted bool, actorID int64, overwrite bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, is_granted, granted_at, granted_by)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (user_id, permission_id) DO UPDATE
		SET is_granted = EXCLUDED.is_granted, granted_at = NOW(), granted_by = EXCLUDED.granted_by
		WHERE user_permissions.is_granted = EXCLUDED.is_granted OR $5`,
		userID, permissionID, granted, actorID, overwrite)
	if err != nil {
		return false, fmt.Errorf("grants: upsert user permission: %w", shared.Dependency(err))
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteUserPermission removes a user-level override. Deleting an absent row
// is a no-op.
func (r *Repository) DeleteUserPermission(ctx context.Context, userID, permissionID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	if err != nil {
		return false, fmt.Errorf("grants: delete user permission: %w", shared.Dependency(err))
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertResourcePermission writes a resource-level override with the same
// conflict policy as UpsertUserPermission.
func (r *Repository) UpsertResourcePermission(ctx context.Context, userID int64, resourceType, resourceID string, permissionID int64, granted bool, actorID int64, overwrite bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO resource_permissions (user_id, resource_type, resource_id, permission_id, is_granted, granted_at, granted_by)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)
		ON CONFLICT (user_id, resource_type, resource_id, permission_id) DO UPDATE
		SET is_granted = EXCLUDED.is_granted, granted_at = NOW(), granted_by = EXCLUDED.granted_by
		WHERE resource_permissions.is_granted = EXCLUDED.is_granted OR $7`,
		userID, resourceType, resourceID, permissionID, granted, actorID, overwrite)
	if err != nil {
		return false, fmt.Errorf("grants: upsert resource permission: %w", shared.Dependency(err))
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteResourcePermission removes a resource-level override. Idempotent.
func (r *Repository) DeleteResourcePermission(ctx context.Context, userID int64, resourceType, resourceID string, permissionID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM resource_permissions
		WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3 AND permission_id = $4`,
		userID, resourceType, resourceID, permissionID)
	if err != nil {
		return false, fmt.Errorf("grants: delete resource permission: %w", shared.Dependency(err))
	}
	return tag.RowsAffected() > 0, nil
}

// ListUserPermissions returns every direct override for a user.
func (r *Repository) ListUserPermissions(ctx context.Context, userID int64) ([]UserPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT up.id, up.user_id, up.permission_id, p.code, up.is_granted, up.granted_at, up.granted_by
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1
		ORDER BY p.code`, userID)
	if err != nil {
		return nil, fmt.Errorf("grants: list user permissions: %w", shared.Dependency(err))
	}
	defer rows.Close()
	var perms []UserPermission
	for rows.Next() {
		var up UserPermission
		if err := rows.Scan(&up.ID, &up.UserID, &up.PermissionID, &up.Code, &up.IsGranted, &up.GrantedAt, &up.GrantedBy); err != nil {
			return nil, err
		}
		perms = append(perms, up)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListResourcePermissions returns every resource-level override for a user.
func (r *Repository) ListResourcePermissions(ctx context.Context, userID int64) ([]ResourcePermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.id, rp.user_id, rp.resource_type, rp.resource_id, rp.permission_id, p.code, rp.is_granted, rp.granted_at, rp.granted_by
		FROM resource_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.user_id = $1
		ORDER BY rp.resource_type, rp.resource_id, p.code`, userID)
	if err != nil {
		return nil, fmt.Errorf("grants: list resource permissions: %w", shared.Dependency(err))
	}
	defer rows.Close()
	var perms []ResourcePermission
	for rows.Next() {
		var rp ResourcePermission
		if err := rows.Scan(&rp.ID, &rp.UserID, &rp.ResourceType, &rp.ResourceID, &rp.PermissionID, &rp.Code, &rp.IsGranted, &rp.GrantedAt, &rp.GrantedBy); err != nil {
			return nil, err
		}
		perms = append(perms, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
