package grants

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/gatehouse-io/gatehouse/internal/catalog"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for grant rows.
type RepositoryPort interface {
	UserGrant(ctx context.Context, userID int64, code string) (Lookup, error)
	ResourceGrant(ctx context.Context, userID int64, resourceType, resourceID, code string) (Lookup, error)
	UpsertUserPermission(ctx context.Context, userID, permissionID int64, granted bool, actorID int64, overwrite bool) (bool, error)
	DeleteUserPermission(ctx context.Context, userID, permissionID int64) (bool, error)
	UpsertResourcePermission(ctx context.Context, userID int64, resourceType, resourceID string, permissionID int64, granted bool, actorID int64, overwrite bool) (bool, error)
	DeleteResourcePermission(ctx context.Context, userID int64, resourceType, resourceID string, permissionID int64) (bool, error)
	ListUserPermissions(ctx context.Context, userID int64) ([]UserPermission, error)
	ListResourcePermissions(ctx context.Context, userID int64) ([]ResourcePermission, error)
}

// CatalogPort resolves permission codes against the registered vocabulary.
type CatalogPort interface {
	ResolveByCode(ctx context.Context, code string) (catalog.Permission, error)
}

// Invalidator drops cached verdicts for a user. Invalidation runs before a
// mutation is acknowledged so the mutating actor always reads its own write.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// RoleAggregator resolves the union of role-granted codes for a user.
type RoleAggregator interface {
	RolePermissions(ctx context.Context, userID int64) (map[string]struct{}, error)
}

// FlagSource exposes the account flags the effective-permission listing needs.
type FlagSource interface {
	Flags(ctx context.Context, userID int64) (isActive, isSuperuser bool, err error)
}

// Auditor records administrative mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns administrative writes to the grant store.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	roles   RoleAggregator
	flags   FlagSource
	cache   Invalidator
	audit   Auditor
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, catalogSvc CatalogPort, roles RoleAggregator, flags FlagSource, cache Invalidator, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalogSvc, roles: roles, flags: flags, cache: cache, audit: audit, logger: logger}
}

// GrantUserPermission writes a user-level override. Re-granting the same
// polarity is idempotent; flipping polarity requires overwrite (the
// revoke-then-recreate path) and is otherwise reported as a conflict.
func (s *Service) GrantUserPermission(ctx context.Context, userID int64, code string, granted bool, actorID int64, overwrite bool) error {
	perm, err := s.catalog.ResolveByCode(ctx, code)
	if err != nil {
		return unknownCode(code, err)
	}
	applied, err := s.repo.UpsertUserPermission(ctx, userID, perm.ID, granted, actorID, overwrite)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("grants: %s already granted with opposite polarity for user %d: %w", code, userID, shared.ErrConflict)
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "GRANT_USER_PERMISSION", userID, map[string]any{"code": code, "granted": granted})
	return nil
}

// RevokeUserPermission removes a user-level override. Revoking an absent
// grant is a no-op.
func (s *Service) RevokeUserPermission(ctx context.Context, userID int64, code string, actorID int64) error {
	perm, err := s.catalog.ResolveByCode(ctx, code)
	if err != nil {
		return unknownCode(code, err)
	}
	removed, err := s.repo.DeleteUserPermission(ctx, userID, perm.ID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "REVOKE_USER_PERMISSION", userID, map[string]any{"code": code})
	return nil
}

// GrantResourcePermission writes an override scoped to one resource instance.
func (s *Service) GrantResourcePermission(ctx context.Context, userID int64, resourceType, resourceID, code string, granted bool, actorID int64, overwrite bool) error {
	if resourceID == "" {
		return fmt.Errorf("grants: resource id required: %w", shared.ErrValidation)
	}
	perm, err := s.catalog.ResolveByCode(ctx, code)
	if err != nil {
		return unknownCode(code, err)
	}
	applied, err := s.repo.UpsertResourcePermission(ctx, userID, resourceType, resourceID, perm.ID, granted, actorID, overwrite)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("grants: %s already granted with opposite polarity for user %d on %s/%s: %w", code, userID, resourceType, resourceID, shared.ErrConflict)
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "GRANT_RESOURCE_PERMISSION", userID, map[string]any{
		"code": code, "granted": granted, "resource_type": resourceType, "resource_id": resourceID,
	})
	return nil
}

// RevokeResourcePermission removes a resource-level override. Idempotent.
func (s *Service) RevokeResourcePermission(ctx context.Context, userID int64, resourceType, resourceID, code string, actorID int64) error {
	perm, err := s.catalog.ResolveByCode(ctx, code)
	if err != nil {
		return unknownCode(code, err)
	}
	removed, err := s.repo.DeleteResourcePermission(ctx, userID, resourceType, resourceID, perm.ID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "REVOKE_RESOURCE_PERMISSION", userID, map[string]any{
		"code": code, "resource_type": resourceType, "resource_id": resourceID,
	})
	return nil
}

// ListUserPermissions exposes direct overrides for the admin surface.
func (s *Service) ListUserPermissions(ctx context.Context, userID int64) ([]UserPermission, error) {
	return s.repo.ListUserPermissions(ctx, userID)
}

// ListResourcePermissions exposes resource-level overrides for the admin surface.
func (s *Service) ListResourcePermissions(ctx context.Context, userID int64) ([]ResourcePermission, error) {
	return s.repo.ListResourcePermissions(ctx, userID)
}

// EffectivePermissions lists the codes a user holds: role grants plus direct
// allows, minus direct denies. Superusers report the universal wildcard and
// inactive users report nothing.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	active, super, err := s.flags.Flags(ctx, userID)
	if err != nil {
		return nil, err
	}
	if super {
		return []string{"*.*"}, nil
	}
	if !active {
		return []string{}, nil
	}

	codes, err := s.roles.RolePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	direct, err := s.repo.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, d := range direct {
		if d.IsGranted {
			codes[d.Code] = struct{}{}
		}
	}
	for _, d := range direct {
		if !d.IsGranted {
			delete(codes, d.Code)
		}
	}

	out := make([]string, 0, len(codes))
	for code := range codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("grants: invalidate user %d: %w", userID, err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func unknownCode(code string, err error) error {
	return fmt.Errorf("grants: unknown permission code %s: %w: %w", code, shared.ErrValidation, err)
}
