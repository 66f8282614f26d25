package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gatehouse-io/gatehouse/internal/catalog"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for roles and memberships.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	AssignRole(ctx context.Context, userID, roleID, actorID int64) (bool, error)
	RevokeRole(ctx context.Context, userID, roleID int64) (bool, error)
	LinkPermission(ctx context.Context, roleID, permissionID, actorID int64) (bool, error)
	UnlinkPermission(ctx context.Context, roleID, permissionID int64) (bool, error)
	RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error)
	UserRoleCodes(ctx context.Context, userID int64) (map[string]struct{}, error)
	Members(ctx context.Context, roleID int64) ([]int64, error)
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
}

// CatalogPort resolves permission codes against the registered vocabulary.
type CatalogPort interface {
	ResolveByCode(ctx context.Context, code string) (catalog.Permission, error)
}

// Invalidator drops cached verdicts for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Auditor records administrative mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates role administration and acts as the role aggregator
// for the decision engine.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	cache   Invalidator
	audit   Auditor
	logger  *slog.Logger
	fanout  func(ctx context.Context, roleID int64) error
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithFanout registers a hook that queues an asynchronous role-wide
// re-invalidation after the synchronous per-member sweep. Membership can
// change while the sweep runs; the queued fan-out re-reads the member list.
func WithFanout(enqueue func(ctx context.Context, roleID int64) error) Option {
	return func(s *Service) { s.fanout = enqueue }
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, catalogSvc CatalogPort, cache Invalidator, audit Auditor, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, catalog: catalogSvc, cache: cache, audit: audit, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RolePermissions returns the union of permission codes reachable via every
// role membership of the user. The result is a pure set; wildcard expansion
// happens at check time in the engine, not here.
func (s *Service) RolePermissions(ctx context.Context, userID int64) (map[string]struct{}, error) {
	return s.repo.UserRoleCodes(ctx, userID)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role together with its permission codes.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, []string, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	codes, err := s.repo.RolePermissionCodes(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	return role, codes, nil
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, actorID int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: name required: %w", shared.ErrValidation)
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "CREATE_ROLE", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string, actorID int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: name required: %w", shared.ErrValidation)
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "UPDATE_ROLE", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role, cascading its permission links and memberships
// but never its members' accounts. Every member's cached verdicts are dropped
// before the delete is acknowledged.
func (s *Service) DeleteRole(ctx context.Context, id int64, actorID int64) error {
	members, err := s.repo.Members(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	if err := s.invalidateAll(ctx, members); err != nil {
		return err
	}
	s.record(ctx, actorID, "DELETE_ROLE", "role", id, nil)
	return nil
}

// AssignRole adds a membership for the user. Idempotent.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, actorID int64) error {
	added, err := s.repo.AssignRole(ctx, userID, roleID, actorID)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "ASSIGN_ROLE", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// RevokeRole removes a membership. Revoking a role the user does not hold is
// a no-op and leaves subsequent checks unchanged.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID, actorID int64) error {
	removed, err := s.repo.RevokeRole(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "REVOKE_ROLE", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// LinkPermission attaches a permission code to a role and fans cache
// invalidation out to every current member.
func (s *Service) LinkPermission(ctx context.Context, roleID int64, code string, actorID int64) error {
	perm, err := s.catalog.ResolveByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("roles: unknown permission code %s: %w: %w", code, shared.ErrValidation, err)
	}
	added, err := s.repo.LinkPermission(ctx, roleID, perm.ID, actorID)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	if err := s.invalidateMembers(ctx, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, "LINK_ROLE_PERMISSION", "role", roleID, map[string]any{"code": code})
	return nil
}

// UnlinkPermission detaches a permission code from a role. Idempotent.
func (s *Service) UnlinkPermission(ctx context.Context, roleID int64, code string, actorID int64) error {
	perm, err := s.catalog.ResolveByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("roles: unknown permission code %s: %w: %w", code, shared.ErrValidation, err)
	}
	removed, err := s.repo.UnlinkPermission(ctx, roleID, perm.ID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := s.invalidateMembers(ctx, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, "UNLINK_ROLE_PERMISSION", "role", roleID, map[string]any{"code": code})
	return nil
}

// UserRoles lists the roles held by a user.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.UserRoles(ctx, userID)
}

func (s *Service) invalidateMembers(ctx context.Context, roleID int64) error {
	members, err := s.repo.Members(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.invalidateAll(ctx, members); err != nil {
		return err
	}
	if s.fanout != nil {
		if err := s.fanout(ctx, roleID); err != nil && s.logger != nil {
			s.logger.Warn("enqueue role fanout", slog.Int64("role_id", roleID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) invalidateAll(ctx context.Context, userIDs []int64) error {
	for _, id := range userIDs {
		if err := s.invalidate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("roles: invalidate user %d: %w", userID, err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
