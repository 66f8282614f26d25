package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/catalog"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type stubRepo struct {
	roles       map[int64]Role
	members     map[int64][]int64
	assignAdded bool
	revokeHit   bool
	linkAdded   bool
	unlinkHit   bool
	deleted     []int64
}

func (s *stubRepo) ListRoles(ctx context.Context) ([]Role, error) { return nil, nil }

func (s *stubRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *stubRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	return Role{ID: 1, Name: name, Description: description}, nil
}

func (s *stubRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	return Role{ID: id, Name: name, Description: description}, nil
}

func (s *stubRepo) DeleteRole(ctx context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRepo) AssignRole(ctx context.Context, userID, roleID, actorID int64) (bool, error) {
	return s.assignAdded, nil
}

func (s *stubRepo) RevokeRole(ctx context.Context, userID, roleID int64) (bool, error) {
	return s.revokeHit, nil
}

func (s *stubRepo) LinkPermission(ctx context.Context, roleID, permissionID, actorID int64) (bool, error) {
	return s.linkAdded, nil
}

func (s *stubRepo) UnlinkPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	return s.unlinkHit, nil
}

func (s *stubRepo) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	return nil, nil
}

func (s *stubRepo) UserRoleCodes(ctx context.Context, userID int64) (map[string]struct{}, error) {
	return map[string]struct{}{"document.read": {}}, nil
}

func (s *stubRepo) Members(ctx context.Context, roleID int64) ([]int64, error) {
	return s.members[roleID], nil
}

func (s *stubRepo) UserRoles(ctx context.Context, userID int64) ([]Role, error) { return nil, nil }

type stubCatalog struct{}

func (stubCatalog) ResolveByCode(ctx context.Context, code string) (catalog.Permission, error) {
	if code == "document.read" || code == "project.read" {
		return catalog.Permission{ID: 10, Code: code}, nil
	}
	return catalog.Permission{}, shared.ErrNotFound
}

type stubInvalidator struct {
	users []int64
}

func (s *stubInvalidator) Invalidate(ctx context.Context, userID int64) error {
	s.users = append(s.users, userID)
	return nil
}

type stubAuditor struct {
	actions []string
}

func (s *stubAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	s.actions = append(s.actions, log.Action)
	return nil
}

func TestAssignRoleInvalidatesUser(t *testing.T) {
	repo := &stubRepo{assignAdded: true}
	cache := &stubInvalidator{}
	auditor := &stubAuditor{}
	svc := NewService(repo, stubCatalog{}, cache, auditor, nil)

	if err := svc.AssignRole(context.Background(), 7, 2, 1); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(cache.users) != 1 || cache.users[0] != 7 {
		t.Fatalf("expected invalidation for user 7, got %v", cache.users)
	}
	if len(auditor.actions) != 1 || auditor.actions[0] != "ASSIGN_ROLE" {
		t.Fatalf("expected ASSIGN_ROLE audit, got %v", auditor.actions)
	}
}

func TestAssignRoleTwiceIsIdempotent(t *testing.T) {
	repo := &stubRepo{assignAdded: false}
	cache := &stubInvalidator{}
	auditor := &stubAuditor{}
	svc := NewService(repo, stubCatalog{}, cache, auditor, nil)

	if err := svc.AssignRole(context.Background(), 7, 2, 1); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(cache.users) != 0 || len(auditor.actions) != 0 {
		t.Fatalf("duplicate assignment must not invalidate or audit")
	}
}

func TestRevokeAbsentRoleIsNoOp(t *testing.T) {
	repo := &stubRepo{revokeHit: false}
	cache := &stubInvalidator{}
	svc := NewService(repo, stubCatalog{}, cache, nil, nil)

	if err := svc.RevokeRole(context.Background(), 7, 2, 1); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(cache.users) != 0 {
		t.Fatalf("revoking an unheld role leaves checks unchanged")
	}
}

func TestLinkPermissionFansOutToMembers(t *testing.T) {
	repo := &stubRepo{
		linkAdded: true,
		members:   map[int64][]int64{2: {10, 11, 12}},
	}
	cache := &stubInvalidator{}
	svc := NewService(repo, stubCatalog{}, cache, nil, nil)

	if err := svc.LinkPermission(context.Background(), 2, "document.read", 1); err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(cache.users) != 3 {
		t.Fatalf("expected all 3 members invalidated, got %v", cache.users)
	}
}

func TestLinkPermissionQueuesAsyncFanout(t *testing.T) {
	repo := &stubRepo{
		linkAdded: true,
		members:   map[int64][]int64{2: {10}},
	}
	var queued []int64
	svc := NewService(repo, stubCatalog{}, &stubInvalidator{}, nil, nil,
		WithFanout(func(ctx context.Context, roleID int64) error {
			queued = append(queued, roleID)
			return nil
		}),
	)

	if err := svc.LinkPermission(context.Background(), 2, "document.read", 1); err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(queued) != 1 || queued[0] != 2 {
		t.Fatalf("expected fanout queued for role 2, got %v", queued)
	}
}

func TestLinkUnknownPermissionRejected(t *testing.T) {
	repo := &stubRepo{linkAdded: true}
	svc := NewService(repo, stubCatalog{}, &stubInvalidator{}, nil, nil)

	err := svc.LinkPermission(context.Background(), 2, "nonexistent.code", 1)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteRoleInvalidatesEveryMember(t *testing.T) {
	repo := &stubRepo{
		roles:   map[int64]Role{2: {ID: 2, Name: "editor"}},
		members: map[int64][]int64{2: {20, 21}},
	}
	cache := &stubInvalidator{}
	auditor := &stubAuditor{}
	svc := NewService(repo, stubCatalog{}, cache, auditor, nil)

	if err := svc.DeleteRole(context.Background(), 2, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != 2 {
		t.Fatalf("expected role 2 deleted")
	}
	if len(cache.users) != 2 {
		t.Fatalf("expected both members invalidated, got %v", cache.users)
	}
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc := NewService(&stubRepo{}, stubCatalog{}, &stubInvalidator{}, nil, nil)

	if _, err := svc.CreateRole(context.Background(), "   ", "", 1); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestRolePermissionsDelegatesToRepo(t *testing.T) {
	svc := NewService(&stubRepo{}, stubCatalog{}, &stubInvalidator{}, nil, nil)

	codes, err := svc.RolePermissions(context.Background(), 7)
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	if _, ok := codes["document.read"]; !ok {
		t.Fatalf("expected document.read in union, got %v", codes)
	}
}
