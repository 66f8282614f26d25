package catalog

import (
	"context"
	"fmt"
	"strings"
)

// RepositoryPort defines data access methods for the vocabulary.
type RepositoryPort interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetByCode(ctx context.Context, code string) (Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	DeletePermission(ctx context.Context, code string) error
}

// Service maintains the permission vocabulary. Validation happens here, at
// registration and grant-creation time; checks against unknown codes never
// error, they simply match nothing and fall through to the default deny.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListPermissions returns the registered vocabulary.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// RegisterPermission adds a new (resourceType, action) pair to the vocabulary.
func (s *Service) RegisterPermission(ctx context.Context, resourceType, action, name, description string) (Permission, error) {
	resourceType = strings.ToLower(strings.TrimSpace(resourceType))
	action = strings.ToLower(strings.TrimSpace(action))
	code, err := ResolveCode(resourceType, action)
	if err != nil {
		return Permission{}, err
	}
	if name == "" {
		name = code
	}
	return s.repo.CreatePermission(ctx, Permission{
		Code:         code,
		Name:         strings.TrimSpace(name),
		Description:  strings.TrimSpace(description),
		ResourceType: resourceType,
		Action:       action,
	})
}

// RemovePermission deletes a vocabulary entry; referenced codes are rejected.
func (s *Service) RemovePermission(ctx context.Context, code string) error {
	if _, _, err := SplitCode(code); err != nil {
		return err
	}
	return s.repo.DeletePermission(ctx, code)
}

// Resolve validates that the requested pair is registered and returns its
// code. Grant creation goes through here so unknown combinations are rejected
// before a grant row can reference them.
func (s *Service) Resolve(ctx context.Context, resourceType, action string) (Permission, error) {
	code, err := ResolveCode(resourceType, action)
	if err != nil {
		return Permission{}, err
	}
	perm, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Permission{}, fmt.Errorf("catalog: resolve %s: %w", code, err)
	}
	return perm, nil
}

// ResolveByCode is Resolve for callers that already hold a composed code.
func (s *Service) ResolveByCode(ctx context.Context, code string) (Permission, error) {
	resourceType, action, err := SplitCode(code)
	if err != nil {
		return Permission{}, err
	}
	return s.Resolve(ctx, resourceType, action)
}
