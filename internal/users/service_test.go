package users

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type stubRepo struct {
	created   []User
	active    map[int64]bool
	superuser map[int64]bool
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]User, error) { return nil, nil }

func (s *stubRepo) GetByID(ctx context.Context, id int64) (User, error) {
	return User{}, shared.ErrNotFound
}

func (s *stubRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return User{}, shared.ErrNotFound
}

func (s *stubRepo) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = int64(len(s.created) + 1)
	s.created = append(s.created, u)
	return u, nil
}

func (s *stubRepo) SetActive(ctx context.Context, id int64, active bool) error {
	if s.active == nil {
		s.active = make(map[int64]bool)
	}
	s.active[id] = active
	return nil
}

func (s *stubRepo) SetSuperuser(ctx context.Context, id int64, superuser bool) error {
	if s.superuser == nil {
		s.superuser = make(map[int64]bool)
	}
	s.superuser[id] = superuser
	return nil
}

type stubAuditor struct {
	actions []string
}

func (s *stubAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	s.actions = append(s.actions, log.Action)
	return nil
}

func TestCreateUserHashesPasswordAndNormalisesEmail(t *testing.T) {
	repo := &stubRepo{}
	auditor := &stubAuditor{}
	svc := NewService(repo, auditor, nil)

	user, err := svc.CreateUser(context.Background(), "  Alice@Example.COM ", "Alice", "s3cretpass", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected lowercased email, got %s", user.Email)
	}
	if !user.IsActive {
		t.Fatalf("new accounts start active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cretpass")); err != nil {
		t.Fatalf("stored hash must verify the password: %v", err)
	}
	if len(auditor.actions) != 1 || auditor.actions[0] != "CREATE_USER" {
		t.Fatalf("expected CREATE_USER audit, got %v", auditor.actions)
	}
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.CreateUser(context.Background(), "bob@example.com", "Bob", "short", 1)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateUserRejectsBadEmail(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.CreateUser(context.Background(), "not-an-email", "Bob", "longenough", 1)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	repo := &stubRepo{}
	auditor := &stubAuditor{}
	svc := NewService(repo, auditor, nil)

	if err := svc.Deactivate(context.Background(), 5, 1); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if repo.active[5] {
		t.Fatalf("expected account 5 inactive")
	}
	if err := svc.Reactivate(context.Background(), 5, 1); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if !repo.active[5] {
		t.Fatalf("expected account 5 active again")
	}
	if len(auditor.actions) != 2 || auditor.actions[0] != "DEACTIVATE_USER" || auditor.actions[1] != "REACTIVATE_USER" {
		t.Fatalf("unexpected audit trail %v", auditor.actions)
	}
}

func TestSetSuperuser(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, nil)

	if err := svc.SetSuperuser(context.Background(), 5, true, 1); err != nil {
		t.Fatalf("set superuser: %v", err)
	}
	if !repo.superuser[5] {
		t.Fatalf("expected superuser flag set")
	}
}
