package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/grants"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type fakeStore struct {
	user     map[string]grants.Lookup
	resource map[string]grants.Lookup
	roles    map[string]struct{}
	err      error

	userCalls     int
	resourceCalls int
	roleCalls     int
}

func (f *fakeStore) UserGrant(ctx context.Context, userID int64, code string) (grants.Lookup, error) {
	f.userCalls++
	if f.err != nil {
		return grants.Lookup{}, f.err
	}
	return f.user[userKey(userID, code)], nil
}

func (f *fakeStore) ResourceGrant(ctx context.Context, userID int64, resourceType, resourceID, code string) (grants.Lookup, error) {
	f.resourceCalls++
	if f.err != nil {
		return grants.Lookup{}, f.err
	}
	return f.resource[resourceKey(userID, resourceType, resourceID, code)], nil
}

func (f *fakeStore) RolePermissions(ctx context.Context, userID int64) (map[string]struct{}, error) {
	f.roleCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]struct{}, len(f.roles))
	for code := range f.roles {
		out[code] = struct{}{}
	}
	return out, nil
}

func userKey(userID int64, code string) string {
	return fmt.Sprintf("%d:%s", userID, code)
}

func resourceKey(userID int64, resourceType, resourceID, code string) string {
	return fmt.Sprintf("%d:%s:%s:%s", userID, resourceType, resourceID, code)
}

func activeUser(id int64) shared.Principal {
	return shared.Principal{UserID: id, IsActive: true}
}

func TestSuperuserBypassesEverything(t *testing.T) {
	store := &fakeStore{
		resource: map[string]grants.Lookup{
			resourceKey(1, "document", "42", "document.read"): {Found: true, IsGranted: false},
		},
		user: map[string]grants.Lookup{
			userKey(1, "document.read"): {Found: true, IsGranted: false},
		},
	}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), shared.Principal{UserID: 1, IsActive: true, IsSuperuser: true}, "document", "read", "42")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Tier != TierSuperuser {
		t.Fatalf("expected superuser allow, got %+v", d)
	}
	if store.resourceCalls != 0 || store.userCalls != 0 || store.roleCalls != 0 {
		t.Fatalf("superuser check must not touch the store")
	}
}

func TestInactiveSuperuserStillAllowed(t *testing.T) {
	eng := New(&fakeStore{}, &fakeStore{})
	d, err := eng.Check(context.Background(), shared.Principal{UserID: 1, IsActive: false, IsSuperuser: true}, "document", "read", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Tier != TierSuperuser {
		t.Fatalf("superuser outranks the active flag, got %+v", d)
	}
}

func TestInactiveDeniedOverResourceAllow(t *testing.T) {
	store := &fakeStore{
		resource: map[string]grants.Lookup{
			resourceKey(2, "document", "42", "document.read"): {Found: true, IsGranted: true},
		},
	}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), shared.Principal{UserID: 2, IsActive: false}, "document", "read", "42")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Tier != TierInactive {
		t.Fatalf("expected inactive deny, got %+v", d)
	}
	if store.resourceCalls != 0 {
		t.Fatalf("inactive check must not touch the store")
	}
}

func TestResourceDenyBeatsUserAllowAndRole(t *testing.T) {
	store := &fakeStore{
		resource: map[string]grants.Lookup{
			resourceKey(3, "document", "123", "document.read"): {Found: true, IsGranted: false},
		},
		user: map[string]grants.Lookup{
			userKey(3, "document.read"): {Found: true, IsGranted: true},
		},
		roles: map[string]struct{}{"document.read": {}},
	}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), activeUser(3), "document", "read", "123")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Tier != TierResourceDeny {
		t.Fatalf("expected resource deny, got %+v", d)
	}
}

func TestResourceOverridesAreInstanceScoped(t *testing.T) {
	store := &fakeStore{
		resource: map[string]grants.Lookup{
			resourceKey(3, "document", "123", "document.read"): {Found: true, IsGranted: false},
			resourceKey(3, "document", "456", "document.read"): {Found: true, IsGranted: true},
		},
	}
	eng := New(store, store)

	denied, err := eng.Check(context.Background(), activeUser(3), "document", "read", "123")
	if err != nil {
		t.Fatalf("check 123: %v", err)
	}
	allowed, err := eng.Check(context.Background(), activeUser(3), "document", "read", "456")
	if err != nil {
		t.Fatalf("check 456: %v", err)
	}
	if denied.Allowed || denied.Tier != TierResourceDeny {
		t.Fatalf("expected deny on 123, got %+v", denied)
	}
	if !allowed.Allowed || allowed.Tier != TierResourceAllow {
		t.Fatalf("expected allow on 456, got %+v", allowed)
	}
}

func TestUserDenyBeatsRoleGrant(t *testing.T) {
	store := &fakeStore{
		user: map[string]grants.Lookup{
			userKey(4, "document.delete"): {Found: true, IsGranted: false},
		},
		roles: map[string]struct{}{"document.*": {}},
	}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), activeUser(4), "document", "delete", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Tier != TierUserDeny {
		t.Fatalf("expected user deny over role wildcard, got %+v", d)
	}
	if store.roleCalls != 0 {
		t.Fatalf("user tier should short-circuit before roles")
	}
}

func TestUserAllowWithoutResourceOverride(t *testing.T) {
	store := &fakeStore{
		user: map[string]grants.Lookup{
			userKey(5, "project.update"): {Found: true, IsGranted: true},
		},
	}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), activeUser(5), "project", "update", "9")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Tier != TierUserAllow {
		t.Fatalf("expected user allow, got %+v", d)
	}
}

func TestRoleWildcardExpansion(t *testing.T) {
	store := &fakeStore{roles: map[string]struct{}{"document.*": {}}}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), activeUser(6), "document", "read", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Tier != TierRole {
		t.Fatalf("expected role allow via wildcard, got %+v", d)
	}

	d, err = eng.Check(context.Background(), activeUser(6), "project", "read", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Tier != TierDefault {
		t.Fatalf("document.* must not cover project.read, got %+v", d)
	}
}

func TestDefaultDeny(t *testing.T) {
	store := &fakeStore{}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), activeUser(7), "document", "read", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Tier != TierDefault {
		t.Fatalf("expected default deny, got %+v", d)
	}
}

func TestUnknownCodeFallsThroughToDefaultDeny(t *testing.T) {
	store := &fakeStore{roles: map[string]struct{}{"document.read": {}}}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), activeUser(8), "nonexistent", "frobnicate", "")
	if err != nil {
		t.Fatalf("unknown codes are not an error at check time: %v", err)
	}
	if d.Allowed || d.Tier != TierDefault {
		t.Fatalf("expected default deny for unknown code, got %+v", d)
	}
}

func TestValidationRejectsEmptySlots(t *testing.T) {
	eng := New(&fakeStore{}, &fakeStore{})

	if _, err := eng.Check(context.Background(), activeUser(9), "", "read", ""); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error for empty resource type, got %v", err)
	}
	if _, err := eng.Check(context.Background(), activeUser(9), "document", "  ", ""); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error for blank action, got %v", err)
	}
}

func TestStoreFailureFailsClosedWithError(t *testing.T) {
	store := &fakeStore{err: shared.Dependency(errors.New("connection refused"))}
	eng := New(store, store)

	d, err := eng.Check(context.Background(), activeUser(10), "document", "read", "")
	if err == nil {
		t.Fatalf("expected dependency error to surface")
	}
	if !errors.Is(err, shared.ErrDependency) {
		t.Fatalf("expected ErrDependency, got %v", err)
	}
	if d.Allowed {
		t.Fatalf("store failure must fail closed")
	}
}

type recordingObserver struct {
	tiers  []string
	cached []bool
}

func (r *recordingObserver) ObserveDecision(tier string, allowed, cached bool) {
	r.tiers = append(r.tiers, tier)
	r.cached = append(r.cached, cached)
}

func TestObserverReceivesDecisions(t *testing.T) {
	obs := &recordingObserver{}
	store := &fakeStore{roles: map[string]struct{}{"document.read": {}}}
	eng := New(store, store, WithObserver(obs))

	if _, err := eng.Check(context.Background(), activeUser(11), "document", "read", ""); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(obs.tiers) != 1 || obs.tiers[0] != string(TierRole) {
		t.Fatalf("expected one ROLE observation, got %v", obs.tiers)
	}
	if obs.cached[0] {
		t.Fatalf("first evaluation is never a cache hit")
	}
}
