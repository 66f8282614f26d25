package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-io/gatehouse/internal/grants"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCachePutGetInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, 1, "document.read", ""); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	want := Decision{Allowed: true, Tier: TierRole, Reason: "granted via role"}
	if err := cache.Put(ctx, 1, "document.read", "", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := cache.Get(ctx, 1, "document.read", "")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if err := cache.Invalidate(ctx, 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, 1, "document.read", ""); ok {
		t.Fatalf("version bump must orphan cached verdicts")
	}
}

func TestCacheKeysAreResourceScoped(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	deny := Decision{Allowed: false, Tier: TierResourceDeny, Reason: "resource override for 123"}
	if err := cache.Put(ctx, 2, "document.read", "123", deny); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, 2, "document.read", "456"); ok {
		t.Fatalf("verdict for one instance must not leak to another")
	}
	if _, ok, _ := cache.Get(ctx, 2, "document.read", ""); ok {
		t.Fatalf("instance verdict must not answer type-wide checks")
	}
}

func TestCacheInvalidationIsPerUser(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	d := Decision{Allowed: true, Tier: TierUserAllow, Reason: "direct user grant"}
	if err := cache.Put(ctx, 3, "project.read", "", d); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Put(ctx, 4, "project.read", "", d); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Invalidate(ctx, 3); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, 3, "project.read", ""); ok {
		t.Fatalf("user 3 should be invalidated")
	}
	if _, ok, _ := cache.Get(ctx, 4, "project.read", ""); !ok {
		t.Fatalf("user 4 must keep their cached verdict")
	}
}

// Changing a grant and invalidating must be visible on the next check even
// though an older verdict was memoized.
func TestEngineReadsFreshDecisionAfterInvalidation(t *testing.T) {
	cache, _ := newTestCache(t)
	store := &fakeStore{}
	eng := New(store, store, WithCache(cache))
	ctx := context.Background()

	d, err := eng.Check(ctx, activeUser(5), "document", "read", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected default deny before the grant")
	}

	// Grant arrives; the admin path always invalidates before acknowledging.
	store.user = map[string]grants.Lookup{
		userKey(5, "document.read"): {Found: true, IsGranted: true},
	}
	if err := cache.Invalidate(ctx, 5); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	d, err = eng.Check(ctx, activeUser(5), "document", "read", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Tier != TierUserAllow {
		t.Fatalf("expected fresh user allow after invalidation, got %+v", d)
	}
}

func TestEngineServesCachedDecision(t *testing.T) {
	cache, _ := newTestCache(t)
	store := &fakeStore{roles: map[string]struct{}{"document.read": {}}}
	eng := New(store, store, WithCache(cache))
	ctx := context.Background()

	if _, err := eng.Check(ctx, activeUser(6), "document", "read", ""); err != nil {
		t.Fatalf("first check: %v", err)
	}
	calls := store.roleCalls

	d, err := eng.Check(ctx, activeUser(6), "document", "read", "")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected cached allow, got %+v", d)
	}
	if store.roleCalls != calls {
		t.Fatalf("second check should be served from cache")
	}
}

func TestListenForInvalidationDeliversUserIDs(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan int64, 1)
	go func() {
		_ = cache.ListenForInvalidation(ctx, func(userID int64) {
			received <- userID
		})
	}()

	// Subscription setup races with the publish; retry until delivered.
	deadline := time.After(2 * time.Second)
	for {
		if err := cache.Invalidate(ctx, 42); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		select {
		case got := <-received:
			if got != 42 {
				t.Fatalf("expected user 42, got %d", got)
			}
			return
		case <-deadline:
			t.Fatalf("invalidation announcement never delivered")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
