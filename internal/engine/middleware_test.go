package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/grants"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type stubPrincipals struct {
	principals map[int64]shared.Principal
}

func (s *stubPrincipals) PrincipalByID(ctx context.Context, userID int64) (shared.Principal, error) {
	p, ok := s.principals[userID]
	if !ok {
		return shared.Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestGuardRejectsAnonymous(t *testing.T) {
	eng := New(&fakeStore{}, &fakeStore{})
	guard := Guard{Engine: eng, Principals: &stubPrincipals{}}

	next, called := okHandler()
	rr := httptest.NewRecorder()
	guard.Require("document", "read")(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if *called {
		t.Fatalf("handler must not run without a principal")
	}
}

func TestGuardForbidsOnDeny(t *testing.T) {
	eng := New(&fakeStore{}, &fakeStore{})
	guard := Guard{Engine: eng, Principals: &stubPrincipals{}}

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	next, called := okHandler()
	rr := httptest.NewRecorder()
	guard.Require("document", "read")(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on default deny, got %d", rr.Code)
	}
	if *called {
		t.Fatalf("handler must not run on deny")
	}
}

func TestGuardAllowsAndPropagatesPrincipal(t *testing.T) {
	store := &fakeStore{
		user: map[string]grants.Lookup{
			userKey(1, "document.read"): {Found: true, IsGranted: true},
		},
	}
	eng := New(store, store)
	guard := Guard{Engine: eng, Principals: &stubPrincipals{}}

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	var seen shared.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	guard.Require("document", "read")(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen.UserID != 1 {
		t.Fatalf("expected principal in handler context, got %+v", seen)
	}
}

func TestGuardServiceUnavailableOnStoreFailure(t *testing.T) {
	store := &fakeStore{err: shared.Dependency(context.DeadlineExceeded)}
	eng := New(store, store)
	guard := Guard{Engine: eng, Principals: &stubPrincipals{}}

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	next, called := okHandler()
	rr := httptest.NewRecorder()
	guard.Require("document", "read")(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("a backend outage is 503, not 403: got %d", rr.Code)
	}
	if *called {
		t.Fatalf("handler must not run when the store is down")
	}
}

func TestRequireAuthenticatedOnlyResolvesPrincipal(t *testing.T) {
	eng := New(&fakeStore{}, &fakeStore{})
	guard := Guard{Engine: eng, Principals: &stubPrincipals{}}

	req := httptest.NewRequest(http.MethodPost, "/check", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(2)))

	next, called := okHandler()
	rr := httptest.NewRecorder()
	guard.RequireAuthenticated(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !*called {
		t.Fatalf("authenticated principal should pass, got %d", rr.Code)
	}
}
