package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/internal/grants"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

func newCheckRouter(store *fakeStore, principals *stubPrincipals) *chi.Mux {
	eng := New(store, store)
	guard := Guard{Engine: eng, Principals: principals}
	handler := NewHandler(nil, eng, principals, guard)

	r := chi.NewRouter()
	r.Route("/check", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return r
}

func TestCheckSelfReturnsDecision(t *testing.T) {
	store := &fakeStore{
		user: map[string]grants.Lookup{
			userKey(1, "document.read"): {Found: true, IsGranted: true},
		},
	}
	router := newCheckRouter(store, &stubPrincipals{})

	body := strings.NewReader(`{"resource_type":"document","action":"read"}`)
	req := httptest.NewRequest(http.MethodPost, "/check", body)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var decision Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, TierUserAllow, decision.Tier)
}

func TestCheckSelfRejectsMissingFields(t *testing.T) {
	router := newCheckRouter(&fakeStore{}, &stubPrincipals{})

	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(`{"action":"read"}`))
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckUserNeedsUsersView(t *testing.T) {
	router := newCheckRouter(&fakeStore{}, &stubPrincipals{})

	body := strings.NewReader(`{"resource_type":"document","action":"read"}`)
	req := httptest.NewRequest(http.MethodPost, "/check/users/2", body)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCheckUserEvaluatesTargetPrincipal(t *testing.T) {
	store := &fakeStore{
		user: map[string]grants.Lookup{
			userKey(1, "users.view"): {Found: true, IsGranted: true},
		},
	}
	principals := &stubPrincipals{principals: map[int64]shared.Principal{
		2: {UserID: 2, IsActive: true, IsSuperuser: true},
	}}
	router := newCheckRouter(store, principals)

	body := strings.NewReader(`{"resource_type":"document","action":"delete"}`)
	req := httptest.NewRequest(http.MethodPost, "/check/users/2", body)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var decision Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, TierSuperuser, decision.Tier)
}

func TestCheckUserUnknownTarget(t *testing.T) {
	store := &fakeStore{
		user: map[string]grants.Lookup{
			userKey(1, "users.view"): {Found: true, IsGranted: true},
		},
	}
	router := newCheckRouter(store, &stubPrincipals{})

	body := strings.NewReader(`{"resource_type":"document","action":"read"}`)
	req := httptest.NewRequest(http.MethodPost, "/check/users/99", body)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), activeUser(1)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
