package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// PrincipalSource loads the account flags behind a session user ID.
type PrincipalSource interface {
	PrincipalByID(ctx context.Context, userID int64) (shared.Principal, error)
}

// Guard wires authorization checks into HTTP handlers. It maps the engine's
// outcomes onto status codes: no principal is 401, a policy deny is 403 and a
// store failure is 503 so callers can tell "forbidden" from "unknown".
type Guard struct {
	Engine     *Engine
	Principals PrincipalSource
	Logger     *slog.Logger
}

// Require authorizes the request for (resourceType, action). When the route
// carries an {id} parameter the check runs at the resource tier against that
// instance.
func (g Guard) Require(resourceType, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := g.resolvePrincipal(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			resourceID := chi.URLParam(r, "id")
			decision, err := g.Engine.Check(r.Context(), principal, resourceType, action, resourceID)
			if err != nil {
				if errors.Is(err, shared.ErrValidation) {
					httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
					return
				}
				if g.Logger != nil {
					g.Logger.Error("authorization check", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusServiceUnavailable, "Dependency Unavailable", "authorization backend unreachable")
				return
			}
			if !decision.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", string(decision.Tier))
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAuthenticated only resolves the principal without running a check,
// for endpoints every signed-in user may call.
func (g Guard) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := g.resolvePrincipal(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (g Guard) resolvePrincipal(r *http.Request) (shared.Principal, bool) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		return p, true
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return shared.Principal{}, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return shared.Principal{}, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return shared.Principal{}, false
	}
	principal, err := g.Principals.PrincipalByID(r.Context(), userID)
	if err != nil {
		if g.Logger != nil && !errors.Is(err, shared.ErrNotFound) {
			g.Logger.Error("load principal", slog.Any("error", err))
		}
		return shared.Principal{}, false
	}
	return principal, true
}
