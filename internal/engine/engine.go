package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/gatehouse-io/gatehouse/internal/catalog"
	"github.com/gatehouse-io/gatehouse/internal/grants"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// GrantSource probes the user- and resource-level override tables. A probe
// that finds nothing abstains; the engine never treats an empty result as a
// deny on its own.
type GrantSource interface {
	UserGrant(ctx context.Context, userID int64, code string) (grants.Lookup, error)
	ResourceGrant(ctx context.Context, userID int64, resourceType, resourceID, code string) (grants.Lookup, error)
}

// RoleSource resolves the union of role-granted permission codes for a user.
type RoleSource interface {
	RolePermissions(ctx context.Context, userID int64) (map[string]struct{}, error)
}

// Observer receives one callback per decision for metrics.
type Observer interface {
	ObserveDecision(tier string, allowed, cached bool)
}

// Engine evaluates access checks against the grant store under a strict
// priority order: superuser, active flag, resource overrides, user overrides,
// role grants, default deny. Each invocation is independent and reads a
// consistent snapshot per tier lookup; the engine holds no mutable state
// beyond the optional cache.
type Engine struct {
	grants   GrantSource
	roles    RoleSource
	cache    *Cache
	observer Observer
	logger   *slog.Logger
	group    singleflight.Group
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithCache attaches a decision cache.
func WithCache(cache *Cache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithObserver attaches a metrics observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithLogger attaches a logger for denied and failed checks.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New constructs an Engine. The store dependencies are injected so the
// engine can run against an in-memory fake in tests.
func New(grantSource GrantSource, roleSource RoleSource, opts ...Option) *Engine {
	e := &Engine{grants: grantSource, roles: roleSource}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check produces the allow/deny verdict for one requested action. resourceID
// may be empty, which skips the resource tier. A store failure is returned as
// ErrDependency together with a closed (denying) decision; callers must not
// confuse it with a policy deny.
func (e *Engine) Check(ctx context.Context, principal shared.Principal, resourceType, action, resourceID string) (Decision, error) {
	resourceType = strings.TrimSpace(resourceType)
	action = strings.TrimSpace(action)
	if resourceType == "" || action == "" {
		return Decision{}, fmt.Errorf("engine: resource type and action required: %w", shared.ErrValidation)
	}
	code := resourceType + "." + action

	// Tier 1: superuser bypasses the engine entirely, including the active
	// check. Deactivation is expected to strip superuser status; until it
	// does, superuser wins.
	if principal.IsSuperuser {
		d := allow(TierSuperuser, "superuser")
		e.observe(d, false)
		return d, nil
	}

	// Tier 2: an inactive account is denied unconditionally, even over a
	// resource-level allow.
	if !principal.IsActive {
		d := deny(TierInactive, "account deactivated")
		e.observe(d, false)
		return d, nil
	}

	if e.cache != nil {
		if d, ok, err := e.cache.Get(ctx, principal.UserID, code, resourceID); err != nil {
			if e.logger != nil {
				e.logger.Warn("decision cache read", slog.Any("error", err))
			}
		} else if ok {
			e.observe(d, true)
			return d, nil
		}
	}

	d, err := e.evaluateShared(ctx, principal.UserID, resourceType, resourceID, code)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("check failed closed", slog.String("code", code), slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		}
		// Fail closed, but surface the dependency failure distinctly from a
		// policy deny.
		return deny(TierDefault, "store unavailable"), err
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, principal.UserID, code, resourceID, d); err != nil && e.logger != nil {
			e.logger.Warn("decision cache write", slog.Any("error", err))
		}
	}
	e.observe(d, false)
	if !d.Allowed && e.logger != nil {
		e.logger.Debug("access denied", slog.Int64("user_id", principal.UserID), slog.String("code", code), slog.String("tier", string(d.Tier)))
	}
	return d, nil
}

func (e *Engine) evaluateShared(ctx context.Context, userID int64, resourceType, resourceID, code string) (Decision, error) {
	key := fmt.Sprintf("%d:%s:%s", userID, code, resourceID)
	ch := e.group.DoChan(key, func() (any, error) {
		d, err := e.evaluate(ctx, userID, resourceType, resourceID, code)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	select {
	case <-ctx.Done():
		return Decision{}, shared.Dependency(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Decision{}, res.Err
		}
		return res.Val.(Decision), nil
	}
}

func (e *Engine) evaluate(ctx context.Context, userID int64, resourceType, resourceID, code string) (Decision, error) {
	// Tier 3: resource instance override, only when an instance is addressed.
	if resourceID != "" {
		lookup, err := e.grants.ResourceGrant(ctx, userID, resourceType, resourceID, code)
		if err != nil {
			return Decision{}, err
		}
		if d, effect := resourceVerdict(lookup, resourceID); effect != EffectAbstain {
			return d, nil
		}
	}

	// Tier 4: user-level override across all instances of the code.
	lookup, err := e.grants.UserGrant(ctx, userID, code)
	if err != nil {
		return Decision{}, err
	}
	if d, effect := userVerdict(lookup); effect != EffectAbstain {
		return d, nil
	}

	// Tier 5: role grants, additive only, wildcard-expanded against the
	// requested code.
	codes, err := e.roles.RolePermissions(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if catalog.MatchAny(codes, code) {
		return allow(TierRole, "granted via role"), nil
	}

	// Tier 6: nothing claimed the request.
	return deny(TierDefault, "no matching grant"), nil
}

func resourceVerdict(lookup grants.Lookup, resourceID string) (Decision, Effect) {
	if !lookup.Found {
		return Decision{}, EffectAbstain
	}
	if lookup.IsGranted {
		return allow(TierResourceAllow, "resource override for "+resourceID), EffectAllow
	}
	return deny(TierResourceDeny, "resource override for "+resourceID), EffectDeny
}

func userVerdict(lookup grants.Lookup) (Decision, Effect) {
	if !lookup.Found {
		return Decision{}, EffectAbstain
	}
	if lookup.IsGranted {
		return allow(TierUserAllow, "direct user grant"), EffectAllow
	}
	return deny(TierUserDeny, "direct user deny"), EffectDeny
}

func (e *Engine) observe(d Decision, cached bool) {
	if e.observer == nil {
		return
	}
	e.observer.ObserveDecision(string(d.Tier), d.Allowed, cached)
}
