package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// AssignmentSource supplies a principal's assignments with is_active = true.
// Expiry is not filtered here; the engine applies its own clock.
type AssignmentSource interface {
	ActiveForUser(ctx context.Context, userID int64) ([]Assignment, error)
}

// RoleSource resolves a role id to the engine's view of the role, returning
// ErrUnknownRole when the id does not exist.
type RoleSource interface {
	RoleByID(ctx context.Context, id string) (Role, error)
}

// Engine computes allow/deny for (user, permission, scope) requests by
// unioning effective permissions across the user's currently valid
// assignments.
type Engine struct {
	registry    *Registry
	assignments AssignmentSource
	roles       RoleSource
	cache       *DecisionCache
	clock       Clock
	logger      *slog.Logger
	flight      singleflight.Group
}

// NewEngine wires the resolution engine. A nil clock defaults to the system
// clock; a nil cache disables memoization.
func NewEngine(registry *Registry, assignments AssignmentSource, roles RoleSource, cache *DecisionCache, clock Clock, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{
		registry:    registry,
		assignments: assignments,
		roles:       roles,
		cache:       cache,
		clock:       clock,
		logger:      logger,
	}
}

// Authorize decides whether the user may perform the permission within the
// scope.
//
// An unregistered permission id is a bug at the call site and surfaces as
// ErrUnknownPermission. A store failure yields a Deny alongside a wrapped
// ErrDataAccess; availability problems never fail open.
func (e *Engine) Authorize(ctx context.Context, userID int64, permissionID string, scope Scope) (Decision, error) {
	if _, err := e.registry.Lookup(permissionID); err != nil {
		return Decision{}, err
	}

	if d, ok := e.cache.Get(ctx, userID, permissionID, scope); ok {
		return d, nil
	}

	key := flightKey(userID, permissionID, scope)
	ch := e.flight.DoChan(key, func() (interface{}, error) {
		return e.resolve(ctx, userID, permissionID, scope)
	})
	select {
	case <-ctx.Done():
		return Decision{}, fmt.Errorf("%w: %v", ErrDataAccess, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Decision{}, res.Err
		}
		return res.Val.(Decision), nil
	}
}

func (e *Engine) resolve(ctx context.Context, userID int64, permissionID string, scope Scope) (Decision, error) {
	// Snapshot the cache generation before touching the store. An
	// invalidation landing mid-resolution bumps the version past this key,
	// so the write below can never resurrect pre-invalidation state.
	cacheKey, cacheable := e.cache.EntryKey(ctx, userID, permissionID, scope)

	assignments, err := e.assignments.ActiveForUser(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: load assignments: %v", ErrDataAccess, err)
	}

	now := e.clock()
	decision := Decision{}
	roleCache := make(map[string]*Role, len(assignments))

	for _, a := range assignments {
		if !a.IsActive || a.Expired(now) {
			continue
		}
		// Scope is evaluated per-assignment: a unit-scoped role never
		// borrows reach from a global assignment of a different role.
		if !a.Scope.Matches(scope) {
			continue
		}

		role, ok := roleCache[a.RoleID]
		if !ok {
			fetched, err := e.roles.RoleByID(ctx, a.RoleID)
			if err != nil {
				if errors.Is(err, ErrUnknownRole) {
					// Dangling assignment; role deletion cascades, so this
					// indicates drift. Skip it and keep failing closed.
					e.warn("assignment references missing role",
						slog.String("role", a.RoleID), slog.Int64("user", a.UserID))
					roleCache[a.RoleID] = nil
					continue
				}
				return Decision{}, fmt.Errorf("%w: load role %s: %v", ErrDataAccess, a.RoleID, err)
			}
			role = &fetched
			roleCache[a.RoleID] = role
		}
		if role == nil || !role.IsActive {
			continue
		}

		if role.Has(permissionID) {
			decision = Decision{Allowed: true, RoleID: a.RoleID, Scope: a.Scope.Token()}
			break
		}
	}

	if cacheable {
		e.cache.PutAt(ctx, cacheKey, decision)
	}
	return decision, nil
}

func (e *Engine) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func flightKey(userID int64, permissionID string, scope Scope) string {
	return strings.Join([]string{strconv.FormatInt(userID, 10), permissionID, scope.Token()}, "|")
}
