package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// ScopeExtractor derives the target business unit of a request. Routes
// declare their extractor explicitly next to the required permission instead
// of relying on handler metadata.
type ScopeExtractor func(r *http.Request) (Scope, error)

// GlobalTarget targets the global scope; only globally scoped assignments
// satisfy it.
func GlobalTarget() ScopeExtractor {
	return func(*http.Request) (Scope, error) {
		return GlobalScope(), nil
	}
}

// UnitFromURLParam reads the business unit from a chi URL parameter.
func UnitFromURLParam(name string) ScopeExtractor {
	return func(r *http.Request) (Scope, error) {
		return ParseScope(chi.URLParam(r, name))
	}
}

// UnitFromQuery reads the business unit from a query parameter.
func UnitFromQuery(name string) ScopeExtractor {
	return func(r *http.Request) (Scope, error) {
		return ParseScope(r.URL.Query().Get(name))
	}
}

// Requirement pairs the permission a route demands with the extractor that
// locates its target business unit.
type Requirement struct {
	Permission string
	ScopeFrom  ScopeExtractor
}

// DecisionObserver receives decision outcomes for metrics.
type DecisionObserver interface {
	ObserveDecision(outcome string)
}

// OwnershipVerifier checks whether a user owns a resource instance.
type OwnershipVerifier interface {
	Owns(ctx context.Context, userID int64, resourceID string) (bool, error)
}

// Guard wires the resolution engine into chi middleware.
type Guard struct {
	Engine   *Engine
	Logger   *slog.Logger
	Audit    *shared.AuditLogger
	Observer DecisionObserver
}

// Require builds middleware enforcing the requirement. Denials are recorded
// through the audit logger; engine errors follow the fail-closed path.
func (g Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := g.principal(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			scope, err := req.ScopeFrom(r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}

			decision, err := g.Engine.Authorize(r.Context(), userID, req.Permission, scope)
			if err != nil {
				if errors.Is(err, ErrDataAccess) {
					// Availability failure: deny, never allow.
					g.error("authorize store failure", err, r)
					g.observe("error")
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
				// Unknown permission and the like are caller bugs.
				g.error("authorize", err, r)
				g.observe("error")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if !decision.Allowed {
				g.observe("deny")
				g.recordDenial(r, userID, req.Permission, scope)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			g.observe("allow")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner enforces resource ownership on top of a permission check.
// Ownership that cannot be verified is a Deny.
func (g Guard) RequireOwner(verifier OwnershipVerifier, idParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := g.principal(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			resourceID := chi.URLParam(r, idParam)
			owns, err := verifier.Owns(r.Context(), userID, resourceID)
			if err != nil {
				g.error("ownership check", err, r)
				g.observe("error")
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !owns {
				g.observe("deny")
				g.recordOwnershipDenial(r, userID, resourceID)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			g.observe("allow")
			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) principal(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Error("parse principal id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func (g Guard) recordDenial(r *http.Request, userID int64, permissionID string, scope Scope) {
	if g.Audit == nil {
		return
	}
	err := g.Audit.Record(r.Context(), shared.AuditLog{
		ActorID:  userID,
		Action:   "authz.deny",
		Entity:   "permission",
		EntityID: permissionID,
		Meta: map[string]any{
			"scope": scope.Token(),
			"path":  r.URL.Path,
		},
	})
	if err != nil && g.Logger != nil {
		g.Logger.Warn("record denial", slog.Any("error", err))
	}
}

func (g Guard) recordOwnershipDenial(r *http.Request, userID int64, resourceID string) {
	if g.Audit == nil {
		return
	}
	err := g.Audit.Record(r.Context(), shared.AuditLog{
		ActorID:  userID,
		Action:   "authz.deny",
		Entity:   "resource",
		EntityID: resourceID,
		Meta: map[string]any{
			"path": r.URL.Path,
		},
	})
	if err != nil && g.Logger != nil {
		g.Logger.Warn("record denial", slog.Any("error", err))
	}
}

func (g Guard) observe(outcome string) {
	if g.Observer != nil {
		g.Observer.ObserveDecision(outcome)
	}
}

func (g Guard) error(msg string, err error, r *http.Request) {
	if g.Logger != nil {
		g.Logger.Error(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
}
