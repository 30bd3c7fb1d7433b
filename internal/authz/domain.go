// Package authz implements the authorization core: the permission
// registry, the resolution engine deciding (user, permission, scope)
// requests, and the redis-backed decision cache.
package authz

import (
	"fmt"
	"strings"
	"time"
)

// GlobalScopeToken is the persisted sentinel for assignments that cover
// every business unit. It exists only in storage and transport; in-process
// code uses Scope.
const GlobalScopeToken = "*"

// Scope bounds an assignment or a request to a business unit, or marks it
// as covering all units.
type Scope struct {
	unit   string
	global bool
}

// GlobalScope returns the scope covering every business unit.
func GlobalScope() Scope {
	return Scope{global: true}
}

// UnitScope returns the scope bound to a single business unit code.
func UnitScope(code string) Scope {
	return Scope{unit: strings.TrimSpace(code)}
}

// ParseScope converts a stored or transported token into a Scope.
func ParseScope(token string) (Scope, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Scope{}, fmt.Errorf("authz: empty scope token")
	}
	if token == GlobalScopeToken {
		return GlobalScope(), nil
	}
	return UnitScope(token), nil
}

// IsGlobal reports whether the scope covers all business units.
func (s Scope) IsGlobal() bool {
	return s.global
}

// Unit returns the business unit code, empty for the global scope.
func (s Scope) Unit() string {
	if s.global {
		return ""
	}
	return s.unit
}

// Token renders the scope in its persisted form.
func (s Scope) Token() string {
	if s.global {
		return GlobalScopeToken
	}
	return s.unit
}

// Matches reports whether an assignment carrying this scope satisfies a
// request for the target scope. A global assignment satisfies any target; a
// unit assignment satisfies only requests for the same unit. A request for
// the global scope is satisfied only by global assignments.
func (s Scope) Matches(target Scope) bool {
	if s.global {
		return true
	}
	return !target.global && s.unit == target.unit
}

func (s Scope) String() string {
	return s.Token()
}

// Permission is an atomic capability identified by "<module>:<action>".
type Permission struct {
	ID          string
	Module      string
	Action      string
	Name        string
	Description string
}

// SplitPermissionID breaks a permission identifier into its module and
// action parts, validating the "<module>:<action>" shape.
func SplitPermissionID(id string) (module, action string, err error) {
	module, action, ok := strings.Cut(id, ":")
	if !ok || module == "" || action == "" {
		return "", "", fmt.Errorf("authz: malformed permission id %q", id)
	}
	return module, action, nil
}

// Role is the engine's view of a role: identity, activation state, and the
// permission set it grants. Level orders roles for display and never feeds
// into resolution.
type Role struct {
	ID          string
	Name        string
	Level       int
	IsSystem    bool
	IsActive    bool
	Permissions map[string]struct{}
}

// Has reports whether the role grants the permission.
func (r Role) Has(permissionID string) bool {
	_, ok := r.Permissions[permissionID]
	return ok
}

// Assignment grants a role to a user within a scope, optionally bounded in
// time. The (UserID, RoleID, Scope) triple is unique; granting it again is
// an upsert, never a second row.
type Assignment struct {
	UserID    int64
	RoleID    string
	Scope     Scope
	IsActive  bool
	GrantedBy int64
	GrantedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the assignment's validity window has closed.
func (a Assignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// Decision is the outcome of a resolution, with the provenance the calling
// guard hands to the audit trail.
type Decision struct {
	Allowed bool   `json:"allowed"`
	RoleID  string `json:"role_id,omitempty"`
	Scope   string `json:"scope,omitempty"`
}

// Clock supplies the current instant. Injected so expiry and TTL behavior
// stay deterministic under test.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}
