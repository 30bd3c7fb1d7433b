package authz

import "errors"

var (
	// ErrUnknownPermission indicates a permission id absent from the registry.
	// When it reaches Authorize it is a caller bug and is surfaced, never
	// coerced into a Deny.
	ErrUnknownPermission = errors.New("authz: unknown permission")
	// ErrUnknownRole indicates a role id that does not exist.
	ErrUnknownRole = errors.New("authz: unknown role")
	// ErrRoleExists indicates a role id that is already taken.
	ErrRoleExists = errors.New("authz: role already exists")
	// ErrPermissionConflict indicates a permission id registered twice with
	// differing definitions.
	ErrPermissionConflict = errors.New("authz: permission already registered with different definition")
	// ErrProtectedRole indicates a forbidden mutation of a system role.
	ErrProtectedRole = errors.New("authz: system role is protected")
	// ErrInvalidExpiry indicates an assignment expiry that is not in the future.
	ErrInvalidExpiry = errors.New("authz: expiry must be in the future")
	// ErrDataAccess wraps store failures. The engine pairs it with a Deny so
	// availability failures never fail open.
	ErrDataAccess = errors.New("authz: data access failure")
	// ErrRegistryFrozen indicates a registration attempt after boot completed.
	ErrRegistryFrozen = errors.New("authz: registry is frozen")
)
