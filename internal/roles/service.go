package roles

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/keystone-erp/keystone-erp/internal/authz"
)

// RepositoryPort defines data access methods for the role catalog.
type RepositoryPort interface {
	Create(ctx context.Context, role Role) error
	GetByID(ctx context.Context, id string) (Role, error)
	List(ctx context.Context) ([]Role, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	AttachPermission(ctx context.Context, roleID, permissionID string) error
	DetachPermission(ctx context.Context, roleID, permissionID string) error
}

// Invalidator clears cached decisions after catalog mutations. Role changes
// affect every holder, so the whole cache goes.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

var roleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// Service handles role catalog business logic.
type Service struct {
	repo     RepositoryPort
	registry *authz.Registry
	cache    Invalidator
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, registry *authz.Registry, cache Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, registry: registry, cache: cache, logger: logger}
}

// Create registers a new role. The id must be a lowercase slug.
func (s *Service) Create(ctx context.Context, actor Actor, role Role) (Role, error) {
	role.ID = strings.TrimSpace(role.ID)
	role.Name = strings.TrimSpace(role.Name)
	if !roleIDPattern.MatchString(role.ID) {
		return Role{}, fmt.Errorf("roles: invalid role id %q", role.ID)
	}
	if role.Name == "" {
		return Role{}, fmt.Errorf("roles: role name required")
	}
	if role.IsSystem && !actor.SuperAdmin {
		return Role{}, fmt.Errorf("%w: only super-admins create system roles", authz.ErrProtectedRole)
	}
	role.IsActive = true
	if err := s.repo.Create(ctx, role); err != nil {
		return Role{}, err
	}
	return s.repo.GetByID(ctx, role.ID)
}

// Get fetches a role with its permission set.
func (s *Service) Get(ctx context.Context, id string) (Role, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// GrantPermission adds a permission to the role's set. Idempotent. The
// permission must exist in the registry.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	if _, err := s.registry.Lookup(permissionID); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	return s.invalidate(ctx, "grant permission", roleID)
}

// RevokePermission removes a permission from the role's set. Revoking a
// permission the role does not hold is a no-op.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	if _, err := s.registry.Lookup(permissionID); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	return s.invalidate(ctx, "revoke permission", roleID)
}

// Deactivate disables the role so it contributes no permissions. System
// roles require a super-admin actor.
func (s *Service) Deactivate(ctx context.Context, actor Actor, roleID string) error {
	return s.setActive(ctx, actor, roleID, false)
}

// Activate re-enables a previously deactivated role, under the same
// protection rules as Deactivate.
func (s *Service) Activate(ctx context.Context, actor Actor, roleID string) error {
	return s.setActive(ctx, actor, roleID, true)
}

func (s *Service) setActive(ctx context.Context, actor Actor, roleID string, active bool) error {
	role, err := s.repo.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem && !actor.SuperAdmin {
		return fmt.Errorf("%w: %s", authz.ErrProtectedRole, roleID)
	}
	if role.IsActive == active {
		return nil
	}
	if err := s.repo.SetActive(ctx, roleID, active); err != nil {
		return err
	}
	return s.invalidate(ctx, "set active", roleID)
}

// Delete removes a role and cascades removal of its assignments. System
// roles are never deletable.
func (s *Service) Delete(ctx context.Context, actor Actor, roleID string) error {
	role, err := s.repo.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s cannot be deleted", authz.ErrProtectedRole, roleID)
	}
	if err := s.repo.Delete(ctx, roleID); err != nil {
		return err
	}
	return s.invalidate(ctx, "delete", roleID)
}

// RoleByID adapts the catalog to the engine's RoleSource.
func (s *Service) RoleByID(ctx context.Context, id string) (authz.Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return authz.Role{}, err
	}
	perms := make(map[string]struct{}, len(role.Permissions))
	for _, p := range role.Permissions {
		perms[p] = struct{}{}
	}
	return authz.Role{
		ID:          role.ID,
		Name:        role.Name,
		Level:       role.Level,
		IsSystem:    role.IsSystem,
		IsActive:    role.IsActive,
		Permissions: perms,
	}, nil
}

// invalidate clears the decision cache synchronously; the mutation has
// already been committed, so a failed bump must surface to the caller
// rather than leave stale allows behind.
func (s *Service) invalidate(ctx context.Context, op, roleID string) error {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("invalidate decision cache", slog.String("op", op), slog.String("role", roleID), slog.Any("error", err))
		}
		return fmt.Errorf("roles: %s %s: invalidate cache: %w", op, roleID, err)
	}
	return nil
}
