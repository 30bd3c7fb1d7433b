package roles

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keystone-erp/keystone-erp/internal/authz"
)

type memoryRoleRepo struct {
	roles map[string]Role
	perms map[string]map[string]struct{}
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles: make(map[string]Role),
		perms: make(map[string]map[string]struct{}),
	}
}

func (r *memoryRoleRepo) Create(ctx context.Context, role Role) error {
	if _, ok := r.roles[role.ID]; ok {
		return fmt.Errorf("%w: %s", authz.ErrRoleExists, role.ID)
	}
	r.roles[role.ID] = role
	r.perms[role.ID] = make(map[string]struct{})
	return nil
}

func (r *memoryRoleRepo) GetByID(ctx context.Context, id string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", authz.ErrUnknownRole, id)
	}
	role.Permissions = nil
	for p := range r.perms[id] {
		role.Permissions = append(role.Permissions, p)
	}
	return role, nil
}

func (r *memoryRoleRepo) List(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for id := range r.roles {
		role, _ := r.GetByID(ctx, id)
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRoleRepo) SetActive(ctx context.Context, id string, active bool) error {
	role, ok := r.roles[id]
	if !ok {
		return fmt.Errorf("%w: %s", authz.ErrUnknownRole, id)
	}
	role.IsActive = active
	r.roles[id] = role
	return nil
}

func (r *memoryRoleRepo) Delete(ctx context.Context, id string) error {
	delete(r.roles, id)
	delete(r.perms, id)
	return nil
}

func (r *memoryRoleRepo) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	r.perms[roleID][permissionID] = struct{}{}
	return nil
}

func (r *memoryRoleRepo) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	delete(r.perms[roleID], permissionID)
	return nil
}

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) InvalidateAll(ctx context.Context) error {
	c.calls++
	return c.err
}

func newRoleService(t *testing.T) (*Service, *memoryRoleRepo, *countingInvalidator) {
	t.Helper()
	registry, err := authz.NewDefaultRegistry()
	require.NoError(t, err)
	repo := newMemoryRoleRepo()
	inv := &countingInvalidator{}
	return NewService(repo, registry, inv, nil), repo, inv
}

func TestCreateRoleValidatesSlug(t *testing.T) {
	svc, _, _ := newRoleService(t)
	ctx := context.Background()

	for _, bad := range []string{"", "PM", "1pm", "pm role", "x"} {
		_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: bad, Name: "Bad"})
		require.Error(t, err, bad)
	}

	role, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "site_engineer", Name: "Site Engineer", Level: 200})
	require.NoError(t, err)
	require.True(t, role.IsActive)
}

func TestCreateSystemRoleNeedsSuperAdmin(t *testing.T) {
	svc, _, _ := newRoleService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "root", Name: "Root", IsSystem: true})
	require.ErrorIs(t, err, authz.ErrProtectedRole)

	_, err = svc.Create(ctx, Actor{UserID: 1, SuperAdmin: true}, Role{ID: "root", Name: "Root", IsSystem: true})
	require.NoError(t, err)
}

func TestGrantPermission(t *testing.T) {
	svc, repo, inv := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "pm", Name: "Project Manager"})
	require.NoError(t, err)
	inv.calls = 0

	require.NoError(t, svc.GrantPermission(ctx, "pm", authz.PermProjectsRead))
	require.Equal(t, 1, inv.calls, "grant invalidates the decision cache")

	role, err := repo.GetByID(ctx, "pm")
	require.NoError(t, err)
	require.Contains(t, role.Permissions, authz.PermProjectsRead)

	// Unknown permission ids never reach the store.
	err = svc.GrantPermission(ctx, "pm", "projects:teleport")
	require.ErrorIs(t, err, authz.ErrUnknownPermission)
	require.Equal(t, 1, inv.calls)

	// Unknown role surfaces as such.
	err = svc.GrantPermission(ctx, "ghost", authz.PermProjectsRead)
	require.ErrorIs(t, err, authz.ErrUnknownRole)
}

func TestRevokePermission(t *testing.T) {
	svc, repo, inv := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "pm", Name: "Project Manager"})
	require.NoError(t, err)
	require.NoError(t, svc.GrantPermission(ctx, "pm", authz.PermProjectsRead))
	inv.calls = 0

	require.NoError(t, svc.RevokePermission(ctx, "pm", authz.PermProjectsRead))
	require.Equal(t, 1, inv.calls)

	role, err := repo.GetByID(ctx, "pm")
	require.NoError(t, err)
	require.NotContains(t, role.Permissions, authz.PermProjectsRead)

	// Revoking an absent permission is a no-op, but still invalidates.
	require.NoError(t, svc.RevokePermission(ctx, "pm", authz.PermProjectsRead))
}

func TestDeactivateProtectsSystemRoles(t *testing.T) {
	svc, repo, _ := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1, SuperAdmin: true}, Role{ID: "super_admin", Name: "Super Admin", IsSystem: true})
	require.NoError(t, err)

	err = svc.Deactivate(ctx, Actor{UserID: 2}, "super_admin")
	require.ErrorIs(t, err, authz.ErrProtectedRole)

	require.NoError(t, svc.Deactivate(ctx, Actor{UserID: 2, SuperAdmin: true}, "super_admin"))
	role, err := repo.GetByID(ctx, "super_admin")
	require.NoError(t, err)
	require.False(t, role.IsActive)

	require.NoError(t, svc.Activate(ctx, Actor{UserID: 2, SuperAdmin: true}, "super_admin"))
	role, err = repo.GetByID(ctx, "super_admin")
	require.NoError(t, err)
	require.True(t, role.IsActive)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	svc, _, inv := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "pm", Name: "Project Manager"})
	require.NoError(t, err)
	inv.calls = 0

	require.NoError(t, svc.Deactivate(ctx, Actor{UserID: 1}, "pm"))
	require.Equal(t, 1, inv.calls)

	// Already inactive: nothing changes, no invalidation.
	require.NoError(t, svc.Deactivate(ctx, Actor{UserID: 1}, "pm"))
	require.Equal(t, 1, inv.calls)
}

func TestDeleteSystemRoleForbidden(t *testing.T) {
	svc, _, _ := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1, SuperAdmin: true}, Role{ID: "super_admin", Name: "Super Admin", IsSystem: true})
	require.NoError(t, err)

	err = svc.Delete(ctx, Actor{UserID: 1, SuperAdmin: true}, "super_admin")
	require.ErrorIs(t, err, authz.ErrProtectedRole, "system roles are never deletable")
}

func TestDeleteRole(t *testing.T) {
	svc, repo, inv := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "pm", Name: "Project Manager"})
	require.NoError(t, err)
	inv.calls = 0

	require.NoError(t, svc.Delete(ctx, Actor{UserID: 1}, "pm"))
	require.Equal(t, 1, inv.calls)
	_, err = repo.GetByID(ctx, "pm")
	require.ErrorIs(t, err, authz.ErrUnknownRole)
}

func TestInvalidationFailureSurfaces(t *testing.T) {
	svc, _, inv := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "pm", Name: "Project Manager"})
	require.NoError(t, err)

	inv.err = fmt.Errorf("redis down")
	err = svc.GrantPermission(ctx, "pm", authz.PermProjectsRead)
	require.Error(t, err, "a failed cache bump must not be silently swallowed")
}

func TestRoleByIDAdaptsToEngine(t *testing.T) {
	svc, _, _ := newRoleService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, Actor{UserID: 1}, Role{ID: "pm", Name: "Project Manager", Level: 500})
	require.NoError(t, err)
	require.NoError(t, svc.GrantPermission(ctx, "pm", authz.PermProjectsRead))

	role, err := svc.RoleByID(ctx, "pm")
	require.NoError(t, err)
	require.True(t, role.IsActive)
	require.True(t, role.Has(authz.PermProjectsRead))
	require.False(t, role.Has(authz.PermFinancePost))

	_, err = svc.RoleByID(ctx, "ghost")
	require.ErrorIs(t, err, authz.ErrUnknownRole)
}
