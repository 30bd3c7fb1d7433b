package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	p := Permission{ID: "projects:create", Name: "Create projects"}
	require.NoError(t, r.Register(p))

	// Identical re-registration is a no-op.
	require.NoError(t, r.Register(p))

	// Same id, different definition conflicts.
	err := r.Register(Permission{ID: "projects:create", Name: "Something else"})
	require.ErrorIs(t, err, ErrPermissionConflict)

	// Malformed ids are rejected outright.
	require.Error(t, r.Register(Permission{ID: "projects"}))

	// Module/action must agree with the id when set explicitly.
	require.Error(t, r.Register(Permission{ID: "projects:read", Module: "finance", Action: "read"}))
}

func TestRegistryFreeze(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Permission{ID: "projects:read"}))
	r.Freeze()

	err := r.Register(Permission{ID: "projects:create"})
	require.ErrorIs(t, err, ErrRegistryFrozen)

	p, err := r.Lookup("projects:read")
	require.NoError(t, err)
	require.Equal(t, "projects", p.Module)
	require.Equal(t, "read", p.Action)
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("projects:teleport")
	require.ErrorIs(t, err, ErrUnknownPermission)
	require.False(t, r.Has("projects:teleport"))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Permission{ID: "finance:read"}))
	require.NoError(t, r.Register(Permission{ID: "contracts:read"}))
	require.NoError(t, r.Register(Permission{ID: "projects:read"}))

	list := r.List()
	require.Len(t, list, 3)
	require.Equal(t, "contracts:read", list[0].ID)
	require.Equal(t, "finance:read", list[1].ID)
	require.Equal(t, "projects:read", list[2].ID)
}

func TestDefaultRegistryIsFrozen(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	require.True(t, r.Has(PermSystemRoles))
	require.ErrorIs(t, r.Register(Permission{ID: "projects:demolish"}), ErrRegistryFrozen)
}
