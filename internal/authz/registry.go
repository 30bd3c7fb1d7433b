package authz

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the closed catalog of permission identifiers. It is populated
// once during startup, frozen, and read-only afterwards.
type Registry struct {
	mu     sync.RWMutex
	perms  map[string]Permission
	frozen bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{perms: make(map[string]Permission)}
}

// Register adds a permission to the catalog. Re-registering an identical
// definition is a no-op; the same id with a different definition fails with
// ErrPermissionConflict. Registration after Freeze fails.
func (r *Registry) Register(p Permission) error {
	module, action, err := SplitPermissionID(p.ID)
	if err != nil {
		return err
	}
	if p.Module == "" {
		p.Module = module
	}
	if p.Action == "" {
		p.Action = action
	}
	if p.Module != module || p.Action != action {
		return fmt.Errorf("authz: permission %q module/action mismatch", p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, p.ID)
	}
	if existing, ok := r.perms[p.ID]; ok {
		if existing == p {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrPermissionConflict, p.ID)
	}
	r.perms[p.ID] = p
	return nil
}

// Freeze seals the catalog. Lookups after Freeze take the read lock only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the permission for the id or ErrUnknownPermission.
func (r *Registry) Lookup(id string) (Permission, error) {
	r.mu.RLock()
	p, ok := r.perms[id]
	r.mu.RUnlock()
	if !ok {
		return Permission{}, fmt.Errorf("%w: %q", ErrUnknownPermission, id)
	}
	return p, nil
}

// Has reports whether the id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	_, ok := r.perms[id]
	r.mu.RUnlock()
	return ok
}

// List returns every registered permission ordered by id.
func (r *Registry) List() []Permission {
	r.mu.RLock()
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
