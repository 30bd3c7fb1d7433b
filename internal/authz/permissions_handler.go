package authz

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
)

// PermissionsHandler exposes the frozen permission registry for
// administrative tooling.
type PermissionsHandler struct {
	registry *Registry
	guard    Guard
}

// NewPermissionsHandler builds a PermissionsHandler.
func NewPermissionsHandler(registry *Registry, guard Guard) *PermissionsHandler {
	return &PermissionsHandler{registry: registry, guard: guard}
}

type permissionResponse struct {
	ID          string `json:"id"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// MountRoutes registers the registry listing route.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Requirement{Permission: PermRolesRead, ScopeFrom: GlobalTarget()}))
		r.Get("/", h.list)
	})
}

func (h *PermissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	perms := h.registry.List()
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{
			ID:          p.ID,
			Module:      p.Module,
			Action:      p.Action,
			Name:        p.Name,
			Description: p.Description,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}
