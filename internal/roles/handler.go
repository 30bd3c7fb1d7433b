package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keystone-erp/keystone-erp/internal/authz"
	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Handler manages role catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	engine    *authz.Engine
	guard     authz.Guard
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, engine *authz.Engine, guard authz.Guard) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		engine:    engine,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers role catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.Requirement{Permission: authz.PermRolesRead, ScopeFrom: authz.GlobalTarget()}))
		r.Get("/", h.list)
		r.Get("/{roleID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.Requirement{Permission: authz.PermRolesManage, ScopeFrom: authz.GlobalTarget()}))
		r.Post("/", h.create)
		r.Post("/{roleID}/permissions", h.grantPermission)
		r.Delete("/{roleID}/permissions/{permissionID}", h.revokePermission)
		r.Post("/{roleID}/deactivate", h.deactivate)
		r.Post("/{roleID}/activate", h.activate)
		r.Delete("/{roleID}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	role, err := h.service.Create(r.Context(), h.actor(r), Role{
		ID:             req.ID,
		Name:           req.Name,
		LocalizedNames: req.LocalizedNames,
		Level:          req.Level,
		IsSystem:       req.IsSystem,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	var req grantPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	if err := h.service.GrantPermission(r.Context(), chi.URLParam(r, "roleID"), req.PermissionID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	err := h.service.RevokePermission(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "permissionID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), h.actor(r), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Activate(r.Context(), h.actor(r), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), h.actor(r), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actor resolves the acting administrator, elevating to super-admin when the
// engine allows admin:system_roles globally.
func (h *Handler) actor(r *http.Request) Actor {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Actor{}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
	if err != nil {
		return Actor{}
	}
	actor := Actor{UserID: id}
	decision, err := h.engine.Authorize(r.Context(), id, authz.PermSystemRoles, authz.GlobalScope())
	if err == nil && decision.Allowed {
		actor.SuperAdmin = true
	}
	return actor
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrUnknownRole):
		httpx.Problem(w, http.StatusNotFound, "Unknown Role", err.Error())
	case errors.Is(err, authz.ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Permission", err.Error())
	case errors.Is(err, authz.ErrRoleExists):
		httpx.Problem(w, http.StatusConflict, "Role Exists", err.Error())
	case errors.Is(err, authz.ErrProtectedRole):
		httpx.Problem(w, http.StatusForbidden, "Protected Role", err.Error())
	default:
		h.logger.Error("roles handler", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fe.Field()+" "+fe.Tag())
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}
