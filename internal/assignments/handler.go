package assignments

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

// Handler manages assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Guard
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Guard) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.Requirement{Permission: authz.PermAssignmentsRead, ScopeFrom: authz.GlobalTarget()}))
		r.Get("/users/{userID}", h.listForUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.Requirement{Permission: authz.PermAssignmentsGrant, ScopeFrom: authz.GlobalTarget()}))
		r.Post("/", h.grant)
		r.Post("/revoke", h.revoke)
	})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	scope, err := authz.ParseScope(req.Scope)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Scope", err.Error())
		return
	}
	grantedBy, ok := h.principal(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}
	a, err := h.service.Grant(r.Context(), GrantParams{
		UserID:    req.UserID,
		RoleID:    req.RoleID,
		Scope:     scope,
		GrantedBy: grantedBy,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(a))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	scope, err := authz.ParseScope(req.Scope)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Scope", err.Error())
		return
	}
	if err := h.service.Revoke(r.Context(), req.UserID, req.RoleID, scope); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", "user id must be numeric")
		return
	}
	list, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]assignmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAssignmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": out})
}

func (h *Handler) principal(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrUnknownRole):
		httpx.Problem(w, http.StatusNotFound, "Unknown Role", err.Error())
	case errors.Is(err, authz.ErrInvalidExpiry):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Expiry", err.Error())
	default:
		h.logger.Error("assignments handler", slog.Any("error", err), slog.String("path", r.URL.Path))
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
