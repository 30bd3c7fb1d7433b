package assignments

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/keystone-erp/keystone-erp/internal/authz"
	"github.com/keystone-erp/keystone-erp/internal/shared"
	_ "github.com/keystone-erp/keystone-erp/internal/testing/guard"
)

type staticRoles struct {
	roles map[string]authz.Role
}

func (s staticRoles) RoleByID(ctx context.Context, id string) (authz.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return authz.Role{}, authz.ErrUnknownRole
	}
	return role, nil
}

func newAssignmentsRouter(t *testing.T) (chi.Router, *memoryAssignmentRepo) {
	t.Helper()
	registry, err := authz.NewDefaultRegistry()
	require.NoError(t, err)

	repo := newMemoryAssignmentRepo()
	service := NewService(repo, &countingUserInvalidator{}, func() time.Time { return serviceNow }, nil)

	// User 42 administers assignments through the admin role.
	require.NoError(t, repo.Upsert(context.Background(), authz.Assignment{
		UserID: 42, RoleID: "admin", Scope: authz.GlobalScope(), IsActive: true, GrantedBy: 42, GrantedAt: serviceNow,
	}))
	roles := staticRoles{roles: map[string]authz.Role{
		"admin": {ID: "admin", IsActive: true, Permissions: map[string]struct{}{
			authz.PermAssignmentsRead:  {},
			authz.PermAssignmentsGrant: {},
		}},
		"pm": {ID: "pm", IsActive: true},
	}}

	engine := authz.NewEngine(registry, service, roles, nil, func() time.Time { return serviceNow }, nil)
	guard := authz.Guard{Engine: engine}
	handler := NewHandler(slog.New(slog.DiscardHandler), service, guard)

	router := chi.NewRouter()
	router.Route("/assignments", handler.MountRoutes)
	return router, repo
}

func adminRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	sess := &shared.Session{}
	sess.SetUser("42")
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

func TestGrantViaHTTP(t *testing.T) {
	router, repo := newAssignmentsRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(http.MethodPost, "/assignments", `{"user_id":7,"role_id":"pm","scope":"TPE"}`))
	require.Equal(t, http.StatusCreated, res.Code)
	require.Contains(t, res.Body.String(), `"granted_by":42`)

	active, err := repo.ActiveForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "TPE", active[0].Scope.Token())
}

func TestGrantInvalidScope(t *testing.T) {
	router, _ := newAssignmentsRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(http.MethodPost, "/assignments", `{"user_id":7,"role_id":"pm","scope":"  "}`))
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGrantPastExpiry(t *testing.T) {
	router, _ := newAssignmentsRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(http.MethodPost, "/assignments",
		`{"user_id":7,"role_id":"pm","scope":"*","expires_at":"2020-01-01T00:00:00Z"}`))
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRevokeViaHTTP(t *testing.T) {
	router, repo := newAssignmentsRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(http.MethodPost, "/assignments", `{"user_id":7,"role_id":"pm","scope":"TPE"}`))
	require.Equal(t, http.StatusCreated, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(http.MethodPost, "/assignments/revoke", `{"user_id":7,"role_id":"pm","scope":"TPE"}`))
	require.Equal(t, http.StatusNoContent, res.Code)

	active, err := repo.ActiveForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestListForUserViaHTTP(t *testing.T) {
	router, _ := newAssignmentsRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(http.MethodGet, "/assignments/users/42", ""))
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"role_id":"admin"`)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, adminRequest(http.MethodGet, "/assignments/users/not-a-number", ""))
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAssignmentRoutesRequireSession(t *testing.T) {
	router, _ := newAssignmentsRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/assignments/users/42", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
