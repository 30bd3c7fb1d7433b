package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestObserveDecision(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision("allow")
	m.ObserveDecision("allow")
	m.ObserveDecision("deny")

	body := scrape(t, m)
	require.Contains(t, body, `keystone_authz_decisions_total{outcome="allow"} 2`)
	require.Contains(t, body, `keystone_authz_decisions_total{outcome="deny"} 1`)
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/roles/{roleID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/roles/pm", nil))
	require.Equal(t, http.StatusNoContent, res.Code)

	body := scrape(t, m)
	require.Contains(t, body, `keystone_http_requests_total{code="204",route="/roles/{roleID}"} 1`)
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("allow")

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	require.True(t, strings.Contains(body, "keystone_"), "expected keystone metrics in scrape")
	return body
}
