package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/apperror"
	httpmw "github.com/txn2/sql-gateway/pkg/http"
	"github.com/txn2/sql-gateway/pkg/platform"
)

const (
	testAPIKey = "test-key-123"
	testConfig = `
server:
  max_body_bytes: 512
auth:
  enabled: true
  api_keys:
    - name: ci
      key: test-key-123
backends:
  - name: dry
    kind: noop
  - name: feed
    kind: noop
    config:
      family: pubsub
`
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newServerFromYAML(t, testConfig)
}

func newServerFromYAML(t *testing.T, yaml string) *Server {
	t.Helper()
	cfg, err := platform.ParseConfig([]byte(yaml))
	require.NoError(t, err)
	p, err := platform.New(platform.WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return New(p)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(httpmw.APIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpmw.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return string(body.Error.Type)
}

func TestVersion(t *testing.T) {
	if Version != "dev" {
		t.Errorf("expected Version 'dev', got %q", Version)
	}

	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sql-gateway", decodeBody(t, rec)["name"])
}

func TestQuery(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/query", `{"query":"SELECT id, name FROM users WHERE id = 1","backend":"dry"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "dry", body["backend"])
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, rec.Header().Get(httpmw.RequestIDHeader), body["requestId"])

	op, ok := body["operation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "select", op["kind"])
	assert.Equal(t, "users", op["target"])

	rec = do(t, s, http.MethodPost, "/v1/query", `{"query":"SELECT id, name FROM users WHERE id = 1","backend":"dry"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["cached"])
}

func TestQuery_KeepsCallerRequestID(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"SELECT * FROM t","backend":"dry"}`))
	req.Header.Set(httpmw.APIKeyHeader, testAPIKey)
	req.Header.Set(httpmw.RequestIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "trace-42", decodeBody(t, rec)["requestId"])
}

func TestQuery_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   apperror.Kind
	}{
		{"invalid json", `{"query":`, http.StatusBadRequest, apperror.Validation},
		{"unknown field", `{"query":"SELECT * FROM t","backend":"dry","extra":1}`, http.StatusBadRequest, apperror.Validation},
		{"empty query", `{"query":"","backend":"dry"}`, http.StatusBadRequest, apperror.Validation},
		{"unparseable", `{"query":"SELEKT * FROM t","backend":"dry"}`, http.StatusBadRequest, apperror.Parse},
		{"unknown backend", `{"query":"SELECT * FROM t","backend":"nowhere"}`, http.StatusNotFound, apperror.UnsupportedBackend},
		{"body too large", `{"query":"SELECT * FROM t WHERE note = '` + strings.Repeat("x", 600) + `'","backend":"dry"}`, http.StatusBadRequest, apperror.Validation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/query", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, string(tt.wantType), errorType(t, rec))
		})
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"SELECT * FROM t","backend":"dry"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(apperror.Authentication), errorType(t, rec))

	req = httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParse(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/parse", `{"query":"DELETE FROM orders WHERE id = 7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["dialect"])
	op, ok := body["operation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "delete", op["kind"])
	assert.Equal(t, "orders", op["target"])

	rec = do(t, s, http.MethodPost, "/v1/parse", `{"query":"SELEKT * FROM t"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t)

	do(t, s, http.MethodPost, "/v1/query", `{"query":"SELECT * FROM t","backend":"dry"}`)
	do(t, s, http.MethodPost, "/v1/query", `{"query":"SELECT * FROM t","backend":"dry"}`)

	rec := do(t, s, http.MethodGet, "/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)
	assert.Equal(t, true, stats["enabled"])
	assert.InDelta(t, 1, stats["hits"], 0)
	assert.InDelta(t, 1, stats["size"], 0)

	rec = do(t, s, http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/cache/stats", "")
	assert.InDelta(t, 0, decodeBody(t, rec)["size"], 0)
}

func TestBackends(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/backends", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Backends []backendInfo `json:"backends"`
		Dialects []string      `json:"dialects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []backendInfo{{Name: "dry", Family: "relational"}, {Name: "feed", Family: "pubsub"}}, body.Backends)
	assert.Equal(t, []string{"mysql", "postgres", "generic"}, body.Dialects)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	do(t, s, http.MethodPost, "/v1/query", `{"query":"SELECT * FROM t","backend":"dry"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_dispatch_total")
}

func TestHTTPServer(t *testing.T) {
	s := newTestServer(t)
	srv := s.HTTPServer()
	assert.Equal(t, ":8080", srv.Addr)
	assert.NotZero(t, srv.ReadTimeout)
	assert.NotNil(t, srv.Handler)
}

// withServerSettings adds a line under the server section of testConfig.
func withServerSettings(line string) string {
	return strings.Replace(testConfig, "server:\n", "server:\n  "+line+"\n", 1)
}

func TestRateLimit(t *testing.T) {
	s := newServerFromYAML(t, withServerSettings("rate_limit: {requests: 2, window: 1m}"))
	for range 2 {
		rec := do(t, s, http.MethodGet, "/v1/backends", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/v1/backends", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, string(apperror.RateLimited), errorType(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/v1/backends", nil)
	other.Header.Set(httpmw.APIKeyHeader, testAPIKey)
	other.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code, "each client IP has its own allowance")

	health := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, health)
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are not limited")
}

func TestRateLimit_Disabled(t *testing.T) {
	s := newServerFromYAML(t, withServerSettings("rate_limit: {disabled: true, requests: 1}"))
	for range 3 {
		rec := do(t, s, http.MethodGet, "/v1/backends", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
