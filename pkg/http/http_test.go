package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/auth"
)

// tokenAuthenticator accepts exactly one token.
type tokenAuthenticator struct {
	want string
}

func (a tokenAuthenticator) Authenticate(ctx context.Context) (*auth.UserContext, error) {
	if auth.GetToken(ctx) != a.want {
		return nil, errors.New("bad token")
	}
	return &auth.UserContext{UserID: "alice", AuthType: auth.AuthTypeAPIKey}, nil
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uc := auth.GetUserContext(r.Context())
		if uc == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(uc.UserID))
	})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(tokenAuthenticator{want: "secret"})(echoUser())

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"bearer", "Authorization", "Bearer secret", http.StatusOK},
		{"api key", APIKeyHeader, "secret", http.StatusOK},
		{"wrong token", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"no credential", "", "", http.StatusUnauthorized},
		{"basic auth ignored", "Authorization", "Basic c2VjcmV0", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "alice", rec.Body.String())
				return
			}
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apperror.Authentication, body.Error.Type)
			assert.NotContains(t, rec.Body.String(), "bad token", "wrapped cause must not leak")
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "trace-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "trace-123", seen)
		assert.Equal(t, "trace-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("malformed replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "bad id with spaces")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.NotEqual(t, "bad id with spaces", seen)
	})

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   apperror.Kind
	}{
		{apperror.New(apperror.Validation, "bad"), http.StatusBadRequest, apperror.Validation},
		{apperror.New(apperror.Timeout, "slow"), http.StatusGatewayTimeout, apperror.Timeout},
		{apperror.New(apperror.UnsupportedBackend, "missing"), http.StatusNotFound, apperror.UnsupportedBackend},
		{errors.New("plain"), http.StatusBadGateway, apperror.Adapter},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.kind, body.Error.Type)
		assert.NotEmpty(t, body.Error.Timestamp)
	}
}
