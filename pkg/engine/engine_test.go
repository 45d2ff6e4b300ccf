package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/audit"
	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/cache"
	"github.com/txn2/sql-gateway/pkg/dispatch"
	"github.com/txn2/sql-gateway/pkg/operation"
	"github.com/txn2/sql-gateway/pkg/parser"
	"github.com/txn2/sql-gateway/pkg/registry"
)

const testBackend = "main"

// recordingLogger keeps audit events in memory.
type recordingLogger struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *recordingLogger) Log(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingLogger) Query(context.Context, audit.QueryFilter) ([]audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...), nil
}

func (*recordingLogger) Close() error { return nil }

func (r *recordingLogger) last(t *testing.T) audit.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

type testEngine struct {
	*Engine
	adapter *backend.NoopAdapter
	audit   *recordingLogger
}

func newTestEngine(t *testing.T, extra ...backend.Adapter) testEngine {
	t.Helper()
	reg := registry.NewRegistry()
	noop := backend.NewNoopAdapter(testBackend, backend.Relational)
	require.NoError(t, reg.Register(noop, 0))
	for _, a := range extra {
		require.NoError(t, reg.Register(a, 0))
	}
	reg.Freeze()

	p, err := parser.NewFromNames(nil)
	require.NoError(t, err)
	c := cache.New(cache.Config{})
	rec := &recordingLogger{}
	e := New(p, dispatch.New(reg, c), WithCache(c), WithAuditLogger(rec))
	return testEngine{Engine: e, adapter: noop, audit: rec}
}

func TestExecute_Select(t *testing.T) {
	e := newTestEngine(t)

	resp, err := e.Execute(context.Background(), Request{
		Query:   "SELECT id, name FROM users WHERE id = 1",
		Backend: "MAIN",
		UserID:  "alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, testBackend, resp.Backend)
	assert.Equal(t, parser.DialectMySQL, resp.Dialect)
	assert.Equal(t, operation.Select, resp.Operation.Kind)
	assert.Equal(t, operation.DML, resp.Operation.Category)
	assert.Equal(t, []string{"id", "name"}, resp.Operation.Columns)
	assert.False(t, resp.Cached)
	assert.Equal(t, int64(1), e.adapter.Calls())

	ev := e.audit.last(t)
	assert.Equal(t, resp.RequestID, ev.RequestID)
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, testBackend, ev.Backend)
	assert.Equal(t, "select", ev.Kind)
	assert.Equal(t, "users", ev.Target)
	assert.Equal(t, parser.DialectMySQL, ev.Dialect)
	assert.True(t, ev.Success)
}

func TestExecute_IdempotentReads(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := Request{Query: "SELECT * FROM users", Backend: testBackend}

	first, err := e.Execute(ctx, req)
	require.NoError(t, err)
	second, err := e.Execute(ctx, req)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, int64(1), e.adapter.Calls())
	assert.True(t, e.audit.last(t).Cached)

	stats, ok := e.CacheStats()
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Hits)

	e.ClearCache()
	_, err = e.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.adapter.Calls())
}

func TestExecute_WhitespaceAndCommentsShareCacheEntry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, Request{Query: "SELECT *   FROM users", Backend: testBackend})
	require.NoError(t, err)
	resp, err := e.Execute(ctx, Request{Query: "SELECT * /* again */ FROM users", Backend: testBackend})
	require.NoError(t, err)
	assert.True(t, resp.Cached)
}

func TestExecute_UnknownBackend(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Execute(context.Background(), Request{Query: "SELECT 1 FROM t", Backend: "missing"})
	require.Error(t, err)
	assert.True(t, apperror.IsUnsupportedBackend(err))
	assert.Equal(t, int64(0), e.adapter.Calls())

	ev := e.audit.last(t)
	assert.False(t, ev.Success)
	assert.Equal(t, string(apperror.UnsupportedBackend), ev.ErrorType)
}

func TestExecute_PipelineErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		check func(error) bool
	}{
		{"empty query", Request{Query: "   ", Backend: testBackend}, apperror.IsValidation},
		{"bad backend name", Request{Query: "SELECT 1 FROM t", Backend: "no spaces allowed"}, apperror.IsValidation},
		{"nested option", Request{Query: "SELECT 1 FROM t", Backend: testBackend, Options: map[string]any{"x": []int{1}}}, apperror.IsValidation},
		{"negative timeout", Request{Query: "SELECT 1 FROM t", Backend: testBackend, Options: map[string]any{"timeout": -5}}, apperror.IsValidation},
		{"unparseable", Request{Query: "SELEKT * FROM t", Backend: testBackend}, apperror.IsParse},
		{"insert without columns", Request{Query: "INSERT INTO t VALUES (1, 2)", Backend: testBackend}, apperror.IsExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			_, err := e.Execute(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
			assert.Equal(t, int64(0), e.adapter.Calls())

			var appErr *apperror.Error
			assert.True(t, errors.As(err, &appErr))
		})
	}
}

func TestExecute_InsertValues(t *testing.T) {
	e := newTestEngine(t)

	resp, err := e.Execute(context.Background(), Request{
		Query:   "INSERT INTO t (a, b) VALUES (1, 2)",
		Backend: testBackend,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(2)}, resp.Operation.Values)
}

func TestExecute_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow := &slowAdapter{release: release}
	e := newTestEngine(t, slow)

	start := time.Now()
	_, err := e.Execute(context.Background(), Request{
		Query:   "SELECT * FROM users",
		Backend: "slow",
		Options: map[string]any{"timeout": 25},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, string(apperror.Timeout), e.audit.last(t).ErrorType)
}

func TestExecute_AuditFailureDoesNotFailRequest(t *testing.T) {
	e := newTestEngine(t)
	e.audit.err = errors.New("audit store down")

	_, err := e.Execute(context.Background(), Request{Query: "SELECT * FROM users", Backend: testBackend})
	assert.NoError(t, err)
}

func TestExecute_KeepsCallerRequestID(t *testing.T) {
	e := newTestEngine(t)
	resp, err := e.Execute(context.Background(), Request{
		Query: "SELECT * FROM users", Backend: testBackend, RequestID: "req-fixed",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-fixed", resp.RequestID)
	assert.Equal(t, "req-fixed", e.audit.last(t).RequestID)
}

func TestParse(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("fallback dialect", func(t *testing.T) {
		parsed, err := e.Parse(ctx, "GRANT SELECT ON users TO alice")
		require.NoError(t, err)
		assert.Equal(t, parser.DialectPostgres, parsed.Dialect)
		assert.Equal(t, operation.Grant, parsed.Operation.Kind)
		assert.Equal(t, operation.DCL, parsed.Operation.Category)
	})

	t.Run("savepoint", func(t *testing.T) {
		parsed, err := e.Parse(ctx, "SAVEPOINT s1")
		require.NoError(t, err)
		assert.Equal(t, operation.Savepoint, parsed.Operation.Kind)
		require.NotNil(t, parsed.Operation.Transaction)
		assert.Equal(t, "s1", parsed.Operation.Transaction.Name)
	})

	t.Run("does not dispatch", func(t *testing.T) {
		_, err := e.Parse(ctx, "DELETE FROM users WHERE id = 1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), e.adapter.Calls())
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := e.Parse(ctx, "SELEKT * FROM t")
		assert.True(t, apperror.IsParse(err))
	})

	assert.Equal(t, parser.DefaultDialects, e.Dialects())
}

func TestCacheStats_WithoutCache(t *testing.T) {
	p, err := parser.NewFromNames(nil)
	require.NoError(t, err)
	e := New(p, dispatch.New(registry.NewRegistry(), nil))

	_, ok := e.CacheStats()
	assert.False(t, ok)
	e.ClearCache()
}

// slowAdapter blocks until release is closed.
type slowAdapter struct {
	release chan struct{}
}

func (*slowAdapter) Name() string           { return "slow" }
func (*slowAdapter) Family() backend.Family { return backend.Ledger }
func (*slowAdapter) Close() error           { return nil }

func (s *slowAdapter) Execute(context.Context, *backend.Call) (*backend.Result, error) {
	<-s.release
	return &backend.Result{}, nil
}
