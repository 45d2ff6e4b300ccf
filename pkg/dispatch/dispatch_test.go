package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/cache"
	"github.com/txn2/sql-gateway/pkg/operation"
)

const testBackend = "main"

// fakeAdapter records calls and delegates to fn.
type fakeAdapter struct {
	name   string
	family backend.Family
	fn     func(ctx context.Context, call *backend.Call) (*backend.Result, error)

	mu    sync.Mutex
	calls []*backend.Call
	count atomic.Int64
}

func (f *fakeAdapter) Name() string           { return f.name }
func (f *fakeAdapter) Family() backend.Family { return f.family }
func (f *fakeAdapter) Close() error           { return nil }

func (f *fakeAdapter) Execute(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	f.count.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, call)
	}
	return &backend.Result{Rows: []map[string]any{{"ok": true}}, Affected: 1}, nil
}

func (f *fakeAdapter) lastCall(t *testing.T) *backend.Call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

// fakeRegistry is a map of adapters with optional timeouts.
type fakeRegistry struct {
	adapters map[string]backend.Adapter
	timeouts map[string]time.Duration
}

func (r *fakeRegistry) Get(name string) (backend.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *fakeRegistry) Timeout(name string) time.Duration {
	return r.timeouts[name]
}

func newTestDispatcher(t *testing.T, a *fakeAdapter, opts ...Option) (*Dispatcher, *cache.Cache) {
	t.Helper()
	if a.name == "" {
		a.name = testBackend
	}
	if a.family == "" {
		a.family = backend.Relational
	}
	reg := &fakeRegistry{
		adapters: map[string]backend.Adapter{a.name: a},
		timeouts: map[string]time.Duration{},
	}
	c := cache.New(cache.Config{})
	return New(reg, c, opts...), c
}

func selectOp() *operation.Operation {
	return &operation.Operation{
		Category: operation.DML,
		Kind:     operation.Select,
		Target:   "users",
		Columns:  []string{"*"},
		Source:   "SELECT * FROM users",
	}
}

func TestDispatch_UnknownBackend(t *testing.T) {
	a := &fakeAdapter{}
	d, _ := newTestDispatcher(t, a)

	_, err := d.Dispatch(context.Background(), selectOp(), "missing", nil)
	require.Error(t, err)
	assert.True(t, apperror.IsUnsupportedBackend(err))
	assert.Equal(t, int64(0), a.count.Load(), "no adapter may be invoked")
}

func TestDispatch_ShapesCallsPerCategory(t *testing.T) {
	a := &fakeAdapter{}
	d, _ := newTestDispatcher(t, a)
	ctx := context.Background()

	insert := &operation.Operation{
		Category: operation.DML, Kind: operation.Insert, Target: "users",
		Columns: []string{"a", "b"}, Values: map[string]any{"a": int64(1), "b": int64(2)},
	}
	_, err := d.Dispatch(ctx, insert, testBackend, operation.Options{"x": 1})
	require.NoError(t, err)
	call := a.lastCall(t)
	assert.Equal(t, []string{"a", "b"}, call.Columns())
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(2)}, call.Values())
	assert.Equal(t, operation.Options{"x": 1}, call.Options)

	def := &operation.Definition{Columns: []operation.ColumnDef{{Name: "id", Type: "int"}}}
	_, err = d.Dispatch(ctx, &operation.Operation{Category: operation.DDL, Kind: operation.Create, Target: "t", Definition: def}, testBackend, nil)
	require.NoError(t, err)
	assert.Same(t, def, a.lastCall(t).Definition())

	grant := &operation.Operation{
		Category: operation.DCL, Kind: operation.Grant, Target: "t",
		Privileges: []string{"select"}, Principals: []string{"alice"},
	}
	_, err = d.Dispatch(ctx, grant, testBackend, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"select"}, a.lastCall(t).Privileges())
	assert.Equal(t, []string{"alice"}, a.lastCall(t).Principals())

	tx := &operation.Operation{
		Category: operation.TCL, Kind: operation.Savepoint, Target: "ignored",
		Transaction: &operation.TransactionInfo{Kind: operation.Savepoint, Name: "s1"},
	}
	_, err = d.Dispatch(ctx, tx, testBackend, nil)
	require.NoError(t, err)
	assert.Empty(t, a.lastCall(t).Target)
	assert.Equal(t, "s1", a.lastCall(t).Transaction().Name)
}

func TestDispatch_IdempotentReadsHitCache(t *testing.T) {
	a := &fakeAdapter{}
	d, c := newTestDispatcher(t, a)
	ctx := context.Background()

	first, err := d.Execute(ctx, selectOp(), testBackend, nil)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := d.Execute(ctx, selectOp(), testBackend, nil)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result, second.Result)

	assert.Equal(t, int64(1), a.count.Load())
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestDispatch_CacheOptOutAndWrites(t *testing.T) {
	tests := []struct {
		name string
		op   func() *operation.Operation
		opts operation.Options
	}{
		{"cache false", selectOp, operation.Options{"cache": false}},
		{"noCache", selectOp, operation.Options{"noCache": true}},
		{"delete", func() *operation.Operation {
			return &operation.Operation{Category: operation.DML, Kind: operation.Delete, Target: "users", Source: "DELETE FROM users"}
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAdapter{}
			d, c := newTestDispatcher(t, a)
			for range 2 {
				_, err := d.Dispatch(context.Background(), tt.op(), testBackend, tt.opts)
				require.NoError(t, err)
			}
			assert.Equal(t, int64(2), a.count.Load())
			assert.Equal(t, 0, c.Stats().Size)
		})
	}
}

func TestDispatch_FailedReadsAreNotCached(t *testing.T) {
	a := &fakeAdapter{fn: func(context.Context, *backend.Call) (*backend.Result, error) {
		return nil, errors.New("connection refused")
	}}
	d, c := newTestDispatcher(t, a)

	_, err := d.Dispatch(context.Background(), selectOp(), testBackend, nil)
	require.Error(t, err)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	a := &fakeAdapter{fn: func(context.Context, *backend.Call) (*backend.Result, error) {
		<-release // ignores ctx, as a blocking client would
		return &backend.Result{}, nil
	}}
	d, _ := newTestDispatcher(t, a)

	start := time.Now()
	out, err := d.Execute(context.Background(), selectOp(), testBackend, operation.Options{"timeout": 30})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, apperror.IsTimeout(err), "got %v", err)
	assert.Less(t, elapsed, time.Second)
}

func TestDispatch_ParentCanceled(t *testing.T) {
	a := &fakeAdapter{fn: func(ctx context.Context, _ *backend.Call) (*backend.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d, _ := newTestDispatcher(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Dispatch(ctx, selectOp(), testBackend, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsAdapter(err))
	e, _ := apperror.As(err)
	assert.Equal(t, "request canceled", e.Message)
}

func TestDispatch_AdapterPanic(t *testing.T) {
	a := &fakeAdapter{fn: func(context.Context, *backend.Call) (*backend.Result, error) {
		panic("boom")
	}}
	d, _ := newTestDispatcher(t, a)

	_, err := d.Dispatch(context.Background(), selectOp(), testBackend, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsAdapter(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestDispatch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    apperror.Kind
		message string
	}{
		{"unsupported kind", backend.UnsupportedKind(backend.PubSub, operation.Delete), apperror.UnsupportedBackend, "pubsub backend cannot run delete"},
		{"unsupported refinement", backend.ErrUnsupportedRefinement, apperror.UnsupportedBackend, ""},
		{"unsupported predicate", backend.ErrUnsupportedPredicate, apperror.UnsupportedBackend, ""},
		{"unsafe name", backend.ErrUnsafeName, apperror.UnsupportedBackend, ""},
		{"deadline from adapter", context.DeadlineExceeded, apperror.Timeout, ""},
		{"plain error", errors.New("duplicate key value"), apperror.Adapter, "duplicate key value"},
		{"typed error", apperror.New(apperror.Validation, "bad"), apperror.Validation, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAdapter{fn: func(context.Context, *backend.Call) (*backend.Result, error) {
				return nil, tt.err
			}}
			d, _ := newTestDispatcher(t, a)
			_, err := d.Dispatch(context.Background(), selectOp(), testBackend, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperror.KindOf(err))
			if tt.message != "" {
				e, _ := apperror.As(err)
				assert.True(t, strings.HasPrefix(e.Message, tt.message), "message %q", e.Message)
			}
		})
	}
}

func TestDispatch_TimeoutResolution(t *testing.T) {
	a := &fakeAdapter{}
	reg := &fakeRegistry{
		adapters: map[string]backend.Adapter{testBackend: a},
		timeouts: map[string]time.Duration{testBackend: 3 * time.Second},
	}
	d := New(reg, nil, WithConfig(Config{DefaultTimeout: 7 * time.Second}))

	assert.Equal(t, 250*time.Millisecond, d.timeoutFor(testBackend, operation.Options{"timeout": 250}))
	assert.Equal(t, 3*time.Second, d.timeoutFor(testBackend, operation.Options{"timeout": 0}))
	assert.Equal(t, 7*time.Second, d.timeoutFor("other", nil))

	out, err := d.Execute(context.Background(), selectOp(), testBackend, nil)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, out.Timeout)
	assert.False(t, out.Cached)
}

func TestDispatch_NilResultBecomesEmpty(t *testing.T) {
	a := &fakeAdapter{fn: func(context.Context, *backend.Call) (*backend.Result, error) {
		return nil, nil
	}}
	d, _ := newTestDispatcher(t, a)
	res, err := d.Dispatch(context.Background(), selectOp(), testBackend, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.Rows)
}

func TestDispatch_CacheKeyErrorFallsThrough(t *testing.T) {
	a := &fakeAdapter{}
	d, _ := newTestDispatcher(t, a)

	res, err := d.Dispatch(context.Background(), selectOp(), testBackend, operation.Options{"bad": make(chan int)})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, int64(1), a.count.Load())
}

// panickingCache fails every operation with a panic.
type panickingCache struct{}

func (panickingCache) Get(string, string, operation.Options) (*backend.Result, bool, error) {
	panic("corrupted")
}

func (panickingCache) Put(string, string, operation.Options, *backend.Result, time.Duration) error {
	panic("corrupted")
}

func TestDispatch_CachePanicIsAMiss(t *testing.T) {
	a := &fakeAdapter{name: testBackend, family: backend.KeyValue}
	reg := &fakeRegistry{adapters: map[string]backend.Adapter{testBackend: a}}
	d := New(reg, panickingCache{})

	out, err := d.Execute(context.Background(), selectOp(), testBackend, nil)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, backend.KeyValue, out.Family)
	assert.Equal(t, int64(1), a.count.Load())
}

func TestDispatch_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	a := &fakeAdapter{}
	d, _ := newTestDispatcher(t, a, WithMetrics(m))
	ctx := context.Background()

	_, _ = d.Dispatch(ctx, selectOp(), testBackend, nil)
	_, _ = d.Dispatch(ctx, selectOp(), testBackend, nil)
	_, _ = d.Dispatch(ctx, selectOp(), "missing", nil)

	assert.InDelta(t, 2, testutil.ToFloat64(m.dispatches.WithLabelValues(testBackend, "select", statusOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dispatches.WithLabelValues("missing", "select", string(apperror.UnsupportedBackend))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues(lookupHit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues(lookupMiss)), 0)
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
