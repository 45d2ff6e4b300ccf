package platform

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/audit"
	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/engine"
	"github.com/txn2/sql-gateway/pkg/registry"
)

func newTestConfig(t *testing.T, yamlText string) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(yamlText))
	require.NoError(t, err)
	return cfg
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New()
	assert.EqualError(t, err, "config is required")
}

func TestNew_ValidatesConfig(t *testing.T) {
	cfg := newTestConfig(t, "logging:\n  format: xml\n")
	_, err := New(WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation errors")
}

func TestNew_UnknownBackendKind(t *testing.T) {
	cfg := newTestConfig(t, `
backends:
  - name: main
    kind: mainframe
`)
	_, err := New(WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend kind: mainframe")
}

func TestPlatform_EndToEnd(t *testing.T) {
	cfg := newTestConfig(t, `
backends:
  - name: dry
    kind: noop
  - name: feed
    kind: noop
    config:
      family: pubsub
`)
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	assert.Equal(t, []string{"dry", "feed"}, p.Registry().Names())
	assert.True(t, p.Registry().Frozen())
	assert.False(t, p.Health().IsReady())

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.Health().IsReady())

	resp, err := p.Engine().Execute(ctx, engine.Request{Query: "SELECT * FROM users", Backend: "dry"})
	require.NoError(t, err)
	assert.Equal(t, "dry", resp.Backend)
	assert.False(t, resp.Cached)

	resp, err = p.Engine().Execute(ctx, engine.Request{Query: "SELECT * FROM users", Backend: "dry"})
	require.NoError(t, err)
	assert.True(t, resp.Cached)

	stats, ok := p.Engine().CacheStats()
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Hits)

	families, err := p.Metrics().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "gateway_dispatch_total")
	assert.Contains(t, names, "gateway_cache_lookups_total")

	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, "draining", p.Health().State())
}

func TestPlatform_CacheDisabled(t *testing.T) {
	cfg := newTestConfig(t, `
cache:
  enabled: false
backends:
  - name: dry
    kind: noop
`)
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	_, ok := p.Engine().CacheStats()
	assert.False(t, ok)

	for range 2 {
		resp, err := p.Engine().Execute(context.Background(), engine.Request{Query: "SELECT a FROM t", Backend: "dry"})
		require.NoError(t, err)
		assert.False(t, resp.Cached)
	}
}

func TestPlatform_ProvidedRegistry(t *testing.T) {
	reg := registry.NewRegistry()
	noop := backend.NewNoopAdapter("ledger", backend.Ledger)
	require.NoError(t, reg.Register(noop, 0))

	p, err := New(WithConfig(newTestConfig(t, "{}")), WithRegistry(reg))
	require.NoError(t, err)

	assert.True(t, reg.Frozen())
	_, err = p.Engine().Execute(context.Background(), engine.Request{
		Query:   "INSERT INTO records (id) VALUES (1)",
		Backend: "ledger",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), noop.Calls())
}

func TestPlatform_AuditStores(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p, err := New(WithConfig(newTestConfig(t, "{}")))
		require.NoError(t, err)
		assert.IsType(t, audit.NoopLogger{}, p.AuditLogger())
	})

	t.Run("log", func(t *testing.T) {
		p, err := New(WithConfig(newTestConfig(t, "audit:\n  enabled: true\n")))
		require.NoError(t, err)
		assert.IsType(t, &audit.SlogLogger{}, p.AuditLogger())
	})

	t.Run("provided", func(t *testing.T) {
		p, err := New(WithConfig(newTestConfig(t, "{}")), WithAuditLogger(audit.NoopLogger{}))
		require.NoError(t, err)
		assert.Equal(t, audit.NoopLogger{}, p.AuditLogger())
	})
}

func TestPlatform_PostgresAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cfg := newTestConfig(t, `
audit:
  enabled: true
  store: postgres
database:
  dsn: postgres://unused
  migrate_on_start: false
backends:
  - name: dry
    kind: noop
`)
	p, err := New(WithConfig(cfg), WithDB(db))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = p.Engine().Execute(ctx, engine.Request{Query: "DELETE FROM t WHERE id = 1", Backend: "dry", UserID: "alice"})
	require.NoError(t, err)

	require.NoError(t, p.Stop(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlatform_Authenticator(t *testing.T) {
	cfg := newTestConfig(t, `
auth:
  enabled: true
  api_keys:
    - name: ci
      key: plain-key
`)
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)
	require.NotNil(t, p.Authenticator())
	assert.Same(t, cfg, p.Config())
}
