package relational

import (
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"dsn": "postgres://localhost/app"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Driver != DriverPostgres {
		t.Errorf("expected driver %q, got %q", DriverPostgres, cfg.Driver)
	}
	if cfg.MaxOpenConns != defaultMaxOpenConns {
		t.Errorf("expected %d open conns, got %d", defaultMaxOpenConns, cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime != defaultConnMaxLifetime {
		t.Errorf("expected lifetime %v, got %v", defaultConnMaxLifetime, cfg.ConnMaxLifetime)
	}
}

func TestParseConfig_AllFields(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"driver":            "pgx",
		"dsn":               "postgres://localhost/app",
		"max_open_conns":    20,
		"max_idle_conns":    float64(4),
		"conn_max_lifetime": "5m",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Driver != DriverPgx {
		t.Errorf("expected pgx, got %q", cfg.Driver)
	}
	if cfg.MaxOpenConns != 20 || cfg.MaxIdleConns != 4 {
		t.Errorf("unexpected pool sizes %d/%d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("expected 5m, got %v", cfg.ConnMaxLifetime)
	}
}

func TestParseConfig_SQLiteSingleConnection(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"driver": "sqlite3", "dsn": ":memory:", "max_open_conns": 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxOpenConns != 1 {
		t.Errorf("expected a single sqlite connection, got %d", cfg.MaxOpenConns)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	if _, err := ParseConfig(map[string]any{}); err == nil {
		t.Error("expected error for missing dsn")
	}
	if _, err := ParseConfig(map[string]any{"driver": "oracle", "dsn": "x"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
