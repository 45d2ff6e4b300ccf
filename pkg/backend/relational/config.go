package relational

import (
	"fmt"
	"time"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
)

// Config configures a relational adapter.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ParseConfig parses a relational adapter configuration from a map.
func ParseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		Driver:          getStringDefault(cfg, "driver", DriverPostgres),
		DSN:             getString(cfg, "dsn"),
		MaxOpenConns:    getInt(cfg, "max_open_conns", defaultMaxOpenConns),
		MaxIdleConns:    getInt(cfg, "max_idle_conns", defaultMaxIdleConns),
		ConnMaxLifetime: getDuration(cfg, "conn_max_lifetime", defaultConnMaxLifetime),
	}

	switch c.Driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return Config{}, fmt.Errorf("dsn is required")
	}
	// Each sqlite connection to :memory: is a separate database.
	if c.Driver == DriverSQLite {
		c.MaxOpenConns = 1
		c.MaxIdleConns = 1
	}
	return c, nil
}

func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func getStringDefault(cfg map[string]any, key, defaultVal string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return defaultVal
}

func getInt(cfg map[string]any, key string, defaultVal int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

func getDuration(cfg map[string]any, key string, defaultVal time.Duration) time.Duration {
	switch v := cfg[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v) * time.Second
	case time.Duration:
		return v
	}
	return defaultVal
}
