package platform

import (
	"database/sql"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/txn2/sql-gateway/pkg/audit"
	"github.com/txn2/sql-gateway/pkg/auth"
	"github.com/txn2/sql-gateway/pkg/registry"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// Logger (optional, defaults to slog.Default()).
	Logger *slog.Logger

	// Database connection (optional, will be opened from config if the
	// audit store needs one).
	DB *sql.DB

	// Registry (optional, will be loaded from config if not provided).
	// A provided registry is frozen by New.
	Registry *registry.Registry

	// Authenticator (optional, will be created from config if not provided).
	Authenticator auth.Authenticator

	// AuditLogger (optional, will be created from config if not provided).
	AuditLogger audit.Logger

	// Metrics (optional, a fresh registry is created if not provided).
	Metrics *prometheus.Registry
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithRegistry sets the backend registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *Options) {
		o.Registry = reg
	}
}

// WithAuthenticator sets the authenticator.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *Options) {
		o.Authenticator = a
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(l audit.Logger) Option {
	return func(o *Options) {
		o.AuditLogger = l
	}
}

// WithMetricsRegistry sets the prometheus registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *Options) {
		o.Metrics = reg
	}
}
