package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver for the gateway database
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/txn2/sql-gateway/pkg/audit"
	auditpg "github.com/txn2/sql-gateway/pkg/audit/postgres"
	"github.com/txn2/sql-gateway/pkg/auth"
	"github.com/txn2/sql-gateway/pkg/cache"
	"github.com/txn2/sql-gateway/pkg/database/migrate"
	"github.com/txn2/sql-gateway/pkg/dispatch"
	"github.com/txn2/sql-gateway/pkg/engine"
	"github.com/txn2/sql-gateway/pkg/health"
	"github.com/txn2/sql-gateway/pkg/parser"
	"github.com/txn2/sql-gateway/pkg/registry"
)

// pinger is implemented by adapters that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// Platform is the main platform facade.
type Platform struct {
	config    *Config
	logger    *slog.Logger
	lifecycle *Lifecycle

	// Core components
	registry   *registry.Registry
	cache      *cache.Cache
	parser     *parser.Parser
	dispatcher *dispatch.Dispatcher
	engine     *engine.Engine

	authenticator auth.Authenticator
	auditLogger   audit.Logger
	health        *health.Checker
	metrics       *prometheus.Registry

	db     *sql.DB
	ownsDB bool
}

// New creates a new platform instance. The config is validated first.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Platform{
		config:    options.Config,
		logger:    logger,
		lifecycle: NewLifecycle(logger),
		health:    health.NewChecker(),
		db:        options.DB,
	}

	if err := p.initializeComponents(options); err != nil {
		_ = p.closeResources()
		return nil, fmt.Errorf("initializing components: %w", err)
	}

	return p, nil
}

// initializeComponents initializes all platform components.
func (p *Platform) initializeComponents(opts *Options) error {
	p.initMetrics(opts)
	if err := p.initRegistry(opts); err != nil {
		return err
	}
	if err := p.initAudit(opts); err != nil {
		return err
	}
	if err := p.initAuth(opts); err != nil {
		return err
	}
	return p.initEngine()
}

func (p *Platform) initMetrics(opts *Options) {
	if opts.Metrics != nil {
		p.metrics = opts.Metrics
		return
	}
	p.metrics = prometheus.NewRegistry()
	p.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// initRegistry loads the configured backends and registers a readiness
// check for each one that can ping.
func (p *Platform) initRegistry(opts *Options) error {
	if opts.Registry != nil {
		p.registry = opts.Registry
		p.registry.Freeze()
	} else {
		p.registry = registry.NewRegistry()
		registry.RegisterBuiltinFactories(p.registry)
		if err := registry.NewLoader(p.registry).Load(p.config.LoaderConfig()); err != nil {
			return fmt.Errorf("loading backends: %w", err)
		}
	}

	for _, name := range p.registry.Names() {
		adapter, _ := p.registry.Get(name)
		if pg, ok := adapter.(pinger); ok {
			p.health.AddCheck("backend:"+name, pg.Ping)
		}
	}
	p.logger.Info("backends loaded", "backends", p.registry.Names())
	return nil
}

func (p *Platform) initAudit(opts *Options) error {
	if opts.AuditLogger != nil {
		p.auditLogger = opts.AuditLogger
		return nil
	}

	cfg := p.config.Audit
	if !cfg.Enabled {
		p.auditLogger = audit.NoopLogger{}
		return nil
	}
	if cfg.Store == audit.StoreLog {
		p.auditLogger = audit.NewSlogLogger(p.logger)
		return nil
	}

	db, err := p.database()
	if err != nil {
		return err
	}
	p.health.AddCheck("database", db.PingContext)
	if p.config.Database.ShouldMigrate() {
		if err := migrate.Run(db); err != nil {
			return fmt.Errorf("migrating audit schema: %w", err)
		}
	}

	store := auditpg.New(db, auditpg.Config{
		RetentionDays: cfg.RetentionDays,
		Logger:        p.logger,
	})
	p.auditLogger = store
	p.lifecycle.Append(Hook{
		Name: "audit cleanup",
		OnStart: func(context.Context) error {
			store.StartCleanupRoutine(cfg.CleanupEvery)
			return nil
		},
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return nil
}

// database returns the gateway database, opening it from config when
// none was provided.
func (p *Platform) database() (*sql.DB, error) {
	if p.db != nil {
		return p.db, nil
	}

	cfg := p.config.Database
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	p.db = db
	p.ownsDB = true
	return db, nil
}

func (p *Platform) initAuth(opts *Options) error {
	if opts.Authenticator != nil {
		p.authenticator = opts.Authenticator
		return nil
	}
	a, err := auth.NewFromConfig(p.config.Auth)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}
	p.authenticator = a
	return nil
}

func (p *Platform) initEngine() error {
	prs, err := parser.NewFromNames(p.config.Parser.Dialects, parser.WithLogger(p.logger))
	if err != nil {
		return fmt.Errorf("creating parser: %w", err)
	}
	p.parser = prs

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(p.logger),
		dispatch.WithMetrics(dispatch.NewMetrics(p.metrics)),
		dispatch.WithConfig(p.config.Dispatch),
	}

	var resultCache dispatch.ResultCache
	if p.config.Cache.IsEnabled() {
		p.cache = cache.New(p.config.Cache.Config)
		resultCache = p.cache
	}
	p.dispatcher = dispatch.New(p.registry, resultCache, dispatchOpts...)

	p.engine = engine.New(p.parser, p.dispatcher,
		engine.WithLogger(p.logger),
		engine.WithAuditLogger(p.auditLogger),
		engine.WithCache(p.cache),
	)
	return nil
}

// Start runs the lifecycle hooks and marks the platform ready.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()
	p.logger.Info("platform started", "name", p.config.Server.Name)
	return nil
}

// Stop drains the platform, stops the lifecycle hooks and closes the
// backends and the database.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	err := p.lifecycle.Stop(ctx)
	return errors.Join(err, p.closeResources())
}

func (p *Platform) closeResources() error {
	var errs []error
	if p.registry != nil {
		if err := p.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.db != nil && p.ownsDB {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		p.db = nil
	}
	return errors.Join(errs...)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config { return p.config }

// Engine returns the query engine.
func (p *Platform) Engine() *engine.Engine { return p.engine }

// Registry returns the backend registry.
func (p *Platform) Registry() *registry.Registry { return p.registry }

// Authenticator returns the request authenticator.
func (p *Platform) Authenticator() auth.Authenticator { return p.authenticator }

// AuditLogger returns the audit logger.
func (p *Platform) AuditLogger() audit.Logger { return p.auditLogger }

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker { return p.health }

// Metrics returns the prometheus registry the platform records on.
func (p *Platform) Metrics() *prometheus.Registry { return p.metrics }

// Logger returns the platform logger.
func (p *Platform) Logger() *slog.Logger { return p.logger }

// Lifecycle returns the lifecycle, so callers can append their own hooks
// before Start.
func (p *Platform) Lifecycle() *Lifecycle { return p.lifecycle }
