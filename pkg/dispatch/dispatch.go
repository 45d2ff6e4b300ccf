// Package dispatch routes operations to backend adapters. It owns the
// result cache lookup around each call and bounds every call with a
// timeout.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/cache"
	"github.com/txn2/sql-gateway/pkg/operation"
)

// Registry resolves backend names. *registry.Registry satisfies it.
type Registry interface {
	Get(name string) (backend.Adapter, bool)

	// Timeout returns the configured call budget, or zero for the default.
	Timeout(name string) time.Duration
}

// ResultCache memoizes eligible results. *cache.Cache satisfies it.
type ResultCache interface {
	Get(backendName, text string, options operation.Options) (*backend.Result, bool, error)
	Put(backendName, text string, options operation.Options, result *backend.Result, ttl time.Duration) error
}

// Config configures a Dispatcher.
type Config struct {
	// DefaultTimeout applies when neither the request nor the backend
	// names a budget.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// Outcome is a dispatched result with how it was produced.
type Outcome struct {
	Result   *backend.Result
	Backend  string
	Family   backend.Family
	Cached   bool
	Timeout  time.Duration
	Duration time.Duration
}

// Dispatcher routes operations to adapters.
type Dispatcher struct {
	registry       Registry
	cache          ResultCache
	defaultTimeout time.Duration
	metrics        *Metrics
	logger         *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics records dispatches on m.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithConfig applies cfg.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) {
		if cfg.DefaultTimeout > 0 {
			d.defaultTimeout = cfg.DefaultTimeout
		}
	}
}

// New creates a dispatcher. A nil cache disables caching.
func New(reg Registry, c ResultCache, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:       reg,
		cache:          c,
		defaultTimeout: backend.DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs op on the named backend and returns its result.
func (d *Dispatcher) Dispatch(ctx context.Context, op *operation.Operation, backendName string, options operation.Options) (*backend.Result, error) {
	out, err := d.Execute(ctx, op, backendName, options)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Execute is Dispatch with details about how the result was produced.
// Errors are always *apperror.Error.
func (d *Dispatcher) Execute(ctx context.Context, op *operation.Operation, backendName string, options operation.Options) (*Outcome, error) {
	start := time.Now()
	kind := string(op.Kind)

	adapter, ok := d.registry.Get(backendName)
	if !ok {
		err := apperror.Newf(apperror.UnsupportedBackend, "backend %q is not registered", backendName)
		d.metrics.observe(backendName, kind, string(err.Kind), time.Since(start))
		return nil, err
	}
	out := &Outcome{Backend: adapter.Name(), Family: adapter.Family()}

	eligible := d.cache != nil && cache.Eligible(op, options)
	if eligible {
		if res, hit := d.cacheGet(backendName, op.Source, options); hit {
			out.Result = res
			out.Cached = true
			out.Duration = time.Since(start)
			d.metrics.observe(out.Backend, kind, statusOK, out.Duration)
			return out, nil
		}
	}

	call := backend.NewCall(op, options)
	out.Timeout = d.timeoutFor(backendName, options)

	res, err := d.invoke(ctx, adapter, call, out.Timeout)
	out.Duration = time.Since(start)
	if err != nil {
		appErr := mapError(out.Backend, out.Timeout, err)
		d.metrics.observe(out.Backend, kind, string(appErr.Kind), out.Duration)
		d.logger.Debug("dispatch failed",
			"backend", out.Backend, "kind", kind, "error_type", appErr.Kind, "error", err)
		return nil, appErr
	}
	if res == nil {
		res = &backend.Result{Rows: []map[string]any{}}
	}
	out.Result = res
	d.metrics.observe(out.Backend, kind, statusOK, out.Duration)

	if eligible {
		d.cachePut(backendName, op.Source, options, res)
	}
	return out, nil
}

// timeoutFor resolves the call budget: the request's "timeout" option in
// milliseconds, then the backend's configured or family budget, then the
// dispatcher default.
func (d *Dispatcher) timeoutFor(backendName string, options operation.Options) time.Duration {
	if t, ok := options.Millis(operation.OptionTimeout); ok && t > 0 {
		return t
	}
	if t := d.registry.Timeout(backendName); t > 0 {
		return t
	}
	return d.defaultTimeout
}

type callResult struct {
	res *backend.Result
	err error
}

// invoke races the adapter against the timeout. The adapter runs on its
// own goroutine and may finish after invoke returns; the buffered channel
// lets it exit without a reader.
func (d *Dispatcher) invoke(ctx context.Context, adapter backend.Adapter, call *backend.Call, timeout time.Duration) (*backend.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("backend %s panicked: %v", adapter.Name(), r)}
			}
		}()
		res, err := adapter.Execute(ctx, call)
		done <- callResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cacheGet never fails the request; cache faults count as misses.
func (d *Dispatcher) cacheGet(backendName, text string, options operation.Options) (res *backend.Result, hit bool) {
	defer func() {
		if r := recover(); r != nil {
			d.cacheFault("lookup", apperror.Newf(apperror.Cache, "cache lookup panicked: %v", r))
			res, hit = nil, false
		}
	}()
	res, hit, err := d.cache.Get(backendName, text, options)
	if err != nil {
		d.cacheFault("lookup", err)
		return nil, false
	}
	if hit {
		d.metrics.cacheLookup(lookupHit)
	} else {
		d.metrics.cacheLookup(lookupMiss)
	}
	return res, hit
}

func (d *Dispatcher) cachePut(backendName, text string, options operation.Options, res *backend.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.cacheFault("store", apperror.Newf(apperror.Cache, "cache store panicked: %v", r))
		}
	}()
	if err := d.cache.Put(backendName, text, options, res, cache.TTLFor(options)); err != nil {
		d.cacheFault("store", err)
	}
}

func (d *Dispatcher) cacheFault(stage string, err error) {
	if stage == "lookup" {
		d.metrics.cacheLookup(lookupError)
	}
	d.logger.Warn("cache "+stage+" failed", "error", err)
}
