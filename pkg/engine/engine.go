// Package engine assembles the query pipeline: sanitize, parse with
// dialect fallback, extract, validate and dispatch.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/audit"
	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/cache"
	"github.com/txn2/sql-gateway/pkg/dispatch"
	"github.com/txn2/sql-gateway/pkg/extract"
	"github.com/txn2/sql-gateway/pkg/operation"
	"github.com/txn2/sql-gateway/pkg/parser"
	"github.com/txn2/sql-gateway/pkg/sanitize"
)

// parseOnlyBackend stands in for the backend name when a statement is
// parsed without being dispatched.
const parseOnlyBackend = "parse"

// Request is one statement to run.
type Request struct {
	Query   string         `json:"query"`
	Backend string         `json:"backend"`
	Options map[string]any `json:"options,omitempty"`

	// RequestID correlates logs and audit events. One is generated when
	// empty.
	RequestID string `json:"-"`
	UserID    string `json:"-"`
}

// Response is the outcome of a successful request.
type Response struct {
	RequestID  string               `json:"requestId"`
	Backend    string               `json:"backend"`
	Dialect    string               `json:"dialect"`
	Operation  *operation.Operation `json:"operation"`
	Result     *backend.Result      `json:"result"`
	Cached     bool                 `json:"cached"`
	DurationMS int64                `json:"durationMs"`
}

// Parsed is a statement reduced to its operation without dispatch.
type Parsed struct {
	Dialect   string               `json:"dialect"`
	Operation *operation.Operation `json:"operation"`
}

// Engine runs statements against registered backends. It is safe for
// concurrent use.
type Engine struct {
	parser     *parser.Parser
	extractor  *extract.Extractor
	dispatcher *dispatch.Dispatcher
	cache      *cache.Cache
	audit      audit.Logger
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAuditLogger records every Execute on l.
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) {
		e.audit = l
	}
}

// WithCache exposes c through CacheStats and ClearCache. It should be the
// cache the dispatcher was built with.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// New creates an engine.
func New(p *parser.Parser, d *dispatch.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		parser:     p,
		dispatcher: d,
		audit:      audit.NoopLogger{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.extractor = extract.New(e.logger)
	return e
}

// Execute runs req through the full pipeline. Errors are *apperror.Error.
func (e *Engine) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	event := audit.NewEvent(req.RequestID, req.Backend).
		WithUser(req.UserID).
		WithOptions(req.Options)

	resp, err := e.execute(ctx, req, event)
	elapsed := time.Since(start)

	if err != nil {
		appErr := toAppError(err)
		event.WithResult(false, false, string(appErr.Kind), appErr.Message, elapsed.Milliseconds())
		e.record(ctx, event)
		e.logger.Info("request failed",
			"request_id", req.RequestID,
			"backend", req.Backend,
			"error_type", appErr.Kind,
			"error", appErr.Message,
			"duration", elapsed)
		return nil, appErr
	}

	resp.DurationMS = elapsed.Milliseconds()
	event.WithResult(true, resp.Cached, "", "", resp.DurationMS)
	e.record(ctx, event)
	e.logger.Debug("request complete",
		"request_id", req.RequestID,
		"backend", resp.Backend,
		"kind", resp.Operation.Kind,
		"cached", resp.Cached,
		"duration", elapsed)
	return resp, nil
}

func (e *Engine) execute(ctx context.Context, req Request, event *audit.Event) (*Response, error) {
	in, err := sanitize.Sanitize(req.Query, req.Backend, req.Options)
	if err != nil {
		return nil, err
	}
	event.Backend = in.Backend

	op, dialect, err := e.build(in.Text)
	if dialect != "" {
		event.WithDialect(dialect)
	}
	if op != nil {
		event.WithOperation(string(op.Kind), string(op.Category), op.Target)
	}
	if err != nil {
		return nil, err
	}

	out, err := e.dispatcher.Execute(ctx, op, in.Backend, in.Options)
	if err != nil {
		return nil, err
	}

	return &Response{
		RequestID: req.RequestID,
		Backend:   out.Backend,
		Dialect:   dialect,
		Operation: op,
		Result:    out.Result,
		Cached:    out.Cached,
	}, nil
}

// build parses, extracts and validates normalized text.
func (e *Engine) build(text string) (*operation.Operation, string, error) {
	stmt, dialect, err := e.parser.Parse(text)
	if err != nil {
		return nil, "", err
	}
	op, err := e.extractor.Extract(stmt, text)
	if err != nil {
		return nil, dialect, err
	}
	if err := operation.Validate(op); err != nil {
		return op, dialect, err
	}
	return op, dialect, nil
}

// Parse reduces query to its operation without dispatching it.
func (e *Engine) Parse(_ context.Context, query string) (*Parsed, error) {
	in, err := sanitize.Sanitize(query, parseOnlyBackend, nil)
	if err != nil {
		return nil, err
	}
	op, dialect, err := e.build(in.Text)
	if err != nil {
		return nil, toAppError(err)
	}
	return &Parsed{Dialect: dialect, Operation: op}, nil
}

// Dialects returns the parser's fallback order.
func (e *Engine) Dialects() []string {
	return e.parser.Dialects()
}

// CacheStats reports result cache counters. ok is false when the engine
// has no cache.
func (e *Engine) CacheStats() (stats cache.Stats, ok bool) {
	if e.cache == nil {
		return cache.Stats{}, false
	}
	return e.cache.Stats(), true
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// record writes event without failing the request.
func (e *Engine) record(ctx context.Context, event *audit.Event) {
	if err := e.audit.Log(context.WithoutCancel(ctx), *event); err != nil {
		e.logger.Warn("audit log failed", "request_id", event.RequestID, "error", err)
	}
}

func toAppError(err error) *apperror.Error {
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Wrap(apperror.Timeout, "request deadline exceeded", err)
	}
	return apperror.From(err)
}
