// Package parser turns statement text into a syntax tree, trying a fixed
// priority list of dialects until one accepts the text.
package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/parser/ansi"
	"github.com/txn2/sql-gateway/pkg/syntax"
)

// Dialect names.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	DialectGeneric  = "generic"
)

// MaxAttempts bounds the fallback chain: the default dialect plus two
// alternates.
const MaxAttempts = 3

// DefaultDialects is the fallback order used when none is configured.
var DefaultDialects = []string{DialectMySQL, DialectPostgres, DialectGeneric}

// Dialect is one grammar variant.
type Dialect interface {
	Name() string
	Parse(sql string) (syntax.Statement, error)
}

type ansiDialect struct {
	name string
	mode ansi.Mode
}

func (d ansiDialect) Name() string { return d.name }

func (d ansiDialect) Parse(sql string) (syntax.Statement, error) {
	return ansi.Parse(sql, d.mode)
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case DialectMySQL:
		return mysqlDialect{}, nil
	case DialectPostgres:
		return ansiDialect{name: DialectPostgres, mode: ansi.Postgres}, nil
	case DialectGeneric:
		return ansiDialect{name: DialectGeneric, mode: ansi.Generic}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// Parser parses statements with dialect fallback. It is safe for concurrent
// use.
type Parser struct {
	dialects []Dialect
	logger   *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used to report fallback attempts.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a parser that tries dialects in order.
func New(dialects []Dialect, opts ...Option) (*Parser, error) {
	if len(dialects) == 0 {
		return nil, fmt.Errorf("at least one dialect is required")
	}
	if len(dialects) > MaxAttempts {
		return nil, fmt.Errorf("at most %d dialects may be configured, got %d", MaxAttempts, len(dialects))
	}
	p := &Parser{dialects: dialects, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewFromNames creates a parser from dialect names. An empty list selects
// DefaultDialects.
func NewFromNames(names []string, opts ...Option) (*Parser, error) {
	if len(names) == 0 {
		names = DefaultDialects
	}
	dialects := make([]Dialect, 0, len(names))
	for _, name := range names {
		d, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		dialects = append(dialects, d)
	}
	return New(dialects, opts...)
}

// Dialects returns the configured dialect names in fallback order.
func (p *Parser) Dialects() []string {
	names := make([]string, len(p.dialects))
	for i, d := range p.dialects {
		names[i] = d.Name()
	}
	return names
}

// Parse returns the tree produced by the first dialect that accepts text,
// along with that dialect's name. If every dialect fails only the last
// error is reported.
//
// Dialects overlap: text can be accepted by an earlier dialect under
// different quoting rules than the caller intended. The first acceptance
// wins regardless.
func (p *Parser) Parse(text string) (syntax.Statement, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", apperror.Wrap(apperror.Parse, "empty statement", ansi.ErrEmptyStatement)
	}

	var lastErr error
	var lastDialect string
	for i, d := range p.dialects {
		stmt, err := d.Parse(text)
		if err == nil {
			if i > 0 {
				p.logger.Debug("statement parsed by fallback dialect",
					"dialect", d.Name(), "attempt", i+1)
			}
			return stmt, d.Name(), nil
		}
		p.logger.Debug("dialect rejected statement", "dialect", d.Name(), "error", err)
		lastErr = err
		lastDialect = d.Name()
	}
	return nil, "", apperror.Wrap(apperror.Parse,
		fmt.Sprintf("%s: %v", lastDialect, lastErr), lastErr)
}
