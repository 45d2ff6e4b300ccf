// Package relational provides a database/sql implementation of the backend
// adapter for PostgreSQL and SQLite.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Adapter implements backend.Adapter over database/sql.
type Adapter struct {
	name   string
	cfg    Config
	db     *sql.DB
	sb     sq.StatementBuilderType
	dollar bool
	logger *slog.Logger
	ownsDB bool

	// mu guards txs, the open transactions keyed by session.
	mu  sync.Mutex
	txs map[string]*sql.Tx

	closeOnce sync.Once
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates a relational adapter over an existing database handle.
func New(name string, cfg Config, db *sql.DB, opts ...Option) (*Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	a := &Adapter{
		name:   name,
		cfg:    cfg,
		db:     db,
		logger: slog.Default(),
		txs:    make(map[string]*sql.Tx),
	}
	if cfg.Driver == DriverSQLite {
		a.sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	} else {
		a.sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
		a.dollar = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewFromConfig opens a connection pool from cfg and creates an adapter
// that owns it.
func NewFromConfig(name string, cfg Config, opts ...Option) (*Adapter, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	a, err := New(name, cfg, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.ownsDB = true
	return a, nil
}

// Name returns the configured backend name.
func (a *Adapter) Name() string {
	return a.name
}

// Family returns backend.Relational.
func (*Adapter) Family() backend.Family {
	return backend.Relational
}

// Ping verifies the database is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Execute runs the call as one or more SQL statements.
func (a *Adapter) Execute(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	switch call.Category {
	case operation.DML:
		return a.executeDML(ctx, call)
	case operation.DDL:
		return a.executeDDL(ctx, call)
	case operation.DCL:
		return a.executeDCL(ctx, call)
	case operation.TCL:
		return a.executeTCL(ctx, call)
	default:
		return nil, backend.UnsupportedKind(backend.Relational, call.Kind)
	}
}

func (a *Adapter) executeDML(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	if err := checkNames(call); err != nil {
		return nil, err
	}
	id := session(call)
	switch call.Kind {
	case operation.Select:
		query, args, err := a.buildSelect(call)
		if err != nil {
			return nil, err
		}
		return a.query(ctx, id, query, args)
	case operation.Insert:
		return a.exec(ctx, id, a.buildInsert(call))
	case operation.Update:
		qb, err := a.buildUpdate(call)
		if err != nil {
			return nil, err
		}
		return a.exec(ctx, id, qb)
	case operation.Delete:
		parts, err := a.conditions(call.Where())
		if err != nil {
			return nil, err
		}
		qb := a.sb.Delete(call.Target)
		for _, p := range parts {
			qb = qb.Where(p)
		}
		return a.exec(ctx, id, qb)
	case operation.Describe:
		return a.describe(ctx, id, call.Target)
	case operation.Explain:
		if err := explainable(call.Source); err != nil {
			return nil, err
		}
		return a.query(ctx, id, call.Source, nil)
	case operation.Call:
		return a.callProcedure(ctx, call)
	default:
		return nil, backend.UnsupportedKind(backend.Relational, call.Kind)
	}
}

func (a *Adapter) buildSelect(call *backend.Call) (string, []any, error) {
	cols := call.Columns()
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	from := call.Target
	if call.Alias != "" {
		from += " " + call.Alias
	}
	qb := a.sb.Select(cols...).From(from)

	r := call.Refinements
	if r.Distinct {
		qb = qb.Distinct()
	}
	for _, j := range r.Joins {
		kind, err := joinType(j.Type)
		if err != nil {
			return "", nil, err
		}
		clause := kind + " " + j.Target
		if j.Alias != "" {
			clause += " " + j.Alias
		}
		if j.On != nil {
			on, err := a.toSqlizer(j.On.Expr)
			if err != nil {
				return "", nil, err
			}
			qb = qb.JoinClause(sq.ConcatExpr(clause+" ON ", on))
		} else {
			qb = qb.JoinClause(clause)
		}
	}

	parts, err := a.conditions(call.Where())
	if err != nil {
		return "", nil, err
	}
	for _, p := range parts {
		qb = qb.Where(p)
	}

	if len(r.GroupBy) > 0 {
		qb = qb.GroupBy(r.GroupBy...)
	}
	if r.Having != nil {
		having, err := a.conditions(r.Having.Expr)
		if err != nil {
			return "", nil, err
		}
		for _, h := range having {
			qb = qb.Having(h)
		}
	}
	for _, o := range r.OrderBy {
		if o.Desc {
			qb = qb.OrderBy(o.Field + " DESC")
		} else {
			qb = qb.OrderBy(o.Field)
		}
	}
	if l := r.Limit; l != nil {
		switch {
		case l.Count >= 0:
			qb = qb.Limit(uint64(l.Count))
		case !a.dollar && l.Offset > 0:
			// SQLite only accepts OFFSET after a LIMIT.
			qb = qb.Suffix(fmt.Sprintf("LIMIT -1 OFFSET %d", l.Offset))
		}
		if l.Offset > 0 && (l.Count >= 0 || a.dollar) {
			qb = qb.Offset(uint64(l.Offset))
		}
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("building select: %w", err)
	}
	return query, args, nil
}

func (a *Adapter) buildInsert(call *backend.Call) sq.InsertBuilder {
	cols := call.Columns()
	values := call.Values()
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = a.bind(values[c])
	}
	return a.sb.Insert(call.Target).Columns(cols...).Values(row...)
}

func (a *Adapter) buildUpdate(call *backend.Call) (sq.UpdateBuilder, error) {
	values := call.Values()
	qb := a.sb.Update(call.Target)
	for _, c := range call.Columns() {
		qb = qb.Set(c, a.bind(values[c]))
	}
	parts, err := a.conditions(call.Where())
	if err != nil {
		return qb, err
	}
	for _, p := range parts {
		qb = qb.Where(p)
	}
	return qb, nil
}

func (a *Adapter) describe(ctx context.Context, id, table string) (*backend.Result, error) {
	if !a.dollar {
		return a.query(ctx, id,
			"SELECT name AS column_name, type AS data_type, "+
				"CASE WHEN \"notnull\" = 1 THEN 'NO' ELSE 'YES' END AS is_nullable "+
				"FROM pragma_table_info(?) ORDER BY cid",
			[]any{table})
	}
	query, args, err := a.sb.
		Select("column_name", "data_type", "is_nullable").
		From("information_schema.columns").
		Where(sq.Eq{"table_name": table}).
		OrderBy("ordinal_position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building describe: %w", err)
	}
	return a.query(ctx, id, query, args)
}

func (a *Adapter) callProcedure(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	if !a.dollar {
		return nil, backend.UnsupportedKind(backend.Relational, call.Kind)
	}
	name, err := identifier(call.Target)
	if err != nil {
		return nil, err
	}
	args := call.Args()
	bound := make([]any, len(args))
	for i, v := range args {
		bound[i] = a.bind(v)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query, params, err := sq.Expr(fmt.Sprintf("CALL %s(%s)", name, marks), bound...).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building call: %w", err)
	}
	query, err = sq.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return nil, fmt.Errorf("building call: %w", err)
	}
	return a.execSQL(ctx, session(call), query, params)
}

func (a *Adapter) exec(ctx context.Context, id string, b sq.Sqlizer) (*backend.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building statement: %w", err)
	}
	return a.execSQL(ctx, id, query, args)
}

func (a *Adapter) execSQL(ctx context.Context, id, query string, args []any) (*backend.Result, error) {
	if err := fragment(query); err != nil {
		return nil, err
	}
	a.logger.Debug("executing statement", "backend", a.name, "sql", query)
	res, err := a.runner(id).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &backend.Result{Rows: []map[string]any{}, Affected: affected}, nil
}

func (a *Adapter) query(ctx context.Context, id, query string, args []any) (*backend.Result, error) {
	if err := fragment(query); err != nil {
		return nil, err
	}
	a.logger.Debug("executing query", "backend", a.name, "sql", query)
	rows, err := a.runner(id).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	out := &backend.Result{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	out.Affected = int64(len(out.Rows))
	return out, nil
}

// Close rolls back every open transaction and closes the pool when the
// adapter opened it.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.rollbackAll()
		if a.ownsDB {
			err = a.db.Close()
		}
	})
	return err
}

// Verify interface compliance.
var _ backend.Adapter = (*Adapter)(nil)
