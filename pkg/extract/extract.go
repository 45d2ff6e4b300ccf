// Package extract converts a syntax tree into a canonical operation.
package extract

import (
	"log/slog"
	"strconv"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/operation"
	"github.com/txn2/sql-gateway/pkg/syntax"
)

// Extractor builds operations from syntax trees.
type Extractor struct {
	logger *slog.Logger
}

// New creates an extractor. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract builds an operation with the default extractor.
func Extract(stmt syntax.Statement, source string) (*operation.Operation, error) {
	return New(nil).Extract(stmt, source)
}

// Extract builds the canonical operation for stmt. source is the normalized
// text the statement was parsed from.
func (x *Extractor) Extract(stmt syntax.Statement, source string) (*operation.Operation, error) {
	op, err := x.extract(stmt)
	if err != nil {
		return nil, err
	}
	category, ok := operation.CategoryOf(op.Kind)
	if !ok {
		return nil, apperror.Newf(apperror.Extraction, "no category for statement kind %q", op.Kind)
	}
	op.Category = category
	op.Source = source
	return op, nil
}

func (x *Extractor) extract(stmt syntax.Statement) (*operation.Operation, error) {
	switch s := stmt.(type) {
	case nil:
		return nil, apperror.New(apperror.Extraction, "statement has no recognizable type")
	case *syntax.Select:
		return x.fromSelect(s)
	case *syntax.Insert:
		return x.fromInsert(s)
	case *syntax.Update:
		return x.fromUpdate(s)
	case *syntax.Delete:
		return &operation.Operation{
			Kind:      operation.Delete,
			Target:    s.Table,
			Predicate: toPredicate(s.Where),
		}, nil
	case *syntax.Describe:
		return &operation.Operation{Kind: operation.Describe, Target: s.Table}, nil
	case *syntax.Explain:
		op := &operation.Operation{Kind: operation.Explain}
		if s.Statement != nil {
			inner, err := x.extract(s.Statement)
			if err == nil {
				op.Target = inner.Target
			}
		}
		return op, nil
	case *syntax.Call:
		args := make([]any, len(s.Args))
		for i, a := range s.Args {
			args[i] = toValue(a)
		}
		return &operation.Operation{
			Kind:   operation.Call,
			Target: s.Procedure,
			Values: map[string]any{"args": args},
		}, nil
	case *syntax.Create:
		return fromCreate(s), nil
	case *syntax.Alter:
		return fromAlter(s), nil
	case *syntax.Drop:
		op := &operation.Operation{
			Kind:       operation.Drop,
			Definition: &operation.Definition{Targets: s.Tables, IfExists: s.IfExists},
		}
		if len(s.Tables) > 0 {
			op.Target = s.Tables[0]
		}
		return op, nil
	case *syntax.Truncate:
		return &operation.Operation{Kind: operation.Truncate, Target: s.Table}, nil
	case *syntax.Rename:
		return &operation.Operation{
			Kind:       operation.Rename,
			Target:     s.From,
			Definition: &operation.Definition{NewName: s.To},
		}, nil
	case *syntax.Grant:
		return fromPrivilege(operation.Grant, s.Privilege), nil
	case *syntax.Revoke:
		return fromPrivilege(operation.Revoke, s.Privilege), nil
	case *syntax.Transaction:
		return fromTransaction(s)
	default:
		return nil, apperror.Newf(apperror.Extraction, "unrecognized statement node %T", stmt)
	}
}

func (x *Extractor) fromSelect(s *syntax.Select) (*operation.Operation, error) {
	op := &operation.Operation{
		Kind:      operation.Select,
		Columns:   flattenColumns(s.Columns),
		Predicate: toPredicate(s.Where),
		Having:    toPredicate(s.Having),
		Distinct:  s.Distinct,
	}

	if len(s.From) > 0 {
		op.Target = s.From[0].Name
		op.Alias = s.From[0].Alias
		for _, ref := range s.From[1:] {
			op.Joins = append(op.Joins, operation.Join{
				Type:   ref.Join,
				Target: ref.Name,
				Alias:  ref.Alias,
				On:     toPredicate(ref.On),
			})
		}
	}

	for _, g := range s.GroupBy {
		op.GroupBy = append(op.GroupBy, fieldName(g))
	}
	for _, o := range s.OrderBy {
		op.OrderBy = append(op.OrderBy, operation.Order{Field: fieldName(o.Expr), Desc: o.Desc})
	}

	if s.Limit != nil {
		limit, err := toLimit(s.Limit)
		if err != nil {
			return nil, err
		}
		op.Limit = limit
	}
	return op, nil
}

func toLimit(l *syntax.Limit) (*operation.Limit, error) {
	out := &operation.Limit{Count: -1}
	if l.Count != nil {
		n, ok := intLiteral(l.Count)
		if !ok {
			return nil, apperror.Newf(apperror.Extraction, "limit must be a non-negative integer, got %s", syntax.Format(l.Count))
		}
		out.Count = n
	}
	if l.Offset != nil {
		n, ok := intLiteral(l.Offset)
		if !ok {
			return nil, apperror.Newf(apperror.Extraction, "offset must be a non-negative integer, got %s", syntax.Format(l.Offset))
		}
		out.Offset = n
	}
	return out, nil
}

func intLiteral(e syntax.Expr) (int64, bool) {
	lit, ok := e.(*syntax.Literal)
	if !ok {
		return 0, false
	}
	n, ok := lit.Value.(int64)
	return n, ok && n >= 0
}

func (x *Extractor) fromInsert(s *syntax.Insert) (*operation.Operation, error) {
	if len(s.Columns) == 0 {
		return nil, apperror.Newf(apperror.Extraction,
			"insert into %s has no column list; columns are required to map values", s.Table)
	}
	if len(s.Rows) == 0 {
		return nil, apperror.Newf(apperror.Extraction, "insert into %s has no values", s.Table)
	}

	row := s.Rows[0]
	if len(row) != len(s.Columns) {
		return nil, apperror.Newf(apperror.Extraction,
			"insert into %s declares %d columns but supplies %d values", s.Table, len(s.Columns), len(row))
	}

	values := make(map[string]any, len(row))
	for i, col := range s.Columns {
		if _, dup := values[col]; dup {
			return nil, apperror.Newf(apperror.Extraction, "insert into %s names column %q twice", s.Table, col)
		}
		values[col] = toValue(row[i])
	}

	op := &operation.Operation{
		Kind:    operation.Insert,
		Target:  s.Table,
		Columns: append([]string(nil), s.Columns...),
		Values:  values,
	}
	if extra := len(s.Rows) - 1; extra > 0 {
		op.RowsDropped = extra
		x.logger.Warn("multi-row insert truncated to first row",
			"target", s.Table, "rows_dropped", extra)
	}
	return op, nil
}

func (x *Extractor) fromUpdate(s *syntax.Update) (*operation.Operation, error) {
	if len(s.Set) == 0 {
		return nil, apperror.Newf(apperror.Extraction, "update of %s has no assignments", s.Table)
	}
	op := &operation.Operation{
		Kind:      operation.Update,
		Target:    s.Table,
		Values:    make(map[string]any, len(s.Set)),
		Predicate: toPredicate(s.Where),
	}
	for _, a := range s.Set {
		if _, dup := op.Values[a.Column]; !dup {
			op.Columns = append(op.Columns, a.Column)
		}
		op.Values[a.Column] = toValue(a.Value)
	}
	return op, nil
}

func fromCreate(s *syntax.Create) *operation.Operation {
	def := &operation.Definition{IfNotExists: s.IfNotExists}
	for _, c := range s.Columns {
		def.Columns = append(def.Columns, toColumnDef(c))
	}
	return &operation.Operation{Kind: operation.Create, Target: s.Table, Definition: def}
}

func fromAlter(s *syntax.Alter) *operation.Operation {
	def := &operation.Definition{}
	for _, c := range s.Clauses {
		def.Actions = append(def.Actions, operation.AlterAction{
			Action:  c.Action,
			Column:  toColumnDef(c.Column),
			NewName: c.NewName,
		})
	}
	return &operation.Operation{Kind: operation.Alter, Target: s.Table, Definition: def}
}

func toColumnDef(c syntax.ColumnDef) operation.ColumnDef {
	def := operation.ColumnDef{
		Name:       c.Name,
		Type:       c.Type,
		NotNull:    c.NotNull,
		PrimaryKey: c.PrimaryKey,
	}
	if c.Default != nil {
		def.Default = toValue(c.Default)
	}
	return def
}

func fromPrivilege(kind operation.Kind, p syntax.Privilege) *operation.Operation {
	return &operation.Operation{
		Kind:       kind,
		Target:     p.Object,
		Privileges: append([]string(nil), p.Privileges...),
		Principals: append([]string(nil), p.Principals...),
	}
}

var transactionKinds = map[string]operation.Kind{
	syntax.ActionBegin:     operation.Begin,
	syntax.ActionCommit:    operation.Commit,
	syntax.ActionRollback:  operation.Rollback,
	syntax.ActionSavepoint: operation.Savepoint,
	syntax.ActionEnd:       operation.End,
}

// fromTransaction reclassifies the generic transaction node into its
// specific verb.
func fromTransaction(s *syntax.Transaction) (*operation.Operation, error) {
	kind, ok := transactionKinds[s.Action]
	if !ok {
		return nil, apperror.Newf(apperror.Extraction, "unrecognized transaction action %q", s.Action)
	}
	if kind == operation.Savepoint && s.Name == "" {
		return nil, apperror.New(apperror.Extraction, "savepoint requires a name")
	}
	return &operation.Operation{
		Kind:        kind,
		Transaction: &operation.TransactionInfo{Kind: kind, Name: s.Name},
	}, nil
}

// flattenColumns reduces a projection to plain names. Literals keep their
// text; anything else is dropped.
func flattenColumns(exprs []syntax.Expr) []string {
	var out []string
	for _, e := range exprs {
		switch n := e.(type) {
		case *syntax.ColumnRef:
			out = append(out, n.Name)
		case *syntax.Star:
			out = append(out, "*")
		case *syntax.Literal:
			out = append(out, literalText(n.Value))
		}
	}
	return out
}

func literalText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return syntax.FormatValue(v)
	}
}

// fieldName names a refinement term: a possibly qualified column, or the
// expression text.
func fieldName(e syntax.Expr) string {
	return syntax.Format(e)
}

// toValue reduces an expression to a scalar, keeping anything that is not a
// literal as SQL text.
func toValue(e syntax.Expr) any {
	if lit, ok := e.(*syntax.Literal); ok {
		return lit.Value
	}
	return operation.Raw(syntax.Format(e))
}
