package relational

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

var sqlOperators = map[string]string{
	operation.OpEq:      "=",
	operation.OpNe:      "<>",
	operation.OpLt:      "<",
	operation.OpLe:      "<=",
	operation.OpGt:      ">",
	operation.OpGe:      ">=",
	operation.OpLike:    "LIKE",
	operation.OpNotLike: "NOT LIKE",
}

// conditions returns the WHERE parts for e. A top-level conjunction is
// split so each part becomes its own Where call.
func (a *Adapter) conditions(e *operation.Expr) ([]sq.Sqlizer, error) {
	if e == nil {
		return nil, nil
	}
	if e.Op == operation.OpAnd {
		parts := make([]sq.Sqlizer, 0, len(e.Args))
		for _, arg := range e.Args {
			s, err := a.toSqlizer(arg)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		return parts, nil
	}
	s, err := a.toSqlizer(e)
	if err != nil {
		return nil, err
	}
	return []sq.Sqlizer{s}, nil
}

func (a *Adapter) toSqlizer(e *operation.Expr) (sq.Sqlizer, error) {
	if e.Field != "" {
		if _, err := identifier(e.Field); err != nil {
			return nil, err
		}
	}
	if op, ok := sqlOperators[e.Op]; ok {
		return sq.Expr(fmt.Sprintf("%s %s ?", e.Field, op), a.bind(e.Value)), nil
	}

	switch e.Op {
	case operation.OpAnd, operation.OpOr:
		parts := make([]sq.Sqlizer, 0, len(e.Args))
		for _, arg := range e.Args {
			s, err := a.toSqlizer(arg)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		if e.Op == operation.OpAnd {
			return sq.And(parts), nil
		}
		return sq.Or(parts), nil
	case operation.OpNot:
		if len(e.Args) != 1 {
			return nil, fmt.Errorf("not takes one operand, got %d: %w", len(e.Args), backend.ErrUnsupportedPredicate)
		}
		inner, err := a.toSqlizer(e.Args[0])
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT (?)", inner), nil
	case operation.OpIn:
		return sq.Eq{e.Field: a.bindList(e.Value)}, nil
	case operation.OpNotIn:
		return sq.NotEq{e.Field: a.bindList(e.Value)}, nil
	case operation.OpBetween, operation.OpNotBetween:
		bounds, _ := e.Value.([]any)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("between takes two bounds: %w", backend.ErrUnsupportedPredicate)
		}
		op := "BETWEEN"
		if e.Op == operation.OpNotBetween {
			op = "NOT BETWEEN"
		}
		return sq.Expr(fmt.Sprintf("%s %s ? AND ?", e.Field, op), a.bind(bounds[0]), a.bind(bounds[1])), nil
	case operation.OpIsNull:
		return sq.Expr(e.Field + " IS NULL"), nil
	case operation.OpIsNotNull:
		return sq.Expr(e.Field + " IS NOT NULL"), nil
	case operation.OpRaw:
		text, _ := e.Value.(string)
		if err := fragment(text); err != nil {
			return nil, err
		}
		return sq.Expr(a.rawSQL(text)), nil
	}
	return nil, fmt.Errorf("operator %q: %w", e.Op, backend.ErrUnsupportedPredicate)
}

// bind turns an operation value into a statement argument. Raw values are
// inlined as SQL.
func (a *Adapter) bind(v any) any {
	if raw, ok := v.(operation.Raw); ok {
		return sq.Expr(a.rawSQL(string(raw)))
	}
	return v
}

func (a *Adapter) bindList(v any) []any {
	list, _ := v.([]any)
	out := make([]any, len(list))
	copy(out, list)
	return out
}

// rawSQL escapes literal question marks so dollar placeholder rewriting
// leaves them alone.
func (a *Adapter) rawSQL(text string) string {
	if a.dollar {
		return strings.ReplaceAll(text, "?", "??")
	}
	return text
}
