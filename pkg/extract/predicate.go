package extract

import (
	"github.com/txn2/sql-gateway/pkg/operation"
	"github.com/txn2/sql-gateway/pkg/syntax"
)

func toPredicate(e syntax.Expr) *operation.Predicate {
	if e == nil {
		return nil
	}
	return &operation.Predicate{Text: syntax.Format(e), Expr: toExpr(e)}
}

// flipped maps a comparison to its mirror so that `5 < age` reads as
// `age > 5`.
var flipped = map[string]string{
	operation.OpEq: operation.OpEq,
	operation.OpNe: operation.OpNe,
	operation.OpLt: operation.OpGt,
	operation.OpLe: operation.OpGe,
	operation.OpGt: operation.OpLt,
	operation.OpGe: operation.OpLe,
}

var comparisons = map[string]bool{
	operation.OpEq: true, operation.OpNe: true,
	operation.OpLt: true, operation.OpLe: true,
	operation.OpGt: true, operation.OpGe: true,
	operation.OpLike: true, operation.OpNotLike: true,
}

func toExpr(e syntax.Expr) *operation.Expr {
	switch n := e.(type) {
	case *syntax.Binary:
		switch n.Op {
		case operation.OpAnd, operation.OpOr:
			return &operation.Expr{Op: n.Op, Args: append(flatten(n.Op, n.Left), flatten(n.Op, n.Right)...)}
		}
		if !comparisons[n.Op] {
			break
		}
		if field, ok := columnName(n.Left); ok {
			if v, ok := literal(n.Right); ok {
				return &operation.Expr{Op: n.Op, Field: field, Value: v}
			}
		}
		if field, ok := columnName(n.Right); ok {
			if v, ok := literal(n.Left); ok {
				if op, ok := flipped[n.Op]; ok {
					return &operation.Expr{Op: op, Field: field, Value: v}
				}
			}
		}
	case *syntax.Unary:
		if n.Op == "not" {
			return &operation.Expr{Op: operation.OpNot, Args: []*operation.Expr{toExpr(n.Expr)}}
		}
	case *syntax.In:
		field, ok := columnName(n.Expr)
		if !ok {
			break
		}
		values := make([]any, 0, len(n.List))
		for _, item := range n.List {
			v, ok := literal(item)
			if !ok {
				return raw(e)
			}
			values = append(values, v)
		}
		op := operation.OpIn
		if n.Not {
			op = operation.OpNotIn
		}
		return &operation.Expr{Op: op, Field: field, Value: values}
	case *syntax.Between:
		field, ok := columnName(n.Expr)
		if !ok {
			break
		}
		low, lok := literal(n.Low)
		high, hok := literal(n.High)
		if !lok || !hok {
			break
		}
		op := operation.OpBetween
		if n.Not {
			op = operation.OpNotBetween
		}
		return &operation.Expr{Op: op, Field: field, Value: []any{low, high}}
	case *syntax.IsNull:
		field, ok := columnName(n.Expr)
		if !ok {
			break
		}
		op := operation.OpIsNull
		if n.Not {
			op = operation.OpIsNotNull
		}
		return &operation.Expr{Op: op, Field: field}
	}
	return raw(e)
}

// flatten collapses nested chains of the same logical operator.
func flatten(op string, e syntax.Expr) []*operation.Expr {
	if b, ok := e.(*syntax.Binary); ok && b.Op == op {
		return append(flatten(op, b.Left), flatten(op, b.Right)...)
	}
	return []*operation.Expr{toExpr(e)}
}

func raw(e syntax.Expr) *operation.Expr {
	return &operation.Expr{Op: operation.OpRaw, Value: syntax.Format(e)}
}

func columnName(e syntax.Expr) (string, bool) {
	c, ok := e.(*syntax.ColumnRef)
	if !ok {
		return "", false
	}
	return c.QualifiedName(), true
}

func literal(e syntax.Expr) (any, bool) {
	lit, ok := e.(*syntax.Literal)
	if !ok {
		return nil, false
	}
	return lit.Value, true
}
