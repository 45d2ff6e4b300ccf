// Package filter evaluates backend-neutral predicates against records for
// backends that cannot push a filter down.
package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

// Match reports whether record satisfies e. A nil expression matches
// everything. Raw expressions cannot be evaluated and fail with an error
// wrapping backend.ErrUnsupportedPredicate.
func Match(e *operation.Expr, record map[string]any) (bool, error) {
	if e == nil {
		return true, nil
	}
	switch e.Op {
	case operation.OpAnd:
		for _, a := range e.Args {
			ok, err := Match(a, record)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case operation.OpOr:
		for _, a := range e.Args {
			ok, err := Match(a, record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case operation.OpNot:
		if len(e.Args) != 1 {
			return false, fmt.Errorf("not takes one operand, got %d", len(e.Args))
		}
		ok, err := Match(e.Args[0], record)
		return !ok, err
	case operation.OpRaw:
		return false, fmt.Errorf("cannot evaluate %q: %w", e.Value, backend.ErrUnsupportedPredicate)
	}

	v, present := Lookup(record, e.Field)
	switch e.Op {
	case operation.OpIsNull:
		return !present || v == nil, nil
	case operation.OpIsNotNull:
		return present && v != nil, nil
	}
	if !present || v == nil {
		return false, nil
	}

	switch e.Op {
	case operation.OpEq:
		return Compare(v, e.Value) == 0, nil
	case operation.OpNe:
		return Compare(v, e.Value) != 0, nil
	case operation.OpLt:
		return Compare(v, e.Value) < 0, nil
	case operation.OpLe:
		return Compare(v, e.Value) <= 0, nil
	case operation.OpGt:
		return Compare(v, e.Value) > 0, nil
	case operation.OpGe:
		return Compare(v, e.Value) >= 0, nil
	case operation.OpLike, operation.OpNotLike:
		pattern, ok := e.Value.(string)
		if !ok {
			return false, fmt.Errorf("like pattern must be text, got %T", e.Value)
		}
		matched := Like(toString(v), pattern)
		return matched == (e.Op == operation.OpLike), nil
	case operation.OpIn, operation.OpNotIn:
		list, _ := e.Value.([]any)
		found := false
		for _, item := range list {
			if Compare(v, item) == 0 {
				found = true
				break
			}
		}
		return found == (e.Op == operation.OpIn), nil
	case operation.OpBetween, operation.OpNotBetween:
		bounds, _ := e.Value.([]any)
		if len(bounds) != 2 {
			return false, fmt.Errorf("between takes two bounds, got %d", len(bounds))
		}
		in := Compare(v, bounds[0]) >= 0 && Compare(v, bounds[1]) <= 0
		return in == (e.Op == operation.OpBetween), nil
	}
	return false, fmt.Errorf("operator %q: %w", e.Op, backend.ErrUnsupportedPredicate)
}

// Lookup finds field in record. A qualified name such as "u.age" falls back
// to its last segment when the record has no key with the full name.
func Lookup(record map[string]any, field string) (any, bool) {
	if v, ok := record[field]; ok {
		return v, true
	}
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		v, ok := record[field[i+1:]]
		return v, ok
	}
	return nil, false
}

// Compare orders a and b numerically when both read as numbers and by
// their text otherwise.
func Compare(a, b any) int {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok && x == y {
			return 0
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// Like reports whether s matches a SQL LIKE pattern, where % matches any
// run and _ matches one character. Matching is case-sensitive.
func Like(s, pattern string) bool {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String()).MatchString(s)
}

// Project narrows record to columns. An empty list or "*" keeps every
// field. Qualified names resolve the same way as in Lookup.
func Project(record map[string]any, columns []string) map[string]any {
	if len(columns) == 0 {
		return record
	}
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		if c == "*" {
			return record
		}
		if v, ok := Lookup(record, c); ok {
			out[c] = v
		}
	}
	return out
}
