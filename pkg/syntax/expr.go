package syntax

import (
	"regexp"
	"strconv"
	"strings"
)

var plainName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)*$`)

// Expr is an expression node.
type Expr interface {
	expr()
}

// ColumnRef names a column, optionally qualified by a table.
type ColumnRef struct {
	Table string
	Name  string
}

// QualifiedName returns the column name with its table prefix, unquoted.
func (c *ColumnRef) QualifiedName() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Literal is a constant. Value is int64, float64, string, bool or nil.
type Literal struct {
	Value any
}

// Star is `*` or `t.*` in a projection.
type Star struct {
	Table string
}

// Binary is a binary operator application. Op is lower case.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Unary is a prefix operator application.
type Unary struct {
	Op   string
	Expr Expr
}

// In is `x [NOT] IN (...)`.
type In struct {
	Expr Expr
	List []Expr
	Not  bool
}

// Between is `x [NOT] BETWEEN low AND high`.
type Between struct {
	Expr Expr
	Low  Expr
	High Expr
	Not  bool
}

// IsNull is `x IS [NOT] NULL`.
type IsNull struct {
	Expr Expr
	Not  bool
}

// Func is a function call.
type Func struct {
	Name     string
	Distinct bool
	Args     []Expr
}

// Raw is an expression the dialect could not decompose, kept as text.
type Raw struct {
	Text string
}

func (*ColumnRef) expr() {}
func (*Literal) expr()   {}
func (*Star) expr()      {}
func (*Binary) expr()    {}
func (*Unary) expr()     {}
func (*In) expr()        {}
func (*Between) expr()   {}
func (*IsNull) expr()    {}
func (*Func) expr()      {}
func (*Raw) expr()       {}

// Format renders e as SQL text.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		return
	case *ColumnRef:
		if n.Table != "" {
			b.WriteString(quoteName(n.Table))
			b.WriteByte('.')
		}
		b.WriteString(quoteName(n.Name))
	case *Literal:
		b.WriteString(FormatValue(n.Value))
	case *Star:
		if n.Table != "" {
			b.WriteString(quoteName(n.Table))
			b.WriteByte('.')
		}
		b.WriteByte('*')
	case *Binary:
		wrap := n.Op == "or"
		if wrap {
			b.WriteByte('(')
		}
		format(b, n.Left)
		b.WriteByte(' ')
		b.WriteString(n.Op)
		b.WriteByte(' ')
		format(b, n.Right)
		if wrap {
			b.WriteByte(')')
		}
	case *Unary:
		b.WriteString(n.Op)
		if n.Op == "not" {
			b.WriteByte(' ')
		}
		format(b, n.Expr)
	case *In:
		format(b, n.Expr)
		if n.Not {
			b.WriteString(" not")
		}
		b.WriteString(" in (")
		formatList(b, n.List)
		b.WriteByte(')')
	case *Between:
		format(b, n.Expr)
		if n.Not {
			b.WriteString(" not")
		}
		b.WriteString(" between ")
		format(b, n.Low)
		b.WriteString(" and ")
		format(b, n.High)
	case *IsNull:
		format(b, n.Expr)
		if n.Not {
			b.WriteString(" is not null")
		} else {
			b.WriteString(" is null")
		}
	case *Func:
		b.WriteString(quoteName(n.Name))
		b.WriteByte('(')
		if n.Distinct {
			b.WriteString("distinct ")
		}
		formatList(b, n.Args)
		b.WriteByte(')')
	case *Raw:
		b.WriteString(n.Text)
	}
}

// quoteName leaves plain names alone and double-quotes anything else.
func quoteName(name string) string {
	if plainName.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func formatList(b *strings.Builder, list []Expr) {
	for i, item := range list {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, item)
	}
}

// FormatValue renders a literal value as SQL text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return ""
	}
}
