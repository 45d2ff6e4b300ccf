package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/txn2/sql-gateway/pkg/syntax"
)

// errNotDecomposable is returned for statements the MySQL grammar accepts
// without keeping enough structure to build a node, such as DESCRIBE or a
// non-rename ALTER. Declining lets a later dialect parse them.
var errNotDecomposable = errors.New("statement not decomposable by mysql grammar")

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return DialectMySQL }

func (mysqlDialect) Parse(sql string) (syntax.Statement, error) {
	stmt, err := sqlparser.ParseStrictDDL(sql)
	if err != nil {
		return nil, err
	}
	return convertStatement(stmt)
}

func convertStatement(stmt sqlparser.Statement) (syntax.Statement, error) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return convertSelect(s)
	case *sqlparser.Insert:
		return convertInsert(s)
	case *sqlparser.Update:
		return convertUpdate(s)
	case *sqlparser.Delete:
		return convertDelete(s)
	case *sqlparser.DDL:
		return convertDDL(s)
	case *sqlparser.Begin:
		return &syntax.Transaction{Action: syntax.ActionBegin}, nil
	case *sqlparser.Commit:
		return &syntax.Transaction{Action: syntax.ActionCommit}, nil
	case *sqlparser.Rollback:
		return &syntax.Transaction{Action: syntax.ActionRollback}, nil
	default:
		return nil, fmt.Errorf("%T: %w", stmt, errNotDecomposable)
	}
}

func convertSelect(s *sqlparser.Select) (syntax.Statement, error) {
	out := &syntax.Select{Distinct: s.Distinct != ""}

	for _, se := range s.SelectExprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			out.Columns = append(out.Columns, &syntax.Star{Table: tableName(e.TableName)})
		case *sqlparser.AliasedExpr:
			out.Columns = append(out.Columns, convertExpr(e.Expr))
		default:
			out.Columns = append(out.Columns, &syntax.Raw{Text: sqlparser.String(se)})
		}
	}

	from, err := convertTableExprs(s.From)
	if err != nil {
		return nil, err
	}
	// A bare "SELECT 1" comes back with FROM dual.
	if len(from) == 1 && from[0].Name == "dual" {
		from = nil
	}
	out.From = from

	if s.Where != nil {
		out.Where = convertExpr(s.Where.Expr)
	}
	for _, g := range s.GroupBy {
		out.GroupBy = append(out.GroupBy, convertExpr(g))
	}
	if s.Having != nil {
		out.Having = convertExpr(s.Having.Expr)
	}
	for _, o := range s.OrderBy {
		out.OrderBy = append(out.OrderBy, syntax.OrderItem{
			Expr: convertExpr(o.Expr),
			Desc: o.Direction == sqlparser.DescScr,
		})
	}
	if s.Limit != nil {
		out.Limit = &syntax.Limit{Count: convertExpr(s.Limit.Rowcount)}
		if s.Limit.Offset != nil {
			out.Limit.Offset = convertExpr(s.Limit.Offset)
		}
	}
	return out, nil
}

func convertTableExprs(exprs sqlparser.TableExprs) ([]syntax.TableRef, error) {
	var refs []syntax.TableRef
	for i, te := range exprs {
		sub, err := convertTableExpr(te)
		if err != nil {
			return nil, err
		}
		if i > 0 && len(sub) > 0 && sub[0].Join == "" {
			sub[0].Join = "cross join"
		}
		refs = append(refs, sub...)
	}
	return refs, nil
}

func convertTableExpr(te sqlparser.TableExpr) ([]syntax.TableRef, error) {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		name, ok := t.Expr.(sqlparser.TableName)
		if !ok {
			return nil, fmt.Errorf("derived table %s: %w", sqlparser.String(t.Expr), errNotDecomposable)
		}
		return []syntax.TableRef{{Name: tableName(name), Alias: t.As.String()}}, nil
	case *sqlparser.ParenTableExpr:
		return convertTableExprs(t.Exprs)
	case *sqlparser.JoinTableExpr:
		left, err := convertTableExpr(t.LeftExpr)
		if err != nil {
			return nil, err
		}
		right, err := convertTableExpr(t.RightExpr)
		if err != nil {
			return nil, err
		}
		if len(left) == 0 || len(right) == 0 {
			return nil, fmt.Errorf("empty join operand: %w", errNotDecomposable)
		}
		right[0].Join = t.Join
		switch {
		case t.Condition.On != nil:
			right[0].On = convertExpr(t.Condition.On)
		case len(t.Condition.Using) > 0:
			cols := make([]string, len(t.Condition.Using))
			for i, c := range t.Condition.Using {
				cols[i] = c.String()
			}
			right[0].On = syntax.UsingCondition(left[len(left)-1], right[0], cols)
		}
		return append(left, right...), nil
	default:
		return nil, fmt.Errorf("%T: %w", te, errNotDecomposable)
	}
}

func convertInsert(s *sqlparser.Insert) (syntax.Statement, error) {
	out := &syntax.Insert{Table: tableName(s.Table)}
	for _, c := range s.Columns {
		out.Columns = append(out.Columns, c.String())
	}
	values, ok := s.Rows.(sqlparser.Values)
	if !ok {
		return nil, fmt.Errorf("insert from select: %w", errNotDecomposable)
	}
	for _, tuple := range values {
		row := make([]syntax.Expr, len(tuple))
		for i, e := range tuple {
			row[i] = convertExpr(e)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func singleTable(exprs sqlparser.TableExprs) (string, error) {
	refs, err := convertTableExprs(exprs)
	if err != nil {
		return "", err
	}
	if len(refs) != 1 {
		return "", fmt.Errorf("multi-table statement: %w", errNotDecomposable)
	}
	return refs[0].Name, nil
}

func convertUpdate(s *sqlparser.Update) (syntax.Statement, error) {
	table, err := singleTable(s.TableExprs)
	if err != nil {
		return nil, err
	}
	out := &syntax.Update{Table: table}
	for _, ue := range s.Exprs {
		out.Set = append(out.Set, syntax.Assignment{
			Column: ue.Name.Name.String(),
			Value:  convertExpr(ue.Expr),
		})
	}
	if s.Where != nil {
		out.Where = convertExpr(s.Where.Expr)
	}
	return out, nil
}

func convertDelete(s *sqlparser.Delete) (syntax.Statement, error) {
	if len(s.Targets) > 0 {
		return nil, fmt.Errorf("multi-table delete: %w", errNotDecomposable)
	}
	table, err := singleTable(s.TableExprs)
	if err != nil {
		return nil, err
	}
	out := &syntax.Delete{Table: table}
	if s.Where != nil {
		out.Where = convertExpr(s.Where.Expr)
	}
	return out, nil
}

func convertDDL(s *sqlparser.DDL) (syntax.Statement, error) {
	switch s.Action {
	case sqlparser.CreateStr:
		if s.TableSpec == nil {
			return nil, fmt.Errorf("create without table spec: %w", errNotDecomposable)
		}
		return convertCreate(s), nil
	case sqlparser.DropStr:
		return &syntax.Drop{Tables: []string{tableName(s.Table)}, IfExists: s.IfExists}, nil
	case sqlparser.TruncateStr:
		return &syntax.Truncate{Table: tableName(s.Table)}, nil
	case sqlparser.RenameStr:
		return &syntax.Rename{From: tableName(s.Table), To: tableName(s.NewName)}, nil
	default:
		// ALTER clauses are discarded by the grammar.
		return nil, fmt.Errorf("ddl %q: %w", s.Action, errNotDecomposable)
	}
}

func convertCreate(s *sqlparser.DDL) *syntax.Create {
	out := &syntax.Create{Table: tableName(s.NewName)}
	for _, col := range s.TableSpec.Columns {
		def := syntax.ColumnDef{
			Name:       col.Name.String(),
			Type:       columnType(col.Type),
			NotNull:    bool(col.Type.NotNull),
			PrimaryKey: strings.HasSuffix(sqlparser.String(&col.Type), "primary key"),
		}
		if col.Type.Default != nil {
			def.Default = convertExpr(col.Type.Default)
		}
		if def.PrimaryKey {
			def.NotNull = true
		}
		out.Columns = append(out.Columns, def)
	}
	for _, idx := range s.TableSpec.Indexes {
		if idx.Info == nil || !idx.Info.Primary {
			continue
		}
		for _, ic := range idx.Columns {
			for i := range out.Columns {
				if strings.EqualFold(out.Columns[i].Name, ic.Column.String()) {
					out.Columns[i].PrimaryKey = true
					out.Columns[i].NotNull = true
				}
			}
		}
	}
	return out
}

func columnType(ct sqlparser.ColumnType) string {
	typ := strings.ToLower(ct.Type)
	switch {
	case ct.Length != nil && ct.Scale != nil:
		typ += "(" + string(ct.Length.Val) + "," + string(ct.Scale.Val) + ")"
	case ct.Length != nil:
		typ += "(" + string(ct.Length.Val) + ")"
	}
	if ct.Unsigned {
		typ += " unsigned"
	}
	return typ
}

func tableName(t sqlparser.TableName) string {
	if t.IsEmpty() {
		return ""
	}
	if !t.Qualifier.IsEmpty() {
		return t.Qualifier.String() + "." + t.Name.String()
	}
	return t.Name.String()
}

func convertExpr(e sqlparser.Expr) syntax.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *sqlparser.ColName:
		return &syntax.ColumnRef{Table: tableName(n.Qualifier), Name: n.Name.String()}
	case *sqlparser.SQLVal:
		return convertVal(n)
	case *sqlparser.NullVal:
		return &syntax.Literal{}
	case sqlparser.BoolVal:
		return &syntax.Literal{Value: bool(n)}
	case *sqlparser.AndExpr:
		return &syntax.Binary{Op: "and", Left: convertExpr(n.Left), Right: convertExpr(n.Right)}
	case *sqlparser.OrExpr:
		return &syntax.Binary{Op: "or", Left: convertExpr(n.Left), Right: convertExpr(n.Right)}
	case *sqlparser.NotExpr:
		return &syntax.Unary{Op: "not", Expr: convertExpr(n.Expr)}
	case *sqlparser.ParenExpr:
		return convertExpr(n.Expr)
	case *sqlparser.ComparisonExpr:
		return convertComparison(n)
	case *sqlparser.RangeCond:
		return &syntax.Between{
			Expr: convertExpr(n.Left),
			Low:  convertExpr(n.From),
			High: convertExpr(n.To),
			Not:  n.Operator == sqlparser.NotBetweenStr,
		}
	case *sqlparser.IsExpr:
		switch n.Operator {
		case sqlparser.IsNullStr:
			return &syntax.IsNull{Expr: convertExpr(n.Expr)}
		case sqlparser.IsNotNullStr:
			return &syntax.IsNull{Expr: convertExpr(n.Expr), Not: true}
		}
	case *sqlparser.FuncExpr:
		fn := &syntax.Func{Name: n.Name.Lowered(), Distinct: n.Distinct}
		for _, arg := range n.Exprs {
			switch a := arg.(type) {
			case *sqlparser.StarExpr:
				fn.Args = append(fn.Args, &syntax.Star{Table: tableName(a.TableName)})
			case *sqlparser.AliasedExpr:
				fn.Args = append(fn.Args, convertExpr(a.Expr))
			}
		}
		return fn
	case *sqlparser.BinaryExpr:
		switch n.Operator {
		case sqlparser.PlusStr, sqlparser.MinusStr, sqlparser.MultStr, sqlparser.DivStr, sqlparser.ModStr:
			return &syntax.Binary{Op: n.Operator, Left: convertExpr(n.Left), Right: convertExpr(n.Right)}
		}
	case *sqlparser.UnaryExpr:
		if n.Operator == sqlparser.UMinusStr {
			inner := convertExpr(n.Expr)
			if lit, ok := inner.(*syntax.Literal); ok {
				switch v := lit.Value.(type) {
				case int64:
					return &syntax.Literal{Value: -v}
				case float64:
					return &syntax.Literal{Value: -v}
				}
			}
			return &syntax.Unary{Op: "-", Expr: inner}
		}
	}
	return &syntax.Raw{Text: sqlparser.String(e)}
}

func convertComparison(n *sqlparser.ComparisonExpr) syntax.Expr {
	switch n.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		in := &syntax.In{Expr: convertExpr(n.Left), Not: n.Operator == sqlparser.NotInStr}
		if tuple, ok := n.Right.(sqlparser.ValTuple); ok {
			for _, item := range tuple {
				in.List = append(in.List, convertExpr(item))
			}
		} else {
			in.List = []syntax.Expr{&syntax.Raw{Text: sqlparser.String(n.Right)}}
		}
		return in
	case sqlparser.EqualStr, sqlparser.NotEqualStr, sqlparser.LessThanStr, sqlparser.LessEqualStr,
		sqlparser.GreaterThanStr, sqlparser.GreaterEqualStr, sqlparser.LikeStr, sqlparser.NotLikeStr:
		if n.Escape != nil {
			break
		}
		return &syntax.Binary{Op: n.Operator, Left: convertExpr(n.Left), Right: convertExpr(n.Right)}
	}
	return &syntax.Raw{Text: sqlparser.String(n)}
}

func convertVal(v *sqlparser.SQLVal) syntax.Expr {
	switch v.Type {
	case sqlparser.StrVal:
		return &syntax.Literal{Value: string(v.Val)}
	case sqlparser.IntVal:
		if n, err := strconv.ParseInt(string(v.Val), 10, 64); err == nil {
			return &syntax.Literal{Value: n}
		}
		if f, err := strconv.ParseFloat(string(v.Val), 64); err == nil {
			return &syntax.Literal{Value: f}
		}
	case sqlparser.FloatVal:
		if f, err := strconv.ParseFloat(string(v.Val), 64); err == nil {
			return &syntax.Literal{Value: f}
		}
	}
	return &syntax.Raw{Text: sqlparser.String(v)}
}
