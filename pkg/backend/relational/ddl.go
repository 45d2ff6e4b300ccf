package relational

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

var (
	typePattern      = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\(\s*\d+(\s*,\s*\d+)?\s*\))?[A-Za-z ]*$`)
	privilegePattern = regexp.MustCompile(`^[a-z]+( [a-z]+)*$`)
)

func (a *Adapter) executeDDL(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	stmts, err := a.ddlStatements(call)
	if err != nil {
		return nil, err
	}
	return a.execAll(ctx, session(call), stmts)
}

func (a *Adapter) ddlStatements(call *backend.Call) ([]string, error) {
	def := call.Definition()
	if def == nil {
		def = &operation.Definition{}
	}
	table, err := identifier(call.Target)
	if err != nil {
		return nil, err
	}

	switch call.Kind {
	case operation.Create:
		stmt, err := createTable(table, def)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil
	case operation.Alter:
		return a.alterTable(table, def)
	case operation.Drop:
		targets := def.Targets
		if len(targets) == 0 {
			targets = []string{table}
		}
		stmts := make([]string, 0, len(targets))
		for _, t := range targets {
			name, err := identifier(t)
			if err != nil {
				return nil, err
			}
			if def.IfExists {
				stmts = append(stmts, "DROP TABLE IF EXISTS "+name)
			} else {
				stmts = append(stmts, "DROP TABLE "+name)
			}
		}
		return stmts, nil
	case operation.Truncate:
		if !a.dollar {
			return []string{"DELETE FROM " + table}, nil
		}
		return []string{"TRUNCATE TABLE " + table}, nil
	case operation.Rename:
		to, err := identifier(def.NewName)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, to)}, nil
	default:
		return nil, backend.UnsupportedKind(backend.Relational, call.Kind)
	}
}

func createTable(table string, def *operation.Definition) (string, error) {
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("create table %s has no columns", table)
	}
	var cols, keys []string
	for _, c := range def.Columns {
		col, err := columnSQL(c)
		if err != nil {
			return "", err
		}
		cols = append(cols, col)
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	if len(keys) > 0 {
		cols = append(cols, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if def.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(")")
	return b.String(), nil
}

func columnSQL(c operation.ColumnDef) (string, error) {
	name, err := identifier(c.Name)
	if err != nil {
		return "", err
	}
	if !typePattern.MatchString(c.Type) {
		return "", fmt.Errorf("column %s has unsupported type %q", c.Name, c.Type)
	}
	parts := []string{name, strings.ToUpper(c.Type)}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Default != nil {
		lit, err := literalSQL(c.Default)
		if err != nil {
			return "", fmt.Errorf("column %s default: %w", c.Name, err)
		}
		parts = append(parts, "DEFAULT "+lit)
	}
	return strings.Join(parts, " "), nil
}

func (a *Adapter) alterTable(table string, def *operation.Definition) ([]string, error) {
	if len(def.Actions) == 0 {
		return nil, fmt.Errorf("alter table %s has no actions", table)
	}
	stmts := make([]string, 0, len(def.Actions))
	for _, act := range def.Actions {
		prefix := "ALTER TABLE " + table + " "
		switch act.Action {
		case operation.AlterAdd:
			col, err := columnSQL(act.Column)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, prefix+"ADD COLUMN "+col)
		case operation.AlterDrop:
			name, err := identifier(act.Column.Name)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, prefix+"DROP COLUMN "+name)
		case operation.AlterRename:
			from, err := identifier(act.Column.Name)
			if err != nil {
				return nil, err
			}
			to, err := identifier(act.NewName)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, prefix+"RENAME COLUMN "+from+" TO "+to)
		case operation.AlterModify:
			if !a.dollar {
				return nil, fmt.Errorf("sqlite cannot change column types: %w", backend.ErrUnsupportedKind)
			}
			name, err := identifier(act.Column.Name)
			if err != nil {
				return nil, err
			}
			if !typePattern.MatchString(act.Column.Type) {
				return nil, fmt.Errorf("column %s has unsupported type %q", name, act.Column.Type)
			}
			stmts = append(stmts, prefix+"ALTER COLUMN "+name+" TYPE "+strings.ToUpper(act.Column.Type))
		default:
			return nil, fmt.Errorf("unknown alter action %q", act.Action)
		}
	}
	return stmts, nil
}

// literalSQL renders a default value. DDL takes no bind parameters.
func literalSQL(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case operation.Raw:
		return string(x), nil
	default:
		return "", fmt.Errorf("unsupported literal %T", v)
	}
}

func (a *Adapter) executeDCL(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	if !a.dollar {
		return nil, fmt.Errorf("sqlite has no privileges: %w", backend.ErrUnsupportedKind)
	}
	table, err := identifier(call.Target)
	if err != nil {
		return nil, err
	}
	privileges := call.Privileges()
	principals := call.Principals()
	if len(privileges) == 0 || len(principals) == 0 {
		return nil, fmt.Errorf("%s requires privileges and principals", call.Kind)
	}

	privs := make([]string, len(privileges))
	for i, p := range privileges {
		p = strings.ToLower(strings.TrimSpace(p))
		if !privilegePattern.MatchString(p) {
			return nil, fmt.Errorf("%q is not a privilege", p)
		}
		privs[i] = strings.ToUpper(p)
	}
	grantees := make([]string, len(principals))
	for i, p := range principals {
		name, err := identifier(p)
		if err != nil {
			return nil, err
		}
		grantees[i] = name
	}

	var stmt string
	switch call.Kind {
	case operation.Grant:
		stmt = fmt.Sprintf("GRANT %s ON TABLE %s TO %s",
			strings.Join(privs, ", "), table, strings.Join(grantees, ", "))
	case operation.Revoke:
		stmt = fmt.Sprintf("REVOKE %s ON TABLE %s FROM %s",
			strings.Join(privs, ", "), table, strings.Join(grantees, ", "))
	default:
		return nil, backend.UnsupportedKind(backend.Relational, call.Kind)
	}
	return a.execAll(ctx, session(call), []string{stmt})
}

// execAll runs statements in order and sums their affected rows.
func (a *Adapter) execAll(ctx context.Context, id string, stmts []string) (*backend.Result, error) {
	out := &backend.Result{Rows: []map[string]any{}, Meta: map[string]any{"statements": stmts}}
	for _, stmt := range stmts {
		res, err := a.execSQL(ctx, id, stmt, nil)
		if err != nil {
			return nil, err
		}
		out.Affected += res.Affected
	}
	return out, nil
}
