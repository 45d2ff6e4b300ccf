package ansi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sql-gateway/pkg/syntax"
)

func TestLexer(t *testing.T) {
	tokens, err := NewLexer(`SELECT "a", 'it''s', 1.5e3, $1 <> x -- trailing`, true).Tokens()
	require.NoError(t, err)

	types := make([]TokenType, 0, len(tokens))
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{Word, QuotedIdent, Comma, String, Comma, Float, Comma, Param, Operator, Word, EOF}, types)
	assert.Equal(t, "it's", tokens[3].Value)
	assert.Equal(t, "!=", tokens[8].Value)

	tokens, err = NewLexer(`"a"`, false).Tokens()
	require.NoError(t, err)
	assert.Equal(t, String, tokens[0].Type)
}

func TestLexerErrors(t *testing.T) {
	for _, sql := range []string{"'open", "/* open", "select #"} {
		_, err := NewLexer(sql, true).Tokens()
		assert.Error(t, err, sql)
	}
}

func TestParseSelect(t *testing.T) {
	stmt, err := Parse(`SELECT DISTINCT u.id, name AS n, count(*) FROM users u
		LEFT JOIN orders o ON o.user_id = u.id
		WHERE age >= 18 AND (status = 'active' OR vip = TRUE)
		GROUP BY u.id ORDER BY name DESC, u.id LIMIT 10 OFFSET 20;`, Postgres)
	require.NoError(t, err)

	sel, ok := stmt.(*syntax.Select)
	require.True(t, ok)
	assert.True(t, sel.Distinct)
	require.Len(t, sel.Columns, 3)
	assert.Equal(t, &syntax.ColumnRef{Table: "u", Name: "id"}, sel.Columns[0])
	assert.Equal(t, &syntax.Func{Name: "count", Args: []syntax.Expr{&syntax.Star{}}}, sel.Columns[2])

	require.Len(t, sel.From, 2)
	assert.Equal(t, syntax.TableRef{Name: "users", Alias: "u"}, sel.From[0])
	assert.Equal(t, "left join", sel.From[1].Join)
	assert.Equal(t, "o.user_id = u.id", syntax.Format(sel.From[1].On))

	assert.Equal(t, "age >= 18 and (status = 'active' or vip = true)", syntax.Format(sel.Where))
	require.Len(t, sel.OrderBy, 2)
	assert.True(t, sel.OrderBy[0].Desc)
	assert.False(t, sel.OrderBy[1].Desc)
	assert.Equal(t, &syntax.Limit{Count: &syntax.Literal{Value: int64(10)}, Offset: &syntax.Literal{Value: int64(20)}}, sel.Limit)
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		where string
		want  string
	}{
		{"a = 1", "a = 1"},
		{"a <> 'x'", "a != 'x'"},
		{"a NOT IN (1, 2)", "a not in (1, 2)"},
		{"a BETWEEN 1 AND 5 AND b = 2", "a between 1 and 5 and b = 2"},
		{"a IS NOT NULL", "a is not null"},
		{"NOT a LIKE 'x%'", "not a like 'x%'"},
		{"a NOT LIKE 'x%'", "a not like 'x%'"},
		{"a = -3", "a = -3"},
		{"a + b * 2 > 10", "a + b * 2 > 10"},
		{"a IN (SELECT id FROM t)", "a in ((SELECT id FROM t))"},
		{"a = ?", "a = ?"},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			stmt, err := Parse("SELECT * FROM t WHERE "+tt.where, Postgres)
			require.NoError(t, err)
			assert.Equal(t, tt.want, syntax.Format(stmt.(*syntax.Select).Where))
		})
	}
}

func TestParseUsingJoin(t *testing.T) {
	stmt, err := Parse("SELECT * FROM a JOIN b USING (id)", Generic)
	require.NoError(t, err)
	sel := stmt.(*syntax.Select)
	assert.Equal(t, "a.id = b.id", syntax.Format(sel.From[1].On))
}

func TestParseDML(t *testing.T) {
	stmt, err := Parse("INSERT INTO users (id, name) VALUES (1, 'a'), (2, 'b') RETURNING id", Postgres)
	require.NoError(t, err)
	ins := stmt.(*syntax.Insert)
	assert.Equal(t, "users", ins.Table)
	assert.Equal(t, []string{"id", "name"}, ins.Columns)
	assert.Len(t, ins.Rows, 2)

	stmt, err = Parse("UPDATE users SET users.name = 'x', age = age + 1 WHERE id = 3", Postgres)
	require.NoError(t, err)
	upd := stmt.(*syntax.Update)
	require.Len(t, upd.Set, 2)
	assert.Equal(t, "name", upd.Set[0].Column)
	assert.Equal(t, "id = 3", syntax.Format(upd.Where))

	stmt, err = Parse("DELETE FROM users", Postgres)
	require.NoError(t, err)
	assert.Nil(t, stmt.(*syntax.Delete).Where)

	stmt, err = Parse("CALL refresh(1, 'x')", Postgres)
	require.NoError(t, err)
	assert.Len(t, stmt.(*syntax.Call).Args, 2)
}

func TestParseDDL(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE IF NOT EXISTS users (
		id BIGINT NOT NULL,
		name VARCHAR(255) DEFAULT 'anon',
		score NUMERIC(10, 2),
		org_id INT REFERENCES orgs(id),
		PRIMARY KEY (id),
		UNIQUE (name)
	)`, Postgres)
	require.NoError(t, err)
	create := stmt.(*syntax.Create)
	assert.True(t, create.IfNotExists)
	require.Len(t, create.Columns, 4)
	assert.Equal(t, "bigint", create.Columns[0].Type)
	assert.True(t, create.Columns[0].PrimaryKey)
	assert.True(t, create.Columns[0].NotNull)
	assert.Equal(t, "varchar(255)", create.Columns[1].Type)
	assert.Equal(t, &syntax.Literal{Value: "anon"}, create.Columns[1].Default)
	assert.Equal(t, "numeric(10,2)", create.Columns[2].Type)

	stmt, err = Parse("ALTER TABLE users ADD COLUMN email TEXT, DROP COLUMN score, RENAME COLUMN name TO full_name", Postgres)
	require.NoError(t, err)
	alter := stmt.(*syntax.Alter)
	require.Len(t, alter.Clauses, 3)
	assert.Equal(t, "add", alter.Clauses[0].Action)
	assert.Equal(t, "drop", alter.Clauses[1].Action)
	assert.Equal(t, "full_name", alter.Clauses[2].NewName)

	stmt, err = Parse("ALTER TABLE users RENAME TO people", Postgres)
	require.NoError(t, err)
	assert.Equal(t, &syntax.Rename{From: "users", To: "people"}, stmt)

	stmt, err = Parse("DROP TABLE IF EXISTS a, b CASCADE", Postgres)
	require.NoError(t, err)
	assert.Equal(t, &syntax.Drop{Tables: []string{"a", "b"}, IfExists: true}, stmt)

	stmt, err = Parse("TRUNCATE TABLE logs", Postgres)
	require.NoError(t, err)
	assert.Equal(t, &syntax.Truncate{Table: "logs"}, stmt)
}

func TestParseControlStatements(t *testing.T) {
	tests := []struct {
		sql  string
		want syntax.Statement
	}{
		{"BEGIN", &syntax.Transaction{Action: syntax.ActionBegin}},
		{"START TRANSACTION", &syntax.Transaction{Action: syntax.ActionBegin}},
		{"COMMIT WORK", &syntax.Transaction{Action: syntax.ActionCommit}},
		{"END", &syntax.Transaction{Action: syntax.ActionEnd}},
		{"ROLLBACK", &syntax.Transaction{Action: syntax.ActionRollback}},
		{"ROLLBACK TO SAVEPOINT sp1", &syntax.Transaction{Action: syntax.ActionRollback, Name: "sp1"}},
		{"SAVEPOINT sp1", &syntax.Transaction{Action: syntax.ActionSavepoint, Name: "sp1"}},
		{"DESCRIBE users", &syntax.Describe{Table: "users"}},
		{
			"GRANT SELECT, INSERT ON TABLE users TO alice, bob WITH GRANT OPTION",
			&syntax.Grant{Privilege: syntax.Privilege{
				Privileges: []string{"select", "insert"},
				Object:     "users",
				Principals: []string{"alice", "bob"},
			}},
		},
		{
			"REVOKE ALL PRIVILEGES ON users FROM alice",
			&syntax.Revoke{Privilege: syntax.Privilege{
				Privileges: []string{"all privileges"},
				Object:     "users",
				Principals: []string{"alice"},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			stmt, err := Parse(tt.sql, Postgres)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt)
		})
	}
}

func TestParseExplain(t *testing.T) {
	stmt, err := Parse("EXPLAIN SELECT * FROM users", Postgres)
	require.NoError(t, err)
	explain := stmt.(*syntax.Explain)
	assert.Equal(t, syntax.TagSelect, explain.Statement.Tag())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("   ", Postgres)
	assert.ErrorIs(t, err, ErrEmptyStatement)

	for _, sql := range []string{
		"SELEC * FROM t",
		"SELECT * FROM t WHERE",
		"SELECT * FROM t; SELECT 1",
		"INSERT users VALUES (1)",
		"UPDATE t SET a 1",
		"CREATE TABLE t (id)",
		"ALTER TABLE t FROB x",
		"SELECT CASE WHEN a THEN b",
	} {
		_, err := Parse(sql, Postgres)
		assert.Error(t, err, sql)
	}
}
