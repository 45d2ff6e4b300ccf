package ansi

import (
	"fmt"
	"strings"

	"github.com/txn2/sql-gateway/pkg/syntax"
)

func (parser *Parser) parseCreate() (syntax.Statement, error) {
	parser.acceptKeyword("TEMPORARY")
	if err := parser.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	stmt := &syntax.Create{}
	if parser.acceptKeywords("IF", "NOT", "EXISTS") {
		stmt.IfNotExists = true
	}
	name, err := parser.parseName()
	if err != nil {
		return nil, err
	}
	stmt.Table = name

	if err := parser.expect(ParenOpen); err != nil {
		return nil, err
	}
	var primary []string
	for {
		switch {
		case parser.acceptKeywords("PRIMARY", "KEY"):
			cols, err := parser.parseIdentList()
			if err != nil {
				return nil, err
			}
			primary = append(primary, cols...)
		case parser.isTableConstraint():
			parser.skipToListEnd()
		default:
			col, err := parser.parseColumnDef()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
		}
		if !parser.accept(Comma) {
			break
		}
	}
	if err := parser.expect(ParenClose); err != nil {
		return nil, err
	}
	parser.skipTableOptions()

	for _, name := range primary {
		for i := range stmt.Columns {
			if strings.EqualFold(stmt.Columns[i].Name, name) {
				stmt.Columns[i].PrimaryKey = true
			}
		}
	}
	return stmt, nil
}

func (parser *Parser) isTableConstraint() bool {
	token := parser.peek()
	if token.Type != Word {
		return false
	}
	switch token.Upper {
	case "CONSTRAINT", "FOREIGN", "CHECK", "INDEX", "KEY":
		return true
	case "UNIQUE":
		next := parser.peekAt(1)
		return next.Type == ParenOpen || (next.Type == Word && (next.Upper == "KEY" || next.Upper == "INDEX"))
	}
	return false
}

// skipToListEnd advances to the next comma or closing paren at depth zero.
func (parser *Parser) skipToListEnd() {
	depth := 0
	for {
		token := parser.peek()
		switch token.Type {
		case EOF:
			return
		case ParenOpen:
			depth++
		case ParenClose:
			if depth == 0 {
				return
			}
			depth--
		case Comma:
			if depth == 0 {
				return
			}
		}
		parser.next()
	}
}

// skipTableOptions consumes trailing table options such as ENGINE=InnoDB.
func (parser *Parser) skipTableOptions() {
	for {
		token := parser.peek()
		if token.Type == EOF || token.Type == Semicolon {
			return
		}
		parser.next()
	}
}

func (parser *Parser) parseColumnDef() (syntax.ColumnDef, error) {
	name, err := parser.parseIdent()
	if err != nil {
		return syntax.ColumnDef{}, err
	}
	col := syntax.ColumnDef{Name: name}

	typ, err := parser.parseTypeName()
	if err != nil {
		return syntax.ColumnDef{}, fmt.Errorf("column %s: %w", name, err)
	}
	col.Type = typ

	for {
		token := parser.peek()
		if token.Type == Comma || token.Type == ParenClose || token.Type == EOF {
			return col, nil
		}
		switch {
		case parser.acceptKeywords("NOT", "NULL"):
			col.NotNull = true
		case parser.acceptKeywords("PRIMARY", "KEY"):
			col.PrimaryKey = true
			col.NotNull = true
		case parser.acceptKeyword("DEFAULT"):
			def, err := parser.parseUnary()
			if err != nil {
				return syntax.ColumnDef{}, err
			}
			col.Default = def
		case token.Type == ParenOpen:
			parser.next()
			parser.skipToListEnd()
			if err := parser.expect(ParenClose); err != nil {
				return syntax.ColumnDef{}, err
			}
		default:
			parser.next()
		}
	}
}

// parseTypeName reads a type such as INT, VARCHAR(255), DOUBLE PRECISION or
// NUMERIC(10, 2). Modifier words after the type are left for the caller.
func (parser *Parser) parseTypeName() (string, error) {
	token := parser.next()
	if token.Type != Word {
		return "", fmt.Errorf("expected type name, got %s", token)
	}
	typ := strings.ToLower(token.Value)
	for {
		next := parser.peek()
		if next.Type != Word || !typeContinuation[next.Upper] {
			break
		}
		typ += " " + strings.ToLower(next.Value)
		parser.next()
	}
	if parser.peek().Type == ParenOpen {
		parser.next()
		var args []string
		for {
			arg := parser.next()
			if arg.Type != Int && arg.Type != Word && arg.Type != String {
				return "", fmt.Errorf("expected type argument, got %s", arg)
			}
			args = append(args, arg.Value)
			if !parser.accept(Comma) {
				break
			}
		}
		if err := parser.expect(ParenClose); err != nil {
			return "", err
		}
		typ += "(" + strings.Join(args, ",") + ")"
	}
	return typ, nil
}

var typeContinuation = map[string]bool{
	"PRECISION": true,
	"VARYING":   true,
	"UNSIGNED":  true,
	"WITHOUT":   true,
	"WITH":      true,
	"TIME":      true,
	"ZONE":      true,
}

func (parser *Parser) parseAlter() (syntax.Statement, error) {
	if err := parser.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	parser.acceptKeywords("IF", "EXISTS")
	table, err := parser.parseName()
	if err != nil {
		return nil, err
	}

	if parser.acceptKeywords("RENAME", "TO") {
		to, err := parser.parseName()
		if err != nil {
			return nil, err
		}
		return &syntax.Rename{From: table, To: to}, nil
	}

	stmt := &syntax.Alter{Table: table}
	for {
		clause, err := parser.parseAlterClause()
		if err != nil {
			return nil, err
		}
		stmt.Clauses = append(stmt.Clauses, clause)
		if !parser.accept(Comma) {
			return stmt, nil
		}
	}
}

func (parser *Parser) parseAlterClause() (syntax.AlterClause, error) {
	switch {
	case parser.acceptKeyword("ADD"):
		parser.acceptKeyword("COLUMN")
		parser.acceptKeywords("IF", "NOT", "EXISTS")
		col, err := parser.parseColumnDef()
		if err != nil {
			return syntax.AlterClause{}, err
		}
		return syntax.AlterClause{Action: "add", Column: col}, nil
	case parser.acceptKeyword("DROP"):
		parser.acceptKeyword("COLUMN")
		parser.acceptKeywords("IF", "EXISTS")
		name, err := parser.parseIdent()
		if err != nil {
			return syntax.AlterClause{}, err
		}
		parser.acceptKeyword("CASCADE")
		return syntax.AlterClause{Action: "drop", Column: syntax.ColumnDef{Name: name}}, nil
	case parser.acceptKeyword("RENAME"):
		parser.acceptKeyword("COLUMN")
		from, err := parser.parseIdent()
		if err != nil {
			return syntax.AlterClause{}, err
		}
		if err := parser.expectKeyword("TO"); err != nil {
			return syntax.AlterClause{}, err
		}
		to, err := parser.parseIdent()
		if err != nil {
			return syntax.AlterClause{}, err
		}
		return syntax.AlterClause{Action: "rename", Column: syntax.ColumnDef{Name: from}, NewName: to}, nil
	case parser.acceptKeyword("MODIFY"):
		parser.acceptKeyword("COLUMN")
		col, err := parser.parseColumnDef()
		if err != nil {
			return syntax.AlterClause{}, err
		}
		return syntax.AlterClause{Action: "modify", Column: col}, nil
	case parser.acceptKeyword("ALTER"):
		parser.acceptKeyword("COLUMN")
		name, err := parser.parseIdent()
		if err != nil {
			return syntax.AlterClause{}, err
		}
		if !parser.acceptKeywords("SET", "DATA", "TYPE") {
			if err := parser.expectKeyword("TYPE"); err != nil {
				return syntax.AlterClause{}, err
			}
		}
		typ, err := parser.parseTypeName()
		if err != nil {
			return syntax.AlterClause{}, err
		}
		return syntax.AlterClause{Action: "modify", Column: syntax.ColumnDef{Name: name, Type: typ}}, nil
	default:
		return syntax.AlterClause{}, fmt.Errorf("unsupported ALTER TABLE clause at %s", parser.peek())
	}
}

func (parser *Parser) parseDrop() (syntax.Statement, error) {
	if err := parser.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	stmt := &syntax.Drop{}
	if parser.acceptKeywords("IF", "EXISTS") {
		stmt.IfExists = true
	}
	for {
		name, err := parser.parseName()
		if err != nil {
			return nil, err
		}
		stmt.Tables = append(stmt.Tables, name)
		if !parser.accept(Comma) {
			break
		}
	}
	if !parser.acceptKeyword("CASCADE") {
		parser.acceptKeyword("RESTRICT")
	}
	return stmt, nil
}

func (parser *Parser) parseRename() (syntax.Statement, error) {
	if err := parser.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	from, err := parser.parseName()
	if err != nil {
		return nil, err
	}
	if err := parser.expectKeyword("TO"); err != nil {
		return nil, err
	}
	to, err := parser.parseName()
	if err != nil {
		return nil, err
	}
	return &syntax.Rename{From: from, To: to}, nil
}
