// Package ansi implements a hand-written recursive-descent parser for the
// ANSI-flavoured statements the gateway accepts: the common DML, table DDL,
// GRANT/REVOKE and the full transaction-control family including savepoints.
package ansi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/txn2/sql-gateway/pkg/syntax"
)

// Mode selects how double-quoted text is read.
type Mode int

const (
	// Postgres reads "x" as an identifier.
	Postgres Mode = iota
	// Generic reads "x" as a string literal.
	Generic
)

// reserved words never start an alias.
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "BY": true,
	"HAVING": true, "ORDER": true, "LIMIT": true, "OFFSET": true, "JOIN": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true,
	"CROSS": true, "ON": true, "AND": true, "OR": true, "NOT": true, "AS": true,
	"UNION": true, "SET": true, "VALUES": true, "INTO": true, "ASC": true,
	"DESC": true, "IN": true, "IS": true, "NULL": true, "LIKE": true,
	"BETWEEN": true, "USING": true, "RETURNING": true,
}

// ErrEmptyStatement is returned for input with no tokens.
var ErrEmptyStatement = errors.New("empty statement")

// Parser is a recursive-descent parser over a token slice.
type Parser struct {
	sql    string
	tokens []Token
	pos    int
}

// NewParser lexes sql and returns a parser over its tokens.
func NewParser(sql string, mode Mode) (*Parser, error) {
	tokens, err := NewLexer(sql, mode == Postgres).Tokens()
	if err != nil {
		return nil, err
	}
	return &Parser{sql: sql, tokens: tokens}, nil
}

// Parse parses sql as a single statement.
func Parse(sql string, mode Mode) (syntax.Statement, error) {
	parser, err := NewParser(sql, mode)
	if err != nil {
		return nil, err
	}
	return parser.Parse()
}

// Parse parses exactly one statement, allowing a trailing semicolon.
func (parser *Parser) Parse() (syntax.Statement, error) {
	if parser.peek().Type == EOF {
		return nil, ErrEmptyStatement
	}
	stmt, err := parser.parseStatement()
	if err != nil {
		return nil, err
	}
	if parser.peek().Type == Semicolon {
		parser.next()
	}
	if token := parser.peek(); token.Type != EOF {
		return nil, fmt.Errorf("unexpected %s after statement", token)
	}
	return stmt, nil
}

func (parser *Parser) parseStatement() (syntax.Statement, error) {
	token := parser.next()
	if token.Type != Word {
		return nil, fmt.Errorf("expected statement keyword, got %s", token)
	}
	switch token.Upper {
	case "SELECT":
		return parser.parseSelect()
	case "INSERT":
		return parser.parseInsert()
	case "UPDATE":
		return parser.parseUpdate()
	case "DELETE":
		return parser.parseDelete()
	case "CREATE":
		return parser.parseCreate()
	case "ALTER":
		return parser.parseAlter()
	case "DROP":
		return parser.parseDrop()
	case "TRUNCATE":
		parser.acceptKeyword("TABLE")
		name, err := parser.parseName()
		if err != nil {
			return nil, err
		}
		return &syntax.Truncate{Table: name}, nil
	case "RENAME":
		return parser.parseRename()
	case "GRANT":
		priv, err := parser.parsePrivilege("TO")
		if err != nil {
			return nil, err
		}
		parser.acceptKeywords("WITH", "GRANT", "OPTION")
		return &syntax.Grant{Privilege: priv}, nil
	case "REVOKE":
		priv, err := parser.parsePrivilege("FROM")
		if err != nil {
			return nil, err
		}
		parser.acceptKeywords("CASCADE")
		return &syntax.Revoke{Privilege: priv}, nil
	case "BEGIN":
		parser.acceptTransactionNoise()
		return &syntax.Transaction{Action: syntax.ActionBegin}, nil
	case "START":
		if err := parser.expectKeyword("TRANSACTION"); err != nil {
			return nil, err
		}
		return &syntax.Transaction{Action: syntax.ActionBegin}, nil
	case "COMMIT":
		parser.acceptTransactionNoise()
		return &syntax.Transaction{Action: syntax.ActionCommit}, nil
	case "END":
		parser.acceptTransactionNoise()
		return &syntax.Transaction{Action: syntax.ActionEnd}, nil
	case "ROLLBACK":
		return parser.parseRollback()
	case "SAVEPOINT":
		name, err := parser.parseIdent()
		if err != nil {
			return nil, err
		}
		return &syntax.Transaction{Action: syntax.ActionSavepoint, Name: name}, nil
	case "DESCRIBE", "DESC":
		parser.acceptKeyword("TABLE")
		name, err := parser.parseName()
		if err != nil {
			return nil, err
		}
		return &syntax.Describe{Table: name}, nil
	case "EXPLAIN":
		parser.acceptKeyword("ANALYZE")
		inner, err := parser.parseStatement()
		if err != nil {
			return nil, fmt.Errorf("parsing explained statement: %w", err)
		}
		return &syntax.Explain{Statement: inner}, nil
	case "CALL":
		return parser.parseCall()
	default:
		return nil, fmt.Errorf("unsupported statement %q", token.Value)
	}
}

func (parser *Parser) acceptTransactionNoise() {
	if !parser.acceptKeyword("TRANSACTION") {
		parser.acceptKeyword("WORK")
	}
}

func (parser *Parser) parseRollback() (syntax.Statement, error) {
	parser.acceptTransactionNoise()
	if !parser.acceptKeyword("TO") {
		return &syntax.Transaction{Action: syntax.ActionRollback}, nil
	}
	parser.acceptKeyword("SAVEPOINT")
	name, err := parser.parseIdent()
	if err != nil {
		return nil, err
	}
	return &syntax.Transaction{Action: syntax.ActionRollback, Name: name}, nil
}

func (parser *Parser) parseSelect() (syntax.Statement, error) {
	var stmt syntax.Select

	if parser.acceptKeyword("DISTINCT") {
		stmt.Distinct = true
	} else {
		parser.acceptKeyword("ALL")
	}

	for {
		item, err := parser.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, item)
		if !parser.accept(Comma) {
			break
		}
	}

	if parser.acceptKeyword("FROM") {
		from, err := parser.parseFrom()
		if err != nil {
			return nil, err
		}
		stmt.From = from
	}

	if parser.acceptKeyword("WHERE") {
		where, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if parser.acceptKeywords("GROUP", "BY") {
		list, err := parser.parseExprList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = list
	}

	if parser.acceptKeyword("HAVING") {
		having, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = having
	}

	if parser.acceptKeywords("ORDER", "BY") {
		for {
			expr, err := parser.parseExpr()
			if err != nil {
				return nil, err
			}
			item := syntax.OrderItem{Expr: expr}
			if parser.acceptKeyword("DESC") {
				item.Desc = true
			} else {
				parser.acceptKeyword("ASC")
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if !parser.accept(Comma) {
				break
			}
		}
	}

	limit, err := parser.parseLimit()
	if err != nil {
		return nil, err
	}
	stmt.Limit = limit

	return &stmt, nil
}

func (parser *Parser) parseLimit() (*syntax.Limit, error) {
	var limit *syntax.Limit
	if parser.acceptKeyword("LIMIT") {
		first, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		limit = &syntax.Limit{Count: first}
		if parser.accept(Comma) {
			second, err := parser.parseExpr()
			if err != nil {
				return nil, err
			}
			limit = &syntax.Limit{Offset: first, Count: second}
		}
	}
	if parser.acceptKeyword("OFFSET") {
		offset, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		if limit == nil {
			limit = &syntax.Limit{}
		}
		limit.Offset = offset
		parser.acceptKeyword("ROWS")
	}
	return limit, nil
}

func (parser *Parser) parseSelectItem() (syntax.Expr, error) {
	if parser.accept(Star) {
		return &syntax.Star{}, nil
	}
	expr, err := parser.parseExpr()
	if err != nil {
		return nil, err
	}
	if parser.acceptKeyword("AS") {
		if _, err := parser.parseIdent(); err != nil {
			return nil, err
		}
	} else if parser.peekAlias() {
		parser.next()
	}
	return expr, nil
}

func (parser *Parser) parseFrom() ([]syntax.TableRef, error) {
	first, err := parser.parseTableRef()
	if err != nil {
		return nil, err
	}
	refs := []syntax.TableRef{first}

	for {
		if parser.accept(Comma) {
			ref, err := parser.parseTableRef()
			if err != nil {
				return nil, err
			}
			ref.Join = "cross join"
			refs = append(refs, ref)
			continue
		}

		join, ok := parser.parseJoinType()
		if !ok {
			return refs, nil
		}
		ref, err := parser.parseTableRef()
		if err != nil {
			return nil, err
		}
		ref.Join = join
		if parser.acceptKeyword("ON") {
			on, err := parser.parseExpr()
			if err != nil {
				return nil, err
			}
			ref.On = on
		} else if parser.acceptKeyword("USING") {
			cols, err := parser.parseIdentList()
			if err != nil {
				return nil, err
			}
			ref.On = syntax.UsingCondition(refs[len(refs)-1], ref, cols)
		}
		refs = append(refs, ref)
	}
}

func (parser *Parser) parseJoinType() (string, bool) {
	switch {
	case parser.acceptKeyword("JOIN"), parser.acceptKeywords("INNER", "JOIN"):
		return "join", true
	case parser.acceptKeywords("CROSS", "JOIN"):
		return "cross join", true
	}
	for _, side := range []string{"LEFT", "RIGHT", "FULL"} {
		if parser.acceptKeywords(side, "JOIN") || parser.acceptKeywords(side, "OUTER", "JOIN") {
			return strings.ToLower(side) + " join", true
		}
	}
	return "", false
}

func (parser *Parser) parseTableRef() (syntax.TableRef, error) {
	name, err := parser.parseName()
	if err != nil {
		return syntax.TableRef{}, err
	}
	ref := syntax.TableRef{Name: name}
	if parser.acceptKeyword("AS") {
		alias, err := parser.parseIdent()
		if err != nil {
			return syntax.TableRef{}, err
		}
		ref.Alias = alias
	} else if parser.peekAlias() {
		ref.Alias = parser.identValue(parser.next())
	}
	return ref, nil
}

func (parser *Parser) parseInsert() (syntax.Statement, error) {
	if err := parser.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := parser.parseName()
	if err != nil {
		return nil, err
	}
	stmt := &syntax.Insert{Table: table}

	if parser.peek().Type == ParenOpen {
		cols, err := parser.parseIdentList()
		if err != nil {
			return nil, err
		}
		stmt.Columns = cols
	}

	if err := parser.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := parser.expect(ParenOpen); err != nil {
			return nil, err
		}
		row, err := parser.parseExprList()
		if err != nil {
			return nil, err
		}
		if err := parser.expect(ParenClose); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if !parser.accept(Comma) {
			break
		}
	}

	if parser.acceptKeyword("RETURNING") {
		if _, err := parser.parseExprList(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (parser *Parser) parseUpdate() (syntax.Statement, error) {
	table, err := parser.parseName()
	if err != nil {
		return nil, err
	}
	stmt := &syntax.Update{Table: table}
	if err := parser.expectKeyword("SET"); err != nil {
		return nil, err
	}
	for {
		col, err := parser.parseName()
		if err != nil {
			return nil, err
		}
		if err := parser.expectOperator("="); err != nil {
			return nil, err
		}
		value, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, syntax.Assignment{Column: lastPart(col), Value: value})
		if !parser.accept(Comma) {
			break
		}
	}
	if parser.acceptKeyword("WHERE") {
		where, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (parser *Parser) parseDelete() (syntax.Statement, error) {
	if err := parser.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := parser.parseName()
	if err != nil {
		return nil, err
	}
	stmt := &syntax.Delete{Table: table}
	if parser.acceptKeyword("WHERE") {
		where, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (parser *Parser) parseCall() (syntax.Statement, error) {
	name, err := parser.parseName()
	if err != nil {
		return nil, err
	}
	stmt := &syntax.Call{Procedure: name}
	if err := parser.expect(ParenOpen); err != nil {
		return nil, err
	}
	if parser.accept(ParenClose) {
		return stmt, nil
	}
	args, err := parser.parseExprList()
	if err != nil {
		return nil, err
	}
	if err := parser.expect(ParenClose); err != nil {
		return nil, err
	}
	stmt.Args = args
	return stmt, nil
}

// parsePrivilege parses "<privileges> ON [TABLE] <object> <keyword> <principals>".
func (parser *Parser) parsePrivilege(principalKeyword string) (syntax.Privilege, error) {
	var priv syntax.Privilege
	for {
		var words []string
		for {
			token := parser.peek()
			if token.Type != Word || token.Upper == "ON" {
				break
			}
			words = append(words, strings.ToLower(token.Value))
			parser.next()
		}
		if len(words) == 0 {
			return priv, fmt.Errorf("expected privilege, got %s", parser.peek())
		}
		if parser.peek().Type == ParenOpen {
			if _, err := parser.parseIdentList(); err != nil {
				return priv, err
			}
		}
		priv.Privileges = append(priv.Privileges, strings.Join(words, " "))
		if !parser.accept(Comma) {
			break
		}
	}

	if err := parser.expectKeyword("ON"); err != nil {
		return priv, err
	}
	parser.acceptKeyword("TABLE")
	object, err := parser.parseName()
	if err != nil {
		return priv, err
	}
	priv.Object = object

	if err := parser.expectKeyword(principalKeyword); err != nil {
		return priv, err
	}
	for {
		token := parser.next()
		switch token.Type {
		case Word, QuotedIdent, String:
			priv.Principals = append(priv.Principals, parser.identValue(token))
		default:
			return priv, fmt.Errorf("expected principal, got %s", token)
		}
		if !parser.accept(Comma) {
			break
		}
	}
	return priv, nil
}

func (parser *Parser) parseExprList() ([]syntax.Expr, error) {
	var list []syntax.Expr
	for {
		expr, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, expr)
		if !parser.accept(Comma) {
			return list, nil
		}
	}
}

// parseIdentList parses "(a, b, c)".
func (parser *Parser) parseIdentList() ([]string, error) {
	if err := parser.expect(ParenOpen); err != nil {
		return nil, err
	}
	var idents []string
	for {
		ident, err := parser.parseIdent()
		if err != nil {
			return nil, err
		}
		idents = append(idents, ident)
		if !parser.accept(Comma) {
			break
		}
	}
	if err := parser.expect(ParenClose); err != nil {
		return nil, err
	}
	return idents, nil
}

// parseName parses a possibly qualified name such as schema.table.
func (parser *Parser) parseName() (string, error) {
	first, err := parser.parseIdent()
	if err != nil {
		return "", err
	}
	parts := []string{first}
	for parser.peek().Type == Dot && parser.peekAt(1).Type != Star {
		parser.next()
		part, err := parser.parseIdent()
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "."), nil
}

func (parser *Parser) parseIdent() (string, error) {
	token := parser.next()
	switch token.Type {
	case Word, QuotedIdent:
		return parser.identValue(token), nil
	default:
		return "", fmt.Errorf("expected identifier, got %s", token)
	}
}

func (*Parser) identValue(token Token) string {
	return token.Value
}

func (parser *Parser) peekAlias() bool {
	token := parser.peek()
	return (token.Type == Word && !reserved[token.Upper]) || token.Type == QuotedIdent
}

func (parser *Parser) peek() Token {
	return parser.peekAt(0)
}

func (parser *Parser) peekAt(n int) Token {
	if parser.pos+n >= len(parser.tokens) {
		return parser.tokens[len(parser.tokens)-1]
	}
	return parser.tokens[parser.pos+n]
}

func (parser *Parser) next() Token {
	token := parser.peek()
	if parser.pos < len(parser.tokens)-1 {
		parser.pos++
	}
	return token
}

func (parser *Parser) accept(t TokenType) bool {
	if parser.peek().Type == t {
		parser.next()
		return true
	}
	return false
}

func (parser *Parser) expect(t TokenType) error {
	if token := parser.next(); token.Type != t {
		return fmt.Errorf("expected %s, got %s", tokenTypeName(t), token)
	}
	return nil
}

func (parser *Parser) acceptKeyword(keyword string) bool {
	token := parser.peek()
	if token.Type == Word && token.Upper == keyword {
		parser.next()
		return true
	}
	return false
}

// acceptKeywords consumes the whole sequence or nothing.
func (parser *Parser) acceptKeywords(keywords ...string) bool {
	for i, keyword := range keywords {
		token := parser.peekAt(i)
		if token.Type != Word || token.Upper != keyword {
			return false
		}
	}
	for range keywords {
		parser.next()
	}
	return true
}

func (parser *Parser) expectKeyword(keyword string) error {
	if !parser.acceptKeyword(keyword) {
		return fmt.Errorf("expected %s, got %s", keyword, parser.peek())
	}
	return nil
}

func (parser *Parser) expectOperator(op string) error {
	token := parser.next()
	if token.Type != Operator || token.Value != op {
		return fmt.Errorf("expected %q, got %s", op, token)
	}
	return nil
}

func tokenTypeName(t TokenType) string {
	switch t {
	case ParenOpen:
		return "'('"
	case ParenClose:
		return "')'"
	case Comma:
		return "','"
	default:
		return "token " + strconv.Itoa(int(t))
	}
}

func lastPart(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
