package ansi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/txn2/sql-gateway/pkg/syntax"
)

// Expression precedence, loosest first:
// OR, AND, NOT, comparison, additive, multiplicative, unary, primary.

func (parser *Parser) parseExpr() (syntax.Expr, error) {
	return parser.parseOr()
}

func (parser *Parser) parseOr() (syntax.Expr, error) {
	left, err := parser.parseAnd()
	if err != nil {
		return nil, err
	}
	for parser.acceptKeyword("OR") {
		right, err := parser.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &syntax.Binary{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (parser *Parser) parseAnd() (syntax.Expr, error) {
	left, err := parser.parseNot()
	if err != nil {
		return nil, err
	}
	for parser.acceptKeyword("AND") {
		right, err := parser.parseNot()
		if err != nil {
			return nil, err
		}
		left = &syntax.Binary{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (parser *Parser) parseNot() (syntax.Expr, error) {
	if parser.acceptKeyword("NOT") {
		inner, err := parser.parseNot()
		if err != nil {
			return nil, err
		}
		return &syntax.Unary{Op: "not", Expr: inner}, nil
	}
	return parser.parseComparison()
}

var comparisonOps = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (parser *Parser) parseComparison() (syntax.Expr, error) {
	left, err := parser.parseAdditive()
	if err != nil {
		return nil, err
	}

	token := parser.peek()
	if token.Type == Operator && comparisonOps[token.Value] {
		parser.next()
		right, err := parser.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &syntax.Binary{Op: token.Value, Left: left, Right: right}, nil
	}
	if token.Type != Word {
		return left, nil
	}

	if parser.acceptKeyword("IS") {
		not := parser.acceptKeyword("NOT")
		if err := parser.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &syntax.IsNull{Expr: left, Not: not}, nil
	}

	not := false
	if token.Upper == "NOT" {
		switch parser.peekAt(1).Upper {
		case "IN", "LIKE", "ILIKE", "BETWEEN":
			parser.next()
			not = true
		default:
			return left, nil
		}
	}

	switch {
	case parser.acceptKeyword("IN"):
		list, err := parser.parseInList()
		if err != nil {
			return nil, err
		}
		return &syntax.In{Expr: left, List: list, Not: not}, nil
	case parser.acceptKeyword("LIKE"), parser.acceptKeyword("ILIKE"):
		pattern, err := parser.parseAdditive()
		if err != nil {
			return nil, err
		}
		op := "like"
		if not {
			op = "not like"
		}
		return &syntax.Binary{Op: op, Left: left, Right: pattern}, nil
	case parser.acceptKeyword("BETWEEN"):
		low, err := parser.parseAdditive()
		if err != nil {
			return nil, err
		}
		if err := parser.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := parser.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &syntax.Between{Expr: left, Low: low, High: high, Not: not}, nil
	}
	return left, nil
}

func (parser *Parser) parseInList() ([]syntax.Expr, error) {
	if parser.peek().Type == ParenOpen && parser.peekAt(1).Upper == "SELECT" {
		sub, err := parser.parseSubquery()
		if err != nil {
			return nil, err
		}
		return []syntax.Expr{sub}, nil
	}
	if err := parser.expect(ParenOpen); err != nil {
		return nil, err
	}
	list, err := parser.parseExprList()
	if err != nil {
		return nil, err
	}
	if err := parser.expect(ParenClose); err != nil {
		return nil, err
	}
	return list, nil
}

func (parser *Parser) parseAdditive() (syntax.Expr, error) {
	left, err := parser.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		token := parser.peek()
		if token.Type != Operator || (token.Value != "+" && token.Value != "-" && token.Value != "||") {
			return left, nil
		}
		parser.next()
		right, err := parser.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &syntax.Binary{Op: token.Value, Left: left, Right: right}
	}
}

func (parser *Parser) parseMultiplicative() (syntax.Expr, error) {
	left, err := parser.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		token := parser.peek()
		var op string
		switch {
		case token.Type == Star:
			op = "*"
		case token.Type == Operator && (token.Value == "/" || token.Value == "%"):
			op = token.Value
		default:
			return left, nil
		}
		parser.next()
		right, err := parser.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &syntax.Binary{Op: op, Left: left, Right: right}
	}
}

func (parser *Parser) parseUnary() (syntax.Expr, error) {
	token := parser.peek()
	if token.Type == Operator && (token.Value == "-" || token.Value == "+") {
		parser.next()
		inner, err := parser.parseUnary()
		if err != nil {
			return nil, err
		}
		if token.Value == "+" {
			return inner, nil
		}
		if lit, ok := inner.(*syntax.Literal); ok {
			switch v := lit.Value.(type) {
			case int64:
				return &syntax.Literal{Value: -v}, nil
			case float64:
				return &syntax.Literal{Value: -v}, nil
			}
		}
		return &syntax.Unary{Op: "-", Expr: inner}, nil
	}
	return parser.parsePrimary()
}

func (parser *Parser) parsePrimary() (syntax.Expr, error) {
	token := parser.peek()
	switch token.Type {
	case Int:
		parser.next()
		if n, err := strconv.ParseInt(token.Value, 10, 64); err == nil {
			return &syntax.Literal{Value: n}, nil
		}
		f, err := strconv.ParseFloat(token.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", token)
		}
		return &syntax.Literal{Value: f}, nil
	case Float:
		parser.next()
		f, err := strconv.ParseFloat(token.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", token)
		}
		return &syntax.Literal{Value: f}, nil
	case String:
		parser.next()
		return &syntax.Literal{Value: token.Value}, nil
	case Param:
		parser.next()
		return &syntax.Raw{Text: token.Value}, nil
	case ParenOpen:
		if parser.peekAt(1).Upper == "SELECT" {
			return parser.parseSubquery()
		}
		parser.next()
		inner, err := parser.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := parser.expect(ParenClose); err != nil {
			return nil, err
		}
		return inner, nil
	case Word, QuotedIdent:
		return parser.parseWordExpr()
	default:
		return nil, fmt.Errorf("expected expression, got %s", token)
	}
}

func (parser *Parser) parseWordExpr() (syntax.Expr, error) {
	token := parser.peek()
	if token.Type == Word {
		switch token.Upper {
		case "NULL":
			parser.next()
			return &syntax.Literal{}, nil
		case "TRUE":
			parser.next()
			return &syntax.Literal{Value: true}, nil
		case "FALSE":
			parser.next()
			return &syntax.Literal{Value: false}, nil
		case "CASE":
			return parser.parseCase()
		case "EXISTS":
			parser.next()
			sub, err := parser.parseSubquery()
			if err != nil {
				return nil, err
			}
			return &syntax.Raw{Text: "exists " + sub.(*syntax.Raw).Text}, nil
		}
		if reserved[token.Upper] {
			return nil, fmt.Errorf("expected expression, got %s", token)
		}
	}

	name, err := parser.parseName()
	if err != nil {
		return nil, err
	}

	if parser.peek().Type == Dot && parser.peekAt(1).Type == Star {
		parser.next()
		parser.next()
		return &syntax.Star{Table: name}, nil
	}

	if parser.peek().Type == ParenOpen {
		return parser.parseFuncArgs(name)
	}

	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return &syntax.ColumnRef{Table: name[:i], Name: name[i+1:]}, nil
	}
	return &syntax.ColumnRef{Name: name}, nil
}

func (parser *Parser) parseFuncArgs(name string) (syntax.Expr, error) {
	parser.next()
	fn := &syntax.Func{Name: strings.ToLower(name)}
	if parser.accept(ParenClose) {
		return fn, nil
	}
	if parser.accept(Star) {
		fn.Args = []syntax.Expr{&syntax.Star{}}
	} else {
		fn.Distinct = parser.acceptKeyword("DISTINCT")
		args, err := parser.parseExprList()
		if err != nil {
			return nil, err
		}
		fn.Args = args
	}
	if err := parser.expect(ParenClose); err != nil {
		return nil, err
	}
	return fn, nil
}

// parseSubquery parses a parenthesized SELECT and keeps its source text.
func (parser *Parser) parseSubquery() (syntax.Expr, error) {
	open := parser.next()
	if open.Type != ParenOpen {
		return nil, fmt.Errorf("expected '(', got %s", open)
	}
	if err := parser.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	if _, err := parser.parseSelect(); err != nil {
		return nil, fmt.Errorf("parsing subquery: %w", err)
	}
	closing := parser.next()
	if closing.Type != ParenClose {
		return nil, fmt.Errorf("expected ')', got %s", closing)
	}
	return &syntax.Raw{Text: parser.sql[open.Pos : closing.Pos+1]}, nil
}

// parseCase keeps a CASE expression as source text.
func (parser *Parser) parseCase() (syntax.Expr, error) {
	start := parser.next()
	depth := 1
	for {
		token := parser.next()
		switch {
		case token.Type == EOF:
			return nil, fmt.Errorf("unterminated CASE at offset %d", start.Pos)
		case token.Type == Word && token.Upper == "CASE":
			depth++
		case token.Type == Word && token.Upper == "END":
			depth--
			if depth == 0 {
				return &syntax.Raw{Text: parser.sql[start.Pos : token.Pos+len(token.Value)]}, nil
			}
		}
	}
}
