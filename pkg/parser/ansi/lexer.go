package ansi

import (
	"fmt"
	"strings"
)

// TokenType classifies a token.
type TokenType int

const (
	EOF TokenType = iota
	Word
	QuotedIdent
	String
	Int
	Float
	Comma
	Dot
	Semicolon
	ParenOpen
	ParenClose
	Star
	Operator
	Param
)

// Token is a lexical token. Upper holds the upper-cased value of a Word so
// keyword checks need not repeat the conversion.
type Token struct {
	Type  TokenType
	Value string
	Upper string
	Pos   int
}

func (t Token) String() string {
	if t.Type == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q at offset %d", t.Value, t.Pos)
}

// Lexer splits statement text into tokens.
type Lexer struct {
	sql          string
	position     int
	readPosition int
	ch           byte

	// doubleQuoteIdent makes "x" an identifier rather than a string.
	doubleQuoteIdent bool
}

// NewLexer creates a lexer over sql.
func NewLexer(sql string, doubleQuoteIdent bool) *Lexer {
	lexer := &Lexer{sql: sql, doubleQuoteIdent: doubleQuoteIdent}
	lexer.readChar()
	return lexer
}

func (lexer *Lexer) readChar() {
	if lexer.readPosition >= len(lexer.sql) {
		lexer.ch = 0
	} else {
		lexer.ch = lexer.sql[lexer.readPosition]
	}
	lexer.position = lexer.readPosition
	lexer.readPosition++
}

func (lexer *Lexer) peekChar() byte {
	if lexer.readPosition >= len(lexer.sql) {
		return 0
	}
	return lexer.sql[lexer.readPosition]
}

// Tokens lexes the whole input.
func (lexer *Lexer) Tokens() ([]Token, error) {
	var tokens []Token
	for {
		token, err := lexer.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
		if token.Type == EOF {
			return tokens, nil
		}
	}
}

// NextToken returns the next token.
func (lexer *Lexer) NextToken() (Token, error) {
	if err := lexer.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}

	start := lexer.position
	single := func(t TokenType) (Token, error) {
		token := Token{Type: t, Value: string(lexer.ch), Pos: start}
		lexer.readChar()
		return token, nil
	}

	switch {
	case lexer.position >= len(lexer.sql):
		return Token{Type: EOF, Pos: start}, nil
	case lexer.ch == ',':
		return single(Comma)
	case lexer.ch == ';':
		return single(Semicolon)
	case lexer.ch == '(':
		return single(ParenOpen)
	case lexer.ch == ')':
		return single(ParenClose)
	case lexer.ch == '*':
		return single(Star)
	case lexer.ch == '?':
		return single(Param)
	case lexer.ch == '$' && isDigit(lexer.peekChar()):
		lexer.readChar()
		return Token{Type: Param, Value: "$" + lexer.readNumber(), Pos: start}, nil
	case lexer.ch == '.' && !isDigit(lexer.peekChar()):
		return single(Dot)
	case lexer.ch == '\'':
		s, err := lexer.readQuoted('\'')
		if err != nil {
			return Token{}, err
		}
		return Token{Type: String, Value: s, Pos: start}, nil
	case lexer.ch == '"':
		s, err := lexer.readQuoted('"')
		if err != nil {
			return Token{}, err
		}
		if lexer.doubleQuoteIdent {
			return Token{Type: QuotedIdent, Value: s, Pos: start}, nil
		}
		return Token{Type: String, Value: s, Pos: start}, nil
	case lexer.ch == '`':
		s, err := lexer.readQuoted('`')
		if err != nil {
			return Token{}, err
		}
		return Token{Type: QuotedIdent, Value: s, Pos: start}, nil
	case isDigit(lexer.ch) || lexer.ch == '.':
		return lexer.readNumeric(start), nil
	case isIdentStart(lexer.ch):
		word := lexer.readIdentifier()
		return Token{Type: Word, Value: word, Upper: strings.ToUpper(word), Pos: start}, nil
	case isOperator(lexer.ch):
		op := lexer.readOperator()
		if op == "<>" {
			op = "!="
		}
		return Token{Type: Operator, Value: op, Pos: start}, nil
	default:
		return Token{}, fmt.Errorf("unexpected character %q at offset %d", lexer.ch, start)
	}
}

func (lexer *Lexer) skipWhitespaceAndComments() error {
	for {
		switch {
		case lexer.ch == ' ' || lexer.ch == '\t' || lexer.ch == '\n' || lexer.ch == '\r':
			lexer.readChar()
		case lexer.ch == '-' && lexer.peekChar() == '-':
			for lexer.ch != '\n' && lexer.position < len(lexer.sql) {
				lexer.readChar()
			}
		case lexer.ch == '/' && lexer.peekChar() == '*':
			start := lexer.position
			lexer.readChar()
			lexer.readChar()
			for !(lexer.ch == '*' && lexer.peekChar() == '/') {
				if lexer.position >= len(lexer.sql) {
					return fmt.Errorf("unterminated comment at offset %d", start)
				}
				lexer.readChar()
			}
			lexer.readChar()
			lexer.readChar()
		default:
			return nil
		}
	}
}

// readQuoted reads a quoted run. A doubled quote character is an escaped
// quote.
func (lexer *Lexer) readQuoted(quote byte) (string, error) {
	start := lexer.position
	lexer.readChar()
	var b strings.Builder
	for {
		if lexer.position >= len(lexer.sql) {
			return "", fmt.Errorf("unterminated quoted text at offset %d", start)
		}
		if lexer.ch == quote {
			if lexer.peekChar() == quote {
				b.WriteByte(quote)
				lexer.readChar()
				lexer.readChar()
				continue
			}
			lexer.readChar()
			return b.String(), nil
		}
		b.WriteByte(lexer.ch)
		lexer.readChar()
	}
}

func (lexer *Lexer) readNumeric(start int) Token {
	num := lexer.readNumber()
	isFloat := false
	if lexer.ch == '.' {
		isFloat = true
		lexer.readChar()
		num += "." + lexer.readNumber()
	}
	if lexer.ch == 'e' || lexer.ch == 'E' {
		next := lexer.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			isFloat = true
			num += string(lexer.ch)
			lexer.readChar()
			if lexer.ch == '+' || lexer.ch == '-' {
				num += string(lexer.ch)
				lexer.readChar()
			}
			num += lexer.readNumber()
		}
	}
	if isFloat {
		return Token{Type: Float, Value: num, Pos: start}
	}
	return Token{Type: Int, Value: num, Pos: start}
}

func (lexer *Lexer) readIdentifier() string {
	position := lexer.position
	for isIdentPart(lexer.ch) && lexer.position < len(lexer.sql) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readNumber() string {
	position := lexer.position
	for isDigit(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readOperator() string {
	position := lexer.position
	first := lexer.ch
	lexer.readChar()
	switch {
	case first == '<' && (lexer.ch == '=' || lexer.ch == '>'),
		first == '>' && lexer.ch == '=',
		first == '!' && lexer.ch == '=',
		first == '|' && lexer.ch == '|':
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}

func isOperator(ch byte) bool {
	switch ch {
	case '=', '!', '<', '>', '+', '-', '/', '%', '|':
		return true
	}
	return false
}
