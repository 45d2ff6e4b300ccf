package relational

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

var (
	identPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)*$`)
	aliasPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
	starPattern    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_$]*\.)?\*$`)
	numberPattern  = regexp.MustCompile(`^[0-9]+$`)
	joinPattern    = regexp.MustCompile(`^(natural )?((left|right|full)( outer)? |inner |cross )?join$`)
	explainPattern = regexp.MustCompile(`(?is)^\s*explain\b(.*?)\b(select|with|insert|update|delete|values|table)\b`)
)

// identifier checks that name, optionally schema or table qualified, can be
// written into a statement unquoted.
func identifier(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%q is not a plain identifier: %w", name, backend.ErrUnsafeName)
	}
	return name, nil
}

// alias checks a table alias. Empty means no alias.
func alias(name string) error {
	if name != "" && !aliasPattern.MatchString(name) {
		return fmt.Errorf("%q is not a plain alias: %w", name, backend.ErrUnsafeName)
	}
	return nil
}

// projection checks a select list entry: a star, a column or a number.
func projection(name string) error {
	if starPattern.MatchString(name) || identPattern.MatchString(name) || numberPattern.MatchString(name) {
		return nil
	}
	return fmt.Errorf("%q is not a selectable column: %w", name, backend.ErrUnsafeName)
}

// term checks a GROUP BY or ORDER BY term. Anything other than a column or
// a position must still be a single expression.
func term(text string) error {
	if identPattern.MatchString(text) || numberPattern.MatchString(text) {
		return nil
	}
	return fragment(text)
}

func joinType(t string) (string, error) {
	norm := strings.Join(strings.Fields(strings.ToLower(t)), " ")
	if !joinPattern.MatchString(norm) {
		return "", fmt.Errorf("%q is not a join: %w", t, backend.ErrUnsafeName)
	}
	return strings.ToUpper(norm), nil
}

// fragment checks that text holds at most one statement: no separator or
// comment outside quotes, and every quote closed.
func fragment(text string) error {
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote {
				if i+1 < len(text) && text[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case ';':
			return fmt.Errorf("%q holds more than one statement: %w", text, backend.ErrUnsafeName)
		case '-', '/':
			if i+1 < len(text) && (c == '-' && text[i+1] == '-' || c == '/' && text[i+1] == '*') {
				return fmt.Errorf("%q holds a comment: %w", text, backend.ErrUnsafeName)
			}
		}
	}
	if quote != 0 {
		return fmt.Errorf("%q has an unterminated quote: %w", text, backend.ErrUnsafeName)
	}
	return nil
}

// explainable checks that an EXPLAIN only plans its statement. ANALYZE
// would run it.
func explainable(source string) error {
	m := explainPattern.FindStringSubmatch(source)
	if m == nil {
		return fmt.Errorf("explain requires a statement to plan: %w", backend.ErrUnsupportedKind)
	}
	opts := strings.ToLower(m[1])
	if strings.Contains(opts, "analyze") || strings.Contains(opts, "analyse") {
		return fmt.Errorf("explain analyze executes its statement: %w", backend.ErrUnsupportedKind)
	}
	return nil
}

// checkNames validates every name a DML call writes into its statement.
// Predicate fields are checked as the predicate is built.
func checkNames(call *backend.Call) error {
	if call.Target != "" {
		if _, err := identifier(call.Target); err != nil {
			return err
		}
	}
	if err := alias(call.Alias); err != nil {
		return err
	}
	for _, c := range call.Columns() {
		if call.Kind == operation.Select {
			if err := projection(c); err != nil {
				return err
			}
			continue
		}
		if _, err := identifier(c); err != nil {
			return err
		}
	}

	r := call.Refinements
	for _, j := range r.Joins {
		if _, err := identifier(j.Target); err != nil {
			return err
		}
		if err := alias(j.Alias); err != nil {
			return err
		}
	}
	for _, g := range r.GroupBy {
		if err := term(g); err != nil {
			return err
		}
	}
	for _, o := range r.OrderBy {
		if err := term(o.Field); err != nil {
			return err
		}
	}
	return nil
}
