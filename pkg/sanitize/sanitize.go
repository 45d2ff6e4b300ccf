// Package sanitize validates and normalizes raw requests before parsing.
package sanitize

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/operation"
)

var backendPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// markup escapes characters that are significant to HTML renderers.
var markup = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Input is a sanitized request.
type Input struct {
	Text    string
	Backend string
	Options operation.Options
}

// Sanitize rejects malformed requests and normalizes the rest: comments are
// stripped and whitespace collapsed in the text, the backend name is lower
// cased, and string option values are markup-escaped.
func Sanitize(text, backend string, options map[string]any) (Input, error) {
	if !utf8.ValidString(text) {
		return Input{}, apperror.New(apperror.Validation, "query must be valid UTF-8 text")
	}
	clean, err := Normalize(text)
	if err != nil {
		return Input{}, apperror.Wrap(apperror.Validation, "query is malformed", err)
	}
	if clean == "" {
		return Input{}, apperror.New(apperror.Validation, "query is required")
	}

	if !backendPattern.MatchString(backend) {
		return Input{}, apperror.Newf(apperror.Validation, "backend name %q is not a valid identifier", backend)
	}

	opts, err := sanitizeOptions(options)
	if err != nil {
		return Input{}, err
	}

	return Input{Text: clean, Backend: strings.ToLower(backend), Options: opts}, nil
}

func sanitizeOptions(options map[string]any) (operation.Options, error) {
	if options == nil {
		return operation.Options{}, nil
	}
	out := make(operation.Options, len(options))
	for k, v := range options {
		if k == "" {
			return nil, apperror.New(apperror.Validation, "option names must not be empty")
		}
		if !isScalar(v) {
			return nil, apperror.Newf(apperror.Validation, "option %q must be a scalar value", k)
		}
		if s, ok := v.(string); ok {
			v = markup.Replace(s)
		}
		out[k] = v
	}

	if _, present := out[operation.OptionTimeout]; present {
		ms, ok := out.Int(operation.OptionTimeout)
		if !ok || ms < 0 {
			return nil, apperror.New(apperror.Validation, "option timeout must be a non-negative integer")
		}
	}
	return out, nil
}

func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer,
		reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return false
	default:
		return true
	}
}

// Normalize strips comments outside quoted text and collapses whitespace
// runs to a single space. Quoted text is copied unchanged.
func Normalize(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := quotedEnd(text, i)
			if end < 0 {
				return "", &UnterminatedError{Offset: i}
			}
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteString(text[i:end])
			i = end
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			for i < len(text) && text[i] != '\n' {
				i++
			}
			pendingSpace = true
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return "", &UnterminatedError{Offset: i, Comment: true}
			}
			i += end + 4
			pendingSpace = true
		case c < utf8.RuneSelf && unicode.IsSpace(rune(c)):
			pendingSpace = true
			i++
		default:
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// quotedEnd returns the offset just past the quoted run starting at start,
// honoring doubled-quote escapes, or -1 if the quote never closes.
func quotedEnd(text string, start int) int {
	quote := text[start]
	for i := start + 1; i < len(text); i++ {
		if text[i] != quote {
			continue
		}
		if i+1 < len(text) && text[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return -1
}

// UnterminatedError reports a quote or block comment that never closes.
type UnterminatedError struct {
	Offset  int
	Comment bool
}

func (e *UnterminatedError) Error() string {
	what := "quoted text"
	if e.Comment {
		what = "comment"
	}
	return fmt.Sprintf("unterminated %s at offset %d", what, e.Offset)
}
