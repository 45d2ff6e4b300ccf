package operation

// Expression operators. Comparison nodes carry Field and Value; logical nodes
// carry Args; OpRaw carries SQL text in Value for anything the neutral form
// cannot express.
const (
	OpAnd        = "and"
	OpOr         = "or"
	OpNot        = "not"
	OpEq         = "="
	OpNe         = "!="
	OpLt         = "<"
	OpLe         = "<="
	OpGt         = ">"
	OpGe         = ">="
	OpLike       = "like"
	OpNotLike    = "not like"
	OpIn         = "in"
	OpNotIn      = "not in"
	OpBetween    = "between"
	OpNotBetween = "not between"
	OpIsNull     = "is null"
	OpIsNotNull  = "is not null"
	OpRaw        = "raw"
)

// Predicate is a filter kept in the structure it was written in. Backends
// interpret it in their own terms.
type Predicate struct {
	Text string `json:"text"`
	Expr *Expr  `json:"expr"`
}

// Expr is a node of a backend-neutral filter tree.
type Expr struct {
	Op    string  `json:"op"`
	Field string  `json:"field,omitempty"`
	Value any     `json:"value,omitempty"`
	Args  []*Expr `json:"args,omitempty"`
}

// Fields returns every field name referenced by the expression, in order of
// first appearance.
func (e *Expr) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(*Expr)
	walk = func(n *Expr) {
		if n == nil {
			return
		}
		if n.Field != "" && !seen[n.Field] {
			seen[n.Field] = true
			out = append(out, n.Field)
		}
		for _, a := range n.Args {
			walk(a)
		}
	}
	walk(e)
	return out
}

// Equalities returns field=value pairs when the expression is a conjunction of
// equality comparisons, which is how key lookups are written.
func (e *Expr) Equalities() (map[string]any, bool) {
	out := make(map[string]any)
	var walk func(*Expr) bool
	walk = func(n *Expr) bool {
		if n == nil {
			return false
		}
		switch n.Op {
		case OpEq:
			out[n.Field] = n.Value
			return n.Field != ""
		case OpAnd:
			for _, a := range n.Args {
				if !walk(a) {
					return false
				}
			}
			return true
		default:
			return false
		}
	}
	if !walk(e) {
		return nil, false
	}
	return out, true
}
