package operation

import "sort"

// Category is the coarse statement class.
type Category string

const (
	// DML is data manipulation.
	DML Category = "DML"
	// DDL is data definition.
	DDL Category = "DDL"
	// DCL is data control.
	DCL Category = "DCL"
	// TCL is transaction control.
	TCL Category = "TCL"
)

// Kind is the statement verb.
type Kind string

// DML kinds.
const (
	Select   Kind = "select"
	Insert   Kind = "insert"
	Update   Kind = "update"
	Delete   Kind = "delete"
	Describe Kind = "describe"
	Explain  Kind = "explain"
	Call     Kind = "call"
)

// DDL kinds.
const (
	Create   Kind = "create"
	Alter    Kind = "alter"
	Drop     Kind = "drop"
	Truncate Kind = "truncate"
	Rename   Kind = "rename"
)

// DCL kinds.
const (
	Grant  Kind = "grant"
	Revoke Kind = "revoke"
)

// TCL kinds.
const (
	Begin     Kind = "begin"
	Commit    Kind = "commit"
	Rollback  Kind = "rollback"
	Savepoint Kind = "savepoint"
	End       Kind = "end"
)

var categories = map[Kind]Category{
	Select:    DML,
	Insert:    DML,
	Update:    DML,
	Delete:    DML,
	Describe:  DML,
	Explain:   DML,
	Call:      DML,
	Create:    DDL,
	Alter:     DDL,
	Drop:      DDL,
	Truncate:  DDL,
	Rename:    DDL,
	Grant:     DCL,
	Revoke:    DCL,
	Begin:     TCL,
	Commit:    TCL,
	Rollback:  TCL,
	Savepoint: TCL,
	End:       TCL,
}

// CategoryOf returns the category for k and whether k is a supported kind.
func CategoryOf(k Kind) (Category, bool) {
	c, ok := categories[k]
	return c, ok
}

// Supported reports whether k is in the closed set of kinds.
func (k Kind) Supported() bool {
	_, ok := categories[k]
	return ok
}

// Introspective reports whether k reads metadata rather than data. These
// kinds do not require a target.
func (k Kind) Introspective() bool {
	return k == Describe || k == Explain || k == Call
}

// ReadOnly reports whether k never mutates backend state.
func (k Kind) ReadOnly() bool {
	return k == Select || k.Introspective()
}

// RequiresTarget reports whether an operation of kind k must name a target.
func (k Kind) RequiresTarget() bool {
	switch categories[k] {
	case DML:
		return !k.Introspective()
	case DDL:
		return true
	default:
		return false
	}
}

// Kinds returns every supported kind in lexical order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(categories))
	for k := range categories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
