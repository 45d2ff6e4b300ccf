package backend

import (
	"github.com/txn2/sql-gateway/pkg/operation"
)

// Refinements are the read modifiers a DML call carries beside its
// predicate.
type Refinements struct {
	Joins    []operation.Join     `json:"joins,omitempty"`
	GroupBy  []string             `json:"groupBy,omitempty"`
	OrderBy  []operation.Order    `json:"orderBy,omitempty"`
	Limit    *operation.Limit     `json:"limit,omitempty"`
	Having   *operation.Predicate `json:"having,omitempty"`
	Distinct bool                 `json:"distinct,omitempty"`
}

// Empty reports whether no refinement is set.
func (r Refinements) Empty() bool {
	return len(r.Joins) == 0 && len(r.GroupBy) == 0 && len(r.OrderBy) == 0 &&
		r.Limit == nil && r.Having == nil && !r.Distinct
}

// Call is the adapter-facing shape of an operation. The three payload slots
// hold different types depending on the category:
//
//	DML  columns ([]string)    values (map[string]any)  predicate (*operation.Predicate)
//	DDL  definition            -                        -
//	DCL  principals ([]string) privileges ([]string)    -
//	TCL  -                     -                        transaction info
//
// Use the typed accessors rather than asserting on the slots directly.
type Call struct {
	Kind     operation.Kind     `json:"kind"`
	Category operation.Category `json:"category"`
	Target   string             `json:"target"`
	Alias    string             `json:"alias,omitempty"`

	ColumnsOrDefinition    any `json:"columnsOrDefinition,omitempty"`
	ValuesOrPrivileges     any `json:"valuesOrPrivileges,omitempty"`
	PredicateOrTransaction any `json:"predicateOrTransaction,omitempty"`

	Options     operation.Options `json:"options,omitempty"`
	Refinements Refinements       `json:"refinements"`

	// Source is the normalized statement text. Adapters that speak SQL use
	// it for statements with no structured form, such as EXPLAIN.
	Source string `json:"-"`
}

// NewCall shapes op into a call for its category.
func NewCall(op *operation.Operation, opts operation.Options) *Call {
	call := &Call{
		Kind:     op.Kind,
		Category: op.Category,
		Target:   op.Target,
		Alias:    op.Alias,
		Options:  opts,
		Source:   op.Source,
	}

	switch op.Category {
	case operation.DML:
		call.ColumnsOrDefinition = op.Columns
		call.ValuesOrPrivileges = op.Values
		call.PredicateOrTransaction = op.Predicate
		call.Refinements = Refinements{
			Joins:    op.Joins,
			GroupBy:  op.GroupBy,
			OrderBy:  op.OrderBy,
			Limit:    op.Limit,
			Having:   op.Having,
			Distinct: op.Distinct,
		}
	case operation.DDL:
		call.ColumnsOrDefinition = op.Definition
	case operation.DCL:
		call.ColumnsOrDefinition = op.Principals
		call.ValuesOrPrivileges = op.Privileges
	case operation.TCL:
		call.Target = ""
		call.PredicateOrTransaction = op.Transaction
	}
	return call
}

// Columns returns the column list of a DML call.
func (c *Call) Columns() []string {
	if c.Category != operation.DML {
		return nil
	}
	cols, _ := c.ColumnsOrDefinition.([]string)
	return cols
}

// Values returns the column values of a DML call.
func (c *Call) Values() map[string]any {
	if c.Category != operation.DML {
		return nil
	}
	values, _ := c.ValuesOrPrivileges.(map[string]any)
	return values
}

// Predicate returns the filter of a DML call, or nil.
func (c *Call) Predicate() *operation.Predicate {
	p, _ := c.PredicateOrTransaction.(*operation.Predicate)
	return p
}

// Where returns the predicate's expression tree, or nil.
func (c *Call) Where() *operation.Expr {
	if p := c.Predicate(); p != nil {
		return p.Expr
	}
	return nil
}

// Definition returns the structural payload of a DDL call.
func (c *Call) Definition() *operation.Definition {
	d, _ := c.ColumnsOrDefinition.(*operation.Definition)
	return d
}

// Principals returns the grantees of a DCL call.
func (c *Call) Principals() []string {
	if c.Category != operation.DCL {
		return nil
	}
	p, _ := c.ColumnsOrDefinition.([]string)
	return p
}

// Privileges returns the privileges of a DCL call.
func (c *Call) Privileges() []string {
	if c.Category != operation.DCL {
		return nil
	}
	p, _ := c.ValuesOrPrivileges.([]string)
	return p
}

// Transaction returns the transaction info of a TCL call.
func (c *Call) Transaction() *operation.TransactionInfo {
	t, _ := c.PredicateOrTransaction.(*operation.TransactionInfo)
	return t
}

// Args returns the positional arguments of a procedure call.
func (c *Call) Args() []any {
	args, _ := c.Values()["args"].([]any)
	return args
}
