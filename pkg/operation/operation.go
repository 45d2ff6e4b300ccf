// Package operation defines the canonical, backend-agnostic description of a
// single request: what the statement does, which resource it touches and the
// payload each statement category carries to an adapter.
package operation

// Operation is the canonical form of one parsed statement.
type Operation struct {
	Category    Category         `json:"category"`
	Kind        Kind             `json:"kind"`
	Target      string           `json:"target"`
	Columns     []string         `json:"columns"`
	Values      map[string]any   `json:"values"`
	Predicate   *Predicate       `json:"predicate"`
	Joins       []Join           `json:"joins"`
	GroupBy     []string         `json:"groupBy"`
	OrderBy     []Order          `json:"orderBy"`
	Limit       *Limit           `json:"limit"`
	Definition  *Definition      `json:"definition"`
	Transaction *TransactionInfo `json:"transactionInfo"`

	// Alias is the name the statement gave its target, used by qualified
	// field references.
	Alias    string     `json:"alias,omitempty"`
	Distinct bool       `json:"distinct,omitempty"`
	Having   *Predicate `json:"having,omitempty"`

	Privileges []string `json:"privileges,omitempty"`
	Principals []string `json:"principals,omitempty"`

	// RowsDropped counts VALUES rows beyond the first. Only single-row
	// inserts are extracted.
	RowsDropped int `json:"rowsDropped,omitempty"`

	// Source is the normalized statement text the operation came from.
	Source string `json:"-"`
}

// Raw is a value that could not be reduced to a literal, kept as SQL text.
type Raw string

// Join is a secondary source of a read.
type Join struct {
	Type   string     `json:"type"`
	Target string     `json:"target"`
	Alias  string     `json:"alias,omitempty"`
	On     *Predicate `json:"on,omitempty"`
}

// Order is one ORDER BY item.
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Limit bounds a read. Count is -1 when only an offset was written.
type Limit struct {
	Count  int64 `json:"count"`
	Offset int64 `json:"offset,omitempty"`
}

// Definition is the structural payload of a DDL statement.
type Definition struct {
	Columns     []ColumnDef   `json:"columns,omitempty"`
	Actions     []AlterAction `json:"actions,omitempty"`
	NewName     string        `json:"newName,omitempty"`
	Targets     []string      `json:"targets,omitempty"`
	IfExists    bool          `json:"ifExists,omitempty"`
	IfNotExists bool          `json:"ifNotExists,omitempty"`
}

// ColumnDef describes one column of a table definition.
type ColumnDef struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"notNull,omitempty"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
	Default    any    `json:"default,omitempty"`
}

// Alter actions.
const (
	AlterAdd    = "add"
	AlterDrop   = "drop"
	AlterRename = "rename"
	AlterModify = "modify"
)

// AlterAction is one clause of an ALTER TABLE statement.
type AlterAction struct {
	Action  string    `json:"action"`
	Column  ColumnDef `json:"column"`
	NewName string    `json:"newName,omitempty"`
}

// TransactionInfo identifies a transaction-control request.
type TransactionInfo struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name,omitempty"`
}

// HasRefinements reports whether the operation carries any read refinement.
func (o *Operation) HasRefinements() bool {
	return len(o.Joins) > 0 || len(o.GroupBy) > 0 || len(o.OrderBy) > 0 || o.Limit != nil ||
		o.Having != nil || o.Distinct
}
