// Package syntax defines the dialect-independent syntax tree every parser
// dialect produces. Statements are a closed set of node types distinguished
// by Tag; expressions are a closed set of node types implementing Expr.
package syntax

// Tag identifies a statement node type.
type Tag int

const (
	TagSelect Tag = iota + 1
	TagInsert
	TagUpdate
	TagDelete
	TagCreate
	TagAlter
	TagDrop
	TagTruncate
	TagRename
	TagGrant
	TagRevoke
	TagTransaction
	TagDescribe
	TagExplain
	TagCall
)

var tagNames = map[Tag]string{
	TagSelect:      "select",
	TagInsert:      "insert",
	TagUpdate:      "update",
	TagDelete:      "delete",
	TagCreate:      "create",
	TagAlter:       "alter",
	TagDrop:        "drop",
	TagTruncate:    "truncate",
	TagRename:      "rename",
	TagGrant:       "grant",
	TagRevoke:      "revoke",
	TagTransaction: "transaction",
	TagDescribe:    "describe",
	TagExplain:     "explain",
	TagCall:        "call",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "unknown"
}

// Statement is a parsed statement.
type Statement interface {
	Tag() Tag
	statement()
}

// TableRef is one source of a read. The first source has an empty Join.
type TableRef struct {
	Name  string
	Alias string
	Join  string
	On    Expr
}

// OrderItem is one ORDER BY term.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// Limit is a LIMIT/OFFSET clause. Nil fields were not written.
type Limit struct {
	Count  Expr
	Offset Expr
}

// Select is a SELECT statement.
type Select struct {
	Distinct bool
	Columns  []Expr
	From     []TableRef
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderItem
	Limit    *Limit
}

// Insert is an INSERT statement. Rows holds every VALUES tuple.
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]Expr
}

// Assignment is one SET term of an UPDATE.
type Assignment struct {
	Column string
	Value  Expr
}

// Update is an UPDATE statement.
type Update struct {
	Table string
	Set   []Assignment
	Where Expr
}

// Delete is a DELETE statement.
type Delete struct {
	Table string
	Where Expr
}

// ColumnDef is a column in a CREATE TABLE or ALTER TABLE.
type ColumnDef struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
	Default    Expr
}

// Create is a CREATE TABLE statement.
type Create struct {
	Table       string
	IfNotExists bool
	Columns     []ColumnDef
}

// AlterClause is one clause of an ALTER TABLE.
type AlterClause struct {
	Action  string
	Column  ColumnDef
	NewName string
}

// Alter is an ALTER TABLE statement.
type Alter struct {
	Table   string
	Clauses []AlterClause
}

// Drop is a DROP TABLE statement.
type Drop struct {
	Tables   []string
	IfExists bool
}

// Truncate is a TRUNCATE TABLE statement.
type Truncate struct {
	Table string
}

// Rename is a RENAME TABLE or ALTER TABLE ... RENAME TO statement.
type Rename struct {
	From string
	To   string
}

// Privilege carries the payload shared by GRANT and REVOKE.
type Privilege struct {
	Privileges []string
	Object     string
	Principals []string
}

// Grant is a GRANT statement.
type Grant struct{ Privilege }

// Revoke is a REVOKE statement.
type Revoke struct{ Privilege }

// Transaction actions.
const (
	ActionBegin     = "begin"
	ActionCommit    = "commit"
	ActionRollback  = "rollback"
	ActionSavepoint = "savepoint"
	ActionEnd       = "end"
)

// Transaction is a generic transaction-control node. The verb is carried in
// Action; Name is the savepoint a rollback or savepoint refers to.
type Transaction struct {
	Action string
	Name   string
}

// Describe is a DESCRIBE statement.
type Describe struct {
	Table string
}

// Explain is an EXPLAIN statement. Statement is nil when the explained text
// could not be parsed into a node.
type Explain struct {
	Statement Statement
}

// Call is a stored procedure call.
type Call struct {
	Procedure string
	Args      []Expr
}

func (*Select) Tag() Tag      { return TagSelect }
func (*Insert) Tag() Tag      { return TagInsert }
func (*Update) Tag() Tag      { return TagUpdate }
func (*Delete) Tag() Tag      { return TagDelete }
func (*Create) Tag() Tag      { return TagCreate }
func (*Alter) Tag() Tag       { return TagAlter }
func (*Drop) Tag() Tag        { return TagDrop }
func (*Truncate) Tag() Tag    { return TagTruncate }
func (*Rename) Tag() Tag      { return TagRename }
func (*Grant) Tag() Tag       { return TagGrant }
func (*Revoke) Tag() Tag      { return TagRevoke }
func (*Transaction) Tag() Tag { return TagTransaction }
func (*Describe) Tag() Tag    { return TagDescribe }
func (*Explain) Tag() Tag     { return TagExplain }
func (*Call) Tag() Tag        { return TagCall }

func (*Select) statement()      {}
func (*Insert) statement()      {}
func (*Update) statement()      {}
func (*Delete) statement()      {}
func (*Create) statement()      {}
func (*Alter) statement()       {}
func (*Drop) statement()        {}
func (*Truncate) statement()    {}
func (*Rename) statement()      {}
func (*Grant) statement()       {}
func (*Revoke) statement()      {}
func (*Transaction) statement() {}
func (*Describe) statement()    {}
func (*Explain) statement()     {}
func (*Call) statement()        {}

// UsingCondition rewrites a USING (a, b) join clause as
// left.a = right.a AND left.b = right.b.
func UsingCondition(left, right TableRef, cols []string) Expr {
	var cond Expr
	for _, col := range cols {
		eq := &Binary{
			Op:    "=",
			Left:  &ColumnRef{Table: left.Qualifier(), Name: col},
			Right: &ColumnRef{Table: right.Qualifier(), Name: col},
		}
		if cond == nil {
			cond = eq
		} else {
			cond = &Binary{Op: "and", Left: cond, Right: eq}
		}
	}
	return cond
}

// Qualifier is the name columns of this source are qualified with: the
// alias when present, otherwise the table name.
func (r TableRef) Qualifier() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}
