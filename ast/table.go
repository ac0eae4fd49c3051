package ast

import (
	"github.com/stanford-oval/thingtalk-go/errs"
)

// Table is the query-expression sum type of spec §3.4: the tree of
// relational operators that a get-command lowers and compiles.
type Table interface {
	Node
	isTable()
}

// TableVarRef references a `let table` declaration by name (spec §3.4).
type TableVarRef struct {
	schemaNode
	Name string
	InParams []InputParam
}

func (*TableVarRef) isTable()             {}
func (t *TableVarRef) Range() errs.SourceRange { return t.SrcRange }

// InvocationTable wraps a device-function call that returns a table
// (spec §3.4: "Invocation").
type InvocationTable struct {
	baseNode
	Invocation *Invocation
}

func (*InvocationTable) isTable() {}

// FilterTable keeps only the rows of Table matching Filter (spec §3.4).
type FilterTable struct {
	baseNode
	Table  Table
	Filter BooleanExpression
}

func (*FilterTable) isTable() {}

// ProjectionTable keeps only the named columns of Table (spec §3.4).
type ProjectionTable struct {
	baseNode
	Table   Table
	Columns []string
}

func (*ProjectionTable) isTable() {}

// ComputeTable adds a computed column to every row of Table (spec §3.4).
type ComputeTable struct {
	baseNode
	Table Table
	Alias string
	Expr  Value
}

func (*ComputeTable) isTable() {}

// AliasTable renames Table's output scope to Name, so a self-join can
// disambiguate identically named columns (spec §3.4: "Alias").
type AliasTable struct {
	baseNode
	Table Table
	Name  string
}

func (*AliasTable) isTable() {}

// AggregationType enumerates the supported reduce operators.
type AggregationType string

const (
	AggregationCount AggregationType = "count"
	AggregationSum   AggregationType = "sum"
	AggregationAvg   AggregationType = "avg"
	AggregationMax   AggregationType = "max"
	AggregationMin   AggregationType = "min"
)

// AggregationTable reduces Table to a single row via Operator over Field
// (spec §3.4: "Aggregation").
type AggregationTable struct {
	baseNode
	Table     Table
	Field     string // "*" for count(*)
	Operator  AggregationType
	Alias     string
}

func (*AggregationTable) isTable() {}

// SortDirection is "asc" or "desc".
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortTable orders Table's rows by Field (spec §4.4 lowering source;
// surfaced at the AST level so the lowering pass can fuse
// Index[1] of Sort(...) into a SimpleArgMinMax operator, spec §8 property).
type SortTable struct {
	baseNode
	Table     Table
	Field     string
	Direction SortDirection
}

func (*SortTable) isTable() {}

// IndexTable keeps only the rows at the given 1-based Indices.
type IndexTable struct {
	baseNode
	Table   Table
	Indices []Value
}

func (*IndexTable) isTable() {}

// SliceTable keeps Limit rows starting at Base (1-based).
type SliceTable struct {
	baseNode
	Table Table
	Base  Value
	Limit Value
}

func (*SliceTable) isTable() {}

// ArgMinMaxTable is the fused form of Index[1] of Sort(field, asc|desc):
// "the row with the minimum/maximum Field", computed without a full sort
// (spec §3.4: "ArgMinMax"; spec §8 names this fusion an explicit invariant).
type ArgMinMaxTable struct {
	baseNode
	Table     Table
	Field     string
	Direction SortDirection
	Count     Value // how many extremal rows to keep, usually the literal 1
}

func (*ArgMinMaxTable) isTable() {}

// JoinType distinguishes a cross join from a parameter-passing join.
type JoinType string

const (
	JoinCross JoinType = "cross"
	JoinParam JoinType = "param" // rhs in_params reference lhs output columns
)

// JoinTable combines two tables (spec §3.4: "Join").
type JoinTable struct {
	baseNode
	LHS, RHS Table
	Type     JoinType
}

func (*JoinTable) isTable() {}

// WindowTable groups Table's rows (assumed stream-derived) into
// fixed-size batches (spec §3.4: "Window").
type WindowTable struct {
	baseNode
	Table Table
	Base  Value
	Delta Value
}

func (*WindowTable) isTable() {}

// TimeSeriesTable selects rows with a timestamp column after Base,
// emitting Delta-sized batches (spec §3.4: "TimeSeries").
type TimeSeriesTable struct {
	baseNode
	Table Table
	Base  Value
	Delta Value
}

func (*TimeSeriesTable) isTable() {}

// SequenceTable keeps the last Count rows of Table (spec §3.4: "Sequence").
type SequenceTable struct {
	baseNode
	Table Table
	Base  Value
	Count Value
}

func (*SequenceTable) isTable() {}

// HistoryTable keeps Table's rows since Base (spec §3.4: "History").
type HistoryTable struct {
	baseNode
	Table Table
	Base  Value
}

func (*HistoryTable) isTable() {}
