package ast

// Stream is the event-source sum type of spec §3.4: a Stream emits rows
// over time rather than the one-shot result set a Table produces.
type Stream interface {
	Node
	isStream()
}

// StreamVarRef references a `let stream` declaration by name.
type StreamVarRef struct {
	schemaNode
	Name     string
	InParams []InputParam
}

func (*StreamVarRef) isStream() {}

// TimerStream fires every Interval, optionally starting at Base
// (spec §3.4: "Timer").
type TimerStream struct {
	baseNode
	Base     Value
	Interval Value
	Frequency Value
}

func (*TimerStream) isStream() {}

// AtTimerStream fires at each wall-clock Time of day, optionally with a
// random jitter Expiration window (spec §3.4: "AtTimer").
type AtTimerStream struct {
	baseNode
	Time       []Value
	Expiration Value
}

func (*AtTimerStream) isStream() {}

// MonitorStream turns a Table into a stream that fires whenever polling
// the table produces a new tuple (spec §3.4: "Monitor(Table)").
type MonitorStream struct {
	baseNode
	Table        Table
	MonitorField []string // "" / empty means monitor the whole row
}

func (*MonitorStream) isStream() {}

// EdgeNewStream keeps only rows of Stream the compiler has not seen before,
// by the CheckIsNewTuple var-scope key set (spec §3.4: "EdgeNew(Stream)").
type EdgeNewStream struct {
	baseNode
	Stream Stream
}

func (*EdgeNewStream) isStream() {}

// EdgeFilterStream fires only on the edge where Filter's truth value
// transitions from false to true (spec §3.4: "EdgeFilter(Stream,Filter)").
type EdgeFilterStream struct {
	baseNode
	Stream Stream
	Filter BooleanExpression
}

func (*EdgeFilterStream) isStream() {}

// FilterStream keeps only Stream rows matching Filter.
type FilterStream struct {
	baseNode
	Stream Stream
	Filter BooleanExpression
}

func (*FilterStream) isStream() {}

// ProjectionStream keeps only the named columns of each Stream row.
type ProjectionStream struct {
	baseNode
	Stream  Stream
	Columns []string
}

func (*ProjectionStream) isStream() {}

// ComputeStream adds a computed column to every row of Stream.
type ComputeStream struct {
	baseNode
	Stream Stream
	Alias  string
	Expr   Value
}

func (*ComputeStream) isStream() {}

// AliasStream renames Stream's output scope (mirrors AliasTable).
type AliasStream struct {
	baseNode
	Stream Stream
	Name   string
}

func (*AliasStream) isStream() {}

// JoinStream combines a Stream with a Table, re-invoking Table whenever
// Stream fires and passing InParams through (spec §3.4: "Join(Stream,Table,
// in_params)").
type JoinStream struct {
	baseNode
	Stream   Stream
	Table    Table
	InParams []InputParam
}

func (*JoinStream) isStream() {}
