package ast

import (
	"github.com/stanford-oval/thingtalk-go/errs"
	"github.com/stanford-oval/thingtalk-go/schema"
	"github.com/stanford-oval/thingtalk-go/types"
)

// Statement is the top-level sum type of spec §3.4: a Program is a
// sequence of Statements.
type Statement interface {
	Node
	isStatement()
}

// DeclarationKind distinguishes the four forms a `let` declaration's body
// can take (spec §3.4: "Declaration{name, kind, args, body}").
type DeclarationKind int

const (
	DeclarationTable DeclarationKind = iota
	DeclarationStream
	DeclarationAction
	DeclarationProcedure
)

// DeclarationArg is one formal parameter of a `let procedure`/`let query`
// declaration.
type DeclarationArg struct {
	Name string
	Type *types.Type
}

// InvocationList is the Body a `let procedure`/`let action` declaration
// holds: an ordered sequence of actions to execute in turn.
type InvocationList []*Invocation

func (l InvocationList) Range() errs.SourceRange {
	if len(l) == 0 {
		return errs.SourceRange{}
	}
	return l[0].Range()
}

// DeclarationStatement defines a reusable named table/stream/action,
// referenced elsewhere via a VarRef (spec §3.4: "Declaration{name, kind,
// args, body}").
type DeclarationStatement struct {
	baseNode
	Name string
	Kind DeclarationKind
	Args []DeclarationArg
	Body Node // Table | Stream | InvocationList, depending on Kind
}

func (*DeclarationStatement) isStatement() {}

// RuleStatement is a standing `monitor ... => do` rule: Stream fires and
// every Action executes for each emitted row (spec §3.4: "Rule{stream,
// actions:[Invocation]}").
type RuleStatement struct {
	baseNode
	Stream  Stream
	Actions []*Invocation
}

func (*RuleStatement) isStatement() {}

// CommandStatement is a one-shot get-or-do command: an optional Table is
// queried once and each Action executes for each resulting row, or (with no
// Table) the actions run unconditionally (spec §3.4: "Command{table?,
// actions:[Invocation]}").
type CommandStatement struct {
	baseNode
	Table   Table // nil for a pure action command
	Actions []*Invocation
}

func (*CommandStatement) isStatement() {}

// Program is a whole ThingTalk source unit (spec §3.4): zero or more
// Declarations, the ordered Statements making up the executable body, and
// an optional delegation Principal.
type Program struct {
	baseNode
	Classes      []*schema.ClassDef
	Declarations []*DeclarationStatement
	Statements   []Statement
	Principal    Value
}

// OutputColumns returns the projected column names a statement will
// eventually emit, used by the dialogue layer to describe a command's
// result shape without running it. This supplements spec.md's distilled
// AST with a convenience the surface language's reference implementation
// provides for building confirmation prompts.
func (p *Program) OutputColumns(stmt Statement) []string {
	switch s := stmt.(type) {
	case *CommandStatement:
		return tableOutputColumns(s.Table)
	case *RuleStatement:
		return streamOutputColumns(s.Stream)
	default:
		return nil
	}
}

func tableOutputColumns(t Table) []string {
	switch tt := t.(type) {
	case nil:
		return nil
	case *ProjectionTable:
		return tt.Columns
	case *AggregationTable:
		return []string{tt.Alias}
	case *ComputeTable:
		return append(tableOutputColumns(tt.Table), tt.Alias)
	case *FilterTable:
		return tableOutputColumns(tt.Table)
	case *SortTable:
		return tableOutputColumns(tt.Table)
	case *IndexTable:
		return tableOutputColumns(tt.Table)
	case *SliceTable:
		return tableOutputColumns(tt.Table)
	case *ArgMinMaxTable:
		return tableOutputColumns(tt.Table)
	case *AliasTable:
		return tableOutputColumns(tt.Table)
	default:
		return nil
	}
}

func streamOutputColumns(s Stream) []string {
	switch ss := s.(type) {
	case nil:
		return nil
	case *ProjectionStream:
		return ss.Columns
	case *ComputeStream:
		return append(streamOutputColumns(ss.Stream), ss.Alias)
	case *FilterStream:
		return streamOutputColumns(ss.Stream)
	case *EdgeFilterStream:
		return streamOutputColumns(ss.Stream)
	case *EdgeNewStream:
		return streamOutputColumns(ss.Stream)
	case *AliasStream:
		return streamOutputColumns(ss.Stream)
	case *MonitorStream:
		return tableOutputColumns(ss.Table)
	default:
		return nil
	}
}
