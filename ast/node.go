// Package ast implements the ThingTalk abstract syntax tree: values,
// boolean expressions, streams, tables, actions, statements and programs
// (spec.md §3.2–§3.4). Every sum type described in the spec is modeled as
// a Go interface with an unexported marker method and one struct per
// variant, following the "exhaustive pattern matching on the variant tag"
// design note of spec §9 — callers type-switch over the interface and a
// missing case is caught at runtime by a NotImplementedError rather than
// silently doing nothing, since Go has no sealed-interface exhaustiveness
// check at compile time.
package ast

import (
	"github.com/stanford-oval/thingtalk-go/errs"
	"github.com/stanford-oval/thingtalk-go/schema"
	"github.com/stanford-oval/thingtalk-go/types"
)

// Node is implemented by every AST node: it carries a source range for
// error reporting (populated by the parser, spec §4.1) and, where
// applicable, the FunctionDef the typechecker resolved it against
// (spec §3.4: "every table/stream/action node carries a schema:
// FunctionDef? slot populated by the typechecker").
type Node interface {
	Range() errs.SourceRange
}

// Schemable is implemented by the node kinds that carry a `schema` slot:
// Invocation, and every Table/Stream node that wraps one.
type Schemable interface {
	Node
	GetSchema() *schema.FunctionDef
	SetSchema(*schema.FunctionDef)
}

type baseNode struct {
	SrcRange errs.SourceRange
}

func (b *baseNode) Range() errs.SourceRange { return b.SrcRange }

// schemaNode embeds baseNode and adds the schema slot.
type schemaNode struct {
	baseNode
	Schema *schema.FunctionDef
}

func (s *schemaNode) GetSchema() *schema.FunctionDef { return s.Schema }
func (s *schemaNode) SetSchema(fn *schema.FunctionDef) { s.Schema = fn }

// Overload is the (lhsType, rhsType, resultType) triple the typechecker
// attaches to every atom and binary comparison (spec §3.4, §9).
type Overload struct {
	LHS, RHS, Result *types.Type
}

// DeviceSelector identifies which device instance(s) an Invocation targets.
type DeviceSelector struct {
	Kind       string
	ID         *string
	Principal  Value
	Attributes map[string]Value
	// AllDevices marks the "@kind" form that dispatches to every
	// instance of a class rather than one selected id.
	AllDevices bool
}

// InputParam is one `name=value` pair passed into an Invocation.
type InputParam struct {
	Name  string
	Value Value
}

// Invocation is a call to one query or action function of a device class,
// shared by Table.Invocation, Stream.Join and Statement.Rule/Command
// actions (spec §3.4).
type Invocation struct {
	schemaNode
	Selector DeviceSelector
	Channel  string
	InParams []InputParam
}

func (i *Invocation) Range() errs.SourceRange { return i.SrcRange }
