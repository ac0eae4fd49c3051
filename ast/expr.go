package ast

import (
	"github.com/stanford-oval/thingtalk-go/errs"
	"github.com/stanford-oval/thingtalk-go/schema"
)

// BooleanExpression is the filter-language sum type of spec §3.3: the
// boolean-algebra nodes that appear in every Table.Filter / Stream.Filter.
type BooleanExpression interface {
	Node
	isBooleanExpression()
}

// TrueExpr / FalseExpr are the two boolean constants.
type TrueExpr struct{ baseNode }

func (*TrueExpr) isBooleanExpression() {}

type FalseExpr struct{ baseNode }

func (*FalseExpr) isBooleanExpression() {}

// AndExpr / OrExpr are n-ary conjunction/disjunction.
type AndExpr struct {
	baseNode
	Operands []BooleanExpression
}

func (*AndExpr) isBooleanExpression() {}

type OrExpr struct {
	baseNode
	Operands []BooleanExpression
}

func (*OrExpr) isBooleanExpression() {}

// NotExpr negates a single operand.
type NotExpr struct {
	baseNode
	Operand BooleanExpression
}

func (*NotExpr) isBooleanExpression() {}

// AtomExpr is a single `name op value` comparison against an in-scope
// column, e.g. `temperature >= 20`.
type AtomExpr struct {
	baseNode
	Name     string
	Operator string
	Value    Value
	Overload *Overload
}

func (*AtomExpr) isBooleanExpression() {}

// ExternalExpr is a `@device.function(...) { filter }` subquery used as a
// boolean test (spec §3.3/§3.4): it invokes another function and keeps only
// rows matching its nested filter, testing non-emptiness.
type ExternalExpr struct {
	schemaNode
	Selector DeviceSelector
	Channel  string
	InParams []InputParam
	Filter   BooleanExpression
}

func (*ExternalExpr) isBooleanExpression() {}
func (e *ExternalExpr) Range() errs.SourceRange { return e.SrcRange }

// ComputeOp is a scalar operator used by a Compute value expression (e.g.
// "+", "-", "*", "/", "distance", "count").
type ComputeOp string

// ComputeExpr is a boolean test against the result of a scalar computation:
// `lhs op rhs` where at least one side is itself a computed expression
// (spec §3.3: "Compute{lhs,op,rhs,overload}").
type ComputeExpr struct {
	baseNode
	LHS      Value
	Operator ComputeOp
	RHS      Value
	Overload *Overload
}

func (*ComputeExpr) isBooleanExpression() {}

// ExistentialSubqueryExpr tests whether a nested table produces any row
// (spec §3.3: "ExistentialSubquery(Table)").
type ExistentialSubqueryExpr struct {
	baseNode
	Subquery Table
}

func (*ExistentialSubqueryExpr) isBooleanExpression() {}

// ComparisonSubqueryExpr compares a scalar against the single projected
// column of a nested table (spec §3.3: "ComparisonSubquery{lhs,op,rhs,overload}").
type ComparisonSubqueryExpr struct {
	baseNode
	LHS      Value
	Operator string
	RHS      Table
	Overload *Overload
}

func (*ComparisonSubqueryExpr) isBooleanExpression() {}

// DontCareExpr marks a parameter as intentionally unconstrained, used by
// dialogue-state tracking to distinguish "no filter given" from "user said
// they don't care" (spec §3.3: "DontCare").
type DontCareExpr struct {
	baseNode
	Name string
}

func (*DontCareExpr) isBooleanExpression() {}

// FunctionSchema returns the FunctionDef an ExternalExpr was typechecked
// against, or nil if typechecking hasn't run yet.
func (e *ExternalExpr) FunctionSchema() *schema.FunctionDef { return e.GetSchema() }
