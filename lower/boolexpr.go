package lower

import (
	"fmt"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/errs"
)

// BooleanExpressionOp mirrors ast.BooleanExpression (spec §3.5) but with a
// subquery's inner Table lowered to a TableOp, so the compiler can reuse
// compileTable to run External/Existential/Comparison subqueries instead of
// re-deriving an invocation plan at compile time.
type BooleanExpressionOp interface {
	isBooleanExpressionOp()
}

type TrueOp struct{}

func (*TrueOp) isBooleanExpressionOp() {}

type FalseOp struct{}

func (*FalseOp) isBooleanExpressionOp() {}

type DontCareOp struct {
	Name string
}

func (*DontCareOp) isBooleanExpressionOp() {}

type AndOp struct {
	Operands []BooleanExpressionOp
}

func (*AndOp) isBooleanExpressionOp() {}

type OrOp struct {
	Operands []BooleanExpressionOp
}

func (*OrOp) isBooleanExpressionOp() {}

type NotOp struct {
	Operand BooleanExpressionOp
}

func (*NotOp) isBooleanExpressionOp() {}

type AtomOp struct {
	Name     string
	Operator string
	Value    ast.Value
	Overload *ast.Overload
}

func (*AtomOp) isBooleanExpressionOp() {}

type ComputeCompareOp struct {
	LHS      ast.Value
	Operator ast.ComputeOp
	RHS      ast.Value
	Overload *ast.Overload
}

func (*ComputeCompareOp) isBooleanExpressionOp() {}

// ExternalOp is the lowered ExternalExpr (spec §4.5's External-predicate
// filter compilation recipe): Source is the invocation's own lowered
// operator, ready to drive a try/catch + async-while iteration, and Filter
// is the nested predicate lowered the same way as any other filter.
type ExternalOp struct {
	Invocation *ast.Invocation
	Source     TableOp
	Filter     BooleanExpressionOp
}

func (*ExternalOp) isBooleanExpressionOp() {}

// ExistentialSubqueryOp tests whether Subquery produces any row.
type ExistentialSubqueryOp struct {
	Subquery TableOp
}

func (*ExistentialSubqueryOp) isBooleanExpressionOp() {}

// ComparisonSubqueryOp compares LHS against the single projected column of
// RHS's rows.
type ComparisonSubqueryOp struct {
	LHS      ast.Value
	Operator string
	RHS      TableOp
	Overload *ast.Overload
}

func (*ComparisonSubqueryOp) isBooleanExpressionOp() {}

// LowerBooleanExpression lowers a filter expression, lowering any nested
// subquery Table to a TableOp along the way (spec §3.5/§4.5).
func (lw *Lowerer) LowerBooleanExpression(f ast.BooleanExpression) (BooleanExpressionOp, error) {
	switch e := f.(type) {
	case nil:
		return nil, nil
	case *ast.TrueExpr:
		return &TrueOp{}, nil
	case *ast.FalseExpr:
		return &FalseOp{}, nil
	case *ast.DontCareExpr:
		return &DontCareOp{Name: e.Name}, nil
	case *ast.AndExpr:
		ops := make([]BooleanExpressionOp, len(e.Operands))
		for i, op := range e.Operands {
			lowered, err := lw.LowerBooleanExpression(op)
			if err != nil {
				return nil, err
			}
			ops[i] = lowered
		}
		return &AndOp{Operands: ops}, nil
	case *ast.OrExpr:
		ops := make([]BooleanExpressionOp, len(e.Operands))
		for i, op := range e.Operands {
			lowered, err := lw.LowerBooleanExpression(op)
			if err != nil {
				return nil, err
			}
			ops[i] = lowered
		}
		return &OrOp{Operands: ops}, nil
	case *ast.NotExpr:
		inner, err := lw.LowerBooleanExpression(e.Operand)
		if err != nil {
			return nil, err
		}
		return &NotOp{Operand: inner}, nil
	case *ast.AtomExpr:
		return &AtomOp{Name: e.Name, Operator: e.Operator, Value: e.Value, Overload: e.Overload}, nil
	case *ast.ComputeExpr:
		return &ComputeCompareOp{LHS: e.LHS, Operator: e.Operator, RHS: e.RHS, Overload: e.Overload}, nil
	case *ast.ExternalExpr:
		inv := &ast.Invocation{Selector: e.Selector, Channel: e.Channel, InParams: e.InParams}
		inv.SetSchema(e.GetSchema())
		source, err := lw.LowerTable(&ast.InvocationTable{Invocation: inv})
		if err != nil {
			return nil, err
		}
		filter, err := lw.LowerBooleanExpression(e.Filter)
		if err != nil {
			return nil, err
		}
		return &ExternalOp{Invocation: inv, Source: source, Filter: filter}, nil
	case *ast.ExistentialSubqueryExpr:
		sub, err := lw.LowerTable(e.Subquery)
		if err != nil {
			return nil, err
		}
		return &ExistentialSubqueryOp{Subquery: sub}, nil
	case *ast.ComparisonSubqueryExpr:
		sub, err := lw.LowerTable(e.RHS)
		if err != nil {
			return nil, err
		}
		return &ComparisonSubqueryOp{LHS: e.LHS, Operator: e.Operator, RHS: sub, Overload: e.Overload}, nil
	default:
		return nil, errs.NewNotImplementedError(f.Range(), fmt.Sprintf("lower boolean expression %T", f))
	}
}

// conjoinOp combines two lowered filters with AND, flattening into a
// single AndOp rather than nesting (keeps the hint tree shallow for the
// compiler).
func conjoinOp(existing, added BooleanExpressionOp) BooleanExpressionOp {
	if existing == nil {
		return added
	}
	if and, ok := existing.(*AndOp); ok {
		and.Operands = append(and.Operands, added)
		return and
	}
	return &AndOp{Operands: []BooleanExpressionOp{existing, added}}
}
