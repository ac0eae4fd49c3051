package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/lower"
	"github.com/stanford-oval/thingtalk-go/schema"
	"github.com/stanford-oval/thingtalk-go/typecheck"
	"github.com/stanford-oval/thingtalk-go/types"
)

type stubRetriever struct{}

func (stubRetriever) GetSchema(ctx context.Context, kind, functionType, name string) (*schema.FunctionDef, error) {
	if kind == "builtin" && name == "notify" {
		return &schema.FunctionDef{FunctionType: schema.FunctionAction, Name: "notify"}, nil
	}
	return &schema.FunctionDef{
		FunctionType: schema.FunctionQuery,
		Name:         name,
		IsList:       true,
		Args: []schema.ArgumentDef{
			{Direction: schema.Out, Name: "temperature", Type: types.Measure("C")},
			{Direction: schema.Out, Name: "location", Type: types.String()},
		},
	}, nil
}

func (stubRetriever) IsEntitySubtype(sub, parent string) bool { return sub == parent }

func notifyInvocation() *ast.Invocation {
	return &ast.Invocation{Selector: ast.DeviceSelector{Kind: "builtin"}, Channel: "notify"}
}

// TestCommandPipelineCompiles walks a plain "get => notify" command through
// typecheck, lowering, and compilation end to end.
func TestCommandPipelineCompiles(t *testing.T) {
	stmt := &ast.CommandStatement{
		Table:   &ast.InvocationTable{Invocation: &ast.Invocation{Selector: ast.DeviceSelector{Kind: "weather"}, Channel: "current"}},
		Actions: []*ast.Invocation{notifyInvocation()},
	}
	program := &ast.Program{Statements: []ast.Statement{stmt}}

	if err := typecheck.New(stubRetriever{}).TypecheckProgram(context.Background(), program); err != nil {
		t.Fatalf("typecheck failed: %v", err)
	}

	lowered, err := lower.New().LowerStatement(stmt)
	if err != nil {
		t.Fatalf("lowering failed: %v", err)
	}
	cmdOp, ok := lowered.(*lower.CommandOp)
	if !ok {
		t.Fatalf("expected *lower.CommandOp, got %T", lowered)
	}
	if _, ok := cmdOp.Table.(*lower.InvokeGetOp); !ok {
		t.Fatalf("expected InvokeGetOp at the root, got %T", cmdOp.Table)
	}

	block, err := New().CompileCommand(cmdOp)
	if err != nil {
		t.Fatalf("compiling failed: %v", err)
	}
	dump := block.Dump()
	if !strings.Contains(dump, "try {") {
		t.Error("expected every invocation to be wrapped in TryCatch per the compiler's invariant")
	}
	if !strings.Contains(dump, "for r") {
		t.Error("expected a ForIn over the query result rows")
	}
	if !strings.Contains(dump, "invoke_output") {
		t.Error("expected the builtin notify action to compile to InvokeOutput")
	}
}

// TestFilterSortSliceFusesIntoInvocationHints exercises the lowering pass's
// hint push-down: Filter -> Sort -> Slice wrapping a bare table invocation
// should fuse into the InvokeGetOp's QueryInvocationHints rather than
// producing standalone FilterOp/ReduceOp nodes.
func TestFilterSortSliceFusesIntoInvocationHints(t *testing.T) {
	base := &ast.InvocationTable{Invocation: &ast.Invocation{Selector: ast.DeviceSelector{Kind: "weather"}, Channel: "current"}}
	filtered := &ast.FilterTable{
		Table: base,
		Filter: &ast.AtomExpr{
			Name:     "location",
			Operator: "==",
			Value:    &ast.StringValue{Value: "Palo Alto"},
		},
	}
	sorted := &ast.SortTable{Table: filtered, Field: "temperature", Direction: ast.SortDesc}
	sliced := &ast.SliceTable{Table: sorted, Limit: &ast.NumberValue{Value: 1}}

	op, err := lower.New().LowerTable(sliced)
	if err != nil {
		t.Fatalf("lowering failed: %v", err)
	}
	invoke, ok := op.(*lower.InvokeGetOp)
	if !ok {
		t.Fatalf("expected filter/sort/slice to fuse into a single InvokeGetOp, got %T", op)
	}
	if invoke.Hints.Filter == nil {
		t.Error("expected the filter to be pushed down into the invocation hints")
	}
	if invoke.Hints.Sort == nil || invoke.Hints.Sort.Field != "temperature" {
		t.Error("expected the sort to be pushed down into the invocation hints")
	}
	if invoke.Hints.Limit != 1 {
		t.Errorf("expected limit 1 to be pushed down, got %d", invoke.Hints.Limit)
	}
}

// TestIndexOneOfSortFusesIntoArgMinMax covers the Index[1] of Sort(f, asc)
// -> ArgMinMax peephole.
func TestIndexOneOfSortFusesIntoArgMinMax(t *testing.T) {
	base := &ast.InvocationTable{Invocation: &ast.Invocation{Selector: ast.DeviceSelector{Kind: "weather"}, Channel: "current"}}
	sorted := &ast.SortTable{Table: base, Field: "temperature", Direction: ast.SortAsc}
	indexed := &ast.IndexTable{Table: sorted, Indices: []ast.Value{&ast.NumberValue{Value: 1}}}

	op, err := lower.New().LowerTable(indexed)
	if err != nil {
		t.Fatalf("lowering failed: %v", err)
	}
	reduce, ok := op.(*lower.ReduceOp)
	if !ok {
		t.Fatalf("expected the Index[1]-of-Sort fusion to produce a ReduceOp, got %T", op)
	}
	if reduce.Kind != lower.ReduceArgMinMax {
		t.Errorf("expected ReduceArgMinMax, got %v", reduce.Kind)
	}
	if reduce.Field != "temperature" || reduce.Sort != ast.SortAsc {
		t.Errorf("expected the fusion to carry the sort field/direction, got field=%q sort=%v", reduce.Field, reduce.Sort)
	}
	if _, ok := reduce.Source.(*lower.InvokeGetOp); !ok {
		t.Errorf("expected the fused reduce to sit directly over the bare invocation, got %T", reduce.Source)
	}
}

// TestMonitorRulePipelineCompiles walks a "monitor => notify" rule through
// typecheck, lowering, and compilation, checking that EdgeNew compiles to a
// CheckIsNewTuple guard and notify to InvokeOutput.
func TestMonitorRulePipelineCompiles(t *testing.T) {
	monitorStream := &ast.MonitorStream{
		Table: &ast.InvocationTable{Invocation: &ast.Invocation{Selector: ast.DeviceSelector{Kind: "weather"}, Channel: "current"}},
	}
	edgeNew := &ast.EdgeNewStream{Stream: monitorStream}
	stmt := &ast.RuleStatement{Stream: edgeNew, Actions: []*ast.Invocation{notifyInvocation()}}
	program := &ast.Program{Statements: []ast.Statement{stmt}}

	if err := typecheck.New(stubRetriever{}).TypecheckProgram(context.Background(), program); err != nil {
		t.Fatalf("typecheck failed: %v", err)
	}

	lowered, err := lower.New().LowerStatement(stmt)
	if err != nil {
		t.Fatalf("lowering failed: %v", err)
	}
	ruleOp, ok := lowered.(*lower.RuleOp)
	if !ok {
		t.Fatalf("expected *lower.RuleOp, got %T", lowered)
	}

	block, err := New().CompileRule(ruleOp)
	if err != nil {
		t.Fatalf("compiling failed: %v", err)
	}
	dump := block.Dump()
	if !strings.Contains(dump, "check_is_new_tuple(") {
		t.Error("expected EdgeNew to compile to a CheckIsNewTuple guard")
	}
	if !strings.Contains(dump, "invoke_output") {
		t.Error("expected the builtin notify action to compile to InvokeOutput")
	}
}
