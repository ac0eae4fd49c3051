package compiler

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-test/deep"
	"github.com/sebdah/goldie/v2"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/lower"
)

// TestDeclarationLoweringGolden pins the shape LowerDeclaration produces for
// a bodyless `let procedure` stub against a golden fixture, the same
// golden-file discipline the teacher uses for its explain/reformat output
// (see _examples/Velocidex-vfilter/explain/explain_test.go).
func TestDeclarationLoweringGolden(t *testing.T) {
	decl := &ast.DeclarationStatement{
		Name: "myProcedure",
		Kind: ast.DeclarationProcedure,
		Args: []ast.DeclarationArg{},
	}
	op, err := lower.New().LowerDeclaration(decl)
	if err != nil {
		t.Fatalf("lowering failed: %v", err)
	}
	data, err := json.MarshalIndent(op, "", "  ")
	if err != nil {
		t.Fatalf("marshaling lowered declaration failed: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("fixtures"),
		goldie.WithNameSuffix(".golden"),
		goldie.WithDiffEngine(goldie.ColoredDiff),
	)
	g.Assert(t, "declaration_lowering", data)
}

// TestDeclarationLoweringIsDeterministic uses the teacher's go-test/deep to
// diff two independent lowerings of the same declaration: a fresh Lowerer
// assigns declaration ids sequentially starting at 1, so lowering the same
// singleton declaration from two fresh Lowerers must produce identical
// DeclarationOp trees.
func TestDeclarationLoweringIsDeterministic(t *testing.T) {
	decl := &ast.DeclarationStatement{
		Name: "myAction",
		Kind: ast.DeclarationAction,
		Args: []ast.DeclarationArg{{Name: "arg"}},
	}

	first, err := lower.New().LowerDeclaration(decl)
	if err != nil {
		t.Fatalf("first lowering failed: %v", err)
	}
	second, err := lower.New().LowerDeclaration(decl)
	if err != nil {
		t.Fatalf("second lowering failed: %v", err)
	}

	if diff := deep.Equal(first, second); diff != nil {
		t.Errorf("expected two fresh lowerings of the same declaration to match, got diff: %v", diff)
	}
}

// TestCompileDeclarationBracketsEnterExitProcedure checks that compiling a
// declaration wraps its body in matching EnterProcedure/ExitProcedure
// markers (spec §4.5/§6.2).
func TestCompileDeclarationBracketsEnterExitProcedure(t *testing.T) {
	decl := &lower.DeclarationOp{
		ID:      7,
		Name:    "myAction",
		Kind:    ast.DeclarationAction,
		Actions: []*lower.ActionOp{{Invocation: notifyInvocation()}},
	}

	block, err := New().CompileDeclaration(decl)
	if err != nil {
		t.Fatalf("compiling declaration failed: %v", err)
	}
	dump := block.Dump()
	enterIdx := strings.Index(dump, "enter_procedure(7, myAction)")
	outputIdx := strings.Index(dump, "invoke_output")
	exitIdx := strings.Index(dump, "exit_procedure(7, myAction)")
	if enterIdx < 0 || outputIdx < 0 || exitIdx < 0 || !(enterIdx < outputIdx && outputIdx < exitIdx) {
		t.Errorf("expected enter_procedure ... invoke_output ... exit_procedure in order, got:\n%s", dump)
	}
}
