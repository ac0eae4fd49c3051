// This is an example application using thingtalk-go. It reads a ThingTalk
// command from the command line, parses it, typechecks it against an
// injected device schema, lowers it to an operator tree, compiles it to
// IR, and prints the result. Only the one-sentence demo grammar of
// parser/demogrammar is supported; it exercises the pipeline end to end
// without the full (out of scope) surface grammar.
package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/compiler"
	"github.com/stanford-oval/thingtalk-go/lower"
	"github.com/stanford-oval/thingtalk-go/parser"
	"github.com/stanford-oval/thingtalk-go/parser/demogrammar"
	"github.com/stanford-oval/thingtalk-go/schema"
	"github.com/stanford-oval/thingtalk-go/typecheck"
	"github.com/stanford-oval/thingtalk-go/types"
)

var (
	command = kingpin.Arg("command", "The ThingTalk command to compile, e.g. @weather.current() => notify;").Required().String()
)

// fakeRetriever answers GetSchema for whatever device kind and function
// name the demo command names, with a query of that name returning a
// single "temperature" field (plus the builtin notify action), so the demo
// has something concrete to typecheck against.
type fakeRetriever struct{}

func (fakeRetriever) GetSchema(ctx context.Context, kind, functionType, name string) (*schema.FunctionDef, error) {
	if kind == "builtin" && name == "notify" {
		return &schema.FunctionDef{FunctionType: schema.FunctionAction, Name: "notify"}, nil
	}
	return &schema.FunctionDef{
		FunctionType: schema.FunctionQuery,
		Name:         name,
		IsList:       false,
		Args: []schema.ArgumentDef{
			{Direction: schema.Out, Name: "temperature", Type: types.Measure("C")},
		},
	}, nil
}

func (fakeRetriever) IsEntitySubtype(sub, parent string) bool { return sub == parent }

func compileCommand(source string) (string, error) {
	tokens, err := demogrammar.Lex(source)
	if err != nil {
		return "", fmt.Errorf("lexing: %w", err)
	}

	engine := parser.New(demogrammar.BuildTables())
	parsed, err := engine.Parse(tokens)
	if err != nil {
		return "", fmt.Errorf("parsing: %w", err)
	}

	stmt, ok := parsed.(*ast.CommandStatement)
	if !ok {
		return "", fmt.Errorf("unexpected parse result %T", parsed)
	}

	tc := typecheck.New(fakeRetriever{})
	ctx := context.Background()
	program := &ast.Program{Statements: []ast.Statement{stmt}}
	if err := tc.TypecheckProgram(ctx, program); err != nil {
		return "", fmt.Errorf("typechecking: %w", err)
	}

	lw := lower.New()
	loweredAny, err := lw.LowerStatement(stmt)
	if err != nil {
		return "", fmt.Errorf("lowering: %w", err)
	}
	cmdOp, ok := loweredAny.(*lower.CommandOp)
	if !ok {
		return "", fmt.Errorf("unexpected lowered result %T", loweredAny)
	}

	oc := compiler.New()
	block, err := oc.CompileCommand(cmdOp)
	if err != nil {
		return "", fmt.Errorf("compiling: %w", err)
	}
	return block.Dump(), nil
}

func main() {
	kingpin.Parse()
	out, err := compileCommand(*command)
	kingpin.FatalIfError(err, "Unable to compile ThingTalk command")
	fmt.Println(out)
	os.Exit(0)
}
