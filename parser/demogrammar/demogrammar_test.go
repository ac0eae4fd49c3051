package demogrammar

import (
	"testing"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/parser"
)

func TestLexProducesExpectedTerminals(t *testing.T) {
	tokens, err := Lex("@security_camera.current_event() => notify;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{TermAt, TermIdent, TermDot, TermIdent, TermLParen, TermRParen, TermArrow, TermNotify, TermSemi}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, term := range want {
		if tokens[i].Terminal != term {
			t.Errorf("token %d: got terminal %q, want %q", i, tokens[i].Terminal, term)
		}
	}
}

func TestLexRejectsUnknownCharacter(t *testing.T) {
	if _, err := Lex("@kind.channel() ~> notify;"); err == nil {
		t.Error("expected a syntax error for an unrecognized character")
	}
}

func TestParseBuildsCommandStatement(t *testing.T) {
	tokens, err := Lex("@weather.current() => notify;")
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	engine := parser.New(BuildTables())
	result, err := engine.Parse(tokens)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	stmt, ok := result.(*ast.CommandStatement)
	if !ok {
		t.Fatalf("expected *ast.CommandStatement, got %T", result)
	}
	invTable, ok := stmt.Table.(*ast.InvocationTable)
	if !ok {
		t.Fatalf("expected *ast.InvocationTable, got %T", stmt.Table)
	}
	if invTable.Invocation.Selector.Kind != "weather" || invTable.Invocation.Channel != "current" {
		t.Errorf("got kind=%q channel=%q, want weather/current",
			invTable.Invocation.Selector.Kind, invTable.Invocation.Channel)
	}
	if len(stmt.Actions) != 1 || stmt.Actions[0].Channel != "notify" {
		t.Errorf("expected a single notify action, got %+v", stmt.Actions)
	}
}

func TestTablesValidate(t *testing.T) {
	if err := BuildTables().Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}
