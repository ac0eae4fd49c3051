// Package demogrammar is a hand-built minimal table set for the engine in
// package parser: just enough grammar to recognize one fixed command
// shape, `@kind.channel() => notify;`, so the parser runtime (C3) can be
// exercised end to end without the full ThingTalk surface grammar, which
// is out of scope (spec §1). It is not meant to grow into a real grammar;
// production wiring replaces this with tables from the real table
// generator.
package demogrammar

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/errs"
	"github.com/stanford-oval/thingtalk-go/parser"
)

// Terminal names, in shift order for the one sentence this grammar
// accepts.
const (
	TermAt       = "@"
	TermIdent    = "IDENT"
	TermDot      = "."
	TermLParen   = "("
	TermRParen   = ")"
	TermArrow    = "=>"
	TermNotify   = "notify"
	TermSemi     = ";"
)

// state indices, named for readability.
const (
	stateStart = iota
	stateAfterAt
	stateAfterKind
	stateAfterDot
	stateAfterChannel
	stateAfterLParen
	stateAfterRParen
	stateAfterArrow
	stateAfterNotify
	stateAfterSemi
	stateAccept
)

const ruleCommand = 0

// BuildTables constructs the fixed Tables for the one-sentence grammar:
//
//	Command : "@" IDENT "." IDENT "(" ")" "=>" "notify" ";"
func BuildTables() *parser.Tables {
	terminals := []string{TermAt, TermIdent, TermDot, TermLParen, TermRParen, TermArrow, TermNotify, TermSemi, parser.EndOfInput}
	ids := make(map[string]int, len(terminals))
	for i, t := range terminals {
		ids[t] = i
	}

	action := map[int]map[int]parser.Action{
		stateStart:         {ids[TermAt]: {Kind: parser.ActionShift, State: stateAfterAt}},
		stateAfterAt:       {ids[TermIdent]: {Kind: parser.ActionShift, State: stateAfterKind}},
		stateAfterKind:     {ids[TermDot]: {Kind: parser.ActionShift, State: stateAfterDot}},
		stateAfterDot:      {ids[TermIdent]: {Kind: parser.ActionShift, State: stateAfterChannel}},
		stateAfterChannel:  {ids[TermLParen]: {Kind: parser.ActionShift, State: stateAfterLParen}},
		stateAfterLParen:   {ids[TermRParen]: {Kind: parser.ActionShift, State: stateAfterRParen}},
		stateAfterRParen:   {ids[TermArrow]: {Kind: parser.ActionShift, State: stateAfterArrow}},
		stateAfterArrow:    {ids[TermNotify]: {Kind: parser.ActionShift, State: stateAfterNotify}},
		stateAfterNotify:   {ids[TermSemi]: {Kind: parser.ActionShift, State: stateAfterSemi}},
		stateAfterSemi:     {ids[parser.EndOfInput]: {Kind: parser.ActionReduce, State: ruleCommand}},
		stateAccept:        {ids[parser.EndOfInput]: {Kind: parser.ActionAccept}},
	}

	gotoTable := map[int]map[string]int{
		stateStart: {"Command": stateAccept},
	}

	semanticActions := []parser.SemanticAction{
		ruleCommand: buildCommand,
	}

	return &parser.Tables{
		TerminalIDs:      ids,
		RuleNonTerminals: []string{"Command"},
		Arity:            []int{9},
		Goto:             gotoTable,
		Action:           action,
		SemanticActions:  semanticActions,
		StartState:       stateStart,
	}
}

// buildCommand assembles the CommandStatement from the nine shifted
// token values: "@", kind, ".", channel, "(", ")", "=>", "notify", ";".
func buildCommand(rhs []interface{}) (interface{}, error) {
	if len(rhs) != 9 {
		return nil, fmt.Errorf("demogrammar: expected 9 RHS symbols, got %d", len(rhs))
	}
	kind, ok := rhs[1].(string)
	if !ok {
		return nil, fmt.Errorf("demogrammar: expected device kind identifier")
	}
	channel, ok := rhs[3].(string)
	if !ok {
		return nil, fmt.Errorf("demogrammar: expected channel identifier")
	}

	invocation := &ast.Invocation{
		Selector: ast.DeviceSelector{Kind: kind},
		Channel:  channel,
	}
	table := &ast.InvocationTable{Invocation: invocation}
	notifyInvocation := &ast.Invocation{
		Selector: ast.DeviceSelector{Kind: "builtin"},
		Channel:  "notify",
	}
	return &ast.CommandStatement{Table: table, Actions: []*ast.Invocation{notifyInvocation}}, nil
}

// Lex tokenizes source against this grammar's fixed terminal set. It is a
// hand-rolled scanner for the one sentence shape BuildTables recognizes,
// not a general ThingTalk lexer (out of scope, spec §1).
func Lex(source string) ([]parser.Token, error) {
	var tokens []parser.Token
	i := 0
	line := 1
	runes := []rune(source)

	skipSpace := func() {
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			if runes[i] == '\n' {
				line++
			}
			i++
		}
	}

	for {
		skipSpace()
		if i >= len(runes) {
			break
		}
		start := i
		switch {
		case runes[i] == '@':
			tokens = append(tokens, parser.Token{Terminal: TermAt, Range: rangeAt(line, start)})
			i++
		case runes[i] == '.':
			tokens = append(tokens, parser.Token{Terminal: TermDot, Range: rangeAt(line, start)})
			i++
		case runes[i] == '(':
			tokens = append(tokens, parser.Token{Terminal: TermLParen, Range: rangeAt(line, start)})
			i++
		case runes[i] == ')':
			tokens = append(tokens, parser.Token{Terminal: TermRParen, Range: rangeAt(line, start)})
			i++
		case runes[i] == ';':
			tokens = append(tokens, parser.Token{Terminal: TermSemi, Range: rangeAt(line, start)})
			i++
		case strings.HasPrefix(string(runes[i:]), "=>"):
			tokens = append(tokens, parser.Token{Terminal: TermArrow, Range: rangeAt(line, start)})
			i += 2
		case unicode.IsLetter(runes[i]) || runes[i] == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			i = j
			if word == "notify" {
				tokens = append(tokens, parser.Token{Terminal: TermNotify, Value: word, Range: rangeAt(line, start)})
			} else {
				tokens = append(tokens, parser.Token{Terminal: TermIdent, Value: word, Range: rangeAt(line, start)})
			}
		default:
			return nil, errs.NewSyntaxError(rangeAt(line, start), string(runes[i]), []string{TermAt, TermIdent, TermDot, TermLParen, TermRParen, TermArrow, TermNotify, TermSemi})
		}
	}
	return tokens, nil
}

func rangeAt(line, col int) errs.SourceRange {
	return errs.SourceRange{StartLine: line, StartColumn: col, EndLine: line, EndColumn: col}
}
