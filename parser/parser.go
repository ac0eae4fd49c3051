// Package parser implements the generic table-driven shift-reduce parser
// runtime (C3, spec §4.1). It consumes precomputed LALR tables — terminal
// ids, rule non-terminals, rule arities, the goto table, the parser action
// table, and per-rule semantic actions — and never embeds any grammar
// knowledge itself; the surface ThingTalk grammar and its table generator
// are explicitly out of scope (spec §1).
package parser

import (
	"fmt"

	"github.com/stanford-oval/thingtalk-go/errs"
)

// EndOfInput is the canonical end-of-input terminal name this runtime
// reports in generated SyntaxErrors. Tables may spell it either
// `" 1EOF"` (a table-generator artifact) or `"<<EOF>>"` (the
// human-readable form); both are accepted on input (spec §6.1/§9 Open
// Question), and this runtime always emits the latter. See DESIGN.md.
const EndOfInput = "<<EOF>>"

// legacyEndOfInput is the alternate spelling some generated tables use.
const legacyEndOfInput = " 1EOF"

// normalizeTerminal maps the legacy EOF spelling onto the canonical one so
// both forms of a generated table behave identically.
func normalizeTerminal(name string) string {
	if name == legacyEndOfInput {
		return EndOfInput
	}
	return name
}

// ActionKind is the verb of one PARSER_ACTION table entry.
type ActionKind int

const (
	ActionError ActionKind = iota
	ActionShift
	ActionReduce
	ActionAccept
)

// Action is a single (state, terminal) -> verb decision.
type Action struct {
	Kind  ActionKind
	State int // for Shift: state to push. For Reduce: rule index.
}

// Token is one lexical unit fed into the parser, already classified
// against the grammar's terminal set by a lexer this package does not
// implement (spec §1: lexing is out of scope).
type Token struct {
	Terminal string
	Value    interface{}
	Range    errs.SourceRange
}

// SemanticAction builds the value for a reduced rule from its right-hand
// side's already-built values.
type SemanticAction func(rhs []interface{}) (interface{}, error)

// Tables is the complete precomputed LALR table set this runtime consumes
// (spec §4.1/§6.1): terminal ids, rule non-terminals, rule arities, the
// goto table, the parser action table, and the semantic action per rule.
type Tables struct {
	// TerminalIDs maps a terminal name to its column index in ACTION.
	TerminalIDs map[string]int

	// RuleNonTerminals[i] is the non-terminal rule i reduces to.
	RuleNonTerminals []string

	// Arity[i] is the number of right-hand-side symbols rule i consumes.
	Arity []int

	// Goto[state][nonTerminal] is the state to transition to after a
	// reduction exposes that non-terminal, keyed by non-terminal name.
	Goto map[int]map[string]int

	// Action[state][terminalID] is the shift/reduce/accept/error decision.
	Action map[int]map[int]Action

	// SemanticActions[i] builds rule i's value. A nil entry passes the
	// single RHS symbol through unchanged (common for `X : Y` pass-through
	// rules). In "reduce-sequence mode" (see Engine.ParseReduceSequence)
	// no builder runs at all and no values are built.
	SemanticActions []SemanticAction

	// StartState is the initial parser state.
	StartState int
}

// Engine drives the shift-reduce loop over a Tables and a token stream.
type Engine struct {
	tables *Tables
}

// New builds an Engine over the given precomputed tables.
func New(tables *Tables) *Engine {
	return &Engine{tables: tables}
}

type stackEntry struct {
	state int
	value interface{}
	rng   errs.SourceRange
}

// Parse runs the engine in semantic mode: each reduction invokes its rule's
// SemanticAction and the final accepted value is returned (spec §4.1).
func (e *Engine) Parse(tokens []Token) (interface{}, error) {
	return e.run(tokens, true)
}

// ParseReduceSequence runs the engine in reduce-sequence mode: instead of
// building semantic values, it records the ordered list of rule indices
// reduced, used by tooling that only needs the derivation shape (e.g. a
// parse-tree visualizer) without paying for tree construction
// (spec §4.1: "two modes: semantic mode and reduce-sequence mode").
func (e *Engine) ParseReduceSequence(tokens []Token) ([]int, error) {
	var sequence []int
	_, err := e.runWithReduceHook(tokens, false, func(ruleIdx int) {
		sequence = append(sequence, ruleIdx)
	})
	return sequence, err
}

func (e *Engine) run(tokens []Token, semantic bool) (interface{}, error) {
	return e.runWithReduceHook(tokens, semantic, nil)
}

func (e *Engine) runWithReduceHook(tokens []Token, semantic bool, onReduce func(int)) (interface{}, error) {
	stack := []stackEntry{{state: e.tables.StartState}}
	pos := 0

	peek := func() Token {
		if pos < len(tokens) {
			t := tokens[pos]
			t.Terminal = normalizeTerminal(t.Terminal)
			return t
		}
		return Token{Terminal: EndOfInput}
	}

	for {
		tok := peek()
		top := stack[len(stack)-1]

		termID, known := e.tables.TerminalIDs[tok.Terminal]
		if !known && tok.Terminal == EndOfInput {
			termID, known = e.tables.TerminalIDs[legacyEndOfInput]
		}
		if !known {
			return nil, e.syntaxError(top.state, tok)
		}

		actionsForState, ok := e.tables.Action[top.state]
		if !ok {
			return nil, e.syntaxError(top.state, tok)
		}
		action, ok := actionsForState[termID]
		if !ok || action.Kind == ActionError {
			return nil, e.syntaxError(top.state, tok)
		}

		switch action.Kind {
		case ActionShift:
			stack = append(stack, stackEntry{state: action.State, value: tok.Value, rng: tok.Range})
			pos++

		case ActionReduce:
			rule := action.State
			arity := e.tables.Arity[rule]
			if arity > len(stack)-1 {
				return nil, errs.NewSyntaxError(tok.Range, tok.Terminal, e.validTerminals(top.state))
			}
			rhsValues := make([]interface{}, arity)
			var rng errs.SourceRange
			for i := 0; i < arity; i++ {
				rhsValues[i] = stack[len(stack)-arity+i].value
			}
			if arity > 0 {
				rng = stack[len(stack)-arity].rng
			}
			stack = stack[:len(stack)-arity]

			nonTerminal := e.tables.RuleNonTerminals[rule]
			gotoTable, ok := e.tables.Goto[stack[len(stack)-1].state]
			if !ok {
				return nil, e.syntaxError(stack[len(stack)-1].state, tok)
			}
			nextState, ok := gotoTable[nonTerminal]
			if !ok {
				return nil, e.syntaxError(stack[len(stack)-1].state, tok)
			}

			var value interface{}
			if semantic {
				build := e.tables.SemanticActions[rule]
				if build == nil {
					if len(rhsValues) == 1 {
						value = rhsValues[0]
					}
				} else {
					var err error
					value, err = build(rhsValues)
					if err != nil {
						return nil, err
					}
				}
			}
			stack = append(stack, stackEntry{state: nextState, value: value, rng: rng})

			if onReduce != nil {
				onReduce(rule)
			}

		case ActionAccept:
			if len(stack) < 2 {
				return nil, errs.NewSyntaxError(tok.Range, tok.Terminal, e.validTerminals(top.state))
			}
			return stack[len(stack)-1].value, nil
		}
	}
}

func (e *Engine) syntaxError(state int, tok Token) error {
	return errs.NewSyntaxError(tok.Range, tok.Terminal, e.validTerminals(state))
}

// validTerminals lists the terminal names with a defined action in state,
// for the SyntaxError's "expected one of" list (spec §4.1).
func (e *Engine) validTerminals(state int) []string {
	actions, ok := e.tables.Action[state]
	if !ok {
		return nil
	}
	idToName := make(map[int]string, len(e.tables.TerminalIDs))
	for name, id := range e.tables.TerminalIDs {
		idToName[id] = normalizeTerminal(name)
	}
	var out []string
	for id, action := range actions {
		if action.Kind != ActionError {
			out = append(out, idToName[id])
		}
	}
	return out
}

// Validate sanity-checks a Tables value before it is handed to New,
// catching the kind of off-by-one table-generator bugs spec §9 flags as a
// design risk ("a hand-rolled generic engine driven by precomputed
// tables... is only as correct as those tables").
func (t *Tables) Validate() error {
	if len(t.RuleNonTerminals) != len(t.Arity) {
		return fmt.Errorf("rule table mismatch: %d non-terminals vs %d arities", len(t.RuleNonTerminals), len(t.Arity))
	}
	if t.SemanticActions != nil && len(t.SemanticActions) != len(t.RuleNonTerminals) {
		return fmt.Errorf("semantic action table has %d entries, expected %d", len(t.SemanticActions), len(t.RuleNonTerminals))
	}
	if _, ok := t.Action[t.StartState]; !ok {
		return fmt.Errorf("start state %d has no actions", t.StartState)
	}
	return nil
}
