// Package compiler implements the operator-tree compiler (C7, spec §4.5):
// it walks the lowered TableOp/StreamOp/ActionOp tree and emits the
// register-based IR of package ir.
package compiler

import (
	"fmt"
	"sort"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/errs"
	"github.com/stanford-oval/thingtalk-go/ir"
	"github.com/stanford-oval/thingtalk-go/lower"
	"github.com/stanford-oval/thingtalk-go/schema"
)

// varScope is the compiler-local chained symbol table mapping an
// in-scope column name to the IR register holding its current value,
// spec §4.5: "compiler-local Scope (chained symbol table with
// $outputType/$output reserved keys)".
type varScope struct {
	parent *varScope
	vars   map[string]ir.Register
	// version counts how many times each name has been bound at this scope
	// level.
	version map[string]int
}

const (
	outputTypeKey = "$outputType"
	outputKey     = "$output"
)

func newVarScope(parent *varScope) *varScope {
	return &varScope{parent: parent, vars: make(map[string]ir.Register), version: make(map[string]int)}
}

func (s *varScope) bind(name string, r ir.Register) {
	s.vars[name] = r
	s.version[name]++
}

func (s *varScope) lookup(name string) (ir.Register, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if r, ok := cur.vars[name]; ok {
			return r, true
		}
	}
	return 0, false
}

// names returns every bound name visible from this scope level outward,
// in a stable order, for CheckIsNewTuple's var-scope key set
// (spec §8 invariant).
func (s *varScope) names() []string {
	seen := make(map[string]bool)
	var out []string
	for cur := s; cur != nil; cur = cur.parent {
		for name := range cur.vars {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// OpCompiler compiles a lowered operator tree into IR.
type OpCompiler struct {
	b *ir.IrBuilder

	// stateSlotSeq allocates unique names for EdgeNew/EdgeFilter compiler
	// state slots.
	stateSlotSeq int
}

// New builds an OpCompiler around a fresh IrBuilder.
func New() *OpCompiler {
	return &OpCompiler{b: ir.NewIrBuilder()}
}

func (c *OpCompiler) nextStateSlot(prefix string) string {
	c.stateSlotSeq++
	return fmt.Sprintf("%s_%d", prefix, c.stateSlotSeq)
}

// CompileRule compiles a lowered RuleOp into a complete function body.
func (c *OpCompiler) CompileRule(rule *lower.RuleOp) (*ir.Block, error) {
	scope := newVarScope(nil)
	if err := c.compileStream(rule.Stream, scope, func(inner *varScope) error {
		return c.compileActions(rule.Actions, inner)
	}); err != nil {
		return nil, err
	}
	return c.b.PopAll(), nil
}

// CompileCommand compiles a lowered CommandOp into a complete function body.
func (c *OpCompiler) CompileCommand(cmd *lower.CommandOp) (*ir.Block, error) {
	if cmd.Table == nil {
		scope := newVarScope(nil)
		if err := c.compileActions(cmd.Actions, scope); err != nil {
			return nil, err
		}
		return c.b.PopAll(), nil
	}
	scope := newVarScope(nil)
	if err := c.compileTable(cmd.Table, scope, func(inner *varScope) error {
		return c.compileActions(cmd.Actions, inner)
	}); err != nil {
		return nil, err
	}
	return c.b.PopAll(), nil
}

// CompileDeclaration compiles a lowered `let table/stream/action/procedure`
// declaration into a complete function body, bracketing the compiled body
// with EnterProcedure/ExitProcedure so the runtime can attribute state-slot
// lookups and error traces to this declaration (spec §4.5, §6.2).
func (c *OpCompiler) CompileDeclaration(decl *lower.DeclarationOp) (*ir.Block, error) {
	c.b.Add(&ir.EnterProcedure{ID: decl.ID, Name: decl.Name})
	scope := newVarScope(nil)
	var err error
	switch {
	case decl.Table != nil:
		err = c.compileTable(decl.Table, scope, func(*varScope) error { return nil })
	case decl.Stream != nil:
		err = c.compileStream(decl.Stream, scope, func(*varScope) error { return nil })
	case decl.Actions != nil:
		err = c.compileActions(decl.Actions, scope)
	}
	if err != nil {
		return nil, err
	}
	c.b.Add(&ir.ExitProcedure{ID: decl.ID, Name: decl.Name})
	return c.b.PopAll(), nil
}

func (c *OpCompiler) compileActions(actions []*lower.ActionOp, scope *varScope) error {
	for _, a := range actions {
		if err := c.compileAction(a, scope); err != nil {
			return err
		}
	}
	return nil
}

// compileAction dispatches one action invocation per spec §4.5's action
// compilation recipe: a VarRef to a locally declared `let action`/`let
// procedure` compiles to InvokeActionVarRef; the builtin `notify` compiles
// to InvokeOutput($outputType, $output); everything else is a device
// action and compiles to InvokeAction.
//
// Declared actions are encoded, like TableVarRef/StreamVarRef, with a
// reserved selector kind ("self") rather than a dedicated AST node, since
// actions share the Invocation shape with device calls (see DESIGN.md).
func (c *OpCompiler) compileAction(a *lower.ActionOp, scope *varScope) error {
	inv := a.Invocation
	if inv.Selector.Kind == "builtin" && inv.Channel == "notify" {
		outputType, output := c.notifyOperands(scope)
		c.b.Add(&ir.InvokeOutput{OutputType: outputType, Output: output})
		return nil
	}
	inParams, err := c.compileInParams(inv.InParams, scope)
	if err != nil {
		return err
	}
	return c.wrapInvocationInTryCatch(func() error {
		if inv.Selector.Kind == "self" {
			c.b.Add(&ir.InvokeActionVarRef{Name: inv.Channel, InParams: inParams})
		} else {
			c.b.Add(&ir.InvokeAction{Invocation: inv, InParams: inParams})
		}
		if a.SendEndOfFlow {
			c.b.Add(&ir.SendEndOfFlow{Invocation: inv})
		}
		return nil
	})
}

// notifyOperands resolves the reserved $outputType/$output scope keys a
// row-producing table/stream binds (spec §4.5: "current_scope ...
// $outputType and $output are reserved keys"). Absent either binding (e.g.
// notify with no upstream query), $output falls back to undefined and
// $outputType is omitted.
func (c *OpCompiler) notifyOperands(scope *varScope) (*ir.Register, ir.Register) {
	output, ok := scope.lookup(outputKey)
	if !ok {
		output = c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: output, Value: &ast.UndefinedValue{}})
	}
	if t, ok := scope.lookup(outputTypeKey); ok {
		return &t, output
	}
	return nil, output
}

// wrapInvocationInTryCatch wraps every device invocation in a TryCatch
// frame (spec §8 invariant: "TryCatch wraps every invocation").
func (c *OpCompiler) wrapInvocationInTryCatch(body func() error) error {
	c.b.PushBlock()
	if err := body(); err != nil {
		c.b.PopBlock()
		return err
	}
	inner := c.b.PopBlock()
	c.b.Add(&ir.TryCatch{Body: inner, ErrorMessage: "invocation failed"})
	return nil
}

func (c *OpCompiler) compileInParams(params []ast.InputParam, scope *varScope) (map[string]ir.Register, error) {
	out := make(map[string]ir.Register, len(params))
	for _, p := range params {
		r, err := c.compileValue(p.Value, scope)
		if err != nil {
			return nil, err
		}
		out[p.Name] = r
	}
	return out, nil
}

// compileTable compiles a TableOp, invoking `consume` once per resulting
// row with a scope that has that row's columns bound.
func (c *OpCompiler) compileTable(t lower.TableOp, scope *varScope, consume func(*varScope) error) error {
	switch tt := t.(type) {
	case *lower.InvokeGetOp:
		inParams, err := c.compileInParams(tt.Invocation.InParams, scope)
		if err != nil {
			return err
		}
		iterReg := c.b.AllocRegister()
		rowReg := c.b.AllocRegister()
		if err := c.wrapInvocationInTryCatch(func() error {
			c.b.Add(&ir.InvokeQuery{Dest: iterReg, Invocation: tt.Invocation, InParams: inParams, Hints: tt.Hints})
			return nil
		}); err != nil {
			return err
		}
		return c.forInRow(iterReg, rowReg, tt.Invocation.GetSchema(), outputTypeOf(tt.Invocation), scope, consume)

	case *lower.InvokeVarRefOp:
		inParams, err := c.compileInParams(tt.InParams, scope)
		if err != nil {
			return err
		}
		iterReg := c.b.AllocRegister()
		rowReg := c.b.AllocRegister()
		c.b.Add(&ir.InvokeVarRef{Dest: iterReg, Name: tt.Name, InParams: inParams})
		return c.forInRow(iterReg, rowReg, nil, tt.Name, scope, consume)

	case *lower.FilterOp:
		return c.compileTable(tt.Source, scope, func(inner *varScope) error {
			condReg, err := c.compileFilter(tt.Filter, inner)
			if err != nil {
				return err
			}
			return c.ifTrue(condReg, func() error { return consume(inner) })
		})

	case *lower.MapOp:
		return c.compileTable(tt.Source, scope, func(inner *varScope) error {
			mapped := newVarScope(inner)
			for _, col := range tt.Projection {
				r, ok := inner.lookup(col)
				if !ok {
					return errs.NewNotImplementedError(errs.SourceRange{}, "projection of unbound column "+col)
				}
				mapped.bind(col, r)
			}
			for alias, expr := range tt.Compute {
				r, err := c.compileValue(expr, inner)
				if err != nil {
					return err
				}
				mapped.bind(alias, r)
			}
			return consume(mapped)
		})

	case *lower.AliasOp:
		return c.compileTable(tt.Source, scope, consume)

	case *lower.ReduceOp:
		return c.compileReduce(tt, scope, consume)

	case *lower.CrossJoinOp:
		return c.compileTable(tt.LHS, scope, func(lhsScope *varScope) error {
			return c.compileTable(tt.RHS, lhsScope, consume)
		})

	case *lower.NestedLoopJoinOp:
		return c.compileTable(tt.LHS, scope, func(lhsScope *varScope) error {
			boundScope := newVarScope(lhsScope)
			for _, ip := range tt.InParams {
				r, err := c.compileValue(ip.Value, lhsScope)
				if err != nil {
					return err
				}
				boundScope.bind(ip.Name, r)
			}
			return c.compileTable(tt.RHS, boundScope, consume)
		})

	case *lower.WindowOp, *lower.TimeSeriesOp, *lower.SequenceOp, *lower.HistoryOp:
		return errs.NewNotImplementedError(errs.SourceRange{}, fmt.Sprintf("compile time-series op %T", t))

	default:
		return errs.NewNotImplementedError(errs.SourceRange{}, fmt.Sprintf("compile table op %T", t))
	}
}

// forInRow opens a ForIn block iterating iterReg, binds the schema's
// output argument names into a fresh scope plus the reserved $outputType/
// $output keys (spec §4.5), and runs body inside it.
func (c *OpCompiler) forInRow(iterReg, rowReg ir.Register, fn *schema.FunctionDef, outputType string, outer *varScope, body func(*varScope) error) error {
	c.b.PushBlock()
	inner := newVarScope(outer)
	if fn != nil {
		fields := make(map[string]ir.Register, len(fn.Args))
		for _, name := range fn.OutArgNames() {
			r := c.b.AllocRegister()
			c.b.Add(&ir.ReadField{Dest: r, Object: rowReg, Field: name})
			inner.bind(name, r)
			fields[name] = r
		}
		outputReg := c.b.AllocRegister()
		c.b.Add(&ir.CreateObject{Dest: outputReg, Fields: fields})
		inner.bind(outputKey, outputReg)
	}
	if outputType != "" {
		typeReg := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: typeReg, Value: &ast.StringValue{Value: outputType}})
		inner.bind(outputTypeKey, typeReg)
	}
	if err := body(inner); err != nil {
		c.b.PopBlock()
		return err
	}
	blk := c.b.PopBlock()
	c.b.Add(&ir.ForIn{Iterator: iterReg, Row: rowReg, VarScopeNames: inner.names(), Body: blk})
	return nil
}

// outputTypeOf derives the $outputType tag for one invocation's rows, the
// conventional "kind:channel" ThingTalk output-type string.
func outputTypeOf(inv *ast.Invocation) string {
	return fmt.Sprintf("%s:%s", inv.Selector.Kind, inv.Channel)
}

func (c *OpCompiler) ifTrue(cond ir.Register, body func() error) error {
	c.b.PushBlock()
	if err := body(); err != nil {
		c.b.PopBlock()
		return err
	}
	blk := c.b.PopBlock()
	c.b.Add(&ir.If{Cond: cond, Body: blk})
	return nil
}

// compileReduce dispatches a polymorphic ReduceOp to the scalar-accumulator
// path (count/sum/avg/max/min/argminmax) or the materializing init/advance/
// finish path (sort/index/slice), per spec §4.5.
func (c *OpCompiler) compileReduce(r *lower.ReduceOp, scope *varScope, consume func(*varScope) error) error {
	switch r.Kind {
	case lower.ReduceCount, lower.ReduceSum, lower.ReduceAvg, lower.ReduceMax, lower.ReduceMin, lower.ReduceArgMinMax:
		return c.compileScalarReduce(r, scope, consume)
	case lower.ReduceSort, lower.ReduceIndex, lower.ReduceSlice:
		return c.compileMaterializingReduce(r, scope, consume)
	default:
		return errs.NewNotImplementedError(errs.SourceRange{}, fmt.Sprintf("reduce kind %q", r.Kind))
	}
}

// compileScalarReduce accumulates count/sum/avg/max/min/argminmax into a
// single register as the source table's rows pass through. For
// max/min/argminmax it also snapshots every other in-scope column of the
// current best row into a CreateObject, so the winning row's other fields
// (not just Field itself) survive past the reduce.
func (c *OpCompiler) compileScalarReduce(r *lower.ReduceOp, scope *varScope, consume func(*varScope) error) error {
	accum := c.b.AllocRegister()
	c.b.Add(&ir.LoadConstant{Dest: accum, Value: &ast.NumberValue{Value: 0}})
	var count ir.Register
	if r.Kind == lower.ReduceAvg {
		count = c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: count, Value: &ast.NumberValue{Value: 0}})
	}

	carryRow := r.Kind == lower.ReduceMax || r.Kind == lower.ReduceMin || r.Kind == lower.ReduceArgMinMax
	var rowAccum, seen ir.Register
	var carriedNames []string
	if carryRow {
		rowAccum = c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: rowAccum, Value: &ast.UndefinedValue{}})
		seen = c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: seen, Value: &ast.BooleanValue{Value: false}})
	}

	err := c.compileTable(r.Source, scope, func(rowScope *varScope) error {
		switch r.Kind {
		case lower.ReduceCount:
			one := c.b.AllocRegister()
			c.b.Add(&ir.LoadConstant{Dest: one, Value: &ast.NumberValue{Value: 1}})
			c.b.Add(&ir.BinaryInstr{Dest: accum, LHS: accum, RHS: one, Op: ir.OpAdd})
			return nil
		case lower.ReduceSum, lower.ReduceAvg:
			fieldReg, ok := rowScope.lookup(r.Field)
			if !ok {
				return errs.NewNotImplementedError(errs.SourceRange{}, "reduce over unbound field "+r.Field)
			}
			c.b.Add(&ir.BinaryInstr{Dest: accum, LHS: accum, RHS: fieldReg, Op: ir.OpAdd})
			if r.Kind == lower.ReduceAvg {
				one := c.b.AllocRegister()
				c.b.Add(&ir.LoadConstant{Dest: one, Value: &ast.NumberValue{Value: 1}})
				c.b.Add(&ir.BinaryInstr{Dest: count, LHS: count, RHS: one, Op: ir.OpAdd})
			}
			return nil
		case lower.ReduceMax, lower.ReduceMin, lower.ReduceArgMinMax:
			fieldReg, ok := rowScope.lookup(r.Field)
			if !ok {
				return errs.NewNotImplementedError(errs.SourceRange{}, "reduce over unbound field "+r.Field)
			}
			op := ir.OpGt
			if r.Kind == lower.ReduceMin || (r.Kind == lower.ReduceArgMinMax && r.Sort == ast.SortAsc) {
				op = ir.OpLt
			}
			better := c.b.AllocRegister()
			c.b.Add(&ir.BinaryInstr{Dest: better, LHS: fieldReg, RHS: accum, Op: op})
			first := c.b.AllocRegister()
			c.b.Add(&ir.UnaryInstr{Dest: first, Src: seen, Op: ir.OpNot})
			c.b.Add(&ir.BinaryInstr{Dest: better, LHS: better, RHS: first, Op: ir.OpOr})

			carriedNames = rowScope.names()
			fields := make(map[string]ir.Register, len(carriedNames))
			for _, name := range carriedNames {
				if rg, ok := rowScope.lookup(name); ok {
					fields[name] = rg
				}
			}
			rowObj := c.b.AllocRegister()
			c.b.Add(&ir.CreateObject{Dest: rowObj, Fields: fields})

			return c.ifTrue(better, func() error {
				c.b.Add(&ir.Move{Dest: accum, Src: fieldReg})
				c.b.Add(&ir.Move{Dest: rowAccum, Src: rowObj})
				c.b.Add(&ir.LoadConstant{Dest: seen, Value: &ast.BooleanValue{Value: true}})
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if r.Kind == lower.ReduceAvg {
		c.b.Add(&ir.BinaryInstr{Dest: accum, LHS: accum, RHS: count, Op: ir.OpDiv})
	}

	result := newVarScope(scope)
	if r.Alias != "" {
		result.bind(r.Alias, accum)
	}
	if carryRow {
		for _, name := range carriedNames {
			if name == r.Alias {
				continue
			}
			fieldReg := c.b.AllocRegister()
			c.b.Add(&ir.ReadField{Dest: fieldReg, Object: rowAccum, Field: name})
			result.bind(name, fieldReg)
		}
	}
	return consume(result)
}

// compileMaterializingReduce emits the ReduceOp polymorphic init/advance/
// finish IR shape for sort/index/slice (spec §4.5): init allocates the
// runtime accumulation state before the inner table runs, advance is
// emitted once per row inside the inner table's loop body, and finish,
// emitted once the loop closes, yields an iterator over the reordered/
// windowed rows that a fresh ForIn ranges over.
func (c *OpCompiler) compileMaterializingReduce(r *lower.ReduceOp, scope *varScope, consume func(*varScope) error) error {
	slot := c.nextStateSlot(string(r.Kind))
	stateReg := c.b.AllocRegister()
	c.b.Add(&ir.ReduceInit{Dest: stateReg, Kind: string(r.Kind), StateSlot: slot})

	var carriedNames []string
	if err := c.compileTable(r.Source, scope, func(rowScope *varScope) error {
		carriedNames = rowScope.names()
		fields := make(map[string]ir.Register, len(carriedNames))
		for _, name := range carriedNames {
			if rg, ok := rowScope.lookup(name); ok {
				fields[name] = rg
			}
		}
		rowObj := c.b.AllocRegister()
		c.b.Add(&ir.CreateObject{Dest: rowObj, Fields: fields})
		c.b.Add(&ir.ReduceAdvance{State: stateReg, Row: rowObj, VarScopeNames: carriedNames})
		return nil
	}); err != nil {
		return err
	}

	resultIter := c.b.AllocRegister()
	c.b.Add(&ir.ReduceFinish{Dest: resultIter, State: stateReg})

	rowReg := c.b.AllocRegister()
	c.b.PushBlock()
	inner := newVarScope(scope)
	for _, name := range carriedNames {
		fieldReg := c.b.AllocRegister()
		c.b.Add(&ir.ReadField{Dest: fieldReg, Object: rowReg, Field: name})
		inner.bind(name, fieldReg)
	}
	if err := consume(inner); err != nil {
		c.b.PopBlock()
		return err
	}
	blk := c.b.PopBlock()
	c.b.Add(&ir.ForIn{Iterator: resultIter, Row: rowReg, VarScopeNames: inner.names(), Body: blk})
	return nil
}

// compileStream compiles a StreamOp, invoking `consume` once per emitted
// tuple.
func (c *OpCompiler) compileStream(s lower.StreamOp, scope *varScope, consume func(*varScope) error) error {
	switch ss := s.(type) {
	case *lower.TimerOp:
		baseReg, intervalReg, freqReg := ir.Register(0), ir.Register(0), ir.Register(0)
		var err error
		if baseReg, err = c.compileValueOrZero(ss.Base, scope); err != nil {
			return err
		}
		if intervalReg, err = c.compileValueOrZero(ss.Interval, scope); err != nil {
			return err
		}
		if freqReg, err = c.compileValueOrZero(ss.Frequency, scope); err != nil {
			return err
		}
		iterReg := c.b.AllocRegister()
		rowReg := c.b.AllocRegister()
		c.b.Add(&ir.InvokeTimer{Dest: iterReg, Base: baseReg, Interval: intervalReg, Frequency: freqReg})
		return c.forInRow(iterReg, rowReg, nil, "", scope, consume)

	case *lower.AtTimerOp:
		iterReg := c.b.AllocRegister()
		rowReg := c.b.AllocRegister()
		c.b.Add(&ir.InvokeAtTimer{Dest: iterReg})
		return c.forInRow(iterReg, rowReg, nil, "", scope, consume)

	case *lower.MonitorOp:
		return c.compileTable(ss.Table, scope, consume)

	case *lower.EdgeNewOp:
		slot := c.nextStateSlot("edgenew")
		return c.compileStream(ss.Source, scope, func(inner *varScope) error {
			keyNames := inner.names()
			keys := make([]ir.Register, len(keyNames))
			for i, name := range keyNames {
				r, _ := inner.lookup(name)
				keys[i] = r
			}
			isNew := c.b.AllocRegister()
			c.b.Add(&ir.CheckIsNewTuple{Dest: isNew, StateSlot: slot, Keys: keys, KeyNames: keyNames})
			return c.ifTrue(isNew, func() error { return consume(inner) })
		})

	case *lower.EdgeFilterOp:
		slot := c.nextStateSlot("edgefilter")
		return c.compileStream(ss.Source, scope, func(inner *varScope) error {
			condReg, err := c.compileFilter(ss.Filter, inner)
			if err != nil {
				return err
			}
			edgeReg := c.b.AllocRegister()
			c.b.Add(&ir.CheckOnlyOnce{Dest: edgeReg, StateSlot: slot, Cond: condReg})
			return c.ifTrue(edgeReg, func() error { return consume(inner) })
		})

	case *lower.StreamFilterOp:
		return c.compileStream(ss.Source, scope, func(inner *varScope) error {
			condReg, err := c.compileFilter(ss.Filter, inner)
			if err != nil {
				return err
			}
			return c.ifTrue(condReg, func() error { return consume(inner) })
		})

	case *lower.StreamMapOp:
		return c.compileStream(ss.Source, scope, func(inner *varScope) error {
			mapped := newVarScope(inner)
			for _, col := range ss.Projection {
				r, ok := inner.lookup(col)
				if !ok {
					return errs.NewNotImplementedError(errs.SourceRange{}, "projection of unbound column "+col)
				}
				mapped.bind(col, r)
			}
			for alias, expr := range ss.Compute {
				r, err := c.compileValue(expr, inner)
				if err != nil {
					return err
				}
				mapped.bind(alias, r)
			}
			return consume(mapped)
		})

	case *lower.StreamAliasOp:
		return c.compileStream(ss.Source, scope, consume)

	case *lower.StreamJoinOp:
		return c.compileStream(ss.Source, scope, func(inner *varScope) error {
			boundScope := newVarScope(inner)
			for _, ip := range ss.InParams {
				r, err := c.compileValue(ip.Value, inner)
				if err != nil {
					return err
				}
				boundScope.bind(ip.Name, r)
			}
			return c.compileTable(ss.Table, boundScope, consume)
		})

	default:
		return errs.NewNotImplementedError(errs.SourceRange{}, fmt.Sprintf("compile stream op %T", s))
	}
}

func (c *OpCompiler) compileValueOrZero(v ast.Value, scope *varScope) (ir.Register, error) {
	if v == nil {
		r := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: r, Value: &ast.NumberValue{Value: 0}})
		return r, nil
	}
	return c.compileValue(v, scope)
}

// compileValue compiles a Value expression into a register holding its
// result.
func (c *OpCompiler) compileValue(v ast.Value, scope *varScope) (ir.Register, error) {
	switch val := v.(type) {
	case *ast.VarRefValue:
		if r, ok := scope.lookup(val.Name); ok {
			return r, nil
		}
		r := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: r, Value: val})
		return r, nil
	default:
		r := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: r, Value: v})
		return r, nil
	}
}

// compileFilter compiles a lowered BooleanExpressionOp into a register
// holding its boolean result.
func (c *OpCompiler) compileFilter(f lower.BooleanExpressionOp, scope *varScope) (ir.Register, error) {
	switch e := f.(type) {
	case nil, *lower.TrueOp, *lower.DontCareOp:
		r := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: r, Value: &ast.BooleanValue{Value: true}})
		return r, nil
	case *lower.FalseOp:
		r := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: r, Value: &ast.BooleanValue{Value: false}})
		return r, nil
	case *lower.AndOp:
		result := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: result, Value: &ast.BooleanValue{Value: true}})
		for _, op := range e.Operands {
			r, err := c.compileFilter(op, scope)
			if err != nil {
				return 0, err
			}
			c.b.Add(&ir.BinaryInstr{Dest: result, LHS: result, RHS: r, Op: ir.OpAnd})
		}
		return result, nil
	case *lower.OrOp:
		result := c.b.AllocRegister()
		c.b.Add(&ir.LoadConstant{Dest: result, Value: &ast.BooleanValue{Value: false}})
		for _, op := range e.Operands {
			r, err := c.compileFilter(op, scope)
			if err != nil {
				return 0, err
			}
			c.b.Add(&ir.BinaryInstr{Dest: result, LHS: result, RHS: r, Op: ir.OpOr})
		}
		return result, nil
	case *lower.NotOp:
		inner, err := c.compileFilter(e.Operand, scope)
		if err != nil {
			return 0, err
		}
		result := c.b.AllocRegister()
		c.b.Add(&ir.UnaryInstr{Dest: result, Src: inner, Op: ir.OpNot})
		return result, nil
	case *lower.AtomOp:
		colReg, ok := scope.lookup(e.Name)
		if !ok {
			return 0, errs.NewNotImplementedError(errs.SourceRange{}, "filter over unbound column "+e.Name)
		}
		valReg, err := c.compileValue(e.Value, scope)
		if err != nil {
			return 0, err
		}
		result := c.b.AllocRegister()
		c.b.Add(&ir.BinaryInstr{Dest: result, LHS: colReg, RHS: valReg, Op: atomOperator(e.Operator)})
		return result, nil
	case *lower.ComputeCompareOp:
		lhsReg, err := c.compileValue(e.LHS, scope)
		if err != nil {
			return 0, err
		}
		rhsReg, err := c.compileValue(e.RHS, scope)
		if err != nil {
			return 0, err
		}
		result := c.b.AllocRegister()
		c.b.Add(&ir.BinaryInstr{Dest: result, LHS: lhsReg, RHS: rhsReg, Op: ir.BinaryOp(e.Operator)})
		return result, nil
	case *lower.ExternalOp:
		return c.compileExternalFilter(e, scope)
	case *lower.ExistentialSubqueryOp:
		return c.compileExistentialSubquery(e, scope)
	case *lower.ComparisonSubqueryOp:
		return c.compileComparisonSubquery(e, scope)
	default:
		return 0, errs.NewNotImplementedError(errs.SourceRange{}, fmt.Sprintf("compile filter %T", f))
	}
}

// compileExternalFilter compiles an `@device.function(...) { filter }`
// subquery predicate (spec §4.5's External-predicate filter compilation
// recipe): the invocation is wrapped in a try/catch, its results are
// iterated (compileTable already emits the ForIn/out-params-via-ReadField
// shape the recipe calls for), the nested filter is compiled recursively
// against each row's scope, and cond is set true on any match.
func (c *OpCompiler) compileExternalFilter(e *lower.ExternalOp, scope *varScope) (ir.Register, error) {
	cond := c.b.AllocRegister()
	c.b.Add(&ir.LoadConstant{Dest: cond, Value: &ast.BooleanValue{Value: false}})
	err := c.compileTable(e.Source, scope, func(rowScope *varScope) error {
		inner, err := c.compileFilter(e.Filter, rowScope)
		if err != nil {
			return err
		}
		return c.ifTrue(inner, func() error {
			c.b.Add(&ir.LoadConstant{Dest: cond, Value: &ast.BooleanValue{Value: true}})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return cond, nil
}

// compileExistentialSubquery tests whether Subquery produces any row.
func (c *OpCompiler) compileExistentialSubquery(e *lower.ExistentialSubqueryOp, scope *varScope) (ir.Register, error) {
	result := c.b.AllocRegister()
	c.b.Add(&ir.LoadConstant{Dest: result, Value: &ast.BooleanValue{Value: false}})
	err := c.compileTable(e.Subquery, scope, func(*varScope) error {
		c.b.Add(&ir.LoadConstant{Dest: result, Value: &ast.BooleanValue{Value: true}})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// compileComparisonSubquery compares LHS against the single projected
// column of each of RHS's rows, true if any comparison succeeds.
func (c *OpCompiler) compileComparisonSubquery(e *lower.ComparisonSubqueryOp, scope *varScope) (ir.Register, error) {
	lhsReg, err := c.compileValue(e.LHS, scope)
	if err != nil {
		return 0, err
	}
	result := c.b.AllocRegister()
	c.b.Add(&ir.LoadConstant{Dest: result, Value: &ast.BooleanValue{Value: false}})
	err = c.compileTable(e.RHS, scope, func(rowScope *varScope) error {
		names := rowScope.names()
		if len(names) == 0 {
			return nil
		}
		rhsReg, ok := rowScope.lookup(names[0])
		if !ok {
			return nil
		}
		cmp := c.b.AllocRegister()
		c.b.Add(&ir.BinaryInstr{Dest: cmp, LHS: lhsReg, RHS: rhsReg, Op: atomOperator(e.Operator)})
		return c.ifTrue(cmp, func() error {
			c.b.Add(&ir.LoadConstant{Dest: result, Value: &ast.BooleanValue{Value: true}})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func atomOperator(op string) ir.BinaryOp {
	switch op {
	case "==", "is":
		return ir.OpEq
	case "!=":
		return ir.OpNeq
	case "<":
		return ir.OpLt
	case ">":
		return ir.OpGt
	case "<=":
		return ir.OpLeq
	case ">=":
		return ir.OpGeq
	case "=~", "contains":
		return ir.OpLike
	case "in_array":
		return ir.OpIn
	default:
		return ir.OpEq
	}
}
