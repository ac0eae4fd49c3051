// Package lower implements the query-algebra lowering pass (spec §4.4):
// it turns a typechecked Table/Stream AST into an operator tree of
// TableOp/StreamOp/ActionOp nodes carrying projection/filter/sort/limit
// hints, ready for the operator-tree compiler (C7, spec §4.5).
package lower

import (
	"fmt"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/errs"
	"github.com/stanford-oval/thingtalk-go/schema"
)

// QueryInvocationHints carries the projection/filter/sort/limit
// information an InvokeGet op can push down to the device implementation,
// spec §4.4: "hints accumulate as the lowering pass walks outward from the
// invocation, then attach to the InvokeGet op".
type QueryInvocationHints struct {
	Projection []string
	Filter     BooleanExpressionOp
	Sort       *SortHint
	Limit      int // 0 means unbounded
}

// SortHint is the (field, direction) pair a Sort/Index fusion or a direct
// Sort op contributes to a QueryInvocationHints.
type SortHint struct {
	Field     string
	Direction ast.SortDirection
}

// TableOp is the lowered operator-tree sum type corresponding to ast.Table.
type TableOp interface {
	isTableOp()
}

// InvokeGetOp invokes a query function, with accumulated push-down hints.
type InvokeGetOp struct {
	Invocation *ast.Invocation
	Hints      QueryInvocationHints
	// Device/HandleThingtalk mirror spec §4.4's `TableOp.InvokeGet{device,
	// handle_thingtalk, hints}`: the selector this invocation targets, and
	// whether its class opts into ThingTalk-native dispatch instead of the
	// legacy RPC path.
	Device          *ast.DeviceSelector
	HandleThingtalk bool
}

func (*InvokeGetOp) isTableOp() {}

// InvokeVarRefOp invokes a declared `let table`/`let query` by name.
type InvokeVarRefOp struct {
	Name     string
	InParams []ast.InputParam
}

func (*InvokeVarRefOp) isTableOp() {}

// FilterOp is a non-pushed-down residual filter (kept only when the
// invocation couldn't absorb it, e.g. after a join).
type FilterOp struct {
	Source TableOp
	Filter BooleanExpressionOp
}

func (*FilterOp) isTableOp() {}

// MapOp applies a per-row transform: a projection and/or a compute column.
type MapOp struct {
	Source     TableOp
	Projection []string
	Compute    map[string]ast.Value
}

func (*MapOp) isTableOp() {}

// ReduceOp is the fused form of Aggregation/Sort/Index/Slice/ArgMinMax: a
// single polymorphic reduce operator carrying which reduction it performs
// (spec §4.4, §4.5 "ReduceOp polymorphic init/advance/finish").
type ReduceKind string

const (
	ReduceCount      ReduceKind = "count"
	ReduceSum        ReduceKind = "sum"
	ReduceAvg        ReduceKind = "avg"
	ReduceMax        ReduceKind = "max"
	ReduceMin        ReduceKind = "min"
	ReduceSort       ReduceKind = "sort"
	ReduceIndex      ReduceKind = "index"
	ReduceSlice      ReduceKind = "slice"
	ReduceArgMinMax  ReduceKind = "argminmax"
)

type ReduceOp struct {
	Source TableOp
	Kind   ReduceKind
	Field  string
	Alias  string
	Sort   ast.SortDirection
	Count  ast.Value
	Base   ast.Value
}

func (*ReduceOp) isTableOp() {}

// CrossJoinOp evaluates RHS independently for every LHS row (no parameter
// passing).
type CrossJoinOp struct {
	LHS, RHS TableOp
	// Device/HandleThingtalk are propagated from both arms only when they
	// agree (spec §4.4: "device is propagated only when both sides agree").
	Device          *ast.DeviceSelector
	HandleThingtalk bool
}

func (*CrossJoinOp) isTableOp() {}

// NestedLoopJoinOp evaluates RHS once per LHS row, with RHS's in_params
// bound from the LHS row's columns (spec §4.5: "nested-loop joins").
type NestedLoopJoinOp struct {
	LHS, RHS TableOp
	InParams []ast.InputParam
	Device          *ast.DeviceSelector
	HandleThingtalk bool
}

func (*NestedLoopJoinOp) isTableOp() {}

// AliasOp renames a table's output scope.
type AliasOp struct {
	Source TableOp
	Name   string
}

func (*AliasOp) isTableOp() {}

// WindowOp / SequenceOp / HistoryOp / TimeSeriesOp carry their ast
// counterparts through mostly unchanged, since they are always the root
// of a time-series Table and have nothing further to push down into.
type WindowOp struct {
	Source     TableOp
	Base, Delta ast.Value
}

func (*WindowOp) isTableOp() {}

type TimeSeriesOp struct {
	Source      TableOp
	Base, Delta ast.Value
}

func (*TimeSeriesOp) isTableOp() {}

type SequenceOp struct {
	Source     TableOp
	Base, Count ast.Value
}

func (*SequenceOp) isTableOp() {}

type HistoryOp struct {
	Source TableOp
	Base   ast.Value
}

func (*HistoryOp) isTableOp() {}

// StreamOp is the lowered operator-tree sum type corresponding to ast.Stream.
type StreamOp interface {
	isStreamOp()
}

type TimerOp struct {
	Base, Interval, Frequency ast.Value
}

func (*TimerOp) isStreamOp() {}

type AtTimerOp struct {
	Time       []ast.Value
	Expiration ast.Value
}

func (*AtTimerOp) isStreamOp() {}

// MonitorOp polls Table and fires on new tuples, as decided by
// MonitorField (empty means whole-row).
type MonitorOp struct {
	Table        TableOp
	MonitorField []string
}

func (*MonitorOp) isStreamOp() {}

// EdgeNewOp suppresses repeats, tracked by the compiler's CheckIsNewTuple
// keyed on the stream's full var-scope (spec §8 invariant: "keys ==
// var_scope_names").
type EdgeNewOp struct {
	Source StreamOp
}

func (*EdgeNewOp) isStreamOp() {}

type EdgeFilterOp struct {
	Source StreamOp
	Filter BooleanExpressionOp
}

func (*EdgeFilterOp) isStreamOp() {}

type StreamFilterOp struct {
	Source StreamOp
	Filter BooleanExpressionOp
}

func (*StreamFilterOp) isStreamOp() {}

type StreamMapOp struct {
	Source     StreamOp
	Projection []string
	Compute    map[string]ast.Value
}

func (*StreamMapOp) isStreamOp() {}

type StreamAliasOp struct {
	Source StreamOp
	Name   string
}

func (*StreamAliasOp) isStreamOp() {}

// StreamJoinOp re-invokes Table every time Source fires.
type StreamJoinOp struct {
	Source   StreamOp
	Table    TableOp
	InParams []ast.InputParam
}

func (*StreamJoinOp) isStreamOp() {}

// ActionOp invokes an action function (spec §4.4: action lowering is an
// identity pass — actions have no query algebra to push hints through).
type ActionOp struct {
	Invocation *ast.Invocation
	// SendEndOfFlow marks a remote "send" action whose completion must
	// signal end-of-flow to the compiler (spec §4.5).
	SendEndOfFlow bool
}

// RuleOp is the lowered form of a RuleStatement: Stream drives Actions.
type RuleOp struct {
	Stream  StreamOp
	Actions []*ActionOp
}

// CommandOp is the lowered form of a CommandStatement.
type CommandOp struct {
	Table   TableOp // nil for a pure action command
	Actions []*ActionOp
}

// DeclarationOp is the lowered form of a `let table/stream/action/procedure`
// declaration (spec §3.4, §6.2: every declaration compiles to a named,
// independently invocable body bracketed by EnterProcedure/ExitProcedure).
type DeclarationOp struct {
	ID      int
	Name    string
	Kind    ast.DeclarationKind
	Args    []ast.DeclarationArg
	Table   TableOp          // set when Kind == DeclarationTable
	Stream  StreamOp         // set when Kind == DeclarationStream
	Actions []*ActionOp      // set when Kind == DeclarationAction|DeclarationProcedure
}

// Lowerer is a pure tree transform, split into methods only for
// readability (mirrors the teacher's stateless aggregates.go helpers), with
// one piece of sequencing state: the monotonic id assigned to each
// declaration it lowers, for EnterProcedure/ExitProcedure pairing.
type Lowerer struct {
	declSeq int
}

func New() *Lowerer { return &Lowerer{} }

// LowerStatement lowers one typechecked ast.Statement.
func (lw *Lowerer) LowerStatement(stmt ast.Statement) (interface{}, error) {
	switch s := stmt.(type) {
	case *ast.RuleStatement:
		streamOp, err := lw.LowerStream(s.Stream)
		if err != nil {
			return nil, err
		}
		return &RuleOp{Stream: streamOp, Actions: lw.lowerActions(s.Actions)}, nil
	case *ast.CommandStatement:
		var tableOp TableOp
		if s.Table != nil {
			var err error
			tableOp, err = lw.LowerTable(s.Table)
			if err != nil {
				return nil, err
			}
			// Peephole (spec §4.4): "Map(Projection) at the root of a
			// statement without a notify action is eliminated."
			tableOp = eliminateRootProjection(tableOp, s.Actions)
		}
		return &CommandOp{Table: tableOp, Actions: lw.lowerActions(s.Actions)}, nil
	case *ast.DeclarationStatement:
		return lw.LowerDeclaration(s)
	default:
		return nil, errs.NewNotImplementedError(stmt.Range(), fmt.Sprintf("lower statement %T", stmt))
	}
}

// LowerDeclaration lowers a `let table/stream/action/procedure` declaration
// into a DeclarationOp, assigning it the next sequential declaration id.
func (lw *Lowerer) LowerDeclaration(decl *ast.DeclarationStatement) (*DeclarationOp, error) {
	lw.declSeq++
	op := &DeclarationOp{ID: lw.declSeq, Name: decl.Name, Kind: decl.Kind, Args: decl.Args}
	switch body := decl.Body.(type) {
	case ast.Table:
		t, err := lw.LowerTable(body)
		if err != nil {
			return nil, err
		}
		op.Table = t
	case ast.Stream:
		s, err := lw.LowerStream(body)
		if err != nil {
			return nil, err
		}
		op.Stream = s
	case ast.InvocationList:
		op.Actions = lw.lowerActions(body)
	case nil:
		// empty body: legal for a forward-declared procedure stub.
	default:
		return nil, errs.NewNotImplementedError(decl.Range(), fmt.Sprintf("lower declaration body %T", decl.Body))
	}
	return op, nil
}

// hasNotifyAction reports whether actions contains the builtin `notify`.
func hasNotifyAction(actions []*ast.Invocation) bool {
	for _, a := range actions {
		if a.Selector.Kind == "builtin" && a.Channel == "notify" {
			return true
		}
	}
	return false
}

// eliminateRootProjection drops a bare root Map(Projection) when the
// statement has no notify action to display it to (spec §4.4 peephole).
func eliminateRootProjection(t TableOp, actions []*ast.Invocation) TableOp {
	if m, ok := t.(*MapOp); ok && len(m.Compute) == 0 && !hasNotifyAction(actions) {
		return m.Source
	}
	return t
}

func (lw *Lowerer) lowerActions(invs []*ast.Invocation) []*ActionOp {
	out := make([]*ActionOp, len(invs))
	for i, inv := range invs {
		out[i] = &ActionOp{
			Invocation:    inv,
			SendEndOfFlow: inv.Selector.Kind == "remote" && inv.Channel == "send",
		}
	}
	return out
}

// LowerTable lowers a Table node, pushing projection/filter/sort/limit
// hints down into the nearest InvokeGetOp where possible (spec §4.4).
func (lw *Lowerer) LowerTable(t ast.Table) (TableOp, error) {
	switch tt := t.(type) {
	case *ast.InvocationTable:
		return &InvokeGetOp{
			Invocation:      tt.Invocation,
			Device:          &tt.Invocation.Selector,
			HandleThingtalk: handleThingtalkOf(tt.Invocation),
		}, nil

	case *ast.TableVarRef:
		return &InvokeVarRefOp{Name: tt.Name, InParams: tt.InParams}, nil

	case *ast.FilterTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		filter, err := lw.LowerBooleanExpression(tt.Filter)
		if err != nil {
			return nil, err
		}
		if invoke, ok := source.(*InvokeGetOp); ok {
			invoke.Hints.Filter = conjoinOp(invoke.Hints.Filter, filter)
			return invoke, nil
		}
		return &FilterOp{Source: source, Filter: filter}, nil

	case *ast.ProjectionTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		// Projection(table, args, computations, aliases) -> Map(Projection(effective)),
		// effective = (args ∩ schema args) ∪ minimal_projection(schema); the
		// parent's projection hints are not intersected into it
		// (effectiveProjection). We always emit the Map node here; the "Map(Projection)
		// at the root without notify" peephole is applied separately once the
		// whole statement's actions are known (eliminateRootProjection).
		effective := effectiveProjection(tt.Columns, underlyingSchema(source))
		// Map(Projection(P)) ∘ Map(Projection(Q)) collapses to the outer
		// projection (spec §4.4 peephole).
		if inner, ok := source.(*MapOp); ok && len(inner.Compute) == 0 {
			return &MapOp{Source: inner.Source, Projection: effective}, nil
		}
		return &MapOp{Source: source, Projection: effective}, nil

	case *ast.ComputeTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		if m, ok := source.(*MapOp); ok {
			if m.Compute == nil {
				m.Compute = make(map[string]ast.Value)
			}
			m.Compute[tt.Alias] = tt.Expr
			return m, nil
		}
		return &MapOp{Source: source, Compute: map[string]ast.Value{tt.Alias: tt.Expr}}, nil

	case *ast.AliasTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		return &AliasOp{Source: source, Name: tt.Name}, nil

	case *ast.AggregationTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		// Aggregation(table, op, field) discards the parent hints (nothing
		// above the resulting ReduceOp pushes hints into its source) and sets
		// the child invocation's projection to {field} (or ∅ when
		// field == '*'); the filter/sort/limit hints pushed down by the
		// aggregation's own subtree are kept (spec §4.4).
		if invoke, ok := source.(*InvokeGetOp); ok {
			invoke.Hints.Projection = nil
			if tt.Field != "*" {
				invoke.Hints.Projection = []string{tt.Field}
			}
		}
		return &ReduceOp{Source: source, Kind: ReduceKind(tt.Operator), Field: tt.Field, Alias: tt.Alias}, nil

	case *ast.IndexTable:
		// Fuse Index[1] of Sort(f, dir) into a single ArgMinMax reduce
		// (spec §3.4/§8: the named SimpleArgMinMax fusion invariant).
		if sort, ok := tt.Table.(*ast.SortTable); ok && len(tt.Indices) == 1 {
			if lit, isLit := tt.Indices[0].(*ast.NumberValue); isLit && lit.Value == 1 {
				source, err := lw.LowerTable(sort.Table)
				if err != nil {
					return nil, err
				}
				return &ReduceOp{Source: source, Kind: ReduceArgMinMax, Field: sort.Field, Alias: sort.Field, Sort: sort.Direction, Count: tt.Indices[0]}, nil
			}
		}
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		return &ReduceOp{Source: source, Kind: ReduceIndex}, nil

	case *ast.SliceTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		if invoke, ok := source.(*InvokeGetOp); ok && tt.Base == nil {
			if lit, ok := tt.Limit.(*ast.NumberValue); ok {
				invoke.Hints.Limit = int(lit.Value)
				return invoke, nil
			}
		}
		return &ReduceOp{Source: source, Kind: ReduceSlice, Base: tt.Base, Count: tt.Limit}, nil

	case *ast.ArgMinMaxTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		return &ReduceOp{Source: source, Kind: ReduceArgMinMax, Field: tt.Field, Alias: tt.Field, Sort: tt.Direction, Count: tt.Count}, nil

	case *ast.SortTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		if invoke, ok := source.(*InvokeGetOp); ok {
			invoke.Hints.Sort = &SortHint{Field: tt.Field, Direction: tt.Direction}
			return invoke, nil
		}
		return &ReduceOp{Source: source, Kind: ReduceSort, Field: tt.Field, Sort: tt.Direction}, nil

	case *ast.JoinTable:
		lhs, err := lw.LowerTable(tt.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := lw.LowerTable(tt.RHS)
		if err != nil {
			return nil, err
		}
		// Chain/Join hint restriction (spec §4.4): projection drops names
		// not in that arm's schema, filter is rewritten to True wherever a
		// name is absent, and limit/sort are cleared across joins.
		restrictJoinArm(lhs)
		restrictJoinArm(rhs)
		device, handleThingtalk := joinDeviceAgreement(lhs, rhs)
		if tt.Type == ast.JoinParam {
			return &NestedLoopJoinOp{LHS: lhs, RHS: rhs, Device: device, HandleThingtalk: handleThingtalk}, nil
		}
		return &CrossJoinOp{LHS: lhs, RHS: rhs, Device: device, HandleThingtalk: handleThingtalk}, nil

	case *ast.WindowTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		return &WindowOp{Source: source, Base: tt.Base, Delta: tt.Delta}, nil

	case *ast.TimeSeriesTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		return &TimeSeriesOp{Source: source, Base: tt.Base, Delta: tt.Delta}, nil

	case *ast.SequenceTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		return &SequenceOp{Source: source, Base: tt.Base, Count: tt.Count}, nil

	case *ast.HistoryTable:
		source, err := lw.LowerTable(tt.Table)
		if err != nil {
			return nil, err
		}
		return &HistoryOp{Source: source, Base: tt.Base}, nil

	default:
		return nil, errs.NewNotImplementedError(t.Range(), fmt.Sprintf("lower table %T", t))
	}
}

// LowerStream lowers a Stream node (spec §4.4).
func (lw *Lowerer) LowerStream(s ast.Stream) (StreamOp, error) {
	switch ss := s.(type) {
	case *ast.TimerStream:
		return &TimerOp{Base: ss.Base, Interval: ss.Interval, Frequency: ss.Frequency}, nil

	case *ast.AtTimerStream:
		return &AtTimerOp{Time: ss.Time, Expiration: ss.Expiration}, nil

	case *ast.MonitorStream:
		table, err := lw.LowerTable(ss.Table)
		if err != nil {
			return nil, err
		}
		// EdgeNew(EdgeNew) collapse peephole (spec §4.4): wrapping an
		// already-monitored op in another monitor is idempotent, so we
		// only ever emit a single EdgeNewOp per MonitorOp.
		return &EdgeNewOp{Source: &MonitorOp{Table: table, MonitorField: ss.MonitorField}}, nil

	case *ast.EdgeNewStream:
		source, err := lw.LowerStream(ss.Stream)
		if err != nil {
			return nil, err
		}
		if _, already := source.(*EdgeNewOp); already {
			return source, nil
		}
		return &EdgeNewOp{Source: source}, nil

	case *ast.EdgeFilterStream:
		source, err := lw.LowerStream(ss.Stream)
		if err != nil {
			return nil, err
		}
		filter, err := lw.LowerBooleanExpression(ss.Filter)
		if err != nil {
			return nil, err
		}
		return &EdgeFilterOp{Source: source, Filter: filter}, nil

	case *ast.FilterStream:
		source, err := lw.LowerStream(ss.Stream)
		if err != nil {
			return nil, err
		}
		filter, err := lw.LowerBooleanExpression(ss.Filter)
		if err != nil {
			return nil, err
		}
		return &StreamFilterOp{Source: source, Filter: filter}, nil

	case *ast.ProjectionStream:
		source, err := lw.LowerStream(ss.Stream)
		if err != nil {
			return nil, err
		}
		if m, ok := source.(*StreamMapOp); ok && len(m.Compute) == 0 {
			return &StreamMapOp{Source: m.Source, Projection: ss.Columns}, nil
		}
		return &StreamMapOp{Source: source, Projection: ss.Columns}, nil

	case *ast.ComputeStream:
		source, err := lw.LowerStream(ss.Stream)
		if err != nil {
			return nil, err
		}
		if m, ok := source.(*StreamMapOp); ok {
			if m.Compute == nil {
				m.Compute = make(map[string]ast.Value)
			}
			m.Compute[ss.Alias] = ss.Expr
			return m, nil
		}
		return &StreamMapOp{Source: source, Compute: map[string]ast.Value{ss.Alias: ss.Expr}}, nil

	case *ast.AliasStream:
		source, err := lw.LowerStream(ss.Stream)
		if err != nil {
			return nil, err
		}
		return &StreamAliasOp{Source: source, Name: ss.Name}, nil

	case *ast.JoinStream:
		source, err := lw.LowerStream(ss.Stream)
		if err != nil {
			return nil, err
		}
		table, err := lw.LowerTable(ss.Table)
		if err != nil {
			return nil, err
		}
		return &StreamJoinOp{Source: source, Table: table, InParams: ss.InParams}, nil

	default:
		return nil, errs.NewNotImplementedError(s.Range(), fmt.Sprintf("lower stream %T", s))
	}
}


// handleThingtalkOf reads the `handle_thingtalk` class annotation off an
// invocation's resolved schema, defaulting to false when unresolved or
// absent (spec §4.4: "TableOp.InvokeGet{device, handle_thingtalk, hints}").
func handleThingtalkOf(inv *ast.Invocation) bool {
	fn := inv.GetSchema()
	if fn == nil || fn.Annotations == nil {
		return false
	}
	if v, ok := fn.Annotations["handle_thingtalk"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// underlyingSchema unwraps the immediate source down to an InvokeGetOp and
// returns the FunctionDef it was typechecked against, or nil if the source
// isn't a direct invocation (e.g. it's already a join or a reduce).
func underlyingSchema(t TableOp) *schema.FunctionDef {
	invoke, ok := t.(*InvokeGetOp)
	if !ok {
		return nil
	}
	return invoke.Invocation.GetSchema()
}

// effectiveProjection computes (requested ∩ schema args) ∪
// minimal_projection(schema). requested plays the role of the Projection
// node's own args; minimal_projection names are always added back in since
// the schema requires them regardless of what was asked for. The parent's
// projection hints are not consulted, so they never narrow the result.
// Without a resolved schema (e.g. lowering ahead of typechecking, as some
// tests do) the requested columns pass through unchanged.
func effectiveProjection(requested []string, fn *schema.FunctionDef) []string {
	if fn == nil {
		return requested
	}
	allowed := make(map[string]bool, len(fn.Args))
	for _, a := range fn.Args {
		allowed[a.Name] = true
	}
	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, name := range requested {
		if allowed[name] && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for name := range fn.MinimalProjection {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// restrictJoinArm applies the Chain/Join hint restriction of spec §4.4 to
// one arm's underlying invocation, if it has one: limit and sort are
// cleared unconditionally, the projection is narrowed to the arm's own
// schema, and the filter is rewritten so any atom over a name absent from
// that schema becomes True.
func restrictJoinArm(arm TableOp) {
	invoke, ok := arm.(*InvokeGetOp)
	if !ok {
		return
	}
	invoke.Hints.Sort = nil
	invoke.Hints.Limit = 0
	fn := invoke.Invocation.GetSchema()
	if fn == nil {
		return
	}
	allowed := make(map[string]bool, len(fn.Args))
	for _, a := range fn.Args {
		allowed[a.Name] = true
	}
	if invoke.Hints.Projection != nil {
		filtered := make([]string, 0, len(invoke.Hints.Projection))
		for _, name := range invoke.Hints.Projection {
			if allowed[name] {
				filtered = append(filtered, name)
			}
		}
		invoke.Hints.Projection = filtered
	}
	invoke.Hints.Filter = restrictFilterToSchema(invoke.Hints.Filter, allowed)
}

// restrictFilterToSchema rewrites every AtomOp referencing a name absent
// from allowed into True, conservatively, per spec §4.4.
func restrictFilterToSchema(f BooleanExpressionOp, allowed map[string]bool) BooleanExpressionOp {
	if f == nil {
		return nil
	}
	switch e := f.(type) {
	case *AtomOp:
		if !allowed[e.Name] {
			return &TrueOp{}
		}
		return e
	case *AndOp:
		ops := make([]BooleanExpressionOp, len(e.Operands))
		for i, op := range e.Operands {
			ops[i] = restrictFilterToSchema(op, allowed)
		}
		return &AndOp{Operands: ops}
	case *OrOp:
		ops := make([]BooleanExpressionOp, len(e.Operands))
		for i, op := range e.Operands {
			ops[i] = restrictFilterToSchema(op, allowed)
		}
		return &OrOp{Operands: ops}
	case *NotOp:
		return &NotOp{Operand: restrictFilterToSchema(e.Operand, allowed)}
	default:
		return f
	}
}

// joinDeviceAgreement propagates device/handle_thingtalk across a join
// only when both arms are direct invocations of the same device kind
// (spec §4.4: "device is propagated only when both sides agree").
func joinDeviceAgreement(lhs, rhs TableOp) (*ast.DeviceSelector, bool) {
	lInvoke, lok := lhs.(*InvokeGetOp)
	rInvoke, rok := rhs.(*InvokeGetOp)
	if !lok || !rok || lInvoke.Device == nil || rInvoke.Device == nil {
		return nil, false
	}
	if lInvoke.Device.Kind != rInvoke.Device.Kind {
		return nil, false
	}
	return lInvoke.Device, lInvoke.HandleThingtalk && rInvoke.HandleThingtalk
}
