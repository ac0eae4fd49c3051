// Package typecheck implements the typechecking pass (C5, spec §4.3): it
// resolves VarRef and Invocation nodes against the schema retriever,
// populates every node's `schema` slot, unifies operand types, and attaches
// Overload triples to atoms and binary comparisons.
package typecheck

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/stanford-oval/thingtalk-go/ast"
	"github.com/stanford-oval/thingtalk-go/errs"
	"github.com/stanford-oval/thingtalk-go/schema"
	"github.com/stanford-oval/thingtalk-go/types"
)

// Retriever is the subset of schema.Retriever the typechecker depends on,
// declared locally so tests can supply a fake without touching the real
// batching/caching machinery.
type Retriever interface {
	GetSchema(ctx context.Context, kind, functionType, name string) (*schema.FunctionDef, error)
	IsEntitySubtype(sub, parent string) bool
}

// scopeEntry is one column the typechecker has in scope while walking a
// table or stream expression.
type scopeEntry struct {
	Type *types.Type
}

// localScope is a chained symbol table of output columns, mirroring the
// teacher's Scope chaining (scope.go) but over static column types instead
// of runtime values.
type localScope struct {
	parent  *localScope
	columns map[string]scopeEntry
}

func newLocalScope(parent *localScope) *localScope {
	return &localScope{parent: parent, columns: make(map[string]scopeEntry)}
}

func (s *localScope) set(name string, t *types.Type) { s.columns[name] = scopeEntry{Type: t} }

func (s *localScope) lookup(name string) (*types.Type, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if e, ok := cur.columns[name]; ok {
			return e.Type, true
		}
	}
	return nil, false
}

// names returns the column names bound at this scope level (parent levels
// are not included).
func (s *localScope) names() []string {
	out := make([]string, 0, len(s.columns))
	for k := range s.columns {
		out = append(out, k)
	}
	return out
}

// Typechecker resolves a Program's free references against a schema
// source and annotates the AST in place.
type Typechecker struct {
	retriever Retriever
}

// New builds a Typechecker backed by the given retriever.
func New(retriever Retriever) *Typechecker {
	return &Typechecker{retriever: retriever}
}

// TypecheckProgram walks every declaration and statement of p, resolving
// invocations and attaching schemas (spec §4.3).
func (tc *Typechecker) TypecheckProgram(ctx context.Context, p *ast.Program) error {
	top := newLocalScope(nil)

	for _, decl := range p.Declarations {
		if err := tc.typecheckDeclaration(ctx, decl, top); err != nil {
			return errors.Wrapf(err, "declaration %q", decl.Name)
		}
	}
	for _, stmt := range p.Statements {
		if err := tc.typecheckStatement(ctx, stmt, top); err != nil {
			return err
		}
	}
	return nil
}

func (tc *Typechecker) typecheckDeclaration(ctx context.Context, decl *ast.DeclarationStatement, outer *localScope) error {
	declScope := newLocalScope(outer)
	for _, arg := range decl.Args {
		declScope.set(arg.Name, arg.Type)
	}
	switch body := decl.Body.(type) {
	case ast.Table:
		_, err := tc.typecheckTable(ctx, body, declScope)
		return err
	case ast.Stream:
		_, err := tc.typecheckStream(ctx, body, declScope)
		return err
	case nil:
		return nil
	case ast.InvocationList:
		for _, inv := range body {
			if err := tc.typecheckInvocation(ctx, inv, declScope); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.NewNotImplementedError(decl.Range(), fmt.Sprintf("typecheck declaration body %T", decl.Body))
	}
}

func (tc *Typechecker) typecheckStatement(ctx context.Context, stmt ast.Statement, outer *localScope) error {
	switch s := stmt.(type) {
	case *ast.RuleStatement:
		scope, err := tc.typecheckStream(ctx, s.Stream, outer)
		if err != nil {
			return err
		}
		for _, action := range s.Actions {
			if err := tc.typecheckInvocation(ctx, action, scope); err != nil {
				return err
			}
		}
		return nil
	case *ast.CommandStatement:
		scope := outer
		if s.Table != nil {
			var err error
			scope, err = tc.typecheckTable(ctx, s.Table, outer)
			if err != nil {
				return err
			}
		}
		for _, action := range s.Actions {
			if err := tc.typecheckInvocation(ctx, action, scope); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.NewNotImplementedError(stmt.Range(), fmt.Sprintf("typecheck statement %T", stmt))
	}
}

// typecheckInvocation resolves an Invocation's FunctionDef, attaches it to
// the invocation, and checks the in_params against the function's
// arguments (types against outer, required ones present). It binds no
// output arguments into any scope.
func (tc *Typechecker) typecheckInvocation(ctx context.Context, inv *ast.Invocation, outer *localScope) error {
	fn, err := tc.retriever.GetSchema(ctx, inv.Selector.Kind, "", inv.Channel)
	if err != nil {
		return errors.Wrapf(err, "resolving @%s.%s", inv.Selector.Kind, inv.Channel)
	}
	inv.SetSchema(fn)

	bound := make(map[string]bool, len(inv.InParams))
	for _, ip := range inv.InParams {
		bound[ip.Name] = true
		arg, ok := fn.GetArg(ip.Name)
		if !ok {
			return errs.NewTypeError(inv.Range(), fmt.Sprintf("no such parameter %q on %s.%s", ip.Name, inv.Selector.Kind, inv.Channel))
		}
		valType := tc.typecheckValue(ip.Value, outer)
		if _, ok := types.Unify(valType, arg.Type, tc.retriever); !ok {
			return errs.NewTypeError(inv.Range(), fmt.Sprintf("parameter %q expects %s, got %s", ip.Name, arg.Type, valType))
		}
	}
	for _, arg := range fn.Args {
		if arg.Direction == schema.InReq && !bound[arg.Name] {
			return errs.NewTypeError(inv.Range(), fmt.Sprintf("missing required parameter %q", arg.Name))
		}
	}
	return nil
}

// typecheckTable resolves table t's schema chain and returns the scope of
// output columns it projects (spec §4.3).
func (tc *Typechecker) typecheckTable(ctx context.Context, t ast.Table, outer *localScope) (*localScope, error) {
	switch tt := t.(type) {
	case *ast.InvocationTable:
		if err := tc.typecheckInvocation(ctx, tt.Invocation, outer); err != nil {
			return nil, err
		}
		scope := newLocalScope(outer)
		for _, arg := range tt.Invocation.GetSchema().Args {
			if arg.Direction == schema.Out {
				scope.set(arg.Name, arg.Type)
			}
		}
		return scope, nil
	case *ast.TableVarRef:
		// Resolution of named table declarations happens one level up, in
		// TypecheckProgram; here we only validate in_params against the
		// already-bound schema slot if one was attached.
		scope := newLocalScope(outer)
		if tt.GetSchema() != nil {
			for _, arg := range tt.GetSchema().Args {
				if arg.Direction == schema.Out {
					scope.set(arg.Name, arg.Type)
				}
			}
		}
		return scope, nil
	case *ast.FilterTable:
		scope, err := tc.typecheckTable(ctx, tt.Table, outer)
		if err != nil {
			return nil, err
		}
		if err := tc.typecheckFilter(tt.Filter, scope); err != nil {
			return nil, err
		}
		return scope, nil
	case *ast.ProjectionTable:
		inner, err := tc.typecheckTable(ctx, tt.Table, outer)
		if err != nil {
			return nil, err
		}
		scope := newLocalScope(outer)
		for _, col := range tt.Columns {
			ty, ok := inner.lookup(col)
			if !ok {
				return nil, errs.NewTypeError(t.Range(), fmt.Sprintf("no such column %q", col))
			}
			scope.set(col, ty)
		}
		return scope, nil
	case *ast.ComputeTable:
		inner, err := tc.typecheckTable(ctx, tt.Table, outer)
		if err != nil {
			return nil, err
		}
		scope := newLocalScope(inner)
		scope.set(tt.Alias, tc.typecheckValue(tt.Expr, inner))
		return scope, nil
	case *ast.AliasTable:
		return tc.typecheckTable(ctx, tt.Table, outer)
	case *ast.AggregationTable:
		inner, err := tc.typecheckTable(ctx, tt.Table, outer)
		if err != nil {
			return nil, err
		}
		scope := newLocalScope(outer)
		resultType := types.Number()
		if tt.Operator == ast.AggregationMax || tt.Operator == ast.AggregationMin {
			if ty, ok := inner.lookup(tt.Field); ok {
				resultType = ty
			}
		}
		scope.set(tt.Alias, resultType)
		return scope, nil
	case *ast.SortTable:
		scope, err := tc.typecheckTable(ctx, tt.Table, outer)
		if err != nil {
			return nil, err
		}
		if _, ok := scope.lookup(tt.Field); !ok {
			return nil, errs.NewTypeError(t.Range(), fmt.Sprintf("cannot sort by unknown column %q", tt.Field))
		}
		return scope, nil
	case *ast.IndexTable:
		return tc.typecheckTable(ctx, tt.Table, outer)
	case *ast.SliceTable:
		return tc.typecheckTable(ctx, tt.Table, outer)
	case *ast.ArgMinMaxTable:
		return tc.typecheckTable(ctx, tt.Table, outer)
	case *ast.JoinTable:
		lhs, err := tc.typecheckTable(ctx, tt.LHS, outer)
		if err != nil {
			return nil, err
		}
		rhs, err := tc.typecheckTable(ctx, tt.RHS, lhs)
		if err != nil {
			return nil, err
		}
		return rhs, nil
	case *ast.WindowTable, *ast.TimeSeriesTable, *ast.SequenceTable, *ast.HistoryTable:
		return outer, nil
	default:
		return nil, errs.NewNotImplementedError(t.Range(), fmt.Sprintf("typecheck table %T", t))
	}
}

// typecheckStream mirrors typecheckTable for the Stream hierarchy.
func (tc *Typechecker) typecheckStream(ctx context.Context, s ast.Stream, outer *localScope) (*localScope, error) {
	switch ss := s.(type) {
	case *ast.TimerStream, *ast.AtTimerStream:
		return newLocalScope(outer), nil
	case *ast.MonitorStream:
		return tc.typecheckTable(ctx, ss.Table, outer)
	case *ast.EdgeNewStream:
		return tc.typecheckStream(ctx, ss.Stream, outer)
	case *ast.EdgeFilterStream:
		scope, err := tc.typecheckStream(ctx, ss.Stream, outer)
		if err != nil {
			return nil, err
		}
		return scope, tc.typecheckFilter(ss.Filter, scope)
	case *ast.FilterStream:
		scope, err := tc.typecheckStream(ctx, ss.Stream, outer)
		if err != nil {
			return nil, err
		}
		return scope, tc.typecheckFilter(ss.Filter, scope)
	case *ast.ProjectionStream:
		inner, err := tc.typecheckStream(ctx, ss.Stream, outer)
		if err != nil {
			return nil, err
		}
		scope := newLocalScope(outer)
		for _, col := range ss.Columns {
			ty, ok := inner.lookup(col)
			if !ok {
				return nil, errs.NewTypeError(s.Range(), fmt.Sprintf("no such column %q", col))
			}
			scope.set(col, ty)
		}
		return scope, nil
	case *ast.ComputeStream:
		inner, err := tc.typecheckStream(ctx, ss.Stream, outer)
		if err != nil {
			return nil, err
		}
		scope := newLocalScope(inner)
		scope.set(ss.Alias, tc.typecheckValue(ss.Expr, inner))
		return scope, nil
	case *ast.AliasStream:
		return tc.typecheckStream(ctx, ss.Stream, outer)
	case *ast.JoinStream:
		lhs, err := tc.typecheckStream(ctx, ss.Stream, outer)
		if err != nil {
			return nil, err
		}
		rhs, err := tc.typecheckTable(ctx, ss.Table, lhs)
		if err != nil {
			return nil, err
		}
		return rhs, nil
	default:
		return nil, errs.NewNotImplementedError(s.Range(), fmt.Sprintf("typecheck stream %T", s))
	}
}

func (tc *Typechecker) typecheckFilter(f ast.BooleanExpression, scope *localScope) error {
	switch e := f.(type) {
	case *ast.TrueExpr, *ast.FalseExpr, *ast.DontCareExpr:
		return nil
	case *ast.AndExpr:
		for _, op := range e.Operands {
			if err := tc.typecheckFilter(op, scope); err != nil {
				return err
			}
		}
		return nil
	case *ast.OrExpr:
		for _, op := range e.Operands {
			if err := tc.typecheckFilter(op, scope); err != nil {
				return err
			}
		}
		return nil
	case *ast.NotExpr:
		return tc.typecheckFilter(e.Operand, scope)
	case *ast.AtomExpr:
		colType, ok := scope.lookup(e.Name)
		if !ok {
			return errs.NewTypeError(f.Range(), fmt.Sprintf("no such column %q", e.Name))
		}
		valType := tc.typecheckValue(e.Value, scope)
		unified, ok := types.Unify(colType, valType, tc.retriever)
		if !ok {
			return errs.NewTypeError(f.Range(), fmt.Sprintf("cannot compare %s with %s", colType, valType))
		}
		e.Overload = &ast.Overload{LHS: colType, RHS: valType, Result: unified}
		return nil
	case *ast.ComputeExpr:
		lhs := tc.typecheckValue(e.LHS, scope)
		rhs := tc.typecheckValue(e.RHS, scope)
		unified, ok := types.Unify(lhs, rhs, tc.retriever)
		if !ok {
			return errs.NewTypeError(f.Range(), fmt.Sprintf("cannot apply %s to %s and %s", e.Operator, lhs, rhs))
		}
		e.Overload = &ast.Overload{LHS: lhs, RHS: rhs, Result: unified}
		return nil
	case *ast.ExistentialSubqueryExpr:
		_, err := tc.typecheckTable(context.Background(), e.Subquery, scope)
		return err
	case *ast.ComparisonSubqueryExpr:
		lhs := tc.typecheckValue(e.LHS, scope)
		_, err := tc.typecheckTable(context.Background(), e.RHS, scope)
		if err != nil {
			return err
		}
		e.Overload = &ast.Overload{LHS: lhs, Result: lhs}
		return nil
	case *ast.ExternalExpr:
		inv := &ast.Invocation{
			Selector: e.Selector,
			Channel:  e.Channel,
			InParams: e.InParams,
		}
		if err := tc.typecheckInvocation(context.Background(), inv, scope); err != nil {
			return err
		}
		e.SetSchema(inv.GetSchema())
		innerScope := newLocalScope(scope)
		for _, arg := range inv.GetSchema().Args {
			if arg.Direction == schema.Out {
				innerScope.set(arg.Name, arg.Type)
			}
		}
		return tc.typecheckFilter(e.Filter, innerScope)
	default:
		return errs.NewNotImplementedError(f.Range(), fmt.Sprintf("typecheck filter %T", f))
	}
}

// typecheckValue computes a Value's static type, resolving VarRefs against
// the active scope.
func (tc *Typechecker) typecheckValue(v ast.Value, scope *localScope) *types.Type {
	switch val := v.(type) {
	case *ast.VarRefValue:
		if ty, ok := scope.lookup(val.Name); ok {
			return ty
		}
		return types.Any()
	default:
		return val.GetType()
	}
}

// CompileClasses implements schema.ClassCompiler (spec §4.2's "parses the
// returned code, typechecks each class" step). The surface class-manifest
// grammar is out of scope (spec §1); this adapter accepts the
// JSON-serialized ClassDef form catalogued services return instead of the
// native ThingTalk class syntax, and typechecks each class's function
// signatures for internal consistency via ClassDef.Validate.
func (tc *Typechecker) CompileClasses(ctx context.Context, source string) (map[string]*schema.ClassDef, map[string]error, error) {
	var raw map[string]*schema.ClassDef
	if err := json.Unmarshal([]byte(source), &raw); err != nil {
		return nil, nil, errors.Wrap(err, "decoding catalog class source")
	}
	perClassErrs := make(map[string]error)
	classes := make(map[string]*schema.ClassDef)
	for kind, class := range raw {
		if err := class.Validate(); err != nil {
			perClassErrs[kind] = err
			continue
		}
		classes[kind] = class
	}
	return classes, perClassErrs, nil
}
