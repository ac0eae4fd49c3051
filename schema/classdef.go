// Package schema implements the schema entities of spec.md §3.3 (ClassDef,
// FunctionDef, ArgumentDef, Dataset, Example, EntityTypeRecord) and the
// schema retriever (C4, spec §4.2) that resolves them from an external
// catalog.
package schema

import (
	"fmt"

	"github.com/stanford-oval/thingtalk-go/types"
)

// Direction is an argument's direction, spec §3.3.
type Direction int

const (
	InReq Direction = iota
	InOpt
	Out
)

func (d Direction) String() string {
	switch d {
	case InReq:
		return "in req"
	case InOpt:
		return "in opt"
	case Out:
		return "out"
	}
	return "?"
}

// ArgumentDef is one formal parameter of a FunctionDef.
type ArgumentDef struct {
	Direction Direction
	Name      string
	Type      *types.Type
	Metadata  map[string]string
}

// FunctionKind distinguishes queries from actions, spec §3.3.
type FunctionKind int

const (
	FunctionQuery FunctionKind = iota
	FunctionAction
)

func (k FunctionKind) String() string {
	if k == FunctionAction {
		return "action"
	}
	return "query"
}

// FunctionDef describes one query or action exposed by a ClassDef.
type FunctionDef struct {
	FunctionType      FunctionKind
	Name              string
	Args              []ArgumentDef // ordered: declaration order is significant (§8 property #1)
	IsList            bool
	IsMonitorable     bool
	MinimalProjection map[string]bool
	DefaultProjection map[string]bool
	Annotations       map[string]interface{}
}

// Validate enforces the invariants of spec §3.3: argument names unique per
// function, minimal_projection ⊆ args.
func (f *FunctionDef) Validate() error {
	seen := make(map[string]bool, len(f.Args))
	argNames := make(map[string]bool, len(f.Args))
	for _, arg := range f.Args {
		if seen[arg.Name] {
			return fmt.Errorf("function %s: duplicate argument %q", f.Name, arg.Name)
		}
		seen[arg.Name] = true
		argNames[arg.Name] = true
	}
	for name := range f.MinimalProjection {
		if !argNames[name] {
			return fmt.Errorf("function %s: minimal_projection references unknown argument %q", f.Name, name)
		}
	}
	return nil
}

// ArgNames returns the argument names in declaration order.
func (f *FunctionDef) ArgNames() []string {
	names := make([]string, len(f.Args))
	for i, a := range f.Args {
		names[i] = a.Name
	}
	return names
}

// GetArg looks up a formal argument by name.
func (f *FunctionDef) GetArg(name string) (*ArgumentDef, bool) {
	for i := range f.Args {
		if f.Args[i].Name == name {
			return &f.Args[i], true
		}
	}
	return nil, false
}

// OutArgNames returns the names of OUT arguments, in declaration order.
// These are the only names that participate in edge-new tuple comparison
// (spec §4.5: "var_scope_names ... only OUT parameters, not inputs").
func (f *FunctionDef) OutArgNames() []string {
	var result []string
	for _, a := range f.Args {
		if a.Direction == Out {
			result = append(result, a.Name)
		}
	}
	return result
}

// EntityDecl is a class-local entity type declaration, spec §3.3.
type EntityDecl struct {
	Type string
}

// ClassDef models one device class (§3.3).
type ClassDef struct {
	Kind     string
	Extends  []string
	Queries  map[string]*FunctionDef
	Actions  map[string]*FunctionDef
	Entities []EntityDecl
	Metadata map[string]string

	// Annotations carries arbitrary class-level metadata (e.g. #[poll_interval]).
	Annotations map[string]interface{}
}

// Validate checks the invariants of spec §3.3 that are local to one class:
// every referenced function must itself be internally valid (name
// uniqueness, projection invariants). Cross-class invariants (every
// referenced `kind` resolves to a ClassDef) are checked by the retriever,
// which alone has visibility into the full set of resolved classes.
func (c *ClassDef) Validate() error {
	for name, fn := range c.Queries {
		if fn.Name != name {
			return fmt.Errorf("class %s: query map key %q does not match FunctionDef.Name %q", c.Kind, name, fn.Name)
		}
		if err := fn.Validate(); err != nil {
			return fmt.Errorf("class %s: %w", c.Kind, err)
		}
	}
	for name, fn := range c.Actions {
		if fn.Name != name {
			return fmt.Errorf("class %s: action map key %q does not match FunctionDef.Name %q", c.Kind, name, fn.Name)
		}
		if err := fn.Validate(); err != nil {
			return fmt.Errorf("class %s: %w", c.Kind, err)
		}
	}
	return nil
}

// LookupFunction resolves a function by (functionType, name); functionType
// "both" (the zero-value-agnostic search used by get_schema) checks
// queries first, then actions.
func (c *ClassDef) LookupFunction(functionType, name string) (*FunctionDef, bool) {
	switch functionType {
	case "query":
		fn, ok := c.Queries[name]
		return fn, ok
	case "action":
		fn, ok := c.Actions[name]
		return fn, ok
	default: // "both"
		if fn, ok := c.Queries[name]; ok {
			return fn, true
		}
		fn, ok := c.Actions[name]
		return fn, ok
	}
}

// Example is one annotated sample program, spec §3.3.
type Example struct {
	ID       string
	Program  string
	Metadata map[string]string
}

// Dataset is a named collection of Examples for one class kind.
type Dataset struct {
	Name     string
	Examples []*Example
}

// EntityTypeRecord describes one entity type known to the catalog,
// including its declared supertypes (spec §3.3, §9 "Open question:
// feed/principal values" notwithstanding — subtyping support here is the
// provisional contract the spec preserves).
type EntityTypeRecord struct {
	Type          string
	IsWellKnown   bool
	HasNERSupport bool
	SubtypeOf     []string
}
