// Package types implements the ThingTalk value type system (spec §3.1): a
// closed set of named types, some parameterized, with structural equality
// and a unification rule used by the typechecker and the operator-tree
// compiler to decide whether two values can participate in the same
// expression.
package types

import (
	"fmt"
	"strings"
)

// Kind enumerates the closed set of ThingTalk types.
type Kind int

const (
	KindAny Kind = iota
	KindBoolean
	KindString
	KindNumber
	KindCurrency
	KindLocation
	KindDate
	KindTime
	KindEntity
	KindEnum
	KindMeasure
	KindArray
	KindCompound
	KindFeed
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "Any"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	case KindNumber:
		return "Number"
	case KindCurrency:
		return "Currency"
	case KindLocation:
		return "Location"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	case KindEntity:
		return "Entity"
	case KindEnum:
		return "Enum"
	case KindMeasure:
		return "Measure"
	case KindArray:
		return "Array"
	case KindCompound:
		return "Compound"
	case KindFeed:
		return "Feed"
	}
	return "Unknown"
}

// Type is a value type. Only the fields relevant to Kind are populated;
// the zero value of the irrelevant fields is ignored.
type Type struct {
	Kind Kind

	// KindEntity: the entity kind, e.g. "tt:picture".
	EntityKind string

	// KindEnum: the permitted choices. A nil slice means "unconstrained"
	// per spec §3.1 ("Enum(choices|null)") and unifies with any other Enum.
	EnumChoices []string

	// KindMeasure: a unit of the measured dimension, e.g. "C" (temperature),
	// "m" (length), "ms" (duration). Schema types use the dimension's base
	// unit; a Measure literal's type carries the literal's own unit.
	BaseUnit string

	// KindArray: the element type.
	Elem *Type

	// KindCompound: ordered field list. Declaration order is preserved
	// because prettyprinting must round-trip (spec §8 property #1).
	Fields []CompoundField
}

// CompoundField is one member of a Compound type.
type CompoundField struct {
	Name string
	Type *Type
}

func Any() *Type      { return &Type{Kind: KindAny} }
func Boolean() *Type  { return &Type{Kind: KindBoolean} }
func String() *Type   { return &Type{Kind: KindString} }
func Number() *Type   { return &Type{Kind: KindNumber} }
func Currency() *Type { return &Type{Kind: KindCurrency} }
func Location() *Type { return &Type{Kind: KindLocation} }
func Date() *Type     { return &Type{Kind: KindDate} }
func Time() *Type     { return &Type{Kind: KindTime} }
func Feed() *Type     { return &Type{Kind: KindFeed} }

func Entity(kind string) *Type { return &Type{Kind: KindEntity, EntityKind: kind} }
func Enum(choices []string) *Type {
	return &Type{Kind: KindEnum, EnumChoices: choices}
}
func Measure(baseUnit string) *Type { return &Type{Kind: KindMeasure, BaseUnit: baseUnit} }
func Array(elem *Type) *Type        { return &Type{Kind: KindArray, Elem: elem} }
func Compound(fields []CompoundField) *Type {
	return &Type{Kind: KindCompound, Fields: fields}
}

// Field looks up a compound field by name.
func (t *Type) Field(name string) (*Type, bool) {
	if t == nil || t.Kind != KindCompound {
		return nil, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

func (t *Type) String() string {
	if t == nil {
		return "Any"
	}
	switch t.Kind {
	case KindEntity:
		return fmt.Sprintf("Entity(%s)", t.EntityKind)
	case KindEnum:
		if t.EnumChoices == nil {
			return "Enum"
		}
		return fmt.Sprintf("Enum(%s)", strings.Join(t.EnumChoices, ","))
	case KindMeasure:
		return fmt.Sprintf("Measure(%s)", t.BaseUnit)
	case KindArray:
		return fmt.Sprintf("Array(%s)", t.Elem.String())
	case KindCompound:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return fmt.Sprintf("Compound(%s)", strings.Join(parts, ", "))
	default:
		return t.Kind.String()
	}
}

// Equal reports structural equality (spec §3.1: "Equality is structural").
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindEntity:
		return a.EntityKind == b.EntityKind
	case KindEnum:
		return stringSliceEqual(a.EnumChoices, b.EnumChoices)
	case KindMeasure:
		return a.BaseUnit == b.BaseUnit
	case KindArray:
		return Equal(a.Elem, b.Elem)
	case KindCompound:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name ||
				!Equal(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SubtypeResolver answers entity-subtype queries. It is implemented by the
// schema retriever (spec §4.2: "subtype graph maintained by the schema
// retriever") and is injected here to avoid an import cycle between the
// types and schema packages.
type SubtypeResolver interface {
	// IsEntitySubtype reports whether `sub` is a declared subtype of
	// `parent` (or equal to it).
	IsEntitySubtype(sub, parent string) bool
}

// noSubtyping is used when the caller has no subtype graph available; it
// only considers identical entity kinds unifiable.
type noSubtyping struct{}

func (noSubtyping) IsEntitySubtype(sub, parent string) bool { return sub == parent }

// Unify decides whether two types can be used in the same expression
// position, per spec §3.1:
//
//	Any unifies with anything.
//	Measure(u) unifies iff units have the same base dimension.
//	Entity(a) unifies iff entity kinds are equal, or a is a declared
//	subtype of b.
//
// It returns the unified (most specific) type and whether unification
// succeeded. A nil resolver falls back to identity-only entity matching.
func Unify(a, b *Type, resolver SubtypeResolver) (*Type, bool) {
	if resolver == nil {
		resolver = noSubtyping{}
	}
	if a == nil || a.Kind == KindAny {
		return b, true
	}
	if b == nil || b.Kind == KindAny {
		return a, true
	}
	if a.Kind != b.Kind {
		return nil, false
	}
	switch a.Kind {
	case KindEntity:
		if a.EntityKind == b.EntityKind {
			return a, true
		}
		if resolver.IsEntitySubtype(a.EntityKind, b.EntityKind) {
			return b, true
		}
		if resolver.IsEntitySubtype(b.EntityKind, a.EntityKind) {
			return a, true
		}
		return nil, false
	case KindEnum:
		if a.EnumChoices == nil {
			return b, true
		}
		if b.EnumChoices == nil {
			return a, true
		}
		if !stringSliceEqual(a.EnumChoices, b.EnumChoices) {
			return nil, false
		}
		return a, true
	case KindMeasure:
		if BaseDimension(a.BaseUnit) != BaseDimension(b.BaseUnit) {
			return nil, false
		}
		return a, true
	case KindArray:
		elem, ok := Unify(a.Elem, b.Elem, resolver)
		if !ok {
			return nil, false
		}
		return Array(elem), true
	case KindCompound:
		if !Equal(a, b) {
			return nil, false
		}
		return a, true
	default:
		return a, true
	}
}
