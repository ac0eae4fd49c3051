package ast

import (
	"fmt"
	"strings"
	"time"

	"github.com/stanford-oval/thingtalk-go/types"
)

// Value is the tagged-variant hierarchy of spec §3.2. Every value answers
// GetType(); concrete values additionally answer ToJS().
type Value interface {
	Node
	isValue()
	GetType() *types.Type
}

// ConcreteValue is implemented by values that normalize to a host-language
// datum (spec §3.2: "(for concrete values) toJS() producing a normalized
// host-language datum").
type ConcreteValue interface {
	Value
	ToJS() interface{}
}

// --- Array ---

type ArrayValue struct {
	baseNode
	Elements []Value
}

func (*ArrayValue) isValue() {}
func (v *ArrayValue) GetType() *types.Type {
	if len(v.Elements) == 0 {
		return types.Array(types.Any())
	}
	return types.Array(v.Elements[0].GetType())
}

// --- VarRef / Undefined ---

type VarRefValue struct {
	baseNode
	Name string
}

func (*VarRefValue) isValue()           {}
func (v *VarRefValue) GetType() *types.Type { return types.Any() }

// IsConstRef reports whether this is one of the parser's synthesized
// "__const_*" placeholders, the only VarRef form a Date offset may hold
// (spec §3.2 invariant on Date.offset).
func (v *VarRefValue) IsConstRef() bool { return strings.HasPrefix(v.Name, "__const_") }

type UndefinedValue struct {
	baseNode
	Local bool
}

func (*UndefinedValue) isValue()               {}
func (v *UndefinedValue) GetType() *types.Type { return types.Any() }

// --- Boolean / String / Number ---

type BooleanValue struct {
	baseNode
	Value bool
}

func (*BooleanValue) isValue()               {}
func (v *BooleanValue) GetType() *types.Type { return types.Boolean() }
func (v *BooleanValue) ToJS() interface{}    { return v.Value }

type StringValue struct {
	baseNode
	Value string
}

func (*StringValue) isValue()               {}
func (v *StringValue) GetType() *types.Type { return types.String() }
func (v *StringValue) ToJS() interface{}    { return v.Value }

type NumberValue struct {
	baseNode
	Value float64
}

func (*NumberValue) isValue()               {}
func (v *NumberValue) GetType() *types.Type { return types.Number() }
func (v *NumberValue) ToJS() interface{}    { return v.Value }

// --- Currency / Measure ---

type CurrencyValue struct {
	baseNode
	Value float64
	Code  string
}

func (*CurrencyValue) isValue()               {}
func (v *CurrencyValue) GetType() *types.Type { return types.Currency() }
func (v *CurrencyValue) ToJS() interface{}    { return map[string]interface{}{"value": v.Value, "code": v.Code} }

type MeasureValue struct {
	baseNode
	Value float64
	Unit  string
}

func (*MeasureValue) isValue() {}
func (v *MeasureValue) GetType() *types.Type {
	return types.Measure(v.Unit)
}
func (v *MeasureValue) ToJS() interface{} {
	normalized, baseUnit, err := types.ParseMeasure(fmt.Sprintf("%g", v.Value), v.Unit)
	if err != nil {
		return v.Value
	}
	_ = baseUnit
	return normalized
}

// CompoundMeasureValue is a sequence of measures summed together, e.g.
// "2h 30min" (spec §3.2: "CompoundMeasure[]").
type CompoundMeasureValue struct {
	baseNode
	Parts []*MeasureValue
}

func (*CompoundMeasureValue) isValue() {}
func (v *CompoundMeasureValue) GetType() *types.Type {
	if len(v.Parts) == 0 {
		return types.Measure("")
	}
	return v.Parts[0].GetType()
}
func (v *CompoundMeasureValue) ToJS() interface{} {
	var total float64
	for _, p := range v.Parts {
		if f, ok := p.ToJS().(float64); ok {
			total += f
		}
	}
	return total
}

// --- Location ---

const (
	LocationCurrent = "current_location"
	LocationHome    = "home"
	LocationWork    = "work"
)

// IsValidRelativeLocationTag enforces spec §3.2's invariant:
// Location.Relative.tag ∈ {current_location, home, work}.
func IsValidRelativeLocationTag(tag string) bool {
	switch tag {
	case LocationCurrent, LocationHome, LocationWork:
		return true
	}
	return false
}

type AbsoluteLocation struct {
	Lat, Lon float64
	Display  *string
}

type RelativeLocation struct {
	Tag string
}

type LocationValue struct {
	baseNode
	Absolute *AbsoluteLocation
	Relative *RelativeLocation
}

func (*LocationValue) isValue()               {}
func (v *LocationValue) GetType() *types.Type { return types.Location() }
func (v *LocationValue) ToJS() interface{} {
	if v.Absolute != nil {
		return map[string]interface{}{"lat": v.Absolute.Lat, "lon": v.Absolute.Lon, "display": v.Absolute.Display}
	}
	if v.Relative != nil {
		return map[string]interface{}{"relativeTag": v.Relative.Tag}
	}
	return nil
}

// IsConcrete implements the "concrete for slot-filling" invariant of spec
// §3.2: "a non-null display plus non-relative location makes a value
// concrete".
func (v *LocationValue) IsConcrete() bool {
	return v.Absolute != nil && v.Absolute.Display != nil
}

// --- Date ---

// DateComponent is the Date.value sum type: Date | DateEdge | WeekDayDate |
// DatePiece | nil.
type DateComponent interface {
	isDateComponent()
}

type DateLiteral struct{ Time time.Time }

func (DateLiteral) isDateComponent() {}

// DateEdge models `start_of`/`end_of` unit anchors, e.g. "start_of day".
type DateEdge struct {
	Edge string // "start_of" | "end_of"
	Unit string // "day", "week", "month", "year", ...
}

func (DateEdge) isDateComponent() {}

// WeekDayDate models "monday" style relative weekday anchors, optionally
// paired with a time-of-day.
type WeekDayDate struct {
	Weekday string
	Time    *TimeValue
}

func (WeekDayDate) isDateComponent() {}

// DatePiece models a partial calendar date, e.g. "2020" or "March 2020".
type DatePiece struct {
	Year, Month, Day *int
}

func (DatePiece) isDateComponent() {}

type DateValue struct {
	baseNode
	Component DateComponent // nil means "now"
	Operator  string        // "+" | "-" | ""
	Offset    Value         // Measure | CompoundMeasure | VarRef("__const_*") | nil
}

func (*DateValue) isValue()               {}
func (v *DateValue) GetType() *types.Type { return types.Date() }

// ValidateOffset enforces spec §3.2's invariant: "a Date.offset must be a
// duration-like value".
func (v *DateValue) ValidateOffset() error {
	if v.Offset == nil {
		return nil
	}
	switch offset := v.Offset.(type) {
	case *MeasureValue, *CompoundMeasureValue:
		return nil
	case *VarRefValue:
		if offset.IsConstRef() {
			return nil
		}
	}
	return fmt.Errorf("Date.offset must be a Measure, CompoundMeasure, or __const_* VarRef, got %T", v.Offset)
}

func (v *DateValue) ToJS() interface{} {
	return map[string]interface{}{"component": v.Component, "operator": v.Operator}
}

// --- Time ---

type TimeValue struct {
	baseNode
	Hour, Minute, Second int
}

func (*TimeValue) isValue()               {}
func (v *TimeValue) GetType() *types.Type { return types.Time() }
func (v *TimeValue) ToJS() interface{} {
	return fmt.Sprintf("%02d:%02d:%02d", v.Hour, v.Minute, v.Second)
}

// --- Entity / Enum / Event ---

type EntityValue struct {
	baseNode
	Value      string
	EntityKind string
	Display    *string
}

func (*EntityValue) isValue()               {}
func (v *EntityValue) GetType() *types.Type { return types.Entity(v.EntityKind) }
func (v *EntityValue) ToJS() interface{} {
	return map[string]interface{}{"value": v.Value, "display": v.Display}
}

// IsConcrete mirrors LocationValue.IsConcrete (spec §3.2 invariant).
func (v *EntityValue) IsConcrete() bool { return v.Display != nil }

type EnumValue struct {
	baseNode
	Value string
}

func (*EnumValue) isValue()               {}
func (v *EnumValue) GetType() *types.Type { return types.Enum(nil) }
func (v *EnumValue) ToJS() interface{}    { return types.NormalizeEnumChoice(v.Value) }

// EventValue models $event / $event.type / $event.program_id references.
// Name == "" means the bare $event (spec §3.2: 'Event{name:
// null|"type"|"program_id"|other}').
type EventValue struct {
	baseNode
	Name string
}

func (*EventValue) isValue()               {}
func (v *EventValue) GetType() *types.Type { return types.Any() }
