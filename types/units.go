package types

import (
	"fmt"
	"strings"

	"github.com/alecthomas/units"
)

// dimensionTable groups ThingTalk base units by physical dimension and
// gives each unit's scale factor relative to the dimension's base unit.
// Units within a dimension unify with each other (spec §3.1: "Measure(u)
// unifies iff units have the same base dimension").
var dimensionTable = map[string]map[string]float64{
	"temperature": {"C": 1, "F": 1, "K": 1}, // non-linear conversions handled in parseTemperature
	"length":      {"m": 1, "km": 1000, "cm": 0.01, "mm": 0.001, "mi": 1609.34, "ft": 0.3048, "in": 0.0254},
	"duration":    {"ms": 1, "s": 1000, "min": 60000, "h": 3600000, "day": 86400000, "week": 604800000},
	"weight":      {"kg": 1, "g": 0.001, "lb": 0.453592, "oz": 0.0283495},
	"pressure":    {"Pa": 1, "bar": 100000, "psi": 6894.76},
	"speed":       {"mps": 1, "kmph": 0.277778, "mph": 0.44704},
	"energy":      {"J": 1, "kCal": 4184},
	"byte":        {"byte": 1, "KB": 1024, "MB": 1024 * 1024, "GB": 1024 * 1024 * 1024},
}

// BaseDimension returns the physical dimension name a unit belongs to, or
// "" if the unit is unknown. Two Measure types unify only if their units
// share a dimension.
func BaseDimension(unit string) string {
	for dim, units := range dimensionTable {
		if _, ok := units[unit]; ok {
			return dim
		}
	}
	return ""
}

// unitMap builds the flat unit -> scale table alecthomas/units.ParseUnit
// expects (it was written for byte-size flag parsing but is a generic
// "numeric literal with unit suffix" parser, which is exactly what a
// Measure literal like "5day" or "30km" needs).
func unitMap(dimension string) map[string]float64 {
	table, ok := dimensionTable[dimension]
	if !ok {
		return nil
	}
	return table
}

// ParseMeasure parses a numeric literal in the given unit, such as ("5",
// "KB"), ("30", "C") or ("3", "day"), into a (value, baseUnit) pair,
// normalizing to the dimension's base unit.
// Temperature is handled specially since C/F/K conversions are affine, not
// a pure scale factor.
func ParseMeasure(literal, unit string) (float64, string, error) {
	dimension := BaseDimension(unit)
	if dimension == "" {
		return 0, "", fmt.Errorf("unknown measurement unit %q", unit)
	}

	if dimension == "temperature" {
		value, err := parseTemperature(literal, unit)
		return value, baseUnitOf(dimension), err
	}

	value, err := units.ParseUnit(strings.TrimSpace(literal)+unit, unitMap(dimension))
	if err != nil {
		return 0, "", err
	}
	return float64(value), baseUnitOf(dimension), nil
}

// baseUnitOf returns the canonical base unit name for a dimension (the
// unit whose scale factor is 1 in dimensionTable).
func baseUnitOf(dimension string) string {
	switch dimension {
	case "temperature":
		return "C"
	case "length":
		return "m"
	case "duration":
		return "ms"
	case "weight":
		return "kg"
	case "pressure":
		return "Pa"
	case "speed":
		return "mps"
	case "energy":
		return "J"
	case "byte":
		return "byte"
	}
	return ""
}

func parseTemperature(literal, unit string) (float64, error) {
	var value float64
	if _, err := fmt.Sscanf(strings.TrimSpace(literal), "%g", &value); err != nil {
		return 0, err
	}
	switch unit {
	case "C":
		return value, nil
	case "F":
		return (value - 32) * 5 / 9, nil
	case "K":
		return value - 273.15, nil
	}
	return 0, fmt.Errorf("unknown temperature unit %q", unit)
}
