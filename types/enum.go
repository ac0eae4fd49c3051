package types

import (
	"golang.org/x/text/cases"
)

var enumCaser = cases.Fold()

// NormalizeEnumChoice folds an enum choice's case the way the rest of the
// corpus already depends on golang.org/x/text for Unicode-aware text
// transforms (the teacher's encode() builtin uses x/text/encoding). Enum
// choices are compared case-insensitively: "on" and "ON" are the same
// choice.
func NormalizeEnumChoice(choice string) string {
	return enumCaser.String(choice)
}

// EnumChoicesEqual compares two enum choice sets ignoring case and order.
func EnumChoicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[NormalizeEnumChoice(c)] = true
	}
	for _, c := range b {
		if !seen[NormalizeEnumChoice(c)] {
			return false
		}
	}
	return true
}
