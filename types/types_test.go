package types

import "testing"

func TestTypeStringRoundTrip(t *testing.T) {
	cases := []struct {
		typ  *Type
		want string
	}{
		{Any(), "Any"},
		{Number(), "Number"},
		{Entity("tt:picture"), "Entity(tt:picture)"},
		{Enum([]string{"on", "off"}), "Enum(on,off)"},
		{Measure("C"), "Measure(C)"},
		{Array(String()), "Array(String)"},
		{Compound([]CompoundField{{Name: "x", Type: Number()}}), "Compound(x: Number)"},
	}
	for _, c := range cases {
		if got := c.typ.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestEqualStructural(t *testing.T) {
	if !Equal(Entity("tt:picture"), Entity("tt:picture")) {
		t.Error("expected equal entity types")
	}
	if Equal(Entity("tt:picture"), Entity("tt:video")) {
		t.Error("expected distinct entity kinds to differ")
	}
	if !Equal(Array(Number()), Array(Number())) {
		t.Error("expected equal array types")
	}
	if Equal(Measure("C"), Measure("F")) {
		t.Error("Equal is structural, not dimensional — C and F differ")
	}
}

type fakeResolver map[string]string // sub -> parent

func (f fakeResolver) IsEntitySubtype(sub, parent string) bool {
	return f[sub] == parent
}

func TestUnifyAnyAbsorbsEverything(t *testing.T) {
	unified, ok := Unify(Any(), Number(), nil)
	if !ok || unified.Kind != KindNumber {
		t.Fatalf("Any should unify with Number, got %v, %v", unified, ok)
	}
	unified, ok = Unify(String(), Any(), nil)
	if !ok || unified.Kind != KindString {
		t.Fatalf("Any should unify with String, got %v, %v", unified, ok)
	}
}

func TestUnifyMeasureSameDimension(t *testing.T) {
	if _, ok := Unify(Measure("C"), Measure("F"), nil); !ok {
		t.Error("C and F are both temperature, should unify")
	}
	if _, ok := Unify(Measure("C"), Measure("m"), nil); ok {
		t.Error("C (temperature) and m (length) should not unify")
	}
}

func TestUnifyEntitySubtype(t *testing.T) {
	resolver := fakeResolver{"tt:picture": "tt:media"}
	unified, ok := Unify(Entity("tt:picture"), Entity("tt:media"), resolver)
	if !ok || unified.EntityKind != "tt:media" {
		t.Fatalf("declared subtype should unify to parent, got %v, %v", unified, ok)
	}
	if _, ok := Unify(Entity("tt:picture"), Entity("tt:video"), resolver); ok {
		t.Error("unrelated entity kinds should not unify")
	}
}

func TestUnifyEnumNilChoicesUnconstrained(t *testing.T) {
	unified, ok := Unify(Enum(nil), Enum([]string{"on", "off"}), nil)
	if !ok || len(unified.EnumChoices) != 2 {
		t.Fatalf("nil enum choices should unify with any constrained enum, got %v, %v", unified, ok)
	}
	if _, ok := Unify(Enum([]string{"on", "off"}), Enum([]string{"up", "down"}), nil); ok {
		t.Error("disjoint enum choice sets should not unify")
	}
}
