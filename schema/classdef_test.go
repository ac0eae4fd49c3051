package schema

import "testing"

func currentFn() *FunctionDef {
	return &FunctionDef{
		FunctionType: FunctionQuery,
		Name:         "current",
		Args: []ArgumentDef{
			{Direction: InReq, Name: "location", Type: nil},
			{Direction: Out, Name: "temperature", Type: nil},
			{Direction: Out, Name: "humidity", Type: nil},
		},
	}
}

func TestFunctionDefOutArgNamesPreservesOrder(t *testing.T) {
	fn := currentFn()
	got := fn.OutArgNames()
	want := []string{"temperature", "humidity"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("OutArgNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFunctionDefGetArg(t *testing.T) {
	fn := currentFn()
	if _, ok := fn.GetArg("temperature"); !ok {
		t.Error("expected to find declared argument temperature")
	}
	if _, ok := fn.GetArg("nonexistent"); ok {
		t.Error("expected not to find an undeclared argument")
	}
}

func TestFunctionDefValidateRejectsDuplicateArgNames(t *testing.T) {
	fn := &FunctionDef{
		Name: "broken",
		Args: []ArgumentDef{{Direction: Out, Name: "x"}, {Direction: Out, Name: "x"}},
	}
	if err := fn.Validate(); err == nil {
		t.Error("expected an error for a duplicate argument name")
	}
}

func TestFunctionDefValidateRejectsBadMinimalProjection(t *testing.T) {
	fn := &FunctionDef{
		Name:              "broken",
		Args:              []ArgumentDef{{Direction: Out, Name: "x"}},
		MinimalProjection: map[string]bool{"y": true},
	}
	if err := fn.Validate(); err == nil {
		t.Error("expected an error when minimal_projection references an unknown argument")
	}
}

func TestClassDefLookupFunction(t *testing.T) {
	c := &ClassDef{
		Kind:    "weather",
		Queries: map[string]*FunctionDef{"current": currentFn()},
		Actions: map[string]*FunctionDef{},
	}
	if _, ok := c.LookupFunction("query", "current"); !ok {
		t.Error("expected to resolve a query by exact functionType")
	}
	if _, ok := c.LookupFunction("both", "current"); !ok {
		t.Error("expected to resolve a query under the agnostic \"both\" search")
	}
	if _, ok := c.LookupFunction("action", "current"); ok {
		t.Error("a query should not resolve under functionType \"action\"")
	}
}

func TestClassDefValidateCatchesKeyNameMismatch(t *testing.T) {
	c := &ClassDef{
		Kind:    "weather",
		Queries: map[string]*FunctionDef{"current": {Name: "not_current"}},
	}
	if err := c.Validate(); err == nil {
		t.Error("expected an error when the map key does not match FunctionDef.Name")
	}
}
