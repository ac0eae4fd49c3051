package types

import "testing"

func TestNormalizeEnumChoice(t *testing.T) {
	if NormalizeEnumChoice("ON") != NormalizeEnumChoice("on") {
		t.Error("enum choices should fold case")
	}
}

func TestEnumChoicesEqual(t *testing.T) {
	if !EnumChoicesEqual([]string{"on", "OFF"}, []string{"Off", "On"}) {
		t.Error("expected case/order-insensitive equality")
	}
	if EnumChoicesEqual([]string{"on"}, []string{"on", "off"}) {
		t.Error("different-length choice sets should not be equal")
	}
}
