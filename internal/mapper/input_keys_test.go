package mapper

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNormalizeKeyPrintable(t *testing.T) {
	cases := []struct {
		raw  string
		want keyDef
	}{
		{"a", keyDef{key: "a", code: "KeyA", keyCode: 65}},
		{"Z", keyDef{key: "Z", code: "KeyZ", keyCode: 90}},
		{"7", keyDef{key: "7", code: "Digit7", keyCode: 55}},
		{"/", keyDef{key: "/", code: "Slash", keyCode: 191}},
		{" ", keyDef{key: " ", code: "Space", keyCode: 32}},
	}
	for _, c := range cases {
		got, err := normalizeKey(c.raw)
		if err != nil {
			t.Fatalf("normalizeKey(%q): %v", c.raw, err)
		}
		if diff := cmp.Diff(c.want, got, cmp.AllowUnexported(keyDef{})); diff != "" {
			t.Fatalf("normalizeKey(%q) mismatch (-want +got):\n%s", c.raw, diff)
		}
	}
}

func TestNormalizeKeyWebDriverCodepoints(t *testing.T) {
	cases := []struct {
		raw  string
		want keyDef
	}{
		{"", keyDef{key: "Shift", code: "ShiftLeft", keyCode: 16, location: 1}},
		{"", keyDef{key: "Shift", code: "ShiftRight", keyCode: 16, location: 2}},
		{"", keyDef{key: "Enter", code: "Enter", keyCode: 13}},
		{"", keyDef{key: "Escape", code: "Escape", keyCode: 27}},
		{"", keyDef{key: "1", code: "Numpad1", keyCode: 97, location: 3}},
		{"", keyDef{key: "Meta", code: "MetaLeft", keyCode: 91, location: 1}},
	}
	for _, c := range cases {
		got, err := normalizeKey(c.raw)
		if err != nil {
			t.Fatalf("normalizeKey(%q): %v", c.raw, err)
		}
		if diff := cmp.Diff(c.want, got, cmp.AllowUnexported(keyDef{})); diff != "" {
			t.Fatalf("normalizeKey(%q) mismatch (-want +got):\n%s", c.raw, diff)
		}
	}
}

// TestNormalizeKeyRejectsMultiGrapheme: a key action value
// longer than one grapheme is an invalid argument, not a silent truncation.
func TestNormalizeKeyRejectsMultiGrapheme(t *testing.T) {
	for _, raw := range []string{"", "ab", "Enter"} {
		if _, err := normalizeKey(raw); err == nil {
			t.Fatalf("normalizeKey(%q) succeeded, want invalid-argument", raw)
		}
	}
}

func TestShiftedKeyText(t *testing.T) {
	cases := map[string]string{
		"a": "A",
		"1": "!",
		"/": "?",
		";": ":",
		"A": "A",     // already shifted
		" ": " ",     // shift does not change space
		"Enter": "Enter", // named keys pass through
	}
	for key, want := range cases {
		if got := shiftedKeyText(key); got != want {
			t.Fatalf("shiftedKeyText(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestModifierBits(t *testing.T) {
	got := map[string]int{}
	for _, key := range []string{"Alt", "Control", "Meta", "Shift", "a"} {
		got[key] = modifierBit(key)
	}
	want := map[string]int{"Alt": 1, "Control": 2, "Meta": 4, "Shift": 8, "a": 0}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("modifier bits mismatch (-want +got):\n%s", diff)
	}
}
