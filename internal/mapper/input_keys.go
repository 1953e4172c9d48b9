package mapper

import (
	"unicode/utf8"

	"github.com/vibium/mapper/internal/bidierr"
)

// CDP keyboard modifier bits, per Input.dispatchKeyEvent.
const (
	modAlt   = 1
	modCtrl  = 2
	modMeta  = 4
	modShift = 8
)

// keyDef is everything Input.dispatchKeyEvent needs for one normalized key:
// the UI Events "key" value, the physical "code", the legacy Windows virtual
// keycode, and the DOM location (0 standard, 1 left, 2 right, 3 numpad).
type keyDef struct {
	key      string
	code     string
	keyCode  int
	location int
}

// webdriverKeys maps the WebDriver private-use codepoints (U+E000 range)
// the actions wire format uses for non-printable keys to their normalized
// definitions. The alternate right-hand codepoints (U+E050 range) share a
// key value but carry location 2 and their own physical code.
var webdriverKeys = map[rune]keyDef{
	'\uE000': {key: "Unidentified"},
	'\uE001': {key: "Cancel", code: "Abort", keyCode: 3},
	'\uE002': {key: "Help", code: "Help", keyCode: 6},
	'\uE003': {key: "Backspace", code: "Backspace", keyCode: 8},
	'\uE004': {key: "Tab", code: "Tab", keyCode: 9},
	'\uE005': {key: "Clear", keyCode: 12},
	'\uE006': {key: "Enter", code: "Enter", keyCode: 13},
	'\uE007': {key: "Enter", code: "NumpadEnter", keyCode: 13, location: 3},
	'\uE008': {key: "Shift", code: "ShiftLeft", keyCode: 16, location: 1},
	'\uE009': {key: "Control", code: "ControlLeft", keyCode: 17, location: 1},
	'\uE00A': {key: "Alt", code: "AltLeft", keyCode: 18, location: 1},
	'\uE00B': {key: "Pause", code: "Pause", keyCode: 19},
	'\uE00C': {key: "Escape", code: "Escape", keyCode: 27},
	'\uE00D': {key: " ", code: "Space", keyCode: 32},
	'\uE00E': {key: "PageUp", code: "PageUp", keyCode: 33},
	'\uE00F': {key: "PageDown", code: "PageDown", keyCode: 34},
	'\uE010': {key: "End", code: "End", keyCode: 35},
	'\uE011': {key: "Home", code: "Home", keyCode: 36},
	'\uE012': {key: "ArrowLeft", code: "ArrowLeft", keyCode: 37},
	'\uE013': {key: "ArrowUp", code: "ArrowUp", keyCode: 38},
	'\uE014': {key: "ArrowRight", code: "ArrowRight", keyCode: 39},
	'\uE015': {key: "ArrowDown", code: "ArrowDown", keyCode: 40},
	'\uE016': {key: "Insert", code: "Insert", keyCode: 45},
	'\uE017': {key: "Delete", code: "Delete", keyCode: 46},
	'\uE018': {key: ";", code: "Semicolon", keyCode: 186},
	'\uE019': {key: "=", code: "Equal", keyCode: 187},
	'\uE01A': {key: "0", code: "Numpad0", keyCode: 96, location: 3},
	'\uE01B': {key: "1", code: "Numpad1", keyCode: 97, location: 3},
	'\uE01C': {key: "2", code: "Numpad2", keyCode: 98, location: 3},
	'\uE01D': {key: "3", code: "Numpad3", keyCode: 99, location: 3},
	'\uE01E': {key: "4", code: "Numpad4", keyCode: 100, location: 3},
	'\uE01F': {key: "5", code: "Numpad5", keyCode: 101, location: 3},
	'\uE020': {key: "6", code: "Numpad6", keyCode: 102, location: 3},
	'\uE021': {key: "7", code: "Numpad7", keyCode: 103, location: 3},
	'\uE022': {key: "8", code: "Numpad8", keyCode: 104, location: 3},
	'\uE023': {key: "9", code: "Numpad9", keyCode: 105, location: 3},
	'\uE024': {key: "*", code: "NumpadMultiply", keyCode: 106, location: 3},
	'\uE025': {key: "+", code: "NumpadAdd", keyCode: 107, location: 3},
	'\uE026': {key: ",", code: "NumpadComma", keyCode: 108, location: 3},
	'\uE027': {key: "-", code: "NumpadSubtract", keyCode: 109, location: 3},
	'\uE028': {key: ".", code: "NumpadDecimal", keyCode: 110, location: 3},
	'\uE029': {key: "/", code: "NumpadDivide", keyCode: 111, location: 3},
	'\uE031': {key: "F1", code: "F1", keyCode: 112},
	'\uE032': {key: "F2", code: "F2", keyCode: 113},
	'\uE033': {key: "F3", code: "F3", keyCode: 114},
	'\uE034': {key: "F4", code: "F4", keyCode: 115},
	'\uE035': {key: "F5", code: "F5", keyCode: 116},
	'\uE036': {key: "F6", code: "F6", keyCode: 117},
	'\uE037': {key: "F7", code: "F7", keyCode: 118},
	'\uE038': {key: "F8", code: "F8", keyCode: 119},
	'\uE039': {key: "F9", code: "F9", keyCode: 120},
	'\uE03A': {key: "F10", code: "F10", keyCode: 121},
	'\uE03B': {key: "F11", code: "F11", keyCode: 122},
	'\uE03C': {key: "F12", code: "F12", keyCode: 123},
	'\uE03D': {key: "Meta", code: "MetaLeft", keyCode: 91, location: 1},
	'\uE040': {key: "ZenkakuHankaku"},
	'\uE050': {key: "Shift", code: "ShiftRight", keyCode: 16, location: 2},
	'\uE051': {key: "Control", code: "ControlRight", keyCode: 17, location: 2},
	'\uE052': {key: "Alt", code: "AltRight", keyCode: 18, location: 2},
	'\uE053': {key: "Meta", code: "MetaRight", keyCode: 92, location: 2},
}

// usShiftedGraphemes maps an unshifted US-layout character to what the same
// physical key produces with Shift held, for composing the dispatched
// "text" field when a shift modifier is active.
var usShiftedGraphemes = map[rune]rune{
	'`': '~', '1': '!', '2': '@', '3': '#', '4': '$', '5': '%', '6': '^',
	'7': '&', '8': '*', '9': '(', '0': ')', '-': '_', '=': '+',
	'[': '{', ']': '}', '\\': '|', ';': ':', '\'': '"', ',': '<',
	'.': '>', '/': '?',
}

// usPunctuationCodes maps US-layout punctuation to its physical key code and
// Windows virtual keycode.
var usPunctuationCodes = map[rune]keyDef{
	'`':  {code: "Backquote", keyCode: 192},
	'-':  {code: "Minus", keyCode: 189},
	'=':  {code: "Equal", keyCode: 187},
	'[':  {code: "BracketLeft", keyCode: 219},
	']':  {code: "BracketRight", keyCode: 221},
	'\\': {code: "Backslash", keyCode: 220},
	';':  {code: "Semicolon", keyCode: 186},
	'\'': {code: "Quote", keyCode: 222},
	',':  {code: "Comma", keyCode: 188},
	'.':  {code: "Period", keyCode: 190},
	'/':  {code: "Slash", keyCode: 191},
	' ':  {code: "Space", keyCode: 32},
}

// normalizeKey resolves a raw action "value" into a keyDef. The value must
// be exactly one codepoint: a WebDriver codepoint for a named key, or a
// single printable grapheme. Anything longer is rejected as an invalid key
// grapheme.
func normalizeKey(raw string) (keyDef, error) {
	r, size := utf8.DecodeRuneInString(raw)
	if raw == "" || size != len(raw) || r == utf8.RuneError {
		return keyDef{}, bidierr.InvalidArgumentf("key value %q is not a single grapheme", raw)
	}
	if def, ok := webdriverKeys[r]; ok {
		return def, nil
	}
	def := keyDef{key: string(r)}
	switch {
	case r >= 'a' && r <= 'z':
		def.code = "Key" + string(r-'a'+'A')
		def.keyCode = int(r - 'a' + 'A')
	case r >= 'A' && r <= 'Z':
		def.code = "Key" + string(r)
		def.keyCode = int(r)
	case r >= '0' && r <= '9':
		def.code = "Digit" + string(r)
		def.keyCode = int(r)
	default:
		if punct, ok := usPunctuationCodes[r]; ok {
			def.code = punct.code
			def.keyCode = punct.keyCode
		}
	}
	return def, nil
}

// shiftedKeyText returns the text a key produces with Shift held: uppercase
// for letters, the US-layout shifted symbol for digits and punctuation, and
// the key itself when shifting does not change it.
func shiftedKeyText(key string) string {
	r, size := utf8.DecodeRuneInString(key)
	if size != len(key) {
		return key
	}
	if r >= 'a' && r <= 'z' {
		return string(r - 'a' + 'A')
	}
	if shifted, ok := usShiftedGraphemes[r]; ok {
		return string(shifted)
	}
	return key
}

// modifierBit returns the CDP modifier flag a normalized key contributes
// while held, or 0 for non-modifier keys.
func modifierBit(key string) int {
	switch key {
	case "Alt":
		return modAlt
	case "Control":
		return modCtrl
	case "Meta":
		return modMeta
	case "Shift":
		return modShift
	}
	return 0
}

// metaCommands names the editing command CDP should run for a Meta+<key>
// chord. Chrome only honors these on macOS and ignores them elsewhere, so
// they are attached whenever Meta is the active modifier.
func metaCommands(key string) []string {
	switch key {
	case "a":
		return []string{"SelectAll"}
	case "c":
		return []string{"Copy"}
	case "v":
		return []string{"Paste"}
	case "x":
		return []string{"Cut"}
	case "z":
		return []string{"Undo"}
	}
	return nil
}

// isTextKey reports whether a normalized key value is a printable grapheme
// (as opposed to a named key like "Enter"), which determines whether the
// dispatched event carries text.
func isTextKey(key string) bool {
	return utf8.RuneCountInString(key) == 1
}
