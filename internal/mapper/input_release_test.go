package mapper

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vibium/mapper/internal/bidierr"
)

// TestReleaseAllReplaysCancelListInReverse covers release-actions
// semantics: a keyDown and a pointerDown leave one undo entry each, and
// ReleaseAll replays them newest-first (the pointerUp before the keyUp).
func TestReleaseAllReplaysCancelListInReverse(t *testing.T) {
	target, rec := newDispatchTestTarget(t)
	d := NewActionDispatcher(NewInputState(), target)

	if err := d.dispatchKey("kbd1", Action{Type: "keyDown", Key: "a"}); err != nil {
		t.Fatalf("keyDown: %v", err)
	}
	if err := d.dispatchPointer("mouse1", PointerMouse, Action{Type: "pointerDown", Button: 0}); err != nil {
		t.Fatalf("pointerDown: %v", err)
	}

	d.ReleaseAll()

	var tail []string
	for _, c := range rec.snapshot() {
		tail = append(tail, c.method)
	}
	if len(tail) < 4 {
		t.Fatalf("got %d CDP calls, want the two presses plus two releases", len(tail))
	}
	// Releases come after the presses, pointer first (reverse press order).
	if tail[len(tail)-2] != "Input.dispatchMouseEvent" || tail[len(tail)-1] != "Input.dispatchKeyEvent" {
		t.Fatalf("release order = %v, want mouseReleased then keyUp last", tail)
	}

	var up struct {
		Type string `json:"type"`
	}
	last := rec.snapshot()[len(tail)-1]
	if err := json.Unmarshal(last.params, &up); err != nil {
		t.Fatalf("unmarshal final key event: %v", err)
	}
	if up.Type != "keyUp" {
		t.Fatalf("final key event type = %q, want keyUp", up.Type)
	}
}

// TestKeyUpForUnpressedKeyIsNoOp covers the keyUp invariant: no CDP call is
// issued for a key that was never pressed.
func TestKeyUpForUnpressedKeyIsNoOp(t *testing.T) {
	target, rec := newDispatchTestTarget(t)
	d := NewActionDispatcher(NewInputState(), target)

	if err := d.dispatchKey("kbd1", Action{Type: "keyUp", Key: "a"}); err != nil {
		t.Fatalf("keyUp: %v", err)
	}
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Fatalf("got %d CDP calls, want none for an unpressed keyUp", len(calls))
	}
}

// TestShiftHeldProducesShiftedText covers WebDriver key composition: with a
// shift key held on the same input state, a subsequent printable keyDown
// carries the shifted grapheme as text and the unshifted one as
// unmodifiedText, plus the shift modifier bit.
func TestShiftHeldProducesShiftedText(t *testing.T) {
	target, rec := newDispatchTestTarget(t)
	d := NewActionDispatcher(NewInputState(), target)

	if err := d.dispatchKey("kbd1", Action{Type: "keyDown", Key: "\uE008"}); err != nil {
		t.Fatalf("shift keyDown: %v", err)
	}
	if err := d.dispatchKey("kbd1", Action{Type: "keyDown", Key: "a"}); err != nil {
		t.Fatalf("a keyDown: %v", err)
	}

	calls := rec.snapshot()
	var got struct {
		Text           string `json:"text"`
		UnmodifiedText string `json:"unmodifiedText"`
		Modifiers      int    `json:"modifiers"`
	}
	if err := json.Unmarshal(calls[len(calls)-1].params, &got); err != nil {
		t.Fatalf("unmarshal key event: %v", err)
	}
	if got.Text != "A" || got.UnmodifiedText != "a" {
		t.Fatalf("text/unmodifiedText = %q/%q, want A/a", got.Text, got.UnmodifiedText)
	}
	if got.Modifiers&modShift == 0 {
		t.Fatalf("modifiers = %d, want the shift bit set", got.Modifiers)
	}
}

// TestScrollRejectsPointerOrigin: a wheel source has no
// position, so a scroll with "pointer" origin is an invalid argument.
func TestScrollRejectsPointerOrigin(t *testing.T) {
	target, _ := newDispatchTestTarget(t)
	d := NewActionDispatcher(NewInputState(), target)

	err := d.dispatchWheel("wheel1", Action{Type: "scroll", Origin: Origin{Type: OriginPointer}})
	assertErrorKind(t, err, bidierr.InvalidArgument)
}

// TestPointerMoveOutOfBounds: a pointer-origin move that
// resolves to a negative coordinate fails with move-target-out-of-bounds.
func TestPointerMoveOutOfBounds(t *testing.T) {
	target, _ := newDispatchTestTarget(t)
	d := NewActionDispatcher(NewInputState(), target)

	err := d.tweenPointerMove("mouse1", PointerMouse, Action{
		Type: "pointerMove", X: -50, Y: 10,
		Origin: Origin{Type: OriginPointer},
	})
	assertErrorKind(t, err, bidierr.MoveTargetOutOfBounds)
}

// TestInputStatesIsolatePerContext covers the per-top-level-context scoping
// of input state: a key held in one context is not held in another.
func TestInputStatesIsolatePerContext(t *testing.T) {
	states := NewInputStates()
	a := states.Get("ctxA")
	b := states.Get("ctxB")

	a.mu.Lock()
	a.key("kbd1").pressed["x"] = true
	a.mu.Unlock()

	b.mu.Lock()
	pressed := b.key("kbd1").pressed["x"]
	b.mu.Unlock()
	if pressed {
		t.Fatal("key held in ctxA leaked into ctxB's input state")
	}

	states.Forget("ctxA")
	fresh := states.Get("ctxA")
	fresh.mu.Lock()
	stillPressed := fresh.key("kbd1").pressed["x"]
	fresh.mu.Unlock()
	if stillPressed {
		t.Fatal("Forget did not clear ctxA's input state")
	}
}

func assertErrorKind(t *testing.T, err error, kind bidierr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("got nil error, want %q", kind)
	}
	var be *bidierr.Error
	if !errors.As(err, &be) || be.Kind != kind {
		t.Fatalf("got error %v, want kind %q", err, kind)
	}
}
