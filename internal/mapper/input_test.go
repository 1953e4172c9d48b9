package mapper

import (
	"testing"
	"time"
)

func TestKeyStateTracksPressedKeys(t *testing.T) {
	state := NewInputState()
	state.mu.Lock()
	ks := state.key("kbd1")
	ks.pressed["a"] = true
	state.mu.Unlock()

	state.mu.Lock()
	pressed := state.keys["kbd1"].pressed["a"]
	state.mu.Unlock()
	if !pressed {
		t.Fatal("expected key 'a' to be tracked as pressed")
	}
}

// recordClick runs the same within-window-and-radius decision dispatchPointer
// makes for a pointerDown, against a pointerState directly, so the
// click-count invariant can be asserted without a live CDP target.
func recordClick(ps *pointerState, x, y float64, at time.Time) {
	if at.Sub(ps.lastDown) <= clickWindow && dist(ps.lastDownX, ps.lastDownY, x, y) <= clickRadius {
		ps.clickCount++
	} else {
		ps.clickCount = 1
	}
	ps.lastDown, ps.lastDownX, ps.lastDownY = at, x, y
	ps.x, ps.y = x, y
}

// TestClickCountIncrementsWithinWindowAndRadius covers the case: two
// pointerDowns on the same button, close in time and space, are reported
// as a double-click (clickCount 2); a third in the same sequence is a
// triple-click.
func TestClickCountIncrementsWithinWindowAndRadius(t *testing.T) {
	state := NewInputState()
	state.mu.Lock()
	ps := state.pointer("mouse1", PointerMouse)
	base := time.Now()
	recordClick(ps, 10, 10, base)
	recordClick(ps, 11, 11, base.Add(100*time.Millisecond))
	recordClick(ps, 12, 10, base.Add(200*time.Millisecond))
	got := ps.clickCount
	state.mu.Unlock()

	if got != 3 {
		t.Fatalf("clickCount = %d, want 3 (triple-click)", got)
	}
}

func TestClickCountResetsOutsideWindow(t *testing.T) {
	state := NewInputState()
	state.mu.Lock()
	ps := state.pointer("mouse1", PointerMouse)
	base := time.Now()
	recordClick(ps, 10, 10, base)
	recordClick(ps, 10, 10, base.Add(2*clickWindow))
	got := ps.clickCount
	state.mu.Unlock()

	if got != 1 {
		t.Fatalf("clickCount = %d, want 1 (window elapsed, resets to a new click)", got)
	}
}

func TestClickCountResetsOutsideRadius(t *testing.T) {
	state := NewInputState()
	state.mu.Lock()
	ps := state.pointer("mouse1", PointerMouse)
	base := time.Now()
	recordClick(ps, 10, 10, base)
	recordClick(ps, 10+clickRadius*4, 10, base.Add(50*time.Millisecond))
	got := ps.clickCount
	state.mu.Unlock()

	if got != 1 {
		t.Fatalf("clickCount = %d, want 1 (moved outside click radius, resets to a new click)", got)
	}
}

func TestMouseButtonNameMapping(t *testing.T) {
	cases := map[int]string{0: "left", 1: "middle", 2: "right", 99: "none"}
	for button, want := range cases {
		if got := mouseButtonName(button); got != want {
			t.Fatalf("mouseButtonName(%d) = %q, want %q", button, got, want)
		}
	}
}

func TestTouchCDPTypeMapping(t *testing.T) {
	cases := map[string]string{
		"pointerDown": "touchStart",
		"pointerUp":   "touchEnd",
		"pointerMove": "touchMove",
		"pause":       "touchCancel",
	}
	for actionType, want := range cases {
		if got := touchCDPType(actionType); got != want {
			t.Fatalf("touchCDPType(%q) = %q, want %q", actionType, got, want)
		}
	}
}
