package mapper

import (
	"strings"
	"sync"
	"time"

	"github.com/vibium/mapper/internal/bidierr"
	"github.com/vibium/mapper/internal/cdp"
)

// SourceType is one input.SourceActions "type" value.
type SourceType string

const (
	SourceNone    SourceType = "none"
	SourceKey     SourceType = "key"
	SourcePointer SourceType = "pointer"
	SourceWheel   SourceType = "wheel"
)

// PointerSubtype is input.PointerParameters "pointerType".
type PointerSubtype string

const (
	PointerMouse PointerSubtype = "mouse"
	PointerPen   PointerSubtype = "pen"
	PointerTouch PointerSubtype = "touch"
)

// OriginType is the coordinate frame a pointerMove/scroll target is
// expressed in: absolute viewport coordinates, relative to the pointer's
// current position, or relative to an element's center.
type OriginType string

const (
	OriginViewport OriginType = "viewport"
	OriginPointer  OriginType = "pointer"
	OriginElement  OriginType = "element"
)

// Origin names an action's coordinate frame. ElementObjectID is the CDP
// remote object id of the element when Type is OriginElement, resolved from
// the BiDi element reference at command-parse time.
type Origin struct {
	Type            OriginType
	ElementObjectID string
}

// Action is one tick's worth of instruction for a single source. Only the
// fields relevant to Type are meaningful; this mirrors the discriminated
// union the BiDi wire format uses for input.SourceActions items.
type Action struct {
	Type     string // "pause" | "keyDown" | "keyUp" | "pointerDown" | "pointerUp" | "pointerMove" | "scroll"
	Key      string
	Button   int
	X, Y     float64
	DeltaX   float64
	DeltaY   float64
	Duration time.Duration
	Origin   Origin
}

// keyState is the per-key-source state machine: which keys are currently
// held down (keyUp for a key not down is a no-op
// dispatch but must not desync the tracked set). Keys are tracked by their
// raw action value so a keyUp matches the keyDown that pressed it.
type keyState struct {
	pressed map[string]bool
}

// pointerState is the per-pointer-source state machine.
type pointerState struct {
	subtype        PointerSubtype
	x, y           float64
	pressedButtons map[int]bool
	// lastDown/lastDownX/lastDownY/clickCount implement the native
	// double/triple-click window: a pointerDown of any button within
	// clickWindow and clickRadius of the previous pointerDown's location
	// increments clickCount instead of resetting it to 1.
	lastDown   time.Time
	lastDownX  float64
	lastDownY  float64
	clickCount int
}

const (
	clickWindow = 500 * time.Millisecond
	clickRadius = 2.0 // CSS pixels
)

// cancelEntry is one reverse-order undo action recorded by a keyDown or
// pointerDown: releaseActions replays these newest-first so every held key
// and button is released in the opposite order it was pressed.
type cancelEntry struct {
	typ      SourceType
	subtype  PointerSubtype
	sourceID string
	action   Action
}

// InputState is one top-level browsing context's collection of source
// state machines plus its cancel list, one state machine per input source
// id.
type InputState struct {
	mu       sync.Mutex
	keys     map[string]*keyState
	pointers map[string]*pointerState
	cancel   []cancelEntry
}

func NewInputState() *InputState {
	return &InputState{
		keys:     make(map[string]*keyState),
		pointers: make(map[string]*pointerState),
	}
}

func (s *InputState) key(sourceID string) *keyState {
	k, ok := s.keys[sourceID]
	if !ok {
		k = &keyState{pressed: make(map[string]bool)}
		s.keys[sourceID] = k
	}
	return k
}

func (s *InputState) pointer(sourceID string, subtype PointerSubtype) *pointerState {
	p, ok := s.pointers[sourceID]
	if !ok {
		p = &pointerState{subtype: subtype, pressedButtons: make(map[int]bool)}
		s.pointers[sourceID] = p
	}
	return p
}

// modifiersLocked computes the CDP modifier mask from every key currently
// held across all of this state's key sources. Callers hold s.mu.
func (s *InputState) modifiersLocked() int {
	mods := 0
	for _, ks := range s.keys {
		for raw := range ks.pressed {
			if def, err := normalizeKey(raw); err == nil {
				mods |= modifierBit(def.key)
			}
		}
	}
	return mods
}

// buttonsMaskLocked computes the CDP "buttons" bitmask (left=1, right=2,
// middle=4) for a pointer source. Callers hold s.mu.
func buttonsMaskLocked(ps *pointerState) int {
	mask := 0
	for b := range ps.pressedButtons {
		switch b {
		case 0:
			mask |= 1
		case 1:
			mask |= 4
		case 2:
			mask |= 2
		}
	}
	return mask
}

// InputStates keys input state by top-level browsing context id, the same
// way NavigationTracker keys navigation state: two tabs driving concurrent
// performActions sequences hold independent pressed-key/button sets.
type InputStates struct {
	mu    sync.Mutex
	byCtx map[string]*InputState
}

func NewInputStates() *InputStates {
	return &InputStates{byCtx: make(map[string]*InputState)}
}

// Get returns (creating if needed) the input state for a top-level context.
func (m *InputStates) Get(topLevelID string) *InputState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byCtx[topLevelID]
	if !ok {
		st = NewInputState()
		m.byCtx[topLevelID] = st
	}
	return st
}

// Forget drops a context's input state after releaseActions has replayed
// its cancel list, or when the context itself is disposed.
func (m *InputStates) Forget(topLevelID string) {
	m.mu.Lock()
	delete(m.byCtx, topLevelID)
	m.mu.Unlock()
}

// ActionDispatcher replays a per-source tick matrix against a CDP target's
// Input domain, synchronizing ticks across sources (every source's action
// for tick N is issued before any source's action for tick N+1) per the
// WebDriver Actions model.
type ActionDispatcher struct {
	state  *InputState
	target *CdpTarget
}

func NewActionDispatcher(state *InputState, target *CdpTarget) *ActionDispatcher {
	return &ActionDispatcher{state: state, target: target}
}

// Dispatch runs ticks, where ticks[i][sourceID] is that source's action for
// tick i. Sources absent from a given tick are treated as a pause.
func (d *ActionDispatcher) Dispatch(ticks []map[string]sourceAction) error {
	for _, tick := range ticks {
		if err := d.dispatchTick(tick); err != nil {
			return err
		}
	}
	return nil
}

// dispatchTick runs one tick's worth of per-source actions: the tick
// duration is the longest Duration field among them, every source's action
// is issued concurrently, and the tick only completes once both that timer
// and every dispatch have finished.
func (d *ActionDispatcher) dispatchTick(tick map[string]sourceAction) error {
	var tickDuration time.Duration
	for _, sa := range tick {
		if sa.action.Duration > tickDuration {
			tickDuration = sa.action.Duration
		}
	}

	// The timer starts before the fan-out so the tick costs
	// max(dispatch time, tick duration), not their sum.
	timer := time.NewTimer(tickDuration)
	defer timer.Stop()

	done := make(chan error, len(tick))
	for sourceID, sa := range tick {
		sourceID, sa := sourceID, sa
		go func() { done <- d.dispatchOne(sourceID, sa) }()
	}

	var firstErr error
	for i := 0; i < len(tick); i++ {
		if err := <-done; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	<-timer.C

	return firstErr
}

// sourceAction pairs an Action with the source's declared type (and, for
// pointer sources, its subtype), since dispatch needs the type to pick the
// right CDP method.
type sourceAction struct {
	typ     SourceType
	subtype PointerSubtype
	action  Action
}

func (d *ActionDispatcher) dispatchOne(sourceID string, sa sourceAction) error {
	switch sa.typ {
	case SourceNone:
		return d.pause(sa.action)
	case SourceKey:
		return d.dispatchKey(sourceID, sa.action)
	case SourcePointer:
		return d.dispatchPointer(sourceID, sa.subtype, sa.action)
	case SourceWheel:
		return d.dispatchWheel(sourceID, sa.action)
	default:
		return bidierr.InvalidArgumentf("unknown input source type %q", sa.typ)
	}
}

func (d *ActionDispatcher) pause(a Action) error {
	if a.Duration > 0 {
		time.Sleep(a.Duration)
	}
	return nil
}

func (d *ActionDispatcher) dispatchKey(sourceID string, a Action) error {
	if a.Type == "pause" {
		return d.pause(a)
	}
	def, err := normalizeKey(a.Key)
	if err != nil {
		return err
	}

	d.state.mu.Lock()
	ks := d.state.key(sourceID)
	var cdpType string
	switch a.Type {
	case "keyDown":
		ks.pressed[a.Key] = true
		cdpType = "keyDown"
		d.state.cancel = append(d.state.cancel, cancelEntry{
			typ: SourceKey, sourceID: sourceID,
			action: Action{Type: "keyUp", Key: a.Key},
		})
	case "keyUp":
		if !ks.pressed[a.Key] {
			d.state.mu.Unlock()
			return nil
		}
		delete(ks.pressed, a.Key)
		cdpType = "keyUp"
	default:
		d.state.mu.Unlock()
		return bidierr.InvalidArgumentf("unknown key action %q", a.Type)
	}
	modifiers := d.state.modifiersLocked()
	d.state.mu.Unlock()

	params := cdp.DispatchKeyEventParams{
		Type:                  cdpType,
		Key:                   def.key,
		Code:                  def.code,
		WindowsVirtualKeyCode: def.keyCode,
		NativeVirtualKeyCode:  def.keyCode,
		Location:              def.location,
		Modifiers:             modifiers,
	}
	if isTextKey(def.key) {
		params.UnmodifiedText = def.key
		params.Text = def.key
		if modifiers&modShift != 0 {
			params.Text = shiftedKeyText(def.key)
		}
	}
	if modifiers&modMeta != 0 {
		params.Commands = metaCommands(strings.ToLower(a.Key))
	}

	if err := d.target.Call("Input.dispatchKeyEvent", params, nil); err != nil {
		return err
	}

	// Escape with no modifiers also cancels any in-flight drag, matching
	// native browser behavior for the key.
	if cdpType == "keyDown" && def.key == "Escape" && modifiers == 0 {
		return d.target.Call("Input.cancelDragging", cdp.CancelDraggingParams{}, nil)
	}
	return nil
}

func (d *ActionDispatcher) dispatchPointer(sourceID string, subtype PointerSubtype, a Action) error {
	switch a.Type {
	case "pause":
		return d.pause(a)
	case "pointerMove":
		return d.tweenPointerMove(sourceID, subtype, a)
	}

	d.state.mu.Lock()
	ps := d.state.pointer(sourceID, subtype)

	var cdpType string
	clickCount := 0
	switch a.Type {
	case "pointerDown":
		ps.pressedButtons[a.Button] = true
		cdpType = "mousePressed"
		now := time.Now()
		if now.Sub(ps.lastDown) <= clickWindow && dist(ps.lastDownX, ps.lastDownY, ps.x, ps.y) <= clickRadius {
			ps.clickCount++
		} else {
			ps.clickCount = 1
		}
		ps.lastDown, ps.lastDownX, ps.lastDownY = now, ps.x, ps.y
		clickCount = ps.clickCount
		d.state.cancel = append(d.state.cancel, cancelEntry{
			typ: SourcePointer, subtype: subtype, sourceID: sourceID,
			action: Action{Type: "pointerUp", Button: a.Button},
		})
	case "pointerUp":
		delete(ps.pressedButtons, a.Button)
		cdpType = "mouseReleased"
		clickCount = ps.clickCount
	default:
		d.state.mu.Unlock()
		return bidierr.InvalidArgumentf("unknown pointer action %q", a.Type)
	}
	x, y := ps.x, ps.y
	buttons := buttonsMaskLocked(ps)
	modifiers := d.state.modifiersLocked()
	d.state.mu.Unlock()

	if subtype == PointerTouch {
		return d.target.Call("Input.dispatchTouchEvent", cdp.DispatchTouchEventParams{
			Type:        touchCDPType(a.Type),
			TouchPoints: []cdp.TouchPoint{{X: x, Y: y}},
			Modifiers:   modifiers,
		}, nil)
	}
	params := cdp.DispatchMouseEventParams{
		Type:       cdpType,
		X:          x,
		Y:          y,
		Button:     mouseButtonName(a.Button),
		Buttons:    buttons,
		ClickCount: clickCount,
		Modifiers:  modifiers,
	}
	if subtype == PointerPen {
		params.PointerType = "pen"
	}
	return d.target.Call("Input.dispatchMouseEvent", params, nil)
}

// resolveTarget computes an action's absolute viewport coordinates from its
// origin frame: viewport coordinates pass through, pointer
// origin offsets from the source's current position, element origin offsets
// from the element's box-model center via CDP. A negative resulting
// coordinate fails with move-target-out-of-bounds.
func (d *ActionDispatcher) resolveTarget(curX, curY float64, a Action) (float64, float64, error) {
	var x, y float64
	switch a.Origin.Type {
	case OriginPointer:
		x, y = curX+a.X, curY+a.Y
	case OriginElement:
		cx, cy, err := d.elementCenter(a.Origin.ElementObjectID)
		if err != nil {
			return 0, 0, err
		}
		x, y = cx+a.X, cy+a.Y
	default: // viewport
		x, y = a.X, a.Y
	}
	if x < 0 || y < 0 {
		return 0, 0, bidierr.MoveTargetOutOfBoundsErr(x, y)
	}
	return x, y, nil
}

// elementCenter resolves an element's content-box center in viewport
// coordinates via DOM.getBoxModel. CDP's quads are already in the target's
// own viewport frame, which for an OOPIF is the iframe's target and so
// needs no extra frame offset.
func (d *ActionDispatcher) elementCenter(objectID string) (float64, float64, error) {
	if objectID == "" {
		return 0, 0, bidierr.New(bidierr.NoSuchElement, "element origin did not resolve to an element")
	}
	var result cdp.GetBoxModelResult
	if err := d.target.Call("DOM.getBoxModel", cdp.GetBoxModelParams{ObjectID: objectID}, &result); err != nil {
		return 0, 0, bidierr.Wrap(bidierr.NoSuchElement, err, "could not obtain element box model")
	}
	quad := result.Model.Content
	if len(quad) < 8 {
		return 0, 0, bidierr.New(bidierr.UnableToCaptureScreen, "bounding box could not be obtained")
	}
	cx := (quad[0] + quad[2] + quad[4] + quad[6]) / 4
	cy := (quad[1] + quad[3] + quad[5] + quad[7]) / 4
	return cx, cy, nil
}

// tweenPointerMove interpolates the pointer from its current position to
// the action's resolved target over its Duration, emitting an intermediate
// move each time the truncated integer coordinate changes so that listeners
// observe a path rather than a single jump. A zero
// duration moves directly to the target with a single event.
func (d *ActionDispatcher) tweenPointerMove(sourceID string, subtype PointerSubtype, a Action) error {
	d.state.mu.Lock()
	ps := d.state.pointer(sourceID, subtype)
	startX, startY := ps.x, ps.y
	d.state.mu.Unlock()

	targetX, targetY, err := d.resolveTarget(startX, startY, a)
	if err != nil {
		return err
	}

	steps := tweenSteps(a.Duration)
	lastIntX, lastIntY := int(startX), int(startY)

	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		x := startX + (targetX-startX)*frac
		y := startY + (targetY-startY)*frac
		final := i == steps
		intX, intY := int(x), int(y)
		if intX == lastIntX && intY == lastIntY && !final {
			continue
		}
		lastIntX, lastIntY = intX, intY

		d.state.mu.Lock()
		ps.x, ps.y = x, y
		buttons := buttonsMaskLocked(ps)
		modifiers := d.state.modifiersLocked()
		d.state.mu.Unlock()

		if err := d.dispatchMove(subtype, x, y, buttons, modifiers); err != nil {
			return err
		}
		if !final && steps > 1 {
			time.Sleep(a.Duration / time.Duration(steps))
		}
	}
	return nil
}

// tweenSteps picks how many intermediate frames to emit for a pointerMove of
// duration d, targeting roughly one frame every 10ms with at least two
// frames so a move always produces a visible intermediate position.
func tweenSteps(d time.Duration) int {
	const stepInterval = 10 * time.Millisecond
	if d <= 0 {
		return 1
	}
	steps := int(d / stepInterval)
	if steps < 2 {
		return 2
	}
	return steps
}

func (d *ActionDispatcher) dispatchMove(subtype PointerSubtype, x, y float64, buttons, modifiers int) error {
	if subtype == PointerTouch {
		return d.target.Call("Input.dispatchTouchEvent", cdp.DispatchTouchEventParams{
			Type:        "touchMove",
			TouchPoints: []cdp.TouchPoint{{X: x, Y: y}},
			Modifiers:   modifiers,
		}, nil)
	}
	params := cdp.DispatchMouseEventParams{
		Type:      "mouseMoved",
		X:         x,
		Y:         y,
		Buttons:   buttons,
		Modifiers: modifiers,
	}
	if subtype == PointerPen {
		params.PointerType = "pen"
	}
	return d.target.Call("Input.dispatchMouseEvent", params, nil)
}

func (d *ActionDispatcher) dispatchWheel(sourceID string, a Action) error {
	if a.Type == "pause" {
		return d.pause(a)
	}
	// A wheel source has no position of its own; "pointer" origin is
	// meaningless for it and rejected.
	if a.Origin.Type == OriginPointer {
		return bidierr.InvalidArgumentf("scroll does not support pointer origin")
	}

	var x, y float64
	switch a.Origin.Type {
	case OriginElement:
		cx, cy, err := d.elementCenter(a.Origin.ElementObjectID)
		if err != nil {
			return err
		}
		x, y = cx+a.X, cy+a.Y
	default:
		x, y = a.X, a.Y
	}
	if x < 0 || y < 0 {
		return bidierr.MoveTargetOutOfBoundsErr(x, y)
	}

	d.state.mu.Lock()
	modifiers := d.state.modifiersLocked()
	d.state.mu.Unlock()

	return d.target.Call("Input.dispatchMouseEvent", cdp.DispatchMouseEventParams{
		Type:      "mouseWheel",
		X:         x,
		Y:         y,
		DeltaX:    a.DeltaX,
		DeltaY:    a.DeltaY,
		Modifiers: modifiers,
	}, nil)
}

// ReleaseAll replays the cancel list in reverse order — a keyUp for every
// keyDown and a pointerUp for every pointerDown still outstanding — after
// emptying the cancel list; pointer positions and click-count history are
// left as they are (cmdInputReleaseActions then drops the whole state with
// InputStates.Forget). Dispatch errors are
// ignored: release is best-effort teardown and every entry must be
// attempted regardless of earlier failures.
func (d *ActionDispatcher) ReleaseAll() {
	d.state.mu.Lock()
	entries := d.state.cancel
	d.state.cancel = nil
	d.state.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		_ = d.dispatchOne(e.sourceID, sourceAction{typ: e.typ, subtype: e.subtype, action: e.action})
	}
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	// Chebyshev distance matches typical native double-click hit testing
	// closely enough for our purposes and avoids importing math for sqrt.
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

func mouseButtonName(button int) string {
	switch button {
	case 0:
		return "left"
	case 1:
		return "middle"
	case 2:
		return "right"
	default:
		return "none"
	}
}

func touchCDPType(actionType string) string {
	switch actionType {
	case "pointerDown":
		return "touchStart"
	case "pointerUp":
		return "touchEnd"
	case "pointerMove":
		return "touchMove"
	default:
		return "touchCancel"
	}
}
