package mapper

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vibium/mapper/internal/cdp"
)

// recordingBrowser is a minimal CDP-shaped WebSocket peer that answers every
// call with an empty success result and records each inbound method/params
// pair, mirroring the cdp package's own fakeBrowser test harness so
// ActionDispatcher can be exercised against a real *cdp.Session without a
// live browser.
type recordingBrowser struct {
	mu    sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	method string
	params json.RawMessage
}

func (b *recordingBrowser) record(method string, params json.RawMessage) {
	b.mu.Lock()
	b.calls = append(b.calls, recordedCall{method, params})
	b.mu.Unlock()
}

func (b *recordingBrowser) snapshot() []recordedCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedCall, len(b.calls))
	copy(out, b.calls)
	return out
}

func newDispatchTestTarget(t *testing.T) (*CdpTarget, *recordingBrowser) {
	t.Helper()
	rec := &recordingBrowser{}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				ID     int             `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params,omitempty"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			rec.record(msg.Method, msg.Params)
			resp, _ := json.Marshal(struct {
				ID     int `json:"id"`
				Result any `json:"result"`
			}{ID: msg.ID, Result: map[string]any{}})
			conn.WriteMessage(websocket.TextMessage, resp)
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := cdp.Dial(wsURL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	session := cdp.Attached(client, "sess1", "target1")
	return newCdpTarget(session, "ctx1"), rec
}

// TestDispatchTickDurationIsMaxNotSum: a tick's duration is
// the longest action.Duration among its sources, and every source dispatches
// in parallel rather than being serialized one after another.
func TestDispatchTickDurationIsMaxNotSum(t *testing.T) {
	target, _ := newDispatchTestTarget(t)
	d := NewActionDispatcher(NewInputState(), target)

	tick := map[string]sourceAction{
		"key1": {typ: SourceNone, action: Action{Type: "pause", Duration: 60 * time.Millisecond}},
		"key2": {typ: SourceNone, action: Action{Type: "pause", Duration: 10 * time.Millisecond}},
	}

	start := time.Now()
	if err := d.dispatchTick(tick); err != nil {
		t.Fatalf("dispatchTick: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 60*time.Millisecond {
		t.Fatalf("tick finished in %v, want at least the longest action's duration (60ms)", elapsed)
	}
	if elapsed > 110*time.Millisecond {
		t.Fatalf("tick took %v, want roughly max(durations) not sum(durations)", elapsed)
	}
}

// TestPointerMoveTweensIntermediatePositions covers the case: a
// pointerMove with a nonzero duration must emit more than one mouseMoved
// event, with strictly monotonic integer coordinates ending at the target.
func TestPointerMoveTweensIntermediatePositions(t *testing.T) {
	target, rec := newDispatchTestTarget(t)
	d := NewActionDispatcher(NewInputState(), target)

	tick := map[string]sourceAction{
		"mouse1": {
			typ:     SourcePointer,
			subtype: PointerMouse,
			action:  Action{Type: "pointerMove", X: 100, Y: 100, Duration: 40 * time.Millisecond},
		},
	}
	if err := d.dispatchTick(tick); err != nil {
		t.Fatalf("dispatchTick: %v", err)
	}

	var moves []struct{ X, Y float64 }
	for _, c := range rec.snapshot() {
		if c.method != "Input.dispatchMouseEvent" {
			continue
		}
		var p struct {
			Type string  `json:"type"`
			X    float64 `json:"x"`
			Y    float64 `json:"y"`
		}
		if err := json.Unmarshal(c.params, &p); err != nil {
			t.Fatalf("unmarshal dispatchMouseEvent params: %v", err)
		}
		if p.Type != "mouseMoved" {
			continue
		}
		moves = append(moves, struct{ X, Y float64 }{p.X, p.Y})
	}

	if len(moves) < 2 {
		t.Fatalf("got %d mouseMoved events, want at least 2 intermediate positions", len(moves))
	}
	last := moves[len(moves)-1]
	if int(last.X) != 100 || int(last.Y) != 100 {
		t.Fatalf("final move = (%v, %v), want (100, 100)", last.X, last.Y)
	}
	for i := 1; i < len(moves); i++ {
		if int(moves[i].X) < int(moves[i-1].X) || int(moves[i].Y) < int(moves[i-1].Y) {
			t.Fatalf("move %d (%v) is not monotonic after move %d (%v)", i, moves[i], i-1, moves[i-1])
		}
	}
}
