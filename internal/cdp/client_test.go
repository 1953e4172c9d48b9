package cdp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
)

// fakeBrowser is a tiny CDP-shaped WebSocket peer used to exercise Client
// without a real browser, keeping the suite's preference for
// exercising its websocket plumbing against a local server in tests.
func fakeBrowser(t *testing.T, handle func(conn *websocket.Conn, msg wireMessage)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wireMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			handle(conn, msg)
		}
	}))
	return srv
}

func dialTest(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(wsURL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTrip(t *testing.T) {
	srv := fakeBrowser(t, func(conn *websocket.Conn, msg wireMessage) {
		if msg.Method != "Target.getTargets" {
			return
		}
		resp := wireMessage{ID: msg.ID, Result: json.RawMessage(`{"targetInfos":[{"targetId":"t1"}]}`)}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
	})
	defer srv.Close()

	c := dialTest(t, srv)

	var result struct {
		TargetInfos []TargetInfo `json:"targetInfos"`
	}
	if err := c.Call("", "Target.getTargets", map[string]any{}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := []TargetInfo{{TargetID: "t1"}}
	if diff := cmp.Diff(want, result.TargetInfos); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestCallReturnsCallError(t *testing.T) {
	srv := fakeBrowser(t, func(conn *websocket.Conn, msg wireMessage) {
		resp := wireMessage{ID: msg.ID, Error: &wireError{Code: SessionNotFoundCode, Message: "Session with given id not found."}}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
	})
	defer srv.Close()

	c := dialTest(t, srv)

	err := c.Call("deadsession", "Page.enable", map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsSessionNotFound(err) {
		t.Fatalf("IsSessionNotFound(%v) = false, want true", err)
	}
}

func TestEventDispatchBySessionAndWildcard(t *testing.T) {
	srv := fakeBrowser(t, func(conn *websocket.Conn, msg wireMessage) {})
	defer srv.Close()
	c := dialTest(t, srv)

	got := make(chan string, 1)
	c.On("sessA", "Page.loadEventFired", func(params json.RawMessage) {
		got <- "scoped"
	})
	anyGot := make(chan string, 1)
	c.OnAny(func(sessionID, method string, params json.RawMessage) {
		anyGot <- sessionID + ":" + method
	})

	// Simulate an inbound event directly against the read loop's dispatch path.
	c.dispatchEvent("sessA", "Page.loadEventFired", json.RawMessage(`{}`))

	select {
	case v := <-got:
		if v != "scoped" {
			t.Fatalf("got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("scoped handler never fired")
	}
	select {
	case v := <-anyGot:
		if v != "sessA:Page.loadEventFired" {
			t.Fatalf("got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("wildcard handler never fired")
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	srv := fakeBrowser(t, func(conn *websocket.Conn, msg wireMessage) {
		// Never respond — simulate a browser that disappears mid-call.
	})
	defer srv.Close()
	c := dialTest(t, srv)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Call("", "Page.navigate", map[string]any{"url": "about:blank"}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		if err != ErrSessionClosed {
			t.Fatalf("Call err = %v, want ErrSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending Call never unblocked after Close")
	}
}
