// Package cdp is a minimal Chrome DevTools Protocol client: a WebSocket
// connection to the browser endpoint, command/response correlation by id,
// and a pub/sub event dispatcher keyed by CDP session id. It plays the
// role a BiDi client connection plays for the outbound
// WebSocket, adapted for CDP's flat method/params/id wire shape and its
// notion of per-target sessions multiplexed over one physical connection.
package cdp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// maxMessageSize caps WebSocket frames at 10MB, matching the server's
// allowance for large payloads (screenshots, full DOM snapshots).
const maxMessageSize = 10 * 1024 * 1024

const (
	readDeadline = 120 * time.Second
	pingInterval = 30 * time.Second
)

// wireMessage is the raw shape of every CDP frame, request or response.
// SessionId is empty for the browser-level session.
type wireMessage struct {
	ID        int             `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error conditions callers must be able to distinguish.
var (
	// ErrSessionClosed is returned when the underlying connection is closed
	// while a call is pending.
	ErrSessionClosed = fmt.Errorf("cdp: session closed")
)

// SessionNotFoundCode is the CDP error code for "session with given id not
// found".
const SessionNotFoundCode = -32001

// CallError wraps a CDP protocol-level error response.
type CallError struct {
	Code    int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// IsSessionNotFound reports whether err is the "session not found" CDP error.
func IsSessionNotFound(err error) bool {
	ce, ok := err.(*CallError)
	return ok && ce.Code == SessionNotFoundCode
}

// Client is a single physical WebSocket connection to a browser's CDP
// endpoint, shared by every CDP session (target) attached on it.
type Client struct {
	conn   *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}

	pending   sync.Map // map[int]chan *wireMessage
	nextID    atomic.Int64

	handlersMu sync.RWMutex
	// handlers maps sessionId -> method -> list of callbacks. The browser
	// session (no target attached yet) uses the empty string key.
	handlers map[string]map[string][]func(json.RawMessage)
	wildcard []func(sessionID, method string, params json.RawMessage)

	onClose []func(error)
}

// Dial connects to a CDP WebSocket endpoint (e.g. the
// webSocketDebuggerUrl reported by /json/version).
func Dial(url string) (*Client, error) {
	dialer := websocket.Dialer{
		ReadBufferSize:   maxMessageSize,
		WriteBufferSize:  maxMessageSize,
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("cdp: dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	c := &Client{
		conn:     conn,
		done:     make(chan struct{}),
		handlers: make(map[string]map[string][]func(json.RawMessage)),
	}
	go c.pingLoop()
	go c.readLoop()
	return c, nil
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.closed.Load() {
				return
			}
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.shutdown(ErrSessionClosed)
	for {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.ID != 0 {
			if chVal, ok := c.pending.LoadAndDelete(msg.ID); ok {
				chVal.(chan *wireMessage) <- &msg
			}
			continue
		}
		if msg.Method != "" {
			c.dispatchEvent(msg.SessionID, msg.Method, msg.Params)
		}
	}
}

func (c *Client) dispatchEvent(sessionID, method string, params json.RawMessage) {
	c.handlersMu.RLock()
	var cbs []func(json.RawMessage)
	if bySession, ok := c.handlers[sessionID]; ok {
		cbs = append(cbs, bySession[method]...)
	}
	wildcard := append([]func(string, string, json.RawMessage){}, c.wildcard...)
	c.handlersMu.RUnlock()

	for _, cb := range cbs {
		cb(params)
	}
	for _, cb := range wildcard {
		cb(sessionID, method, params)
	}
}

// On registers a callback for a CDP event on the given session id (empty
// string for the browser-level session).
func (c *Client) On(sessionID, method string, cb func(params json.RawMessage)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if c.handlers[sessionID] == nil {
		c.handlers[sessionID] = make(map[string][]func(json.RawMessage))
	}
	c.handlers[sessionID][method] = append(c.handlers[sessionID][method], cb)
}

// OnAny registers a wildcard callback invoked for every event on every
// session.
func (c *Client) OnAny(cb func(sessionID, method string, params json.RawMessage)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.wildcard = append(c.wildcard, cb)
}

// OnClose registers a callback invoked once when the connection goes away.
func (c *Client) OnClose(cb func(error)) {
	c.handlersMu.Lock()
	c.onClose = append(c.onClose, cb)
	c.handlersMu.Unlock()
}

func (c *Client) shutdown(cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	c.pending.Range(func(key, value any) bool {
		close(value.(chan *wireMessage))
		c.pending.Delete(key)
		return true
	})
	c.handlersMu.RLock()
	cbs := append([]func(error){}, c.onClose...)
	c.handlersMu.RUnlock()
	for _, cb := range cbs {
		cb(cause)
	}
}

// Call sends a CDP command on the given session id (empty for the browser
// session) and blocks for the result.
func (c *Client) Call(sessionID, method string, params any, result any) error {
	if c.closed.Load() {
		return ErrSessionClosed
	}

	id := int(c.nextID.Add(1))
	ch := make(chan *wireMessage, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	paramBytes, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("cdp: marshal params for %s: %w", method, err)
	}
	msg := wireMessage{ID: id, SessionID: sessionID, Method: method, Params: paramBytes}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("cdp: marshal call %s: %w", method, err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("cdp: send %s: %w", method, err)
	}

	resp, ok := <-ch
	if !ok || resp == nil {
		return ErrSessionClosed
	}
	if resp.Error != nil {
		return &CallError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}

// Close closes the underlying WebSocket connection.
func (c *Client) Close() error {
	c.shutdown(ErrSessionClosed)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// httpGETJSON is a small helper for the /json/version and /json/new HTTP
// endpoints Chrome exposes alongside its CDP WebSocket, used by callers that
// need to discover a webSocketDebuggerUrl before calling Dial.
func httpGETJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// VersionInfo mirrors the subset of /json/version this package needs.
type VersionInfo struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DiscoverWebSocketURL fetches /json/version from a CDP HTTP endpoint
// (e.g. http://localhost:9222) and returns the browser's WebSocket URL.
func DiscoverWebSocketURL(httpBase string) (string, error) {
	var info VersionInfo
	if err := httpGETJSON(httpBase+"/json/version", &info); err != nil {
		return "", fmt.Errorf("cdp: discover endpoint: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("cdp: %s/json/version did not report a websocket URL", httpBase)
	}
	return info.WebSocketDebuggerURL, nil
}
