package cdp

import "encoding/json"

// Session is a CDP target session bound to one sessionId, obtained via
// Target.attachedToTarget: a child CDP client keyed by session id. The
// browser-level Session (sessionID "") is the root.
type Session struct {
	client    *Client
	SessionID string
	TargetID  string
}

// Root returns a Session bound to the browser-level connection (no target
// session attached), used for Target.* domain calls that precede attachment.
func Root(c *Client) *Session {
	return &Session{client: c}
}

// Attached returns a Session bound to a specific CDP session id, as reported
// by Target.attachedToTarget.
func Attached(c *Client, sessionID, targetID string) *Session {
	return &Session{client: c, SessionID: sessionID, TargetID: targetID}
}

// Call issues a CDP command on this session and decodes the result.
func (s *Session) Call(method string, params any, result any) error {
	return s.client.Call(s.SessionID, method, params, result)
}

// On registers an event handler scoped to this session.
func (s *Session) On(method string, cb func(params json.RawMessage)) {
	s.client.On(s.SessionID, method, cb)
}

// Client returns the underlying physical connection, for callers that need
// to attach a new child session (e.g. the Target Manager handling
// Target.attachedToTarget) or register a root-level wildcard handler.
func (s *Session) Client() *Client { return s.client }
