// Package mapper terminates a WebDriver BiDi session, drives a browser
// over CDP, and reconciles the two into a consistent world model. One
// mapper.Session exists per inbound client connection, each owning its
// browser instance.
package mapper

import "encoding/json"

// InboundCommand is the shape of every BiDi command the client sends:
// {id, method, params, channel?}.
type InboundCommand struct {
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Channel *string         `json:"goog:channel,omitempty"`
}

// OutboundMessage is the shape of every message the core emits: either a
// command result/error or an event. Only the relevant fields are set for a
// given message, matching the BiDi wire spec's discriminated envelopes.
type OutboundMessage struct {
	// Command response fields.
	ID     int    `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// Shared / event fields.
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Stacktrace any   `json:"stacktrace,omitempty"`
	Method    string `json:"method,omitempty"`
	Params    any    `json:"params,omitempty"`
	Channel   *string `json:"goog:channel,omitempty"`
}

// SuccessResponse builds the {id, type:"success", result} envelope.
func SuccessResponse(id int, result any) OutboundMessage {
	return OutboundMessage{ID: id, Type: "success", Result: result}
}

// ErrorResponse builds the {id, type:"error", error, message} envelope.
func ErrorResponse(id int, kind, message string) OutboundMessage {
	return OutboundMessage{ID: id, Type: "error", Error: kind, Message: message}
}

// EventMessage builds the {type:"event", method, params, channel?} envelope.
func EventMessage(method string, params any, channel *string) OutboundMessage {
	return OutboundMessage{Type: "event", Method: method, Params: params, Channel: channel}
}
