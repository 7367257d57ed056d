// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON-RPC 2.0 error codes used on the MCP surface.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeNotInitialized is the server-error code returned for tool methods
	// called before initialize.
	CodeNotInitialized = -32099
)

// Request is an incoming JSON-RPC 2.0 message. A missing ID marks a
// notification.
type Request struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsoniter.RawMessage `json:"id,omitempty"`
	Method  string              `json:"method"`
	Params  jsoniter.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// must not receive a response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is an outgoing JSON-RPC 2.0 message. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsoniter.RawMessage `json:"id"`
	Result  any                 `json:"result,omitempty"`
	Error   *ResponseError      `json:"error,omitempty"`
}

// ResponseError is the error member of a JSON-RPC 2.0 response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface so an already-shaped protocol error
// can travel through handler returns verbatim.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Notification is a server-to-client message without an id. The handler
// provides the constructor but never sends spontaneously.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification builds a JSON-RPC 2.0 notification envelope.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: "2.0", Method: method, Params: params}
}

// NewResultResponse builds a success response echoing the request id
// verbatim.
func NewResultResponse(id jsoniter.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

// NewErrorResponse builds an error response echoing the request id verbatim.
func NewErrorResponse(id jsoniter.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error:   &ResponseError{Code: code, Message: message},
	}
}

// normalizeID maps an absent id to an explicit JSON null so the response
// envelope always carries the id member.
func normalizeID(id jsoniter.RawMessage) jsoniter.RawMessage {
	if len(id) == 0 {
		return jsoniter.RawMessage("null")
	}
	return id
}

// validIDShape reports whether a present id is a string, number, or null.
// Other shapes (objects, arrays, booleans) make the request invalid.
func validIDShape(id jsoniter.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	var decoded any
	if err := fastJSON.Unmarshal(id, &decoded); err != nil {
		return false
	}
	switch decoded.(type) {
	case nil, string, float64:
		return true
	default:
		return false
	}
}

// ParseRequest decodes one JSON-RPC message and enforces the envelope
// rules. Unparseable bytes map to −32700 with id null; a wrong jsonrpc
// version, missing method, or malformed id map to −32600.
//
// Parameters:
//   - raw: One newline-delimited message.
//
// Returns:
//   - The decoded request.
//   - An error response to send instead, when the envelope is invalid.
func ParseRequest(raw []byte) (*Request, *Response) {
	var req Request
	if err := fastJSON.Unmarshal(raw, &req); err != nil {
		return nil, NewErrorResponse(nil, CodeParseError, "Parse error")
	}
	if !validIDShape(req.ID) {
		return nil, NewErrorResponse(nil, CodeInvalidRequest, "Invalid request: id must be a string, number, or null")
	}
	if req.JSONRPC != "2.0" {
		return nil, NewErrorResponse(req.ID, CodeInvalidRequest, "Invalid request: jsonrpc must be \"2.0\"")
	}
	if req.Method == "" {
		return nil, NewErrorResponse(req.ID, CodeInvalidRequest, "Invalid request: method is required")
	}
	return &req, nil
}
