// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

// MethodHandler defines the signature for a function that handles an MCP
// method call.
//
// Parameters:
//   - ctx: The context for the request.
//   - params: The raw params member of the request.
//
// Returns:
//   - The result value to embed in the response.
//   - An error; a *ResponseError travels to the wire verbatim.
type MethodHandler func(ctx context.Context, params jsoniter.RawMessage) (any, error)

// Router maps MCP method names to their handler functions.
type Router struct {
	handlers map[string]MethodHandler
}

// NewRouter creates and returns a new, empty Router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]MethodHandler),
	}
}

// Register associates a handler with a method name. An existing handler for
// the method is overwritten.
func (r *Router) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// GetHandler retrieves the handler for a method name.
//
// Returns:
//   - The handler function if found.
//   - Whether a handler was found.
func (r *Router) GetHandler(method string) (MethodHandler, bool) {
	handler, ok := r.handlers[method]
	return handler, ok
}
