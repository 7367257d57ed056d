// Copyright 2025 Author(s) of Mane
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mane-project/mane/pkg/logging"
)

// maxLineSize bounds one newline-delimited message. Screenshot payloads are
// large, so the cap matches the HTTP body limit.
const maxLineSize = 10 * 1024 * 1024

// StdioServer frames newline-delimited JSON-RPC over a reader/writer pair,
// normally stdin/stdout. Requests are dispatched concurrently so a
// pipelining client can overlap tool calls; writes are serialized.
type StdioServer struct {
	handler *Handler
	writeMu sync.Mutex
}

// NewStdioServer wraps a handler for stdio serving.
func NewStdioServer(handler *Handler) *StdioServer {
	return &StdioServer{handler: handler}
}

// Serve reads messages until EOF or context cancellation. Each message is
// dispatched on its own goroutine; responses may be delivered out of order
// relative to requests, carrying the request id verbatim. A line exceeding
// maxLineSize is answered with an invalid-request error and drained; the
// session keeps serving.
//
// Parameters:
//   - ctx: Cancels the loop; in-flight calls observe the cancellation.
//   - r: The message source, normally stdin.
//   - w: The response sink, normally stdout.
//
// Returns:
//   - The read error, if the loop ended abnormally.
func (s *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	var wg sync.WaitGroup
	var readErr error
	for {
		if ctx.Err() != nil {
			break
		}
		line, tooLong, err := readLine(reader)
		switch {
		case tooLong:
			logging.GetLogger().Warn("Dropping oversized message", "limit", maxLineSize)
			s.write(w, NewErrorResponse(nil, CodeInvalidRequest, "Invalid Request: message exceeds size limit"))
		default:
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				raw := make([]byte, len(trimmed))
				copy(raw, trimmed)

				wg.Add(1)
				go func() {
					defer wg.Done()
					if resp := s.handler.Dispatch(ctx, raw); resp != nil {
						s.write(w, resp)
					}
				}()
			}
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
	}
	wg.Wait()

	if readErr != nil {
		return fmt.Errorf("stdio read failed: %w", readErr)
	}
	return nil
}

// readLine accumulates one newline-terminated line, enforcing maxLineSize
// on the payload. An oversized line is consumed to its end and reported as
// tooLong so the caller can answer that one message instead of ending the
// session.
func readLine(r *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			payload := len(line)
			if payload > 0 && line[payload-1] == '\n' {
				payload--
			}
			if payload > maxLineSize {
				line = nil
				tooLong = true
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, err
	}
}

// SendNotification writes a server-to-client notification envelope.
func (s *StdioServer) SendNotification(w io.Writer, method string, params any) error {
	payload, err := fastJSON.Marshal(NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	return s.writeRaw(w, payload)
}

func (s *StdioServer) write(w io.Writer, resp *Response) {
	payload, err := fastJSON.Marshal(resp)
	if err != nil {
		logging.GetLogger().Error("Failed to encode response", "error", err)
		fallback := NewErrorResponse(resp.ID, CodeInternalError, "failed to encode response")
		payload, _ = fastJSON.Marshal(fallback)
	}
	if err := s.writeRaw(w, payload); err != nil {
		logging.GetLogger().Error("Failed to write response", "error", err)
	}
}

func (s *StdioServer) writeRaw(w io.Writer, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n"))
	return err
}
