// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// MaxContentLength bounds the body of one frame from a server.
const MaxContentLength = 64 << 20

// JSON-RPC error codes the proxy produces itself.
const (
	CodeMethodNotFound = -32601
)

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Request represents an outgoing JSON-RPC request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// ResponseError represents a JSON-RPC error.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is a decoded response to one of our requests.
type Response struct {
	ID     int64
	Result json.RawMessage
	Error  *ResponseError
}

// incoming is any frame the server can send: a response (id, no method),
// a server→client request (id and method) or a notification (method only).
type incoming struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

// reply answers a server→client request. Exactly one of Result and Error
// is set; Result is always serialized, even when null.
type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *ResponseError  `json:"error"`
}

// outcome is delivered to exactly one waiting caller.
type outcome struct {
	resp Response
	err  error
}

// =============================================================================
// PROTOCOL HANDLER
// =============================================================================

// Protocol multiplexes JSON-RPC calls over one stdio transport.
//
// Description:
//
//	Implements the LSP base protocol using Content-Length headers. Each
//	request gets a fresh id and a buffered wake channel in the pending
//	table. A single ReadLoop goroutine resolves pending calls by id, so
//	responses may arrive in any order. Writes are serialized by one mutex
//	so frames never interleave.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple goroutines can send requests
//	and notifications simultaneously.
type Protocol struct {
	reader    *bufio.Reader
	writer    io.Writer
	writeMu   sync.Mutex
	nextID    atomic.Int64
	pending   map[int64]chan outcome
	pendingMu sync.Mutex
	closed    atomic.Bool
	closeErr  error
	logger    *slog.Logger
}

// NewProtocol creates a new protocol handler.
//
// Inputs:
//
//	r - Reader for server messages (the server's stdout)
//	w - Writer for client messages (the server's stdin)
//
// Outputs:
//
//	*Protocol - The protocol handler. Call ReadLoop in a goroutine.
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReader(r)
	}
	return &Protocol{
		reader:  reader,
		writer:  w,
		pending: make(map[int64]chan outcome),
		logger:  slog.Default(),
	}
}

// SetLogger replaces the logger used for frame-level diagnostics.
// Must be called before ReadLoop starts.
func (p *Protocol) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger = l
	}
}

// SendRequest sends a request and waits for the response.
//
// Description:
//
//	Registers a pending call, writes the request frame and blocks until
//	the matching response arrives, the context ends, or the transport
//	closes. On context expiry the id is retired: a late response for it
//	is dropped by the reader.
//
// Inputs:
//
//	ctx - Context carrying the per-call deadline
//	method - The LSP method to invoke (e.g., "textDocument/definition")
//	params - Method parameters (will be JSON-marshaled)
//
// Outputs:
//
//	*Response - The server's successful response
//	error - ErrRequestTimeout on deadline expiry, ctx.Err() on caller
//	        cancellation, ErrServerCrashed when the transport closes,
//	        *LSPError when the server answers with an error
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) SendRequest(ctx context.Context, method string, params any) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	id := p.nextID.Add(1)
	ch := make(chan outcome, 1)

	p.pendingMu.Lock()
	if p.closed.Load() {
		err := p.closeErr
		p.pendingMu.Unlock()
		return nil, err
	}
	p.pending[id] = ch
	p.pendingMu.Unlock()

	if err := p.writeMessage(Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}); err != nil {
		p.retire(id)
		return nil, fmt.Errorf("%w: write request: %v", ErrServerCrashed, err)
	}

	select {
	case <-ctx.Done():
		p.retire(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, method)
		}
		return nil, ctx.Err()
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.resp.Error != nil {
			return nil, &LSPError{
				Code:    out.resp.Error.Code,
				Message: out.resp.Error.Message,
				Data:    out.resp.Error.Data,
			}
		}
		return &out.resp, nil
	}
}

// SendNotification sends a notification (no response expected).
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) SendNotification(method string, params any) error {
	if p.closed.Load() {
		return ErrServerCrashed
	}
	return p.writeMessage(Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params})
}

// Pending returns the number of in-flight calls.
func (p *Protocol) Pending() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

// retire removes a pending call so a late response is dropped.
func (p *Protocol) retire(id int64) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

// writeMessage marshals and writes a message with Content-Length header.
func (p *Protocol) writeMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(p.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := p.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadLoop reads messages from the server and dispatches them.
//
// Description:
//
//	Continuously reads frames until the transport fails. Responses resolve
//	pending calls; server requests get neutral answers; notifications are
//	logged at Debug. When the loop ends for any reason, every pending call
//	fails with ErrServerCrashed.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between frames
//
// Outputs:
//
//	error - ErrServerCrashed on EOF, the read error otherwise
//
// Thread Safety:
//
//	Must be called from a single goroutine.
func (p *Protocol) ReadLoop(ctx context.Context) error {
	if p.reader == nil {
		return fmt.Errorf("no reader configured")
	}

	for {
		select {
		case <-ctx.Done():
			p.Close(ErrServerCrashed)
			return ctx.Err()
		default:
		}

		msg, err := p.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				p.Close(ErrServerCrashed)
				return ErrServerCrashed
			}
			p.Close(fmt.Errorf("%w: %v", ErrServerCrashed, err))
			return fmt.Errorf("read: %w", err)
		}

		p.handleMessage(msg)
	}
}

// readMessage reads a single message from the server.
func (p *Protocol) readMessage() (json.RawMessage, error) {
	contentLength := -1

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		// Empty line marks end of headers
		if line == "" {
			if contentLength < 0 {
				continue
			}
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length value %q: %w", value, err)
			}
			if n < 0 {
				return nil, fmt.Errorf("negative Content-Length: %d", n)
			}
			if n > MaxContentLength {
				return nil, fmt.Errorf("%w: Content-Length %d exceeds %d", ErrInvalidResponse, n, MaxContentLength)
			}
			contentLength = n
		}
		// Other headers (Content-Type) are ignored.
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// handleMessage dispatches a received frame.
func (p *Protocol) handleMessage(msg json.RawMessage) {
	var in incoming
	if err := json.Unmarshal(msg, &in); err != nil {
		p.logger.Debug("dropping undecodable frame", slog.String("error", err.Error()))
		return
	}

	hasID := len(in.ID) > 0 && !bytes.Equal(in.ID, []byte("null"))

	switch {
	case in.Method != "" && hasID:
		p.answerServerRequest(in)
	case in.Method != "":
		p.logger.Debug("lsp notification",
			slog.String("method", in.Method),
			slog.Int("params_bytes", len(in.Params)),
		)
	case hasID:
		p.deliver(in)
	}
}

// deliver resolves the pending call for a response frame.
func (p *Protocol) deliver(in incoming) {
	id, err := strconv.ParseInt(strings.Trim(string(in.ID), `"`), 10, 64)
	if err != nil {
		p.logger.Debug("dropping response with foreign id", slog.String("id", string(in.ID)))
		return
	}

	p.pendingMu.Lock()
	ch, ok := p.pending[id]
	delete(p.pending, id)
	p.pendingMu.Unlock()

	if !ok {
		p.logger.Debug("dropping late response", slog.Int64("id", id))
		return
	}

	result := in.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	ch <- outcome{resp: Response{ID: id, Result: result, Error: in.Error}}
}

// answerServerRequest replies to a server→client request with a neutral
// result so servers waiting on the client never block.
func (p *Protocol) answerServerRequest(in incoming) {
	var result any
	switch in.Method {
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(in.Params, &params)
		result = make([]any, len(params.Items))
	case "window/workDoneProgress/create",
		"client/registerCapability",
		"client/unregisterCapability",
		"window/showMessageRequest",
		"workspace/codeLens/refresh",
		"workspace/semanticTokens/refresh",
		"workspace/inlayHint/refresh",
		"workspace/diagnostic/refresh":
		result = nil
	case "workspace/applyEdit":
		result = map[string]any{"applied": false}
	default:
		p.logger.Debug("unsupported server request", slog.String("method", in.Method))
		_ = p.writeMessage(errorReply{
			JSONRPC: JSONRPCVersion,
			ID:      in.ID,
			Error:   &ResponseError{Code: CodeMethodNotFound, Message: "method not supported by client: " + in.Method},
		})
		return
	}

	p.logger.Debug("answering server request", slog.String("method", in.Method))
	if err := p.writeMessage(reply{JSONRPC: JSONRPCVersion, ID: in.ID, Result: result}); err != nil {
		p.logger.Debug("failed to answer server request",
			slog.String("method", in.Method),
			slog.String("error", err.Error()),
		)
	}
}

// Close marks the protocol as closed and fails every pending call.
//
// Description:
//
//	Later sends fail with err. Every waiting caller receives err. Does
//	not close the underlying reader or writer. Only the first call's
//	error is kept.
//
// Inputs:
//
//	err - The error pending and future calls fail with. Nil means
//	      ErrServerCrashed.
//
// Thread Safety:
//
//	Safe for concurrent use. Idempotent.
func (p *Protocol) Close(err error) {
	if err == nil {
		err = ErrServerCrashed
	}

	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	if p.closed.Load() {
		return
	}
	p.closeErr = err
	p.closed.Store(true)

	for id, ch := range p.pending {
		ch <- outcome{err: err}
		delete(p.pending, id)
	}
}
