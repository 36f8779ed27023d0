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
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// Sentinel errors for LSP operations. Each wraps the model taxonomy entry
// callers classify it under.
var (
	// ErrServerNotRunning indicates the server is not in a ready state.
	ErrServerNotRunning = fmt.Errorf("%w: lsp server not running", model.ErrProcessUnavailable)

	// ErrServerNotInstalled indicates the server binary was not found.
	ErrServerNotInstalled = fmt.Errorf("%w: lsp server not installed", model.ErrProcessUnavailable)

	// ErrInitializeFailed indicates the initialize handshake failed.
	ErrInitializeFailed = fmt.Errorf("%w: lsp initialize failed", model.ErrProcessUnavailable)

	// ErrServerCrashed indicates the transport closed under in-flight requests.
	ErrServerCrashed = fmt.Errorf("%w: lsp server connection closed", model.ErrProcessUnavailable)

	// ErrSupervisorClosed indicates the supervisor has been shut down.
	ErrSupervisorClosed = fmt.Errorf("%w: supervisor closed", model.ErrProcessUnavailable)

	// ErrRequestTimeout indicates a request exceeded its deadline.
	ErrRequestTimeout = fmt.Errorf("%w: lsp request timeout", model.ErrUpstreamTimeout)

	// ErrInvalidResponse indicates a response could not be parsed.
	ErrInvalidResponse = fmt.Errorf("%w: invalid lsp response", model.ErrUpstreamProtocol)

	// ErrMethodNotSupported indicates the server did not advertise, or
	// answered -32601 for, the requested method.
	ErrMethodNotSupported = fmt.Errorf("%w: method not supported by language server", model.ErrUpstreamProtocol)

	// ErrServerAlreadyStarted indicates Spawn was called twice on one Server.
	ErrServerAlreadyStarted = errors.New("server already started")
)

// LSPError represents an error returned by the language server via JSON-RPC.
//
// LSP error codes follow the JSON-RPC spec plus LSP-specific codes:
//   - -32700: Parse error
//   - -32601: Method not found
//   - -32603: Internal error
//   - -32002: Server not initialized
//   - -32800: Request cancelled
//
// An LSPError matches model.ErrUpstreamProtocol under errors.Is.
type LSPError struct {
	// Code is the JSON-RPC error code.
	Code int

	// Message is the error message from the server.
	Message string

	// Data contains optional additional data about the error.
	Data any
}

// Error implements the error interface.
func (e *LSPError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// Is reports whether target is the upstream protocol taxonomy entry.
func (e *LSPError) Is(target error) bool {
	return target == model.ErrUpstreamProtocol
}

// IsMethodNotFound returns true if the method is not supported by the server.
func (e *LSPError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

