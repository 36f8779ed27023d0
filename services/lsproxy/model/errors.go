// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import "errors"

// Error taxonomy. Lower layers wrap these with fmt.Errorf("%w") so callers
// classify failures with errors.Is regardless of where they originated.
var (
	// ErrUnsupportedLanguage indicates no configured language claims the file.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrPathNotFound indicates the file does not exist or is not a regular file.
	ErrPathNotFound = errors.New("file not found")

	// ErrPathOutsideWorkspace indicates the path resolves outside the workspace root.
	ErrPathOutsideWorkspace = errors.New("path outside workspace")

	// ErrInvalidPosition indicates a position or range outside the file bounds.
	ErrInvalidPosition = errors.New("position out of range")

	// ErrUpstreamTimeout indicates a language server did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrUpstreamProtocol indicates a malformed or error-carrying LSP response.
	ErrUpstreamProtocol = errors.New("upstream protocol error")

	// ErrProcessUnavailable indicates the language server failed to start,
	// crashed, or exhausted its restarts.
	ErrProcessUnavailable = errors.New("language server unavailable")

	// ErrIdentifierNotFound indicates a named or positional identifier
	// search matched nothing.
	ErrIdentifierNotFound = errors.New("identifier not found")
)

// IsValidation reports whether err is a caller error, detected before any
// upstream call. Everything else is an upstream or process failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnsupportedLanguage) ||
		errors.Is(err, ErrPathNotFound) ||
		errors.Is(err, ErrPathOutsideWorkspace) ||
		errors.Is(err, ErrInvalidPosition) ||
		errors.Is(err, ErrIdentifierNotFound)
}
