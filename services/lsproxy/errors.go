// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsproxy

import (
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/ast"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/translate"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeUnsupportedLanguage  = "UNSUPPORTED_LANGUAGE"
	CodePathNotFound         = "PATH_NOT_FOUND"
	CodePathOutsideWorkspace = "PATH_OUTSIDE_WORKSPACE"
	CodeInvalidPosition      = "INVALID_POSITION"
	CodeIdentifierNotFound   = "IDENTIFIER_NOT_FOUND"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUpstreamTimeout      = "UPSTREAM_TIMEOUT"
	CodeUpstreamProtocol     = "UPSTREAM_PROTOCOL_ERROR"
	CodeMethodNotSupported   = "METHOD_NOT_SUPPORTED"
	CodeProcessUnavailable   = "PROCESS_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

// errorStatus maps an operation error to its HTTP status and code.
// Validation failures are 400; upstream and process failures are 500.
func errorStatus(err error) (int, string) {
	code := errorCode(err)
	if model.IsValidation(err) || code == CodeInvalidRequest {
		return http.StatusBadRequest, code
	}
	return http.StatusInternalServerError, code
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrUnsupportedLanguage):
		return CodeUnsupportedLanguage
	case errors.Is(err, model.ErrPathOutsideWorkspace):
		return CodePathOutsideWorkspace
	case errors.Is(err, model.ErrPathNotFound):
		return CodePathNotFound
	case errors.Is(err, model.ErrInvalidPosition):
		return CodeInvalidPosition
	case errors.Is(err, model.ErrIdentifierNotFound):
		return CodeIdentifierNotFound
	case errors.Is(err, translate.ErrInvalidArgument),
		errors.Is(err, ast.ErrFileTooLarge),
		errors.Is(err, ast.ErrInvalidContent):
		return CodeInvalidRequest
	case errors.Is(err, model.ErrUpstreamTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return CodeUpstreamTimeout
	case errors.Is(err, lsp.ErrMethodNotSupported):
		return CodeMethodNotSupported
	case errors.Is(err, model.ErrUpstreamProtocol):
		return CodeUpstreamProtocol
	case errors.Is(err, model.ErrProcessUnavailable):
		return CodeProcessUnavailable
	default:
		return CodeInternal
	}
}

// ErrorCode returns the stable category for err, as used in
// ErrorResponse.Code.
func ErrorCode(err error) string {
	return errorCode(err)
}
