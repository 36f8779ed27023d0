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
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// HealthResponse is the response for GET /v1/system/health.
type HealthResponse struct {
	// Status is "ok" when every detected language is ready, otherwise
	// "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// Languages maps each language with files in the workspace to
	// whether its server is ready.
	Languages map[string]bool `json:"languages"`
}

// LanguageInfo describes one configured language server.
type LanguageInfo struct {
	Language   string    `json:"language"`
	Command    string    `json:"command"`
	Args       []string  `json:"args"`
	Extensions []string  `json:"extensions"`
	RootFiles  []string  `json:"root_files"`
	Installed  bool      `json:"installed"`
	State      lsp.State `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	Restarts   int       `json:"restarts"`
}

// LanguagesResponse is the response for GET /v1/system/languages.
type LanguagesResponse struct {
	Languages []LanguageInfo `json:"languages"`
}

// ReadSourceCodeRequest is the request for POST /v1/workspace/read-source-code.
type ReadSourceCodeRequest struct {
	Path string `json:"path" binding:"required"`

	// Range limits the read. It is clipped to the file.
	Range *model.Range `json:"range,omitempty"`
}

// ReadSourceCodeResponse is the response for POST /v1/workspace/read-source-code.
type ReadSourceCodeResponse struct {
	SourceCode string `json:"source_code"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable upper-case category, e.g. "PATH_NOT_FOUND".
	Code string `json:"code,omitempty"`
}
