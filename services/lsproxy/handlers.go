// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsproxy exposes the language server proxy over HTTP.
//
// Every operation takes workspace-relative paths and 0-indexed positions and
// returns them in the same form. Handlers are thin: binding and error
// mapping live here, all behavior lives in the translate and workspace
// packages.
package lsproxy

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/telemetry"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/translate"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/workspace"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// ServerStatus reports language server lifecycle. *lsp.Supervisor
// implements it.
type ServerStatus interface {
	Health(languages []string) map[string]bool
	Statuses() []lsp.Status
}

// Handlers contains the HTTP handlers for the proxy.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	translator *translate.Translator
	ws         *workspace.Workspace
	status     ServerStatus
	version    string
}

// HandlersOption configures Handlers.
type HandlersOption func(*Handlers)

// WithVersion overrides the version reported by the health endpoint.
func WithVersion(version string) HandlersOption {
	return func(h *Handlers) {
		if version != "" {
			h.version = version
		}
	}
}

// NewHandlers creates handlers over a translator and a status source.
func NewHandlers(translator *translate.Translator, status ServerStatus, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		translator: translator,
		ws:         translator.Workspace(),
		status:     status,
		version:    ServiceVersion,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleHealth handles GET /v1/system/health.
//
// Description:
//
//	Reports readiness per language that has files in the workspace.
//	Languages without files are omitted. Status is "degraded" while any
//	reported language is not ready.
//
// Response:
//
//	200 OK: HealthResponse
//	500 Internal Server Error: ErrorResponse (workspace could not be listed)
func (h *Handlers) HandleHealth(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleHealth"))

	langs, err := h.ws.DetectedLanguages(c.Request.Context())
	if err != nil {
		logger.Error("detecting languages failed", slog.String("error", err.Error()))
		h.fail(c, logger, err)
		return
	}

	health := h.status.Health(langs)
	status := StatusOK
	for _, ready := range health {
		if !ready {
			status = StatusDegraded
			break
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Version:   h.version,
		Languages: health,
	})
}

// HandleLanguages handles GET /v1/system/languages.
//
// Description:
//
//	Lists every configured language server with its command, extensions,
//	whether the command is installed, and its current lifecycle state.
//
// Response:
//
//	200 OK: LanguagesResponse
func (h *Handlers) HandleLanguages(c *gin.Context) {
	registry := h.ws.Registry()

	states := make(map[string]lsp.Status)
	for _, st := range h.status.Statuses() {
		states[st.Language] = st
	}

	resp := LanguagesResponse{Languages: []LanguageInfo{}}
	for _, lang := range registry.Languages() {
		cfg, ok := registry.Get(lang)
		if !ok {
			continue
		}
		info := LanguageInfo{
			Language:   lang,
			Command:    cfg.Command,
			Args:       cfg.Args,
			Extensions: cfg.Extensions,
			RootFiles:  cfg.RootFiles,
			Installed:  registry.IsInstalled(lang),
			State:      lsp.StateNotStarted,
		}
		if st, ok := states[lang]; ok {
			info.State = st.State
			info.Reason = st.Reason
			info.Restarts = st.Restarts
		}
		resp.Languages = append(resp.Languages, info)
	}

	c.JSON(http.StatusOK, resp)
}

// HandleListFiles handles GET /v1/workspace/list-files.
//
// Response:
//
//	200 OK: []string of workspace-relative paths, sorted
func (h *Handlers) HandleListFiles(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleListFiles"))

	files, err := h.ws.ListFiles(c.Request.Context())
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	c.JSON(http.StatusOK, files)
}

// HandleReadSourceCode handles POST /v1/workspace/read-source-code.
//
// Request Body:
//
//	ReadSourceCodeRequest
//
// Response:
//
//	200 OK: ReadSourceCodeResponse
//	400 Bad Request: ErrorResponse (unknown path, path outside workspace)
func (h *Handlers) HandleReadSourceCode(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleReadSourceCode"))

	var req ReadSourceCodeRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	text, err := h.ws.ReadSource(req.Path, req.Range)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, ReadSourceCodeResponse{SourceCode: text})
}

// HandleDefinitionsInFile handles GET /v1/symbol/definitions-in-file.
//
// Query Parameters:
//
//	file_path: workspace-relative path (required)
//
// Response:
//
//	200 OK: []model.Symbol of top-level definitions in file order
//	400 Bad Request: ErrorResponse
func (h *Handlers) HandleDefinitionsInFile(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleDefinitionsInFile"))

	path := c.Query("file_path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "file_path query parameter is required",
			Code:  CodeInvalidRequest,
		})
		return
	}

	symbols, err := h.translator.DefinitionsInFile(c.Request.Context(), path)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, symbols)
}

// HandleFindDefinition handles POST /v1/symbol/find-definition.
//
// Description:
//
//	Resolves the definition of the identifier at a position through the
//	language server for the file's language.
//
// Request Body:
//
//	translate.DefinitionRequest
//
// Response:
//
//	200 OK: translate.DefinitionResponse
//	400 Bad Request: ErrorResponse (validation)
//	500 Internal Server Error: ErrorResponse (upstream)
func (h *Handlers) HandleFindDefinition(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleFindDefinition"))

	var req translate.DefinitionRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	resp, err := h.translator.FindDefinition(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleFindReferences handles POST /v1/symbol/find-references.
//
// Request Body:
//
//	translate.ReferencesRequest
//
// Response:
//
//	200 OK: translate.ReferencesResponse
//	400 Bad Request: ErrorResponse (validation)
//	500 Internal Server Error: ErrorResponse (upstream)
func (h *Handlers) HandleFindReferences(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleFindReferences"))

	var req translate.ReferencesRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	resp, err := h.translator.FindReferences(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleFindIdentifier handles POST /v1/symbol/find-identifier.
//
// Description:
//
//	Finds identifiers by name in one file. With a position, returns the
//	identifier containing it, or else the nearest few by line then
//	character distance.
//
// Request Body:
//
//	translate.IdentifierRequest
//
// Response:
//
//	200 OK: translate.IdentifierResponse
//	400 Bad Request: ErrorResponse (no match, invalid position)
func (h *Handlers) HandleFindIdentifier(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleFindIdentifier"))

	var req translate.IdentifierRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	ids, err := h.translator.FindIdentifier(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, translate.IdentifierResponse{Identifiers: ids})
}

// HandleFindReferencedSymbols handles POST /v1/symbol/find-referenced-symbols.
//
// Description:
//
//	Classifies every identifier referenced inside the symbol at a position
//	as a workspace symbol, an external symbol, or not found. A failure to
//	resolve one reference never fails the request.
//
// Request Body:
//
//	translate.ReferencedSymbolsRequest
//
// Response:
//
//	200 OK: model.ClassifiedReferences
//	400 Bad Request: ErrorResponse (no symbol at position)
//	500 Internal Server Error: ErrorResponse (document sync failed)
func (h *Handlers) HandleFindReferencedSymbols(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleFindReferencedSymbols"))

	var req translate.ReferencedSymbolsRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	resp, err := h.translator.FindReferencedSymbols(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleFindReferencedDefinitions handles POST
// /v1/symbol/find-referenced-definitions.
//
// Description:
//
//	Lists the workspace symbols referenced from inside a range, ordered
//	by identifier position. References that resolve outside the
//	workspace or not at all are dropped.
//
// Request Body:
//
//	translate.ReferencedDefinitionsRequest
//
// Response:
//
//	200 OK: []model.Symbol
//	400 Bad Request: ErrorResponse (range inverted or outside the file)
//	500 Internal Server Error: ErrorResponse (document sync failed)
func (h *Handlers) HandleFindReferencedDefinitions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleFindReferencedDefinitions"))

	var req translate.ReferencedDefinitionsRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	symbols, err := h.translator.FindReferencedDefinitions(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, symbols)
}

// HandleCallHierarchy handles POST /v1/symbol/call-hierarchy.
//
// Request Body:
//
//	translate.CallHierarchyRequest
//
// Response:
//
//	200 OK: translate.CallHierarchyResponse
//	400 Bad Request: ErrorResponse (nothing callable at the position)
//	500 Internal Server Error: ErrorResponse (METHOD_NOT_SUPPORTED when
//	    the server has no call hierarchy)
func (h *Handlers) HandleCallHierarchy(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleCallHierarchy"))

	var req translate.CallHierarchyRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	resp, err := h.translator.CallHierarchy(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRename handles POST /v1/symbol/rename.
//
// Description:
//
//	Previews a rename. The edits are returned, never applied.
//
// Request Body:
//
//	translate.RenameRequest
//
// Response:
//
//	200 OK: translate.RenameResponse
//	400 Bad Request: ErrorResponse
//	500 Internal Server Error: ErrorResponse (upstream)
func (h *Handlers) HandleRename(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(),
		slog.With("request_id", requestID, "handler", "HandleRename"))

	var req translate.RenameRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	resp, err := h.translator.Rename(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func bindJSON(c *gin.Context, logger *slog.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.Debug("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  CodeInvalidRequest,
		})
		return false
	}
	return true
}

func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	if status < http.StatusInternalServerError {
		logger.Debug("request rejected", slog.String("code", code), slog.String("error", err.Error()))
	} else {
		logger.Warn("request failed", slog.String("code", code), slog.String("error", err.Error()))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// getOrCreateRequestID returns the X-Request-ID header or a new UUID and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
