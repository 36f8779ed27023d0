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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/ast"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/translate"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/workspace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// FAKES
// =============================================================================

// stubUpstream answers requests keyed by "method@line:char".
type stubUpstream struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     int
}

func newStubUpstream() *stubUpstream {
	return &stubUpstream{responses: make(map[string]string), errs: make(map[string]error)}
}

func (s *stubUpstream) Request(_ context.Context, _ string, method string, params any) (json.RawMessage, error) {
	var p lsp.Position
	switch v := params.(type) {
	case lsp.TextDocumentPositionParams:
		p = v.Position
	case lsp.ReferenceParams:
		p = v.Position
	case lsp.RenameParams:
		p = v.Position
	case lsp.CallHierarchyCallsParams:
		p = v.Item.SelectionRange.Start
	}
	key := method + "@" + p.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	if raw, ok := s.responses[key]; ok {
		return json.RawMessage(raw), nil
	}
	return json.RawMessage("null"), nil
}

func (s *stubUpstream) SyncDocument(context.Context, string, string, []byte) error {
	return nil
}

// stubStatus reports readiness the way the Supervisor does: one entry per
// requested language.
type stubStatus struct {
	ready    map[string]bool
	statuses []lsp.Status
}

func (s *stubStatus) Health(languages []string) map[string]bool {
	out := make(map[string]bool, len(languages))
	for _, lang := range languages {
		out[lang] = s.ready[lang]
	}
	return out
}

func (s *stubStatus) Statuses() []lsp.Status {
	return s.statuses
}

// =============================================================================
// FIXTURE
// =============================================================================

var handlerFiles = map[string]string{
	"main.py": strings.Join([]string{
		"from graph import AStarGraph",
		"",
		"",
		"def run():",
		"    graph = AStarGraph()",
		"    print(len(graph.edges()))",
		"",
	}, "\n"),
	"graph.py": strings.Join([]string{
		"class AStarGraph:",
		"    def edges(self):",
		"        return []",
		"",
	}, "\n"),
	"README.md": "# demo\n",
}

type testServer struct {
	router   *gin.Engine
	ws       *workspace.Workspace
	upstream *stubUpstream
	status   *stubStatus
}

func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	for rel, content := range handlerFiles {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	ws, err := workspace.New(root, lsp.NewConfigRegistry(), config.DefaultExcludes)
	require.NoError(t, err)

	up := newStubUpstream()
	status := &stubStatus{ready: map[string]bool{"python": true, "go": false}}
	handlers := NewHandlers(translate.New(ws, up, ast.NewExtractor()), status, WithVersion("9.9.9"))

	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	return &testServer{router: router, ws: ws, upstream: up, status: status}
}

func (ts *testServer) uri(rel string) string {
	return lsp.PathToURI(filepath.Join(ts.ws.Root(), rel))
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func location(uri string, line, start, end int) string {
	return fmt.Sprintf(`{"uri":%q,"range":{"start":{"line":%d,"character":%d},"end":{"line":%d,"character":%d}}}`,
		uri, line, start, line, end)
}

func filePos(path string, line, char int) model.FilePosition {
	return model.FilePosition{Path: path, Position: model.Position{Line: line, Character: char}}
}

// =============================================================================
// SYSTEM
// =============================================================================

func TestHandlers_HandleHealth(t *testing.T) {
	ts := setupTestRouter(t)

	w := ts.do(t, http.MethodGet, "/v1/system/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "9.9.9", resp.Version)
	assert.Equal(t, map[string]bool{"python": true}, resp.Languages)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandlers_HandleHealth_OmitsLanguagesWithoutFiles(t *testing.T) {
	ts := setupTestRouter(t)

	w := ts.do(t, http.MethodGet, "/v1/system/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Contains(t, resp.Languages, "python")
	assert.NotContains(t, resp.Languages, "go")
	assert.NotContains(t, resp.Languages, "typescript")
}

func TestHandlers_HandleHealth_Degraded(t *testing.T) {
	ts := setupTestRouter(t)
	ts.status.ready["python"] = false

	w := ts.do(t, http.MethodGet, "/v1/system/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, map[string]bool{"python": false}, resp.Languages)
}

func TestHandlers_HandleHealth_RequestIDEchoed(t *testing.T) {
	ts := setupTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/system/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestHandlers_HandleLanguages(t *testing.T) {
	ts := setupTestRouter(t)
	ts.status.statuses = []lsp.Status{
		{Language: "python", State: lsp.StateReady},
		{Language: "go", State: lsp.StateDegraded, Reason: "3 consecutive timeouts", Restarts: 1},
	}

	w := ts.do(t, http.MethodGet, "/v1/system/languages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[LanguagesResponse](t, w)
	byLang := make(map[string]LanguageInfo)
	for _, info := range resp.Languages {
		byLang[info.Language] = info
	}

	require.Contains(t, byLang, "python")
	assert.Equal(t, lsp.StateReady, byLang["python"].State)
	assert.Contains(t, byLang["python"].Extensions, ".py")

	require.Contains(t, byLang, "go")
	assert.Equal(t, lsp.StateDegraded, byLang["go"].State)
	assert.Equal(t, 1, byLang["go"].Restarts)

	require.Contains(t, byLang, "rust")
	assert.Equal(t, lsp.StateNotStarted, byLang["rust"].State)
}

// =============================================================================
// WORKSPACE
// =============================================================================

func TestHandlers_HandleListFiles(t *testing.T) {
	ts := setupTestRouter(t)

	w := ts.do(t, http.MethodGet, "/v1/workspace/list-files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"graph.py", "main.py"}, decode[[]string](t, w))
}

func TestHandlers_HandleReadSourceCode(t *testing.T) {
	ts := setupTestRouter(t)

	t.Run("whole file", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/workspace/read-source-code", ReadSourceCodeRequest{Path: "graph.py"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, handlerFiles["graph.py"], decode[ReadSourceCodeResponse](t, w).SourceCode)
	})

	t.Run("range", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/workspace/read-source-code", ReadSourceCodeRequest{
			Path:  "graph.py",
			Range: &model.Range{Start: model.Position{Line: 0, Character: 6}, End: model.Position{Line: 0, Character: 16}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "AStarGraph", decode[ReadSourceCodeResponse](t, w).SourceCode)
	})

	t.Run("missing path field", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/workspace/read-source-code", `{}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
	})

	t.Run("outside workspace", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/workspace/read-source-code", ReadSourceCodeRequest{Path: "../etc/passwd"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodePathOutsideWorkspace, decode[ErrorResponse](t, w).Code)
	})
}

// =============================================================================
// SYMBOL
// =============================================================================

func TestHandlers_HandleDefinitionsInFile(t *testing.T) {
	ts := setupTestRouter(t)

	t.Run("symbols", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/symbol/definitions-in-file?file_path=graph.py", nil)
		require.Equal(t, http.StatusOK, w.Code)
		syms := decode[[]model.Symbol](t, w)
		require.Len(t, syms, 1)
		assert.Equal(t, "AStarGraph", syms[0].Name)
		assert.Equal(t, filePos("graph.py", 0, 6), syms[0].IdentifierPosition)
	})

	t.Run("missing query", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/symbol/definitions-in-file", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
	})

	t.Run("unsupported language", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/symbol/definitions-in-file?file_path=README.md", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeUnsupportedLanguage, decode[ErrorResponse](t, w).Code)
	})

	t.Run("unknown file", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/symbol/definitions-in-file?file_path=nope.py", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodePathNotFound, decode[ErrorResponse](t, w).Code)
	})
}

func TestHandlers_HandleFindDefinition(t *testing.T) {
	ts := setupTestRouter(t)
	ts.upstream.responses[translate.MethodDefinition+"@4:12"] = "[" + location(ts.uri("graph.py"), 0, 6, 16) + "]"

	t.Run("resolves", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-definition", translate.DefinitionRequest{
			Position:          filePos("main.py", 4, 12),
			IncludeSourceCode: true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[translate.DefinitionResponse](t, w)
		assert.Equal(t, []model.FilePosition{filePos("graph.py", 0, 6)}, resp.Definitions)
		assert.Equal(t, "AStarGraph", resp.SelectedIdentifier.Name)
		require.Len(t, resp.SourceCodeContext, 1)
		assert.Contains(t, resp.SourceCodeContext[0].SourceCode, "class AStarGraph")
	})

	t.Run("invalid position", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-definition", translate.DefinitionRequest{
			Position: filePos("main.py", 99, 0),
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidPosition, decode[ErrorResponse](t, w).Code)
	})

	t.Run("upstream timeout", func(t *testing.T) {
		ts.upstream.errs[translate.MethodDefinition+"@5:10"] = lsp.ErrRequestTimeout
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-definition", translate.DefinitionRequest{
			Position: filePos("main.py", 5, 10),
		})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, CodeUpstreamTimeout, decode[ErrorResponse](t, w).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-definition", `{"position":`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
	})
}

func TestHandlers_HandleFindReferences(t *testing.T) {
	ts := setupTestRouter(t)
	ts.upstream.responses[translate.MethodReferences+"@0:6"] = "[" +
		location(ts.uri("main.py"), 4, 12, 22) + "," +
		location(ts.uri("graph.py"), 0, 6, 16) + "," +
		location(ts.uri("main.py"), 0, 18, 28) + "]"

	t.Run("sorted references", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-references", translate.ReferencesRequest{
			IdentifierPosition: filePos("graph.py", 0, 6),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[translate.ReferencesResponse](t, w)
		assert.Equal(t, []model.FilePosition{
			filePos("graph.py", 0, 6),
			filePos("main.py", 0, 18),
			filePos("main.py", 4, 12),
		}, resp.References)
		assert.Empty(t, resp.Context)
	})

	t.Run("negative context lines", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-references",
			`{"identifier_position":{"path":"graph.py","position":{"line":0,"character":6}},"include_code_context_lines":-1}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
	})
}

func TestHandlers_HandleFindIdentifier(t *testing.T) {
	ts := setupTestRouter(t)

	t.Run("found", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-identifier", translate.IdentifierRequest{
			Path: "main.py",
			Name: "AStarGraph",
		})
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[translate.IdentifierResponse](t, w)
		require.Len(t, resp.Identifiers, 2)
		assert.Equal(t, 0, resp.Identifiers[0].Range.Start.Line)
		assert.Equal(t, 4, resp.Identifiers[1].Range.Start.Line)
	})

	t.Run("not found", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-identifier", translate.IdentifierRequest{
			Path: "main.py",
			Name: "Missing",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeIdentifierNotFound, decode[ErrorResponse](t, w).Code)
	})
}

func TestHandlers_HandleFindReferencedSymbols(t *testing.T) {
	ts := setupTestRouter(t)
	ts.upstream.responses[translate.MethodDefinition+"@4:12"] = "[" + location(ts.uri("graph.py"), 0, 6, 16) + "]"
	ts.upstream.errs[translate.MethodDefinition+"@5:20"] = lsp.ErrRequestTimeout

	w := ts.do(t, http.MethodPost, "/v1/symbol/find-referenced-symbols", translate.ReferencedSymbolsRequest{
		IdentifierPosition: filePos("main.py", 3, 4),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[model.ClassifiedReferences](t, w)
	require.Len(t, resp.WorkspaceSymbols, 1)
	assert.Equal(t, "AStarGraph", resp.WorkspaceSymbols[0].Reference.Name)
	assert.Len(t, resp.ExternalSymbols, 2)
	require.Len(t, resp.NotFound, 1)
	assert.Equal(t, "edges", resp.NotFound[0].Name)
}

func TestHandlers_HandleFindReferencedDefinitions(t *testing.T) {
	ts := setupTestRouter(t)
	ts.upstream.responses[translate.MethodDefinition+"@4:12"] = "[" + location(ts.uri("graph.py"), 0, 6, 16) + "]"

	t.Run("symbols in range", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-referenced-definitions",
			`{"range":{"path":"main.py","start":{"line":4,"character":0},"end":{"line":5,"character":29}}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		syms := decode[[]model.Symbol](t, w)
		require.Len(t, syms, 1)
		assert.Equal(t, "AStarGraph", syms[0].Name)
		assert.Equal(t, filePos("graph.py", 0, 6), syms[0].IdentifierPosition)
	})

	t.Run("inverted range", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/find-referenced-definitions",
			`{"range":{"path":"main.py","start":{"line":5,"character":0},"end":{"line":4,"character":0}}}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidPosition, decode[ErrorResponse](t, w).Code)
	})
}

func TestHandlers_HandleCallHierarchy(t *testing.T) {
	ts := setupTestRouter(t)
	item := func(name, rel string, line, start, end int) string {
		return fmt.Sprintf(`{"name":%q,"kind":12,"uri":%q,`+
			`"range":{"start":{"line":%d,"character":0},"end":{"line":%d,"character":0}},`+
			`"selectionRange":{"start":{"line":%d,"character":%d},"end":{"line":%d,"character":%d}}}`,
			name, ts.uri(rel), line, line+2, line, start, line, end)
	}
	ts.upstream.responses[translate.MethodPrepareCallHierarchy+"@3:4"] = "[" + item("run", "main.py", 3, 4, 7) + "]"
	ts.upstream.responses[translate.MethodOutgoingCalls+"@3:4"] = `[{"to":` + item("AStarGraph", "graph.py", 0, 6, 16) +
		`,"fromRanges":[{"start":{"line":4,"character":12},"end":{"line":4,"character":22}}]}]`

	t.Run("outgoing", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/call-hierarchy", translate.CallHierarchyRequest{
			IdentifierPosition: filePos("main.py", 3, 4),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[translate.CallHierarchyResponse](t, w)
		assert.Equal(t, "run", resp.SelectedIdentifier.Name)
		require.Len(t, resp.Items, 1)
		assert.Empty(t, resp.Items[0].IncomingCalls)
		require.Len(t, resp.Items[0].OutgoingCalls, 1)
		call := resp.Items[0].OutgoingCalls[0]
		assert.Equal(t, "AStarGraph", call.Target.Name)
		assert.Equal(t, "graph.py", call.Target.Range.Path)
		assert.Equal(t, []model.FilePosition{filePos("main.py", 4, 12)}, call.CallSites)
	})

	t.Run("server without call hierarchy", func(t *testing.T) {
		ts.upstream.errs[translate.MethodPrepareCallHierarchy+"@0:6"] = fmt.Errorf("%w: python", lsp.ErrMethodNotSupported)

		w := ts.do(t, http.MethodPost, "/v1/symbol/call-hierarchy", translate.CallHierarchyRequest{
			IdentifierPosition: filePos("graph.py", 0, 6),
		})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, CodeMethodNotSupported, decode[ErrorResponse](t, w).Code)
	})
}

func TestHandlers_HandleRename(t *testing.T) {
	ts := setupTestRouter(t)
	ts.upstream.responses[translate.MethodRename+"@0:6"] = fmt.Sprintf(`{"changes":{%q:[`+
		`{"range":{"start":{"line":4,"character":12},"end":{"line":4,"character":22}},"newText":"Graph"},`+
		`{"range":{"start":{"line":0,"character":18},"end":{"line":0,"character":28}},"newText":"Graph"}],`+
		`%q:[{"range":{"start":{"line":0,"character":6},"end":{"line":0,"character":16}},"newText":"Graph"}]}}`,
		ts.uri("main.py"), ts.uri("graph.py"))

	t.Run("preview", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/rename", translate.RenameRequest{
			Position: filePos("graph.py", 0, 6),
			NewName:  "Graph",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[translate.RenameResponse](t, w)
		require.Len(t, resp.Edits, 3)
		assert.Equal(t, "graph.py", resp.Edits[0].Range.Path)
		assert.Equal(t, []translate.FileEditSummary{{Path: "graph.py", Edits: 1}, {Path: "main.py", Edits: 2}}, resp.Files)

		data, err := os.ReadFile(filepath.Join(ts.ws.Root(), "graph.py"))
		require.NoError(t, err)
		assert.Equal(t, handlerFiles["graph.py"], string(data))
	})

	t.Run("missing new name", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/symbol/rename", `{"position":{"path":"graph.py","position":{"line":0,"character":6}}}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unsupported", fmt.Errorf("x.txt: %w", model.ErrUnsupportedLanguage), http.StatusBadRequest, CodeUnsupportedLanguage},
		{"not found", model.ErrPathNotFound, http.StatusBadRequest, CodePathNotFound},
		{"outside", model.ErrPathOutsideWorkspace, http.StatusBadRequest, CodePathOutsideWorkspace},
		{"position", model.ErrInvalidPosition, http.StatusBadRequest, CodeInvalidPosition},
		{"identifier", model.ErrIdentifierNotFound, http.StatusBadRequest, CodeIdentifierNotFound},
		{"argument", translate.ErrInvalidArgument, http.StatusBadRequest, CodeInvalidRequest},
		{"too large", ast.ErrFileTooLarge, http.StatusBadRequest, CodeInvalidRequest},
		{"timeout", lsp.ErrRequestTimeout, http.StatusInternalServerError, CodeUpstreamTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusInternalServerError, CodeUpstreamTimeout},
		{"protocol", &lsp.LSPError{Code: -32603, Message: "boom"}, http.StatusInternalServerError, CodeUpstreamProtocol},
		{"invalid response", lsp.ErrInvalidResponse, http.StatusInternalServerError, CodeUpstreamProtocol},
		{"unadvertised method", fmt.Errorf("%w: rename", lsp.ErrMethodNotSupported), http.StatusInternalServerError, CodeMethodNotSupported},
		{"method not found answer", fmt.Errorf("%w: %w", lsp.ErrMethodNotSupported, &lsp.LSPError{Code: lsp.CodeMethodNotFound}), http.StatusInternalServerError, CodeMethodNotSupported},
		{"crashed", lsp.ErrServerCrashed, http.StatusInternalServerError, CodeProcessUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
