// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/ast"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/workspace"
)

// =============================================================================
// FAKE UPSTREAM
// =============================================================================

type fakeResult struct {
	raw string
	err error
}

// fakeUpstream answers requests keyed by "method@line:char".
type fakeUpstream struct {
	mu        sync.Mutex
	responses map[string]fakeResult
	requests  []string
	synced    []string
	syncErr   error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{responses: make(map[string]fakeResult)}
}

func (f *fakeUpstream) on(method string, line, char int, raw string) {
	f.responses[fmt.Sprintf("%s@%d:%d", method, line, char)] = fakeResult{raw: raw}
}

func (f *fakeUpstream) fail(method string, line, char int, err error) {
	f.responses[fmt.Sprintf("%s@%d:%d", method, line, char)] = fakeResult{err: err}
}

func (f *fakeUpstream) Request(_ context.Context, _ string, method string, params any) (json.RawMessage, error) {
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

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, key)
	r, ok := f.responses[key]
	if !ok {
		return json.RawMessage("null"), nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return json.RawMessage(r.raw), nil
}

func (f *fakeUpstream) SyncDocument(_ context.Context, _ string, absPath string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, filepath.Base(absPath))
	return f.syncErr
}

func (f *fakeUpstream) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// =============================================================================
// FIXTURES
// =============================================================================

var testFiles = map[string]string{
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
	"notes.txt": "not code\n",
}

type fixture struct {
	ws       *workspace.Workspace
	upstream *fakeUpstream
	tr       *Translator
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	ws, err := workspace.New(root, lsp.NewConfigRegistry(), config.DefaultExcludes)
	require.NoError(t, err)

	up := newFakeUpstream()
	return &fixture{ws: ws, upstream: up, tr: New(ws, up, ast.NewExtractor())}
}

func (fx *fixture) uri(rel string) string {
	return lsp.PathToURI(filepath.Join(fx.ws.Root(), filepath.FromSlash(rel)))
}

func location(uri string, line, start, end int) string {
	return fmt.Sprintf(`{"uri":%q,"range":{"start":{"line":%d,"character":%d},"end":{"line":%d,"character":%d}}}`,
		uri, line, start, line, end)
}

func fp(path string, line, char int) model.FilePosition {
	return model.FilePosition{Path: path, Position: model.Position{Line: line, Character: char}}
}

// =============================================================================
// DEFINITIONS IN FILE
// =============================================================================

func TestTranslator_DefinitionsInFile(t *testing.T) {
	fx := newFixture(t, testFiles)
	ctx := context.Background()

	t.Run("top level only", func(t *testing.T) {
		syms, err := fx.tr.DefinitionsInFile(ctx, "graph.py")
		require.NoError(t, err)
		require.Len(t, syms, 1)
		assert.Equal(t, "AStarGraph", syms[0].Name)
		assert.Equal(t, "class", syms[0].Kind)
		assert.Equal(t, fp("graph.py", 0, 6), syms[0].IdentifierPosition)
	})

	t.Run("no language server involved", func(t *testing.T) {
		_, err := fx.tr.DefinitionsInFile(ctx, "main.py")
		require.NoError(t, err)
		assert.Zero(t, fx.upstream.requestCount())
		assert.Empty(t, fx.upstream.synced)
	})

	tests := []struct {
		name string
		path string
		want error
	}{
		{"unsupported", "notes.txt", model.ErrUnsupportedLanguage},
		{"missing", "missing.py", model.ErrPathNotFound},
		{"outside", "../escape.py", model.ErrPathOutsideWorkspace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.tr.DefinitionsInFile(ctx, tt.path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// =============================================================================
// FIND DEFINITION
// =============================================================================

func TestTranslator_FindDefinition(t *testing.T) {
	fx := newFixture(t, testFiles)
	ctx := context.Background()
	graphDef := "[" + location(fx.uri("graph.py"), 0, 6, 16) + "]"
	fx.upstream.on(MethodDefinition, 4, 14, graphDef)

	t.Run("resolves and selects", func(t *testing.T) {
		resp, err := fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("main.py", 4, 14)})
		require.NoError(t, err)
		assert.Equal(t, []model.FilePosition{fp("graph.py", 0, 6)}, resp.Definitions)
		assert.Equal(t, "AStarGraph", resp.SelectedIdentifier.Name)
		assert.Equal(t, model.FileRange{
			Path:  "main.py",
			Start: model.Position{Line: 4, Character: 12},
			End:   model.Position{Line: 4, Character: 22},
		}, resp.SelectedIdentifier.Range)
		assert.Nil(t, resp.RawResponse)
		assert.Nil(t, resp.SourceCodeContext)
		assert.Contains(t, fx.upstream.synced, "main.py")
	})

	t.Run("raw response and source", func(t *testing.T) {
		resp, err := fx.tr.FindDefinition(ctx, DefinitionRequest{
			Position:           fp("main.py", 4, 14),
			IncludeRawResponse: true,
			IncludeSourceCode:  true,
		})
		require.NoError(t, err)
		assert.JSONEq(t, graphDef, string(resp.RawResponse))
		require.Len(t, resp.SourceCodeContext, 1)
		cc := resp.SourceCodeContext[0]
		assert.Equal(t, "graph.py", cc.Range.Path)
		assert.True(t, strings.HasPrefix(cc.SourceCode, "class AStarGraph:"))
		assert.Contains(t, cc.SourceCode, "return []")
	})

	t.Run("empty result keeps selected identifier", func(t *testing.T) {
		resp, err := fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("main.py", 5, 5)})
		require.NoError(t, err)
		assert.NotNil(t, resp.Definitions)
		assert.Empty(t, resp.Definitions)
		assert.Equal(t, "print", resp.SelectedIdentifier.Name)
	})

	t.Run("validation happens before upstream", func(t *testing.T) {
		before := fx.upstream.requestCount()

		_, err := fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("main.py", 99, 0)})
		assert.ErrorIs(t, err, model.ErrInvalidPosition)

		_, err = fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("main.py", 1, 0)})
		assert.ErrorIs(t, err, model.ErrIdentifierNotFound)

		_, err = fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("notes.txt", 0, 0)})
		assert.ErrorIs(t, err, model.ErrUnsupportedLanguage)

		assert.Equal(t, before, fx.upstream.requestCount())
	})

	t.Run("upstream failures surface", func(t *testing.T) {
		fx.upstream.fail(MethodDefinition, 5, 11, lsp.ErrRequestTimeout)
		_, err := fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("main.py", 5, 11)})
		assert.ErrorIs(t, err, model.ErrUpstreamTimeout)

		fx.upstream.on(MethodDefinition, 5, 21, `{"unexpected":true}`)
		_, err = fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("main.py", 5, 21)})
		assert.ErrorIs(t, err, model.ErrUpstreamProtocol)
	})

	t.Run("sync failure surfaces", func(t *testing.T) {
		fx := newFixture(t, testFiles)
		fx.upstream.syncErr = lsp.ErrServerNotRunning
		_, err := fx.tr.FindDefinition(ctx, DefinitionRequest{Position: fp("main.py", 4, 14)})
		assert.ErrorIs(t, err, model.ErrProcessUnavailable)
		assert.Zero(t, fx.upstream.requestCount())
	})
}

// =============================================================================
// FIND REFERENCES
// =============================================================================

func TestTranslator_FindReferences(t *testing.T) {
	fx := newFixture(t, testFiles)
	ctx := context.Background()
	fx.upstream.on(MethodReferences, 0, 8, "["+strings.Join([]string{
		location(fx.uri("main.py"), 4, 12, 22),
		location(fx.uri("graph.py"), 0, 6, 16),
		location(fx.uri("main.py"), 0, 18, 28),
		location(fx.uri("main.py"), 4, 12, 22),
	}, ",")+"]")

	t.Run("sorted and distinct", func(t *testing.T) {
		resp, err := fx.tr.FindReferences(ctx, ReferencesRequest{IdentifierPosition: fp("graph.py", 0, 8)})
		require.NoError(t, err)
		assert.Equal(t, []model.FilePosition{
			fp("graph.py", 0, 6),
			fp("main.py", 0, 18),
			fp("main.py", 4, 12),
		}, resp.References)
		assert.Equal(t, "AStarGraph", resp.SelectedIdentifier.Name)
		assert.Nil(t, resp.Context)
	})

	t.Run("context lines", func(t *testing.T) {
		n := 1
		resp, err := fx.tr.FindReferences(ctx, ReferencesRequest{
			IdentifierPosition:      fp("graph.py", 0, 8),
			IncludeCodeContextLines: &n,
		})
		require.NoError(t, err)
		require.Len(t, resp.Context, 3)
		assert.Equal(t, "class AStarGraph:\n    def edges(self):", resp.Context[0].SourceCode)
		assert.Equal(t, "def run():\n    graph = AStarGraph()\n    print(len(graph.edges()))", resp.Context[2].SourceCode)
		assert.Equal(t, 3, resp.Context[2].Range.Start.Line)
		assert.Equal(t, 5, resp.Context[2].Range.End.Line)
	})

	t.Run("negative context", func(t *testing.T) {
		n := -1
		_, err := fx.tr.FindReferences(ctx, ReferencesRequest{
			IdentifierPosition:      fp("graph.py", 0, 8),
			IncludeCodeContextLines: &n,
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

// =============================================================================
// RENAME
// =============================================================================

func TestTranslator_Rename(t *testing.T) {
	fx := newFixture(t, testFiles)
	ctx := context.Background()
	edit := fmt.Sprintf(`{"changes":{%q:[{"range":{"start":{"line":4,"character":12},"end":{"line":4,"character":22}},"newText":"Graph"},{"range":{"start":{"line":0,"character":18},"end":{"line":0,"character":28}},"newText":"Graph"}],%q:[{"range":{"start":{"line":0,"character":6},"end":{"line":0,"character":16}},"newText":"Graph"}]}}`,
		fx.uri("main.py"), fx.uri("graph.py"))
	fx.upstream.on(MethodRename, 4, 14, edit)

	t.Run("preview", func(t *testing.T) {
		resp, err := fx.tr.Rename(ctx, RenameRequest{Position: fp("main.py", 4, 14), NewName: "Graph"})
		require.NoError(t, err)
		require.Len(t, resp.Edits, 3)
		assert.Equal(t, "graph.py", resp.Edits[0].Range.Path)
		assert.Equal(t, fp("main.py", 0, 18), resp.Edits[1].Range.StartPosition())
		assert.Equal(t, fp("main.py", 4, 12), resp.Edits[2].Range.StartPosition())
		assert.Equal(t, "Graph", resp.Edits[2].NewText)
		assert.Equal(t, []FileEditSummary{{"graph.py", 1}, {"main.py", 2}}, resp.Files)
		assert.Equal(t, "AStarGraph", resp.SelectedIdentifier.Name)
	})

	t.Run("null edit", func(t *testing.T) {
		resp, err := fx.tr.Rename(ctx, RenameRequest{Position: fp("main.py", 5, 5), NewName: "echo"})
		require.NoError(t, err)
		assert.Empty(t, resp.Edits)
		assert.NotNil(t, resp.Files)
	})

	t.Run("invalid name", func(t *testing.T) {
		for _, name := range []string{"", "  ", "a\nb"} {
			_, err := fx.tr.Rename(ctx, RenameRequest{Position: fp("main.py", 4, 14), NewName: name})
			assert.ErrorIs(t, err, ErrInvalidArgument, "name %q", name)
		}
	})
}
