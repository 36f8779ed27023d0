// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package translate expresses every proxy operation over the workspace,
// the tree-sitter extractor and the supervised language servers.
//
// Each call validates its input (path, language, position) before any
// upstream request, reads files fresh from disk and keeps no state
// between calls.
//
// # Thread Safety
//
// Translator is safe for concurrent use.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/ast"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/workspace"
)

// LSP methods issued by the translator.
const (
	MethodDefinition           = lsp.MethodDefinition
	MethodReferences           = lsp.MethodReferences
	MethodRename               = lsp.MethodRename
	MethodPrepareCallHierarchy = lsp.MethodPrepareCallHierarchy
	MethodIncomingCalls        = lsp.MethodIncomingCalls
	MethodOutgoingCalls        = lsp.MethodOutgoingCalls
)

// DefaultClassifyConcurrency bounds parallel definition lookups while
// classifying references.
const DefaultClassifyConcurrency = 8

// ErrInvalidArgument indicates a malformed request field.
var ErrInvalidArgument = errors.New("invalid argument")

// Upstream is the language-server side of the proxy. *lsp.Supervisor
// implements it.
type Upstream interface {
	Request(ctx context.Context, language, method string, params any) (json.RawMessage, error)
	SyncDocument(ctx context.Context, language, absPath string, text []byte) error
}

// Option configures a Translator.
type Option func(*Translator)

// WithClassifyConcurrency overrides DefaultClassifyConcurrency.
func WithClassifyConcurrency(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.classifyLimit = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Translator implements the symbol operations.
type Translator struct {
	ws            *workspace.Workspace
	upstream      Upstream
	extractor     *ast.Extractor
	logger        *slog.Logger
	classifyLimit int
}

// New creates a Translator.
func New(ws *workspace.Workspace, upstream Upstream, extractor *ast.Extractor, opts ...Option) *Translator {
	t := &Translator{
		ws:            ws,
		upstream:      upstream,
		extractor:     extractor,
		logger:        slog.Default(),
		classifyLimit: DefaultClassifyConcurrency,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Workspace returns the workspace the translator serves.
func (t *Translator) Workspace() *workspace.Workspace {
	return t.ws
}

// =============================================================================
// SHARED RESOLUTION
// =============================================================================

// target is a validated request position with its parsed file.
type target struct {
	file workspace.File
	src  *workspace.Source
	ast  *ast.File
	pos  model.Position
}

// parse routes path, reads it and runs the extractor.
func (t *Translator) parse(ctx context.Context, path string) (workspace.File, *workspace.Source, *ast.File, error) {
	f, src, err := t.ws.Load(path)
	if err != nil {
		return workspace.File{}, nil, nil, err
	}
	parsed, err := t.extractor.Parse(ctx, f.Language, f.Path, src.Text())
	if err != nil {
		return workspace.File{}, nil, nil, fmt.Errorf("extract %s: %w", f.Path, err)
	}
	return f, src, parsed, nil
}

// resolve validates fp and parses its file.
func (t *Translator) resolve(ctx context.Context, fp model.FilePosition) (*target, error) {
	f, src, parsed, err := t.parse(ctx, fp.Path)
	if err != nil {
		return nil, err
	}
	if !src.ValidPosition(fp.Position) {
		return nil, fmt.Errorf("%w: %s:%s (file has %d lines)",
			model.ErrInvalidPosition, f.Path, fp.Position, src.LineCount())
	}
	return &target{file: f, src: src, ast: parsed, pos: fp.Position}, nil
}

// selected returns the identifier token under the target position.
func (tg *target) selected() (model.Identifier, error) {
	id, ok := tg.ast.IdentifierAt(tg.pos)
	if !ok {
		return model.Identifier{}, fmt.Errorf("%w: no identifier at %s:%s",
			model.ErrIdentifierNotFound, tg.file.Path, tg.pos)
	}
	return id, nil
}

// sync pushes the target's text to its language server.
func (t *Translator) sync(ctx context.Context, tg *target) error {
	if err := t.upstream.SyncDocument(ctx, tg.file.Language, tg.file.AbsPath, tg.src.Text()); err != nil {
		return fmt.Errorf("sync %s: %w", tg.file.Path, err)
	}
	return nil
}

func (tg *target) positionParams() lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.PathToURI(tg.file.AbsPath)},
		Position:     tg.pos,
	}
}

// displayPath returns abs relative to the workspace, or abs itself when it
// lies outside.
func (t *Translator) displayPath(abs string) (string, bool) {
	if rel, ok := t.ws.Relative(abs); ok {
		return rel, true
	}
	return abs, false
}

// filePositions converts locations to sorted, distinct file positions.
func (t *Translator) filePositions(locs []lsp.Location) []model.FilePosition {
	out := make([]model.FilePosition, 0, len(locs))
	for _, loc := range locs {
		p, _ := t.displayPath(lsp.URIToPath(loc.URI))
		out = append(out, model.FilePosition{Path: p, Position: loc.Range.Start})
	}
	model.SortFilePositions(out)
	return slices.Compact(out)
}

// parsedFiles parses each workspace file at most once per operation.
type parsedFiles struct {
	t     *Translator
	mu    sync.Mutex
	files map[string]*parsedFile
}

type parsedFile struct {
	once sync.Once
	file *ast.File
	err  error
}

func (t *Translator) newParsedFiles() *parsedFiles {
	return &parsedFiles{t: t, files: make(map[string]*parsedFile)}
}

func (p *parsedFiles) get(ctx context.Context, path string) (*ast.File, error) {
	p.mu.Lock()
	entry, ok := p.files[path]
	if !ok {
		entry = &parsedFile{}
		p.files[path] = entry
	}
	p.mu.Unlock()

	entry.once.Do(func() {
		_, _, entry.file, entry.err = p.t.parse(ctx, path)
	})
	return entry.file, entry.err
}

// symbolAt finds the symbol defined at fp, if any.
func (p *parsedFiles) symbolAt(ctx context.Context, fp model.FilePosition) (model.Symbol, bool) {
	f, err := p.get(ctx, fp.Path)
	if err != nil {
		p.t.logger.Debug("definition file not parseable",
			slog.String("path", fp.Path),
			slog.String("error", err.Error()))
		return model.Symbol{}, false
	}
	return f.SymbolAt(fp.Position)
}

// =============================================================================
// DEFINITIONS IN FILE
// =============================================================================

// DefinitionsInFile lists the file-scope symbols of path.
//
// Description:
//
//	Runs the tree-sitter extractor only; no language server is involved,
//	so this works before any server has started. Symbols are in source
//	order.
//
// Errors:
//
//	model.ErrPathNotFound, model.ErrPathOutsideWorkspace,
//	model.ErrUnsupportedLanguage - from routing or a missing grammar
func (t *Translator) DefinitionsInFile(ctx context.Context, path string) ([]model.Symbol, error) {
	ctx, span := startOperationSpan(ctx, "DefinitionsInFile", path)
	defer span.End()
	start := time.Now()

	f, _, parsed, err := t.parse(ctx, path)
	if err != nil {
		setOperationSpanResult(span, f.Language, 0, false)
		recordOperationMetrics(ctx, "definitions_in_file", f.Language, time.Since(start), 0, false)
		return nil, err
	}

	symbols := parsed.Symbols(ast.ScopeTopLevel)
	setOperationSpanResult(span, f.Language, len(symbols), true)
	recordOperationMetrics(ctx, "definitions_in_file", f.Language, time.Since(start), len(symbols), true)
	return symbols, nil
}

// =============================================================================
// FIND DEFINITION
// =============================================================================

// FindDefinition resolves where the identifier at req.Position is defined.
//
// Description:
//
//	Validates the position and resolves the selected identifier first,
//	then syncs the document and asks the owning server for
//	textDocument/definition. Locations are reduced to the start of each
//	target, made workspace-relative where possible and sorted. An empty
//	result is valid; the selected identifier is always present.
//
// Errors:
//
//	model.ErrInvalidPosition - position outside the file
//	model.ErrIdentifierNotFound - no identifier under the position
//	model.ErrUpstreamTimeout, model.ErrUpstreamProtocol,
//	model.ErrProcessUnavailable - from the language server
func (t *Translator) FindDefinition(ctx context.Context, req DefinitionRequest) (*DefinitionResponse, error) {
	ctx, span := startOperationSpan(ctx, "FindDefinition", req.Position.Path)
	defer span.End()
	start := time.Now()

	resp, language, err := t.findDefinition(ctx, req)
	if err != nil {
		setOperationSpanResult(span, language, 0, false)
		recordOperationMetrics(ctx, "find_definition", language, time.Since(start), 0, false)
		return nil, err
	}
	setOperationSpanResult(span, language, len(resp.Definitions), true)
	recordOperationMetrics(ctx, "find_definition", language, time.Since(start), len(resp.Definitions), true)
	return resp, nil
}

func (t *Translator) findDefinition(ctx context.Context, req DefinitionRequest) (*DefinitionResponse, string, error) {
	tg, err := t.resolve(ctx, req.Position)
	if err != nil {
		return nil, "", err
	}
	language := tg.file.Language

	selected, err := tg.selected()
	if err != nil {
		return nil, language, err
	}
	if err := t.sync(ctx, tg); err != nil {
		return nil, language, err
	}

	raw, err := t.upstream.Request(ctx, language, MethodDefinition, tg.positionParams())
	if err != nil {
		return nil, language, fmt.Errorf("definition request: %w", err)
	}
	locs, err := lsp.ParseLocations(raw)
	if err != nil {
		return nil, language, fmt.Errorf("definition response: %w", err)
	}

	resp := &DefinitionResponse{
		Definitions:        t.filePositions(locs),
		SelectedIdentifier: selected,
	}
	if req.IncludeRawResponse {
		resp.RawResponse = raw
	}
	if req.IncludeSourceCode {
		resp.SourceCodeContext = t.definitionSources(ctx, resp.Definitions)
	}
	return resp, language, nil
}

// definitionSources reads the source of the symbol defined at each
// workspace definition. Definitions outside the workspace source tree or
// without a recognizable symbol are skipped.
func (t *Translator) definitionSources(ctx context.Context, defs []model.FilePosition) []model.CodeContext {
	files := t.newParsedFiles()
	out := make([]model.CodeContext, 0, len(defs))
	for _, def := range defs {
		if !t.ws.Includes(def.Path) {
			continue
		}
		sym, ok := files.symbolAt(ctx, def)
		if !ok {
			continue
		}
		cc, err := t.ws.CodeContext(sym.Range)
		if err != nil {
			t.logger.Debug("definition source unreadable",
				slog.String("path", def.Path),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, cc)
	}
	return out
}

// =============================================================================
// FIND REFERENCES
// =============================================================================

// FindReferences lists every use of the identifier at
// req.IdentifierPosition, declaration included.
//
// Description:
//
//	Same validation and normalization as FindDefinition. When
//	IncludeCodeContextLines is set, each reference inside the workspace
//	gets that many whole lines of context either side, clipped to the
//	file.
func (t *Translator) FindReferences(ctx context.Context, req ReferencesRequest) (*ReferencesResponse, error) {
	ctx, span := startOperationSpan(ctx, "FindReferences", req.IdentifierPosition.Path)
	defer span.End()
	start := time.Now()

	resp, language, err := t.findReferences(ctx, req)
	if err != nil {
		setOperationSpanResult(span, language, 0, false)
		recordOperationMetrics(ctx, "find_references", language, time.Since(start), 0, false)
		return nil, err
	}
	setOperationSpanResult(span, language, len(resp.References), true)
	recordOperationMetrics(ctx, "find_references", language, time.Since(start), len(resp.References), true)
	return resp, nil
}

func (t *Translator) findReferences(ctx context.Context, req ReferencesRequest) (*ReferencesResponse, string, error) {
	if n := req.IncludeCodeContextLines; n != nil && *n < 0 {
		return nil, "", fmt.Errorf("%w: include_code_context_lines must not be negative", ErrInvalidArgument)
	}

	tg, err := t.resolve(ctx, req.IdentifierPosition)
	if err != nil {
		return nil, "", err
	}
	language := tg.file.Language

	selected, err := tg.selected()
	if err != nil {
		return nil, language, err
	}
	if err := t.sync(ctx, tg); err != nil {
		return nil, language, err
	}

	params := lsp.ReferenceParams{
		TextDocumentPositionParams: tg.positionParams(),
		Context:                    lsp.ReferenceContext{IncludeDeclaration: true},
	}
	raw, err := t.upstream.Request(ctx, language, MethodReferences, params)
	if err != nil {
		return nil, language, fmt.Errorf("references request: %w", err)
	}
	locs, err := lsp.ParseLocations(raw)
	if err != nil {
		return nil, language, fmt.Errorf("references response: %w", err)
	}

	resp := &ReferencesResponse{
		References:         t.filePositions(locs),
		SelectedIdentifier: selected,
	}
	if req.IncludeRawResponse {
		resp.RawResponse = raw
	}
	if n := req.IncludeCodeContextLines; n != nil {
		resp.Context = make([]model.CodeContext, 0, len(resp.References))
		for _, ref := range resp.References {
			cc, err := t.ws.ContextLines(ref, *n)
			if err != nil {
				t.logger.Debug("reference context unreadable",
					slog.String("path", ref.Path),
					slog.String("error", err.Error()))
				continue
			}
			resp.Context = append(resp.Context, cc)
		}
	}
	return resp, language, nil
}
