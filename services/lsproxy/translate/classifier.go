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
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// bucket is where one reference lands.
type bucket int

const (
	bucketNotFound bucket = iota
	bucketExternal
	bucketWorkspace
)

func (b bucket) String() string {
	switch b {
	case bucketWorkspace:
		return "workspace"
	case bucketExternal:
		return "external"
	default:
		return "not_found"
	}
}

type classified struct {
	ref         model.Identifier
	bucket      bucket
	definitions []model.Symbol
}

// FindReferencedSymbols classifies what the symbol at
// req.IdentifierPosition references.
//
// Description:
//
//	Resolves the symbol defined at the position (its name token or the
//	start of its range), collects the reference candidates inside its
//	range and resolves each with textDocument/definition, at most
//	WithClassifyConcurrency lookups at a time. Each reference lands in
//	exactly one bucket:
//	  - workspace: a definition in a workspace source file names a symbol
//	  - external: no definition, or only definitions outside the workspace
//	    source tree (including excluded dependency directories under the
//	    root, such as .venv or node_modules)
//	  - not_found: the lookup failed, or workspace definitions name no symbol
//	Referenced symbols are not expanded further.
//
// Errors:
//
//	model.ErrInvalidPosition - position outside the file
//	model.ErrIdentifierNotFound - no symbol is defined at the position
//	model.ErrProcessUnavailable - the document could not be synced
func (t *Translator) FindReferencedSymbols(ctx context.Context, req ReferencedSymbolsRequest) (*model.ClassifiedReferences, error) {
	ctx, span := startOperationSpan(ctx, "FindReferencedSymbols", req.IdentifierPosition.Path)
	defer span.End()
	start := time.Now()

	result, language, err := t.findReferencedSymbols(ctx, req)
	if err != nil {
		setOperationSpanResult(span, language, 0, false)
		recordOperationMetrics(ctx, "find_referenced_symbols", language, time.Since(start), 0, false)
		return nil, err
	}
	total := len(result.WorkspaceSymbols) + len(result.ExternalSymbols) + len(result.NotFound)
	setOperationSpanResult(span, language, total, true)
	recordOperationMetrics(ctx, "find_referenced_symbols", language, time.Since(start), total, true)
	recordClassification(ctx, language, bucketWorkspace.String(), len(result.WorkspaceSymbols))
	recordClassification(ctx, language, bucketExternal.String(), len(result.ExternalSymbols))
	recordClassification(ctx, language, bucketNotFound.String(), len(result.NotFound))
	return result, nil
}

func (t *Translator) findReferencedSymbols(ctx context.Context, req ReferencedSymbolsRequest) (*model.ClassifiedReferences, string, error) {
	tg, err := t.resolve(ctx, req.IdentifierPosition)
	if err != nil {
		return nil, "", err
	}
	language := tg.file.Language

	sym, ok := tg.ast.SymbolAt(tg.pos)
	if !ok {
		return nil, language, fmt.Errorf("%w: no symbol defined at %s:%s",
			model.ErrIdentifierNotFound, tg.file.Path, tg.pos)
	}

	refs := tg.ast.References(sym, req.FullScan)
	result := &model.ClassifiedReferences{
		WorkspaceSymbols: make([]model.ReferenceWithSymbolDefinitions, 0),
		ExternalSymbols:  make([]model.Identifier, 0),
		NotFound:         make([]model.Identifier, 0),
	}
	if len(refs) == 0 {
		return result, language, nil
	}

	if err := t.sync(ctx, tg); err != nil {
		return nil, language, err
	}

	for _, c := range t.classifyAll(ctx, tg, refs) {
		switch c.bucket {
		case bucketWorkspace:
			result.WorkspaceSymbols = append(result.WorkspaceSymbols, model.ReferenceWithSymbolDefinitions{
				Reference:   c.ref,
				Definitions: c.definitions,
			})
		case bucketExternal:
			result.ExternalSymbols = append(result.ExternalSymbols, c.ref)
		default:
			result.NotFound = append(result.NotFound, c.ref)
		}
	}

	slices.SortStableFunc(result.WorkspaceSymbols, func(a, b model.ReferenceWithSymbolDefinitions) int {
		return model.CompareFilePositions(a.Reference.Range.StartPosition(), b.Reference.Range.StartPosition())
	})
	model.SortIdentifiers(result.ExternalSymbols)
	model.SortIdentifiers(result.NotFound)
	return result, language, nil
}

// FindReferencedDefinitions lists the workspace symbols referenced from
// inside req.Range.
//
// Description:
//
//	Collects the reference candidates wholly inside the range and
//	resolves each the way FindReferencedSymbols does. Only the symbols
//	of workspace-bucket references are returned, de-duplicated and
//	ordered by their identifier position. External and unresolved
//	references are dropped.
//
// Errors:
//
//	model.ErrInvalidPosition - range inverted or outside the file
//	model.ErrProcessUnavailable - the document could not be synced
func (t *Translator) FindReferencedDefinitions(ctx context.Context, req ReferencedDefinitionsRequest) ([]model.Symbol, error) {
	ctx, span := startOperationSpan(ctx, "FindReferencedDefinitions", req.Range.Path)
	defer span.End()
	start := time.Now()

	symbols, language, err := t.findReferencedDefinitions(ctx, req)
	if err != nil {
		setOperationSpanResult(span, language, 0, false)
		recordOperationMetrics(ctx, "find_referenced_definitions", language, time.Since(start), 0, false)
		return nil, err
	}
	setOperationSpanResult(span, language, len(symbols), true)
	recordOperationMetrics(ctx, "find_referenced_definitions", language, time.Since(start), len(symbols), true)
	return symbols, nil
}

func (t *Translator) findReferencedDefinitions(ctx context.Context, req ReferencedDefinitionsRequest) ([]model.Symbol, string, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, "", err
	}
	tg, err := t.resolve(ctx, req.Range.StartPosition())
	if err != nil {
		return nil, "", err
	}
	language := tg.file.Language
	if !tg.src.ValidPosition(req.Range.End) {
		return nil, language, fmt.Errorf("%w: %s:%s (file has %d lines)",
			model.ErrInvalidPosition, tg.file.Path, req.Range.End, tg.src.LineCount())
	}

	symbols := make([]model.Symbol, 0)
	refs := tg.ast.ReferencesIn(req.Range.Range(), req.FullScan)
	if len(refs) == 0 {
		return symbols, language, nil
	}
	if err := t.sync(ctx, tg); err != nil {
		return nil, language, err
	}

	for _, c := range t.classifyAll(ctx, tg, refs) {
		if c.bucket == bucketWorkspace {
			symbols = append(symbols, c.definitions...)
		}
	}
	slices.SortFunc(symbols, func(a, b model.Symbol) int {
		return model.CompareFilePositions(a.IdentifierPosition, b.IdentifierPosition)
	})
	symbols = slices.CompactFunc(symbols, func(a, b model.Symbol) bool {
		return a.IdentifierPosition == b.IdentifierPosition
	})
	return symbols, language, nil
}

// classifyAll classifies refs concurrently, keeping their order.
func (t *Translator) classifyAll(ctx context.Context, tg *target, refs []model.Identifier) []classified {
	files := t.newParsedFiles()
	out := make([]classified, len(refs))

	var g errgroup.Group
	g.SetLimit(t.classifyLimit)
	for i, ref := range refs {
		g.Go(func() error {
			out[i] = t.classify(ctx, tg, ref, files)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// classify resolves one reference. It never fails; a failed lookup is a
// classification of its own.
func (t *Translator) classify(ctx context.Context, tg *target, ref model.Identifier, files *parsedFiles) classified {
	c := classified{ref: ref, bucket: bucketNotFound}

	params := lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.PathToURI(tg.file.AbsPath)},
		Position:     ref.Range.Start,
	}
	raw, err := t.upstream.Request(ctx, tg.file.Language, MethodDefinition, params)
	if err != nil {
		t.logger.Debug("reference lookup failed",
			slog.String("reference", ref.Name),
			slog.String("position", ref.Range.Start.String()),
			slog.String("error", err.Error()))
		return c
	}
	locs, err := lsp.ParseLocations(raw)
	if err != nil {
		t.logger.Debug("reference lookup unparseable",
			slog.String("reference", ref.Name),
			slog.String("error", err.Error()))
		return c
	}
	if len(locs) == 0 {
		c.bucket = bucketExternal
		return c
	}

	inWorkspace := false
	for _, def := range t.filePositions(locs) {
		if !t.ws.Includes(def.Path) {
			continue
		}
		inWorkspace = true
		sym, ok := files.symbolAt(ctx, def)
		if !ok || slices.ContainsFunc(c.definitions, func(s model.Symbol) bool {
			return s.IdentifierPosition == sym.IdentifierPosition
		}) {
			continue
		}
		c.definitions = append(c.definitions, sym)
	}

	switch {
	case len(c.definitions) > 0:
		c.bucket = bucketWorkspace
	case !inWorkspace:
		c.bucket = bucketExternal
	}
	return c
}
