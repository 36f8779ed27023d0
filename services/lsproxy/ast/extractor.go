// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast lists definitions, identifier tokens and outgoing references
// of a source file using tree-sitter grammars, without a language server.
//
// Results are deterministic for a given content and language, and
// positions use UTF-16 character offsets like the rest of the proxy.
//
// # Thread Safety
//
// Extractor is safe for concurrent use; every Parse call gets its own
// tree-sitter parser.
package ast

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"sort"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

const (
	// DefaultMaxFileSize is the largest file the extractor accepts (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the size above which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxFileSize overrides DefaultMaxFileSize. Non-positive values are
// ignored.
func WithMaxFileSize(bytes int64) Option {
	return func(e *Extractor) {
		if bytes > 0 {
			e.maxFileSize = bytes
		}
	}
}

// Extractor parses files with the grammar of their language.
type Extractor struct {
	maxFileSize int64
	grammars    map[string]*grammar
}

// NewExtractor creates an Extractor with grammars for go, python,
// typescript (including tsx), javascript, rust, java, c and cpp.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		maxFileSize: DefaultMaxFileSize,
		grammars:    defaultGrammars(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports whether language has a grammar.
func (e *Extractor) Supports(language string) bool {
	_, ok := e.grammars[language]
	return ok
}

// Languages returns the supported language names, sorted.
func (e *Extractor) Languages() []string {
	langs := make([]string, 0, len(e.grammars))
	for name := range e.grammars {
		if name != "tsx" {
			langs = append(langs, name)
		}
	}
	sort.Strings(langs)
	return langs
}

// Parse extracts definitions, identifiers and reference candidates.
//
// Description:
//
//	Parses content with the grammar registered for language (the tsx
//	grammar for ".tsx" TypeScript files) and walks the tree once.
//	Syntax errors do not fail the parse; tree-sitter recovers and the
//	file is marked with HasErrors.
//
// Inputs:
//
//	ctx - Cancels a long parse.
//	language - Language name as routed by the workspace.
//	filePath - Workspace-relative path, copied into every result.
//	content - File bytes; must be valid UTF-8.
//
// Outputs:
//
//	*File - Query-ready extraction result.
//	error - ErrUnsupportedLanguage, ErrFileTooLarge, ErrInvalidContent,
//	        ErrParseFailed, or a context error.
func (e *Extractor) Parse(ctx context.Context, language, filePath string, content []byte) (*File, error) {
	ctx, span := startParseSpan(ctx, language, filePath, len(content))
	defer span.End()

	start := time.Now()

	g, ok := e.grammars[grammarKey(language, path.Ext(filePath))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, language, time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > e.maxFileSize {
		recordParseMetrics(ctx, language, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), e.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, language, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(g.language)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, language, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		recordParseMetrics(ctx, language, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: tree-sitter returned nil root node", ErrParseFailed)
	}

	file := &File{
		Path:      filePath,
		Language:  language,
		HasErrors: root.HasError(),
	}
	w := newWalker(g, content, file)
	w.walk(root, -1, false, false)
	file.finish(w.defNames)

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, language, time.Since(start), len(file.defs), false)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	recordParseMetrics(ctx, language, time.Since(start), len(file.defs), true)
	return file, nil
}

// finish orders the collected slices and tags definition name tokens.
func (f *File) finish(defNames map[uint32]int) {
	for i := range f.idents {
		if idx, ok := defNames[f.idents[i].start]; ok {
			f.idents[i].kind = f.defs[idx].kind
		}
	}
	slices.SortStableFunc(f.defs, func(a, b definition) int {
		if c := a.rng.Start.Compare(b.rng.Start); c != 0 {
			return c
		}
		return a.nameRange.Start.Compare(b.nameRange.Start)
	})
	byStart := func(a, b token) int { return a.rng.Start.Compare(b.rng.Start) }
	slices.SortStableFunc(f.idents, byStart)
	slices.SortStableFunc(f.refs, byStart)
}
