// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the value types shared by every lsproxy subsystem:
// positions, ranges, identifiers, symbols and classified references, plus
// the error taxonomy surfaced to clients.
//
// All positions are 0-indexed. Character offsets count UTF-16 code units,
// the default LSP position encoding. Paths are workspace-root-relative and
// slash-separated unless a location lies outside the workspace.
package model

import (
	"cmp"
	"fmt"
	"slices"
)

// =============================================================================
// POSITION & RANGE TYPES
// =============================================================================

// Position is a zero-indexed (line, character) pair.
type Position struct {
	// Line is the 0-indexed line number.
	Line int `json:"line"`

	// Character is the 0-indexed UTF-16 offset within the line.
	Character int `json:"character"`
}

// Valid reports whether both coordinates are non-negative.
func (p Position) Valid() bool {
	return p.Line >= 0 && p.Character >= 0
}

// Compare orders positions by line, then character.
// It returns -1, 0 or +1.
func (p Position) Compare(o Position) int {
	if c := cmp.Compare(p.Line, o.Line); c != 0 {
		return c
	}
	return cmp.Compare(p.Character, o.Character)
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	return p.Compare(o) < 0
}

// String renders the position as "line:character".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range is a half-open span [Start, End).
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos lies inside the range.
//
// The start is inclusive and the end exclusive. A zero-width range
// contains only its start.
func (r Range) Contains(pos Position) bool {
	if r.Start == r.End {
		return pos == r.Start
	}
	return r.Start.Compare(pos) <= 0 && pos.Before(r.End)
}

// ContainsRange reports whether inner lies entirely within r.
func (r Range) ContainsRange(inner Range) bool {
	return r.Start.Compare(inner.Start) <= 0 && inner.End.Compare(r.End) <= 0
}

// FilePosition is a path plus a single position. It is the query key for
// positional operations and the normalized shape of LSP locations.
type FilePosition struct {
	Path     string   `json:"path" binding:"required"`
	Position Position `json:"position"`
}

// CompareFilePositions orders by path, line, then character.
func CompareFilePositions(a, b FilePosition) int {
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	return a.Position.Compare(b.Position)
}

// FileRange is a path plus a half-open range.
//
// Invariant: End does not sort before Start. Use NewFileRange to build
// one from untrusted coordinates.
type FileRange struct {
	Path  string   `json:"path" binding:"required"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewFileRange validates coordinates and builds a FileRange.
//
// Description:
//
//	Rejects negative coordinates and an end that sorts before the start.
//	Path containment is checked by the workspace router, not here.
//
// Inputs:
//
//	path - Workspace-relative path.
//	start - Inclusive start.
//	end - Exclusive end.
//
// Outputs:
//
//	FileRange - The range.
//	error - Wraps ErrInvalidPosition on bad coordinates.
func NewFileRange(path string, start, end Position) (FileRange, error) {
	if !start.Valid() || !end.Valid() {
		return FileRange{}, fmt.Errorf("%w: negative coordinate in %s-%s", ErrInvalidPosition, start, end)
	}
	if end.Before(start) {
		return FileRange{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidPosition, end, start)
	}
	return FileRange{Path: path, Start: start, End: end}, nil
}

// Validate re-checks the FileRange invariant, e.g. after JSON decoding.
func (r FileRange) Validate() error {
	_, err := NewFileRange(r.Path, r.Start, r.End)
	return err
}

// Range drops the path.
func (r FileRange) Range() Range {
	return Range{Start: r.Start, End: r.End}
}

// Contains reports whether pos (in the same file) lies inside the range.
func (r FileRange) Contains(pos Position) bool {
	return r.Range().Contains(pos)
}

// StartPosition returns the FilePosition at the start of the range.
func (r FileRange) StartPosition() FilePosition {
	return FilePosition{Path: r.Path, Position: r.Start}
}

// =============================================================================
// IDENTIFIERS & SYMBOLS
// =============================================================================

// Identifier is one named token occurrence.
type Identifier struct {
	// Name is the token text.
	Name string `json:"name"`

	// Kind is the definition kind when the token names a definition,
	// otherwise nil.
	Kind *string `json:"kind"`

	// Range spans the token; Start is the start of the name.
	Range FileRange `json:"range"`
}

// Symbol is a named, kinded definition.
type Symbol struct {
	// Name is the defined name.
	Name string `json:"name"`

	// Kind is the definition kind, e.g. "function" or "class".
	Kind string `json:"kind"`

	// IdentifierPosition points at the start of the name token.
	IdentifierPosition FilePosition `json:"identifier_position"`

	// Range is the full enclosing range of the definition.
	Range FileRange `json:"range"`
}

// CodeContext pairs a range with the source text it spans.
type CodeContext struct {
	Range      FileRange `json:"range"`
	SourceCode string    `json:"source_code"`
}

// ReferenceWithSymbolDefinitions is a reference plus the workspace
// symbols it resolved to.
type ReferenceWithSymbolDefinitions struct {
	Reference   Identifier `json:"reference"`
	Definitions []Symbol   `json:"definitions"`
}

// ClassifiedReferences partitions the references made inside a symbol.
// Every reference appears in exactly one of the three sequences.
type ClassifiedReferences struct {
	WorkspaceSymbols []ReferenceWithSymbolDefinitions `json:"workspace_symbols"`
	ExternalSymbols  []Identifier                     `json:"external_symbols"`
	NotFound         []Identifier                     `json:"not_found"`
}

// KindPtr returns a pointer to kind, or nil for the empty string.
func KindPtr(kind string) *string {
	if kind == "" {
		return nil
	}
	return &kind
}

// SortIdentifiers orders identifiers by path, line, then character.
func SortIdentifiers(ids []Identifier) {
	slices.SortStableFunc(ids, func(a, b Identifier) int {
		return CompareFilePositions(a.Range.StartPosition(), b.Range.StartPosition())
	})
}

// SortFilePositions orders positions by path, line, then character.
func SortFilePositions(ps []FilePosition) {
	slices.SortStableFunc(ps, CompareFilePositions)
}
