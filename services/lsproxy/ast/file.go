// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// Scope selects which definitions Symbols returns.
type Scope int

const (
	// ScopeTopLevel returns file-scope definitions only.
	ScopeTopLevel Scope = iota

	// ScopeAll also returns methods and nested definitions.
	ScopeAll
)

type definition struct {
	name      string
	kind      string
	nameRange model.Range
	rng       model.Range
	topLevel  bool
}

type token struct {
	name  string
	kind  string
	rng   model.Range
	start uint32
}

// File is the extraction result for one source file.
type File struct {
	// Path is the workspace-relative path given to Parse.
	Path string

	// Language is the routed language name.
	Language string

	// HasErrors is set when tree-sitter recovered from syntax errors.
	HasErrors bool

	defs   []definition
	idents []token
	refs   []token
}

func (f *File) symbol(d definition) model.Symbol {
	return model.Symbol{
		Name: d.name,
		Kind: d.kind,
		IdentifierPosition: model.FilePosition{
			Path:     f.Path,
			Position: d.nameRange.Start,
		},
		Range: model.FileRange{Path: f.Path, Start: d.rng.Start, End: d.rng.End},
	}
}

func (f *File) identifier(t token) model.Identifier {
	var kind *string
	if t.kind != "" {
		kind = model.KindPtr(t.kind)
	}
	return model.Identifier{
		Name:  t.name,
		Kind:  kind,
		Range: model.FileRange{Path: f.Path, Start: t.rng.Start, End: t.rng.End},
	}
}

// Symbols returns the definitions in scope ordered by range start.
func (f *File) Symbols(scope Scope) []model.Symbol {
	out := make([]model.Symbol, 0, len(f.defs))
	for _, d := range f.defs {
		if scope == ScopeTopLevel && !d.topLevel {
			continue
		}
		out = append(out, f.symbol(d))
	}
	return out
}

// Identifiers returns every name token in document order. Tokens that
// name a definition carry its kind.
func (f *File) Identifiers() []model.Identifier {
	out := make([]model.Identifier, 0, len(f.idents))
	for _, t := range f.idents {
		out = append(out, f.identifier(t))
	}
	return out
}

// IdentifierAt returns the token under pos. A token whose end equals pos
// is accepted when no token contains it, so a cursor placed just after a
// name still selects it.
func (f *File) IdentifierAt(pos model.Position) (model.Identifier, bool) {
	var touching *token
	for i := range f.idents {
		t := &f.idents[i]
		if t.rng.Contains(pos) {
			return f.identifier(*t), true
		}
		if touching == nil && t.rng.End == pos {
			touching = t
		}
	}
	if touching != nil {
		return f.identifier(*touching), true
	}
	return model.Identifier{}, false
}

// SymbolAt returns the definition whose name token covers pos, end
// inclusive, or whose range starts at pos.
func (f *File) SymbolAt(pos model.Position) (model.Symbol, bool) {
	for _, d := range f.defs {
		if !pos.Before(d.nameRange.Start) && !d.nameRange.End.Before(pos) {
			return f.symbol(d), true
		}
	}
	for _, d := range f.defs {
		if d.rng.Start == pos {
			return f.symbol(d), true
		}
	}
	return model.Symbol{}, false
}

// References returns the reference candidates inside sym's range, in
// document order. By default only calls, constructions and decorators
// are returned; fullScan adds type annotations and receivers.
func (f *File) References(sym model.Symbol, fullScan bool) []model.Identifier {
	return f.referencesIn(sym.Range.Range(), &sym.IdentifierPosition.Position, fullScan)
}

// ReferencesIn returns the reference candidates wholly inside rng, with
// the same filtering as References.
func (f *File) ReferencesIn(rng model.Range, fullScan bool) []model.Identifier {
	return f.referencesIn(rng, nil, fullScan)
}

func (f *File) referencesIn(rng model.Range, self *model.Position, fullScan bool) []model.Identifier {
	out := make([]model.Identifier, 0)
	for _, t := range f.refs {
		if !rng.ContainsRange(t.rng) {
			continue
		}
		if self != nil && t.rng.Start == *self {
			continue
		}
		if !fullScan && (t.kind == RefTypeAnnotation || t.kind == RefIdentifier) {
			continue
		}
		out = append(out, f.identifier(t))
	}
	return out
}
