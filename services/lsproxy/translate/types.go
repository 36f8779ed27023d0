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
	"encoding/json"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// =============================================================================
// DEFINITION
// =============================================================================

// DefinitionRequest asks where the symbol at Position is defined.
type DefinitionRequest struct {
	// Position is the clicked-on location.
	Position model.FilePosition `json:"position" binding:"required"`

	// IncludeRawResponse attaches the upstream payload unmodified.
	IncludeRawResponse bool `json:"include_raw_response"`

	// IncludeSourceCode attaches the source of each definition's symbol.
	IncludeSourceCode bool `json:"include_source_code"`
}

// DefinitionResponse lists the definitions of the selected identifier.
type DefinitionResponse struct {
	// Definitions point at the start of each target's name, sorted by
	// path, line and character.
	Definitions []model.FilePosition `json:"definitions"`

	// SelectedIdentifier is the token under the request position.
	SelectedIdentifier model.Identifier `json:"selected_identifier"`

	// SourceCodeContext is set when IncludeSourceCode was requested.
	SourceCodeContext []model.CodeContext `json:"source_code_context,omitempty"`

	// RawResponse is set when IncludeRawResponse was requested.
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// =============================================================================
// REFERENCES
// =============================================================================

// ReferencesRequest asks for every use of the symbol at IdentifierPosition.
type ReferencesRequest struct {
	IdentifierPosition model.FilePosition `json:"identifier_position" binding:"required"`

	// IncludeCodeContextLines, when set, attaches that many whole lines
	// of context either side of each reference.
	IncludeCodeContextLines *int `json:"include_code_context_lines" binding:"omitempty,min=0"`

	IncludeRawResponse bool `json:"include_raw_response"`
}

// ReferencesResponse lists the references of the selected identifier.
type ReferencesResponse struct {
	References         []model.FilePosition `json:"references"`
	SelectedIdentifier model.Identifier     `json:"selected_identifier"`
	Context            []model.CodeContext  `json:"context,omitempty"`
	RawResponse        json.RawMessage      `json:"raw_response,omitempty"`
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// IdentifierRequest searches a file for identifiers called Name.
type IdentifierRequest struct {
	Path string `json:"path" binding:"required"`
	Name string `json:"name" binding:"required"`

	// Position, when set, narrows the result to the occurrence under it
	// or to the nearest occurrences.
	Position *model.Position `json:"position,omitempty"`
}

// IdentifierResponse wraps the matching identifiers.
type IdentifierResponse struct {
	Identifiers []model.Identifier `json:"identifiers"`
}

// =============================================================================
// REFERENCED SYMBOLS
// =============================================================================

// ReferencedSymbolsRequest asks what the symbol at IdentifierPosition uses.
type ReferencedSymbolsRequest struct {
	IdentifierPosition model.FilePosition `json:"identifier_position" binding:"required"`

	// FullScan adds type annotations and chained-access receivers to
	// the candidate references.
	FullScan bool `json:"full_scan"`
}

// =============================================================================
// RENAME
// =============================================================================

// RenameRequest previews renaming the symbol at Position.
type RenameRequest struct {
	Position model.FilePosition `json:"position" binding:"required"`
	NewName  string             `json:"new_name" binding:"required"`
}

// FileTextEdit is one replacement in one file.
type FileTextEdit struct {
	Range   model.FileRange `json:"range"`
	NewText string          `json:"new_text"`
}

// FileEditSummary counts the edits touching one file.
type FileEditSummary struct {
	Path  string `json:"path"`
	Edits int    `json:"edits"`
}

// RenameResponse is the edit the language server proposes. It is never
// applied by the proxy.
type RenameResponse struct {
	SelectedIdentifier model.Identifier  `json:"selected_identifier"`
	Edits              []FileTextEdit    `json:"edits"`
	Files              []FileEditSummary `json:"files"`
}

// =============================================================================
// REFERENCED DEFINITIONS
// =============================================================================

// ReferencedDefinitionsRequest asks which workspace symbols the code in
// Range refers to.
type ReferencedDefinitionsRequest struct {
	Range model.FileRange `json:"range" binding:"required"`

	// FullScan adds type annotations and chained-access receivers to
	// the candidate references.
	FullScan bool `json:"full_scan"`
}

// =============================================================================
// CALL HIERARCHY
// =============================================================================

// CallHierarchyRequest asks for the callers and callees of the function
// at IdentifierPosition.
type CallHierarchyRequest struct {
	IdentifierPosition model.FilePosition `json:"identifier_position" binding:"required"`
}

// CallLocation is a callable with workspace-relative coordinates.
type CallLocation struct {
	Name string `json:"name"`

	// Range spans the whole callable.
	Range model.FileRange `json:"range"`

	// SelectionRange spans its name.
	SelectionRange model.FileRange `json:"selection_range"`
}

// CallReference is one caller or callee plus the call sites, which lie
// in the caller's file.
type CallReference struct {
	Target    CallLocation         `json:"target"`
	CallSites []model.FilePosition `json:"call_sites"`
}

// CallHierarchyItem is one prepared callable with its calls.
type CallHierarchyItem struct {
	Item          CallLocation    `json:"item"`
	IncomingCalls []CallReference `json:"incoming_calls"`
	OutgoingCalls []CallReference `json:"outgoing_calls"`
}

// CallHierarchyResponse lists every callable the server prepared at the
// position; usually one.
type CallHierarchyResponse struct {
	SelectedIdentifier model.Identifier    `json:"selected_identifier"`
	Items              []CallHierarchyItem `json:"items"`
}
