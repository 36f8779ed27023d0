// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import "github.com/AleutianAI/AleutianLSP/services/lsproxy/model"

// =============================================================================
// POSITION & RANGE TYPES
// =============================================================================

// Position and Range share the wire shape of the proxy's own model types,
// so LSP results need no coordinate conversion.
type (
	Position = model.Position
	Range    = model.Range
)

// Location represents a location in a document.
type Location struct {
	// URI is the document URI (file:// scheme).
	URI string `json:"uri"`

	// Range is the range within the document.
	Range Range `json:"range"`
}

// LocationLink represents a link between a source and target location.
type LocationLink struct {
	// OriginSelectionRange is the span in the source that was used.
	OriginSelectionRange *Range `json:"originSelectionRange,omitempty"`

	// TargetURI is the target document URI.
	TargetURI string `json:"targetUri"`

	// TargetRange is the full range of the target (for highlighting).
	TargetRange Range `json:"targetRange"`

	// TargetSelectionRange is the name of the target, e.g. a function name.
	TargetSelectionRange Range `json:"targetSelectionRange"`
}

// =============================================================================
// DOCUMENT IDENTIFIERS
// =============================================================================

// TextDocumentIdentifier identifies a text document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem represents a text document with its content.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier

	// Version is the version number. Null in workspace edits means unknown.
	Version *int `json:"version"`
}

// =============================================================================
// REQUEST PARAMETER TYPES
// =============================================================================

// TextDocumentPositionParams identifies a position in a text document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// ReferenceParams extends TextDocumentPositionParams for find references.
type ReferenceParams struct {
	TextDocumentPositionParams

	// Context contains additional context for the request.
	Context ReferenceContext `json:"context"`
}

// ReferenceContext contains options for find references requests.
type ReferenceContext struct {
	// IncludeDeclaration indicates whether to include the declaration.
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// RenameParams contains rename request parameters.
type RenameParams struct {
	TextDocumentPositionParams

	// NewName is the new name to rename the symbol to.
	NewName string `json:"newName"`
}

// DidOpenTextDocumentParams contains params for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams contains params for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent describes a content change event.
// The proxy always sends full-text changes, so Range is omitted.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// WorkspaceEdit represents changes to many resources.
type WorkspaceEdit struct {
	// Changes is a map from URI to list of text edits.
	Changes map[string][]TextEdit `json:"changes,omitempty"`

	// DocumentChanges are versioned document edits (preferred over Changes).
	DocumentChanges []TextDocumentEdit `json:"documentChanges,omitempty"`
}

// TextEdit represents a single text change.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentEdit describes edits to a specific document version.
type TextDocumentEdit struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
	Edits        []TextEdit                      `json:"edits"`
}

// =============================================================================
// INITIALIZE TYPES
// =============================================================================

// InitializeParams contains initialization parameters.
type InitializeParams struct {
	// ProcessID is the process ID of the parent process.
	ProcessID int `json:"processId"`

	// RootURI is the root URI of the workspace.
	RootURI string `json:"rootUri"`

	// RootPath is the root path of the workspace (deprecated, still read
	// by older servers).
	RootPath string `json:"rootPath,omitempty"`

	// Capabilities describes what the client supports.
	Capabilities ClientCapabilities `json:"capabilities"`

	// InitializationOptions are server-specific options from the language table.
	InitializationOptions any `json:"initializationOptions,omitempty"`

	// WorkspaceFolders are the project roots discovered in the workspace.
	WorkspaceFolders []WorkspaceFolder `json:"workspaceFolders,omitempty"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
}

// TextDocumentClientCapabilities describes text document capabilities.
type TextDocumentClientCapabilities struct {
	Synchronization *TextDocumentSyncClientCapabilities `json:"synchronization,omitempty"`
	Definition      *DefinitionCapabilities             `json:"definition,omitempty"`
	References      *ReferencesCapabilities             `json:"references,omitempty"`
	Rename          *RenameCapabilities                 `json:"rename,omitempty"`
	DocumentSymbol  *DocumentSymbolCapabilities         `json:"documentSymbol,omitempty"`
	CallHierarchy   *CallHierarchyCapabilities          `json:"callHierarchy,omitempty"`
}

// TextDocumentSyncClientCapabilities describes sync capabilities.
type TextDocumentSyncClientCapabilities struct {
	DidSave bool `json:"didSave,omitempty"`
}

// WorkspaceClientCapabilities describes workspace capabilities.
type WorkspaceClientCapabilities struct {
	WorkspaceFolders bool `json:"workspaceFolders,omitempty"`
	Configuration    bool `json:"configuration,omitempty"`
}

// DefinitionCapabilities describes go-to-definition support.
type DefinitionCapabilities struct {
	// LinkSupport indicates LocationLink support.
	LinkSupport bool `json:"linkSupport,omitempty"`
}

// ReferencesCapabilities describes find-references support.
type ReferencesCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// RenameCapabilities describes rename support.
type RenameCapabilities struct {
	PrepareSupport bool `json:"prepareSupport,omitempty"`
}

// DocumentSymbolCapabilities describes document symbol support.
type DocumentSymbolCapabilities struct {
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport,omitempty"`
}

// CallHierarchyCapabilities describes call hierarchy support.
type CallHierarchyCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// InitializeResult contains the server's response to initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Positional request methods routed through the Supervisor.
const (
	MethodDefinition           = "textDocument/definition"
	MethodReferences           = "textDocument/references"
	MethodRename               = "textDocument/rename"
	MethodPrepareCallHierarchy = "textDocument/prepareCallHierarchy"
	MethodIncomingCalls        = "callHierarchy/incomingCalls"
	MethodOutgoingCalls        = "callHierarchy/outgoingCalls"
)

// ServerCapabilities describes what the server supports. Provider fields
// are either a boolean or an options object.
type ServerCapabilities struct {
	TextDocumentSync      any `json:"textDocumentSync,omitempty"`
	DefinitionProvider    any `json:"definitionProvider,omitempty"`
	ReferencesProvider    any `json:"referencesProvider,omitempty"`
	RenameProvider        any `json:"renameProvider,omitempty"`
	CallHierarchyProvider any `json:"callHierarchyProvider,omitempty"`
}

// HasDefinitionProvider returns true if definition is supported.
func (c *ServerCapabilities) HasDefinitionProvider() bool {
	return providerEnabled(c.DefinitionProvider)
}

// HasReferencesProvider returns true if references is supported.
func (c *ServerCapabilities) HasReferencesProvider() bool {
	return providerEnabled(c.ReferencesProvider)
}

// HasRenameProvider returns true if rename is supported.
func (c *ServerCapabilities) HasRenameProvider() bool {
	return providerEnabled(c.RenameProvider)
}

// HasCallHierarchyProvider returns true if call hierarchy is supported.
func (c *ServerCapabilities) HasCallHierarchyProvider() bool {
	return providerEnabled(c.CallHierarchyProvider)
}

// Supports reports whether the server advertised the provider behind
// method. Methods with no gating provider are assumed supported;
// definition is not gated because some servers answer it unadvertised.
func (c *ServerCapabilities) Supports(method string) bool {
	switch method {
	case MethodReferences:
		return c.HasReferencesProvider()
	case MethodRename:
		return c.HasRenameProvider()
	case MethodPrepareCallHierarchy, MethodIncomingCalls, MethodOutgoingCalls:
		return c.HasCallHierarchyProvider()
	}
	return true
}

func providerEnabled(v any) bool {
	return v != nil && v != false
}
