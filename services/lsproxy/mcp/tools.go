// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/translate"
)

// Tool names.
const (
	ToolListFiles             = "list_files"
	ToolReadSourceCode        = "read_source_code"
	ToolDefinitionsInFile     = "definitions_in_file"
	ToolFindDefinition        = "find_definition"
	ToolFindReferences        = "find_references"
	ToolFindIdentifier        = "find_identifier"
	ToolFindReferencedSymbols = "find_referenced_symbols"
	ToolReferencedDefinitions = "find_referenced_definitions"
	ToolCallHierarchy         = "call_hierarchy"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listFilesTool(),
		s.readSourceCodeTool(),
		s.definitionsInFileTool(),
		s.findDefinitionTool(),
		s.findReferencesTool(),
		s.findIdentifierTool(),
		s.findReferencedSymbolsTool(),
		s.referencedDefinitionsTool(),
		s.callHierarchyTool(),
	)
}

// =============================================================================
// TOOL DEFINITIONS
// =============================================================================

func pathArg() mcplib.ToolOption {
	return mcplib.WithString("path",
		mcplib.Required(),
		mcplib.Description("Workspace-relative file path"),
	)
}

func positionArgs(required bool) []mcplib.ToolOption {
	line := []mcplib.PropertyOption{mcplib.Description("0-indexed line"), mcplib.Min(0)}
	char := []mcplib.PropertyOption{mcplib.Description("0-indexed UTF-16 character offset in the line"), mcplib.Min(0)}
	if required {
		line = append(line, mcplib.Required())
		char = append(char, mcplib.Required())
	}
	return []mcplib.ToolOption{
		mcplib.WithNumber("line", line...),
		mcplib.WithNumber("character", char...),
	}
}

func newTool(name, description string, opts ...mcplib.ToolOption) mcplib.Tool {
	opts = append([]mcplib.ToolOption{
		mcplib.WithDescription(description),
		mcplib.WithReadOnlyHintAnnotation(true),
	}, opts...)
	return mcplib.NewTool(name, opts...)
}

func (s *Server) listFilesTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool:    newTool(ToolListFiles, "List every source file in the workspace that a configured language claims"),
		Handler: s.handleListFiles,
	}
}

func (s *Server) readSourceCodeTool() mcpserver.ServerTool {
	tool := newTool(ToolReadSourceCode,
		"Read a workspace file, or the part of it between a start and an end position",
		pathArg(),
		mcplib.WithNumber("start_line", mcplib.Description("Range start line; requires end_line")),
		mcplib.WithNumber("start_character", mcplib.Description("Range start character")),
		mcplib.WithNumber("end_line", mcplib.Description("Range end line (exclusive end position)")),
		mcplib.WithNumber("end_character", mcplib.Description("Range end character")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReadSourceCode}
}

func (s *Server) definitionsInFileTool() mcpserver.ServerTool {
	tool := newTool(ToolDefinitionsInFile,
		"List the top-level symbols (functions, classes, variables) defined in a file",
		pathArg(),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleDefinitionsInFile}
}

func (s *Server) findDefinitionTool() mcpserver.ServerTool {
	opts := append([]mcplib.ToolOption{pathArg()}, positionArgs(true)...)
	opts = append(opts, mcplib.WithBoolean("include_source_code",
		mcplib.Description("Include the source of each definition"),
	))
	tool := newTool(ToolFindDefinition, "Find where the identifier at a position is defined", opts...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFindDefinition}
}

func (s *Server) findReferencesTool() mcpserver.ServerTool {
	opts := append([]mcplib.ToolOption{pathArg()}, positionArgs(true)...)
	opts = append(opts, mcplib.WithNumber("context_lines",
		mcplib.Description("Lines of source to include around each reference"),
		mcplib.Min(0),
	))
	tool := newTool(ToolFindReferences, "Find every reference to the identifier at a position", opts...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFindReferences}
}

func (s *Server) findIdentifierTool() mcpserver.ServerTool {
	opts := []mcplib.ToolOption{
		pathArg(),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Identifier name to search for")),
	}
	opts = append(opts, positionArgs(false)...)
	tool := newTool(ToolFindIdentifier,
		"Find occurrences of a name in a file. With a position, return the occurrence there or the nearest few",
		opts...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFindIdentifier}
}

func (s *Server) findReferencedSymbolsTool() mcpserver.ServerTool {
	opts := append([]mcplib.ToolOption{pathArg()}, positionArgs(true)...)
	opts = append(opts, mcplib.WithBoolean("full_scan",
		mcplib.Description("Also classify type annotations and plain identifier uses"),
	))
	tool := newTool(ToolFindReferencedSymbols,
		"Classify what the symbol at a position references: workspace symbols, external symbols, or not found",
		opts...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFindReferencedSymbols}
}

func (s *Server) referencedDefinitionsTool() mcpserver.ServerTool {
	tool := newTool(ToolReferencedDefinitions,
		"List the workspace symbols that the code between a start and an end position refers to",
		pathArg(),
		mcplib.WithNumber("start_line", mcplib.Required(), mcplib.Description("Range start line"), mcplib.Min(0)),
		mcplib.WithNumber("start_character", mcplib.Description("Range start character"), mcplib.Min(0)),
		mcplib.WithNumber("end_line", mcplib.Required(), mcplib.Description("Range end line"), mcplib.Min(0)),
		mcplib.WithNumber("end_character", mcplib.Description("Range end character (exclusive)"), mcplib.Min(0)),
		mcplib.WithBoolean("full_scan",
			mcplib.Description("Also resolve type annotations and plain identifier uses"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReferencedDefinitions}
}

func (s *Server) callHierarchyTool() mcpserver.ServerTool {
	opts := append([]mcplib.ToolOption{pathArg()}, positionArgs(true)...)
	tool := newTool(ToolCallHierarchy,
		"List the callers and callees of the function whose name is at a position",
		opts...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCallHierarchy}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleListFiles(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	files, err := s.ws.ListFiles(ctx)
	if err != nil {
		return s.toolError(ToolListFiles, err), nil
	}
	if files == nil {
		files = []string{}
	}
	return toolResultJSON(files)
}

func (s *Server) handleReadSourceCode(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	var rng *model.Range
	if _, ok := req.GetArguments()["end_line"]; ok {
		rng = &model.Range{
			Start: model.Position{Line: req.GetInt("start_line", 0), Character: req.GetInt("start_character", 0)},
			End:   model.Position{Line: req.GetInt("end_line", 0), Character: req.GetInt("end_character", 0)},
		}
	}

	text, err := s.ws.ReadSource(path, rng)
	if err != nil {
		return s.toolError(ToolReadSourceCode, err), nil
	}
	return toolResultJSON(lsproxy.ReadSourceCodeResponse{SourceCode: text})
}

func (s *Server) handleDefinitionsInFile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	symbols, err := s.translator.DefinitionsInFile(ctx, path)
	if err != nil {
		return s.toolError(ToolDefinitionsInFile, err), nil
	}
	return toolResultJSON(symbols)
}

func (s *Server) handleFindDefinition(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	pos, err := filePosition(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	resp, err := s.translator.FindDefinition(ctx, translate.DefinitionRequest{
		Position:          pos,
		IncludeSourceCode: req.GetBool("include_source_code", false),
	})
	if err != nil {
		return s.toolError(ToolFindDefinition, err), nil
	}
	return toolResultJSON(resp)
}

func (s *Server) handleFindReferences(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	pos, err := filePosition(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	r := translate.ReferencesRequest{IdentifierPosition: pos}
	if _, ok := req.GetArguments()["context_lines"]; ok {
		n := req.GetInt("context_lines", 0)
		r.IncludeCodeContextLines = &n
	}
	resp, err := s.translator.FindReferences(ctx, r)
	if err != nil {
		return s.toolError(ToolFindReferences, err), nil
	}
	return toolResultJSON(resp)
}

func (s *Server) handleFindIdentifier(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	r := translate.IdentifierRequest{Path: path, Name: name}
	args := req.GetArguments()
	if _, ok := args["line"]; ok {
		r.Position = &model.Position{Line: req.GetInt("line", 0), Character: req.GetInt("character", 0)}
	}

	ids, err := s.translator.FindIdentifier(ctx, r)
	if err != nil {
		return s.toolError(ToolFindIdentifier, err), nil
	}
	return toolResultJSON(translate.IdentifierResponse{Identifiers: ids})
}

func (s *Server) handleFindReferencedSymbols(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	pos, err := filePosition(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	resp, err := s.translator.FindReferencedSymbols(ctx, translate.ReferencedSymbolsRequest{
		IdentifierPosition: pos,
		FullScan:           req.GetBool("full_scan", false),
	})
	if err != nil {
		return s.toolError(ToolFindReferencedSymbols, err), nil
	}
	return toolResultJSON(resp)
}

func (s *Server) handleReferencedDefinitions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	startLine, err := req.RequireInt("start_line")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	endLine, err := req.RequireInt("end_line")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	symbols, err := s.translator.FindReferencedDefinitions(ctx, translate.ReferencedDefinitionsRequest{
		Range: model.FileRange{
			Path:  path,
			Start: model.Position{Line: startLine, Character: req.GetInt("start_character", 0)},
			End:   model.Position{Line: endLine, Character: req.GetInt("end_character", 0)},
		},
		FullScan: req.GetBool("full_scan", false),
	})
	if err != nil {
		return s.toolError(ToolReferencedDefinitions, err), nil
	}
	return toolResultJSON(symbols)
}

func (s *Server) handleCallHierarchy(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	pos, err := filePosition(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	resp, err := s.translator.CallHierarchy(ctx, translate.CallHierarchyRequest{IdentifierPosition: pos})
	if err != nil {
		return s.toolError(ToolCallHierarchy, err), nil
	}
	return toolResultJSON(resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func filePosition(req mcplib.CallToolRequest) (model.FilePosition, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return model.FilePosition{}, err
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return model.FilePosition{}, err
	}
	char, err := req.RequireInt("character")
	if err != nil {
		return model.FilePosition{}, err
	}
	return model.FilePosition{Path: path, Position: model.Position{Line: line, Character: char}}, nil
}

func (s *Server) toolError(tool string, err error) *mcplib.CallToolResult {
	code := lsproxy.ErrorCode(err)
	s.logger.Debug("tool failed",
		slog.String("tool", tool),
		slog.String("code", code),
		slog.String("error", err.Error()))
	return mcplib.NewToolResultError(fmt.Sprintf("%s: %v", code, err))
}

func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
