// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcp exposes the proxy's read-only operations as Model Context
// Protocol tools over stdio.
//
// Tool results are the JSON bodies the REST surface returns. Failures are
// tool errors (IsError set) prefixed with the same error code the REST
// surface uses, never protocol errors.
package mcp

import (
	"context"
	"io"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/translate"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/workspace"
)

// ServerName is reported in the MCP initialize response.
const ServerName = "aleutian-lsproxy"

// Server serves proxy tools over MCP.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	translator *translate.Translator
	ws         *workspace.Workspace
	logger     *slog.Logger
}

// NewServer creates an MCP server with every tool registered.
func NewServer(translator *translate.Translator, version string) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(ServerName, version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
		translator: translator,
		ws:         translator.Workspace(),
		logger:     slog.Default().With(slog.String("component", "mcp")),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves newline-delimited JSON-RPC on in and out until ctx is
// canceled or in is closed.
//
// stdout carries the protocol, so nothing else may write to it while this
// runs; logs must go to stderr or a file.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	s.logger.Info("mcp server listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
