// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsproxy

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all proxy routes with the router.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// System Endpoints:
//
//	GET  /v1/system/health - Per-language readiness
//	GET  /v1/system/languages - Configured language servers
//
// Workspace Endpoints:
//
//	GET  /v1/workspace/list-files - Workspace-relative file list
//	POST /v1/workspace/read-source-code - Read a file or a range of it
//
// Symbol Endpoints:
//
//	GET  /v1/symbol/definitions-in-file - Top-level symbols in a file
//	POST /v1/symbol/find-definition - Definition of the identifier at a position
//	POST /v1/symbol/find-references - References to the identifier at a position
//	POST /v1/symbol/find-identifier - Identifiers by name in a file
//	POST /v1/symbol/find-referenced-symbols - Classify what a symbol references
//	POST /v1/symbol/find-referenced-definitions - Workspace symbols used in a range
//	POST /v1/symbol/call-hierarchy - Callers and callees of a function
//	POST /v1/symbol/rename - Preview a rename
//
// Example:
//
//	handlers := lsproxy.NewHandlers(translator, supervisor)
//	v1 := router.Group("/v1")
//	lsproxy.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	system := rg.Group("/system")
	{
		system.GET("/health", handlers.HandleHealth)
		system.GET("/languages", handlers.HandleLanguages)
	}

	ws := rg.Group("/workspace")
	{
		ws.GET("/list-files", handlers.HandleListFiles)
		ws.POST("/read-source-code", handlers.HandleReadSourceCode)
	}

	symbol := rg.Group("/symbol")
	{
		symbol.GET("/definitions-in-file", handlers.HandleDefinitionsInFile)
		symbol.POST("/find-definition", handlers.HandleFindDefinition)
		symbol.POST("/find-references", handlers.HandleFindReferences)
		symbol.POST("/find-identifier", handlers.HandleFindIdentifier)
		symbol.POST("/find-referenced-symbols", handlers.HandleFindReferencedSymbols)
		symbol.POST("/find-referenced-definitions", handlers.HandleFindReferencedDefinitions)
		symbol.POST("/call-hierarchy", handlers.HandleCallHierarchy)
		symbol.POST("/rename", handlers.HandleRename)
	}
}
