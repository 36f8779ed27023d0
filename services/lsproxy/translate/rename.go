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
	"slices"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// Rename previews renaming the identifier at req.Position.
//
// Description:
//
//	Asks the owning server for textDocument/rename and returns the
//	proposed edits with workspace-relative paths, ordered by path and
//	position, plus a per-file count. Nothing is written to disk.
//
// Errors:
//
//	ErrInvalidArgument - empty or multi-line new name
//	model.ErrInvalidPosition, model.ErrIdentifierNotFound - as FindDefinition
//	model.ErrUpstreamProtocol - the server refused the rename or sent
//	    resource operations
func (t *Translator) Rename(ctx context.Context, req RenameRequest) (*RenameResponse, error) {
	ctx, span := startOperationSpan(ctx, "Rename", req.Position.Path)
	defer span.End()
	start := time.Now()

	resp, language, err := t.rename(ctx, req)
	if err != nil {
		setOperationSpanResult(span, language, 0, false)
		recordOperationMetrics(ctx, "rename", language, time.Since(start), 0, false)
		return nil, err
	}
	setOperationSpanResult(span, language, len(resp.Edits), true)
	recordOperationMetrics(ctx, "rename", language, time.Since(start), len(resp.Edits), true)
	return resp, nil
}

func (t *Translator) rename(ctx context.Context, req RenameRequest) (*RenameResponse, string, error) {
	name := strings.TrimSpace(req.NewName)
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return nil, "", fmt.Errorf("%w: new_name must be a non-empty single line", ErrInvalidArgument)
	}

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

	params := lsp.RenameParams{
		TextDocumentPositionParams: tg.positionParams(),
		NewName:                    name,
	}
	raw, err := t.upstream.Request(ctx, language, MethodRename, params)
	if err != nil {
		return nil, language, fmt.Errorf("rename request: %w", err)
	}
	edit, err := lsp.ParseWorkspaceEdit(raw)
	if err != nil {
		return nil, language, fmt.Errorf("rename response: %w", err)
	}

	resp := &RenameResponse{
		SelectedIdentifier: selected,
		Edits:              make([]FileTextEdit, 0),
		Files:              make([]FileEditSummary, 0),
	}
	if edit == nil {
		return resp, language, nil
	}

	for uri, edits := range edit.Changes {
		path, _ := t.displayPath(lsp.URIToPath(uri))
		for _, e := range edits {
			resp.Edits = append(resp.Edits, FileTextEdit{
				Range:   model.FileRange{Path: path, Start: e.Range.Start, End: e.Range.End},
				NewText: e.NewText,
			})
		}
	}
	slices.SortFunc(resp.Edits, func(a, b FileTextEdit) int {
		return model.CompareFilePositions(a.Range.StartPosition(), b.Range.StartPosition())
	})

	for _, e := range resp.Edits {
		if n := len(resp.Files); n > 0 && resp.Files[n-1].Path == e.Range.Path {
			resp.Files[n-1].Edits++
			continue
		}
		resp.Files = append(resp.Files, FileEditSummary{Path: e.Range.Path, Edits: 1})
	}
	return resp, language, nil
}
