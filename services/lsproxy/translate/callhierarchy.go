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

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// CallHierarchy lists the callers and callees of the function at
// req.IdentifierPosition.
//
// Description:
//
//	Asks the owning server to prepare the call hierarchy at the
//	position, then fetches incoming and outgoing calls for every
//	prepared item. An item whose calls cannot be fetched is skipped;
//	the operation fails only when every item fails. Call sites are the
//	start of each call expression, in the caller's file. References are
//	ordered by the target's name position.
//
// Errors:
//
//	model.ErrInvalidPosition - position outside the file
//	model.ErrIdentifierNotFound - no identifier, or no callable, at the
//	    position
//	lsp.ErrMethodNotSupported - the server has no call hierarchy
//	model.ErrUpstreamTimeout, model.ErrProcessUnavailable - from the
//	    language server
func (t *Translator) CallHierarchy(ctx context.Context, req CallHierarchyRequest) (*CallHierarchyResponse, error) {
	ctx, span := startOperationSpan(ctx, "CallHierarchy", req.IdentifierPosition.Path)
	defer span.End()
	start := time.Now()

	resp, language, err := t.callHierarchy(ctx, req)
	if err != nil {
		setOperationSpanResult(span, language, 0, false)
		recordOperationMetrics(ctx, "call_hierarchy", language, time.Since(start), 0, false)
		return nil, err
	}
	setOperationSpanResult(span, language, len(resp.Items), true)
	recordOperationMetrics(ctx, "call_hierarchy", language, time.Since(start), len(resp.Items), true)
	return resp, nil
}

func (t *Translator) callHierarchy(ctx context.Context, req CallHierarchyRequest) (*CallHierarchyResponse, string, error) {
	tg, err := t.resolve(ctx, req.IdentifierPosition)
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

	raw, err := t.upstream.Request(ctx, language, MethodPrepareCallHierarchy, tg.positionParams())
	if err != nil {
		return nil, language, fmt.Errorf("prepare call hierarchy: %w", err)
	}
	prepared, err := lsp.ParseCallHierarchyItems(raw)
	if err != nil {
		return nil, language, fmt.Errorf("prepare call hierarchy response: %w", err)
	}
	if len(prepared) == 0 {
		return nil, language, fmt.Errorf("%w: no callable at %s:%s",
			model.ErrIdentifierNotFound, tg.file.Path, tg.pos)
	}

	resp := &CallHierarchyResponse{
		SelectedIdentifier: selected,
		Items:              make([]CallHierarchyItem, 0, len(prepared)),
	}
	var firstErr error
	for _, item := range prepared {
		entry, err := t.callsOf(ctx, language, item)
		if err != nil {
			t.logger.Debug("call hierarchy item skipped",
				slog.String("item", item.Name),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		resp.Items = append(resp.Items, entry)
	}
	if len(resp.Items) == 0 {
		return nil, language, firstErr
	}
	return resp, language, nil
}

// callsOf fetches both directions for one prepared item.
func (t *Translator) callsOf(ctx context.Context, language string, item lsp.CallHierarchyItem) (CallHierarchyItem, error) {
	params := lsp.CallHierarchyCallsParams{Item: item}

	raw, err := t.upstream.Request(ctx, language, MethodIncomingCalls, params)
	if err != nil {
		return CallHierarchyItem{}, fmt.Errorf("incoming calls of %s: %w", item.Name, err)
	}
	incoming, err := lsp.ParseIncomingCalls(raw)
	if err != nil {
		return CallHierarchyItem{}, fmt.Errorf("incoming calls of %s: %w", item.Name, err)
	}

	raw, err = t.upstream.Request(ctx, language, MethodOutgoingCalls, params)
	if err != nil {
		return CallHierarchyItem{}, fmt.Errorf("outgoing calls of %s: %w", item.Name, err)
	}
	outgoing, err := lsp.ParseOutgoingCalls(raw)
	if err != nil {
		return CallHierarchyItem{}, fmt.Errorf("outgoing calls of %s: %w", item.Name, err)
	}

	entry := CallHierarchyItem{
		Item:          t.callLocation(item),
		IncomingCalls: make([]CallReference, 0, len(incoming)),
		OutgoingCalls: make([]CallReference, 0, len(outgoing)),
	}
	for _, call := range incoming {
		entry.IncomingCalls = append(entry.IncomingCalls, CallReference{
			Target:    t.callLocation(call.From),
			CallSites: t.callSites(call.From.URI, call.FromRanges),
		})
	}
	for _, call := range outgoing {
		entry.OutgoingCalls = append(entry.OutgoingCalls, CallReference{
			Target:    t.callLocation(call.To),
			CallSites: t.callSites(item.URI, call.FromRanges),
		})
	}
	sortCallReferences(entry.IncomingCalls)
	sortCallReferences(entry.OutgoingCalls)
	return entry, nil
}

func (t *Translator) callLocation(item lsp.CallHierarchyItem) CallLocation {
	path, _ := t.displayPath(lsp.URIToPath(item.URI))
	return CallLocation{
		Name:           item.Name,
		Range:          model.FileRange{Path: path, Start: item.Range.Start, End: item.Range.End},
		SelectionRange: model.FileRange{Path: path, Start: item.SelectionRange.Start, End: item.SelectionRange.End},
	}
}

func (t *Translator) callSites(uri string, ranges []lsp.Range) []model.FilePosition {
	locs := make([]lsp.Location, 0, len(ranges))
	for _, r := range ranges {
		locs = append(locs, lsp.Location{URI: uri, Range: r})
	}
	return t.filePositions(locs)
}

func sortCallReferences(refs []CallReference) {
	slices.SortStableFunc(refs, func(a, b CallReference) int {
		return model.CompareFilePositions(a.Target.SelectionRange.StartPosition(), b.Target.SelectionRange.StartPosition())
	})
}
