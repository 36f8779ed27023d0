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
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// MaxNearestIdentifiers caps the result of a positional search with no
// exact hit.
const MaxNearestIdentifiers = 3

// FindIdentifier searches req.Path for identifiers named req.Name.
//
// Description:
//
//	Without a position every occurrence is returned in file order. With a
//	position, an occurrence containing it is returned alone; otherwise
//	the nearest occurrences are returned, closest line first and closest
//	character breaking ties, at most MaxNearestIdentifiers of them.
//
// Errors:
//
//	ErrInvalidArgument - empty name
//	model.ErrInvalidPosition - position outside the file
//	model.ErrIdentifierNotFound - the name does not occur in the file
func (t *Translator) FindIdentifier(ctx context.Context, req IdentifierRequest) ([]model.Identifier, error) {
	ctx, span := startOperationSpan(ctx, "FindIdentifier", req.Path)
	defer span.End()
	start := time.Now()

	ids, language, err := t.findIdentifier(ctx, req)
	if err != nil {
		setOperationSpanResult(span, language, 0, false)
		recordOperationMetrics(ctx, "find_identifier", language, time.Since(start), 0, false)
		return nil, err
	}
	setOperationSpanResult(span, language, len(ids), true)
	recordOperationMetrics(ctx, "find_identifier", language, time.Since(start), len(ids), true)
	return ids, nil
}

func (t *Translator) findIdentifier(ctx context.Context, req IdentifierRequest) ([]model.Identifier, string, error) {
	if req.Name == "" {
		return nil, "", fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}

	f, src, parsed, err := t.parse(ctx, req.Path)
	if err != nil {
		return nil, f.Language, err
	}
	if req.Position != nil && !src.ValidPosition(*req.Position) {
		return nil, f.Language, fmt.Errorf("%w: %s:%s (file has %d lines)",
			model.ErrInvalidPosition, f.Path, *req.Position, src.LineCount())
	}

	var matches []model.Identifier
	for _, id := range parsed.Identifiers() {
		if id.Name == req.Name {
			matches = append(matches, id)
		}
	}
	if len(matches) == 0 {
		return nil, f.Language, fmt.Errorf("%w: %q in %s", model.ErrIdentifierNotFound, req.Name, f.Path)
	}

	if req.Position == nil {
		return matches, f.Language, nil
	}
	return nearestIdentifiers(matches, *req.Position, MaxNearestIdentifiers), f.Language, nil
}

// nearestIdentifiers returns the identifier containing pos, or the limit
// identifiers closest to it. Line distance is compared first; character
// distance only breaks ties between equally distant lines. Equal
// distances keep file order.
func nearestIdentifiers(ids []model.Identifier, pos model.Position, limit int) []model.Identifier {
	for _, id := range ids {
		if id.Range.Contains(pos) {
			return []model.Identifier{id}
		}
	}

	ranked := slices.Clone(ids)
	slices.SortStableFunc(ranked, func(a, b model.Identifier) int {
		da, db := distance(a, pos), distance(b, pos)
		if c := cmp.Compare(da.lines, db.lines); c != 0 {
			return c
		}
		return cmp.Compare(da.chars, db.chars)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

type lineCharDistance struct {
	lines int
	chars int
}

func distance(id model.Identifier, pos model.Position) lineCharDistance {
	return lineCharDistance{
		lines: abs(id.Range.Start.Line - pos.Line),
		chars: abs(id.Range.Start.Character - pos.Character),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
