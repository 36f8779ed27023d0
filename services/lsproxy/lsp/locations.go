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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts a file path to a file:// URI.
//
// Description:
//
//	Properly encodes the path for use in a file:// URI, handling special
//	characters like spaces, unicode, and other reserved characters.
//	Relative paths are made absolute against the working directory.
func PathToURI(path string) string {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
	}

	u := &url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	return u.String()
}

// URIToPath converts a file:// URI to an absolute file path.
func URIToPath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return strings.TrimPrefix(uri, "file://")
}

// ParseLocations parses a definition or references result.
//
// Description:
//
//	Accepts every shape the protocol allows: null, a single Location, a
//	Location array or a LocationLink array. Links are reduced to their
//	target selection range, which spans the target's name.
//
// Outputs:
//
//	[]Location - Parsed locations; nil for a null result
//	error - ErrInvalidResponse if the payload matches no shape
func ParseLocations(data json.RawMessage) ([]Location, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		locations := make([]Location, 0, len(raw))
		for _, item := range raw {
			loc, err := parseLocation(item)
			if err != nil {
				return nil, err
			}
			locations = append(locations, loc)
		}
		return locations, nil
	}

	loc, err := parseLocation(data)
	if err != nil {
		return nil, err
	}
	return []Location{loc}, nil
}

// locationOrLink decodes either shape in one pass.
type locationOrLink struct {
	URI                  string `json:"uri"`
	Range                *Range `json:"range"`
	TargetURI            string `json:"targetUri"`
	TargetSelectionRange *Range `json:"targetSelectionRange"`
	TargetRange          *Range `json:"targetRange"`
}

func parseLocation(data json.RawMessage) (Location, error) {
	var v locationOrLink
	if err := json.Unmarshal(data, &v); err != nil {
		return Location{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	switch {
	case v.TargetURI != "" && v.TargetSelectionRange != nil:
		return Location{URI: v.TargetURI, Range: *v.TargetSelectionRange}, nil
	case v.TargetURI != "" && v.TargetRange != nil:
		return Location{URI: v.TargetURI, Range: *v.TargetRange}, nil
	case v.URI != "" && v.Range != nil:
		return Location{URI: v.URI, Range: *v.Range}, nil
	}
	return Location{}, fmt.Errorf("%w: not a location: %s", ErrInvalidResponse, truncate(data, 120))
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// ParseWorkspaceEdit parses a rename result.
//
// Description:
//
//	Folds documentChanges into the Changes map so callers handle one
//	shape. Resource operations (create/rename/delete file) are rejected
//	as the proxy only previews text edits.
//
// Outputs:
//
//	*WorkspaceEdit - Parsed edit; nil for a null result
//	error - ErrInvalidResponse for malformed payloads
func ParseWorkspaceEdit(data json.RawMessage) (*WorkspaceEdit, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var edit WorkspaceEdit
	if err := json.Unmarshal(data, &edit); err != nil {
		return nil, fmt.Errorf("%w: workspace edit: %w", ErrInvalidResponse, err)
	}

	if edit.Changes == nil {
		edit.Changes = make(map[string][]TextEdit)
	}
	for _, dc := range edit.DocumentChanges {
		if dc.TextDocument.URI == "" {
			return nil, fmt.Errorf("%w: resource operations are not supported", ErrInvalidResponse)
		}
		edit.Changes[dc.TextDocument.URI] = append(edit.Changes[dc.TextDocument.URI], dc.Edits...)
	}
	edit.DocumentChanges = nil
	return &edit, nil
}
