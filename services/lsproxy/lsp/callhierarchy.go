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
)

// CallHierarchyItem is a callable as the server identifies it. Items are
// sent back verbatim in incoming/outgoing requests, so Data is kept raw.
type CallHierarchyItem struct {
	Name           string          `json:"name"`
	Kind           int             `json:"kind"`
	Tags           []int           `json:"tags,omitempty"`
	Detail         string          `json:"detail,omitempty"`
	URI            string          `json:"uri"`
	Range          Range           `json:"range"`
	SelectionRange Range           `json:"selectionRange"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// CallHierarchyCallsParams is the request body of both
// callHierarchy/incomingCalls and callHierarchy/outgoingCalls.
type CallHierarchyCallsParams struct {
	Item CallHierarchyItem `json:"item"`
}

// CallHierarchyIncomingCall is a caller of the item. FromRanges lie in
// the caller's document.
type CallHierarchyIncomingCall struct {
	From       CallHierarchyItem `json:"from"`
	FromRanges []Range           `json:"fromRanges"`
}

// CallHierarchyOutgoingCall is a callee of the item. FromRanges lie in
// the item's own document.
type CallHierarchyOutgoingCall struct {
	To         CallHierarchyItem `json:"to"`
	FromRanges []Range           `json:"fromRanges"`
}

// ParseCallHierarchyItems parses a textDocument/prepareCallHierarchy
// result. A null result is no items.
func ParseCallHierarchyItems(data json.RawMessage) ([]CallHierarchyItem, error) {
	return parseArray[CallHierarchyItem](data)
}

// ParseIncomingCalls parses a callHierarchy/incomingCalls result.
func ParseIncomingCalls(data json.RawMessage) ([]CallHierarchyIncomingCall, error) {
	return parseArray[CallHierarchyIncomingCall](data)
}

// ParseOutgoingCalls parses a callHierarchy/outgoingCalls result.
func ParseOutgoingCalls(data json.RawMessage) ([]CallHierarchyOutgoingCall, error) {
	return parseArray[CallHierarchyOutgoingCall](data)
}

func parseArray[T any](data json.RawMessage) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return out, nil
}
