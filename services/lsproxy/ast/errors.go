// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// Sentinel errors for extraction failures.
var (
	// ErrUnsupportedLanguage indicates no grammar is registered for the
	// language. It matches model.ErrUnsupportedLanguage.
	ErrUnsupportedLanguage = fmt.Errorf("no grammar: %w", model.ErrUnsupportedLanguage)

	// ErrFileTooLarge indicates the content exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrParseFailed indicates tree-sitter produced no tree.
	ErrParseFailed = errors.New("parse failed")
)
