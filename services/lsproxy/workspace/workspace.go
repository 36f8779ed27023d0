// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace owns the served directory: path normalization,
// file-to-language routing, file enumeration, change watching and fresh
// source reads.
//
// # Thread Safety
//
// Workspace is safe for concurrent use.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
)

// Workspace is the directory tree the proxy serves.
type Workspace struct {
	root     string // absolute, symlinks resolved
	given    string // absolute as configured
	registry *lsp.ConfigRegistry
	exclude  *Matcher
	logger   *slog.Logger

	mu        sync.RWMutex
	files     []string
	languages []string
	scanned   bool
	watching  bool
}

// New opens the workspace rooted at root.
//
// Inputs:
//
//	root - Workspace directory; relative paths resolve against the cwd.
//	registry - Language table used for routing and enumeration.
//	exclude - Glob patterns skipped by enumeration and watching.
//
// Outputs:
//
//	*Workspace - The workspace. Nothing is scanned yet.
//	error - Non-nil if root is not a directory or a pattern is invalid.
func New(root string, registry *lsp.ConfigRegistry, exclude []string) (*Workspace, error) {
	given, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(given)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", given)
	}

	matcher, err := NewMatcher(exclude)
	if err != nil {
		return nil, err
	}

	return &Workspace{
		root:     resolved,
		given:    given,
		registry: registry,
		exclude:  matcher,
		logger:   slog.Default().With(slog.String("component", "workspace")),
	}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Registry returns the language table.
func (w *Workspace) Registry() *lsp.ConfigRegistry {
	return w.registry
}

// ListFiles walks the workspace and returns sorted, slash-separated
// relative paths of every file a configured language claims. The
// detected-language cache is updated as a side effect.
func (w *Workspace) ListFiles(ctx context.Context) ([]string, error) {
	files, err := w.walk(ctx)
	if err != nil {
		return nil, err
	}
	w.store(files)
	return files, nil
}

// Refresh rescans the workspace.
func (w *Workspace) Refresh(ctx context.Context) error {
	_, err := w.ListFiles(ctx)
	return err
}

// DetectedLanguages returns the languages with at least one file, in
// registration order.
//
// Description:
//
//	While a watcher is running the cached scan is returned; otherwise
//	the workspace is rescanned.
func (w *Workspace) DetectedLanguages(ctx context.Context) ([]string, error) {
	w.mu.RLock()
	if w.watching && w.scanned {
		langs := slices.Clone(w.languages)
		w.mu.RUnlock()
		return langs, nil
	}
	w.mu.RUnlock()

	if err := w.Refresh(ctx); err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.languages), nil
}

// Files returns the most recent scan, scanning first if none exists.
func (w *Workspace) Files(ctx context.Context) ([]string, error) {
	w.mu.RLock()
	if w.scanned {
		files := slices.Clone(w.files)
		w.mu.RUnlock()
		return files, nil
	}
	w.mu.RUnlock()
	return w.ListFiles(ctx)
}

func (w *Workspace) store(files []string) {
	present := make(map[string]bool)
	for _, f := range files {
		if lang, err := w.LanguageFor(f); err == nil {
			present[lang] = true
		}
	}
	var langs []string
	for _, l := range w.registry.Languages() {
		if present[l] {
			langs = append(langs, l)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !slices.Equal(langs, w.languages) && w.scanned {
		w.logger.Info("detected languages changed", slog.Any("languages", langs))
	}
	w.files = files
	w.languages = langs
	w.scanned = true
}
