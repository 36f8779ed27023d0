// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// File is a routed workspace file.
type File struct {
	// Path is slash-separated and relative to the workspace root.
	Path string

	// AbsPath is the absolute path under the resolved root.
	AbsPath string

	// Language owns the file.
	Language string
}

// Route normalizes path and picks the language that owns it.
//
// Description:
//
//	Checks run in order, so the first failure is reported: the path
//	must stay inside the root, a language must claim its extension, and
//	it must name an existing regular file.
//
// Inputs:
//
//	p - Workspace-relative or absolute path.
//
// Errors:
//
//	model.ErrPathOutsideWorkspace - p escapes the root, also via symlinks
//	model.ErrUnsupportedLanguage - no language claims the extension
//	model.ErrPathNotFound - the file is missing or not a regular file
func (w *Workspace) Route(p string) (File, error) {
	rel, err := w.normalize(p)
	if err != nil {
		return File{}, err
	}

	lang, err := w.LanguageFor(rel)
	if err != nil {
		return File{}, err
	}

	abs, err := w.checkFile(rel)
	if err != nil {
		return File{}, err
	}
	return File{Path: rel, AbsPath: abs, Language: lang}, nil
}

// Resolve normalizes p and checks it names a regular file, without
// language routing. Used by raw source reads.
func (w *Workspace) Resolve(p string) (File, error) {
	rel, err := w.normalize(p)
	if err != nil {
		return File{}, err
	}
	abs, err := w.checkFile(rel)
	if err != nil {
		return File{}, err
	}
	return File{Path: rel, AbsPath: abs}, nil
}

// Relative converts an absolute path to a workspace-relative one. The
// second result is false when the path lies outside the root.
func (w *Workspace) Relative(abs string) (string, bool) {
	for _, base := range []string{w.root, w.given} {
		if rel, ok := within(base, filepath.Clean(abs)); ok {
			return rel, true
		}
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return within(w.root, real)
	}
	return "", false
}

// Includes reports whether rel, a workspace-relative path, is part of the
// served source tree: inside the root, claimed by a language, and neither
// the file nor any parent directory excluded. Dependencies installed
// under the root (.venv, node_modules, vendor) are not included.
func (w *Workspace) Includes(rel string) bool {
	if rel == "" || filepath.IsAbs(rel) {
		return false
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	if len(w.registry.LanguagesForExtension(path.Ext(rel))) == 0 {
		return false
	}
	if w.exclude.Match(rel, false) {
		return false
	}
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if w.exclude.Match(dir, true) {
			return false
		}
	}
	return true
}

// LanguageFor returns the language owning rel.
//
// Description:
//
//	A single claimant wins outright. When several languages claim the
//	extension the one whose root manifest is nearest to the file wins,
//	registration order breaking ties, and the first claimant is used
//	when no manifest exists at all.
func (w *Workspace) LanguageFor(rel string) (string, error) {
	candidates := w.registry.LanguagesForExtension(path.Ext(rel))
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: %s", model.ErrUnsupportedLanguage, rel)
	case 1:
		return candidates[0], nil
	}

	best, bestDepth := candidates[0], -1
	dir := path.Dir(rel)
	for _, lang := range candidates {
		cfg, _ := w.registry.Get(lang)
		_, depth, ok := lsp.NearestRoot(w.root, dir, cfg.RootFiles)
		if ok && (bestDepth < 0 || depth < bestDepth) {
			best, bestDepth = lang, depth
		}
	}
	return best, nil
}

// normalize returns the cleaned slash-separated relative path.
func (w *Workspace) normalize(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", model.ErrPathNotFound)
	}

	var rel string
	if filepath.IsAbs(p) {
		r, ok := w.Relative(p)
		if !ok {
			return "", fmt.Errorf("%w: %s", model.ErrPathOutsideWorkspace, p)
		}
		rel = r
	} else {
		rel = path.Clean(filepath.ToSlash(p))
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return "", fmt.Errorf("%w: %s", model.ErrPathOutsideWorkspace, p)
		}
	}

	if rel == "." {
		return "", fmt.Errorf("%w: %s is the workspace root", model.ErrPathNotFound, p)
	}
	return rel, nil
}

// checkFile resolves symlinks and verifies rel is a regular file inside
// the root.
func (w *Workspace) checkFile(rel string) (string, error) {
	abs := filepath.Join(w.root, filepath.FromSlash(rel))

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", model.ErrPathNotFound, rel)
		}
		return "", fmt.Errorf("%w: %s is unreadable", model.ErrPathNotFound, rel)
	}
	if _, ok := within(w.root, real); !ok {
		return "", fmt.Errorf("%w: %s links outside the workspace", model.ErrPathOutsideWorkspace, rel)
	}

	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("%w: %s", model.ErrPathNotFound, rel)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", model.ErrPathNotFound, rel)
	}
	return abs, nil
}

// within returns target relative to base when target is inside base.
func within(base, target string) (string, bool) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
