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
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"slices"

	"github.com/gobwas/glob"
	"github.com/karrick/godirwalk"
)

// Matcher tests workspace-relative paths against exclude globs.
//
// Description:
//
//	Patterns use '/' as separator, so '*' stays within one path
//	segment and '**' crosses segments. A path is tested in three forms:
//	its base name, "/"+path, and for directories "/"+path+"/". This lets
//	"**/node_modules/**" exclude a root-level node_modules directory and
//	a bare "vendor" exclude that name anywhere.
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewMatcher compiles patterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{patterns: slices.Clone(patterns)}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether rel (slash-separated, relative to the root) is
// excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || len(m.globs) == 0 {
		return false
	}
	candidates := []string{path.Base(rel), "/" + rel}
	if isDir {
		candidates = append(candidates, "/"+rel+"/")
	}
	for _, g := range m.globs {
		for _, c := range candidates {
			if g.Match(c) {
				return true
			}
		}
	}
	return false
}

// Patterns returns the source patterns.
func (m *Matcher) Patterns() []string {
	return slices.Clone(m.patterns)
}

// walk enumerates claimed files under the root.
func (w *Workspace) walk(ctx context.Context) ([]string, error) {
	var files []string

	err := godirwalk.Walk(w.root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(w.root, osPathname)
			if err != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if de.IsDir() {
				if w.exclude.Match(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			// Symlinked files may point outside the root.
			if !de.IsRegular() {
				return nil
			}
			if w.exclude.Match(rel, false) {
				return nil
			}
			if len(w.registry.LanguagesForExtension(path.Ext(rel))) == 0 {
				return nil
			}
			files = append(files, rel)
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			if ctx.Err() != nil {
				return godirwalk.Halt
			}
			w.logger.Debug("skipping unreadable path",
				slog.String("path", osPathname),
				slog.String("error", err.Error()),
			)
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}

	slices.Sort(files)
	return files, nil
}
