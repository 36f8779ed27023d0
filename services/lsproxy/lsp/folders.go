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
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/mod/modfile"
)

// NearestRoot walks up from relDir towards the workspace root and returns
// the first directory containing one of rootFiles.
//
// Inputs:
//
//	root - Absolute workspace root.
//	relDir - Slash-separated directory relative to root ("." for the root).
//	rootFiles - Manifest names such as "go.mod" or "CMakeLists.txt".
//
// Outputs:
//
//	string - The matching directory, relative to root.
//	int - Number of levels walked up (0 when relDir itself matches).
//	bool - False if no directory up to the root contains a manifest.
func NearestRoot(root, relDir string, rootFiles []string) (string, int, bool) {
	if len(rootFiles) == 0 {
		return "", 0, false
	}
	dir := path.Clean(relDir)
	for depth := 0; ; depth++ {
		for _, name := range rootFiles {
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(dir), name))
			if err == nil && !info.IsDir() {
				return dir, depth, true
			}
		}
		if dir == "." || dir == "/" || strings.HasPrefix(dir, "..") {
			return "", 0, false
		}
		dir = path.Dir(dir)
	}
}

// WorkspaceFolders returns the project roots for a language.
//
// Description:
//
//	Every listed file the language claims contributes the nearest
//	directory holding one of its root files. Go folders are named after
//	the module path in go.mod, others after the directory. When no
//	manifest is found the workspace root is the only folder.
//
// Inputs:
//
//	root - Absolute workspace root.
//	files - Slash-separated workspace-relative file paths.
//	config - The language whose folders are wanted.
//
// Outputs:
//
//	[]WorkspaceFolder - Sorted by URI; never empty.
func WorkspaceFolders(root string, files []string, config LanguageConfig) []WorkspaceFolder {
	seenDir := make(map[string]bool)
	roots := make(map[string]bool)

	for _, f := range files {
		if !claims(config, f) {
			continue
		}
		dir := path.Dir(f)
		if seenDir[dir] {
			continue
		}
		seenDir[dir] = true
		if r, _, ok := NearestRoot(root, dir, config.RootFiles); ok {
			roots[r] = true
		}
	}

	if len(roots) == 0 {
		return []WorkspaceFolder{{URI: PathToURI(root), Name: filepath.Base(root)}}
	}

	folders := make([]WorkspaceFolder, 0, len(roots))
	for r := range roots {
		abs := filepath.Join(root, filepath.FromSlash(r))
		folders = append(folders, WorkspaceFolder{
			URI:  PathToURI(abs),
			Name: folderName(abs, config),
		})
	}
	slices.SortFunc(folders, func(a, b WorkspaceFolder) int {
		return strings.Compare(a.URI, b.URI)
	})
	return folders
}

func claims(config LanguageConfig, file string) bool {
	ext := strings.ToLower(path.Ext(file))
	for _, e := range config.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func folderName(dir string, config LanguageConfig) string {
	if config.Language == "go" {
		if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
			if mod := modfile.ModulePath(data); mod != "" {
				return mod
			}
		}
	}
	return filepath.Base(dir)
}
