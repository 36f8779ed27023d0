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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func TestNearestRoot(t *testing.T) {
	root := writeTree(t, map[string]string{
		"CMakeLists.txt":       "",
		"lib/Makefile":         "",
		"lib/src/inner/util.h": "",
		"app/src/main.cpp":     "",
	})

	dir, depth, ok := NearestRoot(root, "lib/src/inner", []string{"Makefile"})
	require.True(t, ok)
	assert.Equal(t, "lib", dir)
	assert.Equal(t, 2, depth)

	dir, depth, ok = NearestRoot(root, "lib/src/inner", []string{"CMakeLists.txt"})
	require.True(t, ok)
	assert.Equal(t, ".", dir)
	assert.Equal(t, 3, depth)

	_, _, ok = NearestRoot(root, "app/src", []string{"Cargo.toml"})
	assert.False(t, ok)

	_, _, ok = NearestRoot(root, "app", nil)
	assert.False(t, ok)
}

func TestWorkspaceFolders(t *testing.T) {
	root := writeTree(t, map[string]string{
		"svc/a/go.mod":    "module example.com/a\n\ngo 1.22\n",
		"svc/a/main.go":   "package main\n",
		"svc/a/pkg/x.go":  "package pkg\n",
		"svc/b/go.mod":    "module example.com/b\n",
		"svc/b/b.go":      "package b\n",
		"scripts/tool.py": "",
	})
	files := []string{"scripts/tool.py", "svc/a/main.go", "svc/a/pkg/x.go", "svc/b/b.go"}
	goCfg, _ := NewConfigRegistry().Get("go")

	folders := WorkspaceFolders(root, files, goCfg)
	require.Len(t, folders, 2)
	assert.Equal(t, PathToURI(filepath.Join(root, "svc", "a")), folders[0].URI)
	assert.Equal(t, "example.com/a", folders[0].Name)
	assert.Equal(t, "example.com/b", folders[1].Name)

	t.Run("falls back to root", func(t *testing.T) {
		pyCfg, _ := NewConfigRegistry().Get("python")
		folders := WorkspaceFolders(root, files, pyCfg)
		require.Len(t, folders, 1)
		assert.Equal(t, PathToURI(root), folders[0].URI)
	})
}
