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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
)

// writeTree creates files (slash-separated relative paths) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newTestWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, files)
	ws, err := New(root, lsp.NewConfigRegistry(), config.DefaultExcludes)
	require.NoError(t, err)
	return ws
}

func TestNew(t *testing.T) {
	t.Run("resolves root", func(t *testing.T) {
		root := t.TempDir()
		ws, err := New(root, lsp.NewConfigRegistry(), nil)
		require.NoError(t, err)

		want, err := filepath.EvalSymlinks(root)
		require.NoError(t, err)
		assert.Equal(t, want, ws.Root())
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "nope"), lsp.NewConfigRegistry(), nil)
		assert.Error(t, err)
	})

	t.Run("root is a file", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{"main.go": "package main\n"})
		_, err := New(filepath.Join(root, "main.go"), lsp.NewConfigRegistry(), nil)
		assert.Error(t, err)
	})
}

func TestWorkspace_ListFiles(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"main.go":                    "package main\n",
		"pkg/util.py":                "x = 1\n",
		"web/app.tsx":                "export {}\n",
		"README.md":                  "# readme\n",
		"node_modules/lib/index.js":  "module.exports = {}\n",
		"web/node_modules/x/y.ts":    "export {}\n",
		".git/hooks/pre-commit.py":   "pass\n",
		"build/gen.go":               "package gen\n",
		"pkg/__pycache__/util.py":    "x = 1\n",
		"deep/nested/dir/lib.rs":     "fn main() {}\n",
		"deep/nested/dir/notes.text": "notes\n",
	})

	files, err := ws.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"deep/nested/dir/lib.rs",
		"main.go",
		"pkg/util.py",
		"web/app.tsx",
	}, files)
}

func TestWorkspace_ListFiles_Cancelled(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"main.go": "package main\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ws.ListFiles(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkspace_DetectedLanguages(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"web/app.tsx": "export {}\n",
		"tools/a.py":  "pass\n",
		"main.go":     "package main\n",
	})

	langs, err := ws.DetectedLanguages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "python", "typescript"}, langs, "registration order")

	// Without a watcher every call rescans.
	writeTree(t, ws.Root(), map[string]string{"src/lib.rs": "fn f() {}\n"})
	langs, err = ws.DetectedLanguages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "python", "typescript", "rust"}, langs)
}

func TestWorkspace_DetectedLanguages_Empty(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"README.md": "hi\n"})

	langs, err := ws.DetectedLanguages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, langs)
}

func TestWorkspace_Files(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"main.go": "package main\n"})

	files, err := ws.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, files)

	// Cached until the next scan.
	writeTree(t, ws.Root(), map[string]string{"other.go": "package main\n"})
	files, err = ws.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, files)

	require.NoError(t, ws.Refresh(context.Background()))
	files, err = ws.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "other.go"}, files)
}

func TestWorkspace_Includes(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"app.py": "x = 1\n"})

	tests := []struct {
		name string
		rel  string
		want bool
	}{
		{"source file", "app.py", true},
		{"nested source file", "pkg/util/helpers.py", true},
		{"virtualenv dependency", ".venv/lib/requests/api.py", false},
		{"node dependency", "web/node_modules/lodash/index.js", false},
		{"vendored go module", "vendor/github.com/x/y/y.go", false},
		{"unclaimed extension", "README.md", false},
		{"absolute path", "/usr/lib/python3/os.py", false},
		{"escapes root", "../other/app.py", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ws.Includes(tt.rel))
		})
	}
}

func TestWorkspace_Includes_ParentDirectoryExcluded(t *testing.T) {
	root := t.TempDir()
	ws, err := New(root, lsp.NewConfigRegistry(), []string{"third_party"})
	require.NoError(t, err)

	assert.False(t, ws.Includes("third_party/lib/mod.py"))
	assert.True(t, ws.Includes("src/third_party_shim.py"))
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher([]string{"**/node_modules/**", "*.min.js", "vendor", "/generated/**"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		rel   string
		isDir bool
		want  bool
	}{
		{"root dependency dir", "node_modules", true, true},
		{"nested dependency dir", "web/node_modules", true, true},
		{"file inside dependency dir", "web/node_modules/x/index.js", false, true},
		{"base name glob", "static/app.min.js", false, true},
		{"bare name anywhere", "third_party/vendor", true, true},
		{"anchored pattern", "generated/api.go", false, true},
		{"anchored pattern elsewhere", "pkg/generated/api.go", false, false},
		{"ordinary file", "src/app.js", false, false},
		{"similar name", "node_modules_backup", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.rel, tt.isDir))
		})
	}
}

func TestMatcher_Empty(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("anything", true))

	m, err := NewMatcher(nil)
	require.NoError(t, err)
	assert.False(t, m.Match("anything", false))
	assert.Empty(t, m.Patterns())
}
