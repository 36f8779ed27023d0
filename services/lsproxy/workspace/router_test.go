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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

func TestWorkspace_Route(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"main.go":         "package main\n",
		"pkg/util.py":     "x = 1\n",
		"web/view.tsx":    "export {}\n",
		"notes.txt":       "notes\n",
		"dir.go/keep.txt": "directory with a claimed extension\n",
	})

	t.Run("relative", func(t *testing.T) {
		f, err := ws.Route("pkg/util.py")
		require.NoError(t, err)
		assert.Equal(t, "pkg/util.py", f.Path)
		assert.Equal(t, "python", f.Language)
		assert.Equal(t, filepath.Join(ws.Root(), "pkg", "util.py"), f.AbsPath)
	})

	t.Run("cleaned", func(t *testing.T) {
		f, err := ws.Route("./pkg/../web//view.tsx")
		require.NoError(t, err)
		assert.Equal(t, "web/view.tsx", f.Path)
		assert.Equal(t, "typescript", f.Language)
	})

	t.Run("absolute inside", func(t *testing.T) {
		f, err := ws.Route(filepath.Join(ws.Root(), "main.go"))
		require.NoError(t, err)
		assert.Equal(t, "main.go", f.Path)
		assert.Equal(t, "go", f.Language)
	})

	tests := []struct {
		name string
		path string
		want error
	}{
		{"parent traversal", "../outside.go", model.ErrPathOutsideWorkspace},
		{"nested traversal", "pkg/../../outside.go", model.ErrPathOutsideWorkspace},
		{"absolute outside", "/definitely/not/here.go", model.ErrPathOutsideWorkspace},
		{"unclaimed extension", "notes.txt", model.ErrUnsupportedLanguage},
		{"unclaimed and missing", "missing.txt", model.ErrUnsupportedLanguage},
		{"missing file", "missing.go", model.ErrPathNotFound},
		{"directory", "dir.go", model.ErrPathNotFound},
		{"empty", "", model.ErrPathNotFound},
		{"root", ".", model.ErrPathNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ws.Route(tt.path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWorkspace_Route_SymlinkOutside(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"main.go": "package main\n"})

	outside := filepath.Join(t.TempDir(), "secret.go")
	require.NoError(t, os.WriteFile(outside, []byte("package secret\n"), 0o644))
	if err := os.Symlink(outside, filepath.Join(ws.Root(), "link.go")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ws.Route("link.go")
	assert.ErrorIs(t, err, model.ErrPathOutsideWorkspace)
}

func TestWorkspace_Route_SymlinkInside(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"real/main.go": "package main\n"})
	if err := os.Symlink(filepath.Join(ws.Root(), "real", "main.go"), filepath.Join(ws.Root(), "alias.go")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	f, err := ws.Route("alias.go")
	require.NoError(t, err)
	assert.Equal(t, "alias.go", f.Path)
	assert.Equal(t, "go", f.Language)
}

func TestWorkspace_Resolve_AnyExtension(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"docs/notes.txt": "notes\n"})

	f, err := ws.Resolve("docs/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs/notes.txt", f.Path)
	assert.Empty(t, f.Language)
}

func TestWorkspace_LanguageFor_SharedExtension(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"Makefile":              "all:\n",
		"legacy/io.h":           "int f(void);\n",
		"native/CMakeLists.txt": "project(native)\n",
		"native/vec.h":          "struct vec;\n",
		"native/sub/deep.h":     "struct deep;\n",
	})

	tests := []struct {
		path string
		want string
	}{
		{"legacy/io.h", "c"},
		{"native/vec.h", "cpp"},
		{"native/sub/deep.h", "cpp"},
		{"native/impl.cpp", "cpp"},
		{"main.c", "c"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ws.LanguageFor(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkspace_LanguageFor_NoManifest(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"include/x.h": "int x;\n"})

	got, err := ws.LanguageFor("include/x.h")
	require.NoError(t, err)
	assert.Equal(t, "c", got, "first registered claimant")
}

func TestWorkspace_Relative(t *testing.T) {
	ws := newTestWorkspace(t, nil)

	rel, ok := ws.Relative(filepath.Join(ws.Root(), "a", "b.go"))
	assert.True(t, ok)
	assert.Equal(t, "a/b.go", rel)

	_, ok = ws.Relative("/usr/lib/go/src/fmt/print.go")
	assert.False(t, ok)
}
