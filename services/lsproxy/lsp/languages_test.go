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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
)

func TestConfigRegistry_Defaults(t *testing.T) {
	r := NewConfigRegistry()

	assert.Equal(t,
		[]string{"go", "python", "typescript", "javascript", "rust", "java", "c", "cpp"},
		r.Languages())

	tests := []struct {
		ext  string
		want []string
	}{
		{".go", []string{"go"}},
		{".py", []string{"python"}},
		{".tsx", []string{"typescript"}},
		{".mjs", []string{"javascript"}},
		{".h", []string{"c", "cpp"}},
		{".HPP", []string{"cpp"}},
		{".zig", nil},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, r.LanguagesForExtension(tt.ext))
		})
	}
}

func TestConfigRegistry_RegisterReplaces(t *testing.T) {
	r := NewConfigRegistry()

	r.Register(LanguageConfig{Language: "c", Command: "ccls", Extensions: []string{".c"}})

	cfg, ok := r.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "ccls", cfg.Command)
	assert.Equal(t, []string{"cpp"}, r.LanguagesForExtension(".h"), "old extensions are unmapped")
	assert.Equal(t, "c", r.Languages()[6], "replacement keeps registration order")
}

func TestConfigRegistry_Apply(t *testing.T) {
	r := NewConfigRegistry()

	r.Apply([]config.LanguageConfig{
		{Name: "go", Command: "/opt/gopls", Extensions: []string{".go"}},
		{Name: "zig", Command: "zls", Extensions: []string{".zig"}, RootFiles: []string{"build.zig"}},
	})

	goCfg, _ := r.Get("go")
	assert.Equal(t, "/opt/gopls", goCfg.Command)
	assert.Equal(t, []string{"go.mod", "go.work"}, goCfg.RootFiles, "root files kept when not overridden")

	assert.Equal(t, []string{"zig"}, r.LanguagesForExtension(".zig"))
	assert.Equal(t, "zig", r.Languages()[len(r.Languages())-1])
}

func TestConfigRegistry_IsInstalled(t *testing.T) {
	r := NewConfigRegistry()
	r.Register(LanguageConfig{Language: "none", Command: "lsproxy-no-such-binary", Extensions: []string{".none"}})

	assert.False(t, r.IsInstalled("none"))
	assert.False(t, r.IsInstalled("unknown"))
}

func TestLanguageIDFor(t *testing.T) {
	assert.Equal(t, "typescriptreact", LanguageIDFor("typescript", "ui/App.tsx"))
	assert.Equal(t, "javascriptreact", LanguageIDFor("javascript", "ui/App.jsx"))
	assert.Equal(t, "typescript", LanguageIDFor("typescript", "ui/app.ts"))
	assert.Equal(t, "go", LanguageIDFor("go", "main.go"))
}
