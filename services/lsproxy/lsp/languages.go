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
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
)

// LanguageConfig contains configuration for an LSP server.
type LanguageConfig struct {
	// Language is the language identifier (e.g., "go", "python").
	Language string

	// Command is the executable name or path.
	Command string

	// Args are command-line arguments to pass to the server.
	Args []string

	// Env holds extra KEY=VALUE entries appended to the proxy environment.
	Env []string

	// Extensions are file extensions this server handles (e.g., ".go").
	Extensions []string

	// RootFiles are files that indicate a project root (e.g., "go.mod").
	RootFiles []string

	// InitializationOptions are custom options passed during initialize.
	InitializationOptions any
}

// ConfigRegistry manages LSP configurations for different languages.
//
// Description:
//
//	An extension may be claimed by several languages (".h" is both C and
//	C++). LanguagesForExtension returns the claimants in registration
//	order and the router breaks the tie with project manifests.
//
// Thread Safety: Safe for concurrent use.
type ConfigRegistry struct {
	mu         sync.RWMutex
	order      []string
	byLanguage map[string]LanguageConfig
	byExt      map[string][]string // extension -> languages, registration order
}

// NewConfigRegistry creates a registry with default configurations.
//
// Description:
//
//	Creates a new configuration registry pre-populated with configurations
//	for gopls, pyright, typescript-language-server, rust-analyzer, jdtls
//	and clangd.
//
// Outputs:
//
//	*ConfigRegistry - The populated registry
func NewConfigRegistry() *ConfigRegistry {
	r := &ConfigRegistry{
		byLanguage: make(map[string]LanguageConfig),
		byExt:      make(map[string][]string),
	}
	r.registerDefaults()
	return r
}

// registerDefaults adds default language server configurations.
func (r *ConfigRegistry) registerDefaults() {
	// Go - gopls
	r.Register(LanguageConfig{
		Language:   "go",
		Command:    "gopls",
		Args:       []string{"serve"},
		Extensions: []string{".go"},
		RootFiles:  []string{"go.mod", "go.work"},
	})

	// Python - pyright
	r.Register(LanguageConfig{
		Language:   "python",
		Command:    "pyright-langserver",
		Args:       []string{"--stdio"},
		Extensions: []string{".py", ".pyi"},
		RootFiles:  []string{"pyproject.toml", "requirements.txt", "setup.py", "setup.cfg"},
	})

	// TypeScript
	r.Register(LanguageConfig{
		Language:   "typescript",
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		Extensions: []string{".ts", ".tsx"},
		RootFiles:  []string{"tsconfig.json", "package.json"},
	})

	// JavaScript
	r.Register(LanguageConfig{
		Language:   "javascript",
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		RootFiles:  []string{"jsconfig.json", "package.json"},
	})

	// Rust - rust-analyzer
	r.Register(LanguageConfig{
		Language:   "rust",
		Command:    "rust-analyzer",
		Extensions: []string{".rs"},
		RootFiles:  []string{"Cargo.toml"},
	})

	// Java - jdtls
	r.Register(LanguageConfig{
		Language:   "java",
		Command:    "jdtls",
		Extensions: []string{".java"},
		RootFiles:  []string{"pom.xml", "build.gradle", "build.gradle.kts"},
	})

	// C/C++ - clangd. Both claim ".h"; the manifests decide.
	r.Register(LanguageConfig{
		Language:   "c",
		Command:    "clangd",
		Extensions: []string{".c", ".h"},
		RootFiles:  []string{"Makefile", "configure.ac"},
	})

	r.Register(LanguageConfig{
		Language:   "cpp",
		Command:    "clangd",
		Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx", ".h"},
		RootFiles:  []string{"CMakeLists.txt", "compile_commands.json", "meson.build"},
	})
}

// Register adds or updates a language configuration.
//
// Description:
//
//	Registers a language server configuration. If a configuration already
//	exists for the language, it is replaced in place, keeping its
//	position in the registration order, and its old extensions are
//	unmapped.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (r *ConfigRegistry) Register(config LanguageConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byLanguage[config.Language]; ok {
		for _, ext := range old.Extensions {
			ext = strings.ToLower(ext)
			r.byExt[ext] = slices.DeleteFunc(r.byExt[ext], func(l string) bool {
				return l == config.Language
			})
			if len(r.byExt[ext]) == 0 {
				delete(r.byExt, ext)
			}
		}
	} else {
		r.order = append(r.order, config.Language)
	}

	r.byLanguage[config.Language] = config
	for _, ext := range config.Extensions {
		ext = strings.ToLower(ext)
		if !slices.Contains(r.byExt[ext], config.Language) {
			r.byExt[ext] = r.insertOrdered(r.byExt[ext], config.Language)
		}
	}
}

// insertOrdered keeps an extension's claimants in registration order.
func (r *ConfigRegistry) insertOrdered(langs []string, lang string) []string {
	langs = append(langs, lang)
	slices.SortStableFunc(langs, func(a, b string) int {
		return slices.Index(r.order, a) - slices.Index(r.order, b)
	})
	return langs
}

// Apply merges configured overrides into the registry by name.
//
// Description:
//
//	An entry naming a built-in language replaces its command, args and
//	extensions. Empty root files keep the built-in manifests. Unknown
//	names register new languages.
func (r *ConfigRegistry) Apply(overrides []config.LanguageConfig) {
	for _, o := range overrides {
		lc := LanguageConfig{
			Language:   o.Name,
			Command:    o.Command,
			Args:       o.Args,
			Extensions: o.Extensions,
			RootFiles:  o.RootFiles,
		}
		if o.InitializationOptions != nil {
			lc.InitializationOptions = o.InitializationOptions
		}
		if existing, ok := r.Get(o.Name); ok && len(lc.RootFiles) == 0 {
			lc.RootFiles = existing.RootFiles
		}
		r.Register(lc)
	}
}

// Get returns the configuration for a language.
//
// Outputs:
//
//	LanguageConfig - The configuration (zero value if not found)
//	bool - True if the configuration was found
func (r *ConfigRegistry) Get(language string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.byLanguage[language]
	return config, ok
}

// LanguagesForExtension returns every language claiming ext, in
// registration order. The lookup is case-insensitive.
//
// Inputs:
//
//	ext - The file extension including dot (e.g., ".go")
//
// Outputs:
//
//	[]string - Claiming languages; nil if none
func (r *ConfigRegistry) LanguagesForExtension(ext string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byExt[strings.ToLower(ext)])
}

// Languages returns all registered language names in registration order.
func (r *ConfigRegistry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Extensions returns all mapped file extensions, sorted.
func (r *ConfigRegistry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// IsInstalled reports whether the language's server command is on PATH.
func (r *ConfigRegistry) IsInstalled(language string) bool {
	config, ok := r.Get(language)
	if !ok {
		return false
	}
	_, err := exec.LookPath(config.Command)
	return err == nil
}

// LanguageIDFor returns the LSP languageId for a document of language at
// path. JSX and TSX files have their own identifiers.
func LanguageIDFor(language, path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return "typescriptreact"
	case ".jsx":
		return "javascriptreact"
	}
	return language
}
