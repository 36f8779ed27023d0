// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

var errNoServer = errors.New("no language server in tests")

func newTestApp(t *testing.T) *app {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.py"),
		[]byte("def greet():\n    return 1\n"), 0o644))

	cfg := config.Default()
	cfg.Workspace.Root = root
	cfg.Workspace.Watch = false
	cfg.Supervisor.Prestart = false
	cfg.Telemetry.Metrics = "prometheus"

	a, err := newApp(context.Background(), cfg, appOptions{
		factory: func(lsp.LanguageConfig) (lsp.Backend, error) {
			return nil, errNoServer
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })
	return a
}

func serveRequest(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestApp_Router(t *testing.T) {
	a := newTestApp(t)
	router := a.router()
	defer gin.SetMode(gin.TestMode)

	t.Run("health reports unstarted servers", func(t *testing.T) {
		w := serveRequest(t, router, http.MethodGet, "/v1/system/health", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp lsproxy.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, lsproxy.StatusDegraded, resp.Status)
		assert.Equal(t, Version, resp.Version)
		assert.Equal(t, map[string]bool{"python": false}, resp.Languages)
	})

	t.Run("definitions in file needs no server", func(t *testing.T) {
		w := serveRequest(t, router, http.MethodGet, "/v1/symbol/definitions-in-file?file_path=greet.py", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var syms []model.Symbol
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &syms))
		require.Len(t, syms, 1)
		assert.Equal(t, "greet", syms[0].Name)
	})

	t.Run("upstream operation without server", func(t *testing.T) {
		w := serveRequest(t, router, http.MethodPost, "/v1/symbol/find-definition",
			`{"position":{"path":"greet.py","position":{"line":0,"character":4}}}`)
		require.Equal(t, http.StatusInternalServerError, w.Code)

		var resp lsproxy.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, lsproxy.CodeProcessUnavailable, resp.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		w := serveRequest(t, router, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
	})
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Setenv(config.EnvWorkspace, "")
	t.Setenv(config.EnvListen, "")
	t.Setenv(config.EnvLogLevel, "")

	root := t.TempDir()
	cfg, err := loadConfig(&flags{
		workspace: root,
		listen:    "127.0.0.1:9999",
		logLevel:  "debug",
		debug:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Workspace.Root)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.Listen)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.HTTP.Debug)
}

func TestLoadConfig_InvalidListen(t *testing.T) {
	t.Setenv(config.EnvListen, "")
	_, err := loadConfig(&flags{listen: "not-an-address"})
	assert.Error(t, err)
}

func TestPrintLanguages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLanguages(&buf, config.Default()))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "LANGUAGE"))
	assert.True(t, strings.HasSuffix(lines[0], "INSTALLED"))

	column := strings.Index(lines[0], "COMMAND")
	var sawPython bool
	for _, line := range lines[1:] {
		assert.True(t, strings.HasSuffix(line, "✓ yes") || strings.HasSuffix(line, "✗ no"), line)
		if strings.HasPrefix(line, "python ") {
			sawPython = true
			assert.Equal(t, column, strings.Index(line, strings.Fields(line)[1]), "command column aligned")
		}
	}
	assert.True(t, sawPython)
	assert.Contains(t, buf.String(), "rust-analyzer")
	assert.NotContains(t, buf.String(), "\x1b[", "buffer output carries no escape sequences")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "lspproxy "+Version+"\n", buf.String())
}
