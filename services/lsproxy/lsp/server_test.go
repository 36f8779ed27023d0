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
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

const fakeServerEnv = "LSPROXY_FAKE_LANGUAGE_SERVER"

// TestMain turns the test binary into a minimal language server when
// started by a Server under test.
func TestMain(m *testing.M) {
	if os.Getenv(fakeServerEnv) == "1" {
		runFakeLanguageServer()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runFakeLanguageServer answers initialize, definition, shutdown and exit,
// counts document sync notifications and exits hard on test/crash.
func runFakeLanguageServer() {
	p := NewProtocol(os.Stdin, os.Stdout)
	var opens, changes, version int

	for {
		body, err := p.readMessage()
		if err != nil {
			return
		}
		var in incoming
		if err := json.Unmarshal(body, &in); err != nil {
			continue
		}

		var result any
		switch in.Method {
		case "initialize":
			result = map[string]any{
				"capabilities": map[string]any{"definitionProvider": true, "referencesProvider": map[string]any{}},
				"serverInfo":   map[string]any{"name": "fake"},
			}
		case "initialized":
			continue
		case "textDocument/didOpen":
			opens++
			version = 1
			continue
		case "textDocument/didChange":
			var params DidChangeTextDocumentParams
			_ = json.Unmarshal(in.Params, &params)
			changes++
			if params.TextDocument.Version != nil {
				version = *params.TextDocument.Version
			}
			continue
		case "textDocument/definition":
			var params TextDocumentPositionParams
			_ = json.Unmarshal(in.Params, &params)
			result = []Location{{
				URI:   params.TextDocument.URI,
				Range: Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 1, Character: 5}},
			}}
		case "test/documents":
			result = map[string]int{"opens": opens, "changes": changes, "version": version}
		case "test/sleep":
			continue
		case "test/crash":
			os.Exit(3)
		case "shutdown":
			result = nil
		case "exit":
			os.Exit(0)
		default:
			continue
		}
		_ = p.writeMessage(reply{JSONRPC: JSONRPCVersion, ID: in.ID, Result: result})
	}
}

func newFakeServer(t *testing.T) *Server {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	s := NewServer(LanguageConfig{
		Language: "fake",
		Command:  exe,
		Env:      []string{fakeServerEnv + "=1"},
	}, t.TempDir(), nil)
	s.shutdownTimeout = 2 * time.Second
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func startFakeServer(t *testing.T) *Server {
	t.Helper()
	s := newFakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Spawn(ctx))
	_, err := s.Initialize(ctx)
	require.NoError(t, err)
	return s
}

func TestServer_SpawnAndInitialize(t *testing.T) {
	s := newFakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, s.Spawn(ctx))
	assert.ErrorIs(t, s.Spawn(ctx), ErrServerAlreadyStarted)

	caps, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, caps.HasDefinitionProvider())
	assert.True(t, caps.HasReferencesProvider())
	assert.False(t, caps.HasRenameProvider())
}

func TestServer_Request(t *testing.T) {
	s := startFakeServer(t)

	uri := PathToURI("/ws/main.go")
	raw, err := s.Request(context.Background(), "textDocument/definition", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
	require.NoError(t, err)

	locs, err := ParseLocations(raw)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, uri, locs[0].URI)
	assert.Equal(t, Position{Line: 1, Character: 2}, locs[0].Range.Start)
}

func TestServer_SyncDocument(t *testing.T) {
	s := startFakeServer(t)
	uri := PathToURI("/ws/main.go")

	documents := func() map[string]int {
		raw, err := s.Request(context.Background(), "test/documents", nil)
		require.NoError(t, err)
		var counts map[string]int
		require.NoError(t, json.Unmarshal(raw, &counts))
		return counts
	}

	require.NoError(t, s.SyncDocument(uri, "go", []byte("package main\n")))
	require.NoError(t, s.SyncDocument(uri, "go", []byte("package main\n")))
	assert.Equal(t, map[string]int{"opens": 1, "changes": 0, "version": 1}, documents())

	require.NoError(t, s.SyncDocument(uri, "go", []byte("package main\n\nfunc main() {}\n")))
	assert.Equal(t, map[string]int{"opens": 1, "changes": 1, "version": 2}, documents())
}

func TestServer_CrashFailsPendingRequests(t *testing.T) {
	s := startFakeServer(t)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Request(context.Background(), "test/sleep", nil)
		errc <- err
	}()

	// Give the sleeping request time to be written first.
	time.Sleep(50 * time.Millisecond)
	_, err := s.Request(context.Background(), "test/crash", nil)
	assert.ErrorIs(t, err, model.ErrProcessUnavailable)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, model.ErrProcessUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request not failed after crash")
	}

	select {
	case <-s.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("Exited not closed after crash")
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := startFakeServer(t)

	require.NoError(t, s.Shutdown(context.Background()))
	select {
	case <-s.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("Exited not closed after shutdown")
	}

	_, err := s.Request(context.Background(), "textDocument/definition", nil)
	assert.True(t, errors.Is(err, model.ErrProcessUnavailable), "got %v", err)

	// Idempotent.
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_NotInstalled(t *testing.T) {
	s := NewServer(LanguageConfig{Language: "none", Command: "lsproxy-no-such-language-server"}, t.TempDir(), nil)

	err := s.Spawn(context.Background())
	assert.ErrorIs(t, err, ErrServerNotInstalled)
	assert.ErrorIs(t, err, model.ErrProcessUnavailable)

	_, err = s.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrServerNotRunning)

	select {
	case <-s.Exited():
	default:
		t.Error("Exited should be closed when spawn fails")
	}
}
