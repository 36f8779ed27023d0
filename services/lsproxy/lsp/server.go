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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// =============================================================================
// BACKEND CAPABILITY SET
// =============================================================================

// Backend is one language server flavour as seen by the Supervisor.
//
// Description:
//
//	A Backend is single-use: Spawn once, Initialize once, serve requests
//	until Shutdown or until Exited is closed. The Supervisor builds a
//	fresh Backend for every start attempt.
type Backend interface {
	// Spawn starts the process and opens the transport.
	Spawn(ctx context.Context) error

	// Initialize performs the initialize/initialized handshake.
	Initialize(ctx context.Context) (ServerCapabilities, error)

	// Request sends one request and returns the raw result.
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends one notification.
	Notify(method string, params any) error

	// SyncDocument makes the server's view of uri match text.
	SyncDocument(uri, languageID string, text []byte) error

	// Shutdown stops the server, failing in-flight requests.
	Shutdown(ctx context.Context) error

	// Exited is closed once the server is gone for any reason.
	Exited() <-chan struct{}
}

// BackendFactory builds a fresh Backend for a language.
type BackendFactory func(config LanguageConfig) (Backend, error)

// ProcessFactory returns the BackendFactory for stdio language server
// processes rooted at rootPath.
//
// Inputs:
//
//	rootPath - Absolute workspace root.
//	folders - Returns the workspace folders for a language at spawn time.
//	          May be nil, in which case the root is the only folder.
//	shutdownTimeout - Grace period before the process group is killed.
func ProcessFactory(rootPath string, folders func(LanguageConfig) []WorkspaceFolder, shutdownTimeout time.Duration) BackendFactory {
	return func(config LanguageConfig) (Backend, error) {
		var wf []WorkspaceFolder
		if folders != nil {
			wf = folders(config)
		}
		s := NewServer(config, rootPath, wf)
		if shutdownTimeout > 0 {
			s.shutdownTimeout = shutdownTimeout
		}
		return s, nil
	}
}

// =============================================================================
// SERVER
// =============================================================================

// Server is a language server process speaking LSP over stdio.
//
// Description:
//
//	Runs the configured command in its own process group with the
//	workspace root as working directory. Stdout carries the protocol,
//	stderr is logged at Debug. A watcher goroutine closes Exited once
//	the process is gone and fails all pending calls.
//
// Thread Safety:
//
//	Safe for concurrent use after Spawn returns successfully.
type Server struct {
	config   LanguageConfig
	rootPath string
	folders  []WorkspaceFolder
	logger   *slog.Logger

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	protocol *Protocol

	startOnce sync.Once
	started   bool
	exited    chan struct{}
	exitErr   error

	shutdownOnce    sync.Once
	shutdownTimeout time.Duration

	docsMu sync.Mutex
	docs   map[string]*openDocument
}

// openDocument is the server's view of one synced file.
type openDocument struct {
	version int
	hash    [sha256.Size]byte
}

// NewServer creates a new server instance (not started).
//
// Inputs:
//
//	config - Language configuration for the server
//	rootPath - Absolute path to the workspace root
//	folders - Workspace folders sent during initialize; nil means the root
//
// Outputs:
//
//	*Server - The configured (but not started) server
func NewServer(config LanguageConfig, rootPath string, folders []WorkspaceFolder) *Server {
	if len(folders) == 0 {
		folders = []WorkspaceFolder{{URI: PathToURI(rootPath), Name: "workspace"}}
	}
	return &Server{
		config:          config,
		rootPath:        rootPath,
		folders:         folders,
		logger:          slog.Default().With(slog.String("language", config.Language)),
		exited:          make(chan struct{}),
		shutdownTimeout: 5 * time.Second,
		docs:            make(map[string]*openDocument),
	}
}

// Spawn starts the server process and its read loop.
//
// Errors:
//
//	ErrServerNotInstalled - Server binary not found
//	ErrServerAlreadyStarted - Spawn called twice
func (s *Server) Spawn(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	err := ErrServerAlreadyStarted
	s.startOnce.Do(func() {
		err = s.spawn()
	})
	return err
}

func (s *Server) spawn() error {
	path, err := exec.LookPath(s.config.Command)
	if err != nil {
		close(s.exited)
		return fmt.Errorf("%w: %s", ErrServerNotInstalled, s.config.Command)
	}

	s.logger.Info("starting language server",
		slog.String("command", path),
		slog.String("root_path", s.rootPath),
	)

	cmd := exec.Command(path, s.config.Args...)
	cmd.Dir = s.rootPath
	cmd.Env = append(os.Environ(), s.config.Env...)
	cmd.Stderr = &stderrLogger{logger: s.logger}
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		close(s.exited)
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		close(s.exited)
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		close(s.exited)
		return fmt.Errorf("start process: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.protocol = NewProtocol(stdout, stdin)
	s.protocol.SetLogger(s.logger)
	s.started = true

	// Reads must finish before Wait closes the stdout pipe.
	go func() {
		_ = s.protocol.ReadLoop(context.Background())
		s.exitErr = cmd.Wait()
		close(s.exited)
		s.logger.Debug("language server process exited", slog.Any("error", s.exitErr))
	}()

	return nil
}

// Initialize performs the LSP initialize handshake.
func (s *Server) Initialize(ctx context.Context) (ServerCapabilities, error) {
	if !s.started {
		return ServerCapabilities{}, ErrServerNotRunning
	}

	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   PathToURI(s.rootPath),
		RootPath:  s.rootPath,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Synchronization: &TextDocumentSyncClientCapabilities{},
				Definition:      &DefinitionCapabilities{LinkSupport: true},
				References:      &ReferencesCapabilities{},
				Rename:          &RenameCapabilities{},
				DocumentSymbol:  &DocumentSymbolCapabilities{HierarchicalDocumentSymbolSupport: true},
				CallHierarchy:   &CallHierarchyCapabilities{},
			},
			Workspace: WorkspaceClientCapabilities{
				WorkspaceFolders: true,
				Configuration:    true,
			},
		},
		InitializationOptions: s.config.InitializationOptions,
		WorkspaceFolders:      s.folders,
	}

	resp, err := s.protocol.SendRequest(ctx, "initialize", params)
	if err != nil {
		return ServerCapabilities{}, fmt.Errorf("%w: %w", ErrInitializeFailed, err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return ServerCapabilities{}, fmt.Errorf("%w: parse initialize result: %w", ErrInitializeFailed, err)
	}

	if err := s.protocol.SendNotification("initialized", struct{}{}); err != nil {
		return ServerCapabilities{}, fmt.Errorf("%w: initialized notification: %w", ErrInitializeFailed, err)
	}

	attrs := []any{
		slog.Bool("definition", result.Capabilities.HasDefinitionProvider()),
		slog.Bool("references", result.Capabilities.HasReferencesProvider()),
		slog.Bool("rename", result.Capabilities.HasRenameProvider()),
		slog.Int("workspace_folders", len(s.folders)),
	}
	if result.ServerInfo != nil {
		attrs = append(attrs, slog.String("server", result.ServerInfo.Name))
	}
	s.logger.Info("language server initialized", attrs...)

	return result.Capabilities, nil
}

// Request sends an LSP request and returns its raw result.
func (s *Server) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !s.started {
		return nil, ErrServerNotRunning
	}
	resp, err := s.protocol.SendRequest(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Notify sends an LSP notification.
func (s *Server) Notify(method string, params any) error {
	if !s.started {
		return ErrServerNotRunning
	}
	return s.protocol.SendNotification(method, params)
}

// SyncDocument opens uri on first use and sends a full-text change when
// the content hash differs from what the server last saw.
//
// Thread Safety:
//
//	Safe for concurrent use. Calls for the same document are serialized
//	so versions are sent in order.
func (s *Server) SyncDocument(uri, languageID string, text []byte) error {
	hash := sha256.Sum256(text)

	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		err := s.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{
				URI:        uri,
				LanguageID: languageID,
				Version:    1,
				Text:       string(text),
			},
		})
		if err != nil {
			return fmt.Errorf("didOpen %s: %w", uri, err)
		}
		s.docs[uri] = &openDocument{version: 1, hash: hash}
		return nil
	}

	if bytes.Equal(doc.hash[:], hash[:]) {
		return nil
	}

	version := doc.version + 1
	err := s.Notify("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
			Version:                &version,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: string(text)}},
	})
	if err != nil {
		return fmt.Errorf("didChange %s: %w", uri, err)
	}
	doc.version = version
	doc.hash = hash
	return nil
}

// Exited is closed once the process has exited and its output is drained.
func (s *Server) Exited() <-chan struct{} {
	return s.exited
}

// Shutdown gracefully shuts down the server.
//
// Description:
//
//	Sends shutdown and exit, closes stdin and waits for the process. If it
//	has not exited within the shutdown timeout its process group is
//	killed. Pending requests fail with ErrServerCrashed.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}

	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down language server")

		graceCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()

		select {
		case <-s.exited:
		default:
			_, _ = s.protocol.SendRequest(graceCtx, "shutdown", nil)
			_ = s.protocol.SendNotification("exit", nil)
		}
		s.protocol.Close(ErrServerCrashed)
		_ = s.stdin.Close()

		select {
		case <-s.exited:
		case <-graceCtx.Done():
			s.logger.Warn("language server did not exit, killing process group")
			killProcessGroup(s.cmd)
			<-s.exited
		}
	})
	return nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// stderrLogger forwards server stderr lines to the debug log.
type stderrLogger struct {
	logger *slog.Logger
	buf    []byte
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(w.buf[:i]); len(line) > 0 {
			w.logger.Debug("language server stderr", slog.String("line", string(line)))
		}
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > 64*1024 {
		w.buf = w.buf[:0]
	}
	return len(p), nil
}
