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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianLSP/pkg/logging"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/ast"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/telemetry"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/translate"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/workspace"
)

// app holds every long-lived component of one proxy process.
type app struct {
	cfg        config.Config
	registry   *lsp.ConfigRegistry
	ws         *workspace.Workspace
	supervisor *lsp.Supervisor
	translator *translate.Translator
	watcher    *workspace.Watcher

	shutdownTelemetry func(context.Context) error
}

// appOptions carries test seams.
type appOptions struct {
	// factory replaces the language server process factory.
	factory lsp.BackendFactory
}

// newLogger builds the process logger from configuration and installs it
// as the slog default.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "lspproxy",
		Format:  logging.Format(cfg.Format),
	})
	slog.SetDefault(logger.Slog())
	return logger, nil
}

// newApp wires configuration into a running proxy core.
//
// Description:
//
//	Initializes telemetry, applies language overrides, opens the
//	workspace, creates the supervisor and translator, starts the
//	watcher when enabled, and prestarts servers for detected languages.
//	On error every component created so far is released.
func newApp(ctx context.Context, cfg config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.shutdownTelemetry, err = telemetry.Init(ctx, telemetry.FromConfig(cfg.Telemetry, Version))
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a.registry = lsp.NewConfigRegistry()
	a.registry.Apply(cfg.Languages)

	a.ws, err = workspace.New(cfg.Workspace.Root, a.registry, cfg.Workspace.Exclude)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	factory := opts.factory
	if factory == nil {
		factory = lsp.ProcessFactory(a.ws.Root(), a.folders, cfg.Supervisor.ShutdownTimeout)
	}
	a.supervisor = lsp.NewSupervisor(a.registry, factory, lsp.SupervisorConfigFrom(cfg.Supervisor))
	a.translator = translate.New(a.ws, a.supervisor, ast.NewExtractor())

	if cfg.Workspace.Watch {
		a.watcher, err = a.ws.Watch(ctx, workspace.WatchOptions{OnRefresh: a.onRefresh})
		if err != nil {
			return nil, fmt.Errorf("watch workspace: %w", err)
		}
	}

	langs, err := a.ws.DetectedLanguages(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	slog.Info("workspace ready",
		slog.String("root", a.ws.Root()),
		slog.Any("languages", langs),
	)
	if cfg.Supervisor.Prestart && len(langs) > 0 {
		go a.supervisor.Prestart(ctx, langs)
	}

	return a, nil
}

// folders computes workspace folders for a language at spawn time.
func (a *app) folders(config lsp.LanguageConfig) []lsp.WorkspaceFolder {
	files, err := a.ws.Files(context.Background())
	if err != nil {
		slog.Warn("listing files for workspace folders failed", slog.String("error", err.Error()))
	}
	return lsp.WorkspaceFolders(a.ws.Root(), files, config)
}

// onRefresh starts servers for languages that appear while running.
func (a *app) onRefresh(languages []string) {
	if !a.cfg.Supervisor.Prestart {
		return
	}
	var fresh []string
	for _, l := range languages {
		if a.supervisor.State(l) == lsp.StateNotStarted {
			fresh = append(fresh, l)
		}
	}
	if len(fresh) == 0 {
		return
	}
	slog.Info("new languages detected", slog.Any("languages", fresh))
	go a.supervisor.Prestart(context.Background(), fresh)
}

// close stops the watcher, the language servers and telemetry.
func (a *app) close(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.supervisor != nil {
		if err := a.supervisor.Close(ctx); err != nil {
			slog.Warn("supervisor close failed", slog.String("error", err.Error()))
		}
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
}

// router builds the HTTP surface.
func (a *app) router() *gin.Engine {
	if a.cfg.HTTP.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("lspproxy"))
	if a.cfg.HTTP.Debug {
		router.Use(gin.Logger())
	}

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/v1")
	lsproxy.RegisterRoutes(v1, lsproxy.NewHandlers(a.translator, a.supervisor, lsproxy.WithVersion(Version)))
	return router
}

// serve runs the HTTP server until ctx is canceled, then drains it.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Listen,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting lspproxy server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down lspproxy server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
