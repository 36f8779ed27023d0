// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command lspproxy serves file/position code navigation over a polyglot
// workspace by fronting one language server per language.
//
// Usage:
//
//	lspproxy serve --workspace /path/to/repo
//	lspproxy serve --config lspproxy.yaml --listen 127.0.0.1:4444
//	lspproxy mcp --workspace /path/to/repo
//	lspproxy languages
//	lspproxy version
//
// Example requests:
//
//	# Health check
//	curl http://localhost:4444/v1/system/health
//
//	# Top-level symbols in a file
//	curl 'http://localhost:4444/v1/symbol/definitions-in-file?file_path=main.go'
//
//	# Definition of the identifier at a position
//	curl -X POST http://localhost:4444/v1/symbol/find-definition \
//	  -H "Content-Type: application/json" \
//	  -d '{"position": {"path": "main.go", "position": {"line": 10, "character": 4}}}'
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	lspmcp "github.com/AleutianAI/AleutianLSP/services/lsproxy/mcp"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

// flags holds command-line overrides. Empty values leave the loaded
// configuration untouched.
type flags struct {
	configPath string
	workspace  string
	listen     string
	logLevel   string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "lspproxy",
		Short:        "Unified code navigation over per-language language servers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVarP(&f.workspace, "workspace", "w", "", "Workspace root (env "+config.EnvWorkspace+")")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (env "+config.EnvLogLevel+")")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	serveCmd.Flags().StringVarP(&f.listen, "listen", "l", "", "Listen address host:port (env "+config.EnvListen+")")
	serveCmd.Flags().BoolVar(&f.debug, "debug", false, "Enable gin debug mode and request logging")

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), f, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	languagesCmd := &cobra.Command{
		Use:   "languages",
		Short: "List configured language servers and whether they are installed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return printLanguages(cmd.OutOrStdout(), cfg)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}

	root.AddCommand(serveCmd, mcpCmd, languagesCmd, versionCmd)
	return root
}

// loadConfig reads the configuration file and environment, then applies
// command-line overrides.
func loadConfig(f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.workspace != "" {
		cfg.Workspace.Root = f.workspace
	}
	if f.listen != "" {
		cfg.HTTP.Listen = f.listen
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.debug {
		cfg.HTTP.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runServe(parent context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer closeApp(a, cfg)

	return a.serve(ctx)
}

func runMCP(parent context.Context, f *flags, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	// stdout is the protocol channel.
	cfg.Telemetry.Traces = "none"
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer closeApp(a, cfg)

	return lspmcp.NewServer(a.translator, Version).ServeStdio(ctx, in, out)
}

func closeApp(a *app, cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Supervisor.ShutdownTimeout+5*time.Second)
	defer cancel()
	a.close(ctx)
}
