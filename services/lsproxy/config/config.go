// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the lsproxy configuration.
//
// Priority: flags > environment > file > defaults. Flags are applied by
// the command layer after Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvWorkspace = "LSPROXY_WORKSPACE"
	EnvListen    = "LSPROXY_LISTEN"
	EnvLogLevel  = "LSPROXY_LOG_LEVEL"
)

// Config is the top-level lsproxy configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Workspace describes the directory the proxy serves.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// HTTP configures the REST listener.
	HTTP HTTPConfig `yaml:"http"`

	// Supervisor configures language server lifecycle management.
	Supervisor SupervisorConfig `yaml:"supervisor"`

	// Languages overrides or extends the built-in language table by name.
	Languages []LanguageConfig `yaml:"languages" validate:"dive"`

	// Logging configures pkg/logging.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry configures OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// WorkspaceConfig describes the served workspace.
type WorkspaceConfig struct {
	// Root is the workspace directory. Relative paths resolve against the
	// current working directory.
	Root string `yaml:"root" validate:"required"`

	// Exclude lists glob patterns (matched against slash-separated
	// workspace-relative paths) skipped by enumeration and watching.
	Exclude []string `yaml:"exclude"`

	// Watch enables the filesystem watcher that keeps the detected
	// language set current.
	Watch bool `yaml:"watch"`
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
	Debug  bool   `yaml:"debug"`
}

// SupervisorConfig configures language server lifecycle management.
type SupervisorConfig struct {
	// StartupTimeout bounds spawn plus the initialize handshake.
	StartupTimeout time.Duration `yaml:"startup_timeout" validate:"gt=0"`

	// RequestTimeout bounds every upstream request.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`

	// ShutdownTimeout bounds the shutdown/exit exchange before the
	// process group is killed.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// MaxRestarts is the number of restart attempts after a failure
	// before a language settles in the stopped state.
	MaxRestarts int `yaml:"max_restarts" validate:"gte=0,lte=100"`

	// RestartBackoff is the initial restart delay; it doubles per attempt.
	RestartBackoff time.Duration `yaml:"restart_backoff" validate:"gt=0"`

	// MaxConsecutiveTimeouts degrades a language after this many request
	// timeouts in a row. Zero disables the check.
	MaxConsecutiveTimeouts int `yaml:"max_consecutive_timeouts" validate:"gte=0"`

	// Prestart starts servers at boot for every detected language.
	Prestart bool `yaml:"prestart"`

	// RequestsPerSecond limits upstream requests per language. Zero
	// disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// LanguageConfig overrides or adds one language server.
type LanguageConfig struct {
	Name                  string         `yaml:"name" validate:"required"`
	Command               string         `yaml:"command" validate:"required"`
	Args                  []string       `yaml:"args"`
	Extensions            []string       `yaml:"extensions" validate:"required,min=1,dive,startswith=."`
	RootFiles             []string       `yaml:"root_files"`
	InitializationOptions map[string]any `yaml:"initialization_options"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	Dir    string `yaml:"dir"`
}

// TelemetryConfig configures OpenTelemetry exporters.
type TelemetryConfig struct {
	// Traces selects the span exporter.
	Traces string `yaml:"traces" validate:"oneof=none stdout otlp"`

	// Metrics selects the metric reader.
	Metrics string `yaml:"metrics" validate:"oneof=none prometheus stdout"`

	// OTLPEndpoint is the collector address for Traces=otlp.
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`

	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `yaml:"otlp_insecure"`
}

// DefaultExcludes are skipped by workspace enumeration unless the file
// sets its own list.
var DefaultExcludes = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/.svn/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/target/**",
	"**/build/**",
	"**/dist/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/venv/**",
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workspace: WorkspaceConfig{
			Root:    ".",
			Exclude: append([]string(nil), DefaultExcludes...),
			Watch:   true,
		},
		HTTP: HTTPConfig{
			Listen: "0.0.0.0:4444",
		},
		Supervisor: SupervisorConfig{
			StartupTimeout:         60 * time.Second,
			RequestTimeout:         30 * time.Second,
			ShutdownTimeout:        5 * time.Second,
			MaxRestarts:            3,
			RestartBackoff:         500 * time.Millisecond,
			MaxConsecutiveTimeouts: 3,
			Prestart:               true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Traces:  "none",
			Metrics: "prometheus",
		},
	}
}

// validate is shared by every Validate call.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration with priority: env > file > defaults.
//
// Description:
//
//	Starts from Default, overlays the YAML file when path is non-empty,
//	applies environment overrides and validates the result. Fields
//	absent from the file keep their defaults.
//
// Inputs:
//
//	path - Path to a YAML config file. Empty skips the file.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Non-nil if the file cannot be read or parsed, or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvWorkspace); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration against its struct tags and the
// cross-field rules tags cannot express.
//
// Outputs:
//
//	error - Non-nil if configuration is invalid, naming every failing field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %w", errors.Join(msgs...))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Languages))
	for _, l := range c.Languages {
		if seen[l.Name] {
			return fmt.Errorf("invalid config: language %q listed twice", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}
