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
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// Package-level tracer and meter for upstream LSP traffic.
var (
	tracer = otel.Tracer("aleutian.lsproxy.lsp")
	meter  = otel.Meter("aleutian.lsproxy.lsp")
)

// Metrics for upstream requests and server lifecycle.
var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	serverSpawns   metric.Int64Counter
	serverRestarts metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"lsproxy_upstream_request_duration_seconds",
			metric.WithDescription("Duration of requests sent to language servers"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"lsproxy_upstream_requests_total",
			metric.WithDescription("Total number of requests sent to language servers"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"lsproxy_server_spawns_total",
			metric.WithDescription("Total number of language server start attempts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverRestarts, err = meter.Int64Counter(
			"lsproxy_server_restarts_total",
			metric.WithDescription("Total number of language server restart attempts"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRequestSpan creates a span for one upstream request.
func startRequestSpan(ctx context.Context, language, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Supervisor.Request",
		trace.WithAttributes(
			attribute.String("lsp.language", language),
			attribute.String("lsp.method", method),
		),
	)
}

// outcomeOf buckets an upstream error for metric labels.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, model.ErrProcessUnavailable):
		return "unavailable"
	case errors.Is(err, model.ErrUpstreamProtocol):
		return "protocol_error"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// recordRequestMetrics records metrics for one upstream request.
func recordRequestMetrics(ctx context.Context, language, method string, duration time.Duration, err error) {
	if initMetrics() != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("method", method),
		attribute.String("outcome", outcomeOf(err)),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

// recordServerSpawn records a server start attempt.
func recordServerSpawn(ctx context.Context, language string, success bool) {
	if initMetrics() != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	))
}

// recordServerRestart records a restart attempt after a failure.
func recordServerRestart(ctx context.Context, language string) {
	if initMetrics() != nil {
		return
	}
	serverRestarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
	))
}
