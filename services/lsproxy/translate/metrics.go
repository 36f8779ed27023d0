// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package translate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.lsproxy.translate")
	meter  = otel.Meter("aleutian.lsproxy.translate")
)

var (
	operationLatency metric.Float64Histogram
	operationTotal   metric.Int64Counter
	resultCount      metric.Int64Histogram
	classifications  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"lsproxy_operation_duration_seconds",
			metric.WithDescription("Duration of proxy operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		operationTotal, err = meter.Int64Counter(
			"lsproxy_operation_total",
			metric.WithDescription("Total number of proxy operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resultCount, err = meter.Int64Histogram(
			"lsproxy_operation_results",
			metric.WithDescription("Number of results returned per operation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		classifications, err = meter.Int64Counter(
			"lsproxy_classified_references_total",
			metric.WithDescription("References classified by bucket"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startOperationSpan creates a span for a proxy operation.
func startOperationSpan(ctx context.Context, operation, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Translator."+operation,
		trace.WithAttributes(
			attribute.String("lsproxy.operation", operation),
			attribute.String("lsproxy.file_path", path),
		),
	)
}

// setOperationSpanResult sets the result attributes on an operation span.
func setOperationSpanResult(span trace.Span, language string, resultCnt int, success bool) {
	span.SetAttributes(
		attribute.String("lsproxy.language", language),
		attribute.Int("lsproxy.result_count", resultCnt),
		attribute.Bool("lsproxy.success", success),
	)
}

// recordOperationMetrics records metrics for a proxy operation.
func recordOperationMetrics(ctx context.Context, operation, language string, duration time.Duration, resultCnt int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	operationLatency.Record(ctx, duration.Seconds(), attrs)
	operationTotal.Add(ctx, 1, attrs)

	if success {
		resultCount.Record(ctx, int64(resultCnt), metric.WithAttributes(
			attribute.String("operation", operation),
		))
	}
}

func recordClassification(ctx context.Context, language, bucket string, n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	classifications.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("bucket", bucket),
	))
}
