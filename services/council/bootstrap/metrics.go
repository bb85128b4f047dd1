// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for bootstrap audits.
var (
	tracer = otel.Tracer("concordia.council.bootstrap")
	meter  = otel.Meter("concordia.council.bootstrap")
)

// Metrics for audit runs.
var (
	auditLatency  metric.Float64Histogram
	auditTotal    metric.Int64Counter
	resamplesDone metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		auditLatency, err = meter.Float64Histogram(
			"bootstrap_audit_duration_seconds",
			metric.WithDescription("Duration of bootstrap audit runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		auditTotal, err = meter.Int64Counter(
			"bootstrap_audit_total",
			metric.WithDescription("Total number of bootstrap audit runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resamplesDone, err = meter.Int64Histogram(
			"bootstrap_resamples_completed",
			metric.WithDescription("Surrogate resamples completed per audit"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startAuditSpan creates a span for a bootstrap audit.
func startAuditSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Auditor.Audit",
		trace.WithAttributes(
			attribute.Int("bootstrap.sequence_length", len(req.Sequence.Values)),
			attribute.Int("bootstrap.resamples_requested", req.Resamples),
		),
	)
}

// recordAuditMetrics records metrics for a completed audit.
func recordAuditMetrics(ctx context.Context, duration time.Duration, rep *Report) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("partial", rep.Partial),
	)

	auditLatency.Record(ctx, duration.Seconds(), attrs)
	auditTotal.Add(ctx, 1, attrs)
	resamplesDone.Record(ctx, int64(rep.Resamples))
}
