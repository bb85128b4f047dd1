// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sweep

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for subset sweeps.
var (
	tracer = otel.Tracer("concordia.council.sweep")
	meter  = otel.Meter("concordia.council.sweep")
)

// Metrics for sweep runs.
var (
	sweepLatency     metric.Float64Histogram
	sweepTotal       metric.Int64Counter
	subsetsEvaluated metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		sweepLatency, err = meter.Float64Histogram(
			"sweep_duration_seconds",
			metric.WithDescription("Duration of subset sweep runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sweepTotal, err = meter.Int64Counter(
			"sweep_total",
			metric.WithDescription("Total number of subset sweep runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		subsetsEvaluated, err = meter.Int64Histogram(
			"sweep_subsets_evaluated",
			metric.WithDescription("Subsets evaluated per sweep"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startSweepSpan creates a span for a subset sweep.
func startSweepSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Sweep.Subsets",
		trace.WithAttributes(
			attribute.Int("sweep.members", len(req.Members)),
			attribute.Int("sweep.call_sites", len(req.Truth)),
		),
	)
}

// recordSweepMetrics records metrics for a completed sweep.
func recordSweepMetrics(ctx context.Context, duration time.Duration, members, subsets int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("members", members),
	)

	sweepLatency.Record(ctx, duration.Seconds(), attrs)
	sweepTotal.Add(ctx, 1, attrs)
	subsetsEvaluated.Record(ctx, int64(subsets))
}
