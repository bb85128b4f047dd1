// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package optimizer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for ensemble size optimization.
var (
	tracer = otel.Tracer("concordia.council.optimizer")
	meter  = otel.Meter("concordia.council.optimizer")
)

// Metrics for optimization runs.
var (
	optimizeLatency metric.Float64Histogram
	optimizeTotal   metric.Int64Counter
	mStarChosen     metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		optimizeLatency, err = meter.Float64Histogram(
			"optimizer_run_duration_seconds",
			metric.WithDescription("Duration of ensemble size optimization runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		optimizeTotal, err = meter.Int64Counter(
			"optimizer_run_total",
			metric.WithDescription("Total number of optimization runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mStarChosen, err = meter.Int64Histogram(
			"optimizer_m_star",
			metric.WithDescription("Optimal ensemble size chosen per run"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startOptimizeSpan creates a span for an optimization run.
func startOptimizeSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Optimizer.Optimize",
		trace.WithAttributes(
			attribute.Float64("optimizer.e", req.Loss.E),
			attribute.Float64("optimizer.s", req.Loss.S),
			attribute.Float64("optimizer.rho_bar", req.RhoBar),
			attribute.Int("optimizer.m_max", req.MMax),
		),
	)
}

// recordOptimizeMetrics records metrics for a completed optimization run.
func recordOptimizeMetrics(ctx context.Context, duration time.Duration, res *Result) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("partial", res.Partial),
	)

	optimizeLatency.Record(ctx, duration.Seconds(), attrs)
	optimizeTotal.Add(ctx, 1, attrs)
	mStarChosen.Record(ctx, int64(res.MStar))
}
