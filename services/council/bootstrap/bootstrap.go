// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bootstrap audits whether an observed outcome statistic could
// plausibly arise under a null value, using a circular block bootstrap
// that respects serial dependence in the outcome sequence.
//
// # Description
//
// Outcome sequences from repeated council runs are autocorrelated, so
// i.i.d. resampling understates the variance and produces overconfident
// p-values. The auditor resamples whole blocks with wraparound
// (circular block bootstrap): each surrogate series is assembled from
// randomly positioned blocks of the original, preserving the
// within-block dependence structure.
//
// Before resampling, the series is recentered so its statistic equals
// the null value; the surrogate statistics then sample the null
// distribution, and the two-sided p-value uses the standard
// add-one (k+1)/(B+1) estimator, which can never report an exact zero.
// The confidence interval is the percentile interval of the surrogate
// distribution translated back to the observed statistic.
//
// Every surrogate draws from its own deterministically derived RNG, so
// identical inputs and seed produce a bit-identical report (minus the
// report ID) regardless of worker scheduling.
//
// # Thread Safety
//
// Audit is safe for concurrent use; requests are read-only.
package bootstrap

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ConcordiaLabs/ConcordiaCore/pkg/logging"
	"github.com/ConcordiaLabs/ConcordiaCore/services/council/model"
)

// Resampling configuration constants.
const (
	// defaultResamples is the surrogate count when the request leaves
	// Resamples at its zero value.
	defaultResamples = 10000

	// defaultConfidence is the confidence level when the request leaves
	// ConfidenceLevel at its zero value.
	defaultConfidence = 0.95

	// parallelThreshold is the minimum surrogate count that triggers
	// parallel resampling.
	parallelThreshold = 32

	// maxWorkers caps the worker goroutines regardless of CPU count.
	maxWorkers = 8
)

var logger = logging.Get("council.bootstrap")

// OutcomeSequence is an ordered series of outcome scores from repeated
// council runs.
type OutcomeSequence struct {
	// Values are the per-run outcome scores in temporal order.
	Values []float64 `json:"values"`

	// BlockLength is the resampling block length in [1, len(Values)].
	// Zero selects AutoBlockLength.
	BlockLength int `json:"block_length"`
}

// Request describes one audit.
type Request struct {
	// Sequence is the observed outcome series. At least two values.
	Sequence OutcomeSequence

	// NullValue is the statistic value under the no-effect hypothesis.
	NullValue float64

	// Resamples is the surrogate count B. Zero means 10000.
	Resamples int

	// Seed drives all randomness. The same seed with the same inputs
	// reproduces the report exactly.
	Seed uint64

	// Statistic reduces a series to the audited scalar. Nil means the
	// sample mean. Must be pure; it is called concurrently.
	Statistic func([]float64) float64

	// ConfidenceLevel for the percentile interval, in (0, 1). Zero
	// means 0.95.
	ConfidenceLevel float64
}

// Report is the audit outcome.
type Report struct {
	// ID identifies this audit run.
	ID uuid.UUID `json:"id"`

	// ObservedStatistic is the statistic of the input series.
	ObservedStatistic float64 `json:"observed_statistic"`

	// PValue is the two-sided add-one bootstrap p-value in (0, 1].
	PValue float64 `json:"p_value"`

	// CILow and CIHigh bound the percentile confidence interval for the
	// observed statistic.
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`

	// BlockLength is the block length actually used.
	BlockLength int `json:"block_length"`

	// Resamples is the number of surrogates actually completed.
	Resamples int `json:"resamples"`

	// Partial is true when the budget expired before all surrogates
	// completed; the estimates then use the completed subset.
	Partial bool `json:"partial"`
}

// Audit runs the circular block bootstrap test.
//
// Outputs:
//   - *Report: p-value, confidence interval, block length, counts.
//   - error: ErrInvalidParameter for malformed requests, or the context
//     error when cancellation struck before any surrogate completed.
func Audit(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	ctx, span := startAuditSpan(ctx, req)
	defer span.End()

	req, err := withDefaults(req)
	if err != nil {
		return nil, err
	}

	values := req.Sequence.Values
	t := len(values)
	observed := req.Statistic(values)

	bl := req.Sequence.BlockLength
	if bl == 0 {
		bl = AutoBlockLength(values)
	}

	// Shift the series so its statistic sits at the null; surrogate
	// statistics then sample the null distribution.
	centered := make([]float64, t)
	shift := req.NullValue - observed
	for i, v := range values {
		centered[i] = v + shift
	}

	stats := make([]float64, req.Resamples)
	for i := range stats {
		stats[i] = math.NaN()
	}

	if req.Resamples >= parallelThreshold {
		g, gctx := errgroup.WithContext(ctx)
		workers := maxWorkers
		chunk := (req.Resamples + workers - 1) / workers
		for w := 0; w < workers; w++ {
			lo, hi := w*chunk, (w+1)*chunk
			if hi > req.Resamples {
				hi = req.Resamples
			}
			if lo >= hi {
				break
			}
			g.Go(func() error {
				for b := lo; b < hi; b++ {
					if gctx.Err() != nil {
						return nil
					}
					stats[b] = resampleStatistic(centered, bl, req.Statistic, req.Seed, uint64(b))
				}
				return nil
			})
		}
		// Workers only ever return nil; Wait is for joining.
		_ = g.Wait()
	} else {
		for b := 0; b < req.Resamples; b++ {
			if ctx.Err() != nil {
				break
			}
			stats[b] = resampleStatistic(centered, bl, req.Statistic, req.Seed, uint64(b))
		}
	}

	completed := stats[:0:len(stats)]
	for _, s := range stats {
		if !math.IsNaN(s) {
			completed = append(completed, s)
		}
	}
	if len(completed) == 0 {
		return nil, ctx.Err()
	}

	report := &Report{
		ID:                uuid.New(),
		ObservedStatistic: observed,
		BlockLength:       bl,
		Resamples:         len(completed),
		Partial:           len(completed) < req.Resamples,
	}
	report.PValue = twoSidedPValue(completed, observed)
	report.CILow, report.CIHigh = percentileInterval(completed, observed, req.NullValue, req.ConfidenceLevel)

	if report.Partial {
		logger.Warn("bootstrap budget exhausted, returning partial report",
			"completed", report.Resamples, "requested", req.Resamples)
	}
	logger.Debug("audit complete",
		"p_value", report.PValue, "block_length", bl, "resamples", report.Resamples)
	recordAuditMetrics(ctx, time.Since(start), report)
	span.SetAttributes(
		attribute.Float64("bootstrap.p_value", report.PValue),
		attribute.Int("bootstrap.block_length", bl),
		attribute.Bool("bootstrap.partial", report.Partial),
	)
	return report, nil
}

// withDefaults validates the request and fills zero-value defaults.
func withDefaults(req Request) (Request, error) {
	t := len(req.Sequence.Values)
	if t < 2 {
		return req, model.NewParameterError("sequence.values", t,
			"need at least 2 outcome values")
	}
	for i, v := range req.Sequence.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return req, model.NewParameterError("sequence.values", i,
				"outcome values must be finite")
		}
	}
	if bl := req.Sequence.BlockLength; bl < 0 || bl > t {
		return req, model.NewParameterError("sequence.block_length", bl,
			"must be in [1, len(values)], or 0 for automatic selection")
	}
	if math.IsNaN(req.NullValue) || math.IsInf(req.NullValue, 0) {
		return req, model.NewParameterError("null_value", req.NullValue,
			"must be finite")
	}
	if req.Resamples < 0 {
		return req, model.NewParameterError("resamples", req.Resamples,
			"must be >= 0")
	}
	if req.Resamples == 0 {
		req.Resamples = defaultResamples
	}
	if req.ConfidenceLevel == 0 {
		req.ConfidenceLevel = defaultConfidence
	}
	if req.ConfidenceLevel <= 0 || req.ConfidenceLevel >= 1 {
		return req, model.NewParameterError("confidence_level", req.ConfidenceLevel,
			"must be in (0, 1)")
	}
	if req.Statistic == nil {
		req.Statistic = mean
	}
	return req, nil
}

// resampleStatistic builds one circular-block surrogate and returns its
// statistic. The RNG is derived from the base seed and the surrogate
// index, so results do not depend on worker scheduling. The base seed
// is mixed before the index is added; combining them directly would let
// neighboring seeds share most of their per-surrogate streams.
func resampleStatistic(centered []float64, bl int, statistic func([]float64) float64, seed, index uint64) float64 {
	s1 := splitmix64(splitmix64(seed) + index)
	s2 := splitmix64(s1)
	rng := rand.New(rand.NewPCG(s1, s2))

	t := len(centered)
	surrogate := make([]float64, 0, t+bl)
	for len(surrogate) < t {
		start := rng.IntN(t)
		for j := 0; j < bl && len(surrogate) < t; j++ {
			surrogate = append(surrogate, centered[(start+j)%t])
		}
	}
	return statistic(surrogate)
}

// twoSidedPValue is the add-one estimator: twice the smaller tail
// probability of the observed statistic under the surrogate
// distribution, capped at 1.
func twoSidedPValue(surrogates []float64, observed float64) float64 {
	lo, hi := 0, 0
	for _, s := range surrogates {
		if s <= observed {
			lo++
		}
		if s >= observed {
			hi++
		}
	}
	n := float64(len(surrogates) + 1)
	p := 2.0 * math.Min(float64(lo+1)/n, float64(hi+1)/n)
	return math.Min(1.0, p)
}

// percentileInterval is the surrogate percentile interval translated
// from the null back to the observed statistic.
func percentileInterval(surrogates []float64, observed, null, confidence float64) (float64, float64) {
	sorted := make([]float64, len(surrogates))
	copy(sorted, surrogates)
	sort.Float64s(sorted)

	alpha := 1.0 - confidence
	shift := observed - null
	lo := stat.Quantile(alpha/2.0, stat.Empirical, sorted, nil) + shift
	hi := stat.Quantile(1.0-alpha/2.0, stat.Empirical, sorted, nil) + shift
	return lo, hi
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// splitmix64 is the standard 64-bit mix used to derive independent
// per-surrogate seed streams from one base seed.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
