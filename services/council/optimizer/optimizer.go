// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package optimizer selects the loss-minimizing ensemble size M*.
//
// # Description
//
// For every candidate M in 1..MMax the optimizer evaluates
//
//	L_total(M) = E * sigma^2 / D_eff(M, rhoBar)
//	           + S * R_coll(M, rhoBar, p, delta)
//	           + c * M
//	           - nu * exp(-(M - M_target)^2 / (2 sigma_t^2))
//
// and returns the arg-min together with the full loss curve. The first
// three terms are the epistemic, collusion, and marginal-cost losses;
// the fourth is a legitimacy reward peaked at the size stakeholders
// expect for the given uncertainty and criticality, which is what lets
// social criticality pull M* upward while collusion risk is still low.
//
// Candidates are independent, so the sweep is a map over candidate
// sizes followed by a deterministic sequential reduction; ties break
// toward the smaller M (parsimony). Exceeding the caller's budget
// (context cancellation) returns the best result found so far tagged
// Partial rather than failing.
//
// # Thread Safety
//
// Optimize is safe for concurrent use; requests are read-only.
package optimizer

import (
	"context"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ConcordiaLabs/ConcordiaCore/pkg/logging"
	"github.com/ConcordiaLabs/ConcordiaCore/pkg/validation"
	"github.com/ConcordiaLabs/ConcordiaCore/services/council/collusion"
	"github.com/ConcordiaLabs/ConcordiaCore/services/council/diversity"
	"github.com/ConcordiaLabs/ConcordiaCore/services/council/model"
)

// Candidate-sweep configuration constants.
const (
	// parallelThreshold is the minimum candidate count that triggers
	// parallel evaluation. Small sweeps run sequentially.
	parallelThreshold = 32

	// maxWorkers caps the worker goroutines regardless of CPU count.
	maxWorkers = 8

	// defaultMMax bounds the candidate range when the request leaves
	// MMax at its zero value.
	defaultMMax = 15

	// defaultSigma2 is the baseline epistemic variance when the request
	// leaves Sigma2 at its zero value.
	defaultSigma2 = 1.0
)

var logger = logging.Get("council.optimizer")

// Request describes one optimization problem.
//
// Zero values for MMax and Sigma2 select the documented defaults; all
// other fields are validated as-is.
type Request struct {
	// Loss carries E, S, and the per-member cost c.
	Loss model.LossParameters

	// RhoBar is the mean pairwise correlation in [-1, 1].
	RhoBar float64

	// P is the communication density in [0, 1].
	P float64

	// Delta is the repeated-interaction discount factor in [0, 1).
	Delta float64

	// Sigma2 is the epistemic variance scale (> 0). Zero means 1.
	Sigma2 float64

	// MMax bounds the candidate range 1..MMax. Zero means 15.
	MMax int

	// PreferOdd bumps an even M* to M*+1 (within MMax) so majority
	// votes cannot tie. Off by default; the documented tie-break rule
	// is parsimony.
	PreferOdd bool

	// Tunables overrides the calibration constants. Nil means defaults.
	Tunables *model.Tunables
}

// LossPoint is one evaluated candidate of the loss curve.
type LossPoint struct {
	// M is the candidate ensemble size.
	M int `json:"m"`

	// Epistemic is E * sigma^2 / D_eff.
	Epistemic float64 `json:"epistemic"`

	// Collusion is S * R_coll.
	Collusion float64 `json:"collusion"`

	// Cost is c * M.
	Cost float64 `json:"cost"`

	// Trust is the (negative) legitimacy reward.
	Trust float64 `json:"trust"`

	// Total is the summed loss. +Inf marks a degenerate candidate whose
	// effective diversity collapsed.
	Total float64 `json:"total"`
}

// Result reports the optimum and the evaluated curve.
type Result struct {
	// MStar is the loss-minimizing ensemble size.
	MStar int `json:"m_star"`

	// Curve lists every evaluated candidate in ascending M.
	Curve []LossPoint `json:"curve"`

	// Partial is true when the budget expired before all candidates
	// were evaluated; MStar is then the best among those completed.
	Partial bool `json:"partial"`
}

// Optimize evaluates the loss curve and returns the arg-min M*.
//
// Outputs:
//   - *Result: optimum, curve, partial flag.
//   - error: ErrInvalidParameter for out-of-domain inputs,
//     ErrNumericalDegeneracy when no candidate has a finite loss, or the
//     context error when cancellation struck before any candidate
//     completed.
func Optimize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := startOptimizeSpan(ctx, req)
	defer span.End()

	req, err := withDefaults(req)
	if err != nil {
		return nil, err
	}

	tun := model.DefaultTunables()
	if req.Tunables != nil {
		tun = *req.Tunables
		if err := tun.Validate(); err != nil {
			return nil, err
		}
	}

	mTarget := targetSize(req.Loss.E, req.Loss.S, req.RhoBar)

	points := make([]*LossPoint, req.MMax)
	if req.MMax >= parallelThreshold {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(maxWorkers, req.MMax))
		for m := 1; m <= req.MMax; m++ {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				pt, err := evaluate(m, req, tun, mTarget)
				if err != nil {
					return err
				}
				points[m-1] = pt
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for m := 1; m <= req.MMax; m++ {
			if ctx.Err() != nil {
				break
			}
			pt, err := evaluate(m, req, tun, mTarget)
			if err != nil {
				return nil, err
			}
			points[m-1] = pt
		}
	}

	result, err := reduce(points, req)
	if err != nil {
		if errors.Is(err, errNoCandidates) {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if result.Partial {
		logger.Warn("optimizer budget exhausted, returning partial result",
			"evaluated", len(result.Curve), "m_max", req.MMax)
	}
	logger.Debug("optimization complete",
		"m_star", result.MStar, "m_target", mTarget, "partial", result.Partial)
	recordOptimizeMetrics(ctx, time.Since(start), result)
	span.SetAttributes(
		attribute.Int("optimizer.m_star", result.MStar),
		attribute.Bool("optimizer.partial", result.Partial),
	)
	return result, nil
}

// errNoCandidates signals that cancellation preempted every candidate.
var errNoCandidates = errors.New("no candidates evaluated")

// withDefaults validates the request and fills zero-value defaults.
func withDefaults(req Request) (Request, error) {
	if err := req.Loss.Validate(); err != nil {
		return req, err
	}
	if err := validation.Correlation(req.RhoBar); err != nil {
		return req, model.NewParameterError("rho_bar", req.RhoBar, err.Error())
	}
	if err := validation.Probability(req.P); err != nil {
		return req, model.NewParameterError("p", req.P, err.Error())
	}
	if err := validation.Discount(req.Delta); err != nil {
		return req, model.NewParameterError("delta", req.Delta, err.Error())
	}
	if req.Sigma2 == 0 {
		req.Sigma2 = defaultSigma2
	}
	if err := validation.Positive(req.Sigma2); err != nil {
		return req, model.NewParameterError("sigma2", req.Sigma2, err.Error())
	}
	if req.MMax == 0 {
		req.MMax = defaultMMax
	}
	if err := validation.PositiveCount(req.MMax); err != nil {
		return req, model.NewParameterError("m_max", req.MMax, err.Error())
	}
	return req, nil
}

// targetSize is the ensemble size stakeholders expect: it grows with
// epistemic uncertainty (more doubt wants more voices, amplified by
// correlation, which dilutes each voice) and with social criticality.
func targetSize(e, s, rhoBar float64) int {
	return 1 + int(4.0*e/(1.0-rhoBar+0.01)) + int(4.0*s*(1.0+e))
}

// evaluate computes one candidate's loss breakdown. A degenerate
// diversity denominator marks the candidate +Inf instead of failing the
// whole sweep; any other error aborts.
func evaluate(m int, req Request, tun model.Tunables, mTarget int) (*LossPoint, error) {
	cfg := model.EnsembleConfig{M: m, RhoBar: req.RhoBar, Delta: req.Delta, P: req.P}

	pt := &LossPoint{M: m, Cost: req.Loss.CostPerMember * float64(m)}

	dEff, err := diversity.EffectiveDiversity(cfg)
	if err != nil {
		if errors.Is(err, model.ErrNumericalDegeneracy) {
			pt.Total = math.Inf(1)
			return pt, nil
		}
		return nil, err
	}
	risk, err := collusion.Risk(cfg, collusion.WithTunables(tun))
	if err != nil {
		return nil, err
	}

	pt.Epistemic = req.Loss.E * req.Sigma2 / dEff
	pt.Collusion = req.Loss.S * risk
	spread := float64(m-mTarget) / tun.TrustWidth
	pt.Trust = -tun.TrustWeight * math.Exp(-0.5*spread*spread)
	pt.Total = pt.Epistemic + pt.Collusion + pt.Cost + pt.Trust
	return pt, nil
}

// reduce scans the evaluated candidates in ascending M and picks the
// strict minimum, so ties resolve toward the smaller size.
func reduce(points []*LossPoint, req Request) (*Result, error) {
	result := &Result{MStar: 0, Curve: make([]LossPoint, 0, len(points))}
	best := math.Inf(1)
	for _, pt := range points {
		if pt == nil {
			result.Partial = true
			continue
		}
		result.Curve = append(result.Curve, *pt)
		if pt.Total < best {
			best = pt.Total
			result.MStar = pt.M
		}
	}
	if len(result.Curve) == 0 {
		return nil, errNoCandidates
	}
	if math.IsInf(best, 1) || math.IsNaN(best) {
		return nil, model.ErrNumericalDegeneracy
	}
	if req.PreferOdd && result.MStar%2 == 0 && result.MStar+1 <= req.MMax {
		result.MStar++
	}
	return result, nil
}
