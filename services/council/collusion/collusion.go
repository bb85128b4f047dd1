// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collusion scores the risk that ensemble members sustain tacit
// coordination, and locates the percolation-style threshold where that
// risk transitions sharply.
//
// # Description
//
// R_coll factors into three multiplicative terms in [0, 1]:
//
//	f_phase: a steep logistic in the effective communication density,
//	         centered at the percolation threshold p_c = 1/(M-1). Its
//	         slope peaks exactly at p_c, which is the phase transition
//	         the theory predicts.
//	f_corr:  (1 + rhoBar)/2 - shared bias makes coordination easier.
//	f_rep:   a folk-theorem repetition term that is zero below the
//	         sustainability threshold delta_crit(M, rhoBar) and rises
//	         quadratically above it.
//
// Risk falls with M at fixed communication degree because delta_crit
// grows with M: more members make defection from the tacit agreement
// more tempting.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package collusion

import (
	"math"

	"github.com/ConcordiaLabs/ConcordiaCore/services/council/model"
)

// Option adjusts an engine call without widening its signature.
type Option func(*options)

type options struct {
	tunables model.Tunables
}

// WithTunables overrides the default calibration constants.
func WithTunables(t model.Tunables) Option {
	return func(o *options) {
		o.tunables = t
	}
}

func applyOptions(opts []Option) options {
	o := options{tunables: model.DefaultTunables()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PercolationThreshold returns p_c = 1/(M-1), the communication density
// at which coordination percolates. Returns +Inf for M <= 1: collusion
// cannot arise with a single member.
func PercolationThreshold(m int) float64 {
	if m <= 1 {
		return math.Inf(1)
	}
	return 1.0 / float64(m-1)
}

// SustainabilityThreshold returns delta_crit: the minimal discount
// factor above which tacit coordination is self-enforcing for the
// config's M and mean correlation.
//
// delta_crit = min(1, (1 - 1/M) * (1 - rhoBar)/(1 + rhoBar)): the
// classic M-player folk-theorem bound scaled by shared bias. Increasing
// in M (more members, harder to sustain) and decreasing in rhoBar
// (higher shared bias, easier to sustain). Returns 1 for M = 1, where
// there is nobody to coordinate with.
func SustainabilityThreshold(cfg model.EnsembleConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	return sustainability(cfg.M, cfg.MeanRho()), nil
}

func sustainability(m int, rhoBar float64) float64 {
	if m <= 1 {
		return 1.0
	}
	denom := 1.0 + rhoBar
	if denom <= 0 {
		// Perfect anti-correlation: coordination is never sustainable.
		return 1.0
	}
	dc := (1.0 - 1.0/float64(m)) * (1.0 - rhoBar) / denom
	if dc > 1.0 {
		dc = 1.0
	}
	return dc
}

// Risk computes R_coll in [0, 1] for the given config.
//
// Inputs:
//   - cfg: ensemble configuration. When a topology is present, the
//     effective communication density blends edge density and average
//     clustering (AlphaEdge/AlphaClust); otherwise cfg.P is used.
//
// Outputs:
//   - float64: R_coll in [0, 1]. Exactly 0 for M = 1.
//   - error: validation errors from the config.
func Risk(cfg model.EnsembleConfig, opts ...Option) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if cfg.M == 1 {
		return 0.0, nil
	}
	o := applyOptions(opts)
	if err := o.tunables.Validate(); err != nil {
		return 0, err
	}

	rhoBar := cfg.MeanRho()
	pEff := effectiveDensity(cfg, o.tunables)
	pc := PercolationThreshold(cfg.M)

	fPhase := logistic((pEff - pc) / o.tunables.TransitionWidth)
	fCorr := (1.0 + rhoBar) / 2.0
	fRep := repetition(cfg.Delta, sustainability(cfg.M, rhoBar))

	r := fPhase * fCorr * fRep
	// The factors are each in [0, 1]; the clamp only guards rounding.
	return math.Min(1.0, math.Max(0.0, r)), nil
}

// IsAboveThreshold reports whether the effective communication density
// has crossed the percolation threshold. Always false for M = 1.
func IsAboveThreshold(cfg model.EnsembleConfig, opts ...Option) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	if cfg.M == 1 {
		return false, nil
	}
	o := applyOptions(opts)
	if err := o.tunables.Validate(); err != nil {
		return false, err
	}
	return effectiveDensity(cfg, o.tunables) >= PercolationThreshold(cfg.M), nil
}

// effectiveDensity is the communication density seen by the phase term:
// the declared scalar p, or the blended topology measure when a graph
// is supplied.
func effectiveDensity(cfg model.EnsembleConfig, t model.Tunables) float64 {
	if cfg.Graph == nil {
		return cfg.P
	}
	return t.AlphaEdge*cfg.Graph.Density() + t.AlphaClust*cfg.Graph.AverageClustering()
}

// repetition is the folk-theorem term: zero below delta_crit, rising
// quadratically to 1 as delta approaches 1.
func repetition(delta, deltaCrit float64) float64 {
	if deltaCrit >= 1.0 || delta <= deltaCrit {
		return 0.0
	}
	g := (delta - deltaCrit) / (1.0 - deltaCrit)
	return g * g
}

func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
