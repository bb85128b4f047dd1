// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diversity computes the effective diversity D_eff of an
// ensemble: the number of independent-equivalent members its correlation
// structure reduces it to.
//
// # Description
//
// D_eff = phi(G) * M^2 / sum(rho), where sum(rho) ranges over all
// ordered member pairs including the diagonal, and phi(G) in (0, 1] is
// the topology discount (1 for no communication, smaller for denser
// graphs). For the scalar correlation source, sum(rho) is approximated
// as M + M(M-1)*rhoBar.
//
// Negative mean correlation legitimately pushes D_eff above M:
// anti-correlated members are jointly more informative than their count
// suggests, and the engine never clamps that away.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package diversity

import (
	"fmt"

	"github.com/ConcordiaLabs/ConcordiaCore/pkg/validation"
	"github.com/ConcordiaLabs/ConcordiaCore/services/council/model"
)

// phiFloor is the domain minimum of the topology discount: a complete
// communication graph discounts diversity to 1% rather than to zero,
// keeping D_eff strictly positive.
const phiFloor = 0.01

// TopologyDiscount returns phi(G) in (0, 1] for a graph over m members.
//
// phi = max(phiFloor, 1 - density): a fully disconnected graph yields 1,
// a complete graph yields the floor, and phi is non-increasing in edge
// density in between. A nil graph or a single member yields 1.
func TopologyDiscount(g *model.TopologyGraph, m int) float64 {
	if g == nil || m <= 1 {
		return 1.0
	}
	phi := 1.0 - g.Density()
	if phi < phiFloor {
		phi = phiFloor
	}
	return phi
}

// EffectiveDiversity computes D_eff for the given ensemble config.
//
// Inputs:
//   - cfg: validated ensemble configuration (matrix or scalar source,
//     optional topology).
//
// Outputs:
//   - float64: D_eff in (0, inf). Exactly M for zero correlation and no
//     topology discount; exactly 1 for M = 1 regardless of correlation.
//   - error: ErrInvalidParameter / ErrMalformedCorrelation from config
//     validation, or ErrNumericalDegeneracy when the total correlation
//     mass is <= 0.
func EffectiveDiversity(cfg model.EnsembleConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if cfg.M == 1 {
		// A lone member trivially has no correlation to dilute it.
		return 1.0, nil
	}

	sum := cfg.SumRho()
	if sum <= 0 {
		return 0, fmt.Errorf("%w: total correlation mass %g <= 0 for M=%d",
			model.ErrNumericalDegeneracy, sum, cfg.M)
	}

	phi := TopologyDiscount(cfg.Graph, cfg.M)
	return phi * float64(cfg.M) * float64(cfg.M) / sum, nil
}

// MarginalGain returns the incremental effective diversity from
// appending one member whose correlations to the existing M members are
// newRhoRow.
//
// The gain is computed from the same closed form as EffectiveDiversity,
// so for non-negative correlation rows it is bounded above by the gain
// of an independent member at the same M by construction, with no
// post-hoc clamp. The appended member joins with no communication
// edges, so the topology discount is re-derived from the existing edge
// set over M+1 nodes.
func MarginalGain(cfg model.EnsembleConfig, newRhoRow []float64) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if len(newRhoRow) != cfg.M {
		return 0, model.NewParameterError("new_rho_row", len(newRhoRow),
			fmt.Sprintf("row must have exactly M=%d entries", cfg.M))
	}
	rowSum := 0.0
	for i, r := range newRhoRow {
		if err := validation.Correlation(r); err != nil {
			return 0, model.NewParameterError(fmt.Sprintf("new_rho_row[%d]", i), r, err.Error())
		}
		rowSum += r
	}

	current, err := EffectiveDiversity(cfg)
	if err != nil {
		return 0, err
	}

	// Extended correlation mass: the new unit diagonal term plus the new
	// row counted in both orders.
	sumNew := cfg.SumRho() + 1.0 + 2.0*rowSum
	if sumNew <= 0 {
		return 0, fmt.Errorf("%w: extended correlation mass %g <= 0",
			model.ErrNumericalDegeneracy, sumNew)
	}

	mNew := cfg.M + 1
	phiNew := 1.0
	if cfg.Graph != nil && mNew > 1 {
		// Same edges over a larger node set.
		density := 2.0 * float64(cfg.Graph.EdgeCount()) / float64(mNew*(mNew-1))
		phiNew = 1.0 - density
		if phiNew < phiFloor {
			phiNew = phiFloor
		}
	}

	next := phiNew * float64(mNew) * float64(mNew) / sumNew
	return next - current, nil
}
