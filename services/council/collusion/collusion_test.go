// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConcordiaLabs/ConcordiaCore/services/council/model"
)

// TestPercolationThreshold verifies p_c = 1/(M-1) and the single-member
// infinity.
func TestPercolationThreshold(t *testing.T) {
	assert.True(t, math.IsInf(PercolationThreshold(1), 1))
	assert.True(t, math.IsInf(PercolationThreshold(0), 1))
	assert.Equal(t, 1.0, PercolationThreshold(2))
	assert.Equal(t, 0.25, PercolationThreshold(5))
	assert.InDelta(t, 1.0/9.0, PercolationThreshold(10), 1e-12)
}

// TestSustainabilityThreshold_MonotoneInM verifies delta_crit increases
// with M at fixed correlation: more members make tacit coordination
// harder to sustain.
func TestSustainabilityThreshold_MonotoneInM(t *testing.T) {
	prev := -1.0
	for _, m := range []int{2, 3, 5, 8, 12} {
		dc, err := SustainabilityThreshold(model.EnsembleConfig{M: m, RhoBar: 0.3})
		require.NoError(t, err)
		assert.Greater(t, dc, prev, "delta_crit must rise with M=%d", m)
		assert.LessOrEqual(t, dc, 1.0)
		prev = dc
	}
}

// TestSustainabilityThreshold_MonotoneInRho verifies delta_crit falls as
// shared bias rises at fixed M.
func TestSustainabilityThreshold_MonotoneInRho(t *testing.T) {
	prev := 2.0
	for _, rho := range []float64{-0.5, 0.0, 0.3, 0.6, 0.9} {
		dc, err := SustainabilityThreshold(model.EnsembleConfig{M: 5, RhoBar: rho})
		require.NoError(t, err)
		assert.Less(t, dc, prev, "delta_crit must fall as rhoBar rises past %g", rho)
		prev = dc
	}
}

// TestSustainabilityThreshold_Boundaries verifies the M = 1 and perfect
// anti-correlation conventions.
func TestSustainabilityThreshold_Boundaries(t *testing.T) {
	dc, err := SustainabilityThreshold(model.EnsembleConfig{M: 1, RhoBar: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, dc)

	dc, err = SustainabilityThreshold(model.EnsembleConfig{M: 5, RhoBar: -1.0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, dc, "anti-correlated members never sustain coordination")
}

// TestRisk_SingleMemberZero verifies R_coll(M=1) = 0 exactly.
func TestRisk_SingleMemberZero(t *testing.T) {
	r, err := Risk(model.EnsembleConfig{M: 1, RhoBar: 0.9, Delta: 0.9, P: 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r)
}

// TestRisk_Bounds verifies R_coll stays inside [0, 1] across the
// parameter grid.
func TestRisk_Bounds(t *testing.T) {
	for _, m := range []int{2, 4, 8, 15} {
		for _, rho := range []float64{-0.9, 0.0, 0.5, 0.95} {
			for _, delta := range []float64{0.0, 0.5, 0.99} {
				for _, p := range []float64{0.0, 0.3, 1.0} {
					r, err := Risk(model.EnsembleConfig{M: m, RhoBar: rho, Delta: delta, P: p})
					require.NoError(t, err)
					assert.GreaterOrEqual(t, r, 0.0)
					assert.LessOrEqual(t, r, 1.0)
				}
			}
		}
	}
}

// TestRisk_MonotoneInRho verifies risk is non-decreasing in the mean
// correlation with everything else fixed.
func TestRisk_MonotoneInRho(t *testing.T) {
	prev := -1.0
	strict := false
	for _, rho := range []float64{0.0, 0.2, 0.4, 0.6, 0.8} {
		r, err := Risk(model.EnsembleConfig{M: 6, RhoBar: rho, Delta: 0.9, P: 0.3})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r, prev)
		if r > prev && prev >= 0 {
			strict = true
		}
		prev = r
	}
	assert.True(t, strict, "risk must actually respond to correlation")
}

// TestRisk_MonotoneInDelta verifies risk is non-decreasing in the
// discount factor: patient members sustain coordination more easily.
func TestRisk_MonotoneInDelta(t *testing.T) {
	prev := -1.0
	for _, delta := range []float64{0.0, 0.3, 0.5, 0.7, 0.9, 0.99} {
		r, err := Risk(model.EnsembleConfig{M: 6, RhoBar: 0.5, Delta: delta, P: 0.3})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r, prev, "delta=%g", delta)
		prev = r
	}
}

// TestRisk_MonotoneInP verifies risk strictly rises with communication
// density once the repetition term is active.
func TestRisk_MonotoneInP(t *testing.T) {
	prev := -1.0
	for _, p := range []float64{0.0, 0.1, 0.2, 0.3, 0.5, 0.8} {
		r, err := Risk(model.EnsembleConfig{M: 6, RhoBar: 0.5, Delta: 0.9, P: p})
		require.NoError(t, err)
		assert.Greater(t, r, prev, "p=%g", p)
		prev = r
	}
}

// TestRisk_DecreasesWithM_FixedDegree verifies the dilution effect:
// on a fixed-degree ring topology, adding members lowers the risk.
func TestRisk_DecreasesWithM_FixedDegree(t *testing.T) {
	ring := func(m int) *model.TopologyGraph {
		g, err := model.NewTopology(m)
		require.NoError(t, err)
		for u := 0; u < m; u++ {
			require.NoError(t, g.AddEdge(u, (u+1)%m))
		}
		return g
	}

	prev := 2.0
	for _, m := range []int{4, 6, 8, 10, 12} {
		r, err := Risk(model.EnsembleConfig{M: m, RhoBar: 0.5, Delta: 0.9, Graph: ring(m)})
		require.NoError(t, err)
		assert.Less(t, r, prev, "risk must fall as the ring grows to M=%d", m)
		prev = r
	}
}

// TestRisk_PhaseTransitionSharpness samples p on a fine grid and checks
// the numerical derivative of R_coll peaks in a small neighborhood of
// the percolation threshold p_c.
func TestRisk_PhaseTransitionSharpness(t *testing.T) {
	const (
		m    = 6
		step = 0.005
	)
	pc := PercolationThreshold(m) // 0.2

	var grid []float64
	var risks []float64
	for p := 0.0; p <= 0.4+1e-9; p += step {
		r, err := Risk(model.EnsembleConfig{M: m, RhoBar: 0.5, Delta: 0.9, P: p})
		require.NoError(t, err)
		grid = append(grid, p)
		risks = append(risks, r)
	}

	bestSlope, bestP := -1.0, 0.0
	for i := 1; i+1 < len(risks); i++ {
		slope := (risks[i+1] - risks[i-1]) / (2 * step)
		if slope > bestSlope {
			bestSlope = slope
			bestP = grid[i]
		}
	}

	assert.InDelta(t, pc, bestP, 0.015, "steepest rise must sit at the percolation threshold")
	assert.Greater(t, bestSlope, 1.0, "the transition must be sharp, not a gentle drift")
}

// TestIsAboveThreshold verifies the threshold flag against p_c.
func TestIsAboveThreshold(t *testing.T) {
	above, err := IsAboveThreshold(model.EnsembleConfig{M: 5, P: 0.3})
	require.NoError(t, err)
	assert.True(t, above)

	below, err := IsAboveThreshold(model.EnsembleConfig{M: 5, P: 0.2})
	require.NoError(t, err)
	assert.False(t, below)

	single, err := IsAboveThreshold(model.EnsembleConfig{M: 1, P: 1.0})
	require.NoError(t, err)
	assert.False(t, single, "a single member has no threshold to cross")
}

// TestRisk_WithTunables verifies a wider transition lowers the slope at
// the threshold relative to the default calibration.
func TestRisk_WithTunables(t *testing.T) {
	wide := model.DefaultTunables()
	wide.TransitionWidth = 0.2

	cfg := model.EnsembleConfig{M: 6, RhoBar: 0.5, Delta: 0.9, P: 0.15}
	sharp, err := Risk(cfg)
	require.NoError(t, err)
	blurred, err := Risk(cfg, WithTunables(wide))
	require.NoError(t, err)

	// Below p_c the sharp transition suppresses risk much harder.
	assert.Less(t, sharp, blurred)
}

// TestRisk_InvalidTunables verifies tunable validation is enforced at
// the call boundary.
func TestRisk_InvalidTunables(t *testing.T) {
	bad := model.DefaultTunables()
	bad.TransitionWidth = 0

	_, err := Risk(model.EnsembleConfig{M: 4, RhoBar: 0.2, Delta: 0.5, P: 0.1}, WithTunables(bad))
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}
