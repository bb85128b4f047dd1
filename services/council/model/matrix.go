// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// symmetryTol is the tolerance used when checking symmetry and the unit
// diagonal of caller-supplied matrices. Values inside the tolerance are
// symmetrized exactly; values outside it are rejected, not repaired.
const symmetryTol = 1e-9

// eigenFloor is the minimum eigenvalue enforced by the block-correlation
// builder when repairing positive semidefiniteness.
const eigenFloor = 1e-6

// CorrelationMatrix is the canonical pairwise correlation structure over
// the M ensemble members.
//
// Invariants (checked at construction, never silently repaired beyond
// the symmetry tolerance):
//   - square, symmetric
//   - unit diagonal
//   - every entry in [-1, 1]
//   - M >= 1
//
// A CorrelationMatrix is an immutable value object; all engines read it,
// none mutate it.
type CorrelationMatrix struct {
	sym *mat.SymDense
}

// NewCorrelationMatrix validates rows and builds a CorrelationMatrix.
//
// Outputs:
//   - *CorrelationMatrix: the validated matrix.
//   - error: ErrMalformedCorrelation (wrapped with the offending entry)
//     when any invariant is violated.
func NewCorrelationMatrix(rows [][]float64) (*CorrelationMatrix, error) {
	m := len(rows)
	if m < 1 {
		return nil, fmt.Errorf("%w: matrix has no rows", ErrMalformedCorrelation)
	}
	for i, row := range rows {
		if len(row) != m {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d",
				ErrMalformedCorrelation, i, len(row), m)
		}
	}

	sym := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		if math.Abs(rows[i][i]-1.0) > symmetryTol {
			return nil, fmt.Errorf("%w: diagonal entry (%d,%d)=%g, want 1",
				ErrMalformedCorrelation, i, i, rows[i][i])
		}
		sym.SetSym(i, i, 1.0)
		for j := i + 1; j < m; j++ {
			if math.Abs(rows[i][j]-rows[j][i]) > symmetryTol {
				return nil, fmt.Errorf("%w: entries (%d,%d)=%g and (%d,%d)=%g are not symmetric",
					ErrMalformedCorrelation, i, j, rows[i][j], j, i, rows[j][i])
			}
			v := rows[i][j]
			if v < -1.0 || v > 1.0 || math.IsNaN(v) {
				return nil, fmt.Errorf("%w: entry (%d,%d)=%g outside [-1, 1]",
					ErrMalformedCorrelation, i, j, v)
			}
			sym.SetSym(i, j, v)
		}
	}

	return &CorrelationMatrix{sym: sym}, nil
}

// UniformCorrelation builds the uniform-correlation special case: every
// off-diagonal entry equals rhoBar.
func UniformCorrelation(m int, rhoBar float64) (*CorrelationMatrix, error) {
	if m < 1 {
		return nil, NewParameterError("m", m, "ensemble size must be >= 1")
	}
	if rhoBar < -1.0 || rhoBar > 1.0 {
		return nil, NewParameterError("rho_bar", rhoBar, "mean correlation must be in [-1, 1]")
	}

	sym := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		sym.SetSym(i, i, 1.0)
		for j := i + 1; j < m; j++ {
			sym.SetSym(i, j, rhoBar)
		}
	}
	return &CorrelationMatrix{sym: sym}, nil
}

// BlockCorrelation builds a family-structured correlation matrix:
// rhoWithin inside each family block, rhoBetween across families, unit
// diagonal. Shared-ancestry tool families (e.g. callers built on the
// same aligner) produce exactly this structure.
//
// The naive block construction can be indefinite, so the builder clips
// negative eigenvalues at a small floor and rescales the diagonal back
// to 1, the standard nearest-correlation repair.
func BlockCorrelation(familySizes []int, rhoWithin, rhoBetween float64) (*CorrelationMatrix, error) {
	if len(familySizes) == 0 {
		return nil, NewParameterError("family_sizes", familySizes, "at least one family is required")
	}
	total := 0
	for i, size := range familySizes {
		if size < 1 {
			return nil, NewParameterError(
				fmt.Sprintf("family_sizes[%d]", i), size, "family size must be >= 1")
		}
		total += size
	}
	if rhoWithin < -1.0 || rhoWithin > 1.0 {
		return nil, NewParameterError("rho_within", rhoWithin, "correlation must be in [-1, 1]")
	}
	if rhoBetween < -1.0 || rhoBetween > 1.0 {
		return nil, NewParameterError("rho_between", rhoBetween, "correlation must be in [-1, 1]")
	}

	sym := mat.NewSymDense(total, nil)
	for i := 0; i < total; i++ {
		sym.SetSym(i, i, 1.0)
		for j := i + 1; j < total; j++ {
			sym.SetSym(i, j, rhoBetween)
		}
	}
	offset := 0
	for _, size := range familySizes {
		for i := offset; i < offset+size; i++ {
			for j := i + 1; j < offset+size; j++ {
				sym.SetSym(i, j, rhoWithin)
			}
		}
		offset += size
	}

	repaired, err := clipToPSD(sym)
	if err != nil {
		return nil, err
	}
	return &CorrelationMatrix{sym: repaired}, nil
}

// clipToPSD clips eigenvalues at eigenFloor and renormalizes the result
// back to unit diagonal.
func clipToPSD(sym *mat.SymDense) (*mat.SymDense, error) {
	n := sym.SymmetricDim()

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition failed", ErrNumericalDegeneracy)
	}
	vals := es.Values(nil)
	for i := range vals {
		if vals[i] < eigenFloor {
			vals[i] = eigenFloor
		}
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	var scaled, full mat.Dense
	scaled.Mul(&vecs, mat.NewDiagDense(n, vals))
	full.Mul(&scaled, vecs.T())

	// Rescale so the diagonal is exactly 1 again.
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		d := full.At(i, i)
		if d <= 0 {
			return nil, fmt.Errorf("%w: non-positive diagonal after eigenvalue clipping", ErrNumericalDegeneracy)
		}
		diag[i] = math.Sqrt(d)
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			v := full.At(i, j) / (diag[i] * diag[j])
			if v > 1.0 {
				v = 1.0
			}
			if v < -1.0 {
				v = -1.0
			}
			out.SetSym(i, j, v)
		}
	}
	return out, nil
}

// Dim returns the number of ensemble members M.
func (c *CorrelationMatrix) Dim() int {
	return c.sym.SymmetricDim()
}

// At returns rho(i, j).
func (c *CorrelationMatrix) At(i, j int) float64 {
	return c.sym.At(i, j)
}

// Sum returns the sum over all ordered pairs including the diagonal,
// i.e. the M unit diagonal terms plus every rho(i,j) counted twice.
// This is the denominator mass of the effective-diversity formula.
func (c *CorrelationMatrix) Sum() float64 {
	m := c.Dim()
	total := 0.0
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			total += c.sym.At(i, j)
		}
	}
	return total
}

// MeanOffDiag returns the mean pairwise correlation rho-bar, i.e. the
// average of the off-diagonal entries. Returns 0 for M = 1, where no
// pair exists.
func (c *CorrelationMatrix) MeanOffDiag() float64 {
	m := c.Dim()
	if m <= 1 {
		return 0.0
	}
	offDiag := c.Sum() - float64(m)
	return offDiag / float64(m*(m-1))
}

// Row returns a copy of the correlations between member i and every
// member (including rho(i,i) = 1).
func (c *CorrelationMatrix) Row(i int) []float64 {
	m := c.Dim()
	row := make([]float64, m)
	for j := 0; j < m; j++ {
		row[j] = c.sym.At(i, j)
	}
	return row
}
