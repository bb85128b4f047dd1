// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the shared data model of the council engines:
// correlation matrices, communication topologies, ensemble configs, loss
// parameters, and the common error taxonomy.
//
// # Description
//
// Every engine (diversity, collusion, optimizer, bootstrap, sweep) is a
// pure function over values from this package. Entities are constructed
// fresh per query from caller-supplied data, none persist across calls,
// and none own each other.
//
// # Thread Safety
//
// All types are immutable after construction and safe for concurrent use.
package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared struct validator. validator/v10 is the boundary
// gate for scalar domains; structural checks (matrix shape, graph order)
// are performed by Validate methods on top of it.
var validate = validator.New(validator.WithRequiredStructEnabled())

// EnsembleConfig is the immutable input value shared by the diversity
// and collusion engines.
//
// The correlation source is either Matrix (per-pair data) or RhoBar (the
// uniform-correlation special case). When Matrix is set it is the source
// of truth and RhoBar is ignored.
type EnsembleConfig struct {
	// M is the nominal ensemble size. Must be >= 1. When Matrix or Graph
	// are present their dimensions must match M exactly.
	M int `validate:"gte=1"`

	// RhoBar is the mean pairwise correlation in [-1, 1]; used when
	// Matrix is nil.
	RhoBar float64 `validate:"gte=-1,lte=1"`

	// Matrix is the optional full correlation structure.
	Matrix *CorrelationMatrix

	// Graph is the optional communication/shared-ancestry topology.
	Graph *TopologyGraph

	// Delta is the discount factor for repeated interaction, in [0, 1).
	// Higher delta sustains tacit coordination more easily.
	Delta float64 `validate:"gte=0,lt=1"`

	// P is the communication density in [0, 1]; used by the collusion
	// engine when Graph is nil.
	P float64 `validate:"gte=0,lte=1"`
}

// Validate checks scalar domains and structural invariants.
//
// Outputs:
//   - error: a ParameterError (wrapping ErrInvalidParameter) for scalar
//     violations, or ErrMalformedCorrelation for structural ones.
func (c EnsembleConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return translateFieldError(err)
	}
	if c.Matrix != nil && c.Matrix.Dim() != c.M {
		return fmt.Errorf("%w: matrix covers %d members, config declares M=%d",
			ErrMalformedCorrelation, c.Matrix.Dim(), c.M)
	}
	if c.Graph != nil && c.Graph.Order() != c.M {
		return fmt.Errorf("%w: topology covers %d members, config declares M=%d",
			ErrMalformedCorrelation, c.Graph.Order(), c.M)
	}
	return nil
}

// MeanRho returns the mean pairwise correlation from whichever source
// the config carries.
func (c EnsembleConfig) MeanRho() float64 {
	if c.Matrix != nil {
		return c.Matrix.MeanOffDiag()
	}
	return c.RhoBar
}

// SumRho returns the total correlation mass over all ordered pairs
// including the diagonal. For the scalar source this is the uniform
// approximation M + M(M-1)*rhoBar.
func (c EnsembleConfig) SumRho() float64 {
	if c.Matrix != nil {
		return c.Matrix.Sum()
	}
	m := float64(c.M)
	return m + m*(m-1)*c.RhoBar
}

// LossParameters weights the optimizer's total-loss terms.
type LossParameters struct {
	// E is the epistemic uncertainty of the domain, in [0, 1].
	E float64 `validate:"gte=0,lte=1"`

	// S is the social criticality of the decision, in [0, 1].
	S float64 `validate:"gte=0,lte=1"`

	// CostPerMember is the linear marginal cost c of one more member.
	CostPerMember float64 `validate:"gte=0"`
}

// DefaultLossParameters returns the documented defaults. CostPerMember
// is calibrated so that the epistemic/cost balance alone puts the
// optimum in the mid single digits for moderate correlation.
func DefaultLossParameters() LossParameters {
	return LossParameters{
		E:             0.5,
		S:             0.5,
		CostPerMember: 0.01,
	}
}

// Validate checks the scalar domains.
func (p LossParameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		return translateFieldError(err)
	}
	return nil
}

// translateFieldError converts the first validator/v10 field error into
// a ParameterError so engine boundaries expose one error taxonomy.
func translateFieldError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return NewParameterError(fe.Field(), fe.Value(),
			fmt.Sprintf("failed %q constraint", fe.Tag()+"="+fe.Param()))
	}
	return err
}
