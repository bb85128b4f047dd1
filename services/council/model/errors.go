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
	"errors"
	"fmt"
)

// Sentinel errors shared by every council engine.
var (
	// ErrInvalidParameter indicates an out-of-domain scalar input.
	// Inputs are never clamped into range; clamping would mask caller
	// bugs and distort the documented edge behavior.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrMalformedCorrelation indicates a correlation matrix that is not
	// square, not symmetric, has a non-unit diagonal, or a topology whose
	// node count disagrees with the ensemble size.
	ErrMalformedCorrelation = errors.New("malformed correlation structure")

	// ErrNumericalDegeneracy indicates a computation whose denominator
	// collapsed (total correlation <= 0) or a loss curve with no finite
	// minimizer. Surfaced instead of returning NaN or a fallback value.
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")

	// ErrResourceBound indicates a request that exceeds an enumeration
	// bound (e.g., a subset sweep over more members than the sweep cap).
	ErrResourceBound = errors.New("resource bound exceeded")
)

// ParameterError carries the offending field and value alongside the
// reason, so callers can fix the input without guessing.
//
// It wraps ErrInvalidParameter, so errors.Is(err, ErrInvalidParameter)
// holds for every ParameterError.
type ParameterError struct {
	// Field is the parameter name as it appears in the request.
	Field string

	// Value is the rejected value.
	Value any

	// Reason describes the violated constraint.
	Reason string
}

// Error implements the error interface.
func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap makes ParameterError match ErrInvalidParameter under errors.Is.
func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// NewParameterError builds a ParameterError for the given field.
func NewParameterError(field string, value any, reason string) error {
	return &ParameterError{Field: field, Value: value, Reason: reason}
}
