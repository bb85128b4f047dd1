// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides scalar domain validators shared by the
// council engines.
//
// Struct-level validation is handled by validator/v10 tags on the model
// types; these helpers cover the scalar call sites a struct validator
// cannot see (loose function arguments, derived quantities). Validators
// return a descriptive error naming the violated domain; callers wrap it
// with the field name via the model error taxonomy.
package validation

import (
	"fmt"
	"math"
)

// Probability validates v in [0, 1].
func Probability(v float64) error {
	if math.IsNaN(v) || v < 0.0 || v > 1.0 {
		return fmt.Errorf("must be in [0, 1], got %g", v)
	}
	return nil
}

// Correlation validates v in [-1, 1].
func Correlation(v float64) error {
	if math.IsNaN(v) || v < -1.0 || v > 1.0 {
		return fmt.Errorf("must be in [-1, 1], got %g", v)
	}
	return nil
}

// Discount validates a discount factor in [0, 1).
func Discount(v float64) error {
	if math.IsNaN(v) || v < 0.0 || v >= 1.0 {
		return fmt.Errorf("must be in [0, 1), got %g", v)
	}
	return nil
}

// PositiveCount validates n >= 1.
func PositiveCount(n int) error {
	if n < 1 {
		return fmt.Errorf("must be >= 1, got %d", n)
	}
	return nil
}

// NonNegative validates v >= 0 and finite.
func NonNegative(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0.0 {
		return fmt.Errorf("must be finite and >= 0, got %g", v)
	}
	return nil
}

// Positive validates v > 0 and finite.
func Positive(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0.0 {
		return fmt.Errorf("must be finite and > 0, got %g", v)
	}
	return nil
}
