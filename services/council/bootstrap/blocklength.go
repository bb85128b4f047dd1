// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import "math"

// acfNoiseZ is the two-sided 95% normal quantile bounding the sampling
// noise band +-z/sqrt(T) of the autocorrelation of white noise.
const acfNoiseZ = 1.96

// AutoBlockLength picks a block length from the sample autocorrelation
// structure of values.
//
// The rule is an empirical rule of thumb: find the first lag at which
// the ACF stays inside the +-1.96/sqrt(T) noise band for two consecutive
// lags, double it (blocks should comfortably cover the dependence
// range), and clamp to [1, T/3]. When T < 10, or the ACF never decays
// into the band, fall back to ceil(T^(1/3)).
func AutoBlockLength(values []float64) int {
	t := len(values)
	if t < 10 {
		return fallbackLength(t)
	}

	acf := sampleACF(values, t/4)
	if acf == nil {
		// Constant series; any block length resamples it exactly.
		return 1
	}

	band := acfNoiseZ / math.Sqrt(float64(t))
	cutoff := 0
	for lag := 1; lag+1 < len(acf); lag++ {
		if math.Abs(acf[lag]) < band && math.Abs(acf[lag+1]) < band {
			cutoff = lag
			break
		}
	}
	if cutoff == 0 {
		return fallbackLength(t)
	}

	bl := 2 * cutoff
	if maxBL := t / 3; bl > maxBL {
		bl = maxBL
	}
	if bl < 1 {
		bl = 1
	}
	return bl
}

func fallbackLength(t int) int {
	bl := int(math.Ceil(math.Cbrt(float64(t))))
	if bl < 1 {
		bl = 1
	}
	if t >= 3 && bl > t/3 {
		bl = t / 3
	}
	if bl > t {
		bl = t
	}
	return bl
}

// sampleACF returns the autocorrelation function up to maxLag inclusive
// (index 0 is the trivial lag-0 value 1). Returns nil when the series
// has zero variance.
func sampleACF(values []float64, maxLag int) []float64 {
	t := len(values)
	if maxLag >= t {
		maxLag = t - 1
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(t)

	denom := 0.0
	for _, v := range values {
		d := v - mean
		denom += d * d
	}
	// A constant series leaves rounding residue in denom, not an exact
	// zero; compare against the scale of the values.
	if denom <= 1e-12*float64(t)*(1.0+mean*mean) {
		return nil
	}

	acf := make([]float64, maxLag+1)
	acf[0] = 1.0
	for lag := 1; lag <= maxLag; lag++ {
		num := 0.0
		for i := 0; i+lag < t; i++ {
			num += (values[i] - mean) * (values[i+lag] - mean)
		}
		acf[lag] = num / denom
	}
	return acf
}
