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

	"gopkg.in/yaml.v3"
)

// Tunables are the calibration constants of the collusion-risk and
// optimizer models. The defaults reproduce the documented reference
// behavior; experiments may override individual values via YAML.
//
// Tunables are plain data: engines receive them by value and never
// mutate them.
type Tunables struct {
	// AlphaEdge weights edge density in the effective communication
	// density of a topology. AlphaEdge + AlphaClust should be 1 so the
	// blend stays in [0, 1].
	AlphaEdge float64 `yaml:"alpha_edge" validate:"gte=0,lte=1"`

	// AlphaClust weights the average clustering coefficient.
	AlphaClust float64 `yaml:"alpha_clust" validate:"gte=0,lte=1"`

	// TransitionWidth is the width of the logistic phase transition
	// around the percolation threshold p_c. Smaller is sharper.
	TransitionWidth float64 `yaml:"transition_width" validate:"gt=0"`

	// TrustWeight is the weight nu of the optimizer's legitimacy term.
	TrustWeight float64 `yaml:"trust_weight" validate:"gte=0"`

	// TrustWidth is the width sigma_t of the legitimacy term's peak.
	TrustWidth float64 `yaml:"trust_width" validate:"gt=0"`
}

// DefaultTunables returns the reference calibration.
func DefaultTunables() Tunables {
	return Tunables{
		AlphaEdge:       0.7,
		AlphaClust:      0.3,
		TransitionWidth: 0.02,
		TrustWeight:     0.05,
		TrustWidth:      3.0,
	}
}

// Validate checks the scalar domains.
func (t Tunables) Validate() error {
	if err := validate.Struct(t); err != nil {
		return translateFieldError(err)
	}
	if sum := t.AlphaEdge + t.AlphaClust; sum > 1.0+1e-12 {
		return NewParameterError("alpha_edge+alpha_clust", sum,
			"topology blend weights must not exceed 1")
	}
	return nil
}

// LoadTunables parses YAML overrides on top of the defaults, so a
// preset file only needs to name the values it changes.
func LoadTunables(data []byte) (Tunables, error) {
	t := DefaultTunables()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tunables{}, fmt.Errorf("parse tunables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tunables{}, err
	}
	return t, nil
}
