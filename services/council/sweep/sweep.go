// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sweep evaluates every non-empty member subset of an ensemble
// against ground truth, scoring majority-vote accuracy and empirical
// concordance.
//
// # Description
//
// Given M members' boolean call vectors and a truth vector of the same
// length, the evaluator enumerates all 2^M - 1 non-empty subsets. Each
// subset votes per call site: the subset's prediction is positive when
// at least ceil((k+1)/2) of its k members call positive. Predictions
// are scored as precision, recall, and F1 against truth, with the
// undefined 0/0 cases reported as 0. The subset's empirical concordance
// rho-hat is the mean pairwise agreement rate mapped to [-1, 1]
// (2*agreement - 1); a singleton is perfectly concordant with itself.
//
// Enumeration is exponential, so M is hard-capped at MaxMembers and the
// cap is enforced before any allocation. Pairwise agreement counts are
// precomputed once and shared by all subsets.
//
// # Thread Safety
//
// Subsets is safe for concurrent use; requests are read-only.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ConcordiaLabs/ConcordiaCore/pkg/logging"
	"github.com/ConcordiaLabs/ConcordiaCore/services/council/model"
)

// Enumeration configuration constants.
const (
	// MaxMembers bounds the ensemble size; 2^20 - 1 subsets is the
	// largest sweep the evaluator will attempt.
	MaxMembers = 20

	// parallelThreshold is the minimum subset count that triggers
	// parallel evaluation.
	parallelThreshold = 32

	// maxWorkers caps the worker goroutines regardless of CPU count.
	maxWorkers = 8
)

var logger = logging.Get("council.sweep")

// MemberOutcomes is one member's boolean calls across the shared call
// sites.
type MemberOutcomes struct {
	// Name labels the member in reports.
	Name string `json:"name"`

	// Calls are the member's positive/negative calls, index-aligned
	// with the truth vector.
	Calls []bool `json:"calls"`
}

// Request describes one sweep.
type Request struct {
	// Members are the ensemble members, at most MaxMembers.
	Members []MemberOutcomes

	// Truth is the ground-truth vector all call vectors align to.
	Truth []bool
}

// SubsetEntry scores one non-empty member subset.
type SubsetEntry struct {
	// Mask is the subset bitmask; bit i selects Members[i].
	Mask uint32 `json:"mask"`

	// Members lists the selected member indices in ascending order.
	Members []int `json:"members"`

	// Precision, Recall, and F1 score the subset's majority vote
	// against truth; undefined ratios are reported as 0.
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// RhoHat is the mean pairwise concordance in [-1, 1]; 1 for
	// singletons.
	RhoHat float64 `json:"rho_hat"`
}

// Result is the full sweep: one entry per non-empty subset, ordered by
// ascending bitmask.
type Result struct {
	// ID identifies this sweep run.
	ID uuid.UUID `json:"id"`

	// Entries has exactly 2^M - 1 elements, Entries[i].Mask == i+1.
	Entries []SubsetEntry `json:"entries"`
}

// Subsets enumerates and scores every non-empty member subset.
//
// Outputs:
//   - *Result: 2^M - 1 scored entries ordered by bitmask.
//   - error: ErrInvalidParameter for malformed requests,
//     ErrResourceBound when M exceeds MaxMembers (checked before any
//     enumeration), or the context error on cancellation. Sweeps are
//     all-or-nothing; there is no partial form.
func Subsets(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := startSweepSpan(ctx, req)
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}

	m := len(req.Members)
	agreement := pairwiseAgreement(req.Members)
	total := (1 << m) - 1
	entries := make([]SubsetEntry, total)

	if total >= parallelThreshold {
		g, gctx := errgroup.WithContext(ctx)
		workers := maxWorkers
		chunk := (total + workers - 1) / workers
		for w := 0; w < workers; w++ {
			lo, hi := w*chunk, (w+1)*chunk
			if hi > total {
				hi = total
			}
			if lo >= hi {
				break
			}
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					entries[i] = scoreSubset(uint32(i+1), req, agreement)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entries[i] = scoreSubset(uint32(i+1), req, agreement)
		}
	}

	result := &Result{ID: uuid.New(), Entries: entries}
	logger.Debug("sweep complete", "members", m, "subsets", total)
	recordSweepMetrics(ctx, time.Since(start), m, total)
	span.SetAttributes(attribute.Int("sweep.subsets", total))
	return result, nil
}

func validate(req Request) error {
	m := len(req.Members)
	if m == 0 {
		return model.NewParameterError("members", m, "need at least one member")
	}
	if m > MaxMembers {
		return fmt.Errorf("%w: %d members would require %d subset evaluations (cap %d)",
			model.ErrResourceBound, m, (1<<m)-1, MaxMembers)
	}
	t := len(req.Truth)
	if t == 0 {
		return model.NewParameterError("truth", t, "need at least one call site")
	}
	for i, mem := range req.Members {
		if len(mem.Calls) != t {
			return model.NewParameterError(fmt.Sprintf("members[%d].calls", i), len(mem.Calls),
				fmt.Sprintf("must match truth length %d", t))
		}
	}
	return nil
}

// pairwiseAgreement precomputes the call-agreement count for every
// member pair; shared by all subset scores.
func pairwiseAgreement(members []MemberOutcomes) [][]int {
	m := len(members)
	agreement := make([][]int, m)
	for i := range agreement {
		agreement[i] = make([]int, m)
	}
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			count := 0
			for site := range members[i].Calls {
				if members[i].Calls[site] == members[j].Calls[site] {
					count++
				}
			}
			agreement[i][j] = count
			agreement[j][i] = count
		}
	}
	return agreement
}

// scoreSubset evaluates one subset's majority vote and concordance.
func scoreSubset(mask uint32, req Request, agreement [][]int) SubsetEntry {
	entry := SubsetEntry{Mask: mask}
	for i := 0; i < len(req.Members); i++ {
		if mask&(1<<i) != 0 {
			entry.Members = append(entry.Members, i)
		}
	}

	k := len(entry.Members)
	need := (k + 1) / 2

	tp, fp, fn := 0, 0, 0
	for site, truth := range req.Truth {
		votes := 0
		for _, i := range entry.Members {
			if req.Members[i].Calls[site] {
				votes++
			}
		}
		predicted := votes >= need
		switch {
		case predicted && truth:
			tp++
		case predicted && !truth:
			fp++
		case !predicted && truth:
			fn++
		}
	}

	entry.Precision = safeRatio(tp, tp+fp)
	entry.Recall = safeRatio(tp, tp+fn)
	if entry.Precision+entry.Recall > 0 {
		entry.F1 = 2.0 * entry.Precision * entry.Recall / (entry.Precision + entry.Recall)
	}

	entry.RhoHat = concordance(entry.Members, agreement, len(req.Truth))
	return entry
}

// concordance maps the mean pairwise agreement rate to [-1, 1].
func concordance(members []int, agreement [][]int, sites int) float64 {
	k := len(members)
	if k == 1 {
		return 1.0
	}
	sum := 0.0
	pairs := 0
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			sum += 2.0*float64(agreement[members[a]][members[b]])/float64(sites) - 1.0
			pairs++
		}
	}
	return sum / float64(pairs)
}

func safeRatio(num, den int) float64 {
	if den == 0 {
		return 0.0
	}
	return float64(num) / float64(den)
}
