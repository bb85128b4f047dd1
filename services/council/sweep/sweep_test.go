// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sweep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConcordiaLabs/ConcordiaCore/services/council/model"
)

// TestSubsets_Completeness verifies exactly 2^M - 1 entries, one per
// non-empty subset, ordered by bitmask with no duplicates. M = 6 also
// exercises the parallel evaluation path.
func TestSubsets_Completeness(t *testing.T) {
	truth := []bool{true, false, true, false, true, false}
	members := make([]MemberOutcomes, 6)
	for i := range members {
		calls := make([]bool, len(truth))
		for site := range calls {
			calls[site] = (site+i)%2 == 0
		}
		members[i] = MemberOutcomes{Name: string(rune('a' + i)), Calls: calls}
	}

	res, err := Subsets(context.Background(), Request{Members: members, Truth: truth})
	require.NoError(t, err)
	require.Len(t, res.Entries, 63)

	for i, entry := range res.Entries {
		assert.Equal(t, uint32(i+1), entry.Mask, "entries must be ordered by bitmask")
		// The member list must mirror the mask bits exactly.
		var fromMask []int
		for bit := 0; bit < 6; bit++ {
			if entry.Mask&(1<<bit) != 0 {
				fromMask = append(fromMask, bit)
			}
		}
		assert.Equal(t, fromMask, entry.Members)
	}
}

// TestSubsets_ResourceBound verifies the enumeration cap rejects
// oversized ensembles before any work happens.
func TestSubsets_ResourceBound(t *testing.T) {
	truth := []bool{true}
	members := make([]MemberOutcomes, MaxMembers+1)
	for i := range members {
		members[i] = MemberOutcomes{Calls: []bool{true}}
	}

	_, err := Subsets(context.Background(), Request{Members: members, Truth: truth})
	assert.ErrorIs(t, err, model.ErrResourceBound)
}

// TestSubsets_InvalidInputs verifies shape validation.
func TestSubsets_InvalidInputs(t *testing.T) {
	_, err := Subsets(context.Background(), Request{Truth: []bool{true}})
	assert.ErrorIs(t, err, model.ErrInvalidParameter, "no members")

	_, err = Subsets(context.Background(), Request{
		Members: []MemberOutcomes{{Calls: []bool{true}}},
	})
	assert.ErrorIs(t, err, model.ErrInvalidParameter, "empty truth")

	_, err = Subsets(context.Background(), Request{
		Members: []MemberOutcomes{{Calls: []bool{true, false}}},
		Truth:   []bool{true, false, true},
	})
	assert.ErrorIs(t, err, model.ErrInvalidParameter, "length mismatch")
}

// TestSubsets_SingletonScores verifies a member identical to truth
// scores perfectly and is perfectly concordant with itself.
func TestSubsets_SingletonScores(t *testing.T) {
	truth := []bool{true, true, false, true, false}
	res, err := Subsets(context.Background(), Request{
		Members: []MemberOutcomes{{Name: "oracle", Calls: truth}},
		Truth:   truth,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	entry := res.Entries[0]
	assert.Equal(t, 1.0, entry.Precision)
	assert.Equal(t, 1.0, entry.Recall)
	assert.Equal(t, 1.0, entry.F1)
	assert.Equal(t, 1.0, entry.RhoHat)
}

// TestSubsets_HandChecked pins the vote arithmetic on a three-member
// scenario worked out by hand.
func TestSubsets_HandChecked(t *testing.T) {
	truth := []bool{true, true, false, false}
	members := []MemberOutcomes{
		{Name: "exact", Calls: []bool{true, true, false, false}},
		{Name: "timid", Calls: []bool{true, false, false, false}},
		{Name: "inverted", Calls: []bool{false, false, true, true}},
	}

	res, err := Subsets(context.Background(), Request{Members: members, Truth: truth})
	require.NoError(t, err)
	require.Len(t, res.Entries, 7)

	byMask := make(map[uint32]SubsetEntry, len(res.Entries))
	for _, e := range res.Entries {
		byMask[e.Mask] = e
	}

	// {exact, timid}: two members vote with threshold 1, so the union
	// of their calls matches truth exactly. They agree on 3 of 4 sites.
	pair := byMask[0b011]
	assert.Equal(t, 1.0, pair.Precision)
	assert.Equal(t, 1.0, pair.Recall)
	assert.Equal(t, 1.0, pair.F1)
	assert.InDelta(t, 0.5, pair.RhoHat, 1e-12)

	// {exact, inverted}: the union covers every site, so recall is 1
	// but half the positives are false. They never agree.
	opposed := byMask[0b101]
	assert.InDelta(t, 0.5, opposed.Precision, 1e-12)
	assert.Equal(t, 1.0, opposed.Recall)
	assert.InDelta(t, 2.0/3.0, opposed.F1, 1e-12)
	assert.InDelta(t, -1.0, opposed.RhoHat, 1e-12)

	// All three: threshold 2 keeps only site 0, missing one positive.
	all := byMask[0b111]
	assert.Equal(t, 1.0, all.Precision)
	assert.InDelta(t, 0.5, all.Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, all.F1, 1e-12)
	assert.InDelta(t, (0.5-1.0-0.5)/3.0, all.RhoHat, 1e-12)
}

// TestSubsets_UndefinedRatiosReportZero verifies the 0/0 convention for
// precision, recall, and F1.
func TestSubsets_UndefinedRatiosReportZero(t *testing.T) {
	// The member never calls positive while truth has positives:
	// no predictions means precision 0/0 and recall 0/2.
	res, err := Subsets(context.Background(), Request{
		Members: []MemberOutcomes{{Name: "mute", Calls: []bool{false, false, false}}},
		Truth:   []bool{true, true, false},
	})
	require.NoError(t, err)

	entry := res.Entries[0]
	assert.Equal(t, 0.0, entry.Precision)
	assert.Equal(t, 0.0, entry.Recall)
	assert.Equal(t, 0.0, entry.F1)
}

// TestSubsets_PreCanceled verifies cancellation aborts the sweep;
// subset reports are all-or-nothing.
func TestSubsets_PreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Subsets(ctx, Request{
		Members: []MemberOutcomes{{Calls: []bool{true}}, {Calls: []bool{false}}},
		Truth:   []bool{true},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
