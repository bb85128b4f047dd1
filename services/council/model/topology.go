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
	"math/rand/v2"
)

// TopologyGraph is an undirected simple graph over the ensemble members
// 0..M-1, representing communication or shared-ancestry edges.
//
// The graph is append-only: edges can be added during construction but
// nothing is ever removed, so a graph handed to an engine behaves as an
// immutable value.
type TopologyGraph struct {
	order int
	adj   []map[int]struct{}
	edges int
}

// NewTopology creates an edgeless graph over order members.
func NewTopology(order int) (*TopologyGraph, error) {
	if order < 1 {
		return nil, NewParameterError("order", order, "topology must cover at least one member")
	}
	adj := make([]map[int]struct{}, order)
	for i := range adj {
		adj[i] = make(map[int]struct{})
	}
	return &TopologyGraph{order: order, adj: adj}, nil
}

// NewRandomTopology samples an Erdos-Renyi graph G(order, p) from an
// explicitly seeded generator. Identical (order, p, seed) inputs yield
// an identical graph; there is no hidden global random state.
func NewRandomTopology(order int, p float64, seed uint64) (*TopologyGraph, error) {
	if p < 0.0 || p > 1.0 {
		return nil, NewParameterError("p", p, "edge probability must be in [0, 1]")
	}
	g, err := NewTopology(order)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for u := 0; u < order; u++ {
		for v := u + 1; v < order; v++ {
			if rng.Float64() < p {
				// Bounds already hold by construction.
				_ = g.AddEdge(u, v)
			}
		}
	}
	return g, nil
}

// AddEdge inserts the undirected edge (u, v). Self-loops are rejected;
// duplicate edges are a no-op.
func (g *TopologyGraph) AddEdge(u, v int) error {
	if u < 0 || u >= g.order {
		return NewParameterError("u", u, fmt.Sprintf("node outside [0, %d)", g.order))
	}
	if v < 0 || v >= g.order {
		return NewParameterError("v", v, fmt.Sprintf("node outside [0, %d)", g.order))
	}
	if u == v {
		return NewParameterError("v", v, "self-loops are not permitted")
	}
	if _, ok := g.adj[u][v]; ok {
		return nil
	}
	g.adj[u][v] = struct{}{}
	g.adj[v][u] = struct{}{}
	g.edges++
	return nil
}

// HasEdge reports whether (u, v) is an edge. Out-of-range nodes report false.
func (g *TopologyGraph) HasEdge(u, v int) bool {
	if u < 0 || u >= g.order || v < 0 || v >= g.order {
		return false
	}
	_, ok := g.adj[u][v]
	return ok
}

// Order returns the number of members the graph covers.
func (g *TopologyGraph) Order() int {
	return g.order
}

// EdgeCount returns the number of undirected edges.
func (g *TopologyGraph) EdgeCount() int {
	return g.edges
}

// Degree returns the degree of node u, or 0 for out-of-range nodes.
func (g *TopologyGraph) Degree(u int) int {
	if u < 0 || u >= g.order {
		return 0
	}
	return len(g.adj[u])
}

// Density returns |E| / (M(M-1)/2), the fraction of possible edges
// present. A graph over a single member has density 0.
func (g *TopologyGraph) Density() float64 {
	if g.order <= 1 {
		return 0.0
	}
	maxEdges := float64(g.order*(g.order-1)) / 2.0
	return float64(g.edges) / maxEdges
}

// AverageClustering returns the mean local clustering coefficient over
// all nodes. Nodes with degree < 2 contribute 0, matching the usual
// convention for the average clustering coefficient.
func (g *TopologyGraph) AverageClustering() float64 {
	if g.order == 0 {
		return 0.0
	}
	total := 0.0
	for u := 0; u < g.order; u++ {
		k := len(g.adj[u])
		if k < 2 {
			continue
		}
		links := 0
		for v := range g.adj[u] {
			for w := range g.adj[u] {
				if v < w && g.HasEdge(v, w) {
					links++
				}
			}
		}
		total += 2.0 * float64(links) / float64(k*(k-1))
	}
	return total / float64(g.order)
}
