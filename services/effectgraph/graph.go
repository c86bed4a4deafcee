// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package effectgraph holds the DAG a client submits for execution: effect
// nodes with typed edges, structural validation and the canonical hash that
// names a graph in the content store.
package effectgraph

import (
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/types"
)

// Graph is a validated DAG of effect nodes. Build one through the Builder;
// a graph that came out of Build is structurally sound and immutable.
type Graph struct {
	Nodes []types.EffectNode
	Edges []types.EffectEdge
}

// Id is the canonical content hash of the graph. OnValue predicates are
// runtime closures and stay out of the encoding.
func (g *Graph) Id() types.ContentId {
	return canonical.ContentIdOf(*g)
}

func (g *Graph) Len() int {
	return len(g.Nodes)
}

func (g *Graph) Node(id string) (types.EffectNode, bool) {
	for _, n := range g.Nodes {
		if n.Id == id {
			return n, true
		}
	}
	return types.EffectNode{}, false
}

// Incoming returns the edges pointing at the node, in declaration order.
func (g *Graph) Incoming(id string) []types.EffectEdge {
	var out []types.EffectEdge
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns the edges leaving the node, in declaration order.
func (g *Graph) Outgoing(id string) []types.EffectEdge {
	var out []types.EffectEdge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Roots returns the ids of nodes with no incoming edges, in declaration
// order. Every non-empty acyclic graph has at least one.
func (g *Graph) Roots() []string {
	hasIncoming := make(map[string]bool, len(g.Nodes))
	for _, e := range g.Edges {
		hasIncoming[e.To] = true
	}

	var out []string
	for _, n := range g.Nodes {
		if !hasIncoming[n.Id] {
			out = append(out, n.Id)
		}
	}
	return out
}

// Depths maps every node to its longest distance from a root. The scheduler
// uses depth as the deterministic readiness score. Cycles would never get
// past Build; the visiting guard keeps a hand-built graph from recursing
// forever.
func (g *Graph) Depths() map[string]int {
	depths := make(map[string]int, len(g.Nodes))
	visiting := make(map[string]bool)
	var walk func(id string) int
	walk = func(id string) int {
		if d, ok := depths[id]; ok {
			return d
		}
		if visiting[id] {
			return 0
		}
		visiting[id] = true
		depth := 0
		for _, e := range g.Incoming(id) {
			if d := walk(e.From) + 1; d > depth {
				depth = d
			}
		}
		delete(visiting, id)
		depths[id] = depth
		return depth
	}
	for _, n := range g.Nodes {
		walk(n.Id)
	}
	return depths
}

// Lineages returns every lineage the graph declares access to, deduplicated,
// in first-declaration order.
func (g *Graph) Lineages() []types.LineageId {
	seen := make(map[types.LineageId]bool)
	var out []types.LineageId
	for _, n := range g.Nodes {
		for _, access := range n.ResourceAccesses {
			if !seen[access.Lineage] {
				seen[access.Lineage] = true
				out = append(out, access.Lineage)
			}
		}
	}
	return out
}
