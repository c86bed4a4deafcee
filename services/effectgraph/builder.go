// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package effectgraph

import (
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/types"
)

// Builder accumulates nodes and edges and checks the structure at Build.
// It is the construction contract for programmatic clients and front-end
// compilers alike.
type Builder struct {
	nodes []types.EffectNode
	edges []types.EffectEdge
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddNode(node types.EffectNode) *Builder {
	b.nodes = append(b.nodes, node)
	return b
}

// Connect adds an edge; use ConnectOnValue for predicate edges.
func (b *Builder) Connect(from, to string, condition types.EdgeConditionKind) *Builder {
	b.edges = append(b.edges, types.EffectEdge{From: from, To: to, Condition: condition})
	return b
}

func (b *Builder) ConnectOnValue(from, to string, pred types.ValuePredicate) *Builder {
	b.edges = append(b.edges, types.EffectEdge{From: from, To: to, Condition: types.ConditionOnValue, Predicate: pred})
	return b
}

// Build checks the structure and returns the immutable graph. Rejections:
// empty graphs, duplicate or empty node ids, edges naming unknown nodes,
// malformed conditions and cycles. Never edges count for cycle detection
// like any other edge.
func (b *Builder) Build() (*Graph, error) {
	if len(b.nodes) == 0 {
		return nil, errors.Wrap(types.ErrInvalidGraph, "a graph needs at least one node")
	}

	byId := make(map[string]bool, len(b.nodes))
	for _, n := range b.nodes {
		if n.Id == "" {
			return nil, errors.Wrap(types.ErrInvalidGraph, "a node needs an id")
		}
		if byId[n.Id] {
			return nil, errors.Wrapf(types.ErrInvalidGraph, "node id %s appears twice", n.Id)
		}
		byId[n.Id] = true

		for _, access := range n.ResourceAccesses {
			if access.Mode != types.AccessRead && access.Mode != types.AccessWrite {
				return nil, errors.Wrapf(types.ErrInvalidGraph, "node %s declares an unknown access mode", n.Id)
			}
			if access.Lineage == "" {
				return nil, errors.Wrapf(types.ErrInvalidGraph, "node %s declares access to an empty lineage", n.Id)
			}
		}
	}

	for _, e := range b.edges {
		if !byId[e.From] {
			return nil, errors.Wrapf(types.ErrInvalidGraph, "edge references unknown node %s", e.From)
		}
		if !byId[e.To] {
			return nil, errors.Wrapf(types.ErrInvalidGraph, "edge references unknown node %s", e.To)
		}
		switch e.Condition {
		case types.ConditionAlways, types.ConditionNever, types.ConditionOnSuccess, types.ConditionOnFailure:
			if e.Predicate != nil {
				return nil, errors.Wrapf(types.ErrInvalidGraph, "a %s edge carries no predicate", e.Condition)
			}
		case types.ConditionOnValue:
			if e.Predicate == nil {
				return nil, errors.Wrapf(types.ErrInvalidGraph, "an OnValue edge from %s needs a predicate", e.From)
			}
		default:
			return nil, errors.Wrapf(types.ErrInvalidGraph, "edge %s->%s has no condition", e.From, e.To)
		}
	}

	graph := &Graph{
		Nodes: append([]types.EffectNode(nil), b.nodes...),
		Edges: append([]types.EffectEdge(nil), b.edges...),
	}
	if cycle := findCycle(graph); cycle != "" {
		return nil, errors.Wrapf(types.ErrCircularDependency, "node %s sits on a cycle", cycle)
	}
	return graph, nil
}

// findCycle runs an iterative-coloring DFS over every edge, Never included.
// Returns the id of a node on a cycle, or empty.
func findCycle(g *Graph) string {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // finished
	)
	colors := make(map[string]int, len(g.Nodes))

	var visit func(id string) string
	visit = func(id string) string {
		colors[id] = grey
		for _, e := range g.Outgoing(id) {
			switch colors[e.To] {
			case grey:
				return e.To
			case white:
				if hit := visit(e.To); hit != "" {
					return hit
				}
			}
		}
		colors[id] = black
		return ""
	}

	for _, n := range g.Nodes {
		if colors[n.Id] == white {
			if hit := visit(n.Id); hit != "" {
				return hit
			}
		}
	}
	return ""
}
