// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package effectgraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/types"
)

func node(id string) types.EffectNode {
	return types.EffectNode{Id: id, Kind: "compute", Domain: "local"}
}

func nodeAccessing(id string, lineage types.LineageId, mode types.AccessMode) types.EffectNode {
	n := node(id)
	n.ResourceAccesses = []types.ResourceAccess{{Lineage: lineage, Mode: mode}}
	return n
}

func TestBuildAcceptsALinearPipeline(t *testing.T) {
	graph, err := NewBuilder().
		AddNode(node("debit")).
		AddNode(node("credit")).
		AddNode(node("notify")).
		Connect("debit", "credit", types.ConditionOnSuccess).
		Connect("credit", "notify", types.ConditionAlways).
		Build()

	require.NoError(t, err)
	require.Equal(t, 3, graph.Len())
	require.Equal(t, []string{"debit"}, graph.Roots())

	_, ok := graph.Node("credit")
	require.True(t, ok)
	_, ok = graph.Node("refund")
	require.False(t, ok)
}

func TestBuildRejectsAnEmptyGraph(t *testing.T) {
	_, err := NewBuilder().Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "got %v", err)
}

func TestBuildRejectsDuplicateAndEmptyNodeIds(t *testing.T) {
	_, err := NewBuilder().AddNode(node("a")).AddNode(node("a")).Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "got %v", err)
	require.Contains(t, err.Error(), "appears twice")

	_, err = NewBuilder().AddNode(node("")).Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "got %v", err)
}

func TestBuildRejectsEdgesNamingUnknownNodes(t *testing.T) {
	_, err := NewBuilder().
		AddNode(node("a")).
		Connect("a", "ghost", types.ConditionAlways).
		Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "got %v", err)
	require.Contains(t, err.Error(), "ghost")

	_, err = NewBuilder().
		AddNode(node("a")).
		Connect("ghost", "a", types.ConditionAlways).
		Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "got %v", err)
}

func TestBuildRejectsMalformedResourceAccesses(t *testing.T) {
	bad := node("a")
	bad.ResourceAccesses = []types.ResourceAccess{{Lineage: "vault", Mode: 0}}
	_, err := NewBuilder().AddNode(bad).Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "got %v", err)

	_, err = NewBuilder().AddNode(nodeAccessing("a", "", types.AccessRead)).Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "got %v", err)
}

func TestBuildPairsConditionsWithPredicates(t *testing.T) {
	above := func(value []byte) bool { return len(value) > 0 }

	_, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).
		ConnectOnValue("a", "b", above).
		Build()
	require.NoError(t, err, "an OnValue edge with a predicate is well formed")

	_, err = NewBuilder().
		AddNode(node("a")).AddNode(node("b")).
		Connect("a", "b", types.ConditionOnValue).
		Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "an OnValue edge without a predicate must be rejected, got %v", err)

	b := NewBuilder().AddNode(node("a")).AddNode(node("b"))
	b.edges = append(b.edges, types.EffectEdge{From: "a", To: "b", Condition: types.ConditionAlways, Predicate: above})
	_, err = b.Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "an Always edge must not carry a predicate, got %v", err)

	_, err = NewBuilder().
		AddNode(node("a")).AddNode(node("b")).
		Connect("a", "b", 0).
		Build()
	require.True(t, types.IsError(err, types.ErrInvalidGraph), "an edge without a condition must be rejected, got %v", err)
}

func TestBuildRejectsCycles(t *testing.T) {
	_, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).AddNode(node("c")).
		Connect("a", "b", types.ConditionOnSuccess).
		Connect("b", "c", types.ConditionOnSuccess).
		Connect("c", "a", types.ConditionOnSuccess).
		Build()
	require.True(t, types.IsError(err, types.ErrCircularDependency), "got %v", err)

	_, err = NewBuilder().
		AddNode(node("a")).
		Connect("a", "a", types.ConditionAlways).
		Build()
	require.True(t, types.IsError(err, types.ErrCircularDependency), "a self loop is a cycle, got %v", err)
}

func TestBuildCountsNeverEdgesForCycleDetection(t *testing.T) {
	_, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).
		Connect("a", "b", types.ConditionOnSuccess).
		Connect("b", "a", types.ConditionNever).
		Build()
	require.True(t, types.IsError(err, types.ErrCircularDependency), "a Never edge still closes a cycle, got %v", err)
}

func TestDiamondsAreNotCycles(t *testing.T) {
	graph, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).AddNode(node("c")).AddNode(node("d")).
		Connect("a", "b", types.ConditionOnSuccess).
		Connect("a", "c", types.ConditionOnSuccess).
		Connect("b", "d", types.ConditionOnSuccess).
		Connect("c", "d", types.ConditionOnSuccess).
		Build()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, graph.Roots())
}

func TestGraphIdIgnoresPredicateClosures(t *testing.T) {
	build := func(pred types.ValuePredicate) *Graph {
		g, err := NewBuilder().
			AddNode(node("a")).AddNode(node("b")).
			ConnectOnValue("a", "b", pred).
			Build()
		require.NoError(t, err)
		return g
	}

	first := build(func(value []byte) bool { return true })
	second := build(func(value []byte) bool { return false })
	require.Equal(t, first.Id(), second.Id(), "predicates are runtime closures and must not name the graph")

	other, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).
		Connect("a", "b", types.ConditionOnSuccess).
		Build()
	require.NoError(t, err)
	require.NotEqual(t, first.Id(), other.Id(), "a different condition is a different graph")
}

func TestGraphIdIsInsensitiveToBuildOrderOnlyWhenStructureMatches(t *testing.T) {
	first, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).
		Connect("a", "b", types.ConditionAlways).
		Build()
	require.NoError(t, err)

	same, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).
		Connect("a", "b", types.ConditionAlways).
		Build()
	require.NoError(t, err)
	require.Equal(t, first.Id(), same.Id())

	reordered, err := NewBuilder().
		AddNode(node("b")).AddNode(node("a")).
		Connect("a", "b", types.ConditionAlways).
		Build()
	require.NoError(t, err)
	require.NotEqual(t, first.Id(), reordered.Id(), "declaration order is part of the canonical form")
}

func TestDepthsScoreNodesByLongestPathFromARoot(t *testing.T) {
	graph, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).AddNode(node("c")).AddNode(node("d")).AddNode(node("lone")).
		Connect("a", "b", types.ConditionOnSuccess).
		Connect("a", "c", types.ConditionOnSuccess).
		Connect("b", "d", types.ConditionOnSuccess).
		Connect("c", "d", types.ConditionOnSuccess).
		Connect("a", "d", types.ConditionAlways).
		Build()
	require.NoError(t, err)

	want := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2, "lone": 0}
	require.Empty(t, cmp.Diff(want, graph.Depths()), "depth is the longest path, not the shortest")
}

func TestNeighborsFollowDeclarationOrder(t *testing.T) {
	graph, err := NewBuilder().
		AddNode(node("a")).AddNode(node("b")).AddNode(node("c")).
		Connect("a", "c", types.ConditionOnSuccess).
		Connect("b", "c", types.ConditionOnFailure).
		Connect("a", "b", types.ConditionAlways).
		Build()
	require.NoError(t, err)

	incoming := graph.Incoming("c")
	require.Len(t, incoming, 2)
	require.Equal(t, "a", incoming[0].From)
	require.Equal(t, "b", incoming[1].From)

	outgoing := graph.Outgoing("a")
	require.Len(t, outgoing, 2)
	require.Equal(t, "c", outgoing[0].To)
	require.Equal(t, "b", outgoing[1].To)

	require.Empty(t, graph.Incoming("a"))
	require.Empty(t, graph.Outgoing("c"))
}

func TestLineagesDeduplicateInDeclarationOrder(t *testing.T) {
	first := nodeAccessing("a", "vault", types.AccessWrite)
	second := node("b")
	second.ResourceAccesses = []types.ResourceAccess{
		{Lineage: "ledger", Mode: types.AccessRead},
		{Lineage: "vault", Mode: types.AccessRead},
	}

	graph, err := NewBuilder().
		AddNode(first).AddNode(second).
		Connect("a", "b", types.ConditionOnSuccess).
		Build()
	require.NoError(t, err)
	require.Equal(t, []types.LineageId{"vault", "ledger"}, graph.Lineages())
}
