// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/crypto/hash"
	"github.com/tempora-network/tempora-go/types"
)

func withEachIndex(t *testing.T, f func(t *testing.T, index HeadIndex)) {
	t.Run("InMemory", func(t *testing.T) {
		index := NewInMemoryHeadIndex()
		defer index.Close()
		f(t, index)
	})

	t.Run("Bolt", func(t *testing.T) {
		index, err := NewBoltHeadIndex(filepath.Join(t.TempDir(), "heads.db"))
		require.NoError(t, err)
		defer index.Close()
		f(t, index)
	})
}

func TestIndexes_SwapMovesTheHead(t *testing.T) {
	withEachIndex(t, func(t *testing.T, index HeadIndex) {
		lineage := types.NewLineageId()
		first := hash.CalcSha256([]byte("v1"))
		second := hash.CalcSha256([]byte("v2"))

		_, ok, err := index.Lookup(lineage)
		require.NoError(t, err)
		require.False(t, ok, "unknown lineage has no head")

		require.NoError(t, index.Swap(lineage, first))
		require.NoError(t, index.Swap(lineage, second))

		id, ok, err := index.Lookup(lineage)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, second, id, "the head is the last swapped id")
	})
}

func TestIndexes_RangeVisitsEveryHead(t *testing.T) {
	withEachIndex(t, func(t *testing.T, index HeadIndex) {
		heads := map[types.LineageId]types.ContentId{
			types.NewLineageId(): hash.CalcSha256([]byte("a")),
			types.NewLineageId(): hash.CalcSha256([]byte("b")),
			types.NewLineageId(): hash.CalcSha256([]byte("c")),
		}
		for lineage, id := range heads {
			require.NoError(t, index.Swap(lineage, id))
		}

		visited := make(map[types.LineageId]types.ContentId)
		require.NoError(t, index.Range(func(lineage types.LineageId, id types.ContentId) bool {
			visited[lineage] = id
			return true
		}))
		require.Equal(t, heads, visited)

		count, err := index.Count()
		require.NoError(t, err)
		require.Equal(t, 3, count)
	})
}

func TestIndexes_RangeStopsWhenToldTo(t *testing.T) {
	withEachIndex(t, func(t *testing.T, index HeadIndex) {
		for i := 0; i < 3; i++ {
			require.NoError(t, index.Swap(types.NewLineageId(), hash.CalcSha256([]byte{byte(i)})))
		}

		visits := 0
		require.NoError(t, index.Range(func(types.LineageId, types.ContentId) bool {
			visits++
			return false
		}))
		require.Equal(t, 1, visits)
	})
}

func TestIndexes_NullifiersAreRememberedByTag(t *testing.T) {
	withEachIndex(t, func(t *testing.T, index HeadIndex) {
		nullifier := types.Nullifier{
			Tag:             hash.CalcSha256([]byte("spend-key"), []byte("version-id")),
			Lineage:         types.NewLineageId(),
			ConsumedVersion: hash.CalcSha256([]byte("version-id")),
			RecordedAt:      1234567890,
		}

		seen, err := index.HasNullifier(nullifier.Tag)
		require.NoError(t, err)
		require.False(t, seen)

		require.NoError(t, index.RecordNullifier(nullifier))

		seen, err = index.HasNullifier(nullifier.Tag)
		require.NoError(t, err)
		require.True(t, seen)
	})
}

func TestBoltHeadIndex_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heads.db")
	lineage := types.NewLineageId()
	head := hash.CalcSha256([]byte("v1"))
	tag := hash.CalcSha256([]byte("nullifier"))

	index, err := NewBoltHeadIndex(path)
	require.NoError(t, err)
	require.NoError(t, index.Swap(lineage, head))
	require.NoError(t, index.RecordNullifier(types.Nullifier{Tag: tag, Lineage: lineage, ConsumedVersion: head}))
	require.NoError(t, index.Close())

	reopened, err := NewBoltHeadIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	id, ok, err := reopened.Lookup(lineage)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, head, id)

	seen, err := reopened.HasNullifier(tag)
	require.NoError(t, err)
	require.True(t, seen)
}
