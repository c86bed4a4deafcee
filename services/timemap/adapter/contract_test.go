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
)

func withEachSnapshotStore(t *testing.T, f func(t *testing.T, store SnapshotPort)) {
	t.Run("InMemory", func(t *testing.T) {
		store := NewInMemorySnapshotStore()
		defer store.Close()
		f(t, store)
	})
	t.Run("Bolt", func(t *testing.T) {
		store, err := NewBoltSnapshotStore(filepath.Join(t.TempDir(), "timemaps.db"))
		require.NoError(t, err)
		defer store.Close()
		f(t, store)
	})
}

func TestSnapshotStores_SaveThenLoadRoundTrips(t *testing.T) {
	withEachSnapshotStore(t, func(t *testing.T, store SnapshotPort) {
		require.NoError(t, store.Save(1, []byte("first")))
		require.NoError(t, store.Save(2, []byte("second")))

		data, found, err := store.Load(1)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte("first"), data)

		data, found, err = store.Load(2)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte("second"), data)
	})
}

func TestSnapshotStores_UnknownVersionReportsNotFound(t *testing.T) {
	withEachSnapshotStore(t, func(t *testing.T, store SnapshotPort) {
		_, found, err := store.Load(42)
		require.NoError(t, err, "a missing version is not an error")
		require.False(t, found)

		_, found, err = store.LatestVersion()
		require.NoError(t, err)
		require.False(t, found, "an empty store has no latest version")
	})
}

func TestSnapshotStores_LatestVersionTracksTheHighestSave(t *testing.T) {
	withEachSnapshotStore(t, func(t *testing.T, store SnapshotPort) {
		require.NoError(t, store.Save(3, []byte("three")))
		require.NoError(t, store.Save(7, []byte("seven")))
		require.NoError(t, store.Save(5, []byte("five")))

		latest, found, err := store.LatestVersion()
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 7, latest, "latest is by version, not by save order")
	})
}

func TestSnapshotStores_SavedBytesAreIsolatedFromTheCaller(t *testing.T) {
	withEachSnapshotStore(t, func(t *testing.T, store SnapshotPort) {
		payload := []byte("pristine")
		require.NoError(t, store.Save(1, payload))
		payload[0] = 'X'

		data, found, err := store.Load(1)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte("pristine"), data)

		data[1] = 'Y'
		again, _, err := store.Load(1)
		require.NoError(t, err)
		require.Equal(t, []byte("pristine"), again, "loaded bytes are copies")
	})
}

func TestBoltSnapshots_SurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timemaps.db")

	store, err := NewBoltSnapshotStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(9, []byte("durable")))
	require.NoError(t, store.Close())

	reopened, err := NewBoltSnapshotStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	latest, found, err := reopened.LatestVersion()
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 9, latest)

	data, found, err := reopened.Load(9)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("durable"), data)
}
