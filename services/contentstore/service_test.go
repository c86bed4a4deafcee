// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package contentstore

import (
	"context"
	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/crypto/hash"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/contentstore/adapter"
	"github.com/tempora-network/tempora-go/test"
	"github.com/tempora-network/tempora-go/test/with"
	"github.com/tempora-network/tempora-go/types"
	"testing"
)

func newServiceUnderTest(t testing.TB, h *with.LoggingHarness) services.ContentStore {
	storage, err := adapter.NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return NewContentStore(storage, h.Logger, metric.NewRegistry())
}

func TestPutThenGetReturnsSameBytes(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			store := newServiceUnderTest(t, h)

			data := []byte("an immutable object")
			id, err := store.Put(ctx, data)
			require.NoError(t, err)
			require.Equal(t, hash.CalcSha256(data), id, "content id should be the hash of the bytes")

			read, err := store.Get(ctx, id)
			require.NoError(t, err)
			require.Equal(t, data, read)
		})
	})
}

func TestPutIsIdempotentForIdenticalBytes(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			store := newServiceUnderTest(t, h)

			data := []byte("same bytes twice")
			first, err := store.Put(ctx, data)
			require.NoError(t, err)

			second, err := store.Put(ctx, data)
			require.NoError(t, err)
			require.Equal(t, first, second)

			count, _ := store.Size()
			require.EqualValues(t, 1, count, "duplicate put should not grow the store")
		})
	})
}

func TestGetOfUnknownIdFailsWithNotFound(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			store := newServiceUnderTest(t, h)

			_, err := store.Get(ctx, hash.CalcSha256([]byte("never stored")))
			require.True(t, types.IsError(err, types.ErrNotFound), "expected not found, got %v", err)
		})
	})
}

func TestGetDetectsCorruptedStorage(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		h.AllowErrorsMatching("object failed integrity check")
		test.WithContext(func(ctx context.Context) {
			storage, err := adapter.NewInMemoryStore()
			require.NoError(t, err)
			t.Cleanup(func() { _ = storage.Close() })
			store := NewContentStore(storage, h.Logger, metric.NewRegistry())

			id := hash.CalcSha256([]byte("original"))
			require.NoError(t, storage.Write(id, []byte("tampered")))

			_, err = store.Get(ctx, id)
			require.True(t, types.IsError(err, types.ErrContentIntegrity), "expected integrity failure, got %v", err)
		})
	})
}

func TestVerifyMatchesOnlyCorrectBytes(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			store := newServiceUnderTest(t, h)

			data := []byte("verified object")
			id, err := store.Put(ctx, data)
			require.NoError(t, err)

			require.True(t, store.Verify(ctx, id, data))
			require.False(t, store.Verify(ctx, id, []byte("other bytes")))
		})
	})
}

func TestSizeTracksObjectsAndBytes(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			store := newServiceUnderTest(t, h)

			_, err := store.Put(ctx, []byte("aaaa"))
			require.NoError(t, err)
			_, err = store.Put(ctx, []byte("bbbbbbbb"))
			require.NoError(t, err)

			count, bytes := store.Size()
			require.EqualValues(t, 2, count)
			require.EqualValues(t, 12, bytes)
		})
	})
}
