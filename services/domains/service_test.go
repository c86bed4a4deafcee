// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package domains

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/events"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/contentstore"
	csadapter "github.com/tempora-network/tempora-go/services/contentstore/adapter"
	"github.com/tempora-network/tempora-go/services/domains/adapter"
	"github.com/tempora-network/tempora-go/services/timemap"
	tmadapter "github.com/tempora-network/tempora-go/services/timemap/adapter"
	"github.com/tempora-network/tempora-go/test"
	"github.com/tempora-network/tempora-go/test/with"
	"github.com/tempora-network/tempora-go/types"
)

type harness struct {
	registry services.DomainRegistry
	timemap  services.TimeMapService
}

func newHarness(ctx context.Context, t testing.TB, h *with.ConcurrencyHarness) *harness {
	cfg := config.ForAcceptanceTests()
	cfg.SetDuration(config.DOMAIN_CONNECTIVITY_CHECK_INTERVAL, 10*time.Millisecond)

	metricFactory := metric.NewRegistry()

	storage, err := csadapter.NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	store := contentstore.NewContentStore(storage, h.Logger, metricFactory)
	bus := events.NewBus(h.Logger, metricFactory)
	tm := timemap.NewTimeMapService(cfg, store, tmadapter.NewInMemorySnapshotStore(), bus, h.Logger, metricFactory)

	registry, handle := NewDomainRegistry(ctx, cfg, tm, h.Logger, metricFactory)
	h.Supervise(handle)

	return &harness{registry: registry, timemap: tm}
}

func ethereumLike(id types.DomainId) services.Domain {
	return services.Domain{Id: id, Kind: "evm", FinalityDepth: 12, ChainId: "1"}
}

func TestRegisterAndResolveDomains(t *testing.T) {
	with.Concurrency(t, func(ctx context.Context, h *with.ConcurrencyHarness) {
		d := newHarness(ctx, t, h)

		require.NoError(t, d.registry.Register(ethereumLike("eth"), adapter.NewSimulatedConnection("eth", h.Logger)))
		require.NoError(t, d.registry.Register(services.Domain{Id: "sol", Kind: "svm"}, adapter.NewSimulatedConnection("sol", h.Logger)))

		domain, conn, err := d.registry.Get("eth")
		require.NoError(t, err)
		require.Equal(t, "evm", domain.Kind)
		require.NotNil(t, conn)

		_, _, err = d.registry.Get("btc")
		require.True(t, types.IsError(err, types.ErrNotFound), "got %v", err)

		listed := d.registry.List()
		require.Len(t, listed, 2)
		require.Equal(t, types.DomainId("eth"), listed[0].Id, "listing is sorted by id")
		require.Equal(t, types.DomainId("sol"), listed[1].Id)
	})
}

func TestRegisterRefusesDuplicatesAndEmptyIds(t *testing.T) {
	with.Concurrency(t, func(ctx context.Context, h *with.ConcurrencyHarness) {
		d := newHarness(ctx, t, h)

		require.NoError(t, d.registry.Register(ethereumLike("eth"), adapter.NewSimulatedConnection("eth", h.Logger)))

		err := d.registry.Register(ethereumLike("eth"), adapter.NewSimulatedConnection("eth", h.Logger))
		require.True(t, types.IsError(err, types.ErrAlreadyExists), "got %v", err)

		require.Error(t, d.registry.Register(services.Domain{}, adapter.NewSimulatedConnection("x", h.Logger)))
		require.Error(t, d.registry.Register(ethereumLike("sol"), nil))
	})
}

func TestConnectivityPollTracksReachability(t *testing.T) {
	with.Concurrency(t, func(ctx context.Context, h *with.ConcurrencyHarness) {
		d := newHarness(ctx, t, h)

		sim := adapter.NewSimulatedConnection("eth", h.Logger)
		require.NoError(t, d.registry.Register(ethereumLike("eth"), sim))

		require.True(t, test.Eventually(func() bool { return d.registry.Connected("eth") }),
			"the poll should mark a reachable domain connected")

		sim.Disconnect()
		require.True(t, test.Eventually(func() bool { return !d.registry.Connected("eth") }),
			"the poll should notice a lost connection")

		sim.Reconnect()
		require.True(t, test.Eventually(func() bool { return d.registry.Connected("eth") }))
	})
}

func TestConnectivityPollFeedsHeadsIntoTheTimeMap(t *testing.T) {
	with.Concurrency(t, func(ctx context.Context, h *with.ConcurrencyHarness) {
		d := newHarness(ctx, t, h)

		sim := adapter.NewSimulatedConnection("eth", h.Logger)
		require.NoError(t, d.registry.Register(ethereumLike("eth"), sim))

		require.True(t, test.Eventually(func() bool {
			entry, ok := d.timemap.Get("eth")
			return ok && entry.Height >= 1
		}), "the poll should seed the time map with the first observed head")

		head := sim.CommitBlocks(5)
		require.True(t, test.Eventually(func() bool {
			entry, _ := d.timemap.Get("eth")
			return entry.Height == head
		}), "the poll should follow the advancing head")
	})
}

func TestConnectivityPollSurvivesRejectedHeads(t *testing.T) {
	with.Concurrency(t, func(ctx context.Context, h *with.ConcurrencyHarness) {
		d := newHarness(ctx, t, h)

		sim := adapter.NewSimulatedConnection("eth", h.Logger)
		require.NoError(t, d.registry.Register(ethereumLike("eth"), sim))

		head := sim.CommitBlocks(10)
		require.True(t, test.Eventually(func() bool {
			entry, _ := d.timemap.Get("eth")
			return entry.Height == head
		}))

		// a node answering from a stale fork must not drag the map backwards
		sim.Rewind(5)
		require.True(t, test.Consistently(func() bool {
			entry, _ := d.timemap.Get("eth")
			return entry.Height == head
		}), "a rewound head must be rejected without stopping the poll")

		require.True(t, d.registry.Connected("eth"), "a stale head is not a connectivity failure")
	})
}
