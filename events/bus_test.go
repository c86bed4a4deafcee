// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package events

import (
	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/test/with"
	"github.com/tempora-network/tempora-go/types"
	"testing"
)

func TestBus_DeliversToMatchingSubscriber(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		bus := NewBus(h.Logger, metric.NewRegistry())

		ch, cancel := bus.Subscribe(types.EventLockAcquired)
		defer cancel()

		bus.Publish(types.Event{Kind: types.EventLockAcquired, Subject: "lineage-1"})
		bus.Publish(types.Event{Kind: types.EventTimeMapUpdated, Subject: "domain-x"})

		event := <-ch
		require.EqualValues(t, types.EventLockAcquired, event.Kind)
		require.EqualValues(t, "lineage-1", event.Subject)

		select {
		case unexpected := <-ch:
			t.Fatalf("received event of kind %s that was not subscribed to", unexpected.Kind)
		default:
		}
	})
}

func TestBus_SubscribeWithoutKindsReceivesEverything(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		bus := NewBus(h.Logger, metric.NewRegistry())

		ch, cancel := bus.Subscribe()
		defer cancel()

		bus.Publish(types.Event{Kind: types.EventLockAcquired})
		bus.Publish(types.Event{Kind: types.EventTimeMapUpdated})

		require.EqualValues(t, types.EventLockAcquired, (<-ch).Kind)
		require.EqualValues(t, types.EventTimeMapUpdated, (<-ch).Kind)
	})
}

func TestBus_SlowSubscriberLosesOldestEventFirst(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		bus := NewBus(h.Logger, metric.NewRegistry())

		ch, cancel := bus.Subscribe()
		defer cancel()

		for i := 0; i < subscriberBufferSize+1; i++ {
			bus.Publish(types.Event{Kind: types.EventNodeStateChanged, Subject: string(rune('a' + i%26))})
		}

		first := <-ch
		require.NotEqual(t, "a", first.Subject, "oldest event should have been evicted")
	})
}

func TestBus_CancelClosesChannel(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		bus := NewBus(h.Logger, metric.NewRegistry())

		ch, cancel := bus.Subscribe(types.EventLockReleased)
		cancel()
		cancel() // idempotent

		_, open := <-ch
		require.False(t, open, "channel should be closed after cancel")

		require.NotPanics(t, func() {
			bus.Publish(types.Event{Kind: types.EventLockReleased})
		})
	})
}
