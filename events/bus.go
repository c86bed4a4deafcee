// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package events

import (
	"github.com/orbs-network/scribe/log"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/types"
	"sync"
)

// Subscribers consume from a buffered channel. A subscriber that stops
// draining loses its oldest events first, publishers never block.
const subscriberBufferSize = 64

type busMetrics struct {
	published   *metric.Rate
	dropped     *metric.Gauge
	subscribers *metric.Gauge
}

type subscriber struct {
	ch    chan types.Event
	kinds map[types.EventKind]bool
}

type Bus struct {
	logger  log.Logger
	metrics busMetrics

	mutex       sync.Mutex
	nextId      uint64
	subscribers map[uint64]*subscriber
}

func NewBus(parent log.Logger, metricFactory metric.Factory) *Bus {
	return &Bus{
		logger: parent.WithTags(log.String("adapter", "event-bus")),
		metrics: busMetrics{
			published:   metricFactory.NewRate("Events.Published.PerSecond"),
			dropped:     metricFactory.NewGauge("Events.Dropped.Count"),
			subscribers: metricFactory.NewGauge("Events.Subscribers.Count"),
		},
		subscribers: make(map[uint64]*subscriber),
	}
}

// Subscribe registers for the given kinds, or for every kind when none are
// given. The returned function cancels the subscription and closes the channel.
func (b *Bus) Subscribe(kinds ...types.EventKind) (<-chan types.Event, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	s := &subscriber{ch: make(chan types.Event, subscriberBufferSize)}
	if len(kinds) > 0 {
		s.kinds = make(map[types.EventKind]bool, len(kinds))
		for _, kind := range kinds {
			s.kinds[kind] = true
		}
	}

	id := b.nextId
	b.nextId++
	b.subscribers[id] = s
	b.metrics.subscribers.Inc()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			delete(b.subscribers, id)
			close(s.ch)
			b.metrics.subscribers.Dec()
		})
	}
}

func (b *Bus) Publish(event types.Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.metrics.published.Measure(1)

	for _, s := range b.subscribers {
		if s.kinds != nil && !s.kinds[event.Kind] {
			continue
		}
		b.deliver(s, event)
	}
}

// holds b.mutex; sends and evictions only happen here so a full channel can
// always make room by dropping its head
func (b *Bus) deliver(s *subscriber, event types.Event) {
	select {
	case s.ch <- event:
		return
	default:
	}

	select {
	case <-s.ch:
	default:
	}
	b.metrics.dropped.Inc()

	select {
	case s.ch <- event:
	default:
		b.logger.Info("event dropped, subscriber buffer exhausted", log.String("event-kind", string(event.Kind)))
	}
}
