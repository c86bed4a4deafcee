// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package factobserver

import (
	"context"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/types"
)

var LogTag = log.Service("fact-observer")

type metrics struct {
	observationRate *metric.Rate
	staleRejections *metric.Gauge
	cacheHitRate    *metric.Rate
	externalLatency *metric.Histogram
}

func newMetrics(m metric.Factory) *metrics {
	return &metrics{
		observationRate: m.NewRate("FactObserver.Observations.PerSecond"),
		staleRejections: m.NewGauge("FactObserver.StaleRejections.Count"),
		cacheHitRate:    m.NewRate("FactObserver.CacheHits.PerSecond"),
		externalLatency: m.NewLatency("FactObserver.External.Duration.Millis", 30*time.Second),
	}
}

type service struct {
	config  config.FactObserverConfig
	domains services.DomainRegistry
	timemap services.TimeMapService
	store   services.ContentStore
	logger  log.Logger
	metrics *metrics
	cache   *ttlcache.Cache
}

// NewFactObserver answers fact queries against pinned time-map snapshots.
// The TTL cache closes when ctx ends.
func NewFactObserver(ctx context.Context, cfg config.FactObserverConfig, domains services.DomainRegistry, timemap services.TimeMapService, store services.ContentStore, parent log.Logger, metricFactory metric.Factory) services.FactObserver {
	logger := parent.WithTags(LogTag)

	cache := ttlcache.NewCache()
	cache.SetTTL(cfg.FactCacheExpiration())
	govnr.Once(logfields.GovnrErrorer(logger), func() {
		<-ctx.Done()
		cache.Close()
	})

	return &service{
		config:  cfg,
		domains: domains,
		timemap: timemap,
		store:   store,
		logger:  logger,
		metrics: newMetrics(metricFactory),
		cache:   cache,
	}
}

// Observe asks the domain for a fact and enforces pinning: the fact's entry
// must be at or below the query ceiling and at or above both the pin's entry
// for that domain and the query floor. A fact ahead of the current time map
// flows into C4 before it returns; a fact below the floor fails with
// ErrStaleFact and touches nothing.
func (s *service) Observe(ctx context.Context, query types.FactQuery, pin *types.TimeMapSnapshot) (*types.Fact, error) {
	key := canonical.ContentIdOf(query).Hex()
	floor := s.pinFloor(query, pin)

	if fact := s.cachedFact(key, query, floor); fact != nil {
		s.metrics.cacheHitRate.Measure(1)
		return fact, nil
	}

	fact, err := s.observeRemote(ctx, query)
	if err != nil {
		return nil, err
	}

	if query.MaxHeight != 0 && fact.PinnedTo.Height > query.MaxHeight {
		return nil, errors.Errorf("domain %s answered at height %d, above the ceiling %d", query.Domain, fact.PinnedTo.Height, query.MaxHeight)
	}
	if fact.PinnedTo.Height < floor {
		s.metrics.staleRejections.Inc()
		return nil, errors.Wrapf(types.ErrStaleFact, "fact is pinned at height %d, below the floor %d for domain %s", fact.PinnedTo.Height, floor, query.Domain)
	}

	if err := s.advanceTimeMap(ctx, fact.PinnedTo); err != nil {
		return nil, err
	}

	id, err := s.store.Put(ctx, canonical.Encode(*fact))
	if err != nil {
		return nil, errors.Wrap(err, "persisting observed fact")
	}

	s.cache.Set(key, fact)
	s.metrics.observationRate.Measure(1)
	s.logger.Info("observed fact", logfields.ContentId("fact", id), logfields.Domain(query.Domain), log.Stringable("kind", query.Kind), logfields.Height(fact.PinnedTo.Height))
	return fact, nil
}

// cachedFact returns the cached answer only while it still satisfies the
// caller's pin; a cache entry that fell below the floor is left to expire.
func (s *service) cachedFact(key string, query types.FactQuery, floor uint64) *types.Fact {
	cached, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	fact, ok := cached.(*types.Fact)
	if !ok {
		return nil
	}
	if fact.PinnedTo.Height < floor {
		return nil
	}
	if query.MaxHeight != 0 && fact.PinnedTo.Height > query.MaxHeight {
		return nil
	}
	return fact
}

func (s *service) pinFloor(query types.FactQuery, pin *types.TimeMapSnapshot) uint64 {
	floor := query.MinHeight
	if pin != nil {
		if entry, ok := pin.Get(query.Domain); ok && entry.Height > floor {
			floor = entry.Height
		}
	}
	return floor
}

func (s *service) observeRemote(ctx context.Context, query types.FactQuery) (*types.Fact, error) {
	_, conn, err := s.domains.Get(query.Domain)
	if err != nil {
		return nil, errors.Wrapf(err, "no connection for domain %s", query.Domain)
	}

	start := time.Now()
	fact, err := conn.ObserveFact(ctx, query)
	s.metrics.externalLatency.RecordSince(start)
	if err != nil {
		return nil, errors.Wrapf(err, "observing %s fact on domain %s", query.Kind, query.Domain)
	}
	return fact, nil
}

// advanceTimeMap folds a fact entry ahead of the map into C4. An entry behind
// the map is fine as long as it cleared the floor; an entry that conflicts at
// the same height is a reorg and fails the observation.
func (s *service) advanceTimeMap(ctx context.Context, entry types.TimeMapEntry) error {
	current, known := s.timemap.Get(entry.Domain)
	if known && entry.Height < current.Height {
		return nil
	}
	if _, err := s.timemap.Update(ctx, entry); err != nil {
		return errors.Wrapf(err, "fact entry for domain %s conflicts with the time map", entry.Domain)
	}
	return nil
}
