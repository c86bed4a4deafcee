// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package timemap

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/events"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/timemap/adapter"
	"github.com/tempora-network/tempora-go/synchronization"
	"github.com/tempora-network/tempora-go/types"
)

var LogTag = log.Service("time-map")

type metrics struct {
	updateRate     *metric.Rate
	regressionRate *metric.Rate
	snapshotRate   *metric.Rate
	domainCount    *metric.Gauge
	version        *metric.Gauge
}

func newMetrics(m metric.Factory) *metrics {
	return &metrics{
		updateRate:     m.NewRate("TimeMap.Updates.PerSecond"),
		regressionRate: m.NewRate("TimeMap.RejectedUpdates.PerSecond"),
		snapshotRate:   m.NewRate("TimeMap.Snapshots.PerSecond"),
		domainCount:    m.NewGauge("TimeMap.Domains.Count"),
		version:        m.NewGauge("TimeMap.Version.Number"),
	}
}

type service struct {
	config    config.TimeMapConfig
	store     services.ContentStore
	snapshots adapter.SnapshotPort
	bus       *events.Bus
	logger    log.Logger
	metrics   *metrics

	// one writer at a time; readers get copies
	mutex    sync.RWMutex
	current  types.TimeMap
	history  []types.TimeMapSnapshot
	trackers map[types.DomainId]*synchronization.HeightTracker
}

func NewTimeMapService(cfg config.TimeMapConfig, store services.ContentStore, snapshots adapter.SnapshotPort, bus *events.Bus, parent log.Logger, metricFactory metric.Factory) services.TimeMapService {
	s := &service{
		config:    cfg,
		store:     store,
		snapshots: snapshots,
		bus:       bus,
		logger:    parent.WithTags(LogTag),
		metrics:   newMetrics(metricFactory),
		current:   types.NewTimeMap(),
		trackers:  make(map[types.DomainId]*synchronization.HeightTracker),
	}

	s.resume()
	return s
}

// resume rehydrates the map from the last persisted snapshot, if any.
func (s *service) resume() {
	version, ok, err := s.snapshots.LatestVersion()
	if err != nil || !ok {
		return
	}
	data, ok, err := s.snapshots.Load(version)
	if err != nil || !ok {
		return
	}

	var snapshot types.TimeMapSnapshot
	if err := canonical.Decode(data, &snapshot); err != nil {
		s.logger.Error("persisted snapshot failed to decode", log.Error(err), log.Uint64("version", version))
		return
	}

	s.current = snapshot.AsMap()
	s.history = append(s.history, snapshot)
	for _, entry := range snapshot.Entries {
		s.trackerFor(entry.Domain).Advance(entry.Height)
	}
	s.metrics.domainCount.Update(int64(s.current.Len()))
	s.metrics.version.Update(int64(s.current.Version))
	s.logger.Info("resumed time map from persisted snapshot", log.Uint64("version", version), log.Int("domains", s.current.Len()))
}

func (s *service) Update(ctx context.Context, entry types.TimeMapEntry) (*types.TimeMap, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	changed, err := s.checkEntry(entry)
	if err != nil {
		s.metrics.regressionRate.Measure(1)
		return nil, err
	}
	if changed {
		s.commit([]types.TimeMapEntry{s.applyEntry(entry)})
	}

	out := s.current.Copy()
	return &out, nil
}

// checkEntry enforces per-domain monotonicity without touching the map; the
// caller holds the mutex. Returns false for an idempotent re-observation of
// the known entry.
func (s *service) checkEntry(entry types.TimeMapEntry) (bool, error) {
	existing, ok := s.current.Entries[entry.Domain]
	if ok {
		if entry.Height < existing.Height {
			return false, errors.Wrapf(types.ErrTimeMapRegression, "domain %s height %d regresses from %d", entry.Domain, entry.Height, existing.Height)
		}
		if entry.Height == existing.Height {
			if !bytes.Equal(entry.Hash, existing.Hash) {
				return false, errors.Wrapf(types.ErrChainReorg, "domain %s reports a different hash for height %d", entry.Domain, entry.Height)
			}
			return false, nil
		}
		if entry.Timestamp < existing.Timestamp {
			return false, errors.Wrapf(types.ErrTimeMapRegression, "domain %s timestamp regresses at height %d", entry.Domain, entry.Height)
		}
	}
	return true, nil
}

// applyEntry stores an entry checkEntry already admitted, stamping
// ObservedAt; the caller holds the mutex.
func (s *service) applyEntry(entry types.TimeMapEntry) types.TimeMapEntry {
	if entry.ObservedAt == 0 {
		entry.ObservedAt = types.NanosFromTime(time.Now())
	}
	s.current.Entries[entry.Domain] = entry
	return entry
}

// commit bumps the version, records the ring snapshot, wakes waiters and
// publishes events for the changed domains. The caller holds the mutex.
func (s *service) commit(changed []types.TimeMapEntry) {
	s.current.Version++
	s.appendHistory()

	for _, entry := range changed {
		s.trackerFor(entry.Domain).Advance(entry.Height)
		s.metrics.updateRate.Measure(1)
		s.bus.Publish(types.Event{
			Kind:      types.EventTimeMapUpdated,
			Subject:   entry.Domain.String(),
			Timestamp: types.NanosFromTime(time.Now()),
			Fields: types.NewMetadata(map[string]string{
				"height":  fmt.Sprintf("%d", entry.Height),
				"version": fmt.Sprintf("%d", s.current.Version),
			}),
		})
	}

	s.metrics.domainCount.Update(int64(s.current.Len()))
	s.metrics.version.Update(int64(s.current.Version))
}

func (s *service) appendHistory() {
	s.history = append(s.history, s.buildSnapshot())
	if max := int(s.config.TimeMapHistoryRetention()); max > 0 && len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

func (s *service) buildSnapshot() types.TimeMapSnapshot {
	return types.TimeMapSnapshot{
		Entries: s.current.Sorted(),
		Version: s.current.Version,
		TakenAt: types.NanosFromTime(time.Now()),
	}
}

func (s *service) trackerFor(domain types.DomainId) *synchronization.HeightTracker {
	tracker, ok := s.trackers[domain]
	if !ok {
		tracker = synchronization.NewHeightTracker(0, uint16(s.config.DomainHeightGraceDistance()))
		s.trackers[domain] = tracker
	}
	return tracker
}

func (s *service) Get(domain types.DomainId) (types.TimeMapEntry, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current.Get(domain)
}

func (s *service) Current() types.TimeMap {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current.Copy()
}

// Snapshot persists the current state as an immutable content-hashed object.
func (s *service) Snapshot(ctx context.Context) (*types.TimeMapSnapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapshot := s.buildSnapshot()
	data := canonical.Encode(snapshot)

	id, err := s.store.Put(ctx, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed persisting snapshot")
	}
	if err := s.snapshots.Save(snapshot.Version, data); err != nil {
		return nil, errors.Wrapf(err, "failed saving snapshot version %d", snapshot.Version)
	}

	s.metrics.snapshotRate.Measure(1)
	s.logger.Info("took time map snapshot", logfields.ContentId("snapshot", id), log.Uint64("version", snapshot.Version))
	return &snapshot, nil
}

func (s *service) Dominates(other types.TimeMap) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current.Dominates(other)
}

// Merge folds another map in, pointwise max by height. Ties and stale peer
// entries skip silently. All entries validate before any applies, so a
// rejected merge leaves the map untouched.
func (s *service) Merge(ctx context.Context, other types.TimeMap) (*types.TimeMap, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var pending []types.TimeMapEntry
	for _, entry := range other.Sorted() {
		existing, ok := s.current.Entries[entry.Domain]
		if ok && entry.Height <= existing.Height {
			continue
		}
		if _, err := s.checkEntry(entry); err != nil {
			s.metrics.regressionRate.Measure(1)
			return nil, errors.Wrapf(err, "merging domain %s", entry.Domain)
		}
		pending = append(pending, entry)
	}

	if len(pending) > 0 {
		changed := make([]types.TimeMapEntry, len(pending))
		for i, entry := range pending {
			changed[i] = s.applyEntry(entry)
		}
		s.commit(changed)
	}

	out := s.current.Copy()
	return &out, nil
}

func (s *service) Filter(pred func(types.TimeMapEntry) bool) types.TimeMap {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current.Filter(pred)
}

// History returns up to n snapshots, oldest first.
func (s *service) History(n int) []types.TimeMapSnapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]types.TimeMapSnapshot, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

func (s *service) WaitForHeight(ctx context.Context, domain types.DomainId, height uint64) error {
	s.mutex.Lock()
	tracker := s.trackerFor(domain)
	s.mutex.Unlock()

	return tracker.WaitForHeight(ctx, height)
}
