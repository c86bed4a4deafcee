// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package locks is the advisory lock table over register lineages: Shared,
// Exclusive and Intent locks with per-lineage FIFO waiters, transaction
// reentry and timeouts.
package locks

import (
	"context"
	"sync"
	"time"

	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/events"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/types"
)

var LogTag = log.Service("lock-table")

type metrics struct {
	heldLocks   *metric.Gauge
	waitQueue   *metric.Gauge
	acquireRate *metric.Rate
	timeouts    *metric.Gauge
	waitLatency *metric.Histogram
}

func newMetrics(m metric.Factory) *metrics {
	return &metrics{
		heldLocks:   m.NewGauge("Locks.Held.Count"),
		waitQueue:   m.NewGauge("Locks.Waiters.Count"),
		acquireRate: m.NewRate("Locks.Acquire.PerSecond"),
		timeouts:    m.NewGauge("Locks.Timeouts.Count"),
		waitLatency: m.NewLatency("Locks.Wait.Duration.Millis", 60*time.Second),
	}
}

type waiter struct {
	kind    types.LockKind
	holder  types.Address
	txn     types.TransactionId
	timeout time.Duration
	ready   chan struct{}
	granted bool
}

type entry struct {
	holders []types.LockRecord
	waiters []*waiter
}

type service struct {
	config  config.LocksConfig
	bus     *events.Bus
	logger  log.Logger
	metrics *metrics

	mutex sync.Mutex
	table map[types.LineageId]*entry
}

func NewLockService(cfg config.LocksConfig, bus *events.Bus, parent log.Logger, metricFactory metric.Factory) services.LockService {
	return &service{
		config:  cfg,
		bus:     bus,
		logger:  parent.WithTags(LogTag),
		metrics: newMetrics(metricFactory),
		table:   make(map[types.LineageId]*entry),
	}
}

// Acquire blocks until the lock is granted, the timeout passes, or ctx ends.
// Waiters are served strictly FIFO per lineage; a zero timeout falls back to
// the configured default, and the configured default of zero means no limit.
func (s *service) Acquire(ctx context.Context, lineage types.LineageId, kind types.LockKind, holder types.Address, opts services.AcquireOptions) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.config.LockDefaultTimeout()
	}

	s.mutex.Lock()
	e := s.entryLocked(lineage)
	s.reapLocked(lineage, e)

	if s.reentrantLocked(e, lineage, kind, holder, opts.Txn) {
		s.mutex.Unlock()
		return nil
	}

	if len(e.waiters) == 0 && compatibleWithAll(e.holders, kind) {
		s.grantLocked(lineage, e, kind, holder, opts.Txn, timeout)
		s.mutex.Unlock()
		return nil
	}

	w := &waiter{kind: kind, holder: holder, txn: opts.Txn, timeout: timeout, ready: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	s.metrics.waitQueue.Inc()
	s.mutex.Unlock()

	start := time.Now()
	defer s.metrics.waitLatency.RecordSince(start)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-w.ready:
		s.metrics.waitQueue.Dec()
		return nil
	case <-expired:
		if s.abandonWait(lineage, w) {
			s.metrics.timeouts.Inc()
			return errors.Wrapf(types.ErrLockTimeout, "%s lock on lineage %s not granted within %s", kind, lineage, timeout)
		}
		return nil
	case <-ctx.Done():
		if s.abandonWait(lineage, w) {
			return errors.Wrapf(types.ErrCancelRequested, "canceled waiting for %s lock on lineage %s", kind, lineage)
		}
		return nil
	}
}

// TryAcquire grants immediately or fails with ErrLockConflict. It never
// barges past queued waiters.
func (s *service) TryAcquire(lineage types.LineageId, kind types.LockKind, holder types.Address, txn types.TransactionId) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e := s.entryLocked(lineage)
	s.reapLocked(lineage, e)

	if s.reentrantLocked(e, lineage, kind, holder, txn) {
		return nil
	}
	if len(e.waiters) > 0 || !compatibleWithAll(e.holders, kind) {
		return errors.Wrapf(types.ErrLockConflict, "%s lock on lineage %s conflicts with current holders", kind, lineage)
	}

	s.grantLocked(lineage, e, kind, holder, txn, 0)
	return nil
}

func (s *service) Release(ctx context.Context, lineage types.LineageId, holder types.Address) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.table[lineage]
	if !ok {
		return errors.Wrapf(types.ErrNotFound, "lineage %s holds no locks", lineage)
	}

	released := false
	kept := e.holders[:0]
	for _, record := range e.holders {
		if record.Holder == holder {
			released = true
			s.metrics.heldLocks.Dec()
			s.publish(types.EventLockReleased, record, "released")
			continue
		}
		kept = append(kept, record)
	}
	e.holders = kept

	if !released {
		return errors.Wrapf(types.ErrNotFound, "holder %s holds no lock on lineage %s", holder, lineage)
	}

	s.wakeWaitersLocked(lineage, e)
	s.dropIfEmptyLocked(lineage, e)
	return nil
}

func (s *service) IsLocked(lineage types.LineageId) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.table[lineage]
	if !ok {
		return false
	}
	s.reapLocked(lineage, e)
	return len(e.holders) > 0
}

func (s *service) Info(lineage types.LineageId) []types.LockRecord {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.table[lineage]
	if !ok {
		return nil
	}
	s.reapLocked(lineage, e)

	out := make([]types.LockRecord, len(e.holders))
	copy(out, e.holders)
	return out
}

func (s *service) entryLocked(lineage types.LineageId) *entry {
	e, ok := s.table[lineage]
	if !ok {
		e = &entry{}
		s.table[lineage] = e
	}
	return e
}

// reentrant acquisition: a holder re-requesting under the transaction of a
// lock it already holds reuses the record when its kind already covers the
// request, or upgrades in place when it is the only holder
func (s *service) reentrantLocked(e *entry, lineage types.LineageId, kind types.LockKind, holder types.Address, txn types.TransactionId) bool {
	if txn == "" {
		return false
	}
	for i, record := range e.holders {
		if record.Holder != holder || record.Txn != txn {
			continue
		}
		if record.Kind == kind || record.Kind == types.LockExclusive {
			return true
		}
		if kind == types.LockExclusive && len(e.holders) == 1 && len(e.waiters) == 0 {
			e.holders[i].Kind = types.LockExclusive
			s.publish(types.EventLockAcquired, e.holders[i], "upgraded")
			return true
		}
	}
	return false
}

func (s *service) grantLocked(lineage types.LineageId, e *entry, kind types.LockKind, holder types.Address, txn types.TransactionId, timeout time.Duration) {
	record := types.LockRecord{
		Lineage:    lineage,
		Holder:     holder,
		Kind:       kind,
		AcquiredAt: types.NanosFromTime(time.Now()),
		Timeout:    timeout,
		Txn:        txn,
	}
	e.holders = append(e.holders, record)

	s.metrics.heldLocks.Inc()
	s.metrics.acquireRate.Measure(1)
	s.publish(types.EventLockAcquired, record, "acquired")

	if timeout > 0 {
		time.AfterFunc(timeout+time.Millisecond, func() { s.reap(lineage) })
	}
}

// wakeWaiters grants from the queue head while the head is compatible with
// the remaining holders. Stopping at the first incompatible waiter is what
// keeps the queue FIFO.
func (s *service) wakeWaitersLocked(lineage types.LineageId, e *entry) {
	for len(e.waiters) > 0 {
		head := e.waiters[0]
		if !compatibleWithAll(e.holders, head.kind) {
			return
		}
		e.waiters = e.waiters[1:]
		head.granted = true
		s.grantLocked(lineage, e, head.kind, head.holder, head.txn, head.timeout)
		close(head.ready)
	}
}

// reap drops holders that outlived their timeout and hands the lock to
// whoever was waiting.
func (s *service) reap(lineage types.LineageId) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.table[lineage]
	if !ok {
		return
	}
	s.reapLocked(lineage, e)
	s.wakeWaitersLocked(lineage, e)
	s.dropIfEmptyLocked(lineage, e)
}

func (s *service) reapLocked(lineage types.LineageId, e *entry) {
	now := time.Now()
	kept := e.holders[:0]
	for _, record := range e.holders {
		if record.Expired(now) {
			s.metrics.heldLocks.Dec()
			s.metrics.timeouts.Inc()
			s.publish(types.EventLockReleased, record, "timed-out")
			s.logger.Info("lock timed out", logfields.Lineage(lineage), logfields.Holder(record.Holder), log.Stringable("kind", record.Kind))
			continue
		}
		kept = append(kept, record)
	}
	e.holders = kept
}

func (s *service) dropIfEmptyLocked(lineage types.LineageId, e *entry) {
	if len(e.holders) == 0 && len(e.waiters) == 0 {
		delete(s.table, lineage)
	}
}

// abandonWait removes the waiter from its queue after a timeout or cancel.
// Returns false when a grant raced ahead, in which case the lock is held and
// the caller must treat the acquire as successful.
func (s *service) abandonWait(lineage types.LineageId, w *waiter) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if w.granted {
		s.metrics.waitQueue.Dec()
		return false
	}

	e, ok := s.table[lineage]
	if !ok {
		return true
	}
	for i, queued := range e.waiters {
		if queued == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}
	s.metrics.waitQueue.Dec()
	s.wakeWaitersLocked(lineage, e)
	s.dropIfEmptyLocked(lineage, e)
	return true
}

func (s *service) publish(kind types.EventKind, record types.LockRecord, reason string) {
	s.bus.Publish(types.Event{
		Kind:      kind,
		Subject:   record.Lineage.String(),
		Timestamp: types.NanosFromTime(time.Now()),
		Txn:       record.Txn,
		Fields: types.NewMetadata(map[string]string{
			"kind":   record.Kind.String(),
			"holder": record.Holder.String(),
			"reason": reason,
		}),
	})
}

func compatibleWithAll(holders []types.LockRecord, kind types.LockKind) bool {
	for _, record := range holders {
		if !record.Kind.CompatibleWith(kind) {
			return false
		}
	}
	return true
}
