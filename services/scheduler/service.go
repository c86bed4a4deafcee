// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package scheduler executes effect graphs: a single-threaded main loop owns
// the instance state of each submission and hands ready nodes to a bounded
// worker pool. Each node runs the capability/lock/observe/dispatch/commit
// pipeline; committed effects are never rolled back.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/events"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/instrumentation/trace"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/effectgraph"
	"github.com/tempora-network/tempora-go/types"
)

var LogTag = log.Service("effect-scheduler")

type metrics struct {
	submissions *metric.Rate
	completed   *metric.Rate
	failed      *metric.Rate
	skipped     *metric.Rate
	nodeLatency *metric.Histogram
	lockWait    *metric.Histogram
	inFlight    *metric.Gauge
}

func newMetrics(m metric.Factory) *metrics {
	return &metrics{
		submissions: m.NewRate("Scheduler.Submissions.PerSecond"),
		completed:   m.NewRate("Scheduler.Nodes.Completed.PerSecond"),
		failed:      m.NewRate("Scheduler.Nodes.Failed.PerSecond"),
		skipped:     m.NewRate("Scheduler.Nodes.Skipped.PerSecond"),
		nodeLatency: m.NewLatency("Scheduler.Node.Duration.Millis", 10*time.Minute),
		lockWait:    m.NewLatency("Scheduler.LockWait.Duration.Millis", 60*time.Second),
		inFlight:    m.NewGauge("Scheduler.Nodes.InFlight.Count"),
	}
}

type handlerKey struct {
	domain types.DomainId
	kind   types.EffectKind
}

type service struct {
	config       config.SchedulerConfig
	registry     services.Registry
	capabilities services.CapabilityGraph
	timemap      services.TimeMapService
	locks        services.LockService
	store        services.ContentStore
	bus          *events.Bus
	logger       log.Logger
	metrics      *metrics

	mutex    sync.RWMutex
	handlers map[handlerKey]services.Handler
}

func NewScheduler(
	cfg config.SchedulerConfig,
	registry services.Registry,
	capabilities services.CapabilityGraph,
	timemap services.TimeMapService,
	locks services.LockService,
	store services.ContentStore,
	bus *events.Bus,
	parent log.Logger,
	metricFactory metric.Factory,
) services.Scheduler {
	return &service{
		config:       cfg,
		registry:     registry,
		capabilities: capabilities,
		timemap:      timemap,
		locks:        locks,
		store:        store,
		bus:          bus,
		logger:       parent.WithTags(LogTag),
		metrics:      newMetrics(metricFactory),
		handlers:     make(map[handlerKey]services.Handler),
	}
}

func (s *service) RegisterHandler(domain types.DomainId, kind types.EffectKind, handler services.Handler) error {
	if handler == nil {
		return errors.Errorf("handler for kind %s at domain %s is nil", kind, domain)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := handlerKey{domain: domain, kind: kind}
	if _, ok := s.handlers[key]; ok {
		return errors.Wrapf(types.ErrAlreadyExists, "handler for kind %s at domain %s", kind, domain)
	}

	s.handlers[key] = handler
	s.logger.Info("registered effect handler", logfields.Domain(domain), log.Stringable("kind", kind))
	return nil
}

func (s *service) handler(domain types.DomainId, kind types.EffectKind) (services.Handler, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	h, ok := s.handlers[handlerKey{domain: domain, kind: kind}]
	return h, ok
}

// Submit validates the graph against live kernel state, persists its
// canonical form and runs it to completion. The returned result names the
// terminal state of every node; a canceled submission also returns
// ErrCancelRequested.
func (s *service) Submit(ctx context.Context, graph *effectgraph.Graph, opts services.SubmitOptions) (*services.SubmissionResult, error) {
	if graph == nil || graph.Len() == 0 {
		return nil, errors.Wrap(types.ErrInvalidGraph, "submission carries no graph")
	}
	if opts.Invoker == "" {
		return nil, errors.Wrap(types.ErrInvalidGraph, "submission names no invoker")
	}

	deps := effectgraph.ValidationDeps{Registers: s.registry, Capabilities: s.capabilities}
	if err := graph.Validate(ctx, deps); err != nil {
		return nil, err
	}

	graphId, err := s.store.Put(ctx, canonical.Encode(*graph))
	if err != nil {
		return nil, errors.Wrap(err, "failed persisting the submitted graph")
	}

	ctx = trace.NewContext(ctx, "submit-effect-graph")
	txn := types.NewTransactionId()
	logger := s.logger.WithTags(logfields.Txn(txn), logfields.ContentId("graph", graphId), trace.LogFieldFrom(ctx))
	logger.Info("executing effect graph", log.Int("nodes", graph.Len()), logfields.Holder(opts.Invoker))

	s.metrics.submissions.Measure(1)

	e := newExecution(s, graph, opts, txn, logger)
	result, runErr := e.run(ctx)
	result.GraphId = graphId

	logger.Info("effect graph finished", log.Int("completed", e.count(types.NodeCompleted)),
		log.Int("failed", e.count(types.NodeFailed)), log.Int("skipped", e.count(types.NodeSkipped)))
	return result, runErr
}
