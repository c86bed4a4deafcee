// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package domains

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/synchronization"
	"github.com/tempora-network/tempora-go/types"
)

var LogTag = log.Service("domain-registry")

const STATUS_CONNECTED = "connected"
const STATUS_DISCONNECTED = "disconnected"

type domainEntry struct {
	domain    services.Domain
	conn      services.Connection
	connected bool

	status *metric.Text
	height *metric.Gauge
}

type service struct {
	config        config.DomainsConfig
	timemap       services.TimeMapService
	logger        log.Logger
	metricFactory metric.Factory
	domainCount   *metric.Gauge

	mutex   sync.RWMutex
	domains map[types.DomainId]*domainEntry
}

// NewDomainRegistry starts the supervised connectivity poll; the returned
// waiter belongs in the kernel's supervision tree.
func NewDomainRegistry(ctx context.Context, cfg config.DomainsConfig, timemap services.TimeMapService, parent log.Logger, metricFactory metric.Factory) (services.DomainRegistry, govnr.ShutdownWaiter) {
	s := &service{
		config:        cfg,
		timemap:       timemap,
		logger:        parent.WithTags(LogTag),
		metricFactory: metricFactory,
		domainCount:   metricFactory.NewGauge("Domains.Registered.Count"),
		domains:       make(map[types.DomainId]*domainEntry),
	}

	handle := synchronization.NewPeriodicalTrigger(ctx, "domain connectivity check",
		synchronization.NewTimeTicker(cfg.DomainConnectivityCheckInterval()), s.logger,
		func() { s.checkAll(ctx) }, nil)

	return s, handle
}

func (s *service) Register(domain services.Domain, conn services.Connection) error {
	if domain.Id == "" {
		return errors.New("a domain needs an id")
	}
	if conn == nil {
		return errors.Errorf("domain %s registered without a connection", domain.Id)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.domains[domain.Id]; ok {
		return errors.Wrapf(types.ErrAlreadyExists, "domain %s is already registered", domain.Id)
	}

	s.domains[domain.Id] = &domainEntry{
		domain: domain,
		conn:   conn,
		status: s.metricFactory.NewText(fmt.Sprintf("Domains.%s.Status", domain.Id), STATUS_DISCONNECTED),
		height: s.metricFactory.NewGauge(fmt.Sprintf("Domains.%s.Height", domain.Id)),
	}
	s.domainCount.Inc()

	s.logger.Info("registered external domain", logfields.Domain(domain.Id), log.String("kind", domain.Kind), log.Uint64("finality-depth", domain.FinalityDepth))
	return nil
}

func (s *service) Get(id types.DomainId) (services.Domain, services.Connection, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, ok := s.domains[id]
	if !ok {
		return services.Domain{}, nil, errors.Wrapf(types.ErrNotFound, "domain %s is not registered", id)
	}
	return entry.domain, entry.conn, nil
}

func (s *service) List() []services.Domain {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]services.Domain, 0, len(s.domains))
	for _, entry := range s.domains {
		out = append(out, entry.domain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (s *service) Connected(id types.DomainId) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, ok := s.domains[id]
	return ok && entry.connected
}

// checkAll polls every registered connection, refreshing the status gauges
// and feeding fresh heads into the time map. The poll never fails the loop;
// an unreachable domain is a status, not an error.
func (s *service) checkAll(ctx context.Context) {
	for _, entry := range s.snapshotEntries() {
		s.checkOne(ctx, entry)
	}
}

func (s *service) snapshotEntries() []*domainEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*domainEntry, 0, len(s.domains))
	for _, entry := range s.domains {
		out = append(out, entry)
	}
	return out
}

func (s *service) checkOne(ctx context.Context, entry *domainEntry) {
	if err := entry.conn.CheckConnectivity(ctx); err != nil {
		s.markConnected(entry, false)
		s.logger.Info("domain connectivity check failed", logfields.Domain(entry.domain.Id), log.Error(err))
		return
	}
	s.markConnected(entry, true)

	head, err := s.fetchHead(ctx, entry)
	if err != nil {
		s.logger.Info("domain head fetch failed", logfields.Domain(entry.domain.Id), log.Error(err))
		return
	}
	entry.height.Update(int64(head.Height))

	if _, err := s.timemap.Update(ctx, head); err != nil {
		// a regressing or reorged head is the time map's verdict to make
		s.logger.Info("domain head rejected by the time map", logfields.Domain(entry.domain.Id), logfields.Height(head.Height), log.Error(err))
	}
}

func (s *service) markConnected(entry *domainEntry, connected bool) {
	s.mutex.Lock()
	entry.connected = connected
	s.mutex.Unlock()

	if connected {
		entry.status.Update(STATUS_CONNECTED)
	} else {
		entry.status.Update(STATUS_DISCONNECTED)
	}
}

func (s *service) fetchHead(ctx context.Context, entry *domainEntry) (types.TimeMapEntry, error) {
	height, err := entry.conn.CurrentHeight(ctx)
	if err != nil {
		return types.TimeMapEntry{}, errors.Wrap(err, "reading current height")
	}
	hash, err := entry.conn.CurrentHash(ctx)
	if err != nil {
		return types.TimeMapEntry{}, errors.Wrap(err, "reading current hash")
	}
	timestamp, err := entry.conn.CurrentTimestamp(ctx)
	if err != nil {
		return types.TimeMapEntry{}, errors.Wrap(err, "reading current timestamp")
	}

	return types.TimeMapEntry{
		Domain:     entry.domain.Id,
		Height:     height,
		Hash:       hash,
		Timestamp:  types.NanosFromTime(timestamp),
		ObservedAt: types.NanosFromTime(time.Now()),
	}, nil
}
