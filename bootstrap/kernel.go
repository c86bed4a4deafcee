// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package bootstrap is the composition root: it builds every kernel service,
// picks the persistence adapters, starts the metric reporters and holds the
// supervision tree until shutdown.
package bootstrap

import (
	"context"
	"path/filepath"

	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/events"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/capabilities"
	"github.com/tempora-network/tempora-go/services/contentstore"
	csadapter "github.com/tempora-network/tempora-go/services/contentstore/adapter"
	"github.com/tempora-network/tempora-go/services/domains"
	"github.com/tempora-network/tempora-go/services/factobserver"
	"github.com/tempora-network/tempora-go/services/locks"
	"github.com/tempora-network/tempora-go/services/registry"
	regadapter "github.com/tempora-network/tempora-go/services/registry/adapter"
	"github.com/tempora-network/tempora-go/services/scheduler"
	"github.com/tempora-network/tempora-go/services/timemap"
	tmadapter "github.com/tempora-network/tempora-go/services/timemap/adapter"
)

var LogTag = log.Service("kernel")

// Kernel is the assembled Resource-Effect-Time core. All services share one
// content store, one event bus and one metric registry.
type Kernel struct {
	Config       config.KernelConfig
	Logger       log.Logger
	Metrics      metric.Registry
	Bus          *events.Bus
	ContentStore services.ContentStore
	Registry     services.Registry
	Capabilities services.CapabilityGraph
	TimeMap      services.TimeMapService
	Domains      services.DomainRegistry
	FactObserver services.FactObserver
	Locks        services.LockService
	Scheduler    services.Scheduler

	supervisor govnr.TreeSupervisor
	cancel     context.CancelFunc
	closers    []func() error
}

type stores struct {
	objects   csadapter.StoragePort
	heads     regadapter.HeadIndex
	snapshots tmadapter.SnapshotPort
}

// openStores picks the persistence layer: an empty data dir means everything
// lives in memory, otherwise boltdb files under the dir.
func openStores(dataDir string) (*stores, error) {
	if dataDir == "" {
		objects, err := csadapter.NewInMemoryStore()
		if err != nil {
			return nil, err
		}
		return &stores{
			objects:   objects,
			heads:     regadapter.NewInMemoryHeadIndex(),
			snapshots: tmadapter.NewInMemorySnapshotStore(),
		}, nil
	}

	objects, err := csadapter.NewDriveStore(filepath.Join(dataDir, "objects.bolt"))
	if err != nil {
		return nil, errors.Wrap(err, "failed opening the content store")
	}
	heads, err := regadapter.NewBoltHeadIndex(filepath.Join(dataDir, "heads.bolt"))
	if err != nil {
		_ = objects.Close()
		return nil, errors.Wrap(err, "failed opening the head index")
	}
	snapshots, err := tmadapter.NewBoltSnapshotStore(filepath.Join(dataDir, "timemaps.bolt"))
	if err != nil {
		_ = objects.Close()
		_ = heads.Close()
		return nil, errors.Wrap(err, "failed opening the snapshot store")
	}
	return &stores{objects: objects, heads: heads, snapshots: snapshots}, nil
}

// NewKernel wires the full service graph. The kernel owns its own lifecycle
// context; GracefulShutdown cancels it and WaitUntilShutdown joins every
// supervised goroutine.
func NewKernel(cfg config.KernelConfig, parent log.Logger) (*Kernel, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := parent.WithTags(LogTag)

	config.NewValidator(logger).Validate(cfg)

	st, err := openStores(cfg.ContentStoreDataDir())
	if err != nil {
		cancel()
		return nil, err
	}

	metricRegistry := metric.NewRegistry()
	bus := events.NewBus(parent, metricRegistry)

	store := contentstore.NewContentStore(st.objects, parent, metricRegistry)
	registers := registry.NewRegistry(store, st.heads, bus, parent, metricRegistry)
	capabilityGraph := capabilities.NewCapabilityGraph(cfg, store, parent, metricRegistry)
	timeMap := timemap.NewTimeMapService(cfg, store, st.snapshots, bus, parent, metricRegistry)
	domainRegistry, domainsHandle := domains.NewDomainRegistry(ctx, cfg, timeMap, parent, metricRegistry)
	observer := factobserver.NewFactObserver(ctx, cfg, domainRegistry, timeMap, store, parent, metricRegistry)
	lockTable := locks.NewLockService(cfg, bus, parent, metricRegistry)
	effectScheduler := scheduler.NewScheduler(cfg, registers, capabilityGraph, timeMap, lockTable, store, bus, parent, metricRegistry)

	k := &Kernel{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metricRegistry,
		Bus:          bus,
		ContentStore: store,
		Registry:     registers,
		Capabilities: capabilityGraph,
		TimeMap:      timeMap,
		Domains:      domainRegistry,
		FactObserver: observer,
		Locks:        lockTable,
		Scheduler:    effectScheduler,
		cancel:       cancel,
		closers:      []func() error{st.snapshots.Close, st.heads.Close, st.objects.Close},
	}

	k.supervisor.Supervise(domainsHandle)
	k.supervisor.Supervise(metricRegistry.PeriodicallyRotate(ctx, parent))
	k.supervisor.Supervise(metricRegistry.ReportEvery(ctx, cfg.MetricReportingInterval(), parent))
	k.supervisor.Supervise(metric.NewRuntimeReporter(ctx, metricRegistry, parent))
	k.supervisor.Supervise(metric.NewSystemReporter(ctx, metricRegistry, parent))
	if cfg.NtpEndpoint() != "" {
		k.supervisor.Supervise(metric.NewNtpReporter(ctx, metricRegistry, parent, cfg.NtpEndpoint()))
	}

	logger.Info("kernel assembled",
		log.String("data-dir", cfg.ContentStoreDataDir()),
		log.Uint32("scheduler-width", cfg.SchedulerMaxParallelNodes()))
	return k, nil
}

// GracefulShutdown stops background loops; WaitUntilShutdown joins them.
func (k *Kernel) GracefulShutdown() {
	k.Logger.Info("kernel shutting down")
	k.cancel()
}

func (k *Kernel) WaitUntilShutdown(shutdownCtx context.Context) {
	k.supervisor.WaitUntilShutdown(shutdownCtx)
	for _, close := range k.closers {
		if err := close(); err != nil {
			k.Logger.Error("failed closing a store", log.Error(err))
		}
	}
	k.Logger.Info("kernel shutdown complete")
}
