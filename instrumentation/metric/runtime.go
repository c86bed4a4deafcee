package metric

import (
	"context"
	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
	"github.com/tempora-network/tempora-go/synchronization"
	"runtime"
	"time"
)

const RUNTIME_QUERY_INTERVAL = 5 * time.Second

type runtimeMetrics struct {
	heapAlloc       *Gauge
	heapSys         *Gauge
	gcCpuPercentage *Gauge
	goroutines      *Gauge
}

type runtimeReporter struct {
	metrics runtimeMetrics
}

func NewRuntimeReporter(ctx context.Context, metricFactory Factory, logger log.Logger) govnr.ShutdownWaiter {
	r := &runtimeReporter{
		metrics: runtimeMetrics{
			heapAlloc:       metricFactory.NewGauge("Runtime.HeapAlloc.Bytes"),
			heapSys:         metricFactory.NewGauge("Runtime.HeapSys.Bytes"),
			gcCpuPercentage: metricFactory.NewGauge("Runtime.GCCPUPercentage"),
			goroutines:      metricFactory.NewGauge("Runtime.NumGoroutine.Number"),
		},
	}

	return r.startReporting(ctx, logger)
}

func (r *runtimeReporter) startReporting(ctx context.Context, logger log.Logger) govnr.ShutdownWaiter {
	return synchronization.NewPeriodicalTrigger(ctx, "runtime metric reporter", synchronization.NewTimeTicker(RUNTIME_QUERY_INTERVAL), logger, r.reportRuntimeMetrics, nil)
}

func (r *runtimeReporter) reportRuntimeMetrics() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	r.metrics.heapSys.Update(int64(mem.HeapSys))
	r.metrics.heapAlloc.Update(int64(mem.HeapAlloc))
	r.metrics.gcCpuPercentage.Update(int64(mem.GCCPUFraction * 100))
	r.metrics.goroutines.Update(int64(runtime.NumGoroutine()))
}
