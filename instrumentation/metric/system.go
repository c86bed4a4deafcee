// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package metric

import (
	"context"
	"fmt"
	"github.com/c9s/goprocinfo/linux"
	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
	"github.com/tempora-network/tempora-go/synchronization"
	"os"
	"time"
)

const SYSTEM_QUERY_INTERVAL = 3 * time.Second

type systemMetrics struct {
	rssBytes       *Gauge
	cpuUtilization *Gauge
}

type systemReporter struct {
	metrics systemMetrics
}

func NewSystemReporter(ctx context.Context, metricFactory Factory, logger log.Logger) govnr.ShutdownWaiter {
	r := &systemReporter{
		metrics: systemMetrics{
			rssBytes:       metricFactory.NewGauge("OS.Process.Memory.Bytes"),
			cpuUtilization: metricFactory.NewGauge("OS.Process.CPU.PerCent"),
		},
	}

	return r.startReporting(ctx, logger)
}

func (r *systemReporter) startReporting(ctx context.Context, logger log.Logger) govnr.ShutdownWaiter {
	return synchronization.NewPeriodicalTrigger(ctx, "system metric reporter", synchronization.NewTimeTicker(SYSTEM_QUERY_INTERVAL), logger, func() {
		r.reportSystemMetrics(logger)
	}, nil)
}

const PAGESIZE = 4096

func (r *systemReporter) reportSystemMetrics(logger log.Logger) {
	if _, err := os.Stat("/proc"); os.IsNotExist(err) {
		return
	}

	if rss, err := getRssMemory(); err != nil {
		logger.Error("failed to retrieve memory stats", log.Error(err))
	} else {
		r.metrics.rssBytes.Update(rss)
	}

	if cpu, err := getCPUUtilization(); err != nil {
		logger.Error("failed to retrieve cpu stats", log.Error(err))
	} else {
		r.metrics.cpuUtilization.Update(cpu)
	}
}

func getRssMemory() (int64, error) {
	statm, err := linux.ReadProcessStatm(fmt.Sprintf("/proc/%d/statm", os.Getpid()))
	if err != nil {
		return 0, err
	}

	return int64(statm.Resident * PAGESIZE), nil
}

func getCPUStats() (uint64, error) {
	cpu, err := linux.ReadStat("/proc/stat")
	if err != nil {
		return 0, err
	}
	e := cpu.CPUStatAll
	return e.User + e.Nice + e.System + e.Idle, nil
}

// procfs counters are cumulative since boot, so utilization needs two samples:
// percent = (process2 - process1) / (cpu2 - cpu1) * 100
// All cores are folded together and cgroup cpu limits are ignored.
func getCPUUtilization() (int64, error) {
	pid := uint64(os.Getpid())

	firstSample, err := linux.ReadProcess(pid, "/proc")
	if err != nil {
		return 0, err
	}

	cpu1, err := getCPUStats()
	if err != nil {
		return 0, err
	}
	<-time.After(time.Second)
	secondSample, _ := linux.ReadProcess(pid, "/proc")

	user := (int64(secondSample.Stat.Utime) + secondSample.Stat.Cutime) - (int64(firstSample.Stat.Utime) + firstSample.Stat.Cutime)
	system := (int64(secondSample.Stat.Stime) + secondSample.Stat.Cstime) - (int64(firstSample.Stat.Stime) + firstSample.Stat.Cstime)
	cpu2, err := getCPUStats()
	if err != nil {
		return 0, err
	}

	percent := (float64(user+system) / float64(cpu2-cpu1)) * 100

	return int64(percent), nil
}
