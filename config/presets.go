// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package config

import "time"

func defaultProductionConfig() mutableKernelConfig {
	cfg := emptyConfig()

	cfg.SetString(CONTENT_STORE_DATA_DIR, "/usr/local/var/tempora")

	cfg.SetUint32(CAPABILITY_CHAIN_DEPTH_LIMIT, 16)

	// heights arrive from external domains out of band, keep a generous window
	cfg.SetUint32(TIME_MAP_HISTORY_RETENTION, 64)
	cfg.SetUint32(DOMAIN_HEIGHT_GRACE_DISTANCE, 64)

	cfg.SetDuration(FACT_CACHE_EXPIRATION, 30*time.Second)
	cfg.SetDuration(DOMAIN_CONNECTIVITY_CHECK_INTERVAL, 10*time.Second)

	cfg.SetDuration(LOCK_DEFAULT_TIMEOUT, 5*time.Second)

	cfg.SetUint32(SCHEDULER_MAX_PARALLEL_NODES, 8)
	cfg.SetDuration(SCHEDULER_NODE_TIMEOUT, 30*time.Second)
	cfg.SetDuration(SCHEDULER_LOCK_RETRY_BACKOFF, 25*time.Millisecond)

	cfg.SetDuration(METRIC_REPORTING_INTERVAL, 30*time.Second)
	cfg.SetString(NTP_ENDPOINT, "")

	cfg.SetBool(LOGGER_HUMAN_READABLE, false)
	cfg.SetBool(LOGGER_FULL_LOG, false)

	return cfg
}

func ForProduction(dataDir string) mutableKernelConfig {
	cfg := defaultProductionConfig()
	if dataDir != "" {
		cfg.SetString(CONTENT_STORE_DATA_DIR, dataDir)
	}
	return cfg
}

// ForE2E runs the kernel against simulated domains with short timers so
// end to end suites finish quickly.
func ForE2E(dataDir string) mutableKernelConfig {
	cfg := defaultProductionConfig()
	cfg.SetString(CONTENT_STORE_DATA_DIR, dataDir)
	cfg.SetDuration(FACT_CACHE_EXPIRATION, 2*time.Second)
	cfg.SetDuration(DOMAIN_CONNECTIVITY_CHECK_INTERVAL, 1*time.Second)
	cfg.SetDuration(SCHEDULER_NODE_TIMEOUT, 10*time.Second)
	cfg.SetBool(LOGGER_HUMAN_READABLE, true)
	return cfg
}

func ForAcceptanceTests() mutableKernelConfig {
	cfg := defaultProductionConfig()
	cfg.SetString(CONTENT_STORE_DATA_DIR, "")
	cfg.SetDuration(FACT_CACHE_EXPIRATION, 500*time.Millisecond)
	cfg.SetDuration(DOMAIN_CONNECTIVITY_CHECK_INTERVAL, 250*time.Millisecond)
	cfg.SetDuration(LOCK_DEFAULT_TIMEOUT, 1*time.Second)
	cfg.SetUint32(SCHEDULER_MAX_PARALLEL_NODES, 4)
	cfg.SetDuration(SCHEDULER_NODE_TIMEOUT, 2*time.Second)
	cfg.SetDuration(SCHEDULER_LOCK_RETRY_BACKOFF, 5*time.Millisecond)
	return cfg
}

// TemplateForSchedulerTests keeps worker counts small and timers tight so unit
// tests can drive the pool deterministically.
func TemplateForSchedulerTests(maxParallel uint32) mutableKernelConfig {
	cfg := ForAcceptanceTests()
	cfg.SetUint32(SCHEDULER_MAX_PARALLEL_NODES, maxParallel)
	return cfg
}
