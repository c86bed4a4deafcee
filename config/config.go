// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package config

import "time"

// config keys; JSON files use the dash form ("scheduler-max-parallel-nodes")
const (
	SCHEDULER_MAX_PARALLEL_NODES       = "SCHEDULER_MAX_PARALLEL_NODES"
	SCHEDULER_NODE_TIMEOUT             = "SCHEDULER_NODE_TIMEOUT"
	SCHEDULER_LOCK_RETRY_BACKOFF       = "SCHEDULER_LOCK_RETRY_BACKOFF"
	LOCK_DEFAULT_TIMEOUT               = "LOCK_DEFAULT_TIMEOUT"
	CAPABILITY_CHAIN_DEPTH_LIMIT       = "CAPABILITY_CHAIN_DEPTH_LIMIT"
	TIME_MAP_HISTORY_RETENTION         = "TIME_MAP_HISTORY_RETENTION"
	DOMAIN_HEIGHT_GRACE_DISTANCE       = "DOMAIN_HEIGHT_GRACE_DISTANCE"
	FACT_CACHE_EXPIRATION              = "FACT_CACHE_EXPIRATION"
	DOMAIN_CONNECTIVITY_CHECK_INTERVAL = "DOMAIN_CONNECTIVITY_CHECK_INTERVAL"
	CONTENT_STORE_DATA_DIR             = "CONTENT_STORE_DATA_DIR"
	METRIC_REPORTING_INTERVAL          = "METRIC_REPORTING_INTERVAL"
	NTP_ENDPOINT                       = "NTP_ENDPOINT"
	LOGGER_HUMAN_READABLE              = "LOGGER_HUMAN_READABLE"
	LOGGER_FULL_LOG                    = "LOGGER_FULL_LOG"
)

type ContentStoreConfig interface {
	ContentStoreDataDir() string
}

type CapabilitiesConfig interface {
	CapabilityChainDepthLimit() uint32
}

type TimeMapConfig interface {
	TimeMapHistoryRetention() uint32
	DomainHeightGraceDistance() uint32
}

type FactObserverConfig interface {
	FactCacheExpiration() time.Duration
}

type DomainsConfig interface {
	DomainConnectivityCheckInterval() time.Duration
	DomainHeightGraceDistance() uint32
}

type LocksConfig interface {
	LockDefaultTimeout() time.Duration
}

type SchedulerConfig interface {
	SchedulerMaxParallelNodes() uint32
	SchedulerNodeTimeout() time.Duration
	SchedulerLockRetryBackoff() time.Duration
	LockDefaultTimeout() time.Duration
}

// KernelConfig is the full surface the kernel reads. Services depend on the
// narrow per-service interfaces above.
type KernelConfig interface {
	ContentStoreConfig
	CapabilitiesConfig
	TimeMapConfig
	FactObserverConfig
	DomainsConfig
	SchedulerConfig

	MetricReportingInterval() time.Duration
	NtpEndpoint() string
	LoggerHumanReadable() bool
	LoggerFullLog() bool
}

type KernelConfigValue struct {
	Uint32Value   uint32
	DurationValue time.Duration
	StringValue   string
	BoolValue     bool
}

type KernelConfigKeyValue struct {
	Key   string
	Value KernelConfigValue
}

type mutableKernelConfig interface {
	KernelConfig

	Set(key string, value KernelConfigValue) mutableKernelConfig
	SetDuration(key string, value time.Duration) mutableKernelConfig
	SetUint32(key string, value uint32) mutableKernelConfig
	SetString(key string, value string) mutableKernelConfig
	SetBool(key string, value bool) mutableKernelConfig
	Modify(newValues ...KernelConfigKeyValue)
}

// OverridableConfig allows tests and file sources to tweak a preset.
type OverridableConfig interface {
	KernelConfig
	Modify(newValues ...KernelConfigKeyValue)
}
