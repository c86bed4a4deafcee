// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package config

import "time"

type config struct {
	kv map[string]KernelConfigValue
}

func emptyConfig() mutableKernelConfig {
	return &config{kv: make(map[string]KernelConfigValue)}
}

func (c *config) Set(key string, value KernelConfigValue) mutableKernelConfig {
	c.kv[key] = value
	return c
}

func (c *config) SetDuration(key string, value time.Duration) mutableKernelConfig {
	c.kv[key] = KernelConfigValue{DurationValue: value}
	return c
}

func (c *config) SetUint32(key string, value uint32) mutableKernelConfig {
	c.kv[key] = KernelConfigValue{Uint32Value: value}
	return c
}

func (c *config) SetString(key string, value string) mutableKernelConfig {
	c.kv[key] = KernelConfigValue{StringValue: value}
	return c
}

func (c *config) SetBool(key string, value bool) mutableKernelConfig {
	c.kv[key] = KernelConfigValue{BoolValue: value}
	return c
}

func (c *config) ContentStoreDataDir() string {
	return c.kv[CONTENT_STORE_DATA_DIR].StringValue
}

func (c *config) CapabilityChainDepthLimit() uint32 {
	return c.kv[CAPABILITY_CHAIN_DEPTH_LIMIT].Uint32Value
}

func (c *config) TimeMapHistoryRetention() uint32 {
	return c.kv[TIME_MAP_HISTORY_RETENTION].Uint32Value
}

func (c *config) DomainHeightGraceDistance() uint32 {
	return c.kv[DOMAIN_HEIGHT_GRACE_DISTANCE].Uint32Value
}

func (c *config) FactCacheExpiration() time.Duration {
	return c.kv[FACT_CACHE_EXPIRATION].DurationValue
}

func (c *config) DomainConnectivityCheckInterval() time.Duration {
	return c.kv[DOMAIN_CONNECTIVITY_CHECK_INTERVAL].DurationValue
}

func (c *config) LockDefaultTimeout() time.Duration {
	return c.kv[LOCK_DEFAULT_TIMEOUT].DurationValue
}

func (c *config) SchedulerMaxParallelNodes() uint32 {
	return c.kv[SCHEDULER_MAX_PARALLEL_NODES].Uint32Value
}

func (c *config) SchedulerNodeTimeout() time.Duration {
	return c.kv[SCHEDULER_NODE_TIMEOUT].DurationValue
}

func (c *config) SchedulerLockRetryBackoff() time.Duration {
	return c.kv[SCHEDULER_LOCK_RETRY_BACKOFF].DurationValue
}

func (c *config) MetricReportingInterval() time.Duration {
	return c.kv[METRIC_REPORTING_INTERVAL].DurationValue
}

func (c *config) NtpEndpoint() string {
	return c.kv[NTP_ENDPOINT].StringValue
}

func (c *config) LoggerHumanReadable() bool {
	return c.kv[LOGGER_HUMAN_READABLE].BoolValue
}

func (c *config) LoggerFullLog() bool {
	return c.kv[LOGGER_FULL_LOG].BoolValue
}
