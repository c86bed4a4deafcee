package config

import (
	"github.com/orbs-network/scribe/log"
	"reflect"
	"runtime"
	"strings"
	"time"
)

type validator struct {
	logger log.Logger
}

func NewValidator(logger log.Logger) *validator {
	return &validator{logger: logger}
}

func (v *validator) Validate(cfg KernelConfig) {
	v.requireGT(cfg.SchedulerNodeTimeout, cfg.SchedulerLockRetryBackoff, "node timeout must be greater than lock retry backoff")
	v.requireGT(cfg.SchedulerNodeTimeout, cfg.LockDefaultTimeout, "node timeout must be greater than default lock timeout")
	v.requireNonZero(cfg.SchedulerMaxParallelNodes, "scheduler worker count must not be zero")
	v.requireNonZero(cfg.CapabilityChainDepthLimit, "capability chain depth limit must not be zero")
	v.requireNonZero(cfg.TimeMapHistoryRetention, "time map history retention must not be zero")
}

func (v *validator) requireGT(d1 func() time.Duration, d2 func() time.Duration, msg string) {
	if d1() <= d2() {
		v.logger.Error(msg, log.Stringable(funcName(d1), d1()), log.Stringable(funcName(d2), d2()))
		panic(msg)
	}
}

func (v *validator) requireNonZero(u func() uint32, msg string) {
	if u() == 0 {
		v.logger.Error(msg, log.Uint32(funcName(u), u()))
		panic(msg)
	}
}

func funcName(i interface{}) string {
	fullName := runtime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
	lastDot := strings.LastIndex(fullName, ".")
	return strings.TrimSuffix(fullName[lastDot+1:], "-fm")
}
