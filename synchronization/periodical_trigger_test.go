// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package synchronization

import (
	"context"
	"testing"
	"time"

	"github.com/orbs-network/govnr"

	"github.com/tempora-network/tempora-go/test/with"
)

type fakeTicker struct {
	c chan time.Time
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{c: make(chan time.Time)}
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) Stop() {}

func (t *fakeTicker) tick() {
	t.c <- time.Now()
}

func TestPeriodicalTriggerRunsOnEveryTick(t *testing.T) {
	with.Concurrency(t, func(ctx context.Context, h *with.ConcurrencyHarness) {
		ticker := newFakeTicker()
		fired := make(chan struct{}, 10)

		handle := NewPeriodicalTrigger(ctx, "test trigger", ticker, h.Logger, func() {
			fired <- struct{}{}
		}, nil)
		h.Supervise(handle)

		for i := 0; i < 3; i++ {
			ticker.tick()
			select {
			case <-fired:
			case <-time.After(time.Second):
				t.Fatalf("trigger did not fire on tick %d", i)
			}
		}
	})
}

func TestPeriodicalTriggerRunsShutdownHookOnCancellation(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		ctx, cancel := context.WithCancel(context.Background())
		shutdownRan := make(chan struct{})

		handle := NewPeriodicalTrigger(ctx, "test trigger", newFakeTicker(), h.Logger, func() {}, func() {
			close(shutdownRan)
		})
		handle.(*govnr.ForeverHandle).MarkSupervised()

		cancel()

		select {
		case <-shutdownRan:
		case <-time.After(time.Second):
			t.Fatal("shutdown hook did not run")
		}

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
		defer cancelShutdown()
		handle.WaitUntilShutdown(shutdownCtx)
	})
}
