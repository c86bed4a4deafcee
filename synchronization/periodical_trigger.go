// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package synchronization

import (
	"context"
	"time"

	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"

	"github.com/tempora-network/tempora-go/instrumentation/logfields"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func NewTimeTicker(interval time.Duration) Ticker {
	return &timeTicker{ticker: time.NewTicker(interval)}
}

func (t *timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *timeTicker) Stop() {
	t.ticker.Stop()
}

// NewPeriodicalTrigger runs trigger on every tick under govnr supervision
// until ctx ends, then runs onShutdown (when given).
func NewPeriodicalTrigger(ctx context.Context, name string, ticker Ticker, logger log.Logger, trigger func(), onShutdown func()) govnr.ShutdownWaiter {
	return govnr.Forever(ctx, name, logfields.GovnrErrorer(logger), func() {
		for {
			select {
			case <-ticker.C():
				trigger()
			case <-ctx.Done():
				ticker.Stop()
				if onShutdown != nil {
					onShutdown()
				}
				return
			}
		}
	})
}
