// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/orbs-network/govnr"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
)

// RunUntilShutdown blocks on the kernel until SIGINT/SIGTERM arrives, then
// shuts it down gracefully and joins every supervised goroutine.
func RunUntilShutdown(k *Kernel) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	govnr.Once(logfields.GovnrErrorer(k.Logger), func() {
		sig := <-signals
		k.Logger.Info("shutting down gracefully on os signal: " + sig.String())
		k.GracefulShutdown()
	})

	k.WaitUntilShutdown(context.Background())
}
