package with

import (
	"context"
	"testing"
	"time"

	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
)

// ConcurrencyHarness supervises goroutines started by the test and waits for
// them to shut down before asserting the log is clean.
type ConcurrencyHarness struct {
	LoggingHarness
	supervisor govnr.TreeSupervisor
}

func (h *ConcurrencyHarness) Supervise(w govnr.ShutdownWaiter) {
	h.supervisor.Supervise(w)
}

func Concurrency(tb testing.TB, f func(ctx context.Context, harness *ConcurrencyHarness)) {
	ctx, cancel := context.WithCancel(context.Background())
	testOutput := log.NewTestOutput(tb, log.NewHumanReadableFormatter())
	h := &ConcurrencyHarness{
		LoggingHarness: LoggingHarness{
			Logger:     log.GetLogger().WithOutput(testOutput),
			testOutput: testOutput,
			T:          tb,
		},
	}
	defer testOutput.TestTerminated()

	f(ctx, h)

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	h.supervisor.WaitUntilShutdown(shutdownCtx)

	RequireNoUnexpectedErrors(tb, testOutput)
}
