// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package e2e runs the kernel scenarios end to end: a full in-memory kernel,
// simulated external domains and real handlers registered on the scheduler.
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/bootstrap"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/domains/adapter"
	"github.com/tempora-network/tempora-go/test/with"
	"github.com/tempora-network/tempora-go/types"
)

type kernelHarness struct {
	*bootstrap.Kernel
	sims map[types.DomainId]*adapter.SimulatedConnection
}

// newKernel assembles an in-memory kernel with one simulated connection per
// requested domain and tears everything down when the test ends.
func newKernel(t testing.TB, h *with.LoggingHarness, domainIds ...types.DomainId) *kernelHarness {
	kernel, err := bootstrap.NewKernel(config.ForAcceptanceTests(), h.Logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		kernel.GracefulShutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		kernel.WaitUntilShutdown(shutdownCtx)
	})

	d := &kernelHarness{Kernel: kernel, sims: make(map[types.DomainId]*adapter.SimulatedConnection)}
	for _, id := range domainIds {
		sim := adapter.NewSimulatedConnection(id, h.Logger)
		require.NoError(t, kernel.Domains.Register(services.Domain{
			Id:            id,
			Kind:          "simulated",
			FinalityDepth: 1,
			ChainId:       id.String(),
		}, sim))
		d.sims[id] = sim
	}
	return d
}

func (d *kernelHarness) sim(id types.DomainId) *adapter.SimulatedConnection {
	return d.sims[id]
}

// activeRegister creates a register and walks it to Active so it can split,
// merge and take lifecycle transitions.
func (d *kernelHarness) activeRegister(t testing.TB, ctx context.Context, input services.CreateRegisterInput) *types.RegisterRecord {
	created, err := d.Registry.Create(ctx, input)
	require.NoError(t, err)
	activated, err := d.Registry.TransitionState(ctx, created.Register.Lineage, types.LifecycleActivated, types.NewTransactionId())
	require.NoError(t, err)
	return activated
}

func (d *kernelHarness) rootCapability(t testing.TB, ctx context.Context, holder types.Address, target types.LineageId, right types.Right) *types.CapabilityRecord {
	record, err := d.Capabilities.CreateRoot(ctx, holder, target, right, nil)
	require.NoError(t, err)
	return record
}

type handlerFunc func(ctx context.Context, in services.HandlerInput) (*services.HandlerOutput, error)

func (f handlerFunc) Execute(ctx context.Context, in services.HandlerInput) (*services.HandlerOutput, error) {
	return f(ctx, in)
}
