// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/effectgraph"
	"github.com/tempora-network/tempora-go/test"
	"github.com/tempora-network/tempora-go/test/builders"
	"github.com/tempora-network/tempora-go/test/with"
	"github.com/tempora-network/tempora-go/types"
)

// A fungible transfer: one node splits a 100 USD register into 40 + 60 and
// hands the 40 part to bob with a delegated capability.
func TestFungibleTransferAcrossASplit(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newKernel(t, h, "sim")

			source := d.activeRegister(t, ctx, builders.RegisterInput().WithQuantity(100).WithController("alice").Build())
			root := d.rootCapability(t, ctx, "alice", "", types.RightWrite)

			var transferred types.LineageId
			var bobsToken types.ContentId
			require.NoError(t, d.Scheduler.RegisterHandler("sim", "split-transfer", handlerFunc(
				func(ctx context.Context, in services.HandlerInput) (*services.HandlerOutput, error) {
					parts, err := d.Registry.Split(ctx, source.Register.Lineage,
						[]types.Quantity{types.QuantityFromUint64(40), types.QuantityFromUint64(60)}, in.Txn)
					if err != nil {
						return nil, err
					}
					transferred = parts[0].Register.Lineage

					if _, err := d.Registry.Update(ctx, transferred, func(r types.Register) (types.Register, error) {
						r.Controller = "bob"
						return r, nil
					}); err != nil {
						return nil, err
					}

					delegated, err := d.Capabilities.Delegate(ctx, root.Id, "bob", types.RightWrite, nil, "transfer")
					if err != nil {
						return nil, err
					}
					bobsToken = delegated.Id

					// the hosting domain sealed a block for this transfer
					d.sim("sim").CommitBlocks(1)
					height, _ := d.sim("sim").CurrentHeight(ctx)
					blockHash, _ := d.sim("sim").CurrentHash(ctx)
					timestamp, _ := d.sim("sim").CurrentTimestamp(ctx)

					return &services.HandlerOutput{
						TimeMapUpdates: []types.TimeMapEntry{{Domain: "sim", Height: height, Hash: blockHash, Timestamp: types.NanosFromTime(timestamp)}},
						Value:          []byte(transferred),
						Deterministic:  true,
					}, nil
				})))

			graph, err := effectgraph.NewBuilder().
				AddNode(builders.EffectNode("n1", "split-transfer").WithWrite(source.Register.Lineage).WithCapability(root.Id).Build()).
				Build()
			require.NoError(t, err)

			result, err := d.Scheduler.Submit(ctx, graph, services.SubmitOptions{Invoker: "alice"})
			require.NoError(t, err)
			require.Equal(t, types.NodeCompleted, result.Nodes["n1"].State)

			consumed, err := d.Registry.Read(ctx, source.Register.Lineage)
			require.NoError(t, err)
			require.Equal(t, types.RegisterConsumed, consumed.Register.State)

			require.Equal(t, 3, d.Registry.HeadCount(), "the source head plus two split parts")

			bobs, err := d.Registry.Read(ctx, transferred)
			require.NoError(t, err)
			require.Equal(t, types.QuantityFromUint64(40), bobs.Register.Quantity)
			require.EqualValues(t, "bob", bobs.Register.Controller)
			require.Equal(t, types.RegisterActive, bobs.Register.State)

			token, ok := d.Capabilities.Get(ctx, bobsToken)
			require.True(t, ok)
			require.Equal(t, types.CapabilityDelegated, token.Capability.Kind)
			require.EqualValues(t, "bob", token.Capability.Holder)

			entry, ok := d.TimeMap.Get("sim")
			require.True(t, ok, "the transfer advanced the hosting domain's entry")
			require.True(t, entry.Height >= 2, "height is %d", entry.Height)
		})
	})
}
