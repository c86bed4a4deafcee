// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/test"
	"github.com/tempora-network/tempora-go/test/with"
	"github.com/tempora-network/tempora-go/types"
)

func TestSimulatedChainIsDeterministic(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			a := NewSimulatedConnection("eth", h.Logger)
			b := NewSimulatedConnection("eth", h.Logger)
			a.CommitBlocks(4)
			b.CommitBlocks(4)

			hashA, err := a.CurrentHash(ctx)
			require.NoError(t, err)
			hashB, err := b.CurrentHash(ctx)
			require.NoError(t, err)
			require.Equal(t, hashA, hashB, "two simulators of one domain agree block by block")

			other := NewSimulatedConnection("sol", h.Logger)
			other.CommitBlocks(4)
			hashOther, err := other.CurrentHash(ctx)
			require.NoError(t, err)
			require.NotEqual(t, hashA, hashOther, "different domains have different chains")
		})
	})
}

func TestReorgRewritesHashesAboveTheForkPoint(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			sim := NewSimulatedConnection("eth", h.Logger)
			sim.CommitBlocks(9) // head 10

			before3, err := sim.VerifyBlock(ctx, 3, sim.entryAt(3).Hash)
			require.NoError(t, err)
			require.True(t, before3)
			hash7 := sim.entryAt(7).Hash

			sim.Reorg(5)

			still3, err := sim.VerifyBlock(ctx, 3, sim.entryAt(3).Hash)
			require.NoError(t, err)
			require.True(t, still3, "blocks below the fork point keep their hashes")

			match7, err := sim.VerifyBlock(ctx, 7, hash7)
			require.NoError(t, err)
			require.False(t, match7, "blocks above the fork point are rewritten")
		})
	})
}

func TestTransactionsLandWithReceiptsOnCommit(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			sim := NewSimulatedConnection("eth", h.Logger)

			txn, err := sim.SubmitTransaction(ctx, []byte("transfer 5"))
			require.NoError(t, err)

			_, err = sim.TransactionReceipt(ctx, txn)
			require.True(t, types.IsError(err, types.ErrNotFound), "no receipt before a block is committed, got %v", err)

			head := sim.CommitBlocks(1)
			receipt, err := sim.TransactionReceipt(ctx, txn)
			require.NoError(t, err)
			require.True(t, receipt.Success)
			require.Equal(t, head, receipt.Height)
		})
	})
}

func TestSubmitFaultInjection(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			sim := NewSimulatedConnection("eth", h.Logger)
			sim.FailSubmits(true)

			_, err := sim.SubmitTransaction(ctx, []byte("doomed"))
			require.True(t, types.IsError(err, types.ErrTransactionFailed), "got %v", err)

			sim.FailSubmits(false)
			_, err = sim.SubmitTransaction(ctx, []byte("fine"))
			require.NoError(t, err)
		})
	})
}

func TestDisconnectedDomainRefusesEverything(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			sim := NewSimulatedConnection("eth", h.Logger)
			sim.Disconnect()

			require.True(t, types.IsError(sim.CheckConnectivity(ctx), types.ErrNotConnected))
			_, err := sim.CurrentHeight(ctx)
			require.True(t, types.IsError(err, types.ErrNotConnected))
			_, err = sim.ObserveFact(ctx, types.FactQuery{Domain: "eth", Kind: types.FactBalance})
			require.True(t, types.IsError(err, types.ErrNotConnected))
			_, err = sim.SubmitTransaction(ctx, []byte("tx"))
			require.True(t, types.IsError(err, types.ErrNotConnected))

			sim.Reconnect()
			require.NoError(t, sim.CheckConnectivity(ctx))
		})
	})
}

func TestScriptedFactsAnswerAtThePinnedHeight(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			sim := NewSimulatedConnection("eth", h.Logger)
			sim.CommitBlocks(9) // head 10

			query := types.FactQuery{Domain: "eth", Kind: types.FactBalance, Parameters: types.NewMetadata(map[string]string{"account": "alice"})}

			_, err := sim.ObserveFact(ctx, query)
			require.True(t, types.IsError(err, types.ErrNotFound), "unscripted queries have no answer, got %v", err)

			sim.ScriptFact(query, []byte("120"), 7)
			fact, err := sim.ObserveFact(ctx, query)
			require.NoError(t, err)
			require.EqualValues(t, 7, fact.Height)
			require.EqualValues(t, 7, fact.PinnedTo.Height)
			require.Equal(t, []byte("120"), fact.Payload)
			require.Equal(t, types.DomainId("eth"), fact.PinnedTo.Domain)

			head := types.FactQuery{Domain: "eth", Kind: types.FactBlock}
			sim.ScriptFact(head, []byte("latest"), 0)
			fact, err = sim.ObserveFact(ctx, head)
			require.NoError(t, err)
			require.EqualValues(t, 10, fact.Height, "height zero scripts answer at the current head")

			capped := types.FactQuery{Domain: "eth", Kind: types.FactBlock, MaxHeight: 4}
			sim.ScriptFact(capped, []byte("old"), 0)
			fact, err = sim.ObserveFact(ctx, capped)
			require.NoError(t, err)
			require.EqualValues(t, 4, fact.Height, "the query ceiling clamps the answer")
		})
	})
}
