// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package capabilities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tempora-network/tempora-go/config"
	"github.com/tempora-network/tempora-go/instrumentation/metric"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/contentstore"
	csadapter "github.com/tempora-network/tempora-go/services/contentstore/adapter"
	"github.com/tempora-network/tempora-go/test"
	"github.com/tempora-network/tempora-go/test/with"
	"github.com/tempora-network/tempora-go/types"
)

type harness struct {
	graph services.CapabilityGraph
	store services.ContentStore
}

func newHarness(t testing.TB, h *with.LoggingHarness) *harness {
	return newHarnessWithConfig(t, h, config.ForAcceptanceTests())
}

func newHarnessWithConfig(t testing.TB, h *with.LoggingHarness, cfg config.CapabilitiesConfig) *harness {
	metricFactory := metric.NewRegistry()

	storage, err := csadapter.NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	store := contentstore.NewContentStore(storage, h.Logger, metricFactory)

	return &harness{
		graph: NewCapabilityGraph(cfg, store, h.Logger, metricFactory),
		store: store,
	}
}

func requestFor(id types.ContentId, invoker types.Address, need types.Right, target types.LineageId) services.ValidationRequest {
	return services.ValidationRequest{
		Capability: id,
		Invoker:    invoker,
		Need:       need,
		Target:     target,
		Now:        time.Now(),
	}
}

func TestCreateRootPersistsAnImmutableToken(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)

			stored, err := d.store.Has(ctx, root.Id)
			require.NoError(t, err)
			require.True(t, stored, "tokens are content-addressed objects")

			got, ok := d.graph.Get(ctx, root.Id)
			require.True(t, ok)
			require.Equal(t, types.CapabilityRoot, got.Capability.Kind)
			require.EqualValues(t, "alice", got.Capability.Holder)
		})
	})
}

func TestDelegationNarrowsRightsAndKeepsTheTarget(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)

			child, err := d.graph.Delegate(ctx, root.Id, "bob", types.RightRead, nil, "audit")
			require.NoError(t, err)
			require.Equal(t, types.CapabilityDelegated, child.Capability.Kind)
			require.Equal(t, root.Id, child.Capability.Delegation.Parent)
			require.EqualValues(t, "alice", child.Capability.Delegation.Delegator)
			require.EqualValues(t, "lineage-1", child.Capability.Target)

			_, err = d.graph.Delegate(ctx, child.Id, "carol", types.RightWrite, nil, "")
			require.True(t, types.IsError(err, types.ErrInsufficientRight), "rights may only narrow, got %v", err)
		})
	})
}

func TestDelegationRefusesNonDelegatableParents(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			attributes := types.NewMetadata(map[string]string{types.AttrDelegatable: "false"})
			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, attributes)
			require.NoError(t, err)

			_, err = d.graph.Delegate(ctx, root.Id, "bob", types.RightRead, nil, "")
			require.True(t, types.IsError(err, types.ErrNotDelegatable), "expected not delegatable, got %v", err)
		})
	})
}

func TestRevokeIsForTheHolderOrTheDelegator(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)
			child, err := d.graph.Delegate(ctx, root.Id, "bob", types.RightRead, nil, "")
			require.NoError(t, err)

			_, err = d.graph.Revoke(ctx, child.Id, "mallory", "because", false)
			require.True(t, types.IsError(err, types.ErrCapabilityDenied), "strangers cannot revoke, got %v", err)

			revoked, err := d.graph.Revoke(ctx, child.Id, "alice", "delegator retracts", false)
			require.NoError(t, err)
			require.Equal(t, 1, revoked)
		})
	})
}

func TestRevokeCascadeMarksEveryDescendant(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)
			child, err := d.graph.Delegate(ctx, root.Id, "bob", types.RightWrite, nil, "")
			require.NoError(t, err)
			grandchild, err := d.graph.Delegate(ctx, child.Id, "carol", types.RightRead, nil, "")
			require.NoError(t, err)

			revoked, err := d.graph.Revoke(ctx, root.Id, "alice", "compromised", true)
			require.NoError(t, err)
			require.Equal(t, 3, revoked)

			err = d.graph.Validate(ctx, requestFor(grandchild.Id, "carol", types.RightRead, "lineage-1"))
			require.True(t, types.IsError(err, types.ErrRevoked), "descendants die with the root, got %v", err)
		})
	})
}

func TestRevokeWithoutCascadeStillBlocksDescendantsViaTheChainWalk(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)
			child, err := d.graph.Delegate(ctx, root.Id, "bob", types.RightRead, nil, "")
			require.NoError(t, err)

			revoked, err := d.graph.Revoke(ctx, root.Id, "alice", "", false)
			require.NoError(t, err)
			require.Equal(t, 1, revoked, "lazy revocation marks only the token itself")

			err = d.graph.Validate(ctx, requestFor(child.Id, "bob", types.RightRead, "lineage-1"))
			require.True(t, types.IsError(err, types.ErrRevoked), "the walk discovers the revoked ancestor, got %v", err)
		})
	})
}

func TestRevokeOfUnknownTokenIsANoOp(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			revoked, err := d.graph.Revoke(ctx, types.ContentId{1, 2, 3}, "anyone", "", true)
			require.NoError(t, err)
			require.Zero(t, revoked)
		})
	})
}

func TestTransferMovesTheEffectiveHolder(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)

			moved, err := d.graph.Transfer(ctx, root.Id, "bob")
			require.NoError(t, err)
			require.EqualValues(t, "bob", moved.Capability.Holder)
			require.Equal(t, root.Id, moved.Id, "transfer does not re-mint the token")

			require.NoError(t, d.graph.Validate(ctx, requestFor(root.Id, "bob", types.RightWrite, "lineage-1")))
			err = d.graph.Validate(ctx, requestFor(root.Id, "alice", types.RightWrite, "lineage-1"))
			require.True(t, types.IsError(err, types.ErrCapabilityDenied), "the old holder lost the token, got %v", err)
		})
	})
}

func TestTransferRespectsTheTransferableAttribute(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			attributes := types.NewMetadata(map[string]string{types.AttrTransferable: "false"})
			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, attributes)
			require.NoError(t, err)

			_, err = d.graph.Transfer(ctx, root.Id, "bob")
			require.True(t, types.IsError(err, types.ErrNotTransferable), "expected not transferable, got %v", err)
		})
	})
}

func TestComposeTakesTheWeakestRightAndEveryConstraint(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)
			writer, err := d.graph.Delegate(ctx, root.Id, "bob", types.RightWrite, []types.Constraint{types.PurposeConstraint("settle")}, "")
			require.NoError(t, err)
			reader, err := d.graph.Delegate(ctx, root.Id, "bob", types.RightRead, []types.Constraint{types.QuantityConstraint(types.QuantityFromUint64(10))}, "")
			require.NoError(t, err)

			composed, err := d.graph.Compose(ctx, "bob", []types.ContentId{writer.Id, reader.Id})
			require.NoError(t, err)
			require.Equal(t, types.CapabilityComposed, composed.Capability.Kind)
			require.Equal(t, types.RightRead, composed.Capability.Right, "intersection keeps the weakest right")
			require.Len(t, composed.Capability.Delegation.Constraints, 2, "constraints union")
			require.EqualValues(t, "bob", composed.Capability.Holder, "composition holder is explicit")
		})
	})
}

func TestComposeRejectsEmptyAndMismatchedChildren(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			_, err := d.graph.Compose(ctx, "bob", nil)
			require.Error(t, err, "composing zero capabilities is rejected")

			a, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)
			b, err := d.graph.CreateRoot(ctx, "alice", "lineage-2", types.RightWrite, nil)
			require.NoError(t, err)

			_, err = d.graph.Compose(ctx, "bob", []types.ContentId{a.Id, b.Id})
			require.Error(t, err, "children must agree on the target")

			custom, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.CustomRight("audit"), nil)
			require.NoError(t, err)
			_, err = d.graph.Compose(ctx, "bob", []types.ContentId{a.Id, custom.Id})
			require.True(t, types.IsError(err, types.ErrInsufficientRight), "disjoint rights have no intersection, got %v", err)
		})
	})
}

func TestTemplatesBindTargetsAtInstantiation(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)

			template, err := d.graph.CreateTemplate(ctx, root.Id)
			require.NoError(t, err)
			require.Equal(t, types.CapabilityTemplate, template.Capability.Kind)
			require.Empty(t, template.Capability.Target, "templates carry no bound target")

			err = d.graph.Validate(ctx, requestFor(template.Id, "alice", types.RightWrite, "lineage-9"))
			require.True(t, types.IsError(err, types.ErrTemplateMisuse), "templates grant nothing directly, got %v", err)

			token, err := d.graph.Instantiate(ctx, template.Id, "bob", "lineage-9")
			require.NoError(t, err)
			require.NoError(t, d.graph.Validate(ctx, requestFor(token.Id, "bob", types.RightWrite, "lineage-9")))

			_, err = d.graph.Instantiate(ctx, root.Id, "bob", "lineage-9")
			require.True(t, types.IsError(err, types.ErrTemplateMisuse), "only templates instantiate, got %v", err)
		})
	})
}

func TestRevokingTheTemplateSourceReachesInstantiations(t *testing.T) {
	with.Logging(t, func(h *with.LoggingHarness) {
		test.WithContext(func(ctx context.Context) {
			d := newHarness(t, h)

			root, err := d.graph.CreateRoot(ctx, "alice", "lineage-1", types.RightWrite, nil)
			require.NoError(t, err)
			template, err := d.graph.CreateTemplate(ctx, root.Id)
			require.NoError(t, err)
			token, err := d.graph.Instantiate(ctx, template.Id, "bob", "lineage-9")
			require.NoError(t, err)

			revoked, err := d.graph.Revoke(ctx, root.Id, "alice", "pattern withdrawn", true)
			require.NoError(t, err)
			require.Equal(t, 3, revoked, "root, template and instantiation")

			err = d.graph.Validate(ctx, requestFor(token.Id, "bob", types.RightWrite, "lineage-9"))
			require.True(t, types.IsError(err, types.ErrRevoked), "instantiations die with the source, got %v", err)
		})
	})
}
