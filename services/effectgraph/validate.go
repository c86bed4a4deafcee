// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package effectgraph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/types"
)

// HeadResolver is the read-only slice of the registry validation needs.
type HeadResolver interface {
	Read(ctx context.Context, lineage types.LineageId) (*types.RegisterRecord, error)
}

// CapabilityResolver is the read-only slice of the capability graph
// validation needs.
type CapabilityResolver interface {
	Get(ctx context.Context, id types.ContentId) (*types.CapabilityRecord, bool)
}

type ValidationDeps struct {
	Registers    HeadResolver
	Capabilities CapabilityResolver
}

// Validate checks the graph against live kernel state: every declared
// lineage must resolve to a register head and every declared access mode
// must be covered by at least one of the node's listed capabilities. The
// full constraint-chain walk stays an execution-time concern; this is the
// submission gate.
func (g *Graph) Validate(ctx context.Context, deps ValidationDeps) error {
	for _, node := range g.Nodes {
		if err := validateAccesses(ctx, deps, node); err != nil {
			return err
		}
	}
	return nil
}

func validateAccesses(ctx context.Context, deps ValidationDeps, node types.EffectNode) error {
	capabilities := make([]types.Capability, 0, len(node.RequiredCapabilities))
	for _, id := range node.RequiredCapabilities {
		record, ok := deps.Capabilities.Get(ctx, id)
		if !ok {
			return errors.Wrapf(types.ErrInvalidGraph, "node %s lists unknown capability %s", node.Id, id)
		}
		capabilities = append(capabilities, record.Capability)
	}

	for _, access := range node.ResourceAccesses {
		if _, err := deps.Registers.Read(ctx, access.Lineage); err != nil {
			return errors.Wrapf(types.ErrInvalidGraph, "node %s accesses unknown lineage %s", node.Id, access.Lineage)
		}
		if !covered(capabilities, access) {
			return errors.Wrapf(types.ErrCapabilityDenied, "node %s declares %s access to %s but no listed capability covers it", node.Id, access.Mode, access.Lineage)
		}
	}
	return nil
}

// covered is a shape check: some listed capability grants the needed right
// on the accessed lineage. Templates grant nothing until instantiated, and
// an empty target is a wildcard.
func covered(capabilities []types.Capability, access types.ResourceAccess) bool {
	need := access.Mode.NeededRight()
	for _, c := range capabilities {
		if c.Kind == types.CapabilityTemplate {
			continue
		}
		if c.Target != "" && c.Target != access.Lineage {
			continue
		}
		if c.Right.Covers(need) {
			return true
		}
	}
	return false
}
