// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/types"
)

// lockTimeoutParameter lets a node shorten its lock-acquisition budget below
// the configured default, e.g. "100ms".
const lockTimeoutParameter = "lock-timeout"

// runNode executes the six-step pipeline for one node. Failures release
// every lock in reverse order; effects committed before the failure stay
// committed — compensation is a follow-up effect's job.
func (s *service) runNode(ctx context.Context, e *execution, node types.EffectNode) *outcome {
	started := time.Now()
	defer s.metrics.nodeLatency.RecordSince(started)

	nodeCtx := ctx
	if timeout := s.config.SchedulerNodeTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fail := func(err error) *outcome {
		return &outcome{id: node.Id, state: types.NodeFailed, reason: err}
	}

	accesses := lockOrder(node.ResourceAccesses)

	// step 1: capability check; each pass also takes the in-use mark
	governing, err := s.checkCapabilities(nodeCtx, e, node, accesses)
	defer func() {
		for _, id := range governing {
			s.capabilities.EndUse(id, e.txn)
		}
	}()
	if err != nil {
		return fail(err)
	}

	// step 2: lock acquisition
	lockStart := time.Now()
	if err := s.acquireAll(nodeCtx, node, accesses, e.opts.Invoker, e.txn); err != nil {
		return fail(err)
	}
	s.metrics.lockWait.RecordSince(lockStart)
	defer s.releaseAll(accesses, e.opts.Invoker)

	// step 3: pre-state snapshot
	registers := make(map[types.LineageId]types.RegisterRecord, len(accesses))
	inputHeads := make([]types.ContentId, 0, len(accesses))
	for _, access := range accesses {
		head, err := s.registry.Read(nodeCtx, access.Lineage)
		if err != nil {
			return fail(errors.Wrapf(err, "node %s failed reading lineage %s", node.Id, access.Lineage))
		}
		registers[access.Lineage] = *head
		inputHeads = append(inputHeads, head.Id)
	}
	snapshot, err := s.timemap.Snapshot(nodeCtx)
	if err != nil {
		return fail(errors.Wrapf(err, "node %s failed pinning the time map", node.Id))
	}
	snapshotId := canonical.ContentIdOf(*snapshot)

	// step 4: domain dispatch
	handler, ok := s.handler(node.Domain, node.Kind)
	if !ok {
		return fail(errors.Wrapf(types.ErrNotFound, "no handler for kind %s at domain %s", node.Kind, node.Domain))
	}
	output, err := handler.Execute(nodeCtx, services.HandlerInput{
		Node:      node,
		Params:    node.Parameters,
		Registers: registers,
		Snapshot:  snapshot,
		Txn:       e.txn,
	})
	if err != nil {
		if nodeCtx.Err() == context.DeadlineExceeded {
			return fail(errors.Wrapf(types.ErrTimeout, "node %s exceeded its timeout: %s", node.Id, err))
		}
		return fail(errors.Wrapf(err, "node %s handler failed", node.Id))
	}
	if output == nil {
		output = &services.HandlerOutput{Deterministic: true}
	}

	// step 5: commit
	factIds, err := s.commit(nodeCtx, e, node, output, snapshot, snapshotId)
	if err != nil {
		return fail(err)
	}

	// output heads stay positionally aligned with the input heads; a lineage
	// consumed during commit records the zero id in its slot
	outputHeads := make([]types.ContentId, 0, len(accesses))
	for _, access := range accesses {
		head, err := s.registry.Read(nodeCtx, access.Lineage)
		if err != nil {
			s.logger.Info("lineage head unreadable after commit", logfields.Node(node.Id), logfields.Lineage(access.Lineage), log.Error(err))
			outputHeads = append(outputHeads, types.EmptyContentId)
			continue
		}
		outputHeads = append(outputHeads, head.Id)
	}

	step := types.ExecutionStep{
		NodeId:      node.Id,
		Kind:        node.Kind,
		Domain:      node.Domain,
		Parameters:  node.Parameters,
		InputHeads:  inputHeads,
		OutputHeads: outputHeads,
		Facts:       factIds,
		Snapshot:    snapshotId,
		StartedAt:   types.NanosFromTime(started),
		FinishedAt:  types.NanosFromTime(time.Now()),
	}
	if _, err := s.store.Put(nodeCtx, canonical.Encode(step)); err != nil {
		return fail(errors.Wrapf(err, "node %s failed recording its execution step", node.Id))
	}

	// step 6: release happens in the deferred calls above
	return &outcome{id: node.Id, state: types.NodeCompleted, value: output.Value, step: &step}
}

// checkCapabilities resolves and validates the governing capability for
// every declared access, taking the in-use mark atomically with each
// validation. It returns the marks taken so far even on failure; the caller
// must EndUse each of them.
func (s *service) checkCapabilities(ctx context.Context, e *execution, node types.EffectNode, accesses []types.ResourceAccess) ([]types.ContentId, error) {
	purpose := e.opts.Purpose
	if purpose == "" {
		purpose = string(node.Kind)
	}

	var begun []types.ContentId
	for _, access := range accesses {
		id, ok := s.resolveCapability(ctx, node, access)
		if !ok {
			return begun, errors.Wrapf(types.ErrCapabilityDenied, "node %s: no listed capability covers %s access to %s", node.Id, access.Mode, access.Lineage)
		}
		err := s.capabilities.ValidateAndBeginUse(ctx, services.ValidationRequest{
			Capability: id,
			Invoker:    e.opts.Invoker,
			Need:       access.Mode.NeededRight(),
			Target:     access.Lineage,
			Purpose:    purpose,
			Now:        time.Now(),
			Txn:        e.txn,
		})
		if err != nil {
			return begun, errors.Wrapf(err, "node %s: capability %s rejected for %s access to %s", node.Id, id, access.Mode, access.Lineage)
		}
		begun = append(begun, id)
	}
	return begun, nil
}

// resolveCapability picks the first listed capability that covers the
// access: a non-template token whose target is the lineage (or the empty
// wildcard) with a sufficient right.
func (s *service) resolveCapability(ctx context.Context, node types.EffectNode, access types.ResourceAccess) (types.ContentId, bool) {
	need := access.Mode.NeededRight()
	for _, id := range node.RequiredCapabilities {
		record, ok := s.capabilities.Get(ctx, id)
		if !ok || record.Capability.Kind == types.CapabilityTemplate {
			continue
		}
		if record.Capability.Target != "" && record.Capability.Target != access.Lineage {
			continue
		}
		if record.Capability.Right.Covers(need) {
			return id, true
		}
	}
	return types.EmptyContentId, false
}

// acquireAll takes every lock atomically: all try-locks succeed in ascending
// lineage order or everything is released and the node backs off. Bounded by
// the node's lock-timeout parameter or the configured default.
func (s *service) acquireAll(ctx context.Context, node types.EffectNode, accesses []types.ResourceAccess, holder types.Address, txn types.TransactionId) error {
	budget := s.config.LockDefaultTimeout()
	if raw, ok := node.Parameters.Get(lockTimeoutParameter); ok {
		if parsed, err := time.ParseDuration(raw); err == nil {
			budget = parsed
		} else {
			s.logger.Info("ignoring malformed lock-timeout parameter", logfields.Node(node.Id), log.String("value", raw))
		}
	}
	backoff := s.config.SchedulerLockRetryBackoff()
	if backoff <= 0 {
		backoff = 5 * time.Millisecond
	}

	deadline := time.Now().Add(budget)
	for {
		err := s.tryAll(accesses, holder, txn)
		if err == nil {
			return nil
		}
		if !types.IsError(err, types.ErrLockConflict) {
			return err
		}
		if budget > 0 && !time.Now().Before(deadline) {
			return errors.Wrapf(types.ErrLockTimeout, "node %s could not take its locks within %s", node.Id, budget)
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(types.ErrCancelRequested, "node %s canceled while taking locks", node.Id)
		case <-time.After(backoff):
		}
	}
}

func (s *service) tryAll(accesses []types.ResourceAccess, holder types.Address, txn types.TransactionId) error {
	var held []types.LineageId
	for _, access := range accesses {
		if err := s.locks.TryAcquire(access.Lineage, access.Mode.NeededLockKind(), holder, txn); err != nil {
			for i := len(held) - 1; i >= 0; i-- {
				_ = s.locks.Release(context.Background(), held[i], holder)
			}
			return err
		}
		held = append(held, access.Lineage)
	}
	return nil
}

func (s *service) releaseAll(accesses []types.ResourceAccess, holder types.Address) {
	for i := len(accesses) - 1; i >= 0; i-- {
		_ = s.locks.Release(context.Background(), accesses[i].Lineage, holder)
	}
}

// commit applies the handler's output: register values and lifecycle events
// through C2, facts and time-map entries through C4, everything persisted in
// C1. Committed pieces stay committed when a later piece fails.
func (s *service) commit(ctx context.Context, e *execution, node types.EffectNode, output *services.HandlerOutput, snapshot *types.TimeMapSnapshot, snapshotId types.ContentId) ([]types.ContentId, error) {
	lineages := make([]types.LineageId, 0, len(output.NewValues))
	for lineage := range output.NewValues {
		lineages = append(lineages, lineage)
	}
	sort.Slice(lineages, func(i, j int) bool { return lineages[i] < lineages[j] })

	for _, lineage := range lineages {
		value := output.NewValues[lineage]
		value.ObservedAt = snapshotId
		_, err := s.registry.Update(ctx, lineage, func(types.Register) (types.Register, error) {
			return value, nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "node %s failed committing lineage %s", node.Id, lineage)
		}
	}

	for _, event := range output.Lifecycle {
		if _, ok := event.Kind.TargetState(); !ok || event.Kind == types.LifecycleCreated {
			continue // creation and plain updates already happened through the registry
		}
		if _, err := s.registry.TransitionState(ctx, event.Lineage, event.Kind, e.txn); err != nil {
			return nil, errors.Wrapf(err, "node %s failed applying lifecycle event %s to %s", node.Id, event.Kind, event.Lineage)
		}
	}

	facts := output.Facts
	if !output.Deterministic && len(output.Value) > 0 {
		// a non-deterministic handler's return value is only trustworthy as a
		// pinned observation
		pin, _ := snapshot.Get(node.Domain)
		facts = append(facts, types.Fact{
			Domain:    node.Domain,
			Kind:      types.CustomFactKind("handler:" + string(node.Kind)),
			Height:    pin.Height,
			Hash:      pin.Hash,
			Timestamp: types.NanosFromTime(time.Now()),
			Payload:   output.Value,
			PinnedTo:  pin,
		})
	}

	factIds := make([]types.ContentId, 0, len(facts))
	updates := types.NewTimeMap()
	for _, fact := range facts {
		id, err := s.store.Put(ctx, canonical.Encode(fact))
		if err != nil {
			return nil, errors.Wrapf(err, "node %s failed persisting an emitted fact", node.Id)
		}
		factIds = append(factIds, id)
		if fact.PinnedTo.Domain != "" {
			updates.Entries[fact.PinnedTo.Domain] = highest(updates.Entries[fact.PinnedTo.Domain], fact.PinnedTo)
		}
	}
	for _, entry := range output.TimeMapUpdates {
		if entry.Domain != "" {
			updates.Entries[entry.Domain] = highest(updates.Entries[entry.Domain], entry)
		}
	}
	if updates.Len() > 0 {
		// stale entries skip silently inside Merge; a reorg surfaces
		if _, err := s.timemap.Merge(ctx, updates); err != nil {
			return nil, errors.Wrapf(err, "node %s failed advancing the time map", node.Id)
		}
	}

	return factIds, nil
}

func highest(a, b types.TimeMapEntry) types.TimeMapEntry {
	if a.Domain == "" || b.Height > a.Height {
		return b
	}
	return a
}

// lockOrder deduplicates the declared accesses (a write subsumes a read of
// the same lineage) and sorts them ascending so every node acquires in the
// same global order.
func lockOrder(accesses []types.ResourceAccess) []types.ResourceAccess {
	modes := make(map[types.LineageId]types.AccessMode, len(accesses))
	for _, access := range accesses {
		if current, ok := modes[access.Lineage]; !ok || access.Mode == types.AccessWrite && current == types.AccessRead {
			modes[access.Lineage] = access.Mode
		}
	}

	out := make([]types.ResourceAccess, 0, len(modes))
	for lineage, mode := range modes {
		out = append(out, types.ResourceAccess{Lineage: lineage, Mode: mode})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lineage < out[j].Lineage })
	return out
}
