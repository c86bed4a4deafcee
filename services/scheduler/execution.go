// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/instrumentation/logfields"
	"github.com/tempora-network/tempora-go/instrumentation/trace"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/services/effectgraph"
	"github.com/tempora-network/tempora-go/types"
	"github.com/wangjia184/sortedset"
)

// outcome is what a worker reports back for one node.
type outcome struct {
	id     string
	state  types.NodeState
	reason error
	value  []byte
	step   *types.ExecutionStep
}

// execution is the instance state of one submission. Only the main loop
// goroutine touches it; workers communicate through channels.
type execution struct {
	service *service
	graph   *effectgraph.Graph
	opts    services.SubmitOptions
	txn     types.TransactionId
	logger  log.Logger

	depths  map[string]int
	states  map[string]types.NodeState
	reasons map[string]error
	values  map[string][]byte
	queued  map[string]bool
	ready   *sortedset.SortedSet
	steps   []types.ExecutionStep
}

func newExecution(s *service, graph *effectgraph.Graph, opts services.SubmitOptions, txn types.TransactionId, logger log.Logger) *execution {
	return &execution{
		service: s,
		graph:   graph,
		opts:    opts,
		txn:     txn,
		logger:  logger,
		depths:  graph.Depths(),
		states:  make(map[string]types.NodeState, graph.Len()),
		reasons: make(map[string]error),
		values:  make(map[string][]byte),
		queued:  make(map[string]bool),
		ready:   sortedset.New(),
	}
}

func (e *execution) run(ctx context.Context) (*services.SubmissionResult, error) {
	width := int(e.service.config.SchedulerMaxParallelNodes())
	if width < 1 {
		width = 1
	}

	// in-flight nodes run to natural termination even when the submission is
	// canceled, so workers get a context that carries the trace but not the
	// cancellation
	workerCtx := context.Background()
	if tc, ok := trace.FromContext(ctx); ok {
		workerCtx = trace.PropagateContext(workerCtx, tc)
	}

	workCh := make(chan types.EffectNode)
	doneCh := make(chan *outcome, width)

	var workers sync.WaitGroup
	for i := 0; i < width; i++ {
		workers.Add(1)
		govnr.Once(logfields.GovnrErrorer(e.logger), func() {
			defer workers.Done()
			for node := range workCh {
				doneCh <- e.service.runNode(workerCtx, e, node)
			}
		})
	}

	cancelled := false
	ctxDone := ctx.Done()
	inFlight := 0
	e.refreshReady()

	for {
		if !cancelled {
			for inFlight < width {
				node, ok := e.popReady()
				if !ok {
					break
				}
				e.setState(node.Id, types.NodeRunning, nil)
				inFlight++
				e.service.metrics.inFlight.Inc()
				workCh <- node
			}
		}

		if inFlight == 0 {
			break
		}

		select {
		case out := <-doneCh:
			inFlight--
			e.service.metrics.inFlight.Dec()
			e.apply(out)
			e.refreshReady()
		case <-ctxDone:
			cancelled = true
			ctxDone = nil
			e.logger.Info("submission canceled, in-flight nodes run to termination")
		}
	}

	close(workCh)
	workers.Wait()

	var runErr error
	if cancelled {
		e.failRemaining()
		runErr = errors.Wrap(types.ErrCancelRequested, "submission canceled before every node ran")
	}

	return e.result(workerCtx), runErr
}

// refreshReady scans pending nodes until a fixpoint: nodes whose conditions
// can still be met queue by depth; nodes whose conditions can no longer be
// met are skipped, which may cascade.
func (e *execution) refreshReady() {
	for changed := true; changed; {
		changed = false
		for _, node := range e.graph.Nodes {
			if e.states[node.Id] != types.NodePending || e.queued[node.Id] {
				continue
			}
			enabled, dead, why := e.evaluate(node.Id)
			if dead {
				e.setState(node.Id, types.NodeSkipped, why)
				e.service.metrics.skipped.Measure(1)
				changed = true
				continue
			}
			if enabled {
				e.queued[node.Id] = true
				e.ready.AddOrUpdate(node.Id, sortedset.SCORE(e.depths[node.Id]), node)
			}
		}
	}
}

// evaluate decides a pending node's fate from its incoming edges. Never
// edges are documentation and do not gate scheduling. All other edges must
// enable together; a terminal predecessor that fails its edge condition
// makes the node permanently unrunnable.
func (e *execution) evaluate(id string) (enabled bool, dead bool, why error) {
	enabled = true
	for _, edge := range e.graph.Incoming(id) {
		if edge.Condition == types.ConditionNever {
			continue
		}
		pred := e.states[edge.From]
		if !pred.Terminal() {
			enabled = false
			continue
		}
		switch edge.Condition {
		case types.ConditionOnSuccess:
			if pred != types.NodeCompleted {
				return false, true, errors.Errorf("predecessor %s finished %s, edge requires success", edge.From, pred)
			}
		case types.ConditionOnFailure:
			if pred != types.NodeFailed {
				return false, true, errors.Errorf("predecessor %s finished %s, edge requires failure", edge.From, pred)
			}
		case types.ConditionOnValue:
			if pred != types.NodeCompleted {
				return false, true, errors.Errorf("predecessor %s finished %s, edge requires a value", edge.From, pred)
			}
			if edge.Predicate == nil || !edge.Predicate(e.values[edge.From]) {
				return false, true, errors.Errorf("value of predecessor %s fails the edge predicate", edge.From)
			}
		}
	}
	return enabled, false, nil
}

func (e *execution) popReady() (types.EffectNode, bool) {
	min := e.ready.PeekMin()
	if min == nil {
		return types.EffectNode{}, false
	}
	e.ready.Remove(min.Key())
	return min.Value.(types.EffectNode), true
}

func (e *execution) apply(out *outcome) {
	e.setState(out.id, out.state, out.reason)
	if out.value != nil {
		e.values[out.id] = out.value
	}
	if out.step != nil {
		e.steps = append(e.steps, *out.step)
	}
	switch out.state {
	case types.NodeCompleted:
		e.service.metrics.completed.Measure(1)
	case types.NodeFailed:
		e.service.metrics.failed.Measure(1)
		e.logger.Info("node failed", logfields.Node(out.id), log.Error(out.reason))
	}
}

func (e *execution) setState(id string, state types.NodeState, reason error) {
	e.states[id] = state
	if reason != nil {
		e.reasons[id] = reason
	}

	fields := map[string]string{"state": state.String()}
	if reason != nil {
		fields["reason"] = reason.Error()
	}
	e.service.bus.Publish(types.Event{
		Kind:      types.EventNodeStateChanged,
		Subject:   id,
		Timestamp: types.NanosFromTime(time.Now()),
		Txn:       e.txn,
		Fields:    types.NewMetadata(fields),
	})
}

// failRemaining marks every node the canceled loop never dispatched.
func (e *execution) failRemaining() {
	for _, node := range e.graph.Nodes {
		if !e.states[node.Id].Terminal() {
			e.setState(node.Id, types.NodeFailed, errors.Wrap(types.ErrCancelRequested, "submission canceled"))
			e.service.metrics.failed.Measure(1)
		}
	}
}

func (e *execution) count(state types.NodeState) int {
	n := 0
	for _, s := range e.states {
		if s == state {
			n++
		}
	}
	return n
}

func (e *execution) result(ctx context.Context) *services.SubmissionResult {
	nodes := make(map[string]services.NodeResult, e.graph.Len())
	for _, node := range e.graph.Nodes {
		nodes[node.Id] = services.NodeResult{
			State:  e.states[node.Id],
			Reason: e.reasons[node.Id],
			Value:  e.values[node.Id],
		}
	}

	snapshot, err := e.service.timemap.Snapshot(ctx)
	if err != nil {
		e.logger.Error("failed taking the final time-map snapshot", log.Error(err))
	}

	return &services.SubmissionResult{
		Txn:           e.txn,
		Nodes:         nodes,
		Steps:         e.steps,
		FinalSnapshot: snapshot,
	}
}
