// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

// EffectKind names what a node does; handlers register under
// (DomainId, EffectKind).
type EffectKind string

func (k EffectKind) String() string {
	return string(k)
}

// AccessMode is how a node touches a resource.
type AccessMode uint8

const (
	AccessRead AccessMode = iota + 1
	AccessWrite
)

func (m AccessMode) String() string {
	switch m {
	case AccessRead:
		return "Read"
	case AccessWrite:
		return "Write"
	}
	return "Unknown"
}

// NeededRight maps an access mode to the capability right it demands.
func (m AccessMode) NeededRight() Right {
	if m == AccessWrite {
		return RightWrite
	}
	return RightRead
}

// NeededLockKind maps an access mode to the lock it takes.
func (m AccessMode) NeededLockKind() LockKind {
	if m == AccessWrite {
		return LockExclusive
	}
	return LockShared
}

// ResourceAccess declares one resource a node reads or writes.
type ResourceAccess struct {
	Lineage LineageId
	Mode    AccessMode
}

// EffectNode is one unit of work in a graph.
type EffectNode struct {
	Id                   string
	Kind                 EffectKind
	Parameters           Metadata
	RequiredCapabilities []ContentId
	ResourceAccesses     []ResourceAccess
	Domain               DomainId
}

// EdgeConditionKind gates when an edge enables its target.
type EdgeConditionKind uint8

const (
	ConditionAlways EdgeConditionKind = iota + 1
	ConditionNever
	ConditionOnSuccess
	ConditionOnFailure
	ConditionOnValue
)

func (k EdgeConditionKind) String() string {
	switch k {
	case ConditionAlways:
		return "Always"
	case ConditionNever:
		return "Never"
	case ConditionOnSuccess:
		return "OnSuccess"
	case ConditionOnFailure:
		return "OnFailure"
	case ConditionOnValue:
		return "OnValue"
	}
	return "Unknown"
}

// ValuePredicate evaluates a predecessor's returned value for OnValue edges.
type ValuePredicate func(value []byte) bool

// EffectEdge connects two nodes. The predicate is runtime-only and excluded
// from canonical encoding; OnValue edges hash by their kind alone.
type EffectEdge struct {
	From      string
	To        string
	Condition EdgeConditionKind
	Predicate ValuePredicate `enc:"-"`
}

// NodeState tracks a node through execution.
type NodeState uint8

const (
	NodePending NodeState = iota
	NodeRunning
	NodeCompleted
	NodeFailed
	NodeSkipped
)

func (s NodeState) String() string {
	switch s {
	case NodePending:
		return "Pending"
	case NodeRunning:
		return "Running"
	case NodeCompleted:
		return "Completed"
	case NodeFailed:
		return "Failed"
	case NodeSkipped:
		return "Skipped"
	}
	return "Unknown"
}

// Terminal states participate in readiness decisions of successors.
func (s NodeState) Terminal() bool {
	return s == NodeCompleted || s == NodeFailed || s == NodeSkipped
}

// ExecutionStep is the persisted record of one executed node: what went in,
// what came out, and the snapshot it observed. Stored content-addressed.
type ExecutionStep struct {
	NodeId      string
	Kind        EffectKind
	Domain      DomainId
	Parameters  Metadata
	InputHeads  []ContentId
	OutputHeads []ContentId
	Facts       []ContentId
	Snapshot    ContentId
	StartedAt   TimestampNanos
	FinishedAt  TimestampNanos
}
