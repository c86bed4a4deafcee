// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package services declares the public surface of every kernel service.
// Implementations live in the subpackages; the bootstrap wires them together.
package services

import (
	"context"
	"time"

	"github.com/tempora-network/tempora-go/services/effectgraph"
	"github.com/tempora-network/tempora-go/types"
)

// ContentStore is the append-only content-addressed object store. Objects are
// immutable; an id is the SHA-256 of the stored bytes.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (types.ContentId, error)
	Get(ctx context.Context, id types.ContentId) ([]byte, error)
	Has(ctx context.Context, id types.ContentId) (bool, error)
	Verify(ctx context.Context, id types.ContentId, data []byte) bool
	Size() (count int64, bytes int64)
}

type CreateRegisterInput struct {
	Logic        types.LogicKind
	Fungibility  types.FungibilityDomain
	Quantity     types.Quantity
	Metadata     types.Metadata
	Controller   types.Address
	NullifierKey []byte
}

// LogicBehavior is one row of the per-kind behavior table. Custom kinds
// register a row before first use; registration is append-only within a run.
type LogicBehavior struct {
	CanSplit    bool
	CanMerge    bool
	CanTransfer bool
	Validate    func(input CreateRegisterInput) error
}

// Registry holds the versioned resource registers (one lineage, many
// immutable versions, a single mutable head pointer per lineage).
type Registry interface {
	RegisterLogic(kind types.LogicKind, behavior LogicBehavior) error
	Create(ctx context.Context, input CreateRegisterInput) (*types.RegisterRecord, error)
	Read(ctx context.Context, lineage types.LineageId) (*types.RegisterRecord, error)
	ReadVersion(ctx context.Context, id types.ContentId) (*types.Register, error)
	Update(ctx context.Context, lineage types.LineageId, f func(types.Register) (types.Register, error)) (*types.RegisterRecord, error)
	TransitionState(ctx context.Context, lineage types.LineageId, event types.LifecycleEventKind, txn types.TransactionId) (*types.RegisterRecord, error)
	Consume(ctx context.Context, lineage types.LineageId, txn types.TransactionId) (*types.ConsumeReceipt, error)
	Split(ctx context.Context, lineage types.LineageId, amounts []types.Quantity, txn types.TransactionId) ([]*types.RegisterRecord, error)
	Merge(ctx context.Context, lineages []types.LineageId, txn types.TransactionId) (*types.RegisterRecord, error)
	StateRoot() types.ContentId
	HeadCount() int
}

// ValidationRequest describes one intended use of a capability. Txn names
// the transaction about to perform; exclusivity ignores marks held by the
// same transaction.
type ValidationRequest struct {
	Capability types.ContentId
	Invoker    types.Address
	Need       types.Right
	Target     types.LineageId
	Amount     *types.Quantity
	Purpose    string
	Now        time.Time
	Txn        types.TransactionId
}

// CapabilityGraph manages unforgeable authority tokens and their delegation
// relationships.
type CapabilityGraph interface {
	CreateRoot(ctx context.Context, holder types.Address, target types.LineageId, right types.Right, attributes types.Metadata) (*types.CapabilityRecord, error)
	Delegate(ctx context.Context, parent types.ContentId, delegatee types.Address, right types.Right, constraints []types.Constraint, purpose string) (*types.CapabilityRecord, error)
	Revoke(ctx context.Context, id types.ContentId, revoker types.Address, reason string, cascade bool) (int, error)
	Transfer(ctx context.Context, id types.ContentId, newHolder types.Address) (*types.CapabilityRecord, error)
	Compose(ctx context.Context, holder types.Address, children []types.ContentId) (*types.CapabilityRecord, error)
	CreateTemplate(ctx context.Context, from types.ContentId) (*types.CapabilityRecord, error)
	Instantiate(ctx context.Context, template types.ContentId, owner types.Address, target types.LineageId) (*types.CapabilityRecord, error)
	Validate(ctx context.Context, request ValidationRequest) error
	// ValidateAndBeginUse marks the token in use in the same critical
	// section that validates it, so two holders of mutually exclusive
	// tokens cannot both pass validation before either is marked.
	ValidateAndBeginUse(ctx context.Context, request ValidationRequest) error
	Get(ctx context.Context, id types.ContentId) (*types.CapabilityRecord, bool)
	BeginUse(id types.ContentId, txn types.TransactionId)
	EndUse(id types.ContentId, txn types.TransactionId)
}

// TimeMapService tracks per-domain observed time and hands out immutable
// snapshots for pinning.
type TimeMapService interface {
	Update(ctx context.Context, entry types.TimeMapEntry) (*types.TimeMap, error)
	Get(domain types.DomainId) (types.TimeMapEntry, bool)
	Current() types.TimeMap
	Snapshot(ctx context.Context) (*types.TimeMapSnapshot, error)
	Dominates(other types.TimeMap) bool
	Merge(ctx context.Context, other types.TimeMap) (*types.TimeMap, error)
	Filter(pred func(types.TimeMapEntry) bool) types.TimeMap
	History(n int) []types.TimeMapSnapshot
	WaitForHeight(ctx context.Context, domain types.DomainId, height uint64) error
}

// FactObserver answers queries about external domain state, pinned to a
// time-map snapshot.
type FactObserver interface {
	Observe(ctx context.Context, query types.FactQuery, pin *types.TimeMapSnapshot) (*types.Fact, error)
}

type AcquireOptions struct {
	Timeout time.Duration
	Txn     types.TransactionId
}

// LockService is the advisory lock table over register lineages.
type LockService interface {
	Acquire(ctx context.Context, lineage types.LineageId, kind types.LockKind, holder types.Address, opts AcquireOptions) error
	TryAcquire(lineage types.LineageId, kind types.LockKind, holder types.Address, txn types.TransactionId) error
	Release(ctx context.Context, lineage types.LineageId, holder types.Address) error
	IsLocked(lineage types.LineageId) bool
	Info(lineage types.LineageId) []types.LockRecord
}

// HandlerInput is what a domain handler gets for one effect node.
type HandlerInput struct {
	Node      types.EffectNode
	Params    types.Metadata
	Registers map[types.LineageId]types.RegisterRecord
	Snapshot  *types.TimeMapSnapshot
	Txn       types.TransactionId
}

// HandlerOutput carries everything a handler wants committed.
type HandlerOutput struct {
	NewValues      map[types.LineageId]types.Register
	Lifecycle      []types.LifecycleEvent
	Facts          []types.Fact
	TimeMapUpdates []types.TimeMapEntry
	Value          []byte
	Deterministic  bool
}

// Handler executes one effect kind for one domain.
type Handler interface {
	Execute(ctx context.Context, in HandlerInput) (*HandlerOutput, error)
}

// SubmitOptions names the invoker of a graph submission. Purpose is matched
// against Purpose constraints on the invoker's delegation chains; empty
// means the node's effect kind.
type SubmitOptions struct {
	Invoker types.Address
	Purpose string
}

// NodeResult is the terminal state of one node after a submission.
type NodeResult struct {
	State  types.NodeState
	Reason error
	Value  []byte
}

// SubmissionResult reports the fate of every node plus the time-map snapshot
// taken after the last commit.
type SubmissionResult struct {
	GraphId       types.ContentId
	Txn           types.TransactionId
	Nodes         map[string]NodeResult
	Steps         []types.ExecutionStep
	FinalSnapshot *types.TimeMapSnapshot
}

// Scheduler executes effect graphs: it resolves ready nodes, runs the
// per-node pipeline on a bounded worker pool and commits the results.
type Scheduler interface {
	RegisterHandler(domain types.DomainId, kind types.EffectKind, handler Handler) error
	Submit(ctx context.Context, graph *effectgraph.Graph, opts SubmitOptions) (*SubmissionResult, error)
}

// Connection speaks to one external domain.
type Connection interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	CurrentHash(ctx context.Context) ([]byte, error)
	CurrentTimestamp(ctx context.Context) (time.Time, error)
	ObserveFact(ctx context.Context, q types.FactQuery) (*types.Fact, error)
	SubmitTransaction(ctx context.Context, tx []byte) (types.TransactionId, error)
	TransactionReceipt(ctx context.Context, id types.TransactionId) (*types.Receipt, error)
	VerifyBlock(ctx context.Context, height uint64, hash []byte) (bool, error)
	CheckConnectivity(ctx context.Context) error
}

// Domain describes one registered external domain.
type Domain struct {
	Id            types.DomainId
	Kind          string
	FinalityDepth uint64
	ChainId       string
}

// DomainRegistry resolves registered domains and their connections.
type DomainRegistry interface {
	Register(domain Domain, conn Connection) error
	Get(id types.DomainId) (Domain, Connection, error)
	List() []Domain
	Connected(id types.DomainId) bool
}
