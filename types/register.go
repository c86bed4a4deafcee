// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

import "strings"

// LogicKind tags the behavior family of a register. Custom kinds carry a
// name and must be registered with the registry's logic table before use.
type LogicKind string

const (
	LogicFungible    LogicKind = "fungible"
	LogicNonFungible LogicKind = "non-fungible"
	LogicCapability  LogicKind = "capability"
	LogicData        LogicKind = "data"
)

const customLogicPrefix = "custom:"

func CustomLogicKind(name string) LogicKind {
	return LogicKind(customLogicPrefix + name)
}

func (k LogicKind) IsCustom() bool {
	return strings.HasPrefix(string(k), customLogicPrefix)
}

func (k LogicKind) String() string {
	return string(k)
}

// RegisterState is the lifecycle state of a register version.
type RegisterState uint8

const (
	RegisterInitial RegisterState = iota
	RegisterActive
	RegisterLocked
	RegisterFrozen
	RegisterConsumed
	RegisterArchived
)

func (s RegisterState) String() string {
	switch s {
	case RegisterInitial:
		return "Initial"
	case RegisterActive:
		return "Active"
	case RegisterLocked:
		return "Locked"
	case RegisterFrozen:
		return "Frozen"
	case RegisterConsumed:
		return "Consumed"
	case RegisterArchived:
		return "Archived"
	}
	return "Unknown"
}

// Terminal states accept no further transitions.
func (s RegisterState) Terminal() bool {
	return s == RegisterConsumed || s == RegisterArchived
}

// AllowsWrite reports whether a head in this state may take a new version.
// Archived heads stay readable.
func (s RegisterState) AllowsWrite() bool {
	return s == RegisterInitial || s == RegisterActive
}

// Register is one immutable version of a resource. Its id is the ContentId
// of its canonical encoding and is never stored inside the record.
type Register struct {
	Lineage      LineageId
	Logic        LogicKind
	Fungibility  FungibilityDomain
	Quantity     Quantity
	Metadata     Metadata
	State        RegisterState
	NullifierKey []byte
	Controller   Address
	ObservedAt   ContentId // TimeMapSnapshot id pinned at the last write
	Version      uint64
	Prev         ContentId
}

// RegisterRecord pairs a register version with the id it is stored under.
type RegisterRecord struct {
	Id       ContentId
	Register Register
}

// Mergeable applies the fungibility rule: same logic kind, same fungibility
// domain, both Active. Whether the kind merges at all is the logic table's
// call.
func (r Register) Mergeable(other Register) bool {
	return r.Logic == other.Logic &&
		r.Fungibility == other.Fungibility &&
		r.State == RegisterActive &&
		other.State == RegisterActive
}

// LifecycleEventKind names a register lifecycle transition.
type LifecycleEventKind uint8

const (
	LifecycleCreated LifecycleEventKind = iota + 1
	LifecycleActivated
	LifecycleLocked
	LifecycleUnlocked
	LifecycleFrozen
	LifecycleUnfrozen
	LifecycleConsumed
	LifecycleArchived
	LifecycleUpdated
)

func (k LifecycleEventKind) String() string {
	switch k {
	case LifecycleCreated:
		return "Created"
	case LifecycleActivated:
		return "Activated"
	case LifecycleLocked:
		return "Locked"
	case LifecycleUnlocked:
		return "Unlocked"
	case LifecycleFrozen:
		return "Frozen"
	case LifecycleUnfrozen:
		return "Unfrozen"
	case LifecycleConsumed:
		return "Consumed"
	case LifecycleArchived:
		return "Archived"
	case LifecycleUpdated:
		return "Updated"
	}
	return "Unknown"
}

// TargetState maps an event to the state it drives a register into.
// Updated changes the version, not the state, and reports false.
func (k LifecycleEventKind) TargetState() (RegisterState, bool) {
	switch k {
	case LifecycleCreated:
		return RegisterInitial, true
	case LifecycleActivated, LifecycleUnlocked, LifecycleUnfrozen:
		return RegisterActive, true
	case LifecycleLocked:
		return RegisterLocked, true
	case LifecycleFrozen:
		return RegisterFrozen, true
	case LifecycleConsumed:
		return RegisterConsumed, true
	case LifecycleArchived:
		return RegisterArchived, true
	}
	return 0, false
}

// LifecycleEvent is emitted during committed effects and applied by the
// registry.
type LifecycleEvent struct {
	Kind    LifecycleEventKind
	Lineage LineageId
	Txn     TransactionId
	At      TimestampNanos
}

// Nullifier is the one-time consumption tag of a register version:
// H(nullifier_key || consumed version id). Recording the same tag twice is
// rejected, which is what makes consumption one-time.
type Nullifier struct {
	Tag             ContentId
	Lineage         LineageId
	ConsumedVersion ContentId
	RecordedAt      TimestampNanos
}

// ConsumeReceipt reports a completed consumption.
type ConsumeReceipt struct {
	Consumed  RegisterRecord
	Nullifier *Nullifier
}
