// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

// EventKind names an observable kernel event.
type EventKind string

const (
	EventRegisterLifecycle EventKind = "register-lifecycle"
	EventLockAcquired      EventKind = "lock-acquired"
	EventLockReleased      EventKind = "lock-released"
	EventNodeStateChanged  EventKind = "node-state-changed"
	EventTimeMapUpdated    EventKind = "time-map-updated"
)

// Event is a pure observation record. The kernel publishes these and never
// reacts to them.
type Event struct {
	Kind      EventKind
	Subject   string
	Timestamp TimestampNanos
	Txn       TransactionId
	Fields    Metadata
}
