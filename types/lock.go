// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

import "time"

// LockKind is the mode of a resource lock.
type LockKind uint8

const (
	LockShared LockKind = iota + 1
	LockExclusive
	LockIntent
)

func (k LockKind) String() string {
	switch k {
	case LockShared:
		return "Shared"
	case LockExclusive:
		return "Exclusive"
	case LockIntent:
		return "Intent"
	}
	return "Unknown"
}

// CompatibleWith gives the exclusion matrix: Shared coexists with Shared and
// Intent; Intent only with Shared; Exclusive with nothing.
func (k LockKind) CompatibleWith(other LockKind) bool {
	switch k {
	case LockShared:
		return other == LockShared || other == LockIntent
	case LockIntent:
		return other == LockShared
	default:
		return false
	}
}

// LockRecord is one held lock.
type LockRecord struct {
	Lineage    LineageId
	Holder     Address
	Kind       LockKind
	AcquiredAt TimestampNanos
	Timeout    time.Duration // 0 means no expiry
	Txn        TransactionId
}

// Expired reports whether the record outlived its timeout at now.
func (r LockRecord) Expired(now time.Time) bool {
	if r.Timeout == 0 {
		return false
	}
	return now.Sub(r.AcquiredAt.Time()) >= r.Timeout
}
