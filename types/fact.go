// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

import "strings"

// FactKind classifies an observation. The set mirrors what domains can
// answer about themselves; custom kinds are free-form.
type FactKind string

const (
	FactBalance     FactKind = "balance"
	FactTransaction FactKind = "transaction"
	FactBlock       FactKind = "block"
	FactOracle      FactKind = "oracle"
	FactRegister    FactKind = "register"
)

const customFactPrefix = "custom:"

func CustomFactKind(name string) FactKind {
	return FactKind(customFactPrefix + name)
}

func (k FactKind) IsCustom() bool {
	return strings.HasPrefix(string(k), customFactPrefix)
}

func (k FactKind) String() string {
	return string(k)
}

// Fact is an immutable observation made against a domain, pinned to the
// time-map entry it was observed at. Content-hashed like everything else.
type Fact struct {
	Domain    DomainId
	Kind      FactKind
	Height    uint64
	Hash      []byte
	Timestamp TimestampNanos
	Payload   []byte
	Proof     []byte // optional proof-carrying data, opaque to the kernel
	PinnedTo  TimeMapEntry
}

// FactQuery asks a domain for one fact. MaxHeight zero means latest.
type FactQuery struct {
	Domain     DomainId
	Kind       FactKind
	Parameters Metadata
	MinHeight  uint64
	MaxHeight  uint64
}

// Receipt reports the fate of a transaction submitted to a domain.
type Receipt struct {
	Txn     TransactionId
	Height  uint64
	Success bool
	Payload []byte
}
