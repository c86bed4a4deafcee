// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

import (
	"strings"
	"time"
)

// Right is the single permission a capability grants. Custom rights match by
// string equality only; there is no hierarchy among them.
type Right string

const (
	RightRead     Right = "read"
	RightWrite    Right = "write"
	RightDelete   Right = "delete"
	RightTransfer Right = "transfer"
	RightDelegate Right = "delegate"
)

const customRightPrefix = "custom:"

func CustomRight(name string) Right {
	return Right(customRightPrefix + name)
}

func (r Right) IsCustom() bool {
	return strings.HasPrefix(string(r), customRightPrefix)
}

func (r Right) String() string {
	return string(r)
}

// Covers reports whether holding r satisfies a need. Write subsumes Read;
// everything else matches exactly.
func (r Right) Covers(need Right) bool {
	if r == need {
		return true
	}
	return r == RightWrite && need == RightRead
}

// Implied expands a right into the full set it covers.
func (r Right) Implied() []Right {
	if r == RightWrite {
		return []Right{RightWrite, RightRead}
	}
	return []Right{r}
}

// CapabilityKind distinguishes how a token came to exist.
type CapabilityKind uint8

const (
	CapabilityRoot CapabilityKind = iota + 1
	CapabilityDelegated
	CapabilityComposed
	CapabilityTemplate
)

func (k CapabilityKind) String() string {
	switch k {
	case CapabilityRoot:
		return "Root"
	case CapabilityDelegated:
		return "Delegated"
	case CapabilityComposed:
		return "Composed"
	case CapabilityTemplate:
		return "Template"
	}
	return "Unknown"
}

// ConstraintKind tags the delegation constraint variants.
type ConstraintKind uint8

const (
	ConstraintTemporal ConstraintKind = iota + 1
	ConstraintQuantity
	ConstraintExclusivity
	ConstraintPurpose
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintTemporal:
		return "Temporal"
	case ConstraintQuantity:
		return "Quantity"
	case ConstraintExclusivity:
		return "Exclusivity"
	case ConstraintPurpose:
		return "Purpose"
	}
	return "Unknown"
}

// Constraint is a flattened tagged variant; only the fields of the tagged
// kind are meaningful. Kept flat so the canonical encoder stays schema-free.
type Constraint struct {
	Kind           ConstraintKind
	NotBefore      TimestampNanos
	NotAfter       TimestampNanos
	MaxQuantity    Quantity
	ExclusiveAmong []ContentId
	PurposeLabel   string
}

func TemporalConstraint(notBefore time.Time, notAfter time.Time) Constraint {
	c := Constraint{Kind: ConstraintTemporal}
	if !notBefore.IsZero() {
		c.NotBefore = NanosFromTime(notBefore)
	}
	if !notAfter.IsZero() {
		c.NotAfter = NanosFromTime(notAfter)
	}
	return c
}

func QuantityConstraint(max Quantity) Constraint {
	return Constraint{Kind: ConstraintQuantity, MaxQuantity: max}
}

func ExclusivityConstraint(among ...ContentId) Constraint {
	return Constraint{Kind: ConstraintExclusivity, ExclusiveAmong: among}
}

func PurposeConstraint(label string) Constraint {
	return Constraint{Kind: ConstraintPurpose, PurposeLabel: label}
}

// Delegation records how a Delegated token hangs off its parent.
type Delegation struct {
	Parent      ContentId
	Delegator   Address
	Purpose     string
	Constraints []Constraint
	DelegatedAt TimestampNanos
}

// Capability is the immutable creation-time content of a token. Its id is
// the ContentId of its canonical encoding; revocation and transfer marks
// live in the capability index, never in the token.
type Capability struct {
	Holder     Address
	Target     LineageId
	Right      Right
	Kind       CapabilityKind
	Delegation Delegation  // delegation record for Delegated tokens; Composed tokens carry their constraint union here
	Composes   []ContentId // children, only when Kind == CapabilityComposed
	Attributes Metadata
	IssuedAt   TimestampNanos
	Nonce      string
}

// CapabilityRecord pairs a token with the id it is stored under. The Holder
// field reflects the effective holder after transfers; the stored object
// keeps the creation-time holder.
type CapabilityRecord struct {
	Id         ContentId
	Capability Capability
}

// Attribute flags understood by the kernel. Any value other than the literal
// "false" counts as permitted.
const (
	AttrDelegatable  = "delegatable"
	AttrTransferable = "transferable"
)

func (c *Capability) Delegatable() bool {
	v, ok := c.Attributes.Get(AttrDelegatable)
	return !ok || v != "false"
}

func (c *Capability) Transferable() bool {
	v, ok := c.Attributes.Get(AttrTransferable)
	return !ok || v != "false"
}

func (c *Capability) IsTemplate() bool {
	return c.Kind == CapabilityTemplate
}

// Revocation marks a token (and, under cascade, its descendants) dead.
type Revocation struct {
	RevokedBy Address
	Reason    string
	RevokedAt TimestampNanos
}
