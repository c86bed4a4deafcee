// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package types holds the shared data model of the kernel: identifiers,
// registers, capabilities, time maps, facts, effect graphs, locks and the
// typed error kinds. Everything here is either a value type or a small
// immutable record; services own all mutation.
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ContentId is the 256-bit hash of an object's canonical binary encoding.
// Two objects with equal encodings have equal ids; the store has no other
// notion of identity.
type ContentId [32]byte

var EmptyContentId = ContentId{}

func (id ContentId) IsZero() bool {
	return id == EmptyContentId
}

func (id ContentId) Hex() string {
	return hex.EncodeToString(id[:])
}

// String returns a shortened hex form for logs; use Hex for the full id.
func (id ContentId) String() string {
	return hex.EncodeToString(id[:8])
}

func (id ContentId) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

func (id ContentId) Compare(other ContentId) int {
	return bytes.Compare(id[:], other[:])
}

func (id ContentId) Equal(other ContentId) bool {
	return id == other
}

func ContentIdFromBytes(b []byte) (ContentId, error) {
	var id ContentId
	if len(b) != len(id) {
		return EmptyContentId, errors.Errorf("content id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

func ContentIdFromHex(s string) (ContentId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return EmptyContentId, errors.Wrap(err, "content id is not valid hex")
	}
	return ContentIdFromBytes(b)
}

// LineageId names a resource across all of its versions. Minted once at
// register creation and carried inside every version.
type LineageId string

func NewLineageId() LineageId {
	return LineageId(uuid.New().String())
}

func (l LineageId) String() string {
	return string(l)
}

// TransactionId groups the work of one graph submission; locks taken under
// the same transaction are reentrant.
type TransactionId string

func NewTransactionId() TransactionId {
	return TransactionId(uuid.New().String())
}

func (t TransactionId) String() string {
	return string(t)
}

// Address identifies a holder or controller. Opaque to the kernel.
type Address string

func (a Address) String() string {
	return string(a)
}

// DomainId identifies an external world (typically a chain).
type DomainId string

func (d DomainId) String() string {
	return string(d)
}

// FungibilityDomain groups interchangeable fungible resources.
type FungibilityDomain string

// TimestampNanos is a wall-clock instant in unix nanoseconds. Canonical
// encodings carry these instead of time.Time.
type TimestampNanos int64

func NanosFromTime(t time.Time) TimestampNanos {
	return TimestampNanos(t.UnixNano())
}

func (t TimestampNanos) Time() time.Time {
	return time.Unix(0, int64(t))
}

func (t TimestampNanos) String() string {
	return t.Time().UTC().Format(time.RFC3339Nano)
}

// Quantity is an unsigned 128-bit amount. Fungible registers carry arbitrary
// quantities; non-fungible and capability registers carry exactly one.
type Quantity struct {
	Hi uint64
	Lo uint64
}

func QuantityFromUint64(v uint64) Quantity {
	return Quantity{Lo: v}
}

var QuantityOne = Quantity{Lo: 1}

func (q Quantity) IsZero() bool {
	return q.Hi == 0 && q.Lo == 0
}

func (q Quantity) Cmp(other Quantity) int {
	if q.Hi != other.Hi {
		if q.Hi < other.Hi {
			return -1
		}
		return 1
	}
	if q.Lo != other.Lo {
		if q.Lo < other.Lo {
			return -1
		}
		return 1
	}
	return 0
}

func (q Quantity) Add(other Quantity) (Quantity, error) {
	lo := q.Lo + other.Lo
	carry := uint64(0)
	if lo < q.Lo {
		carry = 1
	}
	hi := q.Hi + other.Hi + carry
	if hi < q.Hi || (carry == 1 && hi == q.Hi) {
		return Quantity{}, errors.Errorf("quantity overflow adding %s to %s", other, q)
	}
	return Quantity{Hi: hi, Lo: lo}, nil
}

func (q Quantity) Sub(other Quantity) (Quantity, error) {
	if q.Cmp(other) < 0 {
		return Quantity{}, errors.Errorf("quantity underflow subtracting %s from %s", other, q)
	}
	lo := q.Lo - other.Lo
	hi := q.Hi - other.Hi
	if q.Lo < other.Lo {
		hi--
	}
	return Quantity{Hi: hi, Lo: lo}, nil
}

func (q Quantity) String() string {
	if q.Hi == 0 {
		return strconv.FormatUint(q.Lo, 10)
	}
	return fmt.Sprintf("0x%x%016x", q.Hi, q.Lo)
}

// MetadataEntry is one key/value pair of a Metadata set.
type MetadataEntry struct {
	Key   string
	Value string
}

// Metadata is a key-to-value mapping kept sorted by key so that insertion
// order never leaks into the canonical encoding.
type Metadata []MetadataEntry

func NewMetadata(m map[string]string) Metadata {
	out := make(Metadata, 0, len(m))
	for k, v := range m {
		out = append(out, MetadataEntry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (m Metadata) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// With returns a copy with key set to value, preserving sort order.
func (m Metadata) With(key string, value string) Metadata {
	out := make(Metadata, 0, len(m)+1)
	inserted := false
	for _, e := range m {
		if e.Key == key {
			out = append(out, MetadataEntry{Key: key, Value: value})
			inserted = true
			continue
		}
		if !inserted && e.Key > key {
			out = append(out, MetadataEntry{Key: key, Value: value})
			inserted = true
		}
		out = append(out, e)
	}
	if !inserted {
		out = append(out, MetadataEntry{Key: key, Value: value})
	}
	return out
}

func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if m[i] != other[i] {
			return false
		}
	}
	return true
}

func (m Metadata) Copy() Metadata {
	out := make(Metadata, len(m))
	copy(out, m)
	return out
}
