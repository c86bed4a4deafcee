// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package canonical is the single encoding authority under every ContentId.
// It produces deterministic bytes: struct fields in declaration order,
// little-endian fixed-width integers, length-prefixed strings and slices, no
// padding. Model types keep themselves encodable by construction: sorted
// Metadata instead of maps, TimestampNanos instead of time.Time, presence
// flags instead of pointers, and `enc:"-"` on runtime-only fields.
package canonical

import (
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/cipher/encoder"

	"github.com/tempora-network/tempora-go/crypto/hash"
	"github.com/tempora-network/tempora-go/types"
)

// Encode serializes obj deterministically. Unsupported field kinds (maps,
// pointers, interfaces, funcs without enc:"-") are programmer errors and
// panic.
func Encode(obj interface{}) []byte {
	return encoder.Serialize(obj)
}

// Decode fills obj from canonical bytes. Trailing bytes are a decode error:
// a canonical encoding is exact or it is not that object.
func Decode(data []byte, obj interface{}) error {
	if err := encoder.DeserializeRawExact(data, obj); err != nil {
		return errors.Wrap(err, "canonical decode failed")
	}
	return nil
}

// ContentIdOf is the id every store keys by: SHA-256 over the canonical
// encoding.
func ContentIdOf(obj interface{}) types.ContentId {
	return hash.CalcSha256(Encode(obj))
}
