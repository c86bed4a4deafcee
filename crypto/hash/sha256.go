// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package hash

import (
	"crypto/sha256"

	"github.com/tempora-network/tempora-go/types"
)

const SHA256_HASH_SIZE_BYTES = 32

// CalcSha256 hashes the concatenation of the given byte slices into a
// ContentId.
func CalcSha256(data ...[]byte) types.ContentId {
	if len(data) == 1 {
		return sha256.Sum256(data[0])
	}
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var id types.ContentId
	copy(id[:], h.Sum(nil))
	return id
}
