// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"github.com/tempora-network/tempora-go/types"
)

// StoragePort persists immutable content-addressed objects. Implementations
// must be safe for concurrent use; Write of an existing id overwrites with
// identical bytes (the service guards equality before calling).
type StoragePort interface {
	Write(id types.ContentId, data []byte) error
	Read(id types.ContentId) ([]byte, error)
	Exists(id types.ContentId) (bool, error)
	Stats() (count int64, bytes int64, err error)
	Close() error
}
