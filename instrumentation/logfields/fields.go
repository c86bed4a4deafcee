// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package logfields

import (
	"github.com/orbs-network/scribe/log"

	"github.com/tempora-network/tempora-go/types"
)

func ContentId(key string, id types.ContentId) *log.Field {
	return log.Stringable(key, id)
}

func Lineage(id types.LineageId) *log.Field {
	return log.String("lineage", string(id))
}

func Domain(id types.DomainId) *log.Field {
	return log.String("domain", string(id))
}

func Holder(a types.Address) *log.Field {
	return log.String("holder", string(a))
}

func Node(id string) *log.Field {
	return log.String("node", id)
}

func Txn(id types.TransactionId) *log.Field {
	return log.String("txn", string(id))
}

func Height(value uint64) *log.Field {
	return &log.Field{Key: "height", Uint: value, Type: log.UintType}
}

func TimestampNano(key string, value types.TimestampNanos) *log.Field {
	return &log.Field{Key: key, Int: int64(value), Type: log.TimeType}
}
