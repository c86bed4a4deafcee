// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"github.com/tempora-network/tempora-go/types"
	"sync"
)

// HeadIndex tracks the current head version of every lineage plus the
// nullifier set. Implementations must be safe for concurrent use.
type HeadIndex interface {
	Swap(lineage types.LineageId, id types.ContentId) error
	Lookup(lineage types.LineageId) (types.ContentId, bool, error)
	Range(f func(lineage types.LineageId, id types.ContentId) bool) error
	Count() (int, error)
	RecordNullifier(n types.Nullifier) error
	HasNullifier(tag types.ContentId) (bool, error)
	Close() error
}

type InMemoryHeadIndex struct {
	sync.RWMutex
	heads      map[types.LineageId]types.ContentId
	nullifiers map[types.ContentId]types.Nullifier
}

func NewInMemoryHeadIndex() *InMemoryHeadIndex {
	return &InMemoryHeadIndex{
		heads:      make(map[types.LineageId]types.ContentId),
		nullifiers: make(map[types.ContentId]types.Nullifier),
	}
}

func (i *InMemoryHeadIndex) Swap(lineage types.LineageId, id types.ContentId) error {
	i.Lock()
	defer i.Unlock()
	i.heads[lineage] = id
	return nil
}

func (i *InMemoryHeadIndex) Lookup(lineage types.LineageId) (types.ContentId, bool, error) {
	i.RLock()
	defer i.RUnlock()
	id, ok := i.heads[lineage]
	return id, ok, nil
}

func (i *InMemoryHeadIndex) Range(f func(lineage types.LineageId, id types.ContentId) bool) error {
	i.RLock()
	defer i.RUnlock()
	for lineage, id := range i.heads {
		if !f(lineage, id) {
			return nil
		}
	}
	return nil
}

func (i *InMemoryHeadIndex) Count() (int, error) {
	i.RLock()
	defer i.RUnlock()
	return len(i.heads), nil
}

func (i *InMemoryHeadIndex) RecordNullifier(n types.Nullifier) error {
	i.Lock()
	defer i.Unlock()
	i.nullifiers[n.Tag] = n
	return nil
}

func (i *InMemoryHeadIndex) HasNullifier(tag types.ContentId) (bool, error) {
	i.RLock()
	defer i.RUnlock()
	_, ok := i.nullifiers[tag]
	return ok, nil
}

func (i *InMemoryHeadIndex) Close() error {
	return nil
}
