// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
	"github.com/tempora-network/tempora-go/types"
	"sync/atomic"
)

// InMemoryStore keeps objects in a buntdb memory database, keyed by the hex
// of their content id.
type InMemoryStore struct {
	db    *buntdb.DB
	count int64
	bytes int64
}

func NewInMemoryStore() (*InMemoryStore, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory content store")
	}
	return &InMemoryStore{db: db}, nil
}

func (s *InMemoryStore) Write(id types.ContentId, data []byte) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, replaced, err := tx.Set(id.Hex(), string(data), nil)
		if err != nil {
			return err
		}
		if !replaced {
			atomic.AddInt64(&s.count, 1)
			atomic.AddInt64(&s.bytes, int64(len(data)))
		}
		return nil
	})
}

func (s *InMemoryStore) Read(id types.ContentId) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(id.Hex())
		if err == buntdb.ErrNotFound {
			return errors.Wrapf(types.ErrNotFound, "no object with id %s", id)
		}
		if err != nil {
			return err
		}
		data = []byte(value)
		return nil
	})
	return data, err
}

func (s *InMemoryStore) Exists(id types.ContentId) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(id.Hex())
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *InMemoryStore) Stats() (int64, int64, error) {
	return atomic.LoadInt64(&s.count), atomic.LoadInt64(&s.bytes), nil
}

func (s *InMemoryStore) Close() error {
	return s.db.Close()
}
