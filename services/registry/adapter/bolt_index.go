// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/types"
	"time"
)

var headsBucket = []byte("heads")
var nullifiersBucket = []byte("nullifiers")

// BoltHeadIndex persists the head map so lineage heads survive a restart.
type BoltHeadIndex struct {
	db *bolt.DB
}

func NewBoltHeadIndex(filePath string) (*BoltHeadIndex, error) {
	db, err := bolt.Open(filePath, 0644, &bolt.Options{
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open head index at %s", filePath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(headsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(nullifiersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create index buckets")
	}

	return &BoltHeadIndex{db: db}, nil
}

func (i *BoltHeadIndex) Swap(lineage types.LineageId, id types.ContentId) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(headsBucket).Put([]byte(lineage), id.Bytes())
	})
}

func (i *BoltHeadIndex) Lookup(lineage types.LineageId) (types.ContentId, bool, error) {
	var id types.ContentId
	var found bool
	err := i.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(headsBucket).Get([]byte(lineage))
		if value == nil {
			return nil
		}
		decoded, err := types.ContentIdFromBytes(value)
		if err != nil {
			return errors.Wrapf(err, "corrupt head entry for lineage %s", lineage)
		}
		id = decoded
		found = true
		return nil
	})
	return id, found, err
}

func (i *BoltHeadIndex) Range(f func(lineage types.LineageId, id types.ContentId) bool) error {
	err := i.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(headsBucket).ForEach(func(k, v []byte) error {
			id, err := types.ContentIdFromBytes(v)
			if err != nil {
				return errors.Wrapf(err, "corrupt head entry for lineage %s", k)
			}
			if !f(types.LineageId(k), id) {
				return errStopIteration
			}
			return nil
		})
	})
	if err == errStopIteration {
		return nil
	}
	return err
}

var errStopIteration = errors.New("stop iteration")

func (i *BoltHeadIndex) Count() (int, error) {
	var count int
	err := i.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(headsBucket).Stats().KeyN
		return nil
	})
	return count, err
}

func (i *BoltHeadIndex) RecordNullifier(n types.Nullifier) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(nullifiersBucket).Put(n.Tag.Bytes(), canonical.Encode(n))
	})
}

func (i *BoltHeadIndex) HasNullifier(tag types.ContentId) (bool, error) {
	var exists bool
	err := i.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(nullifiersBucket).Get(tag.Bytes()) != nil
		return nil
	})
	return exists, err
}

func (i *BoltHeadIndex) Close() error {
	return i.db.Close()
}
