// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/types"
	"time"
)

var objectsBucket = []byte("objects")

// DriveStore persists objects in a boltdb file, ids as raw 32-byte keys.
type DriveStore struct {
	db *bolt.DB
}

func NewDriveStore(filePath string) (*DriveStore, error) {
	db, err := bolt.Open(filePath, 0644, &bolt.Options{
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open content store at %s", filePath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create objects bucket")
	}

	return &DriveStore{db: db}, nil
}

func (s *DriveStore) Write(id types.ContentId, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(objectsBucket).Put(id.Bytes(), data)
	})
}

func (s *DriveStore) Read(id types.ContentId) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(objectsBucket).Get(id.Bytes())
		if value == nil {
			return errors.Wrapf(types.ErrNotFound, "no object with id %s", id)
		}
		// value is only valid inside the tx
		data = append([]byte(nil), value...)
		return nil
	})
	return data, err
}

func (s *DriveStore) Exists(id types.ContentId) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(objectsBucket).Get(id.Bytes()) != nil
		return nil
	})
	return exists, err
}

func (s *DriveStore) Stats() (int64, int64, error) {
	var count, bytes int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		count = int64(b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			bytes += int64(len(v))
			return nil
		})
	})
	return count, bytes, err
}

func (s *DriveStore) Close() error {
	return s.db.Close()
}
