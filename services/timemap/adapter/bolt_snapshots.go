// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var snapshotsBucket = []byte("timemaps")

// BoltSnapshotStore persists snapshots to disk, keyed by big-endian version
// so the bucket cursor walks them in order.
type BoltSnapshotStore struct {
	db *bolt.DB
}

func NewBoltSnapshotStore(filePath string) (*BoltSnapshotStore, error) {
	db, err := bolt.Open(filePath, 0644, &bolt.Options{
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open snapshot store at %s", filePath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create snapshots bucket")
	}

	return &BoltSnapshotStore{db: db}, nil
}

func versionKey(version uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, version)
	return key
}

func (s *BoltSnapshotStore) Save(version uint64, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotsBucket).Put(versionKey(version), data)
	})
}

func (s *BoltSnapshotStore) Load(version uint64) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(snapshotsBucket).Get(versionKey(version))
		if stored == nil {
			return nil
		}
		data = make([]byte, len(stored))
		copy(data, stored)
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed loading snapshot version %d", version)
	}
	return data, data != nil, nil
}

func (s *BoltSnapshotStore) LatestVersion() (uint64, bool, error) {
	var latest uint64
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		key, _ := tx.Bucket(snapshotsBucket).Cursor().Last()
		if key != nil {
			latest = binary.BigEndian.Uint64(key)
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, false, errors.Wrap(err, "failed finding latest snapshot")
	}
	return latest, found, nil
}

func (s *BoltSnapshotStore) Close() error {
	return s.db.Close()
}
