// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"sync"
)

// SnapshotPort persists canonical snapshot encodings keyed by version so a
// restarted kernel resumes from its last observed heights.
type SnapshotPort interface {
	Save(version uint64, data []byte) error
	Load(version uint64) ([]byte, bool, error)
	LatestVersion() (uint64, bool, error)
	Close() error
}

// InMemorySnapshotStore keeps snapshots for the lifetime of the process.
type InMemorySnapshotStore struct {
	mutex     sync.RWMutex
	snapshots map[uint64][]byte
	latest    uint64
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: make(map[uint64][]byte)}
}

func (s *InMemorySnapshotStore) Save(version uint64, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.snapshots[version] = stored
	if version > s.latest {
		s.latest = version
	}
	return nil
}

func (s *InMemorySnapshotStore) Load(version uint64) ([]byte, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data, ok := s.snapshots[version]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (s *InMemorySnapshotStore) LatestVersion() (uint64, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.latest, len(s.snapshots) > 0, nil
}

func (s *InMemorySnapshotStore) Close() error {
	return nil
}
