// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

import (
	"bytes"
	"sort"
)

// TimeMapEntry is the kernel's knowledge of one domain: the highest observed
// height with its hash and timestamp, plus when the kernel observed it.
type TimeMapEntry struct {
	Domain     DomainId
	Height     uint64
	Hash       []byte
	Timestamp  TimestampNanos
	ObservedAt TimestampNanos
}

func (e TimeMapEntry) Equal(other TimeMapEntry) bool {
	return e.Domain == other.Domain &&
		e.Height == other.Height &&
		bytes.Equal(e.Hash, other.Hash) &&
		e.Timestamp == other.Timestamp
}

// TimeMap maps domains to their latest entries. Values are working copies;
// the timemap service owns the shared instance and hands out copies and
// snapshots.
type TimeMap struct {
	Entries map[DomainId]TimeMapEntry
	Version uint64
}

func NewTimeMap() TimeMap {
	return TimeMap{Entries: make(map[DomainId]TimeMapEntry)}
}

func (m TimeMap) Get(d DomainId) (TimeMapEntry, bool) {
	e, ok := m.Entries[d]
	return e, ok
}

func (m TimeMap) Len() int {
	return len(m.Entries)
}

func (m TimeMap) Copy() TimeMap {
	out := TimeMap{Entries: make(map[DomainId]TimeMapEntry, len(m.Entries)), Version: m.Version}
	for d, e := range m.Entries {
		out.Entries[d] = e
	}
	return out
}

// Dominates is true iff for every domain in other, this map's entry has
// height >= other's. The empty map is dominated by everything.
func (m TimeMap) Dominates(other TimeMap) bool {
	for d, theirs := range other.Entries {
		ours, ok := m.Entries[d]
		if !ok || ours.Height < theirs.Height {
			return false
		}
	}
	return true
}

// Merge returns the pointwise max by height of the two maps. On equal
// heights the receiver's entry wins.
func (m TimeMap) Merge(other TimeMap) TimeMap {
	out := m.Copy()
	for d, theirs := range other.Entries {
		ours, ok := out.Entries[d]
		if !ok || theirs.Height > ours.Height {
			out.Entries[d] = theirs
		}
	}
	return out
}

func (m TimeMap) Filter(pred func(TimeMapEntry) bool) TimeMap {
	out := NewTimeMap()
	out.Version = m.Version
	for d, e := range m.Entries {
		if pred(e) {
			out.Entries[d] = e
		}
	}
	return out
}

// Sorted returns the entries ordered by domain id, the canonical order.
func (m TimeMap) Sorted() []TimeMapEntry {
	out := make([]TimeMapEntry, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// TimeMapSnapshot is an immutable, canonically ordered copy of the map at
// one version. Snapshots are content-hashed and persisted; registers and
// facts pin them by id.
type TimeMapSnapshot struct {
	Entries []TimeMapEntry // sorted by domain
	Version uint64
	TakenAt TimestampNanos
}

func (s *TimeMapSnapshot) Get(d DomainId) (TimeMapEntry, bool) {
	i := sort.Search(len(s.Entries), func(i int) bool { return s.Entries[i].Domain >= d })
	if i < len(s.Entries) && s.Entries[i].Domain == d {
		return s.Entries[i], true
	}
	return TimeMapEntry{}, false
}

func (s *TimeMapSnapshot) Len() int {
	return len(s.Entries)
}

// AsMap rehydrates a working TimeMap from the snapshot.
func (s *TimeMapSnapshot) AsMap() TimeMap {
	out := TimeMap{Entries: make(map[DomainId]TimeMapEntry, len(s.Entries)), Version: s.Version}
	for _, e := range s.Entries {
		out.Entries[e.Domain] = e
	}
	return out
}

// DominatesEntry is the single-domain form of domination used for fact
// pinning.
func (s *TimeMapSnapshot) DominatesEntry(e TimeMapEntry) bool {
	ours, ok := s.Get(e.Domain)
	return ok && ours.Height >= e.Height
}
