// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package synchronization

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// HeightTracker lets callers wait until a domain reaches a height. Advancing
// swaps a latch channel; waiters block on the latch instead of polling.
type HeightTracker struct {
	graceDistance uint16 // kept small on purpose; waiting across large gaps is a caller bug

	mutex         sync.RWMutex
	currentHeight uint64
	latch         chan struct{}
}

func NewHeightTracker(startingHeight uint64, graceDistance uint16) *HeightTracker {
	return &HeightTracker{
		currentHeight: startingHeight,
		graceDistance: graceDistance,
		latch:         make(chan struct{}),
	}
}

// Advance moves the tracker forward and wakes waiters. Heights never move
// backwards; a lower height is ignored.
func (t *HeightTracker) Advance(height uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if height <= t.currentHeight {
		return
	}
	t.currentHeight = height
	prevLatch := t.latch
	t.latch = make(chan struct{})
	close(prevLatch)
}

func (t *HeightTracker) CurrentHeight() uint64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.currentHeight
}

func (t *HeightTracker) readHeightAndLatch() (uint64, chan struct{}) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.currentHeight, t.latch
}

// WaitForHeight blocks until the tracker reaches requestedHeight or ctx
// ends. Requests beyond the grace distance fail immediately.
func (t *HeightTracker) WaitForHeight(ctx context.Context, requestedHeight uint64) error {
	currentHeight, currentLatch := t.readHeightAndLatch()

	if currentHeight >= requestedHeight {
		return nil
	}

	if currentHeight+uint64(t.graceDistance) < requestedHeight {
		return errors.Errorf("requested future height outside of grace range")
	}

	for currentHeight < requestedHeight {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "aborted while waiting for height %d", requestedHeight)
		case <-currentLatch:
			currentHeight, currentLatch = t.readHeightAndLatch()
		}
	}
	return nil
}
