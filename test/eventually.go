// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package test

import (
	"time"

	"github.com/orbs-network/go-mock"
)

const iterationsEventually = 100
const iterationsConsistently = 20
const pollInterval = 5 * time.Millisecond

func Eventually(f func() bool) bool {
	for i := 0; i < iterationsEventually; i++ {
		if f() {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}

func Consistently(f func() bool) bool {
	for i := 0; i < iterationsConsistently; i++ {
		if !f() {
			return false
		}
		time.Sleep(pollInterval)
	}
	return true
}

func EventuallyVerify(mocks ...mock.HasVerify) error {
	verified := make([]bool, len(mocks))
	numVerified := 0
	var errExample error
	Eventually(func() bool {
		for i, m := range mocks {
			if !verified[i] {
				ok, err := m.Verify()
				if ok {
					verified[i] = true
					numVerified++
				} else {
					errExample = err
				}
			}
		}
		return numVerified == len(mocks)
	})
	if numVerified == len(mocks) {
		return nil
	}
	return errExample
}
