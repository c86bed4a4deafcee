// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// log fields built with log.Stringable need these to satisfy fmt.Stringer
var (
	_ fmt.Stringer = EffectKind("")
	_ fmt.Stringer = FactKind("")
	_ fmt.Stringer = Right("")
	_ fmt.Stringer = LogicKind("")
	_ fmt.Stringer = LockKind(0)
	_ fmt.Stringer = ContentId{}
)

func TestEffectKindStringIsItsName(t *testing.T) {
	require.Equal(t, "split-transfer", EffectKind("split-transfer").String())
}

func TestAccessModeNeededRight(t *testing.T) {
	require.Equal(t, RightRead, AccessRead.NeededRight())
	require.Equal(t, RightWrite, AccessWrite.NeededRight())
}

func TestAccessModeNeededLockKind(t *testing.T) {
	require.Equal(t, LockShared, AccessRead.NeededLockKind())
	require.Equal(t, LockExclusive, AccessWrite.NeededLockKind())
}
