// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package registry

import (
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/types"
)

// allowedFrom lists the states each lifecycle event may fire from.
// Initial -> Active -> (Locked <-> Active, Frozen <-> Active) -> Consumed or Archived
var allowedFrom = map[types.LifecycleEventKind][]types.RegisterState{
	types.LifecycleActivated: {types.RegisterInitial},
	types.LifecycleLocked:    {types.RegisterActive},
	types.LifecycleUnlocked:  {types.RegisterLocked},
	types.LifecycleFrozen:    {types.RegisterActive},
	types.LifecycleUnfrozen:  {types.RegisterFrozen},
	types.LifecycleConsumed:  {types.RegisterActive, types.RegisterLocked},
	types.LifecycleArchived:  {types.RegisterActive, types.RegisterLocked},
}

func validateTransition(from types.RegisterState, event types.LifecycleEventKind) error {
	switch from {
	case types.RegisterConsumed:
		return errors.Wrapf(types.ErrResourceConsumed, "register is consumed, %s refused", event)
	case types.RegisterArchived:
		return errors.Wrapf(types.ErrInvalidStateTransition, "register is archived, %s refused", event)
	}

	for _, state := range allowedFrom[event] {
		if state == from {
			return nil
		}
	}
	return errors.Wrapf(types.ErrInvalidStateTransition, "%s not allowed from state %s", event, from)
}

func writeRefusal(state types.RegisterState) error {
	switch state {
	case types.RegisterLocked:
		return errors.Wrap(types.ErrResourceLocked, "register is locked")
	case types.RegisterFrozen:
		return errors.Wrap(types.ErrResourceFrozen, "register is frozen")
	case types.RegisterConsumed:
		return errors.Wrap(types.ErrResourceConsumed, "register is consumed")
	default:
		return errors.Wrapf(types.ErrInvalidStateTransition, "writes not allowed in state %s", state)
	}
}
