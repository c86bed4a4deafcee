// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package registry

import (
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/types"
)

func builtinLogicTable() map[types.LogicKind]services.LogicBehavior {
	return map[types.LogicKind]services.LogicBehavior{
		types.LogicFungible: {
			CanSplit:    true,
			CanMerge:    true,
			CanTransfer: true,
			Validate:    requireNonZeroQuantity,
		},
		types.LogicNonFungible: {
			CanTransfer: true,
			Validate:    requireUnitQuantity,
		},
		types.LogicCapability: {
			Validate: requireZeroQuantity,
		},
		types.LogicData: {
			Validate: requireZeroQuantity,
		},
	}
}

func requireNonZeroQuantity(input services.CreateRegisterInput) error {
	if input.Quantity.IsZero() {
		return errors.Wrap(types.ErrQuantityMismatch, "fungible register needs a non-zero quantity")
	}
	return nil
}

func requireUnitQuantity(input services.CreateRegisterInput) error {
	if input.Quantity.Cmp(types.QuantityOne) != 0 {
		return errors.Wrap(types.ErrQuantityMismatch, "non-fungible register quantity must be exactly one")
	}
	return nil
}

func requireZeroQuantity(input services.CreateRegisterInput) error {
	if !input.Quantity.IsZero() {
		return errors.Wrapf(types.ErrQuantityMismatch, "%s register carries no quantity", input.Logic)
	}
	return nil
}
