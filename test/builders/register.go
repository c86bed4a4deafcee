// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

// Package builders creates kernel data structures for tests, defaults first.
package builders

import (
	"github.com/tempora-network/tempora-go/services"
	"github.com/tempora-network/tempora-go/types"
)

type registerInput struct {
	input services.CreateRegisterInput
}

// RegisterInput defaults to a fungible 100 USD register controlled by alice.
func RegisterInput() *registerInput {
	return &registerInput{
		input: services.CreateRegisterInput{
			Logic:       types.LogicFungible,
			Fungibility: "USD",
			Quantity:    types.QuantityFromUint64(100),
			Controller:  "alice",
		},
	}
}

func (b *registerInput) WithLogic(kind types.LogicKind) *registerInput {
	b.input.Logic = kind
	return b
}

func (b *registerInput) WithQuantity(amount uint64) *registerInput {
	b.input.Quantity = types.QuantityFromUint64(amount)
	return b
}

func (b *registerInput) WithFungibility(domain types.FungibilityDomain) *registerInput {
	b.input.Fungibility = domain
	return b
}

func (b *registerInput) WithController(controller types.Address) *registerInput {
	b.input.Controller = controller
	return b
}

func (b *registerInput) WithMetadata(kv map[string]string) *registerInput {
	b.input.Metadata = types.NewMetadata(kv)
	return b
}

func (b *registerInput) Build() services.CreateRegisterInput {
	return b.input
}
