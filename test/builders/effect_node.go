// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package builders

import (
	"github.com/tempora-network/tempora-go/types"
)

type effectNode struct {
	node   types.EffectNode
	params map[string]string
}

// EffectNode defaults to the "sim" domain; tests override with OnDomain.
func EffectNode(id string, kind types.EffectKind) *effectNode {
	return &effectNode{
		node:   types.EffectNode{Id: id, Kind: kind, Domain: "sim"},
		params: make(map[string]string),
	}
}

func (b *effectNode) OnDomain(domain types.DomainId) *effectNode {
	b.node.Domain = domain
	return b
}

func (b *effectNode) WithRead(lineage types.LineageId) *effectNode {
	b.node.ResourceAccesses = append(b.node.ResourceAccesses, types.ResourceAccess{Lineage: lineage, Mode: types.AccessRead})
	return b
}

func (b *effectNode) WithWrite(lineage types.LineageId) *effectNode {
	b.node.ResourceAccesses = append(b.node.ResourceAccesses, types.ResourceAccess{Lineage: lineage, Mode: types.AccessWrite})
	return b
}

func (b *effectNode) WithCapability(ids ...types.ContentId) *effectNode {
	b.node.RequiredCapabilities = append(b.node.RequiredCapabilities, ids...)
	return b
}

func (b *effectNode) WithParameter(key, value string) *effectNode {
	b.params[key] = value
	return b
}

func (b *effectNode) Build() types.EffectNode {
	if len(b.params) > 0 {
		b.node.Parameters = types.NewMetadata(b.params)
	}
	return b.node
}
