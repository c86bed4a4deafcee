// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package factobserver

import (
	"context"
	"time"

	"github.com/orbs-network/go-mock"
	"github.com/tempora-network/tempora-go/types"
)

type connectionMock struct {
	mock.Mock
}

// newConnectionMock tolerates the connectivity poll so tests only script the
// calls they care about.
func newConnectionMock() *connectionMock {
	m := &connectionMock{}
	m.When("CheckConnectivity", mock.Any).Return(nil).AtLeast(0)
	return m
}

func (m *connectionMock) CurrentHeight(ctx context.Context) (uint64, error) {
	ret := m.Called(ctx)
	return ret.Get(0).(uint64), ret.Error(1)
}

func (m *connectionMock) CurrentHash(ctx context.Context) ([]byte, error) {
	ret := m.Called(ctx)
	if out := ret.Get(0); out != nil {
		return out.([]byte), ret.Error(1)
	}
	return nil, ret.Error(1)
}

func (m *connectionMock) CurrentTimestamp(ctx context.Context) (time.Time, error) {
	ret := m.Called(ctx)
	return ret.Get(0).(time.Time), ret.Error(1)
}

func (m *connectionMock) ObserveFact(ctx context.Context, q types.FactQuery) (*types.Fact, error) {
	ret := m.Called(ctx, q)
	if out := ret.Get(0); out != nil {
		return out.(*types.Fact), ret.Error(1)
	}
	return nil, ret.Error(1)
}

func (m *connectionMock) SubmitTransaction(ctx context.Context, tx []byte) (types.TransactionId, error) {
	ret := m.Called(ctx, tx)
	return ret.Get(0).(types.TransactionId), ret.Error(1)
}

func (m *connectionMock) TransactionReceipt(ctx context.Context, id types.TransactionId) (*types.Receipt, error) {
	ret := m.Called(ctx, id)
	if out := ret.Get(0); out != nil {
		return out.(*types.Receipt), ret.Error(1)
	}
	return nil, ret.Error(1)
}

func (m *connectionMock) VerifyBlock(ctx context.Context, height uint64, hash []byte) (bool, error) {
	ret := m.Called(ctx, height, hash)
	return ret.Get(0).(bool), ret.Error(1)
}

func (m *connectionMock) CheckConnectivity(ctx context.Context) error {
	ret := m.Called(ctx)
	return ret.Error(0)
}

func entryAt(domain types.DomainId, height uint64) types.TimeMapEntry {
	return types.TimeMapEntry{
		Domain:    domain,
		Height:    height,
		Hash:      []byte{byte(height)},
		Timestamp: types.TimestampNanos(height * 1000),
	}
}

func factAt(domain types.DomainId, height uint64, payload []byte) *types.Fact {
	entry := entryAt(domain, height)
	return &types.Fact{
		Domain:    domain,
		Kind:      types.FactBalance,
		Height:    height,
		Hash:      entry.Hash,
		Timestamp: entry.Timestamp,
		Payload:   payload,
		PinnedTo:  entry,
	}
}
