// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package adapter

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/orbs-network/scribe/log"
	"github.com/pkg/errors"
	"github.com/tempora-network/tempora-go/crypto/hash"
	"github.com/tempora-network/tempora-go/encoding/canonical"
	"github.com/tempora-network/tempora-go/types"
)

const simulatedBlockInterval = 10 * time.Second

// deterministic genesis keeps simulated timestamps reproducible across runs
var simulatedGenesis = time.Unix(1600000000, 0)

type scriptedFact struct {
	payload []byte
	proof   []byte
	height  uint64 // zero pins the fact to the head at observation time
}

// SimulatedConnection is an in-memory domain for tests and local runs. The
// chain is deterministic: block hashes derive from the chain id, the height
// and the count of injected reorgs below that height. Faults are injected
// through the control methods, never through the Connection surface.
type SimulatedConnection struct {
	logger log.Logger
	domain types.DomainId

	mutex        sync.Mutex
	head         uint64
	reorgs       []uint64
	scripted     map[types.ContentId]scriptedFact
	receipts     map[types.TransactionId]*types.Receipt
	pending      []types.TransactionId
	disconnected bool
	failSubmits  bool
}

func NewSimulatedConnection(domain types.DomainId, parent log.Logger) *SimulatedConnection {
	return &SimulatedConnection{
		logger:   parent.WithTags(log.String("adapter", "domain-sim"), log.String("domain", domain.String())),
		domain:   domain,
		head:     1,
		scripted: make(map[types.ContentId]scriptedFact),
		receipts: make(map[types.TransactionId]*types.Receipt),
	}
}

// CommitBlocks advances the head; pending transactions land in the first new
// block with successful receipts.
func (c *SimulatedConnection) CommitBlocks(n uint64) uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.head += n
	for _, txn := range c.pending {
		c.receipts[txn] = &types.Receipt{Txn: txn, Height: c.head, Success: true}
	}
	c.pending = nil
	return c.head
}

// Rewind lowers the reported head, simulating a node that answers from a
// stale fork without changing the blocks themselves.
func (c *SimulatedConnection) Rewind(n uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n >= c.head {
		c.head = 1
		return
	}
	c.head -= n
}

// Reorg rewrites every block hash at and above the given height.
func (c *SimulatedConnection) Reorg(fromHeight uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.reorgs = append(c.reorgs, fromHeight)
}

func (c *SimulatedConnection) Disconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disconnected = true
}

func (c *SimulatedConnection) Reconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disconnected = false
}

// FailSubmits makes SubmitTransaction reject until cleared.
func (c *SimulatedConnection) FailSubmits(fail bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.failSubmits = fail
}

// ScriptFact cans the answer for one exact query. Height zero means "answer
// at whatever the head is when asked".
func (c *SimulatedConnection) ScriptFact(q types.FactQuery, payload []byte, atHeight uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.scripted[canonical.ContentIdOf(q)] = scriptedFact{payload: payload, height: atHeight}
}

// ScriptFactWithProof is ScriptFact plus opaque proof bytes.
func (c *SimulatedConnection) ScriptFactWithProof(q types.FactQuery, payload []byte, proof []byte, atHeight uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.scripted[canonical.ContentIdOf(q)] = scriptedFact{payload: payload, proof: proof, height: atHeight}
}

func (c *SimulatedConnection) hashAt(height uint64) []byte {
	var generation uint64
	for _, from := range c.reorgs {
		if height >= from {
			generation++
		}
	}

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], height)
	binary.BigEndian.PutUint64(buf[8:16], generation)
	id := hash.CalcSha256([]byte(c.domain), buf[:])
	return id.Bytes()
}

func (c *SimulatedConnection) timeAt(height uint64) time.Time {
	return simulatedGenesis.Add(time.Duration(height) * simulatedBlockInterval)
}

func (c *SimulatedConnection) entryAt(height uint64) types.TimeMapEntry {
	return types.TimeMapEntry{
		Domain:    c.domain,
		Height:    height,
		Hash:      c.hashAt(height),
		Timestamp: types.NanosFromTime(c.timeAt(height)),
	}
}

func (c *SimulatedConnection) refuseWhenDisconnected() error {
	if c.disconnected {
		return errors.Wrapf(types.ErrNotConnected, "domain %s is unreachable", c.domain)
	}
	return nil
}

func (c *SimulatedConnection) CurrentHeight(ctx context.Context) (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.refuseWhenDisconnected(); err != nil {
		return 0, err
	}
	return c.head, nil
}

func (c *SimulatedConnection) CurrentHash(ctx context.Context) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.refuseWhenDisconnected(); err != nil {
		return nil, err
	}
	return c.hashAt(c.head), nil
}

func (c *SimulatedConnection) CurrentTimestamp(ctx context.Context) (time.Time, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.refuseWhenDisconnected(); err != nil {
		return time.Time{}, err
	}
	return c.timeAt(c.head), nil
}

func (c *SimulatedConnection) ObserveFact(ctx context.Context, q types.FactQuery) (*types.Fact, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.refuseWhenDisconnected(); err != nil {
		return nil, err
	}

	scripted, ok := c.scripted[canonical.ContentIdOf(q)]
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "domain %s has no answer for this %s query", c.domain, q.Kind)
	}

	height := scripted.height
	if height == 0 {
		height = c.head
	}
	if q.MaxHeight != 0 && height > q.MaxHeight {
		height = q.MaxHeight
	}

	entry := c.entryAt(height)
	return &types.Fact{
		Domain:    c.domain,
		Kind:      q.Kind,
		Height:    height,
		Hash:      entry.Hash,
		Timestamp: entry.Timestamp,
		Payload:   scripted.payload,
		Proof:     scripted.proof,
		PinnedTo:  entry,
	}, nil
}

func (c *SimulatedConnection) SubmitTransaction(ctx context.Context, tx []byte) (types.TransactionId, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.refuseWhenDisconnected(); err != nil {
		return "", err
	}
	if c.failSubmits {
		return "", errors.Wrapf(types.ErrTransactionFailed, "domain %s rejected the transaction", c.domain)
	}

	txn := types.TransactionId(hash.CalcSha256(tx).Hex())
	c.pending = append(c.pending, txn)
	return txn, nil
}

func (c *SimulatedConnection) TransactionReceipt(ctx context.Context, id types.TransactionId) (*types.Receipt, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.refuseWhenDisconnected(); err != nil {
		return nil, err
	}

	receipt, ok := c.receipts[id]
	if !ok {
		return nil, errors.Wrapf(types.ErrNotFound, "transaction %s is not in any committed block", id)
	}
	out := *receipt
	return &out, nil
}

func (c *SimulatedConnection) VerifyBlock(ctx context.Context, height uint64, blockHash []byte) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.refuseWhenDisconnected(); err != nil {
		return false, err
	}
	if height > c.head {
		return false, nil
	}
	return bytes.Equal(c.hashAt(height), blockHash), nil
}

func (c *SimulatedConnection) CheckConnectivity(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.refuseWhenDisconnected()
}
