/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package checkpoint provides checkpointer implementations for resumable
// event listening.
package checkpoint

import (
	"sync"
)

// InMemory is a non-durable checkpointer. It is suitable for tests and for
// processes that only need replay protection within their own lifetime.
type InMemory struct {
	mutex          sync.Mutex
	blockNumber    uint64
	blockNumberSet bool
	transactionIDs map[string]bool
}

// NewInMemory creates an in-memory checkpointer with no recorded position.
func NewInMemory() *InMemory {
	return &InMemory{
		transactionIDs: make(map[string]bool),
	}
}

// BlockNumber returns the current block checkpoint, if one has been set.
func (c *InMemory) BlockNumber() (uint64, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.blockNumber, c.blockNumberSet
}

// SetBlockNumber records the block checkpoint. Moving to a new block clears
// the delivered transaction IDs of the previous block.
func (c *InMemory) SetBlockNumber(blockNumber uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.blockNumberSet || blockNumber != c.blockNumber {
		c.transactionIDs = make(map[string]bool)
	}
	c.blockNumber = blockNumber
	c.blockNumberSet = true

	return nil
}

// TransactionIDs returns the transaction IDs delivered within the current
// block.
func (c *InMemory) TransactionIDs() map[string]bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ids := make(map[string]bool, len(c.transactionIDs))
	for id := range c.transactionIDs {
		ids[id] = true
	}
	return ids
}

// AddTransactionID records a transaction ID as delivered within the current
// block.
func (c *InMemory) AddTransactionID(txID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.transactionIDs[txID] = true
	return nil
}
