/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"sync"

	"github.com/hyperledger/fabric-network-go/pkg/events/checkpoint"
)

// MockCheckpointer is an in-memory checkpointer with injectable write
// failures.
type MockCheckpointer struct {
	*checkpoint.InMemory
	mutex    sync.Mutex
	writeErr error
}

// NewCheckpointer returns a new MockCheckpointer
func NewCheckpointer() *MockCheckpointer {
	return &MockCheckpointer{InMemory: checkpoint.NewInMemory()}
}

// SetBlockNumber records the block checkpoint unless a write failure has
// been injected
func (c *MockCheckpointer) SetBlockNumber(blockNumber uint64) error {
	if err := c.injectedErr(); err != nil {
		return err
	}
	return c.InMemory.SetBlockNumber(blockNumber)
}

// AddTransactionID records a delivered transaction ID unless a write
// failure has been injected
func (c *MockCheckpointer) AddTransactionID(txID string) error {
	if err := c.injectedErr(); err != nil {
		return err
	}
	return c.InMemory.AddTransactionID(txID)
}

// InjectWriteError causes subsequent writes to fail
func (c *MockCheckpointer) InjectWriteError(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.writeErr = err
}

func (c *MockCheckpointer) injectedErr() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.writeErr
}
