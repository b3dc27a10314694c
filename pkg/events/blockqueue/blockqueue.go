/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package blockqueue provides a re-sequencing buffer for block events that
// may arrive out of order, duplicated or gapped.
package blockqueue

import (
	"sync"

	"github.com/hyperledger/fabric-network-go/pkg/common/logging"
	"github.com/hyperledger/fabric-network-go/pkg/events/event"
)

var logger = logging.NewLogger("fabnet/events")

// Queue buffers block events keyed by block number and yields them in
// strictly increasing, gap-free order. Blocks below the current cursor are
// discarded as stale and duplicate block numbers keep only the first
// arrival. If the queue was created without a start block, the first block
// added establishes the cursor.
type Queue struct {
	mutex           sync.Mutex
	nextBlockNumber uint64
	cursorSet       bool
	blocks          map[uint64]*event.BlockEvent
}

// New creates a queue. A non-nil startBlock seeds the cursor so that blocks
// before the replay window are discarded on arrival.
func New(startBlock *uint64) *Queue {
	q := &Queue{
		blocks: make(map[uint64]*event.BlockEvent),
	}
	if startBlock != nil {
		q.nextBlockNumber = *startBlock
		q.cursorSet = true
	}
	return q
}

// Add inserts the event under its block number. Stale and duplicate blocks
// are silently dropped.
func (q *Queue) Add(e *event.BlockEvent) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	blockNumber := e.BlockNumber()

	if !q.cursorSet {
		q.nextBlockNumber = blockNumber
		q.cursorSet = true
	} else if blockNumber < q.nextBlockNumber {
		logger.Debugf("Discarding stale block %d, expecting block %d", blockNumber, q.nextBlockNumber)
		return
	}

	if _, exists := q.blocks[blockNumber]; exists {
		logger.Debugf("Discarding duplicate of block %d", blockNumber)
		return
	}

	q.blocks[blockNumber] = e
}

// Next returns and evicts the block at the current cursor position, if
// buffered, and advances the cursor. It returns false while the next
// expected block has not arrived.
func (q *Queue) Next() (*event.BlockEvent, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if !q.cursorSet {
		return nil, false
	}

	e, ok := q.blocks[q.nextBlockNumber]
	if !ok {
		return nil, false
	}

	delete(q.blocks, q.nextBlockNumber)
	q.nextBlockNumber++

	return e, true
}

// NextBlockNumber returns the current cursor position. It returns false if
// no start boundary has been established yet.
func (q *Queue) NextBlockNumber() (uint64, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.nextBlockNumber, q.cursorSet
}

// Size returns the number of buffered, not yet delivered blocks.
func (q *Queue) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return len(q.blocks)
}
