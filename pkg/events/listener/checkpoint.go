/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package listener

import (
	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/event"
	"github.com/hyperledger/fabric-network-go/pkg/events/source"
)

// checkpointBlockListener advances the checkpoint's block cursor around an
// inner block listener. It wraps outside any transaction-level
// checkpointing so the cursor cannot advance past a block whose
// transaction-level writes have not all completed; a crash mid-block then
// replays the block instead of skipping its unprocessed transactions.
type checkpointBlockListener struct {
	next         source.BlockListener
	checkpointer api.Checkpointer
}

// NewCheckpointBlockListener wraps the given block listener with checkpoint
// tracking. Blocks below the stored cursor are skipped; after the inner
// listener processes block N successfully, the cursor is set to N+1. If the
// inner listener fails, the cursor is left unchanged so the block is
// re-delivered on the next replay.
func NewCheckpointBlockListener(next source.BlockListener, checkpointer api.Checkpointer) source.BlockListener {
	return &checkpointBlockListener{next: next, checkpointer: checkpointer}
}

func (l *checkpointBlockListener) ReceiveBlock(blockEvent *event.BlockEvent) error {
	if blockNumber, ok := l.checkpointer.BlockNumber(); ok && blockEvent.BlockNumber() < blockNumber {
		logger.Debugf("Skipping checkpointed block %d", blockEvent.BlockNumber())
		return nil
	}

	if err := l.next.ReceiveBlock(blockEvent); err != nil {
		return err
	}

	return l.checkpointer.SetBlockNumber(blockEvent.BlockNumber() + 1)
}
