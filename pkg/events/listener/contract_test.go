/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package listener

import (
	"sync"
	"testing"

	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/fabric-network-go/pkg/events/event"
	"github.com/hyperledger/fabric-network-go/pkg/events/mocks"
)

const (
	ccID      = "marbles"
	otherCCID = "fabcar"
)

func TestContractEventsFilteredByChaincode(t *testing.T) {
	listener := newTestContractListener()
	blockListener := NewContractBlockListener(ccID, listener, nil)

	block := fullBlockEvent(t, 1,
		mocks.NewTransactionWithCCEvent("tx1", pb.TxValidationCode_VALID, ccID, "created", []byte("payload1")),
		mocks.NewTransactionWithCCEvent("tx2", pb.TxValidationCode_VALID, otherCCID, "created", []byte("payload2")),
	)
	require.NoError(t, blockListener.ReceiveBlock(block))

	events := listener.events()
	require.Len(t, events, 1)
	assert.Equal(t, ccID, events[0].ChaincodeID)
	assert.Equal(t, "created", events[0].EventName)
	assert.Equal(t, []byte("payload1"), events[0].Payload)
	assert.Equal(t, "tx1", events[0].Transaction().TransactionID)
}

func TestInvalidTransactionsNotDelivered(t *testing.T) {
	listener := newTestContractListener()
	blockListener := NewContractBlockListener(ccID, listener, nil)

	block := fullBlockEvent(t, 1,
		mocks.NewTransactionWithCCEvent("tx1", pb.TxValidationCode_VALID, ccID, "created", nil),
		mocks.NewTransactionWithCCEvent("tx2", pb.TxValidationCode_MVCC_READ_CONFLICT, ccID, "updated", nil),
	)
	require.NoError(t, blockListener.ReceiveBlock(block))

	events := listener.events()
	require.Len(t, events, 1)
	assert.Equal(t, "tx1", events[0].Transaction().TransactionID)
}

func TestCheckpointedTransactionsSkipped(t *testing.T) {
	checkpointer := mocks.NewCheckpointer()
	require.NoError(t, checkpointer.AddTransactionID("tx1"))

	listener := newTestContractListener()
	blockListener := NewContractBlockListener(ccID, listener, checkpointer)

	block := fullBlockEvent(t, 1,
		mocks.NewTransactionWithCCEvent("tx1", pb.TxValidationCode_VALID, ccID, "created", nil),
		mocks.NewTransactionWithCCEvent("tx2", pb.TxValidationCode_VALID, ccID, "updated", nil),
	)
	require.NoError(t, blockListener.ReceiveBlock(block))

	events := listener.events()
	require.Len(t, events, 1)
	assert.Equal(t, "tx2", events[0].Transaction().TransactionID)
	assert.True(t, checkpointer.TransactionIDs()["tx2"])
}

func TestAllTransactionsAttemptedOnFailure(t *testing.T) {
	checkpointer := mocks.NewCheckpointer()
	listener := newTestContractListener()
	listener.failEvent = "created"
	blockListener := NewContractBlockListener(ccID, listener, checkpointer)

	block := fullBlockEvent(t, 1,
		mocks.NewTransactionWithCCEvent("tx1", pb.TxValidationCode_VALID, ccID, "created", nil),
		mocks.NewTransactionWithCCEvent("tx2", pb.TxValidationCode_VALID, ccID, "updated", nil),
	)
	err := blockListener.ReceiveBlock(block)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tx1")

	// The second transaction is still attempted and checkpointed; the
	// failed one is not, so a replay re-delivers it.
	events := listener.events()
	require.Len(t, events, 2)
	assert.False(t, checkpointer.TransactionIDs()["tx1"])
	assert.True(t, checkpointer.TransactionIDs()["tx2"])
}

func TestTransactionCheckpointWriteError(t *testing.T) {
	checkpointer := mocks.NewCheckpointer()
	checkpointer.InjectWriteError(errors.New("disk full"))

	listener := newTestContractListener()
	blockListener := NewContractBlockListener(ccID, listener, checkpointer)

	block := fullBlockEvent(t, 1,
		mocks.NewTransactionWithCCEvent("tx1", pb.TxValidationCode_VALID, ccID, "created", nil),
	)
	err := blockListener.ReceiveBlock(block)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// Delivery itself succeeded.
	require.Len(t, listener.events(), 1)
}

func fullBlockEvent(t *testing.T, blockNum uint64, transactions ...*mocks.TxInfo) *event.BlockEvent {
	t.Helper()

	raw := mocks.NewRawFullBlockEvent("peer1:7051", mocks.NewBlock(blockNum, "testchannel", transactions...))
	blockEvent, err := event.NewFullBlockEvent(raw)
	require.NoError(t, err)
	return blockEvent
}

type testContractListener struct {
	mutex     sync.Mutex
	received  []*event.ContractEvent
	failEvent string
}

func newTestContractListener() *testContractListener {
	return &testContractListener{}
}

func (l *testContractListener) ReceiveContractEvent(e *event.ContractEvent) error {
	l.mutex.Lock()
	l.received = append(l.received, e)
	l.mutex.Unlock()

	if l.failEvent != "" && e.EventName == l.failEvent {
		return errors.New("listener failed")
	}
	return nil
}

func (l *testContractListener) events() []*event.ContractEvent {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]*event.ContractEvent{}, l.received...)
}
