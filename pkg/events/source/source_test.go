/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/event"
	"github.com/hyperledger/fabric-network-go/pkg/events/manager"
	"github.com/hyperledger/fabric-network-go/pkg/events/mocks"
)

const (
	peerURL   = "peer0.org1.example.com:7051"
	org1MSP   = "Org1MSP"
	channelID = "testchannel"
)

func TestStartOnFirstListener(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)
	defer s.Close()

	listener := newTestListener()
	require.NoError(t, s.AddBlockListener(listener))

	service := factory.LastService()
	require.NotNil(t, service)
	assert.True(t, service.Started())
	assert.Equal(t, 1, service.NumBlockRegistrations())

	requests := service.StartRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, api.Filtered, requests[0].BlockType)
	assert.Nil(t, requests[0].StartBlock)

	// A second listener must not start another service.
	require.NoError(t, s.AddBlockListener(newTestListener()))
	require.Len(t, factory.Services(), 1)

	service.Deliver(rawFilteredBlock(5))
	service.Deliver(rawFilteredBlock(6))
	listener.expectBlocks(t, 5, 6)
}

func TestReplayFromStartBlock(t *testing.T) {
	factory := mocks.NewEventServiceFactory()

	for n := uint64(0); n <= 3; n++ {
		factory.PreloadLedger(rawFilteredBlock(n))
	}

	startBlock := uint64(1)
	s := newTestSource(t, factory, &startBlock)
	defer s.Close()

	listener := newTestListener()
	require.NoError(t, s.AddBlockListener(listener))

	service := factory.LastService()
	requests := service.StartRequests()
	require.Len(t, requests, 1)

	// The deliver position is exclusive, so resuming at block 1 asks for 0.
	require.NotNil(t, requests[0].StartBlock)
	assert.Equal(t, uint64(0), *requests[0].StartBlock)

	// Block 0 is replayed by the service but precedes the requested start
	// position and must not be delivered.
	listener.expectBlocks(t, 1, 2, 3)
}

func TestOutOfOrderBlocksResequenced(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)
	defer s.Close()

	listener := newTestListener()
	require.NoError(t, s.AddBlockListener(listener))

	service := factory.LastService()
	service.Deliver(rawFilteredBlock(1))
	service.Deliver(rawFilteredBlock(3))
	service.Deliver(rawFilteredBlock(2))

	listener.expectBlocks(t, 1, 2, 3)
}

func TestReconnectResumesAtNextBlock(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)
	defer s.Close()

	listener := newTestListener()
	require.NoError(t, s.AddBlockListener(listener))

	first := factory.LastService()
	first.Deliver(rawFilteredBlock(1))
	listener.expectBlocks(t, 1)

	first.DeliverError(errors.New("deliver stream terminated"))

	require.Eventually(t, func() bool {
		return len(factory.Services()) == 2 && factory.LastService().Started()
	}, time.Second, 10*time.Millisecond)
	assert.True(t, first.Closed())

	second := factory.LastService()
	requests := second.StartRequests()
	require.Len(t, requests, 1)
	require.NotNil(t, requests[0].StartBlock)
	assert.Equal(t, uint64(1), *requests[0].StartBlock)

	// Block 1 arriving again after the reconnect is a duplicate and must be
	// suppressed.
	second.Deliver(rawFilteredBlock(1))
	second.Deliver(rawFilteredBlock(2))
	listener.expectBlocks(t, 1, 2)
}

func TestTransportErrorFromWithinStart(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	factory.InjectStartCallbackError(errors.New("connection refused"))
	s := newTestSource(t, factory, nil)
	defer s.Close()

	listener := newTestListener()
	done := make(chan error, 1)
	go func() {
		done <- s.AddBlockListener(listener)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AddBlockListener did not return")
	}

	// The failed connection is replaced and delivery proceeds normally.
	require.Eventually(t, func() bool {
		return len(factory.Services()) == 2 && factory.LastService().Started()
	}, time.Second, 10*time.Millisecond)
	assert.True(t, factory.Services()[0].Closed())

	factory.LastService().Deliver(rawFilteredBlock(1))
	listener.expectBlocks(t, 1)
}

func TestReconnectBeforeAnyBlock(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)
	defer s.Close()

	require.NoError(t, s.AddBlockListener(newTestListener()))

	factory.LastService().DeliverError(errors.New("deliver stream terminated"))

	require.Eventually(t, func() bool {
		return len(factory.Services()) == 2 && factory.LastService().Started()
	}, time.Second, 10*time.Millisecond)

	requests := factory.LastService().StartRequests()
	require.Len(t, requests, 1)
	assert.Nil(t, requests[0].StartBlock)
}

func TestFailingListenerDoesNotBlockSibling(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)
	defer s.Close()

	failing := newTestListener()
	failing.err = errors.New("listener failed")
	panicking := newTestListener()
	panicking.panics = true
	healthy := newTestListener()

	require.NoError(t, s.AddBlockListener(failing))
	require.NoError(t, s.AddBlockListener(panicking))
	require.NoError(t, s.AddBlockListener(healthy))

	service := factory.LastService()
	service.Deliver(rawFilteredBlock(1))
	service.Deliver(rawFilteredBlock(2))

	healthy.expectBlocks(t, 1, 2)
	failing.expectBlocks(t, 1, 2)
	panicking.expectBlocks(t, 1, 2)
}

func TestRemoveBlockListener(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)
	defer s.Close()

	removed := newTestListener()
	kept := newTestListener()
	require.NoError(t, s.AddBlockListener(removed))
	require.NoError(t, s.AddBlockListener(kept))

	service := factory.LastService()
	service.Deliver(rawFilteredBlock(1))
	removed.expectBlocks(t, 1)

	s.RemoveBlockListener(removed)

	// The source keeps running for the remaining listener.
	assert.True(t, service.Started())

	service.Deliver(rawFilteredBlock(2))
	kept.expectBlocks(t, 1, 2)
	removed.expectBlocks(t, 1)

	// Removing a listener that is not registered is a no-op.
	s.RemoveBlockListener(newTestListener())
}

func TestDuplicateAddDeliversOnce(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)
	defer s.Close()

	listener := newTestListener()
	require.NoError(t, s.AddBlockListener(listener))
	require.NoError(t, s.AddBlockListener(listener))

	factory.LastService().Deliver(rawFilteredBlock(1))
	listener.expectBlocks(t, 1)
}

func TestStartError(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	factory.InjectError(errors.New("no connection"))
	s := newTestSource(t, factory, nil)
	defer s.Close()

	listener := newTestListener()
	err := s.AddBlockListener(listener)
	require.Error(t, err)

	// A failed start leaves the source ready to try again.
	factory.InjectError(nil)
	require.NoError(t, s.AddBlockListener(listener))
	assert.True(t, factory.LastService().Started())
}

func TestClose(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)

	require.NoError(t, s.AddBlockListener(newTestListener()))
	service := factory.LastService()

	s.Close()
	assert.True(t, service.Closed())
	assert.Equal(t, 0, service.NumBlockRegistrations())

	s.Close()

	err := s.AddBlockListener(newTestListener())
	require.EqualError(t, err, "block event source is closed")
}

func TestCloseStopsReconnect(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	s := newTestSource(t, factory, nil)

	require.NoError(t, s.AddBlockListener(newTestListener()))
	factory.LastService().DeliverError(errors.New("deliver stream terminated"))
	s.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, factory.Services(), 1)
}

func newTestSource(t *testing.T, factory *mocks.MockEventServiceFactory, startBlock *uint64) *Source {
	t.Helper()

	discovery := mocks.NewDiscoveryService(mocks.NewPeer(peerURL, org1MSP))
	mgr := manager.New(org1MSP, discovery, factory)

	return New(mgr, api.Filtered, startBlock, WithRestartDelay(10*time.Millisecond))
}

func rawFilteredBlock(blockNum uint64) *api.RawBlockEvent {
	return mocks.NewRawFilteredBlockEvent(peerURL, mocks.NewFilteredBlock(blockNum, channelID))
}

type testListener struct {
	mutex  sync.Mutex
	blocks []uint64
	err    error
	panics bool
}

func newTestListener() *testListener {
	return &testListener{}
}

func (l *testListener) ReceiveBlock(e *event.BlockEvent) error {
	l.mutex.Lock()
	l.blocks = append(l.blocks, e.BlockNumber())
	l.mutex.Unlock()

	if l.panics {
		panic("listener panicked")
	}
	return l.err
}

func (l *testListener) received() []uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]uint64{}, l.blocks...)
}

// expectBlocks waits until the listener has received exactly the given
// block numbers in the given order.
func (l *testListener) expectBlocks(t *testing.T, blockNums ...uint64) {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(l.received()) >= len(blockNums)
	}, time.Second, 5*time.Millisecond, "expected %d blocks, got %v", len(blockNums), l.received())

	// Allow a trailing unexpected delivery to surface.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, blockNums, l.received())
}
