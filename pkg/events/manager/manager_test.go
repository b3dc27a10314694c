/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package manager

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/mocks"
)

const localMSPID = "Org1MSP"

func newManager(peers ...api.Peer) (*Manager, *mocks.MockEventServiceFactory) {
	factory := mocks.NewEventServiceFactory()
	return New(localMSPID, mocks.NewDiscoveryService(peers...), factory), factory
}

func TestCachedEventService(t *testing.T) {
	peer1 := mocks.NewPeer("peer1:7051", localMSPID)
	peer2 := mocks.NewPeer("peer2:7051", localMSPID)

	m, factory := newManager(peer1, peer2)
	defer m.Close()

	service1, err := m.CachedEventService(peer1)
	require.NoError(t, err)

	service1Again, err := m.CachedEventService(peer1)
	require.NoError(t, err)
	assert.Same(t, service1, service1Again, "expected one cached service per peer")

	service2, err := m.CachedEventService(peer2)
	require.NoError(t, err)
	assert.NotSame(t, service1, service2)
	assert.Len(t, factory.Services(), 2)
}

func TestCachedEventServiceFailureIsRetried(t *testing.T) {
	peer1 := mocks.NewPeer("peer1:7051", localMSPID)

	m, factory := newManager(peer1)
	defer m.Close()

	factory.InjectError(errors.New("connect error"))
	_, err := m.CachedEventService(peer1)
	require.Error(t, err)

	factory.InjectError(nil)
	service, err := m.CachedEventService(peer1)
	require.NoError(t, err)
	assert.NotNil(t, service)
}

func TestNewDefaultEventServicePrefersLocalOrg(t *testing.T) {
	orgPeer := mocks.NewPeer("peer1:7051", localMSPID)
	otherPeer := mocks.NewPeer("peer2:7051", "Org2MSP")

	m, factory := newManager(orgPeer, otherPeer)
	defer m.Close()

	_, err := m.NewDefaultEventService()
	require.NoError(t, err)

	peers := factory.LastService().Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, orgPeer.URL(), peers[0].URL())
}

func TestNewDefaultEventServiceFallsBackToAllPeers(t *testing.T) {
	peer1 := mocks.NewPeer("peer1:7051", "Org2MSP")
	peer2 := mocks.NewPeer("peer2:7051", "Org3MSP")

	m, factory := newManager(peer1, peer2)
	defer m.Close()

	_, err := m.NewDefaultEventService()
	require.NoError(t, err)
	assert.Len(t, factory.LastService().Peers(), 2)
}

func TestNewDefaultEventServiceNoPeers(t *testing.T) {
	m, _ := newManager()
	defer m.Close()

	_, err := m.NewDefaultEventService()
	require.Error(t, err)
}

func TestStartEventServiceIsIdempotent(t *testing.T) {
	peer1 := mocks.NewPeer("peer1:7051", localMSPID)
	m, factory := newManager(peer1)
	defer m.Close()

	service, err := m.NewDefaultEventService()
	require.NoError(t, err)

	request := &api.StartRequest{BlockType: api.Filtered}
	require.NoError(t, m.StartEventService(service, request))
	require.NoError(t, m.StartEventService(service, request))
	assert.Len(t, factory.LastService().StartRequests(), 1, "expected one start request for an already-started service")
}

func TestStartEventServiceValidatesRunningService(t *testing.T) {
	peer1 := mocks.NewPeer("peer1:7051", localMSPID)
	m, _ := newManager(peer1)
	defer m.Close()

	service, err := m.NewDefaultEventService()
	require.NoError(t, err)
	require.NoError(t, m.StartEventService(service, &api.StartRequest{BlockType: api.Filtered}))

	err = m.StartEventService(service, &api.StartRequest{BlockType: api.Full})
	require.EqualError(t, err, "EventService is not receiving the correct blockType")

	startBlock := uint64(1)
	err = m.StartEventService(service, &api.StartRequest{BlockType: api.Filtered, StartBlock: &startBlock})
	require.EqualError(t, err, "EventService is not usable for replay")
}

func TestStartEventServiceFailureIsNotTracked(t *testing.T) {
	peer1 := mocks.NewPeer("peer1:7051", localMSPID)
	m, factory := newManager(peer1)
	defer m.Close()

	service, err := m.NewDefaultEventService()
	require.NoError(t, err)

	factory.LastService().InjectStartError(errors.New("start error"))
	require.Error(t, m.StartEventService(service, &api.StartRequest{BlockType: api.Filtered}))

	factory.LastService().InjectStartError(nil)
	require.NoError(t, m.StartEventService(service, &api.StartRequest{BlockType: api.Filtered}))
}

func TestClose(t *testing.T) {
	peer1 := mocks.NewPeer("peer1:7051", localMSPID)
	peer2 := mocks.NewPeer("peer2:7051", localMSPID)

	m, factory := newManager(peer1, peer2)

	_, err := m.CachedEventService(peer1)
	require.NoError(t, err)
	_, err = m.CachedEventService(peer2)
	require.NoError(t, err)

	m.Close()

	for _, service := range factory.Services() {
		assert.True(t, service.Closed())
	}

	_, err = m.CachedEventService(peer1)
	require.Error(t, err)
	_, err = m.NewDefaultEventService()
	require.Error(t, err)

	// Close is idempotent
	m.Close()
}
