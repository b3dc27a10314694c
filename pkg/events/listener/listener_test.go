/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package listener

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/manager"
	"github.com/hyperledger/fabric-network-go/pkg/events/mocks"
	"github.com/hyperledger/fabric-network-go/pkg/events/source"
)

func TestSharedSessionLifecycle(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	src := newSessionTestSource(factory)
	defer src.Close()

	session := NewSharedBlockListenerSession(src, &recordingBlockListener{})
	require.NoError(t, session.Start())

	service := factory.LastService()
	require.NotNil(t, service)
	assert.True(t, service.Started())

	require.EqualError(t, session.Start(), "listener session has already been started")

	// Closing the session detaches the listener but leaves the shared
	// source running.
	session.Close()
	assert.False(t, service.Closed())

	session.Close()
}

func TestSharedSessionStartError(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	factory.InjectError(errors.New("no connection"))
	src := newSessionTestSource(factory)
	defer src.Close()

	session := NewSharedBlockListenerSession(src, &recordingBlockListener{})
	require.Error(t, session.Start())

	// A failed session is terminal.
	require.EqualError(t, session.Start(), "listener session has already been started")
}

func TestIsolatedSessionLifecycle(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	src := newSessionTestSource(factory)

	session := NewIsolatedBlockListenerSession(src, &recordingBlockListener{})
	require.NoError(t, session.Start())

	service := factory.LastService()
	require.NotNil(t, service)
	assert.True(t, service.Started())

	// The private source is owned by the session and closed with it.
	session.Close()
	assert.True(t, service.Closed())

	session.Close()
}

func TestIsolatedSessionStartErrorClosesSource(t *testing.T) {
	factory := mocks.NewEventServiceFactory()
	factory.InjectError(errors.New("no connection"))
	src := newSessionTestSource(factory)

	session := NewIsolatedBlockListenerSession(src, &recordingBlockListener{})
	require.Error(t, session.Start())

	require.EqualError(t, src.AddBlockListener(&recordingBlockListener{}), "block event source is closed")
}

func newSessionTestSource(factory *mocks.MockEventServiceFactory) *source.Source {
	discovery := mocks.NewDiscoveryService(mocks.NewPeer("peer1.org1.example.com:7051", "Org1MSP"))
	mgr := manager.New("Org1MSP", discovery, factory)
	return source.New(mgr, api.Filtered, nil)
}
