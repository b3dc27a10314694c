/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"sync"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
)

// MockPeer implements api.Peer
type MockPeer struct {
	MockURL   string
	MockMSPID string
}

// NewPeer returns a new MockPeer
func NewPeer(url, mspID string) *MockPeer {
	return &MockPeer{MockURL: url, MockMSPID: mspID}
}

// URL returns the peer's URL
func (p *MockPeer) URL() string {
	return p.MockURL
}

// MSPID returns the ID of the MSP that the peer belongs to
func (p *MockPeer) MSPID() string {
	return p.MockMSPID
}

// MockDiscoveryService is a discovery service that returns a fixed set of
// peers
type MockDiscoveryService struct {
	mutex sync.Mutex
	peers []api.Peer
	err   error
}

// NewDiscoveryService returns a new MockDiscoveryService
func NewDiscoveryService(peers ...api.Peer) *MockDiscoveryService {
	return &MockDiscoveryService{peers: peers}
}

// GetPeers returns the peers
func (s *MockDiscoveryService) GetPeers() ([]api.Peer, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return append([]api.Peer{}, s.peers...), nil
}

// InjectError causes subsequent calls to GetPeers to fail
func (s *MockDiscoveryService) InjectError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.err = err
}

// MockEventServiceFactory creates MockEventServices and remembers every
// service it has created
type MockEventServiceFactory struct {
	mutex    sync.Mutex
	services         []*MockEventService
	preload          []*api.RawBlockEvent
	startCallbackErr error
	err              error
}

// NewEventServiceFactory returns a new MockEventServiceFactory
func NewEventServiceFactory() *MockEventServiceFactory {
	return &MockEventServiceFactory{}
}

// CreateEventService creates a new MockEventService for the given peers
func (f *MockEventServiceFactory) CreateEventService(peers []api.Peer) (api.EventService, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	service := NewEventService(peers...)
	service.ledger = append(service.ledger, f.preload...)
	service.startCallbackErr = f.startCallbackErr
	f.startCallbackErr = nil
	f.services = append(f.services, service)
	return service, nil
}

// InjectStartCallbackError causes the next created service to deliver the
// given transport error from within its first Start call.
func (f *MockEventServiceFactory) InjectStartCallbackError(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.startCallbackErr = err
}

// PreloadLedger stores the given raw block events on the ledger of every
// service the factory subsequently creates.
func (f *MockEventServiceFactory) PreloadLedger(raw ...*api.RawBlockEvent) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.preload = append(f.preload, raw...)
}

// Services returns every service the factory has created
func (f *MockEventServiceFactory) Services() []*MockEventService {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]*MockEventService{}, f.services...)
}

// LastService returns the most recently created service, or nil
func (f *MockEventServiceFactory) LastService() *MockEventService {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if len(f.services) == 0 {
		return nil
	}
	return f.services[len(f.services)-1]
}

// InjectError causes subsequent calls to CreateEventService to fail
func (f *MockEventServiceFactory) InjectError(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.err = err
}

// Peers returns the peers the mock event service was created with
func (s *MockEventService) Peers() []api.Peer {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]api.Peer{}, s.peers...)
}
