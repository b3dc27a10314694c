/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package manager brokers access to peer event service connections,
// independent of the endorsement path. It caches one commit-event service
// per peer, builds randomized default services for realtime block delivery
// and guards event service startup so that incompatible requests against a
// running service fail loudly instead of being silently ignored.
package manager

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/common/logging"
	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/util/concurrent/lazyref"
)

var logger = logging.NewLogger("fabnet/events")

// Manager owns the event service connections of one channel.
type Manager struct {
	mspID      string
	discovery  api.DiscoveryService
	factory    api.EventServiceFactory
	cacheMutex sync.Mutex
	cache      map[string]*lazyref.Reference
	startMutex sync.Mutex
	started    map[api.EventService]*api.StartRequest
	closed     int32
}

// New creates a manager. The MSP ID identifies the local organization,
// whose peers are preferred for default event services.
func New(mspID string, discovery api.DiscoveryService, factory api.EventServiceFactory) *Manager {
	return &Manager{
		mspID:     mspID,
		discovery: discovery,
		factory:   factory,
		cache:     make(map[string]*lazyref.Reference),
		started:   make(map[api.EventService]*api.StartRequest),
	}
}

// CachedEventService returns the event service bound to exactly the given
// peer, creating it lazily on first use. Commit listeners registered for
// the same peer all share one service. A creation failure is not cached;
// the next call retries.
func (m *Manager) CachedEventService(peer api.Peer) (api.EventService, error) {
	if atomic.LoadInt32(&m.closed) == 1 {
		return nil, errors.New("event service manager is closed")
	}

	m.cacheMutex.Lock()
	ref, ok := m.cache[peer.URL()]
	if !ok {
		ref = lazyref.New(func() (interface{}, error) {
			logger.Debugf("Creating event service for peer [%s]", peer.URL())
			return m.factory.CreateEventService([]api.Peer{peer})
		})
		m.cache[peer.URL()] = ref
	}
	m.cacheMutex.Unlock()

	service, err := ref.Get()
	if err != nil {
		return nil, errors.WithMessagef(err, "error creating event service for peer [%s]", peer.URL())
	}
	return service.(api.EventService), nil
}

// NewDefaultEventService creates an event service over the channel's peers
// for realtime block delivery. Peers in the local organization are
// preferred; if it has none, the full peer set is used. The peer order is
// shuffled to spread load across instances.
func (m *Manager) NewDefaultEventService() (api.EventService, error) {
	if atomic.LoadInt32(&m.closed) == 1 {
		return nil, errors.New("event service manager is closed")
	}

	peers, err := m.discovery.GetPeers()
	if err != nil {
		return nil, errors.WithMessage(err, "error getting peers")
	}
	if len(peers) == 0 {
		return nil, errors.New("no peers available")
	}

	var orgPeers []api.Peer
	for _, p := range peers {
		if p.MSPID() == m.mspID {
			orgPeers = append(orgPeers, p)
		}
	}
	if len(orgPeers) > 0 {
		logger.Debugf("Choosing event peers from [%s]", m.mspID)
		peers = orgPeers
	} else {
		logger.Debugf("No peers from [%s]. Choosing from all channel peers.", m.mspID)
	}

	shuffled := append([]api.Peer{}, peers...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return m.factory.CreateEventService(shuffled)
}

// StartEventService starts the given service, idempotently. If the service
// is already running, the request is validated against the running
// configuration instead: a different block type or a replay start position
// is an error.
func (m *Manager) StartEventService(service api.EventService, request *api.StartRequest) error {
	m.startMutex.Lock()
	defer m.startMutex.Unlock()

	if running, ok := m.started[service]; ok {
		if running.BlockType != request.BlockType {
			return errors.New("EventService is not receiving the correct blockType")
		}
		if request.StartBlock != nil {
			return errors.New("EventService is not usable for replay")
		}
		return nil
	}

	if err := service.Start(request); err != nil {
		return errors.WithMessage(err, "error starting event service")
	}
	m.started[service] = request

	return nil
}

// StopTracking forgets the started state of the given service. It is used
// when a service is closed out of band, e.g. on reconnect.
func (m *Manager) StopTracking(service api.EventService) {
	m.startMutex.Lock()
	defer m.startMutex.Unlock()

	delete(m.started, service)
}

// Close closes every cached per-peer event service. The manager may not be
// used afterwards.
func (m *Manager) Close() {
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return
	}

	logger.Debugf("Closing cached event services...")

	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	for url, ref := range m.cache {
		if !ref.IsSet() {
			continue
		}
		service, err := ref.Get()
		if err != nil {
			continue
		}
		logger.Debugf("Closing event service for peer [%s]", url)
		service.(api.EventService).Close()
	}
	m.cache = make(map[string]*lazyref.Reference)
}
