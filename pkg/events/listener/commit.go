/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package listener

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/event"
	"github.com/hyperledger/fabric-network-go/pkg/events/manager"
)

// CommitListener receives commit notifications for one transaction from a
// set of peers. It is invoked with either a commit event or a peer-scoped
// error; an error from one peer never stops notifications from the others.
type CommitListener interface {
	ReceiveCommit(e *event.CommitEvent, err error)
}

// CommitListenerSession binds a commit listener directly to one transaction
// status registration per target peer, using the manager's cached per-peer
// event services. It is not fed by a block event source.
type CommitListenerSession struct {
	state         int32
	mgr           *manager.Manager
	listener      CommitListener
	transactionID string
	peers         []api.Peer
	mutex         sync.Mutex
	registrations []api.Registration
}

// NewCommitListenerSession creates a session that will listen for commits
// of the given transaction on each of the given peers.
func NewCommitListenerSession(mgr *manager.Manager, listener CommitListener, transactionID string, peers []api.Peer) *CommitListenerSession {
	return &CommitListenerSession{
		mgr:           mgr,
		listener:      listener,
		transactionID: transactionID,
		peers:         peers,
	}
}

// Start registers with each peer's cached event service. A failure against
// one peer is delivered to the listener as a peer-scoped error value and
// the remaining peers are still connected, so Start does not fail on
// partial connectivity.
func (s *CommitListenerSession) Start() error {
	if !atomic.CompareAndSwapInt32(&s.state, stateUnstarted, stateActive) {
		return errors.New("listener session has already been started")
	}

	for _, peer := range s.peers {
		registration, err := s.connectPeer(peer)
		if err != nil {
			logger.Warnf("Error listening for commits on peer [%s]: %s", peer.URL(), err)
			s.listener.ReceiveCommit(nil, &event.CommitError{Peer: peer, Err: err})
			continue
		}

		s.mutex.Lock()
		s.registrations = append(s.registrations, registration)
		s.mutex.Unlock()
	}
	return nil
}

// Close unregisters from every connected peer. The cached per-peer services
// stay open for other commit listeners; their lifetime belongs to the
// manager.
func (s *CommitListenerSession) Close() {
	if atomic.SwapInt32(&s.state, stateClosed) == stateClosed {
		return
	}

	s.mutex.Lock()
	registrations := s.registrations
	s.registrations = nil
	s.mutex.Unlock()

	for _, registration := range registrations {
		if err := registration.Unregister(); err != nil {
			logger.Warnf("Error unregistering commit listener: %s", err)
		}
	}
}

func (s *CommitListenerSession) connectPeer(peer api.Peer) (api.Registration, error) {
	service, err := s.mgr.CachedEventService(peer)
	if err != nil {
		return nil, err
	}

	registration, err := service.RegisterTxStatusListener(s.transactionID, s.newCommitCallback(peer))
	if err != nil {
		return nil, errors.WithMessage(err, "error registering for transaction status events")
	}

	if err := s.mgr.StartEventService(service, &api.StartRequest{BlockType: api.Filtered}); err != nil {
		if unregErr := registration.Unregister(); unregErr != nil {
			logger.Warnf("Error unregistering commit listener from peer [%s]: %s", peer.URL(), unregErr)
		}
		return nil, err
	}

	return registration, nil
}

// newCommitCallback decorates transaction status notifications with the
// originating peer before handing them to the listener.
func (s *CommitListenerSession) newCommitCallback(peer api.Peer) api.TxStatusCallback {
	return func(raw *api.TxStatusEvent, err error) {
		if err != nil {
			s.listener.ReceiveCommit(nil, &event.CommitError{Peer: peer, Err: err})
			return
		}

		commitEvent, err := event.NewCommitEvent(peer, raw)
		if err != nil {
			s.listener.ReceiveCommit(nil, &event.CommitError{Peer: peer, Err: err})
			return
		}
		s.listener.ReceiveCommit(commitEvent, nil)
	}
}
