/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package network exposes the channel-level event listening surface. A
// network owns one event service manager and up to three long-lived
// realtime block event sources (filtered, full, private data), created
// lazily and shared by every realtime listener. Replay listeners get a
// private source instead, so historical delivery never disturbs the shared
// realtime streams.
package network

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/common/logging"
	"github.com/hyperledger/fabric-network-go/pkg/common/options"
	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/listener"
	"github.com/hyperledger/fabric-network-go/pkg/events/manager"
	"github.com/hyperledger/fabric-network-go/pkg/events/source"
)

var logger = logging.NewLogger("fabnet/network")

// Network is the event listening surface of one channel.
type Network struct {
	mutex            sync.Mutex
	closed           bool
	mgr              *manager.Manager
	sourceOpts       []options.Opt
	realtime         map[api.BlockType]*source.Source
	blockSessions    map[source.BlockListener]listener.Session
	contractSessions map[listener.ContractListener]listener.Session
	commitSessions   map[listener.CommitListener]listener.Session
}

// New creates a network for the channel served by the given discovery
// service. The MSP ID identifies the local organization. Source options
// (such as source.WithRestartDelay) are applied to every block event
// source the network creates.
func New(mspID string, discovery api.DiscoveryService, factory api.EventServiceFactory, sourceOpts ...options.Opt) *Network {
	return &Network{
		mgr:              manager.New(mspID, discovery, factory),
		sourceOpts:       sourceOpts,
		realtime:         make(map[api.BlockType]*source.Source),
		blockSessions:    make(map[source.BlockListener]listener.Session),
		contractSessions: make(map[listener.ContractListener]listener.Session),
		commitSessions:   make(map[listener.CommitListener]listener.Session),
	}
}

// AddBlockListener registers a block listener. With no options the listener
// joins the shared filtered realtime stream. A start block or a
// checkpointer holding a position turns the registration into a replay on
// a private source. Adding a listener that is already registered is a
// no-op; the existing registration is returned.
func (n *Network) AddBlockListener(blockListener source.BlockListener, opts ...options.Opt) (source.BlockListener, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.closed {
		return nil, errors.New("network is closed")
	}
	if _, ok := n.blockSessions[blockListener]; ok {
		return blockListener, nil
	}

	params := defaultListenerParams()
	options.Apply(params, opts)

	delivery := blockListener
	if params.checkpointer != nil {
		delivery = listener.NewCheckpointBlockListener(delivery, params.checkpointer)
	}

	session, err := n.newBlockSession(delivery, params)
	if err != nil {
		return nil, err
	}

	n.blockSessions[blockListener] = session
	if err := session.Start(); err != nil {
		delete(n.blockSessions, blockListener)
		return nil, err
	}
	return blockListener, nil
}

// RemoveBlockListener unregisters a block listener. Removing a listener
// that is not registered is a no-op.
func (n *Network) RemoveBlockListener(blockListener source.BlockListener) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	session, ok := n.blockSessions[blockListener]
	if !ok {
		return
	}
	delete(n.blockSessions, blockListener)
	session.Close()
}

// AddContractListener registers a listener for the chaincode events of one
// chaincode. Only events from transactions committed as valid are
// delivered. The same options as AddBlockListener are recognized; a
// checkpointer additionally suppresses transaction IDs already recorded
// for the block being resumed.
func (n *Network) AddContractListener(chaincodeID string, contractListener listener.ContractListener, opts ...options.Opt) (listener.ContractListener, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.closed {
		return nil, errors.New("network is closed")
	}
	if _, ok := n.contractSessions[contractListener]; ok {
		return contractListener, nil
	}

	params := defaultListenerParams()
	options.Apply(params, opts)

	delivery := listener.NewContractBlockListener(chaincodeID, contractListener, params.checkpointer)
	if params.checkpointer != nil {
		// The block cursor must be written after the block's
		// transaction-level checkpoints, so the block wrapper goes on the
		// outside.
		delivery = listener.NewCheckpointBlockListener(delivery, params.checkpointer)
	}

	session, err := n.newBlockSession(delivery, params)
	if err != nil {
		return nil, err
	}

	n.contractSessions[contractListener] = session
	if err := session.Start(); err != nil {
		delete(n.contractSessions, contractListener)
		return nil, err
	}
	return contractListener, nil
}

// RemoveContractListener unregisters a contract listener. Removing a
// listener that is not registered is a no-op.
func (n *Network) RemoveContractListener(contractListener listener.ContractListener) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	session, ok := n.contractSessions[contractListener]
	if !ok {
		return
	}
	delete(n.contractSessions, contractListener)
	session.Close()
}

// AddCommitListener registers a listener for commit notifications of one
// transaction from the given peers. Adding a listener that is already
// registered is a no-op; the existing registration is returned.
func (n *Network) AddCommitListener(commitListener listener.CommitListener, peers []api.Peer, transactionID string) (listener.CommitListener, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.closed {
		return nil, errors.New("network is closed")
	}
	if _, ok := n.commitSessions[commitListener]; ok {
		return commitListener, nil
	}

	session := listener.NewCommitListenerSession(n.mgr, commitListener, transactionID, peers)
	n.commitSessions[commitListener] = session
	if err := session.Start(); err != nil {
		delete(n.commitSessions, commitListener)
		return nil, err
	}
	return commitListener, nil
}

// RemoveCommitListener unregisters a commit listener. Removing a listener
// that is not registered is a no-op.
func (n *Network) RemoveCommitListener(commitListener listener.CommitListener) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	session, ok := n.commitSessions[commitListener]
	if !ok {
		return
	}
	delete(n.commitSessions, commitListener)
	session.Close()
}

// Close closes every listener session, the realtime sources and the
// manager's cached event services. The network may not be used afterwards.
func (n *Network) Close() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.closed {
		return
	}
	n.closed = true

	logger.Debugf("Closing network event sessions...")

	for _, session := range n.blockSessions {
		session.Close()
	}
	for _, session := range n.contractSessions {
		session.Close()
	}
	for _, session := range n.commitSessions {
		session.Close()
	}
	n.blockSessions = nil
	n.contractSessions = nil
	n.commitSessions = nil

	for _, src := range n.realtime {
		src.Close()
	}
	n.realtime = nil

	n.mgr.Close()
}

// newBlockSession builds the session appropriate to the requested delivery
// mode: a replay position yields an isolated session over a private
// source, otherwise the listener joins the shared realtime source for its
// block type. A checkpointer's stored position takes precedence over an
// explicit start block.
func (n *Network) newBlockSession(delivery source.BlockListener, params *listenerParams) (listener.Session, error) {
	startBlock := params.startBlock
	if params.checkpointer != nil {
		if blockNumber, ok := params.checkpointer.BlockNumber(); ok {
			startBlock = &blockNumber
		}
	}

	if startBlock != nil {
		src := source.New(n.mgr, params.blockType, startBlock, n.sourceOpts...)
		return listener.NewIsolatedBlockListenerSession(src, delivery), nil
	}
	return listener.NewSharedBlockListenerSession(n.realtimeSource(params.blockType), delivery), nil
}

// realtimeSource returns the shared realtime source for the given block
// type, creating it on first use. Shared sources are closed only by Close,
// never by listener removal.
func (n *Network) realtimeSource(blockType api.BlockType) *source.Source {
	src, ok := n.realtime[blockType]
	if !ok {
		logger.Debugf("Creating realtime event source for %s blocks", blockType)
		src = source.New(n.mgr, blockType, nil, n.sourceOpts...)
		n.realtime[blockType] = src
	}
	return src
}
