/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package listener provides the session objects that bind one application
// listener to one delivery mechanism: a shared realtime block event source,
// a private replay source, or dedicated per-peer commit registrations. A
// session moves through unstarted, active and closed; closed is terminal
// and a session is never reused.
package listener

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/common/logging"
	"github.com/hyperledger/fabric-network-go/pkg/events/source"
)

var logger = logging.NewLogger("fabnet/events")

const (
	stateUnstarted int32 = iota
	stateActive
	stateClosed
)

// Session is the lifecycle handle of one registered listener. Close is
// idempotent.
type Session interface {
	Start() error
	Close()
}

// SharedBlockListenerSession attaches a block listener to a long-lived
// realtime event source owned by the network. Closing the session detaches
// the listener but leaves the shared source running for its other sessions.
type SharedBlockListenerSession struct {
	state    int32
	source   *source.Source
	listener source.BlockListener
}

// NewSharedBlockListenerSession creates a session over the given shared
// source.
func NewSharedBlockListenerSession(src *source.Source, listener source.BlockListener) *SharedBlockListenerSession {
	return &SharedBlockListenerSession{source: src, listener: listener}
}

// Start attaches the listener. A session may be started at most once.
func (s *SharedBlockListenerSession) Start() error {
	if !atomic.CompareAndSwapInt32(&s.state, stateUnstarted, stateActive) {
		return errors.New("listener session has already been started")
	}
	if err := s.source.AddBlockListener(s.listener); err != nil {
		atomic.StoreInt32(&s.state, stateClosed)
		return err
	}
	return nil
}

// Close detaches the listener from the shared source.
func (s *SharedBlockListenerSession) Close() {
	if atomic.SwapInt32(&s.state, stateClosed) == stateClosed {
		return
	}
	s.source.RemoveBlockListener(s.listener)
}

// IsolatedBlockListenerSession owns a private event source created for one
// replay. No other session depends on the source, so closing the session
// also closes it.
type IsolatedBlockListenerSession struct {
	state    int32
	source   *source.Source
	listener source.BlockListener
}

// NewIsolatedBlockListenerSession creates a session that takes ownership of
// the given source.
func NewIsolatedBlockListenerSession(src *source.Source, listener source.BlockListener) *IsolatedBlockListenerSession {
	return &IsolatedBlockListenerSession{source: src, listener: listener}
}

// Start attaches the listener, starting the private source.
func (s *IsolatedBlockListenerSession) Start() error {
	if !atomic.CompareAndSwapInt32(&s.state, stateUnstarted, stateActive) {
		return errors.New("listener session has already been started")
	}
	if err := s.source.AddBlockListener(s.listener); err != nil {
		atomic.StoreInt32(&s.state, stateClosed)
		s.source.Close()
		return err
	}
	return nil
}

// Close detaches the listener and closes the private source.
func (s *IsolatedBlockListenerSession) Close() {
	if atomic.SwapInt32(&s.state, stateClosed) == stateClosed {
		return
	}
	s.source.RemoveBlockListener(s.listener)
	s.source.Close()
}
