/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package source drives one underlying peer event service, re-sequences its
// raw block events into strictly increasing order and fans the ordered
// blocks out to a dynamic set of registered block listeners. Transport
// errors are recovered by reconnecting with a resume position that neither
// re-delivers consumed blocks nor skips any.
package source

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/common/logging"
	"github.com/hyperledger/fabric-network-go/pkg/common/options"
	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/blockqueue"
	"github.com/hyperledger/fabric-network-go/pkg/events/event"
	"github.com/hyperledger/fabric-network-go/pkg/events/manager"
	"github.com/hyperledger/fabric-network-go/pkg/events/notifier"
)

var logger = logging.NewLogger("fabnet/events")

const (
	stateNotStarted int32 = iota
	stateStarting
	stateStarted
	stateClosed
)

// BlockListener receives ordered block events. A listener's error is logged
// and isolated; it never halts delivery to other listeners or the source's
// progress.
type BlockListener interface {
	ReceiveBlock(e *event.BlockEvent) error
}

// Source is a block event source over one event service connection. The
// source's lifetime is managed by its owner, not by listener cardinality: a
// shared realtime source survives having zero listeners.
//
// The mutex is never held across a call into the event service. The
// service is free to invoke the block callback synchronously from Start,
// Unregister or Close, and the callback's error path re-enters the source.
type Source struct {
	params
	mutex        sync.Mutex
	state        int32
	mgr          *manager.Manager
	blockType    api.BlockType
	queue        *blockqueue.Queue
	notif        *notifier.Notifier
	listeners    map[BlockListener]bool
	service      api.EventService
	registration api.Registration
	resetPending bool
}

// New creates a source for the given block type. A non-nil startBlock makes
// this a replay source that delivers from that position; otherwise the
// source tails the ledger from the newest block.
func New(mgr *manager.Manager, blockType api.BlockType, startBlock *uint64, opts ...options.Opt) *Source {
	params := defaultParams()
	options.Apply(params, opts)

	s := &Source{
		params:    *params,
		mgr:       mgr,
		blockType: blockType,
		queue:     blockqueue.New(startBlock),
		listeners: make(map[BlockListener]bool),
	}
	s.notif = notifier.New(s.nextBlock, s.notifyListeners)

	return s
}

// AddBlockListener adds the listener to the delivery set and starts the
// source if it is not already running. Adding a listener that is already
// registered is a no-op.
func (s *Source) AddBlockListener(listener BlockListener) error {
	s.mutex.Lock()
	if s.getState() == stateClosed {
		s.mutex.Unlock()
		return errors.New("block event source is closed")
	}
	if s.listeners[listener] {
		s.mutex.Unlock()
		return nil
	}
	s.listeners[listener] = true
	s.mutex.Unlock()

	if err := s.start(); err != nil {
		s.mutex.Lock()
		delete(s.listeners, listener)
		s.mutex.Unlock()
		return err
	}
	return nil
}

// RemoveBlockListener removes the listener from the delivery set. The
// source keeps running; its lifetime is governed by its owning session.
// Removing an unregistered listener is a no-op.
func (s *Source) RemoveBlockListener(listener BlockListener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.listeners, listener)
}

// Close stops event delivery and releases the underlying event service.
// Close is idempotent. An in-flight delivery is allowed to complete.
func (s *Source) Close() {
	s.mutex.Lock()
	if s.getState() == stateClosed {
		s.mutex.Unlock()
		return
	}
	atomic.StoreInt32(&s.state, stateClosed)
	service, registration := s.takeService()
	s.mutex.Unlock()

	s.stopService(service, registration)
	s.notif.Close()
}

// start connects the source. The transition through starting happens at
// most once per connection attempt; a concurrent caller that loses the
// race returns immediately and its listener is served by the winner's
// connection. The block callback is registered before the start request is
// issued so that no event can arrive without a callback attached.
func (s *Source) start() error {
	if !s.setState(stateNotStarted, stateStarting) {
		return nil
	}

	service, err := s.mgr.NewDefaultEventService()
	if err != nil {
		s.setState(stateStarting, stateNotStarted)
		return errors.WithMessage(err, "error creating event service")
	}

	registration, err := service.RegisterBlockListener(s.onEvent)
	if err != nil {
		service.Close()
		s.setState(stateStarting, stateNotStarted)
		return errors.WithMessage(err, "error registering block callback")
	}

	s.mutex.Lock()
	s.service = service
	s.registration = registration
	request := s.startRequest()
	s.mutex.Unlock()

	if err := s.mgr.StartEventService(service, request); err != nil {
		s.mutex.Lock()
		service, registration = s.takeService()
		s.resetPending = false
		s.mutex.Unlock()

		s.stopService(service, registration)
		s.setState(stateStarting, stateNotStarted)
		return err
	}

	if !s.setState(stateStarting, stateStarted) {
		// Closed while starting. Tear down whatever Close did not reach;
		// takeService yields nil fields if it already did.
		s.mutex.Lock()
		service, registration = s.takeService()
		s.resetPending = false
		s.mutex.Unlock()

		s.stopService(service, registration)
		return nil
	}

	s.mutex.Lock()
	pending := s.resetPending
	s.resetPending = false
	s.mutex.Unlock()

	if pending {
		// A transport error arrived from within Start itself.
		s.reset()
	}
	return nil
}

// startRequest computes the delivery start position. The deliver protocol's
// start block is exclusive of itself, so the request carries the next
// expected block number minus one, clamped at zero. If no start boundary
// exists yet (nothing has flowed and no replay position was given), the
// position is omitted so a reconnect before any data does not replay from
// block zero.
func (s *Source) startRequest() *api.StartRequest {
	request := &api.StartRequest{BlockType: s.blockType}

	next, ok := s.queue.NextBlockNumber()
	if !ok {
		return request
	}

	startBlock := uint64(0)
	if next > 0 {
		startBlock = next - 1
	}
	request.StartBlock = &startBlock

	return request
}

// onEvent is the callback registered with the event service. It is invoked
// with either a raw block event or a transport error.
func (s *Source) onEvent(raw *api.RawBlockEvent, err error) {
	if err != nil {
		logger.Warnf("Event service error: %s. Reconnecting...", err)
		s.reset()
		return
	}

	blockEvent, err := s.newBlockEvent(raw)
	if err != nil {
		logger.Errorf("Discarding block event: %s", err)
		return
	}

	s.queue.Add(blockEvent)
	if s.queue.Size() > 0 {
		s.notif.Notify()
	}
}

// newBlockEvent wraps a raw event using the factory for the source's
// configured block type.
func (s *Source) newBlockEvent(raw *api.RawBlockEvent) (*event.BlockEvent, error) {
	switch s.blockType {
	case api.Filtered:
		return event.NewFilteredBlockEvent(raw)
	case api.Full:
		return event.NewFullBlockEvent(raw)
	case api.PrivateData:
		return event.NewPrivateBlockEvent(raw)
	default:
		return nil, errors.Errorf("unsupported block type: %s", s.blockType)
	}
}

// reset tears down the current connection and schedules a restart on a
// timer. The restart is never performed synchronously since reset may be
// called from within the event service's error callback. An error arriving
// while the connection is still starting is remembered and replayed once
// the start attempt settles.
func (s *Source) reset() {
	s.mutex.Lock()
	if s.getState() == stateStarting {
		s.resetPending = true
		s.mutex.Unlock()
		return
	}
	if !s.setState(stateStarted, stateNotStarted) {
		s.mutex.Unlock()
		return
	}
	service, registration := s.takeService()
	s.mutex.Unlock()

	s.stopService(service, registration)

	time.AfterFunc(s.restartDelay, s.restart)
}

// restart attempts to reconnect, retrying on a timer until it succeeds or
// the source is closed. The resumed start request uses the next undelivered
// block number if any block was ever queued, so consumed blocks are not
// re-delivered and none are skipped.
func (s *Source) restart() {
	if s.getState() != stateNotStarted {
		return
	}

	if err := s.start(); err != nil {
		logger.Warnf("Error restarting block event source: %s. Retrying in %s.", err, s.restartDelay)
		if s.getState() != stateClosed {
			time.AfterFunc(s.restartDelay, s.restart)
		}
	}
}

// takeService clears the connection fields and returns them for teardown.
// Callers must hold s.mutex.
func (s *Source) takeService() (api.EventService, api.Registration) {
	service, registration := s.service, s.registration
	s.service = nil
	s.registration = nil
	return service, registration
}

// stopService unregisters the block callback and closes the event service,
// outside the source mutex. Unregister failures are logged rather than
// propagated since the connection may already be dead.
func (s *Source) stopService(service api.EventService, registration api.Registration) {
	if registration != nil {
		if err := registration.Unregister(); err != nil {
			logger.Warnf("Error unregistering block callback: %s", err)
		}
	}
	if service != nil {
		s.mgr.StopTracking(service)
		service.Close()
	}
}

func (s *Source) nextBlock() (interface{}, bool) {
	e, ok := s.queue.Next()
	if !ok {
		return nil, false
	}
	return e, true
}

// notifyListeners delivers one ordered block to every registered listener
// concurrently and waits for all of them to settle. A listener's failure or
// panic never prevents delivery to its siblings and never halts the
// pipeline.
func (s *Source) notifyListeners(item interface{}) {
	blockEvent := item.(*event.BlockEvent)

	s.mutex.Lock()
	listeners := make([]BlockListener, 0, len(s.listeners))
	for listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.mutex.Unlock()

	var wg sync.WaitGroup
	for _, listener := range listeners {
		wg.Add(1)
		go func(listener BlockListener) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					logger.Errorf("Panic delivering block %d to listener: %s", blockEvent.BlockNumber(), p)
				}
			}()
			if err := listener.ReceiveBlock(blockEvent); err != nil {
				logger.Warnf("Error delivering block %d to listener: %s", blockEvent.BlockNumber(), err)
			}
		}(listener)
	}
	wg.Wait()
}

func (s *Source) getState() int32 {
	return atomic.LoadInt32(&s.state)
}

func (s *Source) setState(expectedState, newState int32) bool {
	return atomic.CompareAndSwapInt32(&s.state, expectedState, newState)
}
