/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
)

// MockEventService is a scriptable event source. Blocks stored on its
// ledger are replayed when the service is started with a start position,
// honoring the deliver protocol's exclusive-except-at-zero semantics, and
// delivered live to registered callbacks once started.
type MockEventService struct {
	mutex         sync.Mutex
	peers         []api.Peer
	ledger        []*api.RawBlockEvent
	blockRegs     []*mockBlockReg
	txRegs        map[string][]*mockTxReg
	startRequests    []*api.StartRequest
	started          bool
	closed           bool
	startErr         error
	startCallbackErr error
	registerErr      error
	unregisterErr    error
}

// NewEventService creates a mock event service for the given peers.
func NewEventService(peers ...api.Peer) *MockEventService {
	return &MockEventService{
		peers:  peers,
		txRegs: make(map[string][]*mockTxReg),
	}
}

type mockBlockReg struct {
	service  *MockEventService
	callback api.BlockCallback
}

func (r *mockBlockReg) Unregister() error {
	return r.service.unregisterBlock(r)
}

type mockTxReg struct {
	service  *MockEventService
	txID     string
	callback api.TxStatusCallback
}

func (r *mockTxReg) Unregister() error {
	return r.service.unregisterTx(r)
}

// RegisterBlockListener registers a block callback.
func (s *MockEventService) RegisterBlockListener(callback api.BlockCallback) (api.Registration, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.registerErr != nil {
		return nil, s.registerErr
	}
	reg := &mockBlockReg{service: s, callback: callback}
	s.blockRegs = append(s.blockRegs, reg)
	return reg, nil
}

// RegisterTxStatusListener registers a transaction status callback.
func (s *MockEventService) RegisterTxStatusListener(txID string, callback api.TxStatusCallback) (api.Registration, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.registerErr != nil {
		return nil, s.registerErr
	}
	reg := &mockTxReg{service: s, txID: txID, callback: callback}
	s.txRegs[txID] = append(s.txRegs[txID], reg)
	return reg, nil
}

// Start records the start request and replays the stored ledger from the
// requested position.
func (s *MockEventService) Start(request *api.StartRequest) error {
	s.mutex.Lock()
	s.startRequests = append(s.startRequests, request)

	if s.startErr != nil {
		err := s.startErr
		s.mutex.Unlock()
		return err
	}
	if s.closed {
		s.mutex.Unlock()
		return errors.New("event service is closed")
	}
	s.started = true

	if s.startCallbackErr != nil {
		err := s.startCallbackErr
		s.startCallbackErr = nil
		regs := s.blockRegsSnapshot()
		s.mutex.Unlock()

		for _, reg := range regs {
			reg.callback(nil, err)
		}
		return nil
	}

	var replay []*api.RawBlockEvent
	if request.StartBlock != nil {
		from := *request.StartBlock
		for _, raw := range s.ledger {
			number, err := raw.Number()
			if err != nil {
				continue
			}
			if from == 0 || number > from {
				replay = append(replay, raw)
			}
		}
	}
	regs := s.blockRegsSnapshot()
	s.mutex.Unlock()

	for _, raw := range replay {
		for _, reg := range regs {
			reg.callback(raw, nil)
		}
	}
	return nil
}

// Close marks the service closed.
func (s *MockEventService) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	s.started = false
}

// Closed returns true if the service has been closed.
func (s *MockEventService) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// Started returns true if the service has been started and not closed.
func (s *MockEventService) Started() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.started
}

// StartRequests returns every start request the service has received.
func (s *MockEventService) StartRequests() []*api.StartRequest {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]*api.StartRequest{}, s.startRequests...)
}

// NumBlockRegistrations returns the number of active block registrations.
func (s *MockEventService) NumBlockRegistrations() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.blockRegs)
}

// NumTxRegistrations returns the number of active transaction status
// registrations.
func (s *MockEventService) NumTxRegistrations() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var num int
	for _, regs := range s.txRegs {
		num += len(regs)
	}
	return num
}

// Store appends a block to the ledger and, if the service is started,
// delivers it to the registered block callbacks.
func (s *MockEventService) Store(raw *api.RawBlockEvent) {
	s.mutex.Lock()
	s.ledger = append(s.ledger, raw)
	started := s.started
	regs := s.blockRegsSnapshot()
	s.mutex.Unlock()

	if !started {
		return
	}
	for _, reg := range regs {
		reg.callback(raw, nil)
	}
}

// Deliver sends a raw block event to the registered block callbacks without
// storing it.
func (s *MockEventService) Deliver(raw *api.RawBlockEvent) {
	s.mutex.Lock()
	regs := s.blockRegsSnapshot()
	s.mutex.Unlock()

	for _, reg := range regs {
		reg.callback(raw, nil)
	}
}

// DeliverError sends a transport error to the registered block callbacks.
func (s *MockEventService) DeliverError(err error) {
	s.mutex.Lock()
	regs := s.blockRegsSnapshot()
	s.mutex.Unlock()

	for _, reg := range regs {
		reg.callback(nil, err)
	}
}

// CommitTransaction sends a transaction status event to the callbacks
// registered for its transaction ID.
func (s *MockEventService) CommitTransaction(event *api.TxStatusEvent) {
	s.mutex.Lock()
	regs := append([]*mockTxReg{}, s.txRegs[event.TransactionID]...)
	s.mutex.Unlock()

	for _, reg := range regs {
		reg.callback(event, nil)
	}
}

// DeliverTxError sends a transport error to the callbacks registered for
// the given transaction ID.
func (s *MockEventService) DeliverTxError(txID string, err error) {
	s.mutex.Lock()
	regs := append([]*mockTxReg{}, s.txRegs[txID]...)
	s.mutex.Unlock()

	for _, reg := range regs {
		reg.callback(nil, err)
	}
}

// InjectStartCallbackError causes the next call to Start to deliver the
// given transport error to the registered block callbacks from within Start
// itself, as a connection that fails once the start request hits the wire
// would.
func (s *MockEventService) InjectStartCallbackError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.startCallbackErr = err
}

// InjectStartError causes subsequent calls to Start to fail.
func (s *MockEventService) InjectStartError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.startErr = err
}

// InjectRegisterError causes subsequent registrations to fail.
func (s *MockEventService) InjectRegisterError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.registerErr = err
}

// InjectUnregisterError causes subsequent unregistrations to fail.
func (s *MockEventService) InjectUnregisterError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.unregisterErr = err
}

func (s *MockEventService) blockRegsSnapshot() []*mockBlockReg {
	return append([]*mockBlockReg{}, s.blockRegs...)
}

func (s *MockEventService) unregisterBlock(reg *mockBlockReg) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.unregisterErr != nil {
		return s.unregisterErr
	}
	for i, r := range s.blockRegs {
		if r == reg {
			s.blockRegs = append(s.blockRegs[:i], s.blockRegs[i+1:]...)
			return nil
		}
	}
	return errors.New("the provided registration is invalid")
}

func (s *MockEventService) unregisterTx(reg *mockTxReg) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.unregisterErr != nil {
		return s.unregisterErr
	}
	regs := s.txRegs[reg.txID]
	for i, r := range regs {
		if r == reg {
			s.txRegs[reg.txID] = append(regs[:i], regs[i+1:]...)
			return nil
		}
	}
	return errors.New("the provided registration is invalid")
}
