/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package event provides immutable views over raw block payloads delivered
// by peer event sources. A block event exposes its transaction events, and a
// transaction event its contract events, as lazily computed, memoized
// collections so that repeated access is cheap and deterministic.
package event

import (
	"fmt"

	"github.com/hyperledger/fabric-protos-go/ledger/rwset"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/common/logging"
	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/util/concurrent/lazyref"
)

var logger = logging.NewLogger("fabnet/events")

// BlockEvent is an immutable view over a raw block event.
type BlockEvent struct {
	blockNumber  uint64
	blockType    api.BlockType
	raw          *api.RawBlockEvent
	transactions *lazyref.Reference
}

// New wraps a raw event using the factory for its block type.
func New(raw *api.RawBlockEvent) (*BlockEvent, error) {
	switch raw.Type {
	case api.Filtered:
		return NewFilteredBlockEvent(raw)
	case api.Full:
		return NewFullBlockEvent(raw)
	case api.PrivateData:
		return NewPrivateBlockEvent(raw)
	default:
		return nil, errors.Errorf("unsupported block type: %s", raw.Type)
	}
}

// BlockNumber returns the block's position in the ledger.
func (e *BlockEvent) BlockNumber() uint64 {
	return e.blockNumber
}

// Type returns the fidelity of the block data.
func (e *BlockEvent) Type() api.BlockType {
	return e.blockType
}

// Raw returns the underlying raw event.
func (e *BlockEvent) Raw() *api.RawBlockEvent {
	return e.raw
}

// SourceURL returns the URL of the peer that delivered the block, if known.
func (e *BlockEvent) SourceURL() string {
	return e.raw.SourceURL
}

// TransactionEvents returns the block's transaction events in block order.
// The collection is computed at most once and cached.
func (e *BlockEvent) TransactionEvents() ([]*TransactionEvent, error) {
	value, err := e.transactions.Get()
	if err != nil {
		return nil, err
	}
	return value.([]*TransactionEvent), nil
}

// TransactionEvent is the view of one transaction within a block.
type TransactionEvent struct {
	// TransactionID is the unique ID of the transaction
	TransactionID string
	// Code is the protocol validation code recorded at commit
	Code pb.TxValidationCode
	// Status is the symbolic name of the validation code
	Status string
	// Valid is true only for transactions committed with the VALID code
	Valid bool

	block          *BlockEvent
	privateData    *rwset.TxPvtReadWriteSet
	contractEvents *lazyref.Reference
}

// Block returns the block event containing this transaction.
func (t *TransactionEvent) Block() *BlockEvent {
	return t.block
}

// PrivateData returns the transaction's private data read/write sets. It is
// nil unless the owning block was delivered with private data.
func (t *TransactionEvent) PrivateData() *rwset.TxPvtReadWriteSet {
	return t.privateData
}

// ContractEvents returns the chaincode events emitted by this transaction.
// The collection is computed at most once and cached.
func (t *TransactionEvent) ContractEvents() ([]*ContractEvent, error) {
	value, err := t.contractEvents.Get()
	if err != nil {
		return nil, err
	}
	return value.([]*ContractEvent), nil
}

// ContractEvent is a chaincode event emitted by a transaction. Payload is
// nil for filtered blocks.
type ContractEvent struct {
	ChaincodeID string
	EventName   string
	Payload     []byte

	tx *TransactionEvent
}

// Transaction returns the transaction event that emitted this event.
func (e *ContractEvent) Transaction() *TransactionEvent {
	return e.tx
}

// validationStatus maps a protocol validation code to its symbolic name.
// An unrecognized code is a hard error: silently treating it as invalid
// could mask a protocol mismatch.
func validationStatus(code pb.TxValidationCode) (string, bool, error) {
	name, ok := pb.TxValidationCode_name[int32(code)]
	if !ok {
		return "", false, errors.Errorf("unexpected transaction validation code: %d", code)
	}
	return name, code == pb.TxValidationCode_VALID, nil
}

// CommitEvent notifies that one peer has committed a given transaction.
type CommitEvent struct {
	// Peer is the peer that delivered the notification
	Peer api.Peer
	// TransactionID is the committed transaction's ID
	TransactionID string
	// Code is the validation code the peer committed the transaction with
	Code pb.TxValidationCode
	// Status is the symbolic name of the validation code
	Status string
	// Valid is true only for the VALID code
	Valid bool
	// BlockNumber is the number of the block containing the transaction
	BlockNumber uint64
}

// NewCommitEvent decorates a raw transaction status event with the peer
// that produced it.
func NewCommitEvent(peer api.Peer, raw *api.TxStatusEvent) (*CommitEvent, error) {
	status, valid, err := validationStatus(raw.Code)
	if err != nil {
		return nil, err
	}
	return &CommitEvent{
		Peer:          peer,
		TransactionID: raw.TransactionID,
		Code:          raw.Code,
		Status:        status,
		Valid:         valid,
		BlockNumber:   raw.BlockNumber,
	}, nil
}

// CommitError is a peer-scoped commit listening failure. A failure on one
// peer must not prevent notifications from the others, so it is delivered
// to the listener as a value rather than aborting the registration.
type CommitError struct {
	Peer api.Peer
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("peer [%s]: %s", e.Peer.URL(), e.Err)
}

// Cause returns the underlying error.
func (e *CommitError) Cause() error {
	return e.Err
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
