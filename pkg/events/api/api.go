/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package api defines the contracts between the ordered block-event delivery
// core and its collaborators: the peer event sources that produce raw block
// events, the discovery service that supplies peers, and the checkpointer
// that records delivery progress.
package api

import (
	cb "github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/ledger/rwset"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
)

// BlockType specifies the fidelity of block data delivered by an event source.
type BlockType int

const (
	// Filtered delivers summary-only blocks (transaction IDs, validation
	// codes and chaincode event names without payloads)
	Filtered BlockType = iota
	// Full delivers complete block envelopes
	Full
	// PrivateData delivers complete block envelopes along with the private
	// data collections for each transaction
	PrivateData
)

func (t BlockType) String() string {
	switch t {
	case Filtered:
		return "filtered"
	case Full:
		return "full"
	case PrivateData:
		return "private"
	default:
		return "unknown"
	}
}

// RawBlockEvent is the payload produced by an event source. Exactly one of
// the block fields is populated, according to Type. PrivateData is keyed by
// the transaction's envelope index within the block.
type RawBlockEvent struct {
	Type          BlockType
	FilteredBlock *pb.FilteredBlock
	Block         *cb.Block
	PrivateData   map[uint64]*rwset.TxPvtReadWriteSet
	SourceURL     string
}

// Number returns the block number carried by the event.
func (e *RawBlockEvent) Number() (uint64, error) {
	if e.FilteredBlock != nil {
		return e.FilteredBlock.Number, nil
	}
	if e.Block != nil && e.Block.Header != nil {
		return e.Block.Header.Number, nil
	}
	return 0, errors.New("raw event contains no block data")
}

// BlockCallback is invoked by an event source with either a raw block event
// or a transport error, never both.
type BlockCallback func(event *RawBlockEvent, err error)

// TxStatusEvent notifies that a transaction has been committed with the
// given validation code.
type TxStatusEvent struct {
	TransactionID string
	Code          pb.TxValidationCode
	BlockNumber   uint64
}

// TxStatusCallback is invoked by an event source with either a transaction
// status event or a transport error.
type TxStatusCallback func(event *TxStatusEvent, err error)

// Registration is a handle to a listener registration on an event source.
type Registration interface {
	// Unregister removes the registration from the event source
	Unregister() error
}

// StartRequest describes how an event source's delivery stream is started.
type StartRequest struct {
	BlockType BlockType
	// StartBlock is the position from which the stream resumes. The deliver
	// protocol treats the position as exclusive of itself except at zero,
	// so callers wanting block N first should request N-1. A nil value
	// requests the server default (newest).
	StartBlock *uint64
}

// EventService is the capability consumed from a peer event source. The wire
// protocol behind it is owned by the collaborator; the core only builds,
// starts and closes it.
type EventService interface {
	// RegisterBlockListener registers a callback for raw block events and
	// transport errors. The registration persists until explicitly
	// unregistered; replay positions are carried by the start request.
	RegisterBlockListener(callback BlockCallback) (Registration, error)

	// RegisterTxStatusListener registers a callback for the commit of the
	// given transaction ID
	RegisterTxStatusListener(txID string, callback TxStatusCallback) (Registration, error)

	// Start begins delivery of events according to the given request
	Start(request *StartRequest) error

	// Close releases the connection. Close is idempotent.
	Close()
}

// Peer is the endpoint of a network peer.
type Peer interface {
	// URL returns the peer's address
	URL() string
	// MSPID returns the ID of the MSP that the peer belongs to
	MSPID() string
}

// DiscoveryService supplies the peers of a channel.
type DiscoveryService interface {
	GetPeers() ([]Peer, error)
}

// EventServiceFactory creates event service connections to the given peers.
// A multi-peer service is expected to try the peers in order.
type EventServiceFactory interface {
	CreateEventService(peers []Peer) (EventService, error)
}

// Checkpointer is a durable cursor of delivery progress, consulted before a
// replay to pick a resume point and updated after successful delivery.
type Checkpointer interface {
	// BlockNumber returns the current block checkpoint and whether one
	// has been recorded
	BlockNumber() (uint64, bool)

	// SetBlockNumber records the block checkpoint
	SetBlockNumber(blockNumber uint64) error

	// TransactionIDs returns the transaction IDs already delivered within
	// the current block
	TransactionIDs() map[string]bool

	// AddTransactionID records a transaction ID as delivered within the
	// current block
	AddTransactionID(txID string) error
}
