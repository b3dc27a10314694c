/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	cb "github.com/hyperledger/fabric-protos-go/common"
	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/internal/protoutil"
	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/util/concurrent/lazyref"
)

// NewFullBlockEvent wraps a raw full block event.
func NewFullBlockEvent(raw *api.RawBlockEvent) (*BlockEvent, error) {
	return newFullBlockEvent(raw, api.Full)
}

// NewPrivateBlockEvent wraps a raw full block event that carries the
// private data collections of its transactions.
func NewPrivateBlockEvent(raw *api.RawBlockEvent) (*BlockEvent, error) {
	if raw.PrivateData == nil {
		return nil, errors.New("raw event contains no private data")
	}
	return newFullBlockEvent(raw, api.PrivateData)
}

func newFullBlockEvent(raw *api.RawBlockEvent, blockType api.BlockType) (*BlockEvent, error) {
	if raw.Block == nil || raw.Block.Header == nil {
		return nil, errors.New("raw event contains no block data")
	}
	if raw.Block.Data == nil {
		return nil, errors.New("block contains no data")
	}

	e := &BlockEvent{
		blockNumber: raw.Block.Header.Number,
		blockType:   blockType,
		raw:         raw,
	}
	e.transactions = lazyref.New(func() (interface{}, error) {
		return fullTransactionEvents(e)
	})

	return e, nil
}

// fullTransactionEvents derives the transaction events of a full block.
// Only endorser-transaction envelopes become transaction events, but the
// validation flags and private data are indexed by the envelope's original
// position in the block, so the index is taken before filtering.
func fullTransactionEvents(block *BlockEvent) (interface{}, error) {
	rawBlock := block.raw.Block
	txFilter := protoutil.BlockTxValidationFlags(rawBlock)

	var transactions []*TransactionEvent
	for i, envBytes := range rawBlock.Data.Data {
		envelope, err := protoutil.GetEnvelopeFromBlock(envBytes)
		if err != nil {
			return nil, errors.WithMessagef(err, "error extracting envelope %d from block %d", i, block.blockNumber)
		}

		payload, err := protoutil.GetPayload(envelope)
		if err != nil {
			return nil, err
		}
		if payload.Header == nil {
			return nil, errors.Errorf("envelope %d in block %d has no header", i, block.blockNumber)
		}

		channelHeader, err := protoutil.UnmarshalChannelHeader(payload.Header.ChannelHeader)
		if err != nil {
			return nil, err
		}

		if cb.HeaderType(channelHeader.Type) != cb.HeaderType_ENDORSER_TRANSACTION {
			continue
		}

		status, valid, err := validationStatus(txFilter.Flag(i))
		if err != nil {
			return nil, err
		}

		tx := &TransactionEvent{
			TransactionID: channelHeader.TxId,
			Code:          txFilter.Flag(i),
			Status:        status,
			Valid:         valid,
			block:         block,
		}

		if block.blockType == api.PrivateData {
			tx.privateData = block.raw.PrivateData[uint64(i)]
		}

		txData := payload.Data
		tx.contractEvents = lazyref.New(func() (interface{}, error) {
			return fullContractEvents(tx, txData)
		})

		transactions = append(transactions, tx)
	}

	return transactions, nil
}

// fullContractEvents extracts the chaincode events of one endorser
// transaction, payloads included.
func fullContractEvents(tx *TransactionEvent, txData []byte) (interface{}, error) {
	transaction, err := protoutil.GetTransaction(txData)
	if err != nil {
		return nil, err
	}

	var events []*ContractEvent
	for _, action := range transaction.Actions {
		ccActionPayload, err := protoutil.GetChaincodeActionPayload(action.Payload)
		if err != nil {
			return nil, err
		}
		if ccActionPayload.Action == nil {
			continue
		}

		propRespPayload, err := protoutil.GetProposalResponsePayload(ccActionPayload.Action.ProposalResponsePayload)
		if err != nil {
			return nil, err
		}

		ccAction, err := protoutil.GetChaincodeAction(propRespPayload.Extension)
		if err != nil {
			return nil, err
		}
		if len(ccAction.Events) == 0 {
			continue
		}

		ccEvent, err := protoutil.GetChaincodeEvents(ccAction.Events)
		if err != nil {
			return nil, err
		}

		events = append(events, &ContractEvent{
			ChaincodeID: ccEvent.ChaincodeId,
			EventName:   ccEvent.EventName,
			Payload:     ccEvent.Payload,
			tx:          tx,
		})
	}

	return events, nil
}
