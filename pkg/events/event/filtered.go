/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/util/concurrent/lazyref"
)

// NewFilteredBlockEvent wraps a raw filtered block event.
func NewFilteredBlockEvent(raw *api.RawBlockEvent) (*BlockEvent, error) {
	if raw.FilteredBlock == nil {
		return nil, errors.New("raw event contains no filtered block data")
	}

	e := &BlockEvent{
		blockNumber: raw.FilteredBlock.Number,
		blockType:   api.Filtered,
		raw:         raw,
	}
	e.transactions = lazyref.New(func() (interface{}, error) {
		return filteredTransactionEvents(e)
	})

	return e, nil
}

func filteredTransactionEvents(block *BlockEvent) (interface{}, error) {
	filteredTxs := block.raw.FilteredBlock.FilteredTransactions
	transactions := make([]*TransactionEvent, 0, len(filteredTxs))

	for _, filteredTx := range filteredTxs {
		status, valid, err := validationStatus(filteredTx.TxValidationCode)
		if err != nil {
			return nil, err
		}

		tx := &TransactionEvent{
			TransactionID: filteredTx.Txid,
			Code:          filteredTx.TxValidationCode,
			Status:        status,
			Valid:         valid,
			block:         block,
		}

		actions := filteredTx.GetTransactionActions()
		tx.contractEvents = lazyref.New(func() (interface{}, error) {
			return filteredContractEvents(tx, actions), nil
		})

		transactions = append(transactions, tx)
	}

	return transactions, nil
}

// filteredContractEvents extracts the chaincode events of one filtered
// transaction. Filtered blocks carry event names but no payloads.
func filteredContractEvents(tx *TransactionEvent, actions *pb.FilteredTransactionActions) []*ContractEvent {
	if actions == nil {
		return nil
	}

	var events []*ContractEvent
	for _, action := range actions.ChaincodeActions {
		ccEvent := action.ChaincodeEvent
		if ccEvent == nil {
			continue
		}
		events = append(events, &ContractEvent{
			ChaincodeID: ccEvent.ChaincodeId,
			EventName:   ccEvent.EventName,
			tx:          tx,
		})
	}

	return events
}
