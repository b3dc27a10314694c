/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package listener

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/hyperledger/fabric-network-go/pkg/events/api"
	"github.com/hyperledger/fabric-network-go/pkg/events/event"
	"github.com/hyperledger/fabric-network-go/pkg/events/source"
)

// ContractListener receives the chaincode events emitted by committed,
// valid transactions of one chaincode.
type ContractListener interface {
	ReceiveContractEvent(e *event.ContractEvent) error
}

// contractBlockListener adapts a contract listener to the block delivery
// pipeline. Only transactions committed as valid are considered; invalid
// transactions never reach contract listeners.
type contractBlockListener struct {
	chaincodeID  string
	listener     ContractListener
	checkpointer api.Checkpointer
}

// NewContractBlockListener derives a block listener from a contract
// listener by flattening each block into the contract events of its valid
// transactions, filtered by chaincode ID. With a non-nil checkpointer,
// transaction IDs already recorded for the current block are skipped and
// each transaction's ID is recorded only after its events were delivered
// successfully.
func NewContractBlockListener(chaincodeID string, listener ContractListener, checkpointer api.Checkpointer) source.BlockListener {
	return &contractBlockListener{
		chaincodeID:  chaincodeID,
		listener:     listener,
		checkpointer: checkpointer,
	}
}

// ReceiveBlock delivers the block's qualifying contract events. Every
// qualifying transaction is attempted even when an earlier one fails;
// failures are aggregated into the returned error.
func (l *contractBlockListener) ReceiveBlock(blockEvent *event.BlockEvent) error {
	transactions, err := blockEvent.TransactionEvents()
	if err != nil {
		return err
	}

	var delivered map[string]bool
	if l.checkpointer != nil {
		delivered = l.checkpointer.TransactionIDs()
	}

	var errs *multierror.Error
	for _, tx := range transactions {
		if !tx.Valid {
			continue
		}
		if delivered[tx.TransactionID] {
			continue
		}

		if err := l.deliverTransaction(tx); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		if l.checkpointer != nil {
			if err := l.checkpointer.AddTransactionID(tx.TransactionID); err != nil {
				errs = multierror.Append(errs, errors.WithMessagef(err, "error checkpointing transaction [%s]", tx.TransactionID))
			}
		}
	}
	return errs.ErrorOrNil()
}

func (l *contractBlockListener) deliverTransaction(tx *event.TransactionEvent) error {
	contractEvents, err := tx.ContractEvents()
	if err != nil {
		return errors.WithMessagef(err, "error getting contract events for transaction [%s]", tx.TransactionID)
	}

	for _, contractEvent := range contractEvents {
		if contractEvent.ChaincodeID != l.chaincodeID {
			continue
		}
		if err := l.listener.ReceiveContractEvent(contractEvent); err != nil {
			return errors.WithMessagef(err, "error delivering contract event for transaction [%s]", tx.TransactionID)
		}
	}
	return nil
}
