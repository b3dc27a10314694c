/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package protoutil

import (
	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/peer"
)

// TxValidationFlags is the array of transaction validation codes stored in
// the block metadata. It is used at commit time to record the validation
// outcome of each transaction, one byte per envelope in the block.
type TxValidationFlags []uint8

// BlockTxValidationFlags extracts the transaction validation flags from the
// metadata of the given block.
func BlockTxValidationFlags(block *common.Block) TxValidationFlags {
	if block.Metadata == nil || len(block.Metadata.Metadata) <= int(common.BlockMetadataIndex_TRANSACTIONS_FILTER) {
		return nil
	}
	return TxValidationFlags(block.Metadata.Metadata[common.BlockMetadataIndex_TRANSACTIONS_FILTER])
}

// Flag returns the validation code for the transaction at the given index.
// An index outside the recorded flags is reported as invalid rather than
// valid so that a truncated metadata array cannot mark transactions valid.
func (obj TxValidationFlags) Flag(txIndex int) peer.TxValidationCode {
	if txIndex < 0 || txIndex >= len(obj) {
		return peer.TxValidationCode_INVALID_OTHER_REASON
	}
	return peer.TxValidationCode(obj[txIndex])
}

// IsValid checks if the specified transaction is valid.
func (obj TxValidationFlags) IsValid(txIndex int) bool {
	return obj.Flag(txIndex) == peer.TxValidationCode_VALID
}
