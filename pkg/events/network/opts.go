/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package network

import (
	"github.com/hyperledger/fabric-network-go/pkg/common/options"
	"github.com/hyperledger/fabric-network-go/pkg/events/api"
)

type listenerParams struct {
	blockType    api.BlockType
	startBlock   *uint64
	checkpointer api.Checkpointer
}

func defaultListenerParams() *listenerParams {
	return &listenerParams{
		blockType: api.Filtered,
	}
}

// WithBlockType sets the fidelity of the block data delivered to the
// listener. The default is filtered blocks.
func WithBlockType(value api.BlockType) options.Opt {
	return func(p options.Params) {
		if setter, ok := p.(blockTypeSetter); ok {
			setter.SetBlockType(value)
		}
	}
}

// WithStartBlock requests a replay from the given block number. The
// listener gets a private event source delivering from that position
// instead of joining the shared realtime stream.
func WithStartBlock(value uint64) options.Opt {
	return func(p options.Params) {
		if setter, ok := p.(startBlockSetter); ok {
			setter.SetStartBlock(value)
		}
	}
}

// WithCheckpointer attaches a checkpointer to the registration. A
// checkpointer holding a position resumes delivery from it, overriding any
// explicit start block.
func WithCheckpointer(value api.Checkpointer) options.Opt {
	return func(p options.Params) {
		if setter, ok := p.(checkpointerSetter); ok {
			setter.SetCheckpointer(value)
		}
	}
}

type blockTypeSetter interface {
	SetBlockType(value api.BlockType)
}

type startBlockSetter interface {
	SetStartBlock(value uint64)
}

type checkpointerSetter interface {
	SetCheckpointer(value api.Checkpointer)
}

func (p *listenerParams) SetBlockType(value api.BlockType) {
	logger.Debugf("BlockType: %s", value)
	p.blockType = value
}

func (p *listenerParams) SetStartBlock(value uint64) {
	logger.Debugf("StartBlock: %d", value)
	p.startBlock = &value
}

func (p *listenerParams) SetCheckpointer(value api.Checkpointer) {
	p.checkpointer = value
}
