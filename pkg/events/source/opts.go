/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"time"

	"github.com/hyperledger/fabric-network-go/pkg/common/options"
)

type params struct {
	restartDelay time.Duration
}

func defaultParams() *params {
	return &params{
		restartDelay: 5 * time.Second,
	}
}

// WithRestartDelay sets the delay before the source attempts to reconnect
// after a transport error, and between subsequent retries.
func WithRestartDelay(value time.Duration) options.Opt {
	return func(p options.Params) {
		if setter, ok := p.(restartDelaySetter); ok {
			setter.SetRestartDelay(value)
		}
	}
}

type restartDelaySetter interface {
	SetRestartDelay(value time.Duration)
}

func (p *params) SetRestartDelay(value time.Duration) {
	logger.Debugf("RestartDelay: %s", value)
	p.restartDelay = value
}
