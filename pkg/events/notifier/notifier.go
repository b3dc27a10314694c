/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package notifier provides a single-flight drain coordinator: concurrent
// wake-ups are coalesced into one active draining pass that pulls items
// from a producer callback and hands them to a consumer callback in order.
package notifier

import (
	"sync"

	"github.com/hyperledger/fabric-network-go/pkg/common/logging"
)

var logger = logging.NewLogger("fabnet/events")

// Next reads the next available item from the producer. It returns false
// when no item is ready.
type Next func() (interface{}, bool)

// Handle processes one item. Items are handled strictly sequentially, in
// the order Next yields them.
type Handle func(interface{})

// Notifier runs a single worker that drains the producer whenever it is
// notified. At most one drain executes at a time; a notification arriving
// mid-drain is a no-op because the running drain polls the live producer
// until it reports empty. The wake channel has capacity one so a
// notification sent between the drain observing empty and the worker going
// back to sleep is never lost.
type Notifier struct {
	next      Next
	handle    Handle
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a notifier and starts its worker.
func New(next Next, handle Handle) *Notifier {
	n := &Notifier{
		next:   next,
		handle: handle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify wakes the worker. It never blocks; redundant notifications are
// dropped.
func (n *Notifier) Notify() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Close stops the worker. An in-flight item is handled to completion.
// Close is idempotent.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.done)
	})
}

func (n *Notifier) run() {
	for {
		select {
		case <-n.wake:
			n.drain()
		case <-n.done:
			logger.Debugf("Notifier closed. Exiting drain worker.")
			return
		}
	}
}

func (n *Notifier) drain() {
	for {
		item, ok := n.next()
		if !ok {
			return
		}
		n.handle(item)
	}
}
