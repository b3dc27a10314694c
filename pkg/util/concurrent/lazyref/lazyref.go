/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lazyref

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Initializer is a function that initializes the value
type Initializer func() (interface{}, error)

// valueHolder holds the actual value
type valueHolder struct {
	value interface{}
}

// Reference holds a value that is initialized on first access using the
// provided Initializer function. Once the initializer has succeeded the
// same value is returned from every subsequent call to Get or MustGet.
// If the initializer returns an error then the value remains unset and
// the next access invokes the initializer again.
type Reference struct {
	mutex       sync.Mutex
	ref         unsafe.Pointer
	initializer Initializer
}

// New creates a new reference
func New(initializer Initializer) *Reference {
	return &Reference{initializer: initializer}
}

// Get returns the value, or an error if the initializer returned an error.
func (r *Reference) Get() (interface{}, error) {
	// Try outside of a lock
	if value, ok := r.get(); ok {
		return value, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Try again inside the lock
	if value, ok := r.get(); ok {
		return value, nil
	}

	value, err := r.initializer()
	if err != nil {
		return nil, err
	}
	r.set(value)

	return value, nil
}

// MustGet returns the value. If an error is returned during initialization
// of the value then this function panics.
func (r *Reference) MustGet() interface{} {
	value, err := r.Get()
	if err != nil {
		panic("error returned from Get: " + err.Error())
	}
	return value
}

// IsSet returns true if the value has been initialized.
func (r *Reference) IsSet() bool {
	_, ok := r.get()
	return ok
}

func (r *Reference) get() (interface{}, bool) {
	p := atomic.LoadPointer(&r.ref)
	if p == nil {
		return nil, false
	}
	return (*valueHolder)(p).value, true
}

func (r *Reference) set(value interface{}) {
	atomic.StorePointer(&r.ref, unsafe.Pointer(&valueHolder{value: value}))
}
