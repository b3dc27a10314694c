/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lazyref

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	expectedValue := "Data"

	var numInvocations int32
	ref := New(func() (interface{}, error) {
		atomic.AddInt32(&numInvocations, 1)
		return expectedValue, nil
	})

	assert.False(t, ref.IsSet())

	value, err := ref.Get()
	require.NoError(t, err)
	assert.Equal(t, expectedValue, value)
	assert.True(t, ref.IsSet())

	value, err = ref.Get()
	require.NoError(t, err)
	assert.Equal(t, expectedValue, value)
	assert.EqualValues(t, 1, atomic.LoadInt32(&numInvocations))
}

func TestGetWithError(t *testing.T) {
	expectedValue := "Data"

	var numInvocations int32
	ref := New(func() (interface{}, error) {
		if atomic.AddInt32(&numInvocations, 1) == 1 {
			return nil, errors.New("initializer error")
		}
		return expectedValue, nil
	})

	_, err := ref.Get()
	require.Error(t, err)
	assert.False(t, ref.IsSet())

	// The initializer is retried after a failure
	value, err := ref.Get()
	require.NoError(t, err)
	assert.Equal(t, expectedValue, value)
}

func TestMustGetPanics(t *testing.T) {
	ref := New(func() (interface{}, error) {
		return nil, errors.New("some error")
	})

	assert.Panics(t, func() {
		ref.MustGet()
	})
}

func TestConcurrentGet(t *testing.T) {
	var numInvocations int32
	ref := New(func() (interface{}, error) {
		atomic.AddInt32(&numInvocations, 1)
		return "Data", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := ref.Get()
			assert.NoError(t, err)
			assert.Equal(t, "Data", value)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&numInvocations))
}
