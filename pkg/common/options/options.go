/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package options implements functional options over opaque parameter
// structs. An option targets a parameter through a setter interface, so a
// caller may pass any mix of options to any constructor and each parameter
// struct picks up only the setters it implements.
package options

// Params is an opaque parameter holder. Implementations expose setter
// interfaces for the options they accept.
type Params interface{}

// Opt applies one parameter to a Params.
type Opt func(params Params)

// Apply applies the given options in order. Nil options are skipped.
func Apply(params Params, opts []Opt) {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(params)
	}
}
