// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Manager.Send while no connection is up
	ErrNotConnected = errors.New("link: not connected")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("link: closed")
)

// ConnectError reports a failed attempt to open the transport. It is fatal
// to that attempt only.
type ConnectError struct {
	Addr string
	Err  error
}

// Error implements the error interface
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying dial error
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransportError reports a read or write failure on an established
// connection. The connection is unusable afterwards.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error
func (e *TransportError) Unwrap() error {
	return e.Err
}
