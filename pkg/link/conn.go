// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/thermoremote/pkg/logging"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// readBufferSize matches the device's own receive buffer
const readBufferSize = 1024

var errReadLoopRunning = errors.New("link: read loop already running")

// Conn is one established connection. It owns its transport: exactly one
// goroutine runs ReadLoop, any goroutine may Send, and writes are
// serialized so lines never interleave.
type Conn struct {
	transport Transport
	endpoint  Endpoint
	session   string
	log       *logging.Logger

	framer     *thermolink.Framer
	onOverlong func(int)

	writeMu    sync.Mutex
	dispatchMu sync.Mutex // held while onLine runs

	reading  atomic.Bool
	closed   atomic.Bool // Close has been called
	failMu   sync.Mutex
	failErr  error // first write failure
	shutOnce sync.Once
	shutErr  error
}

// NewConn wraps an open transport. session identifies the connection in
// logs; onOverlong, if set, is told how many oversized lines were dropped.
func NewConn(t Transport, ep Endpoint, session string, log *logging.Logger, onOverlong func(int)) *Conn {
	if log == nil {
		log = logging.Nop()
	}
	return &Conn{
		transport:  t,
		endpoint:   ep,
		session:    session,
		log:        log,
		framer:     thermolink.NewFramer(),
		onOverlong: onOverlong,
	}
}

// Session returns the connection's session id
func (c *Conn) Session() string {
	return c.session
}

// Endpoint returns the endpoint this connection was opened for
func (c *Conn) Endpoint() Endpoint {
	return c.endpoint
}

// ReadLoop reads until the connection closes or fails, calling onLine once
// per complete line in arrival order, without its terminator. It returns
// nil after Close and a *TransportError otherwise.
//
// onLine runs on the read goroutine and may call Send. It must not call
// Close, which waits for onLine to return.
func (c *Conn) ReadLoop(onLine func(line string)) error {
	if !c.reading.CompareAndSwap(false, true) {
		return errReadLoopRunning
	}

	emit := func(line string) {
		c.dispatch(onLine, line)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			if dropped := c.framer.Feed(buf[:n], emit); dropped > 0 {
				c.log.Warnw("dropped overlong line", "count", dropped, "limit", thermolink.MaxLineLength)
				if c.onOverlong != nil {
					c.onOverlong(dropped)
				}
			}
		}
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			if ferr := c.failure(); ferr != nil {
				return ferr
			}
			return &TransportError{Op: "read", Err: err}
		}
	}
}

// dispatch delivers one line unless the connection has been closed
func (c *Conn) dispatch(onLine func(string), line string) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	if c.closed.Load() {
		return
	}
	onLine(line)
}

// Send writes one newline-terminated message. A write failure is returned
// as *TransportError and shuts the transport down so the read loop exits;
// it never blocks waiting for the reader.
func (c *Conn) Send(line []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	_, err := c.transport.Write(line)
	c.writeMu.Unlock()

	if err != nil {
		terr := &TransportError{Op: "write", Err: err}
		c.fail(terr)
		return terr
	}
	return nil
}

// Close shuts the transport down. It is idempotent, and no onLine call is
// in progress or will start once it returns.
func (c *Conn) Close() error {
	c.closed.Store(true)
	err := c.shutdown()

	// Barrier: wait out a line that was being handled when we closed
	c.dispatchMu.Lock()
	c.dispatchMu.Unlock()

	return err
}

// Closed reports whether Close has been called
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) fail(err error) {
	c.failMu.Lock()
	if c.failErr == nil {
		c.failErr = err
	}
	c.failMu.Unlock()

	c.log.Warnw("write failed", "err", err)
	_ = c.shutdown()
}

func (c *Conn) failure() error {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	return c.failErr
}

func (c *Conn) shutdown() error {
	c.shutOnce.Do(func() {
		c.shutErr = c.transport.Close()
	})
	return c.shutErr
}
