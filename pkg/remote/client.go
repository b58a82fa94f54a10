// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package remote is the operator-facing thermostat client. It feeds device
// lines through the codec into the mirror, answers every state report, and
// turns operator intents into commands.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/logging"
	"github.com/Thermoquad/thermoremote/pkg/metrics"
	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// ErrInvalidSchedule is returned by SubmitSchedule for out-of-range entries
var ErrInvalidSchedule = errors.New("invalid schedule")

// Link is the connection the client drives. *link.Manager implements it.
type Link interface {
	Send(line []byte) error
	Run(ctx context.Context, onLine func(string)) error
	State() link.State
	Subscribe(fn func(link.StateChange))
	Close() error
}

// Traffic describes one line in either direction
type Traffic struct {
	At      time.Time
	Inbound bool
	Line    string // without terminator
	Msg     thermolink.Message
	Err     error // decode error (inbound) or send error (outbound)
}

// Options configures a Client
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// ResendInterval re-sends a committed setpoint that has gone
	// unconfirmed this long. Zero waits for the echo indefinitely.
	ResendInterval time.Duration

	// Store lets callers supply a store, e.g. one with a fixed clock
	Store *mirror.Store
}

// Client is the command facade over one thermostat link
type Client struct {
	link    Link
	store   *mirror.Store
	stats   *thermolink.Statistics
	metrics *metrics.Metrics
	log     *logging.Logger

	resendInterval time.Duration

	tapMu sync.RWMutex
	taps  []func(Traffic)
}

// New creates a client over l
func New(l Link, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Store == nil {
		opts.Store = mirror.NewStore()
	}

	c := &Client{
		link:           l,
		store:          opts.Store,
		stats:          thermolink.NewStatistics(),
		metrics:        opts.Metrics,
		log:            opts.Logger,
		resendInterval: opts.ResendInterval,
	}

	l.Subscribe(c.onStateChange)
	if c.metrics != nil {
		c.store.Subscribe(func(s mirror.Snapshot) {
			c.metrics.SetMirror(s.Temperature, s.Setpoint, s.PendingSetpoint, s.HeatOn, s.EditPending)
		})
	}
	return c
}

// NewForEndpoint creates a client with its own link.Manager for ep
func NewForEndpoint(ep link.Endpoint, lopts link.Options, opts Options) *Client {
	if lopts.Logger == nil {
		lopts.Logger = opts.Logger
	}
	var c *Client
	lopts.OnOverlong = func(n int) { c.RecordOverlong(n) }
	c = New(link.NewManager(ep, lopts), opts)
	return c
}

// Store returns the mirror the client reconciles into
func (c *Client) Store() *mirror.Store {
	return c.store
}

// Snapshot returns the current mirrored state
func (c *Client) Snapshot() mirror.Snapshot {
	return c.store.Snapshot()
}

// Subscribe registers a listener for mirror changes
func (c *Client) Subscribe(fn func(mirror.Snapshot)) (cancel func()) {
	return c.store.Subscribe(fn)
}

// SubscribeLink registers a listener for connection state changes
func (c *Client) SubscribeLink(fn func(link.StateChange)) {
	c.link.Subscribe(fn)
}

// LinkState returns the connection state
func (c *Client) LinkState() link.State {
	return c.link.State()
}

// Statistics returns the traffic counters
func (c *Client) Statistics() *thermolink.Statistics {
	return c.stats
}

// Tap registers fn to see every line sent or received. fn runs on the
// sending or reading goroutine and must not block.
func (c *Client) Tap(fn func(Traffic)) {
	c.tapMu.Lock()
	c.taps = append(c.taps, fn)
	c.tapMu.Unlock()
}

// AdjustSetpoint moves the pending setpoint by delta (normally +1 or -1),
// clamped to 0..99. Nothing is sent until CommitSetpoint.
func (c *Client) AdjustSetpoint(delta int) mirror.Snapshot {
	return c.store.Adjust(delta)
}

// CommitSetpoint marks the pending setpoint as an outstanding edit and
// sends it. Calling again before the echo re-sends the latest value.
func (c *Client) CommitSetpoint() error {
	v, _ := c.store.BeginCommit()
	c.log.Infow("committing setpoint", "setpoint", v)
	return c.send(thermolink.SetpointCommand{Setpoint: v})
}

// RequestSchedule asks the device for its schedule. The reply arrives
// asynchronously and is visible through Subscribe.
func (c *Client) RequestSchedule() error {
	return c.send(thermolink.GetSchedule{})
}

// SubmitSchedule validates and sends a new schedule. The device's next
// SCHEDULE report is the only confirmation.
func (c *Client) SubmitSchedule(s thermolink.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	c.log.Infow("submitting schedule", "entry1", s[0].String(), "entry2", s[1].String())
	return c.send(thermolink.ScheduleMessage{Schedule: s})
}

// ResendPending sends the outstanding setpoint again if it has gone
// unconfirmed for the resend interval. It reports whether a send happened.
func (c *Client) ResendPending() (bool, error) {
	v, due := c.store.ResendDue(c.resendInterval)
	if !due {
		return false, nil
	}
	c.metrics.ObserveResend()
	c.log.Infow("setpoint unconfirmed, sending again", "setpoint", v, "interval", c.resendInterval)
	return true, c.send(thermolink.SetpointCommand{Setpoint: v})
}

// HandleLine processes one line from the device. Undecodable lines are
// counted, logged and dropped; state reports are answered with ACK.
func (c *Client) HandleLine(line string) {
	msg, err := thermolink.Decode(line)
	c.stats.RecordReceived(msg, err)
	c.metrics.ObserveReceived(msg, err)
	c.tap(Traffic{At: time.Now(), Inbound: true, Line: line, Msg: msg, Err: err})

	if err != nil {
		c.log.Warnw("dropping line", "line", line, "err", err)
		return
	}

	for _, reply := range c.store.Apply(msg) {
		// A failed ACK ends the session; the link reports it
		_ = c.send(reply)
	}
}

// RecordOverlong counts lines the framer dropped for length
func (c *Client) RecordOverlong(n int) {
	c.stats.RecordOverlong(n)
	c.metrics.ObserveOverlong(n)
}

// Run drives the link until ctx is cancelled or the link gives up, and
// re-sends unconfirmed setpoints when a resend interval is configured
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return c.link.Run(gctx, c.HandleLine)
	})

	if c.resendInterval > 0 {
		g.Go(func() error {
			c.resendLoop(gctx)
			return nil
		})
	}

	return g.Wait()
}

// Close shuts the link down
func (c *Client) Close() error {
	return c.link.Close()
}

// WaitFor blocks until the mirror satisfies cond or ctx ends
func (c *Client) WaitFor(ctx context.Context, cond func(mirror.Snapshot) bool) (mirror.Snapshot, error) {
	ch := make(chan mirror.Snapshot, 1)
	cancel := c.store.Subscribe(func(s mirror.Snapshot) {
		if cond(s) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer cancel()

	if s := c.store.Snapshot(); cond(s) {
		return s, nil
	}

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return c.store.Snapshot(), ctx.Err()
	}
}

func (c *Client) resendLoop(ctx context.Context) {
	tick := c.resendInterval / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.link.State() != link.Connected {
				continue
			}
			_, _ = c.ResendPending()
		}
	}
}

func (c *Client) send(msg thermolink.Message) error {
	line := thermolink.Encode(msg)
	err := c.link.Send(line)

	c.stats.RecordSent(msg, err)
	c.metrics.ObserveSent(msg, err)
	c.tap(Traffic{At: time.Now(), Line: thermolink.EncodeString(msg), Msg: msg, Err: err})

	if err != nil {
		c.log.Warnw("send failed", "message", msg.Kind().String(), "err", err)
	}
	return err
}

func (c *Client) tap(t Traffic) {
	c.tapMu.RLock()
	defer c.tapMu.RUnlock()
	for _, fn := range c.taps {
		fn(t)
	}
}

func (c *Client) onStateChange(ch link.StateChange) {
	connected := ch.State == link.Connected
	lost := ch.Prev == link.Connected && ch.State == link.Disconnected
	c.metrics.SetConnectionState(int(ch.State), connected, lost)

	switch {
	case connected:
		c.stats.RecordConnect()
		c.log.Infow("link up", "session", ch.Session)
	case lost && ch.Err != nil:
		c.log.Warnw("link down", "session", ch.Session, "err", ch.Err)
	case lost:
		c.log.Infow("link closed", "session", ch.Session)
	}
}
