// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/remote"
	"github.com/Thermoquad/thermoremote/pkg/simulator"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

const waitTimeout = 3 * time.Second

// startSimulator serves a fresh device on a loopback port
func startSimulator(t *testing.T, ctx context.Context) (*simulator.Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	dev := simulator.NewDevice(simulator.DeviceOptions{Temperature: intp(19), Setpoint: intp(20)})
	srv := simulator.NewServer(dev, simulator.ServerOptions{Heartbeat: 20 * time.Millisecond})
	go func() { _ = srv.Serve(ctx, ln) }()
	return srv, ln.Addr().String()
}

func startClient(t *testing.T, ctx context.Context, addr string, reconnect bool) *remote.Client {
	t.Helper()
	ep, err := link.ParseEndpoint(addr, "", 0)
	require.NoError(t, err)

	c := remote.NewForEndpoint(ep, link.Options{
		Reconnect:      reconnect,
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
	}, remote.Options{})
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, c *remote.Client, cond func(mirror.Snapshot) bool) mirror.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	snap, err := c.WaitFor(ctx, cond)
	require.NoError(t, err, "last snapshot: %+v", snap)
	return snap
}

func TestClientAgainstSimulator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, addr := startSimulator(t, ctx)
	c := startClient(t, ctx, addr, false)

	// First report mirrors the device
	snap := waitFor(t, c, func(s mirror.Snapshot) bool { return !s.ReportedAt.IsZero() })
	assert.Equal(t, 19, snap.Temperature)
	assert.Equal(t, 20, snap.Setpoint)
	assert.True(t, snap.HeatOn)

	// Every report is acknowledged
	require.Eventually(t, func() bool { return srv.Device().State().AcksSeen >= 2 }, waitTimeout, 5*time.Millisecond)

	// Operator edit confirmed by echo
	c.AdjustSetpoint(+1)
	c.AdjustSetpoint(+1)
	require.NoError(t, c.CommitSetpoint())
	snap = waitFor(t, c, func(s mirror.Snapshot) bool { return !s.EditPending && s.Setpoint == 22 })
	assert.Equal(t, 22, snap.PendingSetpoint)
	assert.Equal(t, 22, srv.Device().State().Setpoint)

	// Change made at the device overrides the mirror
	srv.Device().PressButton(-5)
	waitFor(t, c, func(s mirror.Snapshot) bool { return s.Setpoint == 17 && s.PendingSetpoint == 17 })

	// Schedule request and submission
	require.NoError(t, c.RequestSchedule())
	snap = waitFor(t, c, func(s mirror.Snapshot) bool { return s.ScheduleKnown })
	assert.Equal(t, thermolink.DefaultSchedule(), snap.Schedule)

	next := thermolink.Schedule{{Hour: 6, Minute: 45, Setpoint: 21}, {Hour: 22, Minute: 30, Setpoint: 16}}
	require.NoError(t, c.SubmitSchedule(next))
	require.Eventually(t, func() bool { return srv.Device().State().Schedule == next }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, c.RequestSchedule())
	waitFor(t, c, func(s mirror.Snapshot) bool { return s.Schedule == next })

	counters := c.Statistics().Snapshot()
	assert.Equal(t, uint64(0), counters.ParseErrors)
	assert.LessOrEqual(t, counters.StateReports-counters.AcksSent, uint64(1), "at most one ACK in flight")
}

func TestClientReconnectsToSimulator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reserve a port, then start the simulator on it only after the
	// client has begun retrying
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := startClient(t, ctx, addr, true)

	time.Sleep(30 * time.Millisecond)
	assert.NotEqual(t, link.Connected, c.LinkState())

	ln, err = net.Listen("tcp", addr)
	require.NoError(t, err)
	dev := simulator.NewDevice(simulator.DeviceOptions{Temperature: intp(21), Setpoint: intp(23)})
	srv := simulator.NewServer(dev, simulator.ServerOptions{Heartbeat: 20 * time.Millisecond})
	go func() { _ = srv.Serve(ctx, ln) }()

	snap := waitFor(t, c, func(s mirror.Snapshot) bool { return s.Setpoint == 23 })
	assert.Equal(t, 21, snap.Temperature)
	assert.Equal(t, link.Connected, c.LinkState())
}

func intp(v int) *int { return &v }
