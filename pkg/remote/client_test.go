// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package remote

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/metrics"
	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// ============================================================
// Test helpers
// ============================================================

// fakeLink records sent lines and replays queued device lines from Run
type fakeLink struct {
	mu        sync.Mutex
	sent      []string
	sendErr   error
	state     link.State
	observers []func(link.StateChange)
	incoming  chan string
}

func newFakeLink() *fakeLink {
	return &fakeLink{state: link.Connected, incoming: make(chan string, 16)}
}

func (f *fakeLink) Send(line []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, string(line))
	return nil
}

func (f *fakeLink) Run(ctx context.Context, onLine func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-f.incoming:
			onLine(line)
		}
	}
}

func (f *fakeLink) State() link.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLink) Subscribe(fn func(link.StateChange)) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

func (f *fakeLink) Close() error { return nil }

func (f *fakeLink) setState(s link.State) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	observers := append([]func(link.StateChange){}, f.observers...)
	f.mu.Unlock()
	for _, fn := range observers {
		fn(link.StateChange{State: s, Prev: prev, At: time.Now()})
	}
}

func (f *fakeLink) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeLink) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// ============================================================
// Dispatch
// ============================================================

func TestHandleLine_MalformedLineTolerance(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	updates := 0
	c.Subscribe(func(mirror.Snapshot) { updates++ })

	c.HandleLine("garbage")
	c.HandleLine("TEMP:20,SETPOINT:20,HEAT:0")

	assert.Equal(t, []string{"ACK\n"}, fl.lines())
	assert.Equal(t, 1, updates)

	counters := c.Statistics().Snapshot()
	assert.Equal(t, uint64(1), counters.ParseErrors)
	assert.Equal(t, uint64(1), counters.StateReports)
	assert.Equal(t, uint64(1), counters.AcksSent)
}

func TestHandleLine_MalformedScheduleKeepsPrior(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	c.HandleLine("SCHEDULE:[06:00,21],[22:00,16]")
	before := c.Snapshot()

	c.HandleLine("SCHEDULE:[07:00,19]")
	c.HandleLine("SCHEDULE:[07:00,19],[08:00,18],[09:00,17]")

	assert.Equal(t, before, c.Snapshot())
	assert.Empty(t, fl.lines(), "schedule reports are not acknowledged")
	assert.Equal(t, uint64(2), c.Statistics().Snapshot().MalformedSchedules)
}

func TestHandleLine_AckFromDeviceIgnored(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	c.HandleLine("ACK")
	assert.Empty(t, fl.lines())
	assert.Equal(t, uint64(0), c.Snapshot().Version)
}

// ============================================================
// Intents
// ============================================================

func TestSetpointCommitAndEcho(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	c.AdjustSetpoint(+1)
	snap := c.AdjustSetpoint(+1)
	assert.Equal(t, 22, snap.PendingSetpoint)
	assert.True(t, snap.Unconfirmed)
	assert.Empty(t, fl.lines(), "adjusting is local only")

	require.NoError(t, c.CommitSetpoint())
	assert.Equal(t, []string{"SETPOINT:22\n"}, fl.lines())
	assert.True(t, c.Snapshot().EditPending)

	c.HandleLine("TEMP:21,SETPOINT:20,HEAT:1")
	assert.True(t, c.Snapshot().EditPending)

	c.HandleLine("TEMP:21,SETPOINT:22,HEAT:1")
	snap = c.Snapshot()
	assert.False(t, snap.EditPending)
	assert.Equal(t, 22, snap.Setpoint)
	assert.Equal(t, []string{"SETPOINT:22\n", "ACK\n", "ACK\n"}, fl.lines())
}

func TestCommitSetpoint_RepeatResends(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	c.AdjustSetpoint(+1)
	require.NoError(t, c.CommitSetpoint())
	c.AdjustSetpoint(+1)
	require.NoError(t, c.CommitSetpoint())

	assert.Equal(t, []string{"SETPOINT:21\n", "SETPOINT:22\n"}, fl.lines())
	assert.True(t, c.Snapshot().EditPending)
}

func TestCommitSetpoint_SendFailureLeavesEditPending(t *testing.T) {
	fl := newFakeLink()
	fl.setSendErr(link.ErrNotConnected)
	c := New(fl, Options{})

	c.AdjustSetpoint(-3)
	err := c.CommitSetpoint()
	assert.ErrorIs(t, err, link.ErrNotConnected)

	snap := c.Snapshot()
	assert.True(t, snap.EditPending)
	assert.Equal(t, 17, snap.PendingSetpoint)
	assert.Equal(t, uint64(1), c.Statistics().Snapshot().SendFailures)
}

func TestSchedule_RequestAndSubmit(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	require.NoError(t, c.RequestSchedule())
	c.HandleLine("SCHEDULE:[06:00,21],[22:00,16]")

	snap := c.Snapshot()
	require.True(t, snap.ScheduleKnown)
	assert.Equal(t, thermolink.ScheduleEntry{Hour: 6, Minute: 0, Setpoint: 21}, snap.Schedule[0])

	sched := snap.Schedule
	sched[1].Setpoint = 15
	require.NoError(t, c.SubmitSchedule(sched))

	assert.Equal(t, []string{"GETSCHEDULE\n", "SCHEDULE:[06:00,21],[22:00,15]\n"}, fl.lines())
}

func TestSubmitSchedule_Invalid(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	tests := []struct {
		name  string
		sched thermolink.Schedule
	}{
		{name: "hour", sched: thermolink.Schedule{{Hour: 24}, {Hour: 1}}},
		{name: "minute", sched: thermolink.Schedule{{Hour: 1, Minute: 60}, {Hour: 1}}},
		{name: "setpoint", sched: thermolink.Schedule{{Hour: 1}, {Hour: 1, Setpoint: 100}}},
		{name: "negative", sched: thermolink.Schedule{{Hour: -1}, {Hour: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SubmitSchedule(tt.sched)
			assert.ErrorIs(t, err, ErrInvalidSchedule)
		})
	}
	assert.Empty(t, fl.lines())
}

func TestResendPending(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := mirror.NewStoreWithClock(func() time.Time { return now })

	fl := newFakeLink()
	c := New(fl, Options{Store: store, ResendInterval: 5 * time.Second})

	sent, err := c.ResendPending()
	require.NoError(t, err)
	assert.False(t, sent)

	c.AdjustSetpoint(+4)
	require.NoError(t, c.CommitSetpoint())

	now = now.Add(5 * time.Second)
	sent, err = c.ResendPending()
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{"SETPOINT:24\n", "SETPOINT:24\n"}, fl.lines())

	c.HandleLine("TEMP:20,SETPOINT:24,HEAT:1")
	now = now.Add(time.Minute)
	sent, _ = c.ResendPending()
	assert.False(t, sent)
}

func TestResendPending_DisabledByDefault(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	c.AdjustSetpoint(+1)
	require.NoError(t, c.CommitSetpoint())
	sent, err := c.ResendPending()
	require.NoError(t, err)
	assert.False(t, sent)
}

// ============================================================
// Observers
// ============================================================

func TestTap(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	var traffic []Traffic
	c.Tap(func(tr Traffic) { traffic = append(traffic, tr) })

	c.HandleLine("bogus")
	c.HandleLine("TEMP:18,SETPOINT:19,HEAT:1")

	require.Len(t, traffic, 3)
	assert.True(t, traffic[0].Inbound)
	assert.Error(t, traffic[0].Err)
	assert.Equal(t, thermolink.StateReport{Temperature: 18, Setpoint: 19, HeatOn: true}, traffic[1].Msg)
	assert.False(t, traffic[2].Inbound)
	assert.Equal(t, "ACK", traffic[2].Line)
}

func TestMetricsWiring(t *testing.T) {
	fl := newFakeLink()
	m := metrics.New()
	c := New(fl, Options{Metrics: m})

	fl.setState(link.Disconnected)
	fl.setState(link.Connected)
	c.HandleLine("TEMP:19,SETPOINT:21,HEAT:1")
	c.AdjustSetpoint(+1)
	require.NoError(t, c.CommitSetpoint())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	assert.Contains(t, body, "thermoremote_temperature_celsius 19")
	assert.Contains(t, body, "thermoremote_edit_pending 1")
	assert.Contains(t, body, "thermoremote_pending_setpoint_celsius 22")
	assert.Contains(t, body, `thermoremote_messages_sent_total{kind="SETPOINT"} 1`)
	assert.Contains(t, body, "thermoremote_connects_total 1")
	assert.Contains(t, body, "thermoremote_connection_state 2")
}

func TestWaitFor(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.HandleLine("TEMP:20,SETPOINT:25,HEAT:0")
	}()

	snap, err := c.WaitFor(ctx, func(s mirror.Snapshot) bool { return s.Setpoint == 25 })
	require.NoError(t, err)
	assert.Equal(t, 25, snap.Setpoint)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = c.WaitFor(short, func(s mirror.Snapshot) bool { return s.Setpoint == 99 })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ============================================================
// Run
// ============================================================

func TestRun_DispatchesAndResends(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{ResendInterval: 40 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- c.Run(ctx) }()

	fl.incoming <- "TEMP:20,SETPOINT:20,HEAT:0"
	require.Eventually(t, func() bool { return len(fl.lines()) == 1 }, 2*time.Second, time.Millisecond)

	c.AdjustSetpoint(+1)
	require.NoError(t, c.CommitSetpoint())

	// No echo arrives, so the command goes out again
	require.Eventually(t, func() bool {
		n := 0
		for _, l := range fl.lines() {
			if l == "SETPOINT:21\n" {
				n++
			}
		}
		return n >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

// ============================================================
// Over a real connection
// ============================================================

func TestClient_OverPipe_GarbageThenReport(t *testing.T) {
	devices := make(chan net.Conn, 1)
	dial := func(ctx context.Context, ep link.Endpoint) (link.Transport, error) {
		client, device := net.Pipe()
		devices <- device
		return client, nil
	}

	c := NewForEndpoint(link.Endpoint{Kind: link.KindTCP, Address: "thermostat:5000"},
		link.Options{Dial: dial}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- c.Run(ctx) }()

	device := <-devices
	defer device.Close()

	updates := make(chan mirror.Snapshot, 4)
	c.Subscribe(func(s mirror.Snapshot) { updates <- s })

	go func() { _, _ = device.Write([]byte("garbage\nTEMP:20,SETPOINT:20,HEAT:0\n")) }()

	reader := bufio.NewReader(device)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ACK\n", line)

	select {
	case s := <-updates:
		assert.Equal(t, 20, s.Temperature)
	case <-time.After(2 * time.Second):
		t.Fatal("no state update")
	}
	assert.Len(t, updates, 0, "exactly one state update")

	require.NoError(t, c.Close())
	assert.NoError(t, <-result)
}

func TestStatistics_CountsReconnects(t *testing.T) {
	fl := newFakeLink()
	c := New(fl, Options{})

	fl.setState(link.Connecting)
	fl.setState(link.Connected)
	fl.setState(link.Disconnected)
	fl.setState(link.Connecting)
	fl.setState(link.Connected)

	counters := c.Statistics().Snapshot()
	assert.Equal(t, uint64(2), counters.Connects)
	assert.Equal(t, uint64(1), counters.Reconnects)
}
