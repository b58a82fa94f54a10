// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/logging"
	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/remote"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the thermostat",
	Long: `Control the thermostat via an interactive terminal UI.

Features:
  - Live temperature, setpoint and heating state
  - Setpoint adjustment with explicit send (up/down, then enter)
  - Confirmation tracking: a sent setpoint stays highlighted until the
    thermostat echoes it, or is replaced if changed at the device
  - Schedule display and refresh
  - Statistics and event logging
  - Automatic reconnection on connection loss

Adjusting the setpoint while disconnected is allowed; the value is kept and
can be sent once the connection is back.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// uiFeed coalesces client callbacks into batches for the TUI so the link
// goroutines never wait on rendering
type uiFeed struct {
	mu     sync.Mutex
	snap   *mirror.Snapshot
	links  []link.StateChange
	events []logEntry
}

func (f *uiFeed) pushSnapshot(s mirror.Snapshot) {
	f.mu.Lock()
	if f.snap == nil || s.Version > f.snap.Version {
		f.snap = &s
	}
	f.mu.Unlock()
}

func (f *uiFeed) pushLink(ch link.StateChange) {
	f.mu.Lock()
	f.links = append(f.links, ch)
	f.mu.Unlock()
}

func (f *uiFeed) pushTraffic(t remote.Traffic) {
	if t.Err == nil {
		return
	}
	msg := fmt.Sprintf("dropped line %q: %v", t.Line, t.Err)
	if !t.Inbound {
		msg = fmt.Sprintf("send %q failed: %v", t.Line, t.Err)
	}
	f.mu.Lock()
	if len(f.events) < maxLogEntries {
		f.events = append(f.events, logEntry{timestamp: t.At, message: msg, isError: true})
	}
	f.mu.Unlock()
}

// take returns the pending batch, or false if nothing changed
func (f *uiFeed) take() (controlBatchMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	batch := controlBatchMsg{snapshot: f.snap, links: f.links, events: f.events}
	f.snap, f.links, f.events = nil, nil, nil
	return batch, batch.snapshot != nil || len(batch.links) > 0 || len(batch.events) > 0
}

// run sends batches to p at a fixed rate until done is closed
func (f *uiFeed) run(p *tea.Program, done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if batch, ok := f.take(); ok {
				p.Send(batch)
			}
		}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	// Without a terminal, fall back to the plain traffic log
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runMonitor(cmd, args)
	}

	// Keep log output from tearing the alt screen
	if cfg.LogFile == "" {
		log = logging.Nop()
	}

	c, connInfo, err := OpenClient(nil)
	if err != nil {
		return err
	}

	feed := &uiFeed{}
	c.Subscribe(feed.pushSnapshot)
	c.SubscribeLink(feed.pushLink)
	c.Tap(feed.pushTraffic)

	m := initialControlModel(c, connInfo, c.Snapshot())
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, stop := signalContext()
	defer stop()
	done := startClient(ctx, c)

	feedDone := make(chan struct{})
	go feed.run(p, feedDone)

	_, tuiErr := p.Run()
	close(feedDone)
	c.Close()
	runErr := runResult(<-done)

	if tuiErr != nil {
		return fmt.Errorf("TUI error: %v", tuiErr)
	}
	return runErr
}
