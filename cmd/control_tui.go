// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries = 100
	logHeight     = 8
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// thermostatControl is what the UI drives. *remote.Client implements it.
type thermostatControl interface {
	AdjustSetpoint(delta int) mirror.Snapshot
	CommitSetpoint() error
	RequestSchedule() error
	Statistics() *thermolink.Statistics
}

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type controlKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Commit   key.Binding
	Schedule key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k controlKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Commit, k.Help, k.Quit}
}

func (k controlKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Commit},
		{k.Schedule, k.Help, k.Quit},
	}
}

var controlKeys = controlKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k", "+"),
		key.WithHelp("↑/+", "warmer"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j", "-"),
		key.WithHelp("↓/-", "cooler"),
	),
	Commit: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "send setpoint"),
	),
	Schedule: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "refresh schedule"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctl      thermostatControl
	connInfo string

	// Mirrored state as last delivered
	snap      mirror.Snapshot
	linkState link.State

	stats    thermolink.Counters
	eventLog []logEntry

	keys controlKeyMap
	help help.Model

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

// controlBatchMsg carries everything that changed since the last batch
type controlBatchMsg struct {
	snapshot *mirror.Snapshot
	links    []link.StateChange
	events   []logEntry
}

// sendResultMsg reports the outcome of a command sent off the UI goroutine
type sendResultMsg struct {
	what string
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(ctl thermostatControl, connInfo string, snap mirror.Snapshot) controlModel {
	return controlModel{
		ctl:       ctl,
		connInfo:  connInfo,
		snap:      snap,
		linkState: link.Disconnected,
		eventLog:  make([]logEntry, 0),
		keys:      controlKeys,
		help:      help.New(),
		width:     80,
		height:    24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case controlTickMsg:
		m.stats = m.ctl.Statistics().Snapshot()
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, ch := range msg.links {
			m.applyLinkChange(ch)
		}
		for _, e := range msg.events {
			m.addLogEntry(e)
		}
		if msg.snapshot != nil {
			m.applySnapshot(*msg.snapshot)
		}

	case sendResultMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("%s failed: %v", msg.what, msg.err), true)
		} else {
			m.addLog(msg.what+" sent", false)
		}
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.applySnapshot(m.ctl.AdjustSetpoint(1))

	case key.Matches(msg, m.keys.Down):
		m.applySnapshot(m.ctl.AdjustSetpoint(-1))

	case key.Matches(msg, m.keys.Commit):
		if m.linkState != link.Connected {
			m.addLog("not connected; setpoint kept for later", true)
			return m, nil
		}
		return m, m.sendCmd(fmt.Sprintf("setpoint %d", m.snap.PendingSetpoint), m.ctl.CommitSetpoint)

	case key.Matches(msg, m.keys.Schedule):
		return m, m.sendCmd("schedule request", m.ctl.RequestSchedule)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	return m, nil
}

// sendCmd runs a send off the UI goroutine
func (m controlModel) sendCmd(what string, send func() error) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{what: what, err: send()}
	}
}

//////////////////////////////////////////////////////////////
// State Processing
//////////////////////////////////////////////////////////////

// applySnapshot keeps the newest snapshot and logs edit outcomes
func (m *controlModel) applySnapshot(s mirror.Snapshot) {
	if s.Version < m.snap.Version {
		return
	}
	prev := m.snap
	m.snap = s

	switch {
	case prev.EditPending && !s.EditPending:
		m.addLog(fmt.Sprintf("setpoint %d confirmed", s.Setpoint), false)
	case !s.EditPending && !prev.ReportedAt.IsZero() && s.Setpoint != prev.Setpoint:
		m.addLog(fmt.Sprintf("setpoint changed at the thermostat to %d", s.Setpoint), false)
	}
	if s.ScheduleKnown && (!prev.ScheduleKnown || prev.Schedule != s.Schedule) {
		m.addLog(fmt.Sprintf("schedule %s %s", s.Schedule[0], s.Schedule[1]), false)
	}
}

func (m *controlModel) applyLinkChange(ch link.StateChange) {
	m.linkState = ch.State
	switch {
	case ch.State == link.Connected:
		m.addLog("connected", false)
	case ch.Prev == link.Connected && ch.Err != nil:
		m.addLog(fmt.Sprintf("connection lost: %v", ch.Err), true)
	case ch.Prev == link.Connecting && ch.Err != nil:
		m.addLog(fmt.Sprintf("connect failed: %v", ch.Err), true)
	}
}

func (m *controlModel) addLog(message string, isError bool) {
	m.addLogEntry(logEntry{timestamp: time.Now(), message: message, isError: isError})
}

func (m *controlModel) addLogEntry(e logEntry) {
	m.eventLog = append(m.eventLog, e)
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	bigValueStyle = valueStyle.
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	heatOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("208")).
			Padding(0, 1)

	heatOffStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("39")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("THERMOREMOTE"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render("| " + m.connInfo + " | "))
	s.WriteString(m.renderLinkState())
	s.WriteString("\n\n")

	// Thermostat | schedule
	half := (m.width - 6) / 2
	if half < 28 {
		half = 28
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Width(half).Render(m.renderThermostat()),
		" ",
		boxStyle.Width(half).Render(m.renderSchedule()),
	))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")
	s.WriteString(m.renderEventLog())
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m controlModel) renderLinkState() string {
	switch m.linkState {
	case link.Connected:
		return valueStyle.Render("CONNECTED")
	case link.Connecting:
		return warningStyle.Render("CONNECTING...")
	default:
		return errorStyle.Render("DISCONNECTED")
	}
}

func (m controlModel) renderThermostat() string {
	var s strings.Builder
	snap := m.snap

	s.WriteString(labelStyle.Render("THERMOSTAT"))
	s.WriteString("\n\n")

	if snap.ReportedAt.IsZero() {
		s.WriteString(headerStyle.Render("waiting for first report"))
		s.WriteString("\n")
	} else {
		fmt.Fprintf(&s, "%s %s\n", labelStyle.Render("Temperature:"), bigValueStyle.Render(fmt.Sprintf("%d°", snap.Temperature)))
		fmt.Fprintf(&s, "%s %s\n", labelStyle.Render("Setpoint:   "), valueStyle.Render(fmt.Sprintf("%d°", snap.Setpoint)))
		heat := heatOffStyle.Render("IDLE")
		if snap.HeatOn {
			heat = heatOnStyle.Render("HEATING")
		}
		fmt.Fprintf(&s, "%s %s\n", labelStyle.Render("Heat:       "), heat)
	}

	s.WriteString("\n")
	target := bigValueStyle.Render(fmt.Sprintf("%d°", snap.PendingSetpoint))
	switch {
	case snap.EditPending:
		fmt.Fprintf(&s, "%s %s %s\n", labelStyle.Render("Target:"), target, warningStyle.Render("(awaiting thermostat)"))
	case snap.Unconfirmed:
		fmt.Fprintf(&s, "%s %s %s\n", labelStyle.Render("Target:"), target, warningStyle.Render("(press enter to send)"))
	default:
		fmt.Fprintf(&s, "%s %s\n", labelStyle.Render("Target:"), target)
	}

	return s.String()
}

func (m controlModel) renderSchedule() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("SCHEDULE"))
	s.WriteString("\n\n")

	for i, e := range m.snap.Schedule {
		fmt.Fprintf(&s, "%s %s -> %s\n",
			labelStyle.Render(fmt.Sprintf("Entry %d:", i+1)),
			valueStyle.Render(fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)),
			valueStyle.Render(fmt.Sprintf("%d°", e.Setpoint)))
	}
	if !m.snap.ScheduleKnown {
		s.WriteString(headerStyle.Render("(defaults; press s to fetch)"))
		s.WriteString("\n")
	}
	return s.String()
}

func (m controlModel) renderStatisticsBar() string {
	errs := valueStyle.Render("0")
	if n := m.stats.Errors(); n > 0 {
		errs = errorStyle.Render(fmt.Sprintf("%d", n))
	}
	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Lines:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalLines)),
		labelStyle.Render("Reports:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.StateReports)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.AcksSent+m.stats.CommandsSent)),
		labelStyle.Render("Errors:"), errs,
		labelStyle.Render("Reconnects:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Reconnects)),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return boxStyle.Width(m.width - 4).Render(s.String())
	}

	start := len(m.eventLog) - logHeight
	if start < 0 {
		start = 0
	}
	for _, entry := range m.eventLog[start:] {
		icon := warningStyle.Render("i")
		if entry.isError {
			icon = errorStyle.Render("x")
		}
		fmt.Fprintf(&s, "%s %s %s\n", headerStyle.Render(entry.timestamp.Format("15:04:05.000")), icon, entry.message)
	}

	return boxStyle.Width(m.width - 4).Render(strings.TrimRight(s.String(), "\n"))
}
