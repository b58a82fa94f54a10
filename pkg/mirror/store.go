// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mirror holds the client's view of the thermostat and reconciles
// it against the device's reports.
//
// The device is authoritative. A setpoint the operator has committed stays
// on display until the device echoes it back; with no edit outstanding,
// every report is taken as-is so schedule setbacks and changes made at the
// device show up immediately.
package mirror

import (
	"sync"
	"time"

	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// Initial values before the first report arrives
const (
	DefaultTemperature = 0
	DefaultSetpoint    = 20
)

// Snapshot is a read-only copy of the mirrored state
type Snapshot struct {
	// Version increases on every mutation. Observers can drop a snapshot
	// older than one they have already rendered.
	Version uint64 `json:"version"`

	Temperature     int  `json:"temperature"`
	Setpoint        int  `json:"setpoint"`         // last confirmed by the device
	PendingSetpoint int  `json:"pending_setpoint"` // what the operator wants
	HeatOn          bool `json:"heat_on"`
	EditPending     bool `json:"edit_pending"` // committed, awaiting echo

	// Unconfirmed is set from the first local adjustment until a report
	// settles the value, so displays can mark it as not yet applied
	Unconfirmed bool `json:"unconfirmed"`

	Schedule      thermolink.Schedule `json:"schedule"`
	ScheduleKnown bool                `json:"schedule_known"` // a SCHEDULE report has arrived

	ReportedAt time.Time `json:"reported_at"` // zero until the first state report
}

// Store guards the mirrored state. Every read-check-write sequence runs
// under one lock, so a report being applied and an operator intent never
// interleave.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	version      uint64
	temperature  int
	setpoint     int
	pending      int
	heatOn       bool
	editPending  bool
	composing    bool
	schedule     thermolink.Schedule
	scheduleSeen bool
	reportedAt   time.Time
	sentAt       time.Time // last SETPOINT sent for the outstanding edit

	// notifyMu orders listener delivery; it is taken before mu is released
	notifyMu  sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewStore creates a store holding the start-up defaults
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a store that reads time from now
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:         now,
		temperature: DefaultTemperature,
		setpoint:    DefaultSetpoint,
		pending:     DefaultSetpoint,
		schedule:    thermolink.DefaultSchedule(),
		listeners:   make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every mutation, in
// mutation order. fn runs on the mutating goroutine and must not mutate
// the store. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.notifyMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.listeners, id)
			s.notifyMu.Unlock()
		})
	}
}

// Apply folds one decoded device message into the mirror and returns the
// messages that must be sent back. A state report always yields exactly
// one ACK; nothing else yields a reply.
func (s *Store) Apply(msg thermolink.Message) []thermolink.Message {
	switch m := msg.(type) {
	case thermolink.StateReport:
		s.mu.Lock()
		s.applyReportLocked(m)
		s.commitLocked()
		return []thermolink.Message{thermolink.Ack{}}

	case thermolink.ScheduleMessage:
		s.mu.Lock()
		s.schedule = m.Schedule
		s.scheduleSeen = true
		s.commitLocked()
		return nil

	default:
		// ACK is not correlated to any command; device-bound kinds are
		// not expected from the device
		return nil
	}
}

func (s *Store) applyReportLocked(r thermolink.StateReport) {
	s.temperature = r.Temperature
	s.heatOn = r.HeatOn
	s.reportedAt = s.now()

	if s.editPending {
		if r.Setpoint == s.pending {
			// Confirming echo
			s.setpoint = r.Setpoint
			s.editPending = false
			s.composing = false
			s.sentAt = time.Time{}
		}
		// Otherwise the device has not caught up; keep the pending value
		return
	}

	s.setpoint = r.Setpoint
	s.pending = r.Setpoint
	s.composing = false
}

// Adjust moves the pending setpoint by delta, clamped to the device range.
// Nothing is sent and the edit is not pending until BeginCommit.
func (s *Store) Adjust(delta int) Snapshot {
	// Bound delta first so the sum cannot overflow
	span := thermolink.MaxSetpoint - thermolink.MinSetpoint
	delta = max(-span, min(delta, span))

	s.mu.Lock()
	s.pending = thermolink.ClampSetpoint(s.pending + delta)
	s.composing = true
	return s.commitLocked()
}

// BeginCommit marks the pending setpoint as sent and returns the value to
// put on the wire. Repeated calls before the echo keep the edit pending
// with the latest value.
func (s *Store) BeginCommit() (int, Snapshot) {
	s.mu.Lock()
	s.editPending = true
	s.composing = false
	s.sentAt = s.now()
	v := s.pending
	return v, s.commitLocked()
}

// PendingSince returns when the outstanding edit was last sent
func (s *Store) PendingSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editPending {
		return time.Time{}, false
	}
	return s.sentAt, true
}

// ResendDue reports whether the outstanding edit has gone unconfirmed for
// at least interval. When it has, the send time is reset and the value to
// send again is returned.
func (s *Store) ResendDue(interval time.Duration) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.editPending || interval <= 0 {
		return 0, false
	}
	now := s.now()
	if now.Sub(s.sentAt) < interval {
		return 0, false
	}
	s.sentAt = now
	return s.pending, true
}

// commitLocked bumps the version, releases mu and delivers the new
// snapshot to listeners in order. It must be called with mu held.
func (s *Store) commitLocked() Snapshot {
	s.version++
	snap := s.snapshotLocked()

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range s.listeners {
		fn(snap)
	}
	return snap
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:         s.version,
		Temperature:     s.temperature,
		Setpoint:        s.setpoint,
		PendingSetpoint: s.pending,
		HeatOn:          s.heatOn,
		EditPending:     s.editPending,
		Unconfirmed:     s.composing || s.editPending,
		Schedule:        s.schedule,
		ScheduleKnown:   s.scheduleSeen,
		ReportedAt:      s.reportedAt,
	}
}
