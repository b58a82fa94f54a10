// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import "fmt"

// Kind identifies a message shape
type Kind uint8

const (
	KindStateReport Kind = iota + 1
	KindSchedule
	KindAck
	KindSetpoint
	KindGetSchedule
)

// String returns the wire keyword for the kind
func (k Kind) String() string {
	switch k {
	case KindStateReport:
		return "TEMP"
	case KindSchedule:
		return "SCHEDULE"
	case KindAck:
		return "ACK"
	case KindSetpoint:
		return "SETPOINT"
	case KindGetSchedule:
		return "GETSCHEDULE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Message is one protocol line. The set of messages is closed; every
// implementation lives in this package.
type Message interface {
	Kind() Kind
	appendLine(dst []byte) []byte
}

// StateReport is the device's full state report (TEMP:..,SETPOINT:..,HEAT:..)
type StateReport struct {
	Temperature int
	Setpoint    int
	HeatOn      bool
}

// Kind implements Message
func (StateReport) Kind() Kind { return KindStateReport }

// ScheduleMessage carries both schedule entries. The same shape is a report
// when sent by the device and a submission when sent by the client.
type ScheduleMessage struct {
	Schedule Schedule
}

// Kind implements Message
func (ScheduleMessage) Kind() Kind { return KindSchedule }

// Ack acknowledges the peer's previous message. It has no payload.
type Ack struct{}

// Kind implements Message
func (Ack) Kind() Kind { return KindAck }

// SetpointCommand asks the device to adopt a new target
type SetpointCommand struct {
	Setpoint int
}

// Kind implements Message
func (SetpointCommand) Kind() Kind { return KindSetpoint }

// GetSchedule asks the device to report its schedule
type GetSchedule struct{}

// Kind implements Message
func (GetSchedule) Kind() Kind { return KindGetSchedule }

// ScheduleEntry is one time-of-day setpoint
type ScheduleEntry struct {
	Hour     int `json:"hour"`
	Minute   int `json:"minute"`
	Setpoint int `json:"setpoint"`
}

// Validate checks the entry against the device's accepted ranges
func (e ScheduleEntry) Validate() error {
	if e.Hour < 0 || e.Hour > MaxHour {
		return fmt.Errorf("hour %d out of range 0-%d", e.Hour, MaxHour)
	}
	if e.Minute < 0 || e.Minute > MaxMinute {
		return fmt.Errorf("minute %d out of range 0-%d", e.Minute, MaxMinute)
	}
	if e.Setpoint < MinSetpoint || e.Setpoint > MaxSetpoint {
		return fmt.Errorf("setpoint %d out of range %d-%d", e.Setpoint, MinSetpoint, MaxSetpoint)
	}
	return nil
}

// String formats the entry as HH:MM,SP
func (e ScheduleEntry) String() string {
	return fmt.Sprintf("%02d:%02d,%d", e.Hour, e.Minute, e.Setpoint)
}

// Schedule is the ordered pair of entries. Position is meaningful: index 0
// is entry 1 and index 1 is entry 2.
type Schedule [ScheduleSlots]ScheduleEntry

// Validate checks every entry, reporting the first failure by position
func (s Schedule) Validate() error {
	for i, e := range s {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	return nil
}

// DefaultSchedule is the controller's factory schedule: 20 from 08:00,
// 15 from 20:00
func DefaultSchedule() Schedule {
	return Schedule{
		{Hour: 8, Minute: 0, Setpoint: 20},
		{Hour: 20, Minute: 0, Setpoint: 15},
	}
}

// ClampSetpoint limits a setpoint to the device's accepted range
func ClampSetpoint(v int) int {
	if v < MinSetpoint {
		return MinSetpoint
	}
	if v > MaxSetpoint {
		return MaxSetpoint
	}
	return v
}
