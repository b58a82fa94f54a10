// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator emulates the thermostat controller's side of the line
// protocol, for development without hardware and for integration tests.
package simulator

import (
	"sync"
	"time"

	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// ----------- Simulation constants -----------
const (
	DefaultAmbient  = 15 // °C the room falls back to with the heater off
	DefaultSetpoint = 20
	DefaultStart    = 18 // °C at power-up
)

// DeviceState is a copy of the simulated controller's state
type DeviceState struct {
	Temperature int
	Setpoint    int
	HeatOn      bool
	Schedule    thermolink.Schedule
	AcksSeen    uint64
}

// Device is the simulated controller. It is safe for concurrent use.
type Device struct {
	mu          sync.Mutex
	temperature int
	setpoint    int
	heat        bool
	schedule    thermolink.Schedule
	ambient     int
	acks        uint64
	lastApplied [thermolink.ScheduleSlots]time.Time // minute each slot last fired
}

// DeviceOptions configures a Device. Nil fields take the power-up defaults;
// zero is a valid temperature and setpoint.
type DeviceOptions struct {
	Ambient     *int
	Temperature *int
	Setpoint    *int
	Schedule    *thermolink.Schedule
}

// NewDevice returns a controller in its power-up state
func NewDevice(opts DeviceOptions) *Device {
	d := &Device{
		temperature: DefaultStart,
		setpoint:    DefaultSetpoint,
		schedule:    thermolink.DefaultSchedule(),
		ambient:     DefaultAmbient,
	}
	if opts.Ambient != nil {
		d.ambient = *opts.Ambient
	}
	if opts.Temperature != nil {
		d.temperature = *opts.Temperature
	}
	if opts.Setpoint != nil {
		d.setpoint = thermolink.ClampSetpoint(*opts.Setpoint)
	}
	if opts.Schedule != nil {
		d.schedule = *opts.Schedule
	}
	d.heat = d.temperature < d.setpoint
	return d
}

// State returns a copy of the current state
func (d *Device) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DeviceState{
		Temperature: d.temperature,
		Setpoint:    d.setpoint,
		HeatOn:      d.heat,
		Schedule:    d.schedule,
		AcksSeen:    d.acks,
	}
}

// Report returns the state report the controller sends each heartbeat
func (d *Device) Report() thermolink.StateReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return thermolink.StateReport{Temperature: d.temperature, Setpoint: d.setpoint, HeatOn: d.heat}
}

// Tick advances the simulation to now: schedule entries fire once in their
// minute, the room warms one degree per tick while heating and cools toward
// ambient otherwise, and the heater follows temperature < setpoint.
// It returns true when a schedule entry changed the setpoint.
func (d *Device) Tick(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	fired := false
	minute := now.Truncate(time.Minute)
	for i, e := range d.schedule {
		if now.Hour() == e.Hour && now.Minute() == e.Minute && !d.lastApplied[i].Equal(minute) {
			d.lastApplied[i] = minute
			d.setpoint = e.Setpoint
			fired = true
		}
	}

	switch {
	case d.heat:
		d.temperature++
	case d.temperature > d.ambient:
		d.temperature--
	case d.temperature < d.ambient:
		d.temperature++
	}
	d.heat = d.temperature < d.setpoint
	return fired
}

// PressButton changes the setpoint at the device, as the controller's own
// up/down buttons do
func (d *Device) PressButton(delta int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setpoint = thermolink.ClampSetpoint(d.setpoint + delta)
	d.heat = d.temperature < d.setpoint
	return d.setpoint
}

// HandleLine decodes and handles one line from the client
func (d *Device) HandleLine(line string) ([]thermolink.Message, error) {
	msg, err := thermolink.Decode(line)
	if err != nil {
		return nil, err
	}
	return d.Handle(msg), nil
}

// Handle processes one client message and returns the replies. SETPOINT
// and SCHEDULE are answered with ACK when accepted and ignored when out of
// range; GETSCHEDULE is answered with the schedule.
func (d *Device) Handle(msg thermolink.Message) []thermolink.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch m := msg.(type) {
	case thermolink.SetpointCommand:
		if m.Setpoint < thermolink.MinSetpoint || m.Setpoint > thermolink.MaxSetpoint {
			return nil
		}
		d.setpoint = m.Setpoint
		d.heat = d.temperature < d.setpoint
		return []thermolink.Message{thermolink.Ack{}}

	case thermolink.GetSchedule:
		return []thermolink.Message{thermolink.ScheduleMessage{Schedule: d.schedule}}

	case thermolink.ScheduleMessage:
		d.schedule = m.Schedule
		d.lastApplied = [thermolink.ScheduleSlots]time.Time{}
		return []thermolink.Message{thermolink.Ack{}}

	case thermolink.Ack:
		d.acks++
		return nil

	default:
		// State reports only flow device to client
		return nil
	}
}
