// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package thermolink implements the thermostat remote-control line protocol.
//
// The protocol is newline-terminated ASCII text over a byte stream. Each
// line carries exactly one message:
//
//	device -> client   TEMP:<int>,SETPOINT:<int>,HEAT:<0|1>
//	device -> client   SCHEDULE:[hh:mm,sp],[hh:mm,sp]
//	both directions    ACK
//	client -> device   SETPOINT:<int>
//	client -> device   SCHEDULE:[hh:mm,sp],[hh:mm,sp]
//	client -> device   GETSCHEDULE
//
// This package provides typed messages, line decoding and encoding, and a
// Framer that reassembles lines split or coalesced across reads.
package thermolink

// Line framing
const (
	LineTerminator = '\n'

	// MaxLineLength bounds a single line. The firmware uses a 1024-byte
	// receive buffer, so nothing legitimate comes close.
	MaxLineLength = 1024
)

// Message prefixes and keywords
const (
	prefixTemp     = "TEMP:"
	prefixSetpoint = "SETPOINT:"
	prefixHeat     = "HEAT:"
	prefixSchedule = "SCHEDULE:"

	keywordAck         = "ACK"
	keywordGetSchedule = "GETSCHEDULE"
)

// Value ranges accepted by the device
const (
	MinSetpoint = 0
	MaxSetpoint = 99
	MaxHour     = 23
	MaxMinute   = 59
)

// ScheduleSlots is the fixed number of schedule entries.
const ScheduleSlots = 2
