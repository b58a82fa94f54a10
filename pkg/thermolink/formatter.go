// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import (
	"fmt"
	"time"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(msg Message, ts time.Time) string {
	timestamp := ts.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s\n", timestamp, msg.Kind())
	return result + FormatPayload(msg)
}

// FormatPayload returns the indented payload lines for a message
func FormatPayload(msg Message) string {
	switch m := msg.(type) {
	case StateReport:
		heat := "OFF"
		if m.HeatOn {
			heat = "ON"
		}
		return fmt.Sprintf("  Temperature: %d, Setpoint: %d, Heat: %s\n", m.Temperature, m.Setpoint, heat)

	case ScheduleMessage:
		result := ""
		for i, e := range m.Schedule {
			result += fmt.Sprintf("  Entry %d: %02d:%02d -> %d\n", i+1, e.Hour, e.Minute, e.Setpoint)
		}
		return result

	case SetpointCommand:
		return fmt.Sprintf("  Setpoint: %d\n", m.Setpoint)

	default:
		return "  (no payload)\n"
	}
}

// FormatDecodeError formats a rejected line for logs and the monitor
func FormatDecodeError(err error, ts time.Time) string {
	return fmt.Sprintf("[%s] [ERROR] %v\n", ts.Format("15:04:05.000"), err)
}
