// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the link statistics
type Counters struct {
	StartTime time.Time

	// Received
	TotalLines         uint64
	StateReports       uint64
	ScheduleReports    uint64
	AcksReceived       uint64
	OtherMessages      uint64
	ParseErrors        uint64
	MalformedSchedules uint64
	OverlongLines      uint64

	// Sent
	AcksSent     uint64
	CommandsSent uint64
	SendFailures uint64

	// Link
	Connects   uint64
	Reconnects uint64 // connects after the first

	// Rates (calculated)
	LineRate  float64 // lines/sec
	ErrorRate float64 // errors/sec
}

// Errors returns the total of all receive-side failures
func (c Counters) Errors() uint64 {
	return c.ParseErrors + c.MalformedSchedules + c.OverlongLines
}

// Statistics tracks line traffic and decode failures. It is safe for
// concurrent use; the read loop records received lines while the command
// path records sends.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

// RecordReceived counts one decoded line or decode failure
func (s *Statistics) RecordReceived(msg Message, decodeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalLines++

	if decodeErr != nil {
		var schedErr *MalformedScheduleError
		if errors.As(decodeErr, &schedErr) {
			s.c.MalformedSchedules++
		} else {
			s.c.ParseErrors++
		}
		return
	}

	switch msg.Kind() {
	case KindStateReport:
		s.c.StateReports++
	case KindSchedule:
		s.c.ScheduleReports++
	case KindAck:
		s.c.AcksReceived++
	default:
		s.c.OtherMessages++
	}
}

// RecordOverlong counts lines the framer discarded
func (s *Statistics) RecordOverlong(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.c.OverlongLines += uint64(n)
	s.mu.Unlock()
}

// RecordSent counts one outgoing message and whether the write failed
func (s *Statistics) RecordSent(msg Message, sendErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sendErr != nil {
		s.c.SendFailures++
		return
	}
	if msg.Kind() == KindAck {
		s.c.AcksSent++
	} else {
		s.c.CommandsSent++
	}
}

// RecordConnect counts an established connection
func (s *Statistics) RecordConnect() {
	s.mu.Lock()
	s.c.Connects++
	if s.c.Connects > 1 {
		s.c.Reconnects++
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.LineRate = float64(c.TotalLines) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var validPercent, errorPercent float64
	if c.TotalLines > 0 {
		valid := c.TotalLines - c.ParseErrors - c.MalformedSchedules
		validPercent = float64(valid) * 100.0 / float64(c.TotalLines)
		errorPercent = float64(c.Errors()) * 100.0 / float64(c.TotalLines)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(c.StartTime).Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", c.TotalLines)
	result += fmt.Sprintf("Valid Lines:     %8d (%.1f%%)\n", c.TotalLines-c.ParseErrors-c.MalformedSchedules, validPercent)
	result += fmt.Sprintf("  State Reports:    %5d\n", c.StateReports)
	result += fmt.Sprintf("  Schedules:        %5d\n", c.ScheduleReports)
	result += fmt.Sprintf("  ACKs:             %5d\n", c.AcksReceived)

	if c.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", c.Errors(), errorPercent)
		if c.ParseErrors > 0 {
			result += fmt.Sprintf("  Parse Errors:     %5d\n", c.ParseErrors)
		}
		if c.MalformedSchedules > 0 {
			result += fmt.Sprintf("  Bad Schedules:    %5d\n", c.MalformedSchedules)
		}
		if c.OverlongLines > 0 {
			result += fmt.Sprintf("  Overlong Lines:   %5d\n", c.OverlongLines)
		}
	}

	result += fmt.Sprintf("ACKs Sent:       %8d\n", c.AcksSent)
	result += fmt.Sprintf("Commands Sent:   %8d\n", c.CommandsSent)
	if c.SendFailures > 0 {
		result += fmt.Sprintf("Send Failures:   %8d\n", c.SendFailures)
	}
	if c.Reconnects > 0 {
		result += fmt.Sprintf("Reconnects:      %8d\n", c.Reconnects)
	}
	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", c.LineRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.c = Counters{StartTime: time.Now()}
	s.mu.Unlock()
}
