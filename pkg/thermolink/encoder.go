// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import "strconv"

// Encode serializes a message to one newline-terminated line.
// Values are written as given; callers clamp ranges before encoding.
func Encode(msg Message) []byte {
	line := msg.appendLine(make([]byte, 0, 48))
	return append(line, LineTerminator)
}

// EncodeString is Encode without the trailing newline, for display
func EncodeString(msg Message) string {
	return string(msg.appendLine(nil))
}

func (m StateReport) appendLine(dst []byte) []byte {
	dst = append(dst, prefixTemp...)
	dst = strconv.AppendInt(dst, int64(m.Temperature), 10)
	dst = append(dst, ',')
	dst = append(dst, prefixSetpoint...)
	dst = strconv.AppendInt(dst, int64(m.Setpoint), 10)
	dst = append(dst, ',')
	dst = append(dst, prefixHeat...)
	if m.HeatOn {
		return append(dst, '1')
	}
	return append(dst, '0')
}

func (m ScheduleMessage) appendLine(dst []byte) []byte {
	dst = append(dst, prefixSchedule...)
	for i, e := range m.Schedule {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		dst = appendTwoDigits(dst, e.Hour)
		dst = append(dst, ':')
		dst = appendTwoDigits(dst, e.Minute)
		dst = append(dst, ',')
		dst = strconv.AppendInt(dst, int64(e.Setpoint), 10)
		dst = append(dst, ']')
	}
	return dst
}

func (Ack) appendLine(dst []byte) []byte {
	return append(dst, keywordAck...)
}

func (m SetpointCommand) appendLine(dst []byte) []byte {
	dst = append(dst, prefixSetpoint...)
	return strconv.AppendInt(dst, int64(m.Setpoint), 10)
}

func (GetSchedule) appendLine(dst []byte) []byte {
	return append(dst, keywordGetSchedule...)
}

// appendTwoDigits writes v zero-padded to two digits (%02d)
func appendTwoDigits(dst []byte, v int) []byte {
	if v >= 0 && v < 10 {
		dst = append(dst, '0')
	}
	return strconv.AppendInt(dst, int64(v), 10)
}
