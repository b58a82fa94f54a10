// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_ValidLines(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{
			name: "state report heat off",
			line: "TEMP:21,SETPOINT:22,HEAT:0",
			want: StateReport{Temperature: 21, Setpoint: 22, HeatOn: false},
		},
		{
			name: "state report heat on",
			line: "TEMP:19,SETPOINT:18,HEAT:1",
			want: StateReport{Temperature: 19, Setpoint: 18, HeatOn: true},
		},
		{
			name: "negative temperature",
			line: "TEMP:-4,SETPOINT:10,HEAT:1",
			want: StateReport{Temperature: -4, Setpoint: 10, HeatOn: true},
		},
		{
			name: "trailing carriage return",
			line: "TEMP:20,SETPOINT:20,HEAT:0\r",
			want: StateReport{Temperature: 20, Setpoint: 20, HeatOn: false},
		},
		{
			name: "schedule",
			line: "SCHEDULE:[08:00,20],[20:00,18]",
			want: ScheduleMessage{Schedule: Schedule{
				{Hour: 8, Minute: 0, Setpoint: 20},
				{Hour: 20, Minute: 0, Setpoint: 18},
			}},
		},
		{
			name: "schedule without zero padding",
			line: "SCHEDULE:[7:5,21],[23:59,0]",
			want: ScheduleMessage{Schedule: Schedule{
				{Hour: 7, Minute: 5, Setpoint: 21},
				{Hour: 23, Minute: 59, Setpoint: 0},
			}},
		},
		{
			name: "ack",
			line: "ACK",
			want: Ack{},
		},
		{
			name: "setpoint command",
			line: "SETPOINT:25",
			want: SetpointCommand{Setpoint: 25},
		},
		{
			name: "get schedule",
			line: "GETSCHEDULE",
			want: GetSchedule{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestDecode_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "empty", line: ""},
		{name: "whitespace only", line: "  \r"},
		{name: "garbage", line: "garbage"},
		{name: "lowercase ack", line: "ack"},
		{name: "non-integer temp", line: "TEMP:abc,SETPOINT:20,HEAT:0"},
		{name: "non-integer setpoint", line: "TEMP:20,SETPOINT:2.5,HEAT:0"},
		{name: "heat out of range", line: "TEMP:20,SETPOINT:20,HEAT:2"},
		{name: "missing field", line: "TEMP:20,SETPOINT:20"},
		{name: "extra field", line: "TEMP:20,SETPOINT:20,HEAT:0,FAN:1"},
		{name: "fields out of order", line: "TEMP:20,HEAT:0,SETPOINT:20"},
		{name: "empty value", line: "TEMP:,SETPOINT:20,HEAT:0"},
		{name: "setpoint without value", line: "SETPOINT:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.line)
			require.Error(t, err)
			assert.Nil(t, msg)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "want *ParseError, got %T", err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestDecode_MalformedSchedule(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantCount int
	}{
		{name: "one entry", line: "SCHEDULE:[08:00,20]", wantCount: 1},
		{name: "three entries", line: "SCHEDULE:[08:00,20],[12:00,19],[20:00,18]", wantCount: 3},
		{name: "no entries", line: "SCHEDULE:", wantCount: 0},
		{name: "hour out of range", line: "SCHEDULE:[24:00,20],[20:00,18]", wantCount: 2},
		{name: "minute out of range", line: "SCHEDULE:[08:60,20],[20:00,18]", wantCount: 2},
		{name: "setpoint out of range", line: "SCHEDULE:[08:00,100],[20:00,18]", wantCount: 2},
		{name: "trailing text", line: "SCHEDULE:[08:00,20],[20:00,18]junk", wantCount: 2},
		{name: "missing separator", line: "SCHEDULE:[08:00,20][20:00,18]", wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.line)
			require.Error(t, err)

			var schedErr *MalformedScheduleError
			require.True(t, errors.As(err, &schedErr), "want *MalformedScheduleError, got %T", err)
			assert.Equal(t, tt.wantCount, schedErr.Count)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestDecode_ScheduleRequiresExactSeparators(t *testing.T) {
	// Both triples match, but only the literal "],[" separator is accepted
	lines := []string{
		"SCHEDULE:[08:00,20], [20:00,18]",
		"SCHEDULE: [08:00,20],[20:00,18]",
		"SCHEDULE:[08:00,20];[20:00,18]",
	}

	for _, line := range lines {
		_, err := Decode(line)
		require.Error(t, err, line)

		var schedErr *MalformedScheduleError
		require.True(t, errors.As(err, &schedErr), "want *MalformedScheduleError, got %T", err)
		assert.Equal(t, ScheduleSlots, schedErr.Count, line)
		assert.ErrorIs(t, err, errUnexpectedText, line)
	}
}

// ============================================================
// Encode Tests
// ============================================================

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{name: "ack", msg: Ack{}, want: "ACK\n"},
		{name: "get schedule", msg: GetSchedule{}, want: "GETSCHEDULE\n"},
		{name: "setpoint", msg: SetpointCommand{Setpoint: 22}, want: "SETPOINT:22\n"},
		{name: "setpoint zero", msg: SetpointCommand{Setpoint: 0}, want: "SETPOINT:0\n"},
		{
			name: "state report",
			msg:  StateReport{Temperature: 19, Setpoint: 18, HeatOn: true},
			want: "TEMP:19,SETPOINT:18,HEAT:1\n",
		},
		{
			name: "schedule zero pads time",
			msg: ScheduleMessage{Schedule: Schedule{
				{Hour: 8, Minute: 5, Setpoint: 20},
				{Hour: 20, Minute: 0, Setpoint: 7},
			}},
			want: "SCHEDULE:[08:05,20],[20:00,7]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.msg)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, 1, strings.Count(string(got), "\n"), "exactly one terminator")
		})
	}
}

func TestSchedule_RoundTrip(t *testing.T) {
	original := Schedule{
		{Hour: 8, Minute: 0, Setpoint: 20},
		{Hour: 20, Minute: 0, Setpoint: 18},
	}

	line := Encode(ScheduleMessage{Schedule: original})
	msg, err := Decode(strings.TrimSuffix(string(line), "\n"))
	require.NoError(t, err)

	decoded, ok := msg.(ScheduleMessage)
	require.True(t, ok, "expected ScheduleMessage, got %T", msg)
	assert.Equal(t, original, decoded.Schedule)
	assert.Equal(t, original[0], decoded.Schedule[0], "entry order must be preserved")
}

func TestStateReport_RoundTrip(t *testing.T) {
	for _, heat := range []bool{false, true} {
		original := StateReport{Temperature: 21, Setpoint: 23, HeatOn: heat}
		msg, err := Decode(string(Encode(original)))
		require.NoError(t, err)
		assert.Equal(t, original, msg)
	}
}

// ============================================================
// Value Helpers
// ============================================================

func TestClampSetpoint(t *testing.T) {
	assert.Equal(t, 0, ClampSetpoint(-5))
	assert.Equal(t, 0, ClampSetpoint(0))
	assert.Equal(t, 42, ClampSetpoint(42))
	assert.Equal(t, 99, ClampSetpoint(99))
	assert.Equal(t, 99, ClampSetpoint(150))
}

func TestScheduleValidate(t *testing.T) {
	require.NoError(t, DefaultSchedule().Validate())

	bad := DefaultSchedule()
	bad[1].Minute = 75
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 2")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "TEMP", KindStateReport.String())
	assert.Equal(t, "GETSCHEDULE", KindGetSchedule.String())
	assert.Equal(t, "UNKNOWN(0)", Kind(0).String())
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2025, 3, 23, 14, 5, 9, 0, time.UTC)

	out := FormatMessage(StateReport{Temperature: 21, Setpoint: 22, HeatOn: true}, ts)
	assert.Contains(t, out, "[14:05:09.000] TEMP")
	assert.Contains(t, out, "Heat: ON")

	out = FormatMessage(ScheduleMessage{Schedule: DefaultSchedule()}, ts)
	assert.Contains(t, out, "Entry 1: 08:00 -> 20")
	assert.Contains(t, out, "Entry 2: 20:00 -> 15")

	out = FormatMessage(Ack{}, ts)
	assert.Contains(t, out, "(no payload)")
}
