// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// scheduleTriple matches one [hh:mm,sp] entry
	scheduleTriple = regexp.MustCompile(`\[(\d+):(\d+),(\d+)\]`)

	// scheduleBody is the full positional shape after the SCHEDULE: prefix
	scheduleBody = regexp.MustCompile(`^\[\d+:\d+,\d+\],\[\d+:\d+,\d+\]$`)
)

// Decode parses one line (without its terminator) into a message.
// Surrounding whitespace, including a trailing carriage return, is ignored.
// Failures are *ParseError or *MalformedScheduleError.
func Decode(line string) (Message, error) {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return nil, parseErrorf(line, "empty line")
	case line == keywordAck:
		return Ack{}, nil
	case line == keywordGetSchedule:
		return GetSchedule{}, nil
	case strings.HasPrefix(line, prefixTemp):
		return decodeStateReport(line)
	case strings.HasPrefix(line, prefixSchedule):
		return decodeSchedule(line)
	case strings.HasPrefix(line, prefixSetpoint):
		return decodeSetpoint(line)
	default:
		return nil, parseErrorf(line, "unrecognized message")
	}
}

// decodeStateReport parses TEMP:<int>,SETPOINT:<int>,HEAT:<0|1>
func decodeStateReport(line string) (Message, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return nil, parseErrorf(line, "expected 3 fields, got %d", len(fields))
	}

	temp, err := intField(line, fields[0], prefixTemp)
	if err != nil {
		return nil, err
	}
	setpoint, err := intField(line, fields[1], prefixSetpoint)
	if err != nil {
		return nil, err
	}
	heat, err := intField(line, fields[2], prefixHeat)
	if err != nil {
		return nil, err
	}
	if heat != 0 && heat != 1 {
		return nil, parseErrorf(line, "HEAT must be 0 or 1, got %d", heat)
	}

	return StateReport{Temperature: temp, Setpoint: setpoint, HeatOn: heat == 1}, nil
}

// decodeSetpoint parses SETPOINT:<int>
func decodeSetpoint(line string) (Message, error) {
	v, err := intField(line, line, prefixSetpoint)
	if err != nil {
		return nil, err
	}
	return SetpointCommand{Setpoint: v}, nil
}

// decodeSchedule parses SCHEDULE:[hh:mm,sp],[hh:mm,sp]. Anything other than
// exactly two in-range triples is rejected whole; no entry is applied alone.
func decodeSchedule(line string) (Message, error) {
	body := strings.TrimPrefix(line, prefixSchedule)

	matches := scheduleTriple.FindAllStringSubmatch(body, -1)
	if len(matches) != ScheduleSlots {
		return nil, &MalformedScheduleError{Line: line, Count: len(matches)}
	}
	if !scheduleBody.MatchString(body) {
		return nil, &MalformedScheduleError{Line: line, Count: len(matches), Err: errUnexpectedText}
	}

	var sched Schedule
	for i, m := range matches {
		var vals [3]int
		for j := range vals {
			v, err := strconv.Atoi(m[j+1])
			if err != nil {
				return nil, &MalformedScheduleError{Line: line, Count: len(matches), Err: err}
			}
			vals[j] = v
		}
		sched[i] = ScheduleEntry{Hour: vals[0], Minute: vals[1], Setpoint: vals[2]}
	}

	if err := sched.Validate(); err != nil {
		return nil, &MalformedScheduleError{Line: line, Count: len(matches), Err: err}
	}

	return ScheduleMessage{Schedule: sched}, nil
}

// intField parses a base-10 integer following the given key prefix
func intField(line, field, prefix string) (int, error) {
	if !strings.HasPrefix(field, prefix) {
		return 0, parseErrorf(line, "expected %s field, got %q", strings.TrimSuffix(prefix, ":"), field)
	}
	raw := strings.TrimPrefix(field, prefix)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, parseErrorf(line, "%s value %q is not an integer", strings.TrimSuffix(prefix, ":"), raw)
	}
	return v, nil
}
