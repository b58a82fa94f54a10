// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every decode failure via errors.Is
var ErrMalformed = errors.New("thermolink: malformed line")

var errUnexpectedText = errors.New("unexpected text around entries")

// ParseError reports a line that is unrecognized or has a bad field
type ParseError struct {
	Line   string
	Reason string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

// Is reports ErrMalformed so callers can treat all decode failures alike
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}

// MalformedScheduleError reports a SCHEDULE line that does not carry
// exactly two valid [hh:mm,sp] triples
type MalformedScheduleError struct {
	Line  string
	Count int   // number of triples matched
	Err   error // range failure, if the count was right
}

// Error implements the error interface
func (e *MalformedScheduleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schedule %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("schedule %q: expected %d entries, found %d", e.Line, ScheduleSlots, e.Count)
}

// Is reports ErrMalformed so callers can treat all decode failures alike
func (e *MalformedScheduleError) Is(target error) bool {
	return target == ErrMalformed
}

// Unwrap returns the underlying range error, if any
func (e *MalformedScheduleError) Unwrap() error {
	return e.Err
}

func parseErrorf(line, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
