// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedAll runs every chunk through the framer and collects emitted lines
func feedAll(f *Framer, chunks ...string) ([]string, int) {
	var lines []string
	dropped := 0
	for _, c := range chunks {
		dropped += f.Feed([]byte(c), func(line string) {
			lines = append(lines, line)
		})
	}
	return lines, dropped
}

func TestFramer_SplitAcrossReads(t *testing.T) {
	f := NewFramer()

	lines, _ := feedAll(f, "TEMP:20,SET")
	assert.Empty(t, lines, "partial line must not be emitted")
	assert.Equal(t, len("TEMP:20,SET"), f.Buffered())

	lines, _ = feedAll(f, "POINT:20,HEAT:0\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "TEMP:20,SETPOINT:20,HEAT:0", lines[0])
	assert.Equal(t, 0, f.Buffered())
}

func TestFramer_CoalescedLines(t *testing.T) {
	f := NewFramer()

	lines, _ := feedAll(f, "ACK\nTEMP:20,SETPOINT:20,HEAT:0\nSCHEDULE:[08:00,20],[20:00,18]\n")
	assert.Equal(t, []string{
		"ACK",
		"TEMP:20,SETPOINT:20,HEAT:0",
		"SCHEDULE:[08:00,20],[20:00,18]",
	}, lines)
}

func TestFramer_ByteAtATime(t *testing.T) {
	f := NewFramer()
	input := "garbage\nTEMP:20,SETPOINT:20,HEAT:0\nACK\n"

	chunks := make([]string, 0, len(input))
	for i := 0; i < len(input); i++ {
		chunks = append(chunks, input[i:i+1])
	}

	lines, dropped := feedAll(f, chunks...)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, []string{"garbage", "TEMP:20,SETPOINT:20,HEAT:0", "ACK"}, lines)
}

func TestFramer_EmptyLines(t *testing.T) {
	f := NewFramer()
	lines, _ := feedAll(f, "\n\nACK\n")
	assert.Equal(t, []string{"", "", "ACK"}, lines)
}

func TestFramer_OverlongLineDropped(t *testing.T) {
	f := NewFramerSize(16)

	long := strings.Repeat("X", 40)
	lines, dropped := feedAll(f, long[:20], long[20:], "\nACK\n")

	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"ACK"}, lines, "framer must resynchronize on the next line")
}

func TestFramer_OverlongLineInSingleChunk(t *testing.T) {
	f := NewFramerSize(8)

	lines, dropped := feedAll(f, "0123456789ABCDEF\nACK\n")
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"ACK"}, lines)
}

func TestFramer_Reset(t *testing.T) {
	f := NewFramer()
	feedAll(f, "TEMP:2")
	f.Reset()
	assert.Equal(t, 0, f.Buffered())

	lines, _ := feedAll(f, "ACK\n")
	assert.Equal(t, []string{"ACK"}, lines)
}
