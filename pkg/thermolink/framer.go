// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermolink

import "bytes"

// Framer reassembles newline-terminated lines from arbitrary read chunks.
// A line may arrive split over several reads, and one read may carry
// several lines; Feed emits each complete line exactly once, in order.
//
// A Framer is not safe for concurrent use. Each read loop owns one.
type Framer struct {
	buf      []byte
	maxLen   int
	skipping bool // discarding the rest of an overlong line
}

// NewFramer creates a framer that drops lines longer than MaxLineLength
func NewFramer() *Framer {
	return NewFramerSize(MaxLineLength)
}

// NewFramerSize creates a framer with a custom line length limit
func NewFramerSize(maxLen int) *Framer {
	return &Framer{
		buf:    make([]byte, 0, 128),
		maxLen: maxLen,
	}
}

// Feed consumes one chunk and calls emit for every line it completes.
// The terminator is stripped. It returns the number of overlong lines
// discarded while processing the chunk.
func (f *Framer) Feed(p []byte, emit func(line string)) int {
	dropped := 0

	for len(p) > 0 {
		i := bytes.IndexByte(p, LineTerminator)
		if i < 0 {
			if !f.skipping {
				f.buf = append(f.buf, p...)
				if len(f.buf) > f.maxLen {
					f.buf = f.buf[:0]
					f.skipping = true
					dropped++
				}
			}
			return dropped
		}

		if f.skipping {
			// Tail of an overlong line; resume at the next line
			f.skipping = false
		} else if len(f.buf)+i > f.maxLen {
			f.buf = f.buf[:0]
			dropped++
		} else {
			var line string
			if len(f.buf) == 0 {
				line = string(p[:i])
			} else {
				f.buf = append(f.buf, p[:i]...)
				line = string(f.buf)
				f.buf = f.buf[:0]
			}
			emit(line)
		}
		p = p[i+1:]
	}

	return dropped
}

// Buffered returns the number of bytes held for an incomplete line
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partial line
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.skipping = false
}
