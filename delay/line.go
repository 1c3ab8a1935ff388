// SPDX-License-Identifier: EPL-2.0

package delay

import (
	"fmt"
	"math"
)

// GuardFrames is the head room added on top of the largest delay. It absorbs
// one callback block so a delay change never lets the read position overtake
// the write cursor.
const GuardFrames = 8192

// Line is a single channel's circular sample buffer.
//
// Write copies a block at the write cursor and advances it. Read copies the
// block that ends a given number of frames before the cursor. Neither
// allocates.
type Line struct {
	buf      []float32
	writePos int
}

// NewLine returns a zeroed line holding capacity frames.
func NewLine(capacity int) (*Line, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	return &Line{buf: make([]float32, capacity)}, nil
}

// Capacity returns the number of frames a line needs to serve delays up to
// maxDelayMs at sampleRate.
func Capacity(maxDelayMs float64, sampleRate int) int {
	if maxDelayMs < 0 || math.IsNaN(maxDelayMs) {
		maxDelayMs = 0
	}
	if sampleRate < 0 {
		sampleRate = 0
	}

	return int(maxDelayMs/1000*float64(sampleRate)) + GuardFrames
}

// FramesFor converts a delay in milliseconds to whole frames, rounding down.
func FramesFor(ms float64, sampleRate int) int {
	if ms <= 0 || math.IsNaN(ms) || sampleRate <= 0 {
		return 0
	}

	// ms*rate/1000 keeps integer millisecond values exact; the epsilon
	// catches values such as 0.3 ms that land a hair below an integer.
	return int(math.Floor(ms*float64(sampleRate)/1000 + 1e-9))
}

// Len returns the capacity of the line in frames.
func (l *Line) Len() int {
	return len(l.buf)
}

// WritePos returns the current write cursor.
func (l *Line) WritePos() int {
	return l.writePos
}

// Write copies in into the ring starting at the write cursor, wrapping at the
// end of the buffer, and advances the cursor by len(in).
// A block longer than the line keeps only its last Len() samples.
func (l *Line) Write(in []float32) {
	size := len(l.buf)
	n := len(in)
	if size == 0 || n == 0 {
		return
	}

	src := in
	pos := l.writePos
	if n > size {
		src = in[n-size:]
		pos = (l.writePos + n - size) % size
	}

	for len(src) > 0 {
		k := copy(l.buf[pos:], src)
		src = src[k:]
		pos = 0
	}

	l.writePos = (l.writePos + n) % size
}

// Read fills out with the len(out) samples that end delayFrames frames
// before the write cursor. With delayFrames == 0 it returns the block passed
// to the last Write of the same length.
//
// delayFrames is clamped to [0, Len()-len(out)] so the read never touches
// samples older than the ring holds.
func (l *Line) Read(delayFrames int, out []float32) {
	size := len(l.buf)
	n := len(out)
	if n == 0 {
		return
	}
	if size == 0 {
		clear(out)
		return
	}

	delayFrames = l.clampDelay(delayFrames, n)
	pos := mod(l.writePos-n-delayFrames, size)

	for off := 0; off < n; {
		k := copy(out[off:], l.buf[pos:])
		off += k
		pos = 0
	}
}

// Reset zeroes the buffer and rewinds the cursor.
func (l *Line) Reset() {
	clear(l.buf)
	l.writePos = 0
}

func (l *Line) clampDelay(delayFrames, blockLen int) int {
	if delayFrames < 0 {
		return 0
	}

	limit := len(l.buf) - blockLen
	if limit < 0 {
		limit = 0
	}
	if delayFrames > limit {
		return limit
	}

	return delayFrames
}

func mod(a, m int) int {
	a %= m
	if a < 0 {
		a += m
	}

	return a
}
