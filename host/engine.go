// SPDX-License-Identifier: EPL-2.0

package host

import (
	"github.com/ik5/jdelay/audio"
	"github.com/ik5/jdelay/delay"
)

// Engine is the part of *delay.Engine a host drives.
type Engine interface {
	Process(in, out [][]float32)
	Channels() int
	SampleRate() int
	MaxDelayMs() float64
	DelayFrames(ch int) int
	Active() bool
	Activate() error
	Deactivate()
	Handover(fn func() error) error
	Reconfigure(channels, sampleRate int, maxDelayMs float64) error
	SampleRateChanged(rate int) error
}

var _ Engine = (*delay.Engine)(nil)

// blockRunner pushes interleaved blocks through an engine using planar
// scratch buffers allocated up front. run does not allocate.
type blockRunner struct {
	eng       Engine
	channels  int
	maxFrames int
	planar    [][]float32
	view      [][]float32
}

func newBlockRunner(eng Engine, channels, maxFrames int) *blockRunner {
	return &blockRunner{
		eng:       eng,
		channels:  channels,
		maxFrames: maxFrames,
		planar:    audio.Planar(channels, maxFrames),
		view:      make([][]float32, channels),
	}
}

// run replaces the frames in buf with their delayed counterparts. Blocks
// longer than maxFrames are processed in pieces.
func (b *blockRunner) run(buf []float32) {
	for len(buf) >= b.channels {
		frames := min(len(buf)/b.channels, b.maxFrames)
		chunk := buf[:frames*b.channels]

		for ch := range b.view {
			b.view[ch] = b.planar[ch][:frames]
		}
		audio.Deinterleave(b.view, chunk)
		// In-place is fine: each line stores its input before reading.
		b.eng.Process(b.view, b.view)
		audio.Interleave(chunk, b.view)

		buf = buf[len(chunk):]
	}
}

// tailFrames is the largest configured delay in frames.
func tailFrames(eng Engine) int {
	tail := 0
	for ch := range eng.Channels() {
		tail = max(tail, eng.DelayFrames(ch))
	}

	return tail
}
