// SPDX-License-Identifier: EPL-2.0

package delay

import (
	"math"
	"sync/atomic"
)

// slot is a single-writer/single-reader float64 shared between the control
// side and the audio callback.
type slot struct {
	bits atomic.Uint64
}

func (s *slot) load() float64   { return math.Float64frombits(s.bits.Load()) }
func (s *slot) store(v float64) { s.bits.Store(math.Float64bits(v)) }

// layout is an immutable arrangement of lines and delay slots. Structural
// changes build a new layout and publish it; a callback that already loaded
// the previous one finishes on it.
type layout struct {
	lines      []*Line // nil while released
	delays     []slot
	sampleRate int
	maxDelayMs float64
	capacity   int
}

// Bank owns one Line and one requested delay per channel.
//
// SetDelay is safe to call while the audio callback runs. Reconfigure, Reset
// and Release are structural; callers must serialize them with SetDelay and
// keep them away from a running callback (Engine does both).
type Bank struct {
	cur       atomic.Pointer[layout]
	initialMs float64
}

// NewBank builds a bank with allocated lines from cfg.
func NewBank(cfg Config) *Bank {
	cfg = cfg.withDefaults()

	b := &Bank{initialMs: cfg.InitialDelayMs}
	l := &layout{
		delays:     make([]slot, cfg.Channels),
		sampleRate: cfg.SampleRate,
		maxDelayMs: cfg.MaxDelayMs,
		capacity:   Capacity(cfg.MaxDelayMs, cfg.SampleRate),
	}
	for ch := range l.delays {
		v := cfg.InitialDelayMs
		if ch < len(cfg.Delays) {
			v = clampMs(cfg.Delays[ch], cfg.MaxDelayMs)
		}
		l.delays[ch].store(v)
	}
	l.lines = newLines(cfg.Channels, l.capacity)
	b.cur.Store(l)

	return b
}

func newLines(channels, capacity int) []*Line {
	lines := make([]*Line, channels)
	for i := range lines {
		lines[i] = &Line{buf: make([]float32, capacity)}
	}

	return lines
}

func (b *Bank) load() *layout {
	return b.cur.Load()
}

// Channels returns the number of channels.
func (b *Bank) Channels() int { return len(b.load().delays) }

// SampleRate returns the rate used for millisecond to frame conversion.
func (b *Bank) SampleRate() int { return b.load().sampleRate }

// MaxDelayMs returns the delay ceiling.
func (b *Bank) MaxDelayMs() float64 { return b.load().maxDelayMs }

// Capacity returns the per-line capacity in frames.
func (b *Bank) Capacity() int { return b.load().capacity }

// Allocated reports whether the lines are currently allocated.
func (b *Bank) Allocated() bool { return b.load().lines != nil }

// Line returns the delay line of channel ch, or nil when ch is out of range
// or the bank is released.
func (b *Bank) Line(ch int) *Line {
	l := b.load()
	if ch < 0 || ch >= len(l.lines) {
		return nil
	}

	return l.lines[ch]
}

// SetDelay stores ms, clamped to [0, MaxDelayMs], as the delay of channel
// ch. Out-of-range channels are ignored. The value is read by the next
// processed block.
func (b *Bank) SetDelay(ch int, ms float64) {
	l := b.load()
	if ch < 0 || ch >= len(l.delays) {
		return
	}
	l.delays[ch].store(clampMs(ms, l.maxDelayMs))
}

// Delay returns the requested delay of channel ch in milliseconds, or 0 for
// an unknown channel.
func (b *Bank) Delay(ch int) float64 {
	l := b.load()
	if ch < 0 || ch >= len(l.delays) {
		return 0
	}

	return l.delays[ch].load()
}

// Delays returns a copy of all requested delays.
func (b *Bank) Delays() []float64 {
	l := b.load()
	out := make([]float64, len(l.delays))
	for i := range l.delays {
		out[i] = l.delays[i].load()
	}

	return out
}

// DelayFrames returns the delay of channel ch in frames at the current rate.
func (b *Bank) DelayFrames(ch int) int {
	l := b.load()
	if ch < 0 || ch >= len(l.delays) {
		return 0
	}

	return FramesFor(l.delays[ch].load(), l.sampleRate)
}

// Reconfigure discards every line and builds new ones for the given
// parameters. Delays are kept by index and re-clamped to the new ceiling;
// new channels start at the configured initial delay.
func (b *Bank) Reconfigure(channels, sampleRate int, maxDelayMs float64) {
	old := b.load()
	cfg := Config{
		Channels:       channels,
		SampleRate:     sampleRate,
		MaxDelayMs:     maxDelayMs,
		InitialDelayMs: b.initialMs,
	}.withDefaults()

	l := &layout{
		delays:     make([]slot, cfg.Channels),
		sampleRate: cfg.SampleRate,
		maxDelayMs: cfg.MaxDelayMs,
		capacity:   Capacity(cfg.MaxDelayMs, cfg.SampleRate),
	}
	for ch := range l.delays {
		v := b.initialMs
		if ch < len(old.delays) {
			v = old.delays[ch].load()
		}
		l.delays[ch].store(clampMs(v, cfg.MaxDelayMs))
	}
	l.lines = newLines(cfg.Channels, l.capacity)
	b.cur.Store(l)
}

// Reset replaces the lines with fresh zeroed ones, keeping every delay.
func (b *Bank) Reset() {
	old := b.load()
	b.cur.Store(&layout{
		lines:      newLines(len(old.delays), old.capacity),
		delays:     old.delays,
		sampleRate: old.sampleRate,
		maxDelayMs: old.maxDelayMs,
		capacity:   old.capacity,
	})
}

// Release drops the lines. Delays are kept for the next Reset.
func (b *Bank) Release() {
	old := b.load()
	b.cur.Store(&layout{
		delays:     old.delays,
		sampleRate: old.sampleRate,
		maxDelayMs: old.maxDelayMs,
		capacity:   old.capacity,
	})
}
