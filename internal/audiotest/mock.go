// SPDX-License-Identifier: EPL-2.0

// Package audiotest provides deterministic sources and an in-memory sink for
// tests. It implements the audio interfaces structurally to avoid import
// cycles.
package audiotest

import (
	"errors"
	"io"
	"math"
	"sync"
)

// MockSource generates totalFrames frames from a waveform function.
type MockSource struct {
	sampleRate  int
	channels    int
	totalFrames int
	generated   int
	waveform    func(frame, channel int) float32
	closed      bool
}

func NewMockSource(sampleRate, channels, totalFrames int, waveform func(frame, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:  sampleRate,
		channels:    channels,
		totalFrames: totalFrames,
		waveform:    waveform,
	}
}

func NewSilentSource(sampleRate, channels, totalFrames int) *MockSource {
	return NewConstantSource(sampleRate, channels, totalFrames, 0)
}

func NewSineSource(sampleRate, channels, totalFrames int, frequency float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame, _ int) float32 {
		t := float64(frame) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

func NewConstantSource(sampleRate, channels, totalFrames int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(int, int) float32 {
		return value
	})
}

// NewImpulseSource emits a unit impulse on each channel at the frame given
// by offsets[channel]; channels beyond len(offsets) stay silent.
func NewImpulseSource(sampleRate, channels, totalFrames int, offsets ...int) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame, ch int) float32 {
		if ch < len(offsets) && offsets[ch] == frame {
			return 1
		}
		return 0
	})
}

func (m *MockSource) SampleRate() int { return m.sampleRate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) Closed() bool    { return m.closed }

func (m *MockSource) Close() error {
	m.closed = true
	return nil
}

// Reset rewinds the source to its first frame.
func (m *MockSource) Reset() {
	m.generated = 0
}

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.generated >= m.totalFrames {
		return 0, io.EOF
	}

	frames := min(len(dst)/m.channels, m.totalFrames-m.generated)
	for f := range frames {
		for ch := range m.channels {
			dst[f*m.channels+ch] = m.waveform(m.generated+f, ch)
		}
	}

	m.generated += frames
	if m.generated >= m.totalFrames {
		return frames * m.channels, io.EOF
	}

	return frames * m.channels, nil
}

// ErrSinkClosed is returned by MemorySink writes after Close.
var ErrSinkClosed = errors.New("sink closed")

// MemorySink collects interleaved samples. It is safe for concurrent use.
type MemorySink struct {
	mtx      sync.Mutex
	channels int
	samples  []float32
	writes   int
	closed   bool
}

func NewMemorySink(channels int) *MemorySink {
	return &MemorySink{channels: channels}
}

func (s *MemorySink) WriteSamples(src []float32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	s.samples = append(s.samples, src...)
	s.writes++

	return nil
}

func (s *MemorySink) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.closed = true
	return nil
}

// Samples returns a copy of everything written so far.
func (s *MemorySink) Samples() []float32 {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return append([]float32(nil), s.samples...)
}

// Channel extracts one channel from the collected samples.
func (s *MemorySink) Channel(ch int) []float32 {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	out := make([]float32, 0, len(s.samples)/s.channels)
	for i := ch; i < len(s.samples); i += s.channels {
		out = append(out, s.samples[i])
	}

	return out
}

// Frames reports the number of whole frames written.
func (s *MemorySink) Frames() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return len(s.samples) / s.channels
}

func (s *MemorySink) Writes() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.writes
}

func (s *MemorySink) Closed() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.closed
}
