// SPDX-License-Identifier: EPL-2.0

package delay

import (
	"io"
	"log/slog"
	"math"
)

const (
	DefaultChannels   = 2
	DefaultSampleRate = 44100
	DefaultMaxDelayMs = 1000.0
)

// Config holds the parameters an Engine or Bank starts with.
// Zero values select the defaults.
type Config struct {
	// Channels is the number of delay lines. Values below 1 become 1;
	// zero selects DefaultChannels.
	Channels int
	// SampleRate in Hz used to convert milliseconds into frames.
	SampleRate int
	// MaxDelayMs is the ceiling every channel delay is clamped to.
	MaxDelayMs float64
	// InitialDelayMs is applied to channels without an entry in Delays and to
	// channels added by Reconfigure.
	InitialDelayMs float64
	// Delays holds per-channel start values, by index.
	Delays []float64
	// Logger receives control-side events. The realtime path never logs.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.Channels < 1 {
		c.Channels = 1
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.MaxDelayMs <= 0 || math.IsNaN(c.MaxDelayMs) || math.IsInf(c.MaxDelayMs, 0) {
		c.MaxDelayMs = DefaultMaxDelayMs
	}
	c.InitialDelayMs = clampMs(c.InitialDelayMs, c.MaxDelayMs)
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return c
}

func clampMs(ms, maxMs float64) float64 {
	switch {
	case math.IsNaN(ms), ms < 0:
		return 0
	case ms > maxMs:
		return maxMs
	}

	return ms
}
