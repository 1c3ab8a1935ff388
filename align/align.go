// SPDX-License-Identifier: EPL-2.0

package align

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ik5/jdelay/audio"
	"github.com/ik5/jdelay/delay"
)

const (
	DefaultMaxLagMs  = 100.0
	DefaultMaxFrames = 10 * 48000
)

// Options control a measurement.
type Options struct {
	// Reference is the channel the others are compared against.
	Reference int
	// MaxLagMs bounds the searched lag in both directions.
	MaxLagMs float64
	// Window applies a Hann window before correlating.
	Window bool
	// MaxFrames limits how much of a Source Measure reads.
	MaxFrames int
}

func (o Options) withDefaults() Options {
	if o.MaxLagMs <= 0 {
		o.MaxLagMs = DefaultMaxLagMs
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = DefaultMaxFrames
	}

	return o
}

// Lag is the measured offset of one channel.
type Lag struct {
	Channel   int
	LagFrames int
	LagMs     float64
	// Confidence is the normalized correlation peak in [0, 1].
	Confidence float64
	// Inverted is set when the best match has opposite polarity.
	Inverted bool
}

// Estimate holds the lags of every channel and the delays that align them.
type Estimate struct {
	SampleRate int
	Reference  int
	Lags       []Lag
	// Delays in milliseconds, indexed by channel; the latest channel gets 0.
	Delays []float64
}

// Apply sets every suggested delay on set.
func (e Estimate) Apply(set delay.DelaySetter) {
	for ch, ms := range e.Delays {
		set.SetDelay(ch, ms)
	}
}

// Lags measures planar channels of equal length sampled at sampleRate.
func Lags(channels [][]float64, sampleRate int, opts Options) (Estimate, error) {
	opts = opts.withDefaults()

	switch {
	case len(channels) < 2:
		return Estimate{}, ErrTooFewChannels
	case opts.Reference < 0 || opts.Reference >= len(channels):
		return Estimate{}, ErrInvalidReference
	case len(channels[0]) == 0:
		return Estimate{}, ErrEmptyInput
	}
	for _, ch := range channels {
		if len(ch) != len(channels[0]) {
			return Estimate{}, ErrLengthMismatch
		}
	}

	corr, err := newCorrelator(channels[opts.Reference], opts.Window)
	if err != nil {
		return Estimate{}, err
	}

	maxLag := int(opts.MaxLagMs * float64(sampleRate) / 1000)
	est := Estimate{
		SampleRate: sampleRate,
		Reference:  opts.Reference,
		Lags:       make([]Lag, len(channels)),
		Delays:     make([]float64, len(channels)),
	}

	latest := math.MinInt
	for ch, sig := range channels {
		lag, peak := 0, 1.0
		if ch != opts.Reference {
			if lag, peak, err = corr.lag(sig, maxLag); err != nil {
				return Estimate{}, fmt.Errorf("channel %d: %w", ch, err)
			}
		}

		est.Lags[ch] = Lag{
			Channel:    ch,
			LagFrames:  lag,
			LagMs:      framesToMs(lag, sampleRate),
			Confidence: math.Abs(peak),
			Inverted:   peak < 0,
		}
		latest = max(latest, lag)
	}

	for ch, l := range est.Lags {
		est.Delays[ch] = framesToMs(latest-l.LagFrames, sampleRate)
	}

	return est, nil
}

// Measure reads up to opts.MaxFrames frames of src and measures them. It
// does not close src.
func Measure(src audio.Source, opts Options) (Estimate, error) {
	opts = opts.withDefaults()

	channels := src.Channels()
	if channels < 2 {
		return Estimate{}, ErrTooFewChannels
	}

	planar := make([][]float64, channels)
	buf := make([]float32, 4096*channels)
	frame := make([][]float32, channels)
	scratch := audio.Planar(channels, 4096)

	for total := 0; total < opts.MaxFrames; {
		want := min(4096, opts.MaxFrames-total) * channels
		n, err := src.ReadSamples(buf[:want])
		frames := n / channels

		for ch := range frame {
			frame[ch] = scratch[ch][:frames]
		}
		audio.Deinterleave(frame, buf[:frames*channels])
		for ch, samples := range frame {
			for _, v := range samples {
				planar[ch] = append(planar[ch], float64(v))
			}
		}
		total += frames

		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return Estimate{}, fmt.Errorf("align: read source: %w", err)
		}
	}

	return Lags(planar, src.SampleRate(), opts)
}

func framesToMs(frames, sampleRate int) float64 {
	return float64(frames) * 1000 / float64(sampleRate)
}
