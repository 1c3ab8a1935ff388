// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ik5/jdelay/utils"
)

// DefaultBitDepth is used by NewEncoder when bitDepth is zero.
const DefaultBitDepth = 24

// Encoder writes interleaved float32 samples as an integer PCM WAV file. It
// implements audio.Sink. The RIFF sizes are patched on Close, so w must seek.
type Encoder struct {
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer
	channels int
	bitDepth int
	frames   int
}

// NewEncoder prepares a WAV stream of the given layout. bitDepth is 16,
// 24 or 32; zero selects DefaultBitDepth.
func NewEncoder(w io.WriteSeeker, sampleRate, channels, bitDepth int) (*Encoder, error) {
	if bitDepth == 0 {
		bitDepth = DefaultBitDepth
	}

	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bits", ErrOnlyIntegerPCMSupported, bitDepth)
	}

	if channels < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedWavLayout, channels, sampleRate)
	}

	return &Encoder{
		enc: wav.NewEncoder(w, sampleRate, bitDepth, channels, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		channels: channels,
		bitDepth: bitDepth,
	}, nil
}

// Frames reports how many frames were written so far.
func (e *Encoder) Frames() int { return e.frames }

func (e *Encoder) WriteSamples(src []float32) error {
	if len(src)%e.channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrPartialFrame, len(src), e.channels)
	}

	if cap(e.buf.Data) < len(src) {
		e.buf.Data = make([]int, len(src))
	}
	e.buf.Data = e.buf.Data[:len(src)]

	for i, v := range src {
		e.buf.Data[i] = utils.Float32ToInt(v, e.bitDepth)
	}

	if err := e.enc.Write(e.buf); err != nil {
		return fmt.Errorf("%w", err)
	}

	e.frames += len(src) / e.channels

	return nil
}

// Close finalizes the headers. It does not close the underlying writer.
func (e *Encoder) Close() error {
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}
