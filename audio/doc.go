// SPDX-License-Identifier: EPL-2.0

// Package audio defines the streaming interfaces shared by the file formats,
// the hosts and the delay engine.
//
// # Sources and Sinks
//
// A Source yields interleaved float32 samples; a Sink consumes them:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    Close() error
//	}
//
//	type Sink interface {
//	    WriteSamples(src []float32) error
//	    Close() error
//	}
//
// Decoders in the formats tree produce Sources; the WAV encoder is a Sink.
//
// # Planar Buffers
//
// The delay engine works on one slice per channel. Deinterleave and
// Interleave convert between the two layouts without allocating, so they can
// run inside an audio callback:
//
//	planar := audio.Planar(channels, frames)
//	n := audio.Deinterleave(planar, interleaved)
//	engine.Process(planar, planar)
//	audio.Interleave(interleaved, planar)
//
// # Format Registry
//
// The registry maps file extensions to decoders:
//
//	registry := audio.NewRegistry()
//	registry.Register("wav", wav.Decoder{})
//	dec, err := registry.ForPath("take1.WAV")
//
// # Sample Format
//
// Samples are float32 in [-1.0, 1.0]; 0.0 is silence.
//
// # Error Handling
//
// ReadSamples returns io.EOF when no more data is available. A final read may
// return n > 0 together with io.EOF.
package audio
