// SPDX-License-Identifier: EPL-2.0

// Package wav reads and writes integer PCM WAV files through go-audio/wav.
//
// # Decoding
//
// Decoder accepts 16, 24 and 32-bit integer PCM with any channel count:
//
//	f, _ := os.Open("take1.wav")
//	src, err := wav.Decoder{}.Decode(f)
//	defer src.Close() // closes f
//
// Inputs that cannot seek are read into memory first.
//
// # Encoding
//
// Encoder is an audio.Sink for interleaved float32 frames. It needs an
// io.WriteSeeker because the RIFF sizes are written on Close:
//
//	out, _ := os.Create("aligned.wav")
//	enc, _ := wav.NewEncoder(out, 48000, 8, 24)
//	_ = enc.WriteSamples(frames)
//	_ = enc.Close()
//	_ = out.Close()
//
// Samples outside [-1, 1] are clipped.
package wav
