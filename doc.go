// SPDX-License-Identifier: EPL-2.0

// Package jdelay aligns multi-channel audio by delaying each channel by its
// own amount.
//
// The realtime core lives in package delay. A host calls Engine.Process once
// per audio callback while a control side adjusts delays, links channel
// pairs and reconfigures the engine between callbacks:
//
//	eng := delay.NewEngine(delay.Config{Channels: 4, SampleRate: 48000})
//	eng.SetDelay(2, 1.5)   // channel 3 arrives 1.5 ms later
//	eng.SetLinked(0, true) // channels 1 and 2 move together
//	_ = eng.Activate()
//	eng.Process(in, out)   // per callback, planar float32
//
// # Hosts
//
// Package host drives an engine from a sound card (Device), a file (Offline)
// or a speaker preview (Preview). RenderFile in this package is the shortest
// path from one audio file to a delayed WAV file:
//
//	eng := delay.NewEngine(delay.Config{Delays: []float64{0, 2.5}})
//	stats, err := jdelay.RenderFile(ctx, "in.wav", "out.wav", eng, jdelay.RenderOptions{Tail: true})
//
// # Formats
//
// Input files are decoded by extension:
//   - WAV, 16/24/32-bit integer PCM, any channel count (formats/wav)
//   - AIFF, 16/24/32-bit (formats/aiff)
//   - MP3 (formats/mp3)
//   - Ogg Vorbis (formats/vorbis)
//
// Output is always multi-channel integer PCM WAV.
//
// # Measuring delays
//
// Package align estimates per-channel lags from a recording by FFT
// cross-correlation and can apply them to an engine. Package config keeps
// the session and eight preset slots in an INI file, and package control is
// the interactive console the jdelay command runs.
package jdelay
