// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1 Layer III files through hajimehoshi/go-mp3.
//
// The decoder always yields two channels at the file's sample rate; mono
// files are duplicated on both channels by go-mp3:
//
//	f, _ := os.Open("reference.mp3")
//	src, err := mp3.Decoder{}.Decode(f)
//
// Reads return whole stereo frames only.
package mp3
