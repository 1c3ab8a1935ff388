// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis streams through jfreymuth/oggvorbis.
//
// Any channel count is passed through unchanged:
//
//	f, _ := os.Open("room.ogg")
//	src, err := vorbis.Decoder{}.Decode(f)
package vorbis
