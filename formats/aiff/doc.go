// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files through go-audio/aiff.
//
// Integer PCM at 16, 24 or 32 bits with any channel count is supported:
//
//	f, _ := os.Open("overheads.aif")
//	src, err := aiff.Decoder{}.Decode(f)
//	if errors.Is(err, aiff.ErrNotAiffFile) {
//	    // try another decoder
//	}
//
// The returned Source yields interleaved float32 samples and closes the
// input when it is closed.
package aiff
