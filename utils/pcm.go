// SPDX-License-Identifier: EPL-2.0

// Package utils holds the integer PCM conversions shared by the decoders and
// the WAV encoder.
package utils

// DefaultBitDepth is used when a stream does not report a supported depth.
const DefaultBitDepth = 16

// FullScale returns the magnitude of the most negative integer sample at
// bitDepth (32768 for 16-bit). Unsupported depths fall back to 16-bit.
func FullScale(bitDepth int) float32 {
	switch bitDepth {
	case 8, 16, 24, 32:
		return float32(int64(1) << (bitDepth - 1))
	default:
		return float32(int64(1) << (DefaultBitDepth - 1))
	}
}

// IntToFloat32 normalizes an integer sample into [-1, 1).
func IntToFloat32(v, bitDepth int) float32 {
	return float32(v) / FullScale(bitDepth)
}

// IntsToFloat32 converts src into dst and returns the number of samples
// written, bounded by the shorter slice.
func IntsToFloat32(dst []float32, src []int, bitDepth int) int {
	n := min(len(dst), len(src))
	scale := 1 / FullScale(bitDepth)
	for i := range n {
		dst[i] = float32(src[i]) * scale
	}

	return n
}

// Float32ToInt clamps x to [-1, 1] and scales it to a bitDepth integer.
// Positive full scale maps to the largest representable value.
func Float32ToInt(x float32, bitDepth int) int {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}

	// float32 cannot hold 2^31-1, so scale in float64.
	peak := int64(FullScale(bitDepth)) - 1
	v := int64(float64(x) * float64(peak))

	return int(min(max(v, -peak), peak))
}
