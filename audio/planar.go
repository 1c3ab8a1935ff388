// SPDX-License-Identifier: EPL-2.0

package audio

// Deinterleave splits interleaved src into the per-channel slices of dst and
// returns the number of frames copied. The frame count is bounded by
// len(src)/len(dst) and by the shortest dst slice. It does not allocate.
func Deinterleave(dst [][]float32, src []float32) int {
	channels := len(dst)
	if channels == 0 {
		return 0
	}

	frames := len(src) / channels
	for _, d := range dst {
		frames = min(frames, len(d))
	}

	switch channels {
	case 1:
		copy(dst[0][:frames], src)
	case 2: // Stereo (most common)
		l, r := dst[0], dst[1]
		for f := range frames {
			idx := f << 1
			l[f] = src[idx]
			r[f] = src[idx+1]
		}
	default:
		for f := range frames {
			base := f * channels
			for ch, d := range dst {
				d[f] = src[base+ch]
			}
		}
	}

	return frames
}

// Interleave merges the per-channel slices of src into dst and returns the
// number of frames written. It is the inverse of Deinterleave.
func Interleave(dst []float32, src [][]float32) int {
	channels := len(src)
	if channels == 0 {
		return 0
	}

	frames := len(dst) / channels
	for _, s := range src {
		frames = min(frames, len(s))
	}

	switch channels {
	case 1:
		copy(dst[:frames], src[0])
	case 2:
		l, r := src[0], src[1]
		for f := range frames {
			idx := f << 1
			dst[idx] = l[f]
			dst[idx+1] = r[f]
		}
	default:
		for f := range frames {
			base := f * channels
			for ch, s := range src {
				dst[base+ch] = s[f]
			}
		}
	}

	return frames
}

// Planar allocates channels slices of frames samples each.
func Planar(channels, frames int) [][]float32 {
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}

	return out
}
