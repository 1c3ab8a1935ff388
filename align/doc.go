// SPDX-License-Identifier: EPL-2.0

// Package align estimates how far each channel of a multi-microphone
// recording lags a reference channel and turns the lags into the delays that
// line all channels up with the latest one.
//
// Lags come from the peak of the FFT cross-correlation of each channel with
// the reference:
//
//	est, err := align.Measure(src, align.Options{MaxLagMs: 50})
//	for _, l := range est.Lags {
//	    fmt.Println(l.Channel, l.LagFrames, l.Confidence)
//	}
//	est.Apply(engine)
//
// A positive lag means the channel hears the event after the reference. The
// suggested delay of the latest channel is zero.
package align
