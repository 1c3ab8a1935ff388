// SPDX-License-Identifier: EPL-2.0

package align

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// correlator cross-correlates signals of one length against a fixed
// reference, reusing the FFT plan and the reference spectrum.
type correlator struct {
	n       int
	fftSize int
	plan    *algofft.Plan[complex128]
	refFreq []complex128
	refNorm float64
	window  []float64

	scratch []float64
	time    []complex128
	freq    []complex128
	corr    []float64
}

func newCorrelator(ref []float64, windowed bool) (*correlator, error) {
	n := len(ref)
	fftSize := nextPowerOf2(2 * n)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("align: create FFT plan: %w", err)
	}

	c := &correlator{
		n:       n,
		fftSize: fftSize,
		plan:    plan,
		refFreq: make([]complex128, fftSize),
		scratch: make([]float64, n),
		time:    make([]complex128, fftSize),
		freq:    make([]complex128, fftSize),
		corr:    make([]float64, fftSize),
	}
	// A Hann window of two or fewer points is all zeros.
	if windowed && n > 2 {
		c.window = window.Generate(window.TypeHann, n)
	}

	c.refNorm, err = c.spectrum(c.refFreq, ref)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// spectrum windows x, stores its zero-padded FFT in dst and returns the L2
// norm of the windowed signal.
func (c *correlator) spectrum(dst []complex128, x []float64) (float64, error) {
	copy(c.scratch, x)
	if c.window != nil {
		vecmath.MulBlockInPlace(c.scratch, c.window)
	}

	var energy float64
	clear(c.time)
	for i, v := range c.scratch {
		c.time[i] = complex(v, 0)
		energy += v * v
	}

	if err := c.plan.Forward(dst, c.time); err != nil {
		return 0, fmt.Errorf("align: forward FFT: %w", err)
	}

	return math.Sqrt(energy), nil
}

// lag finds the shift in [-maxLag, maxLag] at which sig best matches the
// reference. peak is the normalized correlation at that shift in [-1, 1].
func (c *correlator) lag(sig []float64, maxLag int) (lag int, peak float64, err error) {
	sigNorm, err := c.spectrum(c.freq, sig)
	if err != nil {
		return 0, 0, err
	}
	if sigNorm == 0 || c.refNorm == 0 {
		return 0, 0, nil
	}

	// r[k] = sum a[n+k] b[n]: a peak at k = D means sig trails ref by D.
	for i, r := range c.refFreq {
		c.freq[i] *= complex(real(r), -imag(r))
	}
	if err := c.plan.Inverse(c.time, c.freq); err != nil {
		return 0, 0, fmt.Errorf("align: inverse FFT: %w", err)
	}

	for i, v := range c.time {
		c.corr[i] = real(v)
	}
	vecmath.ScaleBlock(c.corr, c.corr, 1/(sigNorm*c.refNorm))

	maxLag = min(maxLag, c.n-1)
	best := math.Inf(-1)
	for k := -maxLag; k <= maxLag; k++ {
		idx := k
		if idx < 0 {
			idx += c.fftSize
		}
		if v := math.Abs(c.corr[idx]); v > best {
			best, lag, peak = v, k, c.corr[idx]
		}
	}

	return lag, peak, nil
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
