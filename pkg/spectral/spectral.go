// Package spectral computes the power spectrum of per-region activity traces.
package spectral

import (
	"context"
	"math"
	"math/cmplx"

	"golang.org/x/sync/errgroup"

	"mesoactivity/pkg/reduce"
)

// PowerSpectrum returns the raw power spectrum of a real series: every DFT
// coefficient times its complex conjugate. The result has the same length
// as the series and is not normalized.
//
// The product of a value with its conjugate is real up to rounding; the
// imaginary part is dropped.
func PowerSpectrum(series []float64) []float64 {
	if len(series) == 0 {
		return []float64{}
	}

	coeffs := coefficients(series)
	power := make([]float64, len(coeffs))
	for i, c := range coeffs {
		power[i] = real(c * cmplx.Conj(c))
	}
	return power
}

// Spectra computes the power spectrum of every region of ts, up to workers
// regions at a time. The result is indexed by region.
func Spectra(ctx context.Context, ts *reduce.TimeSeries, workers int) ([][]float64, error) {
	if workers < 1 {
		workers = 1
	}

	out := make([][]float64, ts.Regions())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for r := range out {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[r] = PowerSpectrum(ts.Row(r))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Frequencies returns the frequency of each bin of a length-n spectrum for
// samples taken at sampleRate. Bins past (n-1)/2 hold the negative
// frequencies, matching the layout of PowerSpectrum.
func Frequencies(n int, sampleRate float64) []float64 {
	freqs := make([]float64, n)
	for i := range freqs {
		k := i
		if i > (n-1)/2 {
			k = i - n
		}
		freqs[i] = float64(k) * sampleRate / float64(n)
	}
	return freqs
}

// Peak returns the strongest bin of the positive half of a spectrum, not
// counting the DC bin. It returns -1 and NaN for spectra shorter than 2.
func Peak(spectrum []float64) (int, float64) {
	if len(spectrum) < 2 {
		return -1, math.NaN()
	}

	bin, power := 1, spectrum[1]
	for i := 2; i <= len(spectrum)/2; i++ {
		if spectrum[i] > power {
			bin, power = i, spectrum[i]
		}
	}
	return bin, power
}
