package spectral

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// coefficients returns the full length-n DFT of a real series.
//
// Gonum's real FFT only yields the n/2+1 non-redundant coefficients, so the
// upper half is rebuilt from conjugate symmetry: F(n-k) = F*(k).
func coefficients(series []float64) []complex128 {
	n := len(series)
	fft := fourier.NewFFT(n)
	half := fft.Coefficients(nil, series)

	full := make([]complex128, n)
	copy(full, half)
	for j := len(half); j < n; j++ {
		full[j] = cmplx.Conj(half[n-j])
	}
	return full
}
