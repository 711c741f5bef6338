package spectral

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"mesoactivity/pkg/reduce"
)

// tolerance bounds rounding residue relative to the DC power
const tolerance = 1e-9

// naiveDFT is the O(n^2) reference transform
func naiveDFT(x []float64) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t, v := range x {
			angle := -2 * math.Pi * float64(k*t) / float64(n)
			sum += complex(v, 0) * cmplx.Exp(complex(0, angle))
		}
		out[k] = sum
	}
	return out
}

func TestPowerSpectrumConstant(t *testing.T) {
	for _, n := range []int{1, 2, 7, 16, 2000} {
		series := make([]float64, n)
		for i := range series {
			series[i] = 3.5
		}

		power := PowerSpectrum(series)
		require.Len(t, power, n)

		dc := float64(n*n) * 3.5 * 3.5
		assert.InDelta(t, dc, power[0], dc*tolerance, "n=%d", n)
		for k := 1; k < n; k++ {
			assert.InDelta(t, 0, power[k], dc*tolerance, "n=%d bin %d", n, k)
		}
	}
}

func TestPowerSpectrumMatchesReference(t *testing.T) {
	for _, n := range []int{5, 8, 13, 64} {
		series := make([]float64, n)
		for i := range series {
			series[i] = math.Sin(float64(i)*0.7) + 0.3*math.Cos(float64(i*i)*0.11) + 2
		}

		power := PowerSpectrum(series)
		ref := naiveDFT(series)
		scale := 0.0
		for _, c := range ref {
			scale = math.Max(scale, cmplx.Abs(c)*cmplx.Abs(c))
		}

		for k, c := range ref {
			want := real(c * cmplx.Conj(c))
			assert.InDelta(t, want, power[k], scale*1e-9, "n=%d bin %d", n, k)
		}
	}
}

func TestCoefficientsConjugateProductIsReal(t *testing.T) {
	series := []float64{0.2, 1.7, -3.1, 4.4, 0.05, 9.9, -2.2, 1.1, 0.6}
	for k, c := range coefficients(series) {
		p := c * cmplx.Conj(c)
		assert.InDelta(t, 0, imag(p), 1e-9*math.Max(1, real(p)), "bin %d", k)
	}
}

func TestPowerSpectrumSinusoid(t *testing.T) {
	n := 64
	series := make([]float64, n)
	for i := range series {
		series[i] = math.Cos(2 * math.Pi * 5 * float64(i) / float64(n))
	}

	power := PowerSpectrum(series)
	bin, peak := Peak(power)
	assert.Equal(t, 5, bin)
	assert.InDelta(t, float64(n*n)/4, peak, 1e-6)

	// Mirror bin carries the same power
	assert.InDelta(t, power[5], power[n-5], 1e-6)
}

func TestPowerSpectrumEmpty(t *testing.T) {
	assert.Empty(t, PowerSpectrum(nil))
}

func TestSpectra(t *testing.T) {
	data := mat.NewDense(3, 8, []float64{
		1, 1, 1, 1, 1, 1, 1, 1,
		0, 1, 0, 1, 0, 1, 0, 1,
		5, 4, 3, 2, 1, 0, -1, -2,
	})
	ts := reduce.NewTimeSeries(data)

	spectra, err := Spectra(context.Background(), ts, 4)
	require.NoError(t, err)
	require.Len(t, spectra, 3)
	for r := 0; r < 3; r++ {
		assert.Equal(t, PowerSpectrum(ts.Row(r)), spectra[r], "region %d", r)
	}
	assert.InDelta(t, 64, spectra[0][0], 1e-9)
	assert.InDelta(t, 16, spectra[1][4], 1e-9, "alternating series peaks at Nyquist")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Spectra(ctx, ts, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrequencies(t *testing.T) {
	assert.Equal(t, []float64{0, 1, -2, -1}, Frequencies(4, 4))
	assert.Equal(t, []float64{0, 6, 12, -12, -6}, Frequencies(5, 30))
}

func TestPeakShort(t *testing.T) {
	bin, power := Peak([]float64{4})
	assert.Equal(t, -1, bin)
	assert.True(t, math.IsNaN(power))
}
