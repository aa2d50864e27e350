package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Autocorrelate returns c[k] = sum_t x[t]*x[t+k] for k in [0, len(x)),
// the non-negative half of a full linear correlation.
func Autocorrelate(x []float64) []float64 {
	return CrossCorrelate(x, x)
}

// CrossCorrelate returns c[k] = sum_t a[t]*b[t+k] for k in [0, n), n being
// the shorter length.
func CrossCorrelate(a, b []float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return nil
	}

	size := 2 * n
	fft := fourier.NewFFT(size)

	pa := make([]float64, size)
	pb := make([]float64, size)
	copy(pa, a[:n])
	copy(pb, b[:n])

	ca := fft.Coefficients(nil, pa)
	cb := fft.Coefficients(nil, pb)
	for i := range ca {
		ca[i] = cmplx.Conj(ca[i]) * cb[i]
	}

	seq := fft.Sequence(nil, ca)
	out := make([]float64, n)
	scale := 1 / float64(size)
	for k := range out {
		out[k] = seq[k] * scale
	}
	return out
}

// PowerSpectrum returns the magnitudes of the len(x)/2+1 non-negative
// frequency coefficients.
func PowerSpectrum(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	fft := fourier.NewFFT(len(x))
	coeff := fft.Coefficients(nil, x)

	ps := make([]float64, len(coeff))
	for i, c := range coeff {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}
