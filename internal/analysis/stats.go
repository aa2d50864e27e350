package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Trapezoid integrates f sampled on the increasing axis x.
func Trapezoid(f, x []float64) float64 {
	if len(f) < 2 || len(f) != len(x) {
		return 0
	}
	return integrate.Trapezoidal(x, f)
}

// CumulativeTrapezoid returns the running integral, out[i] = ∫ f over x[0..i].
func CumulativeTrapezoid(f, x []float64) []float64 {
	out := make([]float64, len(f))
	for i := 1; i < len(f) && i < len(x); i++ {
		out[i] = out[i-1] + 0.5*(f[i]+f[i-1])*(x[i]-x[i-1])
	}
	return out
}

// MeanStdErr returns the mean of values and std/sqrt(n) using the
// population standard deviation.
func MeanStdErr(values []float64) (float64, float64) {
	n := len(values)
	switch n {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return values[0], 0
	}
	mean, variance := stat.MeanVariance(values, nil)
	pop := variance * float64(n-1) / float64(n)
	return mean, math.Sqrt(pop) / math.Sqrt(float64(n))
}

func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// LinspaceInt is Linspace truncated to integers.
func LinspaceInt(lo, hi, n int) []int {
	vals := Linspace(float64(lo), float64(hi), n)
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out
}

// Histogram counts values into bins equal-width bins over [lo, hi).
// Values outside the range are ignored.
func Histogram(values []float64, bins int, lo, hi float64, counts []float64) []float64 {
	if counts == nil {
		counts = make([]float64, bins)
	}
	width := (hi - lo) / float64(bins)
	for _, v := range values {
		if v < lo || v >= hi {
			continue
		}
		b := int((v - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	return counts
}

// BinCentres returns the centre of each of bins equal-width bins on [lo, hi).
func BinCentres(bins int, lo, hi float64) []float64 {
	width := (hi - lo) / float64(bins)
	out := make([]float64, bins)
	for i := range out {
		out[i] = lo + (float64(i)+0.5)*width
	}
	return out
}
