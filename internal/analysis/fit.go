package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrTooFewPoints = errors.New("analysis: at least two points are needed for a fit")

// Fit is a straight line y = Slope*x + Intercept with one-sigma errors.
type Fit struct {
	Slope        float64
	Intercept    float64
	SlopeErr     float64
	InterceptErr float64
}

// LinearFit performs an ordinary least-squares fit. Errors are estimated
// from the residual variance and are zero for an exact two-point fit.
func LinearFit(x, y []float64) (Fit, error) {
	n := len(x)
	if n != len(y) {
		return Fit{}, errors.New("analysis: x and y differ in length")
	}
	if n < 2 {
		return Fit{}, ErrTooFewPoints
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	fit := Fit{Slope: beta, Intercept: alpha}
	if n == 2 {
		return fit, nil
	}

	xm := stat.Mean(x, nil)
	var sxx, rss float64
	for i := range x {
		dx := x[i] - xm
		sxx += dx * dx
		r := y[i] - (alpha + beta*x[i])
		rss += r * r
	}
	if sxx == 0 {
		return fit, nil
	}
	s2 := rss / float64(n-2)
	fit.SlopeErr = math.Sqrt(s2 / sxx)
	fit.InterceptErr = math.Sqrt(s2 * (1/float64(n) + xm*xm/sxx))
	return fit, nil
}

// FitEinsteinCurve fits y over [0, fitMax) and additionally reports the
// local gradient along the curve, fitted over sliding windows of half the
// fit range (at least three points). fitMax is clamped to [2, len(x)].
func FitEinsteinCurve(x, y []float64, fitMax int) (Fit, []float64, []float64, error) {
	if fitMax > len(x) || fitMax <= 0 {
		fitMax = len(x)
	}
	if fitMax < 2 {
		fitMax = 2
	}
	fit, err := LinearFit(x[:min(fitMax, len(x))], y[:min(fitMax, len(y))])
	if err != nil {
		return Fit{}, nil, nil, err
	}

	window := fitMax / 2
	if window < 3 {
		window = 3
	}
	var gradients, errs []float64
	for end := window; end <= len(x); end++ {
		local, err := LinearFit(x[end-window:end], y[end-window:end])
		if err != nil {
			return Fit{}, nil, nil, err
		}
		gradients = append(gradients, local.Slope)
		errs = append(errs, local.SlopeErr)
	}
	return fit, gradients, errs, nil
}
