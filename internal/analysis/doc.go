// Package analysis provides the numerical kernels shared by calculators.
//
//   - [Autocorrelate], [CrossCorrelate]: positive-lag correlation sums via FFT
//   - [PowerSpectrum]: magnitude spectrum of a real series
//   - [LinearFit], [FitEinsteinCurve]: least-squares lines with parameter errors
//   - [Trapezoid]: trapezoidal integration over a sampled axis
//   - [MeanStdErr]: ensemble mean and its standard error
//
// # Diffusion from an MSD curve
//
// The Einstein relation fits the linear regime of a mean square displacement:
//
//	fit, gradients, errs, err := analysis.FitEinsteinCurve(time, msd, fitRange)
//	d := fit.Slope / 6
package analysis
