// Package calculators implements the analyses run on an experiment:
// self and distinct diffusion, radial distribution functions,
// Kirkwood-Buff integrals, ionic conductivity and molecular graphs.
//
// Every analysis is a [Calculator] built by a [Registry] from a parameter
// map. A [Runner] makes the calculator's input properties available
// through the transform package, reuses a stored computation when one
// with the same parameters exists for the current experiment version, and
// otherwise runs the calculator and stores its entries.
//
// Correlation analyses share a windowing scheme: windows of data_range
// configurations start every correlation_time configurations and are
// averaged. Trajectories are read in memory-bounded batches that always
// hold complete windows.
package calculators
