// Package compute provides the CPU worker helpers shared by transformations
// and calculators.
//
//   - [ParallelFor]: split an index range into chunks handled by worker goroutines
//   - [Reduce]: ParallelFor with one private accumulator per worker, merged at the end
//   - [Group]: bounded errgroup for running independent tasks (species, experiments)
//   - [BufferPool]: reusable float64 buffers sized to one configuration
package compute
