package compute

import (
	"runtime"
	"sync"
)

// Workers is the number of goroutines ParallelFor fans out to.
var Workers = runtime.GOMAXPROCS(0)

// ParallelFor executes fn over [0, n) in contiguous chunks of at least
// minChunk indices.
func ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if minChunk < 1 {
		minChunk = 1
	}
	workers := Workers
	if n <= minChunk || workers <= 1 {
		fn(0, n)
		return
	}
	if n/minChunk < workers {
		workers = n / minChunk
	}
	if workers < 1 {
		workers = 1
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// Reduce runs fn over [0, n) like ParallelFor, giving every chunk its own
// accumulator of the given size, and returns the element-wise sum.
func Reduce(n, minChunk, size int, fn func(start, end int, acc []float64)) []float64 {
	var mu sync.Mutex
	total := make([]float64, size)

	ParallelFor(n, minChunk, func(start, end int) {
		local := make([]float64, size)
		fn(start, end, local)

		mu.Lock()
		for i, v := range local {
			total[i] += v
		}
		mu.Unlock()
	})
	return total
}
