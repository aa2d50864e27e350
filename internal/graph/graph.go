// Package graph builds neighbour graphs of atoms under periodic boundary
// conditions and splits them into connected molecules.
package graph

import (
	"math"
	"sort"
)

// MinimumImage wraps a displacement into [-box/2, box/2]. A zero box side
// is treated as non-periodic.
func MinimumImage(d, box float64) float64 {
	if box == 0 {
		return d
	}
	return d - math.RoundToEven(d/box)*box
}

// Distance is the minimum-image distance between two points.
func Distance(a, b []float64, box [3]float64) float64 {
	var r2 float64
	for k := range a {
		d := MinimumImage(b[k]-a[k], box[k])
		r2 += d * d
	}
	return math.Sqrt(r2)
}

// Pair is two atoms, I < J, within the cutoff of each other.
type Pair struct {
	I, J     int
	Distance float64
}

// NeighborList returns every pair of atoms closer than or at cutoff.
// positions holds atoms*3 coordinates.
func NeighborList(positions []float64, box [3]float64, cutoff float64) []Pair {
	n := len(positions) / 3
	var out []Pair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d := Distance(positions[3*i:3*i+3], positions[3*j:3*j+3], box); d <= cutoff {
				out = append(out, Pair{I: i, J: j, Distance: d})
			}
		}
	}
	return out
}

// Adjacency returns, for every atom, the sorted list of atoms within cutoff.
func Adjacency(positions []float64, box [3]float64, cutoff float64) [][]int {
	adj := make([][]int, len(positions)/3)
	for _, p := range NeighborList(positions, box, cutoff) {
		adj[p.I] = append(adj[p.I], p.J)
		adj[p.J] = append(adj[p.J], p.I)
	}
	for i := range adj {
		sort.Ints(adj[i])
	}
	return adj
}

// Components groups atoms into connected components by breadth-first
// search. Components are ordered by their lowest atom index.
func Components(adj [][]int) [][]int {
	seen := make([]bool, len(adj))
	var out [][]int
	for start := range adj {
		if seen[start] {
			continue
		}
		seen[start] = true
		queue := []int{start}
		var comp []int
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			comp = append(comp, i)
			for _, j := range adj[i] {
				if !seen[j] {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}
		sort.Ints(comp)
		out = append(out, comp)
	}
	return out
}

// SizeHistogram counts components by size; index i holds the number of
// components with i atoms.
func SizeHistogram(components [][]int) []float64 {
	largest := 0
	for _, c := range components {
		if len(c) > largest {
			largest = len(c)
		}
	}
	hist := make([]float64, largest+1)
	for _, c := range components {
		hist[len(c)]++
	}
	return hist
}
