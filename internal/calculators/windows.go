package calculators

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/san-kum/mdsuite/internal/compute"
	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/memory"
	"github.com/san-kum/mdsuite/internal/project"
)

// source is a dataset read window by window, optionally restricted to
// some atoms.
type source struct {
	path  string
	atoms []int
}

// forEachWindow calls fn for every correlation window with the loaded
// tensors of all sources and the offset of the window inside them. It
// returns the number of windows.
func forEachWindow(ctx context.Context, exp *project.Experiment, c Common, sources []source, fn func(ts []*database.Tensor, origin int)) (int, error) {
	n := exp.NumberOfConfigurations
	if c.DataRange > n {
		return 0, fmt.Errorf("%w: data_range %d, %s has %d configurations", ErrDataRange, c.DataRange, exp.Name, n)
	}
	db, err := exp.Database()
	if err != nil {
		return 0, err
	}

	perConfig := 0
	for _, s := range sources {
		info, err := db.Info(s.path)
		if err != nil {
			return 0, err
		}
		atoms := info.Atoms
		if s.atoms != nil {
			atoms = len(s.atoms)
		}
		perConfig += atoms * info.Dim * 8
	}
	batch := max(exp.BatchSize(perConfig, n), c.DataRange)

	var origins []int
	for o := 0; o+c.DataRange <= n; o += c.CorrelationTime {
		origins = append(origins, o)
	}

	windows := 0
	ts := make([]*database.Tensor, len(sources))
	for len(origins) > 0 {
		if err := ctx.Err(); err != nil {
			return windows, err
		}
		first := origins[0]
		stop := min(first+batch, n)
		k := min(memory.EnsembleLoop(stop-first, c.DataRange, c.CorrelationTime), len(origins))
		for i, s := range sources {
			if ts[i], err = db.Load(s.path, first, stop, s.atoms); err != nil {
				return windows, err
			}
		}
		for _, o := range origins[:k] {
			fn(ts, o-first)
		}
		windows += k
		origins = origins[k:]
	}
	return windows, nil
}

// addMSD adds Σ_d mean_atoms (x(o+τ) - x(o))² for every lag τ to acc.
func addMSD(t *database.Tensor, origin int, lags []int, acc []float64) {
	inv := 1 / float64(t.Atoms)
	for a := 0; a < t.Atoms; a++ {
		for j, lag := range lags {
			var s float64
			for d := 0; d < t.Dim; d++ {
				dx := t.At(a, origin+lag, d) - t.At(a, origin, d)
				s += dx * dx
			}
			acc[j] += s * inv
		}
	}
}

// component copies the dataRange values of one atom and dimension starting
// at origin into dst.
func component(t *database.Tensor, a, d, origin int, dst []float64) []float64 {
	for i := range dst {
		dst[i] = t.At(a, origin+i, d)
	}
	return dst
}

// eachSubject runs fn for every subject concurrently. All failures are
// reported together, and no entries are returned if any subject failed.
func eachSubject[T any](ctx context.Context, subjects []T, fn func(ctx context.Context, s T) (project.Entry, error)) ([]project.Entry, error) {
	entries := make([]project.Entry, len(subjects))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g := compute.NewGroup(ctx, compute.Workers)
	for i, s := range subjects {
		i, s := i, s
		g.Go(func(ctx context.Context) error {
			e, err := fn(ctx, s)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return entries, nil
}

// pairs returns the combinations with replacement of sorted names.
func pairs(names []string) [][2]string {
	var out [][2]string
	for i := range names {
		for j := i; j < len(names); j++ {
			out = append(out, [2]string{names[i], names[j]})
		}
	}
	return out
}
