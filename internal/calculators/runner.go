package calculators

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/san-kum/mdsuite/internal/compute"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/transform"
	"go.uber.org/zap"
)

type RunOptions struct {
	// Force recomputes even when a stored computation matches.
	Force bool
}

// Runner executes calculators against experiments and caches their
// results in the project database.
type Runner struct {
	Transforms *transform.Registry
	Log        *zap.Logger
	// ExperimentLog, when set, picks the logger used for one experiment.
	ExperimentLog func(*project.Experiment) *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Transforms: transform.NewRegistry(), Log: log}
}

// runnerBound is implemented by calculators built on other computations.
type runnerBound interface {
	bind(*Runner)
}

func (r *Runner) Run(ctx context.Context, exp *project.Experiment, calc Calculator, opts RunOptions) (*project.Computation, error) {
	base := r.Log
	if r.ExperimentLog != nil {
		base = r.ExperimentLog(exp)
	}
	log := base.With(zap.String("calculator", calc.Name()), zap.String("experiment", exp.Name))

	for _, dep := range calc.Dependencies() {
		if err := r.Transforms.Ensure(ctx, exp, dep); err != nil {
			return nil, &CalculatorError{Calculator: calc.Name(), Experiment: exp.Name, Wrapped: err}
		}
	}

	params := calc.Parameters()
	if !opts.Force {
		c, err := exp.FindComputation(ctx, calc.Name(), params)
		if err == nil {
			log.Debug("using stored computation", zap.String("id", c.ID))
			return c, nil
		}
		if !errors.Is(err, project.ErrNoComputation) {
			return nil, err
		}
	}

	if b, ok := calc.(runnerBound); ok {
		b.bind(r)
	}
	start := time.Now()
	entries, err := calc.Run(ctx, exp)
	if err != nil {
		var ce *CalculatorError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &CalculatorError{Calculator: calc.Name(), Experiment: exp.Name, Wrapped: err}
	}

	c := &project.Computation{Name: calc.Name(), Parameters: params, Entries: entries}
	if err := exp.SaveComputation(ctx, c); err != nil {
		return nil, err
	}
	log.Info("computation finished",
		zap.String("id", c.ID),
		zap.Int("entries", len(entries)),
		zap.Duration("elapsed", time.Since(start)))
	return c, nil
}

// RunAll runs a fresh calculator from build on every experiment
// concurrently. Failures are collected per experiment; the computations
// that succeeded are returned alongside the aggregated error.
func (r *Runner) RunAll(ctx context.Context, exps []*project.Experiment, build func() (Calculator, error), opts RunOptions) (map[string]*project.Computation, error) {
	var (
		mu     sync.Mutex
		errs   *multierror.Error
		result = make(map[string]*project.Computation, len(exps))
	)

	g := compute.NewGroup(ctx, compute.Workers)
	for _, exp := range exps {
		exp := exp
		g.Go(func(ctx context.Context) error {
			calc, err := build()
			if err == nil {
				var c *project.Computation
				if c, err = r.Run(ctx, exp, calc, opts); err == nil {
					mu.Lock()
					result[exp.Name] = c
					mu.Unlock()
					return nil
				}
			}
			mu.Lock()
			errs = multierror.Append(errs, err)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, errs.ErrorOrNil()
}
