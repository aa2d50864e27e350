package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/san-kum/mdsuite/internal/calculators"
	"github.com/san-kum/mdsuite/internal/config"
	"github.com/san-kum/mdsuite/internal/logging"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/transform"
	"github.com/san-kum/mdsuite/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runTransform(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	e, err := p.Experiment(ctx, args[0])
	if err != nil {
		return err
	}
	if err := transform.NewRegistry().Apply(ctx, e, args[1]); err != nil {
		return err
	}
	fmt.Printf("%s: %s done\n", e.Name, args[1])
	return nil
}

func runCalculator(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	values, err := parseParams(params)
	if err != nil {
		return err
	}

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	exps, err := selectExperiments(ctx, p, experimentNames)
	if err != nil {
		return err
	}
	return runOne(ctx, exps, config.CalculatorConfig{Name: args[0], Params: values}, calculators.RunOptions{Force: force})
}

func runOne(ctx context.Context, exps []*project.Experiment, calc config.CalculatorConfig, opts calculators.RunOptions) error {
	build, err := calculators.NewRegistry().Factory(calc.Name, calc.Params)
	if err != nil {
		return err
	}

	runner := calculators.NewRunner(logger)
	if logFile == "" {
		closers := make([]func() error, 0, len(exps))
		loggers := make(map[string]*zap.Logger, len(exps))
		for _, e := range exps {
			teed, closeFn, err := logging.Tee(logger, filepath.Join(e.LogDir(), "mdsuite.log"))
			if err != nil {
				return err
			}
			loggers[e.Name] = teed
			closers = append(closers, closeFn)
		}
		defer func() {
			for _, closeFn := range closers {
				_ = closeFn()
			}
		}()
		runner.ExperimentLog = func(e *project.Experiment) *zap.Logger { return loggers[e.Name] }
	}

	results, err := runner.RunAll(ctx, exps, build, opts)
	for _, e := range exps {
		c, ok := results[e.Name]
		if !ok {
			continue
		}
		fmt.Println(viz.RenderComputation(c))
		plotComputation(c, plotSeries)
	}
	return err
}

func plotComputation(c *project.Computation, series []string) {
	for _, e := range c.Entries {
		for _, name := range series {
			y, ok := e.Series[name]
			if !ok {
				continue
			}
			fmt.Println(viz.PlotSeries(fmt.Sprintf("%s %s %s", c.Experiment, e.Key(), name), y))
			fmt.Println()
		}
	}
}

func listPresets(cmd *cobra.Command, args []string) error {
	for _, name := range config.ListPresets() {
		calcs := config.GetPreset(name)
		names := make([]string, len(calcs))
		for i, c := range calcs {
			names[i] = c.Name
		}
		fmt.Printf("%-14s %s\n", name, strings.Join(names, ", "))
	}
	return nil
}

// apply builds the project described by a configuration file: experiments,
// their data and species settings, then every listed calculator. Flags
// given on the command line take precedence over the file.
func apply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if presetName != "" {
		preset := config.GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset %q, available: %s", presetName, strings.Join(config.ListPresets(), ", "))
		}
		cfg.Calculators = append(cfg.Calculators, preset...)
	}
	if !cmd.Flags().Changed("project") {
		projectName = cfg.Project.Name
	}
	if !cmd.Flags().Changed("project-dir") {
		storagePath = cfg.Project.StoragePath
	}

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	for _, ec := range cfg.Experiments {
		if err := applyExperiment(ctx, p, ec); err != nil {
			return fmt.Errorf("experiment %s: %w", ec.Name, err)
		}
	}

	var errs *multierror.Error
	for _, calc := range cfg.Calculators {
		exps, err := selectExperiments(ctx, p, calc.Experiments)
		if err == nil {
			err = runOne(ctx, exps, calc, calculators.RunOptions{Force: force})
		}
		if err != nil {
			logger.Warn("calculator failed", zap.String("calculator", calc.Name), zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", calc.Name, err))
		}
	}
	return errs.ErrorOrNil()
}

func applyExperiment(ctx context.Context, p *project.Project, ec config.ExperimentConfig) error {
	e, err := p.AddExperiment(ctx, project.ExperimentOptions{
		Name:        ec.Name,
		TimeStep:    ec.TimeStep,
		Temperature: ec.Temperature,
		Units:       ec.Units,
		CustomUnits: ec.CustomUnits,
	})
	if err != nil {
		return err
	}

	sources := make([]project.DataSource, 0, len(ec.Data))
	for _, d := range ec.Data {
		read, err := alreadyRead(ctx, e, d.Path)
		if err != nil {
			return err
		}
		if !read {
			sources = append(sources, project.DataSource{Path: d.Path, Format: d.Format, Rename: d.Rename, Sort: d.Sort})
		}
	}
	if err := ingest(ctx, e, sources); err != nil {
		return err
	}

	// Types already renamed by an earlier apply are reported as unknown.
	if len(ec.ElementMap) > 0 {
		if err := e.MapElements(ctx, ec.ElementMap); err != nil && !errors.Is(err, project.ErrUnknownSpecies) {
			return err
		}
	}
	for _, name := range sortedKeys(ec.Masses) {
		if err := e.SetMass(ctx, name, ec.Masses[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(ec.Charges) {
		if err := e.SetCharge(ctx, name, ec.Charges[name]); err != nil {
			return err
		}
	}
	return nil
}

func alreadyRead(ctx context.Context, e *project.Experiment, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	files, err := e.ReadFiles(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(files, abs), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
