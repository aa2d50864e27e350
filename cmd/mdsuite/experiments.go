package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/mdsuite/internal/elements"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/tui"
	"github.com/san-kum/mdsuite/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func addExperiment(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	e, err := p.AddExperiment(ctx, project.ExperimentOptions{
		Name:        args[0],
		TimeStep:    timeStep,
		Temperature: temperature,
		Units:       unitSystem,
	})
	if err != nil {
		return err
	}
	fmt.Printf("experiment %s at %s\n", e.Name, e.Dir())

	if len(dataFiles) == 0 {
		return nil
	}
	sources := make([]project.DataSource, len(dataFiles))
	for i, path := range dataFiles {
		sources[i] = project.DataSource{Path: path, Format: format}
	}
	return ingest(ctx, e, sources)
}

func addData(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rename, err := parseRenames(renames)
	if err != nil {
		return err
	}

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	e, err := p.Experiment(ctx, args[0])
	if err != nil {
		return err
	}

	sources := make([]project.DataSource, len(args[1:]))
	for i, path := range args[1:] {
		sources[i] = project.DataSource{Path: path, Format: format, Rename: rename, Sort: sortIDs, Force: force}
	}
	if err := ingest(ctx, e, sources); err != nil {
		return err
	}
	fmt.Printf("%s: %d configurations of %d atoms\n", e.Name, e.NumberOfConfigurations, e.NumberOfAtoms)
	return nil
}

// ingest adds files in order, showing progress when attached to a terminal.
func ingest(ctx context.Context, e *project.Experiment, sources []project.DataSource) error {
	if !interactive() {
		for _, src := range sources {
			if err := e.AddData(ctx, src, nil); err != nil {
				return fmt.Errorf("%s: %w", src.Path, err)
			}
		}
		return nil
	}

	tasks := make([]string, len(sources))
	for i, src := range sources {
		tasks[i] = filepath.Base(src.Path)
	}
	return tui.Run(ctx, "adding data to "+e.Name, tasks, func(ctx context.Context, send func(tea.Msg)) error {
		for i, src := range sources {
			task := tasks[i]
			err := e.AddData(ctx, src, func(done, total int) {
				send(tui.ProgressMsg{File: task, Done: done, Total: total})
			})
			if err != nil {
				return fmt.Errorf("%s: %w", src.Path, err)
			}
		}
		return nil
	})
}

func listExperiments(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	exps, err := p.Experiments(ctx)
	if err != nil {
		return err
	}
	if len(exps) == 0 {
		fmt.Println("no experiments")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tACTIVE\tCONFIGS\tATOMS\tSPECIES\tUNITS\tTEMP\tVERSION")
	for _, e := range exps {
		fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%s\t%s\t%g\t%d\n",
			e.Name, e.Active, e.NumberOfConfigurations, e.NumberOfAtoms,
			strings.Join(e.SpeciesNames(), ","), e.Units.Name, e.Temperature, e.Version)
	}
	return w.Flush()
}

func setActive(active bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := openProject(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		if active {
			return p.Activate(ctx, args...)
		}
		return p.Disable(ctx, args...)
	}
}

func removeExperiment(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	return p.RemoveExperiment(ctx, args[0])
}

func summary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	var exps []*project.Experiment
	if len(args) == 0 {
		exps, err = p.Experiments(ctx)
	} else {
		exps, err = selectExperiments(ctx, p, args)
	}
	if err != nil {
		return err
	}

	for _, e := range exps {
		s, err := e.Summary(ctx)
		if err != nil {
			return err
		}
		fmt.Println(viz.RenderSummary(s))
	}
	return nil
}

func setSpeciesValue(field string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, args[2], err)
		}

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
		if field == "charge" {
			return e.SetCharge(ctx, args[1], value)
		}
		return e.SetMass(ctx, args[1], value)
	}
}

func setTemperature(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid temperature %q: %w", args[1], err)
	}

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
	return e.SetTemperature(ctx, value)
}

func mapElements(cmd *cobra.Command, args []string) error {
	mapping := make(map[string]string, len(args)-1)
	for _, pair := range args[1:] {
		from, to, ok := strings.Cut(pair, "=")
		if !ok || from == "" || to == "" {
			return fmt.Errorf("invalid mapping %q, expected type=element", pair)
		}
		if !elements.IsElement(to) {
			logger.Warn("mapping to unknown element, mass will be 0", zap.String("species", from), zap.String("element", to))
		}
		mapping[from] = to
	}

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
	return e.MapElements(ctx, mapping)
}
