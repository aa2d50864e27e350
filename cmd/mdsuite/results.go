package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/san-kum/mdsuite/internal/export"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/storage"
	"github.com/san-kum/mdsuite/internal/traj"
	"github.com/san-kum/mdsuite/internal/viz"
	"github.com/spf13/cobra"
)

func listResults(cmd *cobra.Command, args []string) error {
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

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXPERIMENT\tCALCULATOR\tVERSION\tCREATED")
	for _, e := range exps {
		comps, err := e.Computations(ctx)
		if err != nil {
			return err
		}
		for _, c := range comps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID[:8], c.Experiment, c.Name, c.Version, humanize.Time(c.CreatedAt))
		}
	}
	return w.Flush()
}

func showResult(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	c, err := p.Computation(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.RenderComputation(c))
	plotComputation(c, plotSeries)
	return nil
}

func deleteResult(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	return p.DeleteComputation(ctx, args[0])
}

func exportResult(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	c, err := p.Computation(ctx, args[0])
	if err != nil {
		return err
	}

	switch {
	case exportJSON && outDir == "":
		if err := storage.ExportJSON(os.Stdout, c); err != nil {
			return err
		}
	case exportJSON:
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return err
		}
		path := filepath.Join(outDir, c.ID+".json")
		if err := storage.ExportJSONFile(path, c); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", path)
	default:
		dir := outDir
		if dir == "" {
			dir = "."
		}
		out, err := storage.New(dir).Save(c)
		if err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", out)
	}

	if len(figures) == 0 {
		return nil
	}
	dir := outDir
	if dir == "" {
		e, err := p.Experiment(ctx, c.Experiment)
		if err != nil {
			return err
		}
		dir = e.FiguresDir()
	}
	for _, fig := range figures {
		x, y, ok := strings.Cut(fig, ":")
		if !ok {
			return fmt.Errorf("invalid figure %q, expected x:y", fig)
		}
		paths, err := export.WriteFigure(dir, c, x, y)
		if err != nil {
			return err
		}
		for _, path := range paths {
			fmt.Printf("figure %s\n", path)
		}
	}
	return nil
}

func viewConfiguration(cmd *cobra.Command, args []string) error {
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
	if configuration < 0 || configuration >= e.NumberOfConfigurations {
		return fmt.Errorf("configuration %d out of range [0, %d)", configuration, e.NumberOfConfigurations)
	}

	var positions [][3]float64
	for _, name := range e.SpeciesNames() {
		t, err := e.Load(traj.Positions, name, configuration, configuration+1)
		if err != nil {
			return err
		}
		for a := 0; a < t.Atoms; a++ {
			positions = append(positions, [3]float64{t.At(a, 0, 0), t.At(a, 0, 1), t.At(a, 0, 2)})
		}
	}

	canvas := viz.NewCanvas(60, 30)
	viz.RenderConfiguration(canvas, positions, e.Box, viz.View{RotX: rotX, RotY: rotY})
	fmt.Print(canvas.String())
	fmt.Println(viz.Subtle.Render(fmt.Sprintf("%s configuration %d, %d atoms", e.Name, configuration, len(positions))))

	if svgPath != "" {
		if err := os.WriteFile(svgPath, []byte(export.CanvasToSVG(canvas, 4)), 0644); err != nil {
			return err
		}
	}
	return nil
}
