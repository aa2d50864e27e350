package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/san-kum/mdsuite/internal/calculators"
	"github.com/san-kum/mdsuite/internal/logging"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/transform"
	"github.com/san-kum/mdsuite/internal/units"
	"github.com/san-kum/mdsuite/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	storagePath string
	projectName string
	verbose     bool
	logLevel    string
	logFile     string
	theme       string
	progress    bool

	// add-experiment
	timeStep    float64
	temperature float64
	unitSystem  string

	// add-data
	dataFiles []string
	format    string
	sortIDs   bool
	force     bool
	renames   []string

	// run
	experimentNames []string
	params          []string
	plotSeries      []string

	// export
	outDir     string
	exportJSON bool
	figures    []string

	// apply
	presetName string

	// view
	configuration int
	rotX, rotY    float64
	svgPath       string

	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mdsuite",
		Short:         "molecular dynamics post-processing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logging.New(logging.Options{Level: logLevel, Verbose: verbose, File: logFile})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			viz.SetTheme(theme)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&storagePath, "project-dir", ".", "directory holding the project")
	pf.StringVar(&projectName, "project", project.DefaultName, "project name")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&logLevel, "log-level", "warn", "log level")
	pf.StringVar(&logFile, "log-file", "", "also write the log to this file")
	pf.StringVar(&theme, "theme", "default", "colour theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	addExperimentCmd := &cobra.Command{
		Use:   "add-experiment [name]",
		Short: "add an experiment to the project",
		Args:  cobra.ExactArgs(1),
		RunE:  addExperiment,
	}
	addExperimentCmd.Flags().Float64Var(&timeStep, "timestep", 1.0, "simulation time step")
	addExperimentCmd.Flags().Float64Var(&temperature, "temperature", 0, "simulation temperature in K")
	addExperimentCmd.Flags().StringVar(&unitSystem, "units", "real", "unit system ("+strings.Join(units.Names(), ", ")+")")
	addExperimentCmd.Flags().StringArrayVar(&dataFiles, "data", nil, "trajectory file to read after creating the experiment")
	addExperimentCmd.Flags().StringVar(&format, "format", "auto", "file format (auto, lammps_traj, extxyz)")
	addExperimentCmd.Flags().BoolVar(&progress, "progress", true, "show progress when attached to a terminal")

	addDataCmd := &cobra.Command{
		Use:   "add-data [experiment] [file...]",
		Short: "read trajectory files into an experiment",
		Args:  cobra.MinimumNArgs(2),
		RunE:  addData,
	}
	addDataCmd.Flags().StringVar(&format, "format", "auto", "file format (auto, lammps_traj, extxyz)")
	addDataCmd.Flags().BoolVar(&sortIDs, "sort", false, "sort atoms by id")
	addDataCmd.Flags().BoolVar(&force, "force", false, "read files that were already added")
	addDataCmd.Flags().StringArrayVar(&renames, "rename", nil, "property column mapping, e.g. Positions=x,y,z")
	addDataCmd.Flags().BoolVar(&progress, "progress", true, "show progress when attached to a terminal")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list experiments",
		RunE:  listExperiments,
	}

	activateCmd := &cobra.Command{
		Use:   "activate [experiment...]",
		Short: "include experiments in default runs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  setActive(true),
	}

	disableCmd := &cobra.Command{
		Use:   "disable [experiment...]",
		Short: "exclude experiments from default runs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  setActive(false),
	}

	removeCmd := &cobra.Command{
		Use:   "remove [experiment]",
		Short: "delete an experiment and its data",
		Args:  cobra.ExactArgs(1),
		RunE:  removeExperiment,
	}

	summaryCmd := &cobra.Command{
		Use:   "summary [experiment...]",
		Short: "show experiment details",
		RunE:  summary,
	}

	setChargeCmd := &cobra.Command{
		Use:   "set-charge [experiment] [species] [charge]",
		Short: "set a species charge in units of e",
		Args:  cobra.ExactArgs(3),
		RunE:  setSpeciesValue("charge"),
	}

	setMassCmd := &cobra.Command{
		Use:   "set-mass [experiment] [species] [mass]",
		Short: "set a species mass in g/mol",
		Args:  cobra.ExactArgs(3),
		RunE:  setSpeciesValue("mass"),
	}

	setTemperatureCmd := &cobra.Command{
		Use:   "set-temperature [experiment] [temperature]",
		Short: "set the experiment temperature in K",
		Args:  cobra.ExactArgs(2),
		RunE:  setTemperature,
	}

	mapElementsCmd := &cobra.Command{
		Use:   "map-elements [experiment] [type=element...]",
		Short: "rename species, e.g. 1=Na",
		Args:  cobra.MinimumNArgs(2),
		RunE:  mapElements,
	}

	transformationsCmd := &cobra.Command{
		Use:   "transformations",
		Short: "list transformations",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range transform.NewRegistry().List() {
				fmt.Println(name)
			}
		},
	}

	transformCmd := &cobra.Command{
		Use:   "transform [experiment] [transformation]",
		Short: "run a transformation",
		Args:  cobra.ExactArgs(2),
		RunE:  runTransform,
	}

	calculatorsCmd := &cobra.Command{
		Use:   "calculators",
		Short: "list calculators",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range calculators.NewRegistry().List() {
				fmt.Println(name)
			}
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [calculator]",
		Short: "run a calculator",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalculator,
	}
	runCmd.Flags().StringSliceVar(&experimentNames, "exp", nil, "experiments (default: active)")
	runCmd.Flags().StringArrayVarP(&params, "param", "p", nil, "calculator parameter, e.g. data_range=200")
	runCmd.Flags().BoolVar(&force, "force", false, "recompute stored results")
	runCmd.Flags().StringSliceVar(&plotSeries, "plot", nil, "series to plot")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list calculator presets",
		RunE:  listPresets,
	}

	applyCmd := &cobra.Command{
		Use:   "apply [config]",
		Short: "build a project from a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  apply,
	}
	applyCmd.Flags().BoolVar(&force, "force", false, "recompute stored results")
	applyCmd.Flags().StringVar(&presetName, "preset", "", "also run a calculator preset")
	applyCmd.Flags().BoolVar(&progress, "progress", true, "show progress when attached to a terminal")

	resultsCmd := &cobra.Command{
		Use:   "results [experiment...]",
		Short: "list stored computations",
		RunE:  listResults,
	}

	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "show a stored computation",
		Args:  cobra.ExactArgs(1),
		RunE:  showResult,
	}
	showCmd.Flags().StringSliceVar(&plotSeries, "plot", nil, "series to plot")

	deleteCmd := &cobra.Command{
		Use:   "delete-result [id]",
		Short: "delete a stored computation",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteResult,
	}

	exportCmd := &cobra.Command{
		Use:   "export [id]",
		Short: "export a stored computation",
		Args:  cobra.ExactArgs(1),
		RunE:  exportResult,
	}
	exportCmd.Flags().StringVar(&outDir, "out", "", "output directory (default: current directory, stdout for --json)")
	exportCmd.Flags().BoolVar(&exportJSON, "json", false, "export as json instead of csv")
	exportCmd.Flags().StringSliceVar(&figures, "svg", nil, "svg figures as x:y series pairs, e.g. time:msd")

	viewCmd := &cobra.Command{
		Use:   "view [experiment]",
		Short: "draw one configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  viewConfiguration,
	}
	viewCmd.Flags().IntVar(&configuration, "configuration", 0, "configuration index")
	viewCmd.Flags().Float64Var(&rotX, "rot-x", 0.4, "rotation about x in radians")
	viewCmd.Flags().Float64Var(&rotY, "rot-y", 0.6, "rotation about y in radians")
	viewCmd.Flags().StringVar(&svgPath, "svg", "", "also write the view as svg")

	rootCmd.AddCommand(addExperimentCmd, addDataCmd, listCmd, activateCmd, disableCmd, removeCmd,
		summaryCmd, setChargeCmd, setMassCmd, setTemperatureCmd, mapElementsCmd,
		transformationsCmd, transformCmd, calculatorsCmd, runCmd, presetsCmd, applyCmd,
		resultsCmd, showCmd, deleteCmd, exportCmd, viewCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func openProject(ctx context.Context) (*project.Project, error) {
	return project.Open(ctx, storagePath, projectName, project.Options{Logger: logger})
}

// selectExperiments returns the named experiments, or the active ones.
func selectExperiments(ctx context.Context, p *project.Project, names []string) ([]*project.Experiment, error) {
	if len(names) == 0 {
		exps, err := p.ActiveExperiments(ctx)
		if err != nil {
			return nil, err
		}
		if len(exps) == 0 {
			return nil, fmt.Errorf("no active experiments")
		}
		return exps, nil
	}
	exps := make([]*project.Experiment, 0, len(names))
	for _, name := range names {
		e, err := p.Experiment(ctx, name)
		if err != nil {
			return nil, err
		}
		exps = append(exps, e)
	}
	return exps, nil
}

// parseParams reads key=value pairs, decoding each value as YAML so
// numbers, lists and booleans keep their types.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// parseRenames reads Property=col,col,col mappings.
func parseRenames(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(pairs))
	for _, pair := range pairs {
		prop, cols, ok := strings.Cut(pair, "=")
		if !ok || prop == "" || cols == "" {
			return nil, fmt.Errorf("invalid rename %q, expected Property=col,col", pair)
		}
		out[prop] = strings.Split(cols, ",")
	}
	return out, nil
}

func interactive() bool {
	return progress && isatty.IsTerminal(os.Stdout.Fd())
}
