package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/san-kum/mdsim/internal/config"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	verbosity   int
	configFile  string
	preset      string
	backend     string
	integ       string
	turns       int64
	dt          float64
	seed        int64
	restart     string
	noSave      bool
	streamAddr  string
	positions   bool
	watch       bool
	frameRate   int
	asJSON      bool
	outFile     string
	metricNames []string
	sweepParam  string
	sweepMin    float64
	sweepMax    float64
	sweepSteps  int
	tuneGrid    []string
	tuneMetric  string
	numTrials   int
	trialSeed   int64
	saveBatch   bool
)

// main registers the mdsim commands and exits with status 1 when the selected
// command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "mdsim",
		Short:         "molecular dynamics engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mdsim", "run store directory")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run in the store")
	runCmd.Flags().StringVar(&streamAddr, "stream", "", "serve thermo frames over websocket at addr")
	runCmd.Flags().BoolVar(&positions, "positions", false, "include atom positions in streamed frames")
	runCmd.Flags().BoolVar(&watch, "watch", false, "redraw the atoms in the terminal")
	runCmd.Flags().IntVar(&frameRate, "fps", 10, "frame rate for --watch")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation in the full-screen view",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)
	liveCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run in the store")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print metadata as json")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot temperature and energy of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and samples as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "output", "o", "", "write to file instead of stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets [family]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a config file to start from",
		Args:  cobra.ExactArgs(1),
		RunE:  writeConfig,
	}
	initCmd.Flags().StringVar(&preset, "preset", "", "preset as family/name")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a scenario file in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the runs in the store")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run a config across a range of one parameter",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "temperature", "parameter to vary")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 2.0, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 4, "number of values")
	sweepCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the runs in the store")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search parameters for the smallest value of a metric",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneGrid, "grid", nil, "parameter grid as name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "energy_drift", "metric to minimise")
	tuneCmd.Flags().BoolVar(&saveBatch, "save", false, "record every run in the store")

	trialsCmd := &cobra.Command{
		Use:   "trials",
		Short: "run a config with several seeds and count diverging runs",
		Args:  cobra.NoArgs,
		RunE:  runTrials,
	}
	addConfigFlags(trialsCmd)
	trialsCmd.Flags().IntVar(&numTrials, "n", 10, "number of trials")
	trialsCmd.Flags().Int64Var(&trialSeed, "trial-seed", 1, "seed for the trial seeds")
	trialsCmd.Flags().BoolVar(&saveBatch, "save", false, "record every run in the store")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCmd, presetsCmd, initCmd,
		scenarioCmd, sweepCmd, tuneCmd, trialsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset as family/name")
	cmd.Flags().StringVar(&backend, "backend", "", "device backend: auto, host or cuda")
	cmd.Flags().StringVar(&integ, "integrator", "", "integrator: verlet or langevin")
	cmd.Flags().Int64Var(&turns, "turns", 0, "turns to run")
	cmd.Flags().Float64Var(&dt, "dt", 0, "timestep")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	cmd.Flags().StringVar(&restart, "restart", "", "restart from the last configuration of a snapshot file")
	cmd.Flags().StringSliceVar(&metricNames, "metrics", nil, "extra metrics to record (energy_drift_max, potential_mean, stability, msd)")
}

func newLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbosity})
}

func lookupPreset(name string) (*config.Config, error) {
	family, variant, ok := strings.Cut(name, "/")
	if !ok {
		return nil, fmt.Errorf("preset %q: want family/name", name)
	}
	cfg := config.GetPreset(family, variant)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s (available in %s: %v)", name, family, config.ListPresets(family))
	}
	return cfg, nil
}

// loadConfig resolves the base config and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case configFile != "":
		if cfg, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	case preset != "":
		if cfg, err = lookupPreset(preset); err != nil {
			return nil, err
		}
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integ
	}
	if flags.Changed("turns") {
		cfg.Turns = turns
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("seed") || cfg.Seed == 0 {
		cfg.Seed = seed
	}
	if flags.Changed("restart") {
		cfg.Restart = restart
	}
	return cfg, cfg.Validate()
}
