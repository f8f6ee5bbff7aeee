package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/mdsim/internal/automation"
	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/optim"
	"github.com/spf13/cobra"
)

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	log := newLogger()
	results, err := newRunner(log).RunScenario(cmd.Context(), sc)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tID\tFINAL_TURN\tT_MEAN\tDRIFT\tSNAPSHOT")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%.2e\t%s\n",
			r.Step,
			r.Metadata.ID,
			r.Result.FinalTurn,
			r.Metadata.Metrics["temperature_mean"],
			r.Metadata.Metrics["energy_drift"],
			r.Result.Snapshot,
		)
	}
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

// baseFunc reloads the config for every run of a batch.
func baseFunc(cmd *cobra.Command) automation.BaseFunc {
	return func() (*config.Config, error) { return loadConfig(cmd) }
}

func runSweep(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	sw := automation.Sweep{Param: sweepParam, Min: sweepMin, Max: sweepMax, Steps: sweepSteps}
	results, err := newRunner(newLogger()).RunSweep(cmd.Context(), baseFunc(cmd), sw)
	if err != nil {
		return err
	}

	names := metricColumns(results)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(sweepParam)+"\t"+strings.ToUpper(strings.Join(names, "\t")))
	for _, r := range results {
		row := []string{strconv.FormatFloat(r.Value, 'g', 6, 64)}
		for _, name := range names {
			if r.Err != nil {
				row = append(row, "diverged")
				continue
			}
			row = append(row, fmt.Sprintf("%.4g", r.Metrics[name]))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func metricColumns(results []automation.SweepResult) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range results {
		for name := range r.Metrics {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// parseGrid reads name=v1,v2,... arguments.
func parseGrid(args []string) ([]string, [][]float64, error) {
	var names []string
	var ranges [][]float64
	for _, arg := range args {
		name, list, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("grid %q: want name=v1,v2,...", arg)
		}
		var values []float64
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("grid %q: %w", arg, err)
			}
			values = append(values, v)
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	return names, ranges, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	names, ranges, err := parseGrid(tuneGrid)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("tune needs at least one --grid")
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	noSave = !saveBatch
	best, val, err := optim.Tune(cmd.Context(), newRunner(newLogger()), baseFunc(cmd), grid, tuneMetric)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %g\n", k, best[k])
	}
	fmt.Printf("|%s| = %.4g\n", tuneMetric, val)
	return nil
}

func runTrials(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	noSave = !saveBatch
	results, err := newRunner(newLogger()).RunTrials(cmd.Context(), baseFunc(cmd), numTrials, trialSeed)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tSEED\tFINAL_TURN\tDRIFT\tSTABLE")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%d\t%d\t%.2e\t%t\n", i, r.Seed, r.FinalTurn, r.Drift, r.Stable)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	stable, unstable := automation.TrialStats(results)
	fmt.Printf("\nstable: %d  diverged: %d\n", stable, unstable)
	return nil
}
