package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/mdsim/internal/automation"
	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/experiment"
	"github.com/san-kum/mdsim/internal/storage"
	"github.com/san-kum/mdsim/internal/stream"
	"github.com/san-kum/mdsim/internal/thermo"
	"github.com/san-kum/mdsim/internal/tui"
	"github.com/spf13/cobra"
)

// newRunner records runs in the store unless --no-save is set.
func newRunner(log logr.Logger, opts ...experiment.Option) *automation.Runner {
	r := automation.NewRunner(log)
	if !noSave {
		r.Store = storage.New(dataDir)
	}
	r.Metrics = metricNames
	r.Options = opts
	return r
}

func execute(ctx context.Context, cfg *config.Config, log logr.Logger, opts ...experiment.Option) (*experiment.Result, error) {
	res, meta, err := newRunner(log, opts...).RunConfig(ctx, cfg)
	if err != nil {
		return res, err
	}
	if meta.ID != "" {
		log.Info("run saved", "id", meta.ID, "dir", filepath.Join(dataDir, meta.ID))
	}
	return res, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger()
	ctx := cmd.Context()

	var opts []experiment.Option
	if streamAddr != "" {
		hub := stream.NewHub(log.WithName("stream"))
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := hub.Serve(sctx, streamAddr); err != nil {
				log.Error(err, "stream server stopped", "addr", streamAddr)
			}
		}()
		opts = append(opts, experiment.WithHub(hub, positions))
	}
	if watch {
		r := tui.NewLiveRenderer(os.Stdout, cfg.Name, frameRate)
		r.Start()
		defer r.Stop()
		opts = append(opts, experiment.WithObserver(r.OnSample))
	}

	res, err := execute(ctx, cfg, log, opts...)
	if err != nil {
		return err
	}
	printSummary(res)
	return nil
}

func printSummary(res *experiment.Result) {
	m := storage.Summarize(res.Series)
	fmt.Printf("final turn:   %d\n", res.FinalTurn)
	fmt.Printf("elapsed:      %s\n", res.Elapsed)
	fmt.Printf("samples:      %d\n", res.Series.Len())
	fmt.Printf("temperature:  %.4f ± %.4f\n", m["temperature_mean"], m["temperature_std"])
	fmt.Printf("energy:       %.4f ± %.4f\n", m["energy_mean"], m["energy_std"])
	fmt.Printf("energy drift: %.3e\n", m["energy_drift"])
	if res.Snapshot != "" {
		fmt.Printf("snapshot:     %s\n", res.Snapshot)
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the full-screen view owns the terminal, so only errors are logged
	log := logr.Discard()
	app := tui.NewApp(cfg.Name, cfg.Turns, tea.WithAltScreen())
	return app.Run(cmd.Context(), func(ctx context.Context) error {
		_, err := execute(ctx, cfg, log, experiment.WithObserver(app.Observe))
		return err
	})
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tATOMS\tTURNS\tDT\tINTEG\tBACKEND\tT_MEAN\tDRIFT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4f\t%s\t%s\t%.4f\t%.2e\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Atoms,
			run.FinalTurn,
			run.Dt,
			run.Integrator,
			run.Backend,
			run.Metrics["temperature_mean"],
			run.Metrics["energy_drift"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if series.Len() < 2 {
		return fmt.Errorf("run %s: not enough samples to plot", runID)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("atoms: %d  integrator: %s\n", meta.Atoms, meta.Integrator)
	fmt.Printf("samples: %d\n\n", series.Len())

	plots := []struct {
		caption string
		column  func(thermo.Sample) float64
	}{
		{"temperature", func(x thermo.Sample) float64 { return x.Temperature }},
		{"potential energy", func(x thermo.Sample) float64 { return x.Potential }},
		{"total energy", thermo.Sample.Total},
	}
	for _, p := range plots {
		graph := asciigraph.Plot(series.Column(p.column),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(p.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if outFile != "" {
		return storage.ExportJSONFile(outFile, *meta, series)
	}
	return storage.ExportJSON(os.Stdout, *meta, series)
}

func listPresets(cmd *cobra.Command, args []string) error {
	families := config.Families()
	if len(args) == 1 {
		if len(config.ListPresets(args[0])) == 0 {
			fmt.Printf("no presets for family: %s\n", args[0])
			return nil
		}
		families = args
	}
	for _, family := range families {
		fmt.Printf("%s:\n", family)
		for _, p := range config.ListPresets(family) {
			fmt.Printf("  %s/%s\n", family, p)
		}
	}
	return nil
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if preset != "" {
		var err error
		if cfg, err = lookupPreset(preset); err != nil {
			return err
		}
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}
