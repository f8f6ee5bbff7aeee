package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/integrator"
)

var setters = map[string]func(*config.Config, float64){
	"dt":          func(c *config.Config, v float64) { c.Dt = v },
	"temperature": func(c *config.Config, v float64) { c.Temperature = v },
	"gamma":       func(c *config.Config, v float64) { c.Langevin.Gamma = v },
	"turns":       func(c *config.Config, v float64) { c.Turns = int64(v) },
	"padding":     func(c *config.Config, v float64) { c.Neighbor.Padding = v },
	"langevin_temperature": func(c *config.Config, v float64) {
		c.Langevin.Temperature = v
		c.Langevin.Intervals, c.Langevin.Temps = nil, nil
	},
}

// Params lists the parameter names Apply understands.
func Params() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply sets named parameters on cfg.
func Apply(cfg *config.Config, params map[string]float64) error {
	for name, v := range params {
		set, ok := setters[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParam, name)
		}
		set(cfg, v)
	}
	return nil
}

// BaseFunc builds a fresh config for each run of a batch.
type BaseFunc func() (*config.Config, error)

// Sweep varies one parameter linearly over Steps values from Min to Max.
type Sweep struct {
	Param string
	Min   float64
	Max   float64
	Steps int
}

func (s Sweep) Values() []float64 {
	if s.Steps <= 1 {
		return []float64{s.Min}
	}
	step := (s.Max - s.Min) / float64(s.Steps-1)
	out := make([]float64, s.Steps)
	for i := range out {
		out[i] = s.Min + float64(i)*step
	}
	return out
}

// SweepResult holds the summary of one sweep point. Err is set when the run
// diverged.
type SweepResult struct {
	Value   float64
	Metrics map[string]float64
	Err     error
}

// RunSweep runs base once per sweep value. A diverging run is recorded and
// the sweep continues; any other error stops it.
func (r *Runner) RunSweep(ctx context.Context, base BaseFunc, sw Sweep) ([]SweepResult, error) {
	if _, ok := setters[sw.Param]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParam, sw.Param)
	}
	if sw.Steps < 1 {
		return nil, fmt.Errorf("%w: %d steps", ErrBadSweep, sw.Steps)
	}
	values := sw.Values()
	results := make([]SweepResult, 0, len(values))
	for i, v := range values {
		cfg, err := base()
		if err != nil {
			return results, err
		}
		setters[sw.Param](cfg, v)
		cfg.Name = fmt.Sprintf("%s_%s%d", cfg.Name, sw.Param, i)

		_, meta, err := r.RunConfig(ctx, cfg)
		if err != nil && !errors.Is(err, integrator.ErrUnstable) {
			return results, err
		}
		results = append(results, SweepResult{Value: v, Metrics: meta.Metrics, Err: err})
		r.Log.Info("sweep", "point", i+1, "of", len(values), sw.Param, v, "diverged", err != nil)
	}
	return results, nil
}

type TrialResult struct {
	Seed      int64
	FinalTurn int64
	Drift     float64
	Stable    bool
}

// RunTrials runs base n times with seeds drawn from seed, so the trials
// differ only in their initial positions and velocities.
func (r *Runner) RunTrials(ctx context.Context, base BaseFunc, n int, seed int64) ([]TrialResult, error) {
	rng := rand.New(rand.NewSource(seed))
	results := make([]TrialResult, 0, n)
	for trial := 0; trial < n; trial++ {
		cfg, err := base()
		if err != nil {
			return results, err
		}
		cfg.Seed = rng.Int63()
		cfg.Name = fmt.Sprintf("%s_trial%d", cfg.Name, trial)

		res, meta, err := r.RunConfig(ctx, cfg)
		if err != nil && !errors.Is(err, integrator.ErrUnstable) {
			return results, err
		}
		tr := TrialResult{Seed: cfg.Seed, Stable: err == nil}
		if res != nil {
			tr.FinalTurn = res.FinalTurn
			tr.Drift = meta.Metrics["energy_drift"]
		}
		results = append(results, tr)

		if (trial+1)%10 == 0 {
			r.Log.Info("trials", "done", trial+1, "of", n)
		}
	}
	return results, nil
}

func TrialStats(results []TrialResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
