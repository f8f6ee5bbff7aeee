// Package automation runs batches of experiments: scripted scenarios,
// parameter sweeps and seed ensembles.
package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/experiment"
	"github.com/san-kum/mdsim/internal/metrics"
	"github.com/san-kum/mdsim/internal/storage"
)

var (
	ErrEmptyScenario = errors.New("automation: scenario has no steps")
	ErrNoSnapshot    = errors.New("automation: no snapshot to continue from")
	ErrUnknownParam  = errors.New("automation: unknown parameter")
	ErrBadSweep      = errors.New("automation: invalid sweep")
)

// Runner builds, runs and optionally records experiments.
type Runner struct {
	Log logr.Logger
	// Store records every run when set.
	Store *storage.Store
	// Metrics are built fresh for every run by name.
	Metrics []string
	Options []experiment.Option
}

func NewRunner(log logr.Logger) *Runner { return &Runner{Log: log} }

// RunConfig runs one experiment. The metadata carries the store id when the
// run was recorded.
func (r *Runner) RunConfig(ctx context.Context, cfg *config.Config) (*experiment.Result, storage.RunMetadata, error) {
	ms, err := metrics.ByName(r.Metrics...)
	if err != nil {
		return nil, storage.RunMetadata{}, err
	}
	opts := append([]experiment.Option{
		experiment.WithLogger(r.Log.WithValues("run", cfg.Name)),
		experiment.WithMetrics(ms...),
	}, r.Options...)

	exp, err := experiment.New(cfg, opts...)
	if err != nil {
		return nil, storage.RunMetadata{}, err
	}
	if err := exp.Setup(ctx); err != nil {
		return nil, storage.RunMetadata{}, fmt.Errorf("setup %s: %w", cfg.Name, err)
	}
	res, err := exp.Run(ctx)
	if err != nil {
		if res == nil {
			return nil, storage.RunMetadata{}, err
		}
		return res, exp.Metadata(res), err
	}
	meta := exp.Metadata(res)
	if r.Store != nil {
		id, err := r.Store.Save(meta, res.Series)
		if err != nil {
			return res, meta, fmt.Errorf("save %s: %w", cfg.Name, err)
		}
		meta.ID = id
	}
	return res, meta, nil
}
