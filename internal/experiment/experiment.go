// Package experiment turns a run configuration into a prepared state, a fix
// list and an integrator, and drives the run.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/integrator"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/metrics"
	"github.com/san-kum/mdsim/internal/setup"
	"github.com/san-kum/mdsim/internal/snapshot"
	"github.com/san-kum/mdsim/internal/storage"
	"github.com/san-kum/mdsim/internal/stream"
	"github.com/san-kum/mdsim/internal/thermo"
)

var (
	ErrUnknownIntegrator = errors.New("experiment: unknown integrator")
	ErrUnknownMethod     = errors.New("experiment: unknown populate method")
	ErrNotSetup          = errors.New("experiment: not set up")
)

// Observer receives every thermo sample together with the host state it was
// measured on. It runs on the integrator goroutine and must not keep s.
type Observer func(smp thermo.Sample, s *md.State)

type Result struct {
	Series    *thermo.Series
	FinalTurn int64
	Elapsed   time.Duration
	Snapshot  string
}

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	log      logr.Logger
	backend  device.Backend

	hub           *stream.Hub
	hubPositions  bool
	observers     []Observer
	metrics       metrics.Set
	snapshotBase  string
	randSource    *rand.Rand
	integratorOps []integrator.Option

	State      *md.State
	Fixes      *fix.List
	Integrator integrator.Integrator
	Series     *thermo.Series
	snap       *snapshot.Writer
}

type Option func(*Experiment)

func WithLogger(l logr.Logger) Option     { return func(e *Experiment) { e.log = l } }
func WithBackend(b device.Backend) Option { return func(e *Experiment) { e.backend = b } }
func WithRegistry(r *Registry) Option     { return func(e *Experiment) { e.registry = r } }
func WithObserver(o Observer) Option      { return func(e *Experiment) { e.observers = append(e.observers, o) } }
func WithSnapshotBase(path string) Option { return func(e *Experiment) { e.snapshotBase = path } }
func WithIntegratorOption(o integrator.Option) Option {
	return func(e *Experiment) { e.integratorOps = append(e.integratorOps, o) }
}

// WithMetrics observes every thermo sample with ms. Their final values are
// added to the run metadata.
func WithMetrics(ms ...metrics.Metric) Option {
	return func(e *Experiment) {
		e.metrics = append(e.metrics, ms...)
		e.observers = append(e.observers, metrics.Set(ms).Observe)
	}
}

// WithHub broadcasts every thermo sample, with atom positions when
// positions is set.
func WithHub(h *stream.Hub, positions bool) Option {
	return func(e *Experiment) {
		e.hub = h
		e.hubPositions = positions
	}
}

func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{
		cfg:        cfg,
		log:        logr.Discard(),
		randSource: rand.New(rand.NewSource(cfg.Seed)),
		Series:     &thermo.Series{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.snapshotBase == "" {
		e.snapshotBase = filepath.Join(cfg.Output.Dir, cfg.Name)
	}
	return e, nil
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Setup builds the state, the fixes and the integrator. When the config
// names a restart snapshot the state and the fixes' restart records come
// from its last configuration.
func (e *Experiment) Setup(ctx context.Context) error {
	cfg := e.cfg
	if e.backend == nil {
		b, err := device.Select(cfg.Backend)
		if err != nil {
			return fmt.Errorf("backend %q: %w", cfg.Backend, err)
		}
		e.backend = b
	}

	var restart *snapshot.Configuration
	if cfg.Restart != "" {
		c, err := snapshot.Last(cfg.Restart)
		if err != nil {
			return err
		}
		restart = c
	}

	s, err := e.buildState(restart)
	if err != nil {
		return err
	}
	e.State = s

	e.Fixes = fix.NewList()
	for _, fc := range cfg.Fixes {
		if restart != nil {
			// topology is already part of the restored state
			fc.Chain = false
			fc.Members = nil
		}
		f, err := e.registry.Fixes().Build(s, e.backend, fc)
		if err != nil {
			return fmt.Errorf("fix %s: %w", fc.Handle, err)
		}
		e.Fixes.Add(f)
	}
	if restart != nil {
		if err := restart.RestoreFixes(e.Fixes); err != nil {
			return err
		}
	}

	build, err := e.registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}
	opts := []integrator.Option{
		integrator.WithBackend(e.backend),
		integrator.WithLogger(e.log.WithName("integrator")),
		integrator.WithPadding(cfg.Neighbor.Padding),
		integrator.WithRebuildEvery(cfg.Neighbor.RebuildEvery),
		integrator.WithAutoRebuild(cfg.Neighbor.AutoRebuild),
	}
	opts = append(opts, e.integratorOps...)
	integ, err := build(s, e.Fixes, cfg, opts...)
	if err != nil {
		return err
	}
	e.Integrator = integ

	if every := cfg.Output.ThermoEvery; every > 0 {
		integ.AddHook(integrator.Hook{Name: "thermo", Every: every, Fn: e.sample})
	}
	e.log.Info("set up run", "name", cfg.Name, "atoms", len(s.Atoms), "types", s.NumTypes(),
		"fixes", e.Fixes.Len(), "integrator", cfg.Integrator, "backend", e.backend.Name(),
		"restart", cfg.Restart != "")
	return nil
}

func (e *Experiment) buildState(restart *snapshot.Configuration) (*md.State, error) {
	cfg := e.cfg
	s := md.NewState()
	s.Dt = cfg.Dt
	for _, t := range cfg.Types {
		if _, err := s.AddAtomType(t.Handle, t.Mass); err != nil {
			return nil, err
		}
	}
	if restart != nil {
		if err := restart.Apply(s); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.Is2D = cfg.Dimension == 2
	s.Periodic = cfg.PeriodicFlags()
	lo, hi := config.Vec3(cfg.Box.Lo), config.Vec3(cfg.Box.Hi)
	if s.Is2D {
		lo[2], hi[2] = 0, 0
	}
	bounds, err := md.NewBounds(md.Vec3(lo), md.Vec3(hi))
	if err != nil {
		return nil, err
	}
	s.Bounds = bounds

	for _, p := range cfg.Populate {
		var opts []setup.Option
		if p.Group != "" {
			tag, err := s.GroupTag(p.Group)
			if err != nil {
				if tag, err = s.CreateGroup(p.Group); err != nil {
					return nil, err
				}
			}
			opts = append(opts, setup.WithGroup(tag))
		}
		switch p.Method {
		case "", "grid":
			err = setup.PopulateOnGrid(s, bounds, p.Type, p.Count, opts...)
		case "random":
			err = setup.PopulateRand(s, e.randSource, bounds, p.Type, p.Count, p.MinDist, opts...)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownMethod, p.Method)
		}
		if err != nil {
			return nil, fmt.Errorf("populate %s: %w", p.Type, err)
		}
	}
	if cfg.Temperature > 0 && len(s.Atoms) >= 2 {
		if err := setup.InitTemp(s, e.randSource, md.GroupAll, cfg.Temperature); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (e *Experiment) sample(ctx context.Context, s *md.State) error {
	smp, err := e.Integrator.Sample(ctx)
	if err != nil {
		return err
	}
	e.Series.Add(smp)
	for _, o := range e.observers {
		o(smp, s)
	}
	if e.hub != nil {
		e.hub.Broadcast(stream.NewFrame(smp, s, e.hubPositions))
	}
	e.log.V(1).Info("thermo", "turn", smp.Turn, "T", smp.Temperature, "PE", smp.Potential, "E", smp.Total())
	return nil
}

// Run advances the configured number of turns.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.Integrator == nil {
		return nil, ErrNotSetup
	}
	cfg := e.cfg
	res := &Result{Series: e.Series}
	if every := cfg.Output.SnapshotEvery; every > 0 {
		format, err := snapshot.ParseFormat(cfg.Output.Format)
		if err != nil {
			return nil, err
		}
		w, err := snapshot.NewWriter(e.snapshotBase,
			snapshot.WithFormat(format),
			snapshot.WithCompression(cfg.Output.Compress),
			snapshot.WithFixes(e.Fixes))
		if err != nil {
			return nil, err
		}
		e.snap = w
		res.Snapshot = w.Path()
		e.Integrator.AddHook(integrator.Hook{Name: "snapshot", Every: every, Fn: w.WriteHook})
	}

	start := time.Now()
	err := e.Integrator.Run(ctx, cfg.Turns)
	res.Elapsed = time.Since(start)
	res.FinalTurn = e.State.Turn
	if e.snap != nil {
		if cerr := e.snap.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		e.log.Error(err, "run aborted", "turn", e.State.Turn)
		return res, err
	}
	e.log.Info("run complete", "turns", cfg.Turns, "elapsed", res.Elapsed, "samples", e.Series.Len())
	return res, nil
}

// Metadata describes a finished run for the store.
func (e *Experiment) Metadata(res *Result) storage.RunMetadata {
	fixes := make([]string, 0, e.Fixes.Len())
	for _, f := range e.Fixes.All() {
		fixes = append(fixes, f.Type()+":"+f.Handle())
	}
	summary := storage.Summarize(res.Series)
	for name, v := range e.metrics.Values() {
		summary[name] = v
	}
	backend := ""
	if e.backend != nil {
		backend = e.backend.Name()
	}
	return storage.RunMetadata{
		Name:       e.cfg.Name,
		Seed:       e.cfg.Seed,
		Dt:         e.cfg.Dt,
		Turns:      e.cfg.Turns,
		FinalTurn:  res.FinalTurn,
		Atoms:      len(e.State.Atoms),
		Integrator: e.cfg.Integrator,
		Backend:    backend,
		Fixes:      fixes,
		Snapshot:   res.Snapshot,
		Elapsed:    res.Elapsed.Seconds(),
		Metrics:    summary,
	}
}
