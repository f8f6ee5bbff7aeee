// Package integrator advances a particle state through turns.
//
// An integrator moves through the phases Unconfigured, Prepared, Running and
// Finished. Prepare uploads the atoms to the device, builds the neighbor list
// and prepares every fix. Run then repeats, once per turn: the first half of
// the update, force computation by the due fixes in order, the second half
// of the update, post-integration fixes, the turn increment and any due data
// hooks. The final state is copied back to the host atoms on every exit path.
package integrator

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/neighbor"
	"github.com/san-kum/mdsim/internal/thermo"
)

type Phase int

const (
	Unconfigured Phase = iota
	Prepared
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case Prepared:
		return "prepared"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "unconfigured"
	}
}

const (
	DefaultPadding      = 0.5
	DefaultRebuildEvery = 10
)

// Hook is called with up to date host atoms every Every turns.
type Hook struct {
	Name  string
	Every int64
	Fn    func(ctx context.Context, s *md.State) error
}

type Option func(*Core)

func WithBackend(b device.Backend) Option { return func(c *Core) { c.backend = b } }
func WithLogger(l logr.Logger) Option     { return func(c *Core) { c.log = l } }
func WithPadding(p float64) Option        { return func(c *Core) { c.padding = p } }
func WithHook(h Hook) Option              { return func(c *Core) { c.hooks = append(c.hooks, h) } }

// WithRebuildEvery sets the neighbor list rebuild cadence in turns. Zero
// disables periodic rebuilds.
func WithRebuildEvery(n int64) Option { return func(c *Core) { c.rebuildEvery = n } }

// WithAutoRebuild also rebuilds whenever RebuildIsDangerous reports true.
func WithAutoRebuild(on bool) Option { return func(c *Core) { c.autoRebuild = on } }

// Core is the machinery shared by all integrators.
type Core struct {
	State *md.State
	Fixes *fix.List

	backend      device.Backend
	stream       device.Stream
	neighbors    *neighbor.List
	padding      float64
	rebuildEvery int64
	autoRebuild  bool
	hooks        []Hook
	log          logr.Logger

	phase   Phase
	ordered []fix.Fix
	started time.Time
	first   int64
}

func newCore(s *md.State, fixes *fix.List, opts ...Option) *Core {
	if fixes == nil {
		fixes = fix.NewList()
	}
	c := &Core{
		State:        s,
		Fixes:        fixes,
		padding:      DefaultPadding,
		rebuildEvery: DefaultRebuildEvery,
		autoRebuild:  true,
		log:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		c.backend = device.GetBackend()
	}
	return c
}

func (c *Core) Phase() Phase              { return c.phase }
func (c *Core) Backend() device.Backend   { return c.backend }
func (c *Core) Neighbors() *neighbor.List { return c.neighbors }
func (c *Core) Logger() logr.Logger       { return c.log }
func (c *Core) AddHook(h Hook)            { c.hooks = append(c.hooks, h) }
func (c *Core) SetLogger(l logr.Logger)   { c.log = l }
func (c *Core) OrderedFixes() []fix.Fix   { return c.ordered }

func (c *Core) basicPreRunChecks() error {
	if c.phase == Running {
		return ErrRunning
	}
	if len(c.State.Atoms) == 0 {
		return ErrNoAtoms
	}
	if !c.State.Bounds.Valid() {
		return ErrInvalidBounds
	}
	if c.State.Dt <= 0 {
		return ErrBadTimestep
	}
	return nil
}

func (c *Core) basicPrepare(ctx context.Context) error {
	s := c.State
	if err := s.PrepareDevice(c.backend); err != nil {
		return err
	}
	stream, err := c.backend.NewStream()
	if err != nil {
		s.ReleaseDevice()
		return err
	}
	c.stream = stream

	c.ordered = c.Fixes.Ordered()
	c.neighbors = nil
	if rc := c.Fixes.MaxCutoff(); rc > 0 {
		c.neighbors = neighbor.New()
		if err := c.neighbors.Build(ctx, s, rc, c.padding); err != nil {
			s.ReleaseDevice()
			return err
		}
	}
	for _, f := range c.ordered {
		if u, ok := f.(fix.Cutoffer); ok {
			u.UseNeighbors(c.neighbors)
		}
		if err := f.PrepareForRun(ctx); err != nil {
			c.releaseFixes()
			s.ReleaseDevice()
			return &TurnError{Turn: s.Turn, Fix: f.Handle(), Err: err}
		}
	}
	c.phase = Prepared
	c.log.Info("prepared run", "atoms", len(s.Atoms), "fixes", len(c.ordered),
		"backend", c.backend.Name(), "turn", s.Turn)
	return nil
}

// basicFinish copies the device state back into the atoms and frees device
// memory.
func (c *Core) basicFinish() error {
	if c.phase == Unconfigured || c.phase == Finished {
		return nil
	}
	err := c.State.SyncFromDevice()
	c.releaseFixes()
	c.State.ReleaseDevice()
	c.phase = Finished
	if !c.started.IsZero() {
		turns := c.State.Turn - c.first
		elapsed := time.Since(c.started)
		c.log.Info("run finished", "turn", c.State.Turn, "turns", turns, "elapsed", elapsed)
		c.started = time.Time{}
	}
	return err
}

func (c *Core) releaseFixes() {
	for _, f := range c.ordered {
		if r, ok := f.(fix.Releaser); ok {
			r.Release()
		}
	}
}

// views are the device fields the update kernels touch.
type views struct {
	pos, vel, force, forceLast []md.Vec3
	mass                       []float64
	tags                       []uint32
}

func (c *Core) views() (views, error) {
	var v views
	d := c.State.Device
	if d == nil {
		return v, md.ErrNoDeviceData
	}
	var err error
	if v.pos, err = d.Pos.View(); err != nil {
		return v, err
	}
	if v.vel, err = d.Vel.View(); err != nil {
		return v, err
	}
	if v.force, err = d.Force.View(); err != nil {
		return v, err
	}
	if v.forceLast, err = d.ForceLast.View(); err != nil {
		return v, err
	}
	if v.mass, err = d.Mass.View(); err != nil {
		return v, err
	}
	if v.tags, err = d.GroupTag.View(); err != nil {
		return v, err
	}
	return v, nil
}

// force moves the current forces to ForceLast, zeroes them and lets every
// due fix add its contribution.
func (c *Core) force(ctx context.Context, turn int64, singleOnly bool) error {
	v, err := c.views()
	if err != nil {
		return &TurnError{Turn: turn, Err: err}
	}
	err = device.Launch(ctx, len(v.force), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			v.forceLast[i] = v.force[i]
			v.force[i] = md.Vec3{}
		}
		return nil
	})
	if err != nil {
		return &TurnError{Turn: turn, Err: err}
	}
	for _, f := range c.ordered {
		if !fix.Due(f, turn) {
			continue
		}
		if singleOnly && !f.Flags().ForceSingle {
			continue
		}
		if err := f.ComputeForces(ctx, turn); err != nil {
			return &TurnError{Turn: turn, Fix: f.Handle(), Err: err}
		}
	}
	return nil
}

func (c *Core) postIntegration(ctx context.Context, turn int64) error {
	for _, f := range c.ordered {
		p, ok := f.(fix.PostIntegrator)
		if !ok || !fix.Due(f, turn) {
			continue
		}
		if err := p.PostIntegration(ctx, turn); err != nil {
			return &TurnError{Turn: turn, Fix: f.Handle(), Err: err}
		}
	}
	return nil
}

// RebuildIsDangerous reports whether an atom has moved more than half the
// neighbor padding since the last build. It is advisory.
func (c *Core) RebuildIsDangerous() bool {
	if c.neighbors == nil || c.State.Device == nil {
		return false
	}
	return c.neighbors.IsDangerous(c.State)
}

func (c *Core) maybeRebuild(ctx context.Context, turn int64) error {
	if c.neighbors == nil {
		return nil
	}
	due := c.rebuildEvery > 0 && turn%c.rebuildEvery == 0
	if !due && c.RebuildIsDangerous() {
		if !c.autoRebuild {
			c.log.V(1).Info("neighbor list is stale", "turn", turn)
			return nil
		}
		c.log.V(1).Info("rebuilding dangerous neighbor list", "turn", turn)
		due = true
	}
	if !due {
		return nil
	}
	if err := c.neighbors.Build(ctx, c.State, c.neighbors.Cutoff(), c.padding); err != nil {
		return &TurnError{Turn: turn, Err: err}
	}
	return nil
}

// data runs the hooks due at the current turn after an async download of the
// dynamic fields has completed.
func (c *Core) data(ctx context.Context) error {
	turn := c.State.Turn
	var due []Hook
	for _, h := range c.hooks {
		if h.Every > 0 && turn%h.Every == 0 {
			due = append(due, h)
		}
	}
	if len(due) == 0 {
		return nil
	}
	transfers, err := c.State.Device.DownloadAsync(c.stream)
	if err == nil {
		err = device.WaitAll(transfers...)
	}
	if err == nil {
		err = c.State.ApplyHost()
	}
	if err != nil {
		return &TurnError{Turn: turn, Err: err}
	}
	for _, h := range due {
		if err := h.Fn(ctx, c.State); err != nil {
			return &TurnError{Turn: turn, Fix: h.Name, Err: err}
		}
	}
	return nil
}

// resync rebuilds the device data, the neighbor list and every fix's device
// side once atoms or topology were appended to the state, then recomputes
// the forces. Unless hostFresh, the device fields are copied back first so
// the host atoms carry the current positions and velocities.
func (c *Core) resync(ctx context.Context, hostFresh bool) error {
	s := c.State
	if !s.Changed {
		return nil
	}
	turn := s.Turn
	if !hostFresh {
		if err := s.SyncFromDevice(); err != nil {
			return &TurnError{Turn: turn, Err: err}
		}
	}
	if err := s.PrepareDevice(c.backend); err != nil {
		return &TurnError{Turn: turn, Err: err}
	}
	if c.neighbors != nil {
		if err := c.neighbors.Build(ctx, s, c.neighbors.Cutoff(), c.padding); err != nil {
			return &TurnError{Turn: turn, Err: err}
		}
	}
	for _, f := range c.ordered {
		if err := f.PrepareForRun(ctx); err != nil {
			return &TurnError{Turn: turn, Fix: f.Handle(), Err: err}
		}
	}
	c.log.V(1).Info("resynchronized device data", "turn", turn, "atoms", len(s.Atoms))
	return c.force(ctx, turn, false)
}

// PotentialEnergy sums the energies of fixes that report one. It reads
// device data and is only meaningful while a run is active.
func (c *Core) PotentialEnergy(ctx context.Context) (float64, error) {
	var u float64
	for _, f := range c.ordered {
		if e, ok := f.(fix.Energizer); ok {
			v, err := e.PotentialEnergy(ctx)
			if err != nil {
				return 0, err
			}
			u += v
		}
	}
	return u, nil
}

// Sample measures the host atoms and the fixes' potential energy. Call it
// from a hook.
func (c *Core) Sample(ctx context.Context) (thermo.Sample, error) {
	s := c.State
	u, err := c.PotentialEnergy(ctx)
	if err != nil {
		return thermo.Sample{}, err
	}
	all, _ := s.GroupTag(md.GroupAll)
	return thermo.Sample{
		Turn:        s.Turn,
		Temperature: thermo.Temperature(s.Atoms, all, s.Dims()),
		Kinetic:     thermo.KineticEnergy(s.Atoms, all),
		Potential:   u,
	}, nil
}

// ForceSingle computes forces once, without integrating, using only fixes
// flagged for it. The forces are copied back into the atoms.
func (c *Core) ForceSingle(ctx context.Context) (err error) {
	if err := c.basicPreRunChecks(); err != nil {
		return err
	}
	if err := c.basicPrepare(ctx); err != nil {
		return err
	}
	defer func() {
		if ferr := c.basicFinish(); err == nil {
			err = ferr
		}
	}()
	return c.force(ctx, c.State.Turn, true)
}

// stepper is the integration scheme driven by run.
type stepper interface {
	preForce(ctx context.Context) error
	postForce(ctx context.Context) error
}

func (c *Core) run(ctx context.Context, numTurns int64, st stepper, prepare func(context.Context) error) (err error) {
	if c.phase != Prepared {
		if err := prepare(ctx); err != nil {
			return err
		}
	}
	c.phase = Running
	c.started = time.Now()
	c.first = c.State.Turn
	defer func() {
		if ferr := c.basicFinish(); err == nil {
			err = ferr
		}
	}()

	if err := c.resync(ctx, false); err != nil {
		return err
	}
	for i := int64(0); i < numTurns; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		turn := c.State.Turn
		if err := st.preForce(ctx); err != nil {
			return &TurnError{Turn: turn, Err: err}
		}
		if err := c.maybeRebuild(ctx, turn); err != nil {
			return err
		}
		if err := c.force(ctx, turn, false); err != nil {
			return err
		}
		if err := st.postForce(ctx); err != nil {
			return &TurnError{Turn: turn, Err: err}
		}
		if err := c.postIntegration(ctx, turn); err != nil {
			return err
		}
		c.State.Turn++
		if err := c.data(ctx); err != nil {
			return err
		}
		// appends made by a hook reach the device before the next turn
		if err := c.resync(ctx, true); err != nil {
			return err
		}
	}
	return nil
}
