package integrator

import (
	"context"
	"fmt"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// Integrator is implemented by every integration scheme.
type Integrator interface {
	Prepare(ctx context.Context) error
	Run(ctx context.Context, numTurns int64) error
	ForceSingle(ctx context.Context) error
	Sample(ctx context.Context) (thermo.Sample, error)
	AddHook(h Hook)
	Phase() Phase
}

var (
	_ Integrator = (*Verlet)(nil)
	_ Integrator = (*Langevin)(nil)
)

// Verlet is the velocity Verlet scheme: a half kick with the old force, a
// drift, a force recomputation and a second half kick.
type Verlet struct {
	*Core
}

func NewVerlet(s *md.State, fixes *fix.List, opts ...Option) *Verlet {
	return &Verlet{Core: newCore(s, fixes, opts...)}
}

// Prepare readies the run and computes the forces at the starting positions.
func (v *Verlet) Prepare(ctx context.Context) error {
	if err := v.basicPreRunChecks(); err != nil {
		return err
	}
	if err := v.basicPrepare(ctx); err != nil {
		return err
	}
	if err := v.force(ctx, v.State.Turn, false); err != nil {
		_ = v.basicFinish()
		return err
	}
	return nil
}

// Run advances numTurns turns, preparing first if needed.
func (v *Verlet) Run(ctx context.Context, numTurns int64) error {
	return v.run(ctx, numTurns, v, v.Prepare)
}

func (v *Verlet) preForce(ctx context.Context) error {
	return halfKickDrift(ctx, v.Core)
}

func (v *Verlet) postForce(ctx context.Context) error {
	return halfKick(ctx, v.Core)
}

func halfKickDrift(ctx context.Context, c *Core) error {
	vw, err := c.views()
	if err != nil {
		return err
	}
	s := c.State
	dt := s.Dt
	half := 0.5 * dt
	flat := s.Is2D
	return device.Launch(ctx, len(vw.pos), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			vel := vw.vel[i].Add(vw.force[i].Scale(half / vw.mass[i]))
			if flat {
				vel[2] = 0
			}
			pos := s.Bounds.Wrap(vw.pos[i].Add(vel.Scale(dt)), s.Periodic)
			if !pos.IsFinite() {
				return fmt.Errorf("%w: atom index %d", ErrUnstable, i)
			}
			vw.vel[i] = vel
			vw.pos[i] = pos
		}
		return nil
	})
}

func halfKick(ctx context.Context, c *Core) error {
	vw, err := c.views()
	if err != nil {
		return err
	}
	half := 0.5 * c.State.Dt
	flat := c.State.Is2D
	return device.Launch(ctx, len(vw.vel), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			vel := vw.vel[i].Add(vw.force[i].Scale(half / vw.mass[i]))
			if flat {
				vel[2] = 0
			}
			vw.vel[i] = vel
		}
		return nil
	})
}
