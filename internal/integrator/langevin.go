package integrator

import (
	"context"
	"math"
	"math/rand"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// Langevin is velocity Verlet with a drag force -γ m v and a random force
// of amplitude sqrt(2 γ m T / dt) per component, both added before the
// second half kick. The target temperature follows Schedule; once the
// schedule is finished the thermostat stops acting and the run continues
// as plain Verlet.
type Langevin struct {
	*Verlet
	Gamma    float64
	Schedule *thermo.Schedule
	// GroupTag restricts the thermostat to a group. Zero means every atom.
	GroupTag uint32
	// Region, when set, restricts the thermostat to atoms inside it.
	Region *md.Bounds

	rng   *rand.Rand
	noise []md.Vec3
}

func NewLangevin(s *md.State, fixes *fix.List, sched *thermo.Schedule, gamma float64, seed int64, opts ...Option) *Langevin {
	return &Langevin{
		Verlet:   NewVerlet(s, fixes, opts...),
		Gamma:    gamma,
		Schedule: sched,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Seed restarts the random stream.
func (l *Langevin) Seed(seed int64) { l.rng = rand.New(rand.NewSource(seed)) }

func (l *Langevin) Prepare(ctx context.Context) error {
	if err := l.Verlet.Prepare(ctx); err != nil {
		return err
	}
	l.Schedule.Reset()
	return nil
}

func (l *Langevin) Run(ctx context.Context, numTurns int64) error {
	return l.run(ctx, numTurns, l, l.Prepare)
}

// Finished reports whether the temperature schedule is exhausted.
func (l *Langevin) Finished() bool { return l.Schedule.Finished() }

func (l *Langevin) postForce(ctx context.Context) error {
	temp := l.Schedule.Advance(l.State.Turn)
	if !l.Schedule.Finished() {
		if err := l.thermostat(ctx, temp); err != nil {
			return err
		}
	}
	return halfKick(ctx, l.Core)
}

func (l *Langevin) thermostat(ctx context.Context, temp float64) error {
	vw, err := l.views()
	if err != nil {
		return err
	}
	n := len(vw.vel)
	if cap(l.noise) < n {
		l.noise = make([]md.Vec3, n)
	}
	noise := l.noise[:n]
	// one draw per atom and component, in index order, for reproducibility
	for i := range noise {
		noise[i] = md.Vec3{l.rng.NormFloat64(), l.rng.NormFloat64(), l.rng.NormFloat64()}
	}

	s := l.State
	gamma, dt := l.Gamma, s.Dt
	mask, region, flat := l.GroupTag, l.Region, s.Is2D
	return device.Launch(ctx, n, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if mask != 0 && vw.tags[i]&mask == 0 {
				continue
			}
			if region != nil && !region.Contains(vw.pos[i], flat) {
				continue
			}
			m := vw.mass[i]
			amp := math.Sqrt(2 * gamma * m * temp / dt)
			f := vw.vel[i].Scale(-gamma * m).Add(noise[i].Scale(amp))
			if flat {
				f[2] = 0
			}
			vw.force[i] = vw.force[i].Add(f)
		}
		return nil
	})
}
