package fix

import (
	"context"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
)

const TypeWallHarmonic = "wall_harmonic"

// WallHarmonic pushes atoms away from a plane through Origin with inward
// normal Normal. An atom at distance d < Cutoff feels K (Cutoff - d) along
// the normal.
type WallHarmonic struct {
	Base
	Origin md.Vec3
	Normal md.Vec3
	K      float64
	Cutoff float64
}

func NewWallHarmonic(s *md.State, handle, group string, origin, normal md.Vec3, k, cutoff float64) (*WallHarmonic, error) {
	base, err := NewBase(s, TypeWallHarmonic, handle, group, 1, OrderWall)
	if err != nil {
		return nil, err
	}
	n := normal.Norm()
	if n == 0 {
		return nil, base.configError("wall normal must be non-zero")
	}
	if cutoff <= 0 {
		return nil, base.configError("wall cutoff must be positive, got %g", cutoff)
	}
	base.flags.ForceSingle = true
	return &WallHarmonic{
		Base:   base,
		Origin: origin,
		Normal: normal.Scale(1 / n),
		K:      k,
		Cutoff: cutoff,
	}, nil
}

func (f *WallHarmonic) PrepareForRun(ctx context.Context) error {
	return f.UpdateGroupTag()
}

func (f *WallHarmonic) ComputeForces(ctx context.Context, turn int64) error {
	v, err := viewsOf(f.State)
	if err != nil {
		return err
	}
	mask := f.groupTag
	return device.Launch(ctx, len(v.pos), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if v.tags[i]&mask == 0 {
				continue
			}
			d := v.pos[i].Sub(f.Origin).Dot(f.Normal)
			if d < f.Cutoff {
				v.force[i] = v.force[i].Add(f.Normal.Scale(f.K * (f.Cutoff - d)))
			}
		}
		return nil
	})
}

func (f *WallHarmonic) PotentialEnergy(ctx context.Context) (float64, error) {
	v, err := viewsOf(f.State)
	if err != nil {
		return 0, err
	}
	var u float64
	for i := range v.pos {
		if v.tags[i]&f.groupTag == 0 {
			continue
		}
		if d := v.pos[i].Sub(f.Origin).Dot(f.Normal); d < f.Cutoff {
			u += 0.5 * f.K * (f.Cutoff - d) * (f.Cutoff - d)
		}
	}
	return u, nil
}
