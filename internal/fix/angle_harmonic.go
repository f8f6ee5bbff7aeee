package fix

import (
	"context"
	"math"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
)

const TypeAngleHarmonic = "angle_harmonic"

// AngleHarmonic applies U = K (θ - θ₀)² to every angle tagged with its
// handle. The middle atom of an angle is the vertex.
type AngleHarmonic struct {
	Base
	core bonded[md.AngleGPU]
}

func NewAngleHarmonic(s *md.State, handle, group string) (*AngleHarmonic, error) {
	base, err := NewBase(s, TypeAngleHarmonic, handle, group, 1, OrderBonded)
	if err != nil {
		return nil, err
	}
	base.flags.ForceSingle = true
	return &AngleHarmonic{Base: base}, nil
}

func (f *AngleHarmonic) CreateAngle(id1, id2, id3 int, k, thetaEq float64) error {
	return f.State.AddAngle(md.Angle{FixHandle: f.handle, IDs: [3]int{id1, id2, id3}, K: k, ThetaEq: thetaEq})
}

func (f *AngleHarmonic) Count() int { return f.core.len() }

func (f *AngleHarmonic) PrepareForRun(ctx context.Context) error {
	if err := f.UpdateGroupTag(); err != nil {
		return err
	}
	d := f.State.Device
	if d == nil {
		return md.ErrNoDeviceData
	}
	var recs []md.AngleGPU
	var members [][]int32
	for _, a := range f.State.Angles {
		if a.FixHandle != f.handle {
			continue
		}
		g, err := f.State.FlattenAngle(a)
		if err != nil {
			return err
		}
		recs = append(recs, g)
		members = append(members, g.Idxs[:])
	}
	return f.core.upload(d.Backend(), d.Len(), recs, members)
}

func (f *AngleHarmonic) ComputeForces(ctx context.Context, turn int64) error {
	recs, offsets, entries, err := f.core.views()
	if err != nil {
		return err
	}
	v, err := viewsOf(f.State)
	if err != nil {
		return err
	}
	s, mask := f.State, f.groupTag
	return device.Launch(ctx, len(v.pos), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if v.tags[i]&mask == 0 {
				continue
			}
			var acc md.Vec3
			for _, e := range entries[offsets[i]:offsets[i+1]] {
				a := recs[e>>2]
				forces, _ := angleForces(s, v.pos[a.Idxs[0]], v.pos[a.Idxs[1]], v.pos[a.Idxs[2]], a)
				acc = acc.Add(forces[e&3])
			}
			v.force[i] = v.force[i].Add(acc)
		}
		return nil
	})
}

func (f *AngleHarmonic) PotentialEnergy(ctx context.Context) (float64, error) {
	recs, _, _, err := f.core.views()
	if err != nil {
		return 0, err
	}
	v, err := viewsOf(f.State)
	if err != nil {
		return 0, err
	}
	var u float64
	for _, a := range recs {
		_, e := angleForces(f.State, v.pos[a.Idxs[0]], v.pos[a.Idxs[1]], v.pos[a.Idxs[2]], a)
		u += groupShare(v.tags, f.groupTag, a.Idxs[:]) * e
	}
	return u, nil
}

// angleForces returns the force on each of the three atoms and the angle's
// energy.
func angleForces(s *md.State, pa, pb, pc md.Vec3, a md.AngleGPU) ([3]md.Vec3, float64) {
	var f [3]md.Vec3
	u := s.MinImage(pb, pa)
	w := s.MinImage(pb, pc)
	lu, lw := u.Norm(), w.Norm()
	if lu == 0 || lw == 0 {
		return f, 0
	}
	c := u.Dot(w) / (lu * lw)
	c = math.Max(-1, math.Min(1, c))
	theta := math.Acos(c)
	dtheta := theta - float64(a.ThetaEq)
	sn := math.Sqrt(1 - c*c)
	if sn < 1e-8 {
		sn = 1e-8
	}
	pre := 2 * float64(a.K) * dtheta / sn
	f[0] = w.Scale(1 / (lu * lw)).Sub(u.Scale(c / (lu * lu))).Scale(pre)
	f[2] = u.Scale(1 / (lu * lw)).Sub(w.Scale(c / (lw * lw))).Scale(pre)
	f[1] = f[0].Add(f[2]).Scale(-1)
	return f, float64(a.K) * dtheta * dtheta
}

func (f *AngleHarmonic) Release() { f.core.release() }
