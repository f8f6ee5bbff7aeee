package fix

import (
	"context"
	"math"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
)

const TypeDihedralOPLS = "dihedral_opls"

// DihedralOPLS applies the OPLS torsion
//
//	U(φ) = ½[c1(1+cos φ) + c2(1-cos 2φ) + c3(1+cos 3φ) + c4(1-cos 4φ)]
//
// to every dihedral tagged with its handle.
type DihedralOPLS struct {
	Base
	core bonded[md.DihedralGPU]
}

func NewDihedralOPLS(s *md.State, handle, group string) (*DihedralOPLS, error) {
	base, err := NewBase(s, TypeDihedralOPLS, handle, group, 1, OrderBonded)
	if err != nil {
		return nil, err
	}
	base.flags.ForceSingle = true
	return &DihedralOPLS{Base: base}, nil
}

func (f *DihedralOPLS) CreateDihedral(ids [4]int, coefs [4]float64) error {
	return f.State.AddDihedral(md.Dihedral{FixHandle: f.handle, IDs: ids, Coefs: coefs})
}

func (f *DihedralOPLS) Count() int { return f.core.len() }

func (f *DihedralOPLS) PrepareForRun(ctx context.Context) error {
	if err := f.UpdateGroupTag(); err != nil {
		return err
	}
	d := f.State.Device
	if d == nil {
		return md.ErrNoDeviceData
	}
	var recs []md.DihedralGPU
	var members [][]int32
	for _, dh := range f.State.Dihedrals {
		if dh.FixHandle != f.handle {
			continue
		}
		g, err := f.State.FlattenDihedral(dh)
		if err != nil {
			return err
		}
		recs = append(recs, g)
		members = append(members, g.Idxs[:])
	}
	return f.core.upload(d.Backend(), d.Len(), recs, members)
}

func (f *DihedralOPLS) ComputeForces(ctx context.Context, turn int64) error {
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
				d := recs[e>>2]
				forces, _ := dihedralForces(s, positions4(v.pos, d.Idxs), d.Coefs)
				acc = acc.Add(forces[e&3])
			}
			v.force[i] = v.force[i].Add(acc)
		}
		return nil
	})
}

func (f *DihedralOPLS) PotentialEnergy(ctx context.Context) (float64, error) {
	recs, _, _, err := f.core.views()
	if err != nil {
		return 0, err
	}
	v, err := viewsOf(f.State)
	if err != nil {
		return 0, err
	}
	var u float64
	for _, d := range recs {
		_, e := dihedralForces(f.State, positions4(v.pos, d.Idxs), d.Coefs)
		u += groupShare(v.tags, f.groupTag, d.Idxs[:]) * e
	}
	return u, nil
}

func positions4(pos []md.Vec3, idxs [4]int32) [4]md.Vec3 {
	return [4]md.Vec3{pos[idxs[0]], pos[idxs[1]], pos[idxs[2]], pos[idxs[3]]}
}

func oplsEnergy(phi float64, c [4]float32) float64 {
	return 0.5 * (float64(c[0])*(1+math.Cos(phi)) +
		float64(c[1])*(1-math.Cos(2*phi)) +
		float64(c[2])*(1+math.Cos(3*phi)) +
		float64(c[3])*(1-math.Cos(4*phi)))
}

func oplsDerivative(phi float64, c [4]float32) float64 {
	return 0.5 * (-float64(c[0])*math.Sin(phi) +
		2*float64(c[1])*math.Sin(2*phi) -
		3*float64(c[2])*math.Sin(3*phi) +
		4*float64(c[3])*math.Sin(4*phi))
}

// dihedralForces returns the force on each atom of the torsion i-j-k-l and
// its energy. Gradients follow Blondel and Karplus (1996).
func dihedralForces(s *md.State, p [4]md.Vec3, c [4]float32) ([4]md.Vec3, float64) {
	var f [4]md.Vec3
	F := s.MinImage(p[1], p[0])
	G := s.MinImage(p[2], p[1])
	H := s.MinImage(p[2], p[3])
	A := F.Cross(G)
	B := H.Cross(G)
	a2, b2, lg := A.Norm2(), B.Norm2(), G.Norm()
	if a2 == 0 || b2 == 0 || lg == 0 {
		return f, 0
	}
	ab := math.Sqrt(a2 * b2)
	phi := math.Atan2(B.Cross(A).Dot(G)/(ab*lg), A.Dot(B)/ab)
	dU := oplsDerivative(phi, c)
	fg, hg := F.Dot(G), H.Dot(G)

	f[0] = A.Scale(lg / a2 * dU)
	f[3] = B.Scale(-lg / b2 * dU)
	f[1] = A.Scale(-(lg/a2 + fg/(a2*lg)) * dU).Add(B.Scale(hg / (b2 * lg) * dU))
	f[2] = B.Scale(-(hg/(b2*lg) - lg/b2) * dU).Add(A.Scale(fg / (a2 * lg) * dU))
	return f, oplsEnergy(phi, c)
}

func (f *DihedralOPLS) Release() { f.core.release() }
