package fix

import (
	"context"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
)

const TypeBondHarmonic = "bond_harmonic"

// BondHarmonic applies U = K (r - R0)² to every bond tagged with its handle.
type BondHarmonic struct {
	Base
	core bonded[md.BondGPU]
}

func NewBondHarmonic(s *md.State, handle, group string) (*BondHarmonic, error) {
	base, err := NewBase(s, TypeBondHarmonic, handle, group, 1, OrderBonded)
	if err != nil {
		return nil, err
	}
	base.flags.ForceSingle = true
	return &BondHarmonic{Base: base}, nil
}

// CreateBond adds a bond between two atom ids to the state.
func (f *BondHarmonic) CreateBond(id1, id2 int, k, r0 float64) error {
	return f.State.AddBond(md.Bond{FixHandle: f.handle, IDs: [2]int{id1, id2}, K: k, R0: r0})
}

// Count is the number of bonds prepared for the current run.
func (f *BondHarmonic) Count() int { return f.core.len() }

func (f *BondHarmonic) PrepareForRun(ctx context.Context) error {
	if err := f.UpdateGroupTag(); err != nil {
		return err
	}
	d := f.State.Device
	if d == nil {
		return md.ErrNoDeviceData
	}
	var recs []md.BondGPU
	var members [][]int32
	for _, b := range f.State.Bonds {
		if b.FixHandle != f.handle {
			continue
		}
		g, err := f.State.FlattenBond(b)
		if err != nil {
			return err
		}
		recs = append(recs, g)
		members = append(members, g.Idxs[:])
	}
	return f.core.upload(d.Backend(), d.Len(), recs, members)
}

func (f *BondHarmonic) ComputeForces(ctx context.Context, turn int64) error {
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
				b := recs[e>>2]
				other := b.Idxs[1-(e&3)]
				acc = acc.Add(bondForce(s, v.pos[i], v.pos[other], b))
			}
			v.force[i] = v.force[i].Add(acc)
		}
		return nil
	})
}

func (f *BondHarmonic) PotentialEnergy(ctx context.Context) (float64, error) {
	recs, _, _, err := f.core.views()
	if err != nil {
		return 0, err
	}
	v, err := viewsOf(f.State)
	if err != nil {
		return 0, err
	}
	var u float64
	for _, b := range recs {
		r := f.State.MinImage(v.pos[b.Idxs[0]], v.pos[b.Idxs[1]]).Norm()
		dr := r - float64(b.R0)
		u += groupShare(v.tags, f.groupTag, b.Idxs[:]) * float64(b.K) * dr * dr
	}
	return u, nil
}

// bondForce is the force on the atom at pi from its bond partner at pj.
func bondForce(s *md.State, pi, pj md.Vec3, b md.BondGPU) md.Vec3 {
	d := s.MinImage(pj, pi)
	r := d.Norm()
	if r == 0 {
		return md.Vec3{}
	}
	return d.Scale(-2 * float64(b.K) * (r - float64(b.R0)) / r)
}

func (f *BondHarmonic) Release() { f.core.release() }
