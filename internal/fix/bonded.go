package fix

import (
	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
)

// bonded holds the device side of one bonded fix: the flattened records and
// an atom to record index. Kernels run once per atom and only write that
// atom's force, so no two workers touch the same slot.
//
// Entry e of the index encodes record e>>2 and the atom's slot e&3 within
// the record.
type bonded[T any] struct {
	recs     *device.Array[T]
	offsets  *device.Array[int32]
	entries  *device.Array[int32]
	host     []T
	prepared bool
}

func (b *bonded[T]) upload(backend device.Backend, numAtoms int, recs []T, members [][]int32) error {
	b.release()
	offsets := make([]int32, numAtoms+1)
	for _, m := range members {
		for _, idx := range m {
			offsets[idx+1]++
		}
	}
	for i := 1; i <= numAtoms; i++ {
		offsets[i] += offsets[i-1]
	}
	entries := make([]int32, offsets[numAtoms])
	next := append([]int32(nil), offsets[:numAtoms]...)
	for r, m := range members {
		for slot, idx := range m {
			entries[next[idx]] = int32(r)<<2 | int32(slot)
			next[idx]++
		}
	}

	var err error
	if b.recs, err = device.NewArray[T](backend, len(recs)); err != nil {
		return err
	}
	if b.offsets, err = device.NewArray[int32](backend, len(offsets)); err != nil {
		return err
	}
	if b.entries, err = device.NewArray[int32](backend, len(entries)); err != nil {
		return err
	}
	if err := b.recs.CopyFrom(recs); err != nil {
		return err
	}
	if err := b.offsets.CopyFrom(offsets); err != nil {
		return err
	}
	if err := b.entries.CopyFrom(entries); err != nil {
		return err
	}
	b.host = recs
	b.prepared = true
	return nil
}

func (b *bonded[T]) views() (recs []T, offsets, entries []int32, err error) {
	if !b.prepared {
		return nil, nil, nil, ErrNotPrepared
	}
	if recs, err = b.recs.View(); err != nil {
		return nil, nil, nil, err
	}
	if offsets, err = b.offsets.View(); err != nil {
		return nil, nil, nil, err
	}
	if entries, err = b.entries.View(); err != nil {
		return nil, nil, nil, err
	}
	return recs, offsets, entries, nil
}

func (b *bonded[T]) len() int { return len(b.host) }

func (b *bonded[T]) release() {
	if b.recs != nil {
		b.recs.Release()
	}
	if b.offsets != nil {
		b.offsets.Release()
	}
	if b.entries != nil {
		b.entries.Release()
	}
	b.host = nil
	b.prepared = false
}

// groupShare is the fraction of idxs whose atoms are in mask. A bonded term's
// energy is split evenly between its atoms.
func groupShare(tags []uint32, mask uint32, idxs []int32) float64 {
	in := 0
	for _, i := range idxs {
		if tags[i]&mask != 0 {
			in++
		}
	}
	return float64(in) / float64(len(idxs))
}

// atomViews are the per-atom device fields a kernel reads and writes.
type atomViews struct {
	pos   []md.Vec3
	vel   []md.Vec3
	force []md.Vec3
	mass  []float64
	tags  []uint32
	types []int32
}

func viewsOf(s *md.State) (atomViews, error) {
	var v atomViews
	d := s.Device
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
	if v.mass, err = d.Mass.View(); err != nil {
		return v, err
	}
	if v.tags, err = d.GroupTag.View(); err != nil {
		return v, err
	}
	if v.types, err = d.Type.View(); err != nil {
		return v, err
	}
	return v, nil
}
