package fix

import (
	"context"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/neighbor"
	"github.com/san-kum/mdsim/internal/params"
)

const (
	TypeLJCut = "lj_cut"

	LabelEpsilon = "eps"
	LabelSigma   = "sig"
)

// LJCut is the truncated Lennard-Jones pair potential
//
//	U(r) = 4ε[(σ/r)¹² - (σ/r)⁶],  r < rc
//
// with per type-pair ε and σ. Unset cross terms are mixed with the
// Lorentz-Berthelot rules: geometric ε, arithmetic σ.
type LJCut struct {
	Base
	rCut   float64
	params *params.Set
	list   *neighbor.List
}

func NewLJCut(s *md.State, b device.Backend, handle, group string, rCut float64) (*LJCut, error) {
	base, err := NewBase(s, TypeLJCut, handle, group, 1, OrderPair)
	if err != nil {
		return nil, err
	}
	if rCut <= 0 {
		return nil, base.configError("cutoff must be positive, got %g", rCut)
	}
	base.flags.ForceSingle = true
	ps := params.NewSet(b)
	ps.Label(LabelEpsilon, params.Geometric)
	ps.Label(LabelSigma, params.Arithmetic)
	return &LJCut{Base: base, rCut: rCut, params: ps}, nil
}

func (f *LJCut) Cutoff() float64 { return f.rCut }

func (f *LJCut) UseNeighbors(l *neighbor.List) { f.list = l }

// Params exposes the parameter set for inspection.
func (f *LJCut) Params() *params.Set { return f.params }

// SetParameter sets ε or σ for the pair of type handles a and b.
func (f *LJCut) SetParameter(label, a, b string, v float64) error {
	return f.params.SetParameter(&f.State.AtomParams, label, a, b, v)
}

func (f *LJCut) PrepareForRun(ctx context.Context) error {
	if err := f.UpdateGroupTag(); err != nil {
		return err
	}
	return f.params.Prepare(&f.State.AtomParams)
}

// refresh re-populates and re-uploads the parameter tables when they were
// edited, or a type was added, since the last prepare.
func (f *LJCut) refresh() error {
	if !f.params.Dirty() && f.params.Size() == f.State.NumTypes() {
		return nil
	}
	return f.params.Prepare(&f.State.AtomParams)
}

type ljTables struct {
	eps, sig []float32
	n        int
}

func (f *LJCut) tables() (ljTables, error) {
	if err := f.refresh(); err != nil {
		return ljTables{}, err
	}
	eps, err := f.params.View(LabelEpsilon)
	if err != nil {
		return ljTables{}, err
	}
	sig, err := f.params.View(LabelSigma)
	if err != nil {
		return ljTables{}, err
	}
	return ljTables{eps: eps, sig: sig, n: f.params.Size()}, nil
}

func (f *LJCut) ComputeForces(ctx context.Context, turn int64) error {
	if f.list == nil || !f.list.Built() {
		return neighbor.ErrNotBuilt
	}
	t, err := f.tables()
	if err != nil {
		return err
	}
	v, err := viewsOf(f.State)
	if err != nil {
		return err
	}
	s, mask, rc2 := f.State, f.groupTag, f.rCut*f.rCut
	return device.Launch(ctx, len(v.pos), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if v.tags[i]&mask == 0 {
				continue
			}
			ti := int(v.types[i])
			var acc md.Vec3
			for _, j := range f.list.Neighbors(i) {
				if v.tags[j]&mask == 0 {
					continue
				}
				d := s.MinImage(v.pos[j], v.pos[i])
				r2 := d.Norm2()
				if r2 >= rc2 || r2 == 0 {
					continue
				}
				k := ti*t.n + int(v.types[j])
				sr2 := float64(t.sig[k]) * float64(t.sig[k]) / r2
				sr6 := sr2 * sr2 * sr2
				fmag := 24 * float64(t.eps[k]) * sr6 * (2*sr6 - 1) / r2
				acc = acc.Add(d.Scale(fmag))
			}
			v.force[i] = v.force[i].Add(acc)
		}
		return nil
	})
}

func (f *LJCut) PotentialEnergy(ctx context.Context) (float64, error) {
	if f.list == nil || !f.list.Built() {
		return 0, neighbor.ErrNotBuilt
	}
	t, err := f.tables()
	if err != nil {
		return 0, err
	}
	v, err := viewsOf(f.State)
	if err != nil {
		return 0, err
	}
	s, mask, rc2 := f.State, f.groupTag, f.rCut*f.rCut
	perAtom := make([]float64, len(v.pos))
	err = device.Launch(ctx, len(v.pos), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if v.tags[i]&mask == 0 {
				continue
			}
			ti := int(v.types[i])
			for _, j := range f.list.Neighbors(i) {
				if int(j) <= i || v.tags[j]&mask == 0 {
					continue
				}
				r2 := s.MinImage(v.pos[j], v.pos[i]).Norm2()
				if r2 >= rc2 || r2 == 0 {
					continue
				}
				k := ti*t.n + int(v.types[j])
				sr2 := float64(t.sig[k]) * float64(t.sig[k]) / r2
				sr6 := sr2 * sr2 * sr2
				perAtom[i] += 4 * float64(t.eps[k]) * (sr6*sr6 - sr6)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return floats.Sum(perAtom), nil
}

func (f *LJCut) RestartRecord() Record {
	r := f.record()
	r.Attrs["rcut"] = strconv.FormatFloat(f.rCut, 'g', -1, 64)
	r.Matrices = f.params.Records()
	return r
}

func (f *LJCut) Restore(r Record) error {
	if err := f.checkRecord(r); err != nil {
		return err
	}
	if s, ok := r.Attrs["rcut"]; ok {
		rc, err := strconv.ParseFloat(s, 64)
		if err != nil || rc <= 0 {
			return f.configError("bad rcut %q in restart record", s)
		}
		f.rCut = rc
	}
	return f.params.Restore(r.Matrices)
}

func (f *LJCut) Release() { f.params.Release() }
