package md

// Atom is one particle. ID is unique and stable for the run; Type indexes
// AtomParams.
type Atom struct {
	ID        int
	Type      int
	GroupTag  uint32
	Mass      float64
	Pos       Vec3
	Vel       Vec3
	Force     Vec3
	ForceLast Vec3
}

// Kinetic returns 1/2 m v².
func (a *Atom) Kinetic() float64 {
	return 0.5 * a.Mass * a.Vel.Norm2()
}

// InGroup reports whether the atom carries any bit of mask.
func (a *Atom) InGroup(mask uint32) bool {
	return a.GroupTag&mask != 0
}

// AtomParams maps type handles to indices. Types are only ever appended.
type AtomParams struct {
	Handles []string
	Masses  []float64
}

func (p *AtomParams) NumTypes() int { return len(p.Handles) }

// AddType appends a new type and returns its index.
func (p *AtomParams) AddType(handle string, mass float64) (int, error) {
	if _, err := p.TypeOf(handle); err == nil {
		return 0, ErrDuplicateType
	}
	p.Handles = append(p.Handles, handle)
	p.Masses = append(p.Masses, mass)
	return len(p.Handles) - 1, nil
}

// TypeOf returns the index of handle.
func (p *AtomParams) TypeOf(handle string) (int, error) {
	for i, h := range p.Handles {
		if h == handle {
			return i, nil
		}
	}
	return 0, &UnknownTypeError{Handle: handle}
}
