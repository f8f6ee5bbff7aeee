package md

// Topology records reference atoms by id, never by slice position, so
// growing the atom slice cannot invalidate them. FixHandle names the bonded
// fix that evaluates the record.

// Bond is a harmonic bond: K (r - R0)².
type Bond struct {
	FixHandle string
	IDs       [2]int
	K         float64
	R0        float64
}

// Angle is a harmonic angle: K (θ - ThetaEq)².
type Angle struct {
	FixHandle string
	IDs       [3]int
	K         float64
	ThetaEq   float64
}

// Dihedral is an OPLS dihedral with four Fourier coefficients.
type Dihedral struct {
	FixHandle string
	IDs       [4]int
	Coefs     [4]float64
}

// BondGPU is the flattened form consumed by kernels: atom indices resolved
// for the current run and single precision coefficients.
type BondGPU struct {
	Idxs [2]int32
	K    float32
	R0   float32
}

type AngleGPU struct {
	Idxs    [3]int32
	K       float32
	ThetaEq float32
}

type DihedralGPU struct {
	Idxs  [4]int32
	Coefs [4]float32
}

// resolve maps ids to current slice indices.
func (s *State) resolve(owner string, ids []int, out []int32) error {
	for slot, id := range ids {
		idx, ok := s.IndexOf(id)
		if !ok {
			return &InvalidAtomError{Owner: owner, ID: id, Slot: slot}
		}
		out[slot] = int32(idx)
	}
	return nil
}

func (s *State) FlattenBond(b Bond) (BondGPU, error) {
	g := BondGPU{K: float32(b.K), R0: float32(b.R0)}
	err := s.resolve("bond "+b.FixHandle, b.IDs[:], g.Idxs[:])
	return g, err
}

func (s *State) FlattenAngle(a Angle) (AngleGPU, error) {
	g := AngleGPU{K: float32(a.K), ThetaEq: float32(a.ThetaEq)}
	err := s.resolve("angle "+a.FixHandle, a.IDs[:], g.Idxs[:])
	return g, err
}

func (s *State) FlattenDihedral(d Dihedral) (DihedralGPU, error) {
	g := DihedralGPU{}
	for i, c := range d.Coefs {
		g.Coefs[i] = float32(c)
	}
	err := s.resolve("dihedral "+d.FixHandle, d.IDs[:], g.Idxs[:])
	return g, err
}
