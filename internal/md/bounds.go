package md

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Bounds is the simulation cell: an origin plus three edge vectors. A cell
// with off-diagonal edge components is triclinic.
type Bounds struct {
	Lo    Vec3
	Sides [3]Vec3

	inv   [3][3]float64
	valid bool
}

// NewBounds builds an orthogonal cell spanning [lo, hi]. A zero z extent, as
// used by 2-D runs, is given unit depth so the cell stays invertible.
func NewBounds(lo, hi Vec3) (Bounds, error) {
	sides := [3]Vec3{
		{hi[0] - lo[0], 0, 0},
		{0, hi[1] - lo[1], 0},
		{0, 0, hi[2] - lo[2]},
	}
	if sides[2][2] == 0 {
		sides[2][2] = 1
	}
	return NewTriclinic(lo, sides)
}

// NewTriclinic builds a cell from an origin and edge vectors.
func NewTriclinic(lo Vec3, sides [3]Vec3) (Bounds, error) {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(j, i, sides[i][j])
		}
	}
	if det := mat.Det(m); !(det > 0) || math.IsInf(det, 0) {
		return Bounds{}, fmt.Errorf("%w: cell volume %g", ErrInvalidBounds, det)
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Bounds{}, fmt.Errorf("%w: %v", ErrInvalidBounds, err)
	}
	b := Bounds{Lo: lo, Sides: sides, valid: true}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b.inv[i][j] = inv.At(i, j)
		}
	}
	return b, nil
}

func (b Bounds) Valid() bool { return b.valid }

// Hi is the corner opposite Lo.
func (b Bounds) Hi() Vec3 {
	return b.Lo.Add(b.Sides[0]).Add(b.Sides[1]).Add(b.Sides[2])
}

// Trace is the diagonal of the edge matrix, the box lengths of an orthogonal cell.
func (b Bounds) Trace() Vec3 {
	return Vec3{b.Sides[0][0], b.Sides[1][1], b.Sides[2][2]}
}

func (b Bounds) Volume() float64 {
	return b.Sides[0].Dot(b.Sides[1].Cross(b.Sides[2]))
}

// IsOrthogonal reports whether every edge lies along its own axis.
func (b Bounds) IsOrthogonal() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j && b.Sides[i][j] != 0 {
				return false
			}
		}
	}
	return true
}

func (b Bounds) toFrac(d Vec3) Vec3 {
	var f Vec3
	for i := 0; i < 3; i++ {
		f[i] = b.inv[i][0]*d[0] + b.inv[i][1]*d[1] + b.inv[i][2]*d[2]
	}
	return f
}

func (b Bounds) fromFrac(f Vec3) Vec3 {
	return b.Sides[0].Scale(f[0]).Add(b.Sides[1].Scale(f[1])).Add(b.Sides[2].Scale(f[2]))
}

// Frac returns the fractional coordinates of p within the cell.
func (b Bounds) Frac(p Vec3) Vec3 { return b.toFrac(p.Sub(b.Lo)) }

// FromFrac is the inverse of Frac.
func (b Bounds) FromFrac(f Vec3) Vec3 { return b.Lo.Add(b.fromFrac(f)) }

// Contains reports whether p lies inside the cell. The z axis is ignored for 2-D.
func (b Bounds) Contains(p Vec3, is2D bool) bool {
	f := b.Frac(p)
	dims := 3
	if is2D {
		dims = 2
	}
	const eps = 1e-9
	for i := 0; i < dims; i++ {
		if f[i] < -eps || f[i] > 1+eps {
			return false
		}
	}
	return true
}

// MinImage maps a separation vector to its nearest periodic image.
func (b Bounds) MinImage(d Vec3, periodic [3]bool) Vec3 {
	if !periodic[0] && !periodic[1] && !periodic[2] {
		return d
	}
	f := b.toFrac(d)
	for i := 0; i < 3; i++ {
		if periodic[i] {
			f[i] -= math.Round(f[i])
		}
	}
	return b.fromFrac(f)
}

// Wrap folds p back into the cell along periodic axes.
func (b Bounds) Wrap(p Vec3, periodic [3]bool) Vec3 {
	f := b.Frac(p)
	changed := false
	for i := 0; i < 3; i++ {
		if periodic[i] && (f[i] < 0 || f[i] >= 1) {
			f[i] -= math.Floor(f[i])
			changed = true
		}
	}
	if !changed {
		return p
	}
	return b.FromFrac(f)
}
