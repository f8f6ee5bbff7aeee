// Package params stores per atom-type-pair interaction parameters.
//
// A [Matrix] is a flat size×size table. Diagonal cells must be set by the
// user; unset off-diagonal cells are derived from the diagonal with a mixing
// rule when the matrix is populated. A [Set] groups the labelled matrices of
// one pair fix and mirrors their populated form to the device.
package params

import (
	"errors"
	"fmt"
	"math"
)

// Unset marks a cell that has not been given a value.
const Unset float32 = math.MaxInt32

// MixFunc derives a cross-type parameter from two self parameters.
type MixFunc func(ii, jj float32) float32

var (
	ErrShrink     = errors.New("params: matrices cannot shrink")
	ErrStale      = errors.New("params: parameters changed since last prepare")
	ErrUnknownKey = errors.New("params: unknown parameter label")
	ErrBadRecord  = errors.New("params: malformed parameter record")
)

// MissingParameterError reports an atom type whose self parameter was never set.
type MissingParameterError struct {
	Label  string
	Type   int
	Handle string
}

func (e *MissingParameterError) Error() string {
	name := e.Handle
	if name == "" {
		name = fmt.Sprintf("index %d", e.Type)
	}
	if e.Label == "" {
		return fmt.Sprintf("params: no interaction parameters defined for atom type %s", name)
	}
	return fmt.Sprintf("params: %s not defined for atom type %s", e.Label, name)
}

// Matrix is a square parameter table indexed by type pair.
type Matrix struct {
	size int
	vals []float32
}

// NewMatrix returns a size×size matrix with every cell Unset.
func NewMatrix(size int) *Matrix {
	vals := make([]float32, size*size)
	for i := range vals {
		vals[i] = Unset
	}
	return &Matrix{size: size, vals: vals}
}

func (m *Matrix) Size() int { return m.size }

// Values is the row-major backing slice.
func (m *Matrix) Values() []float32 { return m.vals }

func (m *Matrix) At(i, j int) float32 { return m.vals[i*m.size+j] }

func (m *Matrix) Set(i, j int, v float32) { m.vals[i*m.size+j] = v }

// SetSymmetric sets both (i, j) and (j, i).
func (m *Matrix) SetSymmetric(i, j int, v float32) {
	m.vals[i*m.size+j] = v
	m.vals[j*m.size+i] = v
}

func (m *Matrix) IsSet(i, j int) bool { return m.At(i, j) != Unset }

func (m *Matrix) Clone() *Matrix {
	c := &Matrix{size: m.size, vals: make([]float32, len(m.vals))}
	copy(c.vals, m.vals)
	return c
}

// Populate fills every unset off-diagonal cell from the diagonal with mix.
// An unset diagonal cell is a configuration error naming the type index. A
// cell set on only one side of the diagonal is mirrored to the other.
func (m *Matrix) Populate(mix MixFunc) error {
	for i := 0; i < m.size; i++ {
		if !m.IsSet(i, i) {
			return &MissingParameterError{Type: i}
		}
	}
	for i := 0; i < m.size; i++ {
		for j := i + 1; j < m.size; j++ {
			ij, ji := m.IsSet(i, j), m.IsSet(j, i)
			switch {
			case !ij && !ji:
				m.SetSymmetric(i, j, mix(m.At(i, i), m.At(j, j)))
			case ij && !ji:
				m.Set(j, i, m.At(i, j))
			case ji && !ij:
				m.Set(i, j, m.At(j, i))
			}
		}
	}
	return nil
}

// Resize returns a new newSize×newSize matrix holding the overlapping block
// of m. New cells are Unset.
func (m *Matrix) Resize(newSize int) (*Matrix, error) {
	if newSize < m.size {
		return nil, fmt.Errorf("%w: %d -> %d", ErrShrink, m.size, newSize)
	}
	r := NewMatrix(newSize)
	for i := 0; i < m.size; i++ {
		copy(r.vals[i*newSize:i*newSize+m.size], m.vals[i*m.size:(i+1)*m.size])
	}
	return r, nil
}

// Arithmetic is the Lorentz mean (a + b) / 2.
func Arithmetic(a, b float32) float32 { return (a + b) / 2 }

// Geometric is the Berthelot mean sqrt(a b).
func Geometric(a, b float32) float32 {
	return float32(math.Sqrt(float64(a) * float64(b)))
}
