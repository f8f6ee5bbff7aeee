// Package neighbor builds full neighbor lists with a skin distance.
//
// A list built with cutoff rc and padding p contains every pair closer than
// rc + p. It stays valid until some atom has moved more than p/2 since the
// build; IsDangerous reports that condition.
package neighbor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
)

var (
	ErrNotBuilt   = errors.New("neighbor: list has not been built")
	ErrBadCutoff  = errors.New("neighbor: cutoff must be positive")
	ErrAtomsMoved = errors.New("neighbor: atom count changed since build")
)

// List is a CSR neighbor list. Row i holds every j != i within the list
// radius, so each pair appears twice.
type List struct {
	cutoff  float64
	padding float64

	offsets   []int32
	neighbors []int32
	ref       []md.Vec3
	builds    int
}

func New() *List { return &List{} }

func (l *List) Cutoff() float64  { return l.cutoff }
func (l *List) Padding() float64 { return l.padding }
func (l *List) Builds() int      { return l.builds }
func (l *List) Built() bool      { return l.offsets != nil }

// Len is the number of rows.
func (l *List) Len() int {
	if l.offsets == nil {
		return 0
	}
	return len(l.offsets) - 1
}

// Neighbors returns row i.
func (l *List) Neighbors(i int) []int32 {
	return l.neighbors[l.offsets[i]:l.offsets[i+1]]
}

// Pairs returns each pair once with i < j.
func (l *List) Pairs() [][2]int32 {
	var out [][2]int32
	for i := 0; i < l.Len(); i++ {
		for _, j := range l.Neighbors(i) {
			if int32(i) < j {
				out = append(out, [2]int32{int32(i), j})
			}
		}
	}
	return out
}

// Positions returns the positions a kernel should see: the device view while
// a run is active, the host atoms otherwise.
func Positions(s *md.State) ([]md.Vec3, error) {
	if s.Device != nil {
		return s.Device.Pos.View()
	}
	pos := make([]md.Vec3, len(s.Atoms))
	for i := range s.Atoms {
		pos[i] = s.Atoms[i].Pos
	}
	return pos, nil
}

// Build rebuilds the list for radius cutoff + padding.
func (l *List) Build(ctx context.Context, s *md.State, cutoff, padding float64) error {
	if cutoff <= 0 || padding < 0 {
		return fmt.Errorf("%w: cutoff %g padding %g", ErrBadCutoff, cutoff, padding)
	}
	pos, err := Positions(s)
	if err != nil {
		return err
	}
	n := len(pos)
	rl := cutoff + padding
	rl2 := rl * rl

	visit := bruteForce(n)
	if g, ok := newGrid(s, pos, rl); ok {
		visit = g.visit
	}

	rows := make([][]int32, n)
	err = device.Launch(ctx, n, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			var row []int32
			visit(i, func(j int) {
				if j != i && s.MinImage(pos[i], pos[j]).Norm2() < rl2 {
					row = append(row, int32(j))
				}
			})
			rows[i] = row
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.offsets = make([]int32, n+1)
	total := 0
	for i, row := range rows {
		total += len(row)
		l.offsets[i+1] = int32(total)
	}
	l.neighbors = make([]int32, 0, total)
	for _, row := range rows {
		l.neighbors = append(l.neighbors, row...)
	}
	l.ref = append(l.ref[:0], pos...)
	l.cutoff = cutoff
	l.padding = padding
	l.builds++
	return nil
}

// MaxDisplacement is the largest distance any atom moved since the build.
func (l *List) MaxDisplacement(s *md.State) (float64, error) {
	if !l.Built() {
		return 0, ErrNotBuilt
	}
	pos, err := Positions(s)
	if err != nil {
		return 0, err
	}
	if len(pos) != len(l.ref) {
		return math.Inf(1), ErrAtomsMoved
	}
	var max2 float64
	for i := range pos {
		if d2 := s.MinImage(l.ref[i], pos[i]).Norm2(); d2 > max2 {
			max2 = d2
		}
	}
	return math.Sqrt(max2), nil
}

// IsDangerous reports whether an atom has moved more than half the padding,
// after which a pair may have entered the cutoff unseen.
func (l *List) IsDangerous(s *md.State) bool {
	d, err := l.MaxDisplacement(s)
	if err != nil {
		return true
	}
	return d > l.padding/2
}

func bruteForce(n int) func(int, func(int)) {
	return func(_ int, f func(int)) {
		for j := 0; j < n; j++ {
			f(j)
		}
	}
}
