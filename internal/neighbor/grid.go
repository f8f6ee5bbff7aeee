package neighbor

import (
	"math"

	"github.com/san-kum/mdsim/internal/md"
)

// grid bins atoms into cells at least rl wide so each atom only checks its
// own and adjacent cells. Only orthogonal cells are binned.
type grid struct {
	n        [3]int
	periodic [3]bool
	cellOf   []int
	cells    [][]int
}

func newGrid(s *md.State, pos []md.Vec3, rl float64) (*grid, bool) {
	b := s.Bounds
	if !b.Valid() || !b.IsOrthogonal() {
		return nil, false
	}
	g := &grid{periodic: s.Periodic}
	for d := 0; d < 3; d++ {
		if d == 2 && s.Is2D {
			g.n[d] = 1
			g.periodic[d] = false
			continue
		}
		g.n[d] = int(math.Floor(b.Sides[d][d] / rl))
		if g.n[d] < 1 {
			g.n[d] = 1
		}
		if g.periodic[d] && g.n[d] < 3 {
			return nil, false
		}
	}
	total := g.n[0] * g.n[1] * g.n[2]
	if total < 2 {
		return nil, false
	}
	g.cells = make([][]int, total)
	g.cellOf = make([]int, len(pos))
	for i, p := range pos {
		if s.Is2D {
			p[2] = b.Lo[2]
		}
		f := b.Frac(b.Wrap(p, g.periodic))
		var c [3]int
		for d := 0; d < 3; d++ {
			c[d] = int(math.Floor(f[d] * float64(g.n[d])))
			if c[d] < 0 {
				c[d] = 0
			}
			if c[d] >= g.n[d] {
				c[d] = g.n[d] - 1
			}
		}
		idx := g.index(c)
		g.cellOf[i] = idx
		g.cells[idx] = append(g.cells[idx], i)
	}
	return g, true
}

func (g *grid) index(c [3]int) int {
	return (c[2]*g.n[1]+c[1])*g.n[0] + c[0]
}

func (g *grid) coords(idx int) [3]int {
	return [3]int{idx % g.n[0], (idx / g.n[0]) % g.n[1], idx / (g.n[0] * g.n[1])}
}

func (g *grid) visit(i int, f func(int)) {
	home := g.coords(g.cellOf[i])
	var lo, hi [3]int
	for d := 0; d < 3; d++ {
		lo[d], hi[d] = -1, 1
		if g.n[d] == 1 {
			lo[d], hi[d] = 0, 0
		}
	}
	for dz := lo[2]; dz <= hi[2]; dz++ {
		for dy := lo[1]; dy <= hi[1]; dy++ {
			for dx := lo[0]; dx <= hi[0]; dx++ {
				c := [3]int{home[0] + dx, home[1] + dy, home[2] + dz}
				ok := true
				for d := 0; d < 3; d++ {
					if c[d] >= 0 && c[d] < g.n[d] {
						continue
					}
					if !g.periodic[d] {
						ok = false
						break
					}
					c[d] = (c[d] + g.n[d]) % g.n[d]
				}
				if !ok {
					continue
				}
				for _, j := range g.cells[g.index(c)] {
					f(j)
				}
			}
		}
	}
}
