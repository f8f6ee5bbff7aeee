package tui

import (
	"strings"

	"github.com/san-kum/mdsim/internal/md"
)

// Canvas is a character grid onto which atoms are projected along z.
type Canvas struct {
	w, h   int
	cells  [][]rune
	counts [][]int
}

func NewCanvas(w, h int) *Canvas {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	c := &Canvas{w: w, h: h, cells: make([][]rune, h), counts: make([][]int, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
		c.counts[i] = make([]int, w)
	}
	c.Clear()
	return c
}

func (c *Canvas) Size() (w, h int) { return c.w, c.h }

func (c *Canvas) Clear() {
	for y := range c.cells {
		for x := range c.cells[y] {
			c.cells[y][x] = ' '
			c.counts[y][x] = 0
		}
	}
}

func (c *Canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *Canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// cell maps p to a grid cell through the fractional x and y coordinates of b.
// Row 0 is the top of the cell.
func (c *Canvas) cell(b md.Bounds, p md.Vec3) (x, y int, ok bool) {
	f := b.Frac(p)
	if f[0] < 0 || f[0] > 1 || f[1] < 0 || f[1] > 1 {
		return 0, 0, false
	}
	x = min(int(f[0]*float64(c.w)), c.w-1)
	y = c.h - 1 - min(int(f[1]*float64(c.h)), c.h-1)
	return x, y, true
}

// Draw clears the grid and projects s onto it. Bonds that do not cross a
// periodic boundary are drawn as dotted lines beneath the atoms.
func (c *Canvas) Draw(s *md.State) {
	c.Clear()
	if !s.Bounds.Valid() {
		return
	}
	for _, b := range s.Bonds {
		i, ok1 := s.IndexOf(b.IDs[0])
		j, ok2 := s.IndexOf(b.IDs[1])
		if !ok1 || !ok2 {
			continue
		}
		pi, pj := s.Atoms[i].Pos, s.Atoms[j].Pos
		direct := pj.Sub(pi)
		if s.MinImage(pi, pj).Sub(direct).Norm2() > 1e-12 {
			continue
		}
		x1, y1, ok1 := c.cell(s.Bounds, pi)
		x2, y2, ok2 := c.cell(s.Bounds, pj)
		if ok1 && ok2 {
			c.line(x1, y1, x2, y2, '·')
		}
	}
	for i := range s.Atoms {
		x, y, ok := c.cell(s.Bounds, s.Atoms[i].Pos)
		if !ok {
			continue
		}
		c.counts[y][x]++
		c.cells[y][x] = glyph(c.counts[y][x])
	}
}

// glyph grows with the number of atoms stacked in one cell.
func glyph(n int) rune {
	switch {
	case n <= 1:
		return '∘'
	case n == 2:
		return '○'
	}
	return '●'
}

func (c *Canvas) Rows() []string {
	rows := make([]string, c.h)
	for i, row := range c.cells {
		rows[i] = string(row)
	}
	return rows
}

func (c *Canvas) String() string { return strings.Join(c.Rows(), "\n") }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
