package metrics

import (
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// MSD is the mean squared displacement since the first observed sample.
// Displacements are accumulated as minimum images between consecutive
// samples, so atoms must move less than half a cell between samples.
type MSD struct {
	prev map[int]md.Vec3
	disp map[int]md.Vec3
}

func NewMSD() *MSD {
	return &MSD{prev: make(map[int]md.Vec3), disp: make(map[int]md.Vec3)}
}

func (m *MSD) Name() string { return "msd" }

func (m *MSD) Observe(_ thermo.Sample, s *md.State) {
	for i := range s.Atoms {
		a := &s.Atoms[i]
		if p, ok := m.prev[a.ID]; ok {
			m.disp[a.ID] = m.disp[a.ID].Add(s.MinImage(p, a.Pos))
		} else {
			m.disp[a.ID] = md.Vec3{}
		}
		m.prev[a.ID] = a.Pos
	}
}

func (m *MSD) Value() float64 {
	if len(m.disp) == 0 {
		return 0
	}
	var sum float64
	for _, d := range m.disp {
		sum += d.Norm2()
	}
	return sum / float64(len(m.disp))
}

func (m *MSD) Reset() {
	m.prev = make(map[int]md.Vec3)
	m.disp = make(map[int]md.Vec3)
}
