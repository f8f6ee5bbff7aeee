package metrics

import (
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// DefaultMaxSpeed flags a sample in reduced units once any atom moves faster.
const DefaultMaxSpeed = 50.0

// Stability is the fraction of samples in which every atom has a finite
// velocity no faster than the threshold.
type Stability struct {
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{threshold: threshold}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(_ thermo.Sample, st *md.State) {
	s.samples++
	limit := s.threshold * s.threshold
	for i := range st.Atoms {
		v := st.Atoms[i].Vel
		if !v.IsFinite() || v.Norm2() > limit {
			s.violations++
			return
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
