package thermo

import (
	"gonum.org/v1/gonum/stat"
)

// Sample is one recorded turn of thermodynamic data.
type Sample struct {
	Turn        int64   `json:"turn"`
	Temperature float64 `json:"temperature"`
	Kinetic     float64 `json:"kinetic"`
	Potential   float64 `json:"potential"`
}

func (s Sample) Total() float64 { return s.Kinetic + s.Potential }

// Series accumulates samples over a run.
type Series struct {
	Samples []Sample
}

func (s *Series) Add(sample Sample) { s.Samples = append(s.Samples, sample) }

func (s *Series) Len() int { return len(s.Samples) }

// Column extracts one observable from every sample.
func (s *Series) Column(f func(Sample) float64) []float64 {
	out := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = f(smp)
	}
	return out
}

// Temperatures is the temperature column.
func (s *Series) Temperatures() []float64 {
	return s.Column(func(x Sample) float64 { return x.Temperature })
}

// Energies is the total energy column.
func (s *Series) Energies() []float64 {
	return s.Column(Sample.Total)
}

// MeanStd returns the mean and sample standard deviation of the column.
func MeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// Drift is the relative change of the total energy from the first to the
// last sample.
func (s *Series) Drift() float64 {
	if len(s.Samples) < 2 {
		return 0
	}
	e0 := s.Samples[0].Total()
	e1 := s.Samples[len(s.Samples)-1].Total()
	if e0 == 0 {
		return e1 - e0
	}
	return (e1 - e0) / e0
}
