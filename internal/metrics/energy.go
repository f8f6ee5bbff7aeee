package metrics

import (
	"math"

	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// PotentialMean is the potential energy per atom averaged over samples.
type PotentialMean struct {
	total   float64
	samples int
}

func NewPotentialMean() *PotentialMean { return &PotentialMean{} }

func (p *PotentialMean) Name() string { return "potential_mean" }

func (p *PotentialMean) Observe(smp thermo.Sample, s *md.State) {
	if len(s.Atoms) == 0 {
		return
	}
	p.total += smp.Potential / float64(len(s.Atoms))
	p.samples++
}

func (p *PotentialMean) Value() float64 {
	if p.samples == 0 {
		return 0
	}
	return p.total / float64(p.samples)
}

func (p *PotentialMean) Reset() { *p = PotentialMean{} }

// EnergyDrift is the largest relative deviation of the total energy from the
// first observed sample.
type EnergyDrift struct {
	initial  float64
	maxDrift float64
	samples  int
}

func NewEnergyDrift() *EnergyDrift { return &EnergyDrift{} }

func (e *EnergyDrift) Name() string { return "energy_drift_max" }

func (e *EnergyDrift) Observe(smp thermo.Sample, _ *md.State) {
	energy := smp.Total()
	if e.samples == 0 {
		e.initial = energy
	}
	e.samples++
	if e.initial != 0 {
		drift := math.Abs(energy-e.initial) / math.Abs(e.initial)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

func (e *EnergyDrift) Reset() { *e = EnergyDrift{} }
