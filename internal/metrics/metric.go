// Package metrics accumulates scalar observables over the thermo samples of
// a run.
package metrics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

var ErrUnknownMetric = errors.New("metrics: unknown metric")

// Metric observes samples together with the host state they were measured
// on. Observe must not keep s.
type Metric interface {
	Name() string
	Observe(smp thermo.Sample, s *md.State)
	Value() float64
	Reset()
}

// Set fans samples out to several metrics.
type Set []Metric

func (ms Set) Observe(smp thermo.Sample, s *md.State) {
	for _, m := range ms {
		m.Observe(smp, s)
	}
}

func (ms Set) Values() map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

func (ms Set) Reset() {
	for _, m := range ms {
		m.Reset()
	}
}

var builders = map[string]func() Metric{
	"energy_drift_max": func() Metric { return NewEnergyDrift() },
	"potential_mean":   func() Metric { return NewPotentialMean() },
	"stability":        func() Metric { return NewStability(DefaultMaxSpeed) },
	"msd":              func() Metric { return NewMSD() },
}

// Names lists the metrics ByName knows.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ByName(names ...string) (Set, error) {
	set := make(Set, 0, len(names))
	for _, name := range names {
		build, ok := builders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
		}
		set = append(set, build())
	}
	return set, nil
}
