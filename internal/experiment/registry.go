package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/integrator"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// IntegratorBuilder constructs an integrator for a configured run.
type IntegratorBuilder func(s *md.State, fixes *fix.List, cfg *config.Config, opts ...integrator.Option) (integrator.Integrator, error)

type Registry struct {
	integrators map[string]IntegratorBuilder
	fixes       *fix.Registry
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]IntegratorBuilder),
		fixes:       fix.NewRegistry(),
	}

	r.integrators["verlet"] = func(s *md.State, fixes *fix.List, _ *config.Config, opts ...integrator.Option) (integrator.Integrator, error) {
		return integrator.NewVerlet(s, fixes, opts...), nil
	}
	r.integrators["langevin"] = func(s *md.State, fixes *fix.List, cfg *config.Config, opts ...integrator.Option) (integrator.Integrator, error) {
		sched, err := Schedule(cfg.Langevin)
		if err != nil {
			return nil, err
		}
		l := integrator.NewLangevin(s, fixes, sched, cfg.Langevin.Gamma, cfg.Seed, opts...)
		return l, nil
	}

	return r
}

// Schedule turns the Langevin settings into a temperature schedule.
func Schedule(c config.LangevinConfig) (*thermo.Schedule, error) {
	if len(c.Intervals) > 0 {
		return thermo.Intervals(c.Intervals, c.Temps)
	}
	return thermo.Constant(c.Temperature), nil
}

func (r *Registry) Fixes() *fix.Registry { return r.fixes }

func (r *Registry) RegisterIntegrator(name string, b IntegratorBuilder) {
	r.integrators[name] = b
}

func (r *Registry) GetIntegrator(name string) (IntegratorBuilder, error) {
	b, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegrator, name)
	}
	return b, nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
