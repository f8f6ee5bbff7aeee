package fix

import (
	"fmt"
	"sort"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

// Constructor builds a fix from its configuration. It may add topology to s.
type Constructor func(s *md.State, b device.Backend, cfg config.FixConfig) (Fix, error)

// Registry maps fix type tags to constructors.
type Registry struct {
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register(TypeLJCut, buildLJCut)
	r.Register(TypeBondHarmonic, buildBondHarmonic)
	r.Register(TypeAngleHarmonic, buildAngleHarmonic)
	r.Register(TypeDihedralOPLS, buildDihedralOPLS)
	r.Register(TypeWallHarmonic, buildWallHarmonic)
	r.Register(TypeNVTRescale, buildNVTRescale)
	return r
}

// Register adds or replaces the constructor for typ.
func (r *Registry) Register(typ string, c Constructor) {
	r.ctors[typ] = c
}

func (r *Registry) Build(s *md.State, b device.Backend, cfg config.FixConfig) (Fix, error) {
	c, ok := r.ctors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFixType, cfg.Type)
	}
	return c(s, b, cfg)
}

func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func param(cfg config.FixConfig, key string, def float64) float64 {
	if v, ok := cfg.Params[key]; ok {
		return v
	}
	return def
}

func buildLJCut(s *md.State, b device.Backend, cfg config.FixConfig) (Fix, error) {
	f, err := NewLJCut(s, b, cfg.Handle, cfg.Group, param(cfg, "rcut", config.DefaultCutoff))
	if err != nil {
		return nil, err
	}
	f.SetApplyEvery(cfg.ApplyEvery)
	for _, p := range cfg.Pairs {
		if err := f.SetParameter(p.Param, p.A, p.B, p.Value); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// chainMembers returns runs of n consecutive atom ids of group in id order.
func chainMembers(s *md.State, group string, n int) ([][]int, error) {
	if group == "" {
		group = md.GroupAll
	}
	tag, err := s.GroupTag(group)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, idx := range s.GroupIndices(tag) {
		ids = append(ids, s.Atoms[idx].ID)
	}
	sort.Ints(ids)
	var out [][]int
	for i := 0; i+n <= len(ids); i++ {
		out = append(out, ids[i:i+n])
	}
	return out, nil
}

func topology(s *md.State, cfg config.FixConfig, n int) ([][]int, error) {
	members := cfg.Members
	if cfg.Chain {
		chain, err := chainMembers(s, cfg.Group, n)
		if err != nil {
			return nil, err
		}
		members = append(members, chain...)
	}
	for _, m := range members {
		if len(m) != n {
			return nil, &ConfigError{Type: cfg.Type, Handle: cfg.Handle,
				Reason: fmt.Sprintf("member list %v needs %d atom ids", m, n)}
		}
	}
	return members, nil
}

func buildBondHarmonic(s *md.State, _ device.Backend, cfg config.FixConfig) (Fix, error) {
	f, err := NewBondHarmonic(s, cfg.Handle, cfg.Group)
	if err != nil {
		return nil, err
	}
	f.SetApplyEvery(cfg.ApplyEvery)
	members, err := topology(s, cfg, 2)
	if err != nil {
		return nil, err
	}
	k, r0 := param(cfg, "k", 1), param(cfg, "r0", 1)
	for _, m := range members {
		if err := f.CreateBond(m[0], m[1], k, r0); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func buildAngleHarmonic(s *md.State, _ device.Backend, cfg config.FixConfig) (Fix, error) {
	f, err := NewAngleHarmonic(s, cfg.Handle, cfg.Group)
	if err != nil {
		return nil, err
	}
	f.SetApplyEvery(cfg.ApplyEvery)
	members, err := topology(s, cfg, 3)
	if err != nil {
		return nil, err
	}
	k, theta0 := param(cfg, "k", 1), param(cfg, "theta0", 0)
	for _, m := range members {
		if err := f.CreateAngle(m[0], m[1], m[2], k, theta0); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func buildDihedralOPLS(s *md.State, _ device.Backend, cfg config.FixConfig) (Fix, error) {
	f, err := NewDihedralOPLS(s, cfg.Handle, cfg.Group)
	if err != nil {
		return nil, err
	}
	f.SetApplyEvery(cfg.ApplyEvery)
	members, err := topology(s, cfg, 4)
	if err != nil {
		return nil, err
	}
	coefs := [4]float64{param(cfg, "c1", 0), param(cfg, "c2", 0), param(cfg, "c3", 0), param(cfg, "c4", 0)}
	for _, m := range members {
		if err := f.CreateDihedral([4]int{m[0], m[1], m[2], m[3]}, coefs); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func buildWallHarmonic(s *md.State, _ device.Backend, cfg config.FixConfig) (Fix, error) {
	if len(cfg.Origin) != 3 || len(cfg.Normal) != 3 {
		return nil, &ConfigError{Type: cfg.Type, Handle: cfg.Handle, Reason: "origin and normal need three components"}
	}
	f, err := NewWallHarmonic(s, cfg.Handle, cfg.Group,
		md.Vec3(config.Vec3(cfg.Origin)), md.Vec3(config.Vec3(cfg.Normal)),
		param(cfg, "k", 1), param(cfg, "cutoff", 1))
	if err != nil {
		return nil, err
	}
	f.SetApplyEvery(cfg.ApplyEvery)
	return f, nil
}

func buildNVTRescale(s *md.State, _ device.Backend, cfg config.FixConfig) (Fix, error) {
	var sched *thermo.Schedule
	if len(cfg.Intervals) > 0 {
		var err error
		if sched, err = thermo.Intervals(cfg.Intervals, cfg.Temps); err != nil {
			return nil, err
		}
	} else {
		t, ok := cfg.Params["temperature"]
		if !ok {
			return nil, &ConfigError{Type: cfg.Type, Handle: cfg.Handle, Reason: "needs intervals or a temperature"}
		}
		sched = thermo.Constant(t)
	}
	return NewNVTRescale(s, cfg.Handle, cfg.Group, cfg.ApplyEvery, sched)
}
