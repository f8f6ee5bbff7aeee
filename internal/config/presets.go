package config

import (
	"math"
	"sort"
)

// Presets maps a system family to its named variants. Each entry builds a
// fresh config so callers may edit the result.
var Presets = map[string]map[string]func() *Config{
	"lj": {
		"fluid":    func() *Config { return ljSystem(864, 0.8, 1.0) },
		"gas":      func() *Config { return ljSystem(256, 0.05, 2.0) },
		"solid":    func() *Config { return ljSystem(500, 1.05, 0.1) },
		"langevin": ljLangevin,
		"anneal":   ljAnneal,
	},
	"lj2d": {
		"disk": ljDisk,
	},
	"binary": {
		"mixture": binaryMixture,
	},
	"polymer": {
		"chain": func() *Config { return polymer(false) },
		"wall":  func() *Config { return polymer(true) },
	},
	"thermostat": {
		"rescale": rescaled,
	},
}

func GetPreset(family, preset string) *Config {
	variants, ok := Presets[family]
	if !ok {
		return nil
	}
	build, ok := variants[preset]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(family string) []string {
	variants, ok := Presets[family]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Families lists the preset families in name order.
func Families() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ljFix(rc float64, types ...string) FixConfig {
	f := FixConfig{
		Type:   "lj_cut",
		Handle: "lj",
		Group:  "all",
		Params: map[string]float64{"rcut": rc},
	}
	for _, t := range types {
		f.Pairs = append(f.Pairs,
			PairConfig{Param: "eps", A: t, B: t, Value: 1},
			PairConfig{Param: "sig", A: t, B: t, Value: 1},
		)
	}
	return f
}

func cubeSide(n int, density float64, dims int) float64 {
	v := float64(n) / density
	if dims == 2 {
		return math.Sqrt(v)
	}
	return math.Cbrt(v)
}

func ljSystem(n int, density, temp float64) *Config {
	cfg := DefaultConfig()
	side := cubeSide(n, density, 3)
	cfg.Box = BoxConfig{Lo: []float64{0, 0, 0}, Hi: []float64{side, side, side}}
	cfg.Temperature = temp
	if n > 0 {
		cfg.Populate = []PopulateConfig{{Type: "A", Count: n, Method: "grid"}}
	}
	return cfg
}

func polymer(wall bool) *Config {
	cfg := DefaultConfig()
	cfg.Name = "polymer"
	cfg.Dt = 0.002
	cfg.Box = BoxConfig{Lo: []float64{0, 0, 0}, Hi: []float64{12, 12, 12}}
	cfg.Temperature = 0.5
	cfg.Populate = []PopulateConfig{{Type: "A", Count: 64, Method: "grid", Group: "chain"}}
	cfg.Fixes = []FixConfig{
		ljFix(DefaultCutoff, "A"),
		{Type: "bond_harmonic", Handle: "bonds", Group: "chain", Chain: true,
			Params: map[string]float64{"k": 100, "r0": 1.5}},
		{Type: "angle_harmonic", Handle: "angles", Group: "chain", Chain: true,
			Params: map[string]float64{"k": 10, "theta0": 2.0}},
		{Type: "dihedral_opls", Handle: "dihedrals", Group: "chain", Chain: true,
			Params: map[string]float64{"c1": 1, "c2": -0.5, "c3": 0.5, "c4": 0}},
	}
	if wall {
		cfg.Periodic = []bool{true, true, false}
		cfg.Fixes = append(cfg.Fixes,
			FixConfig{Type: "wall_harmonic", Handle: "floor", Group: "all",
				Origin: []float64{0, 0, 0}, Normal: []float64{0, 0, 1},
				Params: map[string]float64{"k": 50, "cutoff": 1}},
			FixConfig{Type: "wall_harmonic", Handle: "ceiling", Group: "all",
				Origin: []float64{0, 0, 12}, Normal: []float64{0, 0, -1},
				Params: map[string]float64{"k": 50, "cutoff": 1}},
		)
	}
	return cfg
}

func ljLangevin() *Config {
	cfg := ljSystem(500, 0.8, 1.0)
	cfg.Integrator = "langevin"
	cfg.Langevin = LangevinConfig{Gamma: 1.0, Temperature: 1.2}
	return cfg
}

func ljAnneal() *Config {
	cfg := ljSystem(500, 0.8, 2.0)
	cfg.Integrator = "langevin"
	cfg.Turns = 4000
	cfg.Langevin = LangevinConfig{
		Gamma:     0.5,
		Intervals: []int64{0, 1000, 3000},
		Temps:     []float64{2.0, 2.0, 0.2},
	}
	return cfg
}

func ljDisk() *Config {
	cfg := ljSystem(400, 0.7, 0.5)
	cfg.Name = "lj2d"
	cfg.Dimension = 2
	side := cubeSide(400, 0.7, 2)
	cfg.Box = BoxConfig{Lo: []float64{0, 0, 0}, Hi: []float64{side, side, 0}}
	return cfg
}

func binaryMixture() *Config {
	cfg := ljSystem(0, 0.8, 1.0)
	cfg.Name = "binary"
	side := cubeSide(500, 0.8, 3)
	cfg.Box = BoxConfig{Lo: []float64{0, 0, 0}, Hi: []float64{side, side, side}}
	cfg.Types = []TypeConfig{{Handle: "A", Mass: 1}, {Handle: "B", Mass: 2}}
	cfg.Populate = []PopulateConfig{
		{Type: "A", Count: 400, Method: "random", MinDist: 0.8},
		{Type: "B", Count: 100, Method: "random", MinDist: 0.8, Group: "heavy"},
	}
	lj := ljFix(DefaultCutoff, "A", "B")
	lj.Pairs = append(lj.Pairs, PairConfig{Param: "eps", A: "A", B: "B", Value: 0.5})
	cfg.Fixes = []FixConfig{lj}
	return cfg
}

func rescaled() *Config {
	cfg := ljSystem(500, 0.8, 0.5)
	cfg.Fixes = append(cfg.Fixes, FixConfig{
		Type:       "nvt_rescale",
		Handle:     "thermo",
		Group:      "all",
		ApplyEvery: 10,
		Intervals:  []int64{0, 500, 1000},
		Temps:      []float64{0.5, 1.5, 1.5},
	})
	return cfg
}
