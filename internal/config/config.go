package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDt           = 0.005
	DefaultTurns        = 1000
	DefaultTemperature  = 1.0
	DefaultCutoff       = 2.5
	DefaultPadding      = 0.5
	DefaultRebuildEvery = 10
	DefaultGamma        = 1.0
	DefaultThermoEvery  = 10
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Name        string           `yaml:"name"`
	Backend     string           `yaml:"backend"`
	Integrator  string           `yaml:"integrator"`
	Dt          float64          `yaml:"dt"`
	Turns       int64            `yaml:"turns"`
	Seed        int64            `yaml:"seed"`
	Dimension   int              `yaml:"dimension"`
	Periodic    []bool           `yaml:"periodic"`
	Box         BoxConfig        `yaml:"box"`
	Types       []TypeConfig     `yaml:"types"`
	Populate    []PopulateConfig `yaml:"populate"`
	Temperature float64          `yaml:"temperature"`
	Langevin    LangevinConfig   `yaml:"langevin"`
	Neighbor    NeighborConfig   `yaml:"neighbor"`
	Fixes       []FixConfig      `yaml:"fixes"`
	Output      OutputConfig     `yaml:"output"`
	Restart     string           `yaml:"restart,omitempty"`
}

type BoxConfig struct {
	Lo []float64 `yaml:"lo"`
	Hi []float64 `yaml:"hi"`
}

type TypeConfig struct {
	Handle string  `yaml:"handle"`
	Mass   float64 `yaml:"mass"`
}

// PopulateConfig places Count atoms of Type, either on a lattice ("grid") or
// by rejection sampling with a minimum separation ("random").
type PopulateConfig struct {
	Type    string  `yaml:"type"`
	Count   int     `yaml:"count"`
	Method  string  `yaml:"method"`
	MinDist float64 `yaml:"min_dist,omitempty"`
	Group   string  `yaml:"group,omitempty"`
}

type LangevinConfig struct {
	Gamma       float64   `yaml:"gamma"`
	Temperature float64   `yaml:"temperature"`
	Intervals   []int64   `yaml:"intervals,omitempty"`
	Temps       []float64 `yaml:"temps,omitempty"`
}

type NeighborConfig struct {
	Padding      float64 `yaml:"padding"`
	RebuildEvery int64   `yaml:"rebuild_every"`
	AutoRebuild  bool    `yaml:"auto_rebuild"`
}

// FixConfig describes one fix. Which fields apply depends on Type.
type FixConfig struct {
	Type       string             `yaml:"type"`
	Handle     string             `yaml:"handle"`
	Group      string             `yaml:"group,omitempty"`
	ApplyEvery int                `yaml:"apply_every,omitempty"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	Pairs      []PairConfig       `yaml:"pairs,omitempty"`
	Members    [][]int            `yaml:"members,omitempty"`
	Chain      bool               `yaml:"chain,omitempty"`
	Origin     []float64          `yaml:"origin,omitempty"`
	Normal     []float64          `yaml:"normal,omitempty"`
	Intervals  []int64            `yaml:"intervals,omitempty"`
	Temps      []float64          `yaml:"temps,omitempty"`
}

// PairConfig sets one cell of a pair fix's parameter matrix.
type PairConfig struct {
	Param string  `yaml:"param"`
	A     string  `yaml:"a"`
	B     string  `yaml:"b"`
	Value float64 `yaml:"value"`
}

type OutputConfig struct {
	Dir           string `yaml:"dir"`
	ThermoEvery   int64  `yaml:"thermo_every"`
	SnapshotEvery int64  `yaml:"snapshot_every,omitempty"`
	Format        string `yaml:"format,omitempty"`
	Compress      bool   `yaml:"compress,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:        "lj",
		Backend:     "auto",
		Integrator:  "verlet",
		Dt:          DefaultDt,
		Turns:       DefaultTurns,
		Dimension:   3,
		Periodic:    []bool{true, true, true},
		Box:         BoxConfig{Lo: []float64{0, 0, 0}, Hi: []float64{10, 10, 10}},
		Types:       []TypeConfig{{Handle: "A", Mass: 1}},
		Populate:    []PopulateConfig{{Type: "A", Count: 500, Method: "grid"}},
		Temperature: DefaultTemperature,
		Langevin: LangevinConfig{
			Gamma:       DefaultGamma,
			Temperature: DefaultTemperature,
		},
		Neighbor: NeighborConfig{
			Padding:      DefaultPadding,
			RebuildEvery: DefaultRebuildEvery,
			AutoRebuild:  true,
		},
		Fixes: []FixConfig{ljFix(DefaultCutoff, "A")},
		Output: OutputConfig{
			Dir:         "runs",
			ThermoEvery: DefaultThermoEvery,
			Format:      "base64",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields a run cannot start without.
func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalid, c.Dt)
	}
	if c.Turns < 0 {
		return fmt.Errorf("%w: turns must not be negative", ErrInvalid)
	}
	if c.Dimension != 2 && c.Dimension != 3 {
		return fmt.Errorf("%w: dimension must be 2 or 3, got %d", ErrInvalid, c.Dimension)
	}
	if len(c.Box.Lo) != 3 || len(c.Box.Hi) != 3 {
		return fmt.Errorf("%w: box lo and hi need three components", ErrInvalid)
	}
	if len(c.Periodic) != 0 && len(c.Periodic) != 3 {
		return fmt.Errorf("%w: periodic needs three flags", ErrInvalid)
	}
	if c.Restart == "" && len(c.Types) == 0 {
		return fmt.Errorf("%w: no atom types", ErrInvalid)
	}
	seen := make(map[string]bool)
	for _, f := range c.Fixes {
		if f.Type == "" || f.Handle == "" {
			return fmt.Errorf("%w: fix needs type and handle", ErrInvalid)
		}
		if seen[f.Handle] {
			return fmt.Errorf("%w: duplicate fix handle %q", ErrInvalid, f.Handle)
		}
		seen[f.Handle] = true
	}
	return nil
}

// PeriodicFlags returns the periodic flags, defaulting to fully periodic.
func (c *Config) PeriodicFlags() [3]bool {
	if len(c.Periodic) != 3 {
		return [3]bool{true, true, true}
	}
	return [3]bool{c.Periodic[0], c.Periodic[1], c.Periodic[2]}
}

// Vec3 converts a three component slice, returning zeros for anything else.
func Vec3(v []float64) [3]float64 {
	var out [3]float64
	if len(v) == 3 {
		copy(out[:], v)
	}
	return out
}
