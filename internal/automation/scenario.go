package automation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/experiment"
	"github.com/san-kum/mdsim/internal/storage"
)

// Scenario is a scripted sequence of runs sharing one base config, such as
// an equilibration followed by a production run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Config is a config file path; Preset a family/name pair. Config wins.
	Config string `yaml:"config,omitempty"`
	Preset string `yaml:"preset,omitempty"`
	Steps  []Step `yaml:"steps"`
}

// Step overrides parts of the base config for one run.
type Step struct {
	Name       string             `yaml:"name"`
	Integrator string             `yaml:"integrator,omitempty"`
	Turns      int64              `yaml:"turns"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	// Continue restarts from the last configuration of the previous step.
	Continue bool `yaml:"continue,omitempty"`
}

type StepResult struct {
	Step     string
	Result   *experiment.Result
	Metadata storage.RunMetadata
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, ErrEmptyScenario
	}
	return &scenario, nil
}

// Base builds a fresh copy of the scenario's starting config.
func (sc *Scenario) Base() (*config.Config, error) {
	switch {
	case sc.Config != "":
		return config.Load(sc.Config)
	case sc.Preset != "":
		family, variant, _ := strings.Cut(sc.Preset, "/")
		cfg := config.GetPreset(family, variant)
		if cfg == nil {
			return nil, fmt.Errorf("%w: preset %q", ErrUnknownParam, sc.Preset)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func (sc *Scenario) stepConfig(i int) (*config.Config, error) {
	step := sc.Steps[i]
	cfg, err := sc.Base()
	if err != nil {
		return nil, err
	}
	name := step.Name
	if name == "" {
		name = fmt.Sprintf("step%d", i+1)
	}
	if sc.Name != "" {
		name = sc.Name + "_" + name
	}
	cfg.Name = name
	if step.Integrator != "" {
		cfg.Integrator = step.Integrator
	}
	if step.Turns > 0 {
		cfg.Turns = step.Turns
	}
	if err := Apply(cfg, step.Params); err != nil {
		return nil, err
	}
	// the next step restarts from this one's last configuration
	if i+1 < len(sc.Steps) && sc.Steps[i+1].Continue && cfg.Output.SnapshotEvery <= 0 {
		cfg.Output.SnapshotEvery = cfg.Turns
	}
	return cfg, nil
}

// RunScenario runs the steps in order and stops at the first failure.
func (r *Runner) RunScenario(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	if len(sc.Steps) == 0 {
		return nil, ErrEmptyScenario
	}
	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		cfg, err := sc.stepConfig(i)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		if step.Continue {
			if i == 0 || results[i-1].Result.Snapshot == "" {
				return results, fmt.Errorf("step %d: %w", i+1, ErrNoSnapshot)
			}
			cfg.Restart = results[i-1].Result.Snapshot
		}
		r.Log.Info("scenario step", "step", i+1, "of", len(sc.Steps), "name", cfg.Name, "turns", cfg.Turns)

		res, meta, err := r.RunConfig(ctx, cfg)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		results = append(results, StepResult{Step: cfg.Name, Result: res, Metadata: meta})
	}
	return results, nil
}
