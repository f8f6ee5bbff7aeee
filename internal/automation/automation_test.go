package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/storage"
)

func smallBase(dir string) BaseFunc {
	return func() (*config.Config, error) {
		cfg := config.DefaultConfig()
		cfg.Name = "small"
		cfg.Backend = "host"
		cfg.Seed = 5
		cfg.Turns = 40
		cfg.Box = config.BoxConfig{Lo: []float64{0, 0, 0}, Hi: []float64{5, 5, 5}}
		cfg.Populate = []config.PopulateConfig{{Type: "A", Count: 27, Method: "grid"}}
		cfg.Output.Dir = dir
		cfg.Output.ThermoEvery = 10
		return cfg, nil
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScenarioContinues(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	base, _ := smallBase(dir)()
	cfgPath := filepath.Join(dir, "base.yaml")
	g.Expect(config.Save(cfgPath, base)).To(Succeed())

	scPath := filepath.Join(dir, "scenario.yaml")
	writeFile(t, scPath, `
name: anneal
config: `+cfgPath+`
steps:
  - name: equilibrate
    integrator: langevin
    turns: 30
    params:
      langevin_temperature: 1.5
      gamma: 2
  - name: production
    turns: 20
    continue: true
`)
	sc, err := LoadScenario(scPath)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sc.Steps).To(HaveLen(2))

	r := NewRunner(logr.Discard())
	r.Store = storage.New(filepath.Join(dir, "store"))
	results, err := r.RunScenario(context.Background(), sc)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(2))

	g.Expect(results[0].Step).To(Equal("anneal_equilibrate"))
	g.Expect(results[0].Result.Snapshot).To(Equal(filepath.Join(dir, "anneal_equilibrate.xml")))
	g.Expect(results[0].Metadata.Integrator).To(Equal("langevin"))
	g.Expect(results[1].Result.FinalTurn).To(Equal(int64(50)))
	g.Expect(results[1].Metadata.Integrator).To(Equal("verlet"))
	g.Expect(results[1].Metadata.ID).NotTo(BeEmpty())

	runs, err := r.Store.List()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(runs).To(HaveLen(2))
}

func TestScenarioErrors(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	r := NewRunner(logr.Discard())

	_, err := r.RunScenario(context.Background(), &Scenario{})
	g.Expect(err).To(MatchError(ErrEmptyScenario))

	_, err = r.RunScenario(context.Background(), &Scenario{Steps: []Step{{Continue: true}}})
	g.Expect(err).To(MatchError(ErrNoSnapshot))

	_, err = r.RunScenario(context.Background(), &Scenario{Steps: []Step{{Params: map[string]float64{"viscosity": 1}}}})
	g.Expect(err).To(MatchError(ErrUnknownParam))

	_, err = (&Scenario{Preset: "lj/plasma"}).Base()
	g.Expect(err).To(MatchError(ErrUnknownParam))

	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "name: nothing\n")
	_, err = LoadScenario(empty)
	g.Expect(err).To(MatchError(ErrEmptyScenario))
}

func TestScenarioPreset(t *testing.T) {
	g := NewWithT(t)
	cfg, err := (&Scenario{Preset: "polymer/chain"}).Base()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Name).To(Equal("polymer"))

	cfg, err = (&Scenario{}).Base()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Integrator).To(Equal("verlet"))
}

func TestApply(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Langevin.Intervals = []int64{0, 10}
	cfg.Langevin.Temps = []float64{1, 2}
	g.Expect(Apply(cfg, map[string]float64{"dt": 0.001, "turns": 7, "langevin_temperature": 3})).To(Succeed())
	g.Expect(cfg.Dt).To(Equal(0.001))
	g.Expect(cfg.Turns).To(Equal(int64(7)))
	g.Expect(cfg.Langevin.Temperature).To(Equal(3.0))
	g.Expect(cfg.Langevin.Intervals).To(BeNil())
	g.Expect(Params()).To(ContainElement("padding"))
}

func TestSweep(t *testing.T) {
	g := NewWithT(t)
	g.Expect(Sweep{Min: 1, Max: 2, Steps: 3}.Values()).To(Equal([]float64{1, 1.5, 2}))
	g.Expect(Sweep{Min: 4, Max: 9, Steps: 1}.Values()).To(Equal([]float64{4}))

	r := NewRunner(logr.Discard())
	r.Metrics = []string{"potential_mean"}
	results, err := r.RunSweep(context.Background(), smallBase(t.TempDir()), Sweep{Param: "temperature", Min: 0.5, Max: 1.5, Steps: 2})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(2))
	for _, res := range results {
		g.Expect(res.Err).NotTo(HaveOccurred())
		g.Expect(res.Metrics).To(HaveKey("potential_mean"))
	}
	g.Expect(results[1].Metrics["temperature_mean"]).To(BeNumerically(">", results[0].Metrics["temperature_mean"]))

	_, err = r.RunSweep(context.Background(), smallBase(t.TempDir()), Sweep{Param: "colour", Steps: 2})
	g.Expect(err).To(MatchError(ErrUnknownParam))
	_, err = r.RunSweep(context.Background(), smallBase(t.TempDir()), Sweep{Param: "dt"})
	g.Expect(err).To(MatchError(ErrBadSweep))
}

func TestTrials(t *testing.T) {
	g := NewWithT(t)
	r := NewRunner(logr.Discard())
	results, err := r.RunTrials(context.Background(), smallBase(t.TempDir()), 3, 99)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(3))
	g.Expect(results[0].Seed).NotTo(Equal(results[1].Seed))
	for _, res := range results {
		g.Expect(res.FinalTurn).To(Equal(int64(40)))
	}
	stable, unstable := TrialStats(results)
	g.Expect(stable).To(Equal(3))
	g.Expect(unstable).To(Equal(0))

	again, err := r.RunTrials(context.Background(), smallBase(t.TempDir()), 1, 99)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again[0].Seed).To(Equal(results[0].Seed))
}

func TestRunConfigBaseError(t *testing.T) {
	g := NewWithT(t)
	r := NewRunner(logr.Discard())
	failing := func() (*config.Config, error) { return nil, errors.New("no config") }
	_, err := r.RunTrials(context.Background(), failing, 1, 1)
	g.Expect(err).To(MatchError("no config"))

	r.Metrics = []string{"entropy"}
	cfg, _ := smallBase(t.TempDir())()
	_, _, err = r.RunConfig(context.Background(), cfg)
	g.Expect(err).To(HaveOccurred())
}
