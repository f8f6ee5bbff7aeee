package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/mdsim/internal/thermo"
)

func sampleSeries() *thermo.Series {
	s := &thermo.Series{}
	s.Add(thermo.Sample{Turn: 0, Temperature: 1.5, Kinetic: 3, Potential: -10})
	s.Add(thermo.Sample{Turn: 10, Temperature: 1.25, Kinetic: 2.5, Potential: -9.5})
	s.Add(thermo.Sample{Turn: 20, Temperature: 1, Kinetic: 2, Potential: -9})
	return s
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := RunMetadata{Name: "fluid", Seed: 42, Dt: 0.005, Turns: 20, Atoms: 64, Integrator: "verlet", Fixes: []string{"lj"}}
	runID, err := st.Save(meta, sampleSeries())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	got, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Name != "fluid" || got.Seed != 42 || got.Atoms != 64 {
		t.Errorf("unexpected metadata %+v", got)
	}
	if got.ID != runID {
		t.Errorf("expected id %q, got %q", runID, got.ID)
	}
	if math.Abs(got.Metrics["temperature_mean"]-1.25) > 1e-12 {
		t.Errorf("expected mean temperature 1.25, got %f", got.Metrics["temperature_mean"])
	}
	if math.Abs(got.Metrics["energy_drift"]) > 1e-12 {
		t.Errorf("expected zero drift, got %f", got.Metrics["energy_drift"])
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	want := sampleSeries()
	if series.Len() != want.Len() {
		t.Fatalf("expected %d samples, got %d", want.Len(), series.Len())
	}
	for i := range want.Samples {
		if series.Samples[i] != want.Samples[i] {
			t.Errorf("sample %d: expected %+v, got %+v", i, want.Samples[i], series.Samples[i])
		}
	}
}

func TestStoreList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list on missing dir failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	first, err := st.Save(RunMetadata{Name: "a"}, sampleSeries())
	if err != nil {
		t.Fatal(err)
	}
	second, err := st.Save(RunMetadata{Name: "a"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("run ids collide: %q", first)
	}
	if err := os.MkdirAll(filepath.Join(st.Dir(), "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if _, err := st.LoadSeries(second); err == nil {
		t.Error("expected an error for a run saved without a series")
	}
}

func TestLoadSeriesRejectsGarbage(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{Name: "bad"}, sampleSeries())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(st.RunDir(runID), thermoFile)
	if err := os.WriteFile(path, []byte("turn,temperature,kinetic,potential,total\nx,1,2,3,4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadSeries(runID); err == nil {
		t.Error("expected parse error")
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, RunMetadata{ID: "x_1", Name: "x"}, sampleSeries()); err != nil {
		t.Fatal(err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if data.Run.ID != "x_1" || len(data.Samples) != 3 {
		t.Errorf("unexpected export %+v", data)
	}
	if data.Samples[1].Temperature != 1.25 {
		t.Errorf("expected 1.25, got %f", data.Samples[1].Temperature)
	}
}
