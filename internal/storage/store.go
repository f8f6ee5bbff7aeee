// Package storage keeps finished runs on disk, one directory per run with a
// metadata.json and a thermo.csv time series.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/mdsim/internal/thermo"
)

var ErrBadSeries = errors.New("storage: malformed thermo series")

const (
	metadataFile = "metadata.json"
	thermoFile   = "thermo.csv"
)

var thermoHeader = []string{"turn", "temperature", "kinetic", "potential", "total"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// RunDir is the directory of a saved run.
func (s *Store) RunDir(runID string) string { return filepath.Join(s.baseDir, runID) }

type RunMetadata struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Turns      int64              `json:"turns"`
	FinalTurn  int64              `json:"final_turn"`
	Atoms      int                `json:"atoms"`
	Integrator string             `json:"integrator"`
	Backend    string             `json:"backend"`
	Fixes      []string           `json:"fixes"`
	Snapshot   string             `json:"snapshot,omitempty"`
	Elapsed    float64            `json:"elapsed_seconds"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Summarize fills the standard metrics of a thermo series.
func Summarize(series *thermo.Series) map[string]float64 {
	m := map[string]float64{}
	if series.Len() == 0 {
		return m
	}
	tMean, tStd := thermo.MeanStd(series.Temperatures())
	eMean, eStd := thermo.MeanStd(series.Energies())
	last := series.Samples[series.Len()-1]
	m["temperature_mean"] = tMean
	m["temperature_std"] = tStd
	m["energy_mean"] = eMean
	m["energy_std"] = eStd
	m["energy_drift"] = series.Drift()
	m["final_temperature"] = last.Temperature
	m["final_potential"] = last.Potential
	return m
}

// Save creates a new run directory for meta and series and returns its id.
// meta.ID and meta.Timestamp are assigned here.
func (s *Store) Save(meta RunMetadata, series *thermo.Series) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	now := time.Now()
	base := fmt.Sprintf("%s_%d", meta.Name, now.Unix())
	runID := base
	for n := 2; ; n++ {
		err := os.Mkdir(s.RunDir(runID), 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", err
		}
		runID = fmt.Sprintf("%s_%d", base, n)
	}
	runDir := s.RunDir(runID)

	meta.ID = runID
	meta.Timestamp = now
	if meta.Metrics == nil && series != nil {
		meta.Metrics = Summarize(series)
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if series == nil {
		return runID, nil
	}
	csvFile, err := os.Create(filepath.Join(runDir, thermoFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(thermoHeader); err != nil {
		return "", err
	}
	for _, smp := range series.Samples {
		row := []string{
			strconv.FormatInt(smp.Turn, 10),
			strconv.FormatFloat(smp.Temperature, 'g', -1, 64),
			strconv.FormatFloat(smp.Kinetic, 'g', -1, 64),
			strconv.FormatFloat(smp.Potential, 'g', -1, 64),
			strconv.FormatFloat(smp.Total(), 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return runID, w.Error()
}

// List returns the metadata of every saved run, oldest first. Directories
// without readable metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadSeries reads back the thermo series of a run.
func (s *Store) LoadSeries(runID string) (*thermo.Series, error) {
	file, err := os.Open(filepath.Join(s.RunDir(runID), thermoFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(thermoHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSeries, err)
	}

	series := &thermo.Series{}
	for i, record := range records {
		if i == 0 {
			continue
		}
		turn, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadSeries, i, err)
		}
		var vals [3]float64
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(record[j+1], 64); err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", ErrBadSeries, i, err)
			}
		}
		series.Add(thermo.Sample{Turn: turn, Temperature: vals[0], Kinetic: vals[1], Potential: vals[2]})
	}
	return series, nil
}
