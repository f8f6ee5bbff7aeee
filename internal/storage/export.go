package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/mdsim/internal/thermo"
)

type ExportData struct {
	Run     RunMetadata     `json:"run"`
	Samples []thermo.Sample `json:"samples"`
}

// ExportJSON writes a run and its series as one indented JSON document.
func ExportJSON(w io.Writer, meta RunMetadata, series *thermo.Series) error {
	data := ExportData{Run: meta}
	if series != nil {
		data.Samples = series.Samples
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSONFile(path string, meta RunMetadata, series *thermo.Series) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ExportJSON(file, meta, series); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
