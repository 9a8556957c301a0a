package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// WriteRaw dumps an extracted batch before any normalization. Columns are the
// union of every row's keys, sorted.
func (s *MasterStore) WriteRaw(ds domain.Dataset, r domain.DateRange, batch domain.RawBatch) (string, error) {
	name := fmt.Sprintf("%s_%s_to_%s.csv", ds, r.StartDate(), r.EndDate())
	path := filepath.Join(s.root, rawDir, name)

	cols := batch.Columns()
	err := writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(cols); err != nil {
			return err
		}
		rec := make([]string, len(cols))
		for _, row := range batch.Rows {
			for i, c := range cols {
				rec[i] = row[c]
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	return path, err
}

// WriteSummary stores the human-readable summary of a run.
func (s *MasterStore) WriteSummary(runID, text string) (string, error) {
	path := filepath.Join(s.root, logsDir, "pipeline_summary_"+runID+".txt")
	return path, s.writeText(path, text)
}

// WriteError records why a run failed.
func (s *MasterStore) WriteError(runID string, runErr error) (string, error) {
	path := filepath.Join(s.root, logsDir, "pipeline_error_"+runID+".txt")
	return path, s.writeText(path, fmt.Sprintf("run %s failed\n\n%v\n", runID, runErr))
}

func (s *MasterStore) writeText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
