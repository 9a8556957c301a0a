// Package export writes the master datasets to an analyst-friendly XLSX
// workbook with one sheet per dataset.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/tealeg/xlsx/v2"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// Workbook writes weather and collisions to path as two sheets. Column names
// and cell text match the master CSV files; numeric cells are typed as
// numbers.
func Workbook(path string, weather []domain.WeatherRecord, collisions []domain.CollisionRecord) error {
	f := xlsx.NewFile()

	wrows, err := tabulate(weather)
	if err != nil {
		return fmt.Errorf("tabulate weather: %w", err)
	}
	if err := addSheet(f, string(domain.WeatherDataset), wrows); err != nil {
		return err
	}

	crows, err := tabulate(collisions)
	if err != nil {
		return fmt.Errorf("tabulate collisions: %w", err)
	}
	if err := addSheet(f, string(domain.CollisionDataset), crows); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}

// tabulate renders recs through the master CSV codec into a header row
// followed by one string row per record.
func tabulate[T any](recs []T) ([][]string, error) {
	if len(recs) == 0 {
		var zero T
		header, err := csvutil.Header(zero, "csv")
		if err != nil {
			return nil, err
		}
		return [][]string{header}, nil
	}

	data, err := csvutil.Marshal(recs)
	if err != nil {
		return nil, err
	}
	return csv.NewReader(bytes.NewReader(data)).ReadAll()
}

func addSheet(f *xlsx.File, name string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return fmt.Errorf("xlsx: add sheet %s: %w", name, err)
	}
	for i, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			cell := row.AddCell()
			if i > 0 {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(n)
					continue
				}
			}
			cell.SetString(v)
		}
	}
	return nil
}
