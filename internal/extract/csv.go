// Package extract reads the source CSV files into raw row sets. Rows keep
// every column present in the file so columns beyond the required set pass
// through the pipeline untransformed.
package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"retl/internal/model"
)

// ReadFile reads one CSV file with a header row.
func ReadFile(path string) ([]model.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// Read parses CSV content from r. The first record is the header; field
// counts are not enforced so ragged rows surface as quality issues
// downstream instead of failing the whole extract.
func Read(r io.Reader) ([]model.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []model.RawRow
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				fields[name] = rec[i]
			}
		}
		rows = append(rows, model.RawRow{Line: line, Fields: fields})
	}
	return rows, nil
}
