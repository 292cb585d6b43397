// Package contacts parses uploaded contact lists into the ordered
// field-map rows the campaign scheduler consumes. The first row names
// the fields; row order is processing order.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyFile is returned when the upload has no header row
var ErrEmptyFile = errors.New("contact file is empty")

// Parse reads a CSV contact list. Ragged rows are tolerated: missing
// trailing cells are simply absent from the row's field map. Rows with
// no non-empty cell are dropped.
func Parse(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}

		row := make(map[string]string, len(header))
		empty := true
		for i, name := range header {
			if name == "" || i >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[i])
			row[name] = value
			if value != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}
