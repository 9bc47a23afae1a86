// Package stats computes descriptive and paired statistics over the
// integrated table and renders them as console tables and CSV files.
package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vanderlab/textstudy/internal/ingest"
	"github.com/vanderlab/textstudy/internal/model"
)

// Dataset is a loaded CSV table addressed by column name.
type Dataset struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadTable loads a delimited table. Numbers may use a decimal comma.
func ReadTable(r io.Reader, sep rune) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("read table: empty input")
	}
	ds := &Dataset{Header: records[0], Rows: records[1:], index: map[string]int{}}
	for i, name := range ds.Header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		ds.Header[i] = name
		if _, dup := ds.index[name]; !dup {
			ds.index[name] = i
		}
	}
	return ds, nil
}

// LoadTable opens path and reads it with ReadTable.
func LoadTable(path string, sep rune) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			_ = cerr
		}
	}()
	ds, err := ReadTable(file, sep)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Has reports whether the column exists.
func (d *Dataset) Has(col string) bool {
	_, ok := d.index[col]
	return ok
}

// Value returns the raw cell, or "" when the row is short or the column
// does not exist.
func (d *Dataset) Value(row int, col string) string {
	i, ok := d.index[col]
	if !ok || row < 0 || row >= len(d.Rows) || i >= len(d.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(d.Rows[row][i])
}

// Num parses a cell as a number.
func (d *Dataset) Num(row int, col string) model.Num {
	return ParseLocaleNumber(d.Value(row, col))
}

// ParseLocaleNumber accepts both "1234.5" and "1.234,5".
func ParseLocaleNumber(s string) model.Num {
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	return ingest.ParseNumeric(s)
}
