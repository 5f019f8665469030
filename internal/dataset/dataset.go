// Package dataset loads feedback records from CSV files.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"insight/internal/domain"
)

// Record is one feedback entry ready for indexing.
type Record struct {
	ID   string
	Text string
}

// LoadCSV reads the file at path. See ReadCSV.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open dataset: %v", domain.ErrInput, err)
	}
	defer f.Close()
	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ReadCSV parses a CSV with a header row containing a "text" column, matched
// case-insensitively. Text is trimmed and rows without text are dropped.
// An "id" column is used when present and non-empty; otherwise the id is the
// 0-based position among the kept rows.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: dataset is empty, a header with a 'text' column is required", domain.ErrInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read dataset header: %v", domain.ErrInput, err)
	}
	textCol, idCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "text":
			if textCol < 0 {
				textCol = i
			}
		case "id":
			if idCol < 0 {
				idCol = i
			}
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("%w: CSV must contain a 'text' column", domain.ErrInput)
	}

	var out []Record
	seen := make(map[string]struct{})
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read dataset row %d: %v", domain.ErrInput, line, err)
		}
		if textCol >= len(row) {
			continue
		}
		text := strings.TrimSpace(row[textCol])
		if text == "" {
			continue
		}
		id := strconv.Itoa(len(out))
		if idCol >= 0 && idCol < len(row) {
			if v := strings.TrimSpace(row[idCol]); v != "" {
				id = v
			}
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q at row %d", domain.ErrInput, id, line)
		}
		seen[id] = struct{}{}
		out = append(out, Record{ID: id, Text: text})
	}
	return out, nil
}

// Split returns the ids and texts of records as parallel slices.
func Split(records []Record) (ids, texts []string) {
	ids = make([]string, len(records))
	texts = make([]string, len(records))
	for i, r := range records {
		ids[i], texts[i] = r.ID, r.Text
	}
	return ids, texts
}
