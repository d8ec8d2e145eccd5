// Package sheet reads and writes the tabular files produced by Odoo exports.
package sheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// EmptyKey groups rows whose value in the grouped column is blank.
const EmptyKey = "(empty)"

var ErrUnsupportedFormat = errors.New("unsupported sheet format")

// Table is a header row plus data rows, every row padded to the header width.
type Table struct {
	Header []string
	Rows   [][]string
}

type Group struct {
	Key   string
	Count int64
}

// Column returns the index of name in the header, matching case-insensitively.
func (t *Table) Column(name string) (int, error) {
	want := strings.TrimSpace(name)
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), want) {
			return i, nil
		}
	}

	return -1, fmt.Errorf("column %q not found in header %v", name, t.Header)
}

// GroupCount counts rows per distinct value of column, largest groups first
// and ties ordered by key.
func (t *Table) GroupCount(column string) ([]Group, error) {
	idx, err := t.Column(column)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, row := range t.Rows {
		key := strings.TrimSpace(row[idx])
		if key == "" {
			key = EmptyKey
		}

		counts[key]++
	}

	groups := make([]Group, 0, len(counts))
	for key, count := range counts {
		groups = append(groups, Group{Key: key, Count: count})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}

		return groups[i].Key < groups[j].Key
	})

	return groups, nil
}

func (t *Table) normalize() {
	width := len(t.Header)
	for i, row := range t.Rows {
		switch {
		case len(row) < width:
			t.Rows[i] = append(row, make([]string, width-len(row))...)
		case len(row) > width:
			t.Rows[i] = row[:width]
		}
	}
}

// Read loads a CSV or XLSX file, chosen by extension.
func Read(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path)
	case ".xlsx":
		return ReadXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
