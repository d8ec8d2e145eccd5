package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// ReadXLSX reads the first worksheet of an XLSX file.
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("xlsx %s is empty", path)
	}

	table := &Table{Header: rows[0], Rows: rows[1:]}
	table.normalize()

	return table, nil
}

// WriteXLSX writes table to path with a bold, frozen, filterable header row.
func WriteXLSX(table *Table, path string) (err error) {
	if table == nil || len(table.Header) == 0 {
		return errors.New("table has no header")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	if err := f.SetSheetRow(defaultSheet, "A1", &table.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		if err := f.SetSheetRow(defaultSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(table.Header))
	if err != nil {
		return err
	}

	if err := f.SetCellStyle(defaultSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	if err := f.SetColWidth(defaultSheet, "A", lastCol, 18); err != nil {
		return err
	}

	if err := f.AutoFilter(defaultSheet, fmt.Sprintf("A1:%s%d", lastCol, len(table.Rows)+1), nil); err != nil {
		return fmt.Errorf("set auto filter: %w", err)
	}

	if err := f.SetPanes(defaultSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}

	return nil
}

// ConvertCSV rewrites a CSV export as XLSX next to it and returns the new path.
func ConvertCSV(path string) (string, error) {
	table, err := ReadCSV(path)
	if err != nil {
		return "", err
	}

	out := path[:len(path)-len(filepath.Ext(path))] + ".xlsx"
	if err := WriteXLSX(table, out); err != nil {
		return "", err
	}

	return out, nil
}
