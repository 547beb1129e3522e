package sheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExtractSheet loads a workbook from disk and returns a snapshot of just the
// selected sheet. The caller owns the returned Sheet exclusively.
func ExtractSheet(path, sheetName string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	found := false
	for _, n := range names {
		if n == sheetName {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("sheet %q not found in workbook. Available sheets: %s",
			sheetName, strings.Join(names, ", "))
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	return &Sheet{Name: sheetName, Rows: rows}, nil
}

// EncodeSheet serializes a snapshot into a single-sheet xlsx workbook.
func EncodeSheet(s *Sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(s.Name); err != nil {
		return nil, fmt.Errorf("create sheet %q: %w", s.Name, err)
	}
	if s.Name != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}

	for i, row := range s.Rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		if err := f.SetSheetRow(s.Name, cell, &vals); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ListSheets returns the sheet names of an xlsx workbook read from r.
func ListSheets(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
