package pipeline

import (
	"strconv"
	"strings"

	"sheetpipe/internal/sheet"
)

// headerRow is the 1-based row every worksheet keeps its column headers in.
const headerRow = 1

// ColumnID is an opaque, self-describing claim about a column:
// "<sheetName>:<columnOrder>:<columnName>". It is not a stable handle; it is
// re-validated against the live worksheet every time it is resolved, so a
// reference that no longer matches the current header fails loudly instead of
// silently targeting a shifted column.
type ColumnID struct {
	SheetName   string
	ColumnOrder int // 0-based, as observed by the client
	ColumnName  string
}

// ParseColumnID parses the three-field colon format strictly: exactly three
// non-empty segments, the middle one a non-negative integer.
func ParseColumnID(raw string) (ColumnID, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return ColumnID{}, validationf("columnId must be in format '<sheetName>:<columnOrder>:<columnName>'")
	}
	sheetName, orderRaw, colName := parts[0], parts[1], parts[2]
	if sheetName == "" {
		return ColumnID{}, validationf("columnId sheetName must be non-empty")
	}
	if colName == "" {
		return ColumnID{}, validationf("columnId columnName must be non-empty")
	}
	order, err := strconv.Atoi(orderRaw)
	if err != nil {
		return ColumnID{}, validationf("columnId columnOrder must be an integer")
	}
	if order < 0 {
		return ColumnID{}, validationf("columnId columnOrder must be >= 0")
	}
	return ColumnID{SheetName: sheetName, ColumnOrder: order, ColumnName: colName}, nil
}

// ResolveColumnID resolves a raw column reference to a 1-based column index on
// the current worksheet state. The sheet name must match the job's selected
// sheet exactly, and the header cell at the claimed position must still equal
// the claimed name. Resolution always runs against the live, progressively
// mutated worksheet, never a pre-pipeline snapshot.
func ResolveColumnID(ws *sheet.Sheet, selectedSheet, raw string) (int, error) {
	parsed, err := ParseColumnID(raw)
	if err != nil {
		return 0, err
	}
	if parsed.SheetName != selectedSheet {
		return 0, validationf("columnId sheetName '%s' does not match selected sheet '%s'",
			parsed.SheetName, selectedSheet)
	}

	col := parsed.ColumnOrder + 1
	if got := ws.Cell(headerRow, col); got != parsed.ColumnName {
		return 0, validationf("columnId header mismatch. Expected header[%d] == '%s', got '%s'",
			parsed.ColumnOrder, parsed.ColumnName, got)
	}
	return col, nil
}
