// Package sheet holds the in-memory worksheet snapshot pipeline operations
// mutate, plus the xlsx extraction/serialization around it. Each job gets its
// own private Sheet; nothing here is shared across jobs.
package sheet

// Sheet is a single worksheet as a dense grid of cell values.
// Rows and columns are addressed 1-based, matching spreadsheet coordinates;
// cells outside the grid read as the empty string.
type Sheet struct {
	Name string
	Rows [][]string
}

func (s *Sheet) Cell(row, col int) string {
	if row < 1 || row > len(s.Rows) {
		return ""
	}
	r := s.Rows[row-1]
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

// SetCell writes a value, growing the row if the column lies past its end.
func (s *Sheet) SetCell(row, col int, v string) {
	if row < 1 || col < 1 {
		return
	}
	for len(s.Rows) < row {
		s.Rows = append(s.Rows, nil)
	}
	r := s.Rows[row-1]
	for len(r) < col {
		r = append(r, "")
	}
	r[col-1] = v
	s.Rows[row-1] = r
}

// Row returns the cells of a 1-based row; nil if the row does not exist.
// The returned slice aliases the sheet, callers must not append to it.
func (s *Sheet) Row(row int) []string {
	if row < 1 || row > len(s.Rows) {
		return nil
	}
	return s.Rows[row-1]
}

// DeleteColumn removes one 1-based column from every row, shifting all
// columns to its right left by one. Rows shorter than col are untouched.
func (s *Sheet) DeleteColumn(col int) {
	if col < 1 {
		return
	}
	for i, r := range s.Rows {
		if col > len(r) {
			continue
		}
		s.Rows[i] = append(r[:col-1], r[col:]...)
	}
}

func (s *Sheet) Clone() *Sheet {
	out := &Sheet{Name: s.Name, Rows: make([][]string, len(s.Rows))}
	for i, r := range s.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
