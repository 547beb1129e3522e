package pipeline_test

import (
	"strings"
	"testing"

	"sheetpipe/internal/pipeline"
	"sheetpipe/internal/sheet"
)

func testSheet(header ...string) *sheet.Sheet {
	return &sheet.Sheet{
		Name: "Sheet1",
		Rows: [][]string{
			header,
			{"r1c1", "r1c2", "r1c3"},
		},
	}
}

func TestParseColumnID_Valid(t *testing.T) {
	parsed, err := pipeline.ParseColumnID("Sheet1:2:Revenue")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if parsed.SheetName != "Sheet1" || parsed.ColumnOrder != 2 || parsed.ColumnName != "Revenue" {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseColumnID_Malformed(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Sheet1:0", "must be in format"},
		{"Sheet1:0:Name:extra", "must be in format"},
		{"no-colons", "must be in format"},
		{":0:Name", "sheetName must be non-empty"},
		{"Sheet1:0:", "columnName must be non-empty"},
		{"Sheet1:x:Name", "must be an integer"},
		{"Sheet1:1.5:Name", "must be an integer"},
		{"Sheet1:-1:Name", "must be >= 0"},
	}

	for _, tc := range cases {
		_, err := pipeline.ParseColumnID(tc.raw)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("parse %q: expected %q in error, got %v", tc.raw, tc.want, err)
		}
		if !pipeline.IsValidation(err) {
			t.Fatalf("parse %q: expected ValidationError, got %T", tc.raw, err)
		}
	}
}

func TestResolveColumnID_Success(t *testing.T) {
	ws := testSheet("Name", "Age", "City")

	col, err := pipeline.ResolveColumnID(ws, "Sheet1", "Sheet1:1:Age")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if col != 2 {
		t.Fatalf("expected column 2, got %d", col)
	}
}

func TestResolveColumnID_SheetMismatch(t *testing.T) {
	ws := testSheet("Name", "Age", "City")

	_, err := pipeline.ResolveColumnID(ws, "Sheet1", "Other:0:Name")
	if err == nil || !strings.Contains(err.Error(), "does not match selected sheet 'Sheet1'") {
		t.Fatalf("expected sheet mismatch error, got %v", err)
	}
}

func TestResolveColumnID_HeaderDrift(t *testing.T) {
	ws := testSheet("Name", "Age", "City")

	// Claims position 0 holds "Age"; the live header says otherwise.
	_, err := pipeline.ResolveColumnID(ws, "Sheet1", "Sheet1:0:Age")
	if err == nil {
		t.Fatal("expected header mismatch error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "Expected header[0] == 'Age'") || !strings.Contains(msg, "got 'Name'") {
		t.Fatalf("expected descriptive mismatch naming expected vs actual, got %q", msg)
	}
}

func TestResolveColumnID_PositionPastHeader(t *testing.T) {
	ws := testSheet("Name", "Age")

	_, err := pipeline.ResolveColumnID(ws, "Sheet1", "Sheet1:5:Ghost")
	if err == nil || !strings.Contains(err.Error(), "got ''") {
		t.Fatalf("expected mismatch against empty cell, got %v", err)
	}
}
