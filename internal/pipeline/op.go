package pipeline

import (
	"sort"
	"strings"

	"sheetpipe/internal/entity"
	"sheetpipe/internal/sheet"
)

const (
	OpRenameColumn = "rename_column"
	OpDropColumn   = "drop_column"
)

// Op is one member of the closed operation catalog. Each variant is a total
// mutator of a worksheet: it either applies fully or fails without touching
// any cell.
type Op interface {
	// Name returns the catalog tag the variant was decoded from.
	Name() string
	// Apply mutates the worksheet in place, resolving column references
	// against its current state.
	Apply(ws *sheet.Sheet, selectedSheet string) error
}

// DecodeOp turns a validated operation record into its concrete variant,
// checking parameter value types and shapes. Adding a catalog entry means
// adding a variant type here, not a new string in a lookup table.
func DecodeOp(op entity.Operation) (Op, error) {
	switch op.OperationID {
	case OpRenameColumn:
		columnID, ok := op.Params["columnId"].(string)
		if !ok {
			return nil, validationf("columnId must be a string")
		}
		newName, ok := op.Params["newName"].(string)
		if !ok || strings.TrimSpace(newName) == "" {
			return nil, validationf("newName must be a non-empty string")
		}
		return RenameColumn{ColumnID: columnID, NewName: strings.TrimSpace(newName)}, nil

	case OpDropColumn:
		rawIDs, ok := op.Params["columnIds"].([]any)
		if !ok {
			return nil, validationf("columnIds must be a list")
		}
		if len(rawIDs) == 0 {
			return nil, validationf("columnIds must be a non-empty list")
		}
		ids := make([]string, 0, len(rawIDs))
		seen := make(map[string]struct{}, len(rawIDs))
		for _, raw := range rawIDs {
			id, ok := raw.(string)
			if !ok || strings.TrimSpace(id) == "" {
				return nil, validationf("columnIds must contain non-empty strings only")
			}
			if _, dup := seen[id]; dup {
				return nil, validationf("columnIds must not contain duplicates")
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return DropColumns{ColumnIDs: ids}, nil

	default:
		// Unreachable after strict validation.
		return nil, validationf("Unsupported operationId: %s", op.OperationID)
	}
}

// RenameColumn sets the header cell of one column to a new name.
type RenameColumn struct {
	ColumnID string
	NewName  string // already trimmed
}

func (o RenameColumn) Name() string { return OpRenameColumn }

// Apply resolves the target column and rejects the rename if any other header
// cell already carries the new name. Only the target header cell is written.
func (o RenameColumn) Apply(ws *sheet.Sheet, selectedSheet string) error {
	col, err := ResolveColumnID(ws, selectedSheet, o.ColumnID)
	if err != nil {
		return err
	}

	for i, val := range ws.Row(headerRow) {
		if i+1 == col {
			continue
		}
		if val == o.NewName {
			return validationf("Rename collision: header already contains '%s'", o.NewName)
		}
	}

	ws.SetCell(headerRow, col, o.NewName)
	return nil
}

// DropColumns deletes one or more columns.
type DropColumns struct {
	ColumnIDs []string
}

func (o DropColumns) Name() string { return OpDropColumn }

// Apply resolves every reference before deleting anything, so a later
// reference never observes the effect of an earlier deletion in the same
// call, then deletes in descending position order so earlier deletions never
// shift a still-pending one.
func (o DropColumns) Apply(ws *sheet.Sheet, selectedSheet string) error {
	resolved := make([]int, 0, len(o.ColumnIDs))
	for _, id := range o.ColumnIDs {
		col, err := ResolveColumnID(ws, selectedSheet, id)
		if err != nil {
			return err
		}
		resolved = append(resolved, col)
	}

	uniq := make(map[int]struct{}, len(resolved))
	cols := resolved[:0]
	for _, c := range resolved {
		if _, ok := uniq[c]; ok {
			continue
		}
		uniq[c] = struct{}{}
		cols = append(cols, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(cols)))

	for _, c := range cols {
		ws.DeleteColumn(c)
	}
	return nil
}
