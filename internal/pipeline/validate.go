package pipeline

import (
	"encoding/json"
	"sort"
	"strings"

	"sheetpipe/internal/entity"
)

// The closed operation catalog. Params are strict: the key set of each
// operation's params must equal the registered set exactly, no defaults,
// no extras.
var allowedParamsByOperation = map[string][]string{
	OpRenameColumn: {"columnId", "newName"},
	OpDropColumn:   {"columnIds"},
}

// ValidateOperations validates a raw pipeline_operations JSON value strictly
// and returns the normalized operation list. It is a pure function: the same
// input always yields the same output or the same error, and the element
// order and ids of the input are preserved.
//
// Rules:
//   - the value must be a JSON array (may be empty)
//   - each element must have exactly the keys id, operationId, params
//   - id must be a non-empty string, unique across the list
//   - operationId must be in the closed catalog
//   - params must be an object whose key set equals the allowed set exactly
func ValidateOperations(raw json.RawMessage) ([]entity.Operation, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`[]`)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, validationf("pipeline_operations must be valid JSON: %v", err)
	}

	items, ok := decoded.([]any)
	if !ok {
		return nil, validationf("pipeline_operations must be a list")
	}

	ops := make([]entity.Operation, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for idx, item := range items {
		op, err := validateOperation(item, idx, seen)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func validateOperation(item any, idx int, seen map[string]struct{}) (entity.Operation, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return entity.Operation{}, validationf("pipeline_operations[%d] must be an object", idx)
	}
	if err := checkExactKeys(obj, []string{"id", "operationId", "params"},
		"Each operation must have exactly keys: id, operationId, params."); err != nil {
		return entity.Operation{}, err
	}

	id, ok := obj["id"].(string)
	if !ok {
		return entity.Operation{}, validationf("pipeline_operations[%d].id must be a string", idx)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return entity.Operation{}, validationf("pipeline_operations[%d].id must be non-empty", idx)
	}
	if _, dup := seen[id]; dup {
		return entity.Operation{}, validationf("Duplicate operation id: %s", id)
	}
	seen[id] = struct{}{}

	operationID, ok := obj["operationId"].(string)
	if !ok {
		return entity.Operation{}, validationf("pipeline_operations[%d].operationId must be a string", idx)
	}
	allowed, supported := allowedParamsByOperation[operationID]
	if !supported {
		return entity.Operation{}, validationf("Unsupported operationId: %s", operationID)
	}

	params, ok := obj["params"].(map[string]any)
	if !ok {
		return entity.Operation{}, validationf("pipeline_operations[%d].params must be an object", idx)
	}
	if err := checkExactKeys(params, allowed,
		"Invalid params for operationId="+operationID+"."); err != nil {
		return entity.Operation{}, err
	}

	op := entity.Operation{ID: id, OperationID: operationID, Params: params}

	// Param value shapes are part of the schema: a list that decodes to no
	// catalog variant must never create a job. Column references themselves
	// are only resolvable against live worksheet state, so that part of the
	// check stays with execution.
	if _, err := DecodeOp(op); err != nil {
		return entity.Operation{}, err
	}

	return op, nil
}

// checkExactKeys rejects any deviation from the required key set and reports
// the missing and extra keys in sorted order.
func checkExactKeys(obj map[string]any, required []string, prefix string) error {
	var missing, extra []string
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	req := make(map[string]struct{}, len(required))
	for _, k := range required {
		req[k] = struct{}{}
	}
	for k := range obj {
		if _, ok := req[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return validationf("%s Missing=%v Extra=%v", prefix, missing, extra)
}
