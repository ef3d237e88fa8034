package ops

import (
	"encoding/json"
	"fmt"
	"math"
)

// InvalidOpError rejects a raw operation. It names the offending path so the
// caller can surface it; one invalid operation fails its whole batch.
type InvalidOpError struct {
	Path   string
	Reason string
}

func (e *InvalidOpError) Error() string {
	return fmt.Sprintf("invalid operation for path %q: %s", e.Path, e.Reason)
}

func invalid(p []any, reason string) error {
	return &InvalidOpError{Path: pathString(p), Reason: reason}
}

// ValidateBatch sanitizes every raw operation against the schema. Acceptance
// is atomic: the first invalid operation fails the batch and nothing is
// returned.
func ValidateBatch(schema Schema, raws []RawOp) ([]Op, error) {
	batch := make([]Op, 0, len(raws))
	for _, raw := range raws {
		op, err := Validate(schema, raw)
		if err != nil {
			return nil, err
		}
		batch = append(batch, op)
	}
	return batch, nil
}

// Validate sanitizes a single raw operation. Only fields declared in the
// schema may be targeted; anything off-schema or mistyped is rejected, never
// silently dropped.
func Validate(schema Schema, raw RawOp) (Op, error) {
	if len(raw.P) == 0 {
		return nil, invalid(raw.P, "missing path")
	}

	field, ok := raw.P[0].(string)
	if !ok {
		return nil, invalid(raw.P, "first path segment must be a field name")
	}
	fieldType, ok := schema[field]
	if !ok {
		return nil, invalid(raw.P, "field is not editable")
	}

	if len(raw.P) == 1 {
		return validateReplace(raw, field, fieldType)
	}

	switch fieldType {
	case FieldString:
		return validateStringSplice(raw, field)
	case FieldStringList:
		return validateListOp(raw, field)
	default:
		return nil, invalid(raw.P, "field does not support nested edits")
	}
}

func validateReplace(raw RawOp, field string, fieldType FieldType) (Op, error) {
	if raw.OI == nil && raw.OD == nil {
		return nil, invalid(raw.P, "replace requires oi or od")
	}

	op := ObjectReplace{FieldName: field}
	if raw.OD != nil {
		old, err := decodeValue(fieldType, raw.OD)
		if err != nil {
			return nil, invalid(raw.P, "od: "+err.Error())
		}
		op.Old = &old
	}
	if raw.OI != nil {
		value, err := decodeValue(fieldType, raw.OI)
		if err != nil {
			return nil, invalid(raw.P, "oi: "+err.Error())
		}
		op.New = value
	} else {
		// Delete-only becomes a replacement with the neutral value so the
		// field key is never removed from the document.
		op.New = Neutral(fieldType)
	}
	return op, nil
}

func validateStringSplice(raw RawOp, field string) (Op, error) {
	if len(raw.P) != 2 {
		return nil, invalid(raw.P, "string edit requires a 2-segment path")
	}
	offset, ok := pathIndex(raw.P[1])
	if !ok {
		return nil, invalid(raw.P, "character offset must be a non-negative integer")
	}
	if raw.SI == nil && raw.SD == nil {
		return nil, invalid(raw.P, "string edit requires si or sd")
	}

	op := StringSplice{FieldName: field, Offset: offset}
	if raw.SI != nil {
		text, err := decodeString(raw.SI)
		if err != nil {
			return nil, invalid(raw.P, "si: "+err.Error())
		}
		op.Insert = text
	}
	if raw.SD != nil {
		text, err := decodeString(raw.SD)
		if err != nil {
			return nil, invalid(raw.P, "sd: "+err.Error())
		}
		op.Delete = text
	}
	return op, nil
}

func validateListOp(raw RawOp, field string) (Op, error) {
	hasItem := raw.LI != nil || raw.LD != nil
	hasSplice := raw.SI != nil || raw.SD != nil

	switch {
	case hasItem && !hasSplice:
		if len(raw.P) != 2 {
			return nil, invalid(raw.P, "list item edit requires a 2-segment path")
		}
		index, ok := pathIndex(raw.P[1])
		if !ok {
			return nil, invalid(raw.P, "list index must be a non-negative integer")
		}
		var insert, remove string
		var err error
		if raw.LI != nil {
			if insert, err = decodeString(raw.LI); err != nil {
				return nil, invalid(raw.P, "li: "+err.Error())
			}
		}
		if raw.LD != nil {
			if remove, err = decodeString(raw.LD); err != nil {
				return nil, invalid(raw.P, "ld: "+err.Error())
			}
		}
		switch {
		case raw.LI != nil && raw.LD != nil:
			return ListReplace{FieldName: field, Index: index, OldItem: remove, NewItem: insert}, nil
		case raw.LI != nil:
			return ListInsert{FieldName: field, Index: index, Item: insert}, nil
		default:
			return ListDelete{FieldName: field, Index: index, Item: remove}, nil
		}

	case hasSplice && !hasItem:
		if len(raw.P) != 3 {
			return nil, invalid(raw.P, "in-item string edit requires a 3-segment path")
		}
		index, ok := pathIndex(raw.P[1])
		if !ok {
			return nil, invalid(raw.P, "list index must be a non-negative integer")
		}
		offset, ok := pathIndex(raw.P[2])
		if !ok {
			return nil, invalid(raw.P, "character offset must be a non-negative integer")
		}
		op := ListStringSplice{FieldName: field, Index: index, Offset: offset}
		var err error
		if raw.SI != nil {
			if op.Insert, err = decodeString(raw.SI); err != nil {
				return nil, invalid(raw.P, "si: "+err.Error())
			}
		}
		if raw.SD != nil {
			if op.Delete, err = decodeString(raw.SD); err != nil {
				return nil, invalid(raw.P, "sd: "+err.Error())
			}
		}
		return op, nil

	case hasItem && hasSplice:
		return nil, invalid(raw.P, "list edit mixes item and string payloads")
	default:
		return nil, invalid(raw.P, "list edit requires li, ld, si or sd")
	}
}

// pathIndex accepts an integer path segment. JSON numbers decode as float64;
// non-integral or negative values are rejected.
func pathIndex(seg any) (int, bool) {
	switch n := seg.(type) {
	case int:
		return n, n >= 0
	case float64:
		if n != math.Trunc(n) || n < 0 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func decodeString(payload json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", fmt.Errorf("expected a string")
	}
	return s, nil
}

func decodeValue(fieldType FieldType, payload json.RawMessage) (Value, error) {
	switch fieldType {
	case FieldString:
		s, err := decodeString(payload)
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case FieldBool:
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, fmt.Errorf("expected a boolean")
		}
		return BoolValue(b), nil
	case FieldStringList:
		var items []string
		if err := json.Unmarshal(payload, &items); err != nil {
			return Value{}, fmt.Errorf("expected a list of strings")
		}
		if items == nil {
			items = []string{}
		}
		return ListValue(items), nil
	default:
		return Value{}, fmt.Errorf("unknown field type")
	}
}
