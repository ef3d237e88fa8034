package ops

import (
	"fmt"
)

// ApplyError marks a sanitized operation that no longer fits the document it
// is applied to (stale index, mismatched delete). The batch it belongs to is
// not applied.
type ApplyError struct {
	Field  string
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("cannot apply operation on %q: %s", e.Field, e.Reason)
}

func applyErr(field, format string, args ...any) error {
	return &ApplyError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ApplyBatch applies a sanitized batch to a document snapshot, returning a new
// snapshot. The input map is not modified; application is all-or-nothing from
// the caller's point of view since the input survives a failure.
func ApplyBatch(data map[string]any, batch []Op) (map[string]any, error) {
	next := make(map[string]any, len(data))
	for k, v := range data {
		next[k] = v
	}
	for _, op := range batch {
		if err := apply(next, op); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func apply(data map[string]any, op Op) error {
	switch o := op.(type) {
	case ObjectReplace:
		data[o.FieldName] = o.New.JSON()
		return nil

	case StringSplice:
		current, err := fieldString(data, o.FieldName)
		if err != nil {
			return err
		}
		next, err := splice(current, o.Offset, o.Insert, o.Delete, o.FieldName)
		if err != nil {
			return err
		}
		data[o.FieldName] = next
		return nil

	case ListInsert:
		items, err := fieldList(data, o.FieldName)
		if err != nil {
			return err
		}
		if o.Index > len(items) {
			return applyErr(o.FieldName, "insert index %d beyond length %d", o.Index, len(items))
		}
		next := make([]any, 0, len(items)+1)
		next = append(next, items[:o.Index]...)
		next = append(next, o.Item)
		next = append(next, items[o.Index:]...)
		data[o.FieldName] = next
		return nil

	case ListDelete:
		items, err := fieldList(data, o.FieldName)
		if err != nil {
			return err
		}
		if o.Index >= len(items) {
			return applyErr(o.FieldName, "delete index %d beyond length %d", o.Index, len(items))
		}
		if current, _ := items[o.Index].(string); current != o.Item {
			return applyErr(o.FieldName, "delete of %q does not match current item %q", o.Item, current)
		}
		next := make([]any, 0, len(items)-1)
		next = append(next, items[:o.Index]...)
		next = append(next, items[o.Index+1:]...)
		data[o.FieldName] = next
		return nil

	case ListReplace:
		items, err := fieldList(data, o.FieldName)
		if err != nil {
			return err
		}
		if o.Index >= len(items) {
			return applyErr(o.FieldName, "replace index %d beyond length %d", o.Index, len(items))
		}
		if current, _ := items[o.Index].(string); current != o.OldItem {
			return applyErr(o.FieldName, "replace of %q does not match current item %q", o.OldItem, current)
		}
		next := make([]any, len(items))
		copy(next, items)
		next[o.Index] = o.NewItem
		data[o.FieldName] = next
		return nil

	case ListStringSplice:
		items, err := fieldList(data, o.FieldName)
		if err != nil {
			return err
		}
		if o.Index >= len(items) {
			return applyErr(o.FieldName, "item index %d beyond length %d", o.Index, len(items))
		}
		current, ok := items[o.Index].(string)
		if !ok {
			return applyErr(o.FieldName, "item %d is not a string", o.Index)
		}
		edited, err := splice(current, o.Offset, o.Insert, o.Delete, o.FieldName)
		if err != nil {
			return err
		}
		next := make([]any, len(items))
		copy(next, items)
		next[o.Index] = edited
		data[o.FieldName] = next
		return nil

	default:
		return applyErr(op.Field(), "unknown operation kind %T", op)
	}
}

// splice deletes then inserts at a rune offset. A delete must match the text
// currently at the offset.
func splice(current string, offset int, insert, remove, field string) (string, error) {
	runes := []rune(current)
	if offset > len(runes) {
		return "", applyErr(field, "offset %d beyond length %d", offset, len(runes))
	}
	if remove != "" {
		removeRunes := []rune(remove)
		end := offset + len(removeRunes)
		if end > len(runes) {
			return "", applyErr(field, "delete runs past end of value")
		}
		if string(runes[offset:end]) != remove {
			return "", applyErr(field, "delete of %q does not match current text", remove)
		}
		runes = append(runes[:offset], runes[end:]...)
	}
	if insert != "" {
		insertRunes := []rune(insert)
		out := make([]rune, 0, len(runes)+len(insertRunes))
		out = append(out, runes[:offset]...)
		out = append(out, insertRunes...)
		out = append(out, runes[offset:]...)
		runes = out
	}
	return string(runes), nil
}

func fieldString(data map[string]any, field string) (string, error) {
	value, ok := data[field]
	if !ok {
		return "", applyErr(field, "field is absent")
	}
	s, ok := value.(string)
	if !ok {
		return "", applyErr(field, "field is not a string")
	}
	return s, nil
}

func fieldList(data map[string]any, field string) ([]any, error) {
	value, ok := data[field]
	if !ok {
		return nil, applyErr(field, "field is absent")
	}
	switch items := value.(type) {
	case []any:
		return items, nil
	case []string:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, nil
	default:
		return nil, applyErr(field, "field is not a list")
	}
}
