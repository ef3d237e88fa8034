// Package ops defines the edit operations accepted against profile documents:
// the raw wire form submitted by clients, the sanitized closed variants that
// are allowed into the operation log, and the schema tables they are validated
// against.
package ops

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType declares the value type of a whitelisted document field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldBool
	FieldStringList
)

// Schema is the per-document-type whitelist: only fields present here may be
// targeted by an operation.
type Schema map[string]FieldType

// Value is a whole-field value, typed according to the schema.
type Value struct {
	Type FieldType
	Str  string
	Bool bool
	List []string
}

func StringValue(s string) Value      { return Value{Type: FieldString, Str: s} }
func BoolValue(b bool) Value          { return Value{Type: FieldBool, Bool: b} }
func ListValue(items []string) Value  { return Value{Type: FieldStringList, List: items} }

// Neutral returns the empty value for a field type. Delete-only replacements
// are normalized to an insert of this value so the field key is never removed
// from the document.
func Neutral(t FieldType) Value {
	switch t {
	case FieldBool:
		return BoolValue(false)
	case FieldStringList:
		return ListValue([]string{})
	default:
		return StringValue("")
	}
}

// JSON returns the value in the representation stored in document snapshots.
func (v Value) JSON() any {
	switch v.Type {
	case FieldBool:
		return v.Bool
	case FieldStringList:
		items := make([]any, len(v.List))
		for i, item := range v.List {
			items[i] = item
		}
		return items
	default:
		return v.Str
	}
}

// RawOp is a single operation as submitted on the wire, json0 style: a path
// plus whichever payload keys the client chose to send. Nothing in a RawOp is
// trusted until it has passed Validate.
type RawOp struct {
	P  []any           `json:"p"`
	OI json.RawMessage `json:"oi,omitempty"`
	OD json.RawMessage `json:"od,omitempty"`
	SI json.RawMessage `json:"si,omitempty"`
	SD json.RawMessage `json:"sd,omitempty"`
	LI json.RawMessage `json:"li,omitempty"`
	LD json.RawMessage `json:"ld,omitempty"`
}

// Op is a sanitized operation. The concrete types below are the only
// implementations; every one of them carries fully type-checked fields.
type Op interface {
	// Field is the top-level document field the operation targets.
	Field() string
	// MarshalJSON encodes the operation back into its json0 wire form for
	// the operation log and for broadcast payloads.
	json.Marshaler

	sealedOp()
}

// ObjectReplace replaces a whole field value. New is always present: a
// delete-only wire op is normalized to a replace with the type's neutral
// value. Old carries the expected previous value when the client sent one.
type ObjectReplace struct {
	FieldName string
	New       Value
	Old       *Value
}

// StringSplice inserts and/or deletes text inside a scalar string field at a
// rune offset.
type StringSplice struct {
	FieldName string
	Offset    int
	Insert    string
	Delete    string
}

// ListInsert inserts one item into a string-list field.
type ListInsert struct {
	FieldName string
	Index     int
	Item      string
}

// ListDelete removes one item from a string-list field. Item is the value the
// client believes it is removing; application fails if it no longer matches.
type ListDelete struct {
	FieldName string
	Index     int
	Item      string
}

// ListReplace swaps one item of a string-list field for another (wire form:
// ld and li on the same path).
type ListReplace struct {
	FieldName string
	Index     int
	OldItem   string
	NewItem   string
}

// ListStringSplice edits text inside a single list item.
type ListStringSplice struct {
	FieldName string
	Index     int
	Offset    int
	Insert    string
	Delete    string
}

func (o ObjectReplace) Field() string    { return o.FieldName }
func (o StringSplice) Field() string     { return o.FieldName }
func (o ListInsert) Field() string       { return o.FieldName }
func (o ListDelete) Field() string       { return o.FieldName }
func (o ListReplace) Field() string      { return o.FieldName }
func (o ListStringSplice) Field() string { return o.FieldName }

func (ObjectReplace) sealedOp()    {}
func (StringSplice) sealedOp()     {}
func (ListInsert) sealedOp()       {}
func (ListDelete) sealedOp()       {}
func (ListReplace) sealedOp()      {}
func (ListStringSplice) sealedOp() {}

func (o ObjectReplace) MarshalJSON() ([]byte, error) {
	wire := map[string]any{"p": []any{o.FieldName}, "oi": o.New.JSON()}
	if o.Old != nil {
		wire["od"] = o.Old.JSON()
	}
	return json.Marshal(wire)
}

func (o StringSplice) MarshalJSON() ([]byte, error) {
	wire := map[string]any{"p": []any{o.FieldName, o.Offset}}
	if o.Insert != "" {
		wire["si"] = o.Insert
	}
	if o.Delete != "" {
		wire["sd"] = o.Delete
	}
	return json.Marshal(wire)
}

func (o ListInsert) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"p": []any{o.FieldName, o.Index}, "li": o.Item})
}

func (o ListDelete) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"p": []any{o.FieldName, o.Index}, "ld": o.Item})
}

func (o ListReplace) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"p": []any{o.FieldName, o.Index}, "ld": o.OldItem, "li": o.NewItem})
}

func (o ListStringSplice) MarshalJSON() ([]byte, error) {
	wire := map[string]any{"p": []any{o.FieldName, o.Index, o.Offset}}
	if o.Insert != "" {
		wire["si"] = o.Insert
	}
	if o.Delete != "" {
		wire["sd"] = o.Delete
	}
	return json.Marshal(wire)
}

// Touches reports whether any operation in the batch targets the given field.
func Touches(batch []Op, field string) bool {
	for _, op := range batch {
		if op.Field() == field {
			return true
		}
	}
	return false
}

// ReplaceRaw builds the wire form of a whole-field replace, for edits the
// server originates itself.
func ReplaceRaw(field string, value any) (RawOp, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return RawOp{}, fmt.Errorf("encode replace payload: %w", err)
	}
	return RawOp{P: []any{field}, OI: encoded}, nil
}

// EncodeBatch renders a sanitized batch back into json0 wire form.
func EncodeBatch(batch []Op) (json.RawMessage, error) {
	encoded, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return encoded, nil
}

func pathString(p []any) string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = fmt.Sprint(seg)
	}
	return strings.Join(parts, "/")
}
