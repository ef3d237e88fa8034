package ops

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func baseDoc() map[string]any {
	return map[string]any{
		"name":    "Acme",
		"skills":  []any{"go", "sql"},
		"visible": true,
	}
}

func TestApplyObjectReplace(t *testing.T) {
	next, err := ApplyBatch(baseDoc(), []Op{
		ObjectReplace{FieldName: "name", New: StringValue("Acme Inc")},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, next["name"], "Acme Inc")
}

func TestApplyStringSplice(t *testing.T) {
	next, err := ApplyBatch(baseDoc(), []Op{
		StringSplice{FieldName: "name", Offset: 4, Insert: " Inc"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, next["name"], "Acme Inc")

	next, err = ApplyBatch(next, []Op{
		StringSplice{FieldName: "name", Offset: 4, Delete: " Inc"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, next["name"], "Acme")
}

func TestApplyStringSpliceMismatchedDelete(t *testing.T) {
	_, err := ApplyBatch(baseDoc(), []Op{
		StringSplice{FieldName: "name", Offset: 0, Delete: "Zcme"},
	})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestApplyListOps(t *testing.T) {
	next, err := ApplyBatch(baseDoc(), []Op{
		ListInsert{FieldName: "skills", Index: 1, Item: "redis"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, next["skills"], []any{"go", "redis", "sql"})

	next, err = ApplyBatch(next, []Op{
		ListReplace{FieldName: "skills", Index: 2, OldItem: "sql", NewItem: "postgres"},
		ListDelete{FieldName: "skills", Index: 1, Item: "redis"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, next["skills"], []any{"go", "postgres"})
}

func TestApplyListDeleteMismatch(t *testing.T) {
	_, err := ApplyBatch(baseDoc(), []Op{
		ListDelete{FieldName: "skills", Index: 0, Item: "rust"},
	})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestApplyListStringSplice(t *testing.T) {
	next, err := ApplyBatch(baseDoc(), []Op{
		ListStringSplice{FieldName: "skills", Index: 0, Offset: 2, Insert: "lang"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, next["skills"], []any{"golang", "sql"})
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	doc := baseDoc()
	_, err := ApplyBatch(doc, []Op{
		ObjectReplace{FieldName: "name", New: StringValue("changed")},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc["name"], "Acme")
}

func TestApplyFailsOnStaleIndex(t *testing.T) {
	_, err := ApplyBatch(baseDoc(), []Op{
		ListInsert{FieldName: "skills", Index: 9, Item: "late"},
	})
	if err == nil {
		t.Fatalf("expected stale index error")
	}
}

func TestApplyRuneOffsets(t *testing.T) {
	doc := map[string]any{"name": "héllo"}
	next, err := ApplyBatch(doc, []Op{
		StringSplice{FieldName: "name", Offset: 5, Insert: "!"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, next["name"], "héllo!")
}
