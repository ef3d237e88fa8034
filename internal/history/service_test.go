package history

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := map[string]any{
		"name":    "{ New talent! }",
		"skills":  []any{"please", "fill in the", "skills"},
		"visible": false,
	}

	// first commit initializes the document's repo
	first, err := svc.CommitSnapshot("talent", "t1", initial, 1, "Avery")
	if err != nil {
		t.Fatalf("CommitSnapshot() initial error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "talent", "t1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	updated := map[string]any{
		"name":    "Acme",
		"skills":  []any{"go"},
		"visible": true,
	}
	commit, err := svc.CommitSnapshot("talent", "t1", updated, 2, "Avery")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if commit.Hash == "" || commit.Hash == first.Hash {
		t.Fatalf("expected a new commit hash, got %q", commit.Hash)
	}

	entries, err := svc.History("talent", "t1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(entries))
	}
	if entries[0].Hash != commit.Hash {
		t.Fatalf("newest commit first, got %+v", entries[0])
	}
	if entries[1].Hash != first.Hash {
		t.Fatalf("initial commit missing, got %+v", entries[1])
	}

	data, err := svc.SnapshotAt("talent", "t1", commit.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if data["name"] != "Acme" {
		t.Fatalf("unexpected snapshot content: %+v", data)
	}

	older, err := svc.SnapshotAt("talent", "t1", entries[1].Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() older error = %v", err)
	}
	if older["name"] != "{ New talent! }" {
		t.Fatalf("unexpected older snapshot content: %+v", older)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())
	for i := 1; i <= 5; i++ {
		if _, err := svc.CommitSnapshot("company", "c1", map[string]any{"name": "A", "v": i}, int64(i), "Avery"); err != nil {
			t.Fatalf("CommitSnapshot() error = %v", err)
		}
	}
	entries, err := svc.History("company", "c1", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(entries))
	}
}
