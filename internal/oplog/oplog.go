// Package oplog is the append-only operation log and snapshot store behind
// the edit gateway. The gateway treats it as an opaque dependency: it hands
// over fully-sanitized batches and the log applies them atomically under its
// own version counter. Concurrent submissions against the same document are
// serialized here, not by the caller.
package oplog

import (
	"context"
	"errors"

	"talentpad/api/internal/ops"
	"talentpad/api/internal/profile"
)

var (
	ErrNotFound = errors.New("oplog: document not found")
	// ErrVersionConflict is returned when a concurrent writer got in first.
	// The caller retries the whole batch; a failed batch is never partially
	// applied.
	ErrVersionConflict = errors.New("oplog: version conflict")
)

// Snapshot is the materialized state of a document at a version.
type Snapshot struct {
	ID      string
	Type    profile.Type
	Version int64
	Data    map[string]any
}

// Log stores document snapshots and applies sanitized operation batches.
type Log interface {
	// Create inserts a new document at version 1.
	Create(ctx context.Context, docType profile.Type, id string, data map[string]any) (Snapshot, error)
	// Fetch returns the full current snapshot.
	Fetch(ctx context.Context, docType profile.Type, id string) (Snapshot, error)
	// FetchOwnership reads only the authorization-relevant projection.
	FetchOwnership(ctx context.Context, docType profile.Type, id string) (profile.Ownership, error)
	// ListOwnership returns the ownership projection of every document of a
	// type, for visibility filtering before any id is exposed.
	ListOwnership(ctx context.Context, docType profile.Type) ([]profile.Ownership, error)
	// BulkFetch returns snapshots for the requested ids; absent ids are
	// simply missing from the result.
	BulkFetch(ctx context.Context, docType profile.Type, ids []string) (map[string]Snapshot, error)
	// Submit applies a sanitized batch atomically and returns the resulting
	// snapshot.
	Submit(ctx context.Context, docType profile.Type, id string, batch []ops.Op) (Snapshot, error)
}
