package oplog

import (
	"context"
	"encoding/json"
	"sync"

	"talentpad/api/internal/ops"
	"talentpad/api/internal/profile"
)

// MemoryLog is an in-process Log used by tests and by the service's unit
// harness. Behavior matches PostgresLog: serialized application, version
// counter, all-or-nothing batches.
type MemoryLog struct {
	mu   sync.Mutex
	docs map[docKey]*Snapshot
}

type docKey struct {
	docType profile.Type
	id      string
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{docs: make(map[docKey]*Snapshot)}
}

func (l *MemoryLog) Create(ctx context.Context, docType profile.Type, id string, data map[string]any) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := Snapshot{ID: id, Type: docType, Version: 1, Data: cloneData(data)}
	l.docs[docKey{docType, id}] = &snapshot
	return snapshot, nil
}

func (l *MemoryLog) Fetch(ctx context.Context, docType profile.Type, id string) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.docs[docKey{docType, id}]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{ID: id, Type: docType, Version: stored.Version, Data: cloneData(stored.Data)}, nil
}

func (l *MemoryLog) FetchOwnership(ctx context.Context, docType profile.Type, id string) (profile.Ownership, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.docs[docKey{docType, id}]
	if !ok {
		return profile.Ownership{}, ErrNotFound
	}
	return profile.OwnershipFromData(id, stored.Data), nil
}

func (l *MemoryLog) ListOwnership(ctx context.Context, docType profile.Type) ([]profile.Ownership, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []profile.Ownership
	for key, stored := range l.docs {
		if key.docType != docType {
			continue
		}
		out = append(out, profile.OwnershipFromData(key.id, stored.Data))
	}
	return out, nil
}

func (l *MemoryLog) BulkFetch(ctx context.Context, docType profile.Type, ids []string) (map[string]Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make(map[string]Snapshot, len(ids))
	for _, id := range ids {
		if stored, ok := l.docs[docKey{docType, id}]; ok {
			result[id] = Snapshot{ID: id, Type: docType, Version: stored.Version, Data: cloneData(stored.Data)}
		}
	}
	return result, nil
}

func (l *MemoryLog) Submit(ctx context.Context, docType profile.Type, id string, batch []ops.Op) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.docs[docKey{docType, id}]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	next, err := ops.ApplyBatch(stored.Data, batch)
	if err != nil {
		return Snapshot{}, err
	}
	stored.Data = next
	stored.Version++
	return Snapshot{ID: id, Type: docType, Version: stored.Version, Data: cloneData(next)}, nil
}

// cloneData deep-copies a snapshot through JSON so callers can never reach
// shared state.
func cloneData(data map[string]any) map[string]any {
	payload, err := json.Marshal(data)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return map[string]any{}
	}
	return out
}
