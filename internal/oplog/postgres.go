package oplog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"talentpad/api/internal/ops"
	"talentpad/api/internal/profile"
)

// PostgresLog stores snapshots in profile_documents and the applied batches
// in profile_ops. Submit runs inside a transaction with the document row
// locked, so concurrent batches against one document serialize on the row.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Create(ctx context.Context, docType profile.Type, id string, data map[string]any) (Snapshot, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO profile_documents (doc_type, id, version, data)
		VALUES ($1, $2, 1, $3)
	`, string(docType), id, payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert document: %w", err)
	}
	return Snapshot{ID: id, Type: docType, Version: 1, Data: data}, nil
}

func (l *PostgresLog) Fetch(ctx context.Context, docType profile.Type, id string) (Snapshot, error) {
	var version int64
	var payload []byte
	err := l.db.QueryRowContext(ctx, `
		SELECT version, data FROM profile_documents WHERE doc_type=$1 AND id=$2
	`, string(docType), id).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch document: %w", err)
	}
	return decodeSnapshot(docType, id, version, payload)
}

func (l *PostgresLog) FetchOwnership(ctx context.Context, docType profile.Type, id string) (profile.Ownership, error) {
	var ownerID sql.NullString
	var visible sql.NullString
	err := l.db.QueryRowContext(ctx, `
		SELECT data #>> '{private,userId}', data ->> 'visible'
		FROM profile_documents WHERE doc_type=$1 AND id=$2
	`, string(docType), id).Scan(&ownerID, &visible)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Ownership{}, ErrNotFound
	}
	if err != nil {
		return profile.Ownership{}, fmt.Errorf("fetch ownership: %w", err)
	}
	return ownershipRow(id, ownerID, visible), nil
}

func (l *PostgresLog) ListOwnership(ctx context.Context, docType profile.Type) ([]profile.Ownership, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, data #>> '{private,userId}', data ->> 'visible'
		FROM profile_documents WHERE doc_type=$1
		ORDER BY created_at
	`, string(docType))
	if err != nil {
		return nil, fmt.Errorf("list ownership: %w", err)
	}
	defer rows.Close()

	var out []profile.Ownership
	for rows.Next() {
		var id string
		var ownerID, visible sql.NullString
		if err := rows.Scan(&id, &ownerID, &visible); err != nil {
			return nil, fmt.Errorf("scan ownership: %w", err)
		}
		out = append(out, ownershipRow(id, ownerID, visible))
	}
	return out, rows.Err()
}

func (l *PostgresLog) BulkFetch(ctx context.Context, docType profile.Type, ids []string) (map[string]Snapshot, error) {
	result := make(map[string]Snapshot, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, version, data FROM profile_documents
		WHERE doc_type=$1 AND id = ANY($2)
	`, string(docType), ids)
	if err != nil {
		return nil, fmt.Errorf("bulk fetch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var version int64
		var payload []byte
		if err := rows.Scan(&id, &version, &payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshot, err := decodeSnapshot(docType, id, version, payload)
		if err != nil {
			return nil, err
		}
		result[id] = snapshot
	}
	return result, rows.Err()
}

func (l *PostgresLog) Submit(ctx context.Context, docType profile.Type, id string, batch []ops.Op) (Snapshot, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin submit: %w", err)
	}
	defer tx.Rollback()

	var version int64
	var payload []byte
	err = tx.QueryRowContext(ctx, `
		SELECT version, data FROM profile_documents
		WHERE doc_type=$1 AND id=$2
		FOR UPDATE
	`, string(docType), id).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("lock document: %w", err)
	}

	current, err := decodeSnapshot(docType, id, version, payload)
	if err != nil {
		return Snapshot{}, err
	}

	next, err := ops.ApplyBatch(current.Data, batch)
	if err != nil {
		return Snapshot{}, err
	}

	nextPayload, err := json.Marshal(next)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE profile_documents SET version=$3, data=$4, updated_at=NOW()
		WHERE doc_type=$1 AND id=$2 AND version=$5
	`, string(docType), id, version+1, nextPayload, version)
	if err != nil {
		return Snapshot{}, fmt.Errorf("update document: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return Snapshot{}, ErrVersionConflict
	}

	encodedBatch, err := ops.EncodeBatch(batch)
	if err != nil {
		return Snapshot{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profile_ops (doc_type, doc_id, version, batch)
		VALUES ($1, $2, $3, $4)
	`, string(docType), id, version+1, []byte(encodedBatch)); err != nil {
		return Snapshot{}, fmt.Errorf("append op log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("commit submit: %w", err)
	}
	return Snapshot{ID: id, Type: docType, Version: version + 1, Data: next}, nil
}

func decodeSnapshot(docType profile.Type, id string, version int64, payload []byte) (Snapshot, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return Snapshot{ID: id, Type: docType, Version: version, Data: data}, nil
}

func ownershipRow(id string, ownerID, visible sql.NullString) profile.Ownership {
	own := profile.Ownership{ID: id}
	if ownerID.Valid {
		own.OwnerID = ownerID.String
	}
	if visible.Valid {
		if parsed, err := strconv.ParseBool(visible.String); err == nil {
			own.Visible = &parsed
		}
	}
	return own
}
