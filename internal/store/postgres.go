package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrStaleWrite is returned when a version-gated index update finds the
// row already moved past the expected version. The aggregate checks
// optimistic concurrency in memory first; this is the persistence-level
// backstop for racing writers.
var ErrStaleWrite = errors.New("document index moved past expected version")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateCycle(ctx context.Context, cycle Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, title, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, cycle.ID, cycle.Title, cycle.Status)
	if err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCycle(ctx context.Context, cycleID string) (Cycle, error) {
	var item Cycle
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, created_at, updated_at
		FROM cycles
		WHERE id=$1
	`, cycleID).Scan(&item.ID, &item.Title, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Cycle{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListCycles(ctx context.Context) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, status, created_at, updated_at
		FROM cycles
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	items := make([]Cycle, 0)
	for rows.Next() {
		var item Cycle
		if err := rows.Scan(&item.ID, &item.Title, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateCycleStatus(ctx context.Context, cycleID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cycles SET status=$2, updated_at=NOW() WHERE id=$1
	`, cycleID, status)
	if err != nil {
		return fmt.Errorf("update cycle status: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertDocumentIndex(ctx context.Context, item DocumentIndex) error {
	progress, err := marshalProgress(item.Progress)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, cycle_id, version, checksum, sync_source, progress, parent_id, branch_point, diverged, archived)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
	`, item.ID, item.CycleID, item.Version, item.Checksum, item.SyncSource, progress,
		item.ParentID, item.BranchPoint, item.Diverged, item.Archived)
	if err != nil {
		return fmt.Errorf("insert document index: %w", err)
	}
	return nil
}

// UpdateDocumentIndex persists a new aggregate state, gated on the version
// the caller read. Zero rows affected means a racing writer won.
func (s *PostgresStore) UpdateDocumentIndex(ctx context.Context, item DocumentIndex, previousVersion int64) error {
	progress, err := marshalProgress(item.Progress)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET version=$2, checksum=$3, sync_source=$4, progress=$5, diverged=$6, archived=$7, updated_at=NOW()
		WHERE id=$1 AND version=$8
	`, item.ID, item.Version, item.Checksum, item.SyncSource, progress, item.Diverged, item.Archived, previousVersion)
	if err != nil {
		return fmt.Errorf("update document index: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document index affected rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (s *PostgresStore) GetDocumentByCycle(ctx context.Context, cycleID string) (DocumentIndex, error) {
	return s.getDocument(ctx, `WHERE cycle_id=$1`, cycleID)
}

func (s *PostgresStore) GetDocumentIndex(ctx context.Context, documentID string) (DocumentIndex, error) {
	return s.getDocument(ctx, `WHERE id=$1`, documentID)
}

func (s *PostgresStore) getDocument(ctx context.Context, where string, arg any) (DocumentIndex, error) {
	var item DocumentIndex
	var progress []byte
	var parentID, branchPoint sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cycle_id, version, checksum, sync_source, progress, parent_id, branch_point, diverged, archived, created_at, updated_at
		FROM documents
	`+where, arg).Scan(
		&item.ID, &item.CycleID, &item.Version, &item.Checksum, &item.SyncSource,
		&progress, &parentID, &branchPoint, &item.Diverged, &item.Archived,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return DocumentIndex{}, err
	}
	item.ParentID = parentID.String
	item.BranchPoint = branchPoint.String
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &item.Progress); err != nil {
			return DocumentIndex{}, fmt.Errorf("decode progress: %w", err)
		}
	}
	return item, nil
}

// ListDocumentIndexes returns every index record, used for lineage tree
// reconstruction at query time.
func (s *PostgresStore) ListDocumentIndexes(ctx context.Context) ([]DocumentIndex, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, version, checksum, sync_source, progress, parent_id, branch_point, diverged, archived, created_at, updated_at
		FROM documents
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list document indexes: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentIndex, 0)
	for rows.Next() {
		var item DocumentIndex
		var progress []byte
		var parentID, branchPoint sql.NullString
		if err := rows.Scan(
			&item.ID, &item.CycleID, &item.Version, &item.Checksum, &item.SyncSource,
			&progress, &parentID, &branchPoint, &item.Diverged, &item.Archived,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document index: %w", err)
		}
		item.ParentID = parentID.String
		item.BranchPoint = branchPoint.String
		if len(progress) > 0 {
			if err := json.Unmarshal(progress, &item.Progress); err != nil {
				return nil, fmt.Errorf("decode progress: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document indexes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_history (document_id, version, checksum, sync_source, actor)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.DocumentID, entry.Version, entry.Checksum, entry.SyncSource, entry.Actor)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, documentID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, version, checksum, sync_source, actor, created_at
		FROM document_history
		WHERE document_id=$1
		ORDER BY version DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var item HistoryEntry
		if err := rows.Scan(&item.DocumentID, &item.Version, &item.Checksum, &item.SyncSource, &item.Actor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertComponent(ctx context.Context, record ComponentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO components (cycle_id, kind, payload, origin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cycle_id, kind) DO UPDATE SET payload=EXCLUDED.payload, origin=EXCLUDED.origin, updated_at=NOW()
	`, record.CycleID, record.Kind, record.Payload, record.Origin)
	if err != nil {
		return fmt.Errorf("upsert component: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComponents(ctx context.Context, cycleID string) ([]ComponentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, kind, payload, origin, updated_at
		FROM components
		WHERE cycle_id=$1
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("get components: %w", err)
	}
	defer rows.Close()

	items := make([]ComponentRecord, 0)
	for rows.Next() {
		var item ComponentRecord
		if err := rows.Scan(&item.CycleID, &item.Kind, &item.Payload, &item.Origin, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components: %w", err)
	}
	return items, nil
}

func marshalProgress(progress map[string]string) ([]byte, error) {
	if progress == nil {
		progress = map[string]string{}
	}
	raw, err := json.Marshal(progress)
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	return raw, nil
}
