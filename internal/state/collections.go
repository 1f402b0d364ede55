package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docmirror/docmirror/internal/model"
)

const collectionColumns = `id, remote_name, title, directory_path, sync_status, error_message,
       remote_create_time, remote_update_time,
       active_items_count, pending_items_count, failed_items_count, size_bytes,
       deleted_at, created_at, updated_at`

func scanCollection(sc scanner) (*model.Collection, error) {
	var c model.Collection
	var remoteName, dirPath, errMsg, createTime, updateTime, deletedAt sql.NullString
	var createdAt, updatedAt string

	err := sc.Scan(
		&c.ID,
		&remoteName,
		&c.Title,
		&dirPath,
		&c.SyncStatus,
		&errMsg,
		&createTime,
		&updateTime,
		&c.ActiveItemsCount,
		&c.PendingItemsCount,
		&c.FailedItemsCount,
		&c.SizeBytes,
		&deletedAt,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning collection row: %w", err)
	}

	c.RemoteName = remoteName.String
	c.DirectoryPath = dirPath.String
	c.ErrorMessage = errMsg.String
	c.RemoteCreateTime = createTime.String
	c.RemoteUpdateTime = updateTime.String
	c.DeletedAt = nullTime(deletedAt)
	c.CreatedAt, _ = parseTime(createdAt)
	c.UpdatedAt, _ = parseTime(updatedAt)
	return &c, nil
}

// CreateCollection inserts a new collection with sync_status pending.
func (s *Store) CreateCollection(ctx context.Context, c *model.Collection) error {
	now := time.Now().UTC()
	c.SyncStatus = model.SyncPending
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `
		INSERT INTO collections (id, title, directory_path, sync_status, created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		c.ID, c.Title, c.DirectoryPath, c.SyncStatus, formatTime(now), formatTime(now)); err != nil {
		return fmt.Errorf("inserting collection %q: %w", c.Title, err)
	}
	return nil
}

// GetCollection returns the alive collection with the given id, or (nil, nil)
// if no such collection exists.
func (s *Store) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	q := `SELECT ` + collectionColumns + ` FROM collections WHERE id = ? AND deleted_at IS NULL`
	return scanCollection(s.db.QueryRowContext(ctx, q, id))
}

// ListCollections returns all alive collections with counts derived from
// their alive items. The overall status is "processing" while any local item
// is non-terminal, "completed" otherwise.
func (s *Store) ListCollections(ctx context.Context) ([]*model.CollectionOverview, error) {
	q := `
		SELECT c.id, c.remote_name, c.title, c.directory_path, c.sync_status, c.error_message,
		       c.remote_create_time, c.remote_update_time,
		       c.active_items_count, c.pending_items_count, c.failed_items_count, c.size_bytes,
		       c.deleted_at, c.created_at, c.updated_at,
		       COUNT(i.id) AS item_count,
		       COALESCE(SUM(CASE WHEN i.status NOT IN ('completed', 'failed') THEN 1 ELSE 0 END), 0) AS local_pending,
		       COALESCE(SUM(CASE WHEN i.status = 'failed' THEN 1 ELSE 0 END), 0) AS local_failed
		FROM collections c
		LEFT JOIN items i ON i.collection_id = c.id AND i.deleted_at IS NULL
		WHERE c.deleted_at IS NULL
		GROUP BY c.id
		ORDER BY c.created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.CollectionOverview
	for rows.Next() {
		var ov model.CollectionOverview
		var remoteName, dirPath, errMsg, createTime, updateTime, deletedAt sql.NullString
		var createdAt, updatedAt string

		err := rows.Scan(
			&ov.ID, &remoteName, &ov.Title, &dirPath, &ov.SyncStatus, &errMsg,
			&createTime, &updateTime,
			&ov.ActiveItemsCount, &ov.PendingItemsCount, &ov.FailedItemsCount, &ov.SizeBytes,
			&deletedAt, &createdAt, &updatedAt,
			&ov.ItemCount, &ov.LocalPendingCount, &ov.LocalFailedCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning collection overview: %w", err)
		}

		ov.RemoteName = remoteName.String
		ov.DirectoryPath = dirPath.String
		ov.ErrorMessage = errMsg.String
		ov.RemoteCreateTime = createTime.String
		ov.RemoteUpdateTime = updateTime.String
		ov.DeletedAt = nullTime(deletedAt)
		ov.CreatedAt, _ = parseTime(createdAt)
		ov.UpdatedAt, _ = parseTime(updatedAt)

		ov.Status = "completed"
		if ov.LocalPendingCount > 0 {
			ov.Status = "processing"
		}
		out = append(out, &ov)
	}
	return out, rows.Err()
}

// PendingSyncCollections returns alive collections that have not yet been
// created remotely. Failed collections stay out of the gate until reset.
func (s *Store) PendingSyncCollections(ctx context.Context) ([]*model.Collection, error) {
	q := `SELECT ` + collectionColumns + ` FROM collections
		WHERE (sync_status = 'pending' OR sync_status IS NULL OR sync_status = '')
		AND deleted_at IS NULL`
	return s.queryCollections(ctx, q)
}

// SoftDeletedCollections returns collections awaiting remote deletion,
// oldest first.
func (s *Store) SoftDeletedCollections(ctx context.Context) ([]*model.Collection, error) {
	q := `SELECT ` + collectionColumns + ` FROM collections
		WHERE deleted_at IS NOT NULL ORDER BY deleted_at ASC`
	return s.queryCollections(ctx, q)
}

func (s *Store) queryCollections(ctx context.Context, q string, args ...any) ([]*model.Collection, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkCollectionSynced records the remote identity, timestamps, and counts
// returned by the remote service and closes the pending gate.
func (s *Store) MarkCollectionSynced(ctx context.Context, id, remoteName, createTime, updateTime string, active, pending, failed, sizeBytes int64) error {
	const q = `
		UPDATE collections
		SET remote_name = ?,
		    remote_create_time = NULLIF(?, ''),
		    remote_update_time = NULLIF(?, ''),
		    active_items_count = ?,
		    pending_items_count = ?,
		    failed_items_count = ?,
		    size_bytes = ?,
		    sync_status = 'synced',
		    error_message = NULL,
		    updated_at = ?
		WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q,
		remoteName, createTime, updateTime, active, pending, failed, sizeBytes,
		formatTime(time.Now().UTC()), id); err != nil {
		return fmt.Errorf("marking collection %s synced: %w", id, err)
	}
	return nil
}

// MarkCollectionFailed closes the pending gate with a failure and records the
// error message for the read interface.
func (s *Store) MarkCollectionFailed(ctx context.Context, id, errMsg string) error {
	const q = `
		UPDATE collections
		SET sync_status = 'failed', error_message = ?, updated_at = ?
		WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, errMsg, formatTime(time.Now().UTC()), id); err != nil {
		return fmt.Errorf("marking collection %s failed: %w", id, err)
	}
	return nil
}

// ResetCollectionSync moves a failed collection back into the pending gate.
// Used by the manual retry entry point. Only failed collections qualify; a
// synced collection re-entering the gate would create a second remote store.
func (s *Store) ResetCollectionSync(ctx context.Context, id string) error {
	const q = `
		UPDATE collections
		SET sync_status = 'pending', error_message = NULL, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND sync_status = 'failed'`
	res, err := s.db.ExecContext(ctx, q, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("resetting collection %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("collection %s not found or not failed", id)
	}
	return nil
}

// SoftDeleteCollection marks the collection and all its alive items as
// deleted in one transaction, so no alive read can observe an item whose
// parent is already gone.
func (s *Store) SoftDeleteCollection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning soft delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now().UTC())
	if _, err := tx.ExecContext(ctx, `
		UPDATE items SET deleted_at = ?, updated_at = ?
		WHERE collection_id = ? AND deleted_at IS NULL`, now, now, id); err != nil {
		return fmt.Errorf("soft deleting items of collection %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE collections SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, now, now, id); err != nil {
		return fmt.Errorf("soft deleting collection %s: %w", id, err)
	}
	return tx.Commit()
}

// HardDeleteCollection permanently removes the collection row. Item rows go
// with it via the foreign-key cascade.
func (s *Store) HardDeleteCollection(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("hard deleting collection %s: %w", id, err)
	}
	return nil
}
