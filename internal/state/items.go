package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/docmirror/docmirror/internal/model"
)

const itemColumns = `id, collection_id, remote_name, operation_name, name, path,
       content_type, mime_type, size, hash, status, sync_status, error_message,
       deleted_at, created_at, updated_at`

// DeletedItem is the slice of a soft-deleted item the deletion reconciler
// needs: its identity, its owning collection, its remote identity (empty when
// never uploaded), and whether the collection ever reached the remote service.
type DeletedItem struct {
	ID                   string
	CollectionID         string
	RemoteName           string
	CollectionRemoteName string
}

func scanItem(sc scanner) (*model.Item, error) {
	var it model.Item
	var remoteName, opName, contentType, mimeType, hash, errMsg, deletedAt sql.NullString
	var createdAt, updatedAt string

	err := sc.Scan(
		&it.ID,
		&it.CollectionID,
		&remoteName,
		&opName,
		&it.Name,
		&it.Path,
		&contentType,
		&mimeType,
		&it.Size,
		&hash,
		&it.Status,
		&it.SyncStatus,
		&errMsg,
		&deletedAt,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning item row: %w", err)
	}

	it.RemoteName = remoteName.String
	it.OperationName = opName.String
	it.ContentType = contentType.String
	it.MIMEType = mimeType.String
	it.Hash = hash.String
	it.ErrorMessage = errMsg.String
	it.DeletedAt = nullTime(deletedAt)
	it.CreatedAt, _ = parseTime(createdAt)
	it.UpdatedAt, _ = parseTime(updatedAt)
	return &it, nil
}

// CreateItem inserts a new item with both status axes pending.
func (s *Store) CreateItem(ctx context.Context, it *model.Item) error {
	now := time.Now().UTC()
	it.Status = model.StatusPending
	it.SyncStatus = model.SyncPending
	it.CreatedAt = now
	it.UpdatedAt = now

	const q = `
		INSERT INTO items (id, collection_id, name, path, content_type, size, hash,
		                   status, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		it.ID, it.CollectionID, it.Name, it.Path, it.ContentType, it.Size, it.Hash,
		it.Status, it.SyncStatus, formatTime(now), formatTime(now)); err != nil {
		return fmt.Errorf("inserting item %q: %w", it.Name, err)
	}
	return nil
}

// GetItem returns the alive item with the given id, or (nil, nil) if no such
// item exists.
func (s *Store) GetItem(ctx context.Context, id string) (*model.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE id = ? AND deleted_at IS NULL`
	return scanItem(s.db.QueryRowContext(ctx, q, id))
}

// ItemsByCollection returns the alive items of a collection, oldest first.
func (s *Store) ItemsByCollection(ctx context.Context, collectionID string) ([]*model.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items
		WHERE collection_id = ? AND deleted_at IS NULL ORDER BY created_at ASC`
	return s.queryItems(ctx, q, collectionID)
}

// ItemsByNames returns alive items whose display name is in names. The remote
// service cites items by display name, not remote id.
func (s *Store) ItemsByNames(ctx context.Context, names []string) ([]*model.Item, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	q := `SELECT ` + itemColumns + ` FROM items
		WHERE name IN (` + placeholders + `) AND deleted_at IS NULL`
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	return s.queryItems(ctx, q, args...)
}

// PendingUploadItems returns alive items waiting for upload whose owning
// collection is alive and synced. The sync_status gate keeps failed items out
// until reset.
func (s *Store) PendingUploadItems(ctx context.Context) ([]*model.Item, error) {
	q := `SELECT i.id, i.collection_id, i.remote_name, i.operation_name, i.name, i.path,
	             i.content_type, i.mime_type, i.size, i.hash, i.status, i.sync_status, i.error_message,
	             i.deleted_at, i.created_at, i.updated_at
		FROM items i
		JOIN collections c ON c.id = i.collection_id
		WHERE i.sync_status = 'pending'
		AND i.deleted_at IS NULL
		AND c.deleted_at IS NULL
		AND c.sync_status = 'synced'
		AND c.remote_name IS NOT NULL`
	return s.queryItems(ctx, q)
}

// ItemsWithPendingOperations returns alive items with an outstanding remote
// operation whose status is not yet terminal, for the polling engine.
func (s *Store) ItemsWithPendingOperations(ctx context.Context) ([]*model.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items
		WHERE operation_name IS NOT NULL
		AND status NOT IN ('completed', 'failed')
		AND deleted_at IS NULL`
	return s.queryItems(ctx, q)
}

func (s *Store) queryItems(ctx context.Context, q string, args ...any) ([]*model.Item, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkItemUploadStarted records the operation handle returned by the upload
// and moves the item to synced/processing in one write.
func (s *Store) MarkItemUploadStarted(ctx context.Context, id, operationName string) error {
	const q = `
		UPDATE items
		SET operation_name = ?, status = 'processing', sync_status = 'synced',
		    error_message = NULL, updated_at = ?
		WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, operationName, formatTime(time.Now().UTC()), id); err != nil {
		return fmt.Errorf("marking item %s upload started: %w", id, err)
	}
	return nil
}

// MarkItemSyncFailed records an upload failure: both status axes move to
// failed and the error message is kept for the read interface.
func (s *Store) MarkItemSyncFailed(ctx context.Context, id, errMsg string) error {
	const q = `
		UPDATE items
		SET sync_status = 'failed', status = 'failed', error_message = ?, updated_at = ?
		WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, errMsg, formatTime(time.Now().UTC()), id); err != nil {
		return fmt.Errorf("marking item %s sync failed: %w", id, err)
	}
	return nil
}

// ResolveItemFromRemote records the remote identity and terminal (or still
// processing) status reported by the remote service, clearing the operation
// handle unless the item is still processing.
func (s *Store) ResolveItemFromRemote(ctx context.Context, id, remoteName, mimeType string, status model.ItemStatus) error {
	op := sql.NullString{}
	if status == model.StatusProcessing {
		// Keep the handle so the next poll cycle re-checks.
		const q = `
			UPDATE items
			SET remote_name = ?, mime_type = NULLIF(?, ''), status = ?, updated_at = ?
			WHERE id = ?`
		if _, err := s.db.ExecContext(ctx, q, remoteName, mimeType, status, formatTime(time.Now().UTC()), id); err != nil {
			return fmt.Errorf("resolving item %s: %w", id, err)
		}
		return nil
	}

	const q = `
		UPDATE items
		SET remote_name = ?, mime_type = NULLIF(?, ''), status = ?, operation_name = ?, updated_at = ?
		WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, remoteName, mimeType, status, op, formatTime(time.Now().UTC()), id); err != nil {
		return fmt.Errorf("resolving item %s: %w", id, err)
	}
	return nil
}

// MarkItemOperationFailed records a failed remote operation: status failed,
// error message kept, operation handle cleared.
func (s *Store) MarkItemOperationFailed(ctx context.Context, id, errMsg string) error {
	const q = `
		UPDATE items
		SET status = 'failed', error_message = ?, operation_name = NULL, updated_at = ?
		WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, errMsg, formatTime(time.Now().UTC()), id); err != nil {
		return fmt.Errorf("marking item %s operation failed: %w", id, err)
	}
	return nil
}

// ResetItemSync moves a failed item back into the upload gate. Used by the
// manual retry entry point. Only items that failed on either axis qualify;
// resetting a healthy item would re-upload it and orphan the remote document.
func (s *Store) ResetItemSync(ctx context.Context, id string) error {
	const q = `
		UPDATE items
		SET sync_status = 'pending', status = 'pending', error_message = NULL,
		    operation_name = NULL, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
		  AND (sync_status = 'failed' OR status = 'failed')`
	res, err := s.db.ExecContext(ctx, q, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("resetting item %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s not found or not failed", id)
	}
	return nil
}

// SoftDeleteItem marks a single item as deleted.
func (s *Store) SoftDeleteItem(ctx context.Context, id string) error {
	now := formatTime(time.Now().UTC())
	const q = `
		UPDATE items SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`
	if _, err := s.db.ExecContext(ctx, q, now, now, id); err != nil {
		return fmt.Errorf("soft deleting item %s: %w", id, err)
	}
	return nil
}

// SoftDeletedItems returns items awaiting deletion reconciliation, oldest
// first, with their owning collection's remote identity for the gate check.
func (s *Store) SoftDeletedItems(ctx context.Context) ([]DeletedItem, error) {
	const q = `
		SELECT i.id, i.collection_id, COALESCE(i.remote_name, ''), COALESCE(c.remote_name, '')
		FROM items i
		JOIN collections c ON c.id = i.collection_id
		WHERE i.deleted_at IS NOT NULL
		ORDER BY i.deleted_at ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying soft deleted items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DeletedItem
	for rows.Next() {
		var di DeletedItem
		if err := rows.Scan(&di.ID, &di.CollectionID, &di.RemoteName, &di.CollectionRemoteName); err != nil {
			return nil, fmt.Errorf("scanning soft deleted item: %w", err)
		}
		out = append(out, di)
	}
	return out, rows.Err()
}

// HardDeleteItem permanently removes the item row.
func (s *Store) HardDeleteItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("hard deleting item %s: %w", id, err)
	}
	return nil
}
