// Package sync implements the background synchronization engine. Each cycle
// runs four steps in fixed order: push new collections, upload new items,
// reconcile deleted collections, reconcile deleted items. A record that fails
// is marked failed and reported; it never aborts the cycle or blocks other
// records in the same scan.
package sync

import (
	"context"

	"github.com/docmirror/docmirror/internal/model"
	"github.com/docmirror/docmirror/internal/remote"
	"github.com/docmirror/docmirror/internal/state"
)

// Gateway is the subset of the remote client the engine needs.
// Implemented by [remote.Client].
type Gateway interface {
	CreateCollection(ctx context.Context, title string) (*remote.Collection, error)
	DeleteCollection(ctx context.Context, remoteName string, force bool) error
	UploadItem(ctx context.Context, collectionRemoteName, path, displayName, mimeType string, size int64) (*remote.Operation, error)
	DeleteItem(ctx context.Context, remoteName string) error
}

// Store is the subset of the persistent store the engine needs.
// Implemented by [state.Store].
type Store interface {
	GetCollection(ctx context.Context, id string) (*model.Collection, error)
	PendingSyncCollections(ctx context.Context) ([]*model.Collection, error)
	MarkCollectionSynced(ctx context.Context, id, remoteName, createTime, updateTime string, active, pending, failed, sizeBytes int64) error
	MarkCollectionFailed(ctx context.Context, id, errMsg string) error
	SoftDeletedCollections(ctx context.Context) ([]*model.Collection, error)
	HardDeleteCollection(ctx context.Context, id string) error

	PendingUploadItems(ctx context.Context) ([]*model.Item, error)
	MarkItemUploadStarted(ctx context.Context, id, operationName string) error
	MarkItemSyncFailed(ctx context.Context, id, errMsg string) error
	SoftDeletedItems(ctx context.Context) ([]state.DeletedItem, error)
	HardDeleteItem(ctx context.Context, id string) error
}
