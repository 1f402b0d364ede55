// Package service carries the foreground operations: creating and deleting
// collections and items, retrying failed records, and reading the mirrored
// state. Writes are optimistic: they land in the store immediately with
// pending status, the caller returns, and the caller's wake ping lets the
// background engines reconcile with the remote service.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/docmirror/docmirror/internal/model"
	"github.com/docmirror/docmirror/internal/state"
	"github.com/docmirror/docmirror/internal/wake"
)

// ErrNotFound is returned when an id does not refer to a live record.
var ErrNotFound = errors.New("not found")

// Service wires the store to the engines' wake signals.
type Service struct {
	store      *state.Store
	syncSignal *wake.Signal
	pollSignal *wake.Signal
	log        *slog.Logger
}

// New creates a Service.
func New(store *state.Store, syncSignal, pollSignal *wake.Signal, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		syncSignal: syncSignal,
		pollSignal: pollSignal,
		log:        logger,
	}
}

// CreateCollection registers a new collection for mirroring. The record is
// visible immediately with pending sync status.
func (s *Service) CreateCollection(ctx context.Context, title, directoryPath string) (*model.Collection, error) {
	if title == "" {
		return nil, fmt.Errorf("collection title must not be empty")
	}
	col := &model.Collection{
		ID:            uuid.NewString(),
		Title:         title,
		DirectoryPath: directoryPath,
		SyncStatus:    model.SyncPending,
	}
	if err := s.store.CreateCollection(ctx, col); err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	s.log.Info("collection registered", "collection_id", col.ID, "title", title)
	s.syncSignal.Ping()
	return s.store.GetCollection(ctx, col.ID)
}

// AddItem registers a file for upload into a collection. The file's size and
// content hash are captured at registration time; the upload itself happens
// in the background.
func (s *Service) AddItem(ctx context.Context, collectionID, path, name, contentType string) (*model.Item, error) {
	col, err := s.store.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("resolving collection: %w", err)
	}
	if col == nil {
		return nil, fmt.Errorf("collection %s: %w", collectionID, ErrNotFound)
	}

	size, hash, err := fingerprintFile(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = filepath.Base(path)
	}

	it := &model.Item{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Name:         name,
		Path:         path,
		ContentType:  contentType,
		Size:         size,
		Hash:         hash,
		Status:       model.StatusPending,
		SyncStatus:   model.SyncPending,
	}
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	s.log.Info("item registered", "item_id", it.ID, "collection_id", collectionID, "path", path)
	s.syncSignal.Ping()
	return s.store.GetItem(ctx, it.ID)
}

// DeleteCollection soft-deletes a collection and all its items in one
// transaction. Deletion on the remote side happens in the background.
func (s *Service) DeleteCollection(ctx context.Context, id string) error {
	col, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return fmt.Errorf("resolving collection: %w", err)
	}
	if col == nil {
		return fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if err := s.store.SoftDeleteCollection(ctx, id); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	s.log.Info("collection marked deleted", "collection_id", id)
	s.syncSignal.Ping()
	return nil
}

// DeleteItem soft-deletes a single item.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return fmt.Errorf("resolving item: %w", err)
	}
	if it == nil {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err := s.store.SoftDeleteItem(ctx, id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	s.log.Info("item marked deleted", "item_id", id)
	s.syncSignal.Ping()
	return nil
}

// RetryCollection puts a failed collection back into the sync queue.
func (s *Service) RetryCollection(ctx context.Context, id string) error {
	if err := s.store.ResetCollectionSync(ctx, id); err != nil {
		return fmt.Errorf("retrying collection %s: %w", id, err)
	}
	s.log.Info("collection retry requested", "collection_id", id)
	s.syncSignal.Ping()
	return nil
}

// RetryItem puts a failed item back into the sync queue.
func (s *Service) RetryItem(ctx context.Context, id string) error {
	if err := s.store.ResetItemSync(ctx, id); err != nil {
		return fmt.Errorf("retrying item %s: %w", id, err)
	}
	s.log.Info("item retry requested", "item_id", id)
	s.syncSignal.Ping()
	return nil
}

// ListCollections returns all live collections with local item counts and a
// derived aggregate status.
func (s *Service) ListCollections(ctx context.Context) ([]*model.CollectionOverview, error) {
	return s.store.ListCollections(ctx)
}

// GetCollection returns one live collection, or ErrNotFound.
func (s *Service) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	col, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	return col, nil
}

// ListItems returns all live items of a collection.
func (s *Service) ListItems(ctx context.Context, collectionID string) ([]*model.Item, error) {
	return s.store.ItemsByCollection(ctx, collectionID)
}

// GetItem returns one live item, or ErrNotFound.
func (s *Service) GetItem(ctx context.Context, id string) (*model.Item, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return it, nil
}

// ItemsByNames resolves items by display name, for callers that hold remote
// search results rather than local ids.
func (s *Service) ItemsByNames(ctx context.Context, names []string) ([]*model.Item, error) {
	return s.store.ItemsByNames(ctx, names)
}

// fingerprintFile captures the size and sha256 of a file as it exists now.
func fingerprintFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, "", fmt.Errorf("stating %q: %w", path, err)
	}
	if info.IsDir() {
		return 0, "", fmt.Errorf("%q is a directory", path)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, "", fmt.Errorf("hashing %q: %w", path, err)
	}
	return info.Size(), hex.EncodeToString(h.Sum(nil)), nil
}
