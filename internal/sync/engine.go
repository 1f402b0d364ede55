package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/docmirror/docmirror/internal/events"
	"github.com/docmirror/docmirror/internal/model"
	"github.com/docmirror/docmirror/internal/remote"
	"github.com/docmirror/docmirror/internal/wake"
)

const (
	otelScope = "docmirror/sync"
	spanCycle = "sync.cycle"

	metricCollections = "docmirror.sync.collections.synced"
	metricUploads     = "docmirror.sync.items.uploaded"
	metricDeletions   = "docmirror.sync.deletions.reconciled"
	metricErrors      = "docmirror.sync.errors"

	// ActiveInterval is the wait after a cycle that found work.
	ActiveInterval = 2 * time.Second
	// IdleInterval is the wait after a cycle that found nothing.
	IdleInterval = 30 * time.Second
)

// Engine pushes local mutations to the remote service. Create one with
// [NewEngine] and start it with [Engine.Start]; it runs until ctx is
// cancelled. The engine holds no state of its own beyond in-flight request
// context; the store's status fields are the only gate.
type Engine struct {
	store      Store
	gw         Gateway
	bus        *events.Bus
	signal     *wake.Signal
	pollSignal *wake.Signal
	log        *slog.Logger

	activeInterval time.Duration
	idleInterval   time.Duration

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer         trace.Tracer
	cntCollections metric.Int64Counter
	cntUploads     metric.Int64Counter
	cntDeletions   metric.Int64Counter
	cntErrors      metric.Int64Counter
}

// NewEngine creates an Engine. signal is the engine's own wake coordinator;
// pollSignal is pinged after every successful upload initiation so the
// polling engine checks the new operation promptly. idleInterval is the wait
// after a cycle that found nothing; zero means [IdleInterval].
func NewEngine(store Store, gw Gateway, bus *events.Bus, signal, pollSignal *wake.Signal, idleInterval time.Duration, logger *slog.Logger) *Engine {
	if idleInterval == 0 {
		idleInterval = IdleInterval
	}
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		store:      store,
		gw:         gw,
		bus:        bus,
		signal:     signal,
		pollSignal: pollSignal,
		log:        logger,

		activeInterval: ActiveInterval,
		idleInterval:   idleInterval,

		tracer:         tracer,
		cntCollections: mustCounter(metricCollections, "Number of collections created remotely"),
		cntUploads:     mustCounter(metricUploads, "Number of item uploads initiated"),
		cntDeletions:   mustCounter(metricDeletions, "Number of deletions reconciled remotely"),
		cntErrors:      mustCounter(metricErrors, "Number of per-record sync errors"),
	}
}

// Start launches the background loop. A second Start is a no-op: the wake
// signal's running flag admits exactly one loop per process lifetime.
func (e *Engine) Start(ctx context.Context) {
	if !e.signal.TryStart() {
		return
	}
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	for {
		hadWork := e.Cycle(ctx)

		interval := e.idleInterval
		if hadWork {
			interval = e.activeInterval
		}
		if err := e.signal.Wait(ctx, interval); err != nil {
			e.log.Info("sync engine shutting down")
			return
		}
	}
}

// Cycle runs the four sync steps in fixed order and reports whether any step
// found work. Exported so sync-once mode can drive a single pass.
func (e *Engine) Cycle(ctx context.Context) bool {
	ctx, span := e.tracer.Start(ctx, spanCycle)
	defer span.End()

	hadWork := false
	hadWork = e.pushCollections(ctx) || hadWork
	hadWork = e.pushItems(ctx) || hadWork
	hadWork = e.reconcileDeletedCollections(ctx) || hadWork
	hadWork = e.reconcileDeletedItems(ctx) || hadWork

	span.SetAttributes(attribute.Bool("sync.had_work", hadWork))
	return hadWork
}

// pushCollections creates pending collections remotely (step 1).
func (e *Engine) pushCollections(ctx context.Context) bool {
	cols, err := e.store.PendingSyncCollections(ctx)
	if err != nil {
		e.log.Error("scanning pending collections", "error", err)
		return false
	}
	if len(cols) == 0 {
		return false
	}

	for _, col := range cols {
		rc, err := e.gw.CreateCollection(ctx, col.Title)
		if err != nil {
			e.log.Error("creating remote collection", "collection_id", col.ID, "error", err)
			e.cntErrors.Add(ctx, 1)
			if dbErr := e.store.MarkCollectionFailed(ctx, col.ID, err.Error()); dbErr != nil {
				e.log.Error("recording collection failure", "collection_id", col.ID, "error", dbErr)
			}
			e.bus.Publish(events.CollectionSyncUpdated, events.CollectionSyncPayload{
				CollectionID: col.ID,
				SyncStatus:   string(model.SyncFailed),
				Error:        err.Error(),
			})
			continue
		}

		if err := e.store.MarkCollectionSynced(ctx, col.ID, rc.Name, rc.CreateTime, rc.UpdateTime,
			int64(rc.ActiveItemsCount), int64(rc.PendingItemsCount), int64(rc.FailedItemsCount), int64(rc.SizeBytes)); err != nil {
			e.log.Error("recording synced collection", "collection_id", col.ID, "error", err)
			continue
		}

		e.cntCollections.Add(ctx, 1)
		e.log.Info("collection synced", "collection_id", col.ID, "remote_name", rc.Name)
		e.bus.Publish(events.CollectionSyncUpdated, events.CollectionSyncPayload{
			CollectionID: col.ID,
			SyncStatus:   string(model.SyncSynced),
			RemoteName:   rc.Name,
		})
	}
	return true
}

// pushItems uploads pending items whose collection is synced (step 2).
func (e *Engine) pushItems(ctx context.Context) bool {
	items, err := e.store.PendingUploadItems(ctx)
	if err != nil {
		e.log.Error("scanning pending items", "error", err)
		return false
	}
	if len(items) == 0 {
		return false
	}

	// The scan already joined on the owning collection's remote identity;
	// it only needs resolving per item here.
	for _, it := range items {
		if err := e.uploadItem(ctx, it); err != nil {
			e.log.Error("uploading item", "item_id", it.ID, "error", err)
			e.cntErrors.Add(ctx, 1)
			if dbErr := e.store.MarkItemSyncFailed(ctx, it.ID, err.Error()); dbErr != nil {
				e.log.Error("recording item failure", "item_id", it.ID, "error", dbErr)
			}
			e.bus.Publish(events.ItemSyncUpdated, events.ItemSyncPayload{
				ItemID:       it.ID,
				CollectionID: it.CollectionID,
				SyncStatus:   string(model.SyncFailed),
				Status:       string(model.StatusFailed),
				Error:        err.Error(),
			})
		}
	}
	return true
}

func (e *Engine) uploadItem(ctx context.Context, it *model.Item) error {
	remoteName, err := e.collectionRemoteName(ctx, it.CollectionID)
	if err != nil {
		return err
	}

	size := it.Size
	if size == 0 {
		info, err := os.Stat(it.Path)
		if err != nil {
			return fmt.Errorf("stating %q: %w", it.Path, err)
		}
		size = info.Size()
	}

	op, err := e.gw.UploadItem(ctx, remoteName, it.Path, it.Name, mimeTypeFor(it), size)
	if err != nil {
		return err
	}

	if err := e.store.MarkItemUploadStarted(ctx, it.ID, op.Name); err != nil {
		return fmt.Errorf("recording operation: %w", err)
	}

	e.cntUploads.Add(ctx, 1)
	e.log.Info("item upload started", "item_id", it.ID, "operation", op.Name)
	e.bus.Publish(events.ItemSyncUpdated, events.ItemSyncPayload{
		ItemID:        it.ID,
		CollectionID:  it.CollectionID,
		SyncStatus:    string(model.SyncSynced),
		OperationName: op.Name,
		Status:        string(model.StatusProcessing),
	})

	// The new operation should be checked before the next idle poll.
	e.pollSignal.Ping()
	return nil
}

// reconcileDeletedCollections replays local soft deletes remotely (step 3).
// "Not found" counts as success; any other remote error leaves the record
// for a later cycle.
func (e *Engine) reconcileDeletedCollections(ctx context.Context) bool {
	cols, err := e.store.SoftDeletedCollections(ctx)
	if err != nil {
		e.log.Error("scanning soft deleted collections", "error", err)
		return false
	}
	if len(cols) == 0 {
		return false
	}

	for _, col := range cols {
		if col.RemoteName != "" {
			err := e.gw.DeleteCollection(ctx, col.RemoteName, true)
			if err != nil && !errors.Is(err, remote.ErrNotFound) {
				e.log.Warn("remote collection delete failed, will retry", "collection_id", col.ID, "error", err)
				e.cntErrors.Add(ctx, 1)
				continue
			}
		}
		if err := e.store.HardDeleteCollection(ctx, col.ID); err != nil {
			e.log.Error("hard deleting collection", "collection_id", col.ID, "error", err)
			continue
		}
		e.cntDeletions.Add(ctx, 1)
		e.log.Info("collection deleted", "collection_id", col.ID)
		e.bus.Publish(events.CollectionSyncUpdated, events.CollectionSyncPayload{
			CollectionID: col.ID,
			SyncStatus:   "deleted",
		})
	}
	return true
}

// reconcileDeletedItems replays local item soft deletes remotely (step 4).
// Never-uploaded items are hard-deleted immediately; items with a remote
// identity wait until their collection has one too.
func (e *Engine) reconcileDeletedItems(ctx context.Context) bool {
	items, err := e.store.SoftDeletedItems(ctx)
	if err != nil {
		e.log.Error("scanning soft deleted items", "error", err)
		return false
	}
	if len(items) == 0 {
		return false
	}

	for _, it := range items {
		if it.RemoteName != "" {
			if it.CollectionRemoteName == "" {
				// Collection never reached the remote service; its own
				// reconciliation will cascade this row.
				continue
			}
			err := e.gw.DeleteItem(ctx, it.RemoteName)
			if err != nil && !errors.Is(err, remote.ErrNotFound) {
				e.log.Warn("remote item delete failed, will retry", "item_id", it.ID, "error", err)
				e.cntErrors.Add(ctx, 1)
				continue
			}
		}
		if err := e.store.HardDeleteItem(ctx, it.ID); err != nil {
			e.log.Error("hard deleting item", "item_id", it.ID, "error", err)
			continue
		}
		e.cntDeletions.Add(ctx, 1)
		e.log.Info("item deleted", "item_id", it.ID)
		e.bus.Publish(events.ItemSyncUpdated, events.ItemSyncPayload{
			ItemID:       it.ID,
			CollectionID: it.CollectionID,
			SyncStatus:   "deleted",
			Status:       "deleted",
		})
	}
	return true
}

func (e *Engine) collectionRemoteName(ctx context.Context, collectionID string) (string, error) {
	col, err := e.store.GetCollection(ctx, collectionID)
	if err != nil {
		return "", fmt.Errorf("resolving collection %s: %w", collectionID, err)
	}
	if col == nil || col.RemoteName == "" {
		return "", fmt.Errorf("collection %s has no remote identity", collectionID)
	}
	return col.RemoteName, nil
}

// mimeTypeFor picks the MIME type declared at registration, falling back to
// the file extension, then to octet-stream.
func mimeTypeFor(it *model.Item) string {
	if it.ContentType != "" {
		return it.ContentType
	}
	if t := mime.TypeByExtension(filepath.Ext(it.Path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
