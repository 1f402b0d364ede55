package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docmirror/docmirror/internal/model"
	"github.com/docmirror/docmirror/internal/state"
	"github.com/docmirror/docmirror/internal/wake"
)

func newTestService(t *testing.T) (*Service, *state.Store, *wake.Signal) {
	t.Helper()
	s, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	syncSignal := wake.NewSignal()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(s, syncSignal, wake.NewSignal(), logger)
	return svc, s, syncSignal
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

// drainPing asserts a wake is pending: a long Wait must return immediately.
func drainPing(t *testing.T, sig *wake.Signal) {
	t.Helper()
	start := time.Now()
	if err := sig.Wait(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("no pending wake, waited %v", elapsed)
	}
}

func TestCreateCollection(t *testing.T) {
	svc, _, syncSignal := newTestService(t)
	ctx := context.Background()

	col, err := svc.CreateCollection(ctx, "Research", "/home/user/docs")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if col.ID == "" {
		t.Error("ID not assigned")
	}
	if col.SyncStatus != model.SyncPending {
		t.Errorf("SyncStatus = %q, want pending", col.SyncStatus)
	}
	if col.DirectoryPath != "/home/user/docs" {
		t.Errorf("DirectoryPath = %q", col.DirectoryPath)
	}
	drainPing(t, syncSignal)
}

func TestCreateCollection_EmptyTitle(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.CreateCollection(context.Background(), "", ""); err == nil {
		t.Error("expected error for empty title")
	}
}

func TestAddItem_CapturesFingerprint(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	col, err := svc.CreateCollection(ctx, "Docs", "")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	content := "the quick brown fox"
	path := writeFixture(t, "notes.txt", content)

	it, err := svc.AddItem(ctx, col.ID, path, "", "text/plain")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if it.Name != "notes.txt" {
		t.Errorf("Name = %q, want derived from path", it.Name)
	}
	if it.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", it.Size, len(content))
	}
	sum := sha256.Sum256([]byte(content))
	if it.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("Hash = %q, want sha256 of contents", it.Hash)
	}
	if it.Status != model.StatusPending || it.SyncStatus != model.SyncPending {
		t.Errorf("statuses = %q/%q, want pending/pending", it.Status, it.SyncStatus)
	}
}

func TestAddItem_MissingFile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	col, err := svc.CreateCollection(ctx, "Docs", "")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := svc.AddItem(ctx, col.ID, filepath.Join(t.TempDir(), "nope.txt"), "", ""); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAddItem_UnknownCollection(t *testing.T) {
	svc, _, _ := newTestService(t)
	path := writeFixture(t, "a.txt", "x")
	_, err := svc.AddItem(context.Background(), "missing", path, "", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCollection_Cascade(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	col, err := svc.CreateCollection(ctx, "Docs", "")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	path := writeFixture(t, "a.txt", "x")
	it, err := svc.AddItem(ctx, col.ID, path, "", "")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if err := svc.DeleteCollection(ctx, col.ID); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}

	if _, err := svc.GetCollection(ctx, col.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := svc.GetItem(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected item gone with its collection, got %v", err)
	}

	deleted, err := store.SoftDeletedItems(ctx)
	if err != nil {
		t.Fatalf("SoftDeletedItems: %v", err)
	}
	if len(deleted) != 1 {
		t.Errorf("expected item queued for deletion reconciliation, got %d", len(deleted))
	}
}

func TestDeleteCollection_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.DeleteCollection(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryItem_ResetsBothAxes(t *testing.T) {
	svc, store, syncSignal := newTestService(t)
	ctx := context.Background()

	col, err := svc.CreateCollection(ctx, "Docs", "")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	path := writeFixture(t, "a.txt", "x")
	it, err := svc.AddItem(ctx, col.ID, path, "", "")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := store.MarkItemSyncFailed(ctx, it.ID, "boom"); err != nil {
		t.Fatalf("MarkItemSyncFailed: %v", err)
	}

	if err := svc.RetryItem(ctx, it.ID); err != nil {
		t.Fatalf("RetryItem: %v", err)
	}
	got, err := svc.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Status != model.StatusPending || got.SyncStatus != model.SyncPending {
		t.Errorf("statuses after retry = %q/%q, want pending/pending", got.Status, got.SyncStatus)
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared", got.ErrorMessage)
	}
	drainPing(t, syncSignal)
}

func TestRetryCollection_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.RetryCollection(context.Background(), "missing"); err == nil {
		t.Error("expected error retrying a missing collection")
	}
}

func TestItemsByNames(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	col, err := svc.CreateCollection(ctx, "Docs", "")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	path := writeFixture(t, "report.pdf", "pdf bytes")
	if _, err := svc.AddItem(ctx, col.ID, path, "", ""); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	items, err := svc.ItemsByNames(ctx, []string{"report.pdf"})
	if err != nil {
		t.Fatalf("ItemsByNames: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}
