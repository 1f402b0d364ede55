package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithHTTP(srv.URL, "test-key", srv.Client(), testLogger())
}

func TestCreateCollection(t *testing.T) {
	var gotPath, gotKey string
	var gotBody createCollectionRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(Collection{
			Name:              "fileSearchStores/abc",
			DisplayName:       "Research",
			CreateTime:        "2026-01-01T00:00:00Z",
			ActiveItemsCount:  2,
			PendingItemsCount: 1,
			SizeBytes:         4096,
		})
	}))

	col, err := c.CreateCollection(context.Background(), "Research")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if gotPath != "/v1beta/fileSearchStores" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("key = %q", gotKey)
	}
	if gotBody.DisplayName != "Research" {
		t.Errorf("request displayName = %q", gotBody.DisplayName)
	}
	if col.Name != "fileSearchStores/abc" {
		t.Errorf("Name = %q", col.Name)
	}
	if col.ActiveItemsCount != 2 || col.SizeBytes != 4096 {
		t.Errorf("counts not decoded: %+v", col)
	}
}

func TestCreateCollection_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))

	_, err := c.CreateCollection(context.Background(), "Research")
	if err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestDeleteCollection_ForceAndNotFound(t *testing.T) {
	var gotForce string
	status := http.StatusOK
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForce = r.URL.Query().Get("force")
		w.WriteHeader(status)
	}))

	if err := c.DeleteCollection(context.Background(), "fileSearchStores/abc", true); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if gotForce != "true" {
		t.Errorf("force = %q, want true", gotForce)
	}

	status = http.StatusNotFound
	err := c.DeleteCollection(context.Background(), "fileSearchStores/abc", true)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadItem(t *testing.T) {
	content := []byte("hello document")
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	var initiated bool
	var gotCommand, gotLength, gotType string
	var gotBytes []byte

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/upload/v1beta/fileSearchStores/abc:uploadToFileSearchStore", func(w http.ResponseWriter, r *http.Request) {
		initiated = true
		gotCommand = r.Header.Get("X-Goog-Upload-Command")
		gotLength = r.Header.Get("X-Goog-Upload-Header-Content-Length")
		gotType = r.Header.Get("X-Goog-Upload-Header-Content-Type")
		w.Header().Set("X-Goog-Upload-URL", srv.URL+"/upload-channel")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upload-channel", func(w http.ResponseWriter, r *http.Request) {
		gotBytes, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(Operation{Name: "operations/op-7", Done: false})
	})

	c := NewClientWithHTTP(srv.URL, "test-key", srv.Client(), testLogger())
	op, err := c.UploadItem(context.Background(), "fileSearchStores/abc", path, "doc.txt", "text/plain", int64(len(content)))
	if err != nil {
		t.Fatalf("UploadItem: %v", err)
	}
	if !initiated {
		t.Fatal("upload was not initiated")
	}
	if gotCommand != "start" {
		t.Errorf("initiate command = %q, want start", gotCommand)
	}
	if gotLength != "14" {
		t.Errorf("declared length = %q, want 14", gotLength)
	}
	if gotType != "text/plain" {
		t.Errorf("declared type = %q", gotType)
	}
	if string(gotBytes) != string(content) {
		t.Errorf("uploaded bytes = %q, want %q", gotBytes, content)
	}
	if op.Name != "operations/op-7" {
		t.Errorf("operation name = %q", op.Name)
	}
}

func TestUploadItem_NoUploadURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK) // no X-Goog-Upload-URL header
	}))

	_, err := c.UploadItem(context.Background(), "fileSearchStores/abc", path, "doc.txt", "text/plain", 1)
	if err == nil {
		t.Fatal("expected error when no upload URL is returned")
	}
}

func TestGetOperation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/operations/op-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Operation{
			Name: "operations/op-1",
			Done: true,
			Response: &OperationResponse{
				DocumentName: "fileSearchStores/abc/documents/d1",
			},
		})
	}))

	op, err := c.GetOperation(context.Background(), "operations/op-1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if !op.Done {
		t.Error("Done = false, want true")
	}
	if op.Response == nil || op.Response.DocumentName != "fileSearchStores/abc/documents/d1" {
		t.Errorf("Response = %+v", op.Response)
	}
}

func TestGetItem(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Item{
			Name:      "fileSearchStores/abc/documents/d1",
			State:     "STATE_ACTIVE",
			MIMEType:  "application/pdf",
			SizeBytes: 123,
		})
	}))

	it, err := c.GetItem(context.Background(), "fileSearchStores/abc/documents/d1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if it.State != "STATE_ACTIVE" {
		t.Errorf("State = %q", it.State)
	}
	if it.SizeBytes != 123 {
		t.Errorf("SizeBytes = %d", it.SizeBytes)
	}
}

func TestDeleteItem_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := c.DeleteItem(context.Background(), "fileSearchStores/abc/documents/d1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDo_EmptyBodyOK(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// An empty 200 body must not fail JSON decoding.
	if err := c.DeleteCollection(context.Background(), "fileSearchStores/abc", false); err != nil {
		t.Fatalf("DeleteCollection with empty body: %v", err)
	}
}
